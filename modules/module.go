// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package modules tracks the stateful precompiles that make up the dark
// pool: the confidential order book engine and the FHE coprocessor it
// leans on. Registration is address-keyed and deterministic so that
// every node dispatches calls identically.
package modules

import (
	"github.com/luxfi/geth/common"

	"github.com/luxfi/darkpool/contract"
)

// Module pairs a precompile contract with the address it is reachable at
// and the config key used to enable it in the chain config.
type Module struct {
	// ConfigKey is the unique key used in json config files to specify
	// this precompile.
	ConfigKey string

	// Address is the address where the precompile is accessible.
	Address common.Address

	// Contract is the precompile executed at Address.
	Contract contract.StatefulPrecompiledContract
}

type moduleArray []Module

func (m moduleArray) Len() int      { return len(m) }
func (m moduleArray) Swap(i, j int) { m[i], m[j] = m[j], m[i] }
func (m moduleArray) Less(i, j int) bool {
	return m[i].Address.Hex() < m[j].Address.Hex()
}
