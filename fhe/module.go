// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"github.com/luxfi/darkpool/modules"
)

// ConfigKey is the key used in json config files to specify this precompile config.
const ConfigKey = "fheConfig"

// FHEPrecompile is the singleton coprocessor instance.
var FHEPrecompile = &Contract{Engine: NewEngine()}

// Module is the precompile module registration.
var Module = modules.Module{
	ConfigKey: ConfigKey,
	Address:   ContractAddress,
	Contract:  FHEPrecompile,
}

func init() {
	if err := modules.RegisterModule(Module); err != nil {
		panic(err)
	}
}
