// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package contract defines the interfaces a stateful precompile compiles
// against: the EVM state it may touch and the contract entry point shape.
package contract

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

var (
	ErrOutOfGas        = errors.New("out of gas")
	ErrWriteProtection = errors.New("write protection: cannot write in read-only mode")
)

// StateDB is the subset of EVM state access a precompile needs.
type StateDB interface {
	GetState(addr common.Address, key common.Hash) common.Hash
	SetState(addr common.Address, key common.Hash, value common.Hash)
	GetBalance(addr common.Address) *uint256.Int
	AddBalance(addr common.Address, amount *uint256.Int)
	SubBalance(addr common.Address, amount *uint256.Int)
	Exist(addr common.Address) bool
	CreateAccount(addr common.Address)
}

// BlockContext exposes block-level values to a precompile.
type BlockContext interface {
	Number() uint64
	Timestamp() uint64
}

// AccessibleState is the execution context handed to a precompile call.
type AccessibleState interface {
	GetStateDB() StateDB
	GetBlockContext() BlockContext
}

// StatefulPrecompiledContract is the interface for executing a precompiled
// contract with access to chain state.
type StatefulPrecompiledContract interface {
	Run(
		accessibleState AccessibleState,
		caller common.Address,
		addr common.Address,
		input []byte,
		suppliedGas uint64,
		readOnly bool,
	) (ret []byte, remainingGas uint64, err error)

	RequiredGas(input []byte) uint64
}

// RunStatefulPrecompiledContract is a helper for dispatching to a contract.
func RunStatefulPrecompiledContract(
	precompile StatefulPrecompiledContract,
	accessibleState AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	return precompile.Run(accessibleState, caller, addr, input, suppliedGas, readOnly)
}

// DeductGas subtracts cost from suppliedGas, erroring if underfunded.
func DeductGas(suppliedGas uint64, cost uint64) (uint64, error) {
	if suppliedGas < cost {
		return 0, ErrOutOfGas
	}
	return suppliedGas - cost, nil
}
