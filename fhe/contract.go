// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"encoding/binary"
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/darkpool/contract"
)

// ContractAddress is where the FHE coprocessor precompile lives.
var ContractAddress = common.HexToAddress("0x0700000000000000000000000000000000000001")

// Contract exposes the engine to the EVM. Handles go in and out as
// bytes32. Per the zero-handle convention, evaluation never reverts on
// bad operands; only malformed calldata and forged inputs are errors.
type Contract struct {
	Engine *Engine
}

var _ contract.StatefulPrecompiledContract = (*Contract)(nil)

// Method selectors, grouped by operation family.
const (
	SelectorTrivialEncrypt uint32 = 0x01000000 // trivialEncrypt(uint256,uint8)
	SelectorAdd            uint32 = 0x02000000 // add(bytes32,bytes32)
	SelectorSub            uint32 = 0x02000001 // sub(bytes32,bytes32)
	SelectorMulDiv         uint32 = 0x02000002 // mulDiv(bytes32,uint256,uint256)
	SelectorLt             uint32 = 0x03000000 // lt(bytes32,bytes32)
	SelectorLe             uint32 = 0x03000001 // le(bytes32,bytes32)
	SelectorGt             uint32 = 0x03000002 // gt(bytes32,bytes32)
	SelectorGe             uint32 = 0x03000003 // ge(bytes32,bytes32)
	SelectorEq             uint32 = 0x03000004 // eq(bytes32,bytes32)
	SelectorMin            uint32 = 0x03000005 // min(bytes32,bytes32)
	SelectorMax            uint32 = 0x03000006 // max(bytes32,bytes32)
	SelectorSelect         uint32 = 0x04000000 // select(bytes32,bytes32,bytes32)
	SelectorAnd            uint32 = 0x04000001 // and(bytes32,bytes32)
	SelectorOr             uint32 = 0x04000002 // or(bytes32,bytes32)
	SelectorNot            uint32 = 0x04000003 // not(bytes32)
	SelectorVerify         uint32 = 0x05000000 // verify(bytes,uint8,uint8,bytes)
	SelectorDecrypt        uint32 = 0x05000001 // requestDecrypt(bytes32)
	SelectorSealOutput     uint32 = 0x05000002 // sealOutput(bytes32,bytes)
)

// Run executes the FHE precompile.
func (c *Contract) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) (ret []byte, remainingGas uint64, err error) {
	if len(input) < 4 {
		return nil, suppliedGas, ErrInvalidInput
	}

	selector := binary.BigEndian.Uint32(input[:4])
	data := input[4:]

	cost := c.RequiredGas(input)
	remainingGas, err = contract.DeductGas(suppliedGas, cost)
	if err != nil {
		return nil, 0, err
	}

	switch selector {
	case SelectorTrivialEncrypt:
		if len(data) < 33 {
			return nil, remainingGas, ErrInvalidInput
		}
		value := new(big.Int).SetBytes(data[:32])
		h := c.Engine.TrivialEncrypt(value, data[32])
		return h.Bytes(), remainingGas, nil

	case SelectorAdd:
		return c.binaryOp(data, remainingGas, c.Engine.Add)
	case SelectorSub:
		return c.binaryOp(data, remainingGas, c.Engine.Sub)
	case SelectorMin:
		return c.binaryOp(data, remainingGas, c.Engine.Min)
	case SelectorMax:
		return c.binaryOp(data, remainingGas, c.Engine.Max)
	case SelectorLt:
		return c.binaryOp(data, remainingGas, c.Engine.Lt)
	case SelectorLe:
		return c.binaryOp(data, remainingGas, c.Engine.Le)
	case SelectorGt:
		return c.binaryOp(data, remainingGas, c.Engine.Gt)
	case SelectorGe:
		return c.binaryOp(data, remainingGas, c.Engine.Ge)
	case SelectorEq:
		return c.binaryOp(data, remainingGas, c.Engine.Eq)
	case SelectorAnd:
		return c.binaryOp(data, remainingGas, c.Engine.And)
	case SelectorOr:
		return c.binaryOp(data, remainingGas, c.Engine.Or)

	case SelectorNot:
		if len(data) < 32 {
			return nil, remainingGas, ErrInvalidInput
		}
		h := c.Engine.Not(common.BytesToHash(data[:32]))
		return h.Bytes(), remainingGas, nil

	case SelectorMulDiv:
		if len(data) < 96 {
			return nil, remainingGas, ErrInvalidInput
		}
		h := common.BytesToHash(data[:32])
		num := new(big.Int).SetBytes(data[32:64])
		den := new(big.Int).SetBytes(data[64:96])
		return c.Engine.MulDiv(h, num, den).Bytes(), remainingGas, nil

	case SelectorSelect:
		if len(data) < 96 {
			return nil, remainingGas, ErrInvalidInput
		}
		cond := common.BytesToHash(data[:32])
		ifTrue := common.BytesToHash(data[32:64])
		ifFalse := common.BytesToHash(data[64:96])
		return c.Engine.Select(cond, ifTrue, ifFalse).Bytes(), remainingGas, nil

	case SelectorVerify:
		ic, err := decodeInputCiphertext(data)
		if err != nil {
			return nil, remainingGas, err
		}
		h, err := c.Engine.Verify(ic)
		if err != nil {
			return nil, remainingGas, err
		}
		return h.Bytes(), remainingGas, nil

	case SelectorDecrypt:
		if len(data) < 32 {
			return nil, remainingGas, ErrInvalidInput
		}
		if readOnly {
			return nil, remainingGas, contract.ErrWriteProtection
		}
		h := common.BytesToHash(data[:32])
		id, err := c.Engine.RequestDecrypt(h, func(uint64, *big.Int) {})
		if err != nil {
			return nil, remainingGas, err
		}
		out := make([]byte, 32)
		binary.BigEndian.PutUint64(out[24:], id)
		return out, remainingGas, nil

	case SelectorSealOutput:
		if len(data) < 97 {
			return nil, remainingGas, ErrInvalidInput
		}
		h := common.BytesToHash(data[:32])
		sealed, err := c.Engine.SealOutput(h, data[32:97])
		if err != nil {
			return nil, remainingGas, err
		}
		return sealed, remainingGas, nil

	default:
		return nil, remainingGas, ErrInvalidInput
	}
}

func (c *Contract) binaryOp(data []byte, gas uint64, f func(a, b Handle) Handle) ([]byte, uint64, error) {
	if len(data) < 64 {
		return nil, gas, ErrInvalidInput
	}
	a := common.BytesToHash(data[:32])
	b := common.BytesToHash(data[32:64])
	return f(a, b).Bytes(), gas, nil
}

// RequiredGas returns the gas required for the FHE operation.
func (c *Contract) RequiredGas(input []byte) uint64 {
	if len(input) < 4 {
		return 0
	}
	switch binary.BigEndian.Uint32(input[:4]) {
	case SelectorTrivialEncrypt:
		return GasEncrypt
	case SelectorAdd:
		return GasAdd
	case SelectorSub:
		return GasSub
	case SelectorMulDiv:
		return GasMulDiv
	case SelectorLt, SelectorLe, SelectorGt, SelectorGe, SelectorEq:
		return GasCmp
	case SelectorMin, SelectorMax:
		return GasMin
	case SelectorSelect:
		return GasSelect
	case SelectorAnd, SelectorOr, SelectorNot:
		return GasBool
	case SelectorVerify:
		return GasVerify
	case SelectorDecrypt:
		return GasDecryptRequest
	case SelectorSealOutput:
		return GasSeal
	default:
		return GasCmp
	}
}

// decodeInputCiphertext parses verify calldata:
// [ctLen(4) || ct || securityZone(1) || ctType(1) || signature(65)]
func decodeInputCiphertext(data []byte) (InputCiphertext, error) {
	if len(data) < 4 {
		return InputCiphertext{}, ErrInvalidInput
	}
	ctLen := int(binary.BigEndian.Uint32(data[:4]))
	if ctLen <= 0 || len(data) < 4+ctLen+2+65 {
		return InputCiphertext{}, ErrInvalidInput
	}
	offset := 4 + ctLen
	return InputCiphertext{
		Ciphertext:   data[4:offset],
		SecurityZone: data[offset],
		CtType:       data[offset+1],
		Signature:    data[offset+2 : offset+2+65],
	}, nil
}
