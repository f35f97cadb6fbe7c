// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/darkpool/contract"
)

type stubBlockContext struct{}

func (stubBlockContext) Number() uint64    { return 1 }
func (stubBlockContext) Timestamp() uint64 { return 12 }

type stubAccessibleState struct{}

func (stubAccessibleState) GetStateDB() contract.StateDB           { return nil }
func (stubAccessibleState) GetBlockContext() contract.BlockContext { return stubBlockContext{} }

func fheCall(selector uint32, parts ...[]byte) []byte {
	input := make([]byte, 4)
	binary.BigEndian.PutUint32(input, selector)
	for _, p := range parts {
		input = append(input, p...)
	}
	return input
}

func allSelectors() map[string]uint32 {
	return map[string]uint32{
		"trivialEncrypt": SelectorTrivialEncrypt,
		"add":            SelectorAdd,
		"sub":            SelectorSub,
		"mulDiv":         SelectorMulDiv,
		"lt":             SelectorLt,
		"le":             SelectorLe,
		"gt":             SelectorGt,
		"ge":             SelectorGe,
		"eq":             SelectorEq,
		"min":            SelectorMin,
		"max":            SelectorMax,
		"select":         SelectorSelect,
		"and":            SelectorAnd,
		"or":             SelectorOr,
		"not":            SelectorNot,
		"verify":         SelectorVerify,
		"requestDecrypt": SelectorDecrypt,
		"sealOutput":     SelectorSealOutput,
	}
}

func TestSelectorsAreDistinct(t *testing.T) {
	seen := make(map[uint32]string)
	for name, sel := range allSelectors() {
		if prev, ok := seen[sel]; ok {
			t.Fatalf("selector %#08x assigned to both %s and %s", sel, prev, name)
		}
		seen[sel] = name
	}
}

// Misrouted ERC-20 calldata must hit the unknown-selector path, never an
// FHE operation.
func TestSelectorsAvoidTokenMethods(t *testing.T) {
	tokenMethods := map[uint32]string{
		0xa9059cbb: "transfer(address,uint256)",
		0x23b872dd: "transferFrom(address,address,uint256)",
		0x095ea7b3: "approve(address,uint256)",
		0x70a08231: "balanceOf(address)",
		0x18160ddd: "totalSupply()",
	}
	for name, sel := range allSelectors() {
		if sig, ok := tokenMethods[sel]; ok {
			t.Errorf("selector %s (%#08x) collides with %s", name, sel, sig)
		}
	}
}

func TestContractRun_BinaryOps(t *testing.T) {
	e := NewEngine()
	c := &Contract{Engine: e}
	state := stubAccessibleState{}

	a := e.TrivialEncrypt(big.NewInt(100), TypeEuint128)
	b := e.TrivialEncrypt(big.NewInt(30), TypeEuint128)

	tests := []struct {
		name     string
		selector uint32
		want     int64
	}{
		{"add", SelectorAdd, 130},
		{"sub", SelectorSub, 70},
		{"min", SelectorMin, 30},
		{"max", SelectorMax, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := fheCall(tt.selector, a.Bytes(), b.Bytes())
			ret, _, err := c.Run(state, common.Address{}, ContractAddress, input, 1_000_000, false)
			require.NoError(t, err)
			require.Len(t, ret, 32)
			got := reveal(t, e, common.BytesToHash(ret))
			require.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestContractRun_UnknownSelector(t *testing.T) {
	c := &Contract{Engine: NewEngine()}
	input := fheCall(0xdeadbeef, make([]byte, 64))
	_, _, err := c.Run(stubAccessibleState{}, common.Address{}, ContractAddress, input, 1_000_000, false)
	require.ErrorIs(t, err, ErrInvalidInput)
}
