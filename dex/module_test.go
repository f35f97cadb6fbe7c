// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/darkpool/contract"
)

type mockBlockContext struct {
	number uint64
}

func (m mockBlockContext) Number() uint64    { return m.number }
func (m mockBlockContext) Timestamp() uint64 { return m.number * 12 }

type mockAccessibleState struct {
	block mockBlockContext
}

func (m mockAccessibleState) GetStateDB() contract.StateDB           { return nil }
func (m mockAccessibleState) GetBlockContext() contract.BlockContext { return m.block }

func newTestContract() *DarkPoolContract {
	return &DarkPoolContract{poolManager: newTestManager()}
}

func callInput(selector uint32, parts ...[]byte) []byte {
	input := make([]byte, 4)
	binary.BigEndian.PutUint32(input, selector)
	for _, p := range parts {
		input = append(input, p...)
	}
	return input
}

func word(v int64) []byte {
	out := make([]byte, 32)
	big.NewInt(v).FillBytes(out)
	return out
}

func initializeInput(key PoolKey, priv0, priv1 PrivacyTier) []byte {
	body := make([]byte, 102)
	copy(body[0:20], key.Token0.Bytes())
	copy(body[20:40], key.Token1.Bytes())
	binary.BigEndian.PutUint32(body[40:44], key.Fee)
	binary.BigEndian.PutUint32(body[44:48], uint32(key.TickSpacing))
	copy(body[48:68], key.Hooks.Bytes())
	body[68] = byte(priv0)
	body[69] = byte(priv1)
	return callInput(SelectorInitialize, body)
}

func TestRun_InputTooShort(t *testing.T) {
	c := newTestContract()
	state := mockAccessibleState{mockBlockContext{1}}

	if _, _, err := c.Run(state, alice, ContractDarkPoolAddress, []byte{0x01, 0x02}, GasView, false); err == nil {
		t.Error("short input must fail")
	}
}

func TestRun_UnknownSelector(t *testing.T) {
	c := newTestContract()
	state := mockAccessibleState{mockBlockContext{1}}

	input := callInput(0xff000000)
	if _, _, err := c.Run(state, alice, ContractDarkPoolAddress, input, GasView, false); err == nil {
		t.Error("unknown selector must fail")
	}
}

func TestRun_OutOfGas(t *testing.T) {
	c := newTestContract()
	state := mockAccessibleState{mockBlockContext{1}}

	key := PoolKey{Token0: testTokenA, Token1: testTokenB, TickSpacing: 60}
	input := initializeInput(key, PrivacyFHE, PrivacyFHE)
	_, remaining, err := c.Run(state, alice, ContractDarkPoolAddress, input, GasPoolCreate-1, false)
	if err != contract.ErrOutOfGas {
		t.Fatalf("err = %v, want ErrOutOfGas", err)
	}
	if remaining != 0 {
		t.Errorf("remaining gas = %d, want 0", remaining)
	}
}

func TestRun_ReadOnlyRejectsMutations(t *testing.T) {
	c := newTestContract()
	state := mockAccessibleState{mockBlockContext{1}}

	input := callInput(SelectorSwap, word(0), []byte{1}, word(10), word(0), make([]byte, 20))
	_, remaining, err := c.Run(state, alice, ContractDarkPoolAddress, input, GasSwap+5, true)
	if err != contract.ErrWriteProtection {
		t.Fatalf("err = %v, want ErrWriteProtection", err)
	}
	if remaining != 5 {
		t.Errorf("remaining gas = %d, want 5", remaining)
	}
}

func TestRun_InitializeAndGetReserves(t *testing.T) {
	c := newTestContract()
	state := mockAccessibleState{mockBlockContext{1}}

	key := PoolKey{Token0: testTokenA, Token1: testTokenB, TickSpacing: 60}
	ret, remaining, err := c.Run(state, alice, ContractDarkPoolAddress, initializeInput(key, PrivacyFHE, PrivacyFHE), GasPoolCreate, false)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if remaining != 0 {
		t.Errorf("remaining gas = %d, want 0", remaining)
	}
	if common.BytesToHash(ret) != key.ID() {
		t.Errorf("returned id %x, want %x", ret, key.ID())
	}

	// Views work in read-only mode.
	view := callInput(SelectorGetReserves, key.ID().Bytes())
	ret, _, err = c.Run(state, alice, ContractDarkPoolAddress, view, GasView, true)
	if err != nil {
		t.Fatalf("getReserves: %v", err)
	}
	if len(ret) != 68 {
		t.Fatalf("getReserves returned %d bytes, want 68", len(ret))
	}
	if r0 := new(big.Int).SetBytes(ret[0:32]); r0.Sign() != 0 {
		t.Errorf("reserve0 = %d, want 0", r0)
	}
	if tick := int24(binary.BigEndian.Uint32(ret[64:68])); tick != 0 {
		t.Errorf("tick = %d, want 0", tick)
	}
}

func TestRun_LiquidityAndSwapDispatch(t *testing.T) {
	c := newTestContract()
	state := mockAccessibleState{mockBlockContext{1}}

	key := PoolKey{Token0: testTokenA, Token1: testTokenB, TickSpacing: 60}
	if _, _, err := c.Run(state, alice, ContractDarkPoolAddress, initializeInput(key, PrivacyFHE, PrivacyFHE), GasPoolCreate, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	id := key.ID()

	add := callInput(SelectorAddLiquidity, id.Bytes(), word(1000), word(1000))
	ret, _, err := c.Run(state, alice, ContractDarkPoolAddress, add, GasLiquidity, false)
	if err != nil {
		t.Fatalf("addLiquidity: %v", err)
	}
	if minted := new(big.Int).SetBytes(ret); minted.Int64() != 1000 {
		t.Errorf("minted = %d, want 1000", minted.Int64())
	}

	swap := callInput(SelectorSwap, id.Bytes(), []byte{1}, word(100), word(0), make([]byte, 20))
	ret, _, err = c.Run(state, bob, ContractDarkPoolAddress, swap, GasSwap, false)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if len(ret) != 64 {
		t.Fatalf("swap returned %d bytes, want 64", len(ret))
	}
	if in := new(big.Int).SetBytes(ret[0:32]); in.Int64() != 100 {
		t.Errorf("amount0 = %d, want 100", in.Int64())
	}
	if out := new(big.Int).SetBytes(ret[32:64]); out.Int64() != 90 {
		t.Errorf("amount1 = %d, want 90", out.Int64())
	}

	quote := callInput(SelectorQuote, id.Bytes(), []byte{1}, word(100))
	ret, _, err = c.Run(state, bob, ContractDarkPoolAddress, quote, GasView, true)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if out := new(big.Int).SetBytes(ret); out.Int64() <= 0 {
		t.Errorf("quote = %d, want positive", out.Int64())
	}
}

func TestRequiredGas(t *testing.T) {
	c := newTestContract()

	tests := []struct {
		selector uint32
		want     uint64
	}{
		{SelectorInitialize, GasPoolCreate},
		{SelectorSwap, GasSwap},
		{SelectorSwapEncrypted, GasSwapEncrypted},
		{SelectorDeposit, GasOrderPlace},
		{SelectorWithdraw, GasOrderWithdraw},
		{SelectorClaim, GasOrderClaim},
		{SelectorAddLiquidity, GasLiquidity},
		{SelectorAddLiquidityEnc, GasLiquidity + GasSwapEncrypted},
		{SelectorSyncReserves, GasReserveSync},
		{SelectorQueueProtocolFee, GasFeeAdmin},
		{SelectorGetReserves, GasView},
		{SelectorQuote, GasView},
	}
	for _, tt := range tests {
		if got := c.RequiredGas(callInput(tt.selector)); got != tt.want {
			t.Errorf("RequiredGas(%#x) = %d, want %d", tt.selector, got, tt.want)
		}
	}
}

func TestConfig(t *testing.T) {
	a := &Config{MaxBucketsPerSwap: 8}
	if a.Key() != ConfigKey {
		t.Errorf("Key = %q, want %q", a.Key(), ConfigKey)
	}
	if err := a.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
	if err := (&Config{MaxBucketsPerSwap: -1}).Verify(); err == nil {
		t.Error("negative bucket cap must fail verification")
	}

	b := &Config{MaxBucketsPerSwap: 8}
	if !a.Equal(b) {
		t.Error("equal configs reported unequal")
	}
	b.MaxReserveStaleness = 10
	if a.Equal(b) {
		t.Error("unequal configs reported equal")
	}
	if a.Equal(nil) {
		t.Error("nil comparison must be false")
	}
}
