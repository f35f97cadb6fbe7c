// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/darkpool/fhe"
)

func TestInitializePool_Validation(t *testing.T) {
	pm := newTestManager()

	base := PoolKey{Token0: testTokenA, Token1: testTokenB, Fee: Fee030, TickSpacing: 60}

	tests := []struct {
		name    string
		mutate  func(k PoolKey) PoolKey
		wantErr error
	}{
		{"valid", func(k PoolKey) PoolKey { return k }, nil},
		{"identical tokens", func(k PoolKey) PoolKey { k.Token1 = k.Token0; return k }, ErrIdenticalTokens},
		{"wrong order", func(k PoolKey) PoolKey { k.Token0, k.Token1 = k.Token1, k.Token0; return k }, ErrInvalidTokenOrder},
		{"fee too high", func(k PoolKey) PoolKey { k.Fee = MaxFeeBps + 1; return k }, ErrInvalidFee},
		{"zero spacing", func(k PoolKey) PoolKey { k.TickSpacing = 0; return k }, ErrInvalidSpacing},
		{"duplicate", func(k PoolKey) PoolKey { return k }, ErrPoolAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pm.InitializePool(tt.mutate(base), PrivacyPublic, PrivacyPublic, nil)
			if err != tt.wantErr {
				t.Errorf("InitializePool = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPoolTier(t *testing.T) {
	tests := []struct {
		name  string
		p0    PrivacyTier
		p1    PrivacyTier
		wants PoolTier
	}{
		{"public", PrivacyPublic, PrivacyPublic, TierPublic},
		{"mixed lower", PrivacyFHE, PrivacyPublic, TierMixed},
		{"mixed upper", PrivacyPublic, PrivacyFHE, TierMixed},
		{"fhe", PrivacyFHE, PrivacyFHE, TierFHE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := &Pool{Token0Privacy: tt.p0, Token1Privacy: tt.p1}
			if got := pool.Tier(); got != tt.wants {
				t.Errorf("Tier() = %v, want %v", got, tt.wants)
			}
		})
	}
}

func TestPoolKeyID_Deterministic(t *testing.T) {
	a := PoolKey{Token0: testTokenA, Token1: testTokenB, Fee: Fee030, TickSpacing: 60}
	b := a
	if a.ID() != b.ID() {
		t.Error("equal keys must hash equal")
	}
	b.Fee = Fee005
	if a.ID() == b.ID() {
		t.Error("different fee must change the pool id")
	}
}

func TestSwapForPool_ConstantProduct(t *testing.T) {
	pm := newTestManager()
	id, key := newFHEPool(t, pm)

	if _, err := pm.AddLiquidity(alice, id, big.NewInt(1000), big.NewInt(1000)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}

	delta, err := pm.SwapForPool(bob, id, SwapParams{
		ZeroForOne: true,
		AmountIn:   big.NewInt(100),
	}, 1)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}

	// Zero fee: out = 100*1000/1100 = 90.
	if got := delta.Amount1.Int64(); got != 90 {
		t.Errorf("amount out = %d, want 90", got)
	}

	pool, _ := pm.GetPool(id)
	if got := pool.Reserves.Reserve0.Int64(); got != 1100 {
		t.Errorf("reserve0 = %d, want 1100", got)
	}
	if got := pool.Reserves.Reserve1.Int64(); got != 910 {
		t.Errorf("reserve1 = %d, want 910", got)
	}

	// The encrypted mirror tracked the plaintext trade.
	if got := revealInt(t, pm, pool.Reserves.EncReserve0); got != 1100 {
		t.Errorf("enc reserve0 = %d, want 1100", got)
	}
	if got := revealInt(t, pm, pool.Reserves.EncReserve1); got != 910 {
		t.Errorf("enc reserve1 = %d, want 910", got)
	}

	// Output is credited for withdrawal.
	if got := pm.Credit(bob, key.Token1).Int64(); got != 90 {
		t.Errorf("credit = %d, want 90", got)
	}
}

func TestSwapForPool_SlippageReverts(t *testing.T) {
	pm := newTestManager()
	id, _ := newFHEPool(t, pm)

	if _, err := pm.AddLiquidity(alice, id, big.NewInt(1000), big.NewInt(1000)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}

	pool, _ := pm.GetPool(id)
	r0 := pool.Reserves.Reserve0.Int64()

	_, err := pm.SwapForPool(bob, id, SwapParams{
		ZeroForOne:   true,
		AmountIn:     big.NewInt(100),
		MinAmountOut: big.NewInt(91),
	}, 1)
	if err != ErrSlippage {
		t.Fatalf("swap = %v, want ErrSlippage", err)
	}
	if got := pool.Reserves.Reserve0.Int64(); got != r0 {
		t.Errorf("reserves moved on reverted swap: %d != %d", got, r0)
	}
}

func TestSwapForPool_ClosesCrossedBuckets(t *testing.T) {
	pm := newTestManager()
	id, _ := newFHEPool(t, pm)

	if _, err := pm.AddLiquidity(alice, id, big.NewInt(100000), big.NewInt(100000)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if err := pm.Deposit(alice, id, -60, SideBuy, enc(pm, 10), 0, -1, 1); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// A large sell moves the price well below tick -60.
	if _, err := pm.SwapForPool(bob, id, SwapParams{
		ZeroForOne: true,
		AmountIn:   big.NewInt(20000),
	}, 1); err != nil {
		t.Fatalf("swap: %v", err)
	}

	pool, _ := pm.GetPool(id)
	if pool.Reserves.Tick >= -60 {
		t.Fatalf("tick = %d, want below -60", pool.Reserves.Tick)
	}

	bucket := pm.GetBucket(id, -60, SideBuy)
	if got := revealInt(t, pm, bucket.Liquidity); got != 0 {
		t.Errorf("crossed bucket liquidity = %d, want 0", got)
	}
}

func TestSwapEncrypted_Output(t *testing.T) {
	pm := newTestManager()
	id, key := newFHEPool(t, pm)

	if _, err := pm.AddLiquidityEncrypted(alice, id, enc(pm, 1000), enc(pm, 1000)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}

	dir := pm.engine.TrivialEncrypt(big.NewInt(1), fhe.TypeEbool) // zeroForOne
	out, err := pm.SwapEncrypted(bob, id, dir, enc(pm, 100), fhe.Handle{}, bob, 1)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if got := revealInt(t, pm, out); got != 90 {
		t.Errorf("encrypted out = %d, want 90", got)
	}

	pool, _ := pm.GetPool(id)
	if got := revealInt(t, pm, pool.Reserves.EncReserve0); got != 1100 {
		t.Errorf("enc reserve0 = %d, want 1100", got)
	}
	if got := revealInt(t, pm, pool.Reserves.EncReserve1); got != 910 {
		t.Errorf("enc reserve1 = %d, want 910", got)
	}

	// The plaintext mirror stays where it was: stale by design.
	if pool.Reserves.Reserve0.Sign() != 0 {
		t.Error("plaintext mirror moved on an encrypted swap")
	}

	// The output is credited on the hidden output leg only.
	if got := revealInt(t, pm, pm.EncCredit(bob, key.Token1)); got != 90 {
		t.Errorf("token1 credit = %d, want 90", got)
	}
	if got := revealInt(t, pm, pm.EncCredit(bob, key.Token0)); got != 0 {
		t.Errorf("token0 credit = %d, want 0", got)
	}
}

// A violated encrypted slippage bound must not revert and must not move
// state: the failure is invisible to observers.
func TestSwapEncrypted_SlippageIsZeroEffect(t *testing.T) {
	pm := newTestManager()
	id, _ := newFHEPool(t, pm)

	if _, err := pm.AddLiquidityEncrypted(alice, id, enc(pm, 1000), enc(pm, 1000)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}

	dir := pm.engine.TrivialEncrypt(big.NewInt(1), fhe.TypeEbool)
	out, err := pm.SwapEncrypted(bob, id, dir, enc(pm, 100), enc(pm, 1000), bob, 1)
	if err != nil {
		t.Fatalf("swap with bad bound must succeed, got %v", err)
	}
	if got := revealInt(t, pm, out); got != 0 {
		t.Errorf("out = %d, want 0 on violated bound", got)
	}

	pool, _ := pm.GetPool(id)
	if got := revealInt(t, pm, pool.Reserves.EncReserve0); got != 1000 {
		t.Errorf("enc reserve0 = %d, want 1000 (untouched)", got)
	}
	if got := revealInt(t, pm, pool.Reserves.EncReserve1); got != 1000 {
		t.Errorf("enc reserve1 = %d, want 1000 (untouched)", got)
	}
}

func TestSwapEncrypted_MalformedInputsAreZeroEffect(t *testing.T) {
	pm := newTestManager()
	id, _ := newFHEPool(t, pm)

	if _, err := pm.AddLiquidityEncrypted(alice, id, enc(pm, 1000), enc(pm, 1000)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}

	out, err := pm.SwapEncrypted(bob, id, fhe.Handle{}, fhe.Handle{}, fhe.Handle{}, bob, 1)
	if err != nil {
		t.Fatalf("malformed swap must succeed silently, got %v", err)
	}
	if got := revealInt(t, pm, out); got != 0 {
		t.Errorf("out = %d, want 0", got)
	}
}

func TestAddRemoveLiquidity(t *testing.T) {
	pm := newTestManager()
	id, key := newFHEPool(t, pm)

	minted, err := pm.AddLiquidity(alice, id, big.NewInt(1000), big.NewInt(4000))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	// First mint is sqrt(1000*4000) = 2000.
	if minted.Int64() != 2000 {
		t.Errorf("minted = %d, want 2000", minted.Int64())
	}
	if got := pm.LPBalance(id, alice).Int64(); got != 2000 {
		t.Errorf("lp balance = %d, want 2000", got)
	}

	delta, err := pm.RemoveLiquidity(alice, id, big.NewInt(1000))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if delta.Amount0.Int64() != 500 || delta.Amount1.Int64() != 2000 {
		t.Errorf("remove delta = (%d, %d), want (500, 2000)", delta.Amount0.Int64(), delta.Amount1.Int64())
	}
	if got := pm.Credit(alice, key.Token0).Int64(); got != 500 {
		t.Errorf("token0 credit = %d, want 500", got)
	}

	// More than the balance is a hard reject.
	if _, err := pm.RemoveLiquidity(alice, id, big.NewInt(5000)); err != ErrInsufficientLiquidity {
		t.Errorf("over-remove = %v, want ErrInsufficientLiquidity", err)
	}
}

func TestAddRemoveLiquidityEncrypted(t *testing.T) {
	pm := newTestManager()
	id, key := newFHEPool(t, pm)

	minted, err := pm.AddLiquidityEncrypted(alice, id, enc(pm, 1000), enc(pm, 4000))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	// First encrypted mint is min(1000, 4000).
	if got := revealInt(t, pm, minted); got != 1000 {
		t.Errorf("minted = %d, want 1000", got)
	}

	out0, out1, err := pm.RemoveLiquidityEncrypted(alice, id, enc(pm, 500))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := revealInt(t, pm, out0); got != 500 {
		t.Errorf("out0 = %d, want 500", got)
	}
	if got := revealInt(t, pm, out1); got != 2000 {
		t.Errorf("out1 = %d, want 2000", got)
	}
	if got := revealInt(t, pm, pm.EncCredit(alice, key.Token0)); got != 500 {
		t.Errorf("token0 credit = %d, want 500", got)
	}

	// Burns clamp to the balance instead of failing.
	out0, _, err = pm.RemoveLiquidityEncrypted(alice, id, enc(pm, 100000))
	if err != nil {
		t.Fatalf("over-remove: %v", err)
	}
	if got := revealInt(t, pm, out0); got != 500 {
		t.Errorf("clamped out0 = %d, want 500", got)
	}
}

func TestAddLiquidityEncrypted_RequiresFHEPool(t *testing.T) {
	pm := newTestManager()
	key := PoolKey{Token0: testTokenA, Token1: testTokenB, Fee: Fee030, TickSpacing: 60}
	id, err := pm.InitializePool(key, PrivacyPublic, PrivacyFHE, nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, err := pm.AddLiquidityEncrypted(alice, id, enc(pm, 1), enc(pm, 1)); err != ErrNotFHEPool {
		t.Errorf("add on mixed pool = %v, want ErrNotFHEPool", err)
	}
	if _, _, err := pm.RemoveLiquidityEncrypted(alice, id, enc(pm, 1)); err != ErrNotFHEPool {
		t.Errorf("remove on mixed pool = %v, want ErrNotFHEPool", err)
	}
}

func TestProtocolFee_TwoPhase(t *testing.T) {
	controller := common.HexToAddress("0x00000000000000000000000000000000000000fe")
	pm := newTestManager(WithFeeController(controller))
	id, _ := newFHEPool(t, pm)

	if err := pm.QueueProtocolFee(alice, id, 100, 10); err != ErrUnauthorized {
		t.Fatalf("queue by stranger = %v, want ErrUnauthorized", err)
	}
	if err := pm.QueueProtocolFee(controller, id, MaxFeeBps+1, 10); err != ErrInvalidFee {
		t.Fatalf("queue excessive fee = %v, want ErrInvalidFee", err)
	}
	if err := pm.QueueProtocolFee(controller, id, 100, 10); err != nil {
		t.Fatalf("queue: %v", err)
	}

	if err := pm.ApplyProtocolFee(id, 5); err != ErrFeeChangeNotReady {
		t.Fatalf("early apply = %v, want ErrFeeChangeNotReady", err)
	}
	if err := pm.ApplyProtocolFee(id, 10); err != nil {
		t.Fatalf("apply: %v", err)
	}

	pool, _ := pm.GetPool(id)
	if pool.ProtocolFeeBps != 100 {
		t.Errorf("fee = %d, want 100", pool.ProtocolFeeBps)
	}

	if err := pm.ApplyProtocolFee(id, 11); err != ErrNoFeeChangeQueued {
		t.Errorf("re-apply = %v, want ErrNoFeeChangeQueued", err)
	}
}

func TestQuote(t *testing.T) {
	pm := newTestManager()
	id, _ := newFHEPool(t, pm)

	if _, err := pm.AddLiquidity(alice, id, big.NewInt(1000), big.NewInt(1000)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}

	out, err := pm.Quote(id, true, big.NewInt(100))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if out.Int64() != 90 {
		t.Errorf("quote = %d, want 90", out.Int64())
	}

	pool, _ := pm.GetPool(id)
	if got := pool.Reserves.Reserve0.Int64(); got != 1000 {
		t.Errorf("quote mutated reserves: %d", got)
	}

	if _, err := pm.Quote(id, true, nil); err != ErrZeroAmount {
		t.Errorf("nil amount = %v, want ErrZeroAmount", err)
	}
}
