// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/darkpool/fhe"
)

// SwapForPool executes a plaintext constant-product swap against the mirror.
// Slippage is a hard revert here: the trade itself is public, so there is
// nothing to hide. Both mirrors move, and the momentum walk closes any
// buckets the price crossed. A stale mirror fires a background sync first
// but never blocks the swap.
func (pm *PoolManager) SwapForPool(
	caller common.Address,
	poolID common.Hash,
	params SwapParams,
	blockNumber uint64,
) (BalanceDelta, error) {
	if params.AmountIn == nil || params.AmountIn.Sign() <= 0 {
		return BalanceDelta{}, ErrZeroAmount
	}

	pm.syncIfStale(poolID, blockNumber)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.pools[poolID]
	if !ok {
		return BalanceDelta{}, ErrPoolNotFound
	}
	res := &pool.Reserves

	rIn, rOut := res.Reserve0, res.Reserve1
	if !params.ZeroForOne {
		rIn, rOut = rOut, rIn
	}
	if rIn.Sign() == 0 || rOut.Sign() == 0 {
		return BalanceDelta{}, ErrInsufficientLiquidity
	}

	out, inAfterFee := constantProductOut(params.AmountIn, rIn, rOut, pool.Key.Fee)
	if out.Sign() == 0 || out.Cmp(rOut) >= 0 {
		return BalanceDelta{}, ErrInsufficientLiquidity
	}
	if params.MinAmountOut != nil && out.Cmp(params.MinAmountOut) < 0 {
		return BalanceDelta{}, ErrSlippage
	}
	if h := pm.hook(pool, HookBeforeSwap); h != nil {
		if err := h.BeforeSwap(poolID, params); err != nil {
			return BalanceDelta{}, err
		}
	}

	// Protocol's cut of the swap fee goes to the controller's credit; the
	// rest of the input stays in the pool.
	feeAmount := new(big.Int).Sub(params.AmountIn, inAfterFee)
	protocolCut := new(big.Int).Mul(feeAmount, big.NewInt(int64(pool.ProtocolFeeBps)))
	protocolCut.Div(protocolCut, big.NewInt(int64(FeeDenominator)))
	poolIn := new(big.Int).Sub(params.AmountIn, protocolCut)

	tokenIn, tokenOut := pool.Key.Token0, pool.Key.Token1
	if !params.ZeroForOne {
		tokenIn, tokenOut = tokenOut, tokenIn
	}
	if protocolCut.Sign() > 0 && pm.protocolFeeController != (common.Address{}) {
		pm.creditPlain(pm.protocolFeeController, tokenIn, protocolCut)
	}

	rIn.Add(rIn, poolIn)
	rOut.Sub(rOut, out)

	// Keep the encrypted mirror in lockstep for plaintext flow.
	e := pm.engine
	encIn := e.TrivialEncrypt(poolIn, fhe.TypeEuint128)
	encOut := e.TrivialEncrypt(out, fhe.TypeEuint128)
	if params.ZeroForOne {
		res.EncReserve0 = e.Add(res.EncReserve0, encIn)
		res.EncReserve1 = e.Sub(res.EncReserve1, encOut)
	} else {
		res.EncReserve1 = e.Add(res.EncReserve1, encIn)
		res.EncReserve0 = e.Sub(res.EncReserve0, encOut)
	}

	res.SqrtPriceX96 = sqrtPriceFromReserves(res.Reserve0, res.Reserve1)
	res.Tick = SqrtPriceX96ToTick(res.SqrtPriceX96)
	res.ReserveBlockNumber = blockNumber

	recipient := params.Recipient
	if recipient == (common.Address{}) {
		recipient = caller
	}
	pm.creditPlain(recipient, tokenOut, out)

	// Close crossed buckets against the traded flow.
	pm.closeMomentum(poolID, pool, e.TrivialEncrypt(inAfterFee, fhe.TypeEuint128))

	delta := BalanceDelta{Amount0: new(big.Int), Amount1: new(big.Int)}
	if params.ZeroForOne {
		delta.Amount0.Neg(params.AmountIn)
		delta.Amount1.Set(out)
	} else {
		delta.Amount1.Neg(params.AmountIn)
		delta.Amount0.Set(out)
	}

	pm.record(Event{Kind: EventSwap, Pool: poolID, Account: caller, Tick: res.Tick, Block: blockNumber})
	pm.logger.Debug("swap", "pool", poolID.Hex(), "tick", res.Tick)
	if h := pm.hook(pool, HookAfterSwap); h != nil {
		h.AfterSwap(poolID, delta)
	}
	return delta, nil
}

// SwapEncrypted executes a fully confidential swap: direction, size and
// slippage bound are all ciphertext. The output for both directions is
// computed against the encrypted reserves and muxed by the direction bit;
// a violated slippage bound resolves to a zero-effect swap via Select, so
// the transaction succeeds either way and observers learn nothing. Only the
// encrypted mirror moves; the plaintext mirror goes stale until the next
// reserve sync. Returns the encrypted output amount.
func (pm *PoolManager) SwapEncrypted(
	caller common.Address,
	poolID common.Hash,
	encDirection fhe.Handle, // ebool, true = zeroForOne
	encAmountIn fhe.Handle, // euint128
	encMinOut fhe.Handle, // euint128
	recipient common.Address,
	blockNumber uint64,
) (fhe.Handle, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.pools[poolID]
	if !ok {
		return fhe.Handle{}, ErrPoolNotFound
	}
	res := &pool.Reserves
	e := pm.engine

	if encDirection == (fhe.Handle{}) || encAmountIn == (fhe.Handle{}) {
		// Malformed encrypted inputs degrade to a zero-effect swap.
		return e.Zero(fhe.TypeEuint128), nil
	}
	if encMinOut == (fhe.Handle{}) {
		encMinOut = e.Zero(fhe.TypeEuint128)
	}
	if recipient == (common.Address{}) {
		recipient = caller
	}

	feeNum := big.NewInt(int64(FeeDenominator - pool.Key.Fee))
	feeDen := big.NewInt(int64(FeeDenominator))
	inAfterFee := e.MulDiv(encAmountIn, feeNum, feeDen)

	// Constant product in ciphertext for both directions, muxed at the end.
	in256 := e.Cast(inAfterFee, fhe.TypeEuint256)
	r0 := e.Cast(res.EncReserve0, fhe.TypeEuint256)
	r1 := e.Cast(res.EncReserve1, fhe.TypeEuint256)

	out01 := e.Cast(e.Div(e.Mul(in256, r1), e.Add(r0, in256)), fhe.TypeEuint128) // token0 in, token1 out
	out10 := e.Cast(e.Div(e.Mul(in256, r0), e.Add(r1, in256)), fhe.TypeEuint128) // token1 in, token0 out
	out := e.Select(encDirection, out01, out10)

	// Slippage resolves to a zero-effect swap, never a revert.
	withinBound := e.Ge(out, encMinOut)
	zero := e.Zero(fhe.TypeEuint128)
	outEff := e.Select(withinBound, out, zero)
	inEff := e.Select(withinBound, encAmountIn, zero)

	res.EncReserve0 = e.Select(encDirection,
		e.Add(res.EncReserve0, inEff),
		e.Sub(res.EncReserve0, outEff),
	)
	res.EncReserve1 = e.Select(encDirection,
		e.Sub(res.EncReserve1, outEff),
		e.Add(res.EncReserve1, inEff),
	)

	// Credit both legs with direction-muxed amounts so the paid token stays
	// hidden too.
	credit0 := e.Select(encDirection, zero, outEff)
	credit1 := e.Select(encDirection, outEff, zero)
	pm.creditEnc(recipient, pool.Key.Token0, credit0)
	pm.creditEnc(recipient, pool.Key.Token1, credit1)

	pm.record(Event{Kind: EventSwap, Pool: poolID, Account: caller, Block: blockNumber})
	pm.logger.Debug("encrypted swap", "pool", poolID.Hex())
	return outEff, nil
}

// AddLiquidity mints plaintext LP shares pro-rata against the mirror. The
// first deposit mints sqrt(amount0*amount1).
func (pm *PoolManager) AddLiquidity(
	owner common.Address,
	poolID common.Hash,
	amount0, amount1 *big.Int,
) (*big.Int, error) {
	if amount0 == nil || amount1 == nil || amount0.Sign() <= 0 || amount1.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.pools[poolID]
	if !ok {
		return nil, ErrPoolNotFound
	}
	res := &pool.Reserves

	var minted *big.Int
	if res.TotalLPSupply.Sign() == 0 {
		minted = new(big.Int).Mul(amount0, amount1)
		minted.Sqrt(minted)
	} else {
		lp0 := new(big.Int).Mul(amount0, res.TotalLPSupply)
		lp0.Div(lp0, res.Reserve0)
		lp1 := new(big.Int).Mul(amount1, res.TotalLPSupply)
		lp1.Div(lp1, res.Reserve1)
		minted = lp0
		if lp1.Cmp(lp0) < 0 {
			minted = lp1
		}
	}
	if minted.Sign() == 0 {
		return nil, ErrZeroAmount
	}

	res.Reserve0.Add(res.Reserve0, amount0)
	res.Reserve1.Add(res.Reserve1, amount1)
	res.TotalLPSupply.Add(res.TotalLPSupply, minted)

	e := pm.engine
	res.EncReserve0 = e.Add(res.EncReserve0, e.TrivialEncrypt(amount0, fhe.TypeEuint128))
	res.EncReserve1 = e.Add(res.EncReserve1, e.TrivialEncrypt(amount1, fhe.TypeEuint128))
	res.EncTotalLPSupply = e.Add(res.EncTotalLPSupply, e.TrivialEncrypt(minted, fhe.TypeEuint128))

	res.SqrtPriceX96 = sqrtPriceFromReserves(res.Reserve0, res.Reserve1)
	res.Tick = SqrtPriceX96ToTick(res.SqrtPriceX96)
	// Liquidity changes don't move the marginal price enough to fill
	// resting orders; keep the cursor pinned to the tick.
	res.LastProcessedTick = res.Tick

	m := pm.lpBalances[poolID]
	if m == nil {
		m = make(map[common.Address]*big.Int)
		pm.lpBalances[poolID] = m
	}
	if m[owner] == nil {
		m[owner] = new(big.Int)
	}
	m[owner].Add(m[owner], minted)

	return minted, nil
}

// RemoveLiquidity burns plaintext LP shares and credits the underlying
// tokens pro-rata.
func (pm *PoolManager) RemoveLiquidity(
	owner common.Address,
	poolID common.Hash,
	lpAmount *big.Int,
) (BalanceDelta, error) {
	if lpAmount == nil || lpAmount.Sign() <= 0 {
		return BalanceDelta{}, ErrZeroAmount
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.pools[poolID]
	if !ok {
		return BalanceDelta{}, ErrPoolNotFound
	}
	res := &pool.Reserves

	m := pm.lpBalances[poolID]
	if m == nil || m[owner] == nil || m[owner].Cmp(lpAmount) < 0 {
		return BalanceDelta{}, ErrInsufficientLiquidity
	}
	if res.TotalLPSupply.Sign() == 0 {
		return BalanceDelta{}, ErrInsufficientLiquidity
	}

	out0 := new(big.Int).Mul(lpAmount, res.Reserve0)
	out0.Div(out0, res.TotalLPSupply)
	out1 := new(big.Int).Mul(lpAmount, res.Reserve1)
	out1.Div(out1, res.TotalLPSupply)

	m[owner].Sub(m[owner], lpAmount)
	res.TotalLPSupply.Sub(res.TotalLPSupply, lpAmount)
	res.Reserve0.Sub(res.Reserve0, out0)
	res.Reserve1.Sub(res.Reserve1, out1)

	e := pm.engine
	res.EncReserve0 = e.Sub(res.EncReserve0, e.TrivialEncrypt(out0, fhe.TypeEuint128))
	res.EncReserve1 = e.Sub(res.EncReserve1, e.TrivialEncrypt(out1, fhe.TypeEuint128))
	res.EncTotalLPSupply = e.Sub(res.EncTotalLPSupply, e.TrivialEncrypt(lpAmount, fhe.TypeEuint128))

	pm.creditPlain(owner, pool.Key.Token0, out0)
	pm.creditPlain(owner, pool.Key.Token1, out1)

	return NewBalanceDelta(out0, out1), nil
}

// AddLiquidityEncrypted mints encrypted LP shares against the encrypted
// reserves. Only fully confidential pools carry encrypted LP accounting;
// mixed pools use the plaintext path. The first deposit mints
// min(amount0, amount1) since there is no homomorphic square root.
func (pm *PoolManager) AddLiquidityEncrypted(
	owner common.Address,
	poolID common.Hash,
	encAmount0, encAmount1 fhe.Handle,
) (fhe.Handle, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.pools[poolID]
	if !ok {
		return fhe.Handle{}, ErrPoolNotFound
	}
	if pool.Tier() != TierFHE {
		return fhe.Handle{}, ErrNotFHEPool
	}

	e := pm.engine
	if encAmount0 == (fhe.Handle{}) || encAmount1 == (fhe.Handle{}) {
		return e.Zero(fhe.TypeEuint128), nil
	}
	res := &pool.Reserves

	a0 := e.Cast(encAmount0, fhe.TypeEuint256)
	a1 := e.Cast(encAmount1, fhe.TypeEuint256)
	r0 := e.Cast(res.EncReserve0, fhe.TypeEuint256)
	r1 := e.Cast(res.EncReserve1, fhe.TypeEuint256)
	total := e.Cast(res.EncTotalLPSupply, fhe.TypeEuint256)

	lp0 := e.Div(e.Mul(a0, total), r0)
	lp1 := e.Div(e.Mul(a1, total), r1)
	proRata := e.Cast(e.Min(lp0, lp1), fhe.TypeEuint128)
	seed := e.Min(encAmount0, encAmount1)
	minted := e.Select(e.IsZero(res.EncTotalLPSupply), seed, proRata)

	res.EncReserve0 = e.Add(res.EncReserve0, encAmount0)
	res.EncReserve1 = e.Add(res.EncReserve1, encAmount1)
	res.EncTotalLPSupply = e.Add(res.EncTotalLPSupply, minted)

	m := pm.encLPBalances[poolID]
	if m == nil {
		m = make(map[common.Address]fhe.Handle)
		pm.encLPBalances[poolID] = m
	}
	prev := m[owner]
	if prev == (fhe.Handle{}) {
		prev = e.Zero(fhe.TypeEuint128)
	}
	m[owner] = e.Add(prev, minted)

	return minted, nil
}

// RemoveLiquidityEncrypted burns encrypted LP shares, clamped to the
// owner's balance, and credits both legs in ciphertext.
func (pm *PoolManager) RemoveLiquidityEncrypted(
	owner common.Address,
	poolID common.Hash,
	encLPAmount fhe.Handle,
) (fhe.Handle, fhe.Handle, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.pools[poolID]
	if !ok {
		return fhe.Handle{}, fhe.Handle{}, ErrPoolNotFound
	}
	if pool.Tier() != TierFHE {
		return fhe.Handle{}, fhe.Handle{}, ErrNotFHEPool
	}

	e := pm.engine
	res := &pool.Reserves
	zero := e.Zero(fhe.TypeEuint128)

	m := pm.encLPBalances[poolID]
	var bal fhe.Handle
	if m != nil {
		bal = m[owner]
	}
	if bal == (fhe.Handle{}) || encLPAmount == (fhe.Handle{}) {
		return zero, zero, nil
	}

	burned := e.Min(encLPAmount, bal)

	b256 := e.Cast(burned, fhe.TypeEuint256)
	total := e.Cast(res.EncTotalLPSupply, fhe.TypeEuint256)
	out0 := e.Cast(e.Div(e.Mul(b256, e.Cast(res.EncReserve0, fhe.TypeEuint256)), total), fhe.TypeEuint128)
	out1 := e.Cast(e.Div(e.Mul(b256, e.Cast(res.EncReserve1, fhe.TypeEuint256)), total), fhe.TypeEuint128)

	m[owner] = e.Sub(bal, burned)
	res.EncTotalLPSupply = e.Sub(res.EncTotalLPSupply, burned)
	res.EncReserve0 = e.Sub(res.EncReserve0, out0)
	res.EncReserve1 = e.Sub(res.EncReserve1, out1)

	pm.creditEnc(owner, pool.Key.Token0, out0)
	pm.creditEnc(owner, pool.Key.Token1, out1)

	return out0, out1, nil
}
