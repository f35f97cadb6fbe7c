// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/darkpool/fhe"
)

// The momentum closure walks the order grid between the cursor
// (LastProcessedTick) and the current pool tick and fills every crossed
// bucket by virtual slicing: the swap flow is revalued at each bucket's
// price, clamped to the bucket's unfilled principal with Min, and folded
// into the per-share accumulators. Every clamp is ciphertext, so the walk
// reveals which buckets were crossed (already public via the bitmap) but
// never how much of any of them filled.

// parkedFlow is the remainder of a capped walk, kept with its direction so
// a resumed walk in the same direction folds it back in and a reversal
// discards it along with the buckets it would have reached.
type parkedFlow struct {
	flow fhe.Handle
	down bool
}

// closeMomentum advances the cursor toward the pool tick, consuming flow.
// Flow is denominated in the token the swapper sold: base when the price
// moved down (BUY buckets fill), quote when it moved up (SELL buckets).
// Stops after maxBucketsPerSwap buckets and parks the remaining flow for a
// later PokeMomentum. Caller holds pm.mu.
func (pm *PoolManager) closeMomentum(poolID common.Hash, pool *Pool, flow fhe.Handle) {
	res := &pool.Reserves
	target := res.Tick
	cursor := res.LastProcessedTick
	if target == cursor {
		delete(pm.pendingFlow, poolID)
		return
	}
	down := target < cursor

	// Fold a previously parked remainder into this walk when it continues
	// in the same direction.
	if parked, ok := pm.pendingFlow[poolID]; ok {
		if parked.down == down {
			flow = pm.engine.Add(flow, parked.flow)
		}
		delete(pm.pendingFlow, poolID)
	}

	spacing := pool.Key.TickSpacing
	feeNum := big.NewInt(int64(FeeDenominator - pool.Key.Fee))
	feeDen := big.NewInt(int64(FeeDenominator))

	processed := 0
	if down {
		tb := pm.bitmap(poolID, SideBuy)
		next, found := tb.NextInitializedTick(cursor-1, spacing, true)
		for found && next >= target {
			if processed >= pm.maxBucketsPerSwap {
				res.LastProcessedTick = cursor
				pm.pendingFlow[poolID] = parkedFlow{flow: flow, down: down}
				pm.logger.Debug("momentum walk capped", "pool", poolID.Hex(), "cursor", cursor)
				return
			}
			if bucket := pm.buckets[bucketKey(poolID, next, SideBuy)]; bucket != nil {
				flow = pm.fillBucket(pool, bucket, next, SideBuy, flow, feeNum, feeDen)
				processed++
			}
			cursor = next
			next, found = tb.NextInitializedTick(cursor-1, spacing, true)
		}
	} else {
		tb := pm.bitmap(poolID, SideSell)
		next, found := tb.NextInitializedTick(cursor, spacing, false)
		for found && next <= target {
			if processed >= pm.maxBucketsPerSwap {
				res.LastProcessedTick = cursor
				pm.pendingFlow[poolID] = parkedFlow{flow: flow, down: down}
				pm.logger.Debug("momentum walk capped", "pool", poolID.Hex(), "cursor", cursor)
				return
			}
			if bucket := pm.buckets[bucketKey(poolID, next, SideSell)]; bucket != nil {
				flow = pm.fillBucket(pool, bucket, next, SideSell, flow, feeNum, feeDen)
				processed++
			}
			cursor = next
			next, found = tb.NextInitializedTick(cursor, spacing, false)
		}
	}

	res.LastProcessedTick = target
	delete(pm.pendingFlow, poolID)
}

// fillBucket fills one bucket from the remaining flow at the bucket's own
// price and returns the flow left over. All slicing is homomorphic. The
// consumed principal moves into the pool's encrypted reserves and the
// proceeds paid to claimants (plus the protocol's fee cut) move out, so
// every credit the book mints stays backed by deposits.
func (pm *PoolManager) fillBucket(pool *Pool, bucket *Bucket, tick int24, side Side, flow fhe.Handle, feeNum, feeDen *big.Int) fhe.Handle {
	e := pm.engine
	price := PriceX96AtTick(tick)
	if price.Sign() == 0 {
		return flow
	}

	// Revalue the flow in the bucket's deposit denomination, clamp to the
	// unfilled principal, then value the consumed principal back in flow
	// units. Rounding down twice keeps proceeds <= flow.
	var avail, consumed, proceeds fhe.Handle
	if side == SideBuy {
		avail = e.MulDiv(flow, price, Q96)
		consumed = e.Min(bucket.Liquidity, avail)
		proceeds = e.MulDiv(consumed, Q96, price)
	} else {
		avail = e.MulDiv(flow, Q96, price)
		consumed = e.Min(bucket.Liquidity, avail)
		proceeds = e.MulDiv(consumed, price, Q96)
	}
	proceedsAfterFee := e.MulDiv(proceeds, feeNum, feeDen)

	total256 := e.Cast(bucket.TotalShares, fhe.TypeEuint256)
	dFilled := e.Div(e.Shl(e.Cast(consumed, fhe.TypeEuint256), 128), total256)
	dProceeds := e.Div(e.Shl(e.Cast(proceedsAfterFee, fhe.TypeEuint256), 128), total256)

	bucket.FilledPerShareX128 = e.Add(bucket.FilledPerShareX128, dFilled)
	bucket.ProceedsPerShareX128 = e.Add(bucket.ProceedsPerShareX128, dProceeds)
	bucket.Liquidity = e.Sub(bucket.Liquidity, consumed)

	// The swap fee withheld from claimants stays in the reserves as LP
	// revenue, except the protocol's cut, which is credited out.
	payout := proceedsAfterFee
	if pm.protocolFeeController != (common.Address{}) && pool.ProtocolFeeBps > 0 {
		fee := e.Sub(proceeds, proceedsAfterFee)
		cut := e.MulDiv(fee, big.NewInt(int64(pool.ProtocolFeeBps)), big.NewInt(int64(FeeDenominator)))
		payout = e.Add(payout, cut)
		pm.creditEnc(pm.protocolFeeController, side.ProceedsToken(pool.Key), cut)
	}

	res := &pool.Reserves
	if side == SideBuy {
		res.EncReserve1 = e.Add(res.EncReserve1, consumed)
		res.EncReserve0 = e.Sub(res.EncReserve0, payout)
	} else {
		res.EncReserve0 = e.Add(res.EncReserve0, consumed)
		res.EncReserve1 = e.Sub(res.EncReserve1, payout)
	}

	return e.Sub(flow, proceeds)
}

// PokeMomentum resumes a capped walk, or runs a fresh full-fill walk if the
// cursor lags the pool tick (as it does after a reserve sync). Anyone may
// call it.
func (pm *PoolManager) PokeMomentum(poolID common.Hash) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.pools[poolID]
	if !ok {
		return ErrPoolNotFound
	}

	// A parked remainder is folded in by closeMomentum; only a walk with
	// no parked flow gets the full-fill default.
	flow := pm.engine.Zero(fhe.TypeEuint128)
	if _, held := pm.pendingFlow[poolID]; !held {
		flow = pm.fullFillFlow()
	}
	pm.closeMomentum(poolID, pool, flow)
	return nil
}

// fullFillFlow is an effectively unbounded flow used when the walk is
// triggered by a price move whose underlying flow is unobservable (reserve
// sync after encrypted swaps): every crossed bucket fills completely.
func (pm *PoolManager) fullFillFlow() fhe.Handle {
	v := new(big.Int).Lsh(big.NewInt(1), 100)
	return pm.engine.TrivialEncrypt(v, fhe.TypeEuint128)
}
