// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/darkpool/fhe"
)

// The book distributes fills dividend-style: each bucket carries monotone
// per-share accumulators (FilledPerShareX128, ProceedsPerShareX128) and each
// position settles lazily against snapshots of them. Shares are minted so
// that shares/TotalShares always equals the position's fraction of the
// bucket's unfilled principal, which makes pro-rata fills, clamped
// withdrawals and idempotent claims all O(1) in ciphertext. That identity
// breaks exactly once, when liquidity hits zero: the next deposit then
// opens a new share generation (see Bucket.Epoch) instead of minting
// against the dead supply.

// Deposit places a resting order: escrow encAmount at (poolID, tick, side).
// maxTickDrift bounds how far the pool tick may sit from the requested tick
// at execution time; a negative value disables the check. deadlineBlock of 0
// means no deadline.
func (pm *PoolManager) Deposit(
	owner common.Address,
	poolID common.Hash,
	tick int24,
	side Side,
	encAmount fhe.Handle,
	deadlineBlock uint64,
	maxTickDrift int24,
	blockNumber uint64,
) error {
	if encAmount == (fhe.Handle{}) {
		return ErrZeroAmountHandle
	}
	if deadlineBlock != 0 && blockNumber > deadlineBlock {
		return ErrDeadlineExpired
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.pools[poolID]
	if !ok {
		return ErrPoolNotFound
	}
	if err := checkTick(tick, pool.Key.TickSpacing); err != nil {
		return err
	}
	if maxTickDrift >= 0 {
		drift := pool.Reserves.Tick - tick
		if drift < 0 {
			drift = -drift
		}
		if drift > maxTickDrift {
			return ErrTickDrift
		}
	}
	if pm.depositTier(pool, side) != PrivacyFHE {
		return ErrTokenNotPrivate
	}
	if h := pm.hook(pool, HookBeforeDeposit); h != nil {
		if err := h.BeforeDeposit(poolID, tick, side); err != nil {
			return err
		}
	}

	e := pm.engine
	bk := bucketKey(poolID, tick, side)
	bucket := pm.buckets[bk]
	if bucket == nil {
		bucket = &Bucket{
			TotalShares:          e.Zero(fhe.TypeEuint128),
			Liquidity:            e.Zero(fhe.TypeEuint128),
			FilledPerShareX128:   e.Zero(fhe.TypeEuint256),
			ProceedsPerShareX128: e.Zero(fhe.TypeEuint256),
			Epoch:                e.Zero(fhe.TypeEuint128),
			PrevFilledX128:       e.Zero(fhe.TypeEuint256),
			PrevProceedsX128:     e.Zero(fhe.TypeEuint256),
			Initialized:          true,
		}
		pm.buckets[bk] = bucket
		pm.bitmap(poolID, side).FlipTick(tick, pool.Key.TickSpacing)
	}

	pk := positionKey(poolID, owner, tick, side)
	pos := pm.positions[pk]
	if pos == nil {
		pos = &Position{
			Shares:               e.Zero(fhe.TypeEuint128),
			Epoch:                bucket.Epoch,
			FilledSnapshotX128:   bucket.FilledPerShareX128,
			ProceedsSnapshotX128: bucket.ProceedsPerShareX128,
			RealizedProceeds:     e.Zero(fhe.TypeEuint128),
		}
		pm.positions[pk] = pos
	} else {
		pm.settle(bucket, pos)
	}

	// A deposit into an exhausted bucket starts a new share generation:
	// the dead share supply is retired, the epoch advances, and the
	// accumulator values are captured at the boundary. Resolved with
	// Select so the branch never touches plaintext.
	exhausted := e.IsZero(bucket.Liquidity)
	one := e.TrivialEncrypt(big.NewInt(1), fhe.TypeEuint128)
	bucket.Epoch = e.Select(exhausted, e.Add(bucket.Epoch, one), bucket.Epoch)
	bucket.PrevFilledX128 = e.Select(exhausted, bucket.FilledPerShareX128, bucket.PrevFilledX128)
	bucket.PrevProceedsX128 = e.Select(exhausted, bucket.ProceedsPerShareX128, bucket.PrevProceedsX128)
	bucket.TotalShares = e.Select(exhausted, e.Zero(fhe.TypeEuint128), bucket.TotalShares)
	pos.Shares = e.Select(exhausted, e.Zero(fhe.TypeEuint128), pos.Shares)

	// First deposit (or a fresh generation) mints 1:1; otherwise pro-rata
	// against the unfilled principal.
	amt256 := e.Cast(encAmount, fhe.TypeEuint256)
	total256 := e.Cast(bucket.TotalShares, fhe.TypeEuint256)
	liq256 := e.Cast(bucket.Liquidity, fhe.TypeEuint256)
	proRata := e.Cast(e.Div(e.Mul(amt256, total256), liq256), fhe.TypeEuint128)
	minted := e.Select(exhausted, encAmount, proRata)

	pos.Shares = e.Add(pos.Shares, minted)
	pos.Epoch = bucket.Epoch
	bucket.TotalShares = e.Add(bucket.TotalShares, minted)
	bucket.Liquidity = e.Add(bucket.Liquidity, encAmount)

	pm.record(Event{Kind: EventOrderPlaced, Pool: poolID, Account: owner, Tick: tick, Side: side, Block: blockNumber})
	pm.logger.Debug("order placed", "pool", poolID.Hex(), "tick", tick, "side", side.String())
	if h := pm.hook(pool, HookAfterDeposit); h != nil {
		h.AfterDeposit(poolID, tick, side)
	}
	return nil
}

// Withdraw pulls up to encAmount of the position's unfilled principal back
// to the owner's encrypted credit. The amount is clamped in ciphertext to
// what actually remains; a nonexistent position is a silent zero-effect.
// Returns the handle of the amount withdrawn.
func (pm *PoolManager) Withdraw(
	owner common.Address,
	poolID common.Hash,
	tick int24,
	side Side,
	encAmount fhe.Handle,
) (fhe.Handle, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.pools[poolID]
	if !ok {
		return fhe.Handle{}, ErrPoolNotFound
	}

	e := pm.engine
	bucket := pm.buckets[bucketKey(poolID, tick, side)]
	pos := pm.positions[positionKey(poolID, owner, tick, side)]
	if bucket == nil || pos == nil || encAmount == (fhe.Handle{}) {
		return e.Zero(fhe.TypeEuint128), nil
	}

	pm.settle(bucket, pos)

	// principal = shares * liquidity / totalShares; division by an empty
	// bucket yields zero, which is the right answer.
	shares256 := e.Cast(pos.Shares, fhe.TypeEuint256)
	liq256 := e.Cast(bucket.Liquidity, fhe.TypeEuint256)
	total256 := e.Cast(bucket.TotalShares, fhe.TypeEuint256)
	principal := e.Cast(e.Div(e.Mul(shares256, liq256), total256), fhe.TypeEuint128)

	withdrawn := e.Min(encAmount, principal)

	// Burn shares in proportion to the principal removed.
	w256 := e.Cast(withdrawn, fhe.TypeEuint256)
	burned := e.Cast(e.Div(e.Mul(w256, total256), liq256), fhe.TypeEuint128)

	pos.Shares = e.Sub(pos.Shares, burned)
	bucket.TotalShares = e.Sub(bucket.TotalShares, burned)
	bucket.Liquidity = e.Sub(bucket.Liquidity, withdrawn)

	pm.creditEnc(owner, side.DepositToken(pool.Key), withdrawn)
	pm.record(Event{Kind: EventOrderWithdrawn, Pool: poolID, Account: owner, Tick: tick, Side: side})
	return withdrawn, nil
}

// Claim settles and pays out the position's accrued proceeds to the owner's
// encrypted credit in the output token. Idempotent: a second claim with no
// new fills yields an encrypted zero. Returns the handle of the payout.
func (pm *PoolManager) Claim(
	owner common.Address,
	poolID common.Hash,
	tick int24,
	side Side,
) (fhe.Handle, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.pools[poolID]
	if !ok {
		return fhe.Handle{}, ErrPoolNotFound
	}

	if h := pm.hook(pool, HookBeforeClaim); h != nil {
		if err := h.BeforeClaim(poolID, tick, side); err != nil {
			return fhe.Handle{}, err
		}
	}

	e := pm.engine
	bucket := pm.buckets[bucketKey(poolID, tick, side)]
	pos := pm.positions[positionKey(poolID, owner, tick, side)]
	if bucket == nil || pos == nil {
		return e.Zero(fhe.TypeEuint128), nil
	}

	pm.settle(bucket, pos)

	payout := pos.RealizedProceeds
	pos.RealizedProceeds = e.Zero(fhe.TypeEuint128)

	pm.creditEnc(owner, side.ProceedsToken(pool.Key), payout)
	pm.record(Event{Kind: EventClaimed, Pool: poolID, Account: owner, Tick: tick, Side: side})
	if h := pm.hook(pool, HookAfterClaim); h != nil {
		h.AfterClaim(poolID, tick, side)
	}
	return payout, nil
}

// settle accrues a position's share of the accumulator growth since its
// snapshots, then advances the snapshots. A position whose epoch predates
// the bucket's was fully consumed when its generation exhausted: it settles
// against the accumulator values captured at the boundary and its shares
// are retired, so it holds no claim on the generations that followed.
// Caller holds pm.mu.
func (pm *PoolManager) settle(bucket *Bucket, pos *Position) {
	e := pm.engine

	stale := e.Lt(pos.Epoch, bucket.Epoch)
	endProceeds := e.Select(stale, bucket.PrevProceedsX128, bucket.ProceedsPerShareX128)

	diff := e.Sub(endProceeds, pos.ProceedsSnapshotX128)
	owed := e.Shr(e.Mul(diff, e.Cast(pos.Shares, fhe.TypeEuint256)), 128)
	pos.RealizedProceeds = e.Add(pos.RealizedProceeds, e.Cast(owed, fhe.TypeEuint128))

	pos.Shares = e.Select(stale, e.Zero(fhe.TypeEuint128), pos.Shares)
	pos.Epoch = bucket.Epoch
	pos.ProceedsSnapshotX128 = bucket.ProceedsPerShareX128
	pos.FilledSnapshotX128 = bucket.FilledPerShareX128
}

// depositTier returns the privacy tier of the token a side escrows.
func (pm *PoolManager) depositTier(pool *Pool, side Side) PrivacyTier {
	if side == SideBuy {
		return pool.Token1Privacy
	}
	return pool.Token0Privacy
}
