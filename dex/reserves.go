// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/darkpool/fhe"
)

// The plaintext mirror trails the encrypted reserves: encrypted swaps move
// only the ciphertext side, and the mirror catches up through threshold
// decryption round trips. Each pool has at most one sync in flight, keyed by
// a pool-local monotone request id; the resolution path accepts a callback
// only if it is both newer than everything resolved and the latest issued,
// which makes reordered or replayed oracle callbacks harmless.

// pendingSync aggregates the three reserve decryptions of one sync request.
type pendingSync struct {
	mu        sync.Mutex
	requestID uint64
	block     uint64
	values    [3]*big.Int
	remaining int
}

// TrySyncReserves starts a reserve decryption for the pool, or returns the
// id of the sync already in flight. Callable by anyone.
func (pm *PoolManager) TrySyncReserves(poolID common.Hash, blockNumber uint64) (uint64, error) {
	pm.mu.Lock()

	pool, ok := pm.pools[poolID]
	if !ok {
		pm.mu.Unlock()
		return 0, ErrPoolNotFound
	}
	// One sync in flight per pool, but a request the oracle has sat on for
	// longer than the staleness budget may be superseded: the monotone
	// acceptance rule in OnDecryptResolved discards its late callback.
	if ps := pm.pendingSyncs[poolID]; ps != nil {
		if blockNumber-ps.block <= pm.maxReserveStaleness {
			id := ps.requestID
			pm.mu.Unlock()
			return id, nil
		}
		pm.logger.Debug("superseding stalled reserve sync",
			"pool", poolID.Hex(), "request", ps.requestID)
	}

	pool.Reserves.NextRequestID++
	id := pool.Reserves.NextRequestID
	ps := &pendingSync{requestID: id, block: blockNumber, remaining: 3}
	pm.pendingSyncs[poolID] = ps

	handles := [3]fhe.Handle{
		pool.Reserves.EncReserve0,
		pool.Reserves.EncReserve1,
		pool.Reserves.EncTotalLPSupply,
	}

	// Issue the decryptions outside pm.mu: a loopback oracle resolves
	// inline and the resolution path needs the lock back.
	pm.mu.Unlock()

	for i, h := range handles {
		idx := i
		_, err := pm.engine.RequestDecrypt(h, func(_ uint64, value *big.Int) {
			ps.mu.Lock()
			ps.values[idx] = value
			ps.remaining--
			done := ps.remaining == 0
			ps.mu.Unlock()
			if done {
				pm.OnDecryptResolved(poolID, ps.requestID, ps.values)
			}
		})
		if err != nil {
			pm.mu.Lock()
			delete(pm.pendingSyncs, poolID)
			pm.mu.Unlock()
			return 0, err
		}
	}

	pm.logger.Debug("reserve sync requested", "pool", poolID.Hex(), "request", id)
	return id, nil
}

// OnDecryptResolved delivers decrypted reserve values for a sync request.
// Stale or superseded request ids are ignored, never errors: the oracle may
// reorder and replay callbacks. On acceptance the plaintext mirror is
// overwritten, the price state recomputed, and the momentum walk run across
// the resulting tick delta.
func (pm *PoolManager) OnDecryptResolved(poolID common.Hash, requestID uint64, values [3]*big.Int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.pools[poolID]
	if !ok {
		return
	}
	res := &pool.Reserves

	if requestID <= res.LastResolvedID || requestID != res.NextRequestID {
		pm.logger.Debug("stale reserve callback ignored",
			"pool", poolID.Hex(),
			"request", requestID,
			"lastResolved", res.LastResolvedID,
			"latestIssued", res.NextRequestID,
		)
		return
	}

	block := res.ReserveBlockNumber
	if ps := pm.pendingSyncs[poolID]; ps != nil && ps.requestID == requestID {
		block = ps.block
	}
	delete(pm.pendingSyncs, poolID)

	res.Reserve0 = orZero(values[0])
	res.Reserve1 = orZero(values[1])
	res.TotalLPSupply = orZero(values[2])
	res.ReserveBlockNumber = block
	res.LastResolvedID = requestID

	res.SqrtPriceX96 = sqrtPriceFromReserves(res.Reserve0, res.Reserve1)
	res.Tick = SqrtPriceX96ToTick(res.SqrtPriceX96)

	// Encrypted swaps moved the price without observable flow; fill every
	// bucket the price crossed.
	pm.closeMomentum(poolID, pool, pm.fullFillFlow())

	pm.record(Event{Kind: EventReservesSynced, Pool: poolID, RequestID: requestID, Block: block})
	pm.logger.Info("reserves synced",
		"pool", poolID.Hex(),
		"request", requestID,
		"tick", res.Tick,
	)
}

// syncIfStale fires a background sync when the mirror is older than the
// staleness budget. Never blocks the caller. Caller must NOT hold pm.mu.
func (pm *PoolManager) syncIfStale(poolID common.Hash, blockNumber uint64) {
	pm.mu.Lock()
	pool, ok := pm.pools[poolID]
	if !ok {
		pm.mu.Unlock()
		return
	}
	stale := blockNumber > pool.Reserves.ReserveBlockNumber &&
		blockNumber-pool.Reserves.ReserveBlockNumber > pm.maxReserveStaleness
	pm.mu.Unlock()

	if stale {
		pm.TrySyncReserves(poolID, blockNumber)
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
