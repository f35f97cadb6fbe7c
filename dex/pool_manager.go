// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/darkpool/fhe"
)

// bitmapKey addresses the per-(pool, side) order grid bitmap.
type bitmapKey struct {
	pool common.Hash
	side Side
}

// PoolManager is the dark pool singleton. It owns pool state, the resting
// order book, the momentum closure cursor and the reserve sync protocol.
// All homomorphic arithmetic goes through the fhe.Engine.
type PoolManager struct {
	mu sync.Mutex

	engine *fhe.Engine
	logger log.Logger
	hooks  *HookRegistry

	protocolFeeController common.Address
	maxBucketsPerSwap     int
	maxReserveStaleness   uint64

	pools     map[common.Hash]*Pool
	buckets   map[common.Hash]*Bucket
	positions map[common.Hash]*Position
	bitmaps   map[bitmapKey]*TickBitmap

	// In-flight reserve decryptions, one per pool at most.
	pendingSyncs map[common.Hash]*pendingSync

	// Remaining encrypted flow of a capped momentum walk, folded into the
	// next walk in the same direction.
	pendingFlow map[common.Hash]parkedFlow

	// Plaintext LP shares and withdrawable token credits.
	lpBalances map[common.Hash]map[common.Address]*big.Int
	credits    map[common.Address]map[common.Address]*big.Int

	// Encrypted LP shares and credits for confidential legs.
	encLPBalances map[common.Hash]map[common.Address]fhe.Handle
	encCredits    map[common.Address]map[common.Address]fhe.Handle

	events []Event
}

// NewPoolManager creates a pool manager backed by the given engine.
func NewPoolManager(engine *fhe.Engine, opts ...PoolManagerOption) *PoolManager {
	pm := &PoolManager{
		engine:              engine,
		logger:              log.NewTestLogger(log.InfoLevel),
		hooks:               NewHookRegistry(),
		maxBucketsPerSwap:   DefaultMaxBucketsPerSwap,
		maxReserveStaleness: DefaultMaxReserveStaleness,
		pools:               make(map[common.Hash]*Pool),
		buckets:             make(map[common.Hash]*Bucket),
		positions:           make(map[common.Hash]*Position),
		bitmaps:             make(map[bitmapKey]*TickBitmap),
		pendingSyncs:        make(map[common.Hash]*pendingSync),
		pendingFlow:         make(map[common.Hash]parkedFlow),
		lpBalances:          make(map[common.Hash]map[common.Address]*big.Int),
		credits:             make(map[common.Address]map[common.Address]*big.Int),
		encLPBalances:       make(map[common.Hash]map[common.Address]fhe.Handle),
		encCredits:          make(map[common.Address]map[common.Address]fhe.Handle),
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm
}

// PoolManagerOption configures a PoolManager.
type PoolManagerOption func(*PoolManager)

// WithLogger overrides the default logger.
func WithLogger(l log.Logger) PoolManagerOption {
	return func(pm *PoolManager) { pm.logger = l }
}

// WithMaxBucketsPerSwap caps how many buckets one momentum walk may touch.
func WithMaxBucketsPerSwap(n int) PoolManagerOption {
	return func(pm *PoolManager) { pm.maxBucketsPerSwap = n }
}

// WithMaxReserveStaleness sets how old (in blocks) the plaintext mirror may
// get before a swap fires a background sync.
func WithMaxReserveStaleness(blocks uint64) PoolManagerOption {
	return func(pm *PoolManager) { pm.maxReserveStaleness = blocks }
}

// WithFeeController sets the address allowed to change protocol fees.
func WithFeeController(addr common.Address) PoolManagerOption {
	return func(pm *PoolManager) { pm.protocolFeeController = addr }
}

// Engine exposes the underlying homomorphic engine.
func (pm *PoolManager) Engine() *fhe.Engine { return pm.engine }

// Hooks exposes the hook registry for registration and binding.
func (pm *PoolManager) Hooks() *HookRegistry { return pm.hooks }

// hook returns the implementation to dispatch for the pool and flag, or nil
// when the pool names no hook, the flag is not enabled for its address, or
// no contract is bound.
func (pm *PoolManager) hook(pool *Pool, flag HookFlags) Hook {
	addr := pool.Key.Hooks
	if addr == (common.Address{}) || !pm.hooks.IsHookEnabled(addr, flag) {
		return nil
	}
	h, _ := pm.hooks.Contract(addr)
	return h
}

// InitializePool creates a pool for the given key and token privacy tiers.
// When initialSqrtPriceX96 is nil the pool starts at price 1 (tick 0).
func (pm *PoolManager) InitializePool(key PoolKey, token0Privacy, token1Privacy PrivacyTier, initialSqrtPriceX96 *big.Int) (common.Hash, error) {
	if key.Token0 == key.Token1 {
		return common.Hash{}, ErrIdenticalTokens
	}
	if !lessAddress(key.Token0, key.Token1) {
		return common.Hash{}, ErrInvalidTokenOrder
	}
	if key.Fee > MaxFeeBps {
		return common.Hash{}, ErrInvalidFee
	}
	if key.TickSpacing <= 0 {
		return common.Hash{}, ErrInvalidSpacing
	}
	if key.Hooks != (common.Address{}) {
		// Address-encoded permission bits must be internally consistent.
		perms := GetHookPermissionsFromAddress(key.Hooks)
		if err := ValidateHookAddress(key.Hooks, perms); err != nil {
			return common.Hash{}, err
		}
	}

	id := key.ID()

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.pools[id]; exists {
		return common.Hash{}, ErrPoolAlreadyExists
	}

	sqrtPrice := initialSqrtPriceX96
	if sqrtPrice == nil || sqrtPrice.Sign() <= 0 {
		sqrtPrice = new(big.Int).Set(Q96)
	}
	tick := SqrtPriceX96ToTick(sqrtPrice)

	pool := &Pool{
		Key:           key,
		Token0Privacy: token0Privacy,
		Token1Privacy: token1Privacy,
		Initialized:   true,
		Reserves: PoolReserves{
			EncReserve0:       pm.engine.Zero(fhe.TypeEuint128),
			EncReserve1:       pm.engine.Zero(fhe.TypeEuint128),
			EncTotalLPSupply:  pm.engine.Zero(fhe.TypeEuint128),
			Reserve0:          new(big.Int),
			Reserve1:          new(big.Int),
			TotalLPSupply:     new(big.Int),
			SqrtPriceX96:      new(big.Int).Set(sqrtPrice),
			Tick:              tick,
			LastProcessedTick: tick,
		},
	}
	pm.pools[id] = pool
	pm.bitmaps[bitmapKey{id, SideBuy}] = NewTickBitmap()
	pm.bitmaps[bitmapKey{id, SideSell}] = NewTickBitmap()

	pm.record(Event{Kind: EventPoolInitialized, Pool: id, Tick: tick})
	pm.logger.Info("pool initialized",
		"pool", id.Hex(),
		"tier", pool.Tier(),
		"tick", tick,
	)
	return id, nil
}

// GetPool returns the pool for an ID.
func (pm *PoolManager) GetPool(id common.Hash) (*Pool, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pool, ok := pm.pools[id]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

// GetBucket returns the bucket at (pool, tick, side), or nil if none exists.
func (pm *PoolManager) GetBucket(poolID common.Hash, tick int24, side Side) *Bucket {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.buckets[bucketKey(poolID, tick, side)]
}

// GetPosition returns an owner's position, or nil if none exists.
func (pm *PoolManager) GetPosition(poolID common.Hash, owner common.Address, tick int24, side Side) *Position {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.positions[positionKey(poolID, owner, tick, side)]
}

// QueueProtocolFee schedules a protocol fee change that becomes applicable
// at effectiveBlock. Only the fee controller may call it.
func (pm *PoolManager) QueueProtocolFee(caller common.Address, poolID common.Hash, feeBps uint24, effectiveBlock uint64) error {
	if caller != pm.protocolFeeController || pm.protocolFeeController == (common.Address{}) {
		return ErrUnauthorized
	}
	if feeBps > MaxFeeBps {
		return ErrInvalidFee
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.pools[poolID]
	if !ok {
		return ErrPoolNotFound
	}
	pool.PendingFeeBps = feeBps
	pool.FeeEffectiveBlock = effectiveBlock
	pool.FeeChangeQueued = true
	return nil
}

// ApplyProtocolFee activates a queued fee change. Rejected before the
// scheduled block.
func (pm *PoolManager) ApplyProtocolFee(poolID common.Hash, blockNumber uint64) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.pools[poolID]
	if !ok {
		return ErrPoolNotFound
	}
	if !pool.FeeChangeQueued {
		return ErrNoFeeChangeQueued
	}
	if blockNumber < pool.FeeEffectiveBlock {
		return ErrFeeChangeNotReady
	}
	pool.ProtocolFeeBps = pool.PendingFeeBps
	pool.FeeChangeQueued = false
	pool.PendingFeeBps = 0
	pool.FeeEffectiveBlock = 0
	return nil
}

// Credit returns an account's withdrawable plaintext balance in a token.
func (pm *PoolManager) Credit(owner, token common.Address) *big.Int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if m := pm.credits[owner]; m != nil && m[token] != nil {
		return new(big.Int).Set(m[token])
	}
	return new(big.Int)
}

// EncCredit returns an account's encrypted credit handle in a token.
// The zero handle means no credit has accrued.
func (pm *PoolManager) EncCredit(owner, token common.Address) fhe.Handle {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if m := pm.encCredits[owner]; m != nil {
		return m[token]
	}
	return fhe.Handle{}
}

// LPBalance returns an account's plaintext LP share balance for a pool.
func (pm *PoolManager) LPBalance(poolID common.Hash, owner common.Address) *big.Int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if m := pm.lpBalances[poolID]; m != nil && m[owner] != nil {
		return new(big.Int).Set(m[owner])
	}
	return new(big.Int)
}

// EncLPBalance returns an account's encrypted LP share handle for a pool.
func (pm *PoolManager) EncLPBalance(poolID common.Hash, owner common.Address) fhe.Handle {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if m := pm.encLPBalances[poolID]; m != nil {
		return m[owner]
	}
	return fhe.Handle{}
}

// Events returns a copy of the recorded event log.
func (pm *PoolManager) Events() []Event {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]Event, len(pm.events))
	copy(out, pm.events)
	return out
}

// record appends an event. Caller holds pm.mu.
func (pm *PoolManager) record(ev Event) {
	pm.events = append(pm.events, ev)
}

// creditPlain adds amount to an owner's withdrawable balance.
// Caller holds pm.mu.
func (pm *PoolManager) creditPlain(owner, token common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	m := pm.credits[owner]
	if m == nil {
		m = make(map[common.Address]*big.Int)
		pm.credits[owner] = m
	}
	if m[token] == nil {
		m[token] = new(big.Int)
	}
	m[token].Add(m[token], amount)
}

// creditEnc homomorphically adds an encrypted amount to an owner's credit.
// Caller holds pm.mu.
func (pm *PoolManager) creditEnc(owner, token common.Address, amount fhe.Handle) {
	if amount == (fhe.Handle{}) {
		return
	}
	m := pm.encCredits[owner]
	if m == nil {
		m = make(map[common.Address]fhe.Handle)
		pm.encCredits[owner] = m
	}
	prev := m[token]
	if prev == (fhe.Handle{}) {
		prev = pm.engine.Zero(fhe.TypeEuint128)
	}
	m[token] = pm.engine.Add(prev, amount)
}

// bitmap returns the order grid bitmap for (pool, side).
// Caller holds pm.mu.
func (pm *PoolManager) bitmap(poolID common.Hash, side Side) *TickBitmap {
	tb := pm.bitmaps[bitmapKey{poolID, side}]
	if tb == nil {
		tb = NewTickBitmap()
		pm.bitmaps[bitmapKey{poolID, side}] = tb
	}
	return tb
}

func lessAddress(a, b common.Address) bool {
	for i := 0; i < common.AddressLength; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Quote estimates the plaintext output of a swap against the current mirror
// without mutating any state. Purely informational; the mirror may be stale.
func (pm *PoolManager) Quote(poolID common.Hash, zeroForOne bool, amountIn *big.Int) (*big.Int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, ok := pm.pools[poolID]
	if !ok {
		return nil, ErrPoolNotFound
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	rIn, rOut := pool.Reserves.Reserve0, pool.Reserves.Reserve1
	if !zeroForOne {
		rIn, rOut = rOut, rIn
	}
	if rIn.Sign() == 0 || rOut.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	out, _ := constantProductOut(amountIn, rIn, rOut, pool.Key.Fee)
	return out, nil
}

// constantProductOut computes the x*y=k output for amountIn with the fee
// taken off the input. Returns (amountOut, amountInAfterFee).
func constantProductOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint24) (*big.Int, *big.Int) {
	inAfterFee := new(big.Int).Mul(amountIn, big.NewInt(int64(FeeDenominator-feeBps)))
	inAfterFee.Div(inAfterFee, big.NewInt(int64(FeeDenominator)))

	num := new(big.Int).Mul(inAfterFee, reserveOut)
	den := new(big.Int).Add(reserveIn, inAfterFee)
	if den.Sign() == 0 {
		return new(big.Int), inAfterFee
	}
	return num.Div(num, den), inAfterFee
}

func (t PoolTier) String() string {
	switch t {
	case TierFHE:
		return "fhe"
	case TierMixed:
		return "mixed"
	default:
		return "public"
	}
}
