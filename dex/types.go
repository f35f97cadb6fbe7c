// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dex implements the dark pool precompile: a constant-product AMM
// with an on-grid limit order book whose resting liquidity, fills and
// proceeds live entirely in ciphertext. Orders rest in per-tick buckets and
// fill pro-rata through dividend-style per-share accumulators, so no
// plaintext branch ever observes how much of any order has executed.
package dex

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/darkpool/fhe"
)

// Solidity-compatible sized integer aliases.
type uint24 = uint32
type int24 = int32

// Contract addresses (LP-9110 family).
var (
	ContractDarkPoolAddress = common.HexToAddress("0x0000000000000000000000000000000000009110")
	ContractBookAddress     = common.HexToAddress("0x0000000000000000000000000000000000009111")
)

// Gas costs
const (
	GasPoolCreate    uint64 = 50_000
	GasSwap          uint64 = 30_000
	GasSwapEncrypted uint64 = 250_000
	GasLiquidity     uint64 = 40_000
	GasOrderPlace    uint64 = 120_000
	GasOrderWithdraw uint64 = 100_000
	GasOrderClaim    uint64 = 80_000
	GasReserveSync   uint64 = 60_000
	GasFeeAdmin      uint64 = 20_000
	GasView          uint64 = 5_000
)

// Fee is expressed in basis points of the input amount.
const (
	FeeDenominator uint24 = 10_000
	MaxFeeBps      uint24 = 1_000 // 10%

	Fee005 uint24 = 5  // 0.05%
	Fee030 uint24 = 30 // 0.30%
	Fee100 uint24 = 100
)

// Default tick spacings per fee tier
var TickSpacings = map[uint24]int24{
	Fee005: 10,
	Fee030: 60,
	Fee100: 200,
}

// Pool manager defaults, overridable through Config.
const (
	DefaultMaxBucketsPerSwap   = 16
	DefaultMaxReserveStaleness = 64 // blocks
)

// Tick and price bounds
var (
	MinTick = int24(-887272)
	MaxTick = int24(887272)

	MinSqrtRatio    = big.NewInt(4295128739)
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)

	// Q64.96 and Q128 fixed point
	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	Q128 = new(big.Int).Lsh(big.NewInt(1), 128)
)

// Side is the direction a resting order trades.
// A BUY bucket escrows quote (token1) and fills as the price falls through
// its tick; a SELL bucket escrows base (token0) and fills as it rises.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// DepositToken returns which leg of the pair a resting order escrows.
func (s Side) DepositToken(key PoolKey) common.Address {
	if s == SideBuy {
		return key.Token1
	}
	return key.Token0
}

// ProceedsToken returns the leg a filled order is paid in.
func (s Side) ProceedsToken(key PoolKey) common.Address {
	if s == SideBuy {
		return key.Token0
	}
	return key.Token1
}

// PrivacyTier classifies a token leg.
type PrivacyTier uint8

const (
	PrivacyPublic PrivacyTier = iota
	PrivacyFHE
)

// PoolTier is derived from the two token tiers.
type PoolTier uint8

const (
	TierPublic PoolTier = iota // ERC:ERC
	TierMixed                  // one confidential leg
	TierFHE                    // FHE:FHE
)

// PoolKey uniquely identifies a pool
type PoolKey struct {
	Token0      common.Address // Lower address token
	Token1      common.Address // Higher address token
	Fee         uint24         // Fee in basis points
	TickSpacing int24          // Tick spacing for the order grid
	Hooks       common.Address // Hooks contract address (0 = no hooks)
}

// ID computes the pool ID as a hash of the key
func (k PoolKey) ID() common.Hash {
	h := blake3.New()
	h.Write(k.Token0.Bytes())
	h.Write(k.Token1.Bytes())
	h.Write([]byte{byte(k.Fee >> 16), byte(k.Fee >> 8), byte(k.Fee)})
	h.Write([]byte{byte(k.TickSpacing >> 16), byte(k.TickSpacing >> 8), byte(k.TickSpacing)})
	h.Write(k.Hooks.Bytes())

	var id common.Hash
	h.Digest().Read(id[:])
	return id
}

// PoolReserves carries both views of a pool's balance sheet. The encrypted
// mirror is the source of truth; the plaintext mirror is a cache refreshed
// by the reserve sync protocol and is allowed to go stale.
type PoolReserves struct {
	// Encrypted mirror
	EncReserve0      fhe.Handle
	EncReserve1      fhe.Handle
	EncTotalLPSupply fhe.Handle

	// Plaintext mirror (cache)
	Reserve0      *big.Int
	Reserve1      *big.Int
	TotalLPSupply *big.Int

	// Sync protocol state
	ReserveBlockNumber uint64
	NextRequestID      uint64
	LastResolvedID     uint64

	// Price state derived from the plaintext mirror
	SqrtPriceX96 *big.Int
	Tick         int24

	// Momentum cursor: the last tick the closure walk has processed.
	LastProcessedTick int24
}

// Pool represents an initialized dark pool
type Pool struct {
	Key           PoolKey
	Token0Privacy PrivacyTier
	Token1Privacy PrivacyTier
	Initialized   bool

	ProtocolFeeBps uint24

	// Two-phase protocol fee change
	PendingFeeBps     uint24
	FeeEffectiveBlock uint64
	FeeChangeQueued   bool

	Reserves PoolReserves
}

// Tier derives the pool's privacy class from its token legs.
func (p *Pool) Tier() PoolTier {
	n := 0
	if p.Token0Privacy == PrivacyFHE {
		n++
	}
	if p.Token1Privacy == PrivacyFHE {
		n++
	}
	switch n {
	case 2:
		return TierFHE
	case 1:
		return TierMixed
	default:
		return TierPublic
	}
}

// Bucket aggregates all resting orders at one (pool, tick, side). Fills are
// distributed through monotone per-share accumulators; individual orders are
// settled lazily against snapshots, so a fill touches O(1) state regardless
// of how many orders rest in the bucket.
type Bucket struct {
	TotalShares          fhe.Handle // euint128
	Liquidity            fhe.Handle // euint128, unfilled principal
	FilledPerShareX128   fhe.Handle // euint256, monotone
	ProceedsPerShareX128 fhe.Handle // euint256, monotone

	// Epoch counts share generations. A deposit into an exhausted bucket
	// (zero liquidity) retires the old share supply and advances the
	// epoch; the accumulator values at that boundary are captured so
	// positions from the retired generation still settle their own
	// proceeds and nothing newer.
	Epoch            fhe.Handle // euint128
	PrevFilledX128   fhe.Handle // euint256, FilledPerShareX128 at last epoch boundary
	PrevProceedsX128 fhe.Handle // euint256, ProceedsPerShareX128 at last epoch boundary

	Initialized bool
}

// Position is one owner's stake in a bucket.
type Position struct {
	Shares               fhe.Handle // euint128
	Epoch                fhe.Handle // euint128, bucket epoch the shares belong to
	FilledSnapshotX128   fhe.Handle // euint256
	ProceedsSnapshotX128 fhe.Handle // euint256
	RealizedProceeds     fhe.Handle // euint128, claimable
}

// BalanceDelta is a pair of signed token deltas returned by swaps and
// liquidity changes (positive = owed to caller).
type BalanceDelta struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

func NewBalanceDelta(amount0, amount1 *big.Int) BalanceDelta {
	return BalanceDelta{Amount0: amount0, Amount1: amount1}
}

// SwapParams are the arguments of a plaintext swap.
type SwapParams struct {
	ZeroForOne   bool
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Recipient    common.Address
}

// bucketKey derives the storage key for a (pool, tick, side) bucket.
func bucketKey(poolID common.Hash, tick int24, side Side) common.Hash {
	h := blake3.New()
	h.Write(poolID.Bytes())
	h.Write([]byte{byte(uint32(tick) >> 16), byte(uint32(tick) >> 8), byte(uint32(tick))})
	h.Write([]byte{byte(side)})

	var key common.Hash
	h.Digest().Read(key[:])
	return key
}

// positionKey derives the storage key for an owner's position in a bucket.
func positionKey(poolID common.Hash, owner common.Address, tick int24, side Side) common.Hash {
	h := blake3.New()
	h.Write(poolID.Bytes())
	h.Write(owner.Bytes())
	h.Write([]byte{byte(uint32(tick) >> 16), byte(uint32(tick) >> 8), byte(uint32(tick))})
	h.Write([]byte{byte(side)})

	var key common.Hash
	h.Digest().Read(key[:])
	return key
}

// Hard rejections: these revert the transaction.
var (
	ErrPoolNotFound      = errors.New("pool not found")
	ErrPoolAlreadyExists = errors.New("pool already exists")
	ErrInvalidTokenOrder = errors.New("token0 must be less than token1")
	ErrIdenticalTokens   = errors.New("identical tokens")
	ErrInvalidFee        = errors.New("fee exceeds maximum")
	ErrInvalidSpacing    = errors.New("tick spacing must be positive")

	ErrTickNotAligned   = errors.New("tick not aligned to spacing")
	ErrTickOutOfRange   = errors.New("tick out of range")
	ErrTickDrift        = errors.New("tick drifted beyond tolerance")
	ErrDeadlineExpired  = errors.New("deadline expired")
	ErrZeroAmountHandle = errors.New("zero amount handle")
	ErrTokenNotPrivate  = errors.New("deposit leg is not confidential")

	ErrSlippage              = errors.New("insufficient output amount")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrZeroAmount            = errors.New("zero amount")

	ErrUnauthorized      = errors.New("caller is not the fee controller")
	ErrFeeChangeNotReady = errors.New("fee change not yet effective")
	ErrNoFeeChangeQueued = errors.New("no fee change queued")

	ErrNotFHEPool = errors.New("operation requires a fully confidential pool")
)

// Events recorded by the pool manager.
type EventKind uint8

const (
	EventPoolInitialized EventKind = iota
	EventSwap
	EventOrderPlaced
	EventOrderWithdrawn
	EventClaimed
	EventReservesSynced
)

type Event struct {
	Kind      EventKind
	Pool      common.Hash
	Account   common.Address
	Tick      int24
	Side      Side
	RequestID uint64
	Block     uint64
}
