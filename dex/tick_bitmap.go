// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/bits"
	"sync"
)

// TickBitmap tracks which (tick, side) buckets hold resting orders using a
// compressed bitmap. Each word stores 256 grid positions (one bit per
// spacing-aligned tick), so the momentum walk can skip empty ranges in
// O(words) instead of scanning every tick.
type TickBitmap struct {
	mu sync.RWMutex

	// Key: word position (compressed tick / 256)
	// Value: 256-bit word as [4]uint64
	bitmap map[int16][4]uint64
}

// NewTickBitmap creates an empty bitmap.
func NewTickBitmap() *TickBitmap {
	return &TickBitmap{
		bitmap: make(map[int16][4]uint64),
	}
}

// wordPos returns the word position for a compressed tick. Arithmetic
// right shift rounds toward negative infinity, so wordPos(t)*256+bitPos(t)
// reconstructs t for negative ticks too.
func wordPos(tick int32) int16 {
	return int16(tick >> 8)
}

// bitPos returns the bit position within a word (0-255).
func bitPos(tick int32) uint8 {
	return uint8(tick & 0xFF)
}

// compressFloor divides a tick by the spacing, rounding toward negative
// infinity.
func compressFloor(tick int32, tickSpacing int32) int32 {
	c := tick / tickSpacing
	if tick < 0 && tick%tickSpacing != 0 {
		c--
	}
	return c
}

// FlipTick toggles the tick's initialized state.
func (tb *TickBitmap) FlipTick(tick int32, tickSpacing int32) {
	if tickSpacing <= 0 || tick%tickSpacing != 0 {
		return
	}
	compressed := tick / tickSpacing

	tb.mu.Lock()
	defer tb.mu.Unlock()

	wp := wordPos(compressed)
	bp := bitPos(compressed)

	word := tb.bitmap[wp]
	word[bp/64] ^= 1 << (bp % 64)
	tb.bitmap[wp] = word
}

// IsInitialized returns whether a tick has resting orders.
func (tb *TickBitmap) IsInitialized(tick int32, tickSpacing int32) bool {
	if tickSpacing <= 0 || tick%tickSpacing != 0 {
		return false
	}
	compressed := tick / tickSpacing

	tb.mu.RLock()
	defer tb.mu.RUnlock()

	wp := wordPos(compressed)
	bp := bitPos(compressed)

	word := tb.bitmap[wp]
	return (word[bp/64] & (1 << (bp % 64))) != 0
}

// NextInitializedTick finds the next initialized tick strictly at or below
// the input when lte is true, or strictly above it when false.
// Returns (nextTick, found).
func (tb *TickBitmap) NextInitializedTick(tick int32, tickSpacing int32, lte bool) (int32, bool) {
	// Round toward negative infinity so the down search includes tick itself
	// only when aligned.
	compressed := compressFloor(tick, tickSpacing)

	tb.mu.RLock()
	defer tb.mu.RUnlock()

	if lte {
		return tb.nextInitializedTickLeft(compressed, tickSpacing)
	}
	return tb.nextInitializedTickRight(compressed, tickSpacing)
}

// nextInitializedTickLeft searches toward lower ticks, inclusive.
func (tb *TickBitmap) nextInitializedTickLeft(compressed int32, tickSpacing int32) (int32, bool) {
	wp := wordPos(compressed)
	bp := bitPos(compressed)

	word := tb.bitmap[wp]
	for i := int(bp/64) + 1; i > 0; i-- {
		wordIdx := i - 1
		w := word[wordIdx]

		// Mask off bits above bp within its sub-word
		if wordIdx == int(bp/64) {
			var bitMask uint64
			if bp%64 == 63 {
				bitMask = ^uint64(0)
			} else {
				bitMask = uint64(1)<<(bp%64+1) - 1
			}
			w &= bitMask
		}

		if w != 0 {
			highBit := 63 - bits.LeadingZeros64(w)
			return (int32(wp)*256 + int32(wordIdx)*64 + int32(highBit)) * tickSpacing, true
		}
	}

	minWp := wordPos(compressFloor(MinTick, tickSpacing))
	for searchWp := wp - 1; searchWp >= minWp; searchWp-- {
		word := tb.bitmap[searchWp]
		for wordIdx := 3; wordIdx >= 0; wordIdx-- {
			w := word[wordIdx]
			if w != 0 {
				highBit := 63 - bits.LeadingZeros64(w)
				return (int32(searchWp)*256 + int32(wordIdx)*64 + int32(highBit)) * tickSpacing, true
			}
		}
	}

	return MinTick, false
}

// nextInitializedTickRight searches toward higher ticks, exclusive.
func (tb *TickBitmap) nextInitializedTickRight(compressed int32, tickSpacing int32) (int32, bool) {
	wp := wordPos(compressed)
	bp := bitPos(compressed)

	word := tb.bitmap[wp]
	startBit := int(bp) + 1
	for wordIdx := startBit / 64; wordIdx < 4; wordIdx++ {
		w := word[wordIdx]

		if wordIdx == startBit/64 {
			w &= ^(uint64(1)<<(startBit%64) - 1)
		}

		if w != 0 {
			lowBit := bits.TrailingZeros64(w)
			return (int32(wp)*256 + int32(wordIdx)*64 + int32(lowBit)) * tickSpacing, true
		}
	}

	maxWp := wordPos(MaxTick / tickSpacing)
	for searchWp := wp + 1; searchWp <= maxWp; searchWp++ {
		word := tb.bitmap[searchWp]
		for wordIdx := 0; wordIdx < 4; wordIdx++ {
			w := word[wordIdx]
			if w != 0 {
				lowBit := bits.TrailingZeros64(w)
				return (int32(searchWp)*256 + int32(wordIdx)*64 + int32(lowBit)) * tickSpacing, true
			}
		}
	}

	return MaxTick, false
}
