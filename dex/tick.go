// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import "math/big"

// sqrtMagics are sqrt(1.0001^(2^i)) scaled to 64 bits of fraction,
// from Uniswap v3 TickMath.
var sqrtMagics = []struct {
	bit   int
	magic *big.Int
}{
	{0, new(big.Int).SetBytes([]byte{0xff, 0xf9, 0x71, 0x63, 0xe1, 0x37, 0x66, 0x35})},
	{1, new(big.Int).SetBytes([]byte{0xff, 0xf2, 0xe5, 0x0f, 0x62, 0x6c, 0x4c, 0x95})},
	{2, new(big.Int).SetBytes([]byte{0xff, 0xe5, 0xca, 0xca, 0x7e, 0x10, 0xe4, 0x46})},
	{3, new(big.Int).SetBytes([]byte{0xff, 0xcb, 0x9a, 0x97, 0x93, 0x42, 0xa9, 0x50})},
	{4, new(big.Int).SetBytes([]byte{0xff, 0x97, 0x38, 0x3c, 0x7e, 0x70, 0x01, 0x2a})},
	{5, new(big.Int).SetBytes([]byte{0xff, 0x2e, 0xa1, 0x34, 0x34, 0xc3, 0x39, 0x69})},
	{6, new(big.Int).SetBytes([]byte{0xfe, 0x5d, 0xee, 0x04, 0x6a, 0x99, 0xa1, 0x2d})},
	{7, new(big.Int).SetBytes([]byte{0xfc, 0xbe, 0x86, 0xc7, 0x90, 0x67, 0x90, 0x01})},
	{8, new(big.Int).SetBytes([]byte{0xf9, 0x87, 0xa7, 0x25, 0x30, 0x42, 0x46, 0x85})},
}

// TickToSqrtPriceX96 converts a tick to its sqrt price in Q64.96 format.
// sqrtPrice = sqrt(1.0001^tick) * 2^96
func TickToSqrtPriceX96(tick int24) *big.Int {
	if tick == 0 {
		return new(big.Int).Set(Q96)
	}

	absTick := tick
	if tick < 0 {
		absTick = -tick
	}

	// Accumulate in Q128 for precision
	ratio := new(big.Int).Lsh(big.NewInt(1), 128)
	for _, sm := range sqrtMagics {
		if int(absTick)&(1<<sm.bit) != 0 {
			ratio.Mul(ratio, sm.magic)
			ratio.Rsh(ratio, 64)
		}
	}

	// Remaining high bits approximated per 512-tick block
	remaining := int(absTick) >> 9
	for i := 0; i < remaining; i++ {
		ratio.Mul(ratio, big.NewInt(10001))
		ratio.Div(ratio, big.NewInt(10000))
	}

	if tick < 0 {
		maxU256 := new(big.Int).Lsh(big.NewInt(1), 256)
		ratio = new(big.Int).Div(maxU256, ratio)
	}

	result := new(big.Int).Rsh(ratio, 32)

	if result.Cmp(MinSqrtRatio) < 0 {
		return new(big.Int).Set(MinSqrtRatio)
	}
	if result.Cmp(MaxSqrtRatio) > 0 {
		return new(big.Int).Set(MaxSqrtRatio)
	}
	return result
}

// SqrtPriceX96ToTick converts a sqrt price to the greatest tick whose
// sqrt price is <= the input, by binary search over TickToSqrtPriceX96.
func SqrtPriceX96ToTick(sqrtPriceX96 *big.Int) int24 {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0
	}

	if sqrtPriceX96.Cmp(MinSqrtRatio) <= 0 {
		return MinTick
	}
	if sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return MaxTick
	}

	low := MinTick
	high := MaxTick
	for low < high {
		mid := low + (high-low+1)/2
		if TickToSqrtPriceX96(mid).Cmp(sqrtPriceX96) <= 0 {
			low = mid
		} else {
			high = mid - 1
		}
	}
	return low
}

// PriceX96AtTick returns the full price (token1 per token0) at a tick in
// Q64.96 format: price = sqrtPrice^2 / 2^96. Used to value bucket fills.
func PriceX96AtTick(tick int24) *big.Int {
	s := TickToSqrtPriceX96(tick)
	p := new(big.Int).Mul(s, s)
	return p.Rsh(p, 96)
}

// sqrtPriceFromReserves derives sqrt(reserve1/reserve0) in Q64.96 from the
// plaintext mirror. sqrt((r1 << 192) / r0) keeps full precision.
func sqrtPriceFromReserves(reserve0, reserve1 *big.Int) *big.Int {
	if reserve0 == nil || reserve1 == nil || reserve0.Sign() <= 0 || reserve1.Sign() <= 0 {
		return new(big.Int).Set(Q96)
	}
	ratio := new(big.Int).Lsh(reserve1, 192)
	ratio.Div(ratio, reserve0)
	return ratio.Sqrt(ratio)
}

// checkTick validates grid alignment and range for order placement.
func checkTick(tick, spacing int24) error {
	if tick < MinTick || tick > MaxTick {
		return ErrTickOutOfRange
	}
	if spacing <= 0 || tick%spacing != 0 {
		return ErrTickNotAligned
	}
	return nil
}
