// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"testing"
)

func TestTickToSqrtPriceX96_Zero(t *testing.T) {
	got := TickToSqrtPriceX96(0)
	if got.Cmp(Q96) != 0 {
		t.Errorf("tick 0 sqrt price = %s, want %s", got, Q96)
	}
}

func TestTickToSqrtPriceX96_Monotonic(t *testing.T) {
	ticks := []int24{-6000, -1200, -120, -60, 0, 60, 120, 1200, 6000}
	for i := 1; i < len(ticks); i++ {
		lo := TickToSqrtPriceX96(ticks[i-1])
		hi := TickToSqrtPriceX96(ticks[i])
		if lo.Cmp(hi) >= 0 {
			t.Errorf("sqrt price not increasing: tick %d -> %s, tick %d -> %s",
				ticks[i-1], lo, ticks[i], hi)
		}
	}
}

func TestTickToSqrtPriceX96_Sign(t *testing.T) {
	if TickToSqrtPriceX96(-60).Cmp(Q96) >= 0 {
		t.Error("negative tick should price below 1")
	}
	if TickToSqrtPriceX96(60).Cmp(Q96) <= 0 {
		t.Error("positive tick should price above 1")
	}
}

func TestSqrtPriceX96ToTick_Roundtrip(t *testing.T) {
	tests := []int24{-1200, -180, -120, -60, 0, 60, 120, 180, 1200}
	for _, tick := range tests {
		got := SqrtPriceX96ToTick(TickToSqrtPriceX96(tick))
		if got != tick {
			t.Errorf("roundtrip(%d) = %d", tick, got)
		}
	}
}

func TestSqrtPriceX96ToTick_Bounds(t *testing.T) {
	if got := SqrtPriceX96ToTick(MinSqrtRatio); got != MinTick {
		t.Errorf("min sqrt ratio -> %d, want %d", got, MinTick)
	}
	if got := SqrtPriceX96ToTick(MaxSqrtRatio); got != MaxTick {
		t.Errorf("max sqrt ratio -> %d, want %d", got, MaxTick)
	}
	if got := SqrtPriceX96ToTick(nil); got != 0 {
		t.Errorf("nil sqrt price -> %d, want 0", got)
	}
}

func TestPriceX96AtTick(t *testing.T) {
	if got := PriceX96AtTick(0); got.Cmp(Q96) != 0 {
		t.Errorf("price at tick 0 = %s, want %s", got, Q96)
	}
	if PriceX96AtTick(-60).Cmp(Q96) >= 0 {
		t.Error("price at tick -60 should be below 1")
	}
	if PriceX96AtTick(60).Cmp(Q96) <= 0 {
		t.Error("price at tick 60 should be above 1")
	}
}

func TestCheckTick(t *testing.T) {
	tests := []struct {
		name    string
		tick    int24
		spacing int24
		wantErr error
	}{
		{"aligned zero", 0, 60, nil},
		{"aligned negative", -120, 60, nil},
		{"aligned positive", 600, 60, nil},
		{"misaligned", 30, 60, ErrTickNotAligned},
		{"misaligned negative", -90, 60, ErrTickNotAligned},
		{"above max", 887280, 60, ErrTickOutOfRange},
		{"below min", -887280, 60, ErrTickOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := checkTick(tt.tick, tt.spacing); err != tt.wantErr {
				t.Errorf("checkTick(%d, %d) = %v, want %v", tt.tick, tt.spacing, err, tt.wantErr)
			}
		})
	}
}

func TestTickBitmap_FlipAndQuery(t *testing.T) {
	tb := NewTickBitmap()

	if tb.IsInitialized(60, 60) {
		t.Error("fresh bitmap should have no ticks")
	}

	tb.FlipTick(60, 60)
	if !tb.IsInitialized(60, 60) {
		t.Error("tick 60 should be set after flip")
	}

	tb.FlipTick(60, 60)
	if tb.IsInitialized(60, 60) {
		t.Error("tick 60 should be clear after second flip")
	}

	// Misaligned flips are ignored
	tb.FlipTick(61, 60)
	if tb.IsInitialized(61, 60) {
		t.Error("misaligned tick must not be set")
	}
}

func TestTickBitmap_NextInitializedDown(t *testing.T) {
	tb := NewTickBitmap()
	tb.FlipTick(-60, 60)
	tb.FlipTick(-600, 60)

	next, found := tb.NextInitializedTick(-1, 60, true)
	if !found || next != -60 {
		t.Fatalf("next down from -1 = (%d, %v), want (-60, true)", next, found)
	}

	next, found = tb.NextInitializedTick(-61, 60, true)
	if !found || next != -600 {
		t.Fatalf("next down from -61 = (%d, %v), want (-600, true)", next, found)
	}

	_, found = tb.NextInitializedTick(-601, 60, true)
	if found {
		t.Fatal("no tick should remain below -600")
	}
}

func TestTickBitmap_NextInitializedUp(t *testing.T) {
	tb := NewTickBitmap()
	tb.FlipTick(0, 60)
	tb.FlipTick(600, 60)

	next, found := tb.NextInitializedTick(-60, 60, false)
	if !found || next != 0 {
		t.Fatalf("next up from -60 = (%d, %v), want (0, true)", next, found)
	}

	// The up search is exclusive of the starting tick.
	next, found = tb.NextInitializedTick(0, 60, false)
	if !found || next != 600 {
		t.Fatalf("next up from 0 = (%d, %v), want (600, true)", next, found)
	}

	_, found = tb.NextInitializedTick(600, 60, false)
	if found {
		t.Fatal("no tick should remain above 600")
	}
}

func TestTickBitmap_NegativeWordBoundary(t *testing.T) {
	tb := NewTickBitmap()
	// Compressed positions -256 and -257 land in adjacent words; -256 sits
	// at bit 0 of word -1.
	tb.FlipTick(-256*60, 60)
	tb.FlipTick(-257*60, 60)

	if !tb.IsInitialized(-256*60, 60) {
		t.Fatal("tick at compressed -256 should be set after flip")
	}

	next, found := tb.NextInitializedTick(-255*60, 60, true)
	if !found || next != -256*60 {
		t.Fatalf("next down from compressed -255 = (%d, %v), want (%d, true)", next, found, -256*60)
	}

	next, found = tb.NextInitializedTick(-256*60-1, 60, true)
	if !found || next != -257*60 {
		t.Fatalf("next down across negative word boundary = (%d, %v), want (%d, true)", next, found, -257*60)
	}

	next, found = tb.NextInitializedTick(-257*60, 60, false)
	if !found || next != -256*60 {
		t.Fatalf("next up across negative word boundary = (%d, %v), want (%d, true)", next, found, -256*60)
	}
}

func TestTickBitmap_SearchReachesRangeEdges(t *testing.T) {
	tb := NewTickBitmap()
	lowest := (MinTick / 60) * 60  // -887220, lowest 60-aligned tick
	highest := (MaxTick / 60) * 60 // 887220

	tb.FlipTick(lowest, 60)
	tb.FlipTick(highest, 60)

	next, found := tb.NextInitializedTick(0, 60, true)
	if !found || next != lowest {
		t.Fatalf("down search = (%d, %v), want (%d, true)", next, found, lowest)
	}

	next, found = tb.NextInitializedTick(0, 60, false)
	if !found || next != highest {
		t.Fatalf("up search = (%d, %v), want (%d, true)", next, found, highest)
	}

	empty := NewTickBitmap()
	if next, found := empty.NextInitializedTick(0, 60, true); found || next != MinTick {
		t.Fatalf("empty down search = (%d, %v), want (%d, false)", next, found, MinTick)
	}
	if next, found := empty.NextInitializedTick(0, 60, false); found || next != MaxTick {
		t.Fatalf("empty up search = (%d, %v), want (%d, false)", next, found, MaxTick)
	}
}

func TestTickBitmap_AcrossWordBoundary(t *testing.T) {
	tb := NewTickBitmap()
	// Compressed positions 255 and 256 land in adjacent words.
	tb.FlipTick(255*60, 60)
	tb.FlipTick(256*60, 60)

	next, found := tb.NextInitializedTick(255*60, 60, false)
	if !found || next != 256*60 {
		t.Fatalf("next up across word boundary = (%d, %v), want (%d, true)", next, found, 256*60)
	}

	next, found = tb.NextInitializedTick(256*60-1, 60, true)
	if !found || next != 255*60 {
		t.Fatalf("next down across word boundary = (%d, %v), want (%d, true)", next, found, 255*60)
	}
}
