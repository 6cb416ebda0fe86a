/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAdvanceAppliesMultiplier(t *testing.T) {
	p := NewPlayback(Options{Start: epoch, Multiplier: 60})
	got := p.Advance(time.Second)
	if want := epoch.Add(time.Minute); !got.Equal(want) {
		t.Fatalf("Advance() = %v, want %v", got, want)
	}

	p.SetMultiplier(-30)
	got = p.Advance(time.Second)
	if want := epoch.Add(30 * time.Second); !got.Equal(want) {
		t.Fatalf("reverse Advance() = %v, want %v", got, want)
	}
}

func TestAdvanceHonoursAnimationFlags(t *testing.T) {
	p := NewPlayback(Options{Start: epoch, Paused: true})
	if p.ShouldAnimate() {
		t.Fatal("paused clock should not animate")
	}
	if got := p.Advance(time.Second); !got.Equal(epoch) {
		t.Fatalf("paused clock moved to %v", got)
	}

	p.Play()
	p.SetCanAnimate(false)
	if got := p.Advance(time.Second); !got.Equal(epoch) {
		t.Fatalf("blocked clock moved to %v", got)
	}

	p.SetCanAnimate(true)
	if got := p.Advance(time.Second); !got.Equal(epoch.Add(time.Second)) {
		t.Fatalf("running clock at %v", got)
	}
}

func TestRanges(t *testing.T) {
	stop := epoch.Add(10 * time.Second)

	tests := []struct {
		name string
		rng  Range
		want time.Time
	}{
		{"unbounded", Unbounded, epoch.Add(12 * time.Second)},
		{"clamped", Clamped, stop},
		{"loop", Loop, epoch.Add(2 * time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlayback(Options{Start: epoch, Stop: stop, Current: epoch.Add(8 * time.Second), Range: tt.rng})
			if got := p.Advance(4 * time.Second); !got.Equal(tt.want) {
				t.Fatalf("Advance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOnTickListeners(t *testing.T) {
	p := NewPlayback(Options{Start: epoch})
	var seen []time.Time
	remove := p.OnTick(func(now time.Time) { seen = append(seen, now) })

	p.Advance(time.Second)
	remove()
	p.Advance(time.Second)

	if len(seen) != 1 {
		t.Fatalf("listener called %d times, want 1", len(seen))
	}
	if !seen[0].Equal(epoch.Add(time.Second)) {
		t.Fatalf("listener saw %v", seen[0])
	}
}
