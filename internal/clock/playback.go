/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package clock provides a playback clock that advances simulation time by
// a signed multiple of wall-clock time.
package clock

import (
	"sync"
	"time"
)

// Range controls what happens when playback reaches the start or stop bound.
type Range int

const (
	// Unbounded ignores the bounds.
	Unbounded Range = iota
	// Clamped holds the current time at the bound it crossed.
	Clamped
	// Loop wraps from stop back to start when playing forward.
	Loop
)

// Options configures a playback clock.
type Options struct {
	Start      time.Time
	Stop       time.Time
	Current    time.Time
	Multiplier float64
	Range      Range
	// Paused leaves ShouldAnimate false until Play is called.
	Paused bool
}

// Playback is a simulation clock. It is safe for concurrent use; listeners
// run on the goroutine that calls Advance.
type Playback struct {
	mu            sync.RWMutex
	start         time.Time
	stop          time.Time
	current       time.Time
	multiplier    float64
	rng           Range
	canAnimate    bool
	shouldAnimate bool

	nextID    int
	listeners map[int]func(time.Time)
}

// NewPlayback creates a clock. A zero Current starts at Start; a zero
// Multiplier plays at real time.
func NewPlayback(opts Options) *Playback {
	current := opts.Current
	if current.IsZero() {
		current = opts.Start
	}
	multiplier := opts.Multiplier
	if multiplier == 0 {
		multiplier = 1
	}
	return &Playback{
		start:         opts.Start,
		stop:          opts.Stop,
		current:       current,
		multiplier:    multiplier,
		rng:           opts.Range,
		canAnimate:    true,
		shouldAnimate: !opts.Paused,
		listeners:     make(map[int]func(time.Time)),
	}
}

// CurrentTime returns the current simulation time.
func (p *Playback) CurrentTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Multiplier returns the signed playback rate.
func (p *Playback) Multiplier() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.multiplier
}

// CanAnimate reports whether the clock is able to advance (for example,
// not blocked waiting for data).
func (p *Playback) CanAnimate() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.canAnimate
}

// ShouldAnimate reports whether playback has been requested.
func (p *Playback) ShouldAnimate() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.shouldAnimate
}

// Bounds returns the start and stop times and the range mode.
func (p *Playback) Bounds() (time.Time, time.Time, Range) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.start, p.stop, p.rng
}

// SetCurrentTime seeks without notifying listeners.
func (p *Playback) SetCurrentTime(t time.Time) {
	p.mu.Lock()
	p.current = t
	p.mu.Unlock()
}

// SetMultiplier changes rate and direction.
func (p *Playback) SetMultiplier(m float64) {
	p.mu.Lock()
	p.multiplier = m
	p.mu.Unlock()
}

// SetCanAnimate blocks or unblocks advancement.
func (p *Playback) SetCanAnimate(v bool) {
	p.mu.Lock()
	p.canAnimate = v
	p.mu.Unlock()
}

// Play requests playback.
func (p *Playback) Play() {
	p.mu.Lock()
	p.shouldAnimate = true
	p.mu.Unlock()
}

// Pause stops playback; the current time is kept.
func (p *Playback) Pause() {
	p.mu.Lock()
	p.shouldAnimate = false
	p.mu.Unlock()
}

// OnTick registers fn to be called after every Advance. The returned func
// removes it.
func (p *Playback) OnTick(fn func(time.Time)) (remove func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Advance moves simulation time forward by wall * multiplier when the clock
// is animating, applies the range mode and notifies listeners. Listeners are
// notified even when time did not move.
func (p *Playback) Advance(wall time.Duration) time.Time {
	p.mu.Lock()
	if p.canAnimate && p.shouldAnimate {
		step := time.Duration(float64(wall) * p.multiplier)
		p.current = p.applyRange(p.current.Add(step))
	}
	now := p.current
	listeners := make([]func(time.Time), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
	return now
}

// applyRange must be called with p.mu held.
func (p *Playback) applyRange(t time.Time) time.Time {
	if p.rng == Unbounded || p.start.IsZero() || p.stop.IsZero() || !p.stop.After(p.start) {
		return t
	}

	switch p.rng {
	case Clamped:
		if t.Before(p.start) {
			return p.start
		}
		if t.After(p.stop) {
			return p.stop
		}
	case Loop:
		if t.Before(p.start) {
			return p.start
		}
		if t.After(p.stop) {
			span := p.stop.Sub(p.start)
			return p.start.Add(t.Sub(p.stop) % span)
		}
	}
	return t
}
