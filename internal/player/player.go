/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package player hosts a scheduler and its playback clock on one goroutine
// and lets other goroutines query tiles and steer playback through it.
package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/timetile/internal/clock"
	"github.com/friendsincode/timetile/internal/events"
	"github.com/friendsincode/timetile/internal/interval"
	"github.com/friendsincode/timetile/internal/scheduler"
	"github.com/friendsincode/timetile/internal/tile"
)

// DefaultTick is the wall-clock period between clock advances.
const DefaultTick = 100 * time.Millisecond

var (
	// ErrNoInterval means the clock is outside every interval.
	ErrNoInterval = errors.New("player: no current interval")
	// ErrThrottled means the fetcher declined a direct fetch.
	ErrThrottled = errors.New("player: fetcher is saturated")
	// ErrStopped is returned once Run has returned.
	ErrStopped = errors.New("player: stopped")
)

// Options configures a Player.
type Options struct {
	Tick      time.Duration
	Scheduler scheduler.Options
	// Events receives reload and transition events. Optional.
	Events events.Publisher
	Logger zerolog.Logger
}

type request struct {
	fn   func()
	done chan struct{}
}

// Player owns a Scheduler and a Playback clock. Every scheduler call happens
// on the goroutine running Run.
type Player struct {
	clock   *clock.Playback
	sched   *scheduler.Scheduler
	fetcher tile.Fetcher
	events  events.Publisher
	tick    time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	requests chan request
	stopped  chan struct{}

	// Owned by the Run goroutine.
	reloads uint64
}

// New builds a player for the given clock, intervals and fetcher.
func New(clk *clock.Playback, idx *interval.Index, fetcher tile.Fetcher, opts Options) (*Player, error) {
	if clk == nil {
		return nil, scheduler.ErrMissingClock
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = DefaultTick
	}

	p := &Player{
		clock:    clk,
		fetcher:  fetcher,
		events:   opts.Events,
		tick:     tick,
		now:      time.Now,
		logger:   opts.Logger.With().Str("component", "player").Logger(),
		requests: make(chan request),
		stopped:  make(chan struct{}),
	}

	schedOpts := opts.Scheduler
	schedOpts.Logger = opts.Logger
	sched, err := scheduler.New(scheduler.Config{
		Clock:     clk,
		Intervals: idx,
		Fetcher:   fetcher,
		OnReload:  p.onReload,
	}, schedOpts)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	p.sched = sched
	return p, nil
}

// Run advances the clock every tick and serves requests until ctx is done.
// In-flight fetches are cancelled on return.
func (p *Player) Run(ctx context.Context) error {
	p.logger.Info().Dur("tick", p.tick).Msg("player started")
	defer close(p.stopped)
	defer p.sched.Close()

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	last := p.now()
	p.step(0)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("player stopped")
			return ctx.Err()
		case <-ticker.C:
			now := p.now()
			p.step(now.Sub(last))
			last = now
		case req := <-p.requests:
			req.fn()
			close(req.done)
		}
	}
}

// step advances the clock by wall and runs the scheduler's tick handling.
func (p *Player) step(wall time.Duration) {
	p.clock.Advance(wall)

	before := p.sched.CurrentIndex()
	p.sched.OnTick()
	after := p.sched.CurrentIndex()

	if before != after {
		p.publish(events.EventIntervalChanged, events.Payload{
			"from":     before,
			"to":       after,
			"interval": intervalID(p.sched),
			"time":     p.clock.CurrentTime().UTC().Format(time.RFC3339),
		})
	}
}

func (p *Player) onReload() {
	p.reloads++
	p.publish(events.EventReload, events.Payload{
		"interval": intervalID(p.sched),
		"index":    p.sched.CurrentIndex(),
		"reloads":  p.reloads,
	})
}

func (p *Player) publish(t events.EventType, payload events.Payload) {
	if p.events != nil {
		p.events.Publish(t, payload)
	}
}

func intervalID(s *scheduler.Scheduler) string {
	if iv, ok := s.CurrentInterval(); ok {
		return iv.ID()
	}
	return ""
}

// do runs fn on the Run goroutine and waits for it.
func (p *Player) do(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case p.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopped:
		return ErrStopped
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopped:
		return ErrStopped
	}
}

// Clock returns the playback clock.
func (p *Player) Clock() *clock.Playback {
	return p.clock
}
