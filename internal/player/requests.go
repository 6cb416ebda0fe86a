/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"time"

	"github.com/friendsincode/timetile/internal/events"
	"github.com/friendsincode/timetile/internal/interval"
	"github.com/friendsincode/timetile/internal/tile"
)

// Handle is a tile being fetched for the current interval.
type Handle struct {
	Future *tile.Future
	// Cancel stops a direct fetch. Prefetched tiles cannot be cancelled.
	Cancel tile.CancelHandle
	// Prefetched reports whether the tile came from the prefetch cache.
	Prefetched bool
	Interval   interval.Interval
}

// Tile returns the tile for the current interval: the prefetched fetch when
// one exists, otherwise a new direct fetch. Either way the key is offered for
// prefetching into the approaching interval.
func (p *Player) Tile(ctx context.Context, key tile.Key, priority tile.PriorityFunc) (Handle, error) {
	var (
		h   Handle
		err error
	)
	doErr := p.do(ctx, func() {
		defer p.sched.CheckApproachingInterval(key.X, key.Y, key.Level, priority)

		iv, ok := p.sched.CurrentInterval()
		if !ok {
			err = ErrNoInterval
			return
		}
		h.Interval = iv

		if future, ok := p.sched.GetFromCache(key.X, key.Y, key.Level); ok {
			h.Future = future
			h.Cancel = tile.CancelFunc(nil)
			h.Prefetched = true
			return
		}

		entry, ok := p.fetcher.Fetch(tile.Request{
			Key:           key,
			Interval:      iv,
			IntervalIndex: p.sched.CurrentIndex(),
			Priority:      priority,
		})
		if !ok {
			err = ErrThrottled
			return
		}
		h.Future = entry.Future
		h.Cancel = entry.Cancel
		if h.Cancel == nil {
			h.Cancel = tile.CancelFunc(nil)
		}
	})
	if doErr != nil {
		return Handle{}, doErr
	}
	return h, err
}

// Prefetch offers keys for prefetching into the approaching interval.
func (p *Player) Prefetch(ctx context.Context, keys []tile.Key) error {
	return p.do(ctx, func() {
		for _, k := range keys {
			p.sched.CheckApproachingInterval(k.X, k.Y, k.Level, nil)
		}
	})
}

// IntervalView describes an interval in status output.
type IntervalView struct {
	Index int       `json:"index"`
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	Stop  time.Time `json:"stop"`
}

// Status is a snapshot of playback and scheduler state.
type Status struct {
	Time        time.Time     `json:"time"`
	Multiplier  float64       `json:"multiplier"`
	Playing     bool          `json:"playing"`
	CanAnimate  bool          `json:"can_animate"`
	Current     *IntervalView `json:"current,omitempty"`
	Approaching *IntervalView `json:"approaching,omitempty"`
	Intervals   int           `json:"intervals"`
	Pending     int           `json:"pending"`
	Reloads     uint64        `json:"reloads"`
}

// Status returns a snapshot taken on the Run goroutine.
func (p *Player) Status(ctx context.Context) (Status, error) {
	var s Status
	err := p.do(ctx, func() { s = p.status() })
	return s, err
}

func (p *Player) status() Status {
	s := Status{
		Time:       p.clock.CurrentTime(),
		Multiplier: p.clock.Multiplier(),
		Playing:    p.clock.ShouldAnimate(),
		CanAnimate: p.clock.CanAnimate(),
		Intervals:  p.sched.Intervals().Len(),
		Pending:    p.sched.Pending(),
		Reloads:    p.reloads,
	}
	if iv, ok := p.sched.CurrentInterval(); ok {
		s.Current = view(p.sched.CurrentIndex(), iv)
	}
	if idx, iv, ok := p.sched.ApproachingInterval(); ok {
		s.Approaching = view(idx, iv)
	}
	return s
}

func view(index int, iv interval.Interval) *IntervalView {
	return &IntervalView{Index: index, ID: iv.ID(), Start: iv.Start, Stop: iv.Stop}
}

// ClockUpdate changes playback. Nil fields are left alone.
type ClockUpdate struct {
	Multiplier *float64   `json:"multiplier,omitempty"`
	Playing    *bool      `json:"playing,omitempty"`
	Seek       *time.Time `json:"seek,omitempty"`
}

// UpdateClock applies u and ticks immediately so a seek takes effect before
// the next request is served.
func (p *Player) UpdateClock(ctx context.Context, u ClockUpdate) (Status, error) {
	var s Status
	err := p.do(ctx, func() {
		if u.Multiplier != nil {
			p.clock.SetMultiplier(*u.Multiplier)
		}
		if u.Playing != nil {
			if *u.Playing {
				p.clock.Play()
			} else {
				p.clock.Pause()
			}
		}
		if u.Seek != nil {
			p.clock.SetCurrentTime(*u.Seek)
		}
		p.step(0)

		s = p.status()
		p.publish(events.EventClockChanged, events.Payload{
			"time":       s.Time.UTC().Format(time.RFC3339),
			"multiplier": s.Multiplier,
			"playing":    s.Playing,
		})
	})
	return s, err
}

// SetIntervals swaps the interval index. The scheduler drops all cached work
// and fires a reload.
func (p *Player) SetIntervals(ctx context.Context, idx *interval.Index) error {
	var err error
	doErr := p.do(ctx, func() {
		err = p.sched.SetIntervals(idx)
		if err == nil {
			p.publish(events.EventIntervalsReplaced, events.Payload{"intervals": idx.Len()})
		}
	})
	if doErr != nil {
		return doErr
	}
	return err
}
