/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler serves tiles for the interval containing the playback
// clock's current time and prefetches tiles for the interval the clock is
// about to enter.
package scheduler

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/timetile/internal/cache"
	"github.com/friendsincode/timetile/internal/interval"
	"github.com/friendsincode/timetile/internal/scheduler/state"
	"github.com/friendsincode/timetile/internal/telemetry"
	"github.com/friendsincode/timetile/internal/tile"
)

// DefaultLookahead is how far ahead, in wall-clock time, an interval
// boundary may be for the next interval to count as approaching.
const DefaultLookahead = 5 * time.Second

var (
	ErrMissingClock     = errors.New("scheduler: clock is required")
	ErrMissingIntervals = errors.New("scheduler: intervals are required")
	ErrMissingFetcher   = errors.New("scheduler: fetcher is required")
	ErrMissingReload    = errors.New("scheduler: reload callback is required")
)

// Clock is the playback clock the scheduler follows.
type Clock interface {
	CurrentTime() time.Time
	// Multiplier is the signed playback rate: the sign is the direction,
	// the magnitude simulation seconds per wall-clock second.
	Multiplier() float64
	CanAnimate() bool
	ShouldAnimate() bool
}

// Config holds the required collaborators.
type Config struct {
	Clock     Clock
	Intervals *interval.Index
	Fetcher   tile.Fetcher
	// OnReload tells the consumer to discard everything it rendered for the
	// previous interval.
	OnReload func()
}

// Options tunes the scheduler. Zero values select the defaults.
type Options struct {
	Lookahead      time.Duration
	BufferCapacity int
	BufferTrim     int
	Logger         zerolog.Logger
}

// State is the scheduler's view of where playback is.
type State struct {
	// CurrentIndex is interval.NotFound until the first tick, and whenever
	// the clock is outside every interval.
	CurrentIndex int
	Clock        Clock
	Intervals    *interval.Index
}

// Scheduler is not safe for concurrent use. OnTick, GetFromCache and
// CheckApproachingInterval must all be called from the same goroutine.
type Scheduler struct {
	state     State
	tiles     *cache.TileCache
	recent    *state.Buffer
	fetcher   tile.Fetcher
	onReload  func()
	lookahead time.Duration
	logger    zerolog.Logger
}

// New constructs a scheduler. It does not fire the reload callback; the
// first tick that finds the clock inside an interval does.
func New(cfg Config, opts Options) (*Scheduler, error) {
	switch {
	case cfg.Clock == nil:
		return nil, ErrMissingClock
	case cfg.Intervals == nil:
		return nil, ErrMissingIntervals
	case cfg.Fetcher == nil:
		return nil, ErrMissingFetcher
	case cfg.OnReload == nil:
		return nil, ErrMissingReload
	}

	lookahead := opts.Lookahead
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}

	return &Scheduler{
		state: State{
			CurrentIndex: interval.NotFound,
			Clock:        cfg.Clock,
			Intervals:    cfg.Intervals,
		},
		tiles:     cache.New(),
		recent:    state.NewBuffer(opts.BufferCapacity, opts.BufferTrim),
		fetcher:   cfg.Fetcher,
		onReload:  cfg.OnReload,
		lookahead: lookahead,
		logger:    opts.Logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// OnTick must be called every time the clock ticks. On an interval change it
// cancels the old interval's fetches, forgets buffered candidates and fires
// the reload callback. Otherwise it drains buffered candidates into the
// approaching interval until the fetcher pushes back.
func (s *Scheduler) OnTick() {
	telemetry.SchedulerTicksTotal.Inc()

	now := s.state.Clock.CurrentTime()
	index := s.state.Intervals.IndexOf(now)

	if index != s.state.CurrentIndex {
		cancelled := s.tiles.ClearAndCancel(s.state.CurrentIndex)
		s.recent.Clear()
		telemetry.RecentBufferDepth.Set(0)
		telemetry.CancelledFetchesTotal.Add(float64(cancelled))
		telemetry.IntervalTransitionsTotal.Inc()

		s.logger.Info().
			Int("from", s.state.CurrentIndex).
			Int("to", index).
			Time("time", now).
			Int("cancelled", cancelled).
			Msg("interval changed")

		s.state.CurrentIndex = index
		s.reload("transition")
		return
	}

	target, iv, ok := s.approachingInterval()
	if !ok {
		return
	}

	dispatched := 0
	for {
		req, ok := s.recent.Pop()
		if !ok {
			break
		}
		if !s.addToCache(target, iv, req.Key, req.Priority) {
			s.recent.Push(req)
			break
		}
		dispatched++
	}
	telemetry.RecentBufferDepth.Set(float64(s.recent.Len()))

	if dispatched > 0 {
		s.logger.Debug().
			Int("interval", target).
			Int("dispatched", dispatched).
			Int("pending", s.recent.Len()).
			Msg("drained prefetch candidates")
	}
}

// GetFromCache hands out the fetch for the tile in the current interval, if
// one was cached. An entry is only ever handed out once; a failed fetch is
// reported through the returned future.
func (s *Scheduler) GetFromCache(x, y, level int) (*tile.Future, bool) {
	entry, ok := s.tiles.LookupAndRemove(s.state.CurrentIndex, tile.Key{X: x, Y: y, Level: level})
	if !ok {
		telemetry.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	telemetry.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return entry.Future, true
}

// CheckApproachingInterval prefetches the tile for the approaching interval
// when there is one and the fetcher accepts the work; otherwise the tile is
// remembered so a later tick can retry it.
func (s *Scheduler) CheckApproachingInterval(x, y, level int, priority tile.PriorityFunc) {
	key := tile.Key{X: x, Y: y, Level: level}

	if target, iv, ok := s.approachingInterval(); ok && s.addToCache(target, iv, key, priority) {
		return
	}

	dropped := s.recent.Push(state.RecentRequest{Key: key, Priority: priority})
	telemetry.PrefetchTotal.WithLabelValues("buffered").Inc()
	telemetry.RecentBufferDepth.Set(float64(s.recent.Len()))
	if dropped > 0 {
		telemetry.RecentBufferDroppedTotal.Add(float64(dropped))
		s.logger.Debug().Int("dropped", dropped).Msg("recent request buffer trimmed")
	}
}

// Clock returns the clock being followed.
func (s *Scheduler) Clock() Clock {
	return s.state.Clock
}

// SetClock switches to another clock, discarding all cached and buffered
// work, and fires the reload callback.
func (s *Scheduler) SetClock(c Clock) error {
	if c == nil {
		return ErrMissingClock
	}
	s.state.Clock = c
	s.reset("clock")
	return nil
}

// Intervals returns the interval index in use.
func (s *Scheduler) Intervals() *interval.Index {
	return s.state.Intervals
}

// SetIntervals switches to another interval index, discarding all cached
// and buffered work, and fires the reload callback.
func (s *Scheduler) SetIntervals(idx *interval.Index) error {
	if idx == nil {
		return ErrMissingIntervals
	}
	s.state.Intervals = idx
	s.reset("intervals")
	return nil
}

// CurrentInterval returns the interval containing the clock as of the most
// recent tick.
func (s *Scheduler) CurrentInterval() (interval.Interval, bool) {
	if s.state.CurrentIndex == interval.NotFound {
		return interval.Interval{}, false
	}
	return s.state.Intervals.Get(s.state.CurrentIndex), true
}

// CurrentIndex returns the current interval index or interval.NotFound.
func (s *Scheduler) CurrentIndex() int {
	return s.state.CurrentIndex
}

// ApproachingInterval reports the interval playback is about to enter.
func (s *Scheduler) ApproachingInterval() (int, interval.Interval, bool) {
	return s.approachingInterval()
}

// Pending returns the number of buffered prefetch candidates.
func (s *Scheduler) Pending() int {
	return s.recent.Len()
}

// Close cancels every cached fetch and forgets buffered candidates. The
// reload callback is not fired.
func (s *Scheduler) Close() {
	cancelled := s.tiles.ClearAll()
	s.recent.Clear()
	telemetry.RecentBufferDepth.Set(0)
	telemetry.CancelledFetchesTotal.Add(float64(cancelled))
}

// reset tears down everything after a reconfiguration and resynchronises
// the current index so the next tick does not report a second transition.
func (s *Scheduler) reset(cause string) {
	cancelled := s.tiles.ClearAll()
	s.recent.Clear()
	telemetry.RecentBufferDepth.Set(0)
	telemetry.CancelledFetchesTotal.Add(float64(cancelled))

	s.state.CurrentIndex = s.state.Intervals.IndexOf(s.state.Clock.CurrentTime())

	s.logger.Info().
		Str("cause", cause).
		Int("current", s.state.CurrentIndex).
		Int("cancelled", cancelled).
		Msg("scheduler reset")

	s.reload(cause)
}

func (s *Scheduler) reload(cause string) {
	telemetry.ReloadsTotal.WithLabelValues(cause).Inc()
	s.onReload()
}

// approachingInterval applies the lookahead rule: with playback running at
// multiplier m, the neighbouring interval in the direction of travel is
// approaching when the current interval's edge is at most lookahead
// wall-clock seconds away.
func (s *Scheduler) approachingInterval() (int, interval.Interval, bool) {
	clk := s.state.Clock
	multiplier := clk.Multiplier()
	if !clk.CanAnimate() || !clk.ShouldAnimate() || multiplier == 0 {
		return interval.NotFound, interval.Interval{}, false
	}

	current := s.state.CurrentIndex
	if current == interval.NotFound {
		return interval.NotFound, interval.Interval{}, false
	}

	now := clk.CurrentTime()
	iv := s.state.Intervals.Get(current)

	var edge time.Time
	candidate := current
	if multiplier > 0 {
		edge = iv.Stop
		candidate++
	} else {
		edge = iv.Start
		candidate--
	}

	// Both operands share a sign while the clock is inside the interval.
	secondsToEdge := edge.Sub(now).Seconds() / multiplier
	if candidate < 0 || candidate >= s.state.Intervals.Len() {
		return interval.NotFound, interval.Interval{}, false
	}
	if secondsToEdge < 0 || secondsToEdge > s.lookahead.Seconds() {
		return interval.NotFound, interval.Interval{}, false
	}

	return candidate, s.state.Intervals.Get(candidate), true
}

// addToCache asks the fetcher for the tile unless it is already cached for
// the interval. It reports false only when the fetcher declined.
func (s *Scheduler) addToCache(index int, iv interval.Interval, key tile.Key, priority tile.PriorityFunc) bool {
	issued := false
	ok := s.tiles.InsertIfAbsent(index, key, func() (tile.Entry, bool) {
		issued = true
		return s.fetcher.Fetch(tile.Request{
			Key:           key,
			Interval:      iv,
			IntervalIndex: index,
			Priority:      priority,
		})
	})

	switch {
	case !ok:
		telemetry.PrefetchTotal.WithLabelValues("throttled").Inc()
	case issued:
		telemetry.PrefetchTotal.WithLabelValues("dispatched").Inc()
	default:
		telemetry.PrefetchTotal.WithLabelValues("deduplicated").Inc()
	}
	return ok
}
