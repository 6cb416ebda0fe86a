/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/friendsincode/timetile/internal/telemetry"
	"github.com/friendsincode/timetile/internal/tile"
)

// DefaultMaxInFlight bounds concurrent loads when no limit is configured.
const DefaultMaxInFlight = 16

// ThrottledOptions tunes a Throttled fetcher.
type ThrottledOptions struct {
	MaxInFlight int64
	// Timeout bounds a single load. Zero means no timeout.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Throttled implements tile.Fetcher on top of a Source. It starts each load
// on its own goroutine and declines new work once MaxInFlight loads are
// running.
type Throttled struct {
	source  Source
	sem     *semaphore.Weighted
	limit   int64
	timeout time.Duration
	logger  zerolog.Logger

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active int64
}

// NewThrottled wraps source.
func NewThrottled(source Source, opts ThrottledOptions) *Throttled {
	limit := opts.MaxInFlight
	if limit <= 0 {
		limit = DefaultMaxInFlight
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Throttled{
		source:  source,
		sem:     semaphore.NewWeighted(limit),
		limit:   limit,
		timeout: opts.Timeout,
		logger:  opts.Logger.With().Str("component", "fetch").Str("source", source.Name()).Logger(),
		ctx:     ctx,
		stop:    stop,
	}
}

// Fetch starts loading req. It never blocks; false means the fetcher is
// saturated and the caller should try again later.
func (t *Throttled) Fetch(req tile.Request) (tile.Entry, bool) {
	if t.ctx.Err() != nil || !t.sem.TryAcquire(1) {
		telemetry.FetchesTotal.WithLabelValues(t.source.Name(), "throttled").Inc()
		return tile.Entry{}, false
	}

	ctx, cancel := context.WithCancel(t.ctx)
	future := tile.NewFuture()
	requestID := uuid.NewString()

	t.track(1)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.track(-1)
		defer t.sem.Release(1)
		defer cancel()

		result, err := t.load(ctx, requestID, req)
		future.Resolve(result, err)
	}()

	return tile.Entry{Future: future, Cancel: tile.CancelFunc(cancel)}, true
}

func (t *Throttled) load(ctx context.Context, requestID string, req tile.Request) (tile.Result, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	ctx, span := telemetry.StartFetchSpan(ctx, telemetry.TileAttributes{
		Source:     t.source.Name(),
		X:          req.Key.X,
		Y:          req.Key.Y,
		Level:      req.Key.Level,
		Interval:   req.Interval.ID(),
		IntervalIx: req.IntervalIndex,
		RequestID:  requestID,
	})

	start := time.Now()
	result, err := t.source.Load(ctx, req)
	telemetry.FetchDuration.WithLabelValues(t.source.Name()).Observe(time.Since(start).Seconds())
	telemetry.EndSpan(span, err)

	outcome := "ok"
	switch {
	case err == nil:
		result.Key = req.Key
	case errors.Is(err, context.Canceled):
		outcome = "cancelled"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	telemetry.FetchesTotal.WithLabelValues(t.source.Name(), outcome).Inc()

	event := t.logger.Debug()
	if outcome == "error" {
		event = t.logger.Warn().Err(err)
	}
	event.
		Str("request_id", requestID).
		Stringer("tile", req.Key).
		Int("interval", req.IntervalIndex).
		Str("outcome", outcome).
		Dur("elapsed", time.Since(start)).
		Msg("tile fetch finished")

	return result, err
}

func (t *Throttled) track(delta int64) {
	t.mu.Lock()
	t.active += delta
	t.mu.Unlock()
	telemetry.FetchesInFlight.Add(float64(delta))
}

// InFlight returns the number of running loads.
func (t *Throttled) InFlight() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Limit returns the configured concurrency bound.
func (t *Throttled) Limit() int64 {
	return t.limit
}

// Close cancels every running load, waits for them to finish and declines
// all later fetches.
func (t *Throttled) Close() {
	t.stop()
	t.wg.Wait()
}
