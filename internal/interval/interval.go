/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package interval holds the ordered, non-overlapping time intervals a
// time-dynamic dataset is partitioned into.
package interval

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// NotFound is returned by IndexOf when no interval contains the time.
const NotFound = -1

var (
	// ErrEmptyInterval is returned for an interval whose stop is not after its start.
	ErrEmptyInterval = errors.New("interval stop must be after start")
	// ErrUnordered is returned when intervals overlap or are not sorted by start.
	ErrUnordered = errors.New("intervals must be ordered by start and must not overlap")
)

// Interval is a half-open time range [Start, Stop) with its dataset payload.
type Interval struct {
	Start   time.Time
	Stop    time.Time
	Payload map[string]any
}

// Contains reports whether t falls inside the interval.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.Stop)
}

// Duration returns the length of the interval.
func (iv Interval) Duration() time.Duration {
	return iv.Stop.Sub(iv.Start)
}

// ID returns the payload "id" when set, otherwise the start time in RFC 3339.
func (iv Interval) ID() string {
	if id, ok := iv.Payload["id"].(string); ok && id != "" {
		return id
	}
	return iv.Start.UTC().Format(time.RFC3339)
}

// Index is an immutable, ordered collection of intervals.
type Index struct {
	intervals []Interval
}

// New validates and wraps the intervals. The slice is copied.
func New(intervals []Interval) (*Index, error) {
	out := make([]Interval, len(intervals))
	copy(out, intervals)

	for i, iv := range out {
		if !iv.Stop.After(iv.Start) {
			return nil, fmt.Errorf("interval %d [%s, %s): %w", i, iv.Start.Format(time.RFC3339), iv.Stop.Format(time.RFC3339), ErrEmptyInterval)
		}
		if i > 0 && iv.Start.Before(out[i-1].Stop) {
			return nil, fmt.Errorf("interval %d starts before interval %d stops: %w", i, i-1, ErrUnordered)
		}
	}

	return &Index{intervals: out}, nil
}

// MustNew is New that panics on invalid input. Intended for tests and literals.
func MustNew(intervals []Interval) *Index {
	idx, err := New(intervals)
	if err != nil {
		panic(err)
	}
	return idx
}

// IndexOf returns the index of the interval containing t, or NotFound when t
// is before the first interval, at or after the last stop, or in a gap.
func (x *Index) IndexOf(t time.Time) int {
	if x == nil {
		return NotFound
	}
	i := sort.Search(len(x.intervals), func(i int) bool {
		return x.intervals[i].Stop.After(t)
	})
	if i < len(x.intervals) && x.intervals[i].Contains(t) {
		return i
	}
	return NotFound
}

// Get returns the interval at index i. It panics when i is out of range;
// callers obtain indexes from IndexOf or check Len first.
func (x *Index) Get(i int) Interval {
	if i < 0 || i >= len(x.intervals) {
		panic(fmt.Sprintf("interval: index %d out of range [0, %d)", i, len(x.intervals)))
	}
	return x.intervals[i]
}

// Len returns the number of intervals.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.intervals)
}

// Intervals returns a copy of the underlying intervals.
func (x *Index) Intervals() []Interval {
	out := make([]Interval, len(x.intervals))
	copy(out, x.intervals)
	return out
}

// Span returns the start of the first and the stop of the last interval.
func (x *Index) Span() (time.Time, time.Time, bool) {
	if x.Len() == 0 {
		return time.Time{}, time.Time{}, false
	}
	return x.intervals[0].Start, x.intervals[len(x.intervals)-1].Stop, true
}
