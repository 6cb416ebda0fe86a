/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package tile defines the vocabulary shared by the scheduler and the fetch
// collaborators: tile keys, fetch requests, results and their handles.
package tile

import (
	"fmt"

	"github.com/friendsincode/timetile/internal/interval"
)

// Key identifies one tile of a tiled dataset.
type Key struct {
	X     int
	Y     int
	Level int
}

// String renders the key as "x-y-level".
func (k Key) String() string {
	return fmt.Sprintf("%d-%d-%d", k.X, k.Y, k.Level)
}

// PriorityFunc reports the current priority of a pending request. Lower
// values are more urgent. It may be nil.
type PriorityFunc func() float64

// Request asks a Fetcher for one tile of one interval.
type Request struct {
	Key           Key
	Interval      interval.Interval
	IntervalIndex int
	Priority      PriorityFunc
}

// Result is a fetched tile payload. The scheduler never inspects Data.
type Result struct {
	Key         Key
	Data        []byte
	ContentType string
}

// CancelHandle stops in-flight work on a best-effort basis.
type CancelHandle interface {
	Cancel()
}

// CancelFunc adapts a function to CancelHandle.
type CancelFunc func()

// Cancel calls f.
func (f CancelFunc) Cancel() {
	if f != nil {
		f()
	}
}

// Entry pairs an in-flight or completed fetch with its cancellation handle.
type Entry struct {
	Future *Future
	Cancel CancelHandle
}

// Fetcher starts a tile fetch without blocking. It returns false when it
// declines to start work right now (throttled); nothing must be cached then.
type Fetcher interface {
	Fetch(req Request) (Entry, bool)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(req Request) (Entry, bool)

// Fetch calls f.
func (f FetcherFunc) Fetch(req Request) (Entry, bool) {
	return f(req)
}
