/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package tile

import (
	"context"
	"sync"
)

// Future is the eventual outcome of a fetch. It is resolved exactly once and
// may be waited on from any goroutine.
type Future struct {
	once   sync.Once
	done   chan struct{}
	result Result
	err    error
}

// NewFuture returns an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that is already complete.
func Resolved(result Result, err error) *Future {
	f := NewFuture()
	f.Resolve(result, err)
	return f
}

// Resolve completes the future. Only the first call has an effect; it
// reports whether this call won.
func (f *Future) Resolve(result Result, err error) bool {
	won := false
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)
		won = true
	})
	return won
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Peek returns the outcome without blocking; ok is false while pending.
func (f *Future) Peek() (result Result, err error, ok bool) {
	select {
	case <-f.done:
		return f.result, f.err, true
	default:
		return Result{}, nil, false
	}
}
