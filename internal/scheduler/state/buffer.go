/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package state holds the scheduler's bounded record of recently requested
// tiles that could not be prefetched when they were asked for.
package state

import "github.com/friendsincode/timetile/internal/tile"

// Defaults for the recent request buffer.
const (
	DefaultCapacity = 512
	DefaultTrim     = 256
)

// RecentRequest is a prefetch candidate waiting for an approaching interval.
type RecentRequest struct {
	Key      tile.Key
	Priority tile.PriorityFunc
}

// Buffer is a bounded queue of recent requests. Appends go to the tail and
// draining pops from the tail, so the newest candidates are retried first.
// When an append finds the buffer at capacity, the oldest trim entries are
// dropped first.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	items    []RecentRequest
	capacity int
	trim     int
}

// NewBuffer creates a buffer. Non-positive arguments select the defaults;
// trim is clamped to capacity.
func NewBuffer(capacity, trim int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if trim <= 0 {
		trim = DefaultTrim
	}
	if trim > capacity {
		trim = capacity
	}
	return &Buffer{
		items:    make([]RecentRequest, 0, 64),
		capacity: capacity,
		trim:     trim,
	}
}

// Push appends a request, dropping the oldest entries first if the buffer
// is full. It returns how many entries were dropped.
func (b *Buffer) Push(req RecentRequest) int {
	dropped := 0
	if len(b.items) >= b.capacity {
		dropped = b.trim
		n := copy(b.items, b.items[b.trim:])
		clear(b.items[n:])
		b.items = b.items[:n]
	}
	b.items = append(b.items, req)
	return dropped
}

// Pop removes and returns the newest request.
func (b *Buffer) Pop() (RecentRequest, bool) {
	if len(b.items) == 0 {
		return RecentRequest{}, false
	}
	last := len(b.items) - 1
	req := b.items[last]
	b.items[last] = RecentRequest{}
	b.items = b.items[:last]
	return req, true
}

// Len returns the number of buffered requests.
func (b *Buffer) Len() int {
	return len(b.items)
}

// Clear drops every buffered request.
func (b *Buffer) Clear() {
	clear(b.items)
	b.items = b.items[:0]
}

// Snapshot returns the buffered requests from oldest to newest.
func (b *Buffer) Snapshot() []RecentRequest {
	out := make([]RecentRequest, len(b.items))
	copy(out, b.items)
	return out
}
