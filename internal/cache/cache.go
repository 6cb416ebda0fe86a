/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache keeps in-flight and completed tile fetches partitioned by
// interval index.
package cache

import (
	"sort"

	"github.com/friendsincode/timetile/internal/tile"
)

// TileCache maps interval index to tile key to fetch entry. At most one
// entry exists per (interval index, key). Buckets are created lazily and
// removed wholesale.
//
// TileCache is not safe for concurrent use; it is owned by the scheduling
// goroutine.
type TileCache struct {
	buckets map[int]map[tile.Key]tile.Entry
}

// New creates an empty tile cache.
func New() *TileCache {
	return &TileCache{buckets: make(map[int]map[tile.Key]tile.Entry)}
}

// LookupAndRemove removes and returns the entry for key in the given
// interval. A failure of the entry's future is the caller's to handle.
func (c *TileCache) LookupAndRemove(index int, key tile.Key) (tile.Entry, bool) {
	bucket, ok := c.buckets[index]
	if !ok {
		return tile.Entry{}, false
	}
	entry, ok := bucket[key]
	if !ok {
		return tile.Entry{}, false
	}
	delete(bucket, key)
	if len(bucket) == 0 {
		delete(c.buckets, index)
	}
	return entry, true
}

// InsertIfAbsent stores the entry produced by makeEntry unless one already
// exists for key, in which case it returns true without calling makeEntry.
// When makeEntry declines (returns false) nothing is stored and false is
// returned.
func (c *TileCache) InsertIfAbsent(index int, key tile.Key, makeEntry func() (tile.Entry, bool)) bool {
	bucket, ok := c.buckets[index]
	if ok {
		if _, exists := bucket[key]; exists {
			return true
		}
	}

	entry, ok := makeEntry()
	if !ok {
		return false
	}

	if bucket == nil {
		bucket = make(map[tile.Key]tile.Entry)
		c.buckets[index] = bucket
	}
	bucket[key] = entry
	return true
}

// ClearAndCancel cancels every entry of the interval and drops its bucket.
// It returns the number of entries cancelled.
func (c *TileCache) ClearAndCancel(index int) int {
	bucket, ok := c.buckets[index]
	if !ok {
		return 0
	}
	delete(c.buckets, index)
	for _, entry := range bucket {
		if entry.Cancel != nil {
			entry.Cancel.Cancel()
		}
	}
	return len(bucket)
}

// ClearAll cancels every entry in every bucket.
func (c *TileCache) ClearAll() int {
	n := 0
	for index := range c.buckets {
		n += c.ClearAndCancel(index)
	}
	return n
}

// Contains reports whether an entry exists without consuming it.
func (c *TileCache) Contains(index int, key tile.Key) bool {
	_, ok := c.buckets[index][key]
	return ok
}

// Len returns the number of entries held for the interval.
func (c *TileCache) Len(index int) int {
	return len(c.buckets[index])
}

// Buckets returns the interval indexes that currently hold entries, sorted.
func (c *TileCache) Buckets() []int {
	out := make([]int, 0, len(c.buckets))
	for index := range c.buckets {
		out = append(out, index)
	}
	sort.Ints(out)
	return out
}
