/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package tilestore keeps completed tiles so a refetch for the same interval
// can skip the origin.
package tilestore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/timetile/internal/tile"
)

// DefaultTTL is how long a completed tile is kept.
const DefaultTTL = 10 * time.Minute

// KeyPrefix namespaces tile keys in Redis.
const KeyPrefix = "timetile:tile:" // + dataset:interval:x-y-level

// Store is a completed-tile store. Get reports a miss with false; a store
// that is unavailable behaves as if empty.
type Store interface {
	Get(ctx context.Context, key string) (tile.Result, bool)
	Set(ctx context.Context, key string, result tile.Result, ttl time.Duration) error
	InvalidateDataset(ctx context.Context, dataset string) error
}

// Key builds the store key for one tile of one interval.
func Key(dataset, intervalID string, k tile.Key) string {
	return fmt.Sprintf("%s%s:%s:%s", KeyPrefix, dataset, intervalID, k)
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.Mutex
	now   func() time.Time
	tiles map[string]memoryEntry
}

type memoryEntry struct {
	result  tile.Result
	expires time.Time
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{now: time.Now, tiles: make(map[string]memoryEntry)}
}

func (m *Memory) Get(ctx context.Context, key string) (tile.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tiles[key]
	if !ok {
		return tile.Result{}, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.tiles, key)
		return tile.Result{}, false
	}
	return e.result, true
}

func (m *Memory) Set(ctx context.Context, key string, result tile.Result, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.tiles[key] = memoryEntry{result: result, expires: expires}
	return nil
}

func (m *Memory) InvalidateDataset(ctx context.Context, dataset string) error {
	prefix := KeyPrefix + dataset + ":"

	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.tiles {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(m.tiles, key)
		}
	}
	return nil
}
