/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package fetch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/friendsincode/timetile/internal/tilestore"
	"github.com/friendsincode/timetile/internal/tile"
)

// Cached consults a tile store before the wrapped source and stores what
// the source returns. Concurrent loads of the same tile share one origin
// request.
type Cached struct {
	next    Source
	store   tilestore.Store
	dataset string
	ttl     time.Duration
	group   singleflight.Group
	logger  zerolog.Logger
}

// NewCached wraps next.
func NewCached(next Source, store tilestore.Store, dataset string, ttl time.Duration, logger zerolog.Logger) *Cached {
	return &Cached{
		next:    next,
		store:   store,
		dataset: dataset,
		ttl:     ttl,
		logger:  logger.With().Str("component", "fetch_cache").Logger(),
	}
}

func (c *Cached) Name() string { return c.next.Name() }

func (c *Cached) Load(ctx context.Context, req tile.Request) (tile.Result, error) {
	key := tilestore.Key(c.dataset, req.Interval.ID(), req.Key)
	if result, ok := c.store.Get(ctx, key); ok {
		result.Key = req.Key
		return result, nil
	}

	// A cancelled leader fails its followers as well; they miss and retry on
	// their next request.
	ch := c.group.DoChan(key, func() (any, error) {
		result, err := c.next.Load(ctx, req)
		if err != nil {
			return tile.Result{}, err
		}
		if err := c.store.Set(context.WithoutCancel(ctx), key, result, c.ttl); err != nil {
			c.logger.Debug().Err(err).Str("key", key).Msg("failed to store tile")
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return tile.Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return tile.Result{}, r.Err
		}
		result := r.Val.(tile.Result)
		result.Key = req.Key
		return result, nil
	}
}
