/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package fetch provides the tile fetchers the scheduler drives: a throttled
// asynchronous front end and the sources it loads tiles from.
package fetch

import (
	"context"
	"errors"

	"github.com/friendsincode/timetile/internal/tile"
)

var (
	// ErrNotFound means the origin has no tile for the request.
	ErrNotFound = errors.New("fetch: tile not found")
	// ErrUnexpectedStatus wraps non-success HTTP responses.
	ErrUnexpectedStatus = errors.New("fetch: unexpected status")
)

// Source loads one tile synchronously. Load must return promptly once ctx is
// cancelled.
type Source interface {
	Name() string
	Load(ctx context.Context, req tile.Request) (tile.Result, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc struct {
	SourceName string
	Fn         func(ctx context.Context, req tile.Request) (tile.Result, error)
}

func (s SourceFunc) Name() string { return s.SourceName }

func (s SourceFunc) Load(ctx context.Context, req tile.Request) (tile.Result, error) {
	return s.Fn(ctx, req)
}
