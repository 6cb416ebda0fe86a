/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/friendsincode/timetile/internal/storage"
	"github.com/friendsincode/timetile/internal/tile"
)

// ObjectSource reads tiles from an object store laid out as
// <prefix>/<interval-id>/<level>/<x>/<y>.
type ObjectSource struct {
	Store  storage.ObjectStore
	Prefix string
	// ContentType is reported for every tile; empty means sniff the data.
	ContentType string
}

func (s *ObjectSource) Name() string { return "object" }

// ObjectKey returns the store key for req.
func (s *ObjectSource) ObjectKey(req tile.Request) string {
	return path.Join(s.Prefix, req.Interval.ID(),
		fmt.Sprint(req.Key.Level), fmt.Sprint(req.Key.X), fmt.Sprint(req.Key.Y))
}

func (s *ObjectSource) Load(ctx context.Context, req tile.Request) (tile.Result, error) {
	key := s.ObjectKey(req)
	data, err := s.Store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return tile.Result{}, fmt.Errorf("object %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return tile.Result{}, err
	}

	contentType := s.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return tile.Result{Key: req.Key, Data: data, ContentType: contentType}, nil
}
