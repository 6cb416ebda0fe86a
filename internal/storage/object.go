/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage provides the object stores tile sources read from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("storage: object not found")

// ObjectStore abstracts object storage operations.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Config selects and configures an object store backend.
type Config struct {
	Backend string // "s3", "fs" or "memory"

	// S3
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool

	// fs
	Root string
}

// Open builds the store named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (ObjectStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "s3":
		store, err := NewS3(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "fs", "filesystem":
		store, err := NewFilesystem(cfg.Root)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

// cleanKey strips leading slashes so keys are always bucket-relative.
func cleanKey(key string) string {
	return strings.TrimLeft(key, "/")
}
