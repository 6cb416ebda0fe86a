/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/friendsincode/timetile/internal/catalog"
	"github.com/friendsincode/timetile/internal/clock"
	"github.com/friendsincode/timetile/internal/config"
	"github.com/friendsincode/timetile/internal/db"
	"github.com/friendsincode/timetile/internal/eventbus"
	"github.com/friendsincode/timetile/internal/events"
	"github.com/friendsincode/timetile/internal/fetch"
	"github.com/friendsincode/timetile/internal/interval"
	"github.com/friendsincode/timetile/internal/server"
	"github.com/friendsincode/timetile/internal/storage"
	"github.com/friendsincode/timetile/internal/tilestore"
)

var errNoIntervals = errors.New("set TIMETILE_MANIFEST (or --manifest) or TIMETILE_DATASET")

// dataset is what the serve and simulate commands play back.
type dataset struct {
	Name    string
	TileURL string
	Index   *interval.Index
}

// loadDataset reads the manifest when one is named, otherwise the configured
// catalog dataset. TIMETILE_TILE_URL overrides the dataset's template.
func loadDataset(ctx context.Context, manifest string) (*dataset, error) {
	if manifest == "" {
		manifest = cfg.Manifest
	}

	var ds dataset
	switch {
	case manifest != "":
		m, err := interval.LoadManifestFile(manifest)
		if err != nil {
			return nil, err
		}
		idx, err := m.Index()
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", manifest, err)
		}
		ds = dataset{Name: m.Dataset, TileURL: m.TileURL, Index: idx}
		if ds.Name == "" {
			ds.Name = cfg.Dataset
		}

	case cfg.Dataset != "":
		database, err := db.Connect(cfg)
		if err != nil {
			return nil, err
		}
		defer db.Close(database)
		if err := catalog.Migrate(database); err != nil {
			return nil, err
		}
		record, idx, err := catalog.New(database, logger).Load(ctx, cfg.Dataset)
		if err != nil {
			return nil, err
		}
		ds = dataset{Name: record.Name, TileURL: record.TileURL, Index: idx}

	default:
		return nil, errNoIntervals
	}

	if cfg.TileURL != "" {
		ds.TileURL = cfg.TileURL
	}
	if ds.Name == "" {
		ds.Name = "default"
	}
	return &ds, nil
}

// buildSource returns the configured tile origin.
func buildSource(ctx context.Context, tileURL string) (fetch.Source, error) {
	switch cfg.TileSource {
	case config.TileSourceHTTP:
		if tileURL == "" {
			return nil, errors.New("no tile URL: set TIMETILE_TILE_URL or tile_url in the manifest")
		}
		return fetch.NewHTTPSource(tileURL, cfg.FetchTimeout), nil
	case config.TileSourceS3, config.TileSourceFS:
		store, err := storage.Open(ctx, storage.Config{
			Backend:         cfg.TileSource,
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
			Root:            cfg.TileRoot,
		})
		if err != nil {
			return nil, fmt.Errorf("open %s storage: %w", cfg.TileSource, err)
		}
		return &fetch.ObjectSource{Store: store, Prefix: cfg.TilePrefix, ContentType: cfg.TileContentType}, nil
	default:
		return nil, fmt.Errorf("unsupported tile source %q", cfg.TileSource)
	}
}

// buildTileStore returns the Redis store when configured, falling back to
// process memory when Redis is unset or unreachable.
func buildTileStore() (tilestore.Store, func() error) {
	if cfg.RedisAddr == "" {
		return tilestore.NewMemory(), func() error { return nil }
	}

	storeCfg := tilestore.DefaultConfig()
	storeCfg.RedisAddr = cfg.RedisAddr
	storeCfg.RedisPassword = cfg.RedisPassword
	storeCfg.RedisDB = cfg.RedisDB
	store, err := tilestore.NewRedis(storeCfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("tile store initialization failed, keeping tiles in memory")
		return tilestore.NewMemory(), func() error { return nil }
	}
	return store, store.Close
}

// buildEventBus returns the in-process bus or one bridged over NATS or Redis.
func buildEventBus() (server.EventBus, func() error, error) {
	nodeID := cfg.InstanceID
	if nodeID == "" {
		nodeID = eventbus.NodeID()
	}

	var transport eventbus.Transport
	switch cfg.EventTransport {
	case config.EventTransportNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.Token = cfg.NATSToken
		natsCfg.Name = "timetile-" + nodeID
		t, err := eventbus.NewNATSTransport(natsCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		transport = t
	case config.EventTransportRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		t, err := eventbus.NewRedisTransport(redisCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		transport = t
	default:
		return events.NewBus(), func() error { return nil }, nil
	}

	bus := eventbus.New(transport, nodeID, logger)
	logger.Info().Str("transport", transport.Name()).Str("node", nodeID).Msg("distributed event bus enabled")
	return bus, bus.Close, nil
}

// clockOptions starts the clock at TIMETILE_START_TIME or the first
// interval, bounded by the index's span.
func clockOptions(idx *interval.Index, multiplier float64) clock.Options {
	start, stop, _ := idx.Span()
	current := cfg.StartTime
	if current.IsZero() {
		current = start
	}

	rng := clock.Loop
	switch cfg.ClockRange {
	case "unbounded":
		rng = clock.Unbounded
	case "clamped":
		rng = clock.Clamped
	}

	return clock.Options{
		Start:      start,
		Stop:       stop,
		Current:    current,
		Multiplier: multiplier,
		Range:      rng,
		Paused:     cfg.Paused,
	}
}
