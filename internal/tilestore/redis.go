/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package tilestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/timetile/internal/telemetry"
	"github.com/friendsincode/timetile/internal/tile"
)

// Config contains Redis store configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Fallback behavior
	DisableOnError bool // If true, stop using Redis after the first error
}

// DefaultConfig returns default store configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		DisableOnError: true,
	}
}

// cachedTile is the JSON document stored per tile.
type cachedTile struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Redis provides a Redis-backed tile store with graceful fallback.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// NewRedis connects to Redis. An unreachable server yields a disabled store
// rather than an error.
func NewRedis(cfg Config, logger zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis tile store unavailable, running without it")
		_ = client.Close()
		return &Redis{
			logger:   logger.With().Str("component", "tilestore").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis tile store initialized")

	return &Redis{
		client: client,
		logger: logger.With().Str("component", "tilestore").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// IsAvailable returns true if the store is operational.
func (r *Redis) IsAvailable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.disabled && r.client != nil
}

// handleError applies the circuit breaker.
func (r *Redis) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	r.logger.Debug().Err(err).Str("operation", operation).Msg("tile store operation failed")

	if r.config.DisableOnError {
		r.mu.Lock()
		r.disabled = true
		r.mu.Unlock()
		r.logger.Warn().Msg("disabling tile store due to Redis error")
	}
}

func (r *Redis) Get(ctx context.Context, key string) (tile.Result, bool) {
	if !r.IsAvailable() {
		return tile.Result{}, false
	}

	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		telemetry.TileStoreOpsTotal.WithLabelValues("get", "miss").Inc()
		return tile.Result{}, false
	}
	if err != nil {
		telemetry.TileStoreOpsTotal.WithLabelValues("get", "error").Inc()
		r.handleError(err, "get")
		return tile.Result{}, false
	}

	var cached cachedTile
	if err := json.Unmarshal(data, &cached); err != nil {
		r.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached tile")
		return tile.Result{}, false
	}

	telemetry.TileStoreOpsTotal.WithLabelValues("get", "hit").Inc()
	return tile.Result{Data: cached.Data, ContentType: cached.ContentType}, true
}

func (r *Redis) Set(ctx context.Context, key string, result tile.Result, ttl time.Duration) error {
	if !r.IsAvailable() {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	data, err := json.Marshal(cachedTile{ContentType: result.ContentType, Data: result.Data})
	if err != nil {
		return fmt.Errorf("marshal tile: %w", err)
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		telemetry.TileStoreOpsTotal.WithLabelValues("set", "error").Inc()
		r.handleError(err, "set")
		return err
	}
	telemetry.TileStoreOpsTotal.WithLabelValues("set", "ok").Inc()
	return nil
}

// InvalidateDataset deletes every stored tile of a dataset.
func (r *Redis) InvalidateDataset(ctx context.Context, dataset string) error {
	if !r.IsAvailable() {
		return nil
	}

	// SCAN rather than KEYS so a large keyspace does not block Redis.
	pattern := KeyPrefix + dataset + ":*"
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			r.handleError(err, "scan")
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				r.handleError(err, "delete_batch")
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	r.logger.Debug().Str("dataset", dataset).Msg("invalidated dataset tiles")
	return nil
}
