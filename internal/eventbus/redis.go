/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisTransport carries events over Redis pub/sub.
type RedisTransport struct {
	client *redis.Client
	logger zerolog.Logger
	wg     sync.WaitGroup
}

// NewRedisTransport connects to Redis and verifies the connection.
func NewRedisTransport(cfg RedisConfig, logger zerolog.Logger) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	logger = logger.With().Str("component", "eventbus_redis").Logger()
	logger.Info().Str("addr", cfg.Addr).Msg("Redis event transport connected")
	return &RedisTransport{client: client, logger: logger}, nil
}

func (t *RedisTransport) Name() string { return "redis" }

func (t *RedisTransport) Publish(ctx context.Context, subject string, data []byte) error {
	return t.client.Publish(ctx, subject, data).Err()
}

func (t *RedisTransport) Subscribe(subject string, handler func(data []byte)) (func() error, error) {
	pubsub := t.client.Subscribe(context.Background(), subject)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for msg := range pubsub.Channel() {
			handler([]byte(msg.Payload))
		}
		t.logger.Debug().Str("subject", subject).Msg("redis subscription closed")
	}()

	return pubsub.Close, nil
}

// Close waits for receivers after their subscriptions were closed and
// closes the client.
func (t *RedisTransport) Close() error {
	err := t.client.Close()
	t.wg.Wait()
	return err
}
