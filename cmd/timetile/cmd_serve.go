/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/timetile/internal/clock"
	"github.com/friendsincode/timetile/internal/fetch"
	"github.com/friendsincode/timetile/internal/player"
	"github.com/friendsincode/timetile/internal/scheduler"
	"github.com/friendsincode/timetile/internal/server"
	"github.com/friendsincode/timetile/internal/telemetry"
	"github.com/friendsincode/timetile/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tile server",
	Long:  "Start the playback loop, the tile HTTP API and the metrics endpoint",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.String()).Msg("timetile starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "timetile",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	ds, err := loadDataset(ctx, "")
	if err != nil {
		return err
	}
	logger.Info().Str("dataset", ds.Name).Int("intervals", ds.Index.Len()).Msg("intervals loaded")

	source, err := buildSource(ctx, ds.TileURL)
	if err != nil {
		return err
	}
	store, closeStore := buildTileStore()
	defer closeStore()

	fetcher := fetch.NewThrottled(fetch.NewCached(source, store, ds.Name, cfg.TileTTL, logger), fetch.ThrottledOptions{
		MaxInFlight: int64(cfg.MaxInFlight),
		Timeout:     cfg.FetchTimeout,
		Logger:      logger,
	})
	defer fetcher.Close()

	bus, closeBus, err := buildEventBus()
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer closeBus()

	p, err := player.New(clock.NewPlayback(clockOptions(ds.Index, cfg.Multiplier)), ds.Index, fetcher, player.Options{
		Tick: cfg.TickInterval,
		Scheduler: scheduler.Options{
			Lookahead:      cfg.Lookahead,
			BufferCapacity: cfg.BufferCapacity,
			BufferTrim:     cfg.BufferTrim,
		},
		Events: bus,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("initialize player: %w", err)
	}

	srv := server.New(server.Options{
		Addr:        cfg.HTTPAddr(),
		Player:      p,
		Bus:         bus,
		LogBuffer:   logBuf,
		TileTimeout: cfg.FetchTimeout,
		ServiceName: "timetile-api",
		Logger:      logger,
	})

	playerDone := make(chan error, 1)
	go func() { playerDone <- p.Run(ctx) }()

	httpServer := srv.HTTPServer()
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsBind != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           telemetry.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.MetricsBind).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(timeoutCtx); err != nil {
			logger.Error().Err(err).Msg("metrics shutdown failed")
		}
	}
	if err := <-playerDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("player stopped with error")
	}

	logger.Info().Msg("timetile stopped")
	return nil
}
