/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/timetile/internal/clock"
	"github.com/friendsincode/timetile/internal/events"
	"github.com/friendsincode/timetile/internal/fetch"
	"github.com/friendsincode/timetile/internal/player"
	"github.com/friendsincode/timetile/internal/scheduler"
	"github.com/friendsincode/timetile/internal/tile"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play a dataset back headlessly and report prefetch statistics",
	Long: "Run the playback loop without an HTTP server. After every reload the simulated " +
		"viewer requests a square grid of tiles; the report shows, per interval, how many of " +
		"those requests were served from the prefetch cache.",
	RunE: runSimulate,
}

// Simulate flags
var (
	simManifest   string
	simMultiplier float64
	simDuration   time.Duration
	simTiles      int
	simSynthetic  bool
	simLatency    time.Duration
)

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVar(&simManifest, "manifest", "", "Interval manifest (defaults to TIMETILE_MANIFEST or the catalog dataset)")
	simulateCmd.Flags().Float64Var(&simMultiplier, "multiplier", 60, "Simulation seconds per wall-clock second; negative plays backwards")
	simulateCmd.Flags().DurationVar(&simDuration, "duration", 30*time.Second, "Wall-clock length of the simulation")
	simulateCmd.Flags().IntVar(&simTiles, "tiles", 16, "Tiles the viewer requests after each reload")
	simulateCmd.Flags().BoolVar(&simSynthetic, "synthetic", false, "Generate tiles locally instead of using the configured source")
	simulateCmd.Flags().DurationVar(&simLatency, "latency", 20*time.Millisecond, "Load latency of synthetic tiles")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	load := loadConfig
	if simSynthetic {
		load = loadPartialConfig
	}
	if err := load(); err != nil {
		return err
	}
	if simTiles <= 0 {
		return errors.New("--tiles must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ds, err := loadDataset(ctx, simManifest)
	if err != nil {
		return err
	}

	var source fetch.Source
	if simSynthetic {
		source = syntheticSource(simLatency)
	} else if source, err = buildSource(ctx, ds.TileURL); err != nil {
		return err
	}

	fetcher := fetch.NewThrottled(source, fetch.ThrottledOptions{
		MaxInFlight: int64(cfg.MaxInFlight),
		Timeout:     cfg.FetchTimeout,
		Logger:      logger,
	})
	defer fetcher.Close()

	bus := events.NewBus()
	reloads := bus.Subscribe(events.EventReload)

	clockOpts := clockOptions(ds.Index, simMultiplier)
	clockOpts.Paused = false
	p, err := player.New(clock.NewPlayback(clockOpts), ds.Index, fetcher, player.Options{
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

	runCtx, cancel := context.WithTimeout(ctx, simDuration)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = p.Run(runCtx)
		close(done)
	}()

	logger.Info().
		Str("dataset", ds.Name).
		Float64("multiplier", simMultiplier).
		Dur("duration", simDuration).
		Int("tiles", simTiles).
		Msg("simulation started")

	keys := gridKeys(simTiles)
	stats := newSimStats()

	for running := true; running; {
		select {
		case <-runCtx.Done():
			running = false
		case <-reloads:
			stats.reloads++
			for _, k := range keys {
				h, err := p.Tile(runCtx, k, nil)
				stats.record(h, err)
			}
		}
	}
	<-done

	stats.write(cmd.OutOrStdout())
	return nil
}

// syntheticSource produces small text tiles after latency.
func syntheticSource(latency time.Duration) fetch.Source {
	return fetch.SourceFunc{
		SourceName: "synthetic",
		Fn: func(ctx context.Context, req tile.Request) (tile.Result, error) {
			timer := time.NewTimer(latency)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return tile.Result{}, ctx.Err()
			}
			return tile.Result{
				Key:         req.Key,
				Data:        []byte(req.Key.String() + "@" + req.Interval.ID()),
				ContentType: "text/plain",
			}, nil
		},
	}
}

// gridKeys returns n keys covering the top-left corner of the smallest zoom
// level whose grid holds a square of n tiles.
func gridKeys(n int) []tile.Key {
	side := int(math.Ceil(math.Sqrt(float64(n))))
	level := 0
	for 1<<level < side {
		level++
	}

	keys := make([]tile.Key, 0, n)
	for y := 0; y < side && len(keys) < n; y++ {
		for x := 0; x < side && len(keys) < n; x++ {
			keys = append(keys, tile.Key{X: x, Y: y, Level: level})
		}
	}
	return keys
}

type intervalStats struct {
	prefetched int
	direct     int
}

type simStats struct {
	order      []string
	intervals  map[string]*intervalStats
	reloads    int
	noInterval int
	throttled  int
}

func newSimStats() *simStats {
	return &simStats{intervals: make(map[string]*intervalStats)}
}

func (s *simStats) record(h player.Handle, err error) {
	switch {
	case errors.Is(err, player.ErrNoInterval):
		s.noInterval++
		return
	case errors.Is(err, player.ErrThrottled):
		s.throttled++
		return
	case err != nil:
		return
	}

	id := h.Interval.ID()
	st, ok := s.intervals[id]
	if !ok {
		st = &intervalStats{}
		s.intervals[id] = st
		s.order = append(s.order, id)
	}
	if h.Prefetched {
		st.prefetched++
	} else {
		st.direct++
	}
}

func (s *simStats) write(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INTERVAL\tPREFETCHED\tDIRECT\tHIT RATE")
	for _, id := range s.order {
		st := s.intervals[id]
		total := st.prefetched + st.direct
		fmt.Fprintf(w, "%s\t%d\t%d\t%.0f%%\n", id, st.prefetched, st.direct, 100*float64(st.prefetched)/float64(total))
	}
	w.Flush()
	fmt.Fprintf(out, "\nreloads: %d  throttled: %d  outside intervals: %d\n", s.reloads, s.throttled, s.noInterval)
}
