/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/timetile/internal/config"
	"github.com/friendsincode/timetile/internal/logbuffer"
	"github.com/friendsincode/timetile/internal/logging"
	"github.com/friendsincode/timetile/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
	logBuf *logbuffer.Buffer
)

var rootCmd = &cobra.Command{
	Use:   "timetile",
	Short: "timetile - time-windowed tile cache and prefetch scheduler",
	Long: "timetile serves map tiles for time-dynamic datasets, prefetching the tiles of " +
		"the interval the playback clock is about to enter.",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "timetile", version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates configuration (called by commands that need
// all of it).
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging()
	return nil
}

// loadPartialConfig reads configuration without validating it, for commands
// that only touch the catalog or a manifest.
func loadPartialConfig() error {
	var err error
	cfg, err = config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging()
	return nil
}

func setupLogging() {
	logBuf = logbuffer.New(logbuffer.DefaultCapacity)
	logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(logBuf))
}
