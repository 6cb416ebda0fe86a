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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/timetile/internal/catalog"
	"github.com/friendsincode/timetile/internal/db"
	"github.com/friendsincode/timetile/internal/interval"
)

var intervalsCmd = &cobra.Command{
	Use:   "intervals",
	Short: "List the intervals of a manifest or catalog dataset",
	RunE:  runIntervalsList,
}

var intervalsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a manifest's intervals into the catalog database",
	Long:  "Replace the intervals of a catalog dataset with those described by a YAML manifest",
	RunE:  runIntervalsImport,
}

var intervalsDatasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List catalog datasets",
	RunE:  runIntervalsDatasets,
}

var intervalsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a catalog dataset and its intervals",
	RunE:  runIntervalsDelete,
}

// Intervals flags
var (
	intervalsManifest string
	intervalsDataset  string
	intervalsTileURL  string
)

func init() {
	rootCmd.AddCommand(intervalsCmd)
	intervalsCmd.AddCommand(intervalsImportCmd)
	intervalsCmd.AddCommand(intervalsDatasetsCmd)
	intervalsCmd.AddCommand(intervalsDeleteCmd)

	intervalsCmd.PersistentFlags().StringVar(&intervalsManifest, "manifest", "", "Path to an interval manifest (YAML)")
	intervalsCmd.PersistentFlags().StringVar(&intervalsDataset, "dataset", "", "Catalog dataset name (defaults to TIMETILE_DATASET or the manifest's dataset)")

	intervalsImportCmd.Flags().StringVar(&intervalsTileURL, "tile-url", "", "Tile URL template stored with the dataset (defaults to the manifest's)")
	intervalsImportCmd.MarkFlagRequired("manifest")
}

func runIntervalsList(cmd *cobra.Command, args []string) error {
	if err := loadPartialConfig(); err != nil {
		return err
	}
	if intervalsDataset != "" {
		cfg.Dataset = intervalsDataset
	}

	ds, err := loadDataset(cmd.Context(), intervalsManifest)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "dataset %s (%d intervals)\n", ds.Name, ds.Index.Len())
	if ds.TileURL != "" {
		fmt.Fprintf(out, "tiles   %s\n", ds.TileURL)
	}
	fmt.Fprintln(out)
	writeIntervals(out, ds.Index)
	return nil
}

func writeIntervals(out io.Writer, idx *interval.Index) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tID\tSTART\tSTOP\tDURATION")
	for i, iv := range idx.Intervals() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, iv.ID(),
			iv.Start.UTC().Format(time.RFC3339), iv.Stop.UTC().Format(time.RFC3339), iv.Duration())
	}
	w.Flush()
}

func runIntervalsImport(cmd *cobra.Command, args []string) error {
	if err := loadPartialConfig(); err != nil {
		return err
	}

	m, err := interval.LoadManifestFile(intervalsManifest)
	if err != nil {
		return err
	}
	idx, err := m.Index()
	if err != nil {
		return fmt.Errorf("manifest %s: %w", intervalsManifest, err)
	}

	name := firstNonEmpty(intervalsDataset, m.Dataset, cfg.Dataset)
	if name == "" {
		return errors.New("dataset name required: pass --dataset or set dataset in the manifest")
	}
	tileURL := firstNonEmpty(intervalsTileURL, m.TileURL)

	cat, closeDB, err := openCatalog()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	ds, err := cat.Import(ctx, name, tileURL, idx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d intervals into dataset %s (%s)\n", idx.Len(), ds.Name, ds.ID)
	invalidateTiles(ctx, ds.Name)
	return nil
}

func runIntervalsDatasets(cmd *cobra.Command, args []string) error {
	if err := loadPartialConfig(); err != nil {
		return err
	}
	cat, closeDB, err := openCatalog()
	if err != nil {
		return err
	}
	defer closeDB()

	datasets, err := cat.Datasets(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tTILE URL\tUPDATED")
	for _, ds := range datasets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ds.Name, ds.ID, ds.TileURL, ds.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

func runIntervalsDelete(cmd *cobra.Command, args []string) error {
	if err := loadPartialConfig(); err != nil {
		return err
	}
	name := firstNonEmpty(intervalsDataset, cfg.Dataset)
	if name == "" {
		return errors.New("dataset name required: pass --dataset")
	}

	cat, closeDB, err := openCatalog()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := cat.Delete(cmd.Context(), name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted dataset %s\n", name)
	invalidateTiles(cmd.Context(), name)
	return nil
}

// invalidateTiles drops stored tiles of a dataset whose intervals changed.
// Interval IDs are reused across imports, so stale tiles would otherwise be
// served under the new intervals.
func invalidateTiles(ctx context.Context, name string) {
	store, closeStore := buildTileStore()
	defer closeStore()
	if err := store.InvalidateDataset(ctx, name); err != nil {
		logger.Warn().Err(err).Str("dataset", name).Msg("failed to invalidate stored tiles")
	}
}

// openCatalog connects to the configured database and migrates the catalog.
func openCatalog() (*catalog.Catalog, func(), error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := catalog.Migrate(database); err != nil {
		db.Close(database)
		return nil, nil, err
	}
	db.UpdateConnectionMetrics(database)
	return catalog.New(database, logger), func() { _ = db.Close(database) }, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
