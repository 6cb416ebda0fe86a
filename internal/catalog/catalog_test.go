/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/timetile/internal/interval"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return New(db, zerolog.Nop())
}

func days(n int) *interval.Index {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ivs := make([]interval.Interval, n)
	for i := range ivs {
		s := start.AddDate(0, 0, i)
		ivs[i] = interval.Interval{
			Start:   s,
			Stop:    s.AddDate(0, 0, 1),
			Payload: map[string]any{"id": s.Format("2006-01-02")},
		}
	}
	return interval.MustNew(ivs)
}

func TestImportAndLoad(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	ds, err := c.Import(ctx, "sst", "https://tiles.example.com/{id}/{z}/{x}/{y}.png", days(3))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if ds.ID == "" {
		t.Fatal("dataset id not assigned")
	}

	loaded, idx, err := c.Load(ctx, "sst")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.TileURL != ds.TileURL {
		t.Fatalf("TileURL = %q", loaded.TileURL)
	}
	if idx.Len() != 3 {
		t.Fatalf("Len() = %d", idx.Len())
	}
	if got := idx.Get(1).ID(); got != "2026-03-02" {
		t.Fatalf("interval 1 id = %q", got)
	}
	if got := idx.IndexOf(time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)); got != 2 {
		t.Fatalf("IndexOf() = %d", got)
	}
}

func TestImportReplacesIntervals(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	first, err := c.Import(ctx, "sst", "", days(5))
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Import(ctx, "sst", "https://new.example.com/{z}/{x}/{y}", days(2))
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatal("re-import must keep the dataset")
	}

	ds, idx, err := c.Load(ctx, "sst")
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", idx.Len())
	}
	if ds.TileURL != "https://new.example.com/{z}/{x}/{y}" {
		t.Fatalf("TileURL = %q", ds.TileURL)
	}
}

func TestMissingDataset(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	if _, _, err := c.Load(ctx, "nope"); !errors.Is(err, ErrDatasetNotFound) {
		t.Fatalf("expected ErrDatasetNotFound, got %v", err)
	}
	if err := c.Delete(ctx, "nope"); !errors.Is(err, ErrDatasetNotFound) {
		t.Fatalf("expected ErrDatasetNotFound, got %v", err)
	}
}

func TestDatasetsAndDelete(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	for _, name := range []string{"wind", "sst"} {
		if _, err := c.Import(ctx, name, "", days(1)); err != nil {
			t.Fatal(err)
		}
	}
	list, err := c.Datasets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "sst" {
		t.Fatalf("Datasets() = %+v", list)
	}

	if err := c.Delete(ctx, "sst"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Dataset(ctx, "sst"); !errors.Is(err, ErrDatasetNotFound) {
		t.Fatalf("dataset still present: %v", err)
	}
}
