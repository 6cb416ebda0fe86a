/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog persists datasets and their intervals so several nodes can
// share one interval index.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/timetile/internal/interval"
)

// ErrDatasetNotFound is returned when no dataset has the requested name.
var ErrDatasetNotFound = errors.New("catalog: dataset not found")

// Catalog reads and writes datasets.
type Catalog struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New wraps an open database. Call Migrate first.
func New(db *gorm.DB, logger zerolog.Logger) *Catalog {
	return &Catalog{db: db, logger: logger.With().Str("component", "catalog").Logger()}
}

// Import replaces the intervals of the named dataset, creating the dataset
// if needed. It returns the dataset.
func (c *Catalog) Import(ctx context.Context, name, tileURL string, idx *interval.Index) (*Dataset, error) {
	if name == "" {
		return nil, errors.New("catalog: dataset name is required")
	}

	var ds Dataset
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("name = ?", name).First(&ds).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			ds = Dataset{Name: name, TileURL: tileURL}
			if err := tx.Create(&ds).Error; err != nil {
				return fmt.Errorf("create dataset: %w", err)
			}
		case err != nil:
			return fmt.Errorf("find dataset: %w", err)
		default:
			if tileURL != "" && tileURL != ds.TileURL {
				if err := tx.Model(&ds).Update("tile_url", tileURL).Error; err != nil {
					return fmt.Errorf("update dataset: %w", err)
				}
			}
		}

		if err := tx.Where("dataset_id = ?", ds.ID).Delete(&IntervalRecord{}).Error; err != nil {
			return fmt.Errorf("clear intervals: %w", err)
		}

		intervals := idx.Intervals()
		if len(intervals) == 0 {
			return nil
		}
		records := make([]IntervalRecord, len(intervals))
		for i, iv := range intervals {
			records[i] = IntervalRecord{
				DatasetID: ds.ID,
				Seq:       i,
				StartsAt:  iv.Start.UTC(),
				EndsAt:    iv.Stop.UTC(),
				Payload:   iv.Payload,
			}
		}
		if err := tx.CreateInBatches(records, 500).Error; err != nil {
			return fmt.Errorf("insert intervals: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().Str("dataset", name).Int("intervals", idx.Len()).Msg("dataset imported")
	return &ds, nil
}

// Load builds the interval index of the named dataset.
func (c *Catalog) Load(ctx context.Context, name string) (*Dataset, *interval.Index, error) {
	ds, err := c.Dataset(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	var records []IntervalRecord
	if err := c.db.WithContext(ctx).Where("dataset_id = ?", ds.ID).Order("seq").Find(&records).Error; err != nil {
		return nil, nil, fmt.Errorf("load intervals: %w", err)
	}

	intervals := make([]interval.Interval, len(records))
	for i, r := range records {
		intervals[i] = interval.Interval{Start: r.StartsAt, Stop: r.EndsAt, Payload: r.Payload}
	}
	idx, err := interval.New(intervals)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %s: %w", name, err)
	}
	return ds, idx, nil
}

// Dataset looks a dataset up by name.
func (c *Catalog) Dataset(ctx context.Context, name string) (*Dataset, error) {
	var ds Dataset
	err := c.db.WithContext(ctx).Where("name = ?", name).First(&ds).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", name, ErrDatasetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find dataset: %w", err)
	}
	return &ds, nil
}

// Datasets lists all datasets by name.
func (c *Catalog) Datasets(ctx context.Context) ([]Dataset, error) {
	var out []Dataset
	if err := c.db.WithContext(ctx).Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return out, nil
}

// Delete removes a dataset and its intervals.
func (c *Catalog) Delete(ctx context.Context, name string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ds Dataset
		err := tx.Where("name = ?", name).First(&ds).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s: %w", name, ErrDatasetNotFound)
		}
		if err != nil {
			return err
		}
		if err := tx.Where("dataset_id = ?", ds.ID).Delete(&IntervalRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&ds).Error
	})
}
