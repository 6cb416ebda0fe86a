/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package interval

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrEmptyManifest is returned when a manifest defines neither intervals nor a rule.
var ErrEmptyManifest = errors.New("manifest defines no intervals")

// DefaultTimeFormat formats the "time" payload value of rule-generated intervals.
const DefaultTimeFormat = "2006-01-02"

// Manifest describes a time-dynamic dataset on disk.
type Manifest struct {
	Dataset   string             `yaml:"dataset"`
	TileURL   string             `yaml:"tile_url"`
	Intervals []ManifestInterval `yaml:"intervals"`
	Rule      *ManifestRule      `yaml:"rule"`
}

// ManifestInterval is one explicitly listed interval.
type ManifestInterval struct {
	Start   time.Time      `yaml:"start"`
	Stop    time.Time      `yaml:"stop"`
	Payload map[string]any `yaml:"payload"`
}

// ManifestRule generates intervals from a recurrence rule.
type ManifestRule struct {
	RRule      string    `yaml:"rrule"`
	Start      time.Time `yaml:"start"`
	Until      time.Time `yaml:"until"`
	Span       string    `yaml:"span"`
	TimeFormat string    `yaml:"time_format"`
}

// LoadManifest decodes a YAML manifest.
func LoadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(m.Intervals) == 0 && m.Rule == nil {
		return nil, ErrEmptyManifest
	}
	return &m, nil
}

// LoadManifestFile reads and decodes the manifest at path.
func LoadManifestFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return LoadManifest(f)
}

// Index builds the interval index the manifest describes. Explicit intervals
// take precedence over a rule.
func (m *Manifest) Index() (*Index, error) {
	if len(m.Intervals) > 0 {
		intervals := make([]Interval, len(m.Intervals))
		for i, mi := range m.Intervals {
			intervals[i] = Interval{Start: mi.Start.UTC(), Stop: mi.Stop.UTC(), Payload: mi.Payload}
		}
		return New(intervals)
	}
	if m.Rule == nil {
		return nil, ErrEmptyManifest
	}

	var span time.Duration
	if m.Rule.Span != "" {
		d, err := time.ParseDuration(m.Rule.Span)
		if err != nil {
			return nil, fmt.Errorf("parse rule span %q: %w", m.Rule.Span, err)
		}
		span = d
	}
	format := m.Rule.TimeFormat
	if format == "" {
		format = DefaultTimeFormat
	}

	return FromRule(m.Rule.RRule, m.Rule.Start.UTC(), m.Rule.Until.UTC(), span, func(_ int, start time.Time) map[string]any {
		stamp := start.Format(format)
		return map[string]any{"id": stamp, "time": stamp}
	})
}
