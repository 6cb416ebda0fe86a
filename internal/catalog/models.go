/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Dataset is a named time-varying tile set.
type Dataset struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"name"`
	TileURL   string    `gorm:"type:text" json:"tile_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an id.
func (d *Dataset) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// IntervalRecord is one persisted interval of a dataset.
type IntervalRecord struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	DatasetID string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_interval_dataset_seq,priority:1" json:"dataset_id"`
	Seq       int            `gorm:"not null;uniqueIndex:idx_interval_dataset_seq,priority:2" json:"seq"`
	StartsAt  time.Time      `gorm:"index;not null" json:"starts_at"`
	EndsAt    time.Time      `gorm:"not null" json:"ends_at"`
	Payload   map[string]any `gorm:"serializer:json" json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`

	Dataset *Dataset `gorm:"foreignKey:DatasetID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns an id.
func (r *IntervalRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Migrate creates or updates the catalog tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Dataset{}, &IntervalRecord{})
}
