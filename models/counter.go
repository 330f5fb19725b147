// Package models contains the persisted entities and their filter types
package models

import (
	"time"

	"github.com/amirphl/counter-app/utils"
	"gorm.io/gorm"
)

// Counter is a named signed integer with creation and update timestamps.
// One row per name; the unique index on name makes that structural.
// Version grows by one with every mutation and orders cached copies of the row.
type Counter struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_counters_name" json:"name"`
	Value     int64     `gorm:"not null;default:0" json:"value"`
	Version   int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"updated_at"`
}

func (Counter) TableName() string { return "counters" }

// BeforeCreate ensures timestamps are set.
func (c *Counter) BeforeCreate(tx *gorm.DB) error {
	now := utils.UTCNow()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	return nil
}

// CounterFilter represents filter criteria for counter queries.
type CounterFilter struct {
	ID            *uint      `json:"id,omitempty"`
	Name          *string    `json:"name,omitempty"`
	NamePrefix    *string    `json:"name_prefix,omitempty"`
	UpdatedAfter  *time.Time `json:"updated_after,omitempty"`
	UpdatedBefore *time.Time `json:"updated_before,omitempty"`
}
