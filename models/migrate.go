package models

import (
	"fmt"

	"gorm.io/gorm"
)

// AutoMigrate creates or upgrades every table owned by the application
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Counter{}); err != nil {
		return fmt.Errorf("failed to migrate counters: %w", err)
	}
	return nil
}
