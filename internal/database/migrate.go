package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/models"
)

// singleActiveEventIndex lets the store itself refuse a second active event.
const singleActiveEventIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_events_single_active ON events (is_active) WHERE is_active`

// Migrate creates or updates the chat schema and seeds the sync version row.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := db.Exec(singleActiveEventIndex).Error; err != nil {
		return fmt.Errorf("failed to create active event index: %w", err)
	}

	state := models.SyncState{ID: models.SyncStateRowID}
	if err := db.Where(models.SyncState{ID: models.SyncStateRowID}).FirstOrCreate(&state).Error; err != nil {
		return fmt.Errorf("failed to seed sync state: %w", err)
	}

	return nil
}
