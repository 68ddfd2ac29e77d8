package models

import "time"

// Event is a chat room session. At most one event is active at a time.
type Event struct {
	ID              string    `gorm:"size:64;primaryKey" json:"id"`
	Name            string    `gorm:"size:255;not null" json:"name"`
	IsActive        bool      `gorm:"not null;default:false;index" json:"is_active"`
	SlowModeSeconds int       `gorm:"not null;default:0" json:"slow_mode_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
