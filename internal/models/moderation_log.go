package models

import (
	"time"

	"gorm.io/datatypes"
)

// ModerationLog captures auditable moderation actions taken by admins.
type ModerationLog struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	ActorID      string            `gorm:"size:64;not null" json:"actor_id"`
	Action       string            `gorm:"size:64;not null" json:"action"`
	EventID      string            `gorm:"size:64;index" json:"event_id"`
	TargetUserID string            `gorm:"size:64;index" json:"target_user_id,omitempty"`
	MessageID    string            `gorm:"size:64" json:"message_id,omitempty"`
	Metadata     datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
}
