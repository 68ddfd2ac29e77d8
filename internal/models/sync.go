package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncStateRowID is the primary key of the single global version row.
const SyncStateRowID = 1

// SyncState stores the global change-log version. Writers bump it under a row lock.
type SyncState struct {
	ID        uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Version   int64     `gorm:"not null;default:0" json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClientGroup tracks the last processed mutation of one client group.
type ClientGroup struct {
	ID             string    `gorm:"size:64;primaryKey" json:"id"`
	UserID         string    `gorm:"size:64;not null;index" json:"user_id"`
	LastMutationID int64     `gorm:"not null;default:0" json:"last_mutation_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MutationRecord keeps the original outcome of a processed mutation for duplicate pushes.
type MutationRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ClientGroupID string    `gorm:"size:64;not null;uniqueIndex:ux_mutation_records_group_mutation,priority:1" json:"client_group_id"`
	MutationID    int64     `gorm:"not null;uniqueIndex:ux_mutation_records_group_mutation,priority:2" json:"mutation_id"`
	Name          string    `gorm:"size:64;not null" json:"name"`
	ArgsHash      string    `gorm:"size:64" json:"args_hash"`
	ErrorKind     string    `gorm:"size:64" json:"error_kind,omitempty"`
	ErrorMessage  string    `gorm:"type:text" json:"error_message,omitempty"`
	RetryAfter    int       `gorm:"not null;default:0" json:"retry_after,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChangeOp is the kind of patch a change produces.
type ChangeOp string

const (
	ChangePut ChangeOp = "put"
	ChangeDel ChangeOp = "del"
)

// Synced entity names.
const (
	EntityEvent       = "event"
	EntityMessage     = "message"
	EntityParticipant = "participant"
)

// Change is one entry of the ordered patch log.
type Change struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Version   int64          `gorm:"not null;index" json:"version"`
	Entity    string         `gorm:"size:32;not null" json:"entity"`
	EntityID  string         `gorm:"size:160;not null" json:"entity_id"`
	Scope     string         `gorm:"size:64;index" json:"scope"`
	OwnerID   string         `gorm:"size:64" json:"owner_id"`
	Op        ChangeOp       `gorm:"size:8;not null" json:"op"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}
