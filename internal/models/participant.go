package models

import "time"

// Presence describes the last known connection state of a participant.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceAway    Presence = "away"
	PresenceOffline Presence = "offline"
)

// CooldownUnset marks a participant that follows the event-wide slow mode.
const CooldownUnset = -1

// Participant holds the per (user, event) moderation state.
type Participant struct {
	UserID         string     `gorm:"size:64;primaryKey" json:"user_id"`
	EventID        string     `gorm:"size:64;primaryKey" json:"event_id"`
	IsBanned       bool       `gorm:"not null;default:false" json:"is_banned"`
	BannedBy       *string    `gorm:"size:64" json:"banned_by,omitempty"`
	BannedAt       *time.Time `json:"banned_at,omitempty"`
	MutedUntil     *time.Time `json:"muted_until,omitempty"`
	MutedBy        *string    `gorm:"size:64" json:"muted_by,omitempty"`
	CustomCooldown int        `gorm:"not null" json:"custom_cooldown"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
	Presence       Presence   `gorm:"size:16;not null;default:offline" json:"presence"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Event *Event `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE" json:"-"`
}

// NewParticipant returns the lazily created default row for a user in an event.
func NewParticipant(userID, eventID string) Participant {
	return Participant{
		UserID:         userID,
		EventID:        eventID,
		CustomCooldown: CooldownUnset,
		Presence:       PresenceOffline,
	}
}

// IsMuted reports whether the mute is still running at now.
func (p Participant) IsMuted(now time.Time) bool {
	return p.MutedUntil != nil && p.MutedUntil.After(now)
}
