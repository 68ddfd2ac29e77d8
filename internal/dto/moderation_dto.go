package dto

import (
	"time"

	"github.com/noah-isme/gema-livechat/internal/models"
)

// ParticipantResponse describes one participant in the admin listing.
type ParticipantResponse struct {
	UserID         string     `json:"user_id"`
	Username       string     `json:"username,omitempty"`
	DisplayName    string     `json:"display_name,omitempty"`
	Presence       string     `json:"presence"`
	IsBanned       bool       `json:"is_banned"`
	BannedBy       *string    `json:"banned_by,omitempty"`
	BannedAt       *time.Time `json:"banned_at,omitempty"`
	MutedUntil     *time.Time `json:"muted_until,omitempty"`
	MutedBy        *string    `json:"muted_by,omitempty"`
	CustomCooldown int        `json:"custom_cooldown"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
}

// ParticipantListResponse groups participants of an event by moderation state.
type ParticipantListResponse struct {
	EventID string                `json:"event_id"`
	Active  []ParticipantResponse `json:"active"`
	Muted   []ParticipantResponse `json:"muted"`
	Banned  []ParticipantResponse `json:"banned"`
}

// BlockedWordCreateRequest adds a word to the send-path filter.
type BlockedWordCreateRequest struct {
	Word string `json:"word" validate:"required,min=1,max=255"`
}

// BlockedWordResponse is the serialized representation of a blocked word.
type BlockedWordResponse struct {
	ID        uint      `json:"id"`
	Word      string    `json:"word"`
	AddedBy   string    `json:"added_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBlockedWordResponse converts a model into a DTO.
func NewBlockedWordResponse(word models.BlockedWord) BlockedWordResponse {
	return BlockedWordResponse{
		ID:        word.ID,
		Word:      word.Word,
		AddedBy:   word.AddedBy,
		CreatedAt: word.CreatedAt,
	}
}

// ModerationLogListRequest captures filters for the moderation audit trail.
type ModerationLogListRequest struct {
	EventID      string `query:"event_id"`
	TargetUserID string `query:"user_id"`
	Action       string `query:"action"`
	Page         int    `query:"page"`
	PageSize     int    `query:"page_size"`
}

// ModerationLogItem is one audit entry.
type ModerationLogItem struct {
	ID           uint                   `json:"id"`
	ActorID      string                 `json:"actor_id"`
	Action       string                 `json:"action"`
	EventID      string                 `json:"event_id"`
	TargetUserID string                 `json:"target_user_id,omitempty"`
	MessageID    string                 `json:"message_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ModerationLogListResponse wraps a page of audit entries.
type ModerationLogListResponse struct {
	Items      []ModerationLogItem `json:"items"`
	Pagination PaginationMeta      `json:"pagination"`
}
