package models

import "time"

// Message is a chat line posted into an event. Messages are soft-deleted only.
type Message struct {
	ID        string     `gorm:"size:64;primaryKey" json:"id"`
	EventID   string     `gorm:"size:64;not null;index:idx_messages_event_created,priority:1" json:"event_id"`
	UserID    string     `gorm:"size:64;not null;index" json:"user_id"`
	Text      string     `gorm:"type:text;not null" json:"text"`
	ReplyToID *string    `gorm:"size:64;index" json:"reply_to_id,omitempty"`
	IsDeleted bool       `gorm:"not null;default:false" json:"is_deleted"`
	DeletedBy *string    `gorm:"size:64" json:"deleted_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `gorm:"index:idx_messages_event_created,priority:2" json:"created_at"`

	// Only declared so the migration emits the foreign keys; never preloaded.
	Event   *Event   `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE" json:"-"`
	ReplyTo *Message `gorm:"foreignKey:ReplyToID;constraint:OnDelete:SET NULL" json:"-"`
}

// RenderedText returns the text safe to show; deleted messages never expose their content.
func (m Message) RenderedText() string {
	if m.IsDeleted {
		return ""
	}
	return m.Text
}
