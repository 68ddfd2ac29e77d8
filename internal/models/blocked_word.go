package models

import (
	"strings"
	"time"
)

// BlockedWord is a word or phrase rejected by the send-path filter.
type BlockedWord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Word      string    `gorm:"size:255;not null;uniqueIndex" json:"word"`
	AddedBy   string    `gorm:"size:64" json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeWord lowercases and trims a blocked word.
func NormalizeWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}
