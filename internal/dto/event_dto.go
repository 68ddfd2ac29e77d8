package dto

import (
	"time"

	"github.com/noah-isme/gema-livechat/internal/models"
)

// EventCreateRequest starts a new event, replacing the active one.
type EventCreateRequest struct {
	ID              string `json:"id" validate:"omitempty,max=64"`
	Name            string `json:"name" validate:"required,min=1,max=255"`
	SlowModeSeconds int    `json:"slow_mode_seconds" validate:"gte=0,max=86400"`
}

// EventResponse is the serialized representation of an event.
type EventResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	IsActive        bool      `json:"is_active"`
	SlowModeSeconds int       `json:"slow_mode_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewEventResponse converts a model into a DTO.
func NewEventResponse(event models.Event) EventResponse {
	return EventResponse{
		ID:              event.ID,
		Name:            event.Name,
		IsActive:        event.IsActive,
		SlowModeSeconds: event.SlowModeSeconds,
		CreatedAt:       event.CreatedAt,
		UpdatedAt:       event.UpdatedAt,
	}
}
