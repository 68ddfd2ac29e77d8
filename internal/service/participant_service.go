package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/dto"
	"github.com/noah-isme/gema-livechat/internal/repository"
)

// ParticipantService lists the participants of an event by moderation state.
type ParticipantService interface {
	List(ctx context.Context, eventID string) (dto.ParticipantListResponse, error)
}

type participantService struct {
	store        repository.Store
	activeWindow time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

// NewParticipantService builds the participant listing service. Unrestricted participants
// count as active when seen within activeWindow.
func NewParticipantService(store repository.Store, activeWindow time.Duration, logger zerolog.Logger) ParticipantService {
	if activeWindow <= 0 {
		activeWindow = 5 * time.Minute
	}
	return &participantService{
		store:        store,
		activeWindow: activeWindow,
		logger:       logger.With().Str("component", "participant_service").Logger(),
		now:          time.Now,
	}
}

func (s *participantService) List(ctx context.Context, eventID string) (dto.ParticipantListResponse, error) {
	if _, err := s.store.Events().GetByID(ctx, eventID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ParticipantListResponse{}, ErrEventNotFound
		}
		return dto.ParticipantListResponse{}, err
	}

	rows, err := s.store.Participants().ListWithUsers(ctx, eventID)
	if err != nil {
		return dto.ParticipantListResponse{}, err
	}

	now := s.now()
	cutoff := now.Add(-s.activeWindow)
	response := dto.ParticipantListResponse{
		EventID: eventID,
		Active:  []dto.ParticipantResponse{},
		Muted:   []dto.ParticipantResponse{},
		Banned:  []dto.ParticipantResponse{},
	}

	for _, row := range rows {
		item := newParticipantResponse(row)
		switch Classify(row.Participant, now) {
		case StatusBanned:
			response.Banned = append(response.Banned, item)
		case StatusMuted:
			response.Muted = append(response.Muted, item)
		default:
			if row.LastSeenAt != nil && row.LastSeenAt.After(cutoff) {
				response.Active = append(response.Active, item)
			}
		}
	}

	return response, nil
}

func newParticipantResponse(row repository.ParticipantWithUser) dto.ParticipantResponse {
	return dto.ParticipantResponse{
		UserID:         row.UserID,
		Username:       row.Username,
		DisplayName:    row.DisplayName,
		Presence:       string(row.Presence),
		IsBanned:       row.IsBanned,
		BannedBy:       row.BannedBy,
		BannedAt:       row.BannedAt,
		MutedUntil:     row.MutedUntil,
		MutedBy:        row.MutedBy,
		CustomCooldown: row.CustomCooldown,
		LastMessageAt:  row.LastMessageAt,
		LastSeenAt:     row.LastSeenAt,
	}
}
