package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-livechat/internal/models"
)

// ParticipantWithUser is a participant row joined with the user's identity.
type ParticipantWithUser struct {
	models.Participant
	Username    string
	DisplayName string
}

// ParticipantRepository persists per (user, event) moderation state.
type ParticipantRepository interface {
	Get(ctx context.Context, eventID, userID string) (models.Participant, error)
	// GetOrInit returns the stored row, or an unsaved default row when none exists yet.
	GetOrInit(ctx context.Context, eventID, userID string) (models.Participant, error)
	Save(ctx context.Context, participant *models.Participant) error
	Touch(ctx context.Context, eventID, userID string, presence models.Presence, at time.Time) error
	ListWithUsers(ctx context.Context, eventID string) ([]ParticipantWithUser, error)
}

type participantRepository struct {
	db *gorm.DB
}

// NewParticipantRepository constructs a participant repository backed by GORM.
func NewParticipantRepository(db *gorm.DB) ParticipantRepository {
	return &participantRepository{db: db}
}

func (r *participantRepository) Get(ctx context.Context, eventID, userID string) (models.Participant, error) {
	var participant models.Participant
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		First(&participant).Error
	if err != nil {
		return models.Participant{}, err
	}
	return participant, nil
}

func (r *participantRepository) GetOrInit(ctx context.Context, eventID, userID string) (models.Participant, error) {
	participant, err := r.Get(ctx, eventID, userID)
	if err == nil {
		return participant, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewParticipant(userID, eventID), nil
	}
	return models.Participant{}, err
}

func (r *participantRepository) Save(ctx context.Context, participant *models.Participant) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_banned", "banned_by", "banned_at", "muted_until", "muted_by",
			"custom_cooldown", "last_message_at", "last_seen_at", "presence", "updated_at",
		}),
	}).Create(participant).Error
}

func (r *participantRepository) Touch(ctx context.Context, eventID, userID string, presence models.Presence, at time.Time) error {
	participant := models.NewParticipant(userID, eventID)
	participant.Presence = presence
	participant.LastSeenAt = &at

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at", "presence", "updated_at"}),
	}).Create(&participant).Error
}

func (r *participantRepository) ListWithUsers(ctx context.Context, eventID string) ([]ParticipantWithUser, error) {
	var rows []ParticipantWithUser
	err := r.db.WithContext(ctx).
		Table("participants").
		Select("participants.*, users.username AS username, users.display_name AS display_name").
		Joins("LEFT JOIN users ON users.id = participants.user_id").
		Where("participants.event_id = ?", eventID).
		Order("participants.last_seen_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
