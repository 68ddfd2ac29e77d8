package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/models"
)

// MessageRepository persists chat messages.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id string) (models.Message, error)
	SoftDelete(ctx context.Context, id, deletedBy string, at time.Time) (models.Message, error)
	CountByEvent(ctx context.Context, eventID string) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, id, deletedBy string, at time.Time) (models.Message, error) {
	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_by": deletedBy,
			"deleted_at": at,
		})
	if result.Error != nil {
		return models.Message{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Message{}, gorm.ErrRecordNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *messageRepository) CountByEvent(ctx context.Context, eventID string) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Message{}).Where("event_id = ?", eventID).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
