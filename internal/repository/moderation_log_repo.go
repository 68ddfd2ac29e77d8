package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/models"
)

// ModerationLogFilter narrows moderation log queries.
type ModerationLogFilter struct {
	EventID      string
	TargetUserID string
	Action       string
	Page         int
	PageSize     int
}

// ModerationLogRepository persists the moderation audit trail.
type ModerationLogRepository interface {
	Create(ctx context.Context, entry *models.ModerationLog) error
	List(ctx context.Context, filter ModerationLogFilter) ([]models.ModerationLog, int64, error)
}

type moderationLogRepository struct {
	db *gorm.DB
}

// NewModerationLogRepository constructs the moderation log repository.
func NewModerationLogRepository(db *gorm.DB) ModerationLogRepository {
	return &moderationLogRepository{db: db}
}

func (r *moderationLogRepository) Create(ctx context.Context, entry *models.ModerationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *moderationLogRepository) List(ctx context.Context, filter ModerationLogFilter) ([]models.ModerationLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ModerationLog{})

	if filter.EventID != "" {
		query = query.Where("event_id = ?", filter.EventID)
	}
	if filter.TargetUserID != "" {
		query = query.Where("target_user_id = ?", filter.TargetUserID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var entries []models.ModerationLog
	if err := query.Order("created_at DESC").Order("id DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
