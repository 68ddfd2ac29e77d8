package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/models"
)

// EventRepository persists chat events.
type EventRepository interface {
	List(ctx context.Context) ([]models.Event, error)
	ListActive(ctx context.Context) ([]models.Event, error)
	GetByID(ctx context.Context, id string) (models.Event, error)
	Active(ctx context.Context) (models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	DeactivateAll(ctx context.Context) ([]models.Event, error)
	UpdateSlowMode(ctx context.Context, id string, seconds int) (models.Event, error)
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository constructs an event repository backed by GORM.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) List(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) ListActive(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at DESC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		return models.Event{}, err
	}
	return event, nil
}

func (r *eventRepository) Active(ctx context.Context) (models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at DESC").First(&event).Error
	if err != nil {
		return models.Event{}, err
	}
	return event, nil
}

func (r *eventRepository) Create(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepository) DeactivateAll(ctx context.Context) ([]models.Event, error) {
	active, err := r.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}

	if err := r.db.WithContext(ctx).Model(&models.Event{}).
		Where("is_active = ?", true).
		Update("is_active", false).Error; err != nil {
		return nil, err
	}

	for i := range active {
		active[i].IsActive = false
	}
	return active, nil
}

func (r *eventRepository) UpdateSlowMode(ctx context.Context, id string, seconds int) (models.Event, error) {
	result := r.db.WithContext(ctx).Model(&models.Event{}).Where("id = ?", id).Update("slow_mode_seconds", seconds)
	if result.Error != nil {
		return models.Event{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Event{}, gorm.ErrRecordNotFound
	}
	return r.GetByID(ctx, id)
}
