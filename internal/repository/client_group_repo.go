package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-livechat/internal/models"
)

// ClientGroupRepository tracks processed mutations per client group.
type ClientGroupRepository interface {
	// Lock loads the group with a row lock, returning an unsaved zero group when absent.
	Lock(ctx context.Context, id string) (models.ClientGroup, error)
	Get(ctx context.Context, id string) (models.ClientGroup, error)
	Save(ctx context.Context, group *models.ClientGroup) error
	RecordOutcome(ctx context.Context, record *models.MutationRecord) error
	FindOutcome(ctx context.Context, groupID string, mutationID int64) (models.MutationRecord, error)
}

type clientGroupRepository struct {
	db *gorm.DB
}

// NewClientGroupRepository constructs a client group repository backed by GORM.
func NewClientGroupRepository(db *gorm.DB) ClientGroupRepository {
	return &clientGroupRepository{db: db}
}

func (r *clientGroupRepository) Lock(ctx context.Context, id string) (models.ClientGroup, error) {
	var group models.ClientGroup
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&group, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ClientGroup{ID: id}, nil
	}
	if err != nil {
		return models.ClientGroup{}, err
	}
	return group, nil
}

func (r *clientGroupRepository) Get(ctx context.Context, id string) (models.ClientGroup, error) {
	var group models.ClientGroup
	if err := r.db.WithContext(ctx).First(&group, "id = ?", id).Error; err != nil {
		return models.ClientGroup{}, err
	}
	return group, nil
}

func (r *clientGroupRepository) Save(ctx context.Context, group *models.ClientGroup) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_mutation_id", "updated_at"}),
	}).Create(group).Error
}

func (r *clientGroupRepository) RecordOutcome(ctx context.Context, record *models.MutationRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *clientGroupRepository) FindOutcome(ctx context.Context, groupID string, mutationID int64) (models.MutationRecord, error) {
	var record models.MutationRecord
	err := r.db.WithContext(ctx).
		Where("client_group_id = ? AND mutation_id = ?", groupID, mutationID).
		First(&record).Error
	if err != nil {
		return models.MutationRecord{}, err
	}
	return record, nil
}
