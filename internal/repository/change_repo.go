package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/models"
)

// ChangeFilter narrows the patch log to what one viewer may see.
type ChangeFilter struct {
	// EventID limits event-scoped changes to one event; unscoped changes always match.
	EventID string
	// ViewerID receives their own participant changes.
	ViewerID string
	// AllParticipants delivers every participant change (admins).
	AllParticipants bool
}

// ChangeRepository appends to and reads the ordered patch log.
type ChangeRepository interface {
	// Record appends a change. Inside a Store transaction the global version is bumped once
	// and shared by every change of the transaction.
	Record(ctx context.Context, change *models.Change) error
	// Reserve bumps the version now, taking the writer lock before the transaction reads
	// anything it is about to change. Later Records share the reserved version.
	Reserve(ctx context.Context) (int64, error)
	// Version returns the version assigned in the current transaction, or 0 if none.
	Version() int64
	CurrentVersion(ctx context.Context) (int64, error)
	ListSince(ctx context.Context, cookie int64, filter ChangeFilter, limit int) ([]models.Change, error)
}

type changeRepository struct {
	db      *gorm.DB
	version *int64
}

// NewChangeRepository constructs a change repository outside any transaction.
func NewChangeRepository(db *gorm.DB) ChangeRepository {
	return &changeRepository{db: db}
}

func (r *changeRepository) Record(ctx context.Context, change *models.Change) error {
	version, err := r.Reserve(ctx)
	if err != nil {
		return err
	}

	change.Version = version
	return r.db.WithContext(ctx).Create(change).Error
}

func (r *changeRepository) Reserve(ctx context.Context) (int64, error) {
	if version := r.Version(); version != 0 {
		return version, nil
	}
	bumped, err := r.bump(ctx)
	if err != nil {
		return 0, err
	}
	if r.version != nil {
		*r.version = bumped
	}
	return bumped, nil
}

func (r *changeRepository) Version() int64 {
	if r.version == nil {
		return 0
	}
	return *r.version
}

// bump increments the version row; the row lock it takes serializes writers until commit.
func (r *changeRepository) bump(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.SyncState{}).
		Where("id = ?", models.SyncStateRowID).
		UpdateColumn("version", gorm.Expr("version + ?", 1))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, fmt.Errorf("sync state row %d missing", models.SyncStateRowID)
	}
	return r.CurrentVersion(ctx)
}

func (r *changeRepository) CurrentVersion(ctx context.Context) (int64, error) {
	var state models.SyncState
	if err := r.db.WithContext(ctx).First(&state, "id = ?", models.SyncStateRowID).Error; err != nil {
		return 0, err
	}
	return state.Version, nil
}

func (r *changeRepository) ListSince(ctx context.Context, cookie int64, filter ChangeFilter, limit int) ([]models.Change, error) {
	query := r.db.WithContext(ctx).Model(&models.Change{}).Where("version > ?", cookie)

	if filter.EventID != "" {
		query = query.Where("(scope = ? OR scope = '')", filter.EventID)
	}
	if !filter.AllParticipants {
		query = query.Where("(entity <> ? OR owner_id = ?)", models.EntityParticipant, filter.ViewerID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var changes []models.Change
	if err := query.Order("version ASC").Order("id ASC").Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}
