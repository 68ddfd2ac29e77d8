package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/models"
)

// BlockedWordRepository persists the word filter list.
type BlockedWordRepository interface {
	List(ctx context.Context) ([]models.BlockedWord, error)
	Create(ctx context.Context, word *models.BlockedWord) error
	Delete(ctx context.Context, id uint) error
}

type blockedWordRepository struct {
	db *gorm.DB
}

// NewBlockedWordRepository constructs a blocked word repository backed by GORM.
func NewBlockedWordRepository(db *gorm.DB) BlockedWordRepository {
	return &blockedWordRepository{db: db}
}

func (r *blockedWordRepository) List(ctx context.Context) ([]models.BlockedWord, error) {
	var words []models.BlockedWord
	if err := r.db.WithContext(ctx).Order("word ASC").Find(&words).Error; err != nil {
		return nil, err
	}
	return words, nil
}

func (r *blockedWordRepository) Create(ctx context.Context, word *models.BlockedWord) error {
	return r.db.WithContext(ctx).Create(word).Error
}

func (r *blockedWordRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.BlockedWord{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
