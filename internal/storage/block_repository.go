package storage

import (
	"context"

	"gorm.io/gorm"

	"social-go/internal/models"
)

// BlockRepository defines the interface for block edge operations.
type BlockRepository interface {
	Exists(ctx context.Context, blockerID, blockedID string) (bool, error)
	// ListTouching returns every block row where userID is either endpoint.
	ListTouching(ctx context.Context, userID string) ([]models.Block, error)
	ListByBlocker(ctx context.Context, blockerID string) ([]models.Block, error)
	// Create returns an error wrapping ErrConflict when the edge already exists.
	Create(ctx context.Context, block *models.Block) error
	Delete(ctx context.Context, blockerID, blockedID string) (int64, error)
}

type gormBlockRepository struct {
	db *gorm.DB
}

// NewGormBlockRepository creates a new GORM-backed BlockRepository.
func NewGormBlockRepository(db *gorm.DB) BlockRepository {
	return &gormBlockRepository{db: db}
}

func (r *gormBlockRepository) Exists(ctx context.Context, blockerID, blockedID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Block{}).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormBlockRepository) ListTouching(ctx context.Context, userID string) ([]models.Block, error) {
	var blocks []models.Block
	err := r.db.WithContext(ctx).
		Where("blocker_id = ? OR blocked_id = ?", userID, userID).
		Find(&blocks).Error
	return blocks, err
}

func (r *gormBlockRepository) ListByBlocker(ctx context.Context, blockerID string) ([]models.Block, error) {
	var blocks []models.Block
	err := r.db.WithContext(ctx).
		Where("blocker_id = ?", blockerID).
		Order("created_at DESC").
		Find(&blocks).Error
	return blocks, err
}

func (r *gormBlockRepository) Create(ctx context.Context, block *models.Block) error {
	return translate(r.db.WithContext(ctx).Create(block).Error)
}

func (r *gormBlockRepository) Delete(ctx context.Context, blockerID, blockedID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&models.Block{})
	return res.RowsAffected, res.Error
}
