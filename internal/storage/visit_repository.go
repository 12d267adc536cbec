package storage

import (
	"context"

	"gorm.io/gorm"

	"social-go/internal/models"
)

// VisitRepository defines the interface for visit log operations.
type VisitRepository interface {
	// Create returns an error wrapping ErrConflict for a same-day repeat.
	Create(ctx context.Context, visit *models.Visit) error
	ListByViewed(ctx context.Context, viewedID string, limit int) ([]models.Visit, error)
}

type gormVisitRepository struct {
	db *gorm.DB
}

// NewGormVisitRepository creates a new GORM-backed VisitRepository.
func NewGormVisitRepository(db *gorm.DB) VisitRepository {
	return &gormVisitRepository{db: db}
}

func (r *gormVisitRepository) Create(ctx context.Context, visit *models.Visit) error {
	return translate(r.db.WithContext(ctx).Create(visit).Error)
}

func (r *gormVisitRepository) ListByViewed(ctx context.Context, viewedID string, limit int) ([]models.Visit, error) {
	var visits []models.Visit
	query := r.db.WithContext(ctx).Where("viewed_id = ?", viewedID).Order("visited_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&visits).Error
	return visits, err
}
