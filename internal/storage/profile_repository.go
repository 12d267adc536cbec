package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"social-go/internal/models"
)

// ProfileRepository defines the interface for profile data operations.
type ProfileRepository interface {
	// GetByID returns nil, nil when the profile does not exist.
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Profile, error)
	// EnsureExists inserts a minimal profile if none exists and reports whether it did.
	EnsureExists(ctx context.Context, id string) (bool, error)
	Save(ctx context.Context, profile *models.Profile) error
	// ListRecent returns the newest profiles excluding excludeID.
	ListRecent(ctx context.Context, excludeID string, limit int) ([]models.Profile, error)
}

type gormProfileRepository struct {
	db *gorm.DB
}

// NewGormProfileRepository creates a new GORM-backed ProfileRepository.
func NewGormProfileRepository(db *gorm.DB) ProfileRepository {
	return &gormProfileRepository{db: db}
}

func (r *gormProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *gormProfileRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Profile, error) {
	if len(ids) == 0 {
		return []models.Profile{}, nil
	}
	var profiles []models.Profile
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error
	return profiles, err
}

func (r *gormProfileRepository) EnsureExists(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&models.Profile{ID: id})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Save upserts the full profile row.
func (r *gormProfileRepository) Save(ctx context.Context, profile *models.Profile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "age", "bio", "location", "interests", "avatar_url", "updated_at"}),
		}).
		Create(profile).Error
}

func (r *gormProfileRepository) ListRecent(ctx context.Context, excludeID string, limit int) ([]models.Profile, error) {
	var profiles []models.Profile
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&profiles).Error
	return profiles, err
}
