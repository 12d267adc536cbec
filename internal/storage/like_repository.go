package storage

import (
	"context"

	"gorm.io/gorm"

	"social-go/internal/models"
)

// LikeRepository defines the interface for like edge operations.
type LikeRepository interface {
	// Create returns an error wrapping ErrConflict on a duplicate like.
	Create(ctx context.Context, like *models.Like) error
	Delete(ctx context.Context, likerID, likedID string) (int64, error)
	Exists(ctx context.Context, likerID, likedID string) (bool, error)
	ListByLiked(ctx context.Context, likedID string) ([]models.Like, error)
	// CountByLiked returns like counts keyed by liked id; ids with no likes are absent.
	CountByLiked(ctx context.Context, likedIDs []string) (map[string]int64, error)
	// LikedAmong returns the subset of candidates that likerID has liked.
	LikedAmong(ctx context.Context, likerID string, candidates []string) (map[string]bool, error)
	DeleteBlockedPairs(ctx context.Context) (int64, error)
}

type gormLikeRepository struct {
	db *gorm.DB
}

// NewGormLikeRepository creates a new GORM-backed LikeRepository.
func NewGormLikeRepository(db *gorm.DB) LikeRepository {
	return &gormLikeRepository{db: db}
}

func (r *gormLikeRepository) Create(ctx context.Context, like *models.Like) error {
	return translate(r.db.WithContext(ctx).Create(like).Error)
}

func (r *gormLikeRepository) Delete(ctx context.Context, likerID, likedID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("liker_id = ? AND liked_id = ?", likerID, likedID).
		Delete(&models.Like{})
	return res.RowsAffected, res.Error
}

func (r *gormLikeRepository) Exists(ctx context.Context, likerID, likedID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("liker_id = ? AND liked_id = ?", likerID, likedID).
		Count(&count).Error
	return count > 0, err
}

func (r *gormLikeRepository) ListByLiked(ctx context.Context, likedID string) ([]models.Like, error) {
	var likes []models.Like
	err := r.db.WithContext(ctx).
		Where("liked_id = ?", likedID).
		Order("created_at DESC").
		Find(&likes).Error
	return likes, err
}

func (r *gormLikeRepository) CountByLiked(ctx context.Context, likedIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(likedIDs))
	if len(likedIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		LikedID string
		Total   int64
	}
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Select("liked_id, COUNT(*) AS total").
		Where("liked_id IN ?", likedIDs).
		Group("liked_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.LikedID] = row.Total
	}
	return counts, nil
}

func (r *gormLikeRepository) LikedAmong(ctx context.Context, likerID string, candidates []string) (map[string]bool, error) {
	liked := make(map[string]bool)
	if len(candidates) == 0 {
		return liked, nil
	}
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("liker_id = ? AND liked_id IN ?", likerID, candidates).
		Pluck("liked_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}

func (r *gormLikeRepository) DeleteBlockedPairs(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
DELETE FROM likes l
USING blocks b
WHERE (b.blocker_id = l.liker_id AND b.blocked_id = l.liked_id)
   OR (b.blocker_id = l.liked_id AND b.blocked_id = l.liker_id)`)
	return res.RowsAffected, res.Error
}
