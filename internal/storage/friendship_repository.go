package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"social-go/internal/models"
)

// FriendshipRepository defines the interface for friendship data operations.
type FriendshipRepository interface {
	// Create returns an error wrapping ErrConflict when the pair already has a row.
	Create(ctx context.Context, friendship *models.Friendship) error
	// FindBetween returns the row for the unordered pair, or nil, nil.
	FindBetween(ctx context.Context, userA, userB string) (*models.Friendship, error)
	// GetByID returns nil, nil when not found.
	GetByID(ctx context.Context, id string) (*models.Friendship, error)
	UpdateStatus(ctx context.Context, id string, status models.FriendshipStatus) error
	DeleteByID(ctx context.Context, id string) (int64, error)
	// DeleteBetween removes the row for the pair regardless of direction or status.
	DeleteBetween(ctx context.Context, userA, userB string) (int64, error)
	ListAccepted(ctx context.Context, userID string) ([]models.Friendship, error)
	ListPendingFor(ctx context.Context, receiverID string) ([]models.Friendship, error)
	// DeleteBlockedPairs removes every friendship whose endpoints have a block in either direction.
	DeleteBlockedPairs(ctx context.Context) (int64, error)
}

type gormFriendshipRepository struct {
	db *gorm.DB
}

// NewGormFriendshipRepository creates a new GormFriendshipRepository.
func NewGormFriendshipRepository(db *gorm.DB) FriendshipRepository {
	return &gormFriendshipRepository{db: db}
}

// Create creates a new friendship record in the database.
// BeforeCreate fills the canonical pair columns.
func (r *gormFriendshipRepository) Create(ctx context.Context, friendship *models.Friendship) error {
	return translate(r.db.WithContext(ctx).Create(friendship).Error)
}

func (r *gormFriendshipRepository) FindBetween(ctx context.Context, userA, userB string) (*models.Friendship, error) {
	low, high := models.OrderedPair(userA, userB)
	var friendship models.Friendship
	err := r.db.WithContext(ctx).
		Where("user_low = ? AND user_high = ?", low, high).
		First(&friendship).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &friendship, nil
}

func (r *gormFriendshipRepository) GetByID(ctx context.Context, id string) (*models.Friendship, error) {
	var friendship models.Friendship
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&friendship).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &friendship, nil
}

func (r *gormFriendshipRepository) UpdateStatus(ctx context.Context, id string, status models.FriendshipStatus) error {
	return r.db.WithContext(ctx).Model(&models.Friendship{}).Where("id = ?", id).Update("status", status).Error
}

func (r *gormFriendshipRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Friendship{})
	return res.RowsAffected, res.Error
}

func (r *gormFriendshipRepository) DeleteBetween(ctx context.Context, userA, userB string) (int64, error) {
	// 两个方向都要删：sender/receiver 任意顺序都落在同一个 user_low/user_high 上
	low, high := models.OrderedPair(userA, userB)
	res := r.db.WithContext(ctx).
		Where("user_low = ? AND user_high = ?", low, high).
		Delete(&models.Friendship{})
	return res.RowsAffected, res.Error
}

// ListAccepted retrieves accepted friendships where userID is either endpoint.
func (r *gormFriendshipRepository) ListAccepted(ctx context.Context, userID string) ([]models.Friendship, error) {
	var friendships []models.Friendship
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? OR receiver_id = ?) AND status = ?", userID, userID, models.FriendshipStatusAccepted).
		Order("updated_at DESC").
		Find(&friendships).Error
	return friendships, err
}

func (r *gormFriendshipRepository) ListPendingFor(ctx context.Context, receiverID string) ([]models.Friendship, error) {
	var friendships []models.Friendship
	err := r.db.WithContext(ctx).
		Where("receiver_id = ? AND status = ?", receiverID, models.FriendshipStatusPending).
		Order("created_at DESC").
		Find(&friendships).Error
	return friendships, err
}

func (r *gormFriendshipRepository) DeleteBlockedPairs(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
DELETE FROM friendships f
USING blocks b
WHERE (b.blocker_id = f.user_low AND b.blocked_id = f.user_high)
   OR (b.blocker_id = f.user_high AND b.blocked_id = f.user_low)`)
	return res.RowsAffected, res.Error
}
