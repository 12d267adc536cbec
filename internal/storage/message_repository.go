package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"social-go/internal/models"
)

// MessageRepository 定义了消息数据操作的接口。
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	// ListBetween 按创建时间升序返回两人之间的消息；since 非空时只返回不早于它的消息，调用方按 ID 去重。
	ListBetween(ctx context.Context, userA, userB string, since *time.Time) ([]models.Message, error)
	// MarkRead 将 ids 中发给 receiverID 的未读消息批量标记为已读。
	MarkRead(ctx context.Context, receiverID string, ids []string) (int64, error)
	// ListUnreadByIDs returns the unread messages among ids addressed to receiverID.
	ListUnreadByIDs(ctx context.Context, receiverID string, ids []string) ([]models.Message, error)
	// LatestPerPartner returns the newest message of every conversation userID takes part in.
	LatestPerPartner(ctx context.Context, userID string) ([]models.Message, error)
	// UnreadCountsBySender counts unread messages addressed to receiverID, keyed by sender.
	UnreadCountsBySender(ctx context.Context, receiverID string) (map[string]int64, error)
}

// gormMessageRepository 使用 GORM 实现 MessageRepository。
type gormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建一个新的基于 GORM 的 MessageRepository。
func NewGormMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

// Create 在数据库中创建一条新的消息记录。
func (r *gormMessageRepository) Create(ctx context.Context, message *models.Message) error {
	return translate(r.db.WithContext(ctx).Create(message).Error)
}

func (r *gormMessageRepository) ListBetween(ctx context.Context, userA, userB string, since *time.Time) ([]models.Message, error) {
	var messages []models.Message
	query := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userA, userB, userB, userA)
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}
	err := query.Order("created_at ASC").Order("id ASC").Find(&messages).Error
	return messages, err
}

func (r *gormMessageRepository) MarkRead(ctx context.Context, receiverID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id IN ? AND receiver_id = ? AND is_read = ?", ids, receiverID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *gormMessageRepository) ListUnreadByIDs(ctx context.Context, receiverID string, ids []string) ([]models.Message, error) {
	var messages []models.Message
	if len(ids) == 0 {
		return messages, nil
	}
	err := r.db.WithContext(ctx).
		Where("id IN ? AND receiver_id = ? AND is_read = ?", ids, receiverID, false).
		Find(&messages).Error
	return messages, err
}

func (r *gormMessageRepository) LatestPerPartner(ctx context.Context, userID string) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).Raw(`
SELECT DISTINCT ON (partner_id) id, sender_id, receiver_id, content, is_read, created_at, updated_at
FROM (
    SELECT m.*, CASE WHEN m.sender_id = ? THEN m.receiver_id ELSE m.sender_id END AS partner_id
    FROM messages m
    WHERE m.sender_id = ? OR m.receiver_id = ?
) t
ORDER BY partner_id, created_at DESC, id DESC`, userID, userID, userID).
		Scan(&messages).Error
	return messages, err
}

func (r *gormMessageRepository) UnreadCountsBySender(ctx context.Context, receiverID string) (map[string]int64, error) {
	var rows []struct {
		SenderID string
		Total    int64
	}
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Select("sender_id, COUNT(*) AS total").
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Group("sender_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.SenderID] = row.Total
	}
	return counts, nil
}
