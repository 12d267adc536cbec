package storage

import (
	"context"

	"gorm.io/gorm"
)

// Repositories groups the per-table repositories bound to one connection or transaction.
type Repositories struct {
	Profiles    ProfileRepository
	Blocks      BlockRepository
	Friendships FriendshipRepository
	Likes       LikeRepository
	Visits      VisitRepository
	Messages    MessageRepository
}

// NewGormRepositories binds every repository to db.
func NewGormRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Profiles:    NewGormProfileRepository(db),
		Blocks:      NewGormBlockRepository(db),
		Friendships: NewGormFriendshipRepository(db),
		Likes:       NewGormLikeRepository(db),
		Visits:      NewGormVisitRepository(db),
		Messages:    NewGormMessageRepository(db),
	}
}

// TxRunner runs fn inside one transaction with transaction-scoped repositories.
// fn returning an error rolls the transaction back.
type TxRunner interface {
	InTx(ctx context.Context, fn func(repos Repositories) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

// NewGormTxRunner creates a TxRunner on top of db.
func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(repos Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormRepositories(tx))
	})
}
