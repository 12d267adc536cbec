// Package tasks 定义后台任务。目前只有一个：清理与拉黑并存的好友关系和点赞。
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"social-go/internal/metrics"

	"github.com/hibiken/asynq"
)

// TypeReconcile is the asynq task type of the relationship sweep.
const TypeReconcile = "relationships:reconcile"

// PairSweeper deletes rows whose endpoints have a block in either direction.
// storage.FriendshipRepository and storage.LikeRepository satisfy it.
type PairSweeper interface {
	DeleteBlockedPairs(ctx context.Context) (int64, error)
}

// Report is what one sweep removed.
type Report struct {
	Friendships int64 `json:"friendships"`
	Likes       int64 `json:"likes"`
}

// Reconciler 修复拉黑事务之外产生的漂移，例如拉黑后才被接受的好友请求。
type Reconciler struct {
	friendships PairSweeper
	likes       PairSweeper
	metrics     *metrics.Metrics
	log         *slog.Logger
}

func NewReconciler(friendships, likes PairSweeper, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{friendships: friendships, likes: likes, metrics: m, log: logger}
}

// Run sweeps both tables. A failure on one table does not skip the other.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	var report Report
	var errs []error

	n, err := r.friendships.DeleteBlockedPairs(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("friendships: %w", err))
	} else {
		report.Friendships = n
		r.metrics.Reconciled("friendships", n)
	}

	n, err = r.likes.DeleteBlockedPairs(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("likes: %w", err))
	} else {
		report.Likes = n
		r.metrics.Reconciled("likes", n)
	}

	if len(errs) > 0 {
		return report, fmt.Errorf("清理拉黑关系失败: %w", errors.Join(errs...))
	}
	if report.Friendships > 0 || report.Likes > 0 {
		r.log.Info("已清理与拉黑冲突的关系", "friendships", report.Friendships, "likes", report.Likes)
	}
	return report, nil
}

// ProcessTask implements asynq.Handler. Errors are retried by asynq.
func (r *Reconciler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	_, err := r.Run(ctx)
	return err
}

// NewReconcileTask builds the payload-less sweep task.
func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(TypeReconcile, nil)
}
