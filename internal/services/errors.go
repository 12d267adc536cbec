package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"social-go/internal/logging"
	"social-go/internal/result"
)

var (
	ErrMissingIdentity       = errors.New("缺少用户标识")
	ErrSelfInteraction       = errors.New("不能对自己执行此操作")
	ErrEmptyContent          = errors.New("消息内容不能为空")
	ErrProfileNotFound       = errors.New("用户不存在")
	ErrFriendRequestNotFound = errors.New("好友请求不存在")
	ErrNotRecipientOfRequest = errors.New("您不是此好友请求的接收者")
	ErrRequestNotPending     = errors.New("该好友请求不是待处理状态")
	ErrNotFriends            = errors.New("你们还不是好友")
	ErrInvalidProfile        = errors.New("资料字段不合法")

	// ErrStoreUnavailable marks a failed store round-trip; callers may retry.
	ErrStoreUnavailable = errors.New("存储暂时不可用")
)

// 面向用户的拉黑提示，按方向区分
const (
	msgTheyBlockedYou = "对方已将你拉黑，无法进行此操作"
	msgYouBlockedThem = "你已拉黑对方，解除拉黑后才能进行此操作"
	msgGenericFailure = "操作失败，请稍后重试"
)

// storeErr wraps a repository error so the result boundary reports it as transient.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// failFrom converts an error into a typed failure. Unknown errors are logged
// and reported as unexpected.
func failFrom[T any](ctx context.Context, op string, err error) result.Result[T] {
	switch {
	case errors.Is(err, ErrMissingIdentity), errors.Is(err, ErrSelfInteraction),
		errors.Is(err, ErrEmptyContent), errors.Is(err, ErrRequestNotPending), errors.Is(err, ErrNotFriends),
		errors.Is(err, ErrInvalidProfile):
		return result.Fail[T](result.KindValidation, err.Error())
	case errors.Is(err, ErrProfileNotFound), errors.Is(err, ErrFriendRequestNotFound):
		return result.Fail[T](result.KindNotFound, err.Error())
	case errors.Is(err, ErrNotRecipientOfRequest):
		return result.Fail[T](result.KindForbidden, err.Error())
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		logging.FromContext(ctx).WarnContext(ctx, "store operation failed", "op", op, "error", err)
		return result.Fail[T](result.KindTransient, msgGenericFailure)
	default:
		logging.ReportUnexpected(ctx, "unexpected failure", err, slog.String("op", op))
		return result.Fail[T](result.KindUnexpected, msgGenericFailure)
	}
}

// requirePair validates two identifiers; selfAllowed controls a == b.
func requirePair(a, b string, selfAllowed bool) error {
	if a == "" || b == "" {
		return ErrMissingIdentity
	}
	if !selfAllowed && a == b {
		return ErrSelfInteraction
	}
	return nil
}
