package services

import (
	"context"
	"strings"
	"time"

	"social-go/internal/changefeed"
	"social-go/internal/logging"
	"social-go/internal/metrics"
	"social-go/internal/models"
	"social-go/internal/result"
	"social-go/internal/storage"
)

// InteractionGuard 在每个写操作前做拉黑检查。被拒绝时不写任何数据；
// 通过时把结果原样返回。唯一约束冲突按幂等成功处理。
type InteractionGuard interface {
	GuardedLike(ctx context.Context, viewer, target string) result.Result[models.Like]
	GuardedFriendRequest(ctx context.Context, sender, receiver string) result.Result[models.Friendship]
	GuardedMessage(ctx context.Context, sender, receiver, content string) result.Result[models.Message]
	// GuardedVisitRecord reports whether a new visit row was written.
	GuardedVisitRecord(ctx context.Context, visitor, viewed string) result.Result[bool]
}

type interactionGuard struct {
	oracle  BlockOracle
	repos   storage.Repositories
	feed    changefeed.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewInteractionGuard wires the guard. feed may be nil, in which case sent
// messages are only visible through history loads.
func NewInteractionGuard(oracle BlockOracle, repos storage.Repositories, feed changefeed.Publisher, m *metrics.Metrics) InteractionGuard {
	return &interactionGuard{oracle: oracle, repos: repos, feed: feed, metrics: m, now: time.Now}
}

// blockDenial returns the failure for a block-check outcome, or false when the action may proceed.
func blockDenial[T any](ctx context.Context, op string, status models.BlockStatus, err error) (result.Result[T], bool) {
	if err != nil {
		return failFrom[T](ctx, op, err), true
	}
	if !status.IsBlocked {
		return result.Result[T]{}, false
	}
	if status.TheyBlockedMe {
		return result.Fail[T](result.KindBlocked, msgTheyBlockedYou), true
	}
	return result.Fail[T](result.KindBlocked, msgYouBlockedThem), true
}

func (g *interactionGuard) decided(action string, r interface{ Is(result.Kind) bool }, ok bool) {
	switch {
	case ok:
		g.metrics.GuardDecision(action, "allowed")
	case r.Is(result.KindBlocked):
		g.metrics.GuardDecision(action, "blocked")
	default:
		g.metrics.GuardDecision(action, "failed")
	}
}

func (g *interactionGuard) requireProfile(ctx context.Context, id string) error {
	p, err := g.repos.Profiles.GetByID(ctx, id)
	if err != nil {
		return storeErr("get profile", err)
	}
	if p == nil {
		return ErrProfileNotFound
	}
	return nil
}

func (g *interactionGuard) GuardedLike(ctx context.Context, viewer, target string) (r result.Result[models.Like]) {
	defer func() { g.decided("like", r, r.OK) }()

	if err := requirePair(viewer, target, false); err != nil {
		return failFrom[models.Like](ctx, "like", err)
	}
	status, err := g.oracle.GetBlockStatus(ctx, viewer, target)
	if denied, stop := blockDenial[models.Like](ctx, "like", status, err); stop {
		return denied
	}
	if err := g.requireProfile(ctx, target); err != nil {
		return failFrom[models.Like](ctx, "like", err)
	}

	like := models.Like{LikerID: viewer, LikedID: target}
	if err := g.repos.Likes.Create(ctx, &like); err != nil {
		if storage.IsUniqueViolation(err) {
			return result.Existing(like, "已经赞过了")
		}
		return failFrom[models.Like](ctx, "like", storeErr("create like", err))
	}
	return result.Ok(like)
}

func (g *interactionGuard) GuardedFriendRequest(ctx context.Context, sender, receiver string) (r result.Result[models.Friendship]) {
	defer func() { g.decided("friend_request", r, r.OK) }()

	if err := requirePair(sender, receiver, false); err != nil {
		return failFrom[models.Friendship](ctx, "friend_request", err)
	}
	status, err := g.oracle.GetBlockStatus(ctx, sender, receiver)
	if denied, stop := blockDenial[models.Friendship](ctx, "friend_request", status, err); stop {
		return denied
	}
	if err := g.requireProfile(ctx, receiver); err != nil {
		return failFrom[models.Friendship](ctx, "friend_request", err)
	}

	existing, err := g.repos.Friendships.FindBetween(ctx, sender, receiver)
	if err != nil {
		return failFrom[models.Friendship](ctx, "friend_request", storeErr("find friendship", err))
	}
	if existing != nil {
		return existingFriendship(*existing, sender)
	}

	request := models.Friendship{SenderID: sender, ReceiverID: receiver, Status: models.FriendshipStatusPending}
	if err := g.repos.Friendships.Create(ctx, &request); err != nil {
		if !storage.IsUniqueViolation(err) {
			return failFrom[models.Friendship](ctx, "friend_request", storeErr("create friendship", err))
		}
		// 并发请求先写入了同一对用户
		existing, err = g.repos.Friendships.FindBetween(ctx, sender, receiver)
		if err != nil || existing == nil {
			return result.Existing(request, "好友请求已存在")
		}
		return existingFriendship(*existing, sender)
	}
	return result.Ok(request)
}

func existingFriendship(f models.Friendship, sender string) result.Result[models.Friendship] {
	switch {
	case f.Status == models.FriendshipStatusAccepted:
		return result.Existing(f, "你们已经是好友了")
	case f.SenderID == sender:
		return result.Existing(f, "好友请求已发送，等待对方处理")
	default:
		return result.Existing(f, "对方已向你发送好友请求")
	}
}

func (g *interactionGuard) GuardedMessage(ctx context.Context, sender, receiver, content string) (r result.Result[models.Message]) {
	defer func() { g.decided("message", r, r.OK) }()

	if err := requirePair(sender, receiver, true); err != nil {
		return failFrom[models.Message](ctx, "message", err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return failFrom[models.Message](ctx, "message", ErrEmptyContent)
	}
	status, err := g.oracle.GetBlockStatus(ctx, sender, receiver)
	if denied, stop := blockDenial[models.Message](ctx, "message", status, err); stop {
		return denied
	}

	msg := models.Message{SenderID: sender, ReceiverID: receiver, Content: content}
	if err := g.repos.Messages.Create(ctx, &msg); err != nil {
		return failFrom[models.Message](ctx, "message", storeErr("create message", err))
	}
	g.announce(ctx, msg)
	return result.Ok(msg)
}

// announce publishes the committed message on the pair's channel. A failed
// publish does not undo the send; open sessions backfill on reconnect.
func (g *interactionGuard) announce(ctx context.Context, msg models.Message) {
	if g.feed == nil {
		return
	}
	ev, err := changefeed.NewEvent(msg.TableName(), changefeed.EventInsert, changefeed.ChatChannel(msg.SenderID, msg.ReceiverID), msg)
	if err == nil {
		err = g.feed.Publish(ctx, ev)
	}
	if err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "publish message event failed", "messageId", msg.ID, "error", err)
	}
}

func (g *interactionGuard) GuardedVisitRecord(ctx context.Context, visitor, viewed string) (r result.Result[bool]) {
	defer func() { g.decided("visit", r, r.OK) }()

	if err := requirePair(visitor, viewed, true); err != nil {
		return failFrom[bool](ctx, "visit", err)
	}
	if visitor == viewed {
		return result.Ok(false)
	}
	status, err := g.oracle.GetBlockStatus(ctx, visitor, viewed)
	if denied, stop := blockDenial[bool](ctx, "visit", status, err); stop {
		return denied
	}

	now := g.now().UTC()
	visit := models.Visit{VisitorID: visitor, ViewedID: viewed, VisitDate: now.Format(models.VisitDateLayout), VisitedAt: now}
	if err := g.repos.Visits.Create(ctx, &visit); err != nil {
		if storage.IsUniqueViolation(err) {
			return result.Existing(false, "今日已记录访问")
		}
		return failFrom[bool](ctx, "visit", storeErr("create visit", err))
	}
	return result.Ok(true)
}
