package services

import (
	"cmp"
	"context"
	"slices"
	"time"

	"social-go/internal/models"
	"social-go/internal/result"
	"social-go/internal/storage"
)

// MessageService 定义了私信相关服务的接口。
type MessageService interface {
	SendMessage(ctx context.Context, sender, receiver, content string) result.Result[models.Message]
	// ListMessagesWithUser returns the conversation ascending; blocked pairs get an empty list.
	ListMessagesWithUser(ctx context.Context, viewer, other string, since *time.Time) result.Result[[]models.Message]
	ListChatPartners(ctx context.Context, viewer string) result.Result[[]models.ChatPartner]
	// MarkRead flags ids addressed to viewer as read and returns how many changed.
	// Messages from users on either side of a block with viewer are left untouched.
	MarkRead(ctx context.Context, viewer string, ids []string) result.Result[int64]
}

type messageService struct {
	repos  storage.Repositories
	guard  InteractionGuard
	oracle BlockOracle
	filter *VisibilityFilter
}

// NewMessageService 创建一个新的 MessageService 实例。
func NewMessageService(repos storage.Repositories, guard InteractionGuard, oracle BlockOracle, filter *VisibilityFilter) MessageService {
	return &messageService{repos: repos, guard: guard, oracle: oracle, filter: filter}
}

func (s *messageService) SendMessage(ctx context.Context, sender, receiver, content string) result.Result[models.Message] {
	return s.guard.GuardedMessage(ctx, sender, receiver, content)
}

func (s *messageService) ListMessagesWithUser(ctx context.Context, viewer, other string, since *time.Time) result.Result[[]models.Message] {
	if err := requirePair(viewer, other, true); err != nil {
		return failFrom[[]models.Message](ctx, "list_messages", err)
	}
	status, err := s.oracle.GetBlockStatus(ctx, viewer, other)
	if err != nil {
		return failFrom[[]models.Message](ctx, "list_messages", err)
	}
	if status.IsBlocked {
		return result.Ok([]models.Message{})
	}
	messages, err := s.repos.Messages.ListBetween(ctx, viewer, other, since)
	if err != nil {
		return failFrom[[]models.Message](ctx, "list_messages", storeErr("list messages", err))
	}
	return result.Ok(messages)
}

func (s *messageService) ListChatPartners(ctx context.Context, viewer string) result.Result[[]models.ChatPartner] {
	if viewer == "" {
		return failFrom[[]models.ChatPartner](ctx, "list_chat_partners", ErrMissingIdentity)
	}
	latest, err := s.repos.Messages.LatestPerPartner(ctx, viewer)
	if err != nil {
		return failFrom[[]models.ChatPartner](ctx, "list_chat_partners", storeErr("latest messages", err))
	}
	unread, err := s.repos.Messages.UnreadCountsBySender(ctx, viewer)
	if err != nil {
		return failFrom[[]models.ChatPartner](ctx, "list_chat_partners", storeErr("unread counts", err))
	}
	blocked, err := s.filter.BlockedSet(ctx, viewer)
	if err != nil {
		return failFrom[[]models.ChatPartner](ctx, "list_chat_partners", err)
	}
	partnerOf := func(m models.Message) string {
		if m.SenderID == viewer {
			return m.ReceiverID
		}
		return m.SenderID
	}
	latest = Apply(s.filter, "chat_partners", blocked, latest, partnerOf)

	ids := make([]string, 0, len(latest))
	for _, m := range latest {
		ids = append(ids, partnerOf(m))
	}
	index, err := profileIndex(ctx, s.repos.Profiles, ids)
	if err != nil {
		return failFrom[[]models.ChatPartner](ctx, "list_chat_partners", err)
	}

	partners := make([]models.ChatPartner, 0, len(latest))
	for _, m := range latest {
		id := partnerOf(m)
		partners = append(partners, models.ChatPartner{
			Partner:       basicInfo(index, id),
			LastMessage:   m.Content,
			LastMessageAt: m.CreatedAt,
			UnreadCount:   int(unread[id]),
		})
	}
	slices.SortStableFunc(partners, func(a, b models.ChatPartner) int {
		return cmp.Compare(b.LastMessageAt.UnixNano(), a.LastMessageAt.UnixNano())
	})
	return result.Ok(partners)
}

func (s *messageService) MarkRead(ctx context.Context, viewer string, ids []string) result.Result[int64] {
	if viewer == "" {
		return failFrom[int64](ctx, "mark_read", ErrMissingIdentity)
	}
	if len(ids) == 0 {
		return result.Ok(int64(0))
	}
	unread, err := s.repos.Messages.ListUnreadByIDs(ctx, viewer, ids)
	if err != nil {
		return failFrom[int64](ctx, "mark_read", storeErr("load unread", err))
	}
	if len(unread) == 0 {
		return result.Ok(int64(0))
	}
	blocked, err := s.filter.BlockedSet(ctx, viewer)
	if err != nil {
		return failFrom[int64](ctx, "mark_read", err)
	}
	unread = Apply(s.filter, "mark_read", blocked, unread, func(m models.Message) string { return m.SenderID })
	if len(unread) == 0 {
		return result.Ok(int64(0))
	}
	allowed := make([]string, 0, len(unread))
	for _, m := range unread {
		allowed = append(allowed, m.ID)
	}

	n, err := s.repos.Messages.MarkRead(ctx, viewer, allowed)
	if err != nil {
		return failFrom[int64](ctx, "mark_read", storeErr("mark read", err))
	}
	return result.Ok(n)
}
