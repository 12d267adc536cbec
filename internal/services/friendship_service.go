package services

import (
	"context"

	"social-go/internal/models"
	"social-go/internal/result"
	"social-go/internal/storage"
)

// FriendshipService defines the interface for friend request and friend list operations.
type FriendshipService interface {
	SendFriendRequest(ctx context.Context, sender, receiver string) result.Result[models.Friendship]
	AcceptFriendRequest(ctx context.Context, receiver, requestID string) result.Result[models.Friendship]
	RejectFriendRequest(ctx context.Context, receiver, requestID string) result.Result[bool]
	Unfriend(ctx context.Context, viewer, other string) result.Result[bool]
	ListFriends(ctx context.Context, viewer string) result.Result[[]models.FriendEntry]
	ListIncomingRequests(ctx context.Context, viewer string) result.Result[[]models.FriendRequestWithSender]
}

type friendshipService struct {
	repos  storage.Repositories
	guard  InteractionGuard
	oracle BlockOracle
	filter *VisibilityFilter
}

// NewFriendshipService creates a new FriendshipService instance.
func NewFriendshipService(repos storage.Repositories, guard InteractionGuard, oracle BlockOracle, filter *VisibilityFilter) FriendshipService {
	return &friendshipService{repos: repos, guard: guard, oracle: oracle, filter: filter}
}

func (s *friendshipService) SendFriendRequest(ctx context.Context, sender, receiver string) result.Result[models.Friendship] {
	return s.guard.GuardedFriendRequest(ctx, sender, receiver)
}

// pendingFor loads a request and checks that receiver may act on it.
func (s *friendshipService) pendingFor(ctx context.Context, receiver, requestID string) (*models.Friendship, error) {
	if receiver == "" || requestID == "" {
		return nil, ErrMissingIdentity
	}
	request, err := s.repos.Friendships.GetByID(ctx, requestID)
	if err != nil {
		return nil, storeErr("get friend request", err)
	}
	if request == nil {
		return nil, ErrFriendRequestNotFound
	}
	if request.ReceiverID != receiver {
		return nil, ErrNotRecipientOfRequest
	}
	if request.Status != models.FriendshipStatusPending {
		return nil, ErrRequestNotPending
	}
	return request, nil
}

// AcceptFriendRequest refuses when a block appeared after the request was sent.
func (s *friendshipService) AcceptFriendRequest(ctx context.Context, receiver, requestID string) result.Result[models.Friendship] {
	request, err := s.pendingFor(ctx, receiver, requestID)
	if err != nil {
		return failFrom[models.Friendship](ctx, "accept_friend_request", err)
	}
	status, err := s.oracle.GetBlockStatus(ctx, receiver, request.SenderID)
	if denied, stop := blockDenial[models.Friendship](ctx, "accept_friend_request", status, err); stop {
		return denied
	}
	if err := s.repos.Friendships.UpdateStatus(ctx, request.ID, models.FriendshipStatusAccepted); err != nil {
		return failFrom[models.Friendship](ctx, "accept_friend_request", storeErr("accept friend request", err))
	}
	request.Status = models.FriendshipStatusAccepted
	return result.Ok(*request)
}

func (s *friendshipService) RejectFriendRequest(ctx context.Context, receiver, requestID string) result.Result[bool] {
	request, err := s.pendingFor(ctx, receiver, requestID)
	if err != nil {
		return failFrom[bool](ctx, "reject_friend_request", err)
	}
	n, err := s.repos.Friendships.DeleteByID(ctx, request.ID)
	if err != nil {
		return failFrom[bool](ctx, "reject_friend_request", storeErr("delete friend request", err))
	}
	return result.Ok(n > 0)
}

func (s *friendshipService) Unfriend(ctx context.Context, viewer, other string) result.Result[bool] {
	if err := requirePair(viewer, other, false); err != nil {
		return failFrom[bool](ctx, "unfriend", err)
	}
	friendship, err := s.repos.Friendships.FindBetween(ctx, viewer, other)
	if err != nil {
		return failFrom[bool](ctx, "unfriend", storeErr("find friendship", err))
	}
	if friendship == nil || friendship.Status != models.FriendshipStatusAccepted {
		return failFrom[bool](ctx, "unfriend", ErrNotFriends)
	}
	n, err := s.repos.Friendships.DeleteByID(ctx, friendship.ID)
	if err != nil {
		return failFrom[bool](ctx, "unfriend", storeErr("delete friendship", err))
	}
	return result.Ok(n > 0)
}

func (s *friendshipService) ListFriends(ctx context.Context, viewer string) result.Result[[]models.FriendEntry] {
	entries, err := s.friends(ctx, viewer)
	if err != nil {
		return failFrom[[]models.FriendEntry](ctx, "list_friends", err)
	}
	return result.Ok(entries)
}

func (s *friendshipService) friends(ctx context.Context, viewer string) ([]models.FriendEntry, error) {
	if viewer == "" {
		return nil, ErrMissingIdentity
	}
	rows, err := s.repos.Friendships.ListAccepted(ctx, viewer)
	if err != nil {
		return nil, storeErr("list friends", err)
	}
	blocked, err := s.filter.BlockedSet(ctx, viewer)
	if err != nil {
		return nil, err
	}
	rows = Apply(s.filter, "friends", blocked, rows, func(f models.Friendship) string { return f.OtherParty(viewer) })

	ids := make([]string, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].OtherParty(viewer))
	}
	index, err := profileIndex(ctx, s.repos.Profiles, ids)
	if err != nil {
		return nil, err
	}
	entries := make([]models.FriendEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, models.FriendEntry{FriendshipID: rows[i].ID, Friend: basicInfo(index, rows[i].OtherParty(viewer))})
	}
	return entries, nil
}

func (s *friendshipService) ListIncomingRequests(ctx context.Context, viewer string) result.Result[[]models.FriendRequestWithSender] {
	requests, err := s.incoming(ctx, viewer)
	if err != nil {
		return failFrom[[]models.FriendRequestWithSender](ctx, "list_incoming_requests", err)
	}
	return result.Ok(requests)
}

func (s *friendshipService) incoming(ctx context.Context, viewer string) ([]models.FriendRequestWithSender, error) {
	if viewer == "" {
		return nil, ErrMissingIdentity
	}
	rows, err := s.repos.Friendships.ListPendingFor(ctx, viewer)
	if err != nil {
		return nil, storeErr("list friend requests", err)
	}
	blocked, err := s.filter.BlockedSet(ctx, viewer)
	if err != nil {
		return nil, err
	}
	rows = Apply(s.filter, "friend_requests", blocked, rows, func(f models.Friendship) string { return f.SenderID })

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.SenderID)
	}
	index, err := profileIndex(ctx, s.repos.Profiles, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.FriendRequestWithSender, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.FriendRequestWithSender{Friendship: r, Sender: basicInfo(index, r.SenderID)})
	}
	return out, nil
}
