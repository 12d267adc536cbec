package services

import (
	"context"

	"social-go/internal/models"
	"social-go/internal/result"
	"social-go/internal/storage"
)

// CountsService 计算个人页计数。每个计数都来自过滤后的列表，
// 被拉黑的好友不会计入好友数。
type CountsService interface {
	GetCounts(ctx context.Context, viewer string) result.Result[models.Counts]
}

type countsService struct {
	repos  storage.Repositories
	filter *VisibilityFilter
}

func NewCountsService(repos storage.Repositories, filter *VisibilityFilter) CountsService {
	return &countsService{repos: repos, filter: filter}
}

func (s *countsService) GetCounts(ctx context.Context, viewer string) result.Result[models.Counts] {
	if viewer == "" {
		return failFrom[models.Counts](ctx, "get_counts", ErrMissingIdentity)
	}
	counts, err := s.count(ctx, viewer)
	if err != nil {
		return failFrom[models.Counts](ctx, "get_counts", err)
	}
	return result.Ok(counts)
}

func (s *countsService) count(ctx context.Context, viewer string) (models.Counts, error) {
	var counts models.Counts
	blocked, err := s.filter.BlockedSet(ctx, viewer)
	if err != nil {
		return counts, err
	}

	likes, err := s.repos.Likes.ListByLiked(ctx, viewer)
	if err != nil {
		return counts, storeErr("list likes", err)
	}
	counts.Likes = len(Visible(blocked, likes, func(l models.Like) string { return l.LikerID }))

	friends, err := s.repos.Friendships.ListAccepted(ctx, viewer)
	if err != nil {
		return counts, storeErr("list friends", err)
	}
	counts.Friends = len(Visible(blocked, friends, func(f models.Friendship) string { return f.OtherParty(viewer) }))

	visits, err := s.repos.Visits.ListByViewed(ctx, viewer, visitorsLimit)
	if err != nil {
		return counts, storeErr("list visits", err)
	}
	counts.Visitors = len(Visible(blocked, visits, func(v models.Visit) string { return v.VisitorID }))

	pending, err := s.repos.Friendships.ListPendingFor(ctx, viewer)
	if err != nil {
		return counts, storeErr("list friend requests", err)
	}
	counts.PendingRequests = len(Visible(blocked, pending, func(f models.Friendship) string { return f.SenderID }))

	unread, err := s.repos.Messages.UnreadCountsBySender(ctx, viewer)
	if err != nil {
		return counts, storeErr("unread counts", err)
	}
	for sender, n := range unread {
		if !blocked.Contains(sender) {
			counts.UnreadMessages += int(n)
		}
	}
	return counts, nil
}
