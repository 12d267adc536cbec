package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"social-go/internal/config"
	"social-go/internal/models"
	"social-go/internal/result"
	"social-go/internal/storage"
)

const (
	visitorsLimit     = 100
	maxUsernameLength = 100
	maxBioLength      = 2000
)

// ProfileService 负责资料、发现页、点赞列表与访客列表。所有列表都经过拉黑过滤。
type ProfileService interface {
	GetMyProfile(ctx context.Context, viewer string) result.Result[models.Profile]
	UpdateProfile(ctx context.Context, viewer string, update models.ProfileUpdate) result.Result[models.Profile]
	GetProfileDetails(ctx context.Context, viewer, subject string) result.Result[models.ProfileDetails]
	DiscoveryFeed(ctx context.Context, viewer string) result.Result[[]models.ProfileCard]
	ListLikers(ctx context.Context, viewer string) result.Result[[]models.LikerEntry]
	RemoveLike(ctx context.Context, viewer, target string) result.Result[bool]
	ListVisitors(ctx context.Context, viewer string) result.Result[[]models.VisitorEntry]
}

type profileService struct {
	repos  storage.Repositories
	oracle BlockOracle
	filter *VisibilityFilter
	cfg    config.DiscoveryConfig
}

// NewProfileService creates a new ProfileService instance.
func NewProfileService(repos storage.Repositories, oracle BlockOracle, filter *VisibilityFilter, cfg config.DiscoveryConfig) ProfileService {
	if cfg.FeedFetchLimit <= 0 {
		cfg.FeedFetchLimit = 100
	}
	if cfg.FeedPageSize <= 0 {
		cfg.FeedPageSize = 50
	}
	return &profileService{repos: repos, oracle: oracle, filter: filter, cfg: cfg}
}

func (s *profileService) GetMyProfile(ctx context.Context, viewer string) result.Result[models.Profile] {
	if viewer == "" {
		return failFrom[models.Profile](ctx, "get_my_profile", ErrMissingIdentity)
	}
	p, err := s.repos.Profiles.GetByID(ctx, viewer)
	if err != nil {
		return failFrom[models.Profile](ctx, "get_my_profile", storeErr("get profile", err))
	}
	if p == nil {
		// 尚未填写资料时返回空资料
		return result.Ok(models.Profile{ID: viewer, Interests: []string{}})
	}
	return result.Ok(*p)
}

func (s *profileService) UpdateProfile(ctx context.Context, viewer string, update models.ProfileUpdate) result.Result[models.Profile] {
	if viewer == "" {
		return failFrom[models.Profile](ctx, "update_profile", ErrMissingIdentity)
	}
	current, err := s.repos.Profiles.GetByID(ctx, viewer)
	if err != nil {
		return failFrom[models.Profile](ctx, "update_profile", storeErr("get profile", err))
	}
	p := models.Profile{ID: viewer, Interests: []string{}}
	if current != nil {
		p = *current
	}
	if err := applyProfileUpdate(&p, update); err != nil {
		return failFrom[models.Profile](ctx, "update_profile", err)
	}
	p.UpdatedAt = time.Now().UTC()
	if err := s.repos.Profiles.Save(ctx, &p); err != nil {
		return failFrom[models.Profile](ctx, "update_profile", storeErr("save profile", err))
	}
	return result.Ok(p)
}

func applyProfileUpdate(p *models.Profile, u models.ProfileUpdate) error {
	if u.Username != nil {
		name := strings.TrimSpace(*u.Username)
		if utf8.RuneCountInString(name) > maxUsernameLength {
			return fmt.Errorf("%w: username too long", ErrInvalidProfile)
		}
		p.Username = name
	}
	if u.Age != nil {
		if *u.Age < 0 || *u.Age > 150 {
			return fmt.Errorf("%w: age out of range", ErrInvalidProfile)
		}
		p.Age = *u.Age
	}
	if u.Bio != nil {
		if utf8.RuneCountInString(*u.Bio) > maxBioLength {
			return fmt.Errorf("%w: bio too long", ErrInvalidProfile)
		}
		p.Bio = *u.Bio
	}
	if u.Location != nil {
		p.Location = strings.TrimSpace(*u.Location)
	}
	if u.Interests != nil {
		interests := make([]string, 0, len(*u.Interests))
		for _, i := range *u.Interests {
			if i = strings.TrimSpace(i); i != "" {
				interests = append(interests, i)
			}
		}
		p.Interests = interests
	}
	if u.AvatarURL != nil {
		p.AvatarURL = strings.TrimSpace(*u.AvatarURL)
	}
	return nil
}

// GetProfileDetails checks the block both before and after the fetch, so a
// block created while the profile was loading still hides it.
func (s *profileService) GetProfileDetails(ctx context.Context, viewer, subject string) result.Result[models.ProfileDetails] {
	if err := requirePair(viewer, subject, true); err != nil {
		return failFrom[models.ProfileDetails](ctx, "profile_details", err)
	}
	status, err := s.oracle.GetBlockStatus(ctx, viewer, subject)
	if denied, stop := blockDenial[models.ProfileDetails](ctx, "profile_details", status, err); stop {
		return denied
	}

	p, err := s.repos.Profiles.GetByID(ctx, subject)
	if err != nil {
		return failFrom[models.ProfileDetails](ctx, "profile_details", storeErr("get profile", err))
	}
	if p == nil {
		return failFrom[models.ProfileDetails](ctx, "profile_details", ErrProfileNotFound)
	}

	counts, err := s.repos.Likes.CountByLiked(ctx, []string{subject})
	if err != nil {
		return failFrom[models.ProfileDetails](ctx, "profile_details", storeErr("count likes", err))
	}
	liked, err := s.repos.Likes.Exists(ctx, viewer, subject)
	if err != nil {
		return failFrom[models.ProfileDetails](ctx, "profile_details", storeErr("check like", err))
	}
	friendship, err := s.repos.Friendships.FindBetween(ctx, viewer, subject)
	if err != nil {
		return failFrom[models.ProfileDetails](ctx, "profile_details", storeErr("find friendship", err))
	}

	status, err = s.oracle.GetBlockStatus(ctx, viewer, subject)
	if denied, stop := blockDenial[models.ProfileDetails](ctx, "profile_details", status, err); stop {
		return denied
	}
	return result.Ok(models.ProfileDetails{
		Profile:   *p,
		LikeCount: counts[subject],
		IsLiked:   liked,
		IsFriend:  friendship != nil && friendship.Status == models.FriendshipStatusAccepted,
	})
}

// DiscoveryFeed fetches the newest FeedFetchLimit profiles, drops self and
// blocked users, and returns up to FeedPageSize cards.
func (s *profileService) DiscoveryFeed(ctx context.Context, viewer string) result.Result[[]models.ProfileCard] {
	if viewer == "" {
		return failFrom[[]models.ProfileCard](ctx, "discovery_feed", ErrMissingIdentity)
	}
	candidates, err := s.repos.Profiles.ListRecent(ctx, viewer, s.cfg.FeedFetchLimit)
	if err != nil {
		return failFrom[[]models.ProfileCard](ctx, "discovery_feed", storeErr("list profiles", err))
	}
	blocked, err := s.filter.BlockedSet(ctx, viewer)
	if err != nil {
		return failFrom[[]models.ProfileCard](ctx, "discovery_feed", err)
	}
	visible := Apply(s.filter, "feed", blocked, candidates, func(p models.Profile) string { return p.ID })
	if len(visible) > s.cfg.FeedPageSize {
		visible = visible[:s.cfg.FeedPageSize]
	}

	ids := make([]string, 0, len(visible))
	for _, p := range visible {
		ids = append(ids, p.ID)
	}
	counts, err := s.repos.Likes.CountByLiked(ctx, ids)
	if err != nil {
		return failFrom[[]models.ProfileCard](ctx, "discovery_feed", storeErr("count likes", err))
	}
	liked, err := s.repos.Likes.LikedAmong(ctx, viewer, ids)
	if err != nil {
		return failFrom[[]models.ProfileCard](ctx, "discovery_feed", storeErr("liked among", err))
	}

	cards := make([]models.ProfileCard, 0, len(visible))
	for _, p := range visible {
		cards = append(cards, models.ProfileCard{Profile: p, LikeCount: counts[p.ID], IsLiked: liked[p.ID]})
	}
	return result.Ok(cards)
}

func (s *profileService) ListLikers(ctx context.Context, viewer string) result.Result[[]models.LikerEntry] {
	entries, err := s.likers(ctx, viewer)
	if err != nil {
		return failFrom[[]models.LikerEntry](ctx, "list_likers", err)
	}
	return result.Ok(entries)
}

func (s *profileService) likers(ctx context.Context, viewer string) ([]models.LikerEntry, error) {
	if viewer == "" {
		return nil, ErrMissingIdentity
	}
	likes, err := s.repos.Likes.ListByLiked(ctx, viewer)
	if err != nil {
		return nil, storeErr("list likes", err)
	}
	blocked, err := s.filter.BlockedSet(ctx, viewer)
	if err != nil {
		return nil, err
	}
	likes = Apply(s.filter, "likers", blocked, likes, func(l models.Like) string { return l.LikerID })

	ids := make([]string, 0, len(likes))
	for _, l := range likes {
		ids = append(ids, l.LikerID)
	}
	index, err := profileIndex(ctx, s.repos.Profiles, ids)
	if err != nil {
		return nil, err
	}
	entries := make([]models.LikerEntry, 0, len(likes))
	for _, l := range likes {
		entries = append(entries, models.LikerEntry{Liker: basicInfo(index, l.LikerID), LikedAt: l.CreatedAt})
	}
	return entries, nil
}

// RemoveLike is a plain delete; removing an absent like succeeds with false.
func (s *profileService) RemoveLike(ctx context.Context, viewer, target string) result.Result[bool] {
	if err := requirePair(viewer, target, false); err != nil {
		return failFrom[bool](ctx, "remove_like", err)
	}
	n, err := s.repos.Likes.Delete(ctx, viewer, target)
	if err != nil {
		return failFrom[bool](ctx, "remove_like", storeErr("delete like", err))
	}
	return result.Ok(n > 0)
}

func (s *profileService) ListVisitors(ctx context.Context, viewer string) result.Result[[]models.VisitorEntry] {
	entries, err := s.visitors(ctx, viewer)
	if err != nil {
		return failFrom[[]models.VisitorEntry](ctx, "list_visitors", err)
	}
	return result.Ok(entries)
}

func (s *profileService) visitors(ctx context.Context, viewer string) ([]models.VisitorEntry, error) {
	if viewer == "" {
		return nil, ErrMissingIdentity
	}
	visits, err := s.repos.Visits.ListByViewed(ctx, viewer, visitorsLimit)
	if err != nil {
		return nil, storeErr("list visits", err)
	}
	blocked, err := s.filter.BlockedSet(ctx, viewer)
	if err != nil {
		return nil, err
	}
	visits = Apply(s.filter, "visitors", blocked, visits, func(v models.Visit) string { return v.VisitorID })

	ids := make([]string, 0, len(visits))
	for _, v := range visits {
		ids = append(ids, v.VisitorID)
	}
	index, err := profileIndex(ctx, s.repos.Profiles, ids)
	if err != nil {
		return nil, err
	}
	entries := make([]models.VisitorEntry, 0, len(visits))
	for _, v := range visits {
		entries = append(entries, models.VisitorEntry{Visitor: basicInfo(index, v.VisitorID), VisitedAt: v.VisitedAt})
	}
	return entries, nil
}
