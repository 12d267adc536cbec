package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"social-go/internal/kafka"
	"social-go/internal/logging"
	"social-go/internal/metrics"
	"social-go/internal/models"
	"social-go/internal/result"
	"social-go/internal/storage"
)

var errAlreadyBlocked = errors.New("already blocked")

// BlockService 执行拉黑与解除拉黑。
type BlockService interface {
	// Block deletes any friendship and likes between the pair, then inserts
	// the directed block, all in one transaction. Blocking twice succeeds.
	Block(ctx context.Context, blocker, blocked string) result.Result[models.Block]
	// Unblock deletes the directed block only. Data is true when a row was removed.
	Unblock(ctx context.Context, blocker, blocked string) result.Result[bool]
	ListBlockedUsers(ctx context.Context, blocker string) result.Result[[]models.BlockedUser]
}

type blockService struct {
	repos   storage.Repositories
	tx      storage.TxRunner
	events  kafka.BlockEventPublisher
	metrics *metrics.Metrics
}

// NewBlockService wires the service. A nil events publisher disables fan-out.
func NewBlockService(repos storage.Repositories, tx storage.TxRunner, events kafka.BlockEventPublisher, m *metrics.Metrics) BlockService {
	if events == nil {
		events = kafka.NopBlockEventPublisher{}
	}
	return &blockService{repos: repos, tx: tx, events: events, metrics: m}
}

// ensureProfiles provisions a minimal profile for the actor and requires the
// target to exist.
func (s *blockService) ensureProfiles(ctx context.Context, actor, target string) error {
	created, err := s.repos.Profiles.EnsureExists(ctx, actor)
	if err != nil {
		return storeErr("provision actor profile", err)
	}
	if created {
		logging.FromContext(ctx).InfoContext(ctx, "provisioned missing profile", "userId", actor)
	}
	p, err := s.repos.Profiles.GetByID(ctx, target)
	if err != nil {
		return storeErr("get target profile", err)
	}
	if p == nil {
		return ErrProfileNotFound
	}
	return nil
}

func (s *blockService) Block(ctx context.Context, blocker, blocked string) result.Result[models.Block] {
	if err := requirePair(blocker, blocked, false); err != nil {
		s.metrics.BlockMutation("block", "invalid")
		return failFrom[models.Block](ctx, "block", err)
	}
	if err := s.ensureProfiles(ctx, blocker, blocked); err != nil {
		s.metrics.BlockMutation("block", "failed")
		return failFrom[models.Block](ctx, "block", err)
	}

	block := models.Block{BlockerID: blocker, BlockedID: blocked}
	err := s.tx.InTx(ctx, func(repos storage.Repositories) error {
		// 先删好友关系再插入拉黑行：拉黑与好友关系不能并存
		if _, err := repos.Friendships.DeleteBetween(ctx, blocker, blocked); err != nil {
			return storeErr("delete friendship", err)
		}
		if _, err := repos.Likes.Delete(ctx, blocker, blocked); err != nil {
			return storeErr("delete like", err)
		}
		if _, err := repos.Likes.Delete(ctx, blocked, blocker); err != nil {
			return storeErr("delete like", err)
		}
		exists, err := repos.Blocks.Exists(ctx, blocker, blocked)
		if err != nil {
			return storeErr("check block", err)
		}
		if exists {
			return nil
		}
		if err := repos.Blocks.Create(ctx, &block); err != nil {
			if storage.IsUniqueViolation(err) {
				return errAlreadyBlocked
			}
			return storeErr("create block", err)
		}
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyBlocked):
		s.metrics.BlockMutation("block", "existing")
		return result.Existing(block, "已拉黑该用户")
	case err != nil:
		s.metrics.BlockMutation("block", "failed")
		return failFrom[models.Block](ctx, "block", err)
	case block.ID == "":
		s.metrics.BlockMutation("block", "existing")
		return result.Existing(block, "已拉黑该用户")
	}

	s.metrics.BlockMutation("block", "created")
	s.publish(ctx, kafka.BlockActionBlocked, blocker, blocked)
	return result.Ok(block)
}

func (s *blockService) Unblock(ctx context.Context, blocker, blocked string) result.Result[bool] {
	if err := requirePair(blocker, blocked, false); err != nil {
		s.metrics.BlockMutation("unblock", "invalid")
		return failFrom[bool](ctx, "unblock", err)
	}
	n, err := s.repos.Blocks.Delete(ctx, blocker, blocked)
	if err != nil {
		s.metrics.BlockMutation("unblock", "failed")
		return failFrom[bool](ctx, "unblock", storeErr("delete block", err))
	}
	if n == 0 {
		s.metrics.BlockMutation("unblock", "absent")
		return result.Ok(false).WithInfo("未拉黑该用户")
	}
	s.metrics.BlockMutation("unblock", "deleted")
	s.publish(ctx, kafka.BlockActionUnblocked, blocker, blocked)
	return result.Ok(true)
}

// publish is best-effort; open sessions still see the change on their next poll.
func (s *blockService) publish(ctx context.Context, action kafka.BlockAction, blocker, blocked string) {
	ev := kafka.BlockChanged{Action: action, BlockerID: blocker, BlockedID: blocked, OccurredAt: time.Now().UTC()}
	if err := s.events.PublishBlockChanged(ctx, ev); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "publish block event failed", "action", action, "error", err)
	}
}

func (s *blockService) ListBlockedUsers(ctx context.Context, blocker string) result.Result[[]models.BlockedUser] {
	if blocker == "" {
		return failFrom[[]models.BlockedUser](ctx, "list_blocked", ErrMissingIdentity)
	}
	blocks, err := s.repos.Blocks.ListByBlocker(ctx, blocker)
	if err != nil {
		return failFrom[[]models.BlockedUser](ctx, "list_blocked", storeErr("list blocks", err))
	}
	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		ids = append(ids, b.BlockedID)
	}
	profiles, err := profileIndex(ctx, s.repos.Profiles, ids)
	if err != nil {
		return failFrom[[]models.BlockedUser](ctx, "list_blocked", err)
	}

	users := make([]models.BlockedUser, 0, len(blocks))
	for _, b := range blocks {
		entry := models.BlockedUser{ID: b.BlockedID, Username: models.DeletedUserName, BlockedAt: b.CreatedAt}
		if p, ok := profiles[b.BlockedID]; ok {
			entry.Username = p.DisplayName()
			entry.AvatarURL = p.AvatarURL
		}
		users = append(users, entry)
	}
	return result.Ok(users)
}

// profileIndex loads the profiles for ids keyed by id. Missing ids are absent.
func profileIndex(ctx context.Context, profiles storage.ProfileRepository, ids []string) (map[string]*models.Profile, error) {
	index := make(map[string]*models.Profile, len(ids))
	if len(ids) == 0 {
		return index, nil
	}
	rows, err := profiles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, storeErr(fmt.Sprintf("load %d profiles", len(ids)), err)
	}
	for i := range rows {
		index[rows[i].ID] = &rows[i]
	}
	return index, nil
}

// basicInfo falls back to the deleted-user placeholder.
func basicInfo(index map[string]*models.Profile, id string) models.ProfileBasicInfo {
	if p, ok := index[id]; ok {
		info := p.BasicInfo()
		info.Username = p.DisplayName()
		return info
	}
	return models.ProfileBasicInfo{ID: id, Username: models.DeletedUserName}
}
