// Package chat 实现单个会话（查看者与一个对方）的实时聊天状态机。
package chat

import (
	"context"
	"time"

	"social-go/internal/changefeed"
	"social-go/internal/config"
	"social-go/internal/models"
	"social-go/internal/result"
)

// State is the session's position in its lifecycle.
type State string

const (
	StateInitializing State = "initializing"
	StateBlocked      State = "blocked"  // 对方拉黑了查看者
	StateBlocking     State = "blocking" // 查看者拉黑了对方
	StateActive       State = "active"
	StateClosed       State = "closed"
)

// stateFor maps a block status to the settled state. Blocked wins over Blocking.
func stateFor(status models.BlockStatus) State {
	switch {
	case status.TheyBlockedMe:
		return StateBlocked
	case status.IBlockedThem:
		return StateBlocking
	default:
		return StateActive
	}
}

// Notice kinds.
const (
	NoticeBlockedByCounterpart = "blocked_by_counterpart"
	NoticeUnauthenticated      = "unauthenticated"
	NoticeHistoryUnavailable   = "history_unavailable"
)

// Notice is a one-off user-visible message.
type Notice struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Snapshot is the externally visible session state.
type Snapshot struct {
	State           State             `json:"state"`
	ViewerID        string            `json:"viewerId"`
	CounterpartID   string            `json:"counterpartId"`
	CounterpartName string            `json:"counterpartName"`
	Draft           string            `json:"draft"`
	Connection      changefeed.Status `json:"connection,omitempty"`
}

// Listener receives session output. All calls happen on the session's event
// loop, one at a time; implementations must not block and must not call
// Close or History.
type Listener interface {
	OnState(snap Snapshot)
	OnHistory(messages []models.Message)
	OnMessage(msg models.Message, autoScroll bool)
	OnNotice(n Notice)
}

// IdentityProvider resolves the signed-in user.
type IdentityProvider interface {
	CurrentIdentity(ctx context.Context) (string, bool)
}

// BlockChecker is satisfied by services.BlockOracle.
type BlockChecker interface {
	GetBlockStatus(ctx context.Context, viewer, subject string) (models.BlockStatus, error)
}

// MessageStore is satisfied by storage.MessageRepository.
type MessageStore interface {
	ListBetween(ctx context.Context, userA, userB string, since *time.Time) ([]models.Message, error)
	MarkRead(ctx context.Context, receiverID string, ids []string) (int64, error)
}

// ProfileLookup is satisfied by storage.ProfileRepository.
type ProfileLookup interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
}

// MessageSender is satisfied by services.InteractionGuard.
type MessageSender interface {
	GuardedMessage(ctx context.Context, sender, receiver, content string) result.Result[models.Message]
}

// Unblocker is satisfied by services.BlockService.
type Unblocker interface {
	Unblock(ctx context.Context, blocker, blocked string) result.Result[bool]
}

// Options tune the session timers.
type Options struct {
	ReconnectBackoff    time.Duration
	ReconnectBackoffMax time.Duration // > ReconnectBackoff enables doubling
	BlockCheckInterval  time.Duration
}

// OptionsFromConfig reads the CHAT section.
func OptionsFromConfig(cfg config.ChatConfig) Options {
	return Options{
		ReconnectBackoff:    cfg.ReconnectBackoff,
		ReconnectBackoffMax: cfg.ReconnectBackoffMax,
		BlockCheckInterval:  cfg.BlockCheckInterval,
	}
}

func (o Options) withDefaults() Options {
	if o.ReconnectBackoff <= 0 {
		o.ReconnectBackoff = 3 * time.Second
	}
	if o.ReconnectBackoffMax < o.ReconnectBackoff {
		o.ReconnectBackoffMax = o.ReconnectBackoff
	}
	if o.BlockCheckInterval <= 0 {
		o.BlockCheckInterval = 10 * time.Second
	}
	return o
}
