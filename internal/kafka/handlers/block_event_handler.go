package kafkahandlers

import (
	"context"
	"log/slog"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	socialkafka "social-go/internal/kafka"
)

// BlockChangeNotifier is poked for every block change between two users.
type BlockChangeNotifier interface {
	NotifyBlockChange(userA, userB string)
}

// BlockEventConsumerLogic 把 Kafka 中的拉黑事件转发给本实例上打开的聊天会话。
type BlockEventConsumerLogic struct {
	notifier BlockChangeNotifier
}

// NewBlockEventConsumerLogic panics on a nil notifier.
func NewBlockEventConsumerLogic(notifier BlockChangeNotifier) *BlockEventConsumerLogic {
	if notifier == nil {
		panic("BlockChangeNotifier cannot be nil")
	}
	return &BlockEventConsumerLogic{notifier: notifier}
}

// HandleBlockEvent is a kafka.MessageHandler. Undecodable messages are skipped
// and committed; the sessions' periodic re-check covers anything lost.
func (h *BlockEventConsumerLogic) HandleBlockEvent(ctx context.Context, msg *kafka.Message) error {
	ev, err := socialkafka.DecodeBlockChanged(msg.Value)
	if err != nil {
		slog.WarnContext(ctx, "Skipping block event", "offset", msg.TopicPartition.Offset, "error", err)
		return nil
	}
	slog.DebugContext(ctx, "Block event received", "action", ev.Action, "blocker", ev.BlockerID, "blocked", ev.BlockedID)
	h.notifier.NotifyBlockChange(ev.BlockerID, ev.BlockedID)
	return nil
}
