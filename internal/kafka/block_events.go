package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"social-go/internal/models"
)

// BlockAction 标识拉黑事件的方向变化。
type BlockAction string

const (
	BlockActionBlocked   BlockAction = "blocked"
	BlockActionUnblocked BlockAction = "unblocked"
)

// BlockChanged is published after a block row is inserted or deleted.
type BlockChanged struct {
	Action     BlockAction `json:"action"`
	BlockerID  string      `json:"blockerId"`
	BlockedID  string      `json:"blockedId"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// PairKey keys the Kafka message so both directions of a pair share a partition.
func (e BlockChanged) PairKey() string {
	return models.PairKey(e.BlockerID, e.BlockedID)
}

// DecodeBlockChanged parses a message value.
func DecodeBlockChanged(value []byte) (BlockChanged, error) {
	var ev BlockChanged
	if err := json.Unmarshal(value, &ev); err != nil {
		return BlockChanged{}, fmt.Errorf("decode block event: %w", err)
	}
	if ev.BlockerID == "" || ev.BlockedID == "" {
		return BlockChanged{}, fmt.Errorf("decode block event: missing user ids")
	}
	return ev, nil
}

// BlockEventPublisher announces block changes to other processes.
type BlockEventPublisher interface {
	PublishBlockChanged(ctx context.Context, ev BlockChanged) error
}

// ProducerBlockEventPublisher writes BlockChanged events to one topic.
type ProducerBlockEventPublisher struct {
	producer MessageProducer
	topic    string
}

// NewBlockEventPublisher wraps producer for topic.
func NewBlockEventPublisher(producer MessageProducer, topic string) *ProducerBlockEventPublisher {
	return &ProducerBlockEventPublisher{producer: producer, topic: topic}
}

func (p *ProducerBlockEventPublisher) PublishBlockChanged(ctx context.Context, ev BlockChanged) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode block event: %w", err)
	}
	return p.producer.SendMessage(ctx, p.topic, []byte(ev.PairKey()), payload)
}

// NopBlockEventPublisher drops events; used when Kafka is disabled.
type NopBlockEventPublisher struct{}

func (NopBlockEventPublisher) PublishBlockChanged(context.Context, BlockChanged) error { return nil }
