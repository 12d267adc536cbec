package kafkahandlers

import (
	"context"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

type recordingNotifier struct {
	pairs [][2]string
}

func (r *recordingNotifier) NotifyBlockChange(a, b string) {
	r.pairs = append(r.pairs, [2]string{a, b})
}

func TestHandleBlockEventNotifiesPair(t *testing.T) {
	n := &recordingNotifier{}
	h := NewBlockEventConsumerLogic(n)
	topic := "social-block-events"
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic},
		Value:          []byte(`{"action":"blocked","blockerId":"a","blockedId":"b"}`),
	}
	if err := h.HandleBlockEvent(context.Background(), msg); err != nil {
		t.Fatalf("HandleBlockEvent: %v", err)
	}
	if len(n.pairs) != 1 || n.pairs[0] != [2]string{"a", "b"} {
		t.Fatalf("unexpected notifications %v", n.pairs)
	}
}

func TestHandleBlockEventSkipsGarbage(t *testing.T) {
	n := &recordingNotifier{}
	h := NewBlockEventConsumerLogic(n)
	for _, value := range []string{`not json`, `{"action":"blocked","blockerId":"a"}`} {
		if err := h.HandleBlockEvent(context.Background(), &kafka.Message{Value: []byte(value)}); err != nil {
			t.Fatalf("garbage must be skipped without error, got %v", err)
		}
	}
	if len(n.pairs) != 0 {
		t.Fatalf("garbage must not notify, got %v", n.pairs)
	}
}
