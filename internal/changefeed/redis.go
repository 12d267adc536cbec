package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFeed carries change events over Redis Pub/Sub, one channel per scope.
type RedisFeed struct {
	client           *redis.Client
	prefix           string
	buffer           int
	subscribeTimeout time.Duration
}

var (
	_ Feed      = (*RedisFeed)(nil)
	_ Publisher = (*RedisFeed)(nil)
)

// NewRedisFeed creates a feed on an existing client.
func NewRedisFeed(client *redis.Client, prefix string, buffer int, subscribeTimeout time.Duration) *RedisFeed {
	if prefix == "" {
		prefix = "changes"
	}
	if subscribeTimeout <= 0 {
		subscribeTimeout = 10 * time.Second
	}
	return &RedisFeed{client: client, prefix: prefix, buffer: buffer, subscribeTimeout: subscribeTimeout}
}

func (f *RedisFeed) key(channel string) string {
	return f.prefix + ":" + channel
}

// Publish sends ev on its channel.
func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("changefeed: encode event: %w", err)
	}
	if err := f.client.Publish(ctx, f.key(ev.Channel), payload).Err(); err != nil {
		return fmt.Errorf("changefeed: publish to %s: %w", ev.Channel, err)
	}
	return nil
}

// Subscribe listens on filter.Channel; events are further narrowed by the filter.
func (f *RedisFeed) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	if filter.Channel == "" {
		return nil, errors.New("changefeed: redis subscription requires a channel")
	}
	sub := newSubscription(f.buffer)
	ps := f.client.Subscribe(ctx, f.key(filter.Channel))
	sub.stop = func() { _ = ps.Close() }
	go f.run(ctx, ps, sub, filter)
	return sub, nil
}

func (f *RedisFeed) run(ctx context.Context, ps *redis.PubSub, sub *subscription, filter Filter) {
	sub.emitStatus(StatusConnecting)

	confirmCtx, cancel := context.WithTimeout(ctx, f.subscribeTimeout)
	_, err := ps.Receive(confirmCtx)
	cancel()
	if err != nil {
		if sub.closed() {
			return
		}
		if isTimeout(err) {
			sub.emitStatus(StatusTimedOut)
		} else {
			slog.Warn("changefeed: redis subscribe failed", "channel", filter.Channel, "error", err)
			sub.emitStatus(StatusError)
		}
		return
	}
	sub.emitStatus(StatusConnected)

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if sub.closed() || ctx.Err() != nil {
				return
			}
			slog.Warn("changefeed: redis receive failed", "channel", filter.Channel, "error", err)
			sub.emitStatus(StatusError)
			return
		}
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			slog.Warn("changefeed: dropping undecodable event", "channel", msg.Channel, "error", err)
			continue
		}
		if !filter.Match(ev) {
			continue
		}
		if !sub.emitEvent(ev) {
			return
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
