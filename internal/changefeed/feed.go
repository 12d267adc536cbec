// Package changefeed 提供存储层的行变更通知：按表和行条件订阅已提交的变更。
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"social-go/internal/models"
)

// EventKind is the kind of row change.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// Status 是订阅的连接状态。
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusError      Status = "error"
	StatusTimedOut   Status = "timed-out"
)

// Event is one committed row change.
type Event struct {
	Table       string          `json:"table"`
	Kind        EventKind       `json:"kind"`
	Channel     string          `json:"channel"`
	Row         json.RawMessage `json:"row"`
	CommittedAt time.Time       `json:"committedAt"`
}

// NewEvent encodes row into an event for table on channel.
func NewEvent(table string, kind EventKind, channel string, row any) (Event, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return Event{}, fmt.Errorf("changefeed: encode %s row: %w", table, err)
	}
	return Event{Table: table, Kind: kind, Channel: channel, Row: raw, CommittedAt: time.Now().UTC()}, nil
}

// Decode unmarshals the row payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Row, v)
}

// Filter scopes a subscription. Empty fields match everything.
type Filter struct {
	Table     string
	Events    []EventKind
	Channel   string
	Predicate func(Event) bool
}

// Match reports whether ev passes the filter.
func (f Filter) Match(ev Event) bool {
	if f.Table != "" && ev.Table != f.Table {
		return false
	}
	if f.Channel != "" && ev.Channel != f.Channel {
		return false
	}
	if len(f.Events) > 0 && !slices.Contains(f.Events, ev.Kind) {
		return false
	}
	if f.Predicate != nil && !f.Predicate(ev) {
		return false
	}
	return true
}

// Subscription delivers matching events in commit order, at least once, and
// reports lifecycle status. Unsubscribe is idempotent; after it returns no
// further values are sent and Done is closed.
type Subscription interface {
	Events() <-chan Event
	Status() <-chan Status
	Done() <-chan struct{}
	Unsubscribe()
}

// Feed opens subscriptions.
type Feed interface {
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)
}

// Publisher announces committed changes.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// ChatChannel is the channel for messages between an unordered pair.
func ChatChannel(userA, userB string) string {
	return "chat:" + models.PairKey(userA, userB)
}

// subscription is the shared channel plumbing of every transport.
type subscription struct {
	events chan Event
	status chan Status
	done   chan struct{}
	once   sync.Once
	stop   func()
}

func newSubscription(buffer int) *subscription {
	if buffer <= 0 {
		buffer = 16
	}
	return &subscription{
		events: make(chan Event, buffer),
		status: make(chan Status, 4),
		done:   make(chan struct{}),
	}
}

func (s *subscription) Events() <-chan Event  { return s.events }
func (s *subscription) Status() <-chan Status { return s.status }
func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		if s.stop != nil {
			s.stop()
		}
	})
}

func (s *subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *subscription) emitStatus(st Status) {
	select {
	case s.status <- st:
	case <-s.done:
	}
}

func (s *subscription) emitEvent(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}
