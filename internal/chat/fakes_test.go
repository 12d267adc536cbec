package chat

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"social-go/internal/changefeed"
	"social-go/internal/models"
	"social-go/internal/result"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeIdentity struct {
	mu sync.Mutex
	id string
}

func (f *fakeIdentity) CurrentIdentity(ctx context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id, f.id != ""
}

func (f *fakeIdentity) set(id string) {
	f.mu.Lock()
	f.id = id
	f.mu.Unlock()
}

type fakeBlocks struct {
	mu     sync.Mutex
	status models.BlockStatus
	err    error
	calls  int
}

func (f *fakeBlocks) GetBlockStatus(ctx context.Context, viewer, subject string) (models.BlockStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return models.BlockStatus{}, f.err
	}
	return f.status, nil
}

func (f *fakeBlocks) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeBlocks) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeBlocks) set(iBlocked, theyBlocked bool) {
	f.mu.Lock()
	f.status = models.NewBlockStatus(iBlocked, theyBlocked)
	f.mu.Unlock()
}

type fakeMessages struct {
	mu        sync.Mutex
	seq       int
	msgs      []models.Message
	listCalls int
	markCalls [][]string
}

func (f *fakeMessages) add(sender, receiver, content string, read bool) models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	m := models.Message{
		BaseModel:  models.BaseModel{ID: fmt.Sprintf("m%03d", f.seq), CreatedAt: t0.Add(time.Duration(f.seq) * time.Second)},
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		IsRead:     read,
	}
	f.msgs = append(f.msgs, m)
	return m
}

func (f *fakeMessages) ListBetween(ctx context.Context, a, b string, since *time.Time) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []models.Message
	for _, m := range f.msgs {
		if m.Involves(a, b) && (since == nil || !m.CreatedAt.Before(*since)) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessages) MarkRead(ctx context.Context, receiverID string, ids []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls = append(f.markCalls, slices.Clone(ids))
	var n int64
	for i := range f.msgs {
		if f.msgs[i].ReceiverID == receiverID && !f.msgs[i].IsRead && slices.Contains(ids, f.msgs[i].ID) {
			f.msgs[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) isRead(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ID == id {
			return m.IsRead
		}
	}
	return false
}

func (f *fakeMessages) lists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type fakeProfiles struct{}

func (fakeProfiles) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	return &models.Profile{ID: id, Username: "name-" + id}, nil
}

type fakeSender struct {
	mu       sync.Mutex
	calls    int
	contents []string
	respond  func(content string) result.Result[models.Message]
}

func (f *fakeSender) GuardedMessage(ctx context.Context, sender, receiver, content string) result.Result[models.Message] {
	f.mu.Lock()
	f.calls++
	f.contents = append(f.contents, content)
	respond := f.respond
	f.mu.Unlock()
	if respond != nil {
		return respond(content)
	}
	return result.Ok(models.Message{SenderID: sender, ReceiverID: receiver, Content: content})
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeUnblocker struct {
	blocks *fakeBlocks
}

func (f fakeUnblocker) Unblock(ctx context.Context, blocker, blocked string) result.Result[bool] {
	f.blocks.mu.Lock()
	f.blocks.status = models.NewBlockStatus(false, f.blocks.status.TheyBlockedMe)
	f.blocks.mu.Unlock()
	return result.Ok(true)
}

type fakeSub struct {
	filter changefeed.Filter
	events chan changefeed.Event
	status chan changefeed.Status
	done   chan struct{}
	once   sync.Once
}

func (s *fakeSub) Events() <-chan changefeed.Event  { return s.events }
func (s *fakeSub) Status() <-chan changefeed.Status { return s.status }
func (s *fakeSub) Done() <-chan struct{}            { return s.done }
func (s *fakeSub) Unsubscribe()                     { s.once.Do(func() { close(s.done) }) }

func (s *fakeSub) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSub
}

func (f *fakeFeed) Subscribe(ctx context.Context, filter changefeed.Filter) (changefeed.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{
		filter: filter,
		events: make(chan changefeed.Event, 16),
		status: make(chan changefeed.Status, 16),
		done:   make(chan struct{}),
	}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeFeed) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if !s.closed() {
			n++
		}
	}
	return n
}

func (f *fakeFeed) latest() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

type recorder struct {
	mu         sync.Mutex
	states     []State
	histories  [][]models.Message
	messages   []models.Message
	autoScroll []bool
	notices    []Notice
}

func (r *recorder) OnState(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.states); n == 0 || r.states[n-1] != snap.State {
		r.states = append(r.states, snap.State)
	}
}

func (r *recorder) OnHistory(messages []models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histories = append(r.histories, messages)
}

func (r *recorder) OnMessage(msg models.Message, autoScroll bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	r.autoScroll = append(r.autoScroll, autoScroll)
}

func (r *recorder) OnNotice(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) noticeCount(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, notice := range r.notices {
		if notice.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// harness wires a session for viewer "a" talking to counterpart "b".
type harness struct {
	identity *fakeIdentity
	blocks   *fakeBlocks
	messages *fakeMessages
	sender   *fakeSender
	feed     *fakeFeed
	rec      *recorder
	opts     Options
}

func newHarness() *harness {
	blocks := &fakeBlocks{}
	return &harness{
		identity: &fakeIdentity{id: "a"},
		blocks:   blocks,
		messages: &fakeMessages{},
		sender:   &fakeSender{},
		feed:     &fakeFeed{},
		rec:      &recorder{},
		opts:     Options{ReconnectBackoff: 20 * time.Millisecond, BlockCheckInterval: time.Hour},
	}
}

func (h *harness) open(t *testing.T) *Session {
	t.Helper()
	s, err := Open(context.Background(), "b", Deps{
		Identity:  h.identity,
		Blocks:    h.blocks,
		Messages:  h.messages,
		Profiles:  fakeProfiles{},
		Sender:    h.sender,
		Unblocker: fakeUnblocker{blocks: h.blocks},
		Feed:      h.feed,
	}, h.rec, h.opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	waitFor(t, "state "+string(want), func() bool { return s.Snapshot().State == want })
}

func liveEvent(t *testing.T, m models.Message) changefeed.Event {
	t.Helper()
	ev, err := changefeed.NewEvent("messages", changefeed.EventInsert, changefeed.ChatChannel(m.SenderID, m.ReceiverID), m)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}
