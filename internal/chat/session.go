package chat

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"social-go/internal/changefeed"
	"social-go/internal/metrics"
	"social-go/internal/models"
	"social-go/internal/result"
)

// Deps are the collaborators of a session. Metrics and Logger are optional.
type Deps struct {
	Identity  IdentityProvider
	Blocks    BlockChecker
	Messages  MessageStore
	Profiles  ProfileLookup
	Sender    MessageSender
	Unblocker Unblocker
	Feed      changefeed.Feed
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func (d Deps) validate() error {
	if d.Identity == nil || d.Blocks == nil || d.Messages == nil || d.Profiles == nil ||
		d.Sender == nil || d.Unblocker == nil || d.Feed == nil {
		return errors.New("chat: missing session dependency")
	}
	return nil
}

// Session 是与一个对方的聊天会话。所有状态转换都在一个事件循环 goroutine 中执行，
// 订阅、定时器和外部调用都把闭包投递到该循环。
type Session struct {
	deps        Deps
	opts        Options
	listener    Listener
	counterpart string
	log         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	ops    chan func()
	done   chan struct{}

	// 以下字段只在事件循环中访问
	viewer          string
	counterpartName string
	state           State
	theyBlockedMe   bool
	history         []models.Message
	seen            map[string]struct{}
	backfillFrom    time.Time
	sub             changefeed.Subscription
	subGen          uint64
	conn            changefeed.Status
	reconnectTimer  *time.Timer
	reconnectSeq    uint64
	backoff         time.Duration

	mu         sync.Mutex
	snap       Snapshot
	draft      string
	nearBottom bool
}

// Open starts a session with counterpartID and begins initialization in the
// background. The listener sees every transition, starting with Initializing.
func Open(ctx context.Context, counterpartID string, deps Deps, listener Listener, opts Options) (*Session, error) {
	if counterpartID == "" {
		return nil, errors.New("chat: counterpart id is required")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if listener == nil {
		listener = nopListener{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		deps:        deps,
		opts:        opts,
		listener:    listener,
		counterpart: counterpartID,
		log:         logger.With("counterpart", counterpartID),
		ctx:         sctx,
		cancel:      cancel,
		ops:         make(chan func()),
		done:        make(chan struct{}),
		state:       StateInitializing,
		seen:        map[string]struct{}{},
		backoff:     opts.ReconnectBackoff,
		nearBottom:  true,
	}
	s.snap = Snapshot{State: StateInitializing, CounterpartID: counterpartID}
	deps.Metrics.SessionOpened()
	go s.loop()
	return s, nil
}

func (s *Session) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.opts.BlockCheckInterval)
	defer ticker.Stop()

	s.publishState()
	s.initialize()
	for {
		if s.ctx.Err() != nil {
			s.teardown()
			return
		}
		select {
		case op := <-s.ops:
			op()
		case <-ticker.C:
			s.verifyBlocks()
		case <-s.ctx.Done():
			s.teardown()
			return
		}
	}
}

// post runs op on the event loop. It returns false once the session is closed.
func (s *Session) post(op func()) bool {
	select {
	case s.ops <- op:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) initialize() {
	viewer, ok := s.deps.Identity.CurrentIdentity(s.ctx)
	if !ok || viewer == "" {
		s.listener.OnNotice(Notice{Kind: NoticeUnauthenticated, Text: "请先登录"})
		s.cancel()
		return
	}
	s.viewer = viewer
	s.log = s.log.With("viewer", viewer)

	s.counterpartName = models.DeletedUserName
	if p, err := s.deps.Profiles.GetByID(s.ctx, s.counterpart); err != nil {
		s.log.Warn("chat: counterpart lookup failed", "error", err)
		s.counterpartName = ""
	} else if p != nil {
		s.counterpartName = p.DisplayName()
	}
	s.publishState()
	s.verifyBlocks()
}

// verifyBlocks re-reads both block directions and applies the result. A
// failed read keeps the current state; the next tick retries.
func (s *Session) verifyBlocks() {
	if s.viewer == "" || s.state == StateClosed {
		return
	}
	status, err := s.deps.Blocks.GetBlockStatus(s.ctx, s.viewer, s.counterpart)
	if err != nil {
		if s.ctx.Err() == nil {
			s.log.Warn("chat: block check failed", "error", err)
		}
		return
	}
	s.apply(status)
}

// apply is the single transition function for both the poll and external
// block events. Re-applying the same status is a no-op.
func (s *Session) apply(status models.BlockStatus) {
	target := stateFor(status)
	prev := s.state
	hadTheirBlock := s.theyBlockedMe
	s.theyBlockedMe = status.TheyBlockedMe

	if target == prev {
		return
	}
	switch target {
	case StateBlocked, StateBlocking:
		s.deactivate()
		s.setState(target)
		s.listener.OnHistory([]models.Message{})
		if target == StateBlocked && prev != StateInitializing && !hadTheirBlock {
			s.listener.OnNotice(Notice{Kind: NoticeBlockedByCounterpart, Text: "对方已将你拉黑"})
		}
	case StateActive:
		s.activate()
	}
}

// activate loads history, marks it read, then attaches the live subscription.
func (s *Session) activate() {
	loadStart := time.Now().UTC()
	messages, err := s.deps.Messages.ListBetween(s.ctx, s.viewer, s.counterpart, nil)
	if err != nil {
		if s.ctx.Err() == nil {
			s.log.Warn("chat: history load failed", "error", err)
			s.listener.OnNotice(Notice{Kind: NoticeHistoryUnavailable, Text: "消息加载失败，稍后重试"})
		}
		return
	}

	s.history = messages
	s.seen = make(map[string]struct{}, len(messages))
	for _, m := range messages {
		s.seen[m.ID] = struct{}{}
	}
	s.backfillFrom = loadStart
	if n := len(messages); n > 0 {
		s.backfillFrom = messages[n-1].CreatedAt
	}

	s.setState(StateActive)
	s.listener.OnHistory(slices.Clone(s.history))
	s.markRead(messages)
	s.subscribe()
}

// deactivate drops the subscription, pending reconnect and in-memory history.
func (s *Session) deactivate() {
	s.cancelReconnect()
	s.unsubscribe()
	s.history = nil
	s.seen = map[string]struct{}{}
	s.backoff = s.opts.ReconnectBackoff
}

func (s *Session) markRead(messages []models.Message) {
	var ids []string
	for _, m := range messages {
		if m.ReceiverID == s.viewer && !m.IsRead {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if _, err := s.deps.Messages.MarkRead(s.ctx, s.viewer, ids); err != nil && s.ctx.Err() == nil {
		s.log.Warn("chat: mark read failed", "count", len(ids), "error", err)
	}
}

func (s *Session) subscribe() {
	s.unsubscribe()
	s.subGen++
	gen := s.subGen
	viewer, counterpart := s.viewer, s.counterpart

	s.setConn(changefeed.StatusConnecting)
	sub, err := s.deps.Feed.Subscribe(s.ctx, changefeed.Filter{
		Table:   models.Message{}.TableName(),
		Events:  []changefeed.EventKind{changefeed.EventInsert},
		Channel: changefeed.ChatChannel(viewer, counterpart),
		Predicate: func(ev changefeed.Event) bool {
			var m models.Message
			return ev.Decode(&m) == nil && m.Involves(viewer, counterpart)
		},
	})
	if err != nil {
		if s.ctx.Err() == nil {
			s.log.Warn("chat: subscribe failed", "error", err)
		}
		s.setConn(changefeed.StatusError)
		s.scheduleReconnect()
		return
	}
	s.sub = sub
	go s.pump(gen, sub)
}

// pump forwards one subscription's output to the loop, tagged with its generation.
func (s *Session) pump(gen uint64, sub changefeed.Subscription) {
	for {
		select {
		case ev := <-sub.Events():
			if !s.post(func() { s.onEvent(gen, ev) }) {
				return
			}
		case st := <-sub.Status():
			if !s.post(func() { s.onStatus(gen, st) }) {
				return
			}
		case <-sub.Done():
			return
		case <-s.done:
			return
		}
	}
}

func (s *Session) unsubscribe() {
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	s.conn = ""
}

func (s *Session) onEvent(gen uint64, ev changefeed.Event) {
	if gen != s.subGen || s.state != StateActive {
		return
	}
	var msg models.Message
	if err := ev.Decode(&msg); err != nil {
		s.log.Warn("chat: undecodable message event", "error", err)
		return
	}
	s.deliver(msg)
}

// deliver appends msg unless it was already seen.
func (s *Session) deliver(msg models.Message) {
	if !msg.Involves(s.viewer, s.counterpart) {
		return
	}
	if _, dup := s.seen[msg.ID]; dup {
		s.deps.Metrics.DuplicateDelivery()
		return
	}
	s.seen[msg.ID] = struct{}{}
	s.history = append(s.history, msg)
	if msg.CreatedAt.After(s.backfillFrom) {
		s.backfillFrom = msg.CreatedAt
	}

	s.mu.Lock()
	autoScroll := s.nearBottom
	s.mu.Unlock()
	s.listener.OnMessage(msg, autoScroll)

	if msg.ReceiverID == s.viewer && !msg.IsRead {
		s.markRead([]models.Message{msg})
	}
}

func (s *Session) onStatus(gen uint64, st changefeed.Status) {
	if gen != s.subGen || s.state != StateActive {
		return
	}
	s.setConn(st)
	switch st {
	case changefeed.StatusConnected:
		s.backoff = s.opts.ReconnectBackoff
		s.backfill()
	case changefeed.StatusError, changefeed.StatusTimedOut:
		s.unsubscribe()
		s.scheduleReconnect()
	}
}

// backfill fetches what may have been committed while no subscription was attached.
func (s *Session) backfill() {
	since := s.backfillFrom
	messages, err := s.deps.Messages.ListBetween(s.ctx, s.viewer, s.counterpart, &since)
	if err != nil {
		if s.ctx.Err() == nil {
			s.log.Warn("chat: backfill failed", "error", err)
		}
		return
	}
	for _, m := range messages {
		s.deliver(m)
	}
}

// scheduleReconnect arms at most one pending reconnect.
func (s *Session) scheduleReconnect() {
	if s.reconnectTimer != nil || s.state != StateActive {
		return
	}
	delay := s.backoff
	if next := s.backoff * 2; next <= s.opts.ReconnectBackoffMax {
		s.backoff = next
	} else {
		s.backoff = s.opts.ReconnectBackoffMax
	}
	s.reconnectSeq++
	seq := s.reconnectSeq
	s.deps.Metrics.Reconnect()
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.post(func() {
			if seq != s.reconnectSeq || s.reconnectTimer == nil {
				return
			}
			s.reconnectTimer = nil
			if s.state == StateActive {
				s.subscribe()
			}
		})
	})
}

func (s *Session) cancelReconnect() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.reconnectSeq++
}

func (s *Session) teardown() {
	s.cancelReconnect()
	s.unsubscribe()
	s.history = nil
	s.setState(StateClosed)
	s.deps.Metrics.SessionClosed()
}

func (s *Session) setState(st State) {
	if s.state == st && st != StateInitializing {
		return
	}
	s.state = st
	s.deps.Metrics.Transition(string(st))
	s.publishState()
}

func (s *Session) setConn(st changefeed.Status) {
	if s.conn == st {
		return
	}
	s.conn = st
	s.publishState()
}

func (s *Session) publishState() {
	s.mu.Lock()
	s.snap.State = s.state
	s.snap.ViewerID = s.viewer
	s.snap.CounterpartName = s.counterpartName
	s.snap.Connection = s.conn
	s.snap.Draft = s.draft
	snap := s.snap
	s.mu.Unlock()
	s.listener.OnState(snap)
}

// Snapshot returns the latest published state plus the current draft.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	snap.Draft = s.draft
	return snap
}

// History returns a copy of the in-memory history, or nil once closed.
func (s *Session) History() []models.Message {
	out := make(chan []models.Message, 1)
	if !s.post(func() { out <- slices.Clone(s.history) }) {
		return nil
	}
	select {
	case h := <-out:
		return h
	case <-s.done:
		return nil
	}
}

// SetDraft records the text being composed. Delivery never touches it.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

// SetNearBottom records whether the view is scrolled near the newest message.
func (s *Session) SetNearBottom(near bool) {
	s.mu.Lock()
	s.nearBottom = near
	s.mu.Unlock()
}

// SendDraft clears the draft and sends it. On failure the draft is restored
// unless something new was typed meanwhile, and the failure carries the unsent
// text in Data.Content. A successful send is not appended here; it arrives
// through the live subscription like any other message.
func (s *Session) SendDraft(ctx context.Context) result.Result[models.Message] {
	s.mu.Lock()
	state, viewer, text := s.snap.State, s.snap.ViewerID, s.draft
	if state != StateActive {
		s.mu.Unlock()
		var r result.Result[models.Message]
		switch state {
		case StateBlocked, StateBlocking:
			r = result.Fail[models.Message](result.KindBlocked, "当前无法发送消息")
		case StateInitializing:
			r = result.Fail[models.Message](result.KindTransient, "会话尚未就绪，请稍后再试")
		default:
			r = result.Fail[models.Message](result.KindValidation, "会话已关闭")
		}
		r.Data.Content = text
		return r
	}
	s.draft = ""
	s.mu.Unlock()

	r := s.deps.Sender.GuardedMessage(ctx, viewer, s.counterpart, text)
	if r.OK {
		return r
	}

	s.mu.Lock()
	if s.draft == "" {
		s.draft = text
	}
	s.mu.Unlock()
	r.Data = models.Message{SenderID: viewer, ReceiverID: s.counterpart, Content: text}
	s.post(func() {
		s.publishState()
		if r.Is(result.KindBlocked) {
			s.verifyBlocks()
		}
	})
	return r
}

// RefreshAuth re-attaches the live subscription after a credential refresh.
// A different or missing identity closes the session.
func (s *Session) RefreshAuth() {
	s.post(func() {
		id, ok := s.deps.Identity.CurrentIdentity(s.ctx)
		if !ok || (s.viewer != "" && id != s.viewer) {
			s.listener.OnNotice(Notice{Kind: NoticeUnauthenticated, Text: "登录状态已变化"})
			s.cancel()
			return
		}
		if s.state == StateActive {
			s.cancelReconnect()
			s.backoff = s.opts.ReconnectBackoff
			s.subscribe()
		}
	})
}

// NotifyBlockChange forces an immediate block re-check.
func (s *Session) NotifyBlockChange() {
	s.post(s.verifyBlocks)
}

// Unblock removes the viewer's block on the counterpart and re-verifies.
func (s *Session) Unblock(ctx context.Context) result.Result[bool] {
	snap := s.Snapshot()
	if snap.State != StateBlocking {
		return result.Fail[bool](result.KindValidation, "当前没有拉黑对方")
	}
	r := s.deps.Unblocker.Unblock(ctx, snap.ViewerID, s.counterpart)
	if r.OK {
		s.post(s.verifyBlocks)
	}
	return r
}

// Done is closed once the session has shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close stops the timers, drops the subscription and waits for the loop to
// exit. It is safe to call more than once.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

type nopListener struct{}

func (nopListener) OnState(Snapshot)               {}
func (nopListener) OnHistory([]models.Message)     {}
func (nopListener) OnMessage(models.Message, bool) {}
func (nopListener) OnNotice(Notice)                {}
