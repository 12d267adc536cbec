package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"social-go/internal/changefeed"
	"social-go/internal/models"
	"social-go/internal/result"
)

func TestOpenActiveLoadsHistoryThenSubscribes(t *testing.T) {
	h := newHarness()
	m1 := h.messages.add("b", "a", "hi", false)
	h.messages.add("a", "b", "hello", false)
	h.messages.add("a", "c", "other chat", false)

	s := h.open(t)
	waitState(t, s, StateActive)
	waitFor(t, "subscription", func() bool { return h.feed.count() == 1 })

	if got := s.History(); len(got) != 2 || got[0].Content != "hi" || got[1].Content != "hello" {
		t.Fatalf("unexpected history %+v", got)
	}
	if !h.messages.isRead(m1.ID) {
		t.Fatalf("unread message to the viewer should be marked read on activation")
	}
	if n := len(h.messages.markCalls); n != 1 {
		t.Fatalf("expected one batched mark-read, got %d", n)
	}
	sub := h.feed.latest()
	if sub.filter.Channel != changefeed.ChatChannel("a", "b") || sub.filter.Table != "messages" {
		t.Fatalf("subscription not scoped to the pair: %+v", sub.filter)
	}
	if snap := s.Snapshot(); snap.CounterpartName != "name-b" || snap.ViewerID != "a" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestOpenBlockedNeverTouchesHistory(t *testing.T) {
	cases := []struct {
		name        string
		iBlocked    bool
		theyBlocked bool
		want        State
	}{
		{"they blocked viewer", false, true, StateBlocked},
		{"viewer blocked them", true, false, StateBlocking},
		{"both directions", true, true, StateBlocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			m := h.messages.add("b", "a", "secret", false)
			h.blocks.set(tc.iBlocked, tc.theyBlocked)

			s := h.open(t)
			waitState(t, s, tc.want)

			if len(s.History()) != 0 {
				t.Fatalf("history must be empty across a block")
			}
			if h.messages.lists() != 0 {
				t.Fatalf("history must not be fetched across a block")
			}
			if h.messages.isRead(m.ID) {
				t.Fatalf("messages must not be marked read across a block")
			}
			if h.feed.count() != 0 {
				t.Fatalf("no live subscription across a block")
			}
			if h.rec.noticeCount(NoticeBlockedByCounterpart) != 0 {
				t.Fatalf("opening an already-blocked chat shows the blocked screen, not a notice")
			}
		})
	}
}

func TestLiveDeliveryDeduplicates(t *testing.T) {
	h := newHarness()
	old := h.messages.add("a", "b", "old", true)
	s := h.open(t)
	waitState(t, s, StateActive)
	waitFor(t, "subscription", func() bool { return h.feed.count() == 1 })
	sub := h.feed.latest()

	fresh := models.Message{BaseModel: models.BaseModel{ID: "live-1", CreatedAt: t0.Add(time.Hour)}, SenderID: "b", ReceiverID: "a", Content: "new"}
	sub.events <- liveEvent(t, old)
	sub.events <- liveEvent(t, fresh)
	sub.events <- liveEvent(t, fresh)

	waitFor(t, "live message", func() bool { return h.rec.messageCount() == 1 })
	time.Sleep(30 * time.Millisecond)
	if got := s.History(); len(got) != 2 {
		t.Fatalf("expected 2 history entries after duplicate deliveries, got %d", len(got))
	}
	if h.rec.messageCount() != 1 {
		t.Fatalf("listener saw %d live messages, want 1", h.rec.messageCount())
	}
}

func TestLiveMessageMarkedReadAndAutoScroll(t *testing.T) {
	h := newHarness()
	s := h.open(t)
	waitState(t, s, StateActive)
	waitFor(t, "subscription", func() bool { return h.feed.count() == 1 })

	m := h.messages.add("b", "a", "ping", false)
	s.SetNearBottom(false)
	s.SetDraft("half typed")
	h.feed.latest().events <- liveEvent(t, m)

	waitFor(t, "mark read", func() bool { return h.messages.isRead(m.ID) })
	h.rec.mu.Lock()
	scroll := h.rec.autoScroll[0]
	h.rec.mu.Unlock()
	if scroll {
		t.Fatalf("auto-scroll must follow the viewport state")
	}
	if s.Snapshot().Draft != "half typed" {
		t.Fatalf("delivery must not touch the draft")
	}
}

func TestReconnectIsIdempotent(t *testing.T) {
	h := newHarness()
	s := h.open(t)
	waitState(t, s, StateActive)
	waitFor(t, "subscription", func() bool { return h.feed.count() == 1 })
	first := h.feed.latest()

	first.status <- changefeed.StatusError
	first.status <- changefeed.StatusTimedOut
	first.status <- changefeed.StatusError

	waitFor(t, "resubscribe", func() bool { return h.feed.count() == 2 })
	time.Sleep(100 * time.Millisecond)
	if n := h.feed.count(); n != 2 {
		t.Fatalf("overlapping failures produced %d subscriptions, want 2", n)
	}
	if n := h.feed.active(); n != 1 {
		t.Fatalf("expected exactly one live subscription, got %d", n)
	}
	if !first.closed() {
		t.Fatalf("failed subscription must be torn down")
	}

	stale := models.Message{BaseModel: models.BaseModel{ID: "stale"}, SenderID: "b", ReceiverID: "a"}
	select {
	case first.events <- liveEvent(t, stale):
	default:
	}
	time.Sleep(30 * time.Millisecond)
	if h.rec.messageCount() != 0 {
		t.Fatalf("events from a superseded subscription must be dropped")
	}
}

func TestReconnectBackfillsMissedMessages(t *testing.T) {
	h := newHarness()
	h.messages.add("a", "b", "earlier", true)
	s := h.open(t)
	waitState(t, s, StateActive)
	waitFor(t, "subscription", func() bool { return h.feed.count() == 1 })

	h.feed.latest().status <- changefeed.StatusError
	missed := h.messages.add("b", "a", "while offline", false)
	waitFor(t, "resubscribe", func() bool { return h.feed.count() == 2 })
	h.feed.latest().status <- changefeed.StatusConnected

	waitFor(t, "backfill", func() bool { return h.rec.messageCount() == 1 })
	if !h.messages.isRead(missed.ID) {
		t.Fatalf("backfilled message to the viewer should be marked read")
	}
	if s.Snapshot().Connection != changefeed.StatusConnected {
		t.Fatalf("connection status not reported: %+v", s.Snapshot())
	}
}

func TestRefreshAuthResubscribes(t *testing.T) {
	h := newHarness()
	s := h.open(t)
	waitState(t, s, StateActive)
	waitFor(t, "subscription", func() bool { return h.feed.count() == 1 })

	s.RefreshAuth()
	waitFor(t, "resubscribe", func() bool { return h.feed.count() == 2 })
	if n := h.feed.active(); n != 1 {
		t.Fatalf("expected one live subscription after refresh, got %d", n)
	}

	h.identity.set("someone-else")
	s.RefreshAuth()
	waitFor(t, "close on identity change", func() bool {
		select {
		case <-s.Done():
			return true
		default:
			return false
		}
	})
	if h.rec.noticeCount(NoticeUnauthenticated) != 1 {
		t.Fatalf("identity change should surface a notice")
	}
}

func TestBlockAppearsWhileActive(t *testing.T) {
	h := newHarness()
	h.messages.add("b", "a", "hi", true)
	s := h.open(t)
	waitState(t, s, StateActive)
	waitFor(t, "subscription", func() bool { return h.feed.count() == 1 })

	h.blocks.set(true, false)
	s.NotifyBlockChange()
	waitState(t, s, StateBlocking)
	if len(s.History()) != 0 {
		t.Fatalf("history must be cleared on block")
	}
	if h.feed.active() != 0 {
		t.Fatalf("subscription must be dropped on block")
	}
	if h.rec.noticeCount(NoticeBlockedByCounterpart) != 0 {
		t.Fatalf("blocking someone yourself shows no notice")
	}

	h.blocks.set(true, true)
	s.NotifyBlockChange()
	waitState(t, s, StateBlocked)
	s.NotifyBlockChange()
	s.NotifyBlockChange()
	waitFor(t, "notice", func() bool { return h.rec.noticeCount(NoticeBlockedByCounterpart) == 1 })
	time.Sleep(30 * time.Millisecond)
	if n := h.rec.noticeCount(NoticeBlockedByCounterpart); n != 1 {
		t.Fatalf("notice must fire once per transition, got %d", n)
	}
}

func TestPeriodicCheckDetectsBlock(t *testing.T) {
	h := newHarness()
	h.opts.BlockCheckInterval = 20 * time.Millisecond
	s := h.open(t)
	waitState(t, s, StateActive)

	h.blocks.set(false, true)
	waitState(t, s, StateBlocked)
	waitFor(t, "notice", func() bool { return h.rec.noticeCount(NoticeBlockedByCounterpart) == 1 })
	time.Sleep(100 * time.Millisecond)
	if n := h.rec.noticeCount(NoticeBlockedByCounterpart); n != 1 {
		t.Fatalf("repeated polls must not repeat the notice, got %d", n)
	}
}

func TestUnblockReactivatesWithFreshHistory(t *testing.T) {
	h := newHarness()
	h.messages.add("b", "a", "before", false)
	h.blocks.set(true, false)
	s := h.open(t)
	waitState(t, s, StateBlocking)

	if r := s.Unblock(context.Background()); !r.OK {
		t.Fatalf("unblock: %+v", r)
	}
	waitState(t, s, StateActive)
	if got := s.History(); len(got) != 1 {
		t.Fatalf("history should be reloaded from the store, got %d", len(got))
	}
	waitFor(t, "subscription", func() bool { return h.feed.active() == 1 })

	if r := s.Unblock(context.Background()); !r.Is(result.KindValidation) {
		t.Fatalf("unblock outside Blocking should be rejected, got %+v", r)
	}
}

func TestSendDraft(t *testing.T) {
	h := newHarness()
	s := h.open(t)
	waitState(t, s, StateActive)

	s.SetDraft("hello")
	r := s.SendDraft(context.Background())
	if !r.OK {
		t.Fatalf("send: %+v", r)
	}
	if s.Snapshot().Draft != "" {
		t.Fatalf("draft should be cleared after a successful send")
	}
	time.Sleep(30 * time.Millisecond)
	if len(s.History()) != 0 || h.rec.messageCount() != 0 {
		t.Fatalf("successful sends arrive through the live channel, not locally")
	}
}

func TestSendDraftFailureRestoresText(t *testing.T) {
	h := newHarness()
	h.sender.respond = func(string) result.Result[models.Message] {
		return result.Fail[models.Message](result.KindTransient, "network")
	}
	s := h.open(t)
	waitState(t, s, StateActive)

	s.SetDraft("important")
	r := s.SendDraft(context.Background())
	if r.OK || r.Kind != result.KindTransient || r.Data.Content != "important" {
		t.Fatalf("failure should carry the unsent text: %+v", r)
	}
	if s.Snapshot().Draft != "important" {
		t.Fatalf("draft should be restored")
	}
}

func TestSendDraftFailureKeepsNewTyping(t *testing.T) {
	h := newHarness()
	var s *Session
	h.sender.respond = func(string) result.Result[models.Message] {
		s.SetDraft("typed meanwhile")
		return result.Fail[models.Message](result.KindTransient, "network")
	}
	s = h.open(t)
	waitState(t, s, StateActive)

	s.SetDraft("first")
	if r := s.SendDraft(context.Background()); r.OK || r.Data.Content != "first" {
		t.Fatalf("unexpected result %+v", r)
	}
	if got := s.Snapshot().Draft; got != "typed meanwhile" {
		t.Fatalf("newer typing must win over the restore, got %q", got)
	}
}

func TestSendOutsideActiveNeverReachesStore(t *testing.T) {
	h := newHarness()
	h.blocks.set(false, true)
	s := h.open(t)
	waitState(t, s, StateBlocked)

	s.SetDraft("let me in")
	r := s.SendDraft(context.Background())
	if !r.Is(result.KindBlocked) {
		t.Fatalf("expected blocked failure, got %+v", r)
	}
	if h.sender.callCount() != 0 {
		t.Fatalf("sender must not be called outside Active")
	}
	if s.Snapshot().Draft != "let me in" {
		t.Fatalf("draft must be kept")
	}
}

func TestSendWhileInitializingIsNotBlocked(t *testing.T) {
	h := newHarness()
	h.blocks.fail(errors.New("store down"))
	s := h.open(t)
	waitFor(t, "first block check", func() bool { return h.blocks.callCount() >= 1 })

	s.SetDraft("hold on")
	r := s.SendDraft(context.Background())
	if !r.Is(result.KindTransient) || r.Is(result.KindBlocked) {
		t.Fatalf("expected a not-ready failure, got %+v", r)
	}
	if h.sender.callCount() != 0 || s.Snapshot().Draft != "hold on" {
		t.Fatalf("draft must be kept and nothing sent")
	}

	h.blocks.fail(nil)
	s.NotifyBlockChange()
	waitState(t, s, StateActive)
}

func TestCloseTearsDown(t *testing.T) {
	h := newHarness()
	h.opts.ReconnectBackoff = 200 * time.Millisecond
	s := h.open(t)
	waitState(t, s, StateActive)
	waitFor(t, "subscription", func() bool { return h.feed.count() == 1 })

	h.feed.latest().status <- changefeed.StatusError
	waitFor(t, "subscription dropped", func() bool { return h.feed.active() == 0 })
	s.Close()

	if s.Snapshot().State != StateClosed {
		t.Fatalf("expected Closed, got %s", s.Snapshot().State)
	}
	time.Sleep(300 * time.Millisecond)
	if n := h.feed.count(); n != 1 {
		t.Fatalf("pending reconnect fired after close: %d subscriptions", n)
	}
	s.Close()
	s.NotifyBlockChange()
	s.RefreshAuth()
	if s.History() != nil {
		t.Fatalf("closed session has no history")
	}
}

func TestOpenWithoutIdentity(t *testing.T) {
	h := newHarness()
	h.identity.set("")
	s := h.open(t)

	waitFor(t, "session end", func() bool {
		select {
		case <-s.Done():
			return true
		default:
			return false
		}
	})
	if h.rec.noticeCount(NoticeUnauthenticated) != 1 {
		t.Fatalf("missing identity should surface a notice")
	}
	if h.messages.lists() != 0 {
		t.Fatalf("no history may be read without an identity")
	}
}
