package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"social-go/internal/changefeed"
	"social-go/internal/chat"
	"social-go/internal/config"
	"social-go/internal/models"
	"social-go/internal/result"

	"github.com/gorilla/websocket"
)

type stubBlocks struct {
	mu     sync.Mutex
	status models.BlockStatus
}

func (s *stubBlocks) GetBlockStatus(ctx context.Context, viewer, subject string) (models.BlockStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

type stubMessages struct{}

func (stubMessages) ListBetween(ctx context.Context, a, b string, since *time.Time) ([]models.Message, error) {
	return []models.Message{{BaseModel: models.BaseModel{ID: "m1"}, SenderID: b, ReceiverID: a, Content: "earlier", IsRead: true}}, nil
}

func (stubMessages) MarkRead(ctx context.Context, receiverID string, ids []string) (int64, error) {
	return 0, nil
}

type stubProfiles struct{}

func (stubProfiles) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	return &models.Profile{ID: id, Username: "Bob"}, nil
}

type stubSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *stubSender) GuardedMessage(ctx context.Context, sender, receiver, content string) result.Result[models.Message] {
	s.mu.Lock()
	s.sent = append(s.sent, sender+">"+receiver+":"+content)
	s.mu.Unlock()
	return result.Ok(models.Message{SenderID: sender, ReceiverID: receiver, Content: content})
}

type stubUnblocker struct{}

func (stubUnblocker) Unblock(ctx context.Context, blocker, blocked string) result.Result[bool] {
	return result.Ok(true)
}

type quietSub struct {
	done chan struct{}
	once sync.Once
}

func (q *quietSub) Events() <-chan changefeed.Event  { return nil }
func (q *quietSub) Status() <-chan changefeed.Status { return nil }
func (q *quietSub) Done() <-chan struct{}            { return q.done }
func (q *quietSub) Unsubscribe()                     { q.once.Do(func() { close(q.done) }) }

type quietFeed struct{}

func (quietFeed) Subscribe(ctx context.Context, f changefeed.Filter) (changefeed.Subscription, error) {
	return &quietSub{done: make(chan struct{})}, nil
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(f) {
			return f
		}
	}
}

func TestServeChatEndToEnd(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	blocks := &stubBlocks{}
	sender := &stubSender{}
	deps := chat.Deps{
		Blocks:    blocks,
		Messages:  stubMessages{},
		Profiles:  stubProfiles{},
		Sender:    sender,
		Unblocker: stubUnblocker{},
		Feed:      quietFeed{},
	}
	opts := ServeOptions{
		WebSocket: config.WebSocketConfig{WriteWaitSeconds: 5, PongWaitSeconds: 30, PingPeriodSeconds: 25, MaxMessageSizeBytes: 4096},
		Chat:      chat.Options{BlockCheckInterval: time.Hour},
		Validate: func(ctx context.Context, token string) (string, error) {
			if token == "good" {
				return "a", nil
			}
			return "", errors.New("bad token")
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeChat(hub, deps, "a", "b", w, r, opts)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readUntil(t, conn, func(f frame) bool {
		var snap chat.Snapshot
		return f.Type == FrameState && json.Unmarshal(f.Data, &snap) == nil && snap.State == chat.StateActive
	})
	hist := readUntil(t, conn, func(f frame) bool { return f.Type == FrameHistory })
	var messages []models.Message
	if err := json.Unmarshal(hist.Data, &messages); err != nil || len(messages) != 1 {
		t.Fatalf("history frame = %s", hist.Data)
	}

	conn.WriteJSON(InboundFrame{Type: FrameSend, Content: "hello"})
	res := readUntil(t, conn, func(f frame) bool { return f.Type == FrameSendResult })
	var sendResult result.Result[models.Message]
	if err := json.Unmarshal(res.Data, &sendResult); err != nil || !sendResult.OK {
		t.Fatalf("send result = %s", res.Data)
	}
	sender.mu.Lock()
	sent := strings.Join(sender.sent, ",")
	sender.mu.Unlock()
	if sent != "a>b:hello" {
		t.Fatalf("sender saw %q", sent)
	}

	blocks.mu.Lock()
	blocks.status = models.NewBlockStatus(false, true)
	blocks.mu.Unlock()
	hub.NotifyBlockChange("a", "b")
	n := readUntil(t, conn, func(f frame) bool { return f.Type == FrameNotice })
	var notice chat.Notice
	if err := json.Unmarshal(n.Data, &notice); err != nil || notice.Kind != chat.NoticeBlockedByCounterpart {
		t.Fatalf("notice = %s", n.Data)
	}

	conn.WriteJSON(InboundFrame{Type: FrameAuthRefresh, Token: "expired"})
	n = readUntil(t, conn, func(f frame) bool { return f.Type == FrameNotice })
	if err := json.Unmarshal(n.Data, &notice); err != nil || notice.Kind != chat.NoticeUnauthenticated {
		t.Fatalf("notice = %s", n.Data)
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
