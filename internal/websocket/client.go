package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"social-go/internal/chat"
	"social-go/internal/config"
	"social-go/internal/logging"
	"social-go/internal/models"

	"github.com/gorilla/websocket"
)

const sendBufferSize = 256

// TokenValidator resolves a bearer token to a user id.
type TokenValidator func(ctx context.Context, token string) (string, error)

// Client 是一条 WebSocket 连接与其聊天会话之间的中间层。
// 它同时是会话的 Listener 和 IdentityProvider。
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	UserID        string
	CounterpartID string

	session    *chat.Session
	validate   TokenValidator
	blockCheck chan struct{}
	log        *slog.Logger

	mu       sync.Mutex
	identity string // 当前有效的身份，令牌刷新失败后为空
}

func newClient(hub *Hub, conn *websocket.Conn, userID, counterpartID string, validate TokenValidator, logger *slog.Logger) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		UserID:        userID,
		CounterpartID: counterpartID,
		validate:      validate,
		blockCheck:    make(chan struct{}, 1),
		log:           logger,
		identity:      userID,
	}
}

// CurrentIdentity implements chat.IdentityProvider.
func (c *Client) CurrentIdentity(ctx context.Context) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.identity != ""
}

func (c *Client) OnState(snap chat.Snapshot) { c.enqueue(FrameState, snap) }

func (c *Client) OnHistory(messages []models.Message) {
	if messages == nil {
		messages = []models.Message{}
	}
	c.enqueue(FrameHistory, messages)
}

func (c *Client) OnMessage(msg models.Message, autoScroll bool) {
	c.enqueue(FrameMessage, MessagePayload{Message: msg, AutoScroll: autoScroll})
}

func (c *Client) OnNotice(n chat.Notice) { c.enqueue(FrameNotice, n) }

// enqueue never blocks; it runs on the session loop.
func (c *Client) enqueue(frameType string, data any) {
	payload, err := encodeFrame(frameType, data)
	if err != nil {
		c.log.Error("序列化推送帧失败", "type", frameType, "error", err)
		return
	}
	select {
	case c.send <- payload:
	default:
		c.log.Warn("发送通道已满，断开慢客户端", "type", frameType)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// requestBlockCheck coalesces pokes from the hub.
func (c *Client) requestBlockCheck() {
	select {
	case c.blockCheck <- struct{}{}:
	default:
	}
}

func (c *Client) watchBlocks() {
	for {
		select {
		case <-c.blockCheck:
			c.session.NotifyBlockChange()
		case <-c.session.Done():
			return
		}
	}
}

// readPump reads client frames until the connection drops, then closes the session.
func (c *Client) readPump(ctx context.Context, wsCfg config.WebSocketConfig) {
	defer func() {
		c.session.Close()
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	pongWait := time.Duration(wsCfg.PongWaitSeconds) * time.Second
	c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("WebSocket 连接异常断开", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.enqueue(FrameError, map[string]string{"error": "无法解析的帧"})
			continue
		}
		c.handleFrame(ctx, frame)
	}
}

func (c *Client) handleFrame(ctx context.Context, frame InboundFrame) {
	switch frame.Type {
	case FrameDraft:
		c.session.SetDraft(frame.Content)
	case FrameViewport:
		if frame.NearBottom != nil {
			c.session.SetNearBottom(*frame.NearBottom)
		}
	case FrameSend:
		if frame.Content != "" {
			c.session.SetDraft(frame.Content)
		}
		c.enqueue(FrameSendResult, c.session.SendDraft(ctx))
	case FrameUnblock:
		c.enqueue(FrameUnblockResult, c.session.Unblock(ctx))
	case FrameAuthRefresh:
		c.refreshAuth(ctx, frame.Token)
	default:
		c.enqueue(FrameError, map[string]string{"error": "未知的帧类型: " + frame.Type})
	}
}

// refreshAuth swaps the identity the session sees. An invalid token or a
// different user makes the session close itself.
func (c *Client) refreshAuth(ctx context.Context, token string) {
	userID, err := c.validate(ctx, token)
	if err != nil {
		c.log.Info("令牌刷新失败", "error", err)
		userID = ""
	}
	c.mu.Lock()
	c.identity = userID
	c.mu.Unlock()
	c.session.RefreshAuth()
}

// writePump pumps frames to the connection. When the session ends it flushes
// what is queued and sends a close frame.
func (c *Client) writePump(wsCfg config.WebSocketConfig) {
	writeWait := time.Duration(wsCfg.WriteWaitSeconds) * time.Second
	ticker := time.NewTicker(time.Duration(wsCfg.PingPeriodSeconds) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.session.Done():
			c.flush(writeWait)
			return
		}
	}
}

func (c *Client) flush(writeWait time.Duration) {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// ServeOptions bundle what ServeChat needs besides the request.
type ServeOptions struct {
	WebSocket config.WebSocketConfig
	Chat      chat.Options
	Validate  TokenValidator
	Logger    *slog.Logger
}

// ServeChat 把请求升级为 WebSocket，并为 userID 与 counterpartID 打开一个聊天会话。
// deps.Identity 会被替换为连接本身。
func ServeChat(hub *Hub, deps chat.Deps, userID, counterpartID string, w http.ResponseWriter, r *http.Request, opts ServeOptions) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("user_id", userID, "counterpart", counterpartID)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  opts.WebSocket.MaxMessageSizeBytes,
		WriteBufferSize: opts.WebSocket.MaxMessageSizeBytes,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket 升级失败", "error", err)
		return
	}

	client := newClient(hub, conn, userID, counterpartID, opts.Validate, logger)
	deps.Identity = client
	deps.Logger = logger

	// 连接的生命周期长于请求本身
	ctx := logging.WithContext(context.Background(), logger)
	session, err := chat.Open(ctx, counterpartID, deps, client, opts.Chat)
	if err != nil {
		logger.Error("打开聊天会话失败", "error", err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""))
		conn.Close()
		return
	}
	client.session = session

	if !hub.Register(client) {
		session.Close()
		conn.Close()
		return
	}

	go client.writePump(opts.WebSocket)
	go client.watchBlocks()
	go client.readPump(ctx, opts.WebSocket)
}
