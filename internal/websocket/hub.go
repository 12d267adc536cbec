package websocket

import (
	"context"
	"log/slog"
)

// Hub 记录本实例上所有打开的聊天连接，并把拉黑变更转发给相关会话。
// 一个用户可以同时打开多个聊天（每个对方一个连接）。
type Hub struct {
	clients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	// 拉黑变更，元素是无序的用户对
	blockChanges chan [2]string

	stopped chan struct{}
	log     *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:      make(map[string]map[*Client]struct{}),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		blockChanges: make(chan [2]string, 256),
		stopped:      make(chan struct{}),
		log:          logger,
	}
}

// NotifyBlockChange 让 a 与 b 之间的所有会话立即重新检查拉黑状态。
// 非阻塞，Kafka 消费者直接调用。
func (h *Hub) NotifyBlockChange(a, b string) {
	select {
	case h.blockChanges <- [2]string{a, b}:
	default:
		// 会话的定时检查兜底
		h.log.Warn("Hub 拉黑变更通道已满，丢弃通知", "user_a", a, "user_b", b)
	}
}

// Run 处理注册、注销和拉黑通知，直到 ctx 结束。
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("WebSocket Hub Run loop started.")
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			set, ok := h.clients[client.UserID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.UserID] = set
			}
			set[client] = struct{}{}
			h.log.Debug("客户端已注册", "user_id", client.UserID, "counterpart", client.CounterpartID, "connections", len(set))

		case client := <-h.unregister:
			if set, ok := h.clients[client.UserID]; ok {
				delete(set, client)
				if len(set) == 0 {
					delete(h.clients, client.UserID)
				}
			}
			h.log.Debug("客户端已注销", "user_id", client.UserID, "counterpart", client.CounterpartID)

		case pair := <-h.blockChanges:
			h.poke(pair[0], pair[1])
			h.poke(pair[1], pair[0])
		}
	}
}

func (h *Hub) poke(userID, counterpartID string) {
	for c := range h.clients[userID] {
		if c.CounterpartID == counterpartID {
			c.requestBlockCheck()
		}
	}
}

// Register adds c. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

// Unregister removes c.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}
