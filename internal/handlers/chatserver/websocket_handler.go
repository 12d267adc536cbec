package chatserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"social-go/internal/auth"
	"social-go/internal/chat"
	"social-go/internal/config"
	ws "social-go/internal/websocket"

	"github.com/gorilla/mux"
)

// WebSocketHandler 负责处理聊天 WebSocket 连接请求。
type WebSocketHandler struct {
	hub       *ws.Hub
	deps      chat.Deps
	cfg       config.Config
	blacklist auth.TokenBlacklist
	log       *slog.Logger
}

// NewWebSocketHandler 创建一个新的 WebSocketHandler 实例。deps.Identity 由每条连接自己提供。
func NewWebSocketHandler(hub *ws.Hub, deps chat.Deps, cfg config.Config, blacklist auth.TokenBlacklist, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{hub: hub, deps: deps, cfg: cfg, blacklist: blacklist, log: logger}
}

// ServeWS 处理 GET {WebSocketPath}/{counterpartID}?token=...
// 浏览器无法给 WebSocket 设置请求头，所以令牌走查询参数，Authorization 头作为备选。
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	counterpartID := strings.TrimSpace(mux.Vars(r)["counterpartID"])
	if counterpartID == "" {
		http.Error(w, "缺少聊天对象", http.StatusBadRequest)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		if scheme, rest, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "bearer") {
			token = strings.TrimSpace(rest)
		}
	}
	if token == "" {
		http.Error(w, "缺少认证令牌", http.StatusUnauthorized)
		return
	}

	userID, err := h.validate(r.Context(), token)
	if err != nil {
		h.log.Info("WebSocket 连接被拒绝：令牌无效", "error", err)
		http.Error(w, "令牌无效", http.StatusUnauthorized)
		return
	}

	ws.ServeChat(h.hub, h.deps, userID, counterpartID, w, r, ws.ServeOptions{
		WebSocket: h.cfg.WebSocket,
		Chat:      chat.OptionsFromConfig(h.cfg.Chat),
		Validate:  h.validate,
		Logger:    h.log,
	})
}

func (h *WebSocketHandler) validate(ctx context.Context, token string) (string, error) {
	claims, err := auth.ValidateToken(ctx, token, h.cfg.Auth, h.blacklist)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
