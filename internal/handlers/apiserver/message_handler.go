package apiserver

import (
	"net/http"
	"time"

	"social-go/internal/services"
)

// MessageHandler 提供聊天的 REST 入口：历史、发送、会话列表和已读。
// 实时推送走 chatserver 的 WebSocket。
type MessageHandler struct {
	messages services.MessageService
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(ms services.MessageService) *MessageHandler {
	return &MessageHandler{messages: ms}
}

type sendMessagePayload struct {
	Content string `json:"content"`
}

type markReadPayload struct {
	IDs []string `json:"ids"`
}

// ListMessages handles GET /api/v1/messages/{userID}?since=RFC3339
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeJSONError(w, "since 参数格式无效，应为 RFC3339", http.StatusBadRequest)
			return
		}
		since = &t
	}
	writeResult(w, h.messages.ListMessagesWithUser(r.Context(), viewer, pathID(r, "userID"), since), http.StatusOK)
}

// SendMessage handles POST /api/v1/messages/{userID}
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload sendMessagePayload
	if !decodeBody(w, r, &payload) {
		return
	}
	writeResult(w, h.messages.SendMessage(r.Context(), viewer, pathID(r, "userID"), payload.Content), http.StatusCreated)
}

// ListChatPartners handles GET /api/v1/chats
func (h *MessageHandler) ListChatPartners(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeResult(w, h.messages.ListChatPartners(r.Context(), viewer), http.StatusOK)
}

// MarkRead handles POST /api/v1/messages/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload markReadPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	writeResult(w, h.messages.MarkRead(r.Context(), viewer, payload.IDs), http.StatusOK)
}
