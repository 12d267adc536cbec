package apiserver

import (
	"net/http"
	"strings"

	"social-go/internal/services"
)

// BlockHandler 处理拉黑、取消拉黑和黑名单列表。
type BlockHandler struct {
	blocks services.BlockService
}

// NewBlockHandler creates a new BlockHandler.
func NewBlockHandler(bs services.BlockService) *BlockHandler {
	return &BlockHandler{blocks: bs}
}

type blockPayload struct {
	UserID string `json:"userId"`
}

// Block handles POST /api/v1/blocks
func (h *BlockHandler) Block(w http.ResponseWriter, r *http.Request) {
	blocker, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload blockPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	writeResult(w, h.blocks.Block(r.Context(), blocker, strings.TrimSpace(payload.UserID)), http.StatusCreated)
}

// Unblock handles DELETE /api/v1/blocks/{userID}
func (h *BlockHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	blocker, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeResult(w, h.blocks.Unblock(r.Context(), blocker, pathID(r, "userID")), http.StatusOK)
}

// ListBlocked handles GET /api/v1/blocks
func (h *BlockHandler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	blocker, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeResult(w, h.blocks.ListBlockedUsers(r.Context(), blocker), http.StatusOK)
}
