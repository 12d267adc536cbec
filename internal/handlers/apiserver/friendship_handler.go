package apiserver

import (
	"net/http"
	"strings"

	"social-go/internal/services"

	"github.com/google/uuid"
)

// FriendshipHandler handles HTTP requests related to friend requests and friends.
type FriendshipHandler struct {
	friends services.FriendshipService
}

// NewFriendshipHandler creates a new FriendshipHandler.
func NewFriendshipHandler(fs services.FriendshipService) *FriendshipHandler {
	return &FriendshipHandler{friends: fs}
}

// SendFriendRequestPayload defines the expected JSON body for sending a friend request.
type SendFriendRequestPayload struct {
	RecipientID string `json:"recipientId"`
}

// SendFriendRequest handles POST /api/v1/friend-requests
func (h *FriendshipHandler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload SendFriendRequestPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	res := h.friends.SendFriendRequest(r.Context(), requesterID, strings.TrimSpace(payload.RecipientID))
	writeResult(w, res, http.StatusCreated)
}

// requestID 校验路径中的好友请求 ID，格式错误时直接写 400。
func requestID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := pathID(r, "requestID")
	if _, err := uuid.Parse(id); err != nil {
		writeJSONError(w, "无效的好友请求ID格式", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

// AcceptFriendRequest handles POST /api/v1/friend-requests/{requestID}/accept
func (h *FriendshipHandler) AcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	receiver, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	writeResult(w, h.friends.AcceptFriendRequest(r.Context(), receiver, id), http.StatusOK)
}

// RejectFriendRequest handles POST /api/v1/friend-requests/{requestID}/reject
func (h *FriendshipHandler) RejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	receiver, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	writeResult(w, h.friends.RejectFriendRequest(r.Context(), receiver, id), http.StatusOK)
}

// ListIncomingRequests handles GET /api/v1/friend-requests/pending
func (h *FriendshipHandler) ListIncomingRequests(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeResult(w, h.friends.ListIncomingRequests(r.Context(), viewer), http.StatusOK)
}

// ListFriends handles GET /api/v1/friends
func (h *FriendshipHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeResult(w, h.friends.ListFriends(r.Context(), viewer), http.StatusOK)
}

// Unfriend handles DELETE /api/v1/friends/{userID}
func (h *FriendshipHandler) Unfriend(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeResult(w, h.friends.Unfriend(r.Context(), viewer, pathID(r, "userID")), http.StatusOK)
}
