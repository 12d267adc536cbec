package apiserver

import (
	"net/http"

	"social-go/internal/middleware"

	"github.com/gorilla/mux"
)

// Handlers groups the REST handlers mounted under /api/v1.
type Handlers struct {
	Profiles *ProfileHandler
	Friends  *FriendshipHandler
	Blocks   *BlockHandler
	Messages *MessageHandler
}

// NewRouter 组装路由。/api/v1 下的所有路由都需要认证，写操作再经过限流。
// metricsHandler 为 nil 时不挂 /metrics。
func NewRouter(h Handlers, authMW mux.MiddlewareFunc, limiter *middleware.RateLimiter, metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Recover)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW, limiter.Middleware)

	// 个人资料与计数
	api.HandleFunc("/me", h.Profiles.GetMyProfile).Methods(http.MethodGet)
	api.HandleFunc("/me", h.Profiles.UpdateMyProfile).Methods(http.MethodPut)
	api.HandleFunc("/me/counts", h.Profiles.GetCounts).Methods(http.MethodGet)
	api.HandleFunc("/me/likers", h.Profiles.ListLikers).Methods(http.MethodGet)
	api.HandleFunc("/me/visitors", h.Profiles.ListVisitors).Methods(http.MethodGet)
	api.HandleFunc("/feed", h.Profiles.DiscoveryFeed).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{userID}", h.Profiles.GetProfile).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{userID}/like", h.Profiles.Like).Methods(http.MethodPost)
	api.HandleFunc("/profiles/{userID}/like", h.Profiles.Unlike).Methods(http.MethodDelete)

	// 好友
	api.HandleFunc("/friends", h.Friends.ListFriends).Methods(http.MethodGet)
	api.HandleFunc("/friends/{userID}", h.Friends.Unfriend).Methods(http.MethodDelete)
	friendRequests := api.PathPrefix("/friend-requests").Subrouter()
	friendRequests.HandleFunc("", h.Friends.SendFriendRequest).Methods(http.MethodPost)
	friendRequests.HandleFunc("/pending", h.Friends.ListIncomingRequests).Methods(http.MethodGet)
	friendRequests.HandleFunc("/{requestID}/accept", h.Friends.AcceptFriendRequest).Methods(http.MethodPost)
	friendRequests.HandleFunc("/{requestID}/reject", h.Friends.RejectFriendRequest).Methods(http.MethodPost)

	// 拉黑
	api.HandleFunc("/blocks", h.Blocks.ListBlocked).Methods(http.MethodGet)
	api.HandleFunc("/blocks", h.Blocks.Block).Methods(http.MethodPost)
	api.HandleFunc("/blocks/{userID}", h.Blocks.Unblock).Methods(http.MethodDelete)

	// 消息，/messages/read 必须先于 /messages/{userID} 注册
	api.HandleFunc("/chats", h.Messages.ListChatPartners).Methods(http.MethodGet)
	api.HandleFunc("/messages/read", h.Messages.MarkRead).Methods(http.MethodPost)
	api.HandleFunc("/messages/{userID}", h.Messages.ListMessages).Methods(http.MethodGet)
	api.HandleFunc("/messages/{userID}", h.Messages.SendMessage).Methods(http.MethodPost)

	return r
}
