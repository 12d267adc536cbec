package apiserver

import (
	"log/slog"
	"net/http"

	"social-go/internal/logging"
	"social-go/internal/models"
	"social-go/internal/services"
)

// ProfileHandler 处理资料、发现页、点赞、访客和计数相关的请求。
type ProfileHandler struct {
	profiles services.ProfileService
	guard    services.InteractionGuard
	counts   services.CountsService
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(profiles services.ProfileService, guard services.InteractionGuard, counts services.CountsService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, guard: guard, counts: counts}
}

// GetMyProfile handles GET /api/v1/me
func (h *ProfileHandler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeResult(w, h.profiles.GetMyProfile(r.Context(), viewer), http.StatusOK)
}

// UpdateMyProfile handles PUT /api/v1/me
func (h *ProfileHandler) UpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	var update models.ProfileUpdate
	if !decodeBody(w, r, &update) {
		return
	}
	writeResult(w, h.profiles.UpdateProfile(r.Context(), viewer, update), http.StatusOK)
}

// GetCounts handles GET /api/v1/me/counts
func (h *ProfileHandler) GetCounts(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeResult(w, h.counts.GetCounts(r.Context(), viewer), http.StatusOK)
}

// GetProfile handles GET /api/v1/profiles/{userID}. 查看成功后记录一次访问，
// 记录失败不影响响应。
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	subject := pathID(r, "userID")
	res := h.profiles.GetProfileDetails(r.Context(), viewer, subject)
	if res.OK && subject != viewer {
		if visit := h.guard.GuardedVisitRecord(r.Context(), viewer, subject); !visit.OK {
			logging.FromContext(r.Context()).Debug("访问记录未写入", slog.String("subject", subject), slog.String("kind", string(visit.Kind)))
		}
	}
	writeResult(w, res, http.StatusOK)
}

// DiscoveryFeed handles GET /api/v1/feed
func (h *ProfileHandler) DiscoveryFeed(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeResult(w, h.profiles.DiscoveryFeed(r.Context(), viewer), http.StatusOK)
}

// Like handles POST /api/v1/profiles/{userID}/like
func (h *ProfileHandler) Like(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeResult(w, h.guard.GuardedLike(r.Context(), viewer, pathID(r, "userID")), http.StatusCreated)
}

// Unlike handles DELETE /api/v1/profiles/{userID}/like
func (h *ProfileHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeResult(w, h.profiles.RemoveLike(r.Context(), viewer, pathID(r, "userID")), http.StatusOK)
}

// ListLikers handles GET /api/v1/me/likers
func (h *ProfileHandler) ListLikers(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeResult(w, h.profiles.ListLikers(r.Context(), viewer), http.StatusOK)
}

// ListVisitors handles GET /api/v1/me/visitors
func (h *ProfileHandler) ListVisitors(w http.ResponseWriter, r *http.Request) {
	viewer, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeResult(w, h.profiles.ListVisitors(r.Context(), viewer), http.StatusOK)
}
