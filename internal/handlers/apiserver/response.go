package apiserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"social-go/internal/middleware"
	"social-go/internal/result"

	"github.com/gorilla/mux"
)

// ErrorResponse is the body of every non-result error.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Warn("无法编码 JSON 响应", "error", err)
		}
	}
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: message})
}

// statusFor 把结果类别映射为 HTTP 状态码。
func statusFor(kind result.Kind) int {
	switch kind {
	case result.KindValidation:
		return http.StatusBadRequest
	case result.KindBlocked, result.KindForbidden:
		return http.StatusForbidden
	case result.KindNotFound:
		return http.StatusNotFound
	case result.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeResult 直接输出结果本身，客户端根据 ok/kind/message 决定提示。
func writeResult[T any](w http.ResponseWriter, r result.Result[T], okStatus int) {
	if !r.OK {
		writeJSONResponse(w, statusFor(r.Kind), r)
		return
	}
	if r.Duplicate {
		okStatus = http.StatusOK
	}
	writeJSONResponse(w, okStatus, r)
}

// currentUser 读取认证中间件放入的用户 ID，缺失时直接写 401。
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
	}
	return userID, ok
}

func pathID(r *http.Request, name string) string {
	return strings.TrimSpace(mux.Vars(r)[name])
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return false
	}
	return true
}
