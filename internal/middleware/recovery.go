package middleware

import (
	"net/http"

	sentryhttp "github.com/getsentry/sentry-go/http"
)

// Recover reports panics to Sentry and answers 500. Without an initialised
// Sentry client the hub is a no-op and only the 500 remains.
func Recover(next http.Handler) http.Handler {
	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	wrapped := sentryHandler.Handle(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				writeJSONError(w, "服务器内部错误", http.StatusInternalServerError)
			}
		}()
		wrapped.ServeHTTP(w, r)
	})
}
