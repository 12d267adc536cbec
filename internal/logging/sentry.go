package logging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry initializes the global Sentry client. An empty DSN disables it and
// returns a no-op flush.
func InitSentry(dsn, environment, release string, tracesSampleRate float64) (flush func(), err error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		EnableTracing:    tracesSampleRate > 0,
		TracesSampleRate: tracesSampleRate,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// SentryHandler forwards ERROR and above records to Sentry.
type SentryHandler struct {
	attrs []slog.Attr
	group string
}

func NewSentryHandler() *SentryHandler {
	return &SentryHandler{}
}

// Enabled only handles ERROR and above, and only once Sentry is initialized.
func (h *SentryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelError && sentry.CurrentHub().Client() != nil
}

func (h *SentryHandler) Handle(_ context.Context, record slog.Record) error {
	extra, captured := h.fields(record)

	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetContext("log", extra)
		if captured != nil {
			hub.CaptureException(errors.Join(errors.New(record.Message), captured))
			return
		}
		hub.CaptureMessage(record.Message)
	})
	return nil
}

// fields flattens the bound and record attributes into dotted keys. An "error"
// attribute holding an error is returned separately.
func (h *SentryHandler) fields(record slog.Record) (sentry.Context, error) {
	extra := sentry.Context{}
	for _, a := range h.attrs {
		extra[a.Key] = a.Value.String()
	}
	var captured error
	record.Attrs(func(a slog.Attr) bool {
		if a.Key == "error" {
			if err, ok := a.Value.Any().(error); ok {
				captured = err
				return true
			}
		}
		extra[qualify(h.group, a.Key)] = a.Value.String()
		return true
	})
	return extra, captured
}

// WithAttrs binds attrs under the current group.
func (h *SentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &SentryHandler{group: h.group, attrs: append([]slog.Attr{}, h.attrs...)}
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: qualify(h.group, a.Key), Value: a.Value})
	}
	return next
}

// WithGroup nests name under any existing group.
func (h *SentryHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SentryHandler{attrs: h.attrs, group: qualify(h.group, name)}
}

func qualify(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

// ReportUnexpected logs an unexpected failure at ERROR level, which also sends
// it to Sentry when reporting is enabled.
func ReportUnexpected(ctx context.Context, msg string, err error, args ...any) {
	FromContext(ctx).ErrorContext(ctx, msg, append([]any{"error", err}, args...)...)
}
