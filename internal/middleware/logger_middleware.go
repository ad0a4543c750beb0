package middleware

import (
	"log/slog"
	"net/http"

	"shared-notes-server/pkg/logger/slogx"

	"github.com/felixge/httpsnoop"
)

// LoggerMiddleware logs one line per request. httpsnoop keeps the Hijacker
// of the underlying writer so websocket upgrades pass through.
func LoggerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote", r.RemoteAddr),
				slog.Int("status", m.Code),
				slog.Int64("bytes", m.Written),
				slog.Duration("duration", m.Duration),
			}

			switch {
			case m.Code >= http.StatusInternalServerError:
				slogx.Error(r.Context(), "http request", attrs...)
			case m.Code >= http.StatusBadRequest:
				slogx.Warn(r.Context(), "http request", attrs...)
			default:
				slogx.Info(r.Context(), "http request", attrs...)
			}
		})
	}
}
