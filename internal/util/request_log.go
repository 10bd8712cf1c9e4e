package util

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// statusWriter captures the status code written by the handler so the
// access log can report it. A handler that never calls WriteHeader is
// logged as 200.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// WithRequestLog writes one structured access-log line per request.
// Cleanup runs and queue dispatches can take a while, so duration and
// request_id are the fields operators grep for first.
func WithRequestLog(service string, next http.Handler) http.Handler {
	service = strings.TrimSpace(service)
	if service == "" {
		service = "unknown"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		slog.Info(
			"http_request",
			"service", service,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(started).Milliseconds(),
			"request_id", RequestIDFromRequest(r),
		)
	})
}
