package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/docket-systems/custodia/pkg/auth"
)

// AccessLog returns middleware writing one structured line per request,
// correlated by request id and attributed to the authenticated actor.
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := &logWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(lw, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", lw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", auth.GetRequestID(r.Context()),
				"actor", auth.ActorID(r.Context()),
			)
		})
	}
}

type logWriter struct {
	http.ResponseWriter
	status int
}

func (w *logWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
