package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// Pinger is satisfied by both store implementations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Healthcheck answers {"status":"ok"} when the store is reachable and 503
// otherwise.
//
// HTTP: GET /healthz
func Healthcheck(db Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			logger.Error("health check: store unreachable", slog.String("error", err.Error()))
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}
