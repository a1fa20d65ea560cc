package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/easgit/internal/service"
)

type batchRunner interface {
	RefreshAll(ctx context.Context) (service.BatchReport, error)
}

// AdminHandler exposes operator actions behind auth.RequireAdminKey.
type AdminHandler struct {
	batch  batchRunner
	logger *slog.Logger
}

func NewAdminHandler(batch batchRunner, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{batch: batch, logger: logger}
}

// HandleRefreshAll runs a full batch refresh synchronously and returns its
// report. A run already in progress answers 409.
//
// A throttled batch can outlast http.write_timeout, so the write deadline is
// lifted for this request only.
//
// HTTP: POST /api/admin/refresh-all
func (h *AdminHandler) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("clearing write deadline failed", slog.String("error", err.Error()))
	}

	report, err := h.batch.RefreshAll(r.Context())
	if err != nil {
		h.logger.Warn("admin batch refresh failed", slog.String("error", err.Error()))
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}
