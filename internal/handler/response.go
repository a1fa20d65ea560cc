package handler

// RESPONSE HELPERS:
// Every error response from the API has the same shape:
//   {"error": "not_found", "message": "user statistics not found with id octocat"}
//
// Upstream failures add the number of seconds GitHub asked us to wait:
//   {"error": "upstream_error", "message": "...", "retryAfter": 42}

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	"github.com/sakif/easgit/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error      string `json:"error"`                // Machine-readable error type (e.g., "not_found")
	Message    string `json:"message"`              // Human-readable description
	RetryAfter int    `json:"retryAfter,omitempty"` // Seconds, upstream rate limits only
}

// writeJSON sends a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, data)
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// The service layer returns apperror values; errors.Is walks the chain so a
// wrapped error still maps correctly:
//
//	service returns: fmt.Errorf("service/leaderboard: ...: %w", apperror.Conflict(...))
//	errors.Is walks: outer error → AppError → ErrConflict ✓
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Raw errors may carry SQL or file paths; never echo them.
		writeJSON(w, r, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, kind := statusFor(err)
	resp := ErrorResponse{Error: kind, Message: appErr.Message}

	if status == http.StatusBadGateway && appErr.RetryAfter > 0 {
		secs := int(math.Ceil(appErr.RetryAfter.Seconds()))
		resp.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	writeJSON(w, r, status, resp)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
