// Package api provides the HTTP handlers for discovery, swipes, the event
// channel and health probes, together with the standardized error envelope.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/swipestack/internal/discovery"
	"github.com/onnwee/swipestack/internal/middleware"
	"github.com/onnwee/swipestack/internal/profile"
	"github.com/onnwee/swipestack/internal/swipe"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates authentication failure.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeConflict indicates a conflict with the current state.
	ErrCodeConflict = "conflict"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	ErrCodeInvalidMode    = "invalid_mode"
	ErrCodeInvalidAction  = "invalid_action"
	ErrCodeSelfSwipe      = "self_swipe"
	ErrCodeAlreadySwiped  = "already_swiped"
	ErrCodeUnknownTarget  = "unknown_target"
	ErrCodeEmptyHistory   = "empty_history"
	ErrCodeProfileMissing = "profile_not_found"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response and records the code
// for the access log.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.SetErrorCode(ctx, code)

	data, err := json.Marshal(ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, ctx context.Context, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeInvalidMode, ErrCodeInvalidAction, ErrCodeSelfSwipe:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeNotFound, ErrCodeUnknownTarget, ErrCodeProfileMissing:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeConflict, ErrCodeAlreadySwiped, ErrCodeEmptyHistory:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorCodeFor maps a domain error to its API error code.
func errorCodeFor(err error) string {
	switch {
	case errors.Is(err, swipe.ErrInvalidMode):
		return ErrCodeInvalidMode
	case errors.Is(err, swipe.ErrInvalidAction):
		return ErrCodeInvalidAction
	case errors.Is(err, swipe.ErrSelfSwipe):
		return ErrCodeSelfSwipe
	case errors.Is(err, swipe.ErrAlreadySwiped):
		return ErrCodeAlreadySwiped
	case errors.Is(err, swipe.ErrEmptyHistory):
		return ErrCodeEmptyHistory
	case errors.Is(err, discovery.ErrUnknownTarget):
		return ErrCodeUnknownTarget
	case errors.Is(err, profile.ErrProfileNotFound):
		return ErrCodeProfileMissing
	default:
		return ErrCodeInternal
	}
}

// writeDomainError writes the envelope for a service error. Internal errors
// are logged and reported without detail.
func writeDomainError(w http.ResponseWriter, ctx context.Context, err error) {
	code := errorCodeFor(err)
	status := StatusCodeMapping(code)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request failed", "error", err)
		WriteError(w, ctx, status, code, "Internal server error")
		return
	}
	WriteError(w, ctx, status, code, err.Error())
}
