package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/swipestack/internal/discovery"
	"github.com/onnwee/swipestack/internal/middleware"
	"github.com/onnwee/swipestack/internal/swipe"
)

// maxBodyBytes bounds swipe request bodies.
const maxBodyBytes = 4 << 10

// DiscoveryService is the ranking and swipe API the handlers expose.
// *discovery.Service satisfies it.
type DiscoveryService interface {
	GetRankedDiscoveryPool(ctx context.Context, userID string, mode swipe.Mode, limit int) ([]discovery.RankedCandidate, error)
	RecordSwipe(ctx context.Context, userID string, mode swipe.Mode, targetID string, action swipe.Action) (*discovery.Ack, error)
	UndoLastSwipe(ctx context.Context, userID string, mode swipe.Mode) (*discovery.UndoResult, error)
}

// DiscoveryHandlers serves the discovery and swipe endpoints. Every route
// expects middleware.RequireAuth in front of it.
type DiscoveryHandlers struct {
	service DiscoveryService
}

// NewDiscoveryHandlers creates the discovery handlers.
func NewDiscoveryHandlers(service DiscoveryService) *DiscoveryHandlers {
	return &DiscoveryHandlers{service: service}
}

type discoveryQuery struct {
	Mode  string `json:"mode" validate:"omitempty,max=32"`
	Limit int    `json:"limit" validate:"gte=0"`
}

// DiscoveryResponse is the body of GET /v1/discovery.
type DiscoveryResponse struct {
	Mode       swipe.Mode                  `json:"mode"`
	Count      int                         `json:"count"`
	Candidates []discovery.RankedCandidate `json:"candidates"`
}

// GetDiscovery handles GET /v1/discovery?mode=&limit=.
func (h *DiscoveryHandlers) GetDiscovery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := discoveryQuery{Mode: r.URL.Query().Get("mode")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be an integer")
			return
		}
		q.Limit = n
	}
	if err := validateStruct(q); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	mode, err := swipe.ParseMode(q.Mode)
	if err != nil {
		writeDomainError(w, ctx, err)
		return
	}

	candidates, err := h.service.GetRankedDiscoveryPool(ctx, userID, mode, q.Limit)
	if err != nil {
		writeDomainError(w, ctx, err)
		return
	}
	writeJSON(w, ctx, http.StatusOK, DiscoveryResponse{
		Mode:       mode,
		Count:      len(candidates),
		Candidates: candidates,
	})
}

// SwipeRequest is the body of POST /v1/swipes.
type SwipeRequest struct {
	TargetID string `json:"target_id" validate:"required,max=128,printascii"`
	Action   string `json:"action" validate:"required,max=32"`
	Mode     string `json:"mode" validate:"omitempty,max=32"`
}

// RecordSwipe handles POST /v1/swipes.
func (h *DiscoveryHandlers) RecordSwipe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SwipeRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if err := validateStruct(req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	mode, err := swipe.ParseMode(req.Mode)
	if err != nil {
		writeDomainError(w, ctx, err)
		return
	}
	action, err := swipe.ParseAction(req.Action)
	if err != nil {
		writeDomainError(w, ctx, err)
		return
	}

	ack, err := h.service.RecordSwipe(ctx, userID, mode, req.TargetID, action)
	if err != nil {
		writeDomainError(w, ctx, err)
		return
	}
	writeJSON(w, ctx, http.StatusCreated, ack)
}

// UndoRequest is the optional body of POST /v1/swipes/undo.
type UndoRequest struct {
	Mode string `json:"mode" validate:"omitempty,max=32"`
}

// UndoResponse is the body of POST /v1/swipes/undo. An empty history is a
// user-visible no-op reported with Undone=false.
type UndoResponse struct {
	Undone bool   `json:"undone"`
	Reason string `json:"reason,omitempty"`
	*discovery.UndoResult
}

// UndoSwipe handles POST /v1/swipes/undo.
func (h *DiscoveryHandlers) UndoSwipe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req UndoRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if err := validateStruct(req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	mode, err := swipe.ParseMode(req.Mode)
	if err != nil {
		writeDomainError(w, ctx, err)
		return
	}

	res, err := h.service.UndoLastSwipe(ctx, userID, mode)
	switch {
	case errors.Is(err, swipe.ErrEmptyHistory):
		slog.DebugContext(ctx, "undo on empty history", "user_id", userID, "mode", mode)
		writeJSON(w, ctx, http.StatusOK, UndoResponse{Undone: false, Reason: ErrCodeEmptyHistory})
	case err != nil:
		writeDomainError(w, ctx, err)
	default:
		writeJSON(w, ctx, http.StatusOK, UndoResponse{Undone: true, UndoResult: res})
	}
}

// requireUser returns the authenticated user or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return "", false
	}
	return userID, true
}

// decodeBody decodes a size-limited JSON body into v. An empty body yields
// io.EOF.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}
