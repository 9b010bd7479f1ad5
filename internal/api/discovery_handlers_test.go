package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/swipestack/internal/discovery"
	"github.com/onnwee/swipestack/internal/middleware"
	"github.com/onnwee/swipestack/internal/profile"
	"github.com/onnwee/swipestack/internal/swipe"
)

// fakeService records calls and returns canned results.
type fakeService struct {
	gotUser   string
	gotMode   swipe.Mode
	gotLimit  int
	gotTarget string
	gotAction swipe.Action

	pool  []discovery.RankedCandidate
	ack   *discovery.Ack
	undo  *discovery.UndoResult
	err   error
	calls int
}

func (f *fakeService) GetRankedDiscoveryPool(_ context.Context, userID string, mode swipe.Mode, limit int) ([]discovery.RankedCandidate, error) {
	f.calls++
	f.gotUser, f.gotMode, f.gotLimit = userID, mode, limit
	return f.pool, f.err
}

func (f *fakeService) RecordSwipe(_ context.Context, userID string, mode swipe.Mode, targetID string, action swipe.Action) (*discovery.Ack, error) {
	f.calls++
	f.gotUser, f.gotMode, f.gotTarget, f.gotAction = userID, mode, targetID, action
	return f.ack, f.err
}

func (f *fakeService) UndoLastSwipe(_ context.Context, userID string, mode swipe.Mode) (*discovery.UndoResult, error) {
	f.calls++
	f.gotUser, f.gotMode = userID, mode
	return f.undo, f.err
}

// authed returns a request carrying userID the way RequireAuth would set it.
func authed(method, target, body, userID string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if userID != "" {
		req = req.WithContext(middleware.SetUserID(req.Context(), userID))
	}
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Error
}

func TestGetDiscovery(t *testing.T) {
	svc := &fakeService{pool: []discovery.RankedCandidate{
		{CandidateID: "a", FinalScore: 0.8},
		{CandidateID: "b", FinalScore: 0.6},
	}}
	h := NewDiscoveryHandlers(svc)

	w := httptest.NewRecorder()
	h.GetDiscovery(w, authed(http.MethodGet, "/v1/discovery?mode=friends&limit=5", "", "u1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.gotUser != "u1" || svc.gotMode != swipe.ModeFriendship || svc.gotLimit != 5 {
		t.Errorf("service called with %q/%q/%d", svc.gotUser, svc.gotMode, svc.gotLimit)
	}

	var resp DiscoveryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || resp.Mode != swipe.ModeFriendship {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Candidates[0].CandidateID != "a" {
		t.Errorf("order not preserved: %+v", resp.Candidates)
	}
}

func TestGetDiscovery_DefaultsModeAndLimit(t *testing.T) {
	svc := &fakeService{pool: []discovery.RankedCandidate{}}
	w := httptest.NewRecorder()
	NewDiscoveryHandlers(svc).GetDiscovery(w, authed(http.MethodGet, "/v1/discovery", "", "u1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.gotMode != swipe.DefaultMode || svc.gotLimit != 0 {
		t.Errorf("expected default mode and limit 0, got %q/%d", svc.gotMode, svc.gotLimit)
	}
	if !strings.Contains(w.Body.String(), `"candidates":[]`) {
		t.Errorf("empty pool should encode as an empty array: %s", w.Body.String())
	}
}

func TestGetDiscovery_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		userID     string
		method     string
		serviceErr error
		wantStatus int
		wantCode   string
		wantCalled bool
	}{
		{"unauthenticated", "/v1/discovery", "", http.MethodGet, nil, http.StatusUnauthorized, ErrCodeAuthFailed, false},
		{"wrong method", "/v1/discovery", "u1", http.MethodPost, nil, http.StatusMethodNotAllowed, ErrCodeBadRequest, false},
		{"non-integer limit", "/v1/discovery?limit=ten", "u1", http.MethodGet, nil, http.StatusBadRequest, ErrCodeValidation, false},
		{"negative limit", "/v1/discovery?limit=-3", "u1", http.MethodGet, nil, http.StatusBadRequest, ErrCodeValidation, false},
		{"unknown mode", "/v1/discovery?mode=business", "u1", http.MethodGet, nil, http.StatusBadRequest, ErrCodeInvalidMode, false},
		{"viewer missing", "/v1/discovery", "ghost", http.MethodGet,
			fmt.Errorf("load viewer: %w", profile.ErrProfileNotFound), http.StatusNotFound, ErrCodeProfileMissing, true},
		{"internal failure", "/v1/discovery", "u1", http.MethodGet,
			errors.New("connection reset"), http.StatusInternalServerError, ErrCodeInternal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{err: tt.serviceErr}
			w := httptest.NewRecorder()
			NewDiscoveryHandlers(svc).GetDiscovery(w, authed(tt.method, tt.target, "", tt.userID))

			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if got := decodeError(t, w); got.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, got.Code)
			}
			if (svc.calls > 0) != tt.wantCalled {
				t.Errorf("service called = %v, want %v", svc.calls > 0, tt.wantCalled)
			}
		})
	}
}

func TestGetDiscovery_InternalErrorHidesDetail(t *testing.T) {
	svc := &fakeService{err: errors.New("pq: password authentication failed")}
	w := httptest.NewRecorder()
	NewDiscoveryHandlers(svc).GetDiscovery(w, authed(http.MethodGet, "/v1/discovery", "", "u1"))

	if strings.Contains(w.Body.String(), "password") {
		t.Errorf("internal error leaked: %s", w.Body.String())
	}
}

func TestRecordSwipe(t *testing.T) {
	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := &fakeService{ack: &discovery.Ack{
		Recorded: true, SwipeID: "s1", TargetID: "t1",
		Action: swipe.ActionSuperLike, Mode: swipe.ModeDating, CreatedAt: created, MatchID: "m1",
	}}
	w := httptest.NewRecorder()
	NewDiscoveryHandlers(svc).RecordSwipe(w, authed(http.MethodPost, "/v1/swipes",
		`{"target_id":"t1","action":"super-like"}`, "u1"))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if svc.gotTarget != "t1" || svc.gotAction != swipe.ActionSuperLike || svc.gotMode != swipe.ModeDating {
		t.Errorf("service called with %q/%q/%q", svc.gotTarget, svc.gotAction, svc.gotMode)
	}

	var ack discovery.Ack
	if err := json.NewDecoder(w.Body).Decode(&ack); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ack.Recorded || ack.MatchID != "m1" {
		t.Errorf("unexpected ack %+v", ack)
	}
}

func TestRecordSwipe_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{"malformed json", `{"target_id":`, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"missing target", `{"action":"like"}`, nil, http.StatusBadRequest, ErrCodeValidation},
		{"missing action", `{"target_id":"t1"}`, nil, http.StatusBadRequest, ErrCodeValidation},
		{"unknown action", `{"target_id":"t1","action":"maybe"}`, nil, http.StatusBadRequest, ErrCodeInvalidAction},
		{"unknown mode", `{"target_id":"t1","action":"like","mode":"work"}`, nil, http.StatusBadRequest, ErrCodeInvalidMode},
		{"oversized body", `{"target_id":"` + strings.Repeat("x", maxBodyBytes) + `"}`, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"self swipe", `{"target_id":"u1","action":"like"}`, swipe.ErrSelfSwipe, http.StatusBadRequest, ErrCodeSelfSwipe},
		{"already swiped", `{"target_id":"t1","action":"like"}`, swipe.ErrAlreadySwiped, http.StatusConflict, ErrCodeAlreadySwiped},
		{"unknown target", `{"target_id":"t9","action":"like"}`,
			fmt.Errorf("%w: t9", discovery.ErrUnknownTarget), http.StatusNotFound, ErrCodeUnknownTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{err: tt.serviceErr}
			w := httptest.NewRecorder()
			NewDiscoveryHandlers(svc).RecordSwipe(w, authed(http.MethodPost, "/v1/swipes", tt.body, "u1"))

			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if got := decodeError(t, w); got.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q (%s)", tt.wantCode, got.Code, got.Message)
			}
		})
	}
}

func TestRecordSwipe_ValidationMessageUsesJSONNames(t *testing.T) {
	w := httptest.NewRecorder()
	NewDiscoveryHandlers(&fakeService{}).RecordSwipe(w, authed(http.MethodPost, "/v1/swipes", `{}`, "u1"))

	msg := decodeError(t, w).Message
	if !strings.Contains(msg, "target_id is required") || !strings.Contains(msg, "action is required") {
		t.Errorf("unexpected validation message %q", msg)
	}
}

func TestUndoSwipe(t *testing.T) {
	svc := &fakeService{undo: &discovery.UndoResult{
		UndoneTargetID: "t1", UndoneAction: swipe.ActionLike, Mode: swipe.ModeFriendship, MatchRetracted: true,
	}}
	w := httptest.NewRecorder()
	NewDiscoveryHandlers(svc).UndoSwipe(w, authed(http.MethodPost, "/v1/swipes/undo", `{"mode":"friendship"}`, "u1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["undone"] != true || body["undone_target_id"] != "t1" || body["match_retracted"] != true {
		t.Errorf("unexpected body %v", body)
	}
	if svc.gotMode != swipe.ModeFriendship {
		t.Errorf("mode = %q, want friendship", svc.gotMode)
	}
}

func TestUndoSwipe_EmptyBodyUsesDefaultMode(t *testing.T) {
	svc := &fakeService{undo: &discovery.UndoResult{UndoneTargetID: "t1"}}
	w := httptest.NewRecorder()
	NewDiscoveryHandlers(svc).UndoSwipe(w, authed(http.MethodPost, "/v1/swipes/undo", "", "u1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.gotMode != swipe.DefaultMode {
		t.Errorf("mode = %q, want %q", svc.gotMode, swipe.DefaultMode)
	}
}

func TestUndoSwipe_EmptyHistoryIsNoOp(t *testing.T) {
	svc := &fakeService{err: swipe.ErrEmptyHistory}
	w := httptest.NewRecorder()
	NewDiscoveryHandlers(svc).UndoSwipe(w, authed(http.MethodPost, "/v1/swipes/undo", "", "u1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	want := `{"undone":false,"reason":"empty_history"}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestUndoSwipe_Unauthenticated(t *testing.T) {
	svc := &fakeService{}
	w := httptest.NewRecorder()
	NewDiscoveryHandlers(svc).UndoSwipe(w, authed(http.MethodPost, "/v1/swipes/undo", "", ""))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if svc.calls != 0 {
		t.Error("service should not be called")
	}
}

func TestWriteError_RecordsCodeForLogging(t *testing.T) {
	var logged string
	h := middleware.Logging(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusConflict, ErrCodeAlreadySwiped, "dup")
		logged = middleware.GetErrorCode(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/swipes", bytes.NewReader(nil)))

	if logged != ErrCodeAlreadySwiped {
		t.Errorf("error code in context = %q, want %q", logged, ErrCodeAlreadySwiped)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestStatusCodeMapping(t *testing.T) {
	tests := map[string]int{
		ErrCodeValidation:    http.StatusBadRequest,
		ErrCodeInvalidMode:   http.StatusBadRequest,
		ErrCodeAuthFailed:    http.StatusUnauthorized,
		ErrCodeUnknownTarget: http.StatusNotFound,
		ErrCodeRateLimited:   http.StatusTooManyRequests,
		ErrCodeAlreadySwiped: http.StatusConflict,
		ErrCodeInternal:      http.StatusInternalServerError,
		"something_else":     http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := StatusCodeMapping(code); got != want {
			t.Errorf("StatusCodeMapping(%q) = %d, want %d", code, got, want)
		}
	}
}
