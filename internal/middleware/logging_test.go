package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type testLogEntry struct {
	Level     string `json:"level"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ErrorCode string `json:"error_code"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func parseEntry(t *testing.T, buf *bytes.Buffer) testLogEntry {
	t.Helper()
	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_BasicFields(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/discovery", nil))

	entry := parseEntry(t, buf)
	if entry.Method != "GET" || entry.Path != "/v1/discovery" {
		t.Errorf("unexpected method/path %s %s", entry.Method, entry.Path)
	}
	if entry.Status != 200 {
		t.Errorf("expected status 200, got %d", entry.Status)
	}
	if entry.Size != 5 {
		t.Errorf("expected size 5, got %d", entry.Size)
	}
	if entry.Level != "INFO" {
		t.Errorf("expected level INFO, got %s", entry.Level)
	}
}

func TestLogging_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusConflict, "WARN"},
		{http.StatusServiceUnavailable, "ERROR"},
	}
	for _, tt := range tests {
		buf := &bytes.Buffer{}
		handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/swipes", nil))

		if got := parseEntry(t, buf).Level; got != tt.level {
			t.Errorf("status %d: expected level %s, got %s", tt.status, tt.level, got)
		}
	}
}

func TestLogging_UserAndErrorCodeFromInnerHandlers(t *testing.T) {
	buf := &bytes.Buffer{}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetUserID(r.Context(), "user-42")
		SetErrorCode(ctx, "already_swiped")
		w.WriteHeader(http.StatusConflict)
	})
	handler := RequestID(Logging(newTestLogger(buf))(inner))

	req := httptest.NewRequest(http.MethodPost, "/v1/swipes", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := parseEntry(t, buf)
	if entry.UserID != "user-42" {
		t.Errorf("expected user_id user-42, got %q", entry.UserID)
	}
	if entry.ErrorCode != "already_swiped" {
		t.Errorf("expected error_code already_swiped, got %q", entry.ErrorCode)
	}
	if entry.RequestID != "req-1" {
		t.Errorf("expected request_id req-1, got %q", entry.RequestID)
	}
}

func TestLogging_ErrorCodeOmittedOnSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetErrorCode(r.Context(), "ignored")
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if code := parseEntry(t, buf).ErrorCode; code != "" {
		t.Errorf("expected no error_code, got %q", code)
	}
}

func TestNewLogger_Levels(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newLogger(buf, "production", "")
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("production logger should drop debug by default")
	}
	logger.Info("shown")
	if !json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Errorf("production logger should write JSON, got %s", buf.String())
	}

	buf.Reset()
	newLogger(buf, "development", "warn").Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("explicit warn level should drop info")
	}
}
