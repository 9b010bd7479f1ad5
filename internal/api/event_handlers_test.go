package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/swipestack/internal/events"
	"github.com/onnwee/swipestack/internal/middleware"
)

// withUser injects a fixed user id, standing in for RequireAuth.
func withUser(userID string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(middleware.SetUserID(r.Context(), userID)))
	})
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEventHandlers_DeliversUserEvents(t *testing.T) {
	b := events.NewBroadcaster(events.Config{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	h := NewEventHandlers(b, nil)
	srv := httptest.NewServer(withUser("u1", http.HandlerFunc(h.Subscribe)))
	defer srv.Close()

	conn := dial(t, srv)
	waitFor(t, func() bool { return b.ConnectionCount("u1") == 1 })

	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	b.Publish(events.New(events.SwipeRecorded, "someone-else", at, nil))
	b.Publish(events.New(events.MatchCreated, "u1", at, map[string]string{"match_id": "m1"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got struct {
		Type events.Type       `json:"type"`
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	if got.Type != events.MatchCreated || got.Data["match_id"] != "m1" {
		t.Errorf("unexpected event %s", data)
	}
}

func TestEventHandlers_UnsubscribesOnClose(t *testing.T) {
	b := events.NewBroadcaster(events.Config{Logger: quietLogger()})
	h := NewEventHandlers(b, nil)
	srv := httptest.NewServer(withUser("u1", http.HandlerFunc(h.Subscribe)))
	defer srv.Close()

	conn := dial(t, srv)
	waitFor(t, func() bool { return b.ConnectionCount("u1") == 1 })

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()
	waitFor(t, func() bool { return b.ConnectionCount("u1") == 0 })
}

func TestEventHandlers_RejectsAnonymous(t *testing.T) {
	h := NewEventHandlers(events.NewBroadcaster(events.Config{}), nil)
	w := httptest.NewRecorder()
	h.Subscribe(w, httptest.NewRequest(http.MethodGet, "/v1/events", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestEventHandlers_OriginCheck(t *testing.T) {
	b := events.NewBroadcaster(events.Config{Logger: quietLogger()})
	h := NewEventHandlers(b, func(r *http.Request) bool {
		return r.Header.Get("Origin") == "https://app.example.com"
	})
	srv := httptest.NewServer(withUser("u1", http.HandlerFunc(h.Subscribe)))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events"
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake to fail for a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 response, got %+v", resp)
	}
	if b.ConnectionCount("u1") != 0 {
		t.Error("rejected connection must not be subscribed")
	}
}
