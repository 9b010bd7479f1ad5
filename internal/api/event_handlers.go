package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/swipestack/internal/events"
	"github.com/onnwee/swipestack/internal/middleware"
)

// readDeadline closes connections whose clients stopped answering pings.
const (
	readDeadline = 60 * time.Second
	pingInterval = 25 * time.Second
)

// Subscriber registers websocket connections for a user's events.
// *events.Broadcaster satisfies it.
type Subscriber interface {
	Subscribe(userID string, conn events.Conn)
	Unsubscribe(userID string, conn events.Conn)
}

// EventHandlers serves the outbound event channel.
type EventHandlers struct {
	subscriber Subscriber
	upgrader   websocket.Upgrader
}

// NewEventHandlers creates the event channel handler. checkOrigin may be
// nil to accept any origin.
func NewEventHandlers(subscriber Subscriber, checkOrigin func(r *http.Request) bool) *EventHandlers {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &EventHandlers{
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Subscribe handles GET /v1/events. The connection receives the JSON
// envelope of every event addressed to the authenticated user until either
// side closes it.
func (h *EventHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		slog.WarnContext(ctx, "failed to upgrade websocket connection", "error", err)
		return
	}

	h.subscriber.Subscribe(userID, conn)
	requestID := middleware.GetRequestID(ctx)
	slog.InfoContext(ctx, "event channel subscribed", "user_id", userID, "request_id", requestID)

	done := make(chan struct{})
	defer func() {
		close(done)
		h.subscriber.Unsubscribe(userID, conn)
		conn.Close()
		slog.InfoContext(ctx, "event channel closed", "user_id", userID, "request_id", requestID)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})
	go keepAlive(conn, done)

	// Clients never send data; reading detects disconnects and handles pongs.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.WarnContext(ctx, "event channel closed unexpectedly", "error", err, "user_id", userID)
			}
			return
		}
	}
}

func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
