package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the part of a websocket connection the broadcaster writes to.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// Config configures a Broadcaster.
type Config struct {
	// QueueSize bounds the number of undelivered events. Default 256.
	QueueSize int
	// WriteTimeout bounds each websocket write. Default 5s.
	WriteTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *Metrics
}

// Broadcaster queues events and fans them out to each recipient's
// websocket connections. Publish never blocks; when the queue is full the
// event is dropped and counted.
type Broadcaster struct {
	queue   chan Event
	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics

	mu    sync.RWMutex
	conns map[string]map[Conn]bool // userID -> connections

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBroadcaster creates a broadcaster. Call Start to begin delivery.
func NewBroadcaster(cfg Config) *Broadcaster {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Broadcaster{
		queue:   make(chan Event, cfg.QueueSize),
		timeout: cfg.WriteTimeout,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		conns:   make(map[string]map[Conn]bool),
	}
}

// Publish implements Publisher.
func (b *Broadcaster) Publish(e Event) bool {
	select {
	case b.queue <- e:
		b.metrics.incPublished(e.Type)
		return true
	default:
		b.metrics.incDropped(e.Type)
		b.logger.Warn("event queue full, dropping event",
			slog.String("type", string(e.Type)),
			slog.String("user_id", e.UserID))
		return false
	}
}

// Subscribe registers a connection for userID's events.
func (b *Broadcaster) Subscribe(userID string, conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conns[userID] == nil {
		b.conns[userID] = make(map[Conn]bool)
	}
	if !b.conns[userID][conn] {
		b.conns[userID][conn] = true
		b.metrics.addConnections(1)
	}
}

// Unsubscribe removes a connection.
func (b *Broadcaster) Unsubscribe(userID string, conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conns := b.conns[userID]
	if !conns[conn] {
		return
	}
	delete(conns, conn)
	b.metrics.addConnections(-1)
	if len(conns) == 0 {
		delete(b.conns, userID)
	}
}

// ConnectionCount returns the number of connections subscribed for userID.
func (b *Broadcaster) ConnectionCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns[userID])
}

// Start begins delivering queued events in a background goroutine.
func (b *Broadcaster) Start(ctx context.Context) {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	go b.run(ctx, b.stopCh, b.doneCh)
}

// Stop halts delivery and waits for the delivery goroutine to exit.
// Events still queued are delivered first.
func (b *Broadcaster) Stop() {
	b.runMu.Lock()
	if !b.running {
		b.runMu.Unlock()
		return
	}
	b.running = false
	stopCh, doneCh := b.stopCh, b.doneCh
	b.runMu.Unlock()

	close(stopCh)
	<-doneCh
}

func (b *Broadcaster) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case e := <-b.queue:
			b.deliver(e)
		case <-ctx.Done():
			return
		case <-stopCh:
			b.drain()
			return
		}
	}
}

func (b *Broadcaster) drain() {
	for {
		select {
		case e := <-b.queue:
			b.deliver(e)
		default:
			return
		}
	}
}

func (b *Broadcaster) deliver(e Event) {
	b.mu.RLock()
	targets := make([]Conn, 0, len(b.conns[e.UserID]))
	for c := range b.conns[e.UserID] {
		targets = append(targets, c)
	}
	b.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("failed to marshal event", slog.String("type", string(e.Type)), slog.String("error", err.Error()))
		return
	}

	for _, c := range targets {
		_ = c.SetWriteDeadline(time.Now().Add(b.timeout))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			b.logger.Warn("failed to send event to websocket client",
				slog.String("type", string(e.Type)),
				slog.String("user_id", e.UserID),
				slog.String("error", err.Error()))
			// The read loop unsubscribes the connection when the client goes away.
			continue
		}
		b.metrics.incDelivered(e.Type)
	}
}
