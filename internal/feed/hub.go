// Package feed broadcasts scene lines to WebSocket subscribers. Each line is
// sent as one JSON text message; a new subscriber first receives the recent
// history so it joins the scene mid-act.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/verona/internal/observe"
	"github.com/MrWong99/verona/internal/scene"
)

const (
	defaultHistorySize = 50
	defaultQueueSize   = 32
	writeTimeout       = 5 * time.Second
)

// Event is the JSON form of one scene line.
type Event struct {
	Seq     uint64    `json:"seq"`
	Kind    string    `json:"kind"`
	Speaker string    `json:"speaker,omitempty"`
	Text    string    `json:"text,omitempty"`
	Names   []string  `json:"names,omitempty"`
	Line    string    `json:"line"`
	Time    time.Time `json:"time"`
}

// subscriber is one connected client. Messages are queued on send; a
// subscriber whose queue is full is disconnected by closing send.
type subscriber struct {
	send chan []byte
}

// Hub fans published lines out to every connected subscriber. It implements
// [http.Handler] for the WebSocket endpoint. All methods are safe for
// concurrent use.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	seq         uint64
	closed      bool

	history        *History
	queueSize      int
	originPatterns []string
	metrics        *observe.Metrics
}

// Option configures a [Hub].
type Option func(*Hub)

// WithHistory sets how many recent events are kept for replay and how old
// they may get. Default: 50 events, no age limit.
func WithHistory(size int, maxAge time.Duration) Option {
	return func(h *Hub) { h.history = NewHistory(size, maxAge) }
}

// WithQueueSize sets the per-subscriber send queue length.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithOriginPatterns allows cross-origin browsers matching the given host
// patterns to subscribe.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.originPatterns = patterns }
}

// WithMetrics records subscriber counts to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subscribers: make(map[*subscriber]struct{}),
		history:     NewHistory(defaultHistorySize, 0),
		queueSize:   defaultQueueSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name identifies the hub in logs and metrics.
func (h *Hub) Name() string { return "feed" }

// Publish records line in the history and queues it for every subscriber.
// It never blocks on a slow client.
func (h *Hub) Publish(ctx context.Context, line scene.Line) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("feed: hub closed")
	}

	h.seq++
	ev := Event{
		Seq:   h.seq,
		Kind:  line.Kind.String(),
		Names: line.Names,
		Line:  line.String(),
		Time:  time.Now().UTC(),
	}
	if !line.IsDirection() {
		ev.Speaker, ev.Text = line.Speaker, line.Text
	}
	h.history.Add(ev)

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	for s := range h.subscribers {
		select {
		case s.send <- data:
		default:
			slog.Warn("feed: subscriber too slow, disconnecting")
			h.drop(ctx, s)
		}
	}
	return nil
}

// Recent returns up to n events from the history, oldest first.
func (h *Hub) Recent(n int) []Event {
	return h.history.Recent(n)
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the request to a WebSocket and streams events until the
// client disconnects or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("feed: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	s, backlog, ok := h.subscribe(r.Context())
	if !ok {
		conn.Close(websocket.StatusGoingAway, "feed closed")
		return
	}
	defer h.unsubscribe(context.WithoutCancel(r.Context()), s)

	// Subscribers only listen; CloseRead handles control frames and cancels
	// ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	for _, data := range backlog {
		if err := write(ctx, conn, data); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, open := <-s.send:
			if !open {
				conn.Close(websocket.StatusGoingAway, "unsubscribed")
				return
			}
			if err := write(ctx, conn, data); err != nil {
				slog.Debug("feed: write failed", "err", err)
				return
			}
		}
	}
}

// HistoryHandler serves the recent events as a JSON array.
func (h *Hub) HistoryHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(h.history.Recent(h.history.maxSize)); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

// Close disconnects every subscriber. Later calls to [Hub.Publish] fail.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for s := range h.subscribers {
		h.drop(context.Background(), s)
	}
	return nil
}

// subscribe registers a subscriber and returns the history to replay. Registration
// and the history snapshot happen under one lock so that every event is
// delivered exactly once.
func (h *Hub) subscribe(ctx context.Context) (*subscriber, [][]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, nil, false
	}

	var backlog [][]byte
	for _, ev := range h.history.Recent(h.history.maxSize) {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		backlog = append(backlog, data)
	}

	s := &subscriber{send: make(chan []byte, h.queueSize)}
	h.subscribers[s] = struct{}{}
	if h.metrics != nil {
		h.metrics.FeedClients.Add(ctx, 1)
	}
	slog.Debug("feed: subscriber connected", "subscribers", len(h.subscribers))
	return s, backlog, true
}

func (h *Hub) unsubscribe(ctx context.Context, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(ctx, s)
}

// drop removes s and closes its queue. Must be called with h.mu held.
func (h *Hub) drop(ctx context.Context, s *subscriber) {
	if _, ok := h.subscribers[s]; !ok {
		return
	}
	delete(h.subscribers, s)
	close(s.send)
	if h.metrics != nil {
		h.metrics.FeedClients.Add(ctx, -1)
	}
}

func write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
