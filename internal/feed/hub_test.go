package feed_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/verona/internal/feed"
	"github.com/MrWong99/verona/internal/scene"
)

// ── helpers ──────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) feed.Event {
	t.Helper()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("message type = %v, want text", typ)
	}
	var ev feed.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return ev
}

// waitSubscribers polls until the hub has n subscribers.
func waitSubscribers(t *testing.T, hub *feed.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d, want %d", hub.Subscribers(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var (
	entrance = scene.Line{Kind: scene.Entrance, Names: []string{"Romeo", "Juliet"}}
	dialogue = scene.Line{Kind: scene.Dialogue, Speaker: "Romeo", Text: "But soft, what light."}
)

// ── tests ────────────────────────────────────────────────────────────────────

func TestHub_DeliversLiveLine(t *testing.T) {
	t.Parallel()
	hub := feed.NewHub()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv)
	waitSubscribers(t, hub, 1)

	if err := hub.Publish(ctx, dialogue); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ev := readEvent(t, ctx, conn)
	if ev.Seq != 1 || ev.Kind != "dialogue" || ev.Speaker != "Romeo" || ev.Text != "But soft, what light." {
		t.Errorf("event = %+v", ev)
	}
	if ev.Line != "ROMEO: But soft, what light." {
		t.Errorf("line = %q", ev.Line)
	}
}

func TestHub_ReplaysHistory(t *testing.T) {
	t.Parallel()
	hub := feed.NewHub(feed.WithHistory(10, 0))
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := hub.Publish(ctx, entrance); err != nil {
		t.Fatal(err)
	}
	if err := hub.Publish(ctx, dialogue); err != nil {
		t.Fatal(err)
	}

	conn := dial(t, ctx, srv)
	first := readEvent(t, ctx, conn)
	second := readEvent(t, ctx, conn)

	if first.Kind != "entrance" || first.Line != "Enter ROMEO and JULIET" {
		t.Errorf("first = %+v", first)
	}
	if first.Speaker != "" || len(first.Names) != 2 {
		t.Errorf("stage direction should carry names only: %+v", first)
	}
	if second.Seq != 2 {
		t.Errorf("second seq = %d, want 2", second.Seq)
	}
}

func TestHub_DisconnectUnsubscribes(t *testing.T) {
	t.Parallel()
	hub := feed.NewHub()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv)
	waitSubscribers(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "exeunt")
	waitSubscribers(t, hub, 0)
}

func TestHub_Close(t *testing.T) {
	t.Parallel()
	hub := feed.NewHub()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv)
	waitSubscribers(t, hub, 1)

	if err := hub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Errorf("read after Close: %v, want going-away close", err)
	}
	if err := hub.Publish(ctx, dialogue); err == nil {
		t.Error("Publish after Close should fail")
	}
}

func TestHub_HistoryHandler(t *testing.T) {
	t.Parallel()
	hub := feed.NewHub()
	_ = hub.Publish(context.Background(), entrance)
	_ = hub.Publish(context.Background(), dialogue)

	rec := httptest.NewRecorder()
	hub.HistoryHandler(rec, httptest.NewRequest(http.MethodGet, "/feed/history", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var events []feed.Event
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 2 || events[1].Speaker != "Romeo" {
		t.Errorf("events = %+v", events)
	}
	if hub.Name() != "feed" {
		t.Errorf("Name() = %q", hub.Name())
	}
}
