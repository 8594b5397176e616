package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"techassist/server/internal/config"
)

// testRig runs a hub behind an httptest server. Each dial produces one
// registered connection, subscribed to the topic given in the URL path.
type testRig struct {
	hub      *Hub
	server   *httptest.Server
	upgrader websocket.Upgrader
}

func newTestRig(t *testing.T, cfg config.HubConfig) *testRig {
	t.Helper()

	rig := &testRig{
		hub:      New(cfg, nil),
		upgrader: websocket.Upgrader{},
	}
	rig.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := rig.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := rig.hub.Register(ws)
		topic := strings.TrimPrefix(r.URL.Path, "/")
		rig.hub.Join(c, topic)

		// Drain the read side so close frames are processed.
		go func() {
			defer rig.hub.Unregister(c)
			for {
				if _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(rig.server.Close)
	return rig
}

func (r *testRig) dial(t *testing.T, topic string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(r.server.URL, "http") + "/" + topic
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", topic, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readPayload(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func waitSubscribers(t *testing.T, h *Hub, topic string, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Subscribers(topic) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("topic %s: subscribers = %d, want %d", topic, h.Subscribers(topic), want)
}

// A broadcast reaches every subscriber of its topic and nobody else.
func TestBroadcastFanOut(t *testing.T) {
	rig := newTestRig(t, config.HubConfig{WriteTimeout: time.Second})

	a := rig.dial(t, "ticket_t1")
	b := rig.dial(t, "ticket_t1")
	other := rig.dial(t, "ticket_t2")

	waitSubscribers(t, rig.hub, "ticket_t1", 2)
	waitSubscribers(t, rig.hub, "ticket_t2", 1)

	rig.hub.Broadcast("ticket_t1", map[string]any{"type": "new_comment", "n": 1})

	for _, ws := range []*websocket.Conn{a, b} {
		msg := readPayload(t, ws)
		if msg["type"] != "new_comment" {
			t.Fatalf("payload = %v", msg)
		}
	}

	// The other room must stay silent.
	_ = other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatal("subscriber of another topic received the broadcast")
	}
}

// Closing a client removes it from every topic it joined; broadcasting
// to an emptied topic is a no-op.
func TestUnregisterOnDisconnect(t *testing.T) {
	rig := newTestRig(t, config.HubConfig{WriteTimeout: time.Second})

	ws := rig.dial(t, "technician_notifications")
	waitSubscribers(t, rig.hub, "technician_notifications", 1)

	ws.Close()
	waitSubscribers(t, rig.hub, "technician_notifications", 0)

	rig.hub.Broadcast("technician_notifications", map[string]any{"type": "new_ticket"})
}

// Leaving one topic stops delivery there while the connection keeps
// receiving on its remaining subscriptions.
func TestLeaveSingleTopic(t *testing.T) {
	h := New(config.HubConfig{WriteTimeout: time.Second}, nil)
	upgrader := websocket.Upgrader{}
	conns := make(chan *Conn, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := h.Register(ws)
		h.Join(c, "ticket_t1")
		h.Join(c, "technician_notifications")
		conns <- c
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	c := <-conns

	h.Leave(c, "ticket_t1")
	if got := h.Subscribers("ticket_t1"); got != 0 {
		t.Fatalf("ticket_t1 subscribers after leave = %d, want 0", got)
	}
	if got := h.Subscribers("technician_notifications"); got != 1 {
		t.Fatalf("other subscription must survive the leave, got %d", got)
	}

	// The surviving subscription still delivers.
	h.Broadcast("technician_notifications", map[string]any{"type": "new_ticket"})
	msg := readPayload(t, ws)
	if msg["type"] != "new_ticket" {
		t.Fatalf("payload = %v", msg)
	}
}

// The ping loop keeps an idle connection alive instead of dropping it.
func TestPingKeepsIdleConnection(t *testing.T) {
	rig := newTestRig(t, config.HubConfig{
		PingInterval: 50 * time.Millisecond,
		WriteTimeout: time.Second,
	})

	ws := rig.dial(t, "ticket_t1")
	waitSubscribers(t, rig.hub, "ticket_t1", 1)

	// Sit through several ping intervals, then verify delivery still works.
	time.Sleep(200 * time.Millisecond)
	if got := rig.hub.Subscribers("ticket_t1"); got != 1 {
		t.Fatalf("subscribers after idle = %d, want 1", got)
	}

	rig.hub.Broadcast("ticket_t1", map[string]any{"type": "ticket_updated"})
	msg := readPayload(t, ws)
	if msg["type"] != "ticket_updated" {
		t.Fatalf("payload = %v", msg)
	}
}
