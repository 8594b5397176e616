package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"techassist/server/internal/config"
)

// Conn wraps one websocket client. Writes are serialized through a lock
// because the ping loop and broadcasts run on different goroutines; the
// close is funneled through a sync.Once so the reader, the ping loop,
// and the hub can all call Close without coordination.
type Conn struct {
	ws *websocket.Conn

	writeLock    sync.Mutex
	writeTimeout time.Duration

	closeOnce sync.Once
	closeChan chan struct{}
}

// Send writes v as a JSON text frame under the write deadline.
func (c *Conn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// ReadMessage blocks for the next frame. The caller owns the read side;
// the hub never reads.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *Conn) ping() error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	return c.ws.WriteControl(websocket.PingMessage, nil, deadline)
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		_ = c.ws.Close()
	})
}

// Done is closed when the connection is torn down, whichever side did it.
func (c *Conn) Done() <-chan struct{} {
	return c.closeChan
}

// Hub fans messages out to topic subscribers. Topics are plain strings;
// the per-ticket rooms and the global technician feed both live here.
// A connection may sit in any number of topics and is dropped from all
// of them when it fails or disconnects.
type Hub struct {
	cfg config.HubConfig
	log *zap.Logger

	mu     sync.RWMutex
	topics map[string]map[*Conn]struct{}
}

func New(cfg config.HubConfig, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		cfg:    cfg,
		log:    log,
		topics: make(map[string]map[*Conn]struct{}),
	}
}

// Register wraps an upgraded websocket and starts its ping loop. The
// connection is not subscribed to anything yet.
func (h *Hub) Register(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:           ws,
		writeTimeout: h.cfg.WriteTimeout,
		closeChan:    make(chan struct{}),
	}
	if h.cfg.PingInterval > 0 {
		go h.pingLoop(c)
	}
	return c
}

func (h *Hub) pingLoop(c *Conn) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				h.log.Debug("ping failed, dropping connection", zap.Error(err))
				h.Unregister(c)
				return
			}
		}
	}
}

func (h *Hub) Join(c *Conn, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Conn]struct{})
		h.topics[topic] = subs
	}
	subs[c] = struct{}{}
}

func (h *Hub) Leave(c *Conn, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, topic)
}

// Unregister drops the connection from every topic and closes it.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	for topic := range h.topics {
		h.leaveLocked(c, topic)
	}
	h.mu.Unlock()

	c.Close()
}

func (h *Hub) leaveLocked(c *Conn, topic string) {
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Subscribers reports the current size of a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Broadcast sends payload to every subscriber of the topic. A failed
// write removes the connection; the broadcast itself never fails.
func (h *Hub) Broadcast(topic string, payload any) {
	h.mu.RLock()
	subs := make([]*Conn, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	for _, c := range subs {
		if err := c.Send(payload); err != nil {
			h.log.Debug("broadcast write failed, dropping connection",
				zap.String("topic", topic),
				zap.Error(err))
			h.Unregister(c)
		}
	}
}
