package viewer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// hubWriteTimeout bounds each frame write to a browser. A viewer that cannot
// take a frame within this window is disconnected.
const hubWriteTimeout = 5 * time.Second

// Hub fans reconstructed frames out to browser viewers over WebSocket. Every
// viewer has a one-slot mailbox: when a viewer falls behind, the stale frame
// waiting in its mailbox is replaced by the newer one, so each write a viewer
// receives is the freshest frame available at that moment. Frames are never
// queued deeper than one.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	latest  []byte
	closed  bool
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// NewHub returns an empty hub. A nil logger falls back to slog.Default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger.With("component", "viewer-hub"),
		clients: make(map[*hubClient]struct{}),
	}
}

// Publish hands a frame to every connected viewer, replacing any frame still
// waiting in a viewer's mailbox. The hub copies data, so callers may reuse
// the slice immediately.
func (h *Hub) Publish(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.latest = buf
	for c := range h.clients {
		c.offer(buf)
	}
}

// Viewers returns the number of connected viewers.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeViewer registers conn as a viewer and blocks until the viewer leaves
// or the hub closes. The latest published frame, if any, is delivered first
// so a late joiner sees a picture before the next update.
func (h *Hub) ServeViewer(conn *websocket.Conn) {
	c := &hubClient{
		conn: conn,
		send: make(chan []byte, 1),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.latest != nil {
		c.offer(h.latest)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("viewer joined", "viewers", n)

	go c.writeLoop()

	// Inbound traffic is ignored; the read loop only notices disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

// Close disconnects all viewers. Publish becomes a no-op afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*hubClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		c.stop()
		h.logger.Debug("viewer left", "viewers", n)
	}
}

// offer places buf in the mailbox, evicting a stale frame if one is waiting.
// Offers are serialized under the hub mutex, so the retry cannot race another
// producer and always lands.
func (c *hubClient) offer(buf []byte) {
	select {
	case c.send <- buf:
		return
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- buf:
	default:
	}
}

func (c *hubClient) stop() {
	close(c.done)
	c.conn.Close()
}

func (c *hubClient) writeLoop() {
	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case buf := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
