package transport

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Andreas0Cool/citra3ds/pkg/metrics"
)

// WebSocket is the Transport over a WebSocket connection, for senders that
// reach the viewer through HTTP infrastructure (the viewer's /ingest
// endpoint). Each protocol message travels as one binary WebSocket message;
// acknowledgments arrive as one-byte binary messages on a reader goroutine
// and coalesce to the latest value between polls.
type WebSocket struct {
	// Identity
	url string

	// Connection
	mu    sync.RWMutex
	conn  *websocket.Conn
	state atomic.Int32
	gate  *retryGate

	// lastAck holds the most recent acknowledgment byte, -1 when none is
	// pending. PollAck swaps it back to -1.
	lastAck atomic.Int32

	// Lifecycle
	closed atomic.Bool

	// Configuration
	cfg *Config

	// Logger
	logger *slog.Logger

	// Counters
	framesSent atomic.Int64
	bytesSent  atomic.Int64
}

// NewWebSocket creates a WebSocket transport for a ws:// or wss:// URL.
// No connection is attempted until the first Maintain call.
func NewWebSocket(rawURL string, cfg *Config) (*WebSocket, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid websocket url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("transport: unsupported websocket scheme %q", u.Scheme)
	}
	cfg = normalize(cfg)

	w := &WebSocket{
		url:    rawURL,
		gate:   newRetryGate(cfg.RetryTicks),
		cfg:    cfg,
		logger: cfg.logger().With("component", "transport-ws", "peer", rawURL),
	}
	w.lastAck.Store(-1)
	return w, nil
}

// Maintain advances the reconnect state machine by one tick.
func (w *WebSocket) Maintain() {
	if w.closed.Load() || w.State() == StateConnected {
		return
	}
	if !w.gate.shouldAttempt() {
		return
	}

	dialer := websocket.Dialer{HandshakeTimeout: w.cfg.ConnectTimeout}
	conn, _, err := dialer.Dial(w.url, nil)
	if err != nil {
		w.gate.arm()
		w.setState(StateConnecting)
		metrics.RecordReconnect(false)
		w.logger.Debug("connect attempt failed",
			"error", err,
			"retry_after_ticks", w.cfg.RetryTicks)
		return
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	w.lastAck.Store(-1)
	w.gate.clear()
	w.setState(StateConnected)
	metrics.RecordReconnect(true)
	w.logger.Info("connected")

	go w.readLoop(conn)
}

// readLoop consumes acknowledgment messages until the connection dies.
func (w *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			w.dropConn(conn, err)
			return
		}
		if len(data) >= 1 {
			w.lastAck.Store(int32(data[0]))
			metrics.RecordAck()
		}
	}
}

// Send writes one encoded message as a single binary WebSocket message.
func (w *WebSocket) Send(payload []byte) error {
	if w.closed.Load() {
		return ErrClosed
	}
	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()
	if conn == nil || w.State() != StateConnected {
		metrics.RecordDrop("disconnected")
		return ErrNotConnected
	}

	if w.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout))
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		w.dropConn(conn, err)
		if isTimeout(err) {
			return fmt.Errorf("%w: %d bytes", ErrWriteTimeout, len(payload))
		}
		return fmt.Errorf("transport: websocket write failed: %w", err)
	}

	w.framesSent.Add(1)
	w.bytesSent.Add(int64(len(payload)))
	return nil
}

// PollAck returns the latest acknowledgment byte received since the previous
// poll, or 0 when none arrived.
func (w *WebSocket) PollAck() byte {
	v := w.lastAck.Swap(-1)
	if v < 0 {
		return 0
	}
	return byte(v)
}

// State reports the connection state.
func (w *WebSocket) State() State {
	return State(w.state.Load())
}

// Close tears down the connection. Subsequent Sends return ErrClosed.
func (w *WebSocket) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()
	w.setState(StateDisconnected)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (w *WebSocket) setState(s State) {
	w.state.Store(int32(s))
	metrics.SetConnectionState(int(s))
}

// dropConn discards conn if it is still current; stale reader goroutines
// from a previous connection must not tear down a fresh one.
func (w *WebSocket) dropConn(conn *websocket.Conn, err error) {
	w.mu.Lock()
	if w.conn != conn {
		w.mu.Unlock()
		return
	}
	w.conn = nil
	w.mu.Unlock()

	conn.Close()
	w.gate.clear()
	if !w.closed.Load() {
		w.setState(StateDisconnected)
		w.logger.Warn("connection lost", "error", err)
	}
}
