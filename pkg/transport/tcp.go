package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Andreas0Cool/citra3ds/pkg/metrics"
)

// DefaultPort is the TCP port remote-play viewers listen on by convention.
// It is appended to peer addresses that carry no port of their own.
const DefaultPort = 6543

// TCP is the primary Transport: one outbound TCP connection to the viewer,
// blocking writes, reconnect on the call-tick schedule.
type TCP struct {
	// Identity
	addr string

	// Connection
	mu    sync.RWMutex
	conn  net.Conn
	state atomic.Int32
	gate  *retryGate

	// Lifecycle
	closed atomic.Bool

	// Configuration
	cfg *Config

	// Logger
	logger *slog.Logger

	// Counters
	framesSent      atomic.Int64
	bytesSent       atomic.Int64
	connectAttempts atomic.Int64
	connectFailures atomic.Int64
}

// Stats is a point-in-time snapshot of a transport's counters.
type Stats struct {
	State           State
	WaitTicks       int
	FramesSent      int64
	BytesSent       int64
	ConnectAttempts int64
	ConnectFailures int64
}

// NewTCP creates a TCP transport for the given peer address. An address
// without a port gets DefaultPort. No connection is attempted until the
// first Maintain call.
func NewTCP(addr string, cfg *Config) (*TCP, error) {
	if addr == "" {
		return nil, errors.New("transport: empty peer address")
	}
	cfg = normalize(cfg)
	addr = ensureDefaultPort(addr)

	return &TCP{
		addr:   addr,
		gate:   newRetryGate(cfg.RetryTicks),
		cfg:    cfg,
		logger: cfg.logger().With("component", "transport", "peer", addr),
	}, nil
}

// normalize clones cfg and fills unusable values with defaults.
func normalize(cfg *Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	c := cfg.Clone()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 1000 * time.Millisecond
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Millisecond
	}
	if c.QueueSize < 1 {
		c.QueueSize = 1
	}
	return c
}

// ensureDefaultPort appends DefaultPort to addresses without one.
func ensureDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
}

// Maintain advances the reconnect state machine by one tick.
func (t *TCP) Maintain() {
	if t.closed.Load() || t.State() == StateConnected {
		return
	}
	if !t.gate.shouldAttempt() {
		return
	}

	t.connectAttempts.Add(1)
	dialer := net.Dialer{Timeout: t.cfg.ConnectTimeout}
	conn, err := dialer.Dial("tcp", t.addr)
	if err != nil {
		t.connectFailures.Add(1)
		t.gate.arm()
		t.setState(StateConnecting)
		metrics.RecordReconnect(false)
		t.logger.Debug("connect attempt failed",
			"error", err,
			"retry_after_ticks", t.cfg.RetryTicks)
		return
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.gate.clear()
	t.setState(StateConnected)
	metrics.RecordReconnect(true)
	t.logger.Info("connected", "local_addr", conn.LocalAddr().String())
}

// Send writes one encoded message, blocking until the payload is flushed to
// the OS or the optional write deadline expires.
func (t *TCP) Send(payload []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil || t.State() != StateConnected {
		metrics.RecordDrop("disconnected")
		return ErrNotConnected
	}

	if t.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	n, err := conn.Write(payload)
	if err != nil {
		t.disconnect("send", err)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w after %d of %d bytes", ErrWriteTimeout, n, len(payload))
		}
		return fmt.Errorf("transport: write failed: %w", err)
	}

	t.framesSent.Add(1)
	t.bytesSent.Add(int64(n))
	return nil
}

// PollAck reads one pending acknowledgment byte, bounded by PollTimeout.
func (t *TCP) PollAck() byte {
	if t.closed.Load() {
		return 0
	}
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil || t.State() != StateConnected {
		return 0
	}

	conn.SetReadDeadline(time.Now().Add(t.cfg.PollTimeout))
	var b [1]byte
	n, err := conn.Read(b[:])
	if n == 1 {
		metrics.RecordAck()
		return b[0]
	}
	if err != nil && !isTimeout(err) {
		t.disconnect("poll", err)
	}
	return 0
}

// State reports the connection state.
func (t *TCP) State() State {
	return State(t.state.Load())
}

// Stats returns a snapshot of the transport counters.
func (t *TCP) Stats() Stats {
	return Stats{
		State:           t.State(),
		WaitTicks:       t.gate.remaining(),
		FramesSent:      t.framesSent.Load(),
		BytesSent:       t.bytesSent.Load(),
		ConnectAttempts: t.connectAttempts.Load(),
		ConnectFailures: t.connectFailures.Load(),
	}
}

// Close tears down the connection. Subsequent Sends return ErrClosed.
func (t *TCP) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	t.setState(StateDisconnected)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (t *TCP) setState(s State) {
	t.state.Store(int32(s))
	metrics.SetConnectionState(int(s))
}

// disconnect drops the current connection after a send or poll failure. The
// retry gate is cleared so Maintain attempts a fresh connection on the very
// next tick.
func (t *TCP) disconnect(op string, err error) {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return
	}
	conn.Close()
	t.gate.clear()
	t.setState(StateDisconnected)
	t.logger.Warn("connection lost", "op", op, "error", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
