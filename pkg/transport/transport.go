// Package transport owns the outbound connection of a streaming session:
// connect with a bounded timeout, reconnect on a fixed call-tick schedule,
// blocking or queued writes of encoded frame messages, and the opportunistic
// one-byte acknowledgment poll.
//
// The state machine is advanced synchronously by the frame pump, once per
// call, never by a timer: a session that stops pushing frames also stops
// reconnecting.
package transport

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// State is the connection lifecycle state.
type State int32

const (
	// StateDisconnected means no connection and no pending wait: the next
	// Maintain call will attempt to connect.
	StateDisconnected State = iota

	// StateConnecting means a previous attempt failed and the wait counter
	// is still draining.
	StateConnecting

	// StateConnected means frames flow.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Transport moves encoded frame messages to the single peer of a streaming
// session.
//
// Maintain, Send and PollAck must be driven by one goroutine at a time (the
// frame pump); Close may be called from anywhere.
type Transport interface {
	// Maintain advances the connection state machine by one call-tick:
	// attempt, wait, or nothing, per the reconnect schedule.
	Maintain()

	// Send writes one encoded message. It returns ErrNotConnected when no
	// connection is up; the frame is dropped, not queued. The payload is
	// not retained after Send returns.
	Send(payload []byte) error

	// PollAck performs an effectively non-blocking read of one
	// acknowledgment byte, returning 0 when none is pending.
	PollAck() byte

	// State reports the current connection state.
	State() State

	// Close tears the connection down. The transport cannot be reused.
	Close() error
}

// New creates the transport selected by the peer address and cfg: a ws://
// or wss:// URL produces the WebSocket transport, anything else the TCP
// transport. When cfg.WriteMode is WriteAsync the transport runs behind an
// async write queue; otherwise writes block on the frame pump.
func New(addr string, cfg *Config) (Transport, error) {
	cfg = normalize(cfg)
	var base Transport
	var err error
	if strings.Contains(addr, "://") {
		base, err = NewWebSocket(addr, cfg)
	} else {
		base, err = NewTCP(addr, cfg)
	}
	if err != nil {
		return nil, err
	}
	if cfg.WriteMode == WriteAsync {
		return newAsyncWriter(base, cfg), nil
	}
	return base, nil
}

// retryGate is the shared reconnect schedule: a failed attempt arms a
// counter of Maintain ticks that must drain before the next attempt.
type retryGate struct {
	ticks      atomic.Int32
	retryTicks int32
}

func newRetryGate(retryTicks int) *retryGate {
	return &retryGate{retryTicks: int32(retryTicks)}
}

// shouldAttempt reports whether the schedule allows an attempt now, draining
// one tick otherwise.
func (g *retryGate) shouldAttempt() bool {
	for {
		t := g.ticks.Load()
		if t <= 0 {
			return true
		}
		if g.ticks.CompareAndSwap(t, t-1) {
			return false
		}
	}
}

// arm starts a fresh wait period after a failed attempt.
func (g *retryGate) arm() {
	g.ticks.Store(g.retryTicks)
}

// clear resets the schedule, typically after a successful connect.
func (g *retryGate) clear() {
	g.ticks.Store(0)
}

// remaining returns the ticks left before the next attempt.
func (g *retryGate) remaining() int {
	return int(g.ticks.Load())
}
