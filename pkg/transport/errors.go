package transport

import "errors"

// Transport errors.
var (
	// ErrNotConnected is returned by Send while no connection is up. The
	// frame is dropped, never queued for a later connection.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport: closed")

	// ErrQueueFull is returned by async Send when the write queue is full
	// and the drop policy rejects the incoming frame.
	ErrQueueFull = errors.New("transport: write queue full")

	// ErrWriteTimeout is returned when a write misses its deadline. The
	// connection is torn down afterwards; a stalled peer is
	// indistinguishable from a dead one.
	ErrWriteTimeout = errors.New("transport: write timed out")
)
