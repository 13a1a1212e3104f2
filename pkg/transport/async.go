package transport

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Andreas0Cool/citra3ds/pkg/metrics"
)

// asyncWriter decouples the presentation path from the wire: Send enqueues a
// copy of the payload and returns immediately, a background goroutine drains
// the queue through the inner transport. When the queue is full the
// configured DropPolicy decides which frame loses.
//
// Connection maintenance also moves off the caller: Maintain only nudges the
// writer goroutine, so a slow connect can never stall a frame push.
type asyncWriter struct {
	inner    Transport
	queue    chan []byte
	maintain chan struct{}
	policy   DropPolicy
	logger   *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Int64
}

func newAsyncWriter(inner Transport, cfg *Config) *asyncWriter {
	a := &asyncWriter{
		inner:    inner,
		queue:    make(chan []byte, cfg.QueueSize),
		maintain: make(chan struct{}, 1),
		policy:   cfg.DropPolicy,
		logger:   cfg.logger().With("component", "transport-async"),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *asyncWriter) run() {
	for {
		select {
		case <-a.done:
			return
		case <-a.maintain:
			a.inner.Maintain()
		case payload := <-a.queue:
			if err := a.inner.Send(payload); err != nil {
				a.dropped.Add(1)
				metrics.RecordDrop("send_failed")
				a.logger.Debug("queued frame dropped", "error", err)
			}
		}
	}
}

// Maintain nudges the writer goroutine to run connection maintenance. The
// nudge coalesces: one pending maintenance at a time is enough.
func (a *asyncWriter) Maintain() {
	if a.closed.Load() {
		return
	}
	select {
	case a.maintain <- struct{}{}:
	default:
	}
}

// Send enqueues a copy of the payload. With DropPolicy DropNewest a full
// queue rejects the incoming frame with ErrQueueFull; with DropOldest the
// oldest queued frame is evicted to make room.
func (a *asyncWriter) Send(payload []byte) error {
	if a.closed.Load() {
		return ErrClosed
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)

	for {
		select {
		case a.queue <- buf:
			return nil
		default:
		}
		if a.policy == DropNewest {
			a.dropped.Add(1)
			metrics.RecordDrop("queue_full")
			return ErrQueueFull
		}
		select {
		case <-a.queue:
			a.dropped.Add(1)
			metrics.RecordDrop("evicted")
			a.logger.Debug("evicted oldest queued frame")
		default:
		}
	}
}

// PollAck polls the inner transport directly; reads are non-blocking and do
// not contend with the writer goroutine.
func (a *asyncWriter) PollAck() byte {
	return a.inner.PollAck()
}

// State reports the inner connection state.
func (a *asyncWriter) State() State {
	return a.inner.State()
}

// Dropped returns the number of frames lost to queue overflow or failed
// background writes.
func (a *asyncWriter) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops the writer goroutine and closes the inner transport. Queued
// frames are discarded.
func (a *asyncWriter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		close(a.done)
		err = a.inner.Close()
	})
	return err
}
