package transport

import (
	"log/slog"
	"time"
)

// WriteMode selects how Send hands frames to the wire.
type WriteMode int

const (
	// WriteBlocking performs the write inline on the caller's goroutine and
	// returns once the payload is flushed to the OS. This is the legacy
	// behavior of the streaming path and the default.
	WriteBlocking WriteMode = iota

	// WriteAsync hands the payload to a background writer through a bounded
	// queue so a slow peer can never stall the presentation path. Overflow
	// is resolved by DropPolicy.
	WriteAsync
)

// DropPolicy says which frame loses when the async write queue is full.
type DropPolicy int

const (
	// DropNewest rejects the incoming frame and keeps the queue as is.
	DropNewest DropPolicy = iota

	// DropOldest evicts the oldest queued frame to make room.
	DropOldest
)

// Config controls connection, write, and acknowledgment behavior.
type Config struct {
	// ConnectTimeout bounds one connection attempt.
	// Default: 1000ms.
	ConnectTimeout time.Duration

	// RetryTicks is how many Maintain calls to wait after a failed attempt
	// before trying again. The counter advances once per frame-pump call,
	// so real retry latency scales with the caller's frame rate.
	// Default: 300.
	RetryTicks int

	// PollTimeout bounds the acknowledgment poll. It is deliberately tiny:
	// the poll must look non-blocking from the presentation path.
	// Default: 1ms.
	PollTimeout time.Duration

	// WriteTimeout bounds a single blocking write. Zero means no deadline,
	// matching the legacy blocking behavior.
	// Default: 0.
	WriteTimeout time.Duration

	// WriteMode selects blocking or async writes.
	// Default: WriteBlocking.
	WriteMode WriteMode

	// DropPolicy resolves async queue overflow.
	// Default: DropNewest.
	DropPolicy DropPolicy

	// QueueSize is the async write queue depth.
	// Default: 8.
	QueueSize int

	// Logger receives connection lifecycle and drop events.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the configuration used by the remote-play path.
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout: 1000 * time.Millisecond,
		RetryTicks:     300,
		PollTimeout:    time.Millisecond,
		WriteTimeout:   0,
		WriteMode:      WriteBlocking,
		DropPolicy:     DropNewest,
		QueueSize:      8,
		Logger:         nil,
	}
}

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// WithConnectTimeout sets the connection attempt timeout.
func (c *Config) WithConnectTimeout(d time.Duration) *Config {
	c.ConnectTimeout = d
	return c
}

// WithRetryTicks sets the wait counter armed after a failed attempt.
func (c *Config) WithRetryTicks(n int) *Config {
	c.RetryTicks = n
	return c
}

// WithPollTimeout sets the acknowledgment poll bound.
func (c *Config) WithPollTimeout(d time.Duration) *Config {
	c.PollTimeout = d
	return c
}

// WithWriteTimeout sets the per-write deadline. Zero disables it.
func (c *Config) WithWriteTimeout(d time.Duration) *Config {
	c.WriteTimeout = d
	return c
}

// WithWriteMode selects blocking or async writes.
func (c *Config) WithWriteMode(m WriteMode) *Config {
	c.WriteMode = m
	return c
}

// WithQueue sets the async queue depth and overflow policy.
func (c *Config) WithQueue(size int, policy DropPolicy) *Config {
	c.QueueSize = size
	c.DropPolicy = policy
	return c
}

// WithLogger sets the logger.
func (c *Config) WithLogger(l *slog.Logger) *Config {
	c.Logger = l
	return c
}

// logger resolves the configured logger, falling back to slog.Default.
func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
