package stream

import (
	"log/slog"

	"github.com/Andreas0Cool/citra3ds/pkg/encoder"
	"github.com/Andreas0Cool/citra3ds/pkg/frame"
	"github.com/Andreas0Cool/citra3ds/pkg/transport"
)

// Config controls a streaming session.
type Config struct {
	// Layout is the capture resolution. Both ends must agree on it since
	// the dirty-bitmap size on the wire is derived from it.
	// Default: frame.DefaultLayout (240×320).
	Layout frame.Layout

	// Quality is the lossy compression quality on a 1..100 scale.
	// Default: encoder.DefaultQuality (70).
	Quality int

	// Transport configures the outbound connection. Nil means
	// transport.DefaultConfig.
	Transport *transport.Config

	// Logger receives session lifecycle and drop events.
	// Default: slog.Default().
	Logger *slog.Logger

	// TracerName enables an OpenTelemetry span around every Push when
	// non-empty, resolved from the global tracer provider. Empty disables
	// tracing entirely; the hot path pays nothing for it.
	// Default: "".
	TracerName string
}

// DefaultConfig returns the configuration of the stock remote-play stream.
func DefaultConfig() *Config {
	return &Config{
		Layout:    frame.DefaultLayout,
		Quality:   encoder.DefaultQuality,
		Transport: nil,
		Logger:    nil,
	}
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Transport != nil {
		clone.Transport = c.Transport.Clone()
	}
	return &clone
}

// WithLayout sets the capture resolution.
func (c *Config) WithLayout(l frame.Layout) *Config {
	c.Layout = l
	return c
}

// WithQuality sets the compression quality.
func (c *Config) WithQuality(q int) *Config {
	c.Quality = q
	return c
}

// WithTransport sets the transport configuration.
func (c *Config) WithTransport(tc *transport.Config) *Config {
	c.Transport = tc
	return c
}

// WithLogger sets the logger.
func (c *Config) WithLogger(l *slog.Logger) *Config {
	c.Logger = l
	return c
}

// WithTracing enables per-push tracing under the given tracer name.
func (c *Config) WithTracing(name string) *Config {
	c.TracerName = name
	return c
}

// logger resolves the configured logger, falling back to slog.Default.
func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
