// Package citra3ds provides the public API for the remote-play streaming
// stack.
//
// This is the recommended import for senders:
//
//	import "github.com/Andreas0Cool/citra3ds"
//
// Usage:
//
//	sess, err := citra3ds.OpenStream("10.0.0.7:6543", nil)
//	if err != nil { ... }
//	defer sess.Close()
//
//	for running {
//		renderInto(buf.Pix)
//		ack, err := sess.Push(buf.Pix)
//	}
package citra3ds

import (
	"github.com/Andreas0Cool/citra3ds/pkg/capture"
	"github.com/Andreas0Cool/citra3ds/pkg/encoder"
	"github.com/Andreas0Cool/citra3ds/pkg/frame"
	"github.com/Andreas0Cool/citra3ds/pkg/protocol"
	"github.com/Andreas0Cool/citra3ds/pkg/stream"
	"github.com/Andreas0Cool/citra3ds/pkg/transport"
)

// =============================================================================
// Streaming sessions (re-export from pkg/stream)
// =============================================================================

// Session is one outbound stream: frames in, block-diff messages out.
type Session = stream.Session

// Config controls a streaming session.
type Config = stream.Config

// Stats is a point-in-time snapshot of session counters.
type Stats = stream.Stats

// SessionError wraps a session failure with its id and operation.
type SessionError = stream.SessionError

// DefaultConfig returns the configuration of the stock remote-play stream.
var DefaultConfig = stream.DefaultConfig

// Session errors.
var (
	ErrSessionClosed  = stream.ErrSessionClosed
	ErrConcurrentPush = stream.ErrConcurrentPush
)

// OpenStream connects a streaming session to the viewer at peer: a
// host:port address for TCP, a ws:// or wss:// URL for WebSocket ingest.
// A nil cfg means DefaultConfig: 240×320 frames, quality 70, blocking
// writes with automatic reconnection.
//
// Example:
//
//	sess, err := citra3ds.OpenStream("10.0.0.7:6543", nil)
func OpenStream(peer string, cfg *Config) (*Session, error) {
	return stream.New(peer, cfg)
}

// =============================================================================
// Frame geometry (re-export from pkg/frame)
// =============================================================================

// Layout is a capture resolution in pixels.
type Layout = frame.Layout

// Buffer is one RGB24 frame.
type Buffer = frame.Buffer

// DefaultLayout is the stock 240×320 capture resolution.
var DefaultLayout = frame.DefaultLayout

// NewBuffer allocates a zeroed frame for the layout.
var NewBuffer = frame.NewBuffer

// Geometry constants.
const (
	BlockSize     = frame.BlockSize
	BytesPerPixel = frame.BytesPerPixel
)

// =============================================================================
// Wire protocol (re-export from pkg/protocol)
// =============================================================================

// FrameMode says how a message's payload patches the remote frame.
type FrameMode = protocol.FrameMode

// Frame modes.
const (
	ModeNone         = protocol.ModeNone
	ModeFull         = protocol.ModeFull
	ModeDiff         = protocol.ModeDiff
	ModeChecker      = protocol.ModeChecker
	ModeCheckerCompl = protocol.ModeCheckerCompl
)

// Acknowledgment bytes returned by Session.Push.
const (
	AckNone  = protocol.AckNone
	AckReady = protocol.AckReady
)

// =============================================================================
// Transport (re-export from pkg/transport)
// =============================================================================

// Transport moves encoded messages to the peer.
type Transport = transport.Transport

// TransportConfig controls connection, write, and acknowledgment behavior.
type TransportConfig = transport.Config

// State is the connection lifecycle state reported by Session.State.
type State = transport.State

// DefaultTransportConfig returns the stock transport configuration.
var DefaultTransportConfig = transport.DefaultConfig

// DefaultPort is the viewer's TCP port when the peer address omits one.
const DefaultPort = transport.DefaultPort

// Write modes and overflow policies for TransportConfig.
const (
	WriteBlocking = transport.WriteBlocking
	WriteAsync    = transport.WriteAsync
	DropNewest    = transport.DropNewest
	DropOldest    = transport.DropOldest
)

// Connection states.
const (
	StateDisconnected = transport.StateDisconnected
	StateConnecting   = transport.StateConnecting
	StateConnected    = transport.StateConnected
)

// =============================================================================
// Capture hook (re-export from pkg/capture)
// =============================================================================

// Request describes one streaming registration from the presentation path.
type Request = capture.Request

// Hook is the single-slot registration between a render loop and a session.
type Hook = capture.Hook

// NewHook returns an empty capture hook.
var NewHook = capture.NewHook

// ErrInvalidRequest is returned by Hook.Set for undeliverable requests.
var ErrInvalidRequest = capture.ErrInvalidRequest

// =============================================================================
// Encoding (re-export from pkg/encoder)
// =============================================================================

// DefaultQuality is the stock lossy compression quality.
const DefaultQuality = encoder.DefaultQuality
