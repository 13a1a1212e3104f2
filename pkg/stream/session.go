package stream

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Andreas0Cool/citra3ds/pkg/encoder"
	"github.com/Andreas0Cool/citra3ds/pkg/frame"
	"github.com/Andreas0Cool/citra3ds/pkg/metrics"
	"github.com/Andreas0Cool/citra3ds/pkg/protocol"
	"github.com/Andreas0Cool/citra3ds/pkg/transport"
)

// Session owns one adaptive stream to one peer: the reference frame buffer,
// the mode selector, the compressor, and the outbound connection.
//
// A session is driven by exactly one goroutine. Push is not reentrant;
// concurrent calls fail with ErrConcurrentPush rather than corrupting the
// reference buffer.
type Session struct {
	// Identity
	id string

	// Pipeline
	layout   frame.Layout
	selector *selector
	encoder  encoder.FrameEncoder
	wire     *protocol.Encoder

	// Transport
	transport transport.Transport

	// Lifecycle
	busy   atomic.Bool
	closed atomic.Bool

	// Configuration
	cfg *Config

	// Telemetry
	logger *slog.Logger
	tracer trace.Tracer

	// Counters
	framesIn   atomic.Int64
	framesSent atomic.Int64
	dropped    atomic.Int64
	modeCounts [5]atomic.Int64 // indexed by wire FrameMode
}

// Stats is a point-in-time snapshot of a session.
type Stats struct {
	ID         string
	State      transport.State
	FramesIn   int64
	FramesSent int64
	Dropped    int64
	Modes      [5]int64 // indexed by wire FrameMode
}

// New opens a session that streams to the given peer address, connecting
// lazily on the first Push. A host:port address streams over TCP; a ws://
// or wss:// URL streams over a WebSocket.
func New(peer string, cfg *Config) (*Session, error) {
	cfg = normalizeConfig(cfg)
	tr, err := transport.New(peer, cfg.Transport)
	if err != nil {
		return nil, err
	}
	s, err := NewWithTransport(tr, cfg)
	if err != nil {
		tr.Close()
		return nil, err
	}
	return s, nil
}

// NewWithTransport opens a session over a caller-supplied transport. The
// session takes ownership of it on success and closes it with Close; on
// error the transport stays with the caller.
func NewWithTransport(tr transport.Transport, cfg *Config) (*Session, error) {
	cfg = normalizeConfig(cfg)

	sel, err := newSelector(cfg.Layout)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s := &Session{
		id:        id,
		layout:    cfg.Layout,
		selector:  sel,
		encoder:   encoder.NewJPEG(cfg.Quality),
		wire:      protocol.NewEncoder(),
		transport: tr,
		cfg:       cfg,
		logger:    cfg.logger().With("component", "stream", "session_id", id),
	}
	if cfg.TracerName != "" {
		s.tracer = otel.Tracer(cfg.TracerName)
	}

	s.logger.Info("session started",
		"layout", cfg.Layout.String(),
		"quality", cfg.Quality)
	return s, nil
}

// normalizeConfig clones cfg and fills unusable values with defaults.
func normalizeConfig(cfg *Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	c := cfg.Clone()
	if !c.Layout.Valid() {
		c.Layout = frame.DefaultLayout
	}
	if c.Quality <= 0 {
		c.Quality = encoder.DefaultQuality
	}
	return c
}

// pushResult carries one pump pass's outcome to the tracing wrapper.
type pushResult struct {
	ack  byte
	mode protocol.FrameMode
	size int
	sent bool
}

// Push drives one frame through the pipeline: connection maintenance first,
// then mode selection, compression, and transmission, then the
// acknowledgment poll. pixels must be a full frame in the session's layout,
// RGB, three bytes per pixel. A nil pixels performs maintenance and the
// acknowledgment poll only.
//
// The returned byte is the peer's latest acknowledgment, 0 when none
// arrived. Frames pushed while disconnected are dropped, not queued; the
// drop is logged and counted but is not an error.
func (s *Session) Push(pixels []byte) (byte, error) {
	if s.closed.Load() {
		return 0, &SessionError{SessionID: s.id, Op: "push", Err: ErrSessionClosed}
	}
	if !s.busy.CompareAndSwap(false, true) {
		return 0, &SessionError{SessionID: s.id, Op: "push", Err: ErrConcurrentPush}
	}
	defer s.busy.Store(false)

	if s.tracer == nil {
		res, err := s.push(pixels)
		return res.ack, err
	}

	_, span := s.tracer.Start(context.Background(), "remoteplay.push",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("remoteplay.session_id", s.id)))
	defer span.End()

	res, err := s.push(pixels)
	span.SetAttributes(
		attribute.String("remoteplay.mode", res.mode.String()),
		attribute.Int("remoteplay.wire_bytes", res.size),
		attribute.Bool("remoteplay.sent", res.sent),
		attribute.Int("remoteplay.ack", int(res.ack)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return res.ack, err
}

func (s *Session) push(pixels []byte) (pushResult, error) {
	s.transport.Maintain()

	if pixels == nil {
		return pushResult{ack: s.transport.PollAck()}, nil
	}
	s.framesIn.Add(1)

	cur, err := frame.Wrap(s.layout, pixels)
	if err != nil {
		return pushResult{ack: s.transport.PollAck()},
			&SessionError{SessionID: s.id, Op: "push", Err: err}
	}

	dec, err := s.selector.next(cur)
	if err != nil {
		return pushResult{ack: s.transport.PollAck()},
			&SessionError{SessionID: s.id, Op: "select", Err: err}
	}
	if dec.scanned {
		metrics.RecordDirtyBlocks(dec.dirty)
	}

	msg := protocol.Message{Mode: dec.mode}
	if dec.mode != protocol.ModeNone {
		start := time.Now()
		switch dec.mode {
		case protocol.ModeFull:
			msg.Payload, err = s.encoder.EncodeFrame(cur)
		case protocol.ModeDiff:
			msg.Bitmap = dec.bitmap
			msg.Payload, err = s.encoder.EncodeBlocks(dec.packed, dec.dirty)
		default:
			msg.Payload, err = s.encoder.EncodeInterlaced(cur, dec.phase)
		}
		if err != nil {
			return pushResult{ack: s.transport.PollAck(), mode: dec.mode},
				&SessionError{SessionID: s.id, Op: "encode", Err: err}
		}
		metrics.RecordEncodeDuration(time.Since(start))
	}

	s.wire.Reset()
	if err := msg.AppendTo(s.wire); err != nil {
		return pushResult{ack: s.transport.PollAck(), mode: dec.mode},
			&SessionError{SessionID: s.id, Op: "frame", Err: err}
	}

	if err := s.transport.Send(s.wire.Bytes()); err != nil {
		s.dropped.Add(1)
		s.logger.Debug("frame dropped", "mode", dec.mode.String(), "error", err)
		return pushResult{ack: s.transport.PollAck(), mode: dec.mode}, nil
	}

	s.framesSent.Add(1)
	s.modeCounts[dec.mode].Add(1)
	metrics.RecordFrame(dec.mode.String(), s.wire.Len())

	return pushResult{
		ack:  s.transport.PollAck(),
		mode: dec.mode,
		size: s.wire.Len(),
		sent: true,
	}, nil
}

// Poll runs connection maintenance and the acknowledgment poll without
// sending a frame. It is shorthand for Push(nil), for callers that want a
// heartbeat between frames.
func (s *Session) Poll() (byte, error) {
	return s.Push(nil)
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State reports the transport connection state.
func (s *Session) State() transport.State {
	return s.transport.State()
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	st := Stats{
		ID:         s.id,
		State:      s.transport.State(),
		FramesIn:   s.framesIn.Load(),
		FramesSent: s.framesSent.Load(),
		Dropped:    s.dropped.Load(),
	}
	for i := range s.modeCounts {
		st.Modes[i] = s.modeCounts[i].Load()
	}
	return st
}

// Close tears down the transport. Pending state is discarded; a session
// cannot be reused after Close.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("session closed",
		"frames_in", s.framesIn.Load(),
		"frames_sent", s.framesSent.Load(),
		"dropped", s.dropped.Load())
	return s.transport.Close()
}
