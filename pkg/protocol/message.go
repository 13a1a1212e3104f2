package protocol

import (
	"errors"
	"fmt"
	"io"
)

// FrameMode is the 2-byte transmission mode code leading every message.
type FrameMode uint16

// Frame transmission modes.
const (
	// ModeNone signals that nothing changed; the message has no payload.
	ModeNone FrameMode = 0

	// ModeFull carries a complete compressed frame (keyframe).
	ModeFull FrameMode = 1

	// ModeDiff carries a dirty bitmap plus the changed blocks compressed as
	// one packed payload.
	ModeDiff FrameMode = 2

	// ModeChecker carries the phase-0 half of a checkerboard-interlaced
	// frame pair.
	ModeChecker FrameMode = 3

	// ModeCheckerCompl carries the complementary phase-1 half.
	ModeCheckerCompl FrameMode = 4
)

// CheckerMode returns the wire mode for an interlace sampling phase.
func CheckerMode(phase int) FrameMode {
	return ModeChecker + FrameMode(phase&1)
}

// Valid reports whether m is a known mode code.
func (m FrameMode) Valid() bool {
	return m <= ModeCheckerCompl
}

// Interlaced reports whether m is one of the two checkerboard phases.
func (m FrameMode) Interlaced() bool {
	return m == ModeChecker || m == ModeCheckerCompl
}

// Phase returns the interlace sampling phase for a checker mode (0 or 1).
func (m FrameMode) Phase() int {
	return int(m - ModeChecker)
}

func (m FrameMode) String() string {
	switch m {
	case ModeNone:
		return "NONE"
	case ModeFull:
		return "FULL"
	case ModeDiff:
		return "DIFF"
	case ModeChecker:
		return "CHECKER"
	case ModeCheckerCompl:
		return "CHECKER_COMPL"
	default:
		return fmt.Sprintf("FrameMode(%d)", uint16(m))
	}
}

// MaxPayloadSize is the maximum compressed payload per message, bounded by
// the 2-byte size field.
const MaxPayloadSize = 65535

// Protocol errors.
var (
	ErrInvalidMode     = errors.New("protocol: invalid mode code")
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds maximum size")
	ErrBitmapSize      = errors.New("protocol: dirty bitmap size mismatch")
)

// Message is one host-to-peer frame message. Bitmap is set only for
// ModeDiff and must have the fixed size both ends derive from the agreed
// resolution. Payload is empty for ModeNone.
type Message struct {
	Mode    FrameMode
	Bitmap  []byte
	Payload []byte
}

// EncodedSize returns the exact number of bytes Encode will produce.
func (m *Message) EncodedSize() int {
	n := 2
	if m.Mode == ModeNone {
		return n
	}
	n += 2 + len(m.Payload)
	if m.Mode == ModeDiff {
		n += len(m.Bitmap)
	}
	return n
}

// validate checks the message against the wire format constraints.
// bitmapLen < 0 skips the bitmap length check (the send side trusts the
// caller's grid; the read side enforces the agreed size).
func (m *Message) validate(bitmapLen int) error {
	if !m.Mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, uint16(m.Mode))
	}
	if len(m.Payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(m.Payload))
	}
	if m.Mode == ModeDiff {
		if len(m.Bitmap) == 0 {
			return fmt.Errorf("%w: diff message carries no bitmap", ErrBitmapSize)
		}
		if bitmapLen >= 0 && len(m.Bitmap) != bitmapLen {
			return fmt.Errorf("%w: got %d bytes, want %d", ErrBitmapSize, len(m.Bitmap), bitmapLen)
		}
	}
	return nil
}

// Encode serializes the message to a fresh byte slice.
func (m *Message) Encode() ([]byte, error) {
	if err := m.validate(-1); err != nil {
		return nil, err
	}
	enc := NewEncoderWithCap(m.EncodedSize())
	enc.WriteUint16(uint16(m.Mode))
	if m.Mode != ModeNone {
		enc.WriteUint16(uint16(len(m.Payload)))
		if m.Mode == ModeDiff {
			enc.WriteBytes(m.Bitmap)
		}
		enc.WriteBytes(m.Payload)
	}
	return enc.Bytes(), nil
}

// AppendTo serializes the message into enc, reusing its buffer.
func (m *Message) AppendTo(enc *Encoder) error {
	if err := m.validate(-1); err != nil {
		return err
	}
	enc.WriteUint16(uint16(m.Mode))
	if m.Mode != ModeNone {
		enc.WriteUint16(uint16(len(m.Payload)))
		if m.Mode == ModeDiff {
			enc.WriteBytes(m.Bitmap)
		}
		enc.WriteBytes(m.Payload)
	}
	return nil
}

// WriteMessage encodes the message and writes it to w in one call.
func WriteMessage(w io.Writer, m *Message) error {
	buf, err := m.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadMessage reads one complete message from r. bitmapLen is the fixed
// dirty-bitmap size both ends derive from the agreed resolution; it is
// consumed only for ModeDiff. Malformed input is reported as an explicit
// error so the receive side can detect protocol desync instead of drifting.
func ReadMessage(r io.Reader, bitmapLen int) (*Message, error) {
	var head [2]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	mode := FrameMode(uint16(head[0]) | uint16(head[1])<<8)
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, uint16(mode))
	}

	msg := &Message{Mode: mode}
	if mode == ModeNone {
		return msg, nil
	}

	var sz [2]byte
	if _, err := io.ReadFull(r, sz[:]); err != nil {
		return nil, fmt.Errorf("protocol: reading payload size: %w", err)
	}
	size := int(uint16(sz[0]) | uint16(sz[1])<<8)

	if mode == ModeDiff {
		if bitmapLen <= 0 {
			return nil, fmt.Errorf("%w: reader configured with bitmap size %d", ErrBitmapSize, bitmapLen)
		}
		msg.Bitmap = make([]byte, bitmapLen)
		if _, err := io.ReadFull(r, msg.Bitmap); err != nil {
			return nil, fmt.Errorf("protocol: reading dirty bitmap: %w", err)
		}
	}

	msg.Payload = make([]byte, size)
	if _, err := io.ReadFull(r, msg.Payload); err != nil {
		return nil, fmt.Errorf("protocol: reading payload: %w", err)
	}
	return msg, nil
}
