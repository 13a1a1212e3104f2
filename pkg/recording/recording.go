// Package recording persists streamed sessions and plays them back.
//
// A recording is a C3DR container: a small uncompressed header naming the
// frame layout, followed by one zstd-compressed stream of timestamped wire
// messages:
//
//	offset  size  field
//	0       4     magic "C3DR"
//	4       1     container version (1)
//	5       2     frame width, little endian
//	7       2     frame height, little endian
//	9       ...   zstd stream of records
//
// Each record inside the compressed stream is:
//
//	[u32 offsetMillis] [u16 mode] [u32 bodyLen] [body]
//
// where offsetMillis is the message's distance from the start of the
// recording and body is the wire message with the leading mode code
// stripped. Messages are stored compressed but otherwise verbatim, so a
// playback is byte-identical to the original transmission.
//
// Recordings live in a Store: the filesystem store for local work, the S3
// store for shared archives. Replay re-sends a recording over a transport
// with the original timing.
package recording

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Andreas0Cool/citra3ds/pkg/frame"
	"github.com/Andreas0Cool/citra3ds/pkg/protocol"
)

// Version is the container version this package writes.
const Version = 1

var magic = [4]byte{'C', '3', 'D', 'R'}

const headerSize = 9

// Container errors.
var (
	// ErrBadMagic is returned when a reader is given data that is not a
	// C3DR container.
	ErrBadMagic = errors.New("recording: not a C3DR container")

	// ErrBadVersion is returned for container versions this package does
	// not understand.
	ErrBadVersion = errors.New("recording: unsupported container version")

	// ErrCorrupt is returned when a record inside the container cannot be
	// read back.
	ErrCorrupt = errors.New("recording: corrupt record")

	// ErrWriterClosed is returned by WriteMessage after Close.
	ErrWriterClosed = errors.New("recording: writer closed")
)

// Record is one timestamped message read back from a recording.
type Record struct {
	// Offset is the message's distance from the start of the recording.
	Offset time.Duration

	// Message is the decoded wire message.
	Message *protocol.Message
}

// Writer appends timestamped wire messages to a C3DR container.
type Writer struct {
	layout frame.Layout
	zw     *zstd.Encoder
	frames int
	closed bool
}

// NewWriter writes the container header to w and returns a Writer that
// records messages for the given frame layout. Close flushes the compressed
// stream; it does not close w.
func NewWriter(w io.Writer, l frame.Layout) (*Writer, error) {
	if _, err := frame.NewGrid(l); err != nil {
		return nil, err
	}
	if l.Width > math.MaxUint16 || l.Height > math.MaxUint16 {
		return nil, fmt.Errorf("recording: layout %v does not fit the header", l)
	}

	var head [headerSize]byte
	copy(head[:4], magic[:])
	head[4] = Version
	binary.LittleEndian.PutUint16(head[5:7], uint16(l.Width))
	binary.LittleEndian.PutUint16(head[7:9], uint16(l.Height))
	if _, err := w.Write(head[:]); err != nil {
		return nil, fmt.Errorf("recording: writing header: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("recording: zstd writer: %w", err)
	}
	return &Writer{layout: l, zw: zw}, nil
}

// WriteMessage appends one wire message at the given offset from the start
// of the recording. Offsets do not have to be strictly increasing; playback
// honors whatever pacing was recorded.
func (w *Writer) WriteMessage(offset time.Duration, msg *protocol.Message) error {
	if w.closed {
		return ErrWriterClosed
	}
	if offset < 0 {
		return fmt.Errorf("recording: negative offset %v", offset)
	}
	millis := offset.Milliseconds()
	if millis > math.MaxUint32 {
		return fmt.Errorf("recording: offset %v does not fit the record header", offset)
	}

	wire, err := msg.Encode()
	if err != nil {
		return err
	}
	body := wire[2:]

	var head [10]byte
	binary.LittleEndian.PutUint32(head[0:4], uint32(millis))
	binary.LittleEndian.PutUint16(head[4:6], uint16(msg.Mode))
	binary.LittleEndian.PutUint32(head[6:10], uint32(len(body)))
	if _, err := w.zw.Write(head[:]); err != nil {
		return fmt.Errorf("recording: writing record: %w", err)
	}
	if _, err := w.zw.Write(body); err != nil {
		return fmt.Errorf("recording: writing record: %w", err)
	}
	w.frames++
	return nil
}

// Frames returns the number of messages written so far.
func (w *Writer) Frames() int {
	return w.frames
}

// Layout returns the frame layout the recording was opened with.
func (w *Writer) Layout() frame.Layout {
	return w.layout
}

// Close flushes the compressed stream. The underlying writer stays open.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("recording: closing zstd stream: %w", err)
	}
	return nil
}

// Reader reads timestamped wire messages back from a C3DR container.
type Reader struct {
	layout frame.Layout
	grid   frame.Grid
	zr     *zstd.Decoder
}

// NewReader validates the container header and prepares the compressed
// stream for reading. Closing the underlying reader remains the caller's
// job.
func NewReader(r io.Reader) (*Reader, error) {
	var head [headerSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("recording: reading header: %w", err)
	}
	if [4]byte(head[:4]) != magic {
		return nil, ErrBadMagic
	}
	if head[4] != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, head[4])
	}

	l := frame.Layout{
		Width:  int(binary.LittleEndian.Uint16(head[5:7])),
		Height: int(binary.LittleEndian.Uint16(head[7:9])),
	}
	g, err := frame.NewGrid(l)
	if err != nil {
		return nil, err
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("recording: zstd reader: %w", err)
	}
	return &Reader{layout: l, grid: g, zr: zr}, nil
}

// Layout returns the frame layout named in the container header.
func (r *Reader) Layout() frame.Layout {
	return r.layout
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (*Record, error) {
	var head [10]byte
	if _, err := io.ReadFull(r.zr, head[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: record header: %v", ErrCorrupt, err)
	}

	millis := binary.LittleEndian.Uint32(head[0:4])
	bodyLen := int(binary.LittleEndian.Uint32(head[6:10]))
	if limit := 2 + r.grid.BitmapSize() + protocol.MaxPayloadSize; bodyLen > limit {
		return nil, fmt.Errorf("%w: body of %d bytes exceeds %d", ErrCorrupt, bodyLen, limit)
	}

	wire := make([]byte, 2+bodyLen)
	copy(wire[:2], head[4:6])
	if _, err := io.ReadFull(r.zr, wire[2:]); err != nil {
		return nil, fmt.Errorf("%w: record body: %v", ErrCorrupt, err)
	}

	msg, err := protocol.ReadMessage(bytes.NewReader(wire), r.grid.BitmapSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &Record{
		Offset:  time.Duration(millis) * time.Millisecond,
		Message: msg,
	}, nil
}

// Close releases the decompressor. The underlying reader stays open.
func (r *Reader) Close() {
	r.zr.Close()
}
