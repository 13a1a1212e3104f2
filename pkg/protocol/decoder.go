package protocol

import (
	"errors"
	"io"
)

// DefaultMaxAllocation caps single allocations driven by wire length fields.
// Frame payloads are bounded by MaxPayloadSize already; this guards the
// larger length fields used by the recording container.
const DefaultMaxAllocation = 4 * 1024 * 1024

// ErrAllocationTooLarge is returned when a length field demands an
// allocation above DefaultMaxAllocation.
var ErrAllocationTooLarge = errors.New("protocol: allocation size exceeds limit")

// Decoder is a binary decoder that reads little-endian data from a byte
// buffer.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder creates a new decoder from the given byte slice.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// EOF returns true if all bytes have been read.
func (d *Decoder) EOF() bool {
	return d.pos >= len(d.buf)
}

// ReadByte reads a single byte.
func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes and returns them.
// The returned slice references the decoder's buffer; do not modify.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// ReadUint16 reads a uint16 in little-endian byte order.
func (d *Decoder) ReadUint16() (uint16, error) {
	if d.pos+2 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := uint16(d.buf[d.pos]) | uint16(d.buf[d.pos+1])<<8
	d.pos += 2
	return v, nil
}

// ReadUint32 reads a uint32 in little-endian byte order.
func (d *Decoder) ReadUint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := uint32(d.buf[d.pos]) | uint32(d.buf[d.pos+1])<<8 |
		uint32(d.buf[d.pos+2])<<16 | uint32(d.buf[d.pos+3])<<24
	d.pos += 4
	return v, nil
}

// ReadLenBytes32 reads a 4-byte length prefix followed by that many bytes,
// returning a copy that is safe to retain. The length is validated against
// both the remaining buffer and DefaultMaxAllocation.
func (d *Decoder) ReadLenBytes32() ([]byte, error) {
	length, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	if length > DefaultMaxAllocation {
		return nil, ErrAllocationTooLarge
	}
	if int(length) > d.Remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	b := make([]byte, length)
	copy(b, d.buf[d.pos:d.pos+int(length)])
	d.pos += int(length)
	return b, nil
}
