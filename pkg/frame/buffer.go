// Package frame provides the pixel-level data model for the streaming core:
// raw RGB rasters, the fixed 8x8 block grid laid over them, the dirty-block
// bitmap, the block differencer, and the checkerboard interlace sampler.
//
// Everything in this package is geometry and byte movement. Compression and
// transport live elsewhere.
package frame

import (
	"errors"
	"fmt"
)

// BytesPerPixel is the size of one interleaved RGB pixel. Capture buffers
// carry no row padding.
const BytesPerPixel = 3

var (
	// ErrSizeMismatch is returned when a raw pixel slice does not match the
	// layout it is paired with.
	ErrSizeMismatch = errors.New("frame: pixel data size mismatch")

	// ErrIncompatible is returned when two buffers of different dimensions
	// are combined.
	ErrIncompatible = errors.New("frame: incompatible buffer dimensions")
)

// Layout describes the fixed capture resolution of a streaming session.
// Width and height are in pixels; the raster is width*height*3 bytes.
type Layout struct {
	Width  int
	Height int
}

// DefaultLayout is the capture resolution used by the remote-play path:
// a 240x320 portrait raster chosen by the caller independent of the native
// render resolution.
var DefaultLayout = Layout{Width: 240, Height: 320}

// PixelBytes returns the raster size in bytes for this layout.
func (l Layout) PixelBytes() int {
	return l.Width * l.Height * BytesPerPixel
}

// Valid reports whether the layout has positive dimensions.
func (l Layout) Valid() bool {
	return l.Width > 0 && l.Height > 0
}

func (l Layout) String() string {
	return fmt.Sprintf("%dx%d", l.Width, l.Height)
}

// Buffer is a flat interleaved RGB raster. Pix holds exactly
// Width*Height*BytesPerPixel bytes in row-major order.
type Buffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewBuffer allocates a zeroed buffer for the given layout.
func NewBuffer(l Layout) *Buffer {
	return &Buffer{
		Width:  l.Width,
		Height: l.Height,
		Pix:    make([]byte, l.PixelBytes()),
	}
}

// Wrap creates a buffer view over caller-owned pixel data without copying.
// The caller keeps ownership of pix and must keep it alive and stable for as
// long as the view is read.
func Wrap(l Layout, pix []byte) (*Buffer, error) {
	if len(pix) != l.PixelBytes() {
		return nil, fmt.Errorf("%w: got %d bytes, layout %s needs %d",
			ErrSizeMismatch, len(pix), l, l.PixelBytes())
	}
	return &Buffer{Width: l.Width, Height: l.Height, Pix: pix}, nil
}

// Layout returns the buffer's dimensions.
func (b *Buffer) Layout() Layout {
	return Layout{Width: b.Width, Height: b.Height}
}

// Compatible reports whether o has the same dimensions as b. Two buffers must
// be compatible before they can be diffed or merged.
func (b *Buffer) Compatible(o *Buffer) bool {
	return o != nil && b.Width == o.Width && b.Height == o.Height
}

// Clone returns an independent copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	c := &Buffer{Width: b.Width, Height: b.Height, Pix: make([]byte, len(b.Pix))}
	copy(c.Pix, b.Pix)
	return c
}

// CopyFrom overwrites the buffer's pixels with pix, which must match the
// buffer's size exactly.
func (b *Buffer) CopyFrom(pix []byte) error {
	if len(pix) != len(b.Pix) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(pix), len(b.Pix))
	}
	copy(b.Pix, pix)
	return nil
}
