// Package encoder is the lossy compression boundary of the streaming core.
//
// It compresses three logical image shapes produced by the frame pump: the
// full frame, the packed dirty blocks of a diff (treated as one synthetic
// image so JPEG entropy coding runs across all blocks at once), and a
// half-width checkerboard-interlaced sub-frame. The JPEG implementation uses
// libjpeg through github.com/pixiv/go-libjpeg, whose rgb.Image type maps
// directly onto the 3-byte-per-pixel capture rasters without conversion.
package encoder

import (
	"errors"

	"github.com/Andreas0Cool/citra3ds/pkg/frame"
)

// DefaultQuality is the fixed lossy quality used by the remote-play path,
// on the usual 1-100 scale.
const DefaultQuality = 70

var (
	// ErrEmptyInput is returned when there is nothing to compress. Callers
	// must guarantee at least one block before invoking the diff path.
	ErrEmptyInput = errors.New("encoder: empty input")

	// ErrBadBlockData is returned when a packed block buffer does not match
	// the declared block count.
	ErrBadBlockData = errors.New("encoder: packed data does not match block count")
)

// FrameEncoder compresses raster data for transmission. Implementations are
// not safe for concurrent use; the streaming session drives one encoder from
// one goroutine.
//
// The returned slices are reused by subsequent calls. Consumers must write
// or copy them before encoding again.
type FrameEncoder interface {
	// EncodeFrame compresses a complete frame at its native size.
	EncodeFrame(src *frame.Buffer) ([]byte, error)

	// EncodeBlocks compresses n same-size blocks packed contiguously, as
	// produced by the differencer. It does not care how blocks map back
	// onto the screen; that is the dirty bitmap's job.
	EncodeBlocks(packed []byte, n int) ([]byte, error)

	// EncodeInterlaced samples src at the given checkerboard phase and
	// compresses the resulting half-width sub-frame.
	EncodeInterlaced(src *frame.Buffer, phase int) ([]byte, error)
}
