package encoder

import (
	"bytes"
	"fmt"
	"image"

	"github.com/pixiv/go-libjpeg/jpeg"
	"github.com/pixiv/go-libjpeg/rgb"

	"github.com/Andreas0Cool/citra3ds/pkg/frame"
)

// JPEG is the libjpeg-backed FrameEncoder. The output buffer and the
// interlace scratch buffer are reused across calls, so encoding is
// allocation-free at steady state.
type JPEG struct {
	opts    jpeg.EncoderOptions
	out     bytes.Buffer
	scratch []byte
}

// NewJPEG returns a JPEG encoder at the given quality (1-100). Out-of-range
// values are clamped.
func NewJPEG(quality int) *JPEG {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return &JPEG{
		opts: jpeg.EncoderOptions{Quality: quality},
	}
}

// Quality returns the configured quality setting.
func (j *JPEG) Quality() int {
	return j.opts.Quality
}

// EncodeFrame compresses the full frame.
func (j *JPEG) EncodeFrame(src *frame.Buffer) ([]byte, error) {
	if src == nil || len(src.Pix) == 0 {
		return nil, ErrEmptyInput
	}
	return j.encodeRaster(src.Pix, src.Width, src.Height)
}

// EncodeBlocks compresses n packed 8x8 blocks. The block sequence is laid
// out as a single narrow raster, one block under the next, so the codec
// compresses the whole run in one pass.
func (j *JPEG) EncodeBlocks(packed []byte, n int) ([]byte, error) {
	if n <= 0 {
		return nil, ErrEmptyInput
	}
	if len(packed) != n*frame.BlockBytes {
		return nil, fmt.Errorf("%w: %d bytes for %d blocks", ErrBadBlockData, len(packed), n)
	}
	return j.encodeRaster(packed, frame.BlockSize, frame.BlockSize*n)
}

// EncodeInterlaced samples src at the given phase and compresses the
// half-width result.
func (j *JPEG) EncodeInterlaced(src *frame.Buffer, phase int) ([]byte, error) {
	if src == nil || len(src.Pix) == 0 {
		return nil, ErrEmptyInput
	}
	need := frame.InterlacedBytes(src.Layout())
	if cap(j.scratch) < need {
		j.scratch = make([]byte, need)
	}
	j.scratch = j.scratch[:need]
	if err := frame.ExtractInterlaced(src, phase, j.scratch); err != nil {
		return nil, err
	}
	return j.encodeRaster(j.scratch, src.Width/2, src.Height)
}

func (j *JPEG) encodeRaster(pix []byte, w, h int) ([]byte, error) {
	img := &rgb.Image{
		Pix:    pix,
		Stride: w * frame.BytesPerPixel,
		Rect:   image.Rect(0, 0, w, h),
	}
	j.out.Reset()
	if err := jpeg.Encode(&j.out, img, &j.opts); err != nil {
		return nil, fmt.Errorf("encoder: compressing %dx%d raster: %w", w, h, err)
	}
	return j.out.Bytes(), nil
}
