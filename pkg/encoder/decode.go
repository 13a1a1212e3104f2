package encoder

import (
	"bytes"
	"fmt"

	"github.com/pixiv/go-libjpeg/jpeg"

	"github.com/Andreas0Cool/citra3ds/pkg/frame"
)

// DecodeRGB decompresses a JPEG payload into a fresh RGB frame buffer. It is
// the receive-side counterpart of the encoder and reports malformed payloads
// as explicit errors.
func DecodeRGB(data []byte) (*frame.Buffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	img, err := jpeg.DecodeIntoRGB(bytes.NewReader(data), &jpeg.DecoderOptions{})
	if err != nil {
		return nil, fmt.Errorf("encoder: decoding payload: %w", err)
	}

	w := img.Rect.Dx()
	h := img.Rect.Dy()
	buf := frame.NewBuffer(frame.Layout{Width: w, Height: h})

	rowBytes := w * frame.BytesPerPixel
	if img.Stride == rowBytes {
		copy(buf.Pix, img.Pix[:h*rowBytes])
		return buf, nil
	}
	for y := 0; y < h; y++ {
		copy(buf.Pix[y*rowBytes:(y+1)*rowBytes], img.Pix[y*img.Stride:y*img.Stride+rowBytes])
	}
	return buf, nil
}

// DecodeBlocks decompresses a diff payload back into packed 8x8 blocks,
// returning the packed bytes and the block count. The payload must decode to
// a raster exactly one block wide whose height is a whole number of blocks.
func DecodeBlocks(data []byte) ([]byte, int, error) {
	buf, err := DecodeRGB(data)
	if err != nil {
		return nil, 0, err
	}
	if buf.Width != frame.BlockSize || buf.Height%frame.BlockSize != 0 {
		return nil, 0, fmt.Errorf("%w: decoded raster is %dx%d", ErrBadBlockData, buf.Width, buf.Height)
	}
	return buf.Pix, buf.Height / frame.BlockSize, nil
}
