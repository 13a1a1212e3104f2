package frame

import "fmt"

// Checkerboard interlace splits one frame into two complementary half-width
// sub-frames. Phase p samples pixel (x, y) iff (x + y + p) is even, so the
// sampling alternates per pixel and per row. Two consecutive phases cover
// every pixel exactly once.

// InterlacedBytes returns the byte size of one interlaced half-frame for the
// layout: half width, full height.
func InterlacedBytes(l Layout) int {
	return (l.Width / 2) * l.Height * BytesPerPixel
}

// ExtractInterlaced samples src at the given phase (0 or 1) into dst, which
// must hold InterlacedBytes(src.Layout()). The result reads as a half-width,
// full-height raster.
func ExtractInterlaced(src *Buffer, phase int, dst []byte) error {
	if src.Width%2 != 0 {
		return fmt.Errorf("frame: interlace needs an even width, have %d", src.Width)
	}
	if phase != 0 && phase != 1 {
		return fmt.Errorf("frame: interlace phase must be 0 or 1, have %d", phase)
	}
	need := InterlacedBytes(src.Layout())
	if len(dst) < need {
		return fmt.Errorf("%w: interlace buffer has %d bytes, want %d", ErrSizeMismatch, len(dst), need)
	}

	stride := src.Width * BytesPerPixel
	out := 0
	for y := 0; y < src.Height; y++ {
		start := (phase + y) & 1
		p := y*stride + start*BytesPerPixel
		for x := start; x < src.Width; x += 2 {
			dst[out] = src.Pix[p]
			dst[out+1] = src.Pix[p+1]
			dst[out+2] = src.Pix[p+2]
			out += BytesPerPixel
			p += 2 * BytesPerPixel
		}
	}
	return nil
}

// MergeInterlaced scatters a half-width raster sampled at the given phase
// back onto the full-resolution canvas, leaving the complementary pixels
// untouched. It is the receive-side inverse of ExtractInterlaced.
func MergeInterlaced(canvas *Buffer, phase int, half []byte) error {
	if canvas.Width%2 != 0 {
		return fmt.Errorf("frame: interlace needs an even width, have %d", canvas.Width)
	}
	if phase != 0 && phase != 1 {
		return fmt.Errorf("frame: interlace phase must be 0 or 1, have %d", phase)
	}
	need := InterlacedBytes(canvas.Layout())
	if len(half) != need {
		return fmt.Errorf("%w: interlaced payload has %d bytes, want %d", ErrSizeMismatch, len(half), need)
	}

	stride := canvas.Width * BytesPerPixel
	in := 0
	for y := 0; y < canvas.Height; y++ {
		start := (phase + y) & 1
		p := y*stride + start*BytesPerPixel
		for x := start; x < canvas.Width; x += 2 {
			canvas.Pix[p] = half[in]
			canvas.Pix[p+1] = half[in+1]
			canvas.Pix[p+2] = half[in+2]
			in += BytesPerPixel
			p += 2 * BytesPerPixel
		}
	}
	return nil
}
