package frame

import (
	"fmt"
)

const (
	// BlockSize is the side length in pixels of one comparison block.
	BlockSize = 8

	// BlockPixels is the number of pixels in one block.
	BlockPixels = BlockSize * BlockSize

	// BlockBytes is the packed byte size of one block.
	BlockBytes = BlockPixels * BytesPerPixel
)

// Grid is the non-overlapping 8x8 block partition of a frame. Block indices
// run row-major: index = by*Cols + bx.
type Grid struct {
	Width  int
	Height int
	Cols   int
	Rows   int
}

// NewGrid builds the block grid for a layout. Width and height must both be
// multiples of BlockSize.
func NewGrid(l Layout) (Grid, error) {
	if !l.Valid() {
		return Grid{}, fmt.Errorf("frame: invalid layout %s", l)
	}
	if l.Width%BlockSize != 0 || l.Height%BlockSize != 0 {
		return Grid{}, fmt.Errorf("frame: layout %s is not a multiple of %dx%d blocks",
			l, BlockSize, BlockSize)
	}
	return Grid{
		Width:  l.Width,
		Height: l.Height,
		Cols:   l.Width / BlockSize,
		Rows:   l.Height / BlockSize,
	}, nil
}

// Blocks returns the total block count.
func (g Grid) Blocks() int {
	return g.Cols * g.Rows
}

// BitmapSize returns the dirty-bitmap size in bytes: one bit per block,
// rounded up to whole bytes.
func (g Grid) BitmapSize() int {
	return (g.Blocks() + 7) / 8
}

// DiffLimit is the dirty-count threshold above which block diffing stops
// paying off and the selector switches to checkerboard interlace.
func (g Grid) DiffLimit() int {
	return g.Blocks() / 3
}

// BlockOrigin returns the top-left pixel coordinates of block i.
func (g Grid) BlockOrigin(i int) (x, y int) {
	return (i % g.Cols) * BlockSize, (i / g.Cols) * BlockSize
}

// rowBytes is the byte width of one raster row.
func (g Grid) rowBytes() int {
	return g.Width * BytesPerPixel
}

// packBlock copies block i out of the raster into dst as BlockBytes
// contiguous bytes, row by row.
func (g Grid) packBlock(raster []byte, i int, dst []byte) {
	x, y := g.BlockOrigin(i)
	stride := g.rowBytes()
	src := y*stride + x*BytesPerPixel
	for row := 0; row < BlockSize; row++ {
		copy(dst[row*BlockSize*BytesPerPixel:], raster[src:src+BlockSize*BytesPerPixel])
		src += stride
	}
}

// unpackBlock copies BlockBytes contiguous bytes from src into block i of the
// raster.
func (g Grid) unpackBlock(raster []byte, i int, src []byte) {
	x, y := g.BlockOrigin(i)
	stride := g.rowBytes()
	dst := y*stride + x*BytesPerPixel
	for row := 0; row < BlockSize; row++ {
		copy(raster[dst:dst+BlockSize*BytesPerPixel], src[row*BlockSize*BytesPerPixel:(row+1)*BlockSize*BytesPerPixel])
		dst += stride
	}
}

// copyBlockBetween copies block i from one raster to another of the same
// geometry, preserving the strided layout.
func (g Grid) copyBlockBetween(dst, src []byte, i int) {
	x, y := g.BlockOrigin(i)
	stride := g.rowBytes()
	off := y*stride + x*BytesPerPixel
	for row := 0; row < BlockSize; row++ {
		copy(dst[off:off+BlockSize*BytesPerPixel], src[off:off+BlockSize*BytesPerPixel])
		off += stride
	}
}

// UnpackBlock writes one packed block into block i of dst. It is the receive
// side of the differencer's packing and is exported for the reassembly path.
func (g Grid) UnpackBlock(dst *Buffer, i int, packed []byte) error {
	if dst.Width != g.Width || dst.Height != g.Height {
		return ErrIncompatible
	}
	if i < 0 || i >= g.Blocks() {
		return fmt.Errorf("frame: block index %d out of range (grid has %d)", i, g.Blocks())
	}
	if len(packed) < BlockBytes {
		return fmt.Errorf("frame: packed block has %d bytes, want %d", len(packed), BlockBytes)
	}
	g.unpackBlock(dst.Pix, i, packed)
	return nil
}
