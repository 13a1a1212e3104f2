package frame

// DirtyThreshold is the perceptual change threshold for one block: the sum of
// absolute per-channel differences must exceed it before the block counts as
// dirty. It equals an average per-pixel-channel difference of 3 across the
// 64 pixels of a block.
const DirtyThreshold = BlockPixels * BytesPerPixel

// Differ compares successive frames block by block. All scratch space is
// allocated once at construction; Diff itself never allocates.
type Differ struct {
	grid   Grid
	bitmap Bitmap
	packed []byte
}

// NewDiffer returns a differ for the given grid. The packed scratch buffer is
// sized for the whole frame so packing can never overflow no matter how many
// blocks turn dirty.
func NewDiffer(g Grid) *Differ {
	return &Differ{
		grid:   g,
		bitmap: NewBitmap(g),
		packed: make([]byte, g.Blocks()*BlockBytes),
	}
}

// Grid returns the grid the differ operates on.
func (d *Differ) Grid() Grid {
	return d.grid
}

// Diff compares current against previous and returns the dirty bitmap, the
// dirty blocks packed contiguously in bitmap order, and the dirty count.
//
// Dirty blocks are copied from current into previous in place, so previous
// becomes the reference for the next call. Clean blocks are left untouched.
//
// IMPORTANT: the returned bitmap and packed slice are reused by the next
// Diff call. Callers must consume them before diffing again.
func (d *Differ) Diff(previous, current *Buffer) (Bitmap, []byte, int, error) {
	if previous.Width != d.grid.Width || previous.Height != d.grid.Height {
		return nil, nil, 0, ErrIncompatible
	}
	if !previous.Compatible(current) {
		return nil, nil, 0, ErrIncompatible
	}

	d.bitmap.Reset()
	dirty := 0
	packedOff := 0

	blocks := d.grid.Blocks()
	for i := 0; i < blocks; i++ {
		if !d.blockChanged(previous.Pix, current.Pix, i) {
			continue
		}
		d.bitmap.Set(i)
		d.grid.copyBlockBetween(previous.Pix, current.Pix, i)
		d.grid.packBlock(current.Pix, i, d.packed[packedOff:])
		packedOff += BlockBytes
		dirty++
	}

	return d.bitmap, d.packed[:packedOff], dirty, nil
}

// blockChanged sums absolute per-channel differences for block i and exits as
// soon as the running sum exceeds DirtyThreshold.
func (d *Differ) blockChanged(prev, cur []byte, i int) bool {
	x, y := d.grid.BlockOrigin(i)
	stride := d.grid.rowBytes()
	off := y*stride + x*BytesPerPixel

	sum := 0
	for row := 0; row < BlockSize; row++ {
		p := off
		for px := 0; px < BlockSize; px++ {
			sum += absDiff(prev[p], cur[p]) +
				absDiff(prev[p+1], cur[p+1]) +
				absDiff(prev[p+2], cur[p+2])
			if sum > DirtyThreshold {
				return true
			}
			p += BytesPerPixel
		}
		off += stride
	}
	return false
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
