package frame

import "math/bits"

// Bitmap is a dirty-block bitmap: one bit per grid block, row-major in block
// order, least-significant bit first within each byte. It is overwritten on
// every diff and never accumulated across frames.
type Bitmap []byte

// NewBitmap allocates a cleared bitmap sized for the grid.
func NewBitmap(g Grid) Bitmap {
	return make(Bitmap, g.BitmapSize())
}

// Reset clears every bit.
func (m Bitmap) Reset() {
	for i := range m {
		m[i] = 0
	}
}

// Set marks block i dirty.
func (m Bitmap) Set(i int) {
	m[i>>3] |= 1 << (i & 7)
}

// Get reports whether block i is marked dirty.
func (m Bitmap) Get(i int) bool {
	return m[i>>3]&(1<<(i&7)) != 0
}

// Count returns the number of dirty blocks.
func (m Bitmap) Count() int {
	n := 0
	for _, b := range m {
		n += bits.OnesCount8(b)
	}
	return n
}

// Clone returns an independent copy.
func (m Bitmap) Clone() Bitmap {
	c := make(Bitmap, len(m))
	copy(c, m)
	return c
}
