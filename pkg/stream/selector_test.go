package stream

import (
	"bytes"
	"testing"

	"github.com/Andreas0Cool/citra3ds/pkg/frame"
	"github.com/Andreas0Cool/citra3ds/pkg/protocol"
)

func mustSelector(t *testing.T, l frame.Layout) *selector {
	t.Helper()
	s, err := newSelector(l)
	if err != nil {
		t.Fatalf("newSelector(%v) error: %v", l, err)
	}
	return s
}

func solidFrame(l frame.Layout, r, g, b byte) *frame.Buffer {
	buf := frame.NewBuffer(l)
	for i := 0; i < len(buf.Pix); i += 3 {
		buf.Pix[i] = r
		buf.Pix[i+1] = g
		buf.Pix[i+2] = b
	}
	return buf
}

// paintBlocks fills the first n blocks of buf with a solid gray value.
func paintBlocks(t *testing.T, buf *frame.Buffer, n int, v byte) {
	t.Helper()
	g, err := frame.NewGrid(buf.Layout())
	if err != nil {
		t.Fatalf("NewGrid() error: %v", err)
	}
	rowBytes := buf.Width * frame.BytesPerPixel
	for i := 0; i < n; i++ {
		x, y := g.BlockOrigin(i)
		for dy := 0; dy < frame.BlockSize; dy++ {
			off := (y+dy)*rowBytes + x*frame.BytesPerPixel
			for k := 0; k < frame.BlockSize*frame.BytesPerPixel; k++ {
				buf.Pix[off+k] = v
			}
		}
	}
}

func selectMode(t *testing.T, s *selector, buf *frame.Buffer) decision {
	t.Helper()
	d, err := s.next(buf)
	if err != nil {
		t.Fatalf("next() error: %v", err)
	}
	return d
}

func TestSelectorFirstFrameIsFull(t *testing.T) {
	s := mustSelector(t, frame.DefaultLayout)
	cur := solidFrame(frame.DefaultLayout, 10, 20, 30)

	d := selectMode(t, s, cur)
	if d.mode != protocol.ModeFull {
		t.Fatalf("first selection = %v, want %v", d.mode, protocol.ModeFull)
	}
	if s.forceCount != 0 {
		t.Errorf("forceCount after first FULL = %d, want 0", s.forceCount)
	}
	if !bytes.Equal(s.previous.Pix, cur.Pix) {
		t.Error("reference buffer is not a copy of the first frame")
	}
}

func TestSelectorIdenticalFramesYieldNone(t *testing.T) {
	s := mustSelector(t, frame.DefaultLayout)
	cur := solidFrame(frame.DefaultLayout, 10, 20, 30)

	selectMode(t, s, cur)
	for i := 1; i <= 50; i++ {
		d := selectMode(t, s, cur)
		if d.mode != protocol.ModeNone {
			t.Fatalf("selection %d = %v, want %v", i, d.mode, protocol.ModeNone)
		}
		if s.forceCount != i {
			t.Fatalf("forceCount after %d no-change frames = %d, want %d", i, s.forceCount, i)
		}
		if d.dirty != 0 || !d.scanned {
			t.Fatalf("selection %d: dirty = %d scanned = %v, want 0 and true", i, d.dirty, d.scanned)
		}
	}
}

func TestSelectorModerateChangeYieldsDiff(t *testing.T) {
	s := mustSelector(t, frame.DefaultLayout)
	base := solidFrame(frame.DefaultLayout, 0, 0, 0)
	selectMode(t, s, base)

	cur := base.Clone()
	paintBlocks(t, cur, 1, 0xFF)

	d := selectMode(t, s, cur)
	if d.mode != protocol.ModeDiff {
		t.Fatalf("selection = %v, want %v", d.mode, protocol.ModeDiff)
	}
	if d.dirty != 1 {
		t.Fatalf("dirty = %d, want 1", d.dirty)
	}
	if got := d.bitmap.Count(); got != 1 {
		t.Fatalf("bitmap.Count() = %d, want 1", got)
	}
	if !d.bitmap.Get(0) {
		t.Error("bitmap bit 0 not set for the painted block")
	}
	if len(d.packed) != frame.BlockBytes {
		t.Fatalf("len(packed) = %d, want %d", len(d.packed), frame.BlockBytes)
	}
	if s.forceCount != costDiff {
		t.Errorf("forceCount after DIFF = %d, want %d", s.forceCount, costDiff)
	}

	// The scan synced the reference, so the same frame is now a no-op.
	if d := selectMode(t, s, cur); d.mode != protocol.ModeNone {
		t.Fatalf("repeat selection = %v, want %v", d.mode, protocol.ModeNone)
	}
}

func TestSelectorHeavyChangeYieldsCheckerNeverDiff(t *testing.T) {
	s := mustSelector(t, frame.DefaultLayout)
	selectMode(t, s, solidFrame(frame.DefaultLayout, 0, 0, 0))

	d := selectMode(t, s, solidFrame(frame.DefaultLayout, 255, 255, 255))
	if d.mode != protocol.ModeChecker {
		t.Fatalf("selection = %v, want %v", d.mode, protocol.ModeChecker)
	}
	if want := s.differ.Grid().Blocks(); d.dirty != want {
		t.Fatalf("dirty = %d, want every block (%d)", d.dirty, want)
	}
	if d.phase != 0 {
		t.Fatalf("phase = %d, want 0", d.phase)
	}
}

func TestSelectorCheckerThresholdBoundary(t *testing.T) {
	layout := frame.DefaultLayout
	g, err := frame.NewGrid(layout)
	if err != nil {
		t.Fatalf("NewGrid() error: %v", err)
	}
	limit := g.DiffLimit()

	tests := []struct {
		name   string
		blocks int
		want   protocol.FrameMode
	}{
		{"exactly at the limit stays diff", limit, protocol.ModeDiff},
		{"one past the limit flips to checker", limit + 1, protocol.ModeChecker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustSelector(t, layout)
			selectMode(t, s, solidFrame(layout, 0, 0, 0))

			cur := solidFrame(layout, 0, 0, 0)
			paintBlocks(t, cur, tt.blocks, 0xFF)

			d := selectMode(t, s, cur)
			if d.mode != tt.want {
				t.Fatalf("selection with %d dirty blocks = %v, want %v", tt.blocks, d.mode, tt.want)
			}
			if d.dirty != tt.blocks {
				t.Fatalf("dirty = %d, want %d", d.dirty, tt.blocks)
			}
		})
	}
}

func TestSelectorCheckerPairsStrictly(t *testing.T) {
	s := mustSelector(t, frame.DefaultLayout)
	selectMode(t, s, solidFrame(frame.DefaultLayout, 0, 0, 0))

	heavy := solidFrame(frame.DefaultLayout, 255, 255, 255)
	first := selectMode(t, s, heavy)
	if first.mode != protocol.ModeChecker || first.phase != 0 {
		t.Fatalf("first half = %v phase %d, want %v phase 0", first.mode, first.phase, protocol.ModeChecker)
	}

	// The complement follows unconditionally, even for an unchanged frame.
	second := selectMode(t, s, heavy)
	if second.mode != protocol.ModeCheckerCompl || second.phase != 1 {
		t.Fatalf("second half = %v phase %d, want %v phase 1", second.mode, second.phase, protocol.ModeCheckerCompl)
	}
	if second.scanned {
		t.Error("complement half ran the difference scan")
	}

	if s.forceCount != 2*costChecker {
		t.Errorf("forceCount after a checker pair = %d, want %d", s.forceCount, 2*costChecker)
	}
	if s.phase != 0 {
		t.Errorf("phase after a full pair = %d, want 0", s.phase)
	}
}

func TestSelectorForcedRefreshCadence(t *testing.T) {
	s := mustSelector(t, frame.DefaultLayout)
	cur := solidFrame(frame.DefaultLayout, 10, 20, 30)

	if d := selectMode(t, s, cur); d.mode != protocol.ModeFull {
		t.Fatalf("selection 1 = %v, want %v", d.mode, protocol.ModeFull)
	}

	// The counter reaches forceRefreshLimit+1 after 101 no-change frames,
	// so the 103rd call is the next forced refresh.
	for i := 2; i <= 102; i++ {
		if d := selectMode(t, s, cur); d.mode != protocol.ModeNone {
			t.Fatalf("selection %d = %v, want %v", i, d.mode, protocol.ModeNone)
		}
	}
	if d := selectMode(t, s, cur); d.mode != protocol.ModeFull {
		t.Fatalf("selection 103 = %v, want forced %v", d.mode, protocol.ModeFull)
	}
	if s.forceCount != 0 {
		t.Errorf("forceCount after forced FULL = %d, want 0", s.forceCount)
	}
}

func TestSelectorForcedFullLeavesReferenceAlone(t *testing.T) {
	s := mustSelector(t, frame.DefaultLayout)
	selectMode(t, s, solidFrame(frame.DefaultLayout, 0, 0, 0))

	// Force a refresh while handing in a completely different frame. The
	// forced path skips the scan, so the reference must stay black.
	white := solidFrame(frame.DefaultLayout, 255, 255, 255)
	s.forceCount = forceRefreshLimit + 1
	if d := selectMode(t, s, white); d.mode != protocol.ModeFull {
		t.Fatalf("forced selection = %v, want %v", d.mode, protocol.ModeFull)
	}

	// Against the stale black reference, white is still all-dirty.
	if d := selectMode(t, s, white); d.mode != protocol.ModeChecker {
		t.Fatalf("selection after forced FULL = %v, want %v", d.mode, protocol.ModeChecker)
	}
}

func TestSelectorForcedFullInterruptsCheckerPair(t *testing.T) {
	s := mustSelector(t, frame.DefaultLayout)
	selectMode(t, s, solidFrame(frame.DefaultLayout, 0, 0, 0))

	heavy := solidFrame(frame.DefaultLayout, 255, 255, 255)
	first := selectMode(t, s, heavy)
	if first.mode != protocol.ModeChecker {
		t.Fatalf("first half = %v, want %v", first.mode, protocol.ModeChecker)
	}

	// The forced-refresh clock outranks pairing, orphaning the first half.
	s.forceCount = forceRefreshLimit + 1
	if d := selectMode(t, s, heavy); d.mode != protocol.ModeFull {
		t.Fatalf("interrupting selection = %v, want %v", d.mode, protocol.ModeFull)
	}

	// The sampling phase survived the interruption, so the next pair opens
	// with the complementary wire mode and the peer still places pixels
	// correctly. The scan that picked the orphaned half synced the
	// reference to white, so a fresh heavy frame is needed.
	red := solidFrame(frame.DefaultLayout, 255, 0, 0)
	next := selectMode(t, s, red)
	if next.mode != protocol.ModeCheckerCompl || next.phase != 1 {
		t.Fatalf("pair reopened as %v phase %d, want %v phase 1",
			next.mode, next.phase, protocol.ModeCheckerCompl)
	}
	if s.lastMode != protocol.ModeChecker {
		t.Fatalf("pair position = %v, want %v (first half)", s.lastMode, protocol.ModeChecker)
	}

	last := selectMode(t, s, red)
	if last.mode != protocol.ModeChecker || last.phase != 0 {
		t.Fatalf("pair closed as %v phase %d, want %v phase 0",
			last.mode, last.phase, protocol.ModeChecker)
	}
	if s.lastMode != protocol.ModeCheckerCompl {
		t.Fatalf("pair position = %v, want %v (second half)", s.lastMode, protocol.ModeCheckerCompl)
	}
}
