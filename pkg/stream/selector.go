package stream

import (
	"github.com/Andreas0Cool/citra3ds/pkg/frame"
	"github.com/Andreas0Cool/citra3ds/pkg/protocol"
)

// Selection tuning. The counter increments encode how fast each mode
// advances the forced-refresh clock: lossy partial updates accumulate drift
// faster than a no-change frame, so they pull the next FULL closer. The
// ratios are part of the protocol's convergence behavior and must not be
// re-tuned casually.
const (
	forceRefreshLimit = 100
	costNone          = 1
	costDiff          = 5
	costChecker       = 3
)

// decision is the outcome of one mode selection.
type decision struct {
	// mode is the wire mode. For interlaced frames it carries the sampling
	// phase, which may differ from the pair position when a forced FULL
	// interrupted a checker pair.
	mode protocol.FrameMode

	// phase is the interlace sampling phase for checker frames.
	phase int

	// bitmap and packed hold the diff scan output for ModeDiff. They alias
	// the differ's scratch space and are valid only until the next call.
	bitmap frame.Bitmap
	packed []byte

	// dirty is the dirty block count, meaningful when scanned is set.
	dirty   int
	scanned bool
}

// selector is the per-frame mode state machine. lastMode tracks the logical
// pair position of checker frames (ModeChecker for the first half,
// ModeCheckerCompl for the second); the wire mode in each decision is
// derived from the sampling phase instead, so the peer can place pixels
// correctly regardless of how pairs were interrupted.
type selector struct {
	differ   *frame.Differ
	previous *frame.Buffer

	established bool
	lastMode    protocol.FrameMode
	forceCount  int
	phase       int
}

func newSelector(l frame.Layout) (*selector, error) {
	g, err := frame.NewGrid(l)
	if err != nil {
		return nil, err
	}
	return &selector{
		differ:   frame.NewDiffer(g),
		previous: frame.NewBuffer(l),
	}, nil
}

// next selects the mode for the current frame and advances the machine.
//
// The first frame ever establishes the reference copy and goes out FULL.
// After that the order is fixed: the forced-refresh clock wins, then strict
// checker pairing, then the difference scan. The scan also refreshes the
// reference buffer in place, so skipping it on forced FULL and on the
// complement half leaves the reference untouched for those frames.
func (s *selector) next(cur *frame.Buffer) (decision, error) {
	if !s.established {
		if err := s.previous.CopyFrom(cur.Pix); err != nil {
			return decision{}, err
		}
		s.established = true
		return s.full(), nil
	}

	if s.forceCount > forceRefreshLimit {
		return s.full(), nil
	}

	if s.lastMode == protocol.ModeChecker {
		return s.checker(protocol.ModeCheckerCompl), nil
	}

	bitmap, packed, dirty, err := s.differ.Diff(s.previous, cur)
	if err != nil {
		return decision{}, err
	}

	switch {
	case dirty > s.differ.Grid().DiffLimit():
		d := s.checker(protocol.ModeChecker)
		d.dirty = dirty
		d.scanned = true
		return d, nil

	case dirty > 0:
		s.lastMode = protocol.ModeDiff
		s.forceCount += costDiff
		return decision{
			mode:    protocol.ModeDiff,
			bitmap:  bitmap,
			packed:  packed,
			dirty:   dirty,
			scanned: true,
		}, nil

	default:
		s.lastMode = protocol.ModeNone
		s.forceCount += costNone
		return decision{mode: protocol.ModeNone, scanned: true}, nil
	}
}

func (s *selector) full() decision {
	s.lastMode = protocol.ModeFull
	s.forceCount = 0
	return decision{mode: protocol.ModeFull}
}

func (s *selector) checker(position protocol.FrameMode) decision {
	d := decision{mode: protocol.CheckerMode(s.phase), phase: s.phase}
	s.lastMode = position
	s.forceCount += costChecker
	s.phase ^= 1
	return d
}
