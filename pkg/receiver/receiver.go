// Package receiver reassembles frames on the viewing side of the wire
// protocol. A Receiver is the counterpart of a stream.Session: it owns the
// persistent canvas the sender's reference buffer converges against, folds
// each arriving message into it, and acknowledges so the sender can pace
// itself.
//
// A Receiver is driven by one goroutine at a time. Serve is the usual entry
// point; Apply is exposed for callers that manage their own read loop.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/Andreas0Cool/citra3ds/pkg/encoder"
	"github.com/Andreas0Cool/citra3ds/pkg/frame"
	"github.com/Andreas0Cool/citra3ds/pkg/protocol"
)

var (
	// ErrLayoutMismatch is returned when a decoded image does not fit the
	// canvas the receiver was built for.
	ErrLayoutMismatch = errors.New("receiver: decoded image does not fit canvas")

	// ErrBlockCountMismatch is returned when a diff payload carries a
	// different number of blocks than the bitmap marks dirty.
	ErrBlockCountMismatch = errors.New("receiver: block count does not match bitmap")
)

// Receiver rebuilds the sender's frame from block-diff messages.
type Receiver struct {
	layout frame.Layout
	grid   frame.Grid
	canvas *frame.Buffer

	// OnFrame, when set before Serve, is invoked after every message that
	// changed the canvas. The callback receives the receiver's live canvas;
	// it must copy what it needs to keep.
	OnFrame func(*frame.Buffer)

	// OnMessage, when set before Serve, is invoked for every message that
	// applied cleanly, before OnFrame. Recording taps hang off this.
	OnMessage func(*protocol.Message)
}

// New returns a receiver with a zeroed canvas in the given layout.
func New(l frame.Layout) (*Receiver, error) {
	g, err := frame.NewGrid(l)
	if err != nil {
		return nil, err
	}
	return &Receiver{layout: l, grid: g, canvas: frame.NewBuffer(l)}, nil
}

// Layout returns the canvas dimensions.
func (r *Receiver) Layout() frame.Layout {
	return r.layout
}

// Frame returns the receiver's canvas. The buffer is live: the next Apply
// rewrites it, so callers that need a stable snapshot must Clone it.
func (r *Receiver) Frame() *frame.Buffer {
	return r.canvas
}

// Apply folds one message into the canvas and reports whether the canvas
// changed. Malformed input is an explicit error; the sender's periodic full
// refresh is what recovers the picture after the caller drops a desynced
// link.
func (r *Receiver) Apply(msg *protocol.Message) (bool, error) {
	if msg == nil {
		return false, fmt.Errorf("%w: nil message", protocol.ErrInvalidMode)
	}
	switch msg.Mode {
	case protocol.ModeNone:
		return false, nil
	case protocol.ModeFull:
		return r.applyFull(msg.Payload)
	case protocol.ModeDiff:
		return r.applyDiff(msg.Bitmap, msg.Payload)
	case protocol.ModeChecker, protocol.ModeCheckerCompl:
		return r.applyInterlaced(msg.Mode.Phase(), msg.Payload)
	default:
		return false, fmt.Errorf("%w: %d", protocol.ErrInvalidMode, uint16(msg.Mode))
	}
}

func (r *Receiver) applyFull(payload []byte) (bool, error) {
	img, err := encoder.DecodeRGB(payload)
	if err != nil {
		return false, fmt.Errorf("receiver: full frame: %w", err)
	}
	if img.Layout() != r.layout {
		return false, fmt.Errorf("%w: full frame is %v, canvas is %v",
			ErrLayoutMismatch, img.Layout(), r.layout)
	}
	copy(r.canvas.Pix, img.Pix)
	return true, nil
}

func (r *Receiver) applyDiff(bitmap, payload []byte) (bool, error) {
	if len(bitmap) != r.grid.BitmapSize() {
		return false, fmt.Errorf("%w: got %d bytes, want %d",
			protocol.ErrBitmapSize, len(bitmap), r.grid.BitmapSize())
	}
	bm := frame.Bitmap(bitmap)
	marked := 0
	for i := 0; i < r.grid.Blocks(); i++ {
		if bm.Get(i) {
			marked++
		}
	}
	if marked == 0 {
		return false, nil
	}

	packed, n, err := encoder.DecodeBlocks(payload)
	if err != nil {
		return false, fmt.Errorf("receiver: diff blocks: %w", err)
	}
	if n != marked {
		return false, fmt.Errorf("%w: bitmap marks %d, payload carries %d",
			ErrBlockCountMismatch, marked, n)
	}

	k := 0
	for i := 0; i < r.grid.Blocks(); i++ {
		if !bm.Get(i) {
			continue
		}
		block := packed[k*frame.BlockBytes : (k+1)*frame.BlockBytes]
		if err := r.grid.UnpackBlock(r.canvas, i, block); err != nil {
			return false, fmt.Errorf("receiver: block %d: %w", i, err)
		}
		k++
	}
	return true, nil
}

func (r *Receiver) applyInterlaced(phase int, payload []byte) (bool, error) {
	img, err := encoder.DecodeRGB(payload)
	if err != nil {
		return false, fmt.Errorf("receiver: interlaced frame: %w", err)
	}
	if img.Width != r.layout.Width/2 || img.Height != r.layout.Height {
		return false, fmt.Errorf("%w: interlaced half is %dx%d, canvas is %v",
			ErrLayoutMismatch, img.Width, img.Height, r.layout)
	}
	if err := frame.MergeInterlaced(r.canvas, phase, img.Pix); err != nil {
		return false, fmt.Errorf("receiver: interlaced merge: %w", err)
	}
	return true, nil
}

// Serve reads messages from conn until the peer disconnects or ctx is
// canceled, applying each and acknowledging it with protocol.AckReady. It
// returns nil when the peer closes the connection at a message boundary,
// ctx.Err() on cancellation, and the underlying failure otherwise.
func (r *Receiver) Serve(ctx context.Context, conn net.Conn) error {
	watch := make(chan struct{})
	defer close(watch)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-watch:
		}
	}()

	for {
		msg, err := protocol.ReadMessage(conn, r.grid.BitmapSize())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("receiver: read: %w", err)
		}

		updated, err := r.Apply(msg)
		if err != nil {
			return err
		}
		if r.OnMessage != nil {
			r.OnMessage(msg)
		}
		if updated && r.OnFrame != nil {
			r.OnFrame(r.canvas)
		}

		if err := protocol.WriteAck(conn, protocol.AckReady); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receiver: ack: %w", err)
		}
	}
}
