// Package capture is the seam between a render loop and the streaming
// pipeline. The presentation path registers a Request once and then calls
// Deliver after every present; the hook forwards the refilled buffer to the
// stream and hands the peer's acknowledgment byte back as a throttle signal.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Andreas0Cool/citra3ds/pkg/frame"
)

// ErrInvalidRequest is returned by Set for requests that cannot be
// delivered.
var ErrInvalidRequest = errors.New("capture: invalid stream request")

// Request describes one streaming registration from the presentation path.
type Request struct {
	// Buffer is refilled by the render loop before each Deliver. The
	// render loop owns its memory; the hook never writes to it.
	Buffer *frame.Buffer

	// OnFrame consumes the refilled buffer and returns the peer's latest
	// acknowledgment byte. A stream session's Push is the usual callback.
	OnFrame func(pixels []byte) (byte, error)

	// PeerAddress records where the stream goes. Informational; the
	// callback owns the actual connection.
	PeerAddress string

	// Layout is the capture resolution. It must match the buffer.
	Layout frame.Layout
}

// Hook is a single-slot stream registration. Setting a new request replaces
// the previous one, matching how a new stream destination takes over the
// capture path. All methods are safe for concurrent use.
type Hook struct {
	mu     sync.Mutex
	req    *Request
	logger *slog.Logger
}

// NewHook returns an empty hook. A nil logger falls back to slog.Default.
func NewHook(logger *slog.Logger) *Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hook{logger: logger.With("component", "capture")}
}

// Set installs a stream request, replacing any active one.
func (h *Hook) Set(req Request) error {
	if req.OnFrame == nil {
		return fmt.Errorf("%w: nil OnFrame callback", ErrInvalidRequest)
	}
	if req.Buffer == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidRequest)
	}
	if !req.Layout.Valid() {
		return fmt.Errorf("%w: layout %v", ErrInvalidRequest, req.Layout)
	}
	if req.Buffer.Layout() != req.Layout {
		return fmt.Errorf("%w: buffer is %v, request wants %v",
			ErrInvalidRequest, req.Buffer.Layout(), req.Layout)
	}

	h.mu.Lock()
	replaced := h.req != nil
	h.req = &req
	h.mu.Unlock()

	if replaced {
		h.logger.Info("stream request replaced", "peer", req.PeerAddress)
	} else {
		h.logger.Info("stream request installed", "peer", req.PeerAddress)
	}
	return nil
}

// Clear removes the active request, if any.
func (h *Hook) Clear() {
	h.mu.Lock()
	cleared := h.req != nil
	h.req = nil
	h.mu.Unlock()

	if cleared {
		h.logger.Info("stream request cleared")
	}
}

// Active reports whether a request is installed.
func (h *Hook) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.req != nil
}

// Deliver forwards the current buffer contents to the registered callback.
// It reports the acknowledgment byte and whether a request was active.
// Callback errors are logged, never propagated: the render loop must not
// stall on streaming problems.
func (h *Hook) Deliver() (byte, bool) {
	h.mu.Lock()
	req := h.req
	h.mu.Unlock()
	if req == nil {
		return 0, false
	}

	// The callback blocks on encode and socket writes; it runs outside the
	// lock so Set and Clear stay responsive.
	ack, err := req.OnFrame(req.Buffer.Pix)
	if err != nil {
		h.logger.Error("frame delivery failed", "peer", req.PeerAddress, "error", err)
	}
	return ack, true
}
