package encoder

import (
	"errors"
	"testing"

	"github.com/Andreas0Cool/citra3ds/pkg/frame"
)

func solidBuffer(l frame.Layout, r, g, b byte) *frame.Buffer {
	buf := frame.NewBuffer(l)
	for i := 0; i < len(buf.Pix); i += frame.BytesPerPixel {
		buf.Pix[i] = r
		buf.Pix[i+1] = g
		buf.Pix[i+2] = b
	}
	return buf
}

// near reports whether two channel values are within the tolerance expected
// from a lossy round trip of flat color at the default quality.
func near(a, b byte) bool {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	return d <= 4
}

func TestNewJPEGClampsQuality(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{70, 70},
		{0, 1},
		{-5, 1},
		{101, 100},
	}
	for _, tc := range tests {
		if got := NewJPEG(tc.in).Quality(); got != tc.want {
			t.Errorf("NewJPEG(%d).Quality() = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	src := solidBuffer(frame.DefaultLayout, 200, 40, 90)
	enc := NewJPEG(DefaultQuality)

	payload, err := enc.EncodeFrame(src)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	if len(payload) == 0 {
		t.Fatal("EncodeFrame() produced no bytes")
	}
	if len(payload) >= len(src.Pix) {
		t.Errorf("compressed %d bytes >= raw %d bytes for flat input", len(payload), len(src.Pix))
	}

	got, err := DecodeRGB(payload)
	if err != nil {
		t.Fatalf("DecodeRGB() error = %v", err)
	}
	if got.Width != src.Width || got.Height != src.Height {
		t.Fatalf("decoded size = %dx%d, want %dx%d", got.Width, got.Height, src.Width, src.Height)
	}
	for i := 0; i < len(got.Pix); i += frame.BytesPerPixel {
		if !near(got.Pix[i], 200) || !near(got.Pix[i+1], 40) || !near(got.Pix[i+2], 90) {
			t.Fatalf("pixel %d = (%d, %d, %d), want near (200, 40, 90)",
				i/frame.BytesPerPixel, got.Pix[i], got.Pix[i+1], got.Pix[i+2])
		}
	}
}

func TestEncodeBlocksRoundTrip(t *testing.T) {
	enc := NewJPEG(DefaultQuality)

	// Three flat blocks with distinct gray levels. Grays keep the chroma
	// planes constant, so subsampling cannot bleed across block boundaries
	// and each decoded block stays flat.
	colors := [][3]byte{{40, 40, 40}, {128, 128, 128}, {220, 220, 220}}
	packed := make([]byte, 3*frame.BlockBytes)
	for b, c := range colors {
		for i := 0; i < frame.BlockBytes; i += frame.BytesPerPixel {
			off := b*frame.BlockBytes + i
			packed[off] = c[0]
			packed[off+1] = c[1]
			packed[off+2] = c[2]
		}
	}

	payload, err := enc.EncodeBlocks(packed, 3)
	if err != nil {
		t.Fatalf("EncodeBlocks() error = %v", err)
	}

	got, n, err := DecodeBlocks(payload)
	if err != nil {
		t.Fatalf("DecodeBlocks() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("DecodeBlocks() n = %d, want 3", n)
	}
	if len(got) != len(packed) {
		t.Fatalf("DecodeBlocks() returned %d bytes, want %d", len(got), len(packed))
	}
	for b, c := range colors {
		// Sample the center pixel of each block.
		off := b*frame.BlockBytes + (frame.BlockBytes / 2 / frame.BytesPerPixel) * frame.BytesPerPixel
		if !near(got[off], c[0]) || !near(got[off+1], c[1]) || !near(got[off+2], c[2]) {
			t.Errorf("block %d center = (%d, %d, %d), want near (%d, %d, %d)",
				b, got[off], got[off+1], got[off+2], c[0], c[1], c[2])
		}
	}
}

func TestEncodeBlocksValidation(t *testing.T) {
	enc := NewJPEG(DefaultQuality)

	tests := []struct {
		name    string
		packed  []byte
		n       int
		wantErr error
	}{
		{"zero blocks", nil, 0, ErrEmptyInput},
		{"negative blocks", nil, -1, ErrEmptyInput},
		{"length mismatch", make([]byte, frame.BlockBytes-1), 1, ErrBadBlockData},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := enc.EncodeBlocks(tc.packed, tc.n); !errors.Is(err, tc.wantErr) {
				t.Errorf("EncodeBlocks() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestEncodeInterlacedHalvesWidth(t *testing.T) {
	src := solidBuffer(frame.DefaultLayout, 120, 120, 120)
	enc := NewJPEG(DefaultQuality)

	payload, err := enc.EncodeInterlaced(src, 0)
	if err != nil {
		t.Fatalf("EncodeInterlaced() error = %v", err)
	}

	got, err := DecodeRGB(payload)
	if err != nil {
		t.Fatalf("DecodeRGB() error = %v", err)
	}
	if got.Width != src.Width/2 || got.Height != src.Height {
		t.Errorf("decoded size = %dx%d, want %dx%d", got.Width, got.Height, src.Width/2, src.Height)
	}
}

func TestEncodeInterlacedRejectsBadPhase(t *testing.T) {
	src := solidBuffer(frame.DefaultLayout, 1, 2, 3)
	enc := NewJPEG(DefaultQuality)
	if _, err := enc.EncodeInterlaced(src, 2); err == nil {
		t.Error("EncodeInterlaced(phase 2) error = nil, want error")
	}
}

func TestDecodeRGBRejectsGarbage(t *testing.T) {
	if _, err := DecodeRGB([]byte("not a jpeg payload")); err == nil {
		t.Error("DecodeRGB(garbage) error = nil, want error")
	}
	if _, err := DecodeRGB(nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("DecodeRGB(nil) error = %v, want ErrEmptyInput", err)
	}
}
