package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestLayoutPixelBytes(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		want   int
	}{
		{"capture resolution", Layout{240, 320}, 240 * 320 * 3},
		{"single block", Layout{8, 8}, 192},
		{"wide", Layout{64, 8}, 64 * 8 * 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.layout.PixelBytes(); got != tc.want {
				t.Errorf("PixelBytes() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	l := Layout{8, 8}

	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"exact", l.PixelBytes(), false},
		{"short", l.PixelBytes() - 1, true},
		{"long", l.PixelBytes() + 1, true},
		{"empty", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Wrap(l, make([]byte, tc.size))
			if tc.wantErr {
				if !errors.Is(err, ErrSizeMismatch) {
					t.Fatalf("Wrap() error = %v, want ErrSizeMismatch", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Wrap() error = %v", err)
			}
			if b.Width != l.Width || b.Height != l.Height {
				t.Errorf("Wrap() layout = %dx%d, want %s", b.Width, b.Height, l)
			}
		})
	}
}

func TestWrapSharesPixels(t *testing.T) {
	l := Layout{8, 8}
	pix := make([]byte, l.PixelBytes())
	b, err := Wrap(l, pix)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	pix[0] = 0xAB
	if b.Pix[0] != 0xAB {
		t.Error("Wrap() copied pixels, want a view over the caller's slice")
	}
}

func TestBufferCloneIsIndependent(t *testing.T) {
	b := NewBuffer(Layout{8, 8})
	b.Pix[10] = 42

	c := b.Clone()
	if !bytes.Equal(b.Pix, c.Pix) {
		t.Fatal("Clone() pixels differ from source")
	}

	c.Pix[10] = 99
	if b.Pix[10] != 42 {
		t.Error("mutating the clone changed the source buffer")
	}
}

func TestBufferCompatible(t *testing.T) {
	a := NewBuffer(Layout{240, 320})

	tests := []struct {
		name string
		b    *Buffer
		want bool
	}{
		{"same", NewBuffer(Layout{240, 320}), true},
		{"different width", NewBuffer(Layout{248, 320}), false},
		{"different height", NewBuffer(Layout{240, 312}), false},
		{"nil", nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := a.Compatible(tc.b); got != tc.want {
				t.Errorf("Compatible() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBufferCopyFrom(t *testing.T) {
	b := NewBuffer(Layout{8, 8})

	src := make([]byte, len(b.Pix))
	for i := range src {
		src[i] = byte(i)
	}
	if err := b.CopyFrom(src); err != nil {
		t.Fatalf("CopyFrom() error = %v", err)
	}
	if !bytes.Equal(b.Pix, src) {
		t.Error("CopyFrom() did not copy pixel data")
	}

	if err := b.CopyFrom(src[:10]); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("CopyFrom(short) error = %v, want ErrSizeMismatch", err)
	}
}
