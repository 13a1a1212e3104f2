package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Andreas0Cool/citra3ds/pkg/capture"
	"github.com/Andreas0Cool/citra3ds/pkg/encoder"
	"github.com/Andreas0Cool/citra3ds/pkg/frame"
	"github.com/Andreas0Cool/citra3ds/pkg/stream"
	"github.com/Andreas0Cool/citra3ds/pkg/transport"
)

const squareSize = 24

func castCmd() *cobra.Command {
	var (
		addr     string
		kind     string
		fps      int
		quality  int
		async    bool
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "cast",
		Short: "Stream a synthetic animated source to a viewer",
		Long: `cast renders a bouncing square over a slowly cycling background and
streams it through a real session. Most frames change a handful of
blocks; every background shift repaints the whole screen, so one run
exercises the sparse, interlaced, and idle paths alike.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fps <= 0 {
				return fmt.Errorf("fps must be positive, got %d", fps)
			}

			tcfg := transport.DefaultConfig()
			if async {
				tcfg = tcfg.WithWriteMode(transport.WriteAsync).
					WithWriteTimeout(50 * time.Millisecond)
			}

			tr, err := buildTransport(addr, kind, tcfg)
			if err != nil {
				return err
			}
			sess, err := stream.NewWithTransport(tr,
				stream.DefaultConfig().WithQuality(quality).WithTransport(tcfg))
			if err != nil {
				return err
			}

			buf := frame.NewBuffer(frame.DefaultLayout)
			hook := capture.NewHook(nil)
			if err := hook.Set(capture.Request{
				Buffer:      buf,
				Layout:      frame.DefaultLayout,
				PeerAddress: addr,
				OnFrame:     sess.Push,
			}); err != nil {
				return err
			}

			printBanner()
			info("casting to %s over %s at %d fps", addr, kind, fps)
			fmt.Println()

			ctx, cancel := signalContext()
			defer cancel()
			if duration > 0 {
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			return runCast(ctx, sess, hook, buf, fps)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", fmt.Sprintf("127.0.0.1:%d", transport.DefaultPort),
		"Viewer address")
	cmd.Flags().StringVarP(&kind, "transport", "t", "tcp",
		"Transport: tcp or ws")
	cmd.Flags().IntVar(&fps, "fps", 30,
		"Frames rendered per second")
	cmd.Flags().IntVarP(&quality, "quality", "q", encoder.DefaultQuality,
		"JPEG quality for transmitted blocks")
	cmd.Flags().BoolVar(&async, "async", false,
		"Queue writes on a background goroutine instead of blocking the render loop")
	cmd.Flags().DurationVar(&duration, "duration", 0,
		"Stop after this long (0 runs until interrupted)")

	return cmd
}

func runCast(ctx context.Context, sess *stream.Session, hook *capture.Hook, buf *frame.Buffer, fps int) error {
	sc := newScene()
	tick := time.NewTicker(time.Second / time.Duration(fps))
	defer tick.Stop()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

	for {
		select {
		case <-ctx.Done():
			st := sess.Stats()
			fmt.Println()
			success("cast finished: %d frames in, %d sent, %d dropped",
				st.FramesIn, st.FramesSent, st.Dropped)
			return sess.Close()
		case <-report.C:
			st := sess.Stats()
			info("state=%s sent=%d dropped=%d", sess.State(), st.FramesSent, st.Dropped)
		case <-tick.C:
			sc.draw(buf)
			hook.Deliver()
		}
	}
}

// buildTransport reaches the viewer over the named transport kind. A bare
// host:port for the ws kind is completed to the viewer's ingest URL.
func buildTransport(addr, kind string, cfg *transport.Config) (transport.Transport, error) {
	switch kind {
	case "tcp":
		return transport.New(addr, cfg)
	case "ws":
		if !strings.Contains(addr, "://") {
			addr = "ws://" + addr + "/ingest"
		}
		return transport.New(addr, cfg)
	default:
		return nil, fmt.Errorf("unknown transport %q (want tcp or ws)", kind)
	}
}

// scene is the demo animation: a bouncing square on a background whose
// shade shifts every few seconds.
type scene struct {
	x, y   int
	dx, dy int
	tick   int
}

func newScene() *scene {
	return &scene{x: 30, y: 40, dx: 3, dy: 2}
}

// draw repaints the buffer for the next frame. Between shade shifts the
// background bytes are rewritten with the same value, so only the
// square's old and new positions differ from the previous frame.
func (s *scene) draw(buf *frame.Buffer) {
	shade := byte(32 + 16*((s.tick/90)%4))
	pix := buf.Pix
	for i := range pix {
		pix[i] = shade
	}

	w, h := buf.Width, buf.Height
	s.x += s.dx
	s.y += s.dy
	if s.x < 0 || s.x > w-squareSize {
		s.dx = -s.dx
		s.x += 2 * s.dx
	}
	if s.y < 0 || s.y > h-squareSize {
		s.dy = -s.dy
		s.y += 2 * s.dy
	}

	g := byte(40 + s.tick%160)
	for row := s.y; row < s.y+squareSize; row++ {
		base := (row*w + s.x) * frame.BytesPerPixel
		for col := 0; col < squareSize; col++ {
			off := base + col*frame.BytesPerPixel
			pix[off] = 230
			pix[off+1] = g
			pix[off+2] = 90
		}
	}
	s.tick++
}
