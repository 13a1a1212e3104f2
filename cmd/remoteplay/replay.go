package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Andreas0Cool/citra3ds/pkg/recording"
	"github.com/Andreas0Cool/citra3ds/pkg/transport"
)

func replayCmd() *cobra.Command {
	var (
		addr string
		kind string
		sf   storeFlags
	)

	cmd := &cobra.Command{
		Use:   "replay <recording-id | file" + recording.Ext + ">",
		Short: "Play a recorded session back to a viewer",
		Long: `replay streams a taped session to a viewer with the original frame
timing. The argument is either a recording id resolved against the
store flags or a path to a ` + recording.Ext + ` file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			src, err := openRecording(ctx, args[0], &sf)
			if err != nil {
				return err
			}
			defer src.Close()

			rec, err := recording.NewReader(src)
			if err != nil {
				return err
			}

			tr, err := buildTransport(addr, kind, transport.DefaultConfig())
			if err != nil {
				return err
			}
			defer tr.Close()

			info("replaying %s to %s", args[0], addr)
			stats, err := recording.Replay(ctx, rec, tr)
			if err != nil {
				return err
			}
			if stats.Dropped > 0 {
				warn("%d messages dropped while the link was down", stats.Dropped)
			}
			success("replayed %d messages in %s",
				stats.Sent, stats.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", fmt.Sprintf("127.0.0.1:%d", transport.DefaultPort),
		"Viewer address")
	cmd.Flags().StringVarP(&kind, "transport", "t", "tcp",
		"Transport: tcp or ws")
	sf.register(cmd)

	return cmd
}

// openRecording resolves the replay target: an existing file path wins,
// anything else is treated as a recording id in the store.
func openRecording(ctx context.Context, target string, sf *storeFlags) (io.ReadCloser, error) {
	if strings.HasSuffix(target, recording.Ext) {
		if _, err := os.Stat(target); err == nil {
			return os.Open(target)
		}
	}
	st, err := sf.build()
	if err != nil {
		return nil, err
	}
	return st.Open(ctx, target)
}
