package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Andreas0Cool/citra3ds/internal/viewer"
	"github.com/Andreas0Cool/citra3ds/pkg/encoder"
	"github.com/Andreas0Cool/citra3ds/pkg/metrics"
	"github.com/Andreas0Cool/citra3ds/pkg/transport"
)

func viewCmd() *cobra.Command {
	var (
		httpAddr string
		listen   string
		quality  int
		record   bool
		sf       storeFlags
	)

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Run the viewer and serve the stream to browsers",
		Long: `view accepts a single sender, over raw TCP on --listen or over
WebSocket on /ingest, and fans the decoded stream out to every browser
connected to /ws. With --record each sender session is taped to the
recording store and can be played back later with replay.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics.Enable(metrics.WithNamespace("citra3ds"))

			st, err := sf.build()
			if err != nil {
				return err
			}

			srv, err := viewer.New(viewer.Config{
				HTTPAddr:   httpAddr,
				StreamAddr: listen,
				Quality:    quality,
				Store:      st,
				Record:     record,
			})
			if err != nil {
				return err
			}

			printBanner()
			info("web viewer on   http://localhost%s", httpAddr)
			if listen != "" {
				info("sender ingest   tcp://%s", listen)
			}
			info("sender ingest   ws://localhost%s/ingest", httpAddr)
			if record {
				info("recording to    %s", sf.describe())
			}
			fmt.Println()

			ctx, cancel := signalContext()
			defer cancel()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", viewer.DefaultHTTPAddr,
		"HTTP listen address for browsers and WebSocket senders")
	cmd.Flags().StringVar(&listen, "listen", fmt.Sprintf(":%d", transport.DefaultPort),
		"TCP listen address for raw senders (empty disables)")
	cmd.Flags().IntVarP(&quality, "quality", "q", encoder.DefaultQuality,
		"JPEG quality for frames re-encoded toward browsers")
	cmd.Flags().BoolVar(&record, "record", false,
		"Record every sender session to the store")
	sf.register(cmd)

	return cmd
}
