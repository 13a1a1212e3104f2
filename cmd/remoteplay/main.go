package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┬─┐┌─┐┌┬┐┌─┐┌┬┐┌─┐ ┌─┐┬  ┌─┐┬ ┬
  ├┬┘├┤ │││││ │ │ ├┤  ├─┘│  ├─┤└┬┘
  ┴└─└─┘┴ ┴└─┘ ┴ └─┘  ┴  ┴─┘┴ ┴ ┴
`

func main() {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "remoteplay",
		Short: "Adaptive block-diff screen streaming",
		Long: `remoteplay streams raw RGB frames to a remote viewer, sending only
the 8x8 blocks that changed since the previous frame.

Commands:

  view    run the viewer: accept one sender, show the stream in a browser
  cast    run a demo sender with a synthetic animated source
  replay  play a recorded session back to a viewer
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, or error")

	rootCmd.AddCommand(
		viewCmd(),
		castCmd(),
		replayCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})))
}

// signalContext returns a context canceled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println()
		info("shutting down...")
		cancel()
	}()
	return ctx, cancel
}

// printBanner prints the remoteplay ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
