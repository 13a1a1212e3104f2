package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(*cobra.Command, []string) {
			if short {
				fmt.Println(version)
				return
			}
			printBanner()
			fmt.Printf("  Version:  %s\n", version)
			fmt.Printf("  Commit:   %s\n", commit)
			fmt.Printf("  Built:    %s\n", date)
			fmt.Printf("  Go:       %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print version number only")
	return cmd
}
