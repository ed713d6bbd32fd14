// Package main provides the entry point for mediawatch.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/listenupapp/mediawatch/internal/config"
)

// exitError carries a process exit code out of a command without printing.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mediawatch",
		Short: "Watch a media tree and convert containers with ffmpeg",
		Long: "mediawatch watches a directory tree, pairs each container with its subtitle, " +
			"and converts every item not yet recorded in the ledger.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runWatch,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newWatchCmd(),
		newScanCmd(),
		newProbeCmd(),
		newLedgerCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if e, ok := err.(*exitError); ok {
			os.Exit(e.code)
		}
		fmt.Fprintf(os.Stderr, "mediawatch: %v\n", err)
		os.Exit(1)
	}
}
