package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/mediawatch/internal/di"
	"github.com/listenupapp/mediawatch/internal/pipeline"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a single pass and exit",
		Long:  "scan runs one pass over the watched tree. It exits non-zero when any job failed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			injector := di.NewContainer(cmd.Flags())
			defer injector.Shutdown() //nolint:errcheck // One-shot command

			_, log, err := di.Core(injector)
			if err != nil {
				return err
			}
			defer log.Close() //nolint:errcheck // One-shot command

			p, err := do.Invoke[*pipeline.Pipeline](injector)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sum, err := p.RunPass(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "discovered=%d converted=%d already_done=%d skipped=%d failed=%d\n",
				sum.Discovered, sum.Converted, sum.AlreadyDone, sum.SkippedLedgered+sum.SkippedClaimed, sum.Failed)
			if sum.Failed > 0 {
				return &exitError{code: 2}
			}
			return nil
		},
	}
}
