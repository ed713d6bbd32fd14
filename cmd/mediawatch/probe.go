package main

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/mediawatch/internal/capability"
	"github.com/listenupapp/mediawatch/internal/di"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Print the acceleration path a pass would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			injector := di.NewContainer(cmd.Flags())
			defer injector.Shutdown() //nolint:errcheck // One-shot command

			if _, _, err := di.Core(injector); err != nil {
				return err
			}
			prober, err := do.Invoke[*capability.Prober](injector)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), prober.Probe(context.Background()))
			return nil
		},
	}
}
