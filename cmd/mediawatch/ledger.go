package main

import (
	"fmt"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/mediawatch/internal/di"
	"github.com/listenupapp/mediawatch/internal/ledger"
)

func newLedgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Print the identifiers recorded as converted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			injector := di.NewContainer(cmd.Flags())
			defer injector.Shutdown() //nolint:errcheck // One-shot command

			if _, _, err := di.Core(injector); err != nil {
				return err
			}
			l, err := do.Invoke[*ledger.Ledger](injector)
			if err != nil {
				return err
			}

			entries, err := l.Entries()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintln(out, e)
			}
			return nil
		},
	}
}
