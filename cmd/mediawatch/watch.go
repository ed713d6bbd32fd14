package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/mediawatch/internal/di"
	"github.com/listenupapp/mediawatch/internal/logger"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run passes on every change until interrupted (default)",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	injector := di.NewContainer(cmd.Flags())

	source, err := di.Bootstrap(injector)
	if err != nil {
		_ = injector.Shutdown()
		return err
	}
	log := do.MustInvoke[*logger.Logger](injector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := source.Run(ctx)
	if runErr != nil {
		log.WithError(runErr).Error("event source failed to start")
	} else {
		log.Info("Shutting down gracefully...")
	}

	if err := injector.Shutdown(); err != nil {
		log.WithError(err).Error("Shutdown error")
	}
	_ = log.Close()
	return runErr
}
