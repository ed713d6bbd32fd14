package watcher

import (
	"context"
	"log/slog"
	"time"
)

// Poller runs a pass, sleeps for the interval, and repeats. The next pass
// starts only after the previous one returned.
type Poller struct {
	root     string
	interval time.Duration
	pass     PassFunc
	logger   *slog.Logger
}

// NewPoller creates a poll-fallback source for mounts without notifications.
func NewPoller(root string, interval time.Duration, pass PassFunc, logger *slog.Logger) *Poller {
	return &Poller{root: root, interval: interval, pass: pass, logger: logger}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if err := checkRoot(p.root); err != nil {
		return err
	}
	p.logger.Info("polling for changes", slog.String("path", p.root), slog.Duration("interval", p.interval))

	for ctx.Err() == nil {
		p.pass(ctx)

		select {
		case <-ctx.Done():
		case <-time.After(p.interval):
		}
	}
	return nil
}
