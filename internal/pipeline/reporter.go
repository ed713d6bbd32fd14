package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// FailureCounter exposes the ledger's lifetime failure counts.
type FailureCounter interface {
	Failures() (load, appendFailures int64)
}

// Reporter periodically logs lifetime stats.
type Reporter struct {
	cron     *cron.Cron
	stats    *Stats
	failures FailureCounter
	interval time.Duration
	logger   *slog.Logger
}

// NewReporter creates a reporter. A zero interval disables it.
func NewReporter(stats *Stats, failures FailureCounter, interval time.Duration, logger *slog.Logger) *Reporter {
	return &Reporter{
		cron:     cron.New(),
		stats:    stats,
		failures: failures,
		interval: interval,
		logger:   logger,
	}
}

// Start schedules the report. It returns immediately.
func (r *Reporter) Start() error {
	if r.interval <= 0 {
		r.logger.Debug("stats reporter disabled")
		return nil
	}
	if _, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.interval), r.Report); err != nil {
		return fmt.Errorf("schedule stats report: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stop cancels future reports and waits for a running one to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

// Report logs the current totals once.
func (r *Reporter) Report() {
	t := r.stats.Totals()
	load, appends := r.failures.Failures()

	attrs := []any{
		slog.Int64("passes", t.Passes),
		slog.Int64("discovered", t.Discovered),
		slog.Int64("skipped_ledgered", t.SkippedLedgered),
		slog.Int64("skipped_claimed", t.SkippedClaimed),
		slog.Int64("already_done", t.AlreadyDone),
		slog.Int64("converted", t.Converted),
		slog.Int64("failed", t.Failed),
		slog.Int64("ledger_load_failures", load),
		slog.Int64("ledger_append_failures", appends),
	}
	if !t.LastPass.IsZero() {
		attrs = append(attrs, slog.Time("last_pass", t.LastPass))
	}
	r.logger.Info("lifetime stats", attrs...)
}
