package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/listenupapp/mediawatch/internal/capability"
	"github.com/listenupapp/mediawatch/internal/id"
	"github.com/listenupapp/mediawatch/internal/ledger"
	"github.com/listenupapp/mediawatch/internal/scanner"
)

// Discoverer scans the watched tree.
type Discoverer interface {
	Discover(ctx context.Context, root string) (*scanner.Discovery, error)
}

// SnapshotLoader reads the ledger once per pass.
type SnapshotLoader interface {
	Load() ledger.Snapshot
}

// Prober selects the acceleration path for a pass.
type Prober interface {
	Probe(ctx context.Context) capability.Token
}

// Config holds the paths a pass works on.
type Config struct {
	Root       string
	ScratchDir string
}

// Pipeline runs full passes: discover, snapshot the ledger, probe, schedule.
type Pipeline struct {
	cfg       Config
	discover  Discoverer
	ledger    SnapshotLoader
	prober    Prober
	scheduler *Scheduler
	stats     *Stats
	logger    *slog.Logger
}

// New creates a pipeline.
func New(cfg Config, discover Discoverer, snapshots SnapshotLoader, prober Prober, scheduler *Scheduler, stats *Stats, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		discover:  discover,
		ledger:    snapshots,
		prober:    prober,
		scheduler: scheduler,
		stats:     stats,
		logger:    logger,
	}
}

// RunPass performs one pass and blocks until every job it started has returned.
// Only a failed discovery is returned as an error; job failures are in the summary.
func (p *Pipeline) RunPass(ctx context.Context) (Summary, error) {
	start := time.Now()

	passID, err := id.NewPass()
	if err != nil {
		passID = fmt.Sprintf("%s-%d", id.PassPrefix, start.UnixNano())
	}
	logger := p.logger.With(slog.String("pass_id", passID))

	disc, err := p.discover.Discover(ctx, p.cfg.Root)
	if err != nil {
		logger.Error("discovery failed", slog.String("path", p.cfg.Root), slog.String("error", err.Error()))
		return Summary{PassID: passID, Duration: time.Since(start)}, fmt.Errorf("discover: %w", err)
	}

	snapshot := p.ledger.Load()
	token := p.prober.Probe(ctx)

	if err := os.MkdirAll(p.cfg.ScratchDir, 0o755); err != nil {
		// Every job will fail its copy and be retried next pass.
		logger.Error("cannot create scratch dir", slog.String("path", p.cfg.ScratchDir), slog.String("error", err.Error()))
	}

	logger.Info("pass started",
		slog.String("token", token.String()),
		slog.Int("containers", len(disc.Containers)),
		slog.Int("ledgered", snapshot.Len()),
	)

	sum := p.scheduler.Schedule(ctx, Plan{
		PassID:     passID,
		Containers: disc.Containers,
		Subtitles:  disc.Subtitles,
		Snapshot:   snapshot,
		Token:      token,
	})
	sum.Duration = time.Since(start)

	p.stats.Add(sum)
	logger.Info("pass finished", slog.Any("summary", sum))
	return sum, nil
}

// Trigger runs a pass and only logs its outcome. It is the callback handed to event sources.
func (p *Pipeline) Trigger(ctx context.Context) {
	_, _ = p.RunPass(ctx)
}

// Stats returns the lifetime counters.
func (p *Pipeline) Stats() *Stats {
	return p.stats
}
