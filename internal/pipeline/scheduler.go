package pipeline

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/listenupapp/mediawatch/internal/capability"
	"github.com/listenupapp/mediawatch/internal/ledger"
	"github.com/listenupapp/mediawatch/internal/transcode"
)

// JobRunner executes one job.
type JobRunner interface {
	Run(ctx context.Context, job transcode.Job, snapshot ledger.Snapshot) transcode.Outcome
}

// Plan is everything one pass hands to the scheduler.
type Plan struct {
	PassID     string
	Containers map[string]string
	Subtitles  map[string]string
	Snapshot   ledger.Snapshot
	Token      capability.Token
}

// Scheduler fans jobs out over a worker pool shared by every pass.
type Scheduler struct {
	jobs   JobRunner
	sem    *semaphore.Weighted
	claims *cache.Cache // nil when the claim table is disabled
	logger *slog.Logger
}

// NewScheduler creates a scheduler allowing at most threads concurrent jobs
// process-wide. With claimTable set, an item already running in one pass is
// skipped by any other pass until that job returns.
func NewScheduler(jobs JobRunner, threads int, claimTable bool, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		jobs:   jobs,
		sem:    semaphore.NewWeighted(int64(max(1, threads))),
		logger: logger,
	}
	if claimTable {
		// Claims are released explicitly, never by expiry.
		s.claims = cache.New(cache.NoExpiration, 0)
	}
	return s
}

// Schedule runs one job per container identifier not in the snapshot and
// waits for all of them. Jobs are independent: a failure is counted, never
// propagated.
func (s *Scheduler) Schedule(ctx context.Context, plan Plan) Summary {
	sum := Summary{
		PassID:     plan.PassID,
		Token:      plan.Token.String(),
		Discovered: len(plan.Containers),
		Subtitles:  len(plan.Subtitles),
	}

	var mu sync.Mutex
	var g errgroup.Group

	pending := make([]string, 0, len(plan.Containers))
	for id := range plan.Containers {
		if plan.Snapshot.Contains(id) {
			sum.SkippedLedgered++
			continue
		}
		pending = append(pending, id)
	}
	slices.Sort(pending)

	for _, id := range pending {
		job := transcode.Job{
			PassID:    plan.PassID,
			ID:        id,
			Container: plan.Containers[id],
			Subtitle:  plan.Subtitles[id],
			Token:     plan.Token,
		}

		g.Go(func() error {
			if !s.claim(id, plan.PassID) {
				s.logger.Debug("item claimed by another pass, skipping",
					slog.String("pass_id", plan.PassID),
					slog.String("item", id),
				)
				mu.Lock()
				sum.SkippedClaimed++
				mu.Unlock()
				return nil
			}
			defer s.release(id)

			// Shutting down: leave the item for the next run.
			if ctx.Err() != nil {
				return nil
			}
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer s.sem.Release(1)

			outcome := s.jobs.Run(ctx, job, plan.Snapshot)

			mu.Lock()
			sum.count(outcome)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return sum
}

// claim inserts id into the claim table if absent.
func (s *Scheduler) claim(id, passID string) bool {
	if s.claims == nil {
		return true
	}
	return s.claims.Add(id, passID, cache.NoExpiration) == nil
}

func (s *Scheduler) release(id string) {
	if s.claims != nil {
		s.claims.Delete(id)
	}
}

// Claimed returns the number of items currently claimed.
func (s *Scheduler) Claimed() int {
	if s.claims == nil {
		return 0
	}
	return s.claims.ItemCount()
}
