package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/mediawatch/internal/capability"
	"github.com/listenupapp/mediawatch/internal/ledger"
	"github.com/listenupapp/mediawatch/internal/transcode"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

// fakeJobs is a JobRunner with scripted outcomes and optional blocking.
type fakeJobs struct {
	outcome func(id string) transcode.Outcome
	hold    time.Duration
	gate    chan struct{} // when set, every job waits for it to close
	started chan string   // when set, receives each id as its job begins

	mu     sync.Mutex
	runs   map[string]int
	active atomic.Int64
	peak   atomic.Int64
}

func (f *fakeJobs) Run(ctx context.Context, job transcode.Job, _ ledger.Snapshot) transcode.Outcome {
	f.mu.Lock()
	if f.runs == nil {
		f.runs = make(map[string]int)
	}
	f.runs[job.ID]++
	f.mu.Unlock()

	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.started != nil {
		f.started <- job.ID
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	if f.outcome != nil {
		return f.outcome(job.ID)
	}
	return transcode.OutcomeConverted
}

func (f *fakeJobs) runCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id]
}

func containers(n int) map[string]string {
	m := make(map[string]string, n)
	for i := range n {
		id := fmt.Sprintf("item%02d", i)
		m[id] = "/media/" + id + ".mkv"
	}
	return m
}

func TestSchedule_SkipsLedgeredAndCounts(t *testing.T) {
	jobs := &fakeJobs{}
	s := NewScheduler(jobs, 2, true, testLogger())

	sum := s.Schedule(context.Background(), Plan{
		PassID:     "pass-1",
		Containers: map[string]string{"show": "/m/show.mkv", "movie": "/m/movie.mkv"},
		Subtitles:  map[string]string{"show": "/m/show.srt"},
		Snapshot:   ledger.Snapshot{"movie": {}},
		Token:      capability.TokenSoftware,
	})

	assert.Equal(t, 2, sum.Discovered)
	assert.Equal(t, 1, sum.Subtitles)
	assert.Equal(t, 1, sum.SkippedLedgered)
	assert.Equal(t, 1, sum.Converted)
	assert.Equal(t, "software", sum.Token)
	assert.Zero(t, jobs.runCount("movie"))
	assert.Equal(t, 1, jobs.runCount("show"))
}

func TestSchedule_FailureIsolation(t *testing.T) {
	jobs := &fakeJobs{outcome: func(id string) transcode.Outcome {
		switch id {
		case "item01", "item03":
			return transcode.OutcomeFailed
		case "item04":
			return transcode.OutcomeAlreadyDone
		default:
			return transcode.OutcomeConverted
		}
	}}
	s := NewScheduler(jobs, 3, true, testLogger())

	sum := s.Schedule(context.Background(), Plan{PassID: "pass-1", Containers: containers(6), Snapshot: ledger.Snapshot{}})

	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, 1, sum.AlreadyDone)
	assert.Equal(t, 3, sum.Converted)
	for i := range 6 {
		assert.Equal(t, 1, jobs.runCount(fmt.Sprintf("item%02d", i)), "every job runs despite failures")
	}
}

func TestSchedule_ConcurrencyBound(t *testing.T) {
	jobs := &fakeJobs{hold: 20 * time.Millisecond}
	s := NewScheduler(jobs, 3, false, testLogger())

	// Two overlapping passes share one pool.
	var wg sync.WaitGroup
	for p := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			plan := Plan{PassID: fmt.Sprintf("pass-%d", p), Containers: containers(12), Snapshot: ledger.Snapshot{}}
			sum := s.Schedule(context.Background(), plan)
			assert.Equal(t, 12, sum.Converted)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, jobs.peak.Load(), int64(3))
	assert.Equal(t, int64(3), jobs.peak.Load(), "the pool is actually used in parallel")
}

func TestSchedule_ClaimTableExcludesOverlappingPass(t *testing.T) {
	jobs := &fakeJobs{gate: make(chan struct{}), started: make(chan string, 1)}
	s := NewScheduler(jobs, 4, true, testLogger())
	plan := Plan{Containers: map[string]string{"show": "/m/show.mkv"}, Snapshot: ledger.Snapshot{}}

	first := make(chan Summary, 1)
	go func() {
		p := plan
		p.PassID = "pass-a"
		first <- s.Schedule(context.Background(), p)
	}()

	select {
	case id := <-jobs.started:
		require.Equal(t, "show", id)
	case <-time.After(5 * time.Second):
		t.Fatal("first pass never started its job")
	}
	assert.Equal(t, 1, s.Claimed())

	p := plan
	p.PassID = "pass-b"
	second := s.Schedule(context.Background(), p)
	assert.Equal(t, 1, second.SkippedClaimed)
	assert.Zero(t, second.Converted)

	close(jobs.gate)
	sum := <-first
	assert.Equal(t, 1, sum.Converted)
	assert.Equal(t, 1, jobs.runCount("show"))
	assert.Zero(t, s.Claimed(), "claims are released when the job returns")
}

func TestSchedule_WithoutClaimTableOverlapRunsTwice(t *testing.T) {
	jobs := &fakeJobs{gate: make(chan struct{}), started: make(chan string, 2)}
	s := NewScheduler(jobs, 4, false, testLogger())
	plan := Plan{Containers: map[string]string{"show": "/m/show.mkv"}, Snapshot: ledger.Snapshot{}}

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Schedule(context.Background(), plan)
		}()
	}
	for range 2 {
		select {
		case <-jobs.started:
		case <-time.After(5 * time.Second):
			t.Fatal("both passes should run the item")
		}
	}
	close(jobs.gate)
	wg.Wait()

	assert.Equal(t, 2, jobs.runCount("show"))
	assert.Zero(t, s.Claimed())
}

func TestSchedule_CanceledContextLeavesItems(t *testing.T) {
	jobs := &fakeJobs{}
	s := NewScheduler(jobs, 1, true, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := s.Schedule(ctx, Plan{Containers: containers(3), Snapshot: ledger.Snapshot{}})

	assert.Zero(t, sum.Converted)
	assert.Zero(t, s.Claimed())
}

func TestStats_Add(t *testing.T) {
	stats := NewStats()
	stats.Add(Summary{Discovered: 3, Converted: 2, Failed: 1})
	stats.Add(Summary{Discovered: 3, SkippedLedgered: 2, SkippedClaimed: 1})

	totals := stats.Totals()
	assert.Equal(t, int64(2), totals.Passes)
	assert.Equal(t, int64(6), totals.Discovered)
	assert.Equal(t, int64(2), totals.Converted)
	assert.Equal(t, int64(1), totals.Failed)
	assert.Equal(t, int64(2), totals.SkippedLedgered)
	assert.Equal(t, int64(1), totals.SkippedClaimed)
	assert.False(t, totals.LastPass.IsZero())
}
