// Package pipeline runs discovery/schedule passes and fans jobs across a bounded worker pool.
package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/mediawatch/internal/transcode"
)

// Summary counts what one pass did.
type Summary struct {
	PassID          string
	Token           string
	Discovered      int
	Subtitles       int
	SkippedLedgered int
	SkippedClaimed  int
	AlreadyDone     int
	Converted       int
	Failed          int
	Duration        time.Duration
}

// LogValue implements slog.LogValuer.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("pass_id", s.PassID),
		slog.String("token", s.Token),
		slog.Int("discovered", s.Discovered),
		slog.Int("subtitles", s.Subtitles),
		slog.Int("skipped_ledgered", s.SkippedLedgered),
		slog.Int("skipped_claimed", s.SkippedClaimed),
		slog.Int("already_done", s.AlreadyDone),
		slog.Int("converted", s.Converted),
		slog.Int("failed", s.Failed),
		slog.Duration("duration", s.Duration),
	)
}

func (s *Summary) count(o transcode.Outcome) {
	switch o {
	case transcode.OutcomeSkipped:
		s.SkippedLedgered++
	case transcode.OutcomeAlreadyDone:
		s.AlreadyDone++
	case transcode.OutcomeConverted:
		s.Converted++
	case transcode.OutcomeFailed:
		s.Failed++
	}
}

// Totals are lifetime counters across every pass of the process.
type Totals struct {
	Passes          int64
	Discovered      int64
	SkippedLedgered int64
	SkippedClaimed  int64
	AlreadyDone     int64
	Converted       int64
	Failed          int64
	LastPass        time.Time
}

// Stats accumulates pass summaries. It is safe for concurrent use.
type Stats struct {
	mu     sync.Mutex
	totals Totals
}

// NewStats creates empty lifetime stats.
func NewStats() *Stats {
	return &Stats{}
}

// Add folds one pass into the totals.
func (s *Stats) Add(sum Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.Passes++
	s.totals.Discovered += int64(sum.Discovered)
	s.totals.SkippedLedgered += int64(sum.SkippedLedgered)
	s.totals.SkippedClaimed += int64(sum.SkippedClaimed)
	s.totals.AlreadyDone += int64(sum.AlreadyDone)
	s.totals.Converted += int64(sum.Converted)
	s.totals.Failed += int64(sum.Failed)
	s.totals.LastPass = time.Now()
}

// Totals returns a copy of the current counters.
func (s *Stats) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}
