// Package ffmpegtest provides a scripted ffmpeg.Runner for tests.
package ffmpegtest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	domainerrors "github.com/listenupapp/mediawatch/internal/errors"
	"github.com/listenupapp/mediawatch/internal/ffmpeg"
)

// Runner pretends to be ffmpeg: it writes the last argument as the output
// file unless told to fail, and records every invocation.
type Runner struct {
	// Fail makes every run exit with EXIT_STATUS without writing output.
	Fail func(args []string) bool
	// SkipOutput exits cleanly without writing the output file.
	SkipOutput bool
	// Delay holds each run open, honoring ctx.
	Delay time.Duration
	// Stderr is written to the invocation's stderr.
	Stderr string
	// PartialOutput writes a truncated output before Delay and Fail apply,
	// like an ffmpeg that dies mid-encode.
	PartialOutput bool

	mu      sync.Mutex
	calls   [][]string
	active  atomic.Int64
	peak    atomic.Int64
	nextPID atomic.Int64
}

var _ ffmpeg.Runner = (*Runner)(nil)

// Run implements ffmpeg.Runner.
func (r *Runner) Run(ctx context.Context, inv ffmpeg.Invocation) error {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string(nil), inv.Args...))
	r.mu.Unlock()

	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		peak := r.peak.Load()
		if n <= peak || r.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if inv.OnStart != nil {
		inv.OnStart(int(r.nextPID.Add(1)) + 1000)
	}
	if inv.Stderr != nil && r.Stderr != "" {
		_, _ = fmt.Fprint(inv.Stderr, r.Stderr)
	}

	if r.PartialOutput && len(inv.Args) > 0 {
		if err := os.WriteFile(inv.Args[len(inv.Args)-1], []byte("partial"), 0o644); err != nil {
			return domainerrors.Wrap(err, domainerrors.CodeExitStatus, "write output")
		}
	}

	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return domainerrors.Wrap(ctx.Err(), domainerrors.CodeExitStatus, "ffmpeg killed")
		}
	}

	if r.Fail != nil && r.Fail(inv.Args) {
		return domainerrors.Wrap(fmt.Errorf("exit status 1"), domainerrors.CodeExitStatus, "ffmpeg exited with code 1")
	}
	if r.SkipOutput || len(inv.Args) == 0 {
		return nil
	}

	output := inv.Args[len(inv.Args)-1]
	if err := os.WriteFile(output, []byte("converted"), 0o644); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeExitStatus, "write output")
	}
	return nil
}

// Calls returns a copy of every recorded argument list.
func (r *Runner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// Peak returns the highest number of runs observed in flight at once.
func (r *Runner) Peak() int {
	return int(r.peak.Load())
}
