package transcode

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	domainerrors "github.com/listenupapp/mediawatch/internal/errors"
	"github.com/listenupapp/mediawatch/internal/ffmpeg"
	"github.com/listenupapp/mediawatch/internal/ledger"
)

// Appender records a finished item.
type Appender interface {
	Append(id string) error
}

// Options configures an Executor.
type Options struct {
	ScratchDir   string
	OutputExt    string
	VAAPIDevice  string
	Language     string
	AudioBitrate string
	// JobTimeout bounds each ffmpeg run. Zero means no deadline.
	JobTimeout time.Duration
}

// Executor runs single jobs. It is safe for concurrent use.
type Executor struct {
	runner ffmpeg.Runner
	ledger Appender
	logger *slog.Logger
	opts   Options
}

// NewExecutor creates an executor.
func NewExecutor(runner ffmpeg.Runner, appender Appender, opts Options, logger *slog.Logger) *Executor {
	return &Executor{
		runner: runner,
		ledger: appender,
		logger: logger,
		opts:   opts,
	}
}

// Run converts one item. Nothing it does can affect another job: every error
// is logged here and folded into OutcomeFailed, and the ledger is only touched
// once the output file is known to exist.
func (e *Executor) Run(ctx context.Context, job Job, snapshot ledger.Snapshot) Outcome {
	logger := e.logger.With(
		slog.String("pass_id", job.PassID),
		slog.String("item", job.ID),
		slog.String("token", job.Token.String()),
	)

	if snapshot.Contains(job.ID) {
		logger.Debug("already in ledger, skipping")
		return OutcomeSkipped
	}

	start := time.Now()
	logger.Info("job started", slog.String("path", job.Container))

	outcome, err := e.run(ctx, job, logger)
	elapsed := time.Since(start)

	switch outcome {
	case OutcomeFailed:
		logger.Error("job failed",
			slog.String("code", string(domainerrors.CodeOf(err))),
			slog.Bool("retryable", domainerrors.CodeOf(err).Retryable()),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", elapsed),
		)
	case OutcomeAlreadyDone:
		logger.Info("output already exists, recorded in ledger", slog.Duration("elapsed", elapsed))
	default:
		logger.Info("job finished", slog.Duration("elapsed", elapsed))
	}
	return outcome
}

func (e *Executor) run(ctx context.Context, job Job, logger *slog.Logger) (Outcome, error) {
	work := filepath.Join(e.opts.ScratchDir, filepath.Base(job.Container))
	if err := copyFile(job.Container, work); err != nil {
		return OutcomeFailed, domainerrors.Wrapf(err, domainerrors.CodeCopy, "copy %s to scratch", job.Container)
	}

	output := OutputPath(job.Container, e.opts.OutputExt)
	if exists(output) {
		e.record(job.ID, logger)
		return OutcomeAlreadyDone, nil
	}

	var subtitle string
	if job.Subtitle != "" {
		subtitle = filepath.Join(e.opts.ScratchDir, filepath.Base(job.Subtitle))
		if err := copyFile(job.Subtitle, subtitle); err != nil {
			return OutcomeFailed, domainerrors.Wrapf(err, domainerrors.CodeCopy, "copy %s to scratch", job.Subtitle)
		}
	}

	partial := PartialPath(output)
	args := ffmpeg.BuildArgs(ffmpeg.ArgsSpec{
		Token:        job.Token,
		Input:        work,
		Subtitle:     subtitle,
		Output:       partial,
		VAAPIDevice:  e.opts.VAAPIDevice,
		Language:     e.opts.Language,
		AudioBitrate: e.opts.AudioBitrate,
	})

	var stderr io.Writer = io.Discard
	logPath := LogPath(output)
	logFile, err := os.Create(logPath) //#nosec G304 -- log path is derived from the container path
	if err != nil {
		logger.Warn("cannot create ffmpeg log, diagnostics will be dropped",
			slog.String("path", logPath),
			slog.String("error", err.Error()),
		)
	} else {
		defer logFile.Close()
		stderr = logFile
	}

	if e.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.JobTimeout)
		defer cancel()
	}

	err = e.runner.Run(ctx, ffmpeg.Invocation{
		Args:   args,
		Stderr: stderr,
		OnStart: func(pid int) {
			logger.Info("ffmpeg started", slog.Int("pid", pid), slog.String("path", partial))
		},
	})
	if err != nil {
		discard(partial, logger)
		return OutcomeFailed, err
	}

	if !exists(partial) {
		return OutcomeFailed, domainerrors.Wrapf(fs.ErrNotExist, domainerrors.CodeExitStatus,
			"ffmpeg exited cleanly but %s is missing", partial)
	}
	// Only a finished file carries the output name.
	if err := os.Rename(partial, output); err != nil {
		discard(partial, logger)
		return OutcomeFailed, domainerrors.Wrapf(err, domainerrors.CodeCopy, "rename %s into place", partial)
	}

	marker := ConvertedCopyPath(output)
	if err := copyFile(output, marker); err != nil {
		logger.Warn("converted copy failed",
			slog.String("path", marker),
			slog.String("error", err.Error()),
		)
	}

	e.record(job.ID, logger)
	return OutcomeConverted, nil
}

// record appends to the ledger. A failed append only costs a repeat of the
// output-exists check on a later pass.
func (e *Executor) record(id string, logger *slog.Logger) {
	if err := e.ledger.Append(id); err != nil {
		logger.Error("ledger append failed", slog.String("error", err.Error()))
	}
}

// discard removes what a failed run left behind.
func discard(partial string, logger *slog.Logger) {
	if err := os.Remove(partial); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("cannot remove partial output",
			slog.String("path", partial),
			slog.String("error", err.Error()),
		)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
