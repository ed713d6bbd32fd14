package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	domainerrors "github.com/listenupapp/mediawatch/internal/errors"
)

// Invocation is one ffmpeg run.
type Invocation struct {
	Args []string
	// Stderr receives ffmpeg's diagnostics. Nil discards them.
	Stderr io.Writer
	// OnStart is called with the child PID once the process is running.
	OnStart func(pid int)
}

// Runner executes ffmpeg. Implementations block until the process exits.
// Errors are coded SPAWN when the process never started and EXIT_STATUS when
// it exited non-zero.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// ExecRunner runs the real ffmpeg binary.
type ExecRunner struct {
	path   string
	logger *slog.Logger
}

// NewExecRunner creates a runner for the binary at path.
func NewExecRunner(path string, logger *slog.Logger) *ExecRunner {
	return &ExecRunner{path: path, logger: logger}
}

// ResolveBinary returns configured when set, otherwise ffmpeg from PATH.
// A missing binary is not fatal: it resolves to the bare name so every spawn
// fails with SPAWN and every probe counts as no match.
func ResolveBinary(configured string, logger *slog.Logger) string {
	if configured != "" {
		logger.Info("using ffmpeg", slog.String("path", configured))
		return configured
	}

	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		logger.Warn("ffmpeg not found in PATH, jobs will fail until it is installed",
			slog.String("error", err.Error()),
		)
		return "ffmpeg"
	}
	logger.Info("using ffmpeg", slog.String("path", path))
	return path
}

// Path returns the binary this runner executes.
func (r *ExecRunner) Path() string {
	return r.path
}

// Run starts ffmpeg and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) error {
	cmd := exec.CommandContext(ctx, r.path, inv.Args...) //nolint:gosec // path comes from config or exec.LookPath
	cmd.Stderr = inv.Stderr

	r.logger.Debug("executing ffmpeg", slog.Any("args", inv.Args))

	if err := cmd.Start(); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeSpawn, "start ffmpeg")
	}

	if inv.OnStart != nil {
		inv.OnStart(cmd.Process.Pid)
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return domainerrors.Wrapf(err, domainerrors.CodeExitStatus, "ffmpeg exited with code %d", exitErr.ExitCode())
		}
		return domainerrors.Wrap(err, domainerrors.CodeSpawn, "wait for ffmpeg")
	}
	return nil
}

// Invoke runs ffmpeg with stderr captured in memory. It backs the capability
// probes, which only look at exit status and diagnostics.
func (r *ExecRunner) Invoke(ctx context.Context, args []string) (string, error) {
	var stderr bytes.Buffer
	err := r.Run(ctx, Invocation{Args: args, Stderr: &stderr})
	if err != nil {
		return stderr.String(), fmt.Errorf("invoke ffmpeg: %w", err)
	}
	return stderr.String(), nil
}
