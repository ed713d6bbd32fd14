// Package watcher provides the event sources that decide when a pass runs:
// Reactive, driven by file system notifications, and Poller, driven by a clock.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"runtime"

	domainerrors "github.com/listenupapp/mediawatch/internal/errors"
)

// Backend kinds accepted by NewBackend.
const (
	KindAuto     = "auto"
	KindInotify  = "inotify"
	KindFsnotify = "fsnotify"
)

// PassFunc runs one full pass. Sources call it and never look at its result.
type PassFunc func(ctx context.Context)

// Source runs until ctx is cancelled. It only returns an error when it could
// not start.
type Source interface {
	Run(ctx context.Context) error
}

// NewBackend creates the notification backend for kind.
// auto selects inotify on Linux, where IN_CLOSE_WRITE marks a finished write,
// and fsnotify with settle timers everywhere else.
func NewBackend(kind string, logger *slog.Logger, opts Options) (Backend, error) {
	opts.setDefaults()

	if kind == "" || kind == KindAuto {
		kind = KindFsnotify
		if runtime.GOOS == "linux" {
			kind = KindInotify
		}
	}

	var (
		backend Backend
		err     error
	)
	switch kind {
	case KindInotify:
		backend, err = newInotifyBackend(logger, opts)
	case KindFsnotify:
		backend, err = newFsnotifyBackend(logger, opts)
	default:
		return nil, domainerrors.WatchInitf("unknown watch backend %q", kind)
	}
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeWatchInit, "create %s backend", kind)
	}

	logger.Info("watch backend ready", slog.String("backend", kind), slog.String("platform", runtime.GOOS))
	return backend, nil
}

// checkRoot fails with WATCH_INIT unless root is an existing directory.
func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeWatchInit, "watch root %s", root)
	}
	if !info.IsDir() {
		return domainerrors.WatchInitf("watch root %s is not a directory", root)
	}
	return nil
}
