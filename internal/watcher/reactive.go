package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	domainerrors "github.com/listenupapp/mediawatch/internal/errors"
)

// Reactive starts a pass for every qualifying notification under root.
// Passes are never coalesced or awaited before the next one starts.
type Reactive struct {
	root    string
	backend Backend
	exts    []string
	pass    PassFunc
	logger  *slog.Logger
}

// NewReactive creates a reactive source. Only files whose extension is one of
// exts (compared case-insensitively) and newly created directories qualify.
func NewReactive(root string, backend Backend, exts []string, pass PassFunc, logger *slog.Logger) *Reactive {
	lowered := make([]string, 0, len(exts))
	for _, e := range exts {
		lowered = append(lowered, strings.ToLower(e))
	}
	return &Reactive{
		root:    root,
		backend: backend,
		exts:    lowered,
		pass:    pass,
		logger:  logger,
	}
}

// Run subscribes to root and dispatches passes until ctx is cancelled, then
// stops the backend and waits for in-flight passes.
func (r *Reactive) Run(ctx context.Context) error {
	if err := checkRoot(r.root); err != nil {
		return err
	}
	if err := r.backend.Watch(r.root); err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeWatchInit, "watch %s", r.root)
	}

	go func() { _ = r.backend.Start(ctx) }()
	r.logger.Info("watching for changes", slog.String("path", r.root))

	var passes sync.WaitGroup
	defer func() {
		if err := r.backend.Stop(); err != nil {
			r.logger.Warn("failed to stop watch backend", slog.String("error", err.Error()))
		}
		passes.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-r.backend.Events():
			if !r.qualifies(ev) {
				continue
			}
			r.logger.Debug("change detected, starting pass",
				slog.String("path", ev.Path),
				slog.String("event", ev.Type.String()),
			)
			passes.Go(func() { r.pass(ctx) })
		case err := <-r.backend.Errors():
			r.logger.Warn("watch backend error", slog.String("error", err.Error()))
		}
	}
}

// qualifies reports whether ev should start a pass.
func (r *Reactive) qualifies(ev Event) bool {
	switch ev.Type {
	case EventDirCreated:
		return true
	case EventAdded, EventModified:
		ext := strings.ToLower(filepath.Ext(ev.Path))
		for _, e := range r.exts {
			if ext == e {
				return true
			}
		}
	}
	return false
}
