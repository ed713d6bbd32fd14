package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyBackend implements Backend with fsnotify. Create and Write events
// only count once the file has been quiet for SettleDelay.
type fsnotifyBackend struct {
	logger  *slog.Logger
	opts    Options
	watcher *fsnotify.Watcher

	pending map[string]*pendingEvent
	stopped bool
	mu      sync.Mutex // protects pending and stopped

	events   chan Event
	errors   chan error
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// pendingEvent tracks a file that may still be changing.
type pendingEvent struct {
	size    int64
	modTime time.Time
	created bool
	timer   *time.Timer
}

func newFsnotifyBackend(logger *slog.Logger, opts Options) (*fsnotifyBackend, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &fsnotifyBackend{
		logger:  logger,
		opts:    opts,
		watcher: w,
		pending: make(map[string]*pendingEvent),
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Watch adds a path to be monitored.
func (b *fsnotifyBackend) Watch(path string) error {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return b.watcher.Add(filepath.Dir(path))
	}

	// The root itself must be watchable; failures below it are logged.
	if err := b.watcher.Add(path); err != nil {
		return fmt.Errorf("failed to add watch: %w", err)
	}
	b.watchDir(path)
	return nil
}

// watchDir recursively watches every directory under path.
func (b *fsnotifyBackend) watchDir(path string) {
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			b.logger.Warn("failed to access path", slog.String("path", p), slog.String("error", err.Error()))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != path && b.opts.shouldIgnore(p) {
			return filepath.SkipDir
		}
		if err := b.watcher.Add(p); err != nil {
			b.logger.Error("failed to add watch", slog.String("path", p), slog.String("error", err.Error()))
			return nil
		}
		b.logger.Debug("added watch", slog.String("path", p))
		return nil
	})
}

// Start delivers events until ctx is cancelled.
func (b *fsnotifyBackend) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.processEvents(ctx)

	select {
	case <-ctx.Done():
	case <-b.done:
	}
	return nil
}

func (b *fsnotifyBackend) processEvents(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.handle(event)
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.emitError(err)
		}
	}
}

// handle maps one fsnotify event. Chmod, Remove and Rename never start settling.
func (b *fsnotifyBackend) handle(event fsnotify.Event) {
	path := event.Name
	if b.opts.shouldIgnore(path) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			b.watchDir(path)
			b.emit(Event{Type: EventDirCreated, Path: path, ModTime: info.ModTime()})
			return
		}
		b.startSettling(path, true)
	case event.Has(fsnotify.Write):
		b.startSettling(path, false)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		b.cancelPending(path)
		b.emit(Event{Type: EventRemoved, Path: path})
	}
}

// startSettling (re)arms the settle timer for path.
func (b *fsnotifyBackend) startSettling(path string, created bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	if p, ok := b.pending[path]; ok {
		p.timer.Stop()
		p.size = info.Size()
		p.modTime = info.ModTime()
		p.created = p.created || created
		p.timer = time.AfterFunc(b.opts.SettleDelay, func() { b.checkSettled(path) })
		return
	}

	b.pending[path] = &pendingEvent{
		size:    info.Size(),
		modTime: info.ModTime(),
		created: created,
		timer:   time.AfterFunc(b.opts.SettleDelay, func() { b.checkSettled(path) }),
	}
}

// checkSettled emits the event once size and mtime stopped changing.
func (b *fsnotifyBackend) checkSettled(path string) {
	b.mu.Lock()
	p, ok := b.pending[path]
	if !ok || b.stopped {
		b.mu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(b.pending, path)
		b.mu.Unlock()
		return
	}

	if info.Size() != p.size || !info.ModTime().Equal(p.modTime) {
		p.size = info.Size()
		p.modTime = info.ModTime()
		p.timer = time.AfterFunc(b.opts.SettleDelay, func() { b.checkSettled(path) })
		b.mu.Unlock()
		return
	}

	delete(b.pending, path)
	b.mu.Unlock()

	typ := EventModified
	if p.created {
		typ = EventAdded
	}
	b.emit(Event{Type: typ, Path: path, Size: info.Size(), ModTime: info.ModTime()})
}

func (b *fsnotifyBackend) cancelPending(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.pending[path]; ok {
		p.timer.Stop()
		delete(b.pending, path)
	}
}

func (b *fsnotifyBackend) emit(event Event) {
	select {
	case b.events <- event:
	case <-b.done:
	}
}

func (b *fsnotifyBackend) emitError(err error) {
	select {
	case b.errors <- err:
	case <-b.done:
	default:
		b.logger.Warn("dropping watcher error", slog.String("error", err.Error()))
	}
}

// Events returns the events channel.
func (b *fsnotifyBackend) Events() <-chan Event {
	return b.events
}

// Errors returns the errors channel.
func (b *fsnotifyBackend) Errors() <-chan error {
	return b.errors
}

// Stop cancels pending timers, closes the fsnotify watcher and waits for the
// reader goroutine. It is safe to call more than once.
func (b *fsnotifyBackend) Stop() error {
	var err error
	b.stopOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		b.stopped = true
		for _, p := range b.pending {
			p.timer.Stop()
		}
		clear(b.pending)
		b.mu.Unlock()

		err = b.watcher.Close()
		b.wg.Wait()
	})
	return err
}
