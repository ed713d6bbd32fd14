//go:build linux

package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// pollTimeoutMs bounds how long the reader waits before rechecking for shutdown.
const pollTimeoutMs = 200

// nameMax is the longest file name inotify reports.
const nameMax = 255

// inotifyBackend implements Backend using inotify with IN_CLOSE_WRITE, which
// fires when a writer closes the file, so no settle delay is needed.
type inotifyBackend struct {
	logger  *slog.Logger
	watches map[string]int
	wdPaths map[int]string
	created map[string]struct{} // files seen by IN_CREATE and not yet closed
	events  chan Event
	errors  chan error
	done    chan struct{}
	opts    Options
	wg      sync.WaitGroup
	fd      int
	mu      sync.RWMutex

	stopOnce sync.Once
}

func newInotifyBackend(logger *slog.Logger, opts Options) (*inotifyBackend, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inotify: %w", err)
	}

	return &inotifyBackend{
		logger:  logger,
		opts:    opts,
		fd:      fd,
		watches: make(map[string]int),
		wdPaths: make(map[int]string),
		created: make(map[string]struct{}),
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Watch adds a path to be monitored.
func (b *inotifyBackend) Watch(path string) error {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return b.addWatch(filepath.Dir(path))
	}

	if err := b.addWatch(path); err != nil {
		return err
	}
	b.watchDir(path)
	return nil
}

// watchDir recursively watches every directory under path.
func (b *inotifyBackend) watchDir(path string) {
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
		if err := b.addWatch(p); err != nil {
			b.logger.Error("failed to add watch", slog.String("path", p), slog.String("error", err.Error()))
		}
		return nil
	})
}

func (b *inotifyBackend) addWatch(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.watches[path]; exists {
		return nil
	}

	// IN_CLOSE_WRITE: a writer finished. IN_MOVED_TO: a file was moved in.
	// IN_CREATE: needed to pick up new directories.
	mask := unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO | unix.IN_CREATE | unix.IN_DELETE | unix.IN_DELETE_SELF | unix.IN_MOVED_FROM

	wd, err := unix.InotifyAddWatch(b.fd, path, uint32(mask))
	if err != nil {
		return fmt.Errorf("inotify_add_watch %s: %w", path, err)
	}

	b.watches[path] = wd
	b.wdPaths[wd] = path
	b.logger.Debug("added watch", slog.String("path", path), slog.Int("wd", wd))
	return nil
}

func (b *inotifyBackend) removeWatch(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wd, exists := b.watches[path]
	if !exists {
		return
	}
	// The kernel already dropped the watch for a deleted directory.
	//nolint:gosec // G115: wd is always a small non-negative int from inotify
	_, _ = unix.InotifyRmWatch(b.fd, uint32(wd))

	delete(b.watches, path)
	delete(b.wdPaths, wd)
}

// Start delivers events until ctx is cancelled.
func (b *inotifyBackend) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.readEvents(ctx)

	select {
	case <-ctx.Done():
	case <-b.done:
	}
	return nil
}

// readEvents polls the non-blocking descriptor so shutdown is noticed within
// pollTimeoutMs.
func (b *inotifyBackend) readEvents(ctx context.Context) {
	defer b.wg.Done()

	buf := make([]byte, (unix.SizeofInotifyEvent+nameMax+1)*64)
	fds := []unix.PollFd{{Fd: int32(b.fd), Events: unix.POLLIN}} //nolint:gosec // fd fits in int32

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		default:
		}

		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			b.emitError(fmt.Errorf("poll inotify: %w", err))
			return
		}
		if n == 0 {
			continue
		}

		n, err = unix.Read(b.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			b.emitError(fmt.Errorf("failed to read inotify events: %w", err))
			return
		}
		if n < unix.SizeofInotifyEvent {
			continue
		}
		b.parseEvents(buf[:n])
	}
}

func (b *inotifyBackend) parseEvents(buf []byte) {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		//nolint:gosec // G103: the kernel hands back packed inotify_event records
		event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameStart := offset + unix.SizeofInotifyEvent
		offset = nameStart + int(event.Len)
		if offset > len(buf) {
			return
		}

		if event.Mask&unix.IN_Q_OVERFLOW != 0 {
			b.emitError(errors.New("inotify queue overflow"))
			continue
		}

		b.mu.RLock()
		dir, ok := b.wdPaths[int(event.Wd)]
		b.mu.RUnlock()
		if !ok {
			continue
		}

		path := dir
		if event.Len > 0 {
			name := buf[nameStart:offset]
			path = filepath.Join(dir, string(name[:clen(name)]))
		}
		b.processEvent(path, event.Mask)
	}
}

func (b *inotifyBackend) processEvent(path string, mask uint32) {
	if b.opts.shouldIgnore(path) {
		return
	}

	switch {
	case mask&unix.IN_CREATE != 0:
		// Files get their event from IN_CLOSE_WRITE.
		if mask&unix.IN_ISDIR == 0 {
			b.mu.Lock()
			b.created[path] = struct{}{}
			b.mu.Unlock()
			return
		}
		b.watchDir(path)
		b.emit(Event{Type: EventDirCreated, Path: path})
	case mask&unix.IN_DELETE_SELF != 0:
		b.removeWatch(path)
		b.emit(Event{Type: EventRemoved, Path: path})
	case mask&(unix.IN_DELETE|unix.IN_MOVED_FROM) != 0:
		b.mu.Lock()
		delete(b.created, path)
		b.mu.Unlock()
		b.emit(Event{Type: EventRemoved, Path: path})
	case mask&unix.IN_MOVED_TO != 0:
		if mask&unix.IN_ISDIR != 0 {
			b.watchDir(path)
			b.emit(Event{Type: EventDirCreated, Path: path})
			return
		}
		b.fileReady(path, EventAdded)
	case mask&unix.IN_CLOSE_WRITE != 0:
		typ := EventModified
		b.mu.Lock()
		if _, ok := b.created[path]; ok {
			delete(b.created, path)
			typ = EventAdded
		}
		b.mu.Unlock()
		b.fileReady(path, typ)
	}
}

// fileReady emits an event for a file whose writer has finished.
func (b *inotifyBackend) fileReady(path string, typ EventType) {
	info, err := os.Stat(path)
	if err != nil {
		b.logger.Debug("file vanished before it could be reported", slog.String("path", path))
		return
	}
	if info.IsDir() {
		return
	}
	b.emit(Event{Type: typ, Path: path, Size: info.Size(), ModTime: info.ModTime()})
}

func (b *inotifyBackend) emit(event Event) {
	select {
	case b.events <- event:
	case <-b.done:
	}
}

func (b *inotifyBackend) emitError(err error) {
	select {
	case b.errors <- err:
	case <-b.done:
	default:
		b.logger.Warn("dropping watcher error", slog.String("error", err.Error()))
	}
}

// Events returns the events channel.
func (b *inotifyBackend) Events() <-chan Event {
	return b.events
}

// Errors returns the errors channel.
func (b *inotifyBackend) Errors() <-chan error {
	return b.errors
}

// Stop waits for the reader and closes the inotify descriptor. It is safe to
// call more than once.
func (b *inotifyBackend) Stop() error {
	var err error
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
		err = unix.Close(b.fd)
	})
	return err
}

// clen returns the length of a NUL-terminated byte slice.
func clen(n []byte) int {
	for i := range n {
		if n[i] == 0 {
			return i
		}
	}
	return len(n)
}
