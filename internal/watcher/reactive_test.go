package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/mediawatch/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func nextEvent(t *testing.T, b Backend, want func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-b.Events():
			if want(ev) {
				return ev
			}
		case err := <-b.Errors():
			t.Fatalf("unexpected error: %v", err)
		case <-deadline:
			t.Fatal("timeout waiting for event")
		}
	}
}

// fakeBackend is a Backend fed by the test.
type fakeBackend struct {
	watchErr error
	events   chan Event
	errs     chan error

	mu      sync.Mutex
	watched []string
	stopped bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{events: make(chan Event), errs: make(chan error)}
}

func (f *fakeBackend) Watch(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched = append(f.watched, path)
	return f.watchErr
}

func (f *fakeBackend) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (f *fakeBackend) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeBackend) Events() <-chan Event { return f.events }
func (f *fakeBackend) Errors() <-chan error { return f.errs }

func (f *fakeBackend) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func TestReactive_Qualifies(t *testing.T) {
	r := NewReactive("/media", newFakeBackend(), []string{".mkv", ".SRT"}, nil, testLogger())

	tests := []struct {
		name string
		ev   Event
		want bool
	}{
		{"new container", Event{Type: EventAdded, Path: "/media/show.mkv"}, true},
		{"rewritten subtitle", Event{Type: EventModified, Path: "/media/show.srt"}, true},
		{"uppercase extension", Event{Type: EventAdded, Path: "/media/SHOW.MKV"}, true},
		{"new directory", Event{Type: EventDirCreated, Path: "/media/season 2"}, true},
		{"pipeline output", Event{Type: EventAdded, Path: "/media/show.mp4"}, false},
		{"job log", Event{Type: EventAdded, Path: "/media/show.log"}, false},
		{"deleted container", Event{Type: EventRemoved, Path: "/media/show.mkv"}, false},
		{"no extension", Event{Type: EventAdded, Path: "/media/README"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.qualifies(tt.ev))
		})
	}
}

func TestReactive_SpawnsPassPerQualifyingEvent(t *testing.T) {
	backend := newFakeBackend()
	release := make(chan struct{})
	var started atomic.Int64
	pass := func(context.Context) {
		started.Add(1)
		<-release
	}
	r := NewReactive(t.TempDir(), backend, []string{".mkv", ".srt"}, pass, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	backend.events <- Event{Type: EventAdded, Path: "/m/a.mkv"}
	backend.events <- Event{Type: EventRemoved, Path: "/m/a.mkv"}
	backend.events <- Event{Type: EventAdded, Path: "/m/a.mp4"}
	backend.events <- Event{Type: EventModified, Path: "/m/a.srt"}
	backend.errs <- errors.New("transient")

	// Both passes run at once: the second did not wait for the first.
	assert.Eventually(t, func() bool { return started.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
		t.Fatal("Run must wait for in-flight passes")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	assert.True(t, backend.isStopped())
	assert.Equal(t, int64(2), started.Load())
}

func TestReactive_InitFailures(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.mkv")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	failing := newFakeBackend()
	failing.watchErr = errors.New("no space for watches")

	tests := []struct {
		name    string
		root    string
		backend *fakeBackend
	}{
		{"missing root", filepath.Join(t.TempDir(), "missing"), newFakeBackend()},
		{"root is a file", file, newFakeBackend()},
		{"backend cannot watch", t.TempDir(), failing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReactive(tt.root, tt.backend, []string{".mkv"}, func(context.Context) {
				t.Error("no pass may run")
			}, testLogger())

			err := r.Run(context.Background())
			require.Error(t, err)
			assert.Equal(t, domainerrors.CodeWatchInit, domainerrors.CodeOf(err))
		})
	}
}

func TestReactive_WithRealBackend(t *testing.T) {
	root := t.TempDir()
	backend, err := NewBackend(KindFsnotify, testLogger(), Options{SettleDelay: 20 * time.Millisecond})
	require.NoError(t, err)

	var passes atomic.Int64
	r := NewReactive(root, backend, []string{".mkv", ".srt"}, func(context.Context) { passes.Add(1) }, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "show.mkv"), []byte("video"), 0o644))
	assert.Eventually(t, func() bool { return passes.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestNewBackend_UnknownKind(t *testing.T) {
	_, err := NewBackend("kqueue", testLogger(), Options{})
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeWatchInit, domainerrors.CodeOf(err))
}
