package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startFsnotify(t *testing.T, root string, settle time.Duration) *fsnotifyBackend {
	t.Helper()
	opts := Options{SettleDelay: settle}
	opts.setDefaults()

	backend, err := newFsnotifyBackend(slog.New(slog.NewTextHandler(os.Stdout, nil)), opts)
	require.NoError(t, err)
	require.NoError(t, backend.Watch(root))

	ctx, cancel := context.WithCancel(context.Background())
	go backend.Start(ctx) //nolint:errcheck // Test goroutine
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, backend.Stop())
	})
	return backend
}

func TestFsnotifyBackend_SettledWrite(t *testing.T) {
	root := t.TempDir()
	backend := startFsnotify(t, root, 50*time.Millisecond)

	path := filepath.Join(root, "show.mkv")
	f, err := os.Create(path)
	require.NoError(t, err)
	for range 5 {
		_, err = f.WriteString("chunk")
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	ev := nextEvent(t, backend, func(ev Event) bool { return ev.Path == path })
	assert.Equal(t, EventAdded, ev.Type)
	assert.Equal(t, int64(25), ev.Size, "the event reports the settled size")

	// Bursts of writes coalesce into the single event above.
	select {
	case extra := <-backend.Events():
		if extra.Path == path {
			t.Fatalf("unexpected second event: %+v", extra)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFsnotifyBackend_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	backend := startFsnotify(t, root, 20*time.Millisecond)

	dir := filepath.Join(root, "season 1")
	require.NoError(t, os.Mkdir(dir, 0o755))
	ev := nextEvent(t, backend, func(ev Event) bool { return ev.Type == EventDirCreated })
	assert.Equal(t, dir, ev.Path)

	path := filepath.Join(dir, "ep1.mkv")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
	ev = nextEvent(t, backend, func(ev Event) bool { return ev.Path == path })
	assert.Equal(t, EventAdded, ev.Type)
}

func TestFsnotifyBackend_IgnoredPattern(t *testing.T) {
	root := t.TempDir()
	backend := startFsnotify(t, root, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "partial.tmp"), []byte("x"), 0o644))
	path := filepath.Join(root, "show.srt")
	require.NoError(t, os.WriteFile(path, []byte("1\n"), 0o644))

	ev := nextEvent(t, backend, func(ev Event) bool { return ev.Type != EventRemoved })
	assert.Equal(t, path, ev.Path, "the .tmp file never produces an event")
}

func TestFsnotifyBackend_WatchMissingPath(t *testing.T) {
	opts := Options{}
	opts.setDefaults()
	backend, err := newFsnotifyBackend(slog.New(slog.NewTextHandler(os.Stdout, nil)), opts)
	require.NoError(t, err)
	defer backend.Stop() //nolint:errcheck // Test cleanup

	assert.Error(t, backend.Watch(filepath.Join(t.TempDir(), "missing")))
}
