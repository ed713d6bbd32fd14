//go:build linux

package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startInotify(t *testing.T, root string) *inotifyBackend {
	t.Helper()
	opts := Options{}
	opts.setDefaults()

	backend, err := newInotifyBackend(slog.New(slog.NewTextHandler(os.Stdout, nil)), opts)
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

func TestInotifyBackend_CloseWrite(t *testing.T) {
	root := t.TempDir()
	backend := startInotify(t, root)

	path := filepath.Join(root, "show.mkv")
	require.NoError(t, os.WriteFile(path, []byte("video content"), 0o644))

	ev := nextEvent(t, backend, func(ev Event) bool { return ev.Path == path })
	assert.Equal(t, EventAdded, ev.Type)
	assert.Equal(t, int64(13), ev.Size)

	require.NoError(t, os.WriteFile(path, []byte("rewritten"), 0o644))
	ev = nextEvent(t, backend, func(ev Event) bool { return ev.Path == path })
	assert.Equal(t, EventModified, ev.Type)
}

func TestInotifyBackend_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	backend := startInotify(t, root)

	dir := filepath.Join(root, "season 1")
	require.NoError(t, os.Mkdir(dir, 0o755))
	ev := nextEvent(t, backend, func(ev Event) bool { return ev.Type == EventDirCreated })
	assert.Equal(t, dir, ev.Path)

	path := filepath.Join(dir, "ep1.srt")
	require.NoError(t, os.WriteFile(path, []byte("1\n"), 0o644))
	ev = nextEvent(t, backend, func(ev Event) bool { return ev.Path == path })
	assert.Equal(t, EventAdded, ev.Type)
}

func TestInotifyBackend_Removal(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "show.mkv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	backend := startInotify(t, root)

	require.NoError(t, os.Remove(path))
	ev := nextEvent(t, backend, func(ev Event) bool { return ev.Path == path })
	assert.Equal(t, EventRemoved, ev.Type)
}

func TestInotifyBackend_StopIsIdempotent(t *testing.T) {
	opts := Options{}
	opts.setDefaults()
	backend, err := newInotifyBackend(slog.New(slog.NewTextHandler(os.Stdout, nil)), opts)
	require.NoError(t, err)

	require.NoError(t, backend.Stop())
	assert.NoError(t, backend.Stop())
}
