package ledger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/mediawatch/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "ledger.txt"), testLogger())

	snap := l.Load()
	assert.Zero(t, snap.Len())

	load, appends := l.Failures()
	assert.Zero(t, load, "a missing ledger is not a failure")
	assert.Zero(t, appends)
}

func TestLoad_TrimsAndSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	require.NoError(t, os.WriteFile(path, []byte("show\n\n  movie  \r\nshow\n\t\n"), 0o644))

	snap := New(path, testLogger()).Load()

	assert.Equal(t, 2, snap.Len())
	assert.True(t, snap.Contains("show"))
	assert.True(t, snap.Contains("movie"))
	assert.False(t, snap.Contains(""))
}

func TestLoad_UnreadableCountsFailure(t *testing.T) {
	// A directory at the ledger path cannot be read as a file.
	path := filepath.Join(t.TempDir(), "ledger.txt")
	require.NoError(t, os.Mkdir(path, 0o755))

	l := New(path, testLogger())
	snap := l.Load()

	assert.Zero(t, snap.Len())
	load, _ := l.Failures()
	assert.Equal(t, int64(1), load)
}

func TestAppend_ThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.txt")
	l := New(path, testLogger())

	require.NoError(t, l.Append("show"))
	require.NoError(t, l.Append("show"))
	require.NoError(t, l.Append("movie"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "show\nshow\nmovie\n", string(data), "duplicates are not removed at write time")

	snap := l.Load()
	assert.Equal(t, 2, snap.Len())

	entries, err := l.Entries()
	require.NoError(t, err)
	assert.Equal(t, []string{"show", "movie"}, entries)
}

func TestAppend_RejectsInvalidIdentifiers(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "ledger.txt"), testLogger())

	for _, id := range []string{"", "two\nlines"} {
		err := l.Append(id)
		require.Error(t, err)
		assert.ErrorIs(t, err, domainerrors.ErrLedger)
	}

	_, appends := l.Failures()
	assert.Equal(t, int64(2), appends)
}

func TestAppend_FailureIsReturnedNotFatal(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}

	dir := filepath.Join(t.TempDir(), "ro")
	require.NoError(t, os.Mkdir(dir, 0o500))
	l := New(filepath.Join(dir, "ledger.txt"), testLogger())

	err := l.Append("show")
	require.Error(t, err)
	assert.True(t, domainerrors.CodeOf(err).Retryable())

	_, appends := l.Failures()
	assert.Equal(t, int64(1), appends)
}

func TestAppend_ConcurrentWritersKeepLinesWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	l := New(path, testLogger())

	const writers = 32
	const perWriter = 50

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				assert.NoError(t, l.Append(fmt.Sprintf("item-%02d-%03d", w, i)))
			}
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, writers*perWriter)
	for _, line := range lines {
		assert.Regexp(t, `^item-\d{2}-\d{3}$`, line)
	}

	assert.Equal(t, writers*perWriter, l.Load().Len())
}
