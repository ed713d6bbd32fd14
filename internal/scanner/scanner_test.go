package scanner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScanner() *Scanner {
	return NewScanner(Options{ContainerExt: ".mkv", SubtitleExt: ".srt"}, testLogger())
}

func TestDiscover_Pairing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "show.mkv"), "video")
	writeFile(t, filepath.Join(root, "show.srt"), "subs")
	writeFile(t, filepath.Join(root, "movie.mkv"), "video")
	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "show.mp4"), "output, ignored")

	d, err := newTestScanner().Discover(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"show":  filepath.Join(root, "show.mkv"),
		"movie": filepath.Join(root, "movie.mkv"),
	}, d.Containers)
	assert.Equal(t, map[string]string{
		"show": filepath.Join(root, "show.srt"),
	}, d.Subtitles)
	assert.Zero(t, d.Collisions)
}

func TestDiscover_ExtensionCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Show.MKV"), "video")
	writeFile(t, filepath.Join(root, "Show.Srt"), "subs")

	d, err := NewScanner(Options{ContainerExt: ".MKV", SubtitleExt: ".srt"}, testLogger()).
		Discover(context.Background(), root)
	require.NoError(t, err)

	assert.Contains(t, d.Containers, "Show")
	assert.Contains(t, d.Subtitles, "Show")
}

func TestDiscover_SubtitleWithoutContainer(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "orphan.srt"), "subs")

	d, err := newTestScanner().Discover(context.Background(), root)
	require.NoError(t, err)

	assert.Empty(t, d.Containers)
	assert.Contains(t, d.Subtitles, "orphan")
}

func TestDiscover_StemCollisionLastWins(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "ep1.mkv"), "first")
	writeFile(t, filepath.Join(root, "b", "ep1.mkv"), "second")
	writeFile(t, filepath.Join(root, "a", "ep1.srt"), "subs a")
	writeFile(t, filepath.Join(root, "b", "ep1.srt"), "subs b")

	d, err := newTestScanner().Discover(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "b", "ep1.mkv"), d.Containers["ep1"])
	assert.Equal(t, filepath.Join(root, "b", "ep1.srt"), d.Subtitles["ep1"])
	assert.Equal(t, 2, d.Collisions)
}

func TestDiscover_MultiDotNames(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "show.s01e01.mkv"), "video")
	writeFile(t, filepath.Join(root, "show.s01e01.srt"), "subs")

	d, err := newTestScanner().Discover(context.Background(), root)
	require.NoError(t, err)

	assert.Contains(t, d.Containers, "show.s01e01")
	assert.Contains(t, d.Subtitles, "show.s01e01")
}

func TestDiscover_UnreadableSubdirectoryIsSkipped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ok.mkv"), "video")
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "hidden.mkv"), "video")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	d, err := newTestScanner().Discover(context.Background(), root)
	require.NoError(t, err)

	assert.Contains(t, d.Containers, "ok")
	assert.NotContains(t, d.Containers, "hidden")
}

func TestDiscover_RootErrors(t *testing.T) {
	s := newTestScanner()

	_, err := s.Discover(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.mkv")
	writeFile(t, file, "x")
	_, err = s.Discover(context.Background(), file)
	assert.Error(t, err)
}

func TestDiscover_EmptyStemSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".mkv"), "video")
	writeFile(t, filepath.Join(root, ".srt"), "subs")
	writeFile(t, filepath.Join(root, "show.mkv"), "video")

	d, err := newTestScanner().Discover(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"show": filepath.Join(root, "show.mkv")}, d.Containers)
	assert.Empty(t, d.Subtitles)
	assert.NotContains(t, d.Containers, "")
}

func TestStem(t *testing.T) {
	assert.Equal(t, "show", Stem("/media/show.mkv"))
	assert.Equal(t, "show.s01", Stem("show.s01.mkv"))
	assert.Equal(t, "noext", Stem("/x/noext"))
	assert.Equal(t, "", Stem("/x/.mkv"))
}
