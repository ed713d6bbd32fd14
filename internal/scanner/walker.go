package scanner

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Walker traverses the filesystem and streams regular files.
type Walker struct {
	logger *slog.Logger
}

// NewWalker creates a new walker.
func NewWalker(logger *slog.Logger) *Walker {
	return &Walker{
		logger: logger,
	}
}

// WalkResult represents a file discovered during walking.
type WalkResult struct {
	Path string
	Size int64
}

// Walk traverses root in lexical order and streams every regular file, following
// symlinks to files but never into directories. Unreadable entries are logged at
// debug level and skipped. The channel closes when the walk completes or ctx is
// canceled; the returned func reports how the walk ended once the channel is drained.
func (w *Walker) Walk(ctx context.Context, root string) (<-chan WalkResult, func() error) {
	results := make(chan WalkResult, 100)
	done := make(chan struct{})
	var walkErr error

	go func() {
		defer close(done)
		defer close(results)

		walkErr = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err != nil {
				// The root itself failing is the only error worth surfacing.
				if path == root {
					return err
				}
				w.logger.Debug("walk error", "path", path, "error", err)
				return nil
			}

			if d.IsDir() {
				return nil
			}

			info, err := w.regularFile(path, d)
			if err != nil || info == nil {
				return nil
			}

			select {
			case results <- WalkResult{Path: path, Size: info.Size()}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}()

	wait := func() error {
		<-done
		return walkErr
	}
	return results, wait
}

// regularFile returns the file info when path is a regular file or a symlink to one.
func (w *Walker) regularFile(path string, d fs.DirEntry) (fs.FileInfo, error) {
	if d.Type()&fs.ModeSymlink != 0 {
		info, err := os.Stat(path)
		if err != nil {
			w.logger.Debug("dangling symlink", "path", path, "error", err)
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, nil
		}
		return info, nil
	}

	if !d.Type().IsRegular() {
		return nil, nil
	}

	info, err := d.Info()
	if err != nil {
		// Removed between readdir and stat: same as never having existed.
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Debug("failed to get file info", "path", path, "error", err)
		}
		return nil, err
	}
	return info, nil
}
