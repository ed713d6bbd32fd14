// Package scanner discovers container and subtitle files and pairs them by stem.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Discovery is the result of one scan. It is consumed by a single pass.
type Discovery struct {
	// Containers maps item identifier to absolute container path.
	Containers map[string]string
	// Subtitles maps item identifier to absolute subtitle path.
	Subtitles map[string]string
	// Collisions counts identifiers seen more than once for the same kind.
	Collisions int
}

// Options selects which extensions the scanner pairs.
type Options struct {
	ContainerExt string
	SubtitleExt  string
}

// Scanner pairs containers with subtitles under a root.
type Scanner struct {
	walker *Walker
	logger *slog.Logger
	opts   Options
}

// NewScanner creates a scanner. Extensions are compared case-insensitively.
func NewScanner(opts Options, logger *slog.Logger) *Scanner {
	opts.ContainerExt = strings.ToLower(opts.ContainerExt)
	opts.SubtitleExt = strings.ToLower(opts.SubtitleExt)
	return &Scanner{
		walker: NewWalker(logger),
		logger: logger,
		opts:   opts,
	}
}

// Stem returns the identifier of a path: its base name without the final extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Discover walks root and builds the stem-keyed container and subtitle maps.
// Files sharing a stem in different directories collide and the one visited
// last wins. Only a root that cannot be stat'ed or a canceled context is an error.
func (s *Scanner) Discover(ctx context.Context, root string) (*Discovery, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	d := &Discovery{
		Containers: make(map[string]string),
		Subtitles:  make(map[string]string),
	}

	results, wait := s.walker.Walk(ctx, absRoot)
	for r := range results {
		ext := strings.ToLower(filepath.Ext(r.Path))

		var target map[string]string
		switch ext {
		case s.opts.ContainerExt:
			target = d.Containers
		case s.opts.SubtitleExt:
			target = d.Subtitles
		default:
			continue
		}

		stem := Stem(r.Path)
		if stem == "" {
			s.logger.Debug("skipping file without a stem", slog.String("path", r.Path))
			continue
		}
		if prev, ok := target[stem]; ok && prev != r.Path {
			d.Collisions++
			s.logger.Warn("duplicate item identifier, keeping the later path",
				slog.String("item", stem),
				slog.String("dropped", prev),
				slog.String("kept", r.Path),
			)
		}
		target[stem] = r.Path
	}

	if err := wait(); err != nil {
		return nil, fmt.Errorf("walk %s: %w", absRoot, err)
	}

	s.logger.Debug("discovery complete",
		slog.String("path", absRoot),
		slog.Int("containers", len(d.Containers)),
		slog.Int("subtitles", len(d.Subtitles)),
		slog.Int("collisions", d.Collisions),
	)
	return d, nil
}
