package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultSettleDelay is the fsnotify quiet period when none is configured.
const DefaultSettleDelay = 500 * time.Millisecond

// Options configures the backends.
type Options struct {
	IgnorePatterns []string
	SettleDelay    time.Duration
	// IgnoreHidden drops events under dot-prefixed path components. Discovery
	// still sees hidden files, so this only limits what triggers a pass.
	IgnoreHidden bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay <= 0 {
		o.SettleDelay = DefaultSettleDelay
	}

	// nil means defaults; an explicit empty slice disables pattern matching.
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			".DS_Store",
			"*.tmp",
			"*.temp",
			"Thumbs.db",
		}
	}
}

// shouldIgnore checks if a path matches ignore patterns.
func (o *Options) shouldIgnore(path string) bool {
	if o.IgnoreHidden {
		parts := strings.Split(filepath.Clean(path), string(filepath.Separator))
		for _, part := range parts {
			if strings.HasPrefix(part, ".") && part != "." && part != ".." {
				return true
			}
		}
	}

	base := filepath.Base(path)
	for _, pattern := range o.IgnorePatterns {
		matched, err := filepath.Match(pattern, base)
		if err == nil && matched {
			return true
		}
	}

	return false
}
