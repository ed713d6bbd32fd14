// Package ledger records which items have already been converted.
//
// The ledger is a plain text file with one identifier per line. Writers only
// ever append, and each append is a single write on a descriptor opened with
// O_APPEND, so concurrent jobs never interleave partial lines. There is no
// lock, no compaction and no deduplication: the file is read back as a set.
package ledger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	domainerrors "github.com/listenupapp/mediawatch/internal/errors"
)

// Snapshot is the set of identifiers read at the start of a pass.
type Snapshot map[string]struct{}

// Contains reports whether id was ledgered when the snapshot was taken.
func (s Snapshot) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of distinct identifiers.
func (s Snapshot) Len() int {
	return len(s)
}

// Ledger is the append-only identifier file.
type Ledger struct {
	path   string
	logger *slog.Logger

	loadFailures   atomic.Int64
	appendFailures atomic.Int64
}

// New creates a ledger backed by the file at path. The file is created on first append.
func New(path string, logger *slog.Logger) *Ledger {
	return &Ledger{path: path, logger: logger}
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// Load reads the ledger into a snapshot. A missing file is an empty ledger.
// An unreadable file is logged, counted and also treated as empty.
func (l *Ledger) Load() Snapshot {
	entries, err := l.read()
	if err != nil {
		l.loadFailures.Add(1)
		l.logger.Error("ledger unreadable, treating as empty",
			slog.String("path", l.path),
			slog.String("error", err.Error()),
		)
		return Snapshot{}
	}

	snap := make(Snapshot, len(entries))
	for _, id := range entries {
		snap[id] = struct{}{}
	}
	return snap
}

// Entries returns the distinct identifiers in first-seen order.
func (l *Ledger) Entries() ([]string, error) {
	entries, err := l.read()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, id := range entries {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// Append records id. Failures are counted and returned with code LEDGER;
// the item is simply converted again on a later pass.
func (l *Ledger) Append(id string) error {
	if err := l.append(id); err != nil {
		l.appendFailures.Add(1)
		return domainerrors.Wrapf(err, domainerrors.CodeLedger, "append %q to ledger", id)
	}
	return nil
}

// Failures returns the lifetime load and append failure counts.
func (l *Ledger) Failures() (load, appendFailures int64) {
	return l.loadFailures.Load(), l.appendFailures.Load()
}

func (l *Ledger) append(id string) error {
	if id == "" || strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("invalid identifier %q", id)
	}

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //#nosec G304 -- ledger path is operator config
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	// One Write per line keeps concurrent appends whole.
	_, writeErr := f.Write([]byte(id + "\n"))
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("write ledger: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close ledger: %w", closeErr)
	}
	return nil
}

// read returns trimmed, non-blank lines in file order.
func (l *Ledger) read() ([]string, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var entries []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	return entries, nil
}
