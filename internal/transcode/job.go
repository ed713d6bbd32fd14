// Package transcode turns one discovered item into an ffmpeg run and reconciles the result with the ledger.
package transcode

import (
	"path/filepath"
	"strings"

	"github.com/listenupapp/mediawatch/internal/capability"
)

// Job binds one item to everything needed to convert it.
type Job struct {
	PassID    string
	ID        string // item identifier (container stem)
	Container string
	Subtitle  string // empty when the item has no subtitle
	Token     capability.Token
}

// Outcome is how a job ended.
type Outcome int

// Job outcomes. Skipped and AlreadyDone are idempotent no-ops, not failures.
const (
	OutcomeSkipped Outcome = iota
	OutcomeAlreadyDone
	OutcomeConverted
	OutcomeFailed
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeAlreadyDone:
		return "already_done"
	case OutcomeConverted:
		return "converted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OutputPath derives the output file next to the container.
func OutputPath(container, outputExt string) string {
	dir := filepath.Dir(container)
	base := filepath.Base(container)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+outputExt)
}

// LogPath derives the per-item ffmpeg log from the output path.
func LogPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".log"
}

// ConvertedCopyPath derives the marker copy written after a successful run.
func ConvertedCopyPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + ".converted" + ext
}

// PartialPath derives the name ffmpeg writes to before the output is renamed
// into place. The extension is kept so ffmpeg can still pick the muxer.
func PartialPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + ".partial" + ext
}
