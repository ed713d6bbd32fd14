package watcher

import "time"

// EventType represents the type of file system event.
type EventType int

const (
	// EventAdded is emitted when a file finished being written.
	EventAdded EventType = iota
	// EventModified is emitted when an existing file was rewritten.
	EventModified
	// EventRemoved is emitted when a file or directory went away.
	EventRemoved
	// EventDirCreated is emitted when a new directory appeared and is now watched.
	EventDirCreated
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventModified:
		return "modified"
	case EventRemoved:
		return "removed"
	case EventDirCreated:
		return "dir_created"
	default:
		return "unknown"
	}
}

// Event represents a file system event.
type Event struct {
	Type    EventType
	Path    string
	Size    int64
	ModTime time.Time
}
