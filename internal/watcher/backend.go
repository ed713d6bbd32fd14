package watcher

import "context"

// Backend is the platform-specific notification source behind Reactive.
type Backend interface {
	// Watch adds a path to be monitored. Directories are watched recursively,
	// and directories created later are added as they appear.
	Watch(path string) error

	// Start delivers events until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop releases all resources. Events and Errors are not closed.
	Stop() error

	// Events returns the channel of settled file system events.
	Events() <-chan Event

	// Errors returns the channel of non-fatal backend errors.
	Errors() <-chan error
}
