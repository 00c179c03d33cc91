package watcher

import (
	"time"

	"github.com/Aman-CERP/storyvec/internal/document"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was renamed away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change under the data directory.
type FileEvent struct {
	// Path is relative to the data directory, slash separated.
	Path string

	// ContentType is the content root the path lives in.
	ContentType document.ContentType

	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the tree must be quiet before a batch is emitted.
	// Default: 2s
	Debounce time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	// Default: 16
	EventBufferSize int
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:        2 * time.Second,
		EventBufferSize: 16,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = defaults.Debounce
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// Affected returns the content types touched by events, in indexing order.
func Affected(events []FileEvent) []document.ContentType {
	seen := make(map[document.ContentType]bool, len(document.ContentTypes))
	for _, e := range events {
		seen[e.ContentType] = true
	}

	var out []document.ContentType
	for _, ct := range document.ContentTypes {
		if seen[ct] {
			out = append(out, ct)
		}
	}
	return out
}
