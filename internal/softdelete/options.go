package softdelete

import (
	"github.com/alfredjeanlab/tombstone/internal/cascade"
	"github.com/alfredjeanlab/tombstone/internal/model"
)

// Default option values.
const (
	DefaultConflictRetries = 2
	DefaultPageSize        = model.DefaultPageSize
)

// Options are the Service's behavior knobs. The zero value is usable but
// continues past rejected roots; start from DefaultOptions for the usual
// abort-on-first-error policy.
type Options struct {
	// MaxDepth is the deepest cascade level a walk may reach.
	MaxDepth int
	// StopOnFirstError aborts the whole operation when any root is rejected
	// by its gate (already deleted, not directly deleted, not deleted).
	// Missing keys, cycles, conflicts and store failures always abort.
	StopOnFirstError bool
	// ConflictRetries is how many times an operation is re-run on fresh
	// data after a concurrency conflict.
	ConflictRetries int
	// PageSize is the ListSoftDeleted page size.
	PageSize int
}

// DefaultOptions returns the standard policy.
func DefaultOptions() Options {
	return Options{
		MaxDepth:         cascade.DefaultMaxDepth,
		StopOnFirstError: true,
		ConflictRetries:  DefaultConflictRetries,
		PageSize:         DefaultPageSize,
	}
}

// normalized replaces out-of-range values with defaults.
func (o Options) normalized() Options {
	if o.MaxDepth < 1 {
		o.MaxDepth = cascade.DefaultMaxDepth
	}
	if o.ConflictRetries < 0 {
		o.ConflictRetries = 0
	}
	if o.PageSize < 1 {
		o.PageSize = DefaultPageSize
	}
	return o
}
