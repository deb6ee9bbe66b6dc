package store

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// Store errors. Implementations wrap or return these directly.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record changed since it was loaded")
	ErrExists   = errors.New("record already exists")
)

// ConflictError reports the record whose version check failed. It matches
// ErrConflict with errors.Is.
type ConflictError struct {
	Op  string
	Key model.Key
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, ErrConflict)
}

// Unwrap returns ErrConflict.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NewConflictError returns a ConflictError for key.
func NewConflictError(op string, key model.Key) error {
	return &ConflictError{Op: op, Key: key}
}

// ConflictKey returns the key carried by a ConflictError in err's chain.
func ConflictKey(err error) (model.Key, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Key, true
	}
	return model.Key{}, false
}

// Store defines the persistence interface for soft-deletable records.
//
// Loads used by the soft-delete service (LoadByKey, LoadDependents,
// QueryAll with IncludeHidden) bypass the soft-delete visibility filter.
// Ordinary reads (GetRecord, QueryAll without IncludeHidden) apply it.
type Store interface {
	// Business surface
	CreateRecord(ctx context.Context, rec *model.Record) error
	GetRecord(ctx context.Context, key model.Key, tenantID string) (*model.Record, error)
	UpdateFields(ctx context.Context, rec *model.Record) error

	// Soft-delete surface
	LoadByKey(ctx context.Context, key model.Key) (*model.Record, error)
	LoadDependents(ctx context.Context, principal *model.Record, rel model.Relationship) ([]*model.Record, error)
	QueryAll(ctx context.Context, filter model.RecordFilter) iter.Seq2[*model.Record, error]

	// Commit applies every change in cs atomically. Each change, and each
	// record in cs.Checks, is checked against the Version it was loaded
	// with; a mismatch returns a *ConflictError and nothing is written.
	Commit(ctx context.Context, cs *ChangeSet) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}

// ChangeSet is the buffered output of one soft-delete operation.
type ChangeSet struct {
	// Updates carry new soft-delete state. Version is the loaded version.
	Updates []*model.Record
	// Deletes are physically removed. Version is the loaded version.
	Deletes []*model.Record
	// Checks were read by the operation and left unchanged. Commit fails if
	// any of them moved past its loaded version or disappeared.
	Checks []*model.Record
}

// Len returns the number of changes. Checks are not changes.
func (cs *ChangeSet) Len() int {
	if cs == nil {
		return 0
	}
	return len(cs.Updates) + len(cs.Deletes)
}

// Keys returns the keys of every change, updates first.
func (cs *ChangeSet) Keys() []model.Key {
	keys := make([]model.Key, 0, cs.Len())
	for _, r := range cs.Updates {
		keys = append(keys, r.Key())
	}
	for _, r := range cs.Deletes {
		keys = append(keys, r.Key())
	}
	return keys
}
