package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a soft-delete failure.
type ErrorKind string

const (
	KindEntityNotFound         ErrorKind = "entity_not_found"
	KindAlreadySoftDeleted     ErrorKind = "already_soft_deleted"
	KindNotDirectlySoftDeleted ErrorKind = "not_directly_soft_deleted"
	KindNotSoftDeleted         ErrorKind = "not_soft_deleted"
	KindCascadeCycleDetected   ErrorKind = "cascade_cycle_detected"
	KindConcurrencyConflict    ErrorKind = "concurrency_conflict"
	KindInternal               ErrorKind = "internal"
)

// Sentinels matched by errors.Is against a *KeyError of the same kind.
var (
	ErrEntityNotFound         = errors.New("entity not found")
	ErrAlreadySoftDeleted     = errors.New("entity is already soft deleted")
	ErrNotDirectlySoftDeleted = errors.New("entity was not directly soft deleted")
	ErrNotSoftDeleted         = errors.New("entity is not soft deleted")
	ErrCascadeCycleDetected   = errors.New("cascade cycle detected")
	ErrConcurrencyConflict    = errors.New("concurrency conflict")
	ErrInternal               = errors.New("internal error")
)

var kindSentinels = map[ErrorKind]error{
	KindEntityNotFound:         ErrEntityNotFound,
	KindAlreadySoftDeleted:     ErrAlreadySoftDeleted,
	KindNotDirectlySoftDeleted: ErrNotDirectlySoftDeleted,
	KindNotSoftDeleted:         ErrNotSoftDeleted,
	KindCascadeCycleDetected:   ErrCascadeCycleDetected,
	KindConcurrencyConflict:    ErrConcurrencyConflict,
	KindInternal:               ErrInternal,
}

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is a known value.
func (k ErrorKind) IsValid() bool {
	_, ok := kindSentinels[k]
	return ok
}

// Sentinel returns the package-level error for the kind.
func (k ErrorKind) Sentinel() error {
	if err, ok := kindSentinels[k]; ok {
		return err
	}
	return ErrInternal
}

// Retryable reports whether re-invoking the operation on fresh data may succeed.
func (k ErrorKind) Retryable() bool {
	return k == KindConcurrencyConflict
}

// IsRootGate reports whether the kind rejects a single root without
// touching the rest of the batch.
func (k ErrorKind) IsRootGate() bool {
	switch k {
	case KindAlreadySoftDeleted, KindNotDirectlySoftDeleted, KindNotSoftDeleted:
		return true
	}
	return false
}

// KeyError is one failure of a soft-delete operation.
type KeyError struct {
	Kind    ErrorKind `json:"kind"`
	Key     Key       `json:"key"`
	Message string    `json:"message"`
}

// NewKeyError returns a KeyError with a formatted message.
func NewKeyError(kind ErrorKind, key Key, format string, args ...any) *KeyError {
	return &KeyError{Kind: kind, Key: key, Message: fmt.Sprintf(format, args...)}
}

func (e *KeyError) Error() string {
	if e.Key.IsZero() {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Key, e.Message)
}

// Unwrap exposes the kind's sentinel.
func (e *KeyError) Unwrap() error {
	return e.Kind.Sentinel()
}

// AsKeyError returns err as a *KeyError when it is (or wraps) one, and nil otherwise.
func AsKeyError(err error) *KeyError {
	var ke *KeyError
	if errors.As(err, &ke) {
		return ke
	}
	return nil
}

// Result reports the outcome of a soft-delete operation. It is always
// returned; success is an empty Errors list rather than a nil value.
type Result struct {
	Affected []Key      `json:"affected"`
	Errors   []*KeyError `json:"errors"`
}

// OK reports whether the operation completed without errors.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Err joins all errors, or returns nil when the result is OK.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// HasKind reports whether any error has the given kind.
func (r Result) HasKind(kind ErrorKind) bool {
	for _, e := range r.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// FirstError returns the first error, or nil.
func (r Result) FirstError() *KeyError {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// Normalize replaces nil slices with empty ones so the JSON form never has nulls.
func (r Result) Normalize() Result {
	if r.Affected == nil {
		r.Affected = []Key{}
	}
	if r.Errors == nil {
		r.Errors = []*KeyError{}
	}
	return r
}

// Failed returns a result holding only the given errors.
func Failed(errs ...*KeyError) Result {
	return Result{Errors: errs}
}
