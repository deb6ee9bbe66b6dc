package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaxIDLength bounds record types and IDs.
const MaxIDLength = 200

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateRecord checks a Record before it is stored.
// It returns a *ValidationError if any rules fail, or nil if the record is valid.
func ValidateRecord(r *Record) error {
	var ve ValidationError

	checkKeyPart(&ve, "type", r.Type)
	checkKeyPart(&ve, "id", r.ID)

	// Fields: a JSON object when present, since foreign keys are looked up by name.
	if len(r.Fields) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(r.Fields, &obj); err != nil || obj == nil {
			ve.add("fields", "must be a JSON object")
		}
	}

	if r.SoftDeleteLevel < 0 {
		ve.add("soft_delete_level", "must not be negative, got %d", r.SoftDeleteLevel)
	} else if r.SoftDeleted != (r.SoftDeleteLevel > 0) {
		ve.add("soft_deleted", "is %t but level is %d", r.SoftDeleted, r.SoftDeleteLevel)
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// checkKeyPart validates one half of a "type/id" key.
func checkKeyPart(ve *ValidationError, field, v string) {
	switch {
	case strings.TrimSpace(v) == "":
		ve.add(field, "is required")
	case strings.Contains(v, "/"):
		ve.add(field, "must not contain '/'")
	case len(v) > MaxIDLength:
		ve.add(field, "must be %d characters or fewer", MaxIDLength)
	}
}
