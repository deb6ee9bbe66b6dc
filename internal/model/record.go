package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Soft-delete levels with a fixed meaning. Levels of two and above record the
// cascade depth at which a record was reached.
const (
	LevelVisible = 0
	LevelDirect  = 1
)

// Record is a soft-deletable row of some entity type.
//
// SoftDeleted and SoftDeleteLevel always move together: a record is hidden
// exactly when its level is above zero. Only the soft-delete service changes
// them; business writes go through Fields.
type Record struct {
	Type            string          `json:"type"`
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id,omitempty"`
	Fields          json.RawMessage `json:"fields,omitempty"`
	SoftDeleted     bool            `json:"soft_deleted"`
	SoftDeleteLevel int             `json:"soft_delete_level"`
	SoftDeletedAt   *time.Time      `json:"soft_deleted_at,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Key returns the record's key.
func (r *Record) Key() Key {
	return Key{Type: r.Type, ID: r.ID}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.Fields != nil {
		c.Fields = append(json.RawMessage(nil), r.Fields...)
	}
	if r.SoftDeletedAt != nil {
		t := *r.SoftDeletedAt
		c.SoftDeletedAt = &t
	}
	return &c
}

// IsVisible reports whether ordinary reads see the record.
func (r *Record) IsVisible() bool {
	return r.SoftDeleteLevel == LevelVisible
}

// MarkSoftDeleted hides the record at the given level.
func (r *Record) MarkSoftDeleted(level int, at time.Time) {
	r.SoftDeleteLevel = level
	r.SoftDeleted = true
	r.SoftDeletedAt = &at
	r.UpdatedAt = at
}

// ClearSoftDelete makes the record visible again.
func (r *Record) ClearSoftDelete(at time.Time) {
	r.SoftDeleteLevel = LevelVisible
	r.SoftDeleted = false
	r.SoftDeletedAt = nil
	r.UpdatedAt = at
}

// CheckInvariant returns an error when the flag and the level disagree or the
// level is negative.
func (r *Record) CheckInvariant() error {
	if r.SoftDeleteLevel < 0 {
		return fmt.Errorf("record %s: negative soft delete level %d", r.Key(), r.SoftDeleteLevel)
	}
	if r.SoftDeleted != (r.SoftDeleteLevel > 0) {
		return fmt.Errorf("record %s: soft_deleted=%t disagrees with level %d", r.Key(), r.SoftDeleted, r.SoftDeleteLevel)
	}
	return nil
}

// FieldString returns the named field from Fields when it holds a string.
func (r *Record) FieldString(name string) (string, bool) {
	if len(r.Fields) == 0 {
		return "", false
	}
	var m map[string]any
	if err := json.Unmarshal(r.Fields, &m); err != nil {
		return "", false
	}
	s, ok := m[name].(string)
	return s, ok
}
