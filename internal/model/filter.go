package model

// DefaultPageSize is used when a RecordFilter leaves PageSize unset.
const DefaultPageSize = 100

// RecordFilter holds criteria for querying records of one type.
type RecordFilter struct {
	Type          string `json:"type"`
	TenantID      string `json:"tenant_id,omitempty"`      // empty = no tenant rule
	IncludeHidden bool   `json:"include_hidden,omitempty"` // bypass the soft-delete filter
	Level         *int   `json:"level,omitempty"`          // exact soft-delete level; implies IncludeHidden when > 0
	PageSize      int    `json:"page_size,omitempty"`
}

// EffectivePageSize returns PageSize, or DefaultPageSize when unset.
func (f RecordFilter) EffectivePageSize() int {
	if f.PageSize > 0 {
		return f.PageSize
	}
	return DefaultPageSize
}

// Matches reports whether r satisfies the filter.
func (f RecordFilter) Matches(r *Record) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.TenantID != "" && r.TenantID != f.TenantID {
		return false
	}
	if f.Level != nil {
		return r.SoftDeleteLevel == *f.Level
	}
	if !f.IncludeHidden && !r.IsVisible() {
		return false
	}
	return true
}

// LevelFilter returns a pointer to level, for RecordFilter.Level.
func LevelFilter(level int) *int {
	return &level
}
