package model

import "fmt"

// Relationship is a cascade edge from a principal entity type to a dependent
// entity type. Dependents reference their principal through ForeignKey, a
// field of the dependent's Fields holding the principal's ID.
type Relationship struct {
	Name       string `json:"name,omitempty" toml:"name"`
	Principal  string `json:"principal" toml:"principal"`
	Dependent  string `json:"dependent" toml:"dependent"`
	ForeignKey string `json:"foreign_key" toml:"foreign_key"`
}

// String returns a compact "principal -> dependent.foreign_key" form.
func (r Relationship) String() string {
	return fmt.Sprintf("%s -> %s.%s", r.Principal, r.Dependent, r.ForeignKey)
}

// IsRecursive reports whether the edge links a type to itself.
func (r Relationship) IsRecursive() bool {
	return r.Principal == r.Dependent
}
