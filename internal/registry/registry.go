// Package registry holds the static table of cascade relationships between
// entity types. A Registry is built once at startup and is read-only
// afterwards, so it is shared across goroutines without locking.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// Registry construction errors.
var (
	ErrInvalidRelationship   = errors.New("invalid relationship")
	ErrDuplicateRelationship = errors.New("duplicate relationship")
	ErrCyclicRelationships   = errors.New("cyclic relationships")
)

// Registry maps a principal entity type to its ordered dependent relationships.
type Registry struct {
	relationships []model.Relationship
	byPrincipal   map[string][]model.Relationship
}

// New validates rels and returns a Registry holding them in the given order.
//
// Empty type names or foreign keys, duplicate edges, and cycles between
// distinct types are rejected. An edge from a type to itself is allowed for
// recursive hierarchies; cycles in the data it connects are caught by the
// traversal.
func New(rels ...model.Relationship) (*Registry, error) {
	r := &Registry{
		relationships: make([]model.Relationship, 0, len(rels)),
		byPrincipal:   make(map[string][]model.Relationship),
	}
	seen := make(map[model.Relationship]bool, len(rels))
	for _, rel := range rels {
		if err := validate(rel); err != nil {
			return nil, err
		}
		edge := model.Relationship{Principal: rel.Principal, Dependent: rel.Dependent, ForeignKey: rel.ForeignKey}
		if seen[edge] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRelationship, rel)
		}
		seen[edge] = true
		r.relationships = append(r.relationships, rel)
		r.byPrincipal[rel.Principal] = append(r.byPrincipal[rel.Principal], rel)
	}
	if cycle := r.findCycle(); cycle != nil {
		return nil, fmt.Errorf("%w: %s", ErrCyclicRelationships, strings.Join(cycle, " -> "))
	}
	return r, nil
}

// MustNew is like New but panics on error. Intended for tests and static tables.
func MustNew(rels ...model.Relationship) *Registry {
	r, err := New(rels...)
	if err != nil {
		panic(err)
	}
	return r
}

func validate(rel model.Relationship) error {
	switch {
	case rel.Principal == "":
		return fmt.Errorf("%w: principal type is required", ErrInvalidRelationship)
	case rel.Dependent == "":
		return fmt.Errorf("%w: dependent type is required for %q", ErrInvalidRelationship, rel.Principal)
	case rel.ForeignKey == "":
		return fmt.Errorf("%w: foreign key is required for %s -> %s", ErrInvalidRelationship, rel.Principal, rel.Dependent)
	case strings.Contains(rel.Principal, "/") || strings.Contains(rel.Dependent, "/"):
		return fmt.Errorf("%w: type names must not contain '/': %s", ErrInvalidRelationship, rel)
	}
	return nil
}

// Dependents returns the relationships to cascade through from entityType,
// in registration order. An unregistered type has no dependents.
func (r *Registry) Dependents(entityType string) []model.Relationship {
	if r == nil {
		return nil
	}
	return r.byPrincipal[entityType]
}

// HasDependents reports whether entityType has any cascade relationships.
func (r *Registry) HasDependents(entityType string) bool {
	return len(r.Dependents(entityType)) > 0
}

// All returns a copy of every registered relationship in registration order.
func (r *Registry) All() []model.Relationship {
	if r == nil {
		return nil
	}
	out := make([]model.Relationship, len(r.relationships))
	copy(out, r.relationships)
	return out
}

// Types returns every entity type named by a relationship, sorted.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}
	set := make(map[string]bool)
	for _, rel := range r.relationships {
		set[rel.Principal] = true
		set[rel.Dependent] = true
	}
	types := make([]string, 0, len(set))
	for t := range set {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// findCycle returns the type path of a cycle between distinct types, or nil.
// Self-edges are skipped.
func (r *Registry) findCycle() []string {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int)
	var stack []string

	var visit func(t string) []string
	visit = func(t string) []string {
		state[t] = onStack
		stack = append(stack, t)
		for _, rel := range r.byPrincipal[t] {
			if rel.IsRecursive() {
				continue
			}
			switch state[rel.Dependent] {
			case onStack:
				for i, s := range stack {
					if s == rel.Dependent {
						cycle := append([]string(nil), stack[i:]...)
						return append(cycle, rel.Dependent)
					}
				}
			case unvisited:
				if c := visit(rel.Dependent); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[t] = done
		return nil
	}

	for _, rel := range r.relationships {
		if state[rel.Principal] == unvisited {
			if c := visit(rel.Principal); c != nil {
				return c
			}
		}
	}
	return nil
}
