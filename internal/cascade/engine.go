// Package cascade walks the relationship graph for soft delete and reset.
//
// Both walks are breadth-first and work on in-memory copies of the records
// they load. Nothing is written here; the caller commits the episode's
// mutated records in one transaction.
package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/tombstone/internal/model"
	"github.com/alfredjeanlab/tombstone/internal/registry"
)

// DefaultMaxDepth bounds a walk when no explicit limit is configured.
const DefaultMaxDepth = 20

// Loader enumerates the dependents of a record through one relationship.
// store.Store satisfies it.
type Loader interface {
	LoadDependents(ctx context.Context, principal *model.Record, rel model.Relationship) ([]*model.Record, error)
}

// Engine runs cascade walks over a Registry.
type Engine struct {
	registry *registry.Registry
	maxDepth int
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDepth sets the deepest level a walk may assign or clear.
// Values below 1 are ignored.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth >= 1 {
			e.maxDepth = depth
		}
	}
}

// WithClock sets the time source used to stamp mutated records.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New returns an Engine for reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		maxDepth: DefaultMaxDepth,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxDepth returns the configured depth bound.
func (e *Engine) MaxDepth() int {
	return e.maxDepth
}

// SoftDelete hides every root at level 1 and every record reachable from
// them at its BFS depth.
//
// A root that is already soft deleted is rejected with AlreadySoftDeleted
// and skipped. A reached record whose level is already set keeps it and is
// not descended: whatever hid it earlier owns its subtree.
func (e *Engine) SoftDelete(ctx context.Context, loader Loader, roots []*model.Record) (*Episode, error) {
	ep := newEpisode(e.now())

	var frontier []item
	for _, root := range roots {
		root = ep.track(root)
		if root.SoftDeleteLevel != model.LevelVisible {
			ep.reject(model.NewKeyError(model.KindAlreadySoftDeleted, root.Key(),
				"already soft deleted at level %d", root.SoftDeleteLevel))
			continue
		}
		root.MarkSoftDeleted(model.LevelDirect, ep.at)
		ep.mutate(root)
		frontier = append(frontier, item{rec: root, path: &pathNode{key: root.Key()}})
	}

	err := e.walk(ctx, loader, ep, frontier, func(rec *model.Record, depth int) bool {
		if rec.SoftDeleteLevel != model.LevelVisible {
			return false
		}
		rec.MarkSoftDeleted(depth, ep.at)
		return true
	})
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// Reset restores every root that was directly soft deleted (level 1) and
// every record reachable from them whose level equals the depth at which
// the walk reaches it.
//
// A root at any other level is rejected with NotDirectlySoftDeleted. A
// reached record at a different level was hidden independently or through
// another chain; it stays hidden and is not descended.
func (e *Engine) Reset(ctx context.Context, loader Loader, roots []*model.Record) (*Episode, error) {
	ep := newEpisode(e.now())

	var frontier []item
	for _, root := range roots {
		root = ep.track(root)
		if root.SoftDeleteLevel != model.LevelDirect {
			ep.reject(model.NewKeyError(model.KindNotDirectlySoftDeleted, root.Key(),
				"soft delete level is %d, only level 1 can be reset directly", root.SoftDeleteLevel))
			continue
		}
		root.ClearSoftDelete(ep.at)
		ep.mutate(root)
		frontier = append(frontier, item{rec: root, path: &pathNode{key: root.Key()}})
	}

	err := e.walk(ctx, loader, ep, frontier, func(rec *model.Record, depth int) bool {
		if rec.SoftDeleteLevel != depth {
			return false
		}
		rec.ClearSoftDelete(ep.at)
		return true
	})
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// visitFunc applies a walk's rule to a record reached at depth. It reports
// whether the record was changed, which also means the walk descends through it.
type visitFunc func(rec *model.Record, depth int) bool

type item struct {
	rec  *model.Record
	path *pathNode
}

// walk expands frontier level by level. Items in frontier are at depth 1.
func (e *Engine) walk(ctx context.Context, loader Loader, ep *Episode, frontier []item, visit visitFunc) error {
	for depth := 2; len(frontier) > 0; depth++ {
		var next []item
		for _, it := range frontier {
			for _, rel := range e.registry.Dependents(it.rec.Type) {
				if err := ctx.Err(); err != nil {
					return err
				}
				deps, err := loader.LoadDependents(ctx, it.rec, rel)
				if err != nil {
					return fmt.Errorf("load %s dependents of %s: %w", rel.Dependent, it.rec.Key(), err)
				}
				for _, dep := range deps {
					// A record whose foreign key names itself is already
					// handled as its own principal.
					if dep.Key() == it.rec.Key() {
						continue
					}
					if it.path.contains(dep.Key()) {
						return model.NewKeyError(model.KindCascadeCycleDetected, dep.Key(),
							"record is its own ancestor: %s", it.path.push(dep.Key()))
					}
					dep = ep.track(dep)
					ep.visited++
					if !visit(dep, depth) {
						continue
					}
					if depth > e.maxDepth {
						return model.NewKeyError(model.KindCascadeCycleDetected, dep.Key(),
							"cascade exceeded max depth %d", e.maxDepth)
					}
					ep.mutate(dep)
					next = append(next, item{rec: dep, path: it.path.push(dep.Key())})
				}
			}
		}
		if depth > ep.depth && len(next) > 0 {
			ep.depth = depth
		}
		frontier = next
	}
	return nil
}
