// Package memory implements store.Store in process memory. It keeps the same
// optimistic versioning as the Postgres store, so it serves as the dev-mode
// backend and as the fixture for engine and service tests.
package memory

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/tombstone/internal/model"
	"github.com/alfredjeanlab/tombstone/internal/store"
)

// Store is an in-memory store.Store.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{state: newState(func() time.Time { return time.Now().UTC() })}
}

// NewWithClock returns an empty Store that stamps records with now.
func NewWithClock(now func() time.Time) *Store {
	return &Store{state: newState(now)}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) CreateRecord(_ context.Context, rec *model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.create(rec)
}

func (s *Store) GetRecord(_ context.Context, key model.Key, tenantID string) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getVisible(key, tenantID)
}

func (s *Store) UpdateFields(_ context.Context, rec *model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.updateFields(rec)
}

func (s *Store) LoadByKey(_ context.Context, key model.Key) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.load(key)
}

func (s *Store) LoadDependents(_ context.Context, principal *model.Record, rel model.Relationship) ([]*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.dependents(principal, rel), nil
}

// QueryAll pages through matching records in key order. Each page is read
// under the lock; the lock is not held while the caller consumes it.
func (s *Store) QueryAll(ctx context.Context, filter model.RecordFilter) iter.Seq2[*model.Record, error] {
	return store.Paginate(ctx, filter.EffectivePageSize(), func(_ context.Context, after model.Key, limit int) ([]*model.Record, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.state.page(filter, after, limit), nil
	})
}

func (s *Store) Commit(_ context.Context, cs *store.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.commit(cs)
}

// RunInTransaction runs fn against a private copy of the data and swaps it in
// when fn succeeds. The store is write-locked for the duration of fn, so fn
// must only use the tx it is given.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txStore{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// Len returns the number of stored records, hidden ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.records)
}

// txStore implements store.Store over a private state copy.
type txStore struct {
	state *state
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (t *txStore) CreateRecord(_ context.Context, rec *model.Record) error {
	return t.state.create(rec)
}

func (t *txStore) GetRecord(_ context.Context, key model.Key, tenantID string) (*model.Record, error) {
	return t.state.getVisible(key, tenantID)
}

func (t *txStore) UpdateFields(_ context.Context, rec *model.Record) error {
	return t.state.updateFields(rec)
}

func (t *txStore) LoadByKey(_ context.Context, key model.Key) (*model.Record, error) {
	return t.state.load(key)
}

func (t *txStore) LoadDependents(_ context.Context, principal *model.Record, rel model.Relationship) ([]*model.Record, error) {
	return t.state.dependents(principal, rel), nil
}

func (t *txStore) QueryAll(ctx context.Context, filter model.RecordFilter) iter.Seq2[*model.Record, error] {
	return store.Paginate(ctx, filter.EffectivePageSize(), func(_ context.Context, after model.Key, limit int) ([]*model.Record, error) {
		return t.state.page(filter, after, limit), nil
	})
}

func (t *txStore) Commit(_ context.Context, cs *store.ChangeSet) error {
	return t.state.commit(cs)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (t *txStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

// Close is a no-op for a transaction store.
func (t *txStore) Close() error { return nil }

// state is the unlocked data behind Store and txStore.
type state struct {
	records map[model.Key]*model.Record
	now     func() time.Time
}

func newState(now func() time.Time) *state {
	return &state{records: make(map[model.Key]*model.Record), now: now}
}

func (st *state) clone() *state {
	c := &state{records: make(map[model.Key]*model.Record, len(st.records)), now: st.now}
	for k, r := range st.records {
		c.records[k] = r.Clone()
	}
	return c
}

func (st *state) create(rec *model.Record) error {
	if !rec.Key().IsValid() {
		return fmt.Errorf("create record: invalid key %q", rec.Key())
	}
	if _, ok := st.records[rec.Key()]; ok {
		return fmt.Errorf("create record %s: %w", rec.Key(), store.ErrExists)
	}
	now := st.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	rec.Version = 1
	rec.SoftDeleted = rec.SoftDeleteLevel > 0
	st.records[rec.Key()] = rec.Clone()
	return nil
}

func (st *state) getVisible(key model.Key, tenantID string) (*model.Record, error) {
	r, ok := st.records[key]
	if !ok || !r.IsVisible() || (tenantID != "" && r.TenantID != tenantID) {
		return nil, store.ErrNotFound
	}
	return r.Clone(), nil
}

func (st *state) load(key model.Key) (*model.Record, error) {
	r, ok := st.records[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r.Clone(), nil
}

func (st *state) updateFields(rec *model.Record) error {
	cur, ok := st.records[rec.Key()]
	if !ok {
		return store.ErrNotFound
	}
	if rec.Version != 0 && rec.Version != cur.Version {
		return fmt.Errorf("update %s: %w", rec.Key(), store.ErrConflict)
	}
	cur.Fields = append([]byte(nil), rec.Fields...)
	cur.UpdatedAt = st.now()
	cur.Version++
	rec.Version = cur.Version
	rec.UpdatedAt = cur.UpdatedAt
	return nil
}

func (st *state) dependents(principal *model.Record, rel model.Relationship) []*model.Record {
	var out []*model.Record
	for _, r := range st.records {
		if r.Type != rel.Dependent || r.TenantID != principal.TenantID {
			continue
		}
		if fk, ok := r.FieldString(rel.ForeignKey); ok && fk == principal.ID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *state) page(filter model.RecordFilter, after model.Key, limit int) []*model.Record {
	var matched []*model.Record
	for k, r := range st.records {
		if !after.IsZero() && !store.KeyLess(after, k) {
			continue
		}
		if filter.Matches(r) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return store.KeyLess(matched[i].Key(), matched[j].Key()) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]*model.Record, len(matched))
	for i, r := range matched {
		out[i] = r.Clone()
	}
	return out
}

// commit validates every change before applying any of them.
func (st *state) commit(cs *store.ChangeSet) error {
	for _, r := range cs.Updates {
		if err := st.checkVersion(r); err != nil {
			return err
		}
		if err := r.CheckInvariant(); err != nil {
			return err
		}
	}
	for _, r := range cs.Deletes {
		if err := st.checkVersion(r); err != nil {
			return err
		}
	}
	for _, r := range cs.Checks {
		if err := st.checkVersion(r); err != nil {
			return err
		}
	}

	for _, r := range cs.Updates {
		cur := st.records[r.Key()]
		cur.SoftDeleted = r.SoftDeleted
		cur.SoftDeleteLevel = r.SoftDeleteLevel
		cur.SoftDeletedAt = r.Clone().SoftDeletedAt
		cur.UpdatedAt = r.UpdatedAt
		cur.Version++
		r.Version = cur.Version
	}
	for _, r := range cs.Deletes {
		delete(st.records, r.Key())
	}
	return nil
}

func (st *state) checkVersion(r *model.Record) error {
	cur, ok := st.records[r.Key()]
	if !ok || cur.Version != r.Version {
		return store.NewConflictError("commit", r.Key())
	}
	return nil
}
