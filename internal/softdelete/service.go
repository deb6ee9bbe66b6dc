// Package softdelete is the public face of cascade soft delete: it loads
// roots, runs the cascade engine, commits the result in one transaction and
// reports a model.Result.
package softdelete

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/tombstone/internal/cascade"
	"github.com/alfredjeanlab/tombstone/internal/events"
	"github.com/alfredjeanlab/tombstone/internal/idgen"
	"github.com/alfredjeanlab/tombstone/internal/model"
	"github.com/alfredjeanlab/tombstone/internal/registry"
	"github.com/alfredjeanlab/tombstone/internal/store"
	"github.com/alfredjeanlab/tombstone/internal/tenancy"
)

// Archiver keeps a copy of records about to be purged.
// archive.Archiver satisfies it.
type Archiver interface {
	// Archive writes recs under batch. Writing the same batch again
	// replaces the earlier objects.
	Archive(ctx context.Context, batch string, recs []*model.Record) ([]string, error)
	// Discard removes objects written by Archive.
	Discard(ctx context.Context, objects []string) error
}

// Service runs soft-delete operations against a store.
type Service struct {
	store     store.Store
	registry  *registry.Registry
	engine    *cascade.Engine
	opts      Options
	publisher events.Publisher
	archiver  Archiver
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithPublisher publishes an event after every committed operation.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithArchiver archives records before HardDeleteIfSoftDeleted removes them.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source for soft-delete timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Service over st using the relationships in reg.
func New(st store.Store, reg *registry.Registry, opts Options, extra ...Option) *Service {
	s := &Service{
		store:     st,
		registry:  reg,
		opts:      opts.normalized(),
		publisher: &events.NoopPublisher{},
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range extra {
		opt(s)
	}
	s.engine = cascade.New(reg, cascade.WithMaxDepth(s.opts.MaxDepth), cascade.WithClock(s.now))
	return s
}

// Registry returns the relationship registry the Service cascades over.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Options returns the effective options.
func (s *Service) Options() Options {
	return s.opts
}

// SoftDelete hides each key at level 1 and cascades to its dependents.
func (s *Service) SoftDelete(ctx context.Context, keys ...model.Key) model.Result {
	return s.execute(ctx, "soft_delete", events.TopicSoftDeleted, keys, s.planSoftDelete)
}

// ResetSoftDelete restores each directly soft-deleted key and the
// dependents its cascade hid.
func (s *Service) ResetSoftDelete(ctx context.Context, keys ...model.Key) model.Result {
	return s.execute(ctx, "reset", events.TopicRestored, keys, s.planReset)
}

// HardDeleteIfSoftDeleted physically removes each key that is soft deleted
// at any level. It does not cascade.
func (s *Service) HardDeleteIfSoftDeleted(ctx context.Context, keys ...model.Key) model.Result {
	p := &purge{svc: s}
	res := s.execute(ctx, "purge", events.TopicPurged, keys, p.plan)
	if len(res.Affected) == 0 {
		p.discard(ctx)
	}
	return res
}

// ListSoftDeleted lists the directly soft-deleted records of entityType,
// page by page as the sequence is consumed. Each range re-queries the store.
func (s *Service) ListSoftDeleted(ctx context.Context, entityType string) iter.Seq2[*model.Record, error] {
	return s.store.QueryAll(ctx, model.RecordFilter{
		Type:     entityType,
		TenantID: tenancy.FromContext(ctx),
		Level:    model.LevelFilter(model.LevelDirect),
		PageSize: s.opts.PageSize,
	})
}

// planFunc turns loaded roots into the changes to commit, plus the roots
// it refused.
type planFunc func(ctx context.Context, tx store.Store, roots []*model.Record) (*store.ChangeSet, []*model.KeyError, error)

// errAborted unwinds a transaction whose errors are already in the result.
var errAborted = errors.New("operation aborted")

func (s *Service) execute(ctx context.Context, op, topic string, keys []model.Key, plan planFunc) model.Result {
	keys = model.DedupeKeys(keys)
	if len(keys) == 0 {
		return model.Result{}.Normalize()
	}

	var res model.Result
	for attempt := 0; ; attempt++ {
		res = s.attempt(ctx, keys, plan)
		if !res.HasKind(model.KindConcurrencyConflict) || attempt >= s.opts.ConflictRetries || ctx.Err() != nil {
			break
		}
		s.logger.Info("retrying after concurrency conflict", "op", op, "attempt", attempt+1, "error", res.FirstError())
	}

	if len(res.Affected) > 0 {
		s.logger.Info("soft delete operation committed", "op", op, "roots", len(keys), "affected", len(res.Affected), "errors", len(res.Errors))
		s.publish(ctx, topic, keys, res.Affected)
	} else if !res.OK() {
		s.logger.Warn("soft delete operation failed", "op", op, "roots", len(keys), "error", res.FirstError())
	}
	return res.Normalize()
}

// attempt runs one try of an operation in a single store transaction.
func (s *Service) attempt(ctx context.Context, keys []model.Key, plan planFunc) model.Result {
	var res model.Result
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		roots, notFound := s.loadRoots(ctx, tx, keys)
		if notFound != nil {
			res.Errors = append(res.Errors, notFound)
			return errAborted
		}

		cs, rejected, err := plan(ctx, tx, roots)
		if err != nil {
			return err
		}
		if len(rejected) > 0 {
			if s.opts.StopOnFirstError {
				res.Errors = append(res.Errors, rejected[0])
				return errAborted
			}
			res.Errors = append(res.Errors, rejected...)
		}
		if cs.Len() == 0 {
			return nil
		}
		if err := tx.Commit(ctx, cs); err != nil {
			return err
		}
		res.Affected = cs.Keys()
		return nil
	})
	if err != nil {
		res.Affected = nil
		if !errors.Is(err, errAborted) {
			res.Errors = append(res.Errors, s.classify(err))
		}
	}
	return res
}

// loadRoots loads every key, bypassing the soft-delete filter. A key that
// does not exist, or belongs to another tenant, aborts the operation.
func (s *Service) loadRoots(ctx context.Context, tx store.Store, keys []model.Key) ([]*model.Record, *model.KeyError) {
	roots := make([]*model.Record, 0, len(keys))
	for _, k := range keys {
		if !k.IsValid() {
			return nil, model.NewKeyError(model.KindEntityNotFound, k, "invalid key")
		}
		rec, err := tx.LoadByKey(ctx, k)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !tenancy.Allows(ctx, rec)) {
			return nil, model.NewKeyError(model.KindEntityNotFound, k, "no such record")
		}
		if err != nil {
			return nil, s.classify(fmt.Errorf("load %s: %w", k, err))
		}
		roots = append(roots, rec)
	}
	return roots, nil
}

func (s *Service) planSoftDelete(ctx context.Context, tx store.Store, roots []*model.Record) (*store.ChangeSet, []*model.KeyError, error) {
	ep, err := s.engine.SoftDelete(ctx, tx, roots)
	if err != nil {
		return nil, nil, err
	}
	return &store.ChangeSet{Updates: ep.Mutated(), Checks: ep.Unchanged()}, ep.Rejected(), nil
}

func (s *Service) planReset(ctx context.Context, tx store.Store, roots []*model.Record) (*store.ChangeSet, []*model.KeyError, error) {
	ep, err := s.engine.Reset(ctx, tx, roots)
	if err != nil {
		return nil, nil, err
	}
	return &store.ChangeSet{Updates: ep.Mutated(), Checks: ep.Unchanged()}, ep.Rejected(), nil
}

// purge carries archive state across the attempts of one
// HardDeleteIfSoftDeleted call. Every attempt archives under the same batch,
// and an attempt that would delete exactly what the previous one archived
// reuses those objects.
type purge struct {
	svc      *Service
	batch    string
	archived map[model.Key]int64
	objects  []string
}

func (p *purge) plan(ctx context.Context, _ store.Store, roots []*model.Record) (*store.ChangeSet, []*model.KeyError, error) {
	cs := &store.ChangeSet{}
	var rejected []*model.KeyError
	for _, r := range roots {
		if r.IsVisible() {
			rejected = append(rejected, model.NewKeyError(model.KindNotSoftDeleted, r.Key(), "record is not soft deleted"))
			continue
		}
		cs.Deletes = append(cs.Deletes, r)
	}
	if len(rejected) > 0 && p.svc.opts.StopOnFirstError {
		return cs, rejected, nil
	}
	if err := p.archive(ctx, cs.Deletes); err != nil {
		return nil, nil, err
	}
	return cs, rejected, nil
}

func (p *purge) archive(ctx context.Context, recs []*model.Record) error {
	if p.svc.archiver == nil || len(recs) == 0 || p.unchanged(recs) {
		return nil
	}
	if p.batch == "" {
		batch, err := idgen.GenerateWithPrefix(p.svc.now().UTC().Format("20060102T150405Z") + "-")
		if err != nil {
			return fmt.Errorf("archive batch id: %w", err)
		}
		p.batch = batch
	}
	p.discard(ctx)
	objects, err := p.svc.archiver.Archive(ctx, p.batch, recs)
	p.objects = objects
	if err != nil {
		return fmt.Errorf("archive before purge: %w", err)
	}
	p.archived = make(map[model.Key]int64, len(recs))
	for _, r := range recs {
		p.archived[r.Key()] = r.Version
	}
	return nil
}

// unchanged reports whether recs are the records, at the versions, the
// previous attempt archived.
func (p *purge) unchanged(recs []*model.Record) bool {
	if p.archived == nil || len(p.archived) != len(recs) {
		return false
	}
	for _, r := range recs {
		if v, ok := p.archived[r.Key()]; !ok || v != r.Version {
			return false
		}
	}
	return true
}

// discard removes archived objects whose records were not deleted.
func (p *purge) discard(ctx context.Context) {
	if len(p.objects) == 0 {
		return
	}
	if err := p.svc.archiver.Discard(ctx, p.objects); err != nil {
		p.svc.logger.Warn("failed to discard archive objects", "batch", p.batch, "objects", p.objects, "error", err)
	}
	p.objects = nil
	p.archived = nil
}

// publish emits the event for a committed operation. Failures are logged
// and never undo the commit.
func (s *Service) publish(ctx context.Context, topic string, keys, affected []model.Key) {
	ev := events.RecordsChanged{
		Keys:     keys,
		Affected: affected,
		TenantID: tenancy.FromContext(ctx),
		At:       s.now(),
	}
	if err := s.publisher.Publish(ctx, topic, ev); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "affected", len(affected), "error", err)
	}
}

// classify maps an error from the engine or store to a KeyError. Internal
// failures are logged; the KeyError carries only a generic message.
func (s *Service) classify(err error) *model.KeyError {
	if ke := model.AsKeyError(err); ke != nil {
		return ke
	}
	if errors.Is(err, store.ErrConflict) {
		key, _ := store.ConflictKey(err)
		return model.NewKeyError(model.KindConcurrencyConflict, key, "record changed since it was loaded")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return model.NewKeyError(model.KindInternal, model.Key{}, "%v", err)
	}
	s.logger.Error("soft delete operation error", "error", err)
	return model.NewKeyError(model.KindInternal, model.Key{}, "internal error")
}
