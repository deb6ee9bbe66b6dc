package softdelete

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/tombstone/internal/events"
	"github.com/alfredjeanlab/tombstone/internal/model"
	"github.com/alfredjeanlab/tombstone/internal/registry"
	"github.com/alfredjeanlab/tombstone/internal/store"
	"github.com/alfredjeanlab/tombstone/internal/store/memory"
	"github.com/alfredjeanlab/tombstone/internal/tenancy"
)

var fixedNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []events.RecordsChanged
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event.(events.RecordsChanged))
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// recordingArchiver captures archived records.
type recordingArchiver struct {
	records   []*model.Record
	batches   []string
	discarded []string
	err       error
}

func (a *recordingArchiver) Archive(_ context.Context, batch string, recs []*model.Record) ([]string, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.batches = append(a.batches, batch)
	a.records = append(a.records, recs...)
	return []string{"archive/" + batch + ".jsonl"}, nil
}

func (a *recordingArchiver) Discard(_ context.Context, objects []string) error {
	a.discarded = append(a.discarded, objects...)
	return nil
}

// flakyStore fails the next conflicts commits with a conflict on the first
// changed key.
type flakyStore struct {
	store.Store
	conflicts int
	commits   int
	// race, when set, runs inside the first commit before it is applied.
	race func(ctx context.Context, tx store.Store) error
}

func (f *flakyStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.RunInTransaction(ctx, func(tx store.Store) error {
		return fn(&flakyTx{Store: tx, parent: f})
	})
}

type flakyTx struct {
	store.Store
	parent *flakyStore
}

func (t *flakyTx) Commit(ctx context.Context, cs *store.ChangeSet) error {
	t.parent.commits++
	if race := t.parent.race; race != nil {
		t.parent.race = nil
		if err := race(ctx, t.Store); err != nil {
			return err
		}
	}
	if t.parent.conflicts > 0 {
		t.parent.conflicts--
		return store.NewConflictError("commit", cs.Keys()[0])
	}
	return t.Store.Commit(ctx, cs)
}

// failingStore fails every transaction with err.
type failingStore struct {
	store.Store
	err error
}

func (f *failingStore) RunInTransaction(context.Context, func(tx store.Store) error) error {
	return f.err
}

type fixture struct {
	store *memory.Store
	svc   *Service
	pub   *recordingPublisher
}

func companyRegistry() *registry.Registry {
	return registry.MustNew(
		model.Relationship{Principal: "company", Dependent: "quote", ForeignKey: "company_id"},
		model.Relationship{Principal: "quote", Dependent: "line_item", ForeignKey: "quote_id"},
		model.Relationship{Principal: "folder", Dependent: "folder", ForeignKey: "parent_id"},
	)
}

func newFixture(t *testing.T, opts Options, extra ...Option) *fixture {
	t.Helper()
	st := memory.NewWithClock(func() time.Time { return fixedNow })
	pub := &recordingPublisher{}
	extra = append([]Option{WithPublisher(pub), WithClock(func() time.Time { return fixedNow })}, extra...)
	return &fixture{store: st, svc: New(st, companyRegistry(), opts, extra...), pub: pub}
}

func (f *fixture) put(t *testing.T, tenant, typ, id string, kv ...string) {
	t.Helper()
	fields := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	data, _ := json.Marshal(fields)
	if err := f.store.CreateRecord(context.Background(), &model.Record{Type: typ, ID: id, TenantID: tenant, Fields: data}); err != nil {
		t.Fatalf("create %s/%s: %v", typ, id, err)
	}
}

// seed creates company XYZ with quotes XYZ-1 and XYZ-2, and a line item on XYZ-2.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	f.put(t, "", "company", "XYZ")
	f.put(t, "", "quote", "XYZ-1", "company_id", "XYZ")
	f.put(t, "", "quote", "XYZ-2", "company_id", "XYZ")
	f.put(t, "", "line_item", "L1", "quote_id", "XYZ-2")
}

func (f *fixture) level(t *testing.T, typ, id string) int {
	t.Helper()
	r, err := f.store.LoadByKey(context.Background(), model.NewKey(typ, id))
	if err != nil {
		t.Fatalf("load %s/%s: %v", typ, id, err)
	}
	return r.SoftDeleteLevel
}

// checkInvariant asserts soft_deleted == (level > 0) for every record.
func (f *fixture) checkInvariant(t *testing.T) {
	t.Helper()
	for r, err := range f.store.QueryAll(context.Background(), model.RecordFilter{IncludeHidden: true}) {
		if err != nil {
			t.Fatal(err)
		}
		if err := r.CheckInvariant(); err != nil {
			t.Error(err)
		}
	}
}

var (
	xyz   = model.NewKey("company", "XYZ")
	xyz1  = model.NewKey("quote", "XYZ-1")
	xyz2  = model.NewKey("quote", "XYZ-2")
	line1 = model.NewKey("line_item", "L1")
)

func TestSoftDelete_Cascade(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.seed(t)

	res := f.svc.SoftDelete(context.Background(), xyz)
	if !res.OK() {
		t.Fatalf("unexpected errors: %v", res.Err())
	}
	if fmt.Sprint(res.Affected) != fmt.Sprint([]model.Key{xyz, xyz1, xyz2, line1}) {
		t.Errorf("Affected = %v", res.Affected)
	}
	for _, tc := range []struct {
		key  model.Key
		want int
	}{{xyz, 1}, {xyz1, 2}, {xyz2, 2}, {line1, 3}} {
		if got := f.level(t, tc.key.Type, tc.key.ID); got != tc.want {
			t.Errorf("%s level = %d, want %d", tc.key, got, tc.want)
		}
	}
	f.checkInvariant(t)

	if len(f.pub.events) != 1 || f.pub.topics[0] != events.TopicSoftDeleted {
		t.Fatalf("expected one soft_deleted event, got %v", f.pub.topics)
	}
	if ev := f.pub.events[0]; len(ev.Keys) != 1 || ev.Keys[0] != xyz || len(ev.Affected) != 4 || !ev.At.Equal(fixedNow) {
		t.Errorf("unexpected event %+v", ev)
	}

	// Ordinary reads no longer see the hidden records.
	if _, err := f.store.GetRecord(context.Background(), xyz2, ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetRecord on hidden record: got %v, want ErrNotFound", err)
	}
}

func TestIndependencePreservation(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.put(t, "", "company", "XYZ")
	f.put(t, "", "quote", "XYZ-1", "company_id", "XYZ")
	f.put(t, "", "quote", "XYZ-2", "company_id", "XYZ")
	ctx := context.Background()

	steps := []struct {
		name string
		run  func() model.Result
		want map[model.Key]int
	}{
		{"delete quote XYZ-1", func() model.Result { return f.svc.SoftDelete(ctx, xyz1) }, map[model.Key]int{xyz: 0, xyz1: 1, xyz2: 0}},
		{"delete company XYZ", func() model.Result { return f.svc.SoftDelete(ctx, xyz) }, map[model.Key]int{xyz: 1, xyz1: 1, xyz2: 2}},
		{"reset company XYZ", func() model.Result { return f.svc.ResetSoftDelete(ctx, xyz) }, map[model.Key]int{xyz: 0, xyz1: 1, xyz2: 0}},
	}
	for _, step := range steps {
		if res := step.run(); !res.OK() {
			t.Fatalf("%s: %v", step.name, res.Err())
		}
		for k, want := range step.want {
			if got := f.level(t, k.Type, k.ID); got != want {
				t.Errorf("after %s: %s level = %d, want %d", step.name, k, got, want)
			}
		}
		f.checkInvariant(t)
	}
}

func TestSoftDelete_IdempotenceGuard(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.seed(t)
	ctx := context.Background()

	if res := f.svc.SoftDelete(ctx, xyz); !res.OK() {
		t.Fatal(res.Err())
	}
	before, _ := f.store.LoadByKey(ctx, xyz2)

	for _, k := range []model.Key{xyz, xyz2, line1} {
		res := f.svc.SoftDelete(ctx, k)
		if len(res.Errors) != 1 || res.Errors[0].Kind != model.KindAlreadySoftDeleted || res.Errors[0].Key != k {
			t.Errorf("SoftDelete(%s) errors = %v, want AlreadySoftDeleted", k, res.Errors)
		}
		if len(res.Affected) != 0 {
			t.Errorf("SoftDelete(%s) affected %v", k, res.Affected)
		}
	}

	after, _ := f.store.LoadByKey(ctx, xyz2)
	if after.Version != before.Version || after.SoftDeleteLevel != 2 {
		t.Errorf("repeated delete changed the record: %+v", after)
	}
	if len(f.pub.events) != 1 {
		t.Errorf("rejected operations published events: %v", f.pub.topics)
	}
}

func TestResetSoftDelete_Gate(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.seed(t)
	ctx := context.Background()
	f.svc.SoftDelete(ctx, xyz)

	for _, tc := range []struct {
		key  model.Key
		want model.ErrorKind
	}{
		{xyz2, model.KindNotDirectlySoftDeleted},
		{line1, model.KindNotDirectlySoftDeleted},
		{model.NewKey("company", "nope"), model.KindEntityNotFound},
	} {
		res := f.svc.ResetSoftDelete(ctx, tc.key)
		if res.FirstError() == nil || res.FirstError().Kind != tc.want {
			t.Errorf("ResetSoftDelete(%s) = %v, want %s", tc.key, res.Errors, tc.want)
		}
		if !errors.Is(res.Err(), tc.want.Sentinel()) {
			t.Errorf("Err() should match %s sentinel", tc.want)
		}
	}
	if got := f.level(t, "quote", "XYZ-2"); got != 2 {
		t.Errorf("XYZ-2 level = %d, want 2", got)
	}

	f.put(t, "", "company", "ABC")
	if res := f.svc.ResetSoftDelete(ctx, model.NewKey("company", "ABC")); !res.HasKind(model.KindNotDirectlySoftDeleted) {
		t.Errorf("reset of a visible record: %v", res.Errors)
	}
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.seed(t)
	f.put(t, "", "company", "ABC")
	f.put(t, "", "quote", "ABC-1", "company_id", "ABC")
	ctx := context.Background()

	snapshot := func() map[model.Key]int {
		out := map[model.Key]int{}
		for r, err := range f.store.QueryAll(ctx, model.RecordFilter{IncludeHidden: true}) {
			if err != nil {
				t.Fatal(err)
			}
			out[r.Key()] = r.SoftDeleteLevel
		}
		return out
	}
	before := snapshot()

	del := f.svc.SoftDelete(ctx, xyz)
	reset := f.svc.ResetSoftDelete(ctx, xyz)
	if !del.OK() || !reset.OK() {
		t.Fatalf("delete=%v reset=%v", del.Err(), reset.Err())
	}
	if fmt.Sprint(del.Affected) != fmt.Sprint(reset.Affected) {
		t.Errorf("reset affected %v, delete affected %v", reset.Affected, del.Affected)
	}
	if fmt.Sprint(snapshot()) != fmt.Sprint(before) {
		t.Errorf("levels after round trip = %v, want %v", snapshot(), before)
	}
	if f.pub.topics[1] != events.TopicRestored {
		t.Errorf("second event topic = %q", f.pub.topics[1])
	}
}

func TestSoftDelete_CycleGuard(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.put(t, "", "folder", "a", "parent_id", "c")
	f.put(t, "", "folder", "b", "parent_id", "a")
	f.put(t, "", "folder", "c", "parent_id", "b")

	res := f.svc.SoftDelete(context.Background(), model.NewKey("folder", "a"))
	if !res.HasKind(model.KindCascadeCycleDetected) {
		t.Fatalf("expected CascadeCycleDetected, got %v", res.Errors)
	}
	if len(res.Affected) != 0 {
		t.Errorf("cycle committed %v", res.Affected)
	}
	for _, id := range []string{"a", "b", "c"} {
		if got := f.level(t, "folder", id); got != 0 {
			t.Errorf("folder %s level = %d, want 0", id, got)
		}
	}
	if len(f.pub.events) != 0 {
		t.Error("failed operation published an event")
	}
}

func TestSoftDelete_MaxDepth(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxDepth = 3
	f := newFixture(t, opts)
	f.put(t, "", "folder", "f1")
	f.put(t, "", "folder", "f2", "parent_id", "f1")
	f.put(t, "", "folder", "f3", "parent_id", "f2")
	f.put(t, "", "folder", "f4", "parent_id", "f3")

	res := f.svc.SoftDelete(context.Background(), model.NewKey("folder", "f1"))
	if !res.HasKind(model.KindCascadeCycleDetected) {
		t.Fatalf("expected CascadeCycleDetected past max depth, got %v", res.Errors)
	}
	if got := f.level(t, "folder", "f1"); got != 0 {
		t.Errorf("f1 level = %d, want 0", got)
	}
}

func TestHardDeleteIfSoftDeleted_Guard(t *testing.T) {
	arch := &recordingArchiver{}
	f := newFixture(t, DefaultOptions(), WithArchiver(arch))
	f.seed(t)
	ctx := context.Background()

	res := f.svc.HardDeleteIfSoftDeleted(ctx, xyz1)
	if !res.HasKind(model.KindNotSoftDeleted) {
		t.Fatalf("expected NotSoftDeleted, got %v", res.Errors)
	}
	if _, err := f.store.LoadByKey(ctx, xyz1); err != nil {
		t.Fatalf("visible record was removed: %v", err)
	}
	if len(arch.records) != 0 {
		t.Error("rejected purge was archived")
	}

	f.svc.SoftDelete(ctx, xyz)
	res = f.svc.HardDeleteIfSoftDeleted(ctx, xyz2, line1)
	if !res.OK() {
		t.Fatal(res.Err())
	}
	if fmt.Sprint(res.Affected) != fmt.Sprint([]model.Key{xyz2, line1}) {
		t.Errorf("Affected = %v", res.Affected)
	}
	for _, k := range []model.Key{xyz2, line1} {
		if _, err := f.store.LoadByKey(ctx, k); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("%s still present: %v", k, err)
		}
	}
	// No cascade: the company and its other quote remain.
	if f.store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", f.store.Len())
	}
	if len(arch.records) != 2 || len(arch.batches) != 1 {
		t.Errorf("archived %d records in %d batches, want 2 in 1", len(arch.records), len(arch.batches))
	}
	if len(arch.discarded) != 0 {
		t.Errorf("committed purge discarded %v", arch.discarded)
	}
	if f.pub.topics[len(f.pub.topics)-1] != events.TopicPurged {
		t.Errorf("last topic = %q", f.pub.topics[len(f.pub.topics)-1])
	}
}

func TestHardDeleteIfSoftDeleted_ArchiveFailureAborts(t *testing.T) {
	f := newFixture(t, DefaultOptions(), WithArchiver(&recordingArchiver{err: errors.New("bucket gone")}))
	f.seed(t)
	ctx := context.Background()
	f.svc.SoftDelete(ctx, xyz1)

	res := f.svc.HardDeleteIfSoftDeleted(ctx, xyz1)
	if !res.HasKind(model.KindInternal) {
		t.Fatalf("expected Internal, got %v", res.Errors)
	}
	if _, err := f.store.LoadByKey(ctx, xyz1); err != nil {
		t.Errorf("record deleted despite archive failure: %v", err)
	}
}

func TestEntityNotFound_AbortsBatch(t *testing.T) {
	opts := DefaultOptions()
	opts.StopOnFirstError = false
	f := newFixture(t, opts)
	f.seed(t)

	missing := model.NewKey("quote", "missing")
	res := f.svc.SoftDelete(context.Background(), xyz1, missing)
	if len(res.Errors) != 1 || res.Errors[0].Kind != model.KindEntityNotFound || res.Errors[0].Key != missing {
		t.Fatalf("errors = %v", res.Errors)
	}
	if len(res.Affected) != 0 || f.level(t, "quote", "XYZ-1") != 0 {
		t.Error("batch with a missing key committed")
	}

	if res := f.svc.SoftDelete(context.Background(), model.Key{Type: "quote"}); !res.HasKind(model.KindEntityNotFound) {
		t.Errorf("invalid key: %v", res.Errors)
	}
}

func TestStopOnFirstError(t *testing.T) {
	for _, tc := range []struct {
		name         string
		stop         bool
		wantAffected int
		wantErrors   int
	}{
		{"abort", true, 0, 1},
		{"continue", false, 2, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.StopOnFirstError = tc.stop
			f := newFixture(t, opts)
			f.seed(t)
			f.put(t, "", "company", "ABC")
			ctx := context.Background()
			f.svc.SoftDelete(ctx, xyz1)
			f.svc.SoftDelete(ctx, line1)

			// XYZ-1 and L1 are already hidden; XYZ-2 and ABC are not.
			res := f.svc.SoftDelete(ctx, xyz1, xyz2, line1, model.NewKey("company", "ABC"))
			if len(res.Affected) != tc.wantAffected || len(res.Errors) != tc.wantErrors {
				t.Fatalf("affected=%v errors=%v", res.Affected, res.Errors)
			}
			if res.Errors[0].Key != xyz1 {
				t.Errorf("first error key = %s, want %s", res.Errors[0].Key, xyz1)
			}
			wantLevel := 0
			if !tc.stop {
				wantLevel = 1
			}
			if got := f.level(t, "quote", "XYZ-2"); got != wantLevel {
				t.Errorf("XYZ-2 level = %d, want %d", got, wantLevel)
			}
			f.checkInvariant(t)
		})
	}
}

func TestConcurrencyConflict_Retried(t *testing.T) {
	for _, tc := range []struct {
		name      string
		conflicts int
		retries   int
		wantOK    bool
		commits   int
	}{
		{"succeeds after retry", 2, 2, true, 3},
		{"retries exhausted", 3, 2, false, 3},
		{"no retries", 1, 0, false, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mem := memory.New()
			flaky := &flakyStore{Store: mem, conflicts: tc.conflicts}
			opts := DefaultOptions()
			opts.ConflictRetries = tc.retries
			svc := New(flaky, companyRegistry(), opts)
			if err := mem.CreateRecord(context.Background(), &model.Record{Type: "company", ID: "XYZ"}); err != nil {
				t.Fatal(err)
			}

			res := svc.SoftDelete(context.Background(), xyz)
			if res.OK() != tc.wantOK {
				t.Fatalf("OK() = %t, errors %v", res.OK(), res.Errors)
			}
			if !tc.wantOK {
				if !res.HasKind(model.KindConcurrencyConflict) {
					t.Fatalf("expected ConcurrencyConflict, got %v", res.Errors)
				}
				if res.Errors[0].Key != xyz {
					t.Errorf("conflict key = %q, want %s", res.Errors[0].Key, xyz)
				}
			}
			if flaky.commits != tc.commits {
				t.Errorf("commits = %d, want %d", flaky.commits, tc.commits)
			}
			r, _ := mem.LoadByKey(context.Background(), xyz)
			if r.SoftDeleted != tc.wantOK {
				t.Errorf("soft_deleted = %t, want %t", r.SoftDeleted, tc.wantOK)
			}
		})
	}
}

func TestConcurrencyConflict_SkippedRecordChanged(t *testing.T) {
	mem := memory.New()
	ctx := context.Background()
	for _, r := range []*model.Record{
		{Type: "company", ID: "XYZ"},
		{Type: "quote", ID: "XYZ-1", Fields: json.RawMessage(`{"company_id":"XYZ"}`)},
	} {
		if err := mem.CreateRecord(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	svc := New(mem, companyRegistry(), DefaultOptions())
	if res := svc.SoftDelete(ctx, xyz1); !res.OK() {
		t.Fatal(res.Err())
	}

	// XYZ-1 is skipped by the walk at level 1, then reset by another writer
	// before the company's delete commits.
	flaky := &flakyStore{Store: mem, race: func(ctx context.Context, tx store.Store) error {
		q, err := tx.LoadByKey(ctx, xyz1)
		if err != nil {
			return err
		}
		q.ClearSoftDelete(fixedNow)
		return tx.Commit(ctx, &store.ChangeSet{Updates: []*model.Record{q}})
	}}
	opts := DefaultOptions()
	opts.ConflictRetries = 0
	res := New(flaky, companyRegistry(), opts).SoftDelete(ctx, xyz)

	if !res.HasKind(model.KindConcurrencyConflict) || len(res.Affected) != 0 {
		t.Fatalf("affected=%v errors=%v, want ConcurrencyConflict", res.Affected, res.Errors)
	}
	if res.Errors[0].Key != xyz1 {
		t.Errorf("conflict key = %s, want %s", res.Errors[0].Key, xyz1)
	}
	if r, _ := mem.LoadByKey(ctx, xyz); r.SoftDeleted {
		t.Error("company hidden over a stale read of its quote")
	}
}

func TestInternalError_HidesDetails(t *testing.T) {
	svc := New(&failingStore{Store: memory.New(), err: errors.New("pq: password authentication failed")}, companyRegistry(), DefaultOptions())

	res := svc.SoftDelete(context.Background(), xyz)
	if !res.HasKind(model.KindInternal) {
		t.Fatalf("expected Internal, got %v", res.Errors)
	}
	if msg := res.Errors[0].Message; msg != "internal error" {
		t.Errorf("message = %q, want generic message", msg)
	}
}

func TestHardDeleteIfSoftDeleted_ArchivesOnceAcrossRetries(t *testing.T) {
	for _, tc := range []struct {
		name          string
		conflicts     int
		wantOK        bool
		wantDiscarded bool
	}{
		{"committed after retries", 2, true, false},
		{"retries exhausted", 3, false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mem := memory.New()
			ctx := context.Background()
			if err := mem.CreateRecord(ctx, &model.Record{Type: "quote", ID: "XYZ-2", SoftDeleteLevel: 1}); err != nil {
				t.Fatal(err)
			}
			arch := &recordingArchiver{}
			flaky := &flakyStore{Store: mem, conflicts: tc.conflicts}
			svc := New(flaky, companyRegistry(), DefaultOptions(), WithArchiver(arch))

			res := svc.HardDeleteIfSoftDeleted(ctx, xyz2)
			if res.OK() != tc.wantOK {
				t.Fatalf("OK() = %t, errors %v", res.OK(), res.Errors)
			}
			if flaky.commits != 3 {
				t.Errorf("commits = %d, want 3", flaky.commits)
			}
			if len(arch.batches) != 1 {
				t.Errorf("archive calls = %d, want 1", len(arch.batches))
			}
			if got := len(arch.discarded) > 0; got != tc.wantDiscarded {
				t.Errorf("discarded = %v, want discard %t", arch.discarded, tc.wantDiscarded)
			}
			_, err := mem.LoadByKey(ctx, xyz2)
			if deleted := errors.Is(err, store.ErrNotFound); deleted != tc.wantOK {
				t.Errorf("deleted = %t, want %t", deleted, tc.wantOK)
			}
		})
	}
}

func TestTenantScope(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.put(t, "acme", "company", "XYZ")
	f.put(t, "acme", "quote", "XYZ-1", "company_id", "XYZ")
	f.put(t, "globex", "quote", "G-1", "company_id", "XYZ")
	f.put(t, "globex", "company", "G")

	acme := tenancy.WithTenant(context.Background(), "acme")
	globex := tenancy.WithTenant(context.Background(), "globex")

	if res := f.svc.SoftDelete(globex, xyz); !res.HasKind(model.KindEntityNotFound) {
		t.Fatalf("cross-tenant delete: %v", res.Errors)
	}
	res := f.svc.SoftDelete(acme, xyz)
	if !res.OK() || len(res.Affected) != 2 {
		t.Fatalf("affected=%v errors=%v", res.Affected, res.Errors)
	}
	if got := f.level(t, "quote", "G-1"); got != 0 {
		t.Errorf("cascade crossed tenants: G-1 level = %d", got)
	}
	if f.pub.events[0].TenantID != "acme" {
		t.Errorf("event tenant = %q", f.pub.events[0].TenantID)
	}
	f.svc.SoftDelete(globex, model.NewKey("company", "G"))

	count := func(ctx context.Context) int {
		n := 0
		for _, err := range f.svc.ListSoftDeleted(ctx, "company") {
			if err != nil {
				t.Fatal(err)
			}
			n++
		}
		return n
	}
	if n := count(acme); n != 1 {
		t.Errorf("acme trash = %d, want 1", n)
	}
	if n := count(context.Background()); n != 2 {
		t.Errorf("unscoped trash = %d, want 2", n)
	}
	if res := f.svc.HardDeleteIfSoftDeleted(globex, xyz); !res.HasKind(model.KindEntityNotFound) {
		t.Errorf("cross-tenant purge: %v", res.Errors)
	}
}

func TestListSoftDeleted(t *testing.T) {
	opts := DefaultOptions()
	opts.PageSize = 2
	f := newFixture(t, opts)
	ctx := context.Background()
	for i := range 5 {
		f.put(t, "", "company", fmt.Sprintf("c%d", i))
		f.put(t, "", "quote", fmt.Sprintf("q%d", i), "company_id", fmt.Sprintf("c%d", i))
	}
	f.svc.SoftDelete(ctx, model.NewKey("company", "c0"), model.NewKey("company", "c2"), model.NewKey("company", "c4"))
	f.svc.SoftDelete(ctx, model.NewKey("quote", "q1"))

	list := func(typ string) []string {
		var ids []string
		for r, err := range f.svc.ListSoftDeleted(ctx, typ) {
			if err != nil {
				t.Fatal(err)
			}
			if r.SoftDeleteLevel != model.LevelDirect {
				t.Errorf("%s listed at level %d", r.Key(), r.SoftDeleteLevel)
			}
			ids = append(ids, r.ID)
		}
		return ids
	}

	if got := list("company"); fmt.Sprint(got) != "[c0 c2 c4]" {
		t.Errorf("company trash = %v", got)
	}
	// Cascaded quotes (level 2) are not listed; the direct one is.
	if got := list("quote"); fmt.Sprint(got) != "[q1]" {
		t.Errorf("quote trash = %v", got)
	}

	// The sequence is restartable and reflects the store at each range.
	seq := f.svc.ListSoftDeleted(ctx, "company")
	first := 0
	for range seq {
		first++
	}
	f.svc.ResetSoftDelete(ctx, model.NewKey("company", "c2"))
	second := 0
	for range seq {
		second++
	}
	if first != 3 || second != 2 {
		t.Errorf("first range = %d, second range = %d", first, second)
	}
	if got := list("invoice"); len(got) != 0 {
		t.Errorf("unknown type listed %v", got)
	}
}

func TestPublishFailureKeepsCommit(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.pub.err = errors.New("nats down")
	f.seed(t)

	res := f.svc.SoftDelete(context.Background(), xyz1)
	if !res.OK() {
		t.Fatal(res.Err())
	}
	if got := f.level(t, "quote", "XYZ-1"); got != 1 {
		t.Errorf("XYZ-1 level = %d, want 1", got)
	}
}

func TestEmptyAndDuplicateKeys(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.seed(t)

	res := f.svc.SoftDelete(context.Background())
	if !res.OK() || res.Affected == nil || res.Errors == nil {
		t.Errorf("empty call should return a normalized OK result: %+v", res)
	}

	res = f.svc.SoftDelete(context.Background(), xyz1, xyz1)
	if !res.OK() || len(res.Affected) != 1 {
		t.Errorf("duplicate keys: affected=%v errors=%v", res.Affected, res.Errors)
	}
}

func TestOptionsNormalized(t *testing.T) {
	svc := New(memory.New(), companyRegistry(), Options{MaxDepth: -1, ConflictRetries: -3})
	got := svc.Options()
	if got.MaxDepth != DefaultOptions().MaxDepth || got.ConflictRetries != 0 || got.PageSize != DefaultPageSize {
		t.Errorf("normalized options = %+v", got)
	}
	if got.StopOnFirstError {
		t.Error("zero Options should not stop on first error")
	}
}
