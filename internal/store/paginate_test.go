package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// sliceFetcher serves pages from a sorted slice and counts fetches.
type sliceFetcher struct {
	records []*model.Record
	calls   int
	afters  []model.Key
}

func (f *sliceFetcher) fetch(_ context.Context, after model.Key, limit int) ([]*model.Record, error) {
	f.calls++
	f.afters = append(f.afters, after)
	var out []*model.Record
	for _, r := range f.records {
		if !after.IsZero() && !KeyLess(after, r.Key()) {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func records(n int) []*model.Record {
	out := make([]*model.Record, n)
	for i := range out {
		out[i] = &model.Record{Type: "quote", ID: fmt.Sprintf("q%02d", i)}
	}
	return out
}

func TestPaginate(t *testing.T) {
	for _, tc := range []struct {
		n, pageSize, wantCalls int
	}{
		{0, 3, 1},
		{2, 3, 1},
		{3, 3, 2},
		{7, 3, 3},
	} {
		f := &sliceFetcher{records: records(tc.n)}
		got := 0
		for _, err := range Paginate(context.Background(), tc.pageSize, f.fetch) {
			if err != nil {
				t.Fatal(err)
			}
			got++
		}
		if got != tc.n || f.calls != tc.wantCalls {
			t.Errorf("n=%d page=%d: got %d records in %d calls, want %d calls", tc.n, tc.pageSize, got, f.calls, tc.wantCalls)
		}
	}
}

func TestPaginate_LazyAndRestartable(t *testing.T) {
	f := &sliceFetcher{records: records(10)}
	seq := Paginate(context.Background(), 4, f.fetch)

	for r := range seq {
		if r.ID == "q01" {
			break
		}
	}
	if f.calls != 1 {
		t.Errorf("breaking early fetched %d pages, want 1", f.calls)
	}

	f.calls = 0
	f.afters = nil
	n := 0
	for range seq {
		n++
	}
	if n != 10 || f.calls != 3 {
		t.Errorf("second range: %d records, %d calls", n, f.calls)
	}
	if !f.afters[0].IsZero() || f.afters[1] != model.NewKey("quote", "q03") {
		t.Errorf("keyset cursors = %v", f.afters)
	}
}

func TestPaginate_Errors(t *testing.T) {
	boom := errors.New("boom")
	failing := func(context.Context, model.Key, int) ([]*model.Record, error) { return nil, boom }
	for _, err := range Paginate(context.Background(), 0, failing) {
		if !errors.Is(err, boom) {
			t.Fatalf("got %v, want boom", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &sliceFetcher{records: records(3)}
	for _, err := range Paginate(ctx, 2, f.fetch) {
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v, want context.Canceled", err)
		}
	}
	if f.calls != 0 {
		t.Error("fetched with a canceled context")
	}
}

func TestKeyLess(t *testing.T) {
	a, b, c := model.NewKey("company", "z"), model.NewKey("quote", "a"), model.NewKey("quote", "b")
	if !KeyLess(a, b) || !KeyLess(b, c) || KeyLess(c, b) || KeyLess(b, b) {
		t.Error("KeyLess ordering wrong")
	}
}

func TestChangeSet(t *testing.T) {
	var nilSet *ChangeSet
	if nilSet.Len() != 0 {
		t.Error("nil ChangeSet should be empty")
	}
	cs := &ChangeSet{
		Updates: []*model.Record{{Type: "a", ID: "1"}},
		Deletes: []*model.Record{{Type: "b", ID: "2"}},
	}
	if cs.Len() != 2 || fmt.Sprint(cs.Keys()) != "[a/1 b/2]" {
		t.Errorf("Len=%d Keys=%v", cs.Len(), cs.Keys())
	}
}
