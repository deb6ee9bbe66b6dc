package store

import (
	"context"
	"iter"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// PageFunc fetches up to limit records ordered by (type, id) whose key sorts
// after the given key. The zero key means the first page.
type PageFunc func(ctx context.Context, after model.Key, limit int) ([]*model.Record, error)

// Paginate turns a PageFunc into a lazy, restartable sequence using keyset
// pagination. Every range over the result starts again from the first page,
// and a page is only fetched once the previous one has been consumed.
func Paginate(ctx context.Context, pageSize int, fetch PageFunc) iter.Seq2[*model.Record, error] {
	if pageSize < 1 {
		pageSize = model.DefaultPageSize
	}
	return func(yield func(*model.Record, error) bool) {
		var after model.Key
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			recs, err := fetch(ctx, after, pageSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, r := range recs {
				if !yield(r, nil) {
					return
				}
			}
			if len(recs) < pageSize {
				return
			}
			after = recs[len(recs)-1].Key()
		}
	}
}

// KeyLess orders keys by type, then id.
func KeyLess(a, b model.Key) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	return a.ID < b.ID
}
