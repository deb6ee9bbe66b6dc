package cascade

import (
	"strings"
	"time"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// Episode is the transient state of one walk: the working copy of every
// record it reached, the records it changed, and the roots it rejected.
type Episode struct {
	at       time.Time
	records  map[model.Key]*model.Record
	order    []model.Key
	changed  map[model.Key]bool
	mutated  []*model.Record
	rejected []*model.KeyError
	visited  int
	depth    int
}

func newEpisode(at time.Time) *Episode {
	return &Episode{
		at:      at,
		records: make(map[model.Key]*model.Record),
		changed: make(map[model.Key]bool),
		depth:   1,
	}
}

// track returns the episode's working copy for rec's key, adopting rec when
// the key is new. A record reached twice is therefore mutated once.
func (ep *Episode) track(rec *model.Record) *model.Record {
	if cur, ok := ep.records[rec.Key()]; ok {
		return cur
	}
	ep.records[rec.Key()] = rec
	ep.order = append(ep.order, rec.Key())
	return rec
}

func (ep *Episode) mutate(rec *model.Record) {
	ep.changed[rec.Key()] = true
	ep.mutated = append(ep.mutated, rec)
}

func (ep *Episode) reject(err *model.KeyError) {
	ep.rejected = append(ep.rejected, err)
}

// Mutated returns the changed records, roots first, then in BFS order.
func (ep *Episode) Mutated() []*model.Record {
	return ep.mutated
}

// Unchanged returns the records the walk read and left alone, in the order
// it first reached them. Their versions are what the walk's decisions
// rested on.
func (ep *Episode) Unchanged() []*model.Record {
	var out []*model.Record
	for _, k := range ep.order {
		if !ep.changed[k] {
			out = append(out, ep.records[k])
		}
	}
	return out
}

// Keys returns the keys of the changed records in Mutated order.
func (ep *Episode) Keys() []model.Key {
	keys := make([]model.Key, len(ep.mutated))
	for i, r := range ep.mutated {
		keys[i] = r.Key()
	}
	return keys
}

// Rejected returns the roots refused by the walk's entry rule.
func (ep *Episode) Rejected() []*model.KeyError {
	return ep.rejected
}

// At returns the timestamp stamped on every mutated record.
func (ep *Episode) At() time.Time {
	return ep.at
}

// Visited returns how many dependent edges the walk followed.
func (ep *Episode) Visited() int {
	return ep.visited
}

// Depth returns the deepest level the walk changed.
func (ep *Episode) Depth() int {
	return ep.depth
}

// pathNode is one link of the ancestor chain of a frontier item.
type pathNode struct {
	key    model.Key
	parent *pathNode
}

func (p *pathNode) push(key model.Key) *pathNode {
	return &pathNode{key: key, parent: p}
}

func (p *pathNode) contains(key model.Key) bool {
	for n := p; n != nil; n = n.parent {
		if n.key == key {
			return true
		}
	}
	return false
}

// String renders the chain root first.
func (p *pathNode) String() string {
	var keys []string
	for n := p; n != nil; n = n.parent {
		keys = append(keys, n.key.String())
	}
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}
	return strings.Join(keys, " -> ")
}
