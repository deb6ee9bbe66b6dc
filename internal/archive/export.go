package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// header is the first JSONL record written by WriteJSONL.
type header struct {
	Version     string    `json:"version"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	RecordCount int       `json:"record_count"`
}

// line wraps a single JSONL line with a type discriminator.
type line struct {
	Type string        `json:"type"`
	Data *model.Record `json:"data"`
}

// WriteJSONL writes a header followed by recs, sorted by key, as JSONL to w.
func WriteJSONL(w io.Writer, recs []*model.Record, at time.Time) error {
	sorted := make([]*model.Record, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key().String() < sorted[j].Key().String()
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:     "1",
		Type:        "header",
		Timestamp:   at.UTC(),
		RecordCount: len(sorted),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, r := range sorted {
		if err := enc.Encode(line{Type: "record", Data: r}); err != nil {
			return fmt.Errorf("encode record %s: %w", r.Key(), err)
		}
	}
	return nil
}
