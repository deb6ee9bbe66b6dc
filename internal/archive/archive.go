// Package archive keeps a copy of records before they are physically
// deleted. Each purge batch writes one JSONL object per entity type.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// DefaultPrefix is the object key prefix used when none is configured.
const DefaultPrefix = "tombstone/purged"

// Destination stores archive objects (S3 or similar).
type Destination interface {
	// Put writes data as the object named key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes the object named key. A missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// Archiver writes purged records to a Destination.
type Archiver struct {
	dest   Destination
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// New returns an Archiver writing under prefix. An empty prefix uses DefaultPrefix.
func New(dest Destination, prefix string, logger *slog.Logger) *Archiver {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		dest:   dest,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Archive writes recs grouped by type under batch and returns the object
// keys written. Object names depend only on batch and type, so archiving a
// batch again overwrites it. It stops at the first failed write.
func (a *Archiver) Archive(ctx context.Context, batch string, recs []*model.Record) ([]string, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	if batch == "" {
		return nil, fmt.Errorf("archive: batch is required")
	}
	at := a.now()

	var types []string
	byType := make(map[string][]*model.Record)
	for _, r := range recs {
		if _, ok := byType[r.Type]; !ok {
			types = append(types, r.Type)
		}
		byType[r.Type] = append(byType[r.Type], r)
	}

	keys := make([]string, 0, len(types))
	for _, typ := range types {
		key := a.objectKey(typ, batch)
		var buf bytes.Buffer
		if err := WriteJSONL(&buf, byType[typ], at); err != nil {
			return keys, err
		}
		if err := a.dest.Put(ctx, key, buf.Bytes()); err != nil {
			return keys, fmt.Errorf("archive %s: %w", key, err)
		}
		a.logger.Info("archived purged records", "object", key, "batch", batch, "type", typ, "count", len(byType[typ]))
		keys = append(keys, key)
	}
	return keys, nil
}

// Discard deletes objects written by Archive. It tries every object and
// returns the first error.
func (a *Archiver) Discard(ctx context.Context, objects []string) error {
	var first error
	for _, key := range objects {
		if err := a.dest.Delete(ctx, key); err != nil {
			if first == nil {
				first = fmt.Errorf("discard %s: %w", key, err)
			}
			continue
		}
		a.logger.Info("discarded archive object", "object", key)
	}
	return first
}

// objectKey returns <prefix>/<type>/<batch>.jsonl.
func (a *Archiver) objectKey(typ, batch string) string {
	return path.Join(a.prefix, typ, batch+".jsonl")
}
