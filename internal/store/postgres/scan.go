package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/alfredjeanlab/tombstone/internal/model"
	"github.com/alfredjeanlab/tombstone/internal/store"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanRecord scans a single row into a model.Record.
// The row must contain columns in the order defined by recordColumns.
func scanRecord(row scannable) (*model.Record, error) {
	var r model.Record
	var (
		fields        []byte
		softDeletedAt sql.NullTime
	)

	err := row.Scan(
		&r.Type,
		&r.ID,
		&r.TenantID,
		&fields,
		&r.SoftDeleted,
		&r.SoftDeleteLevel,
		&softDeletedAt,
		&r.Version,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if softDeletedAt.Valid {
		t := softDeletedAt.Time
		r.SoftDeletedAt = &t
	}
	if len(fields) > 0 {
		r.Fields = json.RawMessage(fields)
	}
	return &r, nil
}

// scanOne scans a single-row query, mapping no rows to store.ErrNotFound.
func scanOne(row *sql.Row) (*model.Record, error) {
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return r, err
}

// scanAll scans and closes rows.
func scanAll(rows *sql.Rows) ([]*model.Record, error) {
	defer rows.Close()
	var records []*model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// nullTimePtr converts a *time.Time to a sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
