package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/tombstone/internal/model"
	"github.com/alfredjeanlab/tombstone/internal/store"
)

// recordColumns is the column list used for SELECT statements on the records table.
const recordColumns = `entity_type, id, tenant_id, fields, soft_deleted, soft_delete_level,
	soft_deleted_at, version, created_at, updated_at`

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateRecord(ctx context.Context, db executor, r *model.Record) error {
	if !r.Key().IsValid() {
		return fmt.Errorf("create record: invalid key %q", r.Key())
	}
	now := nowUTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	r.Version = 1
	r.SoftDeleted = r.SoftDeleteLevel > 0

	_, err := db.ExecContext(ctx, `
		INSERT INTO records (
			entity_type, id, tenant_id, fields, soft_deleted, soft_delete_level,
			soft_deleted_at, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.Type,
		r.ID,
		r.TenantID,
		jsonbBytes(r.Fields),
		r.SoftDeleted,
		r.SoftDeleteLevel,
		nullTimePtr(r.SoftDeletedAt),
		r.Version,
		r.CreatedAt,
		r.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("create record %s: %w", r.Key(), store.ErrExists)
	}
	return err
}

func queryGetRecord(ctx context.Context, db executor, key model.Key, tenantID string) (*model.Record, error) {
	row := db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records
		WHERE entity_type = $1 AND id = $2 AND soft_delete_level = 0
		AND ($3 = '' OR tenant_id = $3)`,
		key.Type, key.ID, tenantID)
	return scanOne(row)
}

func queryLoadByKey(ctx context.Context, db executor, key model.Key) (*model.Record, error) {
	row := db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE entity_type = $1 AND id = $2`,
		key.Type, key.ID)
	return scanOne(row)
}

// queryUpdateFields replaces the business fields. A non-zero rec.Version
// must match the stored version.
func queryUpdateFields(ctx context.Context, db executor, rec *model.Record) error {
	now := nowUTC()
	row := db.QueryRowContext(ctx, `
		UPDATE records SET fields = $1, updated_at = $2, version = version + 1
		WHERE entity_type = $3 AND id = $4 AND ($5 = 0 OR version = $5)
		RETURNING version`,
		jsonbBytes(rec.Fields), now, rec.Type, rec.ID, rec.Version)

	var version int64
	err := row.Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, lerr := queryLoadByKey(ctx, db, rec.Key()); lerr != nil {
			return lerr
		}
		return fmt.Errorf("update %s: %w", rec.Key(), store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", rec.Key(), err)
	}
	rec.Version = version
	rec.UpdatedAt = now
	return nil
}

// queryLoadDependents finds records of rel.Dependent in the principal's
// tenant whose foreign key field holds the principal's id. The containment
// form lets the GIN index on fields serve every relationship.
func queryLoadDependents(ctx context.Context, db executor, principal *model.Record, rel model.Relationship) ([]*model.Record, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records
		WHERE entity_type = $1 AND tenant_id = $2
		AND fields @> jsonb_build_object($3::text, $4::text)
		ORDER BY id`,
		rel.Dependent, principal.TenantID, rel.ForeignKey, principal.ID)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

// queryPage returns one keyset page of records matching filter.
func queryPage(ctx context.Context, db executor, filter model.RecordFilter, after model.Key, limit int) ([]*model.Record, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.Type != "" {
		whereClauses = append(whereClauses, "entity_type = "+nextArg())
		args = append(args, filter.Type)
	}
	if filter.TenantID != "" {
		whereClauses = append(whereClauses, "tenant_id = "+nextArg())
		args = append(args, filter.TenantID)
	}
	switch {
	case filter.Level != nil:
		whereClauses = append(whereClauses, "soft_delete_level = "+nextArg())
		args = append(args, *filter.Level)
	case !filter.IncludeHidden:
		whereClauses = append(whereClauses, "soft_delete_level = 0")
	}
	if !after.IsZero() {
		whereClauses = append(whereClauses, fmt.Sprintf("(entity_type, id) > (%s, %s)", nextArg(), nextArg()))
		args = append(args, after.Type, after.ID)
	}

	query := `SELECT ` + recordColumns + ` FROM records`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY entity_type, id LIMIT " + nextArg()
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return scanAll(rows)
}

// queryCommit applies every change with a version check. The caller owns
// the transaction; any error must roll it back.
func queryCommit(ctx context.Context, db executor, cs *store.ChangeSet) error {
	for _, r := range cs.Updates {
		if err := r.CheckInvariant(); err != nil {
			return err
		}
		res, err := db.ExecContext(ctx, `
			UPDATE records SET soft_deleted = $1, soft_delete_level = $2, soft_deleted_at = $3,
				updated_at = $4, version = version + 1
			WHERE entity_type = $5 AND id = $6 AND version = $7`,
			r.SoftDeleted, r.SoftDeleteLevel, nullTimePtr(r.SoftDeletedAt),
			r.UpdatedAt, r.Type, r.ID, r.Version)
		if err := expectOneRow(res, err, "commit", r.Key()); err != nil {
			return err
		}
		r.Version++
	}
	for _, r := range cs.Deletes {
		res, err := db.ExecContext(ctx, `DELETE FROM records WHERE entity_type = $1 AND id = $2 AND version = $3`,
			r.Type, r.ID, r.Version)
		if err := expectOneRow(res, err, "delete", r.Key()); err != nil {
			return err
		}
	}
	for _, r := range cs.Checks {
		if err := queryCheckVersion(ctx, db, r); err != nil {
			return err
		}
	}
	return nil
}

// queryCheckVersion share-locks a record the operation read but did not
// change and fails if its version moved. The lock holds until the
// transaction ends, so a concurrent writer cannot slip in before commit.
func queryCheckVersion(ctx context.Context, db executor, r *model.Record) error {
	var version int64
	err := db.QueryRowContext(ctx, `SELECT version FROM records
		WHERE entity_type = $1 AND id = $2 FOR SHARE`,
		r.Type, r.ID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return store.NewConflictError("check", r.Key())
	}
	if err != nil {
		return fmt.Errorf("check %s: %w", r.Key(), err)
	}
	if version != r.Version {
		return store.NewConflictError("check", r.Key())
	}
	return nil
}

// expectOneRow turns a version-checked statement that matched nothing into
// a *store.ConflictError.
func expectOneRow(res sql.Result, err error, op string, key model.Key) error {
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: rows affected: %w", op, key, err)
	}
	if n == 0 {
		return store.NewConflictError(op, key)
	}
	return nil
}
