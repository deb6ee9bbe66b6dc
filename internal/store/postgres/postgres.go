// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"iter"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/tombstone/internal/model"
	"github.com/alfredjeanlab/tombstone/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already configured database without running migrations.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateRecord(ctx context.Context, rec *model.Record) error {
	return queryCreateRecord(ctx, s.db, rec)
}

func (s *PostgresStore) GetRecord(ctx context.Context, key model.Key, tenantID string) (*model.Record, error) {
	return queryGetRecord(ctx, s.db, key, tenantID)
}

func (s *PostgresStore) UpdateFields(ctx context.Context, rec *model.Record) error {
	return queryUpdateFields(ctx, s.db, rec)
}

func (s *PostgresStore) LoadByKey(ctx context.Context, key model.Key) (*model.Record, error) {
	return queryLoadByKey(ctx, s.db, key)
}

func (s *PostgresStore) LoadDependents(ctx context.Context, principal *model.Record, rel model.Relationship) ([]*model.Record, error) {
	return queryLoadDependents(ctx, s.db, principal, rel)
}

func (s *PostgresStore) QueryAll(ctx context.Context, filter model.RecordFilter) iter.Seq2[*model.Record, error] {
	return store.Paginate(ctx, filter.EffectivePageSize(), func(ctx context.Context, after model.Key, limit int) ([]*model.Record, error) {
		return queryPage(ctx, s.db, filter, after, limit)
	})
}

// Commit applies cs in its own transaction.
func (s *PostgresStore) Commit(ctx context.Context, cs *store.ChangeSet) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.Commit(ctx, cs)
	})
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateRecord(ctx context.Context, rec *model.Record) error {
	return queryCreateRecord(ctx, s.tx, rec)
}

func (s *txStore) GetRecord(ctx context.Context, key model.Key, tenantID string) (*model.Record, error) {
	return queryGetRecord(ctx, s.tx, key, tenantID)
}

func (s *txStore) UpdateFields(ctx context.Context, rec *model.Record) error {
	return queryUpdateFields(ctx, s.tx, rec)
}

func (s *txStore) LoadByKey(ctx context.Context, key model.Key) (*model.Record, error) {
	return queryLoadByKey(ctx, s.tx, key)
}

func (s *txStore) LoadDependents(ctx context.Context, principal *model.Record, rel model.Relationship) ([]*model.Record, error) {
	return queryLoadDependents(ctx, s.tx, principal, rel)
}

func (s *txStore) QueryAll(ctx context.Context, filter model.RecordFilter) iter.Seq2[*model.Record, error] {
	return store.Paginate(ctx, filter.EffectivePageSize(), func(ctx context.Context, after model.Key, limit int) ([]*model.Record, error) {
		return queryPage(ctx, s.tx, filter, after, limit)
	})
}

func (s *txStore) Commit(ctx context.Context, cs *store.ChangeSet) error {
	return queryCommit(ctx, s.tx, cs)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
