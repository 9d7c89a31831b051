package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"market-pulse/observability"
)

// DBTX is an interface that both pgxpool.Pool and pgx.Tx satisfy.
// This allows Repository methods to work with either a connection pool
// or a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL access for the watchlist and posture history
type Repository struct {
	pool    *pgxpool.Pool
	db      DBTX // The actual executor (pool or transaction)
	metrics *observability.Metrics
	now     func() time.Time
}

// NewRepository creates a new Repository with a PostgreSQL connection pool
// and makes sure the schema exists
func NewRepository(ctx context.Context, connString string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	r := &Repository{
		pool:    pool,
		db:      pool,
		metrics: observability.GetMetrics(),
		now:     time.Now,
	}
	if err := r.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Migrate creates the tables if they do not exist
func (r *Repository) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS watchlist_items (
			id        UUID PRIMARY KEY,
			symbol    TEXT NOT NULL UNIQUE,
			notes     TEXT,
			added_at  TIMESTAMPTZ NOT NULL,
			position  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS watchlist_state (
			id          SMALLINT PRIMARY KEY,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS posture_snapshots (
			id           UUID PRIMARY KEY,
			score        DOUBLE PRECISION NOT NULL,
			label        TEXT NOT NULL,
			breadth      DOUBLE PRECISION NOT NULL,
			dispersion   DOUBLE PRECISION NOT NULL,
			vol_overlay  DOUBLE PRECISION NOT NULL,
			sources      JSONB NOT NULL DEFAULT '{}',
			taken_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posture_snapshots_taken_at ON posture_snapshots (taken_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// WithTx returns a new Repository that uses the given transaction.
// This is useful for running multiple operations atomically.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{pool: r.pool, db: tx, metrics: r.metrics, now: r.now}
}

// BeginTx starts a new transaction and returns a Repository that uses it.
// The caller is responsible for calling Commit() or Rollback() on the transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, *Repository, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, r.WithTx(tx), nil
}

// inTx runs fn inside a transaction, committing on success
func (r *Repository) inTx(ctx context.Context, fn func(*Repository) error) error {
	tx, txRepo, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(txRepo); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Health checks if the database connection is healthy
func (r *Repository) Health(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Pool returns the underlying connection pool for advanced operations.
// This is primarily intended for testing and cleanup operations.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// observe records the duration of a query and counts failures
func (r *Repository) observe(timer *observability.Timer, operation, table string, err error) {
	timer.ObserveDB(operation, table)
	if err != nil {
		r.metrics.RecordDBError(operation, table)
	}
}
