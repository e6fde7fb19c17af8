// Package store owns all SQL. It exposes typed operations for the import and
// export pipelines; callers never build queries themselves.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store runs queries against a pool or, via WithTx, a transaction.
type Store struct {
	pool *pgxpool.Pool
	db   DBTX
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// WithTx returns a Store whose queries run on the given transaction.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{pool: s.pool, db: tx}
}

// Begin starts a transaction on the underlying pool.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates all tables if they do not exist yet. Intended for
// development setups; production schemas are managed externally.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// quoteIdentifier safely quotes a table or column name for SQL.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SavepointName returns the savepoint identifier for a row index.
func SavepointName(i int) string {
	return fmt.Sprintf("sp_%d", i)
}

// Savepoint creates a savepoint on the transaction.
func Savepoint(ctx context.Context, tx pgx.Tx, name string) error {
	if _, err := tx.Exec(ctx, "SAVEPOINT "+quoteIdentifier(name)); err != nil {
		return fmt.Errorf("create savepoint %s: %w", name, err)
	}
	return nil
}

// RollbackToSavepoint restores the transaction to a savepoint after a failed
// statement, keeping the transaction usable.
func RollbackToSavepoint(ctx context.Context, tx pgx.Tx, name string) error {
	if _, err := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+quoteIdentifier(name)); err != nil {
		return fmt.Errorf("rollback to savepoint %s: %w", name, err)
	}
	return nil
}

// ReleaseSavepoint frees a savepoint after the protected statement succeeded.
func ReleaseSavepoint(ctx context.Context, tx pgx.Tx, name string) error {
	if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+quoteIdentifier(name)); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}
