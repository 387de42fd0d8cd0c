// Package txstore provides pooled PostgreSQL connections, transaction
// management with context-carried reentrancy, and advisory-lock
// primitives used by the eventstore and projection engine.
package txstore

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting query
// helpers run identically inside or outside a transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
}

type txKey struct{}

// Store wraps a pooled PostgreSQL connection and threads an active
// transaction through context so nested calls reuse it instead of
// opening a second connection.
type Store struct {
	Pool *pgxpool.Pool
}

// New wraps an already-configured pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

// Querier returns the active transaction from ctx if WithTransaction is
// on the call stack, otherwise the pool itself.
func (s *Store) Querier(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.Pool
}

// Query runs a read against the active transaction or the pool.
func (s *Store) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.Querier(ctx).Query(ctx, sql, args...)
}

// QueryRow runs a single-row read against the active transaction or the pool.
func (s *Store) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.Querier(ctx).QueryRow(ctx, sql, args...)
}

// Exec runs a statement against the active transaction or the pool.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error) {
	return s.Querier(ctx).Exec(ctx, sql, args...)
}

// InTransaction reports whether ctx already carries an active transaction.
func (s *Store) InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(pgx.Tx)
	return ok
}

// WithTransaction runs fn inside a single connection's transaction,
// reusing an already-active transaction found in ctx (reentrancy is the
// caller's responsibility, per spec §4.B). fn's returned error rolls the
// transaction back; a nil error commits.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.InTransaction(ctx) {
		return fn(ctx)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("txstore: begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op if already committed

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("txstore: commit transaction: %w", err)
	}
	return nil
}

// WithSavepoint runs fn inside a savepoint of the active transaction in
// ctx, rolling back only that savepoint on failure. Used by the
// projection engine to isolate one poison event without aborting the
// whole batch (spec §4.D).
func (s *Store) WithSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return fmt.Errorf("txstore: WithSavepoint called outside a transaction")
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("txstore: begin savepoint: %w", err)
	}

	spCtx := context.WithValue(ctx, txKey{}, sp)
	if err := fn(spCtx); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("txstore: commit savepoint: %w", err)
	}
	return nil
}

// TryAdvisoryXactLock attempts a transaction-scoped advisory lock. It
// must be called with an active transaction in ctx; the lock releases
// automatically on commit or rollback, requiring no explicit unlock.
func (s *Store) TryAdvisoryXactLock(ctx context.Context, key int64) (bool, error) {
	var acquired bool
	err := s.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1)", key).Scan(&acquired)
	if err != nil {
		return false, fmt.Errorf("txstore: try advisory lock: %w", err)
	}
	return acquired, nil
}

// AdvisoryXactLock blocks until the transaction-scoped advisory lock is
// acquired. Used by the eventstore to serialize appends for one
// aggregate (spec §4.C step 1); unlike TryAdvisoryXactLock, callers that
// need exclusivity rather than a skip-if-busy check use this.
func (s *Store) AdvisoryXactLock(ctx context.Context, key int64) error {
	_, err := s.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", key)
	if err != nil {
		return fmt.Errorf("txstore: advisory lock: %w", err)
	}
	return nil
}

// HashLockKey derives a stable int64 advisory-lock key from a set of
// string parts (e.g. projection name + instance id).
func HashLockKey(parts ...string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(parts, "\x00")))
	return int64(h.Sum64())
}

// Close closes the underlying pool.
func (s *Store) Close() {
	s.Pool.Close()
}

// Health pings the pool.
func (s *Store) Health(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}
