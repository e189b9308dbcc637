// Package postgres implements the user and event repositories on PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/domain/events"
	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
	"github.com/Togather-Foundation/eventdesk/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultQueryTimeout = 5 * time.Second

// Store owns the pool and hands out repositories bound to it.
type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	users   *UserRepository
	events  *EventRepository
}

// Connect opens a pool against databaseURL and pings it.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func NewStore(pool *pgxpool.Pool, queryTimeout time.Duration) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres store: pool is nil")
	}
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	base := repo{pool: pool, timeout: queryTimeout}
	return &Store{
		pool:    pool,
		timeout: queryTimeout,
		users:   &UserRepository{repo: base},
		events:  &EventRepository{repo: base},
	}, nil
}

func (s *Store) Users() users.Repository   { return s.users }
func (s *Store) Events() events.Repository { return s.events }
func (s *Store) Pool() *pgxpool.Pool       { return s.pool }

func (s *Store) PoolStats() metrics.PoolStats {
	stat := s.pool.Stat()
	return metrics.PoolStats{
		Open:  int(stat.TotalConns()),
		InUse: int(stat.AcquiredConns()),
		Idle:  int(stat.IdleConns()),
		Max:   int(stat.MaxConns()),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// repo carries the pool and per-statement timeout shared by repositories.
type repo struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func (r repo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// inTx runs fn inside a transaction, committing on success.
func (r repo) inTx(ctx context.Context, fn func(q queryer) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
