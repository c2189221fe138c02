package database

import (
	"cmp"
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgxpool connection pool.
type DB struct {
	*pgxpool.Pool
}

// Querier is the subset of pgx shared by pools, connections and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Executor is a Querier that can open a transaction (or a savepoint inside one).
type Executor interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	_ Executor = (*pgxpool.Pool)(nil)
	_ Executor = (pgx.Tx)(nil)
)

// Config holds database connection configuration. Zero durations and sizes select the defaults.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// ApplicationName is reported in pg_stat_activity so advisory lock holders can be traced.
	ApplicationName string
}

// NewConnection opens the pool and pings the server. Connection failures carry
// apperrors.ErrBackendUnavailable.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cmp.Or(cfg.MaxConnections, 25)
	poolConfig.MaxConnLifetime = cmp.Or(cfg.MaxConnLifetime, time.Hour)
	poolConfig.MaxConnIdleTime = cmp.Or(cfg.MaxConnIdleTime, 30*time.Minute)
	poolConfig.ConnConfig.RuntimeParams["application_name"] = cmp.Or(cfg.ApplicationName, "factgraph")

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, Wrap(err, "create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, Wrap(err, "ping database")
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
