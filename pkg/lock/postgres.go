package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const pollInterval = 50 * time.Millisecond

// PostgresProvider takes session-level advisory locks, so every process sharing the database
// shares the lock space. A held lock pins one pooled connection until it is released.
type PostgresProvider struct {
	pool   *pgxpool.Pool
	cfg    Config
	logger *zap.Logger
}

var _ Provider = (*PostgresProvider)(nil)

// NewPostgresProvider creates a PostgresProvider.
func NewPostgresProvider(pool *pgxpool.Pool, cfg Config, logger *zap.Logger) *PostgresProvider {
	return &PostgresProvider{pool: pool, cfg: cfg, logger: logger.Named("lock")}
}

// LockID maps (region, key) to the advisory lock id.
func LockID(region, key string) int64 {
	return int64(xxhash.Sum64([]byte(region + "/" + key)))
}

func (p *PostgresProvider) Acquire(ctx context.Context, region, key string) (Lock, error) {
	id := LockID(region, key)

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for lock %s/%s: %w", region, key, err)
	}

	deadline := time.Now().Add(p.cfg.WaitTimeout)
	for {
		var locked bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, id).Scan(&locked); err != nil {
			conn.Release()
			return nil, fmt.Errorf("failed to take lock %s/%s: %w", region, key, err)
		}
		if locked {
			break
		}
		if !time.Now().Before(deadline) {
			conn.Release()
			return nil, timeoutError(region, key, p.cfg.WaitTimeout)
		}

		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			conn.Release()
			return nil, ctx.Err()
		}
	}

	l := &pgLock{conn: conn, id: id, name: region + "/" + key, logger: p.logger}
	if p.cfg.Lease > 0 {
		l.lease = time.AfterFunc(p.cfg.Lease, func() {
			p.logger.Warn("Lock lease expired, releasing", zap.String("lock", l.name))
			_ = l.release(context.Background())
		})
	}
	return l, nil
}

type pgLock struct {
	conn   *pgxpool.Conn
	id     int64
	name   string
	lease  *time.Timer
	logger *zap.Logger
	once   sync.Once
	err    error
}

func (l *pgLock) Release(ctx context.Context) error {
	if l.lease != nil {
		l.lease.Stop()
	}
	return l.release(ctx)
}

func (l *pgLock) release(ctx context.Context) error {
	l.once.Do(func() {
		var unlocked bool
		if err := l.conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, l.id).Scan(&unlocked); err != nil {
			// The session may still hold the lock; drop the connection so the server frees it.
			l.err = fmt.Errorf("failed to release lock %s: %w", l.name, err)
			_ = l.conn.Conn().Close(context.Background())
		} else if !unlocked {
			l.logger.Warn("Lock was not held at release", zap.String("lock", l.name))
		}
		l.conn.Release()
	})
	return l.err
}
