package lock

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"stripe-fire-sync/internal/domain"
)

type postgresLocker struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewPostgres returns a Locker backed by session-level advisory locks, so
// passes started by different processes against the same database exclude
// each other.
func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Locker {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresLocker{pool: pool, logger: logger}
}

func (l *postgresLocker) Acquire(ctx context.Context, collection string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	k := key(collection)
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, k).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, domain.ErrPassInProgress
	}
	l.logger.Printf("lock: acquired collection=%s", collection)

	return func() {
		// The pass context may already be cancelled; unlock regardless.
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, k); err != nil {
			l.logger.Printf("lock: unlock collection=%s error=%v", collection, err)
			// A connection holding a stale session lock must not return to the pool.
			conn.Conn().Close(context.Background())
		}
		conn.Release()
		l.logger.Printf("lock: released collection=%s", collection)
	}, nil
}
