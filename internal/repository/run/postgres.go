package run

import (
	"context"
	"io"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"stripe-fire-sync/internal/domain"
)

const maxListLimit = 100

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) Record(ctx context.Context, run domain.SyncRun) error {
	const q = `
INSERT INTO sync_runs (
    id, collection, variant, status, failed_phase, error,
    created, updated, unchanged, skipped, stale, deactivated, cleanup_failures,
    started_at, finished_at
)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13, $14, $15)
`
	_, err := r.pool.Exec(ctx, q,
		run.ID, run.Collection, run.Variant, run.Status, run.FailedPhase, run.Error,
		run.Created, run.Updated, run.Unchanged, run.Skipped, run.Stale, run.Deactivated, run.CleanupFailures,
		run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		r.logger.Printf("run repo: record id=%s collection=%s error=%v", run.ID, run.Collection, err)
		return err
	}
	return nil
}

// ListRecent returns the collection's latest runs, newest first.
func (r *postgresRepo) ListRecent(ctx context.Context, collection string, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	const q = `
SELECT id::text, collection, variant, status, COALESCE(failed_phase, ''), COALESCE(error, ''),
       created, updated, unchanged, skipped, stale, deactivated, cleanup_failures,
       started_at, finished_at
FROM sync_runs
WHERE collection = $1
ORDER BY started_at DESC
LIMIT $2
`
	rows, err := r.pool.Query(ctx, q, collection, limit)
	if err != nil {
		r.logger.Printf("run repo: list collection=%s error=%v", collection, err)
		return nil, err
	}
	defer rows.Close()

	result := []domain.SyncRun{}
	for rows.Next() {
		var s domain.SyncRun
		if err := rows.Scan(
			&s.ID, &s.Collection, &s.Variant, &s.Status, &s.FailedPhase, &s.Error,
			&s.Created, &s.Updated, &s.Unchanged, &s.Skipped, &s.Stale, &s.Deactivated, &s.CleanupFailures,
			&s.StartedAt, &s.FinishedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
