package document

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stripe-fire-sync/internal/domain"
)

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

func (r *postgresRepo) ListAll(ctx context.Context, collection string) ([]domain.Document, error) {
	const q = `
SELECT collection, id, fields, version, updated_at
FROM documents
WHERE collection = $1
ORDER BY id
`
	rows, err := r.pool.Query(ctx, q, collection)
	if err != nil {
		r.logger.Printf("document repo: list collection=%s error=%v", collection, err)
		return nil, err
	}
	defer rows.Close()

	var result []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.Collection, &d.ID, &d.Fields, &d.Version, &d.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		r.logger.Printf("document repo: list rows collection=%s error=%v", collection, err)
		return nil, err
	}
	r.logger.Printf("document repo: list collection=%s count=%d", collection, len(result))
	return result, nil
}

// Upsert inserts the document or merges its fields into the stored one, leaving
// fields absent from doc untouched.
func (r *postgresRepo) Upsert(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	const q = `
INSERT INTO documents (collection, id, fields)
VALUES ($1, COALESCE(NULLIF($2, ''), gen_random_uuid()::text), COALESCE($3::jsonb, '{}'::jsonb))
ON CONFLICT (collection, id) DO UPDATE SET
    fields = documents.fields || EXCLUDED.fields,
    version = documents.version + 1,
    updated_at = now()
RETURNING collection, id, fields, version, updated_at
`
	var res domain.Document
	err := r.pool.QueryRow(ctx, q, doc.Collection, doc.ID, doc.Fields).
		Scan(&res.Collection, &res.ID, &res.Fields, &res.Version, &res.UpdatedAt)
	if err != nil {
		r.logger.Printf("document repo: upsert collection=%s id=%s error=%v", doc.Collection, doc.ID, err)
		return nil, err
	}
	r.logger.Printf("document repo: upserted collection=%s id=%s version=%d", res.Collection, res.ID, res.Version)
	return &res, nil
}

func (r *postgresRepo) BeginBatch(collection string) Batch {
	return &postgresBatch{repo: r, collection: collection}
}

type postgresBatch struct {
	opList
	repo       *postgresRepo
	collection string
}

const (
	updateFieldsSQL = `
UPDATE documents
SET fields = fields || $3::jsonb, version = version + 1, updated_at = now()
WHERE collection = $1 AND id = $2 AND ($4::bigint = 0 OR version = $4::bigint)
`
	deleteFieldSQL = `
UPDATE documents
SET fields = fields - $3::text, version = version + 1, updated_at = now()
WHERE collection = $1 AND id = $2 AND ($4::bigint = 0 OR version = $4::bigint)
`
)

// Commit sends every queued write in one transaction. A write that matches no
// row (document gone or version moved on) rolls the whole batch back.
func (b *postgresBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}

	tx, err := b.repo.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	queued := &pgx.Batch{}
	for _, op := range b.ops {
		switch op.kind {
		case opUpdate:
			queued.Queue(updateFieldsSQL, b.collection, op.id, op.fields, op.version)
		case opDeleteField:
			queued.Queue(deleteFieldSQL, b.collection, op.id, op.field, op.version)
		}
	}

	results := tx.SendBatch(ctx, queued)
	for _, op := range b.ops {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			b.repo.logger.Printf("document repo: batch collection=%s id=%s error=%v", b.collection, op.id, err)
			return fmt.Errorf("batch write %s/%s: %w", b.collection, op.id, err)
		}
		if tag.RowsAffected() == 0 {
			results.Close()
			b.repo.logger.Printf("document repo: batch collection=%s id=%s version=%d conflict", b.collection, op.id, op.version)
			return fmt.Errorf("batch write %s/%s: %w", b.collection, op.id, domain.ErrWriteConflict)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	b.repo.logger.Printf("document repo: batch committed collection=%s writes=%d", b.collection, len(b.ops))
	return nil
}
