package run

import (
	"context"

	"stripe-fire-sync/internal/domain"
)

// Repository stores the outcome of every sync pass.
type Repository interface {
	Record(ctx context.Context, run domain.SyncRun) error
	ListRecent(ctx context.Context, collection string, limit int) ([]domain.SyncRun, error)
}
