package run

import (
	"context"
	"sort"
	"sync"

	"stripe-fire-sync/internal/domain"
)

// Memory keeps runs in process, for CLI passes without a history table and tests.
type Memory struct {
	mu   sync.Mutex
	runs []domain.SyncRun
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, run domain.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) ListRecent(_ context.Context, collection string, limit int) ([]domain.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	out := []domain.SyncRun{}
	for _, r := range m.runs {
		if r.Collection == collection {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
