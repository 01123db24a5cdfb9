package lock

import (
	"context"
	"sync"

	"stripe-fire-sync/internal/domain"
)

// Local is an in-process Locker for single-instance runs and tests.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocal() *Local {
	return &Local{held: make(map[string]bool)}
}

func (l *Local) Acquire(_ context.Context, collection string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(collection)
	if l.held[k] {
		return nil, domain.ErrPassInProgress
	}
	l.held[k] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, k)
			l.mu.Unlock()
		})
	}, nil
}
