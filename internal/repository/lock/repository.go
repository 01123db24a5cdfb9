package lock

import "context"

// Locker serializes sync passes per collection. Acquire fails fast with
// domain.ErrPassInProgress when the collection is already held; the returned
// release func must be called once the pass is done.
type Locker interface {
	Acquire(ctx context.Context, collection string) (release func(), err error)
}

func key(collection string) string {
	return "stripe-fire-sync:" + collection
}
