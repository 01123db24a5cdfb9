package billing

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"stripe-fire-sync/internal/domain"
)

// Throttled spaces mutating provider calls by a fixed interval. Listings go
// straight through. It is a rate-limit courtesy only; callers must not rely
// on it for ordering.
type Throttled struct {
	next    Gateway
	limiter *rate.Limiter
}

// NewThrottled wraps next so consecutive mutations are at least interval apart.
// A non-positive interval returns next unchanged.
func NewThrottled(next Gateway, interval time.Duration) Gateway {
	if interval <= 0 {
		return next
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (t *Throttled) ListActivePrices(ctx context.Context, pageSize int64, startingAfter string) (domain.PricePage, error) {
	return t.next.ListActivePrices(ctx, pageSize, startingAfter)
}

func (t *Throttled) CreateProduct(ctx context.Context, name string, metadata map[string]string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.next.CreateProduct(ctx, name, metadata)
}

func (t *Throttled) CreatePrice(ctx context.Context, productID, currency string, unitAmount int64) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.next.CreatePrice(ctx, productID, currency, unitAmount)
}

func (t *Throttled) DeactivatePrice(ctx context.Context, priceID string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.next.DeactivatePrice(ctx, priceID)
}

func (t *Throttled) DeactivateProduct(ctx context.Context, productID string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.next.DeactivateProduct(ctx, productID)
}
