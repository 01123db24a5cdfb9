package billing

import (
	"context"

	"stripe-fire-sync/internal/domain"
)

// Gateway is the billing provider's product and price API.
type Gateway interface {
	// ListActivePrices returns one page of active prices ordered by the provider.
	// startingAfter is the last price id of the previous page, empty for the first.
	ListActivePrices(ctx context.Context, pageSize int64, startingAfter string) (domain.PricePage, error)
	CreateProduct(ctx context.Context, name string, metadata map[string]string) (string, error)
	CreatePrice(ctx context.Context, productID, currency string, unitAmount int64) (string, error)
	// DeactivatePrice returns an error wrapping domain.ErrNotFound if the price is gone.
	DeactivatePrice(ctx context.Context, priceID string) error
	DeactivateProduct(ctx context.Context, productID string) error
}

type idempotencyKey struct{}

// WithIdempotencyKey attaches a provider idempotency key to the next create call made with ctx.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

func idempotencyKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKey{}).(string)
	return key
}
