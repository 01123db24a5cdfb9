package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"stripe-fire-sync/internal/domain"
)

// StripeOptions configures the Stripe client. Zero values use Stripe defaults.
type StripeOptions struct {
	// APIURL overrides the API host, e.g. for stripe-mock.
	APIURL            string
	MaxNetworkRetries int64
	Timeout           time.Duration
}

// StripeGateway implements Gateway against the Stripe products and prices API.
// It owns its HTTP client; call Close after the last pass.
type StripeGateway struct {
	client     *client.API
	httpClient *http.Client
}

func NewStripeGateway(apiKey string, opts StripeOptions) *StripeGateway {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 80 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	cfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(opts.MaxNetworkRetries),
	}
	if opts.APIURL != "" {
		cfg.URL = stripe.String(opts.APIURL)
	}

	sc := client.New(apiKey, stripe.NewBackendsWithConfig(cfg))
	return &StripeGateway{client: sc, httpClient: httpClient}
}

func (g *StripeGateway) ListActivePrices(ctx context.Context, pageSize int64, startingAfter string) (domain.PricePage, error) {
	params := &stripe.PriceListParams{Active: stripe.Bool(true)}
	params.Limit = stripe.Int64(pageSize)
	params.Single = true
	params.AddExpand("data.product")
	if startingAfter != "" {
		params.StartingAfter = stripe.String(startingAfter)
	}
	params.Context = ctx

	it := g.client.Prices.List(params)
	var page domain.PricePage
	for it.Next() {
		p := it.Price()
		rec := domain.BillingRecord{
			PriceID:    p.ID,
			UnitAmount: p.UnitAmount,
			Active:     p.Active,
		}
		if p.Product != nil {
			rec.ProductID = p.Product.ID
			rec.Collection = p.Product.Metadata["collection"]
		}
		page.Records = append(page.Records, rec)
	}
	if err := it.Err(); err != nil {
		return domain.PricePage{}, mapStripeError(err)
	}
	if meta := it.Meta(); meta != nil {
		page.HasMore = meta.HasMore
	}
	return page, nil
}

func (g *StripeGateway) CreateProduct(ctx context.Context, name string, metadata map[string]string) (string, error) {
	params := &stripe.ProductParams{Name: stripe.String(name)}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if key := idempotencyKeyFrom(ctx); key != "" {
		params.IdempotencyKey = stripe.String(key + ":product")
	}
	params.Context = ctx

	prod, err := g.client.Products.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return prod.ID, nil
}

func (g *StripeGateway) CreatePrice(ctx context.Context, productID, currency string, unitAmount int64) (string, error) {
	params := &stripe.PriceParams{
		Product:    stripe.String(productID),
		Currency:   stripe.String(currency),
		UnitAmount: stripe.Int64(unitAmount),
	}
	if key := idempotencyKeyFrom(ctx); key != "" {
		params.IdempotencyKey = stripe.String(key + ":price")
	}
	params.Context = ctx

	price, err := g.client.Prices.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return price.ID, nil
}

func (g *StripeGateway) DeactivatePrice(ctx context.Context, priceID string) error {
	params := &stripe.PriceParams{Active: stripe.Bool(false)}
	params.Context = ctx
	if _, err := g.client.Prices.Update(priceID, params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

func (g *StripeGateway) DeactivateProduct(ctx context.Context, productID string) error {
	params := &stripe.ProductParams{Active: stripe.Bool(false)}
	params.Context = ctx
	if _, err := g.client.Products.Update(productID, params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

// Close releases idle connections held by the client.
func (g *StripeGateway) Close() {
	g.httpClient.CloseIdleConnections()
}

// mapStripeError converts stripe-go errors into domain errors so callers never
// depend on stripe types.
func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, stripeErr.Msg)
		}
		return fmt.Errorf("%w: %s (status=%d code=%s)", domain.ErrGateway, stripeErr.Msg, stripeErr.HTTPStatusCode, stripeErr.Code)
	}
	return fmt.Errorf("%w: %v", domain.ErrGateway, err)
}
