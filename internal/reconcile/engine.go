package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"stripe-fire-sync/internal/billing"
	"stripe-fire-sync/internal/domain"
	"stripe-fire-sync/internal/metrics"
)

const defaultPageSize = 100

// Options configures an Engine.
type Options struct {
	// Currency is the 3-letter code every price of the pass is created in.
	Currency string
	PageSize int64

	// LegacyCollection owns products whose metadata names no collection.
	// When empty, such products are left alone by every pass.
	LegacyCollection string

	Logger  *log.Logger
	Metrics *metrics.Sync
}

// Engine drives the billing side of a pass. Calls are issued one at a time,
// in plan order.
type Engine struct {
	gateway  billing.Gateway
	currency string
	pageSize int64
	legacy   string
	logger   *log.Logger
	metrics  *metrics.Sync
}

func NewEngine(gateway billing.Gateway, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Currency == "" {
		opts.Currency = "aud"
	}
	return &Engine{
		gateway:  gateway,
		currency: opts.Currency,
		pageSize: opts.PageSize,
		legacy:   opts.LegacyCollection,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// BuildIndex lists every active price, following pages until the provider
// reports no more, and keeps the ones whose product belongs to collection.
func (e *Engine) BuildIndex(ctx context.Context, collection string) (Index, error) {
	index := make(Index)
	foreign := 0
	cursor := ""
	for page := 1; ; page++ {
		res, err := e.gateway.ListActivePrices(ctx, e.pageSize, cursor)
		if err != nil {
			return nil, fmt.Errorf("list active prices page %d: %w", page, err)
		}
		for _, rec := range res.Records {
			if !e.owns(collection, rec) {
				foreign++
				continue
			}
			rec.Active = true
			index[rec.PriceID] = rec
		}
		if !res.HasMore || len(res.Records) == 0 {
			break
		}
		cursor = res.Records[len(res.Records)-1].PriceID
	}
	e.logger.Printf("engine: billing index built collection=%s prices=%d foreign=%d", collection, len(index), foreign)
	return index, nil
}

func (e *Engine) owns(collection string, rec domain.BillingRecord) bool {
	if rec.Collection == "" {
		return e.legacy != "" && e.legacy == collection
	}
	return rec.Collection == collection
}

// OperationError reports the operation that stopped Apply.
type OperationError struct {
	Op  Operation
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s for document %s: %v", e.Op.Kind, e.Op.DocumentID, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// ApplyResult holds what Apply confirmed with the provider.
type ApplyResult struct {
	WriteBacks []domain.WriteBack
	Created    int
	Updated    int
}

// Apply runs the plan's operations in order and stops at the first failure.
// The returned result covers the operations confirmed before the failure; its
// write-backs must not be persisted when err is non-nil.
func (e *Engine) Apply(ctx context.Context, runID, collection string, plan Plan) (ApplyResult, error) {
	var res ApplyResult
	for _, op := range plan.Operations {
		opCtx := billing.WithIdempotencyKey(ctx, runID+":"+op.DocumentID)

		var (
			priceID string
			err     error
		)
		switch op.Kind {
		case OpCreateProduct:
			priceID, err = e.createProduct(opCtx, collection, op)
		case OpUpdatePrice:
			priceID, err = e.replacePrice(opCtx, op)
		default:
			err = fmt.Errorf("unknown operation %q", op.Kind)
		}
		e.metrics.ObserveOperation(collection, string(op.Kind), err)
		if err != nil {
			e.logger.Printf("engine: %s collection=%s id=%s error=%v", op.Kind, collection, op.DocumentID, err)
			return res, &OperationError{Op: op, Err: err}
		}

		res.WriteBacks = append(res.WriteBacks, domain.WriteBack{ID: op.DocumentID, ExternalRef: priceID, Version: op.Version})
		if op.Kind == OpCreateProduct {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

func (e *Engine) createProduct(ctx context.Context, collection string, op Operation) (string, error) {
	if op.StaleRef != "" {
		e.logger.Printf("engine: stale reference collection=%s id=%s ref=%s recreating", collection, op.DocumentID, op.StaleRef)
	}
	productID, err := e.gateway.CreateProduct(ctx, op.Name, map[string]string{
		"dbId":       op.DocumentID,
		"collection": collection,
	})
	if err != nil {
		return "", fmt.Errorf("create product: %w", err)
	}
	priceID, err := e.gateway.CreatePrice(ctx, productID, e.currency, op.Amount)
	if err != nil {
		return "", fmt.Errorf("create price for product %s: %w", productID, err)
	}
	e.logger.Printf("engine: created product name=%q id=%s product=%s price=%s amount=%d", op.Name, op.DocumentID, productID, priceID, op.Amount)
	return priceID, nil
}

// replacePrice retires the old price before creating the new one so the
// product never carries two active prices.
func (e *Engine) replacePrice(ctx context.Context, op Operation) (string, error) {
	if err := e.gateway.DeactivatePrice(ctx, op.OldPriceID); err != nil {
		return "", fmt.Errorf("deactivate price %s: %w", op.OldPriceID, err)
	}
	priceID, err := e.gateway.CreatePrice(ctx, op.ProductID, e.currency, op.Amount)
	if err != nil {
		return "", fmt.Errorf("create price for product %s: %w", op.ProductID, err)
	}
	e.logger.Printf("engine: updated price name=%q id=%s product=%s old=%s new=%s amount=%d", op.Name, op.DocumentID, op.ProductID, op.OldPriceID, priceID, op.Amount)
	return priceID, nil
}

// CleanupFailure is a dangling record that could not be retired.
type CleanupFailure struct {
	PriceID   string `json:"priceId"`
	ProductID string `json:"productId"`
	Err       error  `json:"-"`
}

func (f CleanupFailure) Error() string {
	return fmt.Sprintf("retire price %s (product %s): %v", f.PriceID, f.ProductID, f.Err)
}

func (f CleanupFailure) Unwrap() error {
	return f.Err
}

// CleanupResult summarizes a dangling cleanup.
type CleanupResult struct {
	Deactivated int
	Failures    []CleanupFailure
}

// Cleanup retires every dangling record. A failure on one record is recorded
// and does not stop the others.
func (e *Engine) Cleanup(ctx context.Context, collection string, dangling []Dangling) CleanupResult {
	var res CleanupResult
	for _, d := range dangling {
		err := e.retire(ctx, d)
		e.metrics.ObserveOperation(collection, "deactivate", err)
		if err != nil {
			e.logger.Printf("engine: cleanup collection=%s price=%s product=%s error=%v", collection, d.PriceID, d.ProductID, err)
			res.Failures = append(res.Failures, CleanupFailure{PriceID: d.PriceID, ProductID: d.ProductID, Err: err})
			continue
		}
		res.Deactivated++
		e.logger.Printf("engine: disabled collection=%s price=%s product=%s keep_product=%t", collection, d.PriceID, d.ProductID, d.KeepProduct)
	}
	return res
}

func (e *Engine) retire(ctx context.Context, d Dangling) error {
	if !d.KeepProduct && d.ProductID != "" {
		if err := e.gateway.DeactivateProduct(ctx, d.ProductID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("deactivate product: %w", err)
		}
	}
	if err := e.gateway.DeactivatePrice(ctx, d.PriceID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("deactivate price: %w", err)
	}
	return nil
}
