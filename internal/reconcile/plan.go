package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"stripe-fire-sync/internal/domain"
)

// Index maps active price ids to their billing record.
type Index map[string]domain.BillingRecord

type OperationKind string

const (
	OpCreateProduct OperationKind = "create_product"
	OpUpdatePrice   OperationKind = "update_price"
)

// Operation is one billing mutation the pass must perform for a document.
type Operation struct {
	Kind       OperationKind `json:"kind"`
	DocumentID string        `json:"documentId"`
	Version    int64         `json:"-"`
	Name       string        `json:"name,omitempty"`
	Amount     int64         `json:"amount"`
	// OldPriceID and ProductID are set for OpUpdatePrice.
	OldPriceID string `json:"oldPriceId,omitempty"`
	ProductID  string `json:"productId,omitempty"`
	// StaleRef is the reference the document carried when it pointed at a
	// price that is no longer active.
	StaleRef string `json:"staleRef,omitempty"`
}

// Dangling is an active price no document claims.
type Dangling struct {
	domain.BillingRecord
	// KeepProduct is set when another, claimed price still lives on the same
	// product, so only the price is retired.
	KeepProduct bool `json:"keepProduct"`
}

// StaleClear is a stale reference on a document that needs no price. The
// reference is removed from the document instead of recreated.
type StaleClear struct {
	DocumentID string `json:"documentId"`
	Version    int64  `json:"-"`
	StaleRef   string `json:"staleRef"`
}

// Plan is the full set of changes that converges billing with the source.
type Plan struct {
	Operations []Operation  `json:"operations"`
	Clear      []StaleClear `json:"clear"`
	Dangling   []Dangling   `json:"dangling"`
	Unchanged  int          `json:"unchanged"`
	Skipped    int          `json:"skipped"`
	Stale      int          `json:"stale"`
}

func (p Plan) Count(kind OperationKind) int {
	n := 0
	for _, op := range p.Operations {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Diff compares products, in order, against the active billing index.
//
// A reference to an active price claims it; a different amount replaces the
// price on the same product. A reference that is not active, or that an earlier
// product already claimed, is stale and goes down the create path. Products
// without a usable reference are created unless their amount is 0; a stale
// reference on such a product is cleared. Active prices left unclaimed are
// dangling, sorted by price id.
func Diff(products []domain.SourceProduct, index Index) (Plan, error) {
	seen := make(map[string]struct{}, len(index))
	for id := range index {
		seen[id] = struct{}{}
	}
	claimed := make(map[string]struct{})

	var plan Plan
	for _, p := range products {
		if p.ExternalRef != "" {
			rec, active := index[p.ExternalRef]
			_, taken := claimed[p.ExternalRef]
			if active && !taken {
				claimed[p.ExternalRef] = struct{}{}
				delete(seen, p.ExternalRef)
				if rec.UnitAmount == p.Price {
					plan.Unchanged++
					continue
				}
				plan.Operations = append(plan.Operations, Operation{
					Kind:       OpUpdatePrice,
					DocumentID: p.ID,
					Version:    p.Version,
					Name:       p.Name,
					Amount:     p.Price,
					OldPriceID: p.ExternalRef,
					ProductID:  rec.ProductID,
				})
				continue
			}
			plan.Stale++
		}

		if p.Price == 0 {
			plan.Skipped++
			if p.ExternalRef != "" {
				plan.Clear = append(plan.Clear, StaleClear{DocumentID: p.ID, Version: p.Version, StaleRef: p.ExternalRef})
			}
			continue
		}
		if strings.TrimSpace(p.Name) == "" {
			return Plan{}, fmt.Errorf("%w: document %s has no product name", domain.ErrInvalidDocument, p.ID)
		}
		plan.Operations = append(plan.Operations, Operation{
			Kind:       OpCreateProduct,
			DocumentID: p.ID,
			Version:    p.Version,
			Name:       p.Name,
			Amount:     p.Price,
			StaleRef:   p.ExternalRef,
		})
	}

	liveProducts := make(map[string]struct{}, len(claimed))
	for ref := range claimed {
		liveProducts[index[ref].ProductID] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rec := index[id]
		_, keep := liveProducts[rec.ProductID]
		plan.Dangling = append(plan.Dangling, Dangling{BillingRecord: rec, KeepProduct: keep})
	}
	return plan, nil
}
