package reconcile

import (
	"context"
	"fmt"
	"sync"

	"stripe-fire-sync/internal/domain"
)

type fakePrice struct {
	productID string
	amount    int64
	active    bool
}

// fakeGateway is an in-memory billing provider with Stripe's listing order
// and immutable prices. Listings carry the collection recorded in the
// product's metadata, as an expanded Stripe listing does.
type fakeGateway struct {
	mu          sync.Mutex
	prices      map[string]*fakePrice
	order       []string
	products    map[string]bool
	collections map[string]string
	nextID      int
	calls       []string
	listCalls   int
	fail        map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		prices:      make(map[string]*fakePrice),
		products:    make(map[string]bool),
		collections: make(map[string]string),
		fail:        make(map[string]error),
	}
}

// seed adds an active price on a product with no collection metadata.
func (f *fakeGateway) seed(priceID, productID string, amount int64) {
	f.seedIn("", priceID, productID, amount)
}

func (f *fakeGateway) seedIn(collection, priceID, productID string, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[priceID] = &fakePrice{productID: productID, amount: amount, active: true}
	f.order = append(f.order, priceID)
	f.products[productID] = true
	if collection != "" {
		f.collections[productID] = collection
	}
}

func (f *fakeGateway) failOn(call string, err error) {
	f.fail[call] = err
}

func (f *fakeGateway) record(call string) error {
	f.calls = append(f.calls, call)
	return f.fail[call]
}

func (f *fakeGateway) ListActivePrices(_ context.Context, pageSize int64, startingAfter string) (domain.PricePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if err := f.fail["ListActivePrices"]; err != nil {
		return domain.PricePage{}, err
	}

	var active []string
	for _, id := range f.order {
		if f.prices[id].active {
			active = append(active, id)
		}
	}
	start := 0
	if startingAfter != "" {
		for i, id := range active {
			if id == startingAfter {
				start = i + 1
				break
			}
		}
	}
	end := start + int(pageSize)
	if end > len(active) {
		end = len(active)
	}
	var page domain.PricePage
	for _, id := range active[start:end] {
		p := f.prices[id]
		page.Records = append(page.Records, domain.BillingRecord{
			PriceID:    id,
			ProductID:  p.productID,
			UnitAmount: p.amount,
			Active:     true,
			Collection: f.collections[p.productID],
		})
	}
	page.HasMore = end < len(active)
	return page, nil
}

func (f *fakeGateway) CreateProduct(_ context.Context, name string, metadata map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("CreateProduct(%s)", name)); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("prod_new%d", f.nextID)
	f.products[id] = true
	if c := metadata["collection"]; c != "" {
		f.collections[id] = c
	}
	return id, nil
}

func (f *fakeGateway) CreatePrice(_ context.Context, productID, currency string, unitAmount int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("CreatePrice(%s,%s,%d)", productID, currency, unitAmount)); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("price_new%d", f.nextID)
	f.prices[id] = &fakePrice{productID: productID, amount: unitAmount, active: true}
	f.order = append(f.order, id)
	return id, nil
}

func (f *fakeGateway) DeactivatePrice(_ context.Context, priceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("DeactivatePrice(%s)", priceID)); err != nil {
		return err
	}
	p, ok := f.prices[priceID]
	if !ok {
		return fmt.Errorf("%w: no such price %s", domain.ErrNotFound, priceID)
	}
	p.active = false
	return nil
}

func (f *fakeGateway) DeactivateProduct(_ context.Context, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("DeactivateProduct(%s)", productID)); err != nil {
		return err
	}
	f.products[productID] = false
	return nil
}

func (f *fakeGateway) activePrice(id string) (fakePrice, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[id]
	if !ok || !p.active {
		return fakePrice{}, false
	}
	return *p, true
}

func (f *fakeGateway) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
