package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stripe-fire-sync/internal/domain"
)

// newTestEngine treats products seeded without collection metadata as
// belonging to "product".
func newTestEngine(gw *fakeGateway) *Engine {
	return NewEngine(gw, Options{Currency: "aud", PageSize: 100, LegacyCollection: "product"})
}

func pass(t *testing.T, e *Engine, products []domain.SourceProduct) (Plan, CleanupResult) {
	t.Helper()
	return passIn(t, e, "product", products)
}

// passIn runs one full reconciliation of collection and applies the
// write-backs and clears to the slice in place, the way the orchestrator
// commits them.
func passIn(t *testing.T, e *Engine, collection string, products []domain.SourceProduct) (Plan, CleanupResult) {
	t.Helper()
	ctx := context.Background()
	index, err := e.BuildIndex(ctx, collection)
	require.NoError(t, err)
	plan, err := Diff(products, index)
	require.NoError(t, err)
	res, err := e.Apply(ctx, "run", collection, plan)
	require.NoError(t, err)
	for i := range products {
		for _, wb := range res.WriteBacks {
			if products[i].ID == wb.ID {
				products[i].ExternalRef = wb.ExternalRef
			}
		}
		for _, c := range plan.Clear {
			if products[i].ID == c.DocumentID {
				products[i].ExternalRef = ""
			}
		}
	}
	return plan, e.Cleanup(ctx, collection, plan.Dangling)
}

func TestEngine_BuildIndexExhaustsPages(t *testing.T) {
	gw := newFakeGateway()
	for i := 0; i < 250; i++ {
		gw.seed(fmt.Sprintf("pr_%03d", i), fmt.Sprintf("prod_%03d", i), int64(i))
	}
	e := NewEngine(gw, Options{PageSize: 100, LegacyCollection: "product"})

	index, err := e.BuildIndex(context.Background(), "product")
	require.NoError(t, err)
	assert.Len(t, index, 250)
	assert.Equal(t, 3, gw.listCalls)
	assert.Equal(t, int64(249), index["pr_249"].UnitAmount)
}

func TestEngine_BuildIndexError(t *testing.T) {
	gw := newFakeGateway()
	gw.failOn("ListActivePrices", domain.ErrGateway)

	_, err := newTestEngine(gw).BuildIndex(context.Background(), "product")
	require.ErrorIs(t, err, domain.ErrGateway)
}

func TestEngine_BuildIndexScopesToCollection(t *testing.T) {
	gw := newFakeGateway()
	gw.seedIn("product", "pr_a", "prod_a", 100)
	gw.seedIn("storefront", "pr_b", "prod_b", 200)
	gw.seed("pr_old", "prod_old", 300)
	e := newTestEngine(gw)

	index, err := e.BuildIndex(context.Background(), "product")
	require.NoError(t, err)
	assert.Len(t, index, 2)
	assert.Contains(t, index, "pr_a")
	assert.Contains(t, index, "pr_old")

	index, err = e.BuildIndex(context.Background(), "storefront")
	require.NoError(t, err)
	assert.Len(t, index, 1)
	assert.Equal(t, "storefront", index["pr_b"].Collection)
}

func TestEngine_UnownedLegacyProductsLeftAlone(t *testing.T) {
	gw := newFakeGateway()
	gw.seed("pr_old", "prod_old", 300)
	e := NewEngine(gw, Options{Currency: "aud"})

	plan, cleanup := passIn(t, e, "product", nil)
	assert.Empty(t, plan.Dangling)
	assert.Zero(t, cleanup.Deactivated)
	assert.Empty(t, gw.calls)
}

func TestEngine_CreateScenario(t *testing.T) {
	gw := newFakeGateway()
	e := newTestEngine(gw)
	ctx := context.Background()

	plan, err := Diff([]domain.SourceProduct{{ID: "a", Name: "Widget", Price: 500, Version: 3}}, Index{})
	require.NoError(t, err)
	res, err := e.Apply(ctx, "run-1", "product", plan)
	require.NoError(t, err)

	assert.Equal(t, []string{"CreateProduct(Widget)", "CreatePrice(prod_new1,aud,500)"}, gw.calls)
	require.Len(t, res.WriteBacks, 1)
	assert.Equal(t, domain.WriteBack{ID: "a", ExternalRef: "price_new2", Version: 3}, res.WriteBacks[0])
	assert.Equal(t, 1, res.Created)
}

func TestEngine_UpdateScenario(t *testing.T) {
	gw := newFakeGateway()
	gw.seed("pr_1", "prod_1", 500)
	e := newTestEngine(gw)
	ctx := context.Background()

	index, err := e.BuildIndex(ctx, "product")
	require.NoError(t, err)
	plan, err := Diff([]domain.SourceProduct{{ID: "b", Name: "Gadget", Price: 700, ExternalRef: "pr_1"}}, index)
	require.NoError(t, err)
	res, err := e.Apply(ctx, "run-1", "product", plan)
	require.NoError(t, err)

	assert.Equal(t, []string{"DeactivatePrice(pr_1)", "CreatePrice(prod_1,aud,700)"}, gw.calls)
	require.Len(t, res.WriteBacks, 1)
	assert.Equal(t, "b", res.WriteBacks[0].ID)
	assert.NotEqual(t, "pr_1", res.WriteBacks[0].ExternalRef)
	assert.Equal(t, 1, res.Updated)
	assert.Empty(t, plan.Dangling)

	_, stillActive := gw.activePrice("pr_1")
	assert.False(t, stillActive)
}

func TestEngine_DanglingScenario(t *testing.T) {
	gw := newFakeGateway()
	gw.seed("pr_9", "prod_9", 300)
	e := newTestEngine(gw)

	_, cleanup := pass(t, e, nil)

	assert.Equal(t, []string{"DeactivateProduct(prod_9)", "DeactivatePrice(pr_9)"}, gw.calls)
	assert.Equal(t, 1, cleanup.Deactivated)
	assert.Empty(t, cleanup.Failures)
}

func TestEngine_ZeroPriceMakesNoCalls(t *testing.T) {
	gw := newFakeGateway()
	e := newTestEngine(gw)

	plan, cleanup := pass(t, e, []domain.SourceProduct{{ID: "z", Name: "Free", Price: 0}})
	assert.Empty(t, gw.calls)
	assert.Empty(t, plan.Operations)
	assert.Zero(t, cleanup.Deactivated)
}

func TestEngine_ApplyStopsAtFirstFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.failOn("CreateProduct(Second)", fmt.Errorf("%w: rate limited", domain.ErrGateway))
	e := newTestEngine(gw)

	plan, err := Diff([]domain.SourceProduct{
		{ID: "a", Name: "First", Price: 100},
		{ID: "b", Name: "Second", Price: 200},
		{ID: "c", Name: "Third", Price: 300},
	}, Index{})
	require.NoError(t, err)

	res, err := e.Apply(context.Background(), "run", "product", plan)
	require.ErrorIs(t, err, domain.ErrGateway)
	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "b", opErr.Op.DocumentID)
	assert.Equal(t, 1, res.Created)
	assert.NotContains(t, gw.calls, "CreateProduct(Third)")
}

func TestEngine_UpdateFailsWhenNewPriceRejected(t *testing.T) {
	gw := newFakeGateway()
	gw.seed("pr_1", "prod_1", 500)
	gw.failOn("CreatePrice(prod_1,aud,700)", domain.ErrGateway)
	e := newTestEngine(gw)

	index, err := e.BuildIndex(context.Background(), "product")
	require.NoError(t, err)
	plan, err := Diff([]domain.SourceProduct{{ID: "b", Name: "Gadget", Price: 700, ExternalRef: "pr_1"}}, index)
	require.NoError(t, err)

	res, err := e.Apply(context.Background(), "run", "product", plan)
	require.ErrorIs(t, err, domain.ErrGateway)
	assert.Empty(t, res.WriteBacks)
}

func TestEngine_CleanupIsolatesFailures(t *testing.T) {
	gw := newFakeGateway()
	gw.seed("pr_1", "prod_1", 100)
	gw.seed("pr_2", "prod_2", 200)
	gw.seed("pr_3", "prod_3", 300)
	gw.failOn("DeactivateProduct(prod_2)", domain.ErrGateway)
	e := newTestEngine(gw)

	_, cleanup := pass(t, e, nil)

	assert.Equal(t, 2, cleanup.Deactivated)
	require.Len(t, cleanup.Failures, 1)
	assert.Equal(t, "pr_2", cleanup.Failures[0].PriceID)
	assert.ErrorIs(t, cleanup.Failures[0], domain.ErrGateway)
	assert.Contains(t, gw.calls, "DeactivatePrice(pr_3)")
}

func TestEngine_CleanupToleratesMissingPrice(t *testing.T) {
	gw := newFakeGateway()
	gw.failOn("DeactivatePrice(pr_gone)", fmt.Errorf("%w: no such price", domain.ErrNotFound))
	e := newTestEngine(gw)

	res := e.Cleanup(context.Background(), "product", []Dangling{{BillingRecord: rec("pr_gone", "prod_gone", 1)}})
	assert.Equal(t, 1, res.Deactivated)
	assert.Empty(t, res.Failures)
}

func TestEngine_CleanupKeepsSharedProduct(t *testing.T) {
	gw := newFakeGateway()
	e := newTestEngine(gw)

	res := e.Cleanup(context.Background(), "product", []Dangling{{BillingRecord: rec("pr_stray", "prod_1", 1), KeepProduct: true}})
	assert.Equal(t, 1, res.Deactivated)
	assert.Equal(t, []string{"DeactivatePrice(pr_stray)"}, gw.calls)
}

func TestEngine_SecondPassIsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	gw.seed("pr_1", "prod_1", 500)
	gw.seed("pr_9", "prod_9", 300)
	e := newTestEngine(gw)

	products := []domain.SourceProduct{
		{ID: "a", Name: "Widget", Price: 500},
		{ID: "b", Name: "Gadget", Price: 700, ExternalRef: "pr_1"},
		{ID: "s", Name: "Stale", Price: 100, ExternalRef: "pr_gone"},
		{ID: "z", Name: "Free", Price: 0},
		{ID: "y", Name: "Retired", Price: 0, ExternalRef: "pr_gone2"},
	}

	first, _ := pass(t, e, products)
	assert.Len(t, first.Operations, 3)
	assert.Len(t, first.Clear, 1)

	gw.resetCalls()
	second, cleanup := pass(t, e, products)
	assert.Empty(t, second.Operations)
	assert.Empty(t, second.Clear)
	assert.Empty(t, second.Dangling)
	assert.Zero(t, cleanup.Deactivated)
	assert.Empty(t, gw.calls)
	assert.Equal(t, 3, second.Unchanged)
	assert.Zero(t, second.Stale)
}

func TestEngine_TwoCollectionsConverge(t *testing.T) {
	gw := newFakeGateway()
	gw.seedIn("product", "pr_a", "prod_a", 500)
	gw.seedIn("storefront", "pr_b", "prod_b", 700)
	e := newTestEngine(gw)

	catalog := []domain.SourceProduct{
		{ID: "x", Name: "Widget", Price: 500, ExternalRef: "pr_a"},
		{ID: "x2", Name: "Bolt", Price: 50},
	}
	storefront := []domain.SourceProduct{
		{ID: "y", Name: "Gadget", Price: 700, ExternalRef: "pr_b"},
		{ID: "y2", Name: "Nut", Price: 20},
	}

	plan, cleanup := passIn(t, e, "product", catalog)
	assert.Empty(t, plan.Dangling)
	assert.Zero(t, cleanup.Deactivated)
	_, ok := gw.activePrice("pr_b")
	assert.True(t, ok, "product pass retired a storefront price")

	plan, cleanup = passIn(t, e, "storefront", storefront)
	assert.Empty(t, plan.Dangling)
	assert.Zero(t, plan.Stale)
	assert.Zero(t, cleanup.Deactivated)

	gw.resetCalls()
	for _, run := range []struct {
		collection string
		products   []domain.SourceProduct
	}{{"product", catalog}, {"storefront", storefront}} {
		plan, cleanup := passIn(t, e, run.collection, run.products)
		assert.Empty(t, plan.Operations, run.collection)
		assert.Empty(t, plan.Dangling, run.collection)
		assert.Equal(t, 2, plan.Unchanged, run.collection)
		assert.Zero(t, cleanup.Deactivated, run.collection)
	}
	assert.Empty(t, gw.calls)
}

func TestEngine_Converges(t *testing.T) {
	gw := newFakeGateway()
	gw.seed("pr_1", "prod_1", 500)
	gw.seed("pr_2", "prod_2", 250)
	gw.seed("pr_x", "prod_x", 999)
	e := newTestEngine(gw)

	products := []domain.SourceProduct{
		{ID: "a", Name: "A", Price: 500, ExternalRef: "pr_1"},
		{ID: "b", Name: "B", Price: 300, ExternalRef: "pr_2"},
		{ID: "c", Name: "C", Price: 125},
		{ID: "d", Name: "D", Price: 0},
		{ID: "e", Name: "E", Price: 0, ExternalRef: "pr_gone"},
	}
	pass(t, e, products)

	referenced := map[string]bool{}
	for _, p := range products {
		if p.Price == 0 {
			assert.Empty(t, p.ExternalRef)
			continue
		}
		price, ok := gw.activePrice(p.ExternalRef)
		require.True(t, ok, "document %s references inactive price %s", p.ID, p.ExternalRef)
		assert.Equal(t, p.Price, price.amount)
		referenced[p.ExternalRef] = true
	}

	index, err := e.BuildIndex(context.Background(), "product")
	require.NoError(t, err)
	for id := range index {
		assert.True(t, referenced[id], "active price %s is not referenced", id)
	}

	perProduct := map[string]int{}
	for _, r := range index {
		perProduct[r.ProductID]++
	}
	for productID, n := range perProduct {
		assert.Equal(t, 1, n, "product %s has %d active prices", productID, n)
	}
}
