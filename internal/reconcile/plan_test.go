package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stripe-fire-sync/internal/domain"
)

func rec(priceID, productID string, amount int64) domain.BillingRecord {
	return domain.BillingRecord{PriceID: priceID, ProductID: productID, UnitAmount: amount, Active: true}
}

func TestDiff_CreatesMissing(t *testing.T) {
	plan, err := Diff([]domain.SourceProduct{{ID: "a", Name: "Widget", Price: 500}}, Index{})
	require.NoError(t, err)

	require.Len(t, plan.Operations, 1)
	assert.Equal(t, Operation{Kind: OpCreateProduct, DocumentID: "a", Name: "Widget", Amount: 500}, plan.Operations[0])
	assert.Empty(t, plan.Dangling)
}

func TestDiff_UpdatesChangedPrice(t *testing.T) {
	index := Index{"pr_1": rec("pr_1", "prod_1", 500)}
	plan, err := Diff([]domain.SourceProduct{{ID: "b", Name: "Gadget", Price: 700, ExternalRef: "pr_1"}}, index)
	require.NoError(t, err)

	require.Len(t, plan.Operations, 1)
	op := plan.Operations[0]
	assert.Equal(t, OpUpdatePrice, op.Kind)
	assert.Equal(t, "pr_1", op.OldPriceID)
	assert.Equal(t, "prod_1", op.ProductID)
	assert.Equal(t, int64(700), op.Amount)
	assert.Empty(t, plan.Dangling, "pr_1 is claimed")
}

func TestDiff_UnchangedClaimsPrice(t *testing.T) {
	index := Index{"pr_1": rec("pr_1", "prod_1", 500)}
	plan, err := Diff([]domain.SourceProduct{{ID: "b", Name: "Gadget", Price: 500, ExternalRef: "pr_1"}}, index)
	require.NoError(t, err)

	assert.Empty(t, plan.Operations)
	assert.Empty(t, plan.Dangling)
	assert.Equal(t, 1, plan.Unchanged)
}

func TestDiff_DanglingSortedByPriceID(t *testing.T) {
	index := Index{
		"pr_9": rec("pr_9", "prod_9", 300),
		"pr_3": rec("pr_3", "prod_3", 100),
	}
	plan, err := Diff(nil, index)
	require.NoError(t, err)

	require.Len(t, plan.Dangling, 2)
	assert.Equal(t, "pr_3", plan.Dangling[0].PriceID)
	assert.Equal(t, "pr_9", plan.Dangling[1].PriceID)
	assert.False(t, plan.Dangling[1].KeepProduct)
}

func TestDiff_ZeroPriceSkipped(t *testing.T) {
	plan, err := Diff([]domain.SourceProduct{{ID: "z", Name: "Free", Price: 0}}, Index{})
	require.NoError(t, err)

	assert.Empty(t, plan.Operations)
	assert.Equal(t, 1, plan.Skipped)
}

func TestDiff_StaleReferenceRecreates(t *testing.T) {
	plan, err := Diff([]domain.SourceProduct{{ID: "s", Name: "Old", Price: 900, ExternalRef: "pr_gone"}}, Index{})
	require.NoError(t, err)

	require.Len(t, plan.Operations, 1)
	assert.Equal(t, OpCreateProduct, plan.Operations[0].Kind)
	assert.Equal(t, "pr_gone", plan.Operations[0].StaleRef)
	assert.Equal(t, 1, plan.Stale)
}

func TestDiff_StaleZeroPriceCleared(t *testing.T) {
	plan, err := Diff([]domain.SourceProduct{{ID: "s", Name: "Old", Price: 0, ExternalRef: "pr_gone", Version: 4}}, Index{})
	require.NoError(t, err)

	assert.Empty(t, plan.Operations)
	assert.Equal(t, 1, plan.Stale)
	assert.Equal(t, 1, plan.Skipped)
	assert.Equal(t, []StaleClear{{DocumentID: "s", Version: 4, StaleRef: "pr_gone"}}, plan.Clear)
}

func TestDiff_ZeroPriceWithoutReferenceNotCleared(t *testing.T) {
	plan, err := Diff([]domain.SourceProduct{{ID: "z", Name: "Free", Price: 0}}, Index{})
	require.NoError(t, err)
	assert.Empty(t, plan.Clear)
}

func TestDiff_SharedReferenceOnlyClaimedOnce(t *testing.T) {
	index := Index{"pr_1": rec("pr_1", "prod_1", 500)}
	plan, err := Diff([]domain.SourceProduct{
		{ID: "a", Name: "First", Price: 500, ExternalRef: "pr_1"},
		{ID: "b", Name: "Copy", Price: 500, ExternalRef: "pr_1"},
	}, index)
	require.NoError(t, err)

	assert.Equal(t, 1, plan.Unchanged)
	assert.Equal(t, 1, plan.Stale)
	require.Len(t, plan.Operations, 1)
	assert.Equal(t, "b", plan.Operations[0].DocumentID)
	assert.Equal(t, OpCreateProduct, plan.Operations[0].Kind)
}

func TestDiff_KeepsProductWithClaimedPrice(t *testing.T) {
	index := Index{
		"pr_live":  rec("pr_live", "prod_1", 500),
		"pr_stray": rec("pr_stray", "prod_1", 400),
	}
	plan, err := Diff([]domain.SourceProduct{{ID: "a", Name: "Widget", Price: 500, ExternalRef: "pr_live"}}, index)
	require.NoError(t, err)

	require.Len(t, plan.Dangling, 1)
	assert.Equal(t, "pr_stray", plan.Dangling[0].PriceID)
	assert.True(t, plan.Dangling[0].KeepProduct)
}

func TestDiff_PreservesSourceOrder(t *testing.T) {
	plan, err := Diff([]domain.SourceProduct{
		{ID: "z", Name: "Zed", Price: 1},
		{ID: "a", Name: "Ay", Price: 2},
		{ID: "m", Name: "Em", Price: 3},
	}, Index{})
	require.NoError(t, err)

	var ids []string
	for _, op := range plan.Operations {
		ids = append(ids, op.DocumentID)
	}
	assert.Equal(t, []string{"z", "a", "m"}, ids)
	assert.Equal(t, 3, plan.Count(OpCreateProduct))
	assert.Equal(t, 0, plan.Count(OpUpdatePrice))
}

func TestDiff_MissingNameOnCreate(t *testing.T) {
	_, err := Diff([]domain.SourceProduct{{ID: "a", Price: 100}}, Index{})
	require.ErrorIs(t, err, domain.ErrInvalidDocument)
}
