package seed

import (
	"context"
	"fmt"

	"stripe-fire-sync/internal/domain"
)

type DocumentWriter interface {
	Upsert(ctx context.Context, doc domain.Document) (*domain.Document, error)
}

type documentSeed struct {
	Collection string
	ID         string
	Fields     map[string]interface{}
}

// Documents is the demo catalog: one collection per derivation variant.
var Documents = []documentSeed{
	{
		Collection: "product",
		ID:         "demo-shirt",
		Fields:     map[string]interface{}{"name": "Demo T-Shirt", "price": 1999},
	},
	{
		Collection: "product",
		ID:         "demo-mug",
		Fields:     map[string]interface{}{"name": "Demo Mug", "price": 1299},
	},
	{
		Collection: "product",
		ID:         "demo-gift-note",
		Fields:     map[string]interface{}{"name": "Gift Note", "price": 0},
	},
	{
		Collection: "catalog",
		ID:         "monstera",
		Fields:     map[string]interface{}{"name": "Monstera", "price": 2500, "category": "indoor plants"},
	},
	{
		Collection: "catalog",
		ID:         "terracotta-pot",
		Fields:     map[string]interface{}{"name": "Terracotta Pot", "price": 1450, "category": "pots"},
	},
	{
		Collection: "storefront",
		ID:         "boston-fern",
		Fields:     map[string]interface{}{"title": "Boston Fern", "costperitem": 4.5, "variantprice": 12.5},
	},
}

// Apply writes the demo documents. Fields are merged, so billing references
// written by earlier passes survive a re-seed.
func Apply(ctx context.Context, writer DocumentWriter) (int, error) {
	for i, d := range Documents {
		_, err := writer.Upsert(ctx, domain.Document{Collection: d.Collection, ID: d.ID, Fields: copyFields(d.Fields)})
		if err != nil {
			return i, fmt.Errorf("upsert %s/%s: %w", d.Collection, d.ID, err)
		}
	}
	return len(Documents), nil
}

func copyFields(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
