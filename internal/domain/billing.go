package domain

// BillingRecord is a provider product paired with its active price.
// Collection is read from the product's metadata and is empty for products
// created without one.
type BillingRecord struct {
	ProductID  string `json:"productId"`
	PriceID    string `json:"priceId"`
	UnitAmount int64  `json:"unitAmount"`
	Active     bool   `json:"active"`
	Collection string `json:"collection,omitempty"`
}

// PricePage is one page of an active price listing.
type PricePage struct {
	Records []BillingRecord
	HasMore bool
}
