package reconcile

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"stripe-fire-sync/internal/config"
	"stripe-fire-sync/internal/domain"
)

// Deriver reads the billable name and amount out of a catalog document.
// The engine never reads document fields directly.
type Deriver interface {
	ProductName(doc domain.Document) string
	// UnitAmount returns the price in minor currency units. A missing field is 0.
	UnitAmount(doc domain.Document) (int64, error)
}

// Keys names the document fields a Deriver reads. Empty keys take the
// variant's defaults.
type Keys struct {
	NameKey     string
	PriceKey    string
	CategoryKey string
}

// DeriverFor builds the strategy selected by job.Variant.
func DeriverFor(job config.Job) (Deriver, error) {
	keys := Keys{NameKey: job.NameKey, PriceKey: job.PriceKey, CategoryKey: job.CategoryKey}
	switch job.Variant {
	case "", config.VariantDefault:
		return NewDefault(keys), nil
	case config.VariantCategoric:
		return NewCategoric(keys)
	case config.VariantStorefront, "shopify":
		return NewStorefront(keys), nil
	default:
		return nil, fmt.Errorf("unknown variant %q", job.Variant)
	}
}

// Default reads name and price verbatim.
type Default struct {
	nameKey  string
	priceKey string
}

func NewDefault(keys Keys) *Default {
	return &Default{
		nameKey:  orDefault(keys.NameKey, "name"),
		priceKey: orDefault(keys.PriceKey, "price"),
	}
}

func (d *Default) ProductName(doc domain.Document) string {
	return stringField(doc, d.nameKey)
}

func (d *Default) UnitAmount(doc domain.Document) (int64, error) {
	v, ok, err := numberField(doc, d.priceKey)
	if err != nil || !ok {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: document %s field %q is not a whole number of minor units: %v", domain.ErrInvalidDocument, doc.ID, d.priceKey, v)
	}
	return toMinorUnits(doc, d.priceKey, v)
}

// Categoric appends the start-cased category to the product name,
// e.g. "Latte" + "hot-drinks" becomes "Latte Hot Drinks".
type Categoric struct {
	*Default
	categoryKey string
}

func NewCategoric(keys Keys) (*Categoric, error) {
	if strings.TrimSpace(keys.CategoryKey) == "" {
		return nil, fmt.Errorf("categoric variant requires a category key")
	}
	return &Categoric{Default: NewDefault(keys), categoryKey: keys.CategoryKey}, nil
}

func (c *Categoric) ProductName(doc domain.Document) string {
	name := c.Default.ProductName(doc)
	category := StartCase(stringField(doc, c.categoryKey))
	return strings.TrimSpace(name + " " + category)
}

// Storefront reads storefront imports, which keep prices in major units.
type Storefront struct {
	nameKey  string
	priceKey string
}

func NewStorefront(keys Keys) *Storefront {
	return &Storefront{
		nameKey:  orDefault(keys.NameKey, "title"),
		priceKey: orDefault(keys.PriceKey, "costperitem"),
	}
}

func (s *Storefront) ProductName(doc domain.Document) string {
	return stringField(doc, s.nameKey)
}

func (s *Storefront) UnitAmount(doc domain.Document) (int64, error) {
	v, ok, err := numberField(doc, s.priceKey)
	if err != nil || !ok {
		return 0, err
	}
	return toMinorUnits(doc, s.priceKey, math.Round(v*100))
}

// StartCase splits s into words on separators and case changes and upper-cases
// the first letter of each: "hot_drinks" and "hotDrinks" both become "Hot Drinks".
func StartCase(s string) string {
	words := splitWords(s)
	if len(words) == 0 {
		return ""
	}
	caser := cases.Title(language.Und, cases.NoLower)
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}

func splitWords(s string) []string {
	var (
		words []string
		cur   []rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(cur) > 0 && unicode.IsUpper(r) {
			prev := cur[len(cur)-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func stringField(doc domain.Document, key string) string {
	switch v := doc.Fields[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// numberField reports the numeric value of a field; ok is false when the field
// is absent or null.
func numberField(doc domain.Document, key string) (float64, bool, error) {
	raw, present := doc.Fields[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	var (
		v   float64
		err error
	)
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case json.Number:
		v, err = n.Float64()
	case string:
		if strings.TrimSpace(n) == "" {
			return 0, false, nil
		}
		v, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		err = fmt.Errorf("unsupported type %T", raw)
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: document %s field %q is not a number: %v", domain.ErrInvalidDocument, doc.ID, key, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("%w: document %s field %q is not finite", domain.ErrInvalidDocument, doc.ID, key)
	}
	return v, true, nil
}

func toMinorUnits(doc domain.Document, key string, v float64) (int64, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: document %s field %q is negative: %v", domain.ErrInvalidDocument, doc.ID, key, v)
	}
	if v > math.MaxInt64/2 {
		return 0, fmt.Errorf("%w: document %s field %q is out of range: %v", domain.ErrInvalidDocument, doc.ID, key, v)
	}
	return int64(v), nil
}

// SourceProducts derives the reconciliation view of docs, keeping their order.
// refKey is the field holding the billing price id.
func SourceProducts(docs []domain.Document, deriver Deriver, refKey string) ([]domain.SourceProduct, error) {
	out := make([]domain.SourceProduct, 0, len(docs))
	for _, doc := range docs {
		amount, err := deriver.UnitAmount(doc)
		if err != nil {
			return nil, err
		}
		ref, _ := doc.Fields[refKey].(string)
		out = append(out, domain.SourceProduct{
			ID:          doc.ID,
			Name:        deriver.ProductName(doc),
			Price:       amount,
			ExternalRef: strings.TrimSpace(ref),
			Version:     doc.Version,
		})
	}
	return out, nil
}
