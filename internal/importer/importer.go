package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"stripe-fire-sync/internal/domain"
)

type DocumentWriter interface {
	Upsert(ctx context.Context, doc domain.Document) (*domain.Document, error)
}

// numericKeys are stored as numbers so the price derivation sees the same
// types a hand-written document would carry.
var numericKeys = map[string]bool{
	"costperitem":           true,
	"variantprice":          true,
	"variantcompareatprice": true,
	"variantgrams":          true,
}

// CSVImporter reads storefront product exports (one row per variant or image,
// grouped by Handle) and merges them into a document collection.
type CSVImporter struct {
	reader     *csv.Reader
	writer     DocumentWriter
	collection string
}

func NewCSVImporter(r io.Reader, writer DocumentWriter, collection string) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{
		reader:     csvr,
		writer:     writer,
		collection: collection,
	}
}

type csvRow struct {
	Handle    string
	Fields    map[string]interface{}
	ImageURLs []string
}

// Run parses CSV rows and upserts one document per handle. The handle becomes
// the document id, so re-importing a file updates the same documents and keeps
// fields the export does not carry, such as the billing reference.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	keys := normalizeHeaders(headers)
	if !contains(keys, "handle") {
		return 0, fmt.Errorf("read headers: missing Handle column")
	}

	var (
		current  *csvRow
		imported int
	)

	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}

		row := parseRow(record, keys)
		if row == nil {
			continue
		}

		// Continuation rows (extra variants and images) repeat the handle
		// without a title.
		if current != nil && (row.Handle == "" || row.Handle == current.Handle) && row.Fields["title"] == nil {
			current.ImageURLs = append(current.ImageURLs, row.ImageURLs...)
			continue
		}

		if current != nil {
			if err := i.save(ctx, current); err != nil {
				return imported, err
			}
			imported++
		}
		current = row
	}

	if current != nil {
		if err := i.save(ctx, current); err != nil {
			return imported, err
		}
		imported++
	}

	return imported, nil
}

func (i *CSVImporter) save(ctx context.Context, row *csvRow) error {
	if row.Handle == "" || row.Fields["title"] == nil {
		return fmt.Errorf("invalid product row (missing handle or title) for handle %q", row.Handle)
	}

	fields := row.Fields
	if len(row.ImageURLs) > 0 {
		fields["images"] = row.ImageURLs
	}

	_, err := i.writer.Upsert(ctx, domain.Document{
		Collection: i.collection,
		ID:         row.Handle,
		Fields:     fields,
	})
	if err != nil {
		return fmt.Errorf("upsert document %q: %w", row.Handle, err)
	}
	return nil
}

// normalizeHeaders turns export headers into document keys: "Cost per item"
// becomes "costperitem", "Body (HTML)" becomes "bodyhtml".
func normalizeHeaders(headers []string) []string {
	keys := make([]string, len(headers))
	for i, h := range headers {
		var b strings.Builder
		for _, r := range h {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(unicode.ToLower(r))
			}
		}
		keys[i] = b.String()
	}
	return keys
}

func parseRow(record []string, keys []string) *csvRow {
	row := &csvRow{Fields: map[string]interface{}{}}
	for pos, key := range keys {
		if key == "" || pos >= len(record) {
			continue
		}
		v := strings.TrimSpace(record[pos])
		if v == "" {
			continue
		}
		switch {
		case key == "handle":
			row.Handle = v
		case key == "imagesrc":
			row.ImageURLs = append(row.ImageURLs, v)
		case numericKeys[key]:
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				row.Fields[key] = n
			} else {
				row.Fields[key] = v
			}
		default:
			row.Fields[key] = v
		}
	}
	if row.Handle == "" && len(row.ImageURLs) == 0 {
		return nil
	}
	return row
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
