package document

import (
	"context"

	"stripe-fire-sync/internal/domain"
)

// Repository is read/write access to document collections.
type Repository interface {
	ListAll(ctx context.Context, collection string) ([]domain.Document, error)
	Upsert(ctx context.Context, doc domain.Document) (*domain.Document, error)
	BeginBatch(collection string) Batch
}

// Batch collects field writes that are committed atomically. Nothing is written
// before Commit; a failed Commit writes nothing.
type Batch interface {
	// Update merges fields into the document. A non-zero version makes the write
	// conditional on the document still being at that version.
	Update(id string, version int64, fields map[string]interface{})
	// DeleteField removes a top-level field from the document, with the same
	// version condition as Update.
	DeleteField(id string, version int64, field string)
	Len() int
	Commit(ctx context.Context) error
}

type opKind int

const (
	opUpdate opKind = iota
	opDeleteField
)

type batchOp struct {
	kind    opKind
	id      string
	version int64
	fields  map[string]interface{}
	field   string
}

type opList struct {
	ops []batchOp
}

func (l *opList) Update(id string, version int64, fields map[string]interface{}) {
	l.ops = append(l.ops, batchOp{kind: opUpdate, id: id, version: version, fields: fields})
}

func (l *opList) DeleteField(id string, version int64, field string) {
	l.ops = append(l.ops, batchOp{kind: opDeleteField, id: id, version: version, field: field})
}

func (l *opList) Len() int {
	return len(l.ops)
}
