package document

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"stripe-fire-sync/internal/domain"
)

// Memory is an in-process Repository. Writes follow the same merge, version and
// conflict rules as the Postgres store.
type Memory struct {
	mu   sync.Mutex
	docs map[string]map[string]domain.Document
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]domain.Document)}
}

func (m *Memory) ListAll(_ context.Context, collection string) ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.docs[collection]
	out := make([]domain.Document, 0, len(coll))
	for _, d := range coll {
		out = append(out, cloneDoc(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns a copy of one document.
func (m *Memory) Get(collection, id string) (domain.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection][id]
	if !ok {
		return domain.Document{}, false
	}
	return cloneDoc(d), true
}

func (m *Memory) Upsert(_ context.Context, doc domain.Document) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	coll, ok := m.docs[doc.Collection]
	if !ok {
		coll = make(map[string]domain.Document)
		m.docs[doc.Collection] = coll
	}
	cur, exists := coll[doc.ID]
	if !exists {
		cur = domain.Document{Collection: doc.Collection, ID: doc.ID, Fields: map[string]interface{}{}}
	} else {
		cur.Version++
	}
	if cur.Version == 0 {
		cur.Version = 1
	}
	for k, v := range doc.Fields {
		cur.Fields[k] = v
	}
	cur.UpdatedAt = time.Now().UTC()
	coll[doc.ID] = cur

	out := cloneDoc(cur)
	return &out, nil
}

func (m *Memory) BeginBatch(collection string) Batch {
	return &memoryBatch{store: m, collection: collection}
}

type memoryBatch struct {
	opList
	store      *Memory
	collection string
}

func (b *memoryBatch) Commit(_ context.Context) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	coll := b.store.docs[b.collection]
	staged := make(map[string]domain.Document)
	for _, op := range b.ops {
		cur, ok := staged[op.id]
		if !ok {
			cur, ok = coll[op.id]
			if !ok {
				return fmt.Errorf("batch write %s/%s: %w", b.collection, op.id, domain.ErrWriteConflict)
			}
			cur = cloneDoc(cur)
		}
		if op.version != 0 && cur.Version != op.version {
			return fmt.Errorf("batch write %s/%s: %w", b.collection, op.id, domain.ErrWriteConflict)
		}
		switch op.kind {
		case opUpdate:
			for k, v := range op.fields {
				cur.Fields[k] = v
			}
		case opDeleteField:
			delete(cur.Fields, op.field)
		}
		cur.Version++
		cur.UpdatedAt = time.Now().UTC()
		staged[op.id] = cur
	}
	for id, d := range staged {
		coll[id] = d
	}
	return nil
}

func cloneDoc(d domain.Document) domain.Document {
	fields := make(map[string]interface{}, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	d.Fields = fields
	return d
}
