package domain

import "time"

// Document is a raw catalog entry as stored in a collection.
type Document struct {
	Collection string                 `json:"collection"`
	ID         string                 `json:"id"`
	Fields     map[string]interface{} `json:"fields"`
	Version    int64                  `json:"version"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// SourceProduct is a catalog document reduced to what the reconciliation needs.
type SourceProduct struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	ExternalRef string `json:"externalRef,omitempty"`
	Version     int64  `json:"-"`
}

// WriteBack is a billing reference to persist onto a source document.
type WriteBack struct {
	ID          string `json:"id"`
	ExternalRef string `json:"externalRef"`
	Version     int64  `json:"-"`
}
