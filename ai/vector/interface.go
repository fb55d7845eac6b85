// Package vector provides the embedding/similarity backing index for the
// memory stores. Any implementation of Index is substitutable: the
// in-memory reference index for tests and small runs, the pgvector index
// for production.
package vector

import "context"

// Document is a unit of indexed text with opaque metadata.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Match is a query result. Distance is a normalized cosine distance in
// [0,1]; 0 means identical direction.
type Match struct {
	Document
	Distance float64
}

// Index is the embedding/similarity backing index contract.
type Index interface {
	// Upsert stores or replaces a document and its embedding.
	Upsert(ctx context.Context, doc Document) error

	// Query returns up to k nearest documents to the query text,
	// restricted to documents whose metadata matches every filter entry.
	Query(ctx context.Context, text string, k int, filter map[string]any) ([]Match, error)

	// List returns all documents matching the filter, without similarity
	// ordering. Used by maintenance paths (pruning, lifecycle).
	List(ctx context.Context, filter map[string]any) ([]Match, error)

	// Delete removes documents by id. Missing ids are ignored.
	Delete(ctx context.Context, ids []string) error
}
