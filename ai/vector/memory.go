package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/storyloom/loom/ai"
)

// InMemoryIndex is the reference Index implementation. Embeddings come
// from the injected embedding service; similarity is cosine. Documents
// keep their insertion order so equal-distance results rank
// deterministically.
type InMemoryIndex struct {
	embedder ai.EmbeddingService

	mu    sync.RWMutex
	docs  map[string]*storedDoc
	order []string
}

type storedDoc struct {
	doc    Document
	vector []float32
}

// NewInMemoryIndex creates an in-memory index backed by the given
// embedding service.
func NewInMemoryIndex(embedder ai.EmbeddingService) *InMemoryIndex {
	return &InMemoryIndex{
		embedder: embedder,
		docs:     make(map[string]*storedDoc),
	}
}

// Upsert stores or replaces a document. Replacing re-embeds the text.
func (idx *InMemoryIndex) Upsert(ctx context.Context, doc Document) error {
	vec, err := idx.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return errors.Wrap(err, "failed to embed document")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.docs[doc.ID]; !ok {
		idx.order = append(idx.order, doc.ID)
	}
	idx.docs[doc.ID] = &storedDoc{doc: doc, vector: vec}
	return nil
}

// Query embeds the query text and returns up to k nearest documents.
func (idx *InMemoryIndex) Query(ctx context.Context, text string, k int, filter map[string]any) ([]Match, error) {
	vec, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query")
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var matches []Match
	for _, id := range idx.order {
		stored := idx.docs[id]
		if !matchesFilter(stored.doc.Metadata, filter) {
			continue
		}
		matches = append(matches, Match{
			Document: stored.doc,
			Distance: cosineDistance(vec, stored.vector),
		})
	}

	// Stable keeps insertion order on equal distances.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// List returns all documents matching the filter in insertion order.
func (idx *InMemoryIndex) List(ctx context.Context, filter map[string]any) ([]Match, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var matches []Match
	for _, id := range idx.order {
		stored := idx.docs[id]
		if !matchesFilter(stored.doc.Metadata, filter) {
			continue
		}
		matches = append(matches, Match{Document: stored.doc})
	}
	return matches, nil
}

// Delete removes documents by id.
func (idx *InMemoryIndex) Delete(ctx context.Context, ids []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := idx.docs[id]; ok {
			delete(idx.docs, id)
			removed[id] = true
		}
	}
	if len(removed) == 0 {
		return nil
	}

	kept := idx.order[:0]
	for _, id := range idx.order {
		if !removed[id] {
			kept = append(kept, id)
		}
	}
	idx.order = kept
	return nil
}

// matchesFilter checks if metadata matches the filter conditions.
// Strict matching: if a filter key is missing from metadata, it's a
// non-match. This keeps owner/domain isolation intact.
func matchesFilter(metadata, filter map[string]any) bool {
	if filter == nil {
		return true
	}

	for key, value := range filter {
		metaValue, ok := metadata[key]
		if !ok {
			return false
		}
		if metaValue != value {
			return false
		}
	}
	return true
}

// cosineDistance returns 1 - cosine similarity, clamped to [0,1].
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	return 1 - sim
}

// Ensure InMemoryIndex implements Index
var _ Index = (*InMemoryIndex)(nil)
