package vector

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder returns canned vectors per text, a fallback otherwise.
type stubEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	fail     bool
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.fail {
		return nil, errors.New("embedding backend unreachable")
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return s.fallback, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return 3 }

func newTestIndex() *InMemoryIndex {
	return NewInMemoryIndex(&stubEmbedder{
		vectors: map[string][]float32{
			"north": {1, 0, 0},
			"east":  {0, 1, 0},
			"mixed": {1, 1, 0},
		},
		fallback: []float32{0, 0, 1},
	})
}

func TestInMemoryIndexQuery(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	require.NoError(t, idx.Upsert(ctx, Document{ID: "a", Text: "north", Metadata: map[string]any{"owner_id": "char_1"}}))
	require.NoError(t, idx.Upsert(ctx, Document{ID: "b", Text: "east", Metadata: map[string]any{"owner_id": "char_1"}}))
	require.NoError(t, idx.Upsert(ctx, Document{ID: "c", Text: "mixed", Metadata: map[string]any{"owner_id": "char_2"}}))

	t.Run("nearest first", func(t *testing.T) {
		matches, err := idx.Query(ctx, "north", 2, nil)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "a", matches[0].ID)
		assert.InDelta(t, 0.0, matches[0].Distance, 1e-6)
		assert.Equal(t, "c", matches[1].ID)
	})

	t.Run("filter restricts to owner", func(t *testing.T) {
		matches, err := idx.Query(ctx, "north", 10, map[string]any{"owner_id": "char_1"})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		for _, m := range matches {
			assert.Equal(t, "char_1", m.Metadata["owner_id"])
		}
	})

	t.Run("missing filter key is a non-match", func(t *testing.T) {
		matches, err := idx.Query(ctx, "north", 10, map[string]any{"domain": "character"})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("distances stay in range", func(t *testing.T) {
		matches, err := idx.Query(ctx, "east", 10, nil)
		require.NoError(t, err)
		for _, m := range matches {
			assert.GreaterOrEqual(t, m.Distance, 0.0)
			assert.LessOrEqual(t, m.Distance, 1.0)
		}
	})
}

func TestInMemoryIndexUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	require.NoError(t, idx.Upsert(ctx, Document{ID: "a", Text: "north"}))
	require.NoError(t, idx.Upsert(ctx, Document{ID: "a", Text: "east"}))

	matches, err := idx.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "east", matches[0].Text)
}

func TestInMemoryIndexDelete(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	require.NoError(t, idx.Upsert(ctx, Document{ID: "a", Text: "north"}))
	require.NoError(t, idx.Upsert(ctx, Document{ID: "b", Text: "east"}))

	require.NoError(t, idx.Delete(ctx, []string{"a", "unknown"}))

	matches, err := idx.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)
}

func TestInMemoryIndexEmbedFailure(t *testing.T) {
	ctx := context.Background()
	idx := NewInMemoryIndex(&stubEmbedder{fail: true})

	err := idx.Upsert(ctx, Document{ID: "a", Text: "north"})
	assert.Error(t, err)

	_, err = idx.Query(ctx, "north", 3, nil)
	assert.Error(t, err)
}

func TestInMemoryIndexDeterministicTies(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	// Same text, same vector, identical distance; insertion order wins.
	require.NoError(t, idx.Upsert(ctx, Document{ID: "first", Text: "north"}))
	require.NoError(t, idx.Upsert(ctx, Document{ID: "second", Text: "north"}))

	matches, err := idx.Query(ctx, "north", 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "first", matches[0].ID)
	assert.Equal(t, "second", matches[1].ID)
}
