package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	// Postgres driver.
	_ "github.com/lib/pq"

	"github.com/storyloom/loom/ai"
)

// Column-backed filter keys. Everything else matches against the metadata
// JSONB document.
const (
	FilterDomain = "domain"
	FilterOwner  = "owner_id"
)

// PGIndex is the production Index implementation on Postgres + pgvector.
type PGIndex struct {
	db       *sql.DB
	embedder ai.EmbeddingService
}

// NewPGIndex opens a pgvector-backed index.
func NewPGIndex(dsn string, embedder ai.EmbeddingService) (*PGIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres")
	}
	return &PGIndex{db: db, embedder: embedder}, nil
}

// Migrate creates the embedding table and similarity index.
func (idx *PGIndex) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS loom_embedding (
				id TEXT PRIMARY KEY,
				domain TEXT NOT NULL DEFAULT '',
				owner_id TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL,
				metadata JSONB NOT NULL DEFAULT '{}',
				embedding vector(%d) NOT NULL
			)`, idx.embedder.Dimensions()),
		`CREATE INDEX IF NOT EXISTS idx_loom_embedding_owner ON loom_embedding (domain, owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_loom_embedding_vector ON loom_embedding USING ivfflat (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := idx.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate embedding schema")
		}
	}
	return nil
}

// Close closes the underlying connection pool.
func (idx *PGIndex) Close() error {
	return idx.db.Close()
}

// Upsert stores or replaces a document and its embedding.
func (idx *PGIndex) Upsert(ctx context.Context, doc Document) error {
	vec, err := idx.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return errors.Wrap(err, "failed to embed document")
	}

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return errors.Wrap(err, "failed to marshal metadata")
	}

	stmt := `
		INSERT INTO loom_embedding (id, domain, owner_id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			domain = EXCLUDED.domain,
			owner_id = EXCLUDED.owner_id,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`

	domain, _ := doc.Metadata[FilterDomain].(string)
	owner, _ := doc.Metadata[FilterOwner].(string)
	_, err = idx.db.ExecContext(ctx, stmt, doc.ID, domain, owner, doc.Text, metadata, pgvector.NewVector(vec))
	if err != nil {
		return errors.Wrap(err, "failed to upsert embedding")
	}
	return nil
}

// Query embeds the text and returns up to k nearest documents by cosine
// distance. The <=> operator computes cosine distance, so ordering by it
// ascending yields most similar first.
func (idx *PGIndex) Query(ctx context.Context, text string, k int, filter map[string]any) ([]Match, error) {
	vec, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query")
	}

	if k <= 0 {
		k = 10
	}

	where, args := filterClauses(filter, 1)
	argPos := len(args) + 1
	query := `
		SELECT id, content, metadata, (embedding <=> $` + fmt.Sprint(argPos) + `) AS distance
		FROM loom_embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY embedding <=> $` + fmt.Sprint(argPos+1) + `
		LIMIT $` + fmt.Sprint(argPos+2)

	qvec := pgvector.NewVector(vec)
	args = append(args, qvec, qvec, k)

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query embeddings")
	}
	defer rows.Close()

	return scanMatches(rows, true)
}

// List returns all documents matching the filter.
func (idx *PGIndex) List(ctx context.Context, filter map[string]any) ([]Match, error) {
	where, args := filterClauses(filter, 1)
	query := `
		SELECT id, content, metadata
		FROM loom_embedding
		WHERE ` + strings.Join(where, " AND ")

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list embeddings")
	}
	defer rows.Close()

	return scanMatches(rows, false)
}

// Delete removes documents by id.
func (idx *PGIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	stmt := `DELETE FROM loom_embedding WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	if _, err := idx.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to delete embeddings")
	}
	return nil
}

func filterClauses(filter map[string]any, startPos int) ([]string, []any) {
	where, args := []string{"1 = 1"}, []any{}
	rest := map[string]any{}

	for key, value := range filter {
		switch key {
		case FilterDomain:
			where = append(where, fmt.Sprintf("domain = $%d", startPos+len(args)))
			args = append(args, value)
		case FilterOwner:
			where = append(where, fmt.Sprintf("owner_id = $%d", startPos+len(args)))
			args = append(args, value)
		default:
			rest[key] = value
		}
	}

	if len(rest) > 0 {
		if blob, err := json.Marshal(rest); err == nil {
			where = append(where, fmt.Sprintf("metadata @> $%d", startPos+len(args)))
			args = append(args, blob)
		}
	}

	return where, args
}

func scanMatches(rows *sql.Rows, withDistance bool) ([]Match, error) {
	var matches []Match
	for rows.Next() {
		var m Match
		var metadataBytes []byte

		var err error
		if withDistance {
			err = rows.Scan(&m.ID, &m.Text, &metadataBytes, &m.Distance)
		} else {
			err = rows.Scan(&m.ID, &m.Text, &metadataBytes)
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan embedding row")
		}

		if len(metadataBytes) > 0 {
			if err := json.Unmarshal(metadataBytes, &m.Metadata); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal metadata")
			}
		}

		// Cosine distance is nominally [0,2]; the contract is [0,1].
		if m.Distance > 1 {
			m.Distance = 1
		}
		if m.Distance < 0 {
			m.Distance = 0
		}

		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

// Ensure PGIndex implements Index
var _ Index = (*PGIndex)(nil)
