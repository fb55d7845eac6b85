// Package engine wires the memory, graph, summarization and context
// layers together from a profile.
package engine

import (
	stdctx "context"
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/storyloom/loom/ai"
	"github.com/storyloom/loom/ai/context"
	"github.com/storyloom/loom/ai/graph"
	"github.com/storyloom/loom/ai/memory"
	"github.com/storyloom/loom/ai/summarize"
	"github.com/storyloom/loom/ai/vector"
	"github.com/storyloom/loom/internal/profile"
)

// Engine is the assembled narrative memory engine.
type Engine struct {
	Profile *profile.Profile

	Embedder   ai.EmbeddingService
	LLM        ai.LLMService
	Index      vector.Index
	Stores     map[memory.Domain]*memory.Store
	Graph      graph.Store
	Summarizer *summarize.Summarizer
	Optimizer  *context.Optimizer
	Lifecycle  *memory.Lifecycle

	closers []io.Closer
}

// New builds an engine from the profile. AI must be enabled; without an
// API key there is nothing to embed or summarize with.
func New(ctx stdctx.Context, p *profile.Profile) (*Engine, error) {
	if !p.IsAIEnabled() {
		return nil, errors.New("engine requires AI to be enabled with an API key")
	}

	cfg := ai.NewConfigFromProfile(p)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate AI config")
	}

	embedder, err := ai.NewEmbeddingService(&cfg.Embedding)
	if err != nil {
		return nil, errors.Wrap(err, "create embedding service")
	}
	llm, err := ai.NewLLMService(&cfg.LLM)
	if err != nil {
		return nil, errors.Wrap(err, "create LLM service")
	}

	e := &Engine{
		Profile:  p,
		Embedder: embedder,
		LLM:      llm,
	}

	if p.VectorDSN != "" {
		pg, err := vector.NewPGIndex(p.VectorDSN, embedder)
		if err != nil {
			return nil, errors.Wrap(err, "open vector index")
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, errors.Wrap(err, "migrate vector index")
		}
		e.Index = pg
		e.closers = append(e.closers, pg)
		slog.Info("memory index ready", "backend", "pgvector")
	} else {
		e.Index = vector.NewInMemoryIndex(embedder)
		slog.Info("memory index ready", "backend", "in-memory")
	}

	if p.Driver == "sqlite" {
		sg, err := graph.NewSQLiteGraph(ctx, p.DSN)
		if err != nil {
			e.Close()
			return nil, errors.Wrap(err, "open knowledge graph")
		}
		e.Graph = sg
		e.closers = append(e.closers, sg)
		slog.Info("knowledge graph ready", "backend", "sqlite", "dsn", p.DSN)
	} else {
		e.Graph = graph.NewGraph()
		slog.Info("knowledge graph ready", "backend", "in-memory")
	}

	e.Stores = memory.NewDomainStores(e.Index)
	e.Summarizer = summarize.NewSummarizer(llm)
	e.Optimizer = context.NewOptimizer(e.Stores[memory.DomainCharacter], e.Graph, e.Summarizer)
	e.Lifecycle = memory.NewLifecycle(e.Stores[memory.DomainScene], e.Stores[memory.DomainCharacter])

	return e, nil
}

// Close releases backing stores.
func (e *Engine) Close() error {
	var first error
	for _, c := range e.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
