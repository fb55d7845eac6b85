package context

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/storyloom/loom/ai/graph"
	"github.com/storyloom/loom/ai/memory"
	"github.com/storyloom/loom/ai/rank"
	"github.com/storyloom/loom/ai/summarize"
)

// ErrInvalidBudget rejects assembly requests without a positive token
// budget.
var ErrInvalidBudget = errors.New("token budget must be positive")

const (
	defaultMemoriesPerEntity = 3
	gatherConcurrency        = 4
	profileProperty          = "summary"
)

// Optimizer gathers scored context candidates and packs them greedily
// into a hard token budget.
type Optimizer struct {
	memories          *memory.Store
	graph             graph.Store
	summaries         *summarize.Summarizer
	estimator         SizeEstimator
	weights           rank.Weights
	memoriesPerEntity int

	assemblies atomic.Int64
	tokensUsed atomic.Int64
	dropped    atomic.Int64
}

// NewOptimizer creates an optimizer over the character memory store, the
// knowledge graph and the summarizer.
func NewOptimizer(memories *memory.Store, g graph.Store, summaries *summarize.Summarizer) *Optimizer {
	return &Optimizer{
		memories:          memories,
		graph:             g,
		summaries:         summaries,
		estimator:         CharEstimator,
		weights:           rank.DefaultWeights(),
		memoriesPerEntity: defaultMemoriesPerEntity,
	}
}

// WithEstimator overrides the token size estimator.
func (o *Optimizer) WithEstimator(est SizeEstimator) *Optimizer {
	if est != nil {
		o.estimator = est
	}
	return o
}

// WithWeights overrides the retrieval ranking weights.
func (o *Optimizer) WithWeights(w rank.Weights) *Optimizer {
	o.weights = w
	return o
}

// Assemble builds context for the request. Collaborator failures
// degrade to fewer candidates; the only hard error is an invalid
// budget.
func (o *Optimizer) Assemble(ctx stdctx.Context, req Request) (*Result, error) {
	if req.TokenBudget <= 0 {
		return nil, errors.Wrapf(ErrInvalidBudget, "got %d", req.TokenBudget)
	}
	start := time.Now()

	candidates := o.gather(ctx, req)
	for i := range candidates {
		candidates[i].Size = o.estimator(renderBlock(candidates[i]))
	}

	// Deterministic order: score first, then label, so concurrent
	// gathering never changes the output.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Label < candidates[j].Label
	})

	accepted, used := selectWithinBudget(candidates, req.TokenBudget)

	var b strings.Builder
	for _, c := range accepted {
		b.WriteString(renderBlock(c))
	}

	result := &Result{
		Text:     strings.TrimRight(b.String(), "\n"),
		Accepted: accepted,
		Diagnostics: Diagnostics{
			TokensUsed: used,
			Considered: len(candidates),
			Accepted:   len(accepted),
			Dropped:    len(candidates) - len(accepted),
			BuildTime:  time.Since(start),
		},
	}

	o.assemblies.Add(1)
	o.tokensUsed.Add(int64(used))
	o.dropped.Add(int64(result.Diagnostics.Dropped))

	slog.Debug("context assembled",
		"considered", result.Diagnostics.Considered,
		"accepted", result.Diagnostics.Accepted,
		"tokens", used,
		"budget", req.TokenBudget,
		"elapsed", result.Diagnostics.BuildTime)
	return result, nil
}

// GetStats returns cumulative assembly counters.
func (o *Optimizer) GetStats() Stats {
	return Stats{
		Assemblies:        o.assemblies.Load(),
		TokensUsed:        o.tokensUsed.Load(),
		CandidatesDropped: o.dropped.Load(),
	}
}

// gather collects candidates from every source. Recent summaries are
// cheap and run inline; per-entity graph and memory lookups run
// concurrently under a bounded semaphore. Cancellation stops launching
// new lookups and assembly proceeds with whatever was collected.
func (o *Optimizer) gather(ctx stdctx.Context, req Request) []Candidate {
	var (
		mu         sync.Mutex
		candidates []Candidate
	)
	add := func(c Candidate) {
		if strings.TrimSpace(c.Content) == "" {
			return
		}
		mu.Lock()
		candidates = append(candidates, c)
		mu.Unlock()
	}

	add(Candidate{Kind: KindRecentSummary, Label: "previous scene", Content: req.PrevSceneSummary, Score: priorityPrevScene})
	add(Candidate{Kind: KindRecentSummary, Label: "previous episode", Content: req.PrevEpisodeSummary, Score: priorityPrevEpisode})
	if req.ChunkID != "" && o.summaries != nil {
		if act := o.summaries.Cached(summarize.LevelAct, req.ChunkID); act != nil {
			add(Candidate{Kind: KindRecentSummary, Label: "story so far", Content: act.Text, Score: priorityActSummary})
		}
	}

	sem := semaphore.NewWeighted(gatherConcurrency)
	var wg sync.WaitGroup
	launch := func(fn func()) bool {
		if err := sem.Acquire(ctx, 1); err != nil {
			slog.Warn("context gathering cut short", "error", err)
			return false
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			fn()
		}()
		return true
	}

	for _, entityID := range req.EntityIDs {
		id := entityID
		ok := launch(func() { o.gatherGraph(ctx, id, add) })
		if ok && o.memories != nil {
			ok = launch(func() { o.gatherMemories(ctx, id, req.Query, add) })
		}
		if !ok {
			break
		}
	}
	wg.Wait()

	return candidates
}

func (o *Optimizer) gatherGraph(ctx stdctx.Context, entityID string, add func(Candidate)) {
	if o.graph == nil {
		return
	}
	sub, err := graph.SubgraphContext(ctx, o.graph, entityID, 1)
	if err != nil {
		slog.Warn("graph lookup failed, skipping entity facts", "entity", entityID, "error", err)
		return
	}
	if len(sub) == 0 {
		return
	}

	if anchor, ok := sub[entityID]; ok {
		if profile, ok := anchor.Node.Properties[profileProperty]; ok {
			add(Candidate{
				Kind:    KindGraphFact,
				Label:   entityID + " profile",
				Content: profile.Text(),
				Score:   priorityProfile,
			})
		}
	}
	add(Candidate{
		Kind:    KindGraphFact,
		Label:   entityID + " relationships",
		Content: graph.FormatSubgraph(sub),
		Score:   priorityGraphFacts,
	})
}

func (o *Optimizer) gatherMemories(ctx stdctx.Context, entityID, query string, add func(Candidate)) {
	for _, rec := range o.memories.RetrieveRelevant(ctx, entityID, query, o.memoriesPerEntity, o.weights) {
		add(Candidate{
			Kind:    KindMemory,
			Label:   fmt.Sprintf("memory %s %s", entityID, rec.ID),
			Content: rec.Summary,
			Score:   rec.Relevance,
		})
	}
}

// selectWithinBudget walks the sorted candidates and keeps each one
// whose size still fits. Candidates are never split; an oversized
// candidate is dropped and the walk continues to smaller ones.
func selectWithinBudget(candidates []Candidate, budget int) ([]Candidate, int) {
	accepted := []Candidate{}
	used := 0
	for _, c := range candidates {
		if used+c.Size > budget {
			continue
		}
		accepted = append(accepted, c)
		used += c.Size
	}
	return accepted, used
}

func renderBlock(c Candidate) string {
	return "--- " + c.Label + " ---\n" + c.Content + "\n\n"
}
