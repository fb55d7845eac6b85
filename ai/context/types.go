// Package context assembles token-budgeted prompt context from memories,
// graph facts and recent summaries.
package context

import "time"

// CandidateKind classifies where a context candidate came from.
type CandidateKind string

const (
	KindMemory        CandidateKind = "memory"
	KindGraphFact     CandidateKind = "graph_fact"
	KindRecentSummary CandidateKind = "recent_summary"
)

// Fixed priorities for non-memory candidates. Memories carry their own
// retrieval relevance instead.
const (
	priorityPrevScene   = 1.0
	priorityPrevEpisode = 0.95
	priorityProfile     = 0.9
	priorityGraphFacts  = 0.7
	priorityActSummary  = 0.5
)

// Request describes one context assembly.
type Request struct {
	// Query is the retrieval query, typically the upcoming scene
	// direction.
	Query string `json:"query"`

	// EntityIDs are the entities in focus; each contributes graph facts
	// and memories.
	EntityIDs []string `json:"entity_ids"`

	// TokenBudget is the hard ceiling on assembled context size.
	TokenBudget int `json:"token_budget"`

	PrevSceneSummary   string `json:"prev_scene_summary,omitempty"`
	PrevEpisodeSummary string `json:"prev_episode_summary,omitempty"`

	// ChunkID selects the cached act summary, when one exists.
	ChunkID string `json:"chunk_id,omitempty"`
}

// Candidate is one scored piece of potential context.
type Candidate struct {
	Kind    CandidateKind `json:"kind"`
	Label   string        `json:"label"`
	Content string        `json:"content"`
	Score   float64       `json:"score"`
	Size    int           `json:"size"` // estimated tokens of the rendered block
}

// Diagnostics reports what assembly did.
type Diagnostics struct {
	TokensUsed int           `json:"tokens_used"`
	Considered int           `json:"considered"`
	Accepted   int           `json:"accepted"`
	Dropped    int           `json:"dropped"`
	BuildTime  time.Duration `json:"build_time"`
}

// Result is the assembled context.
type Result struct {
	Text        string      `json:"text"`
	Accepted    []Candidate `json:"accepted"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Stats are cumulative assembly counters.
type Stats struct {
	Assemblies        int64 `json:"assemblies"`
	TokensUsed        int64 `json:"tokens_used"`
	CandidatesDropped int64 `json:"candidates_dropped"`
}
