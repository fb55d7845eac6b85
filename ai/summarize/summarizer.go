// Package summarize condenses narrative content into scene, episode and
// act level summaries for prompt assembly.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lithammer/shortuuid/v4"
)

// Level is the summarization tier.
type Level string

const (
	LevelScene   Level = "scene"
	LevelEpisode Level = "episode"
	LevelAct     Level = "act"
)

// Per-level generation parameters. Input ceilings bound prompt cost;
// output budgets grow with the tier since higher tiers cover more story.
var levelParams = map[Level]struct {
	inputCeiling int
	maxTokens    int
	temperature  float32
	instruction  string
}{
	LevelScene: {
		inputCeiling: 3000,
		maxTokens:    100,
		temperature:  0.5,
		instruction:  "Summarize this scene in 2-3 sentences. Keep character actions, key dialogue beats and emotional shifts.",
	},
	LevelEpisode: {
		inputCeiling: 4000,
		maxTokens:    200,
		temperature:  0.5,
		instruction:  "Summarize this episode in one short paragraph. Keep the main plot developments and how character relationships changed.",
	},
	LevelAct: {
		inputCeiling: 6000,
		maxTokens:    300,
		temperature:  0.6,
		instruction:  "Summarize this act of the story in one paragraph. Keep the overall arc, major turning points and unresolved threads.",
	},
}

// Summary is a generated summary at one tier.
type Summary struct {
	ID          string    `json:"id"`
	Level       Level     `json:"level"`
	OwnerID     string    `json:"owner_id"`
	Text        string    `json:"text"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Element is one piece of scene content to summarize.
type Element struct {
	Type    string `json:"type"` // action, dialogue, description
	Content string `json:"content"`
}

// Completer produces text completions. ai.LLMService satisfies it.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}

// Summarizer generates and caches tiered summaries. When the completer
// fails, it degrades to a truncated excerpt of the input rather than
// failing the caller; summaries are advisory context, not correctness.
type Summarizer struct {
	completer Completer
	cache     *summaryCache
	now       func() time.Time
}

// NewSummarizer creates a summarizer over the completion backend.
func NewSummarizer(completer Completer) *Summarizer {
	return &Summarizer{
		completer: completer,
		cache:     newSummaryCache(),
		now:       time.Now,
	}
}

// SummarizeScene condenses scene elements into a scene summary. Empty
// input yields nil with no error.
func (s *Summarizer) SummarizeScene(ctx context.Context, sceneID string, elements []Element) (*Summary, error) {
	var parts []string
	for _, el := range elements {
		content := strings.TrimSpace(el.Content)
		if content == "" {
			continue
		}
		if el.Type != "" {
			parts = append(parts, fmt.Sprintf("[%s] %s", el.Type, content))
		} else {
			parts = append(parts, content)
		}
	}
	return s.summarize(ctx, LevelScene, sceneID, strings.Join(parts, "\n"))
}

// SummarizeEpisode condenses an episode. Scene summaries are preferred
// input when available; rawText is the fallback for episodes whose
// scenes were never summarized.
func (s *Summarizer) SummarizeEpisode(ctx context.Context, episodeID string, sceneSummaries []string, rawText string) (*Summary, error) {
	input := joinNonEmpty(sceneSummaries)
	if input == "" {
		input = strings.TrimSpace(rawText)
	}
	return s.summarize(ctx, LevelEpisode, episodeID, input)
}

// SummarizeChunk condenses an act-sized chunk of episode summaries.
func (s *Summarizer) SummarizeChunk(ctx context.Context, chunkID string, episodeSummaries []string) (*Summary, error) {
	return s.summarize(ctx, LevelAct, chunkID, joinNonEmpty(episodeSummaries))
}

// Cached returns the cached summary for (level, owner), or nil.
func (s *Summarizer) Cached(level Level, ownerID string) *Summary {
	return s.cache.get(level, ownerID)
}

// Invalidate drops the cached summary for (level, owner) so the next
// request regenerates it.
func (s *Summarizer) Invalidate(level Level, ownerID string) {
	s.cache.invalidate(level, ownerID)
}

func (s *Summarizer) summarize(ctx context.Context, level Level, ownerID, input string) (*Summary, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	if cached := s.cache.get(level, ownerID); cached != nil {
		return cached, nil
	}

	params := levelParams[level]
	input = truncate(input, params.inputCeiling)
	prompt := params.instruction + "\n\n" + input

	text, err := s.completer.Complete(ctx, prompt, params.maxTokens, params.temperature)
	if err != nil {
		// Degrade to an excerpt so assembly still has something.
		slog.Warn("summary generation failed, falling back to excerpt",
			"level", level, "owner", ownerID, "error", err)
		text = truncate(input, params.maxTokens*4)
	}

	summary := &Summary{
		ID:          shortuuid.New(),
		Level:       level,
		OwnerID:     ownerID,
		Text:        strings.TrimSpace(text),
		GeneratedAt: s.now(),
	}
	s.cache.put(summary)
	return summary, nil
}

func joinNonEmpty(parts []string) string {
	var kept []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n")
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
