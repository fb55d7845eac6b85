package memory

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/storyloom/loom/ai/rank"
	"github.com/storyloom/loom/ai/vector"
)

// ErrStorage indicates the backing index rejected a write (embedding
// failed or the index is unreachable). Write-path callers decide whether
// that is fatal to their generation step.
var ErrStorage = errors.New("memory storage unavailable")

// overfetchFactor controls how many nearest-neighbor candidates are pulled
// before re-ranking with recency and importance.
const overfetchFactor = 3

// Store is a per-domain memory store over a shared backing index.
//
// Writers follow single-writer-per-entity discipline: the store adds no
// locking of its own beyond what the index provides, and concurrent
// writes to the same owner must be serialized by the caller. Reads are
// safe to run concurrently with unrelated writes.
type Store struct {
	domain Domain
	index  vector.Index

	decayRate float64
	now       func() time.Time
}

// NewStore creates a memory store for one domain.
func NewStore(domain Domain, index vector.Index) *Store {
	return &Store{
		domain:    domain,
		index:     index,
		decayRate: rank.DefaultDecayRate,
		now:       time.Now,
	}
}

// NewDomainStores creates one store per memory domain over the shared
// index.
func NewDomainStores(index vector.Index) map[Domain]*Store {
	stores := make(map[Domain]*Store, len(Domains()))
	for _, domain := range Domains() {
		stores[domain] = NewStore(domain, index)
	}
	return stores
}

// Domain returns the store's memory domain.
func (s *Store) Domain() Domain {
	return s.domain
}

// Add stores a record and its embedding. The owner is required. Index
// failures are wrapped in ErrStorage and propagated, not retried.
func (s *Store) Add(ctx context.Context, rec *Record) error {
	if rec == nil || rec.OwnerID == "" {
		return errors.New("memory record requires an owner entity")
	}
	if rec.embeddedText() == "" {
		return errors.New("memory record requires text")
	}

	rec.normalize(s.domain, s.now())

	doc := vector.Document{
		ID:       rec.ID,
		Text:     rec.embeddedText(),
		Metadata: rec.metadata(),
	}
	if err := s.index.Upsert(ctx, doc); err != nil {
		return errors.Wrapf(ErrStorage, "add memory %s: %v", rec.ID, err)
	}

	slog.Debug("memory record stored",
		"domain", s.domain, "owner", rec.OwnerID, "id", rec.ID, "importance", rec.Importance)
	return nil
}

// RetrieveRelevant returns up to k records for the owner ranked by the
// combined similarity/recency/importance score. Retrieval never aborts a
// generation step: index failures and unknown owners yield an empty
// slice.
func (s *Store) RetrieveRelevant(ctx context.Context, ownerID, query string, k int, w rank.Weights) []Retrieved {
	if ownerID == "" || k <= 0 {
		return []Retrieved{}
	}
	w = w.Clamp()

	filter := map[string]any{
		metaDomain: string(s.domain),
		metaOwner:  ownerID,
	}
	matches, err := s.index.Query(ctx, query, k*overfetchFactor, filter)
	if err != nil {
		slog.Warn("memory retrieval failed, continuing with no candidates",
			"domain", s.domain, "owner", ownerID, "error", err)
		return []Retrieved{}
	}

	now := s.now()
	results := make([]Retrieved, 0, len(matches))
	for _, m := range matches {
		rec := recordFromMatch(m.ID, m.Text, m.Metadata)
		similarity := rank.Similarity(m.Distance)
		recency := rank.Recency(rec.CreatedAt, now, s.decayRate)
		results = append(results, Retrieved{
			Record:     rec,
			Similarity: similarity,
			Recency:    recency,
			Relevance:  rank.Combined(similarity, recency, rec.Importance, w),
		})
	}

	// Stable sort keeps index order on equal relevance; earlier-created
	// records win explicit ties for deterministic ranking.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})

	if k < len(results) {
		results = results[:k]
	}
	return results
}

// Prune deletes the owner's records that are both older than olderThan
// and less important than importanceBelow. Returns the number of records
// removed. Maintenance path only, never called during assembly.
func (s *Store) Prune(ctx context.Context, ownerID string, olderThan time.Time, importanceBelow float64) (int, error) {
	if ownerID == "" {
		return 0, errors.New("prune requires an owner entity")
	}

	filter := map[string]any{
		metaDomain: string(s.domain),
		metaOwner:  ownerID,
	}
	matches, err := s.index.List(ctx, filter)
	if err != nil {
		return 0, errors.Wrapf(ErrStorage, "prune list for %s: %v", ownerID, err)
	}

	var ids []string
	for _, m := range matches {
		rec := recordFromMatch(m.ID, m.Text, m.Metadata)
		if rec.CreatedAt.Before(olderThan) && rec.Importance < importanceBelow {
			ids = append(ids, rec.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.index.Delete(ctx, ids); err != nil {
		return 0, errors.Wrapf(ErrStorage, "prune delete for %s: %v", ownerID, err)
	}

	slog.Info("memory records pruned", "domain", s.domain, "owner", ownerID, "count", len(ids))
	return len(ids), nil
}
