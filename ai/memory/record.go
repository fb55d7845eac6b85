// Package memory provides per-domain, per-entity storage and similarity
// retrieval of narrative memory records.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// Domain separates memory records by narrative concern. Each domain gets
// its own store over the shared backing index.
type Domain string

const (
	DomainCharacter Domain = "character"
	DomainPlot      Domain = "plot"
	DomainTheme     Domain = "theme"
	DomainWorld     Domain = "world"
	DomainScene     Domain = "scene"
)

// Domains lists every memory domain.
func Domains() []Domain {
	return []Domain{DomainCharacter, DomainPlot, DomainTheme, DomainWorld, DomainScene}
}

// Record is a stored observation about a narrative entity. Records are
// immutable once written; re-adding with the same ID replaces the stored
// embedding (aspect updates).
type Record struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Domain     Domain    `json:"domain"`
	CreatedAt  time.Time `json:"created_at"`
	RawText    string    `json:"raw_text"`
	Summary    string    `json:"summary"`
	Importance float64   `json:"importance"` // 0-1
	RelatedIDs []string  `json:"related_ids,omitempty"`
	AffectTag  string    `json:"affect_tag,omitempty"`
}

// Retrieved is a record with its retrieval-time scores attached.
type Retrieved struct {
	Record
	Similarity float64 `json:"similarity"`
	Recency    float64 `json:"recency"`
	Relevance  float64 `json:"relevance"`
}

// embeddedText is what gets embedded and searched: the summary when
// present, the raw text otherwise.
func (r *Record) embeddedText() string {
	if r.Summary != "" {
		return r.Summary
	}
	return r.RawText
}

func (r *Record) normalize(domain Domain, now time.Time) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Domain = domain
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.Importance < 0 {
		r.Importance = 0
	}
	if r.Importance > 1 {
		r.Importance = 1
	}
}

// Metadata keys in the backing index.
const (
	metaDomain     = "domain"
	metaOwner      = "owner_id"
	metaCreated    = "created_ts"
	metaImportance = "importance"
	metaRawText    = "raw_text"
	metaAffectTag  = "affect_tag"
	metaRelated    = "related_ids"
)

func (r *Record) metadata() map[string]any {
	m := map[string]any{
		metaDomain:     string(r.Domain),
		metaOwner:      r.OwnerID,
		metaCreated:    float64(r.CreatedAt.UnixMilli()),
		metaImportance: r.Importance,
	}
	if r.RawText != "" {
		m[metaRawText] = r.RawText
	}
	if r.AffectTag != "" {
		m[metaAffectTag] = r.AffectTag
	}
	if len(r.RelatedIDs) > 0 {
		related := make([]any, len(r.RelatedIDs))
		for i, id := range r.RelatedIDs {
			related[i] = id
		}
		m[metaRelated] = related
	}
	return m
}

// recordFromMatch rebuilds a record from an index document. Metadata may
// have round-tripped through JSON, so values are coerced defensively.
func recordFromMatch(id, text string, metadata map[string]any) Record {
	rec := Record{
		ID:      id,
		Summary: text,
	}
	if metadata == nil {
		return rec
	}

	if v, ok := metadata[metaDomain].(string); ok {
		rec.Domain = Domain(v)
	}
	if v, ok := metadata[metaOwner].(string); ok {
		rec.OwnerID = v
	}
	if ms, ok := asFloat(metadata[metaCreated]); ok {
		rec.CreatedAt = time.UnixMilli(int64(ms))
	}
	if imp, ok := asFloat(metadata[metaImportance]); ok {
		rec.Importance = imp
	}
	if v, ok := metadata[metaRawText].(string); ok {
		rec.RawText = v
	}
	if v, ok := metadata[metaAffectTag].(string); ok {
		rec.AffectTag = v
	}
	switch related := metadata[metaRelated].(type) {
	case []string:
		rec.RelatedIDs = related
	case []any:
		for _, item := range related {
			if s, ok := item.(string); ok {
				rec.RelatedIDs = append(rec.RelatedIDs, s)
			}
		}
	}
	return rec
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
