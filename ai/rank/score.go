// Package rank provides pure relevance scoring for memory retrieval.
// A candidate's relevance is a weighted blend of semantic similarity,
// recency, and importance, so old-but-important memories stay retrievable
// and recent-but-irrelevant ones stay suppressed.
package rank

import "time"

// DefaultDecayRate is the default hourly recency decay rate.
const DefaultDecayRate = 0.01

// Weights controls how much recency and importance contribute to the
// combined score. The remainder (1 - Recency - Importance) goes to
// semantic similarity.
type Weights struct {
	Recency    float64
	Importance float64
}

// DefaultWeights returns the retrieval weights used when a caller has no
// preference.
func DefaultWeights() Weights {
	return Weights{Recency: 0.1, Importance: 0.1}
}

// Clamp bounds each weight to [0, 0.5]. The clamped sum is at most 1, so
// the similarity share never goes negative.
func (w Weights) Clamp() Weights {
	return Weights{
		Recency:    clamp(w.Recency, 0, 0.5),
		Importance: clamp(w.Importance, 0, 0.5),
	}
}

// Similarity converts a normalized distance in [0,1] to a similarity
// score in [0,1]. Out-of-range distances are clamped first.
func Similarity(distance float64) float64 {
	return 1 - clamp(distance, 0, 1)
}

// Recency scores how recent a timestamp is relative to now. It equals 1.0
// at zero elapsed hours and strictly decreases as time passes. Timestamps
// in the future score 1.0.
func Recency(created, now time.Time, decayRate float64) float64 {
	if decayRate <= 0 {
		decayRate = DefaultDecayRate
	}
	hours := now.Sub(created).Hours()
	if hours < 0 {
		hours = 0
	}
	return 1 / (1 + decayRate*hours)
}

// Combined blends similarity, recency, and importance using the given
// weights. Weights are clamped before use.
func Combined(similarity, recency, importance float64, w Weights) float64 {
	w = w.Clamp()
	return (1-w.Recency-w.Importance)*clamp(similarity, 0, 1) +
		w.Recency*clamp(recency, 0, 1) +
		w.Importance*clamp(importance, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
