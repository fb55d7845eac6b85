// Package graph provides the typed knowledge graph holding structural
// narrative facts: which entities exist and how they relate.
package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// NodeType classifies graph nodes.
type NodeType string

const (
	NodeCharacter NodeType = "Character"
	NodeLocation  NodeType = "Location"
	NodeEpisode   NodeType = "Episode"
	NodePlotPoint NodeType = "PlotPoint"
	NodeTheme     NodeType = "Theme"
	NodeObject    NodeType = "Object"
	NodeGoal      NodeType = "Goal"
	NodeTrait     NodeType = "Trait"
)

// Relation type constants. Edges are directed: plot points FOLLOWS
// chronologically, INVOLVES characters, LOCATED_IN locations.
const (
	RelFollows   = "FOLLOWS"
	RelInvolves  = "INVOLVES"
	RelLocatedIn = "LOCATED_IN"
	RelHasTrait  = "HAS_TRAIT"
	RelHasGoal   = "HAS_GOAL"
	RelPartOf    = "PART_OF"
	RelAffects   = "AFFECTS"
	RelMentions  = "MENTIONS"
	RelLeadsTo   = "LEADS_TO"
	RelContains  = "CONTAINS"
)

// ValueKind discriminates property values.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
	KindList   ValueKind = "list"
)

// Value is a tagged property value. A small closed set of kinds instead
// of an untyped map keeps property handling checkable at compile time.
type Value struct {
	Kind ValueKind `json:"kind"`
	Str  string    `json:"str,omitempty"`
	Num  float64   `json:"num,omitempty"`
	Bool bool      `json:"bool,omitempty"`
	List []string  `json:"list,omitempty"`
}

// StringValue creates a string property value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberValue creates a numeric property value.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// BoolValue creates a boolean property value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// ListValue creates a string-list property value.
func ListValue(items ...string) Value { return Value{Kind: KindList, List: items} }

// Any unwraps the value for dynamic consumers (CEL filters, rendering).
func (v Value) Any() any {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindList:
		return v.List
	default:
		return v.Str
	}
}

// Text renders the value for context flattening.
func (v Value) Text() string {
	switch v.Kind {
	case KindNumber:
		return strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%.2f", v.Num), "0"), ".0")
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindList:
		return strings.Join(v.List, ", ")
	default:
		return v.Str
	}
}

// Properties maps property names to tagged values.
type Properties map[string]Value

// Clone returns a shallow copy.
func (p Properties) Clone() Properties {
	if p == nil {
		return Properties{}
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge overlays other onto a copy of p; other's keys win.
func (p Properties) Merge(other Properties) Properties {
	out := p.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// AnyMap unwraps all values for dynamic consumers.
func (p Properties) AnyMap() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Any()
	}
	return out
}

// sortedKeys returns property names in stable order.
func (p Properties) sortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Node is a graph entity.
type Node struct {
	ID         string     `json:"id"`
	Type       NodeType   `json:"type"`
	Properties Properties `json:"properties,omitempty"`
}

// Edge is a directed, typed relationship. Multiple edges with different
// relations may exist between the same pair of nodes.
type Edge struct {
	Source     string     `json:"source"`
	Target     string     `json:"target"`
	Relation   string     `json:"relation"`
	Properties Properties `json:"properties,omitempty"`
}

// Neighbor pairs an outgoing edge with a snapshot of the node it points
// to.
type Neighbor struct {
	Edge Edge `json:"edge"`
	Node Node `json:"node"`
}

// Stats contains graph statistics.
type Stats struct {
	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`
}

// Store is the graph backing store contract. The in-memory Graph is the
// reference implementation; SQLiteGraph backs the same contract with an
// indexed store. Lookup misses are nil/empty results, not errors.
type Store interface {
	// AddNode upserts a node: properties merge into an existing node
	// with the same id.
	AddNode(ctx context.Context, node Node) error

	// AddEdge upserts an edge keyed by (source, target, relation);
	// later properties overwrite earlier ones. Missing endpoints are
	// auto-created as empty stub nodes so early-narrative writes stay
	// order-independent.
	AddEdge(ctx context.Context, edge Edge) error

	// GetNode returns the node or nil when absent.
	GetNode(ctx context.Context, id string) (*Node, error)

	// Neighbors returns outgoing edges from id, optionally restricted
	// to one relation type. Direction matters.
	Neighbors(ctx context.Context, id string, relation string) ([]Neighbor, error)

	// FindNodes returns all nodes matching the predicate, in insertion
	// order. The reference store scans linearly; indexed stores may do
	// better behind the same contract.
	FindNodes(ctx context.Context, pred func(*Node) bool) ([]*Node, error)

	// Stats returns node and edge counts.
	Stats(ctx context.Context) (Stats, error)

	// Clear wipes all nodes and edges. Only used at the start of a new
	// narrative, never mid-generation.
	Clear(ctx context.Context) error
}
