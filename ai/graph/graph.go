package graph

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
)

// Graph is the in-memory reference store. A single RWMutex guards the
// whole structure; per-narrative graphs stay small enough that finer
// locking buys nothing.
type Graph struct {
	mu        sync.RWMutex
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string][]*Edge // keyed by source, insertion order
	edgeCount int
}

// NewGraph creates an empty in-memory graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string][]*Edge),
	}
}

// AddNode upserts a node. Properties merge into an existing node with
// the same id, new keys winning; a non-empty type overwrites a stub's.
func (g *Graph) AddNode(_ context.Context, node Node) error {
	if node.ID == "" {
		return errors.New("graph node requires an id")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.upsertNode(node)
	return nil
}

// caller holds the write lock.
func (g *Graph) upsertNode(node Node) {
	existing, ok := g.nodes[node.ID]
	if !ok {
		n := node
		n.Properties = node.Properties.Clone()
		g.nodes[node.ID] = &n
		g.nodeOrder = append(g.nodeOrder, node.ID)
		return
	}
	if node.Type != "" {
		existing.Type = node.Type
	}
	existing.Properties = existing.Properties.Merge(node.Properties)
}

// AddEdge upserts an edge keyed by (source, target, relation). Missing
// endpoints become empty stub nodes; a later AddNode fills them in.
func (g *Graph) AddEdge(_ context.Context, edge Edge) error {
	if edge.Source == "" || edge.Target == "" || edge.Relation == "" {
		return errors.New("graph edge requires source, target and relation")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range []string{edge.Source, edge.Target} {
		if _, ok := g.nodes[id]; !ok {
			slog.Debug("auto-creating stub node for edge endpoint", "id", id)
			g.upsertNode(Node{ID: id})
		}
	}

	for _, e := range g.edges[edge.Source] {
		if e.Target == edge.Target && e.Relation == edge.Relation {
			e.Properties = edge.Properties.Clone()
			return nil
		}
	}

	e := edge
	e.Properties = edge.Properties.Clone()
	g.edges[edge.Source] = append(g.edges[edge.Source], &e)
	g.edgeCount++
	return nil
}

// GetNode returns a copy of the node, or nil when absent.
func (g *Graph) GetNode(_ context.Context, id string) (*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]
	if !ok {
		return nil, nil
	}
	out := *node
	out.Properties = node.Properties.Clone()
	return &out, nil
}

// Neighbors returns outgoing edges from id in insertion order. An empty
// relation matches every relation type. Unknown ids yield an empty
// slice.
func (g *Graph) Neighbors(_ context.Context, id string, relation string) ([]Neighbor, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := []Neighbor{}
	for _, e := range g.edges[id] {
		if relation != "" && e.Relation != relation {
			continue
		}
		target := g.nodes[e.Target]
		out = append(out, Neighbor{
			Edge: Edge{Source: e.Source, Target: e.Target, Relation: e.Relation, Properties: e.Properties.Clone()},
			Node: Node{ID: target.ID, Type: target.Type, Properties: target.Properties.Clone()},
		})
	}
	return out, nil
}

// FindNodes scans every node in insertion order and returns copies of
// those matching the predicate.
func (g *Graph) FindNodes(_ context.Context, pred func(*Node) bool) ([]*Node, error) {
	if pred == nil {
		return nil, errors.New("find requires a predicate")
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	out := []*Node{}
	for _, id := range g.nodeOrder {
		node := g.nodes[id]
		if pred(node) {
			copied := *node
			copied.Properties = node.Properties.Clone()
			out = append(out, &copied)
		}
	}
	return out, nil
}

// Stats returns node and edge counts.
func (g *Graph) Stats(_ context.Context) (Stats, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Stats{NodeCount: len(g.nodes), EdgeCount: g.edgeCount}, nil
}

// Clear wipes all nodes and edges.
func (g *Graph) Clear(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[string]*Node)
	g.nodeOrder = nil
	g.edges = make(map[string][]*Edge)
	g.edgeCount = 0
	slog.Info("knowledge graph cleared")
	return nil
}
