package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Relationship is one outgoing edge inside a subgraph view.
type Relationship struct {
	Relation   string     `json:"relation"`
	TargetID   string     `json:"target_id"`
	Properties Properties `json:"properties,omitempty"`
}

// NodeContext is a node plus its outgoing relationships as seen from a
// subgraph traversal.
type NodeContext struct {
	Node          Node           `json:"node"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// SubgraphContext walks outward from the anchor up to depth hops and
// returns every reached node keyed by id. Nodes at the depth limit are
// included but not expanded, so their relationships stay empty. A
// missing anchor yields an empty map.
func SubgraphContext(ctx context.Context, s Store, anchorID string, depth int) (map[string]*NodeContext, error) {
	out := map[string]*NodeContext{}

	anchor, err := s.GetNode(ctx, anchorID)
	if err != nil {
		return nil, err
	}
	if anchor == nil {
		return out, nil
	}

	type hop struct {
		id    string
		depth int
	}
	out[anchor.ID] = &NodeContext{Node: *anchor}
	queue := []hop{{id: anchor.ID, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= depth {
			continue
		}

		neighbors, err := s.Neighbors(ctx, cur.id, "")
		if err != nil {
			return nil, err
		}
		nc := out[cur.id]
		for _, n := range neighbors {
			nc.Relationships = append(nc.Relationships, Relationship{
				Relation:   n.Edge.Relation,
				TargetID:   n.Edge.Target,
				Properties: n.Edge.Properties,
			})
			if _, seen := out[n.Node.ID]; seen {
				continue
			}
			node := n.Node
			out[n.Node.ID] = &NodeContext{Node: node}
			queue = append(queue, hop{id: n.Node.ID, depth: cur.depth + 1})
		}
	}
	return out, nil
}

// FormatSubgraph flattens a subgraph into prompt-ready text. Output is
// deterministic: nodes sort by id, properties by key.
func FormatSubgraph(sub map[string]*NodeContext) string {
	if len(sub) == 0 {
		return ""
	}

	ids := make([]string, 0, len(sub))
	for id := range sub {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		nc := sub[id]
		b.WriteString(formatNode(&nc.Node))
		b.WriteByte('\n')
		for _, rel := range nc.Relationships {
			fmt.Fprintf(&b, "  %s -[%s]-> %s\n", id, rel.Relation, rel.TargetID)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatNode(node *Node) string {
	var b strings.Builder
	b.WriteString(node.ID)
	if node.Type != "" {
		fmt.Fprintf(&b, " (%s)", node.Type)
	}
	for _, key := range node.Properties.sortedKeys() {
		fmt.Fprintf(&b, " %s=%q", key, node.Properties[key].Text())
	}
	return b.String()
}
