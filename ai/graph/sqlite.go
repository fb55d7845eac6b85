package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteGraph persists the graph in SQLite so a narrative survives
// process restarts. It implements the same Store contract as the
// in-memory Graph; rowid order stands in for insertion order.
type SQLiteGraph struct {
	db *sql.DB
}

// NewSQLiteGraph opens (or creates) the graph database at dsn and runs
// the schema migration.
func NewSQLiteGraph(ctx context.Context, dsn string) (*SQLiteGraph, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open graph database")
	}
	g := &SQLiteGraph{db: db}
	if err := g.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return g, nil
}

// Close releases the database handle.
func (g *SQLiteGraph) Close() error {
	return g.db.Close()
}

func (g *SQLiteGraph) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS loom_graph_node (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL DEFAULT '',
	properties TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS loom_graph_edge (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	relation TEXT NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (source, target, relation)
);
CREATE INDEX IF NOT EXISTS idx_loom_graph_edge_source ON loom_graph_edge (source);
`
	if _, err := g.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "migrate graph schema")
	}
	return nil
}

// AddNode upserts a node, merging properties into an existing row.
func (g *SQLiteGraph) AddNode(ctx context.Context, node Node) error {
	if node.ID == "" {
		return errors.New("graph node requires an id")
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin node upsert")
	}
	defer tx.Rollback()

	if err := upsertNodeTx(ctx, tx, node); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit node upsert")
}

func upsertNodeTx(ctx context.Context, tx *sql.Tx, node Node) error {
	var existingType, existingProps string
	err := tx.QueryRowContext(ctx,
		"SELECT type, properties FROM loom_graph_node WHERE id = ?", node.ID,
	).Scan(&existingType, &existingProps)

	switch {
	case err == sql.ErrNoRows:
		props, merr := marshalProperties(node.Properties)
		if merr != nil {
			return merr
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO loom_graph_node (id, type, properties) VALUES (?, ?, ?)",
			node.ID, string(node.Type), props)
		return errors.Wrapf(err, "insert node %s", node.ID)
	case err != nil:
		return errors.Wrapf(err, "read node %s", node.ID)
	}

	prev, err := unmarshalProperties(existingProps)
	if err != nil {
		return errors.Wrapf(err, "decode node %s", node.ID)
	}
	merged, err := marshalProperties(prev.Merge(node.Properties))
	if err != nil {
		return err
	}
	nodeType := existingType
	if node.Type != "" {
		nodeType = string(node.Type)
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE loom_graph_node SET type = ?, properties = ? WHERE id = ?",
		nodeType, merged, node.ID)
	return errors.Wrapf(err, "update node %s", node.ID)
}

// AddEdge upserts an edge and auto-creates stub endpoints.
func (g *SQLiteGraph) AddEdge(ctx context.Context, edge Edge) error {
	if edge.Source == "" || edge.Target == "" || edge.Relation == "" {
		return errors.New("graph edge requires source, target and relation")
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin edge upsert")
	}
	defer tx.Rollback()

	for _, id := range []string{edge.Source, edge.Target} {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO loom_graph_node (id) VALUES (?)", id); err != nil {
			return errors.Wrapf(err, "stub node %s", id)
		}
	}

	props, err := marshalProperties(edge.Properties)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO loom_graph_edge (source, target, relation, properties) VALUES (?, ?, ?, ?)
ON CONFLICT (source, target, relation) DO UPDATE SET properties = excluded.properties`,
		edge.Source, edge.Target, edge.Relation, props)
	if err != nil {
		return errors.Wrapf(err, "upsert edge %s -[%s]-> %s", edge.Source, edge.Relation, edge.Target)
	}
	return errors.Wrap(tx.Commit(), "commit edge upsert")
}

// GetNode returns the node or nil when absent.
func (g *SQLiteGraph) GetNode(ctx context.Context, id string) (*Node, error) {
	var nodeType, props string
	err := g.db.QueryRowContext(ctx,
		"SELECT type, properties FROM loom_graph_node WHERE id = ?", id,
	).Scan(&nodeType, &props)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read node %s", id)
	}

	properties, err := unmarshalProperties(props)
	if err != nil {
		return nil, errors.Wrapf(err, "decode node %s", id)
	}
	return &Node{ID: id, Type: NodeType(nodeType), Properties: properties}, nil
}

// Neighbors returns outgoing edges from id in insertion order.
func (g *SQLiteGraph) Neighbors(ctx context.Context, id string, relation string) ([]Neighbor, error) {
	query := `
SELECT e.target, e.relation, e.properties, n.type, n.properties
FROM loom_graph_edge e
JOIN loom_graph_node n ON n.id = e.target
WHERE e.source = ?`
	args := []any{id}
	if relation != "" {
		query += " AND e.relation = ?"
		args = append(args, relation)
	}
	query += " ORDER BY e.rowid"

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "list neighbors of %s", id)
	}
	defer rows.Close()

	out := []Neighbor{}
	for rows.Next() {
		var target, rel, edgeProps, nodeType, nodeProps string
		if err := rows.Scan(&target, &rel, &edgeProps, &nodeType, &nodeProps); err != nil {
			return nil, errors.Wrap(err, "scan neighbor row")
		}
		ep, err := unmarshalProperties(edgeProps)
		if err != nil {
			return nil, errors.Wrapf(err, "decode edge %s -> %s", id, target)
		}
		np, err := unmarshalProperties(nodeProps)
		if err != nil {
			return nil, errors.Wrapf(err, "decode node %s", target)
		}
		out = append(out, Neighbor{
			Edge: Edge{Source: id, Target: target, Relation: rel, Properties: ep},
			Node: Node{ID: target, Type: NodeType(nodeType), Properties: np},
		})
	}
	return out, errors.Wrap(rows.Err(), "iterate neighbors")
}

// FindNodes scans all nodes in insertion order, applying the predicate
// in Go so the contract matches the in-memory store exactly.
func (g *SQLiteGraph) FindNodes(ctx context.Context, pred func(*Node) bool) ([]*Node, error) {
	if pred == nil {
		return nil, errors.New("find requires a predicate")
	}

	rows, err := g.db.QueryContext(ctx,
		"SELECT id, type, properties FROM loom_graph_node ORDER BY rowid")
	if err != nil {
		return nil, errors.Wrap(err, "scan nodes")
	}
	defer rows.Close()

	out := []*Node{}
	for rows.Next() {
		var id, nodeType, props string
		if err := rows.Scan(&id, &nodeType, &props); err != nil {
			return nil, errors.Wrap(err, "scan node row")
		}
		properties, err := unmarshalProperties(props)
		if err != nil {
			return nil, errors.Wrapf(err, "decode node %s", id)
		}
		node := &Node{ID: id, Type: NodeType(nodeType), Properties: properties}
		if pred(node) {
			out = append(out, node)
		}
	}
	return out, errors.Wrap(rows.Err(), "iterate nodes")
}

// Stats returns node and edge counts.
func (g *SQLiteGraph) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := g.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM loom_graph_node").Scan(&stats.NodeCount); err != nil {
		return stats, errors.Wrap(err, "count nodes")
	}
	if err := g.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM loom_graph_edge").Scan(&stats.EdgeCount); err != nil {
		return stats, errors.Wrap(err, "count edges")
	}
	return stats, nil
}

// Clear wipes all nodes and edges.
func (g *SQLiteGraph) Clear(ctx context.Context) error {
	if _, err := g.db.ExecContext(ctx, "DELETE FROM loom_graph_edge"); err != nil {
		return errors.Wrap(err, "clear edges")
	}
	if _, err := g.db.ExecContext(ctx, "DELETE FROM loom_graph_node"); err != nil {
		return errors.Wrap(err, "clear nodes")
	}
	slog.Info("knowledge graph cleared")
	return nil
}

func marshalProperties(p Properties) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(err, "encode properties")
	}
	return string(raw), nil
}

func unmarshalProperties(raw string) (Properties, error) {
	if raw == "" || raw == "{}" {
		return Properties{}, nil
	}
	var p Properties
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return p, nil
}
