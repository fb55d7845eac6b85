package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eachStore runs a contract test against both store implementations.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewGraph())
	})

	t.Run("sqlite", func(t *testing.T) {
		dsn := filepath.Join(t.TempDir(), "graph.db")
		s, err := NewSQLiteGraph(context.Background(), dsn)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func TestAddNodeUpsertMerges(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.AddNode(ctx, Node{
			ID:   "char_A",
			Type: NodeCharacter,
			Properties: Properties{
				"name": StringValue("Ava"),
				"role": StringValue("protagonist"),
			},
		}))
		require.NoError(t, s.AddNode(ctx, Node{
			ID: "char_A",
			Properties: Properties{
				"role": StringValue("antagonist"),
				"age":  NumberValue(31),
			},
		}))

		node, err := s.GetNode(ctx, "char_A")
		require.NoError(t, err)
		require.NotNil(t, node)
		assert.Equal(t, NodeCharacter, node.Type)
		assert.Equal(t, StringValue("Ava"), node.Properties["name"])
		assert.Equal(t, StringValue("antagonist"), node.Properties["role"])
		assert.Equal(t, NumberValue(31), node.Properties["age"])

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.NodeCount)
	})
}

func TestAddEdgeAutoCreatesStubs(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.AddEdge(ctx, Edge{Source: "char_A", Target: "goal_1", Relation: RelHasGoal}))

		stub, err := s.GetNode(ctx, "goal_1")
		require.NoError(t, err)
		require.NotNil(t, stub)
		assert.Empty(t, string(stub.Type))

		// A later AddNode fills the stub in.
		require.NoError(t, s.AddNode(ctx, Node{ID: "goal_1", Type: NodeGoal,
			Properties: Properties{"value": StringValue("find the relic")}}))
		filled, err := s.GetNode(ctx, "goal_1")
		require.NoError(t, err)
		assert.Equal(t, NodeGoal, filled.Type)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.NodeCount)
		assert.Equal(t, 1, stats.EdgeCount)
	})
}

func TestAddEdgeUpsertOverwrites(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.AddEdge(ctx, Edge{
			Source: "plot_1", Target: "char_A", Relation: RelInvolves,
			Properties: Properties{"prominence": StringValue("minor")},
		}))
		require.NoError(t, s.AddEdge(ctx, Edge{
			Source: "plot_1", Target: "char_A", Relation: RelInvolves,
			Properties: Properties{"prominence": StringValue("major")},
		}))
		// Same pair, different relation: a second edge, not an overwrite.
		require.NoError(t, s.AddEdge(ctx, Edge{Source: "plot_1", Target: "char_A", Relation: RelAffects}))

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.EdgeCount)

		neighbors, err := s.Neighbors(ctx, "plot_1", RelInvolves)
		require.NoError(t, err)
		require.Len(t, neighbors, 1)
		assert.Equal(t, StringValue("major"), neighbors[0].Edge.Properties["prominence"])
	})
}

func TestNeighborsDirectionAndFilter(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.AddEdge(ctx, Edge{Source: "char_A", Target: "goal_1", Relation: RelHasGoal}))
		require.NoError(t, s.AddEdge(ctx, Edge{Source: "char_A", Target: "trait_1", Relation: RelHasTrait}))
		require.NoError(t, s.AddEdge(ctx, Edge{Source: "plot_1", Target: "char_A", Relation: RelInvolves}))

		all, err := s.Neighbors(ctx, "char_A", "")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		goals, err := s.Neighbors(ctx, "char_A", RelHasGoal)
		require.NoError(t, err)
		require.Len(t, goals, 1)
		assert.Equal(t, "goal_1", goals[0].Node.ID)

		// Incoming edges never show up.
		fromGoal, err := s.Neighbors(ctx, "goal_1", "")
		require.NoError(t, err)
		assert.Empty(t, fromGoal)

		unknown, err := s.Neighbors(ctx, "nope", "")
		require.NoError(t, err)
		assert.Empty(t, unknown)
	})
}

func TestSubgraphContextDepth(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.AddNode(ctx, Node{ID: "char_A", Type: NodeCharacter,
			Properties: Properties{"name": StringValue("Ava")}}))
		require.NoError(t, s.AddNode(ctx, Node{ID: "goal_1", Type: NodeGoal}))
		require.NoError(t, s.AddNode(ctx, Node{ID: "trait_1", Type: NodeTrait}))
		require.NoError(t, s.AddNode(ctx, Node{ID: "plot_1", Type: NodePlotPoint}))
		require.NoError(t, s.AddEdge(ctx, Edge{Source: "char_A", Target: "goal_1", Relation: RelHasGoal}))
		require.NoError(t, s.AddEdge(ctx, Edge{Source: "char_A", Target: "trait_1", Relation: RelHasTrait}))
		require.NoError(t, s.AddEdge(ctx, Edge{Source: "goal_1", Target: "plot_1", Relation: RelLeadsTo}))

		t.Run("depth 1", func(t *testing.T) {
			sub, err := SubgraphContext(ctx, s, "char_A", 1)
			require.NoError(t, err)
			require.Len(t, sub, 3)
			assert.Contains(t, sub, "goal_1")
			assert.Contains(t, sub, "trait_1")
			assert.NotContains(t, sub, "plot_1")
			assert.Len(t, sub["char_A"].Relationships, 2)
			// Frontier nodes are not expanded.
			assert.Empty(t, sub["goal_1"].Relationships)
		})

		t.Run("depth 2 reaches the plot point", func(t *testing.T) {
			sub, err := SubgraphContext(ctx, s, "char_A", 2)
			require.NoError(t, err)
			assert.Len(t, sub, 4)
			assert.Contains(t, sub, "plot_1")
		})

		t.Run("depth 0 is the anchor alone", func(t *testing.T) {
			sub, err := SubgraphContext(ctx, s, "char_A", 0)
			require.NoError(t, err)
			require.Len(t, sub, 1)
			assert.Empty(t, sub["char_A"].Relationships)
		})

		t.Run("missing anchor", func(t *testing.T) {
			sub, err := SubgraphContext(ctx, s, "ghost", 2)
			require.NoError(t, err)
			assert.Empty(t, sub)
		})
	})
}

func TestFindNodesInsertionOrder(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		for _, id := range []string{"z_first", "a_second", "m_third"} {
			require.NoError(t, s.AddNode(ctx, Node{ID: id, Type: NodeLocation}))
		}
		require.NoError(t, s.AddNode(ctx, Node{ID: "other", Type: NodeTheme}))

		got, err := s.FindNodes(ctx, func(n *Node) bool { return n.Type == NodeLocation })
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "z_first", got[0].ID)
		assert.Equal(t, "a_second", got[1].ID)
		assert.Equal(t, "m_third", got[2].ID)
	})
}

func TestFindNodesWithCELFilter(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.AddNode(ctx, Node{ID: "char_A", Type: NodeCharacter,
			Properties: Properties{"role": StringValue("protagonist")}}))
		require.NoError(t, s.AddNode(ctx, Node{ID: "char_B", Type: NodeCharacter,
			Properties: Properties{"role": StringValue("mentor")}}))
		require.NoError(t, s.AddNode(ctx, Node{ID: "loc_1", Type: NodeLocation}))

		pred, err := CompileFilter(`type == "Character" && properties["role"] == "protagonist"`)
		require.NoError(t, err)

		got, err := s.FindNodes(ctx, pred)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "char_A", got[0].ID)
	})
}

func TestClear(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.AddEdge(ctx, Edge{Source: "a", Target: "b", Relation: RelFollows}))
		require.NoError(t, s.Clear(ctx))

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.NodeCount)
		assert.Zero(t, stats.EdgeCount)

		node, err := s.GetNode(ctx, "a")
		require.NoError(t, err)
		assert.Nil(t, node)
	})
}

func TestCompileFilterErrors(t *testing.T) {
	t.Run("syntax error", func(t *testing.T) {
		_, err := CompileFilter(`type ==`)
		assert.Error(t, err)
	})

	t.Run("non-bool result", func(t *testing.T) {
		_, err := CompileFilter(`id`)
		assert.Error(t, err)
	})

	t.Run("runtime miss is a non-match", func(t *testing.T) {
		pred, err := CompileFilter(`properties["missing"] == "x"`)
		require.NoError(t, err)
		assert.False(t, pred(&Node{ID: "n", Type: NodeTheme, Properties: Properties{}}))
	})
}

func TestFormatSubgraphDeterministic(t *testing.T) {
	sub := map[string]*NodeContext{
		"char_A": {
			Node: Node{ID: "char_A", Type: NodeCharacter, Properties: Properties{
				"role": StringValue("protagonist"),
				"name": StringValue("Ava"),
			}},
			Relationships: []Relationship{
				{Relation: RelHasGoal, TargetID: "goal_1"},
			},
		},
		"goal_1": {
			Node: Node{ID: "goal_1", Type: NodeGoal, Properties: Properties{
				"value": StringValue("find the relic"),
			}},
		},
	}

	want := "char_A (Character) name=\"Ava\" role=\"protagonist\"\n" +
		"  char_A -[HAS_GOAL]-> goal_1\n" +
		"goal_1 (Goal) value=\"find the relic\""
	for i := 0; i < 5; i++ {
		assert.Equal(t, want, FormatSubgraph(sub))
	}

	assert.Empty(t, FormatSubgraph(nil))
}
