package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hiro-org/hiro/internal/core"
)

func newTestNode(id, parent string, status core.Status) *Node {
	return NewNode(core.TaskNodeData{
		TaskID:       id,
		ParentNodeID: parent,
		Goal:         "goal " + id,
		NodeType:     core.NodeExecute,
		Status:       status,
	})
}

func TestTaskGraphAddAndLookup(t *testing.T) {
	t.Parallel()

	g := NewTaskGraph("objective")
	require.NoError(t, g.AddGraph("graph_root", true))
	require.NoError(t, g.AddNodeToGraph("graph_root", newTestNode("root", "", core.Pending)))

	n, ok := g.GetNode("root")
	require.True(t, ok)
	require.Equal(t, "root", n.ID())

	_, ok = g.GetNode("missing")
	require.False(t, ok)

	require.ErrorIs(t, g.AddGraph("graph_root", false), core.ErrGraphExists)
	require.ErrorIs(t, g.AddGraph("another_root", true), core.ErrSecondRootGraph)
	require.ErrorIs(t, g.AddNodeToGraph("graph_root", newTestNode("root", "", core.Pending)), core.ErrNodeExists)
	require.ErrorIs(t, g.AddNodeToGraph("nope", newTestNode("x", "", core.Pending)), core.ErrGraphNotFound)
}

func TestTaskGraphEdgesAndCycleRejection(t *testing.T) {
	t.Parallel()

	g := NewTaskGraph("objective")
	require.NoError(t, g.AddGraph("sub", false))
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, g.AddNodeToGraph("sub", newTestNode(id, "", core.Pending)))
	}

	require.NoError(t, g.AddEdge("sub", "a", "b"))
	require.NoError(t, g.AddEdge("sub", "b", "c"))

	// Closing the chain back to the start must be refused and the edge set
	// left untouched.
	require.ErrorIs(t, g.AddEdge("sub", "c", "a"), core.ErrCycleDetected)
	require.ErrorIs(t, g.AddEdge("sub", "a", "a"), core.ErrCycleDetected)

	edges, err := g.EdgesInGraph("sub")
	require.NoError(t, err)
	require.ElementsMatch(t, [][2]string{{"a", "b"}, {"b", "c"}}, edges)

	require.ErrorIs(t, g.AddEdge("sub", "a", "zz"), core.ErrNodeNotInGraph)
	require.ErrorIs(t, g.AddEdge("nope", "a", "b"), core.ErrGraphNotFound)

	preds, err := g.Predecessors("sub", "c")
	require.NoError(t, err)
	require.Len(t, preds, 1)
	require.Equal(t, "b", preds[0].ID())

	succs, err := g.Successors("sub", "a")
	require.NoError(t, err)
	require.Len(t, succs, 1)
	require.Equal(t, "b", succs[0].ID())
}

func TestContainerGraphMembershipIsAuthoritative(t *testing.T) {
	t.Parallel()

	g := NewTaskGraph("objective")
	require.NoError(t, g.AddGraph("graph_root", true))
	require.NoError(t, g.AddNodeToGraph("graph_root", newTestNode("root", "", core.Running)))
	require.NoError(t, g.AddGraph("graph_sub", false))
	require.NoError(t, g.AddNodeToGraph("graph_sub", newTestNode("root.1", "root", core.Pending)))

	id, err := g.ContainerGraphID("root.1")
	require.NoError(t, err)
	require.Equal(t, "graph_sub", id)

	id, err = g.ContainerGraphID("root")
	require.NoError(t, err)
	require.Equal(t, "graph_root", id)

	_, err = g.ContainerGraphID("missing")
	require.ErrorIs(t, err, core.ErrNodeNotFound)
}

func TestNodesInGraphKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	g := NewTaskGraph("objective")
	require.NoError(t, g.AddGraph("sub", false))
	ids := []string{"n3", "n1", "n2"}
	for _, id := range ids {
		require.NoError(t, g.AddNodeToGraph("sub", newTestNode(id, "", core.Pending)))
	}

	nodes, err := g.NodesInGraph("sub")
	require.NoError(t, err)
	got := make([]string, len(nodes))
	for i, n := range nodes {
		got[i] = n.ID()
	}
	require.Equal(t, ids, got)
}
