package runtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hiro-org/hiro/internal/core"
)

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	agents := newStubAgents()
	agents.plan = func(core.TaskNodeData, core.AgentTaskInput) ([]core.PlannedSubTask, error) {
		return []core.PlannedSubTask{execTask("research"), execTask("write", 0)}, nil
	}

	p := NewProject("snapshot goal", agents, WithConfig(fastConfig()))
	result := p.Engine().Run(context.Background())
	require.Equal(t, RunSuccess, result.Status)

	snap := p.Snapshot()
	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded ProjectSnapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, snap.ProjectID, decoded.ProjectID)
	require.Equal(t, snap.OverallGoal, decoded.OverallGoal)

	restored, err := RestoreProject(decoded, newStubAgents())
	require.NoError(t, err)
	require.Equal(t, p.ID, restored.ID)

	for _, original := range p.Graph.Nodes() {
		copied, ok := restored.Graph.GetNode(original.ID())
		require.True(t, ok, original.ID())
		require.Equal(t, original.Status(), copied.Status())
		require.Equal(t, original.Snapshot().Goal, copied.Snapshot().Goal)
	}

	origEdges, err := p.Graph.EdgesInGraph("graph_root")
	require.NoError(t, err)
	restoredEdges, err := restored.Graph.EdgesInGraph("graph_root")
	require.NoError(t, err)
	require.ElementsMatch(t, origEdges, restoredEdges)

	rec, ok := restored.Knowledge.Get("root.2")
	require.True(t, ok)
	require.Equal(t, core.Done, rec.Status)
}

func TestRestoreRejectsDanglingNodeReference(t *testing.T) {
	t.Parallel()

	snap := ProjectSnapshot{
		ProjectID:   "broken",
		OverallGoal: "goal",
		Graphs:      []GraphSnapshot{{ID: RootGraphName, IsRoot: true, NodeIDs: []string{"ghost"}}},
	}
	_, err := RestoreProject(snap, newStubAgents())
	require.ErrorIs(t, err, core.ErrNodeNotFound)
}

func TestResumeReplansInterruptedNodes(t *testing.T) {
	t.Parallel()

	// A run died while root.1 was RUNNING; resuming must not wait on a
	// dispatch that no longer exists.
	snap := ProjectSnapshot{
		ProjectID:   "interrupted",
		OverallGoal: "resume goal",
		Graphs: []GraphSnapshot{
			{ID: RootGraphName, IsRoot: true, NodeIDs: []string{core.RootTaskID}},
			{ID: "graph_root", NodeIDs: []string{"root.1"}},
		},
		Nodes: []core.TaskNodeData{
			{TaskID: core.RootTaskID, Goal: "resume goal", OverallObjective: "resume goal", NodeType: core.NodePlan, Status: core.PlanDone, SubGraphID: "graph_root", PlannedSubTaskIDs: []string{"root.1"}},
			{TaskID: "root.1", ParentNodeID: core.RootTaskID, Goal: "interrupted work", NodeType: core.NodeExecute, Status: core.Running},
		},
	}

	p, err := RestoreProject(snap, newStubAgents(), WithConfig(fastConfig()))
	require.NoError(t, err)

	result := p.Engine().Resume(context.Background())
	require.Equal(t, RunSuccess, result.Status)

	child, _ := p.Graph.GetNode("root.1")
	childSnap := child.Snapshot()
	require.Equal(t, core.Done, childSnap.Status)
	require.Equal(t, 1, childSnap.ReplanAttempts, "interrupted node went back through replan")
	require.Equal(t, "[out:interrupted work]", result.FinalOutput)
}
