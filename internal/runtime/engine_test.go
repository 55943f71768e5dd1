package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hiro-org/hiro/internal/core"
	"github.com/hiro-org/hiro/internal/hitl"
)

// stubAgents is a scriptable adapter selector. Unset stages fall back to a
// non-atomic atomizer, an echo executor, and a concatenating aggregator.
type stubAgents struct {
	mu sync.Mutex

	plan      func(node core.TaskNodeData, input core.AgentTaskInput) ([]core.PlannedSubTask, error)
	atomize   func(node core.TaskNodeData, input core.AgentTaskInput) (core.AtomizerResult, error)
	execute   func(node core.TaskNodeData, input core.AgentTaskInput) (core.ExecutionResult, error)
	aggregate func(node core.TaskNodeData, input core.AgentTaskInput) (core.ExecutionResult, error)
	modify    func(node core.TaskNodeData, input core.AgentTaskInput, details core.ReplanRequestDetails) ([]core.PlannedSubTask, error)

	executeInputs map[string]core.AgentTaskInput
	atomizeCalls  int
}

func newStubAgents() *stubAgents {
	return &stubAgents{executeInputs: make(map[string]core.AgentTaskInput)}
}

type stubAdapter struct{ s *stubAgents }

func (a stubAdapter) Plan(_ context.Context, node core.TaskNodeData, input core.AgentTaskInput) ([]core.PlannedSubTask, error) {
	a.s.mu.Lock()
	fn := a.s.plan
	a.s.mu.Unlock()
	if fn == nil {
		return nil, errors.New("no planner scripted")
	}
	return fn(node, input)
}

func (a stubAdapter) Atomize(_ context.Context, node core.TaskNodeData, input core.AgentTaskInput) (core.AtomizerResult, error) {
	a.s.mu.Lock()
	a.s.atomizeCalls++
	fn := a.s.atomize
	a.s.mu.Unlock()
	if fn == nil {
		return core.AtomizerResult{IsAtomic: false}, nil
	}
	return fn(node, input)
}

func (a stubAdapter) Execute(_ context.Context, node core.TaskNodeData, input core.AgentTaskInput) (core.ExecutionResult, error) {
	a.s.mu.Lock()
	a.s.executeInputs[node.TaskID] = input
	fn := a.s.execute
	a.s.mu.Unlock()
	if fn == nil {
		return core.ExecutionResult{Result: "out:" + node.Goal, OutputSummary: "sum:" + node.Goal}, nil
	}
	return fn(node, input)
}

func (a stubAdapter) Aggregate(_ context.Context, node core.TaskNodeData, input core.AgentTaskInput) (core.ExecutionResult, error) {
	a.s.mu.Lock()
	fn := a.s.aggregate
	a.s.mu.Unlock()
	if fn == nil {
		combined := ""
		for _, item := range input.RelevantContextItems {
			if item.ContentTypeDescription == "child output" {
				combined += fmt.Sprintf("[%v]", item.Content)
			}
		}
		return core.ExecutionResult{Result: combined, OutputSummary: "aggregated " + node.TaskID}, nil
	}
	return fn(node, input)
}

func (a stubAdapter) ModifyPlan(_ context.Context, node core.TaskNodeData, input core.AgentTaskInput, details core.ReplanRequestDetails) ([]core.PlannedSubTask, error) {
	a.s.mu.Lock()
	fn := a.s.modify
	a.s.mu.Unlock()
	if fn == nil {
		return nil, errors.New("no plan modifier scripted")
	}
	return fn(node, input, details)
}

func (s *stubAgents) Planner(core.TaskNodeData) (core.Planner, string, error) {
	return stubAdapter{s}, "stub-planner", nil
}
func (s *stubAgents) Atomizer(core.TaskNodeData) (core.Atomizer, string, error) {
	return stubAdapter{s}, "stub-atomizer", nil
}
func (s *stubAgents) Executor(core.TaskNodeData) (core.Executor, string, error) {
	return stubAdapter{s}, "stub-executor", nil
}
func (s *stubAgents) Aggregator(core.TaskNodeData) (core.Aggregator, string, error) {
	return stubAdapter{s}, "stub-aggregator", nil
}
func (s *stubAgents) PlanModifier(core.TaskNodeData) (core.PlanModifier, string, error) {
	return stubAdapter{s}, "stub-plan-modifier", nil
}

func (s *stubAgents) executeInput(id string) (core.AgentTaskInput, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.executeInputs[id]
	return in, ok
}

func fastConfig() Config {
	return Config{
		MaxSteps:            60,
		Timeout:             10 * time.Second,
		MaxConcurrentNodes:  8,
		MaxPlanningLayer:    3,
		MaxReplanAttempts:   2,
		MaxRecoveryAttempts: 2,
		StuckWarning:        time.Hour,
		StuckSoft:           time.Hour,
		StuckHard:           2 * time.Hour,
		MonitorInterval:     5 * time.Millisecond,
		PlanDoneSettleBound: 10,
	}
}

func execTask(goal string, deps ...int) core.PlannedSubTask {
	return core.PlannedSubTask{Goal: goal, TaskType: core.TaskWrite, NodeType: core.NodeExecute, DependsOnIndices: deps}
}

func TestRunLinearPlan(t *testing.T) {
	t.Parallel()

	agents := newStubAgents()
	agents.plan = func(core.TaskNodeData, core.AgentTaskInput) ([]core.PlannedSubTask, error) {
		return []core.PlannedSubTask{execTask("research"), execTask("write", 0)}, nil
	}

	p := NewProject("write a report", agents, WithConfig(fastConfig()))
	result := p.Engine().Run(context.Background())

	require.Equal(t, RunSuccess, result.Status)
	require.NoError(t, result.Err)
	require.Equal(t, "[out:research][out:write]", result.FinalOutput)

	root, _ := p.Graph.GetNode(core.RootTaskID)
	require.Equal(t, core.Done, root.Status())
	require.Equal(t, []string{"root.1", "root.2"}, root.Snapshot().PlannedSubTaskIDs)

	// The dependent task saw its predecessor's summary in context.
	input, ok := agents.executeInput("root.2")
	require.True(t, ok)
	found := false
	for _, item := range input.RelevantContextItems {
		if item.SourceTaskID == "root.1" {
			require.Equal(t, "sum:research", item.Content)
			found = true
		}
	}
	require.True(t, found, "dependency output missing from context")

	// Knowledge reflects terminal outcomes.
	rec, ok := p.Knowledge.Get("root.1")
	require.True(t, ok)
	require.Equal(t, core.Done, rec.Status)
}

func TestRunParallelChildrenOverlap(t *testing.T) {
	t.Parallel()

	var active, peak int64
	agents := newStubAgents()
	agents.plan = func(core.TaskNodeData, core.AgentTaskInput) ([]core.PlannedSubTask, error) {
		return []core.PlannedSubTask{execTask("a"), execTask("b"), execTask("c")}, nil
	}
	agents.execute = func(node core.TaskNodeData, _ core.AgentTaskInput) (core.ExecutionResult, error) {
		cur := atomic.AddInt64(&active, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if cur <= p || atomic.CompareAndSwapInt64(&peak, p, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return core.ExecutionResult{Result: node.Goal, OutputSummary: node.Goal}, nil
	}

	p := NewProject("parallel goal", agents, WithConfig(fastConfig()))
	result := p.Engine().Run(context.Background())

	require.Equal(t, RunSuccess, result.Status)
	require.GreaterOrEqual(t, atomic.LoadInt64(&peak), int64(2), "independent tasks did not overlap")
}

func TestRunReplansAfterChildFailure(t *testing.T) {
	t.Parallel()

	agents := newStubAgents()
	agents.plan = func(core.TaskNodeData, core.AgentTaskInput) ([]core.PlannedSubTask, error) {
		return []core.PlannedSubTask{execTask("good"), execTask("bad")}, nil
	}
	agents.execute = func(node core.TaskNodeData, _ core.AgentTaskInput) (core.ExecutionResult, error) {
		if node.Goal == "bad" {
			return core.ExecutionResult{}, errors.New("tool exploded")
		}
		return core.ExecutionResult{Result: node.Goal, OutputSummary: node.Goal}, nil
	}
	var gotDetails core.ReplanRequestDetails
	agents.modify = func(_ core.TaskNodeData, _ core.AgentTaskInput, details core.ReplanRequestDetails) ([]core.PlannedSubTask, error) {
		gotDetails = details
		return []core.PlannedSubTask{execTask("good2")}, nil
	}

	p := NewProject("flaky goal", agents, WithConfig(fastConfig()))
	result := p.Engine().Run(context.Background())

	require.Equal(t, RunSuccess, result.Status)
	require.Contains(t, gotDetails.FailedChildIDs, "root.2")
	require.NotEmpty(t, gotDetails.Reason)

	root, _ := p.Graph.GetNode(core.RootTaskID)
	snap := root.Snapshot()
	require.Equal(t, 1, snap.ReplanAttempts)
	require.Equal(t, "graph_root_r1", snap.SubGraphID)
	require.Equal(t, []string{"root.r1.1"}, snap.PlannedSubTaskIDs)

	// The failed child keeps its terminal status; the replacement succeeded.
	bad, _ := p.Graph.GetNode("root.2")
	require.Equal(t, core.Failed, bad.Status())
	fresh, _ := p.Graph.GetNode("root.r1.1")
	require.Equal(t, core.Done, fresh.Status())
}

func TestRunHITLPlanModification(t *testing.T) {
	t.Parallel()

	agents := newStubAgents()
	var sawInstructions atomic.Bool
	agents.plan = func(_ core.TaskNodeData, input core.AgentTaskInput) ([]core.PlannedSubTask, error) {
		for _, item := range input.RelevantContextItems {
			if item.SourceTaskID == "reviewer" {
				sawInstructions.Store(true)
				return []core.PlannedSubTask{execTask("single step")}, nil
			}
		}
		return []core.PlannedSubTask{execTask("step one"), execTask("step two", 0)}, nil
	}

	transport := hitl.NewChannelTransport(1)
	go func() {
		first := <-transport.Requests()
		first.Modify("collapse this into one step")
		second := <-transport.Requests()
		second.Approve()
	}()

	coordinator := hitl.NewCoordinator(hitl.Config{AfterPlanGeneration: true}, transport)
	p := NewProject("reviewed goal", agents, WithConfig(fastConfig()), WithHITL(coordinator))
	result := p.Engine().Run(context.Background())

	require.Equal(t, RunSuccess, result.Status)
	require.True(t, sawInstructions.Load())

	root, _ := p.Graph.GetNode(core.RootTaskID)
	require.Equal(t, []string{"root.1"}, root.Snapshot().PlannedSubTaskIDs)

	// The rejected draft and the accepted plan are both in the trace.
	plannerRuns := 0
	for _, entry := range p.Traces.Entries(core.RootTaskID) {
		if entry.Stage == "planner" {
			plannerRuns++
		}
	}
	require.Equal(t, 2, plannerRuns)
}

func TestRunHITLAbortCancelsRun(t *testing.T) {
	t.Parallel()

	agents := newStubAgents()
	agents.plan = func(core.TaskNodeData, core.AgentTaskInput) ([]core.PlannedSubTask, error) {
		return []core.PlannedSubTask{execTask("anything")}, nil
	}

	transport := hitl.NewChannelTransport(1)
	go func() {
		pending := <-transport.Requests()
		pending.Abort()
	}()

	coordinator := hitl.NewCoordinator(hitl.Config{AfterPlanGeneration: true}, transport)
	p := NewProject("aborted goal", agents, WithConfig(fastConfig()), WithHITL(coordinator))
	result := p.Engine().Run(context.Background())

	require.Equal(t, RunFailed, result.Status)
	root, _ := p.Graph.GetNode(core.RootTaskID)
	require.Equal(t, core.Cancelled, root.Status())
}

func TestRunInvalidPlanFailsRoot(t *testing.T) {
	t.Parallel()

	agents := newStubAgents()
	agents.plan = func(core.TaskNodeData, core.AgentTaskInput) ([]core.PlannedSubTask, error) {
		return []core.PlannedSubTask{execTask("a"), execTask("b", 5)}, nil
	}

	p := NewProject("bad plan goal", agents, WithConfig(fastConfig()))
	result := p.Engine().Run(context.Background())

	require.Equal(t, RunFailed, result.Status)
	root, _ := p.Graph.GetNode(core.RootTaskID)
	snap := root.Snapshot()
	require.Equal(t, core.Failed, snap.Status)
	require.Contains(t, snap.Error, "graph integrity")
}

func TestRunCyclicPlanFailsRoot(t *testing.T) {
	t.Parallel()

	agents := newStubAgents()
	agents.plan = func(core.TaskNodeData, core.AgentTaskInput) ([]core.PlannedSubTask, error) {
		// a depends on b and b depends on a; the second edge must be rejected.
		return []core.PlannedSubTask{execTask("a", 1), execTask("b", 0)}, nil
	}

	p := NewProject("circular goal", agents, WithConfig(fastConfig()))
	result := p.Engine().Run(context.Background())

	require.Equal(t, RunFailed, result.Status)
	root, _ := p.Graph.GetNode(core.RootTaskID)
	snap := root.Snapshot()
	require.Equal(t, core.Failed, snap.Status)
	require.Contains(t, snap.Error, "graph integrity")
	require.Contains(t, snap.Error, "cycle")
}

func TestRunAtomicRootExecutesDirectly(t *testing.T) {
	t.Parallel()

	agents := newStubAgents()
	agents.atomize = func(core.TaskNodeData, core.AgentTaskInput) (core.AtomizerResult, error) {
		return core.AtomizerResult{IsAtomic: true, RefinedGoal: "just answer it"}, nil
	}

	p := NewProject("small goal", agents, WithConfig(fastConfig()))
	result := p.Engine().Run(context.Background())

	require.Equal(t, RunSuccess, result.Status)
	require.Equal(t, "out:just answer it", result.FinalOutput)

	root, _ := p.Graph.GetNode(core.RootTaskID)
	snap := root.Snapshot()
	require.Equal(t, core.NodeExecute, snap.NodeType)
	require.True(t, snap.AuxBool(core.AuxKeyExecutedAsAtomic))
	require.Empty(t, snap.SubGraphID)
}

func TestRootTaskTypeSeedsRoot(t *testing.T) {
	t.Parallel()

	agents := newStubAgents()
	agents.atomize = func(core.TaskNodeData, core.AgentTaskInput) (core.AtomizerResult, error) {
		return core.AtomizerResult{IsAtomic: true}, nil
	}
	var seen core.TaskType
	agents.execute = func(node core.TaskNodeData, _ core.AgentTaskInput) (core.ExecutionResult, error) {
		seen = node.TaskType
		return core.ExecutionResult{Result: "found", OutputSummary: "found"}, nil
	}

	p := NewProject("find prior art", agents, WithConfig(fastConfig()), WithRootTaskType(core.TaskSearch))
	result := p.Engine().Run(context.Background())

	require.Equal(t, RunSuccess, result.Status)
	require.Equal(t, core.TaskSearch, seen)

	root, _ := p.Graph.GetNode(core.RootTaskID)
	require.Equal(t, core.TaskSearch, root.Snapshot().TaskType)

	// Default stays WRITE when the option is absent.
	q := NewProject("default goal", newStubAgents(), WithConfig(fastConfig()))
	require.Equal(t, core.TaskWrite, q.RootTaskType)
}

func TestPlanningDepthBoundForcesExecution(t *testing.T) {
	t.Parallel()

	agents := newStubAgents()
	agents.plan = func(core.TaskNodeData, core.AgentTaskInput) ([]core.PlannedSubTask, error) {
		// Always proposes further planning; the depth bound must cut it off.
		return []core.PlannedSubTask{{Goal: "dig deeper", TaskType: core.TaskThink, NodeType: core.NodePlan}}, nil
	}

	cfg := fastConfig()
	cfg.MaxPlanningLayer = 1
	p := NewProject("deep goal", agents, WithConfig(cfg))
	result := p.Engine().Run(context.Background())

	require.Equal(t, RunSuccess, result.Status)

	child, ok := p.Graph.GetNode("root.1")
	require.True(t, ok)
	snap := child.Snapshot()
	require.Equal(t, core.NodeExecute, snap.NodeType, "depth-bounded plan node must execute")
	require.True(t, snap.AuxBool(core.AuxKeyExecutedAsAtomic))

	agents.mu.Lock()
	calls := agents.atomizeCalls
	agents.mu.Unlock()
	require.Equal(t, 1, calls, "atomizer consulted only above the depth bound")
}

func TestStuckExecutorPreemptedAndRetried(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	var calls int64
	agents := newStubAgents()
	agents.plan = func(core.TaskNodeData, core.AgentTaskInput) ([]core.PlannedSubTask, error) {
		return []core.PlannedSubTask{execTask("slow")}, nil
	}
	agents.execute = func(node core.TaskNodeData, _ core.AgentTaskInput) (core.ExecutionResult, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			<-release // first attempt hangs
			return core.ExecutionResult{}, errors.New("abandoned")
		}
		return core.ExecutionResult{Result: "recovered", OutputSummary: "recovered"}, nil
	}

	cfg := fastConfig()
	cfg.StuckWarning = 10 * time.Millisecond
	cfg.StuckSoft = 25 * time.Millisecond
	cfg.StuckHard = 5 * time.Second
	p := NewProject("stuck goal", agents, WithConfig(cfg))
	result := p.Engine().Run(context.Background())

	require.Equal(t, RunSuccess, result.Status)
	require.Equal(t, "[recovered]", result.FinalOutput)

	child, _ := p.Graph.GetNode("root.1")
	require.Equal(t, core.Done, child.Status())
	require.Equal(t, 1, child.RecoveryAttempts())
	require.Equal(t, 1, child.Snapshot().ReplanAttempts, "retry went through the replan path")
	require.GreaterOrEqual(t, atomic.LoadInt64(&calls), int64(2))
}

func TestHungExecutorExhaustsRecoveryThenFails(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	agents := newStubAgents()
	agents.plan = func(core.TaskNodeData, core.AgentTaskInput) ([]core.PlannedSubTask, error) {
		return []core.PlannedSubTask{execTask("hopeless")}, nil
	}
	agents.execute = func(node core.TaskNodeData, _ core.AgentTaskInput) (core.ExecutionResult, error) {
		if node.Goal == "hopeless" {
			<-release // hangs on every attempt
			return core.ExecutionResult{}, errors.New("abandoned")
		}
		return core.ExecutionResult{Result: "plan b", OutputSummary: "plan b"}, nil
	}
	agents.modify = func(core.TaskNodeData, core.AgentTaskInput, core.ReplanRequestDetails) ([]core.PlannedSubTask, error) {
		return []core.PlannedSubTask{execTask("workaround")}, nil
	}

	cfg := fastConfig()
	cfg.StuckWarning = 10 * time.Millisecond
	cfg.StuckSoft = 25 * time.Millisecond
	cfg.StuckHard = 5 * time.Second
	cfg.MaxRecoveryAttempts = 2
	p := NewProject("hopeless goal", agents, WithConfig(cfg))
	result := p.Engine().Run(context.Background())

	// Soft recovery is bounded: after the budget the node is failed outright
	// and the parent plans around it.
	require.Equal(t, RunSuccess, result.Status)
	require.Equal(t, "[plan b]", result.FinalOutput)

	child, _ := p.Graph.GetNode("root.1")
	require.Equal(t, core.Failed, child.Status())
	require.Contains(t, child.Snapshot().Error, "recovery attempts exhausted")
	require.Equal(t, cfg.MaxRecoveryAttempts, child.RecoveryAttempts())

	root, _ := p.Graph.GetNode(core.RootTaskID)
	snap := root.Snapshot()
	require.Equal(t, 1, snap.ReplanAttempts)
	require.Equal(t, []string{"root.r1.1"}, snap.PlannedSubTaskIDs)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	agents := newStubAgents()
	p := NewProject("cancelled goal", agents, WithConfig(fastConfig()))
	p.Cancel()

	result := p.Engine().Run(context.Background())
	require.Equal(t, RunFailed, result.Status)
	require.ErrorIs(t, result.Err, core.ErrCancelled)

	root, _ := p.Graph.GetNode(core.RootTaskID)
	require.Equal(t, core.Cancelled, root.Status())
}

func TestForcedPartialAggregationMarksRunPartial(t *testing.T) {
	t.Parallel()

	agents := newStubAgents()
	p := NewProject("partial goal", agents, WithConfig(fastConfig()))

	require.NoError(t, p.Graph.AddGraph(RootGraphName, true))
	root := NewNode(core.TaskNodeData{
		TaskID: core.RootTaskID, Goal: "partial goal", NodeType: core.NodePlan,
		Status: core.PlanDone, SubGraphID: "graph_root_sub",
	})
	require.NoError(t, p.Graph.AddNodeToGraph(RootGraphName, root))
	require.NoError(t, p.Graph.AddGraph("graph_root_sub", false))
	done := NewNode(core.TaskNodeData{
		TaskID: "root.1", ParentNodeID: core.RootTaskID, Goal: "finished",
		NodeType: core.NodeExecute, Status: core.Done, Result: "ok", OutputSummary: "ok",
	})
	hung := NewNode(core.TaskNodeData{
		TaskID: "root.2", ParentNodeID: core.RootTaskID, Goal: "never finishes",
		NodeType: core.NodeExecute, Status: core.Running,
	})
	require.NoError(t, p.Graph.AddNodeToGraph("graph_root_sub", done))
	require.NoError(t, p.Graph.AddNodeToGraph("graph_root_sub", hung))
	p.Knowledge.Upsert(core.RecordFromNode(done.Snapshot()))

	ctx := context.Background()
	p.recovery.forcePartialAggregation(ctx, root, root.Snapshot())

	require.Equal(t, core.Cancelled, hung.Status())
	snap := root.Snapshot()
	require.Equal(t, core.Done, snap.Status)
	require.True(t, snap.AuxBool(core.AuxKeyPartialAggregation))

	result := p.engine.result(root, 1, nil, nil)
	require.Equal(t, RunPartial, result.Status)
}

func TestRunStallsWithDeadlockDiagnosis(t *testing.T) {
	t.Parallel()

	snap := ProjectSnapshot{
		ProjectID:   "stalled",
		OverallGoal: "stalled goal",
		Graphs: []GraphSnapshot{
			{ID: RootGraphName, IsRoot: true, NodeIDs: []string{core.RootTaskID}},
			{ID: "graph_root_sub", NodeIDs: []string{"root.1", "root.2"}, Edges: [][2]string{{"root.1", "root.2"}}},
		},
		Nodes: []core.TaskNodeData{
			{TaskID: core.RootTaskID, Goal: "stalled goal", NodeType: core.NodePlan, Status: core.PlanDone, SubGraphID: "graph_root_sub"},
			{TaskID: "root.1", ParentNodeID: core.RootTaskID, Goal: "a", NodeType: core.NodeExecute, Status: core.Cancelled},
			{TaskID: "root.2", ParentNodeID: core.RootTaskID, Goal: "b", NodeType: core.NodeExecute, Status: core.Pending},
		},
	}

	p, err := RestoreProject(snap, newStubAgents(), WithConfig(fastConfig()))
	require.NoError(t, err)

	result := p.Engine().Resume(context.Background())
	require.Equal(t, RunFailed, result.Status)

	var deadlock *core.DeadlockError
	require.ErrorAs(t, result.Err, &deadlock)
	require.NotNil(t, result.Diagnostics)
	require.Contains(t, result.Diagnostics.ActiveByStatus["pending"], "root.2")

	root, _ := p.Graph.GetNode(core.RootTaskID)
	require.Equal(t, core.Failed, root.Status())
}

func TestLoneRunningHangDiagnosis(t *testing.T) {
	t.Parallel()

	agents := newStubAgents()
	p := NewProject("hang goal", agents, WithConfig(fastConfig()))
	require.NoError(t, p.Graph.AddGraph(RootGraphName, true))
	root := NewNode(core.TaskNodeData{
		TaskID: core.RootTaskID, Goal: "hang goal", NodeType: core.NodeExecute, Status: core.Running,
	})
	require.NoError(t, p.Graph.AddNodeToGraph(RootGraphName, root))

	diag := p.Diagnose()
	require.Equal(t, []string{core.RootTaskID}, diag.ActiveByStatus["running"])

	found := false
	for _, pattern := range diag.Patterns {
		if len(pattern) >= len("lone RUNNING hang") && pattern[:len("lone RUNNING hang")] == "lone RUNNING hang" {
			found = true
		}
	}
	require.True(t, found, "diagnosis should name the lone RUNNING hang, got %v", diag.Patterns)
}
