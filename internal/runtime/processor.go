package runtime

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hiro-org/hiro/internal/common/logger"
	"github.com/hiro-org/hiro/internal/core"
)

var tracer = otel.Tracer("hiro.runtime")

// NodeProcessor dispatches a single node to the right adapter for its
// current (status, node type) pair. Adapter errors never escape Process;
// they fail the node instead.
type NodeProcessor struct {
	p *Project
}

// Process advances one node through its current stage.
func (np *NodeProcessor) Process(ctx context.Context, n *Node) {
	data := n.Snapshot()
	ctx, span := tracer.Start(ctx, "node.process", trace.WithAttributes(
		attribute.String("task.id", data.TaskID),
		attribute.String("task.status", data.Status.String()),
		attribute.String("task.node_type", data.NodeType.String()),
	))
	defer span.End()

	switch {
	case data.Status == core.Ready && data.NodeType == core.NodePlan:
		np.processPlan(ctx, n)
	case data.Status == core.Ready && data.NodeType == core.NodeExecute:
		np.processExecute(ctx, n)
	case data.Status == core.Aggregating && data.NodeType == core.NodePlan:
		np.processAggregate(ctx, n)
	case data.Status == core.NeedsReplan && data.NodeType == core.NodePlan:
		np.processReplan(ctx, n)
	default:
		logger.Warn(ctx, "No dispatch action for node", "node", data.TaskID, "status", data.Status.String(), "nodeType", data.NodeType.String())
	}
}

// invoke runs one adapter call, racing it against context cancellation and
// stuck-node preemption. A preempted call's eventual result is discarded.
func invoke[T any](ctx context.Context, n *Node, call func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	preempted := n.Preempted()
	go func() {
		v, err := call(ctx)
		ch <- outcome{v, err}
	}()
	select {
	case out := <-ch:
		return out.v, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-preempted:
		var zero T
		return zero, core.ErrStalled
	}
}

// withInstructions attaches reviewer modification instructions to the input
// so that the re-run of the same stage can honor them.
func withInstructions(input core.AgentTaskInput, instructions string) core.AgentTaskInput {
	if instructions == "" {
		return input
	}
	out := input
	out.RelevantContextItems = append(append([]core.ContextItem(nil), input.RelevantContextItems...), core.ContextItem{
		SourceTaskID:           "reviewer",
		SourceTaskGoal:         "human review",
		ContentTypeDescription: "user modification instructions",
		Content:                instructions,
	})
	return out
}

// processPlan handles a READY plan node: atomize, then either execute
// directly or decompose into a child sub-graph.
func (np *NodeProcessor) processPlan(ctx context.Context, n *Node) {
	if np.p.commit(ctx, n, core.Ready, core.Running, nil) != nil {
		return
	}
	data := n.Snapshot()
	input := np.p.Resolver.Resolve(data)
	n.update(func(d *core.TaskNodeData) { d.InputPayload = &input })

	atom, ok := np.atomize(ctx, n, data, input)
	if !ok {
		return
	}
	if atom.IsAtomic {
		n.update(func(d *core.TaskNodeData) {
			d.NodeType = core.NodeExecute
			if atom.RefinedGoal != "" {
				d.Goal = atom.RefinedGoal
			}
			d.SetAux(core.AuxKeyExecutedAsAtomic, true)
		})
		np.runExecutor(ctx, n)
		return
	}

	np.generatePlan(ctx, n, input, core.CheckpointAfterPlan, planStagePlanner, nil)
}

// atomize decides whether the plan node should execute directly. A node at
// the planning-depth bound is forced atomic regardless of the adapter.
func (np *NodeProcessor) atomize(ctx context.Context, n *Node, data core.TaskNodeData, input core.AgentTaskInput) (core.AtomizerResult, bool) {
	if data.Layer >= np.p.Config.MaxPlanningLayer {
		logger.Debug(ctx, "Planning depth reached; forcing atomic execution", "node", data.TaskID, "layer", data.Layer)
		return core.AtomizerResult{IsAtomic: true}, true
	}

	adapter, name, err := np.p.Selector.Atomizer(data)
	if err != nil {
		np.fail(ctx, n, core.Running, err)
		return core.AtomizerResult{}, false
	}

	attempt := 1
	stageInput := input
	for {
		stage := np.p.Traces.OpenStage(n.ID(), "atomizer", &stageInput)
		atom, err := invoke(ctx, n, func(ctx context.Context) (core.AtomizerResult, error) {
			return adapter.Atomize(ctx, data, stageInput)
		})
		stage.Close(atom, err)
		if err != nil {
			np.adapterFailure(ctx, n, core.Running, name, core.ActionAtomize, err)
			return core.AtomizerResult{}, false
		}

		resp, err := np.p.HITL.Review(ctx, data, core.CheckpointAfterAtomizer, "Atomizer verdict for "+data.Goal, atom, attempt)
		if err != nil {
			np.fail(ctx, n, core.Running, err)
			return core.AtomizerResult{}, false
		}
		switch resp.Decision {
		case core.ReviewApprove:
			return atom, true
		case core.ReviewModify:
			attempt++
			stageInput = withInstructions(input, resp.Instructions)
		case core.ReviewAbort:
			np.cancel(ctx, n, core.Running, "atomizer checkpoint aborted by reviewer")
			return core.AtomizerResult{}, false
		}
	}
}

// processExecute handles a READY execute node.
func (np *NodeProcessor) processExecute(ctx context.Context, n *Node) {
	if np.p.commit(ctx, n, core.Ready, core.Running, nil) != nil {
		return
	}
	data := n.Snapshot()
	input := np.p.Resolver.Resolve(data)
	n.update(func(d *core.TaskNodeData) { d.InputPayload = &input })
	np.runExecutor(ctx, n)
}

// runExecutor drives the executor adapter for a RUNNING node, honoring the
// before-execute checkpoint.
func (np *NodeProcessor) runExecutor(ctx context.Context, n *Node) {
	data := n.Snapshot()
	input := data.InputPayload
	if input == nil {
		resolved := np.p.Resolver.Resolve(data)
		input = &resolved
		n.update(func(d *core.TaskNodeData) { d.InputPayload = input })
	}

	adapter, name, err := np.p.Selector.Executor(data)
	if err != nil {
		np.fail(ctx, n, core.Running, err)
		return
	}
	n.update(func(d *core.TaskNodeData) { d.AgentName = name })

	attempt := 1
	stageInput := *input
	for {
		resp, err := np.p.HITL.Review(ctx, data, core.CheckpointBeforeExecute, "About to execute: "+data.Goal, stageInput, attempt)
		if err != nil {
			np.fail(ctx, n, core.Running, err)
			return
		}
		switch resp.Decision {
		case core.ReviewModify:
			attempt++
			stageInput = withInstructions(*input, resp.Instructions)
			continue
		case core.ReviewAbort:
			np.cancel(ctx, n, core.Running, "execution aborted by reviewer")
			return
		}

		stage := np.p.Traces.OpenStage(n.ID(), "executor", &stageInput)
		result, err := invoke(ctx, n, func(ctx context.Context) (core.ExecutionResult, error) {
			return adapter.Execute(ctx, data, stageInput)
		})
		stage.Close(result, err)
		if err != nil {
			np.adapterFailure(ctx, n, core.Running, name, core.ActionExecute, err)
			return
		}

		_ = np.p.commit(ctx, n, core.Running, core.Done, func(d *core.TaskNodeData) {
			d.Result = result.Result
			d.OutputSummary = result.OutputSummary
		})
		return
	}
}

// planStage names which planning adapter drives generatePlan.
type planStage int

const (
	planStagePlanner planStage = iota
	planStageModifier
)

// generatePlan runs the planner (or plan modifier), loops through the review
// checkpoint, and commits the produced children. The node must be RUNNING.
func (np *NodeProcessor) generatePlan(ctx context.Context, n *Node, input core.AgentTaskInput, cp core.Checkpoint, stageKind planStage, details *core.ReplanRequestDetails) {
	data := n.Snapshot()

	var (
		name      string
		stageName string
		plan      func(context.Context, core.AgentTaskInput) ([]core.PlannedSubTask, error)
	)
	switch stageKind {
	case planStageModifier:
		adapter, adapterName, err := np.p.Selector.PlanModifier(data)
		if err != nil {
			np.fail(ctx, n, core.Running, err)
			return
		}
		name, stageName = adapterName, "plan_modifier"
		d := core.ReplanRequestDetails{Reason: "replan requested"}
		if details != nil {
			d = *details
		}
		plan = func(ctx context.Context, in core.AgentTaskInput) ([]core.PlannedSubTask, error) {
			return adapter.ModifyPlan(ctx, data, in, d)
		}
	default:
		adapter, adapterName, err := np.p.Selector.Planner(data)
		if err != nil {
			np.fail(ctx, n, core.Running, err)
			return
		}
		name, stageName = adapterName, "planner"
		plan = func(ctx context.Context, in core.AgentTaskInput) ([]core.PlannedSubTask, error) {
			return adapter.Plan(ctx, data, in)
		}
	}
	n.update(func(d *core.TaskNodeData) { d.AgentName = name })

	attempt := 1
	stageInput := input
	for {
		stage := np.p.Traces.OpenStage(n.ID(), stageName, &stageInput)
		subtasks, err := invoke(ctx, n, func(ctx context.Context) ([]core.PlannedSubTask, error) {
			return plan(ctx, stageInput)
		})
		stage.Close(subtasks, err)
		if err != nil {
			np.adapterFailure(ctx, n, core.Running, name, core.ActionPlan, err)
			return
		}

		resp, err := np.p.HITL.Review(ctx, data, cp, fmt.Sprintf("Plan with %d subtasks for: %s", len(subtasks), data.Goal), subtasks, attempt)
		if err != nil {
			np.fail(ctx, n, core.Running, err)
			return
		}
		switch resp.Decision {
		case core.ReviewModify:
			attempt++
			stageInput = withInstructions(input, resp.Instructions)
			continue
		case core.ReviewAbort:
			np.cancel(ctx, n, core.Running, "plan checkpoint aborted by reviewer")
			return
		}

		if err := np.commitChildren(ctx, n, subtasks); err != nil {
			np.fail(ctx, n, core.Running, &core.GraphIntegrityError{NodeID: n.ID(), Err: err})
			return
		}
		_ = np.p.commit(ctx, n, core.Running, core.PlanDone, nil)
		return
	}
}

// commitChildren materializes planned subtasks: a fresh sub-graph, one node
// per subtask, and dependency edges resolved from sibling indices.
func (np *NodeProcessor) commitChildren(ctx context.Context, n *Node, subtasks []core.PlannedSubTask) error {
	data := n.Snapshot()

	subGraphID := fmt.Sprintf("graph_%s", data.TaskID)
	if data.ReplanAttempts > 0 {
		subGraphID = fmt.Sprintf("graph_%s_r%d", data.TaskID, data.ReplanAttempts)
	}
	if err := np.p.Graph.AddGraph(subGraphID, false); err != nil {
		return err
	}

	childIDs := make([]string, len(subtasks))
	for i, sub := range subtasks {
		childID := fmt.Sprintf("%s.%d", data.TaskID, i+1)
		if data.ReplanAttempts > 0 {
			childID = fmt.Sprintf("%s.r%d.%d", data.TaskID, data.ReplanAttempts, i+1)
		}
		childIDs[i] = childID
		child := NewNode(core.TaskNodeData{
			TaskID:           childID,
			Layer:            data.Layer + 1,
			ParentNodeID:     data.TaskID,
			Goal:             sub.Goal,
			OverallObjective: data.OverallObjective,
			TaskType:         sub.TaskType,
			NodeType:         sub.NodeType,
			Status:           core.Pending,
		})
		if err := np.p.Graph.AddNodeToGraph(subGraphID, child); err != nil {
			return err
		}
		np.p.Knowledge.Upsert(core.RecordFromNode(child.Snapshot()))
	}

	for i, sub := range subtasks {
		for _, dep := range sub.DependsOnIndices {
			if dep < 0 || dep >= len(subtasks) || dep == i {
				return fmt.Errorf("%w: subtask %d depends on invalid index %d", core.ErrNodeNotInGraph, i, dep)
			}
			if err := np.p.Graph.AddEdge(subGraphID, childIDs[dep], childIDs[i]); err != nil {
				return err
			}
		}
	}

	n.update(func(d *core.TaskNodeData) {
		d.SubGraphID = subGraphID
		d.PlannedSubTaskIDs = childIDs
	})
	np.p.Broadcaster.OnGraphChanged(ctx, np.p.ID)
	logger.Info(ctx, "Plan committed", "node", data.TaskID, "subGraph", subGraphID, "children", len(childIDs))
	return nil
}

// processAggregate combines a plan node's child outputs into its own result.
func (np *NodeProcessor) processAggregate(ctx context.Context, n *Node) {
	data := n.Snapshot()
	input := np.p.Resolver.ResolveForAggregation(data)
	n.update(func(d *core.TaskNodeData) { d.InputPayload = &input })

	adapter, name, err := np.p.Selector.Aggregator(data)
	if err != nil {
		np.fail(ctx, n, core.Aggregating, err)
		return
	}
	n.update(func(d *core.TaskNodeData) { d.AgentName = name })

	stage := np.p.Traces.OpenStage(n.ID(), "aggregator", &input)
	result, err := invoke(ctx, n, func(ctx context.Context) (core.ExecutionResult, error) {
		return adapter.Aggregate(ctx, data, input)
	})
	stage.Close(result, err)
	if err != nil {
		np.adapterFailure(ctx, n, core.Aggregating, name, core.ActionAggregate, err)
		return
	}

	partial := np.hasNonDoneChildren(data)
	_ = np.p.commit(ctx, n, core.Aggregating, core.Done, func(d *core.TaskNodeData) {
		d.Result = result.Result
		d.OutputSummary = result.OutputSummary
		if partial {
			d.SetAux(core.AuxKeyPartialAggregation, true)
		}
	})
}

func (np *NodeProcessor) hasNonDoneChildren(data core.TaskNodeData) bool {
	if data.SubGraphID == "" {
		return false
	}
	children, err := np.p.Graph.NodesInGraph(data.SubGraphID)
	if err != nil {
		return false
	}
	for _, child := range children {
		if child.Status() != core.Done {
			return true
		}
	}
	return false
}

// processReplan re-plans a NEEDS_REPLAN plan node, cancelling its stale
// children first. Exhausted replan budgets fail the node.
func (np *NodeProcessor) processReplan(ctx context.Context, n *Node) {
	data := n.Snapshot()
	if data.ReplanAttempts >= np.p.Config.MaxReplanAttempts {
		_ = np.p.commit(ctx, n, core.NeedsReplan, core.Failed, func(d *core.TaskNodeData) {
			d.Error = fmt.Sprintf("replan attempts exhausted (%d)", d.ReplanAttempts)
		})
		return
	}

	if np.p.commit(ctx, n, core.NeedsReplan, core.Running, func(d *core.TaskNodeData) {
		d.ReplanAttempts++
	}) != nil {
		return
	}

	np.cancelStaleChildren(ctx, data)

	fresh := n.Snapshot()
	input := np.p.Resolver.Resolve(fresh)
	n.update(func(d *core.TaskNodeData) { d.InputPayload = &input })
	np.generatePlan(ctx, n, input, core.CheckpointAfterModifiedPlan, planStageModifier, fresh.ReplanDetails)
}

// cancelStaleChildren cancels every non-terminal child in the sub-graph a
// replan is about to replace.
func (np *NodeProcessor) cancelStaleChildren(ctx context.Context, data core.TaskNodeData) {
	if data.SubGraphID == "" {
		return
	}
	children, err := np.p.Graph.NodesInGraph(data.SubGraphID)
	if err != nil {
		return
	}
	for _, child := range children {
		status := child.Status()
		if status.IsTerminal() {
			continue
		}
		_ = np.p.commit(ctx, child, status, core.Cancelled, func(d *core.TaskNodeData) {
			d.OutputSummary = "cancelled: parent replanned"
		})
	}
}

// adapterFailure fails the node unless the dispatch was preempted or the run
// cancelled, in which case the result is simply discarded.
func (np *NodeProcessor) adapterFailure(ctx context.Context, n *Node, from core.Status, name string, action core.Action, err error) {
	if errors.Is(err, core.ErrStalled) {
		logger.Warn(ctx, "Adapter dispatch preempted", "node", n.ID(), "agent", name)
		return
	}
	if errors.Is(err, context.Canceled) {
		logger.Debug(ctx, "Adapter dispatch cancelled", "node", n.ID(), "agent", name)
		return
	}
	np.fail(ctx, n, from, &core.AdapterError{AgentName: name, Action: action, Err: err})
}

func (np *NodeProcessor) fail(ctx context.Context, n *Node, from core.Status, err error) {
	logger.Error(ctx, "Node failed", "node", n.ID(), "err", err)
	_ = np.p.commit(ctx, n, from, core.Failed, func(d *core.TaskNodeData) {
		d.Error = err.Error()
	})
}

func (np *NodeProcessor) cancel(ctx context.Context, n *Node, from core.Status, summary string) {
	logger.Info(ctx, "Node cancelled", "node", n.ID(), "reason", summary)
	_ = np.p.commit(ctx, n, from, core.Cancelled, func(d *core.TaskNodeData) {
		d.OutputSummary = summary
	})
}
