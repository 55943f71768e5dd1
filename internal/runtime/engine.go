package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/hiro-org/hiro/internal/common/logger"
	"github.com/hiro-org/hiro/internal/core"
)

// RunStatus is the overall outcome of one engine run.
type RunStatus string

const (
	// RunSuccess means the root finished with a complete aggregate.
	RunSuccess RunStatus = "success"
	// RunPartial means the root finished but at least one aggregation ran
	// over incomplete children.
	RunPartial RunStatus = "partial"
	// RunFailed means the root failed, was cancelled, or the run stalled.
	RunFailed RunStatus = "failed"
)

// RunResult is what a run hands back to the caller.
type RunResult struct {
	Status      RunStatus
	FinalOutput any
	Summary     string
	Steps       int
	Err         error
	Diagnostics *Diagnosis
}

// Engine owns the outer run loop: it seeds the root, drives cycles until the
// root is terminal, and converts stalls into diagnosable failures.
type Engine struct {
	p *Project
}

// RootGraphName is the id of the top-level dependency graph. It must not
// collide with any node's sub-graph id ("graph_<task id>").
const RootGraphName = "graph_main"

// Run seeds the root node from the project goal and drives it to a terminal
// status.
func (e *Engine) Run(ctx context.Context) RunResult {
	if err := e.seedRoot(); err != nil {
		return RunResult{Status: RunFailed, Err: err}
	}
	return e.loop(ctx)
}

// Resume continues a restored project. Nodes left RUNNING or AGGREGATING by
// the interrupted run have no live dispatch behind them anymore, so they are
// sent back through replan before cycling restarts.
func (e *Engine) Resume(ctx context.Context) RunResult {
	for _, n := range e.p.ActiveNodes() {
		status := n.Status()
		if status != core.Running && status != core.Aggregating {
			continue
		}
		_ = e.p.commit(ctx, n, status, core.NeedsReplan, func(d *core.TaskNodeData) {
			d.ReplanDetails = &core.ReplanRequestDetails{Reason: "resumed after interruption"}
		})
	}
	return e.loop(ctx)
}

func (e *Engine) seedRoot() error {
	if _, ok := e.p.Graph.GetNode(core.RootTaskID); ok {
		return fmt.Errorf("%w: %s", core.ErrNodeExists, core.RootTaskID)
	}
	if err := e.p.Graph.AddGraph(RootGraphName, true); err != nil {
		return err
	}
	root := NewNode(core.TaskNodeData{
		TaskID:           core.RootTaskID,
		Layer:            0,
		Goal:             e.p.Graph.OverallGoal(),
		OverallObjective: e.p.Graph.OverallGoal(),
		TaskType:         e.p.RootTaskType,
		NodeType:         core.NodePlan,
		Status:           core.Pending,
	})
	if err := e.p.Graph.AddNodeToGraph(RootGraphName, root); err != nil {
		return err
	}
	e.p.Knowledge.Upsert(core.RecordFromNode(root.Snapshot()))
	return nil
}

func (e *Engine) loop(ctx context.Context) RunResult {
	ctx = WithCurrentProjectID(ctx, e.p.ID)
	if e.p.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.p.Config.Timeout)
		defer cancel()
	}

	root, ok := e.p.Graph.GetNode(core.RootTaskID)
	if !ok {
		return RunResult{Status: RunFailed, Err: core.ErrNodeNotFound}
	}

	logger.Info(ctx, "Run started", "project", e.p.ID, "goal", e.p.Graph.OverallGoal())
	steps := 0
	stalled := 0
	for steps < e.p.Config.MaxSteps {
		if e.p.IsCancelled() {
			e.markRootTerminal(ctx, root, core.Cancelled, "run cancelled")
			return e.result(root, steps, core.ErrCancelled, nil)
		}
		if err := ctx.Err(); err != nil {
			e.markRootTerminal(ctx, root, core.Failed, "run deadline exceeded")
			return e.result(root, steps, err, nil)
		}

		steps++
		progress := e.p.cycle.Step(ctx)

		if root.Status().IsTerminal() {
			logger.Info(ctx, "Run finished", "project", e.p.ID, "status", root.Status().String(), "steps", steps)
			return e.result(root, steps, nil, nil)
		}

		if progress {
			stalled = 0
			continue
		}

		// One grace cycle: a no-progress pass may just mean every eligible
		// transition landed in the previous pass.
		stalled++
		if stalled < 2 {
			e.p.recovery.Scan(ctx)
			continue
		}

		diag := e.p.Diagnose()
		logger.Error(ctx, "Run stalled", "project", e.p.ID, "steps", steps, "diagnosis", diag.String())
		e.markRootTerminal(ctx, root, core.Failed, diag.String())
		return e.result(root, steps, &core.DeadlockError{Diagnosis: diag.String()}, &diag)
	}

	budget := fmt.Errorf("step budget exhausted (%d)", e.p.Config.MaxSteps)
	e.markRootTerminal(ctx, root, core.Failed, budget.Error())
	return e.result(root, steps, budget, nil)
}

// markRootTerminal forces the root to a terminal status if it is not already
// there.
func (e *Engine) markRootTerminal(ctx context.Context, root *Node, to core.Status, reason string) {
	status := root.Status()
	if status.IsTerminal() {
		return
	}
	_ = e.p.commit(ctx, root, status, to, func(d *core.TaskNodeData) {
		if to == core.Failed {
			d.Error = reason
		} else {
			d.OutputSummary = reason
		}
	})
}

func (e *Engine) result(root *Node, steps int, err error, diag *Diagnosis) RunResult {
	data := root.Snapshot()
	res := RunResult{
		FinalOutput: data.Result,
		Summary:     data.OutputSummary,
		Steps:       steps,
		Err:         err,
		Diagnostics: diag,
	}
	switch data.Status {
	case core.Done:
		if e.anyPartialAggregation() {
			res.Status = RunPartial
		} else {
			res.Status = RunSuccess
		}
	default:
		res.Status = RunFailed
		if res.Err == nil && data.Error != "" {
			res.Err = errors.New(data.Error)
		}
	}
	return res
}

// anyPartialAggregation reports whether any aggregate in the tree ran over
// incomplete children.
func (e *Engine) anyPartialAggregation() bool {
	for _, n := range e.p.Graph.Nodes() {
		data := n.Snapshot()
		if data.AuxBool(core.AuxKeyPartialAggregation) {
			return true
		}
	}
	return false
}
