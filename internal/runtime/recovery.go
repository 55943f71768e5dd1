package runtime

import (
	"context"
	"fmt"

	"github.com/hiro-org/hiro/internal/common/logger"
	"github.com/hiro-org/hiro/internal/core"
)

// Recovery watches for nodes that sit in one status too long and forces them
// forward. Escalation has three rungs keyed on time-in-status: a warning log,
// a soft recovery targeted at the (status, node type) pair, and a hard
// failure. Forcing a RUNNING node out of its status closes its preemption
// channel, so the hung adapter dispatch is abandoned rather than awaited.
type Recovery struct {
	p *Project
}

// Scan makes one pass over the active nodes and applies the escalation
// ladder. It is called from the fan-out monitor, so it must be safe to run
// while dispatch goroutines are in flight.
func (r *Recovery) Scan(ctx context.Context) {
	cfg := r.p.Config
	for _, n := range r.p.ActiveNodes() {
		switch n.Status() {
		case core.Pending, core.Ready, core.NeedsReplan:
			// Scheduler-owned states; waiting there is not an adapter hang.
			// Deadlock diagnostics cover the case where they never move.
			continue
		}

		held := n.TimeInStatus()
		if held < cfg.StuckWarning {
			continue
		}

		data := n.Snapshot()
		if held >= cfg.StuckHard {
			if data.Status == core.PlanDone {
				// Drastic rung for a wedged sub-graph: salvage what finished.
				if r.subGraphStalled(data) {
					r.forcePartialAggregation(ctx, n, data)
				}
				continue
			}
			r.forceFail(ctx, n, data.Status, held.String())
			continue
		}
		if held >= cfg.StuckSoft && data.Status != core.PlanDone {
			r.recover(ctx, n, data)
			continue
		}
		logger.Warn(ctx, "Node is slow", "node", data.TaskID, "status", data.Status.String(), "held", held.String())
	}
}

// recover applies the soft recovery for the node's current stage. Each node
// gets a bounded number of soft recoveries before it is failed outright.
func (r *Recovery) recover(ctx context.Context, n *Node, data core.TaskNodeData) {
	if n.RecoveryAttempts() >= r.p.Config.MaxRecoveryAttempts {
		r.forceFail(ctx, n, data.Status, "recovery attempts exhausted")
		return
	}

	switch {
	case data.Status == core.Running && data.NodeType == core.NodeExecute:
		r.preemptToReplan(ctx, n, core.Running, "executor unresponsive")
	case data.Status == core.Running && data.NodeType == core.NodePlan:
		r.preemptToReplan(ctx, n, core.Running, "planning stage unresponsive")
	case data.Status == core.Aggregating:
		r.preemptToReplan(ctx, n, core.Aggregating, "aggregator unresponsive")
	}
}

func (r *Recovery) subGraphStalled(data core.TaskNodeData) bool {
	if data.SubGraphID == "" {
		return false
	}
	children, err := r.p.Graph.NodesInGraph(data.SubGraphID)
	if err != nil {
		return false
	}
	for _, child := range children {
		if child.Status().IsTerminal() {
			continue
		}
		if child.TimeInStatus() < r.p.Config.StuckSoft {
			return false
		}
	}
	return true
}

// preemptToReplan forces a stuck node into NEEDS_REPLAN. For EXECUTE nodes
// the cycle manager turns that into a retry; for PLAN nodes the plan modifier
// takes over.
func (r *Recovery) preemptToReplan(ctx context.Context, n *Node, from core.Status, reason string) {
	attempt := n.incRecoveryAttempts()
	logger.Warn(ctx, "Preempting stuck node", "node", n.ID(), "from", from.String(), "reason", reason, "recoveryAttempt", attempt)
	_ = r.p.commit(ctx, n, from, core.NeedsReplan, func(d *core.TaskNodeData) {
		d.ReplanDetails = &core.ReplanRequestDetails{Reason: reason}
	})
}

// forcePartialAggregation unwedges a PLAN_DONE parent whose sub-graph never
// finishes: the stragglers are cancelled and aggregation runs over whatever
// the children produced. The aggregate is marked partial.
func (r *Recovery) forcePartialAggregation(ctx context.Context, n *Node, data core.TaskNodeData) {
	attempt := n.incRecoveryAttempts()
	logger.Warn(ctx, "Forcing partial aggregation", "node", data.TaskID, "subGraph", data.SubGraphID, "recoveryAttempt", attempt)

	if data.SubGraphID != "" {
		children, err := r.p.Graph.NodesInGraph(data.SubGraphID)
		if err == nil {
			for _, child := range children {
				status := child.Status()
				if status.IsTerminal() {
					continue
				}
				_ = r.p.commit(ctx, child, status, core.Cancelled, func(d *core.TaskNodeData) {
					d.OutputSummary = "cancelled: parent forced partial aggregation"
				})
			}
		}
	}

	if r.p.commit(ctx, n, core.PlanDone, core.Aggregating, nil) == nil {
		r.p.processor.Process(ctx, n)
	}
}

// forceFail is the last rung: the node failed to move for so long that the
// only safe option is to mark it failed and let the parent replan around it.
func (r *Recovery) forceFail(ctx context.Context, n *Node, from core.Status, reason string) {
	logger.Error(ctx, "Force-failing stuck node", "node", n.ID(), "from", from.String(), "reason", reason)
	err := r.p.commit(ctx, n, from, core.Failed, func(d *core.TaskNodeData) {
		d.Error = fmt.Sprintf("stuck in %s: %s", from.String(), reason)
	})
	if err != nil {
		// No legal edge to FAILED from here (e.g. DONE raced in); leave it.
		logger.Debug(ctx, "Force-fail refused", "node", n.ID(), "err", err)
	}
}
