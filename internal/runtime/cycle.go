package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hiro-org/hiro/internal/common/logger"
	"github.com/hiro-org/hiro/internal/core"
)

// CycleManager drives one scheduling cycle at a time: promote eligible
// PENDING nodes, fan out all READY nodes concurrently, settle PLAN_DONE
// parents, and hand at most one replan to the processor. Between cycles the
// graph is quiescent; everything concurrent happens inside the fan-out.
type CycleManager struct {
	p *Project
}

// Step runs one full cycle and reports whether it made progress. A cycle
// with no promotions, no dispatches, and no settles means the run is either
// finished or stalled.
func (cm *CycleManager) Step(ctx context.Context) bool {
	progress := cm.promoteReady(ctx)

	if cm.dispatchReady(ctx) {
		progress = true
	}

	if cm.settlePlanDone(ctx) {
		progress = true
	}

	if cm.handleOneReplan(ctx) {
		progress = true
	}

	return progress
}

// nodesWithStatus returns the project's nodes in the given status, ordered by
// id so cycles are deterministic.
func (cm *CycleManager) nodesWithStatus(status core.Status) []*Node {
	var out []*Node
	for _, n := range cm.p.Graph.Nodes() {
		if n.Status() == status {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// promoteReady moves every eligible PENDING node to READY.
func (cm *CycleManager) promoteReady(ctx context.Context) bool {
	progress := false
	for _, n := range cm.nodesWithStatus(core.Pending) {
		if !cm.p.State.CanBecomeReady(n) {
			continue
		}
		if cm.p.commit(ctx, n, core.Pending, core.Ready, nil) == nil {
			progress = true
		}
	}
	return progress
}

// dispatchReady processes all READY nodes concurrently, bounded by the
// configured fan-out. While the fan-out is in flight a monitor scans for
// stuck nodes, so a hung adapter cannot wedge the whole cycle: the scan
// preempts it and the dispatch goroutine returns.
func (cm *CycleManager) dispatchReady(ctx context.Context) bool {
	ready := cm.nodesWithStatus(core.Ready)
	if len(ready) == 0 {
		return false
	}

	sem := semaphore.NewWeighted(cm.p.Config.MaxConcurrentNodes)
	var wg sync.WaitGroup
	for _, n := range ready {
		wg.Add(1)
		go func(n *Node) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			cm.p.processor.Process(ctx, n)
		}(n)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(cm.p.Config.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return true
		case <-ticker.C:
			cm.p.recovery.Scan(ctx)
		}
	}
}

// settlePlanDone advances PLAN_DONE parents: any FAILED child triggers an
// immediate replan request (waiting for the rest would leave their dependents
// PENDING forever), and a fully terminal sub-graph starts aggregation.
// Aggregation runs inline so a finished sub-graph can cascade up through its
// ancestors within the same cycle, bounded by the settle limit.
func (cm *CycleManager) settlePlanDone(ctx context.Context) bool {
	progress := false
	for pass := 0; pass < cm.p.Config.PlanDoneSettleBound; pass++ {
		changed := false
		for _, n := range cm.nodesWithStatus(core.PlanDone) {
			if cm.settleOne(ctx, n) {
				changed = true
			}
		}
		if !changed {
			break
		}
		progress = true
	}
	return progress
}

func (cm *CycleManager) settleOne(ctx context.Context, n *Node) bool {
	if failed := cm.p.State.FailedChildren(n); len(failed) > 0 {
		err := cm.p.commit(ctx, n, core.PlanDone, core.NeedsReplan, func(d *core.TaskNodeData) {
			d.ReplanDetails = &core.ReplanRequestDetails{
				Reason:         fmt.Sprintf("%d child task(s) failed", len(failed)),
				FailedChildIDs: failed,
			}
		})
		return err == nil
	}

	if cm.p.State.CanAggregate(n) {
		if cm.p.commit(ctx, n, core.PlanDone, core.Aggregating, nil) != nil {
			return false
		}
		cm.p.processor.Process(ctx, n)
		return true
	}
	return false
}

// handleOneReplan serializes replans: at most one NEEDS_REPLAN node is
// handled per cycle so each replan sees the graph the previous one produced.
// A failed EXECUTE node retried into NEEDS_REPLAN goes back to READY; plan
// nodes go through the plan modifier.
func (cm *CycleManager) handleOneReplan(ctx context.Context) bool {
	pending := cm.nodesWithStatus(core.NeedsReplan)
	if len(pending) == 0 {
		return false
	}
	n := pending[0]
	data := n.Snapshot()

	if data.NodeType == core.NodeExecute {
		if data.ReplanAttempts >= cm.p.Config.MaxReplanAttempts {
			_ = cm.p.commit(ctx, n, core.NeedsReplan, core.Failed, func(d *core.TaskNodeData) {
				d.Error = fmt.Sprintf("retry attempts exhausted (%d)", d.ReplanAttempts)
			})
			return true
		}
		logger.Info(ctx, "Retrying execute node", "node", data.TaskID, "attempt", data.ReplanAttempts+1)
		_ = cm.p.commit(ctx, n, core.NeedsReplan, core.Ready, func(d *core.TaskNodeData) {
			d.ReplanAttempts++
			d.Error = ""
			d.Result = nil
			d.OutputSummary = ""
		})
		return true
	}

	cm.p.processor.Process(ctx, n)
	return true
}
