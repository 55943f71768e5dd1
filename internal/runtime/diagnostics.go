package runtime

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hiro-org/hiro/internal/core"
)

// Diagnosis is what the engine reports when a run stalls with active nodes
// but no cycle can make progress. It names the stuck nodes, classifies the
// shapes it recognizes, and explains per node what it is waiting on.
type Diagnosis struct {
	ActiveByStatus map[string][]string `json:"activeByStatus"`
	Patterns       []string            `json:"patterns,omitempty"`
	NodeReports    []NodeReport        `json:"nodeReports,omitempty"`
}

// NodeReport explains one stuck node's blockers.
type NodeReport struct {
	NodeID     string   `json:"nodeId"`
	Status     string   `json:"status"`
	WaitingOn  []string `json:"waitingOn,omitempty"`
	HeldFor    string   `json:"heldFor"`
	ParentID   string   `json:"parentId,omitempty"`
	Goal       string   `json:"goal"`
}

// String renders the diagnosis as the multi-line summary attached to the run
// error.
func (d Diagnosis) String() string {
	var b strings.Builder
	b.WriteString("execution stalled")
	statuses := make([]string, 0, len(d.ActiveByStatus))
	for s := range d.ActiveByStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(&b, "; %s=%v", s, d.ActiveByStatus[s])
	}
	for _, p := range d.Patterns {
		b.WriteString("; pattern: ")
		b.WriteString(p)
	}
	return b.String()
}

// Diagnose inspects the graph after a no-progress cycle and builds the
// stall report.
func (p *Project) Diagnose() Diagnosis {
	active := p.ActiveNodes()
	sort.Slice(active, func(i, j int) bool { return active[i].ID() < active[j].ID() })

	diag := Diagnosis{ActiveByStatus: map[string][]string{}}
	for _, n := range active {
		data := n.Snapshot()
		key := data.Status.String()
		diag.ActiveByStatus[key] = append(diag.ActiveByStatus[key], data.TaskID)
		diag.NodeReports = append(diag.NodeReports, NodeReport{
			NodeID:    data.TaskID,
			Status:    key,
			WaitingOn: p.waitingOn(data),
			HeldFor:   n.TimeInStatus().Round(time.Millisecond).String(),
			ParentID:  data.ParentNodeID,
			Goal:      data.Goal,
		})
	}
	diag.Patterns = p.stallPatterns(active, diag.ActiveByStatus)
	return diag
}

// waitingOn lists the specific blockers of one active node.
func (p *Project) waitingOn(data core.TaskNodeData) []string {
	var out []string
	switch data.Status {
	case core.Pending:
		if graphID, err := p.Graph.ContainerGraphID(data.TaskID); err == nil {
			if preds, err := p.Graph.Predecessors(graphID, data.TaskID); err == nil {
				for _, pred := range preds {
					if pred.Status() != core.Done {
						out = append(out, fmt.Sprintf("predecessor %s (%s)", pred.ID(), pred.Status().String()))
					}
				}
			}
		} else {
			out = append(out, "container graph unknown")
		}
		if data.ParentNodeID != "" {
			if parent, ok := p.Graph.GetNode(data.ParentNodeID); ok {
				if _, ready := readyParentStatuses[parent.Status()]; !ready {
					out = append(out, fmt.Sprintf("parent %s (%s)", parent.ID(), parent.Status().String()))
				}
			}
		}
	case core.PlanDone:
		if data.SubGraphID != "" {
			if children, err := p.Graph.NodesInGraph(data.SubGraphID); err == nil {
				for _, child := range children {
					if !child.Status().IsTerminal() {
						out = append(out, fmt.Sprintf("child %s (%s)", child.ID(), child.Status().String()))
					}
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// stallPatterns classifies recognizable stall shapes.
func (p *Project) stallPatterns(active []*Node, byStatus map[string][]string) []string {
	var patterns []string

	if len(byStatus[core.Running.String()]) == 1 && len(active) == len(byStatus[core.Running.String()])+countPendingBehind(p, byStatus) {
		patterns = append(patterns, fmt.Sprintf("lone RUNNING hang: %s never returned and recovery is exhausted or disabled", byStatus[core.Running.String()][0]))
	}

	if pendings := byStatus[core.Pending.String()]; len(pendings) > 0 && len(byStatus[core.Running.String()]) == 0 && len(byStatus[core.Ready.String()]) == 0 {
		patterns = append(patterns, fmt.Sprintf("orphaned PENDING nodes with no runnable work upstream: %v", pendings))
	}

	if aggs := byStatus[core.Aggregating.String()]; len(aggs) > 0 {
		patterns = append(patterns, fmt.Sprintf("stuck aggregation: %v never combined their child outputs", aggs))
	}

	if cyclic := p.circularParentChain(active); cyclic != "" {
		patterns = append(patterns, fmt.Sprintf("circular parent chain involving %s", cyclic))
	}

	for _, n := range active {
		data := n.Snapshot()
		if data.Status != core.Pending {
			continue
		}
		if _, err := p.Graph.ContainerGraphID(data.TaskID); err != nil {
			patterns = append(patterns, fmt.Sprintf("node %s has no locatable container graph", data.TaskID))
		}
	}
	return patterns
}

// circularParentChain walks the parent links of every active node and returns
// the first node whose ancestry loops back on itself. The graph layer cannot
// produce this on its own; a corrupted snapshot can.
func (p *Project) circularParentChain(active []*Node) string {
	for _, n := range active {
		start := n.ID()
		seen := map[string]struct{}{start: {}}
		cur := n.Snapshot().ParentNodeID
		for cur != "" {
			if _, ok := seen[cur]; ok {
				return start
			}
			seen[cur] = struct{}{}
			parent, ok := p.Graph.GetNode(cur)
			if !ok {
				break
			}
			cur = parent.Snapshot().ParentNodeID
		}
	}
	return ""
}

func countPendingBehind(p *Project, byStatus map[string][]string) int {
	return len(byStatus[core.Pending.String()]) + len(byStatus[core.PlanDone.String()])
}
