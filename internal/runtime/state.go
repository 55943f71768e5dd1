package runtime

import (
	"github.com/hiro-org/hiro/internal/core"
)

// StateManager holds the pure scheduling predicates over the graph. It never
// mutates anything; the cycle manager consults it before every transition.
type StateManager struct {
	graph *TaskGraph
}

// NewStateManager builds a state manager over one project's graph.
func NewStateManager(graph *TaskGraph) *StateManager {
	return &StateManager{graph: graph}
}

// readyParentStatuses are the parent statuses under which a child may start.
// A parent still planning in RUNNING is acceptable because it may have
// produced children without yet transitioning.
var readyParentStatuses = map[core.Status]struct{}{
	core.Running:     {},
	core.PlanDone:    {},
	core.Done:        {},
	core.Aggregating: {},
}

// CanBecomeReady reports whether a PENDING node may be promoted to READY:
// its parent (if any) is in an acceptable status, its container graph can be
// located, and every predecessor in that graph is DONE.
func (s *StateManager) CanBecomeReady(node *Node) bool {
	data := node.Snapshot()
	if data.Status != core.Pending {
		return false
	}

	if data.ParentNodeID != "" {
		parent, ok := s.graph.GetNode(data.ParentNodeID)
		if !ok {
			return false
		}
		if _, ok := readyParentStatuses[parent.Status()]; !ok {
			return false
		}
	}

	graphID, err := s.graph.ContainerGraphID(data.TaskID)
	if err != nil {
		return false
	}
	preds, err := s.graph.Predecessors(graphID, data.TaskID)
	if err != nil {
		return false
	}
	for _, pred := range preds {
		if pred.Status() != core.Done {
			return false
		}
	}
	return true
}

// CanAggregate reports whether a PLAN_DONE plan node may start combining its
// child outputs: its sub-graph is set and every node in it is terminal. An
// empty sub-graph is trivially aggregated.
func (s *StateManager) CanAggregate(node *Node) bool {
	data := node.Snapshot()
	if data.Status != core.PlanDone || data.NodeType != core.NodePlan {
		return false
	}
	if data.SubGraphID == "" {
		return false
	}
	children, err := s.graph.NodesInGraph(data.SubGraphID)
	if err != nil {
		return false
	}
	for _, child := range children {
		if !child.Status().IsTerminal() {
			return false
		}
	}
	return true
}

// FailedChildren returns the ids of FAILED nodes in a plan node's sub-graph.
func (s *StateManager) FailedChildren(node *Node) []string {
	data := node.Snapshot()
	if data.SubGraphID == "" {
		return nil
	}
	children, err := s.graph.NodesInGraph(data.SubGraphID)
	if err != nil {
		return nil
	}
	var failed []string
	for _, child := range children {
		if child.Status() == core.Failed {
			failed = append(failed, child.ID())
		}
	}
	return failed
}

// CanTransitionTo enforces the state machine table for one node.
func (s *StateManager) CanTransitionTo(node *Node, to core.Status) bool {
	return core.CanTransition(node.Status(), to)
}
