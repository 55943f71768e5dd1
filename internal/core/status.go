package core

import "encoding/json"

// Status represents the canonical lifecycle phases for a task node.
type Status int

const (
	Pending Status = iota
	Ready
	Running
	PlanDone
	Aggregating
	Done
	Failed
	NeedsReplan
	Cancelled
)

// String returns the canonical lowercase token used across APIs, logs, and
// serialized snapshots.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case PlanDone:
		return "plan_done"
	case Aggregating:
		return "aggregating"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case NeedsReplan:
		return "needs_replan"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// StatusFromString parses the canonical token back into a Status. Unknown
// tokens map to Pending so that restored snapshots degrade to re-execution
// rather than corruption.
func StatusFromString(s string) Status {
	switch s {
	case "ready":
		return Ready
	case "running":
		return Running
	case "plan_done":
		return PlanDone
	case "aggregating":
		return Aggregating
	case "done":
		return Done
	case "failed":
		return Failed
	case "needs_replan":
		return NeedsReplan
	case "cancelled":
		return Cancelled
	default:
		return Pending
	}
}

// MarshalJSON serializes the canonical token so snapshots stay readable and
// stable across versions.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var tok string
	if err := json.Unmarshal(b, &tok); err != nil {
		return err
	}
	*s = StatusFromString(tok)
	return nil
}

// IsTerminal checks if the status is one no forward transition leaves.
func (s Status) IsTerminal() bool {
	return s == Done || s == Failed || s == Cancelled
}

// IsActive checks if the node still demands scheduler attention.
func (s Status) IsActive() bool {
	return !s.IsTerminal()
}

// transitions is the authoritative edge set of the node state machine.
// Retry edges (Done -> NeedsReplan, Failed -> Ready/NeedsReplan) are the only
// edges out of a terminal status. Every non-terminal status has an exit to
// Cancelled so a run can always be torn down. PlanDone -> Done is a legal
// no-op-aggregation shortcut for external drivers; the engine itself always
// routes finished plans through Aggregating.
var transitions = map[Status][]Status{
	Pending:     {Ready, Running, Failed, Cancelled},
	Ready:       {Running, Failed, Cancelled},
	Running:     {Done, PlanDone, Failed, NeedsReplan, Cancelled},
	PlanDone:    {Aggregating, Done, Failed, NeedsReplan, Cancelled},
	Aggregating: {Done, Failed, NeedsReplan, Cancelled},
	NeedsReplan: {Ready, Running, Failed, Cancelled},
	Done:        {NeedsReplan},
	Failed:      {Ready, NeedsReplan},
	Cancelled:   {},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsRetryEdge reports whether from -> to leaves a terminal status. The
// knowledge store uses this to distinguish retry writes from ordinary ones.
func IsRetryEdge(from, to Status) bool {
	return from.IsTerminal() && CanTransition(from, to)
}

// TaskType describes what kind of work a node's goal asks for.
type TaskType int

const (
	TaskWrite TaskType = iota
	TaskThink
	TaskSearch
	TaskAggregate
	TaskCodeInterpret
	TaskImageGeneration
)

// String returns the canonical uppercase token, matching what planners emit.
func (t TaskType) String() string {
	switch t {
	case TaskWrite:
		return "WRITE"
	case TaskThink:
		return "THINK"
	case TaskSearch:
		return "SEARCH"
	case TaskAggregate:
		return "AGGREGATE"
	case TaskCodeInterpret:
		return "CODE_INTERPRET"
	case TaskImageGeneration:
		return "IMAGE_GENERATION"
	default:
		return "THINK"
	}
}

func (t TaskType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TaskType) UnmarshalJSON(b []byte) error {
	var tok string
	if err := json.Unmarshal(b, &tok); err != nil {
		return err
	}
	*t = TaskTypeFromString(tok)
	return nil
}

// TaskTypeFromString parses a planner-emitted token. Unknown tokens fall back
// to THINK.
func TaskTypeFromString(s string) TaskType {
	switch s {
	case "WRITE":
		return TaskWrite
	case "SEARCH":
		return TaskSearch
	case "AGGREGATE":
		return TaskAggregate
	case "CODE_INTERPRET":
		return TaskCodeInterpret
	case "IMAGE_GENERATION":
		return TaskImageGeneration
	default:
		return TaskThink
	}
}

// NodeType distinguishes decomposing nodes from acting ones.
type NodeType int

const (
	NodePlan NodeType = iota
	NodeExecute
)

func (t NodeType) String() string {
	if t == NodeExecute {
		return "EXECUTE"
	}
	return "PLAN"
}

func (t NodeType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *NodeType) UnmarshalJSON(b []byte) error {
	var tok string
	if err := json.Unmarshal(b, &tok); err != nil {
		return err
	}
	*t = NodeTypeFromString(tok)
	return nil
}

// NodeTypeFromString parses the canonical token; anything but EXECUTE is PLAN.
func NodeTypeFromString(s string) NodeType {
	if s == "EXECUTE" {
		return NodeExecute
	}
	return NodePlan
}
