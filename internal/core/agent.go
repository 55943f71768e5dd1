package core

import "context"

// ContextItem is one piece of upstream knowledge fed to an adapter.
type ContextItem struct {
	SourceTaskID           string `json:"sourceTaskId"`
	SourceTaskGoal         string `json:"sourceTaskGoal"`
	ContentTypeDescription string `json:"contentTypeDescription"`
	Content                any    `json:"content"`
}

// AgentTaskInput is the payload assembled for every adapter call.
type AgentTaskInput struct {
	CurrentGoal          string        `json:"currentGoal"`
	OverallObjective     string        `json:"overallObjective"`
	RelevantContextItems []ContextItem `json:"relevantContextItems,omitempty"`
}

// PlannedSubTask is one child a planner or plan modifier proposes.
// DependsOnIndices are indices into the same sibling list.
type PlannedSubTask struct {
	Goal             string   `json:"goal"`
	TaskType         TaskType `json:"taskType"`
	NodeType         NodeType `json:"nodeType"`
	DependsOnIndices []int    `json:"dependsOnIndices,omitempty"`
}

// AtomizerResult is the atomizer's verdict on a PLAN node.
type AtomizerResult struct {
	IsAtomic    bool   `json:"isAtomic"`
	RefinedGoal string `json:"refinedGoal,omitempty"`
}

// ExecutionResult is the structured header every executor and aggregator
// returns; Result itself is opaque to the core.
type ExecutionResult struct {
	Result        any    `json:"result"`
	OutputSummary string `json:"outputSummary"`
}

// Planner decomposes a PLAN node's goal into subtasks.
type Planner interface {
	Plan(ctx context.Context, node TaskNodeData, input AgentTaskInput) ([]PlannedSubTask, error)
}

// Atomizer decides whether a PLAN node is small enough to execute directly.
type Atomizer interface {
	Atomize(ctx context.Context, node TaskNodeData, input AgentTaskInput) (AtomizerResult, error)
}

// Executor performs the work of an EXECUTE node.
type Executor interface {
	Execute(ctx context.Context, node TaskNodeData, input AgentTaskInput) (ExecutionResult, error)
}

// Aggregator combines a PLAN node's child outputs into the node's own result.
type Aggregator interface {
	Aggregate(ctx context.Context, node TaskNodeData, input AgentTaskInput) (ExecutionResult, error)
}

// PlanModifier re-plans a PLAN node after child failure or a user
// modification request.
type PlanModifier interface {
	ModifyPlan(ctx context.Context, node TaskNodeData, input AgentTaskInput, details ReplanRequestDetails) ([]PlannedSubTask, error)
}

// Action names the adapter operation being resolved.
type Action string

const (
	ActionPlan       Action = "plan"
	ActionAtomize    Action = "atomize"
	ActionExecute    Action = "execute"
	ActionAggregate  Action = "aggregate"
	ActionModifyPlan Action = "modify_plan"
)

// AdapterSelector resolves a node to the concrete adapter that should handle
// one action. The core consumes the selector; it never defines adapters.
type AdapterSelector interface {
	Planner(node TaskNodeData) (Planner, string, error)
	Atomizer(node TaskNodeData) (Atomizer, string, error)
	Executor(node TaskNodeData) (Executor, string, error)
	Aggregator(node TaskNodeData) (Aggregator, string, error)
	PlanModifier(node TaskNodeData) (PlanModifier, string, error)
}
