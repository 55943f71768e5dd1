package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/hiro-org/hiro/internal/agents"
	"github.com/hiro-org/hiro/internal/core"
)

const plannerPrompt = `You decompose a goal into the smallest useful set of subtasks.
Respond with JSON: {"subtasks":[{"goal":"...","taskType":"WRITE|THINK|SEARCH|AGGREGATE|CODE_INTERPRET|IMAGE_GENERATION","nodeType":"PLAN|EXECUTE","dependsOnIndices":[0]}]}.
dependsOnIndices are zero-based indices into the same list and must not be self-referential or form cycles.
Use PLAN for subtasks that still need decomposition, EXECUTE for directly doable work.`

const atomizerPrompt = `You judge whether a goal is small enough to execute in one step.
Respond with JSON: {"isAtomic":true|false,"refinedGoal":"..."}.
refinedGoal restates the goal sharply; leave it empty to keep the original.`

const executorPrompt = `You carry out the given goal completely, using the provided context.
Respond with the deliverable itself, not a description of how you would produce it.`

const aggregatorPrompt = `You combine the results of completed subtasks into one coherent deliverable for the parent goal.
Resolve overlaps and contradictions; do not invent content absent from the inputs.`

const planModifierPrompt = `You revise a plan that partially failed.
Respond with JSON: {"subtasks":[{"goal":"...","taskType":"WRITE|THINK|SEARCH|AGGREGATE|CODE_INTERPRET|IMAGE_GENERATION","nodeType":"PLAN|EXECUTE","dependsOnIndices":[0]}]}.
Keep what worked, replace what failed, and honor the user's instructions when given.`

type plannedSubTaskWire struct {
	Goal             string `json:"goal"`
	TaskType         string `json:"taskType"`
	NodeType         string `json:"nodeType"`
	DependsOnIndices []int  `json:"dependsOnIndices"`
}

type planWire struct {
	SubTasks []plannedSubTaskWire `json:"subtasks"`
}

func (w planWire) toCore() ([]core.PlannedSubTask, error) {
	if len(w.SubTasks) == 0 {
		return nil, fmt.Errorf("planner returned an empty plan")
	}
	out := make([]core.PlannedSubTask, len(w.SubTasks))
	for i, s := range w.SubTasks {
		if strings.TrimSpace(s.Goal) == "" {
			return nil, fmt.Errorf("subtask %d has an empty goal", i)
		}
		out[i] = core.PlannedSubTask{
			Goal:             s.Goal,
			TaskType:         core.TaskTypeFromString(s.TaskType),
			NodeType:         core.NodeTypeFromString(s.NodeType),
			DependsOnIndices: s.DependsOnIndices,
		}
	}
	return out, nil
}

// Planner is the OpenAI-backed planner adapter.
type Planner struct{ stage stage }

// NewPlanner builds a planner for one profile stage.
func NewPlanner(client ChatClient, profile agents.Profile, spec agents.AdapterSpec) *Planner {
	return &Planner{stage: newStage(client, profile, spec, plannerPrompt, true)}
}

// Plan implements core.Planner.
func (p *Planner) Plan(ctx context.Context, _ core.TaskNodeData, input core.AgentTaskInput) ([]core.PlannedSubTask, error) {
	content, err := p.stage.complete(ctx, renderInput(input))
	if err != nil {
		return nil, err
	}
	var wire planWire
	if err := decodeJSON(content, &wire); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return wire.toCore()
}

// Atomizer is the OpenAI-backed atomizer adapter.
type Atomizer struct{ stage stage }

// NewAtomizer builds an atomizer for one profile stage.
func NewAtomizer(client ChatClient, profile agents.Profile, spec agents.AdapterSpec) *Atomizer {
	return &Atomizer{stage: newStage(client, profile, spec, atomizerPrompt, true)}
}

// Atomize implements core.Atomizer.
func (a *Atomizer) Atomize(ctx context.Context, _ core.TaskNodeData, input core.AgentTaskInput) (core.AtomizerResult, error) {
	content, err := a.stage.complete(ctx, renderInput(input))
	if err != nil {
		return core.AtomizerResult{}, err
	}
	var result core.AtomizerResult
	if err := decodeJSON(content, &result); err != nil {
		return core.AtomizerResult{}, fmt.Errorf("decode atomizer verdict: %w", err)
	}
	return result, nil
}

// Executor is the OpenAI-backed executor adapter.
type Executor struct{ stage stage }

// NewExecutor builds an executor for one profile stage.
func NewExecutor(client ChatClient, profile agents.Profile, spec agents.AdapterSpec) *Executor {
	return &Executor{stage: newStage(client, profile, spec, executorPrompt, false)}
}

// Execute implements core.Executor.
func (e *Executor) Execute(ctx context.Context, _ core.TaskNodeData, input core.AgentTaskInput) (core.ExecutionResult, error) {
	content, err := e.stage.complete(ctx, renderInput(input))
	if err != nil {
		return core.ExecutionResult{}, err
	}
	return core.ExecutionResult{Result: content, OutputSummary: summarize(content)}, nil
}

// Aggregator is the OpenAI-backed aggregator adapter.
type Aggregator struct{ stage stage }

// NewAggregator builds an aggregator for one profile stage.
func NewAggregator(client ChatClient, profile agents.Profile, spec agents.AdapterSpec) *Aggregator {
	return &Aggregator{stage: newStage(client, profile, spec, aggregatorPrompt, false)}
}

// Aggregate implements core.Aggregator.
func (a *Aggregator) Aggregate(ctx context.Context, _ core.TaskNodeData, input core.AgentTaskInput) (core.ExecutionResult, error) {
	content, err := a.stage.complete(ctx, renderInput(input))
	if err != nil {
		return core.ExecutionResult{}, err
	}
	return core.ExecutionResult{Result: content, OutputSummary: summarize(content)}, nil
}

// PlanModifier is the OpenAI-backed replanning adapter.
type PlanModifier struct{ stage stage }

// NewPlanModifier builds a plan modifier for one profile stage.
func NewPlanModifier(client ChatClient, profile agents.Profile, spec agents.AdapterSpec) *PlanModifier {
	return &PlanModifier{stage: newStage(client, profile, spec, planModifierPrompt, true)}
}

// ModifyPlan implements core.PlanModifier.
func (m *PlanModifier) ModifyPlan(ctx context.Context, _ core.TaskNodeData, input core.AgentTaskInput, details core.ReplanRequestDetails) ([]core.PlannedSubTask, error) {
	var b strings.Builder
	b.WriteString(renderInput(input))
	fmt.Fprintf(&b, "\nReplan reason: %s\n", details.Reason)
	if len(details.FailedChildIDs) > 0 {
		fmt.Fprintf(&b, "Failed subtasks: %s\n", strings.Join(details.FailedChildIDs, ", "))
	}
	if details.UserInstructions != "" {
		fmt.Fprintf(&b, "User instructions: %s\n", details.UserInstructions)
	}

	content, err := m.stage.complete(ctx, b.String())
	if err != nil {
		return nil, err
	}
	var wire planWire
	if err := decodeJSON(content, &wire); err != nil {
		return nil, fmt.Errorf("decode revised plan: %w", err)
	}
	return wire.toCore()
}
