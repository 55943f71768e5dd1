package agents

import (
	"fmt"
	"sync"

	"github.com/hiro-org/hiro/internal/core"
)

// Registry maps (action, task type) pairs to named adapters, with a default
// per action when no task-type override is registered. It is the concrete
// AdapterSelector handed to the runtime.
type Registry struct {
	mu sync.RWMutex

	planners      map[core.TaskType]named[core.Planner]
	atomizers     map[core.TaskType]named[core.Atomizer]
	executors     map[core.TaskType]named[core.Executor]
	aggregators   map[core.TaskType]named[core.Aggregator]
	planModifiers map[core.TaskType]named[core.PlanModifier]

	defaultPlanner      *named[core.Planner]
	defaultAtomizer     *named[core.Atomizer]
	defaultExecutor     *named[core.Executor]
	defaultAggregator   *named[core.Aggregator]
	defaultPlanModifier *named[core.PlanModifier]
}

type named[T any] struct {
	name    string
	adapter T
}

var _ core.AdapterSelector = (*Registry)(nil)

// NewRegistry allocates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		planners:      make(map[core.TaskType]named[core.Planner]),
		atomizers:     make(map[core.TaskType]named[core.Atomizer]),
		executors:     make(map[core.TaskType]named[core.Executor]),
		aggregators:   make(map[core.TaskType]named[core.Aggregator]),
		planModifiers: make(map[core.TaskType]named[core.PlanModifier]),
	}
}

// RegisterPlanner binds a planner. With no task types it becomes the default.
func (r *Registry) RegisterPlanner(name string, p core.Planner, taskTypes ...core.TaskType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(taskTypes) == 0 {
		r.defaultPlanner = &named[core.Planner]{name, p}
		return
	}
	for _, t := range taskTypes {
		r.planners[t] = named[core.Planner]{name, p}
	}
}

// RegisterAtomizer binds an atomizer. With no task types it becomes the
// default.
func (r *Registry) RegisterAtomizer(name string, a core.Atomizer, taskTypes ...core.TaskType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(taskTypes) == 0 {
		r.defaultAtomizer = &named[core.Atomizer]{name, a}
		return
	}
	for _, t := range taskTypes {
		r.atomizers[t] = named[core.Atomizer]{name, a}
	}
}

// RegisterExecutor binds an executor. With no task types it becomes the
// default.
func (r *Registry) RegisterExecutor(name string, e core.Executor, taskTypes ...core.TaskType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(taskTypes) == 0 {
		r.defaultExecutor = &named[core.Executor]{name, e}
		return
	}
	for _, t := range taskTypes {
		r.executors[t] = named[core.Executor]{name, e}
	}
}

// RegisterAggregator binds an aggregator. With no task types it becomes the
// default.
func (r *Registry) RegisterAggregator(name string, a core.Aggregator, taskTypes ...core.TaskType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(taskTypes) == 0 {
		r.defaultAggregator = &named[core.Aggregator]{name, a}
		return
	}
	for _, t := range taskTypes {
		r.aggregators[t] = named[core.Aggregator]{name, a}
	}
}

// RegisterPlanModifier binds a plan modifier. With no task types it becomes
// the default.
func (r *Registry) RegisterPlanModifier(name string, m core.PlanModifier, taskTypes ...core.TaskType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(taskTypes) == 0 {
		r.defaultPlanModifier = &named[core.PlanModifier]{name, m}
		return
	}
	for _, t := range taskTypes {
		r.planModifiers[t] = named[core.PlanModifier]{name, m}
	}
}

func resolve[T any](byType map[core.TaskType]named[T], def *named[T], node core.TaskNodeData, action core.Action) (T, string, error) {
	if n, ok := byType[node.TaskType]; ok {
		return n.adapter, n.name, nil
	}
	if def != nil {
		return def.adapter, def.name, nil
	}
	var zero T
	return zero, "", fmt.Errorf("no %s adapter registered for task type %s", action, node.TaskType)
}

// Planner implements core.AdapterSelector.
func (r *Registry) Planner(node core.TaskNodeData) (core.Planner, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return resolve(r.planners, r.defaultPlanner, node, core.ActionPlan)
}

// Atomizer implements core.AdapterSelector.
func (r *Registry) Atomizer(node core.TaskNodeData) (core.Atomizer, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return resolve(r.atomizers, r.defaultAtomizer, node, core.ActionAtomize)
}

// Executor implements core.AdapterSelector.
func (r *Registry) Executor(node core.TaskNodeData) (core.Executor, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return resolve(r.executors, r.defaultExecutor, node, core.ActionExecute)
}

// Aggregator implements core.AdapterSelector.
func (r *Registry) Aggregator(node core.TaskNodeData) (core.Aggregator, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return resolve(r.aggregators, r.defaultAggregator, node, core.ActionAggregate)
}

// PlanModifier implements core.AdapterSelector.
func (r *Registry) PlanModifier(node core.TaskNodeData) (core.PlanModifier, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return resolve(r.planModifiers, r.defaultPlanModifier, node, core.ActionModifyPlan)
}
