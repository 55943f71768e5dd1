package runtime

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hiro-org/hiro/internal/common/logger"
	"github.com/hiro-org/hiro/internal/core"
	"github.com/hiro-org/hiro/internal/hitl"
)

// Project is the per-goal bundle of engine state. Projects never share
// mutable state; each running goal gets its own graph, store, coordinator,
// and scheduler.
type Project struct {
	ID string

	Graph       *TaskGraph
	Knowledge   *KnowledgeStore
	State       *StateManager
	Resolver    *ContextResolver
	Traces      *TraceLog
	HITL        *hitl.Coordinator
	Broadcaster core.UpdateBroadcaster
	Selector    core.AdapterSelector
	Config      Config

	// RootTaskType is the task type the root node is seeded with; it steers
	// which executor profile handles the goal if the root turns out atomic.
	RootTaskType core.TaskType

	processor *NodeProcessor
	cycle     *CycleManager
	engine    *Engine
	recovery  *Recovery

	cancelled atomic.Bool
}

// ProjectOption customizes project construction.
type ProjectOption func(*Project)

// WithConfig overrides the engine configuration.
func WithConfig(cfg Config) ProjectOption {
	return func(p *Project) { p.Config = cfg }
}

// WithHITL attaches a human-review coordinator.
func WithHITL(c *hitl.Coordinator) ProjectOption {
	return func(p *Project) { p.HITL = c }
}

// WithBroadcaster attaches an update broadcaster.
func WithBroadcaster(b core.UpdateBroadcaster) ProjectOption {
	return func(p *Project) { p.Broadcaster = b }
}

// WithProjectID pins the project id instead of generating one.
func WithProjectID(id string) ProjectOption {
	return func(p *Project) { p.ID = id }
}

// WithRootTaskType sets the task type the root node is seeded with.
func WithRootTaskType(t core.TaskType) ProjectOption {
	return func(p *Project) { p.RootTaskType = t }
}

// NewProject wires an isolated execution context for one goal.
func NewProject(overallGoal string, selector core.AdapterSelector, opts ...ProjectOption) *Project {
	p := &Project{
		ID:           uuid.NewString(),
		Graph:        NewTaskGraph(overallGoal),
		Knowledge:    NewKnowledgeStore(),
		Traces:       NewTraceLog(),
		Broadcaster:  core.NopBroadcaster{},
		Selector:     selector,
		Config:       DefaultConfig(),
		RootTaskType: core.TaskWrite,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.Config = p.Config.withDefaults()
	if p.HITL == nil {
		p.HITL = hitl.NewCoordinator(hitl.Config{}, nil)
	}
	p.State = NewStateManager(p.Graph)
	p.Resolver = NewContextResolver(p.Graph, p.Knowledge)
	p.processor = &NodeProcessor{p: p}
	p.cycle = &CycleManager{p: p}
	p.recovery = &Recovery{p: p}
	p.engine = &Engine{p: p}
	return p
}

// Engine returns the project's execution engine.
func (p *Project) Engine() *Engine {
	return p.engine
}

// Cancel flips the cooperative cancel flag. In-flight adapter calls are not
// interrupted; their results are discarded when they return.
func (p *Project) Cancel() {
	p.cancelled.Store(true)
}

// IsCancelled reports the cooperative cancel flag.
func (p *Project) IsCancelled() bool {
	return p.cancelled.Load()
}

// commit performs one validated status transition and its bookkeeping: the
// knowledge store is updated and the broadcaster notified. A refused
// transition is logged and denied, never raised.
func (p *Project) commit(ctx context.Context, n *Node, from, to core.Status, mutate func(*core.TaskNodeData)) error {
	if err := n.transition(from, to, mutate); err != nil {
		logger.Warn(ctx, "Transition refused", "node", n.ID(), "from", from.String(), "to", to.String(), "err", err)
		return err
	}

	data := n.Snapshot()
	rec := core.RecordFromNode(data)
	if core.IsRetryEdge(from, to) {
		p.Knowledge.UpsertRetry(rec)
	} else {
		p.Knowledge.Upsert(rec)
	}

	logger.Debug(ctx, "Node transitioned", "node", n.ID(), "from", from.String(), "to", to.String())
	p.Broadcaster.OnStateChanged(ctx, core.StateChange{
		ProjectID: p.ID,
		NodeID:    n.ID(),
		From:      from,
		To:        to,
		Node:      data,
	})
	return nil
}

// ActiveNodes returns every non-terminal node.
func (p *Project) ActiveNodes() []*Node {
	var out []*Node
	for _, n := range p.Graph.Nodes() {
		if n.Status().IsActive() {
			out = append(out, n)
		}
	}
	return out
}

type projectIDKey struct{}

// WithCurrentProjectID tags the context with the ambient project id so that
// adapter toolkits can locate per-project resources without being passed the
// id explicitly. The core never reads it.
func WithCurrentProjectID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, projectIDKey{}, id)
}

// CurrentProjectID reads the ambient project id from the context.
func CurrentProjectID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(projectIDKey{}).(string)
	return id, ok
}
