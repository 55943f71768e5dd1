package runtime

import (
	"fmt"
	"sync"

	"github.com/hiro-org/hiro/internal/core"
)

// DAG is one dependency subgraph: node-id membership plus directed
// predecessor -> successor edges expressing execution order.
type DAG struct {
	ID      string
	nodeIDs []string
	members map[string]struct{}
	from    map[string][]string // u -> successors
	to      map[string][]string // v -> predecessors
}

func newDAG(id string) *DAG {
	return &DAG{
		ID:      id,
		members: make(map[string]struct{}),
		from:    make(map[string][]string),
		to:      make(map[string][]string),
	}
}

// NodeIDs returns the member ids in insertion order.
func (d *DAG) NodeIDs() []string {
	out := make([]string, len(d.nodeIDs))
	copy(out, d.nodeIDs)
	return out
}

// Edges returns all (u, v) dependency pairs.
func (d *DAG) Edges() [][2]string {
	var out [][2]string
	for _, u := range d.nodeIDs {
		for _, v := range d.from[u] {
			out = append(out, [2]string{u, v})
		}
	}
	return out
}

// reaches reports whether start can reach target along dependency edges.
func (d *DAG) reaches(start, target string) bool {
	if start == target {
		return true
	}
	visited := map[string]struct{}{start: {}}
	queue := []string{start}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range d.from[u] {
			if v == target {
				return true
			}
			if _, ok := visited[v]; ok {
				continue
			}
			visited[v] = struct{}{}
			queue = append(queue, v)
		}
	}
	return false
}

// TaskGraph holds every node of a project, organized into nested dependency
// subgraphs. All mutations are serialized by a single graph-wide mutex; reads
// take the same lock and return copies.
type TaskGraph struct {
	mu sync.RWMutex

	nodes       map[string]*Node
	graphs      map[string]*DAG
	rootGraphID string
	overallGoal string
}

// NewTaskGraph allocates an empty task graph.
func NewTaskGraph(overallGoal string) *TaskGraph {
	return &TaskGraph{
		nodes:       make(map[string]*Node),
		graphs:      make(map[string]*DAG),
		overallGoal: overallGoal,
	}
}

// OverallGoal returns the project goal string.
func (g *TaskGraph) OverallGoal() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.overallGoal
}

// RootGraphID returns the id of the DAG containing the root node.
func (g *TaskGraph) RootGraphID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rootGraphID
}

// AddGraph creates an empty subgraph. Marking a second root fails.
func (g *TaskGraph) AddGraph(id string, isRoot bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.graphs[id]; ok {
		return fmt.Errorf("%w: %s", core.ErrGraphExists, id)
	}
	if isRoot && g.rootGraphID != "" {
		return fmt.Errorf("%w: %s", core.ErrSecondRootGraph, id)
	}
	g.graphs[id] = newDAG(id)
	if isRoot {
		g.rootGraphID = id
	}
	return nil
}

// AddNodeToGraph places a node in one subgraph and in the flat lookup.
func (g *TaskGraph) AddNodeToGraph(graphID string, node *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	dag, ok := g.graphs[graphID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrGraphNotFound, graphID)
	}
	id := node.ID()
	if _, ok := g.nodes[id]; ok {
		return fmt.Errorf("%w: %s", core.ErrNodeExists, id)
	}
	g.nodes[id] = node
	dag.members[id] = struct{}{}
	dag.nodeIDs = append(dag.nodeIDs, id)
	return nil
}

// AddEdge records "u must complete before v may start" within one subgraph.
// The edge is rejected if either endpoint is missing from the subgraph or if
// it would create a cycle.
func (g *TaskGraph) AddEdge(graphID, u, v string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	dag, ok := g.graphs[graphID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrGraphNotFound, graphID)
	}
	if _, ok := dag.members[u]; !ok {
		return fmt.Errorf("%w: %s in %s", core.ErrNodeNotInGraph, u, graphID)
	}
	if _, ok := dag.members[v]; !ok {
		return fmt.Errorf("%w: %s in %s", core.ErrNodeNotInGraph, v, graphID)
	}
	if dag.reaches(v, u) {
		return fmt.Errorf("%w: %s -> %s", core.ErrCycleDetected, u, v)
	}
	dag.from[u] = append(dag.from[u], v)
	dag.to[v] = append(dag.to[v], u)
	return nil
}

// GetNode looks a node up by id.
func (g *TaskGraph) GetNode(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node in the project, in no particular order.
func (g *TaskGraph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// NodesInGraph returns the member nodes of one subgraph in insertion order.
func (g *TaskGraph) NodesInGraph(graphID string) ([]*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	dag, ok := g.graphs[graphID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrGraphNotFound, graphID)
	}
	out := make([]*Node, 0, len(dag.nodeIDs))
	for _, id := range dag.nodeIDs {
		out = append(out, g.nodes[id])
	}
	return out, nil
}

// Predecessors returns the nodes that must complete before node_id may start.
func (g *TaskGraph) Predecessors(graphID, nodeID string) ([]*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	dag, ok := g.graphs[graphID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrGraphNotFound, graphID)
	}
	out := make([]*Node, 0, len(dag.to[nodeID]))
	for _, id := range dag.to[nodeID] {
		out = append(out, g.nodes[id])
	}
	return out, nil
}

// Successors returns the nodes that depend on node_id.
func (g *TaskGraph) Successors(graphID, nodeID string) ([]*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	dag, ok := g.graphs[graphID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrGraphNotFound, graphID)
	}
	out := make([]*Node, 0, len(dag.from[nodeID]))
	for _, id := range dag.from[nodeID] {
		out = append(out, g.nodes[id])
	}
	return out, nil
}

// ContainerGraphID locates the subgraph a node is a member of. Membership in
// the graph is authoritative; the parent's SubGraphID is only a fallback for
// the transient window in which a parent has spawned children but not yet
// recorded its own sub-graph id.
func (g *TaskGraph) ContainerGraphID(nodeID string) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.containerGraphIDLocked(nodeID)
}

func (g *TaskGraph) containerGraphIDLocked(nodeID string) (string, error) {
	for id, dag := range g.graphs {
		if _, ok := dag.members[nodeID]; ok {
			return id, nil
		}
	}
	node, ok := g.nodes[nodeID]
	if !ok {
		return "", fmt.Errorf("%w: %s", core.ErrNodeNotFound, nodeID)
	}
	data := node.Snapshot()
	if data.ParentNodeID == "" {
		if g.rootGraphID != "" {
			return g.rootGraphID, nil
		}
		return "", fmt.Errorf("%w: %s", core.ErrContainerUnknown, nodeID)
	}
	if parent, ok := g.nodes[data.ParentNodeID]; ok {
		if sub := parent.Snapshot().SubGraphID; sub != "" {
			if _, ok := g.graphs[sub]; ok {
				return sub, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", core.ErrContainerUnknown, nodeID)
}

// GraphIDs returns the ids of all subgraphs.
func (g *TaskGraph) GraphIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.graphs))
	for id := range g.graphs {
		out = append(out, id)
	}
	return out
}

// EdgesInGraph returns the (u, v) pairs of one subgraph.
func (g *TaskGraph) EdgesInGraph(graphID string) ([][2]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	dag, ok := g.graphs[graphID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrGraphNotFound, graphID)
	}
	return dag.Edges(), nil
}
