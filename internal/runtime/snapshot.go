package runtime

import (
	"fmt"
	"sort"
	"time"

	"github.com/hiro-org/hiro/internal/core"
)

// ProjectSnapshot is the serializable structural state of one project: every
// subgraph with its membership and edges, every node's plain data, and the
// knowledge records. Traces and in-flight dispatch state are deliberately not
// captured; a restore resumes from the last committed transitions.
type ProjectSnapshot struct {
	ProjectID   string                 `json:"projectId"`
	OverallGoal string                 `json:"overallGoal"`
	SavedAt     time.Time              `json:"savedAt"`
	Graphs      []GraphSnapshot        `json:"graphs"`
	Nodes       []core.TaskNodeData    `json:"nodes"`
	Knowledge   []core.KnowledgeRecord `json:"knowledge"`
}

// GraphSnapshot captures one subgraph's membership (in insertion order) and
// dependency edges.
type GraphSnapshot struct {
	ID      string      `json:"id"`
	IsRoot  bool        `json:"isRoot"`
	NodeIDs []string    `json:"nodeIds"`
	Edges   [][2]string `json:"edges,omitempty"`
}

// Snapshot captures the project's structural state. Safe to call while a run
// is in flight; each node is copied under its own lock, so the snapshot is
// per-node consistent.
func (p *Project) Snapshot() ProjectSnapshot {
	snap := ProjectSnapshot{
		ProjectID:   p.ID,
		OverallGoal: p.Graph.OverallGoal(),
		SavedAt:     time.Now(),
		Knowledge:   p.Knowledge.Records(),
	}

	graphIDs := p.Graph.GraphIDs()
	sort.Strings(graphIDs)
	rootID := p.Graph.RootGraphID()
	for _, id := range graphIDs {
		nodes, err := p.Graph.NodesInGraph(id)
		if err != nil {
			continue
		}
		gs := GraphSnapshot{ID: id, IsRoot: id == rootID}
		for _, n := range nodes {
			gs.NodeIDs = append(gs.NodeIDs, n.ID())
			snap.Nodes = append(snap.Nodes, n.Snapshot())
		}
		if edges, err := p.Graph.EdgesInGraph(id); err == nil {
			gs.Edges = edges
		}
		snap.Graphs = append(snap.Graphs, gs)
	}

	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].TaskID < snap.Nodes[j].TaskID })
	sort.Slice(snap.Knowledge, func(i, j int) bool { return snap.Knowledge[i].TaskID < snap.Knowledge[j].TaskID })
	return snap
}

// RestoreProject rebuilds a project from a snapshot. Adapters, review
// coordinators, and broadcasters are runtime wiring and come from the caller,
// not the snapshot.
func RestoreProject(snap ProjectSnapshot, selector core.AdapterSelector, opts ...ProjectOption) (*Project, error) {
	base := []ProjectOption{WithProjectID(snap.ProjectID)}
	p := NewProject(snap.OverallGoal, selector, append(base, opts...)...)

	byID := make(map[string]core.TaskNodeData, len(snap.Nodes))
	for _, data := range snap.Nodes {
		byID[data.TaskID] = data
	}

	for _, gs := range snap.Graphs {
		if err := p.Graph.AddGraph(gs.ID, gs.IsRoot); err != nil {
			return nil, err
		}
		for _, id := range gs.NodeIDs {
			data, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("%w: %s listed in graph %s", core.ErrNodeNotFound, id, gs.ID)
			}
			if err := p.Graph.AddNodeToGraph(gs.ID, NewNode(data)); err != nil {
				return nil, err
			}
		}
		for _, edge := range gs.Edges {
			if err := p.Graph.AddEdge(gs.ID, edge[0], edge[1]); err != nil {
				return nil, err
			}
		}
	}

	for _, rec := range snap.Knowledge {
		// Snapshot records are authoritative; bypass the terminality guard.
		p.Knowledge.UpsertRetry(rec)
	}
	return p, nil
}
