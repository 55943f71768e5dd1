package runtime

import (
	"github.com/hiro-org/hiro/internal/core"
)

// ContextResolver assembles a node's input payload immediately before
// dispatch: predecessor summaries, ancestor goals with their upstream
// siblings, and, for aggregation, child outputs. Redundant chains are pruned
// so the adapter is not fed the same information twice.
type ContextResolver struct {
	graph *TaskGraph
	store *KnowledgeStore
}

// NewContextResolver builds a resolver over one project's graph and store.
func NewContextResolver(graph *TaskGraph, store *KnowledgeStore) *ContextResolver {
	return &ContextResolver{graph: graph, store: store}
}

// candidate pairs a context item with the facts the pruning pass needs.
type candidate struct {
	item    core.ContextItem
	graphID string
	status  core.Status
	prune   bool // only sibling-group candidates participate in pruning
}

// Resolve builds the payload for planning, atomizing, and execution.
func (r *ContextResolver) Resolve(node core.TaskNodeData) core.AgentTaskInput {
	var candidates []candidate
	candidates = append(candidates, r.predecessorCandidates(node)...)
	candidates = append(candidates, r.ancestorCandidates(node)...)
	return r.assemble(node, candidates)
}

// ResolveForAggregation builds the payload for an aggregating plan node: the
// outputs of every child in its sub-graph, plus the usual upstream context.
func (r *ContextResolver) ResolveForAggregation(node core.TaskNodeData) core.AgentTaskInput {
	var candidates []candidate
	if node.SubGraphID != "" {
		children, err := r.graph.NodesInGraph(node.SubGraphID)
		if err == nil {
			for _, child := range children {
				data := child.Snapshot()
				content := r.contentFor(data, true)
				candidates = append(candidates, candidate{
					item: core.ContextItem{
						SourceTaskID:           data.TaskID,
						SourceTaskGoal:         data.Goal,
						ContentTypeDescription: "child output",
						Content:                content,
					},
					graphID: node.SubGraphID,
					status:  data.Status,
					prune:   false,
				})
			}
		}
	}
	candidates = append(candidates, r.ancestorCandidates(node)...)
	return r.assemble(node, candidates)
}

func (r *ContextResolver) predecessorCandidates(node core.TaskNodeData) []candidate {
	graphID, err := r.graph.ContainerGraphID(node.TaskID)
	if err != nil {
		return nil
	}
	preds, err := r.graph.Predecessors(graphID, node.TaskID)
	if err != nil {
		return nil
	}
	var out []candidate
	for _, pred := range preds {
		data := pred.Snapshot()
		out = append(out, candidate{
			item: core.ContextItem{
				SourceTaskID:           data.TaskID,
				SourceTaskGoal:         data.Goal,
				ContentTypeDescription: "predecessor output",
				Content:                r.contentFor(data, false),
			},
			graphID: graphID,
			status:  data.Status,
			prune:   true,
		})
	}
	return out
}

// ancestorCandidates walks up the hierarchy collecting each ancestor's goal
// and the completed siblings upstream of that ancestor.
func (r *ContextResolver) ancestorCandidates(node core.TaskNodeData) []candidate {
	var out []candidate
	seen := map[string]struct{}{node.TaskID: {}}
	parentID := node.ParentNodeID
	for parentID != "" {
		if _, ok := seen[parentID]; ok {
			break // defensive against a corrupted parent chain
		}
		seen[parentID] = struct{}{}

		parent, ok := r.graph.GetNode(parentID)
		if !ok {
			break
		}
		data := parent.Snapshot()
		out = append(out, candidate{
			item: core.ContextItem{
				SourceTaskID:           data.TaskID,
				SourceTaskGoal:         data.Goal,
				ContentTypeDescription: "ancestor goal",
				Content:                data.Goal,
			},
			status: data.Status,
		})

		graphID, err := r.graph.ContainerGraphID(data.TaskID)
		if err == nil {
			preds, err := r.graph.Predecessors(graphID, data.TaskID)
			if err == nil {
				for _, pred := range preds {
					predData := pred.Snapshot()
					if predData.Status != core.Done {
						continue
					}
					out = append(out, candidate{
						item: core.ContextItem{
							SourceTaskID:           predData.TaskID,
							SourceTaskGoal:         predData.Goal,
							ContentTypeDescription: "upstream sibling output",
							Content:                r.contentFor(predData, false),
						},
						graphID: graphID,
						status:  predData.Status,
						prune:   true,
					})
				}
			}
		}

		parentID = data.ParentNodeID
	}
	return out
}

// contentFor prefers the knowledge store's view of a completed task and falls
// back to live node fields if a record is missing. Aggregation reads the full
// result when one exists.
func (r *ContextResolver) contentFor(data core.TaskNodeData, fullResult bool) any {
	if rec, ok := r.store.Get(data.TaskID); ok {
		if fullResult && rec.Result != nil {
			return rec.Result
		}
		if rec.OutputSummary != "" {
			return rec.OutputSummary
		}
	}
	if fullResult && data.Result != nil {
		return data.Result
	}
	if data.OutputSummary != "" {
		return data.OutputSummary
	}
	return data.Result
}

// assemble prunes redundant chains, deduplicates, and wraps the final input.
func (r *ContextResolver) assemble(node core.TaskNodeData, candidates []candidate) core.AgentTaskInput {
	pruned := r.pruneRedundant(candidates)

	input := core.AgentTaskInput{
		CurrentGoal:      node.Goal,
		OverallObjective: node.OverallObjective,
	}
	seen := map[string]struct{}{}
	for _, c := range pruned {
		if _, ok := seen[c.item.SourceTaskID]; ok {
			continue
		}
		seen[c.item.SourceTaskID] = struct{}{}
		input.RelevantContextItems = append(input.RelevantContextItems, c.item)
	}
	return input
}

// pruneRedundant drops candidate A when another candidate B of the same
// sibling group transitively depends on A: B's output already carries A's
// information. The exception is a failed or cancelled B, whose output cannot
// be trusted to subsume anything.
func (r *ContextResolver) pruneRedundant(candidates []candidate) []candidate {
	cache := newDepCache(r.graph)

	dropped := map[int]bool{}
	for i, a := range candidates {
		if !a.prune {
			continue
		}
		for j, b := range candidates {
			if i == j || !b.prune || a.graphID != b.graphID || dropped[j] {
				continue
			}
			if b.status == core.Failed || b.status == core.Cancelled {
				continue
			}
			if cache.transitivePredecessors(b.graphID, b.item.SourceTaskID)[a.item.SourceTaskID] {
				dropped[i] = true
				break
			}
		}
	}

	out := make([]candidate, 0, len(candidates))
	for i, c := range candidates {
		if !dropped[i] {
			out = append(out, c)
		}
	}
	return out
}

// depCache memoizes transitive predecessor sets for one resolution request.
type depCache struct {
	graph *TaskGraph
	sets  map[string]map[string]bool
}

func newDepCache(graph *TaskGraph) *depCache {
	return &depCache{graph: graph, sets: make(map[string]map[string]bool)}
}

func (c *depCache) transitivePredecessors(graphID, nodeID string) map[string]bool {
	key := graphID + "/" + nodeID
	if set, ok := c.sets[key]; ok {
		return set
	}
	set := map[string]bool{}
	queue := []string{nodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		preds, err := c.graph.Predecessors(graphID, id)
		if err != nil {
			break
		}
		for _, pred := range preds {
			if set[pred.ID()] {
				continue
			}
			set[pred.ID()] = true
			queue = append(queue, pred.ID())
		}
	}
	c.sets[key] = set
	return set
}
