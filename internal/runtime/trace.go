package runtime

import (
	"sync"
	"time"

	"github.com/hiro-org/hiro/internal/core"
)

// TraceLog keeps the per-node sequence of adapter invocation records. Purely
// diagnostic; the scheduler never reads it.
type TraceLog struct {
	mu      sync.Mutex
	entries map[string][]*core.TraceEntry
}

// NewTraceLog allocates an empty trace log.
func NewTraceLog() *TraceLog {
	return &TraceLog{entries: make(map[string][]*core.TraceEntry)}
}

// Stage is an open trace stage; Close completes it.
type Stage struct {
	log   *TraceLog
	entry *core.TraceEntry
}

// OpenStage starts a trace stage for one node.
func (t *TraceLog) OpenStage(nodeID, stage string, input *core.AgentTaskInput) *Stage {
	entry := &core.TraceEntry{
		NodeID:       nodeID,
		Stage:        stage,
		StartedAt:    time.Now(),
		InputContext: input,
	}
	t.mu.Lock()
	t.entries[nodeID] = append(t.entries[nodeID], entry)
	t.mu.Unlock()
	return &Stage{log: t, entry: entry}
}

// Close completes the stage with the adapter's response or error.
func (s *Stage) Close(response any, err error) {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	s.entry.CompletedAt = time.Now()
	s.entry.LLMResponse = response
	if err != nil {
		s.entry.Error = err.Error()
	}
}

// Annotate attaches additional diagnostic data to the stage.
func (s *Stage) Annotate(key string, value any) {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	if s.entry.AdditionalData == nil {
		s.entry.AdditionalData = map[string]any{}
	}
	s.entry.AdditionalData[key] = value
}

// Entries returns copies of the trace entries for one node.
func (t *TraceLog) Entries(nodeID string) []core.TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]core.TraceEntry, 0, len(t.entries[nodeID]))
	for _, e := range t.entries[nodeID] {
		out = append(out, *e)
	}
	return out
}

// All returns copies of every trace entry keyed by node id.
func (t *TraceLog) All() map[string][]core.TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string][]core.TraceEntry, len(t.entries))
	for id, list := range t.entries {
		copied := make([]core.TraceEntry, 0, len(list))
		for _, e := range list {
			copied = append(copied, *e)
		}
		out[id] = copied
	}
	return out
}
