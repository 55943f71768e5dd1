package runtime

import (
	"sync"

	"github.com/hiro-org/hiro/internal/core"
)

// KnowledgeStore is the project's append/update log of node summaries keyed
// by task id. Last writer wins per task, with one guard: once a terminal
// record is written, only a retry write may replace it with a non-terminal
// one.
type KnowledgeStore struct {
	mu      sync.RWMutex
	records map[string]core.KnowledgeRecord
}

// NewKnowledgeStore allocates an empty store.
func NewKnowledgeStore() *KnowledgeStore {
	return &KnowledgeStore{records: make(map[string]core.KnowledgeRecord)}
}

// Upsert writes a record. A non-retry write that would replace a terminal
// record with a non-terminal one is dropped, preserving terminality.
func (s *KnowledgeStore) Upsert(rec core.KnowledgeRecord) {
	s.upsert(rec, false)
}

// UpsertRetry writes a record on behalf of a retry edge (DONE/FAILED leaving
// the terminal set); it may replace a terminal record.
func (s *KnowledgeStore) UpsertRetry(rec core.KnowledgeRecord) {
	s.upsert(rec, true)
}

func (s *KnowledgeStore) upsert(rec core.KnowledgeRecord, retry bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.records[rec.TaskID]; ok && !retry {
		if prev.Status.IsTerminal() && !rec.Status.IsTerminal() {
			return
		}
	}
	s.records[rec.TaskID] = rec
}

// Get returns the record for a task id, if any.
func (s *KnowledgeStore) Get(taskID string) (core.KnowledgeRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[taskID]
	return rec, ok
}

// Records returns a copy of every record.
func (s *KnowledgeStore) Records() []core.KnowledgeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.KnowledgeRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}
