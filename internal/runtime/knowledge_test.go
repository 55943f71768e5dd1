package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hiro-org/hiro/internal/core"
)

func TestKnowledgeStoreLastWriterWins(t *testing.T) {
	t.Parallel()

	s := NewKnowledgeStore()
	s.Upsert(core.KnowledgeRecord{TaskID: "t1", Status: core.Running})
	s.Upsert(core.KnowledgeRecord{TaskID: "t1", Status: core.Done, OutputSummary: "done"})

	rec, ok := s.Get("t1")
	require.True(t, ok)
	require.Equal(t, core.Done, rec.Status)
	require.Equal(t, "done", rec.OutputSummary)
}

func TestKnowledgeStoreKeepsTerminalRecords(t *testing.T) {
	t.Parallel()

	s := NewKnowledgeStore()
	s.Upsert(core.KnowledgeRecord{TaskID: "t1", Status: core.Done, OutputSummary: "done"})

	// An ordinary write may not roll a terminal record back.
	s.Upsert(core.KnowledgeRecord{TaskID: "t1", Status: core.Running})
	rec, _ := s.Get("t1")
	require.Equal(t, core.Done, rec.Status)

	// A terminal-to-terminal overwrite is fine.
	s.Upsert(core.KnowledgeRecord{TaskID: "t1", Status: core.Failed})
	rec, _ = s.Get("t1")
	require.Equal(t, core.Failed, rec.Status)
}

func TestKnowledgeStoreRetryWriteMayRollBack(t *testing.T) {
	t.Parallel()

	s := NewKnowledgeStore()
	s.Upsert(core.KnowledgeRecord{TaskID: "t1", Status: core.Failed, OutputSummary: "boom"})
	s.UpsertRetry(core.KnowledgeRecord{TaskID: "t1", Status: core.Ready})

	rec, _ := s.Get("t1")
	require.Equal(t, core.Ready, rec.Status)
}

func TestKnowledgeStoreRecords(t *testing.T) {
	t.Parallel()

	s := NewKnowledgeStore()
	s.Upsert(core.KnowledgeRecord{TaskID: "a", Status: core.Done})
	s.Upsert(core.KnowledgeRecord{TaskID: "b", Status: core.Pending})
	require.Len(t, s.Records(), 2)

	_, ok := s.Get("missing")
	require.False(t, ok)
}
