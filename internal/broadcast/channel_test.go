package broadcast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hiro-org/hiro/internal/core"
)

func TestChannelBroadcasterDeliversEvents(t *testing.T) {
	t.Parallel()

	b := NewChannelBroadcaster(4)
	ctx := context.Background()

	b.OnStateChanged(ctx, core.StateChange{
		ProjectID: "p1",
		NodeID:    "root.1",
		From:      core.Ready,
		To:        core.Running,
	})
	b.OnGraphChanged(ctx, "p1")

	ev := <-b.Events()
	require.Equal(t, EventState, ev.Kind)
	require.Equal(t, "p1", ev.ProjectID)
	require.NotNil(t, ev.Change)
	require.Equal(t, core.Running, ev.Change.To)

	ev = <-b.Events()
	require.Equal(t, EventGraph, ev.Kind)
	require.Nil(t, ev.Change)
}

func TestChannelBroadcasterNeverBlocks(t *testing.T) {
	t.Parallel()

	b := NewChannelBroadcaster(1)
	ctx := context.Background()

	// Nobody is draining; the second publish must drop, not block.
	b.OnGraphChanged(ctx, "p1")
	b.OnGraphChanged(ctx, "p1")

	select {
	case <-b.Dropped():
	default:
		t.Fatal("drop signal missing")
	}

	require.Len(t, b.Events(), 1)
}

func TestMultiFansOut(t *testing.T) {
	t.Parallel()

	first := NewChannelBroadcaster(1)
	second := NewChannelBroadcaster(1)
	m := Multi{first, second}

	m.OnGraphChanged(context.Background(), "p1")
	require.Len(t, first.Events(), 1)
	require.Len(t, second.Events(), 1)
}
