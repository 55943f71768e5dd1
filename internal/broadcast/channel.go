package broadcast

import (
	"context"

	"github.com/hiro-org/hiro/internal/core"
)

// EventKind distinguishes the two update streams.
type EventKind string

const (
	// EventState is a committed node status transition.
	EventState EventKind = "state"
	// EventGraph signals that the graph structure changed (new sub-graph,
	// new nodes, new edges) and subscribers should refetch.
	EventGraph EventKind = "graph"
)

// Event is the envelope published to subscribers.
type Event struct {
	Kind      EventKind         `json:"kind"`
	ProjectID string            `json:"projectId"`
	Change    *core.StateChange `json:"change,omitempty"`
}

// ChannelBroadcaster delivers events over a buffered channel. Sends never
// block the engine: when the subscriber falls behind, events are dropped and
// a drop counter incremented, matching the no-back-pressure contract.
type ChannelBroadcaster struct {
	events  chan Event
	dropped chan struct{}
}

// NewChannelBroadcaster builds a broadcaster with the given buffer.
func NewChannelBroadcaster(buffer int) *ChannelBroadcaster {
	return &ChannelBroadcaster{
		events:  make(chan Event, buffer),
		dropped: make(chan struct{}, 1),
	}
}

// Events exposes the subscriber side.
func (b *ChannelBroadcaster) Events() <-chan Event {
	return b.events
}

// Dropped fires (at most once per drain) after events were discarded.
func (b *ChannelBroadcaster) Dropped() <-chan struct{} {
	return b.dropped
}

func (b *ChannelBroadcaster) publish(ev Event) {
	select {
	case b.events <- ev:
	default:
		select {
		case b.dropped <- struct{}{}:
		default:
		}
	}
}

// OnStateChanged implements core.UpdateBroadcaster.
func (b *ChannelBroadcaster) OnStateChanged(_ context.Context, change core.StateChange) {
	b.publish(Event{Kind: EventState, ProjectID: change.ProjectID, Change: &change})
}

// OnGraphChanged implements core.UpdateBroadcaster.
func (b *ChannelBroadcaster) OnGraphChanged(_ context.Context, projectID string) {
	b.publish(Event{Kind: EventGraph, ProjectID: projectID})
}

// Multi fans one event stream out to several broadcasters.
type Multi []core.UpdateBroadcaster

// OnStateChanged implements core.UpdateBroadcaster.
func (m Multi) OnStateChanged(ctx context.Context, change core.StateChange) {
	for _, b := range m {
		b.OnStateChanged(ctx, change)
	}
}

// OnGraphChanged implements core.UpdateBroadcaster.
func (m Multi) OnGraphChanged(ctx context.Context, projectID string) {
	for _, b := range m {
		b.OnGraphChanged(ctx, projectID)
	}
}
