package core

import "context"

// StateChange describes one committed node status transition.
type StateChange struct {
	ProjectID string       `json:"projectId"`
	NodeID    string       `json:"nodeId"`
	From      Status       `json:"from"`
	To        Status       `json:"to"`
	Node      TaskNodeData `json:"node"`
}

// UpdateBroadcaster receives state-change events for whatever transport is
// attached. Implementations may drop or batch; there is no back-pressure
// contract and no return value.
type UpdateBroadcaster interface {
	OnStateChanged(ctx context.Context, change StateChange)
	OnGraphChanged(ctx context.Context, projectID string)
}

// NopBroadcaster discards all events. Used when no transport is attached.
type NopBroadcaster struct{}

func (NopBroadcaster) OnStateChanged(context.Context, StateChange) {}
func (NopBroadcaster) OnGraphChanged(context.Context, string)      {}
