package runtime

import (
	"sync"
	"time"

	"github.com/hiro-org/hiro/internal/core"
)

// Node wraps the plain task data with the re-entrant guard every status
// transition goes through. Everything the rest of the engine sees is a copy
// taken under the lock.
type Node struct {
	mu   sync.RWMutex
	data core.TaskNodeData

	enteredStatusAt  time.Time
	recoveryAttempts int

	// preempt is non-nil while the node is RUNNING and is closed when a
	// forced recovery transition moves it out of RUNNING, so that in-flight
	// adapter dispatches can abandon their work.
	preempt chan struct{}
}

// NewNode wraps task data. Zero timestamps are filled in.
func NewNode(data core.TaskNodeData) *Node {
	now := time.Now()
	if data.CreatedAt.IsZero() {
		data.CreatedAt = now
	}
	if data.UpdatedAt.IsZero() {
		data.UpdatedAt = now
	}
	n := &Node{data: data, enteredStatusAt: now}
	if data.Status == core.Running {
		n.preempt = make(chan struct{})
	}
	return n
}

// ID returns the immutable task id.
func (n *Node) ID() string {
	return n.data.TaskID
}

// Status returns the current status.
func (n *Node) Status() core.Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.data.Status
}

// Snapshot returns a copy of the node data safe to hand to adapters and
// broadcasters.
func (n *Node) Snapshot() core.TaskNodeData {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return copyData(n.data)
}

func copyData(d core.TaskNodeData) core.TaskNodeData {
	out := d
	if d.PlannedSubTaskIDs != nil {
		out.PlannedSubTaskIDs = append([]string(nil), d.PlannedSubTaskIDs...)
	}
	if d.AuxData != nil {
		aux := make(map[string]any, len(d.AuxData))
		for k, v := range d.AuxData {
			aux[k] = v
		}
		out.AuxData = aux
	}
	if d.ReplanDetails != nil {
		details := *d.ReplanDetails
		details.FailedChildIDs = append([]string(nil), d.ReplanDetails.FailedChildIDs...)
		out.ReplanDetails = &details
	}
	if d.InputPayload != nil {
		payload := *d.InputPayload
		payload.RelevantContextItems = append([]core.ContextItem(nil), d.InputPayload.RelevantContextItems...)
		out.InputPayload = &payload
	}
	return out
}

// TimeInStatus reports how long the node has held its current status.
func (n *Node) TimeInStatus() time.Duration {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return time.Since(n.enteredStatusAt)
}

// RecoveryAttempts returns how many targeted recoveries have been attempted
// on this node.
func (n *Node) RecoveryAttempts() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.recoveryAttempts
}

func (n *Node) incRecoveryAttempts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recoveryAttempts++
	return n.recoveryAttempts
}

// Preempted returns a channel closed when a forced transition moves the node
// out of RUNNING while an adapter call is still in flight. Outside RUNNING it
// returns nil, which never fires in a select.
func (n *Node) Preempted() <-chan struct{} {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.preempt == nil {
		return nil
	}
	return n.preempt
}

// update runs fn on the node data under the lock without changing status.
func (n *Node) update(fn func(*core.TaskNodeData)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fn(&n.data)
	n.data.UpdatedAt = time.Now()
}

// transition atomically moves the node from one status to another. The source
// status is rechecked under the lock so that stale callers lose the race, and
// the edge is validated against the state machine table.
func (n *Node) transition(from, to core.Status, mutate func(*core.TaskNodeData)) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.data.Status != from {
		return &core.InvalidTransitionError{NodeID: n.data.TaskID, From: n.data.Status, To: to}
	}
	if !core.CanTransition(from, to) {
		return &core.InvalidTransitionError{NodeID: n.data.TaskID, From: from, To: to}
	}

	if mutate != nil {
		mutate(&n.data)
	}

	now := time.Now()
	n.data.Status = to
	n.data.UpdatedAt = now
	if to.IsTerminal() {
		n.data.CompletedAt = now
	}
	n.enteredStatusAt = now

	if from == core.Running && n.preempt != nil {
		close(n.preempt)
		n.preempt = nil
	}
	if to == core.Running {
		n.preempt = make(chan struct{})
	}
	return nil
}
