package core

import (
	"errors"
	"fmt"
)

// Structural errors raised by the task graph.
var (
	ErrGraphExists      = errors.New("graph id already exists")
	ErrGraphNotFound    = errors.New("graph not found")
	ErrNodeExists       = errors.New("task id already exists")
	ErrNodeNotFound     = errors.New("task not found")
	ErrNodeNotInGraph   = errors.New("task is not a member of the graph")
	ErrCycleDetected    = errors.New("edge would create a cycle")
	ErrSecondRootGraph  = errors.New("root graph already set")
	ErrContainerUnknown = errors.New("container graph cannot be located")
)

// Review and cancellation errors.
var (
	ErrHITLAborted   = errors.New("review aborted by user")
	ErrReviewTimeout = errors.New("review request timed out")
	ErrCancelled     = errors.New("project cancelled")
)

// ErrStalled is returned when a forced recovery transition preempts an
// in-flight adapter call; the call's eventual result is discarded.
var ErrStalled = errors.New("node preempted by stuck-node recovery")

// InvalidTransitionError reports a refused status change. It indicates a bug
// or faulty adapter behavior; the engine logs and denies, never crashes.
type InvalidTransitionError struct {
	NodeID string
	From   Status
	To     Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s: %s -> %s", e.NodeID, e.From, e.To)
}

// AdapterError wraps an error raised by an adapter, keeping the adapter name
// for diagnostics.
type AdapterError struct {
	AgentName string
	Action    Action
	Err       error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s (%s): %v", e.AgentName, e.Action, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// GraphIntegrityError wraps a rejected graph mutation with the node whose
// processing caused it.
type GraphIntegrityError struct {
	NodeID string
	Err    error
}

func (e *GraphIntegrityError) Error() string {
	return fmt.Sprintf("graph integrity violation while processing %s: %v", e.NodeID, e.Err)
}

func (e *GraphIntegrityError) Unwrap() error { return e.Err }

// DeadlockError is synthesized by the engine when neither a cycle step nor
// recovery can advance the graph.
type DeadlockError struct {
	Diagnosis string
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("execution deadlocked: %s", e.Diagnosis)
}
