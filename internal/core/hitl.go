package core

import "context"

// Checkpoint names a stage at which execution may pause for human review.
type Checkpoint string

const (
	CheckpointAfterPlan         Checkpoint = "after_plan_generation"
	CheckpointAfterModifiedPlan Checkpoint = "after_modified_plan"
	CheckpointAfterAtomizer     Checkpoint = "after_atomizer"
	CheckpointBeforeExecute     Checkpoint = "before_execute"
)

// ReviewRequest is what the coordinator hands to the reviewer transport.
type ReviewRequest struct {
	Checkpoint     Checkpoint `json:"checkpoint"`
	ContextMessage string     `json:"contextMessage"`
	DataForReview  any        `json:"dataForReview,omitempty"`
	NodeID         string     `json:"nodeId"`
	Attempt        int        `json:"attempt"`
	ProjectID      string     `json:"projectId,omitempty"`
}

// ReviewDecision is the reviewer's verdict.
type ReviewDecision int

const (
	ReviewApprove ReviewDecision = iota
	ReviewModify
	ReviewAbort
	ReviewTimedOut
)

func (d ReviewDecision) String() string {
	switch d {
	case ReviewModify:
		return "modify"
	case ReviewAbort:
		return "abort"
	case ReviewTimedOut:
		return "timeout"
	default:
		return "approve"
	}
}

// ReviewResponse carries the decision plus modification instructions when the
// decision is ReviewModify.
type ReviewResponse struct {
	Decision     ReviewDecision `json:"decision"`
	Instructions string         `json:"instructions,omitempty"`
}

// ReviewTransport delivers a review request to whatever UI is attached and
// waits for the response. Implementations decide how long to wait; the
// coordinator applies the deployment's timeout policy on top.
type ReviewTransport interface {
	Request(ctx context.Context, req ReviewRequest) (ReviewResponse, error)
}
