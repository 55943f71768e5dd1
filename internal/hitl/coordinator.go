package hitl

import (
	"context"
	"errors"
	"time"

	"github.com/hiro-org/hiro/internal/common/logger"
	"github.com/hiro-org/hiro/internal/core"
)

// TimeoutPolicy decides what an unanswered review request resolves to.
type TimeoutPolicy int

const (
	// TimeoutAutoApprove lets the run continue when no reviewer answers in
	// time.
	TimeoutAutoApprove TimeoutPolicy = iota
	// TimeoutFail surfaces the timeout to the caller as an error.
	TimeoutFail
)

// Config enumerates which checkpoints are live and how long to wait for a
// reviewer.
type Config struct {
	AfterPlanGeneration bool
	AfterModifiedPlan   bool
	AfterAtomizer       bool
	BeforeExecute       bool

	// RootPlanOnly restricts checkpoints to the root node.
	RootPlanOnly bool

	// ReviewTimeout bounds the wait for an attached reviewer. Zero means
	// wait as long as the run context allows.
	ReviewTimeout time.Duration
	TimeoutPolicy TimeoutPolicy
}

// Coordinator wraps adapter stages with optional human-review checkpoints.
// With no transport configured every checkpoint auto-approves. Cancellation
// is cooperative: the coordinator never kills in-flight adapter calls, it
// only refuses to proceed past the next checkpoint.
type Coordinator struct {
	cfg       Config
	transport core.ReviewTransport
}

// NewCoordinator builds a coordinator; transport may be nil.
func NewCoordinator(cfg Config, transport core.ReviewTransport) *Coordinator {
	return &Coordinator{cfg: cfg, transport: transport}
}

// Enabled reports whether a checkpoint is live for the given node.
func (c *Coordinator) Enabled(cp core.Checkpoint, node core.TaskNodeData) bool {
	if c.cfg.RootPlanOnly && node.TaskID != core.RootTaskID {
		return false
	}
	switch cp {
	case core.CheckpointAfterPlan:
		return c.cfg.AfterPlanGeneration
	case core.CheckpointAfterModifiedPlan:
		return c.cfg.AfterModifiedPlan
	case core.CheckpointAfterAtomizer:
		return c.cfg.AfterAtomizer
	case core.CheckpointBeforeExecute:
		return c.cfg.BeforeExecute
	default:
		return false
	}
}

// Review suspends at a checkpoint until the reviewer answers, the timeout
// fires, or the run is cancelled. A dead checkpoint or a nil transport
// auto-approves.
func (c *Coordinator) Review(ctx context.Context, node core.TaskNodeData, cp core.Checkpoint, message string, data any, attempt int) (core.ReviewResponse, error) {
	if !c.Enabled(cp, node) || c.transport == nil {
		return core.ReviewResponse{Decision: core.ReviewApprove}, nil
	}

	req := core.ReviewRequest{
		Checkpoint:     cp,
		ContextMessage: message,
		DataForReview:  data,
		NodeID:         node.TaskID,
		Attempt:        attempt,
	}

	reviewCtx := ctx
	if c.cfg.ReviewTimeout > 0 {
		var cancel context.CancelFunc
		reviewCtx, cancel = context.WithTimeout(ctx, c.cfg.ReviewTimeout)
		defer cancel()
	}

	logger.Info(ctx, "Awaiting human review", "checkpoint", cp, "node", node.TaskID, "attempt", attempt)
	resp, err := c.transport.Request(reviewCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return c.resolveTimeout(ctx, node, cp)
		}
		return core.ReviewResponse{}, err
	}
	if resp.Decision == core.ReviewTimedOut {
		return c.resolveTimeout(ctx, node, cp)
	}
	logger.Info(ctx, "Review decision received", "checkpoint", cp, "node", node.TaskID, "decision", resp.Decision.String())
	return resp, nil
}

func (c *Coordinator) resolveTimeout(ctx context.Context, node core.TaskNodeData, cp core.Checkpoint) (core.ReviewResponse, error) {
	if c.cfg.TimeoutPolicy == TimeoutAutoApprove {
		logger.Warn(ctx, "Review timed out; auto-approving", "checkpoint", cp, "node", node.TaskID)
		return core.ReviewResponse{Decision: core.ReviewApprove}, nil
	}
	return core.ReviewResponse{}, core.ErrReviewTimeout
}
