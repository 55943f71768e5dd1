package hitl

import (
	"context"

	"github.com/hiro-org/hiro/internal/core"
)

// AutoApproveTransport approves every request. It is the transport used when
// no UI is attached.
type AutoApproveTransport struct{}

// Request implements core.ReviewTransport.
func (AutoApproveTransport) Request(context.Context, core.ReviewRequest) (core.ReviewResponse, error) {
	return core.ReviewResponse{Decision: core.ReviewApprove}, nil
}

// PendingReview is one suspended checkpoint waiting on a reviewer.
type PendingReview struct {
	Request core.ReviewRequest
	respond chan core.ReviewResponse
}

// Approve lets the run continue.
func (p *PendingReview) Approve() {
	p.respond <- core.ReviewResponse{Decision: core.ReviewApprove}
}

// Modify asks the caller to re-run the stage with the given instructions.
func (p *PendingReview) Modify(instructions string) {
	p.respond <- core.ReviewResponse{Decision: core.ReviewModify, Instructions: instructions}
}

// Abort cancels the node under review.
func (p *PendingReview) Abort() {
	p.respond <- core.ReviewResponse{Decision: core.ReviewAbort}
}

// ChannelTransport delivers review requests over a Go channel to whatever
// front end is attached. Tests and interactive UIs both consume it.
type ChannelTransport struct {
	requests chan *PendingReview
}

// NewChannelTransport builds a transport with the given request buffer.
func NewChannelTransport(buffer int) *ChannelTransport {
	return &ChannelTransport{requests: make(chan *PendingReview, buffer)}
}

// Requests exposes the stream of suspended checkpoints to the reviewer side.
func (t *ChannelTransport) Requests() <-chan *PendingReview {
	return t.requests
}

// Request implements core.ReviewTransport. It blocks until a reviewer
// responds or the context is done.
func (t *ChannelTransport) Request(ctx context.Context, req core.ReviewRequest) (core.ReviewResponse, error) {
	pending := &PendingReview{Request: req, respond: make(chan core.ReviewResponse, 1)}
	select {
	case t.requests <- pending:
	case <-ctx.Done():
		return core.ReviewResponse{}, ctx.Err()
	}
	select {
	case resp := <-pending.respond:
		return resp, nil
	case <-ctx.Done():
		return core.ReviewResponse{}, ctx.Err()
	}
}
