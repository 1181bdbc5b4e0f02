package graph

import (
	"fmt"

	"go.temporal.io/sdk/workflow"

	"github.com/deepquery/orchestrator/internal/state"
)

// Dispatch expands a fan-out decision into one concurrent branch invocation
// per input and blocks the calling path until every branch has completed or
// failed. Each branch runs on its own workflow coroutine and sees only the
// dispatch-time snapshot plus its own input; a branch failure is captured in
// its outcome and never cancels siblings.
//
// Outcomes are returned in branch list order; the accumulator re-orders by
// ascending branch ID when merging, so downstream state never observes
// completion order.
func Dispatch(ctx workflow.Context, reg *Registry, snapshot state.RunState, branches []Branch) ([]state.BranchOutcome, error) {
	for _, b := range branches {
		node, ok := reg.Get(b.Node)
		if !ok {
			return nil, fmt.Errorf("%w: fan-out target %q", ErrUnknownNode, b.Node)
		}
		if node.RunBranch == nil {
			return nil, fmt.Errorf("graph: fan-out target %q is not branch-capable", b.Node)
		}
		if b.Node != branches[0].Node {
			return nil, fmt.Errorf("graph: heterogeneous fan-out (%q vs %q)", branches[0].Node, b.Node)
		}
	}

	outcomes := make([]state.BranchOutcome, len(branches))
	pending := len(branches)

	for i, b := range branches {
		i, b := i, b
		node, _ := reg.Get(b.Node)
		workflow.Go(ctx, func(gctx workflow.Context) {
			partial, err := node.RunBranch(gctx, snapshot.Clone(), b.Input)
			outcomes[i] = state.BranchOutcome{BranchID: b.Input.BranchID, Partial: partial, Err: err}
			pending--
		})
	}

	if err := workflow.Await(ctx, func() bool { return pending == 0 }); err != nil {
		return nil, fmt.Errorf("graph: fan-out join interrupted: %w", err)
	}
	return outcomes, nil
}
