package graph

import (
	"fmt"

	"go.temporal.io/sdk/workflow"

	"github.com/deepquery/orchestrator/internal/state"
)

// Event is an observability notification emitted around node execution. It
// has no effect on control flow.
type Event struct {
	Node     NodeID
	Status   string // "started", "completed", "failed", "branch_failed"
	BranchID int
	Detail   string
}

// Observer receives per-node events. May be nil.
type Observer func(ctx workflow.Context, ev Event)

// Executor drives a run over the registered node graph: it executes nodes,
// folds their partials through the accumulator, applies routing decisions,
// and manages the fork/join barrier for fan-out groups. The main control path
// is single-threaded and deterministic; only fan-out branches run
// concurrently.
type Executor struct {
	reg     *Registry
	acc     *state.Accumulator
	entry   NodeID
	observe Observer
}

func NewExecutor(reg *Registry, acc *state.Accumulator, entry NodeID, observe Observer) *Executor {
	return &Executor{reg: reg, acc: acc, entry: entry, observe: observe}
}

// Run executes the graph from the entry node until a decision routes to End,
// returning the final state. State is owned by the executor for the duration;
// nodes only ever see snapshots.
func (e *Executor) Run(ctx workflow.Context, st state.RunState) (state.RunState, error) {
	logger := workflow.GetLogger(ctx)
	current := e.entry

	for current != End {
		node, ok := e.reg.Get(current)
		if !ok {
			return st, fmt.Errorf("%w: %q", ErrUnknownNode, current)
		}

		e.emit(ctx, Event{Node: current, Status: "started"})

		if node.Run != nil {
			partial, err := node.Run(ctx, st.Clone())
			if err != nil {
				e.emit(ctx, Event{Node: current, Status: "failed", Detail: err.Error()})
				return st, fmt.Errorf("graph: node %q: %w", current, err)
			}
			if err := e.acc.Apply(&st, partial); err != nil {
				return st, fmt.Errorf("graph: node %q: %w", current, err)
			}
		}

		decision, err := e.route(node, st)
		if err != nil {
			return st, err
		}

		switch {
		case decision.IsEnd():
			e.emit(ctx, Event{Node: current, Status: "completed"})
			current = End

		case decision.IsFanOut():
			branches := decision.Branches()
			logger.Info("Dispatching fan-out",
				"node", string(current),
				"branches", len(branches),
				"first_branch_id", branches[0].Input.BranchID,
			)
			next, merged, err := e.runFanOut(ctx, st, branches)
			if err != nil {
				return st, err
			}
			st = merged
			e.emit(ctx, Event{Node: current, Status: "completed"})
			current = next

		default:
			next := decision.Next()
			if _, ok := e.reg.Get(next); !ok {
				return st, fmt.Errorf("%w: %q routed to %q", ErrUnknownNode, current, next)
			}
			e.emit(ctx, Event{Node: current, Status: "completed"})
			current = next
		}
	}

	return st, nil
}

// runFanOut dispatches a branch group, merges its outcomes in ascending
// branch-id order, advances the global branch counter, and asks the branch
// node's routing rule where the joined path continues.
func (e *Executor) runFanOut(ctx workflow.Context, st state.RunState, branches []Branch) (NodeID, state.RunState, error) {
	target := branches[0].Node

	outcomes, err := Dispatch(ctx, e.reg, st, branches)
	if err != nil {
		return End, st, err
	}
	successes := 0
	for _, out := range outcomes {
		if out.Err != nil {
			e.emit(ctx, Event{Node: target, Status: "branch_failed", BranchID: out.BranchID, Detail: out.Err.Error()})
			continue
		}
		successes++
	}

	if err := e.acc.MergeBranches(&st, outcomes); err != nil {
		return End, st, fmt.Errorf("graph: join at %q: %w", target, err)
	}

	// Every dispatched branch consumes an ID, successful or not; IDs are
	// never reused across the run. The success count of this join is kept so
	// routing rules can tell a dead cycle from a productive one.
	counter := state.Partial{
		state.FieldBranchesDispatched: st.BranchesDispatched + len(branches),
		state.FieldBranchSuccesses:    successes,
	}
	if err := e.acc.Apply(&st, counter); err != nil {
		return End, st, err
	}

	node, _ := e.reg.Get(target)
	decision, err := e.route(node, st)
	if err != nil {
		return End, st, err
	}
	switch {
	case decision.IsEnd():
		return End, st, nil
	case decision.IsFanOut():
		return End, st, fmt.Errorf("graph: node %q chained a fan-out off a join", target)
	default:
		next := decision.Next()
		if _, ok := e.reg.Get(next); !ok {
			return End, st, fmt.Errorf("%w: %q routed to %q", ErrUnknownNode, target, next)
		}
		return next, st, nil
	}
}

func (e *Executor) route(node Node, st state.RunState) (Decision, error) {
	if node.Route == nil {
		return Decision{}, fmt.Errorf("%w: node %q has no routing rule", ErrNoProgress, node.ID)
	}
	decision, err := node.Route(st.Clone())
	if err != nil {
		return Decision{}, fmt.Errorf("graph: routing %q: %w", node.ID, err)
	}
	if !decision.IsValid() {
		return Decision{}, fmt.Errorf("%w: node %q returned empty decision", ErrNoProgress, node.ID)
	}
	if decision.IsFanOut() && len(decision.Branches()) == 0 {
		return Decision{}, fmt.Errorf("%w: node %q fanned out to zero branches", ErrNoProgress, node.ID)
	}
	return decision, nil
}

func (e *Executor) emit(ctx workflow.Context, ev Event) {
	if e.observe != nil {
		e.observe(ctx, ev)
	}
}
