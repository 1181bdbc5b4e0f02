package graph

import (
	"fmt"

	"go.temporal.io/sdk/workflow"

	"github.com/deepquery/orchestrator/internal/state"
)

// NodeFunc is a step function: it sees a snapshot of the run state and
// returns a partial update. It must not mutate the snapshot.
type NodeFunc func(ctx workflow.Context, st state.RunState) (state.Partial, error)

// BranchFunc is the step function of a fan-out capable node. Each branch
// receives the dispatch-time snapshot plus its own input and nothing else.
type BranchFunc func(ctx workflow.Context, st state.RunState, input BranchInput) (state.Partial, error)

// RouteFunc decides where to go after a node's partial has been merged. It is
// pure over the post-merge state.
type RouteFunc func(st state.RunState) (Decision, error)

// Node is one registered graph node. Run and RunBranch are mutually
// exclusive; pure routing nodes set neither. Every node reachable before End
// must carry a Route.
type Node struct {
	ID        NodeID
	Run       NodeFunc
	RunBranch BranchFunc
	Route     RouteFunc
}

// Registry maps node IDs to their step and routing functions.
type Registry struct {
	nodes map[NodeID]Node
}

func NewRegistry() *Registry {
	return &Registry{nodes: make(map[NodeID]Node)}
}

// Register adds a node. Duplicate IDs and nodes that are both step and
// branch-capable are rejected up front rather than at execution time.
func (r *Registry) Register(n Node) error {
	if n.ID == "" || n.ID == End {
		return fmt.Errorf("%w: reserved node id %q", ErrDuplicateNode, n.ID)
	}
	if _, exists := r.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, n.ID)
	}
	if n.Run != nil && n.RunBranch != nil {
		return fmt.Errorf("graph: node %q cannot be both step and branch node", n.ID)
	}
	r.nodes[n.ID] = n
	return nil
}

// MustRegister registers a node and panics on misconfiguration; graph
// construction errors are programming errors, not runtime conditions.
func (r *Registry) MustRegister(n Node) {
	if err := r.Register(n); err != nil {
		panic(err)
	}
}

// Get looks up a node by ID.
func (r *Registry) Get(id NodeID) (Node, bool) {
	n, ok := r.nodes[id]
	return n, ok
}
