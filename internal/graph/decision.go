package graph

// NodeID names a node registered on the graph.
type NodeID string

// End is the terminal pseudo-node. Routing to End finishes the run.
const End NodeID = "__end__"

// BranchInput is the payload handed to one fan-out branch: the query it must
// research and its globally unique branch ID.
type BranchInput struct {
	BranchID int    `json:"branch_id"`
	Query    string `json:"query"`
}

// Branch pairs a target node with the input for one branch invocation.
type Branch struct {
	Node  NodeID
	Input BranchInput
}

type decisionKind int

const (
	decisionInvalid decisionKind = iota
	decisionNext
	decisionFanOut
	decisionEnd
)

// Decision is the tagged routing result of a node: either a single next node,
// an ordered fan-out list, or the terminal state. The zero value is invalid
// and makes the executor fail with ErrNoProgress.
type Decision struct {
	kind     decisionKind
	next     NodeID
	branches []Branch
}

// ToNode routes to a single next node.
func ToNode(id NodeID) Decision {
	if id == End {
		return Finish()
	}
	return Decision{kind: decisionNext, next: id}
}

// FanOut routes to N concurrent branch invocations, joined before the next
// node runs. Branch order is the order given here.
func FanOut(branches []Branch) Decision {
	return Decision{kind: decisionFanOut, branches: branches}
}

// Finish routes to the terminal state.
func Finish() Decision {
	return Decision{kind: decisionEnd}
}

// IsEnd reports whether the decision terminates the run.
func (d Decision) IsEnd() bool { return d.kind == decisionEnd }

// IsFanOut reports whether the decision expands into parallel branches.
func (d Decision) IsFanOut() bool { return d.kind == decisionFanOut }

// IsValid reports whether the decision carries any routing at all.
func (d Decision) IsValid() bool { return d.kind != decisionInvalid }

// Next returns the single next node for a non-fan-out decision.
func (d Decision) Next() NodeID { return d.next }

// Branches returns the ordered fan-out list.
func (d Decision) Branches() []Branch { return d.branches }
