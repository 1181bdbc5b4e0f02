package workflows

import (
	"strings"

	"github.com/deepquery/orchestrator/internal/state"
)

// LoopAction is the evaluation verdict after a reflection cycle.
type LoopAction int

const (
	// ActionContinue dispatches another round of search branches.
	ActionContinue LoopAction = iota
	// ActionValidate routes through source validation before finalizing.
	ActionValidate
	// ActionFinalize composes the answer from what has been gathered.
	ActionFinalize
)

func (a LoopAction) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionValidate:
		return "validate"
	case ActionFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// LoopDecision pairs the verdict with the follow-up queries to dispatch when
// the action is ActionContinue.
type LoopDecision struct {
	Action  LoopAction
	Queries []string
}

// validationMinLoops gates source validation: short runs have too little
// gathered to make a reliability score meaningful.
const validationMinLoops = 2

// LoopController decides, after each reflection, whether the run keeps
// researching, validates its sources, or finalizes. The policy is evaluated
// against post-increment loop counts and is strictly ordered:
//
//  1. deep research with sources gathered past the validation threshold
//     goes to validation,
//  2. a sufficient verdict, an exhausted loop budget, or an empty follow-up
//     set finalizes,
//  3. otherwise the filtered follow-up queries are dispatched.
type LoopController struct{}

// Decide evaluates the policy over the post-reflection state.
func (LoopController) Decide(st state.RunState) LoopDecision {
	if st.DeepResearchMode && len(st.SourcesGathered) > 0 && st.LoopCount > validationMinLoops {
		return LoopDecision{Action: ActionValidate}
	}

	followUps := filterQueries(st.FollowUpQueries, st.PendingQueries)
	if st.IsSufficient || st.LoopCount >= st.MaxLoops || len(followUps) == 0 {
		return LoopDecision{Action: ActionFinalize}
	}
	return LoopDecision{Action: ActionContinue, Queries: followUps}
}

// filterQueries drops blank follow-ups and any query already dispatched this
// run, preserving proposal order.
func filterQueries(followUps, dispatched []string) []string {
	if len(followUps) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(dispatched))
	for _, q := range dispatched {
		seen[strings.ToLower(strings.TrimSpace(q))] = struct{}{}
	}
	out := make([]string, 0, len(followUps))
	for _, q := range followUps {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}
