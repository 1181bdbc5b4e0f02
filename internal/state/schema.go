package state

import "fmt"

// Field names a RunState field that nodes may write through a Partial.
type Field string

const (
	FieldConversation       Field = "conversation"
	FieldPendingQueries     Field = "pending_queries"
	FieldResearchResults    Field = "research_results"
	FieldSourcesGathered    Field = "sources_gathered"
	FieldInitialQueryCount  Field = "initial_query_count"
	FieldMaxLoops           Field = "max_loops"
	FieldLoopCount          Field = "loop_count"
	FieldDeepResearchMode   Field = "deep_research_mode"
	FieldIsSufficient       Field = "is_sufficient"
	FieldKnowledgeGap       Field = "knowledge_gap"
	FieldFollowUpQueries    Field = "follow_up_queries"
	FieldReliabilityScore   Field = "reliability_score"
	FieldBranchesDispatched Field = "branches_dispatched"
	FieldBranchSuccesses    Field = "branch_successes"
)

// ReducerKind is the merge rule applied when folding a partial value into the
// shared state.
type ReducerKind int

const (
	// Append concatenates the contribution onto the existing sequence.
	Append ReducerKind = iota
	// Replace overwrites the existing value. Two branches writing the same
	// Replace field in one cycle is a topology bug.
	Replace
	// IdentityMerge merges message lists by record ID: known IDs replace in
	// place, new IDs append, order is first-seen order.
	IdentityMerge
)

func (k ReducerKind) String() string {
	switch k {
	case Append:
		return "append"
	case Replace:
		return "replace"
	case IdentityMerge:
		return "identity-merge"
	default:
		return fmt.Sprintf("reducer(%d)", int(k))
	}
}

// Schema returns the static field schema: every writable RunState field and
// its reducer. Validated once at startup; nodes writing anything outside this
// map trigger a schema violation.
func Schema() map[Field]ReducerKind {
	return map[Field]ReducerKind{
		FieldConversation:       IdentityMerge,
		FieldPendingQueries:     Append,
		FieldResearchResults:    Append,
		FieldSourcesGathered:    Append,
		FieldInitialQueryCount:  Replace,
		FieldMaxLoops:           Replace,
		FieldLoopCount:          Replace,
		FieldDeepResearchMode:   Replace,
		FieldIsSufficient:       Replace,
		FieldKnowledgeGap:       Replace,
		FieldFollowUpQueries:    Replace,
		FieldReliabilityScore:   Replace,
		FieldBranchesDispatched: Replace,
		FieldBranchSuccesses:    Replace,
	}
}

// Partial is a node's contribution to the run state: a set of declared fields
// and the values to fold in under each field's reducer.
type Partial map[Field]interface{}
