package state

import (
	"fmt"
	"sort"
	"sync"
)

// BranchOutcome is the captured result of one fan-out branch: its globally
// unique branch ID and either a partial update or the branch's failure.
type BranchOutcome struct {
	BranchID int
	Partial  Partial
	Err      error
}

// Accumulator folds node partials into the shared RunState according to the
// declared per-field reducers. It is the only component that mutates RunState.
type Accumulator struct {
	mu     sync.Mutex
	schema map[Field]ReducerKind
}

// NewAccumulator builds an accumulator over the static schema. The schema is
// checked once here rather than on every merge.
func NewAccumulator() (*Accumulator, error) {
	schema := Schema()
	if len(schema) == 0 {
		return nil, fmt.Errorf("state: empty field schema")
	}
	identityCount := 0
	for f, kind := range schema {
		switch kind {
		case Append, Replace:
		case IdentityMerge:
			identityCount++
		default:
			return nil, fmt.Errorf("state: field %q has unknown reducer %v", f, kind)
		}
	}
	if identityCount != 1 {
		return nil, fmt.Errorf("state: expected exactly one identity-merge field, got %d", identityCount)
	}
	return &Accumulator{schema: schema}, nil
}

// Apply merges a single node's partial into the state. Unknown fields and
// mistyped values are schema violations.
func (a *Accumulator) Apply(st *RunState, partial Partial) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.apply(st, partial)
}

// MergeBranches folds the outcomes of one fan-out cycle into the state in
// ascending branch-id order, so append-field ordering never depends on
// completion order. Failed branches contribute nothing but do not block the
// merge. Two branches writing the same replace-reducer field is reported as a
// conflicting write.
func (a *Accumulator) MergeBranches(st *RunState, outcomes []BranchOutcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ordered := append([]BranchOutcome(nil), outcomes...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].BranchID < ordered[j].BranchID })

	replaceWriters := make(map[Field]int)
	for _, out := range ordered {
		if out.Err != nil {
			continue
		}
		for f := range out.Partial {
			kind, ok := a.schema[f]
			if !ok {
				return fmt.Errorf("%w: branch %d wrote undeclared field %q", ErrSchemaViolation, out.BranchID, f)
			}
			if kind != Replace {
				continue
			}
			if prev, dup := replaceWriters[f]; dup {
				return fmt.Errorf("%w: branches %d and %d both wrote replace field %q", ErrConflictingWrite, prev, out.BranchID, f)
			}
			replaceWriters[f] = out.BranchID
		}
	}

	for _, out := range ordered {
		if out.Err != nil {
			continue
		}
		if err := a.apply(st, out.Partial); err != nil {
			return err
		}
	}
	return nil
}

func (a *Accumulator) apply(st *RunState, partial Partial) error {
	// Deterministic field order: collect and sort so log output and error
	// attribution do not depend on map iteration.
	fields := make([]Field, 0, len(partial))
	for f := range partial {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

	for _, f := range fields {
		kind, ok := a.schema[f]
		if !ok {
			return fmt.Errorf("%w: undeclared field %q", ErrSchemaViolation, f)
		}
		if err := applyField(st, f, kind, partial[f]); err != nil {
			return err
		}
	}
	return nil
}

func applyField(st *RunState, f Field, kind ReducerKind, value interface{}) error {
	mistyped := func() error {
		return fmt.Errorf("%w: field %q got %T, incompatible with %v reducer", ErrSchemaViolation, f, value, kind)
	}

	switch f {
	case FieldConversation:
		msgs, ok := value.([]Message)
		if !ok {
			return mistyped()
		}
		st.Conversation = mergeByID(st.Conversation, msgs)
	case FieldPendingQueries:
		qs, ok := value.([]string)
		if !ok {
			return mistyped()
		}
		st.PendingQueries = append(st.PendingQueries, qs...)
	case FieldResearchResults:
		rs, ok := value.([]string)
		if !ok {
			return mistyped()
		}
		st.ResearchResults = append(st.ResearchResults, rs...)
	case FieldSourcesGathered:
		srcs, ok := value.([]Source)
		if !ok {
			return mistyped()
		}
		st.SourcesGathered = append(st.SourcesGathered, srcs...)
	case FieldInitialQueryCount:
		n, ok := value.(int)
		if !ok {
			return mistyped()
		}
		st.InitialQueryCount = n
	case FieldMaxLoops:
		n, ok := value.(int)
		if !ok {
			return mistyped()
		}
		st.MaxLoops = n
	case FieldLoopCount:
		n, ok := value.(int)
		if !ok {
			return mistyped()
		}
		if n < st.LoopCount {
			return fmt.Errorf("%w: loop_count moved backwards (%d -> %d)", ErrSchemaViolation, st.LoopCount, n)
		}
		st.LoopCount = n
	case FieldDeepResearchMode:
		b, ok := value.(bool)
		if !ok {
			return mistyped()
		}
		st.DeepResearchMode = b
	case FieldIsSufficient:
		b, ok := value.(bool)
		if !ok {
			return mistyped()
		}
		st.IsSufficient = b
	case FieldKnowledgeGap:
		s, ok := value.(string)
		if !ok {
			return mistyped()
		}
		st.KnowledgeGap = s
	case FieldFollowUpQueries:
		qs, ok := value.([]string)
		if !ok {
			return mistyped()
		}
		st.FollowUpQueries = qs
	case FieldReliabilityScore:
		x, ok := value.(float64)
		if !ok {
			return mistyped()
		}
		st.ReliabilityScore = x
	case FieldBranchesDispatched:
		n, ok := value.(int)
		if !ok {
			return mistyped()
		}
		st.BranchesDispatched = n
	case FieldBranchSuccesses:
		n, ok := value.(int)
		if !ok {
			return mistyped()
		}
		st.BranchSuccesses = n
	default:
		return fmt.Errorf("%w: field %q declared but not reducible", ErrSchemaViolation, f)
	}
	return nil
}

// mergeByID implements the identity-merge reducer for the conversation list.
func mergeByID(existing, incoming []Message) []Message {
	out := append([]Message(nil), existing...)
	index := make(map[string]int, len(out))
	for i, m := range out {
		index[m.ID] = i
	}
	for _, m := range incoming {
		if i, ok := index[m.ID]; ok {
			out[i] = m
			continue
		}
		index[m.ID] = len(out)
		out = append(out, m)
	}
	return out
}
