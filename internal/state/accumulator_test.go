package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState() RunState {
	return New(Message{ID: "m1", Role: "user", Content: "what is quantum error correction"}, 3, 2, false)
}

func TestApplyAppendReducers(t *testing.T) {
	acc, err := NewAccumulator()
	require.NoError(t, err)
	st := newTestState()

	require.NoError(t, acc.Apply(&st, Partial{
		FieldPendingQueries:  []string{"q1", "q2"},
		FieldResearchResults: []string{"r1"},
	}))
	require.NoError(t, acc.Apply(&st, Partial{
		FieldPendingQueries:  []string{"q3"},
		FieldResearchResults: []string{"r2"},
	}))

	assert.Equal(t, []string{"q1", "q2", "q3"}, st.PendingQueries)
	assert.Equal(t, []string{"r1", "r2"}, st.ResearchResults)
}

func TestApplyReplaceReducers(t *testing.T) {
	acc, err := NewAccumulator()
	require.NoError(t, err)
	st := newTestState()

	require.NoError(t, acc.Apply(&st, Partial{
		FieldIsSufficient: true,
		FieldKnowledgeGap: "missing recent results",
		FieldLoopCount:    1,
	}))
	assert.True(t, st.IsSufficient)
	assert.Equal(t, "missing recent results", st.KnowledgeGap)
	assert.Equal(t, 1, st.LoopCount)

	require.NoError(t, acc.Apply(&st, Partial{FieldIsSufficient: false}))
	assert.False(t, st.IsSufficient)
}

func TestApplyIdentityMergeConversation(t *testing.T) {
	acc, err := NewAccumulator()
	require.NoError(t, err)
	st := newTestState()

	// New ID appends.
	require.NoError(t, acc.Apply(&st, Partial{
		FieldConversation: []Message{{ID: "m2", Role: "assistant", Content: "draft"}},
	}))
	require.Len(t, st.Conversation, 2)

	// Known ID replaces in place, order unchanged.
	require.NoError(t, acc.Apply(&st, Partial{
		FieldConversation: []Message{{ID: "m2", Role: "assistant", Content: "final"}},
	}))
	require.Len(t, st.Conversation, 2)
	assert.Equal(t, "m1", st.Conversation[0].ID)
	assert.Equal(t, "final", st.Conversation[1].Content)
}

func TestApplyRejectsUndeclaredField(t *testing.T) {
	acc, err := NewAccumulator()
	require.NoError(t, err)
	st := newTestState()

	err = acc.Apply(&st, Partial{Field("made_up_field"): 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestApplyRejectsMistypedValue(t *testing.T) {
	acc, err := NewAccumulator()
	require.NoError(t, err)
	st := newTestState()

	err = acc.Apply(&st, Partial{FieldPendingQueries: 42})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestApplyRejectsLoopCountRegression(t *testing.T) {
	acc, err := NewAccumulator()
	require.NoError(t, err)
	st := newTestState()
	st.LoopCount = 2

	err = acc.Apply(&st, Partial{FieldLoopCount: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestMergeBranchesOrdersByBranchID(t *testing.T) {
	acc, err := NewAccumulator()
	require.NoError(t, err)
	st := newTestState()

	// Outcomes arrive in completion order, not branch order.
	outcomes := []BranchOutcome{
		{BranchID: 2, Partial: Partial{FieldResearchResults: []string{"r2"}}},
		{BranchID: 0, Partial: Partial{FieldResearchResults: []string{"r0"}}},
		{BranchID: 1, Partial: Partial{FieldResearchResults: []string{"r1"}}},
	}
	require.NoError(t, acc.MergeBranches(&st, outcomes))
	assert.Equal(t, []string{"r0", "r1", "r2"}, st.ResearchResults)
}

func TestMergeBranchesSkipsFailedBranches(t *testing.T) {
	acc, err := NewAccumulator()
	require.NoError(t, err)
	st := newTestState()

	outcomes := []BranchOutcome{
		{BranchID: 0, Partial: Partial{FieldResearchResults: []string{"r0"}}},
		{BranchID: 1, Err: errors.New("search exploded")},
		{BranchID: 2, Partial: Partial{FieldResearchResults: []string{"r2"}}},
	}
	require.NoError(t, acc.MergeBranches(&st, outcomes))
	assert.Equal(t, []string{"r0", "r2"}, st.ResearchResults)
}

func TestMergeBranchesDetectsConflictingReplaceWrites(t *testing.T) {
	acc, err := NewAccumulator()
	require.NoError(t, err)
	st := newTestState()

	outcomes := []BranchOutcome{
		{BranchID: 0, Partial: Partial{FieldKnowledgeGap: "gap a"}},
		{BranchID: 1, Partial: Partial{FieldKnowledgeGap: "gap b"}},
	}
	err = acc.MergeBranches(&st, outcomes)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflictingWrite)
}

func TestMergeBranchesAllowsConcurrentAppends(t *testing.T) {
	acc, err := NewAccumulator()
	require.NoError(t, err)
	st := newTestState()

	outcomes := []BranchOutcome{
		{BranchID: 0, Partial: Partial{
			FieldSourcesGathered: []Source{{URL: "https://a.example", Credibility: 0.9}},
		}},
		{BranchID: 1, Partial: Partial{
			FieldSourcesGathered: []Source{{URL: "https://b.example", Credibility: 0.7}},
		}},
	}
	require.NoError(t, acc.MergeBranches(&st, outcomes))
	require.Len(t, st.SourcesGathered, 2)
	assert.Equal(t, "https://a.example", st.SourcesGathered[0].URL)
	assert.Equal(t, "https://b.example", st.SourcesGathered[1].URL)
}

func TestResearchTopic(t *testing.T) {
	single := []Message{{ID: "m1", Role: "user", Content: "tell me about fusion"}}
	assert.Equal(t, "tell me about fusion", ResearchTopic(single))

	multi := []Message{
		{ID: "m1", Role: "user", Content: "tell me about fusion"},
		{ID: "m2", Role: "assistant", Content: "fusion is..."},
		{ID: "m3", Role: "user", Content: "and its costs?"},
	}
	got := ResearchTopic(multi)
	assert.Contains(t, got, "User: tell me about fusion")
	assert.Contains(t, got, "Assistant: fusion is...")
	assert.Contains(t, got, "User: and its costs?")
}

func TestCloneIsDeep(t *testing.T) {
	st := newTestState()
	st.PendingQueries = []string{"q1"}

	clone := st.Clone()
	clone.PendingQueries[0] = "mutated"
	clone.Conversation[0].Content = "mutated"

	assert.Equal(t, "q1", st.PendingQueries[0])
	assert.Equal(t, "what is quantum error correction", st.Conversation[0].Content)
}
