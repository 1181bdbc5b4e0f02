package workflows

import (
	"go.temporal.io/sdk/workflow"

	"github.com/deepquery/orchestrator/internal/activities"
	"github.com/deepquery/orchestrator/internal/graph"
	"github.com/deepquery/orchestrator/internal/state"
)

// BuildResearchGraph registers the research nodes and their routing rules.
// The topology is static; all run-to-run variation lives in the state.
func BuildResearchGraph() *graph.Registry {
	reg := graph.NewRegistry()
	ctrl := LoopController{}

	// Entry: choose between web research and a direct model answer. A zero
	// query budget means the caller wants no web research at all.
	reg.MustRegister(graph.Node{
		ID: NodeRouteSearchMode,
		Route: func(st state.RunState) (graph.Decision, error) {
			if st.InitialQueryCount <= 0 {
				return graph.ToNode(NodeDirectAnswer), nil
			}
			return graph.ToNode(NodeGenerateQueries), nil
		},
	})

	reg.MustRegister(graph.Node{
		ID: NodeGenerateQueries,
		Run: func(ctx workflow.Context, st state.RunState) (state.Partial, error) {
			var res activities.GenerateQueriesResult
			err := workflow.ExecuteActivity(ctx, activities.NameGenerateQueries, activities.GenerateQueriesInput{
				ResearchTopic: state.ResearchTopic(st.Conversation),
				NumQueries:    st.InitialQueryCount,
			}).Get(ctx, &res)
			if err != nil {
				return nil, err
			}
			return state.Partial{state.FieldPendingQueries: res.Queries}, nil
		},
		Route: func(st state.RunState) (graph.Decision, error) {
			if d, ok := searchFanOut(st); ok {
				return d, nil
			}
			return graph.ToNode(NodeFinalize), nil
		},
	})

	reg.MustRegister(graph.Node{
		ID: NodeWebResearch,
		RunBranch: func(ctx workflow.Context, st state.RunState, input graph.BranchInput) (state.Partial, error) {
			var res activities.WebSearchResult
			err := workflow.ExecuteActivity(ctx, activities.NameWebSearch, activities.WebSearchInput{
				Query:    input.Query,
				BranchID: input.BranchID,
			}).Get(ctx, &res)
			if err != nil {
				return nil, err
			}
			return state.Partial{
				state.FieldResearchResults: []string{res.Summary},
				state.FieldSourcesGathered: res.Sources,
			}, nil
		},
		Route: func(st state.RunState) (graph.Decision, error) {
			// A cycle where every branch failed gathered nothing worth
			// reflecting on; treat it like a run with no queries left.
			if st.BranchSuccesses == 0 {
				return graph.ToNode(NodeFinalize), nil
			}
			return graph.ToNode(NodeReflection), nil
		},
	})

	reg.MustRegister(graph.Node{
		ID: NodeReflection,
		Run: func(ctx workflow.Context, st state.RunState) (state.Partial, error) {
			var res activities.ReflectResult
			err := workflow.ExecuteActivity(ctx, activities.NameReflect, activities.ReflectInput{
				ResearchTopic: state.ResearchTopic(st.Conversation),
				Summaries:     st.ResearchResults,
			}).Get(ctx, &res)
			if err != nil {
				return nil, err
			}
			return state.Partial{
				state.FieldIsSufficient:    res.IsSufficient,
				state.FieldKnowledgeGap:    res.KnowledgeGap,
				state.FieldFollowUpQueries: res.FollowUpQueries,
			}, nil
		},
		Route: func(st state.RunState) (graph.Decision, error) {
			return graph.ToNode(NodeEvaluate), nil
		},
	})

	// Evaluation closes one research cycle: it advances the loop counter and,
	// when the policy continues, stages the follow-up queries. Routing then
	// fans out over whatever is staged but not yet dispatched.
	reg.MustRegister(graph.Node{
		ID: NodeEvaluate,
		Run: func(ctx workflow.Context, st state.RunState) (state.Partial, error) {
			probe := st.Clone()
			probe.LoopCount++
			decision := ctrl.Decide(probe)

			partial := state.Partial{state.FieldLoopCount: st.LoopCount + 1}
			if decision.Action == ActionContinue {
				partial[state.FieldPendingQueries] = decision.Queries
			}
			return partial, nil
		},
		Route: func(st state.RunState) (graph.Decision, error) {
			if d, ok := searchFanOut(st); ok {
				return d, nil
			}
			// Nothing staged: the policy chose a terminal path. Staged
			// follow-ups are already in the dispatched set, so Decide cannot
			// come back with Continue here.
			switch ctrl.Decide(st).Action {
			case ActionValidate:
				return graph.ToNode(NodeValidateSources), nil
			default:
				return graph.ToNode(NodeFinalize), nil
			}
		},
	})

	reg.MustRegister(graph.Node{
		ID: NodeValidateSources,
		Run: func(ctx workflow.Context, st state.RunState) (state.Partial, error) {
			var res activities.ScoreSourcesResult
			err := workflow.ExecuteActivity(ctx, activities.NameScoreSources, activities.ScoreSourcesInput{
				Sources: st.SourcesGathered,
			}).Get(ctx, &res)
			if err != nil {
				return nil, err
			}
			return state.Partial{state.FieldReliabilityScore: res.ReliabilityScore}, nil
		},
		Route: func(st state.RunState) (graph.Decision, error) {
			return graph.ToNode(NodeFinalize), nil
		},
	})

	reg.MustRegister(graph.Node{
		ID: NodeFinalize,
		Run: func(ctx workflow.Context, st state.RunState) (state.Partial, error) {
			var res activities.AnswerResult
			err := workflow.ExecuteActivity(ctx, activities.NameComposeAnswer, activities.ComposeAnswerInput{
				ResearchTopic: state.ResearchTopic(st.Conversation),
				Summaries:     st.ResearchResults,
				Sources:       st.SourcesGathered,
			}).Get(ctx, &res)
			if err != nil {
				return nil, err
			}
			return state.Partial{state.FieldConversation: []state.Message{res.Message}}, nil
		},
		Route: func(st state.RunState) (graph.Decision, error) {
			return graph.Finish(), nil
		},
	})

	reg.MustRegister(graph.Node{
		ID: NodeDirectAnswer,
		Run: func(ctx workflow.Context, st state.RunState) (state.Partial, error) {
			var res activities.AnswerResult
			err := workflow.ExecuteActivity(ctx, activities.NameDirectAnswer, activities.DirectAnswerInput{
				ResearchTopic: state.ResearchTopic(st.Conversation),
			}).Get(ctx, &res)
			if err != nil {
				return nil, err
			}
			return state.Partial{state.FieldConversation: []state.Message{res.Message}}, nil
		},
		Route: func(st state.RunState) (graph.Decision, error) {
			return graph.Finish(), nil
		},
	})

	return reg
}

// searchFanOut expands the staged-but-undispatched queries into a web
// research fan-out. Branch IDs are offsets into the run-global dispatch
// counter so they stay unique across loop cycles.
func searchFanOut(st state.RunState) (graph.Decision, bool) {
	if st.BranchesDispatched >= len(st.PendingQueries) {
		return graph.Decision{}, false
	}
	pending := st.PendingQueries[st.BranchesDispatched:]
	branches := make([]graph.Branch, len(pending))
	for i, q := range pending {
		branches[i] = graph.Branch{
			Node:  NodeWebResearch,
			Input: graph.BranchInput{BranchID: st.BranchesDispatched + i, Query: q},
		}
	}
	return graph.FanOut(branches), true
}
