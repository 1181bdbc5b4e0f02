package activities

import "github.com/deepquery/orchestrator/internal/state"

// Activity names, used by workflows to execute by string so tests can stub
// individual activities.
const (
	NameGetWorkflowProfile = "GetWorkflowProfile"
	NameGenerateQueries    = "GenerateQueries"
	NameWebSearch          = "WebSearch"
	NameReflect            = "Reflect"
	NameScoreSources       = "ScoreSources"
	NameComposeAnswer      = "ComposeAnswer"
	NameDirectAnswer       = "DirectAnswer"
	NameEmitRunUpdate      = "EmitRunUpdate"
)

// ProfileInput selects the loop-budget profile for a run.
type ProfileInput struct {
	Profile string `json:"profile"`
}

// ProfileResult is the resolved loop budget, snapshotted for the whole run.
type ProfileResult struct {
	InitialQueryCount int  `json:"initial_query_count"`
	MaxLoops          int  `json:"max_loops"`
	DeepResearch      bool `json:"deep_research"`
	ValidationRounds  int  `json:"validation_rounds"`
}

// GenerateQueriesInput asks for search queries covering a research topic.
type GenerateQueriesInput struct {
	ResearchTopic string `json:"research_topic"`
	NumQueries    int    `json:"num_queries"`
}

// GenerateQueriesResult carries generated queries. Degraded is set when the
// provider failed and a fallback query was substituted.
type GenerateQueriesResult struct {
	Queries   []string `json:"queries"`
	Rationale string   `json:"rationale,omitempty"`
	Degraded  bool     `json:"degraded,omitempty"`
}

// WebSearchInput is one search branch invocation.
type WebSearchInput struct {
	Query    string `json:"query"`
	BranchID int    `json:"branch_id"`
}

// WebSearchResult is the branch outcome: a summary plus located sources.
// A degraded call yields a sentinel summary and no sources.
type WebSearchResult struct {
	Summary  string         `json:"summary"`
	Sources  []state.Source `json:"sources"`
	Degraded bool           `json:"degraded,omitempty"`
}

// ReflectInput audits gathered summaries for completeness.
type ReflectInput struct {
	ResearchTopic string   `json:"research_topic"`
	Summaries     []string `json:"summaries"`
}

// ReflectResult is the reflection verdict. Provider failure degrades to
// IsSufficient=true so the run finalizes with what it has.
type ReflectResult struct {
	IsSufficient    bool     `json:"is_sufficient"`
	KnowledgeGap    string   `json:"knowledge_gap"`
	FollowUpQueries []string `json:"follow_up_queries"`
	Degraded        bool     `json:"degraded,omitempty"`
}

// ScoreSourcesInput carries the gathered sources for reliability scoring.
type ScoreSourcesInput struct {
	Sources []state.Source `json:"sources"`
}

// ScoreSourcesResult is the mean-credibility reliability score in [0,1].
type ScoreSourcesResult struct {
	ReliabilityScore float64 `json:"reliability_score"`
}

// ComposeAnswerInput produces the final report from gathered research.
type ComposeAnswerInput struct {
	ResearchTopic string         `json:"research_topic"`
	Summaries     []string       `json:"summaries"`
	Sources       []state.Source `json:"sources"`
}

// DirectAnswerInput answers from model knowledge without web research.
type DirectAnswerInput struct {
	ResearchTopic string `json:"research_topic"`
}

// AnswerResult is a final assistant message.
type AnswerResult struct {
	Message  state.Message `json:"message"`
	Degraded bool          `json:"degraded,omitempty"`
}

// RunUpdateInput publishes one progress event to streaming subscribers.
type RunUpdateInput struct {
	RunID    string `json:"run_id"`
	Type     string `json:"type"`
	Node     string `json:"node,omitempty"`
	BranchID int    `json:"branch_id,omitempty"`
	Message  string `json:"message,omitempty"`
}
