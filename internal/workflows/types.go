// Package workflows hosts the research run workflow: a deterministic graph
// walk over the research nodes, with all side effects pushed into activities.
package workflows

import (
	"github.com/deepquery/orchestrator/internal/graph"
	"github.com/deepquery/orchestrator/internal/state"
)

// Graph node IDs.
const (
	NodeRouteSearchMode graph.NodeID = "route_search_mode"
	NodeGenerateQueries graph.NodeID = "generate_query"
	NodeWebResearch     graph.NodeID = "web_research"
	NodeReflection      graph.NodeID = "reflection"
	NodeEvaluate        graph.NodeID = "evaluate_research"
	NodeValidateSources graph.NodeID = "validate_sources"
	NodeFinalize        graph.NodeID = "finalize_answer"
	NodeDirectAnswer    graph.NodeID = "direct_llm_response"
)

// TaskInput starts one research run.
type TaskInput struct {
	// Query is the user's research question.
	Query string `json:"query"`
	// Profile selects the loop budget ("standard", "deep_research").
	// Unknown or empty names resolve to standard.
	Profile string `json:"profile,omitempty"`
	// RunID keys progress events for streaming subscribers.
	RunID string `json:"run_id,omitempty"`
	// InitialQueryCount overrides the profile's query count when non-nil.
	// Zero routes the run down the direct-answer path.
	InitialQueryCount *int `json:"initial_query_count,omitempty"`
	// EmitEvents enables progress event activities during the run.
	EmitEvents bool `json:"emit_events,omitempty"`
}

// TaskResult is the outcome of a research run.
type TaskResult struct {
	Result           string         `json:"result"`
	Sources          []state.Source `json:"sources,omitempty"`
	ReliabilityScore float64        `json:"reliability_score"`
	LoopCount        int            `json:"loop_count"`
	Success          bool           `json:"success"`
	ErrorMessage     string         `json:"error_message,omitempty"`
}
