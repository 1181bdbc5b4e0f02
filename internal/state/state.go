package state

import (
	"strings"
)

// Message is a single conversation record. Records are merged by identity:
// a message with a known ID replaces the prior record in place, a message
// with a new ID is appended.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Source is one gathered web source.
type Source struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Credibility float64 `json:"credibility"`
}

// RunState is the shared state threaded through every node of a research run.
// It is owned by the graph executor for the lifetime of the run; nodes only
// ever see snapshots and return partial updates.
type RunState struct {
	Conversation    []Message `json:"conversation"`
	PendingQueries  []string  `json:"pending_queries"`
	ResearchResults []string  `json:"research_results"`
	SourcesGathered []Source  `json:"sources_gathered"`

	InitialQueryCount int  `json:"initial_query_count"`
	MaxLoops          int  `json:"max_loops"`
	LoopCount         int  `json:"loop_count"`
	DeepResearchMode  bool `json:"deep_research_mode"`

	// Transient reflection output, consumed by the evaluation node in the
	// same cycle.
	IsSufficient    bool     `json:"is_sufficient"`
	KnowledgeGap    string   `json:"knowledge_gap"`
	FollowUpQueries []string `json:"follow_up_queries"`

	// ReliabilityScore is produced by the source-validation node. It defaults
	// to 1.0 and is only meaningful in deep research mode.
	ReliabilityScore float64 `json:"reliability_score"`

	// BranchesDispatched counts branch invocations issued so far across the
	// whole run. Branch IDs are offsets into this counter, which makes them
	// globally unique across loop cycles.
	BranchesDispatched int `json:"branches_dispatched"`

	// BranchSuccesses is the number of branches of the most recent fan-out
	// join that completed without error. Zero means the whole cycle produced
	// nothing and routing must not loop on it.
	BranchSuccesses int `json:"branch_successes"`
}

// New creates the state for a fresh run from the initial user message and a
// configuration snapshot.
func New(initial Message, initialQueryCount, maxLoops int, deepResearch bool) RunState {
	return RunState{
		Conversation:      []Message{initial},
		InitialQueryCount: initialQueryCount,
		MaxLoops:          maxLoops,
		DeepResearchMode:  deepResearch,
		ReliabilityScore:  1.0,
	}
}

// ResearchTopic derives the topic under research from the conversation. A
// single user message is used verbatim; otherwise the transcript is flattened
// with role prefixes so follow-up turns keep their context.
func ResearchTopic(conversation []Message) string {
	if len(conversation) == 1 && conversation[0].Role == "user" {
		return conversation[0].Content
	}
	var b strings.Builder
	for _, m := range conversation {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		switch m.Role {
		case "user":
			b.WriteString("User: ")
		default:
			b.WriteString("Assistant: ")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

// FinalMessage returns the last assistant message of the conversation, if any.
func (s RunState) FinalMessage() (Message, bool) {
	for i := len(s.Conversation) - 1; i >= 0; i-- {
		if s.Conversation[i].Role == "assistant" {
			return s.Conversation[i], true
		}
	}
	return Message{}, false
}

// Clone returns a deep copy of the state, used as the read-only snapshot
// handed to concurrent branches.
func (s RunState) Clone() RunState {
	c := s
	c.Conversation = append([]Message(nil), s.Conversation...)
	c.PendingQueries = append([]string(nil), s.PendingQueries...)
	c.ResearchResults = append([]string(nil), s.ResearchResults...)
	c.SourcesGathered = append([]Source(nil), s.SourcesGathered...)
	c.FollowUpQueries = append([]string(nil), s.FollowUpQueries...)
	return c
}
