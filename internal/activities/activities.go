// Package activities implements the side-effecting steps of a research run.
// Every collaborator call lives here, behind the workflow's activity boundary;
// provider failures degrade to sentinel results rather than activity errors so
// the run always finishes with the best answer available.
package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepquery/orchestrator/internal/config"
	"github.com/deepquery/orchestrator/internal/llm"
	"github.com/deepquery/orchestrator/internal/metrics"
	"github.com/deepquery/orchestrator/internal/prompts"
	"github.com/deepquery/orchestrator/internal/search"
	"github.com/deepquery/orchestrator/internal/state"
	"github.com/deepquery/orchestrator/internal/streaming"
)

// Activities bundles the collaborator clients behind the activity methods
// registered with the worker.
type Activities struct {
	llm       llm.CompletionService
	search    search.Service
	prompts   *prompts.Store
	cfg       *config.Provider
	stream    *streaming.Manager
	logger    *zap.Logger
	retention time.Duration
}

// New wires the activity set. stream may be nil, in which case the global
// streaming manager is used.
func New(completion llm.CompletionService, searcher search.Service, store *prompts.Store, cfg *config.Provider, stream *streaming.Manager, logger *zap.Logger) *Activities {
	if stream == nil {
		stream = streaming.Get()
	}
	return &Activities{
		llm:       completion,
		search:    searcher,
		prompts:   store,
		cfg:       cfg,
		stream:    stream,
		logger:    logger,
		retention: replayRetention,
	}
}

// GetWorkflowProfile resolves the named profile from the current config
// snapshot. Unknown names fall back to the standard profile.
func (a *Activities) GetWorkflowProfile(ctx context.Context, in ProfileInput) (ProfileResult, error) {
	p := a.cfg.Snapshot().ProfileFor(in.Profile)
	return ProfileResult{
		InitialQueryCount: p.InitialQueryCount,
		MaxLoops:          p.MaxLoops,
		DeepResearch:      p.DeepResearch,
		ValidationRounds:  p.ValidationRounds,
	}, nil
}

type generatedQueries struct {
	Queries   []string `json:"queries"`
	Rationale string   `json:"rationale"`
}

// GenerateQueries asks the completion service for search queries covering the
// topic. Malformed output gets one re-parse attempt from a plain completion;
// if the provider is down entirely, the topic itself becomes the only query.
func (a *Activities) GenerateQueries(ctx context.Context, in GenerateQueriesInput) (GenerateQueriesResult, error) {
	if in.NumQueries <= 0 {
		return GenerateQueriesResult{}, nil
	}

	set := a.prompts.Load()
	prompt := prompts.Render(set.QueryWriter, map[string]string{
		"research_topic": in.ResearchTopic,
		"number_queries": strconv.Itoa(in.NumQueries),
	})
	lc := a.cfg.Snapshot().LLM
	opts := llm.Options{Model: lc.QueryModel, Temperature: lc.QueryTemperature}

	var out generatedQueries
	err := a.llm.CompleteStructured(ctx, prompt, opts, &out)
	if err != nil && errors.Is(err, llm.ErrMalformedOutput) {
		// Some providers ignore JSON mode but still emit JSON in prose.
		if text, cerr := a.llm.Complete(ctx, prompt, opts); cerr == nil {
			err = json.Unmarshal([]byte(llm.StripCodeFences(text)), &out)
		}
	}
	if err != nil || len(out.Queries) == 0 {
		a.logger.Warn("Query generation degraded to topic query",
			zap.String("topic", in.ResearchTopic), zap.Error(err))
		metrics.ProviderDegradations.WithLabelValues("llm", "generate_queries").Inc()
		return GenerateQueriesResult{Queries: []string{in.ResearchTopic}, Degraded: true}, nil
	}

	queries := make([]string, 0, in.NumQueries)
	for _, q := range out.Queries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
		if len(queries) == in.NumQueries {
			break
		}
	}
	if len(queries) == 0 {
		queries = []string{in.ResearchTopic}
	}
	return GenerateQueriesResult{Queries: queries, Rationale: out.Rationale}, nil
}

// WebSearch runs one search branch. An unavailable backend degrades to a
// sentinel summary with no sources so the remaining branches stand alone.
func (a *Activities) WebSearch(ctx context.Context, in WebSearchInput) (WebSearchResult, error) {
	res, err := a.search.Search(ctx, in.Query)
	if err != nil {
		a.logger.Warn("Web search degraded",
			zap.String("query", in.Query), zap.Int("branch_id", in.BranchID), zap.Error(err))
		metrics.ProviderDegradations.WithLabelValues("search", "web_search").Inc()
		return WebSearchResult{
			Summary:  fmt.Sprintf("[Web search unavailable for query %q; no sources gathered.]", in.Query),
			Degraded: true,
		}, nil
	}
	return WebSearchResult{Summary: res.Summary, Sources: toStateSources(res.Sources)}, nil
}

// Reflect audits the gathered summaries for completeness. Provider failure
// degrades to a sufficient verdict so the run finalizes with what it has.
func (a *Activities) Reflect(ctx context.Context, in ReflectInput) (ReflectResult, error) {
	set := a.prompts.Load()
	prompt := prompts.Render(set.Reflection, map[string]string{
		"research_topic": in.ResearchTopic,
		"summaries":      strings.Join(in.Summaries, "\n\n---\n\n"),
	})
	lc := a.cfg.Snapshot().LLM
	opts := llm.Options{Model: lc.ReflectionModel, Temperature: lc.ReflectionTemperature}

	var out ReflectResult
	if err := a.llm.CompleteStructured(ctx, prompt, opts, &out); err != nil {
		a.logger.Warn("Reflection degraded to sufficient verdict", zap.Error(err))
		metrics.ProviderDegradations.WithLabelValues("llm", "reflect").Inc()
		return ReflectResult{IsSufficient: true, Degraded: true}, nil
	}
	return out, nil
}

// defaultCredibility is assumed for sources the search backend left unscored.
const defaultCredibility = 0.8

// ScoreSources computes the run's reliability score as the mean credibility
// of the gathered sources. No sources means nothing to distrust: 1.0.
func (a *Activities) ScoreSources(ctx context.Context, in ScoreSourcesInput) (ScoreSourcesResult, error) {
	if len(in.Sources) == 0 {
		return ScoreSourcesResult{ReliabilityScore: 1.0}, nil
	}
	var sum float64
	for _, s := range in.Sources {
		c := s.Credibility
		if c <= 0 {
			c = defaultCredibility
		}
		if c > 1 {
			c = 1
		}
		sum += c
	}
	return ScoreSourcesResult{ReliabilityScore: sum / float64(len(in.Sources))}, nil
}

// ComposeAnswer writes the final report grounded in the gathered summaries,
// with a deduplicated source list appended. Provider failure degrades to a
// plain stitching of the summaries.
func (a *Activities) ComposeAnswer(ctx context.Context, in ComposeAnswerInput) (AnswerResult, error) {
	set := a.prompts.Load()
	prompt := prompts.Render(set.Answer, map[string]string{
		"research_topic": in.ResearchTopic,
		"summaries":      strings.Join(in.Summaries, "\n\n---\n\n"),
	})
	lc := a.cfg.Snapshot().LLM
	opts := llm.Options{Model: lc.AnswerModel, Temperature: lc.AnswerTemperature}

	text, err := a.llm.Complete(ctx, prompt, opts)
	degraded := false
	if err != nil {
		a.logger.Warn("Answer composition degraded to summary stitching", zap.Error(err))
		metrics.ProviderDegradations.WithLabelValues("llm", "compose_answer").Inc()
		text = "Research summaries gathered for this topic:\n\n" + strings.Join(in.Summaries, "\n\n")
		degraded = true
	}
	if section := citationSection(in.Sources); section != "" {
		text += section
	}
	return AnswerResult{
		Message:  state.Message{ID: uuid.NewString(), Role: "assistant", Content: text},
		Degraded: degraded,
	}, nil
}

// DirectAnswer answers from model knowledge without any web research.
func (a *Activities) DirectAnswer(ctx context.Context, in DirectAnswerInput) (AnswerResult, error) {
	set := a.prompts.Load()
	prompt := prompts.Render(set.Direct, map[string]string{
		"research_topic": in.ResearchTopic,
	})
	lc := a.cfg.Snapshot().LLM
	opts := llm.Options{Model: lc.AnswerModel, Temperature: lc.DirectTemperature}

	text, err := a.llm.Complete(ctx, prompt, opts)
	if err != nil {
		a.logger.Warn("Direct answer degraded", zap.Error(err))
		metrics.ProviderDegradations.WithLabelValues("llm", "direct_answer").Inc()
		return AnswerResult{
			Message: state.Message{
				ID:      uuid.NewString(),
				Role:    "assistant",
				Content: "The answering service is currently unavailable. Please retry shortly.",
			},
			Degraded: true,
		}, nil
	}
	return AnswerResult{Message: state.Message{ID: uuid.NewString(), Role: "assistant", Content: text}}, nil
}

// replayRetention is how long a finished run's events stay replayable for
// late SSE subscribers before the ring is dropped.
const replayRetention = 5 * time.Minute

// EmitRunUpdate publishes one progress event for streaming subscribers. A
// terminal event schedules the run's replay history for cleanup.
func (a *Activities) EmitRunUpdate(ctx context.Context, in RunUpdateInput) error {
	a.stream.Publish(in.RunID, streaming.Event{
		Type:     in.Type,
		Node:     in.Node,
		BranchID: in.BranchID,
		Message:  in.Message,
	})
	if in.Type == streaming.TypeRunCompleted || in.Type == streaming.TypeRunFailed {
		a.stream.ForgetAfter(in.RunID, a.retention)
	}
	return nil
}

// citationSection renders the Sources block of the final answer, deduplicated
// by URL in first-seen order.
func citationSection(sources []state.Source) string {
	if len(sources) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(sources))
	var b strings.Builder
	for _, s := range sources {
		if s.URL == "" {
			continue
		}
		if _, dup := seen[s.URL]; dup {
			continue
		}
		seen[s.URL] = struct{}{}
		title := s.Title
		if title == "" {
			title = s.URL
		}
		fmt.Fprintf(&b, "- [%s](%s)\n", title, s.URL)
	}
	if b.Len() == 0 {
		return ""
	}
	return "\n\n## Sources\n\n" + b.String()
}

func toStateSources(in []search.Source) []state.Source {
	if len(in) == 0 {
		return nil
	}
	out := make([]state.Source, len(in))
	for i, s := range in {
		out[i] = state.Source{URL: s.URL, Title: s.Title, Credibility: s.Credibility}
	}
	return out
}
