package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deepquery/orchestrator/internal/config"
	"github.com/deepquery/orchestrator/internal/llm"
	"github.com/deepquery/orchestrator/internal/prompts"
	"github.com/deepquery/orchestrator/internal/search"
	"github.com/deepquery/orchestrator/internal/state"
	"github.com/deepquery/orchestrator/internal/streaming"
)

type fakeLLM struct {
	completeText string
	completeErr  error
	structured   interface{}
	structErr    error
	prompts      []string
	opts         []llm.Options
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	return f.completeText, f.completeErr
}

func (f *fakeLLM) CompleteStructured(ctx context.Context, prompt string, opts llm.Options, out interface{}) error {
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	if f.structErr != nil {
		return f.structErr
	}
	data, err := json.Marshal(f.structured)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

type fakeSearch struct {
	result search.Result
	err    error
	calls  []string
}

func (f *fakeSearch) Search(ctx context.Context, query string) (search.Result, error) {
	f.calls = append(f.calls, query)
	if f.err != nil {
		return search.Result{}, f.err
	}
	return f.result, nil
}

func newTestActivities(t *testing.T, l llm.CompletionService, s search.Service) *Activities {
	t.Helper()
	logger := zap.NewNop()
	provider, err := config.NewProvider(filepath.Join(t.TempDir(), "missing.yaml"), logger)
	require.NoError(t, err)
	store := prompts.NewStore(filepath.Join(t.TempDir(), "prompts.json"), logger)
	return New(l, s, store, provider, streaming.NewManager(16), logger)
}

func TestGenerateQueriesHappyPath(t *testing.T) {
	fl := &fakeLLM{structured: map[string]interface{}{
		"queries":   []string{"q one", "q two", "q three", "q four"},
		"rationale": "coverage",
	}}
	a := newTestActivities(t, fl, &fakeSearch{})

	res, err := a.GenerateQueries(context.Background(), GenerateQueriesInput{
		ResearchTopic: "solid state batteries",
		NumQueries:    3,
	})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	// Truncated to the requested count.
	assert.Equal(t, []string{"q one", "q two", "q three"}, res.Queries)
	assert.Equal(t, "coverage", res.Rationale)
	// The rendered prompt carries the topic and requested count.
	require.Len(t, fl.prompts, 1)
	assert.Contains(t, fl.prompts[0], "solid state batteries")
	assert.Contains(t, fl.prompts[0], "3")
}

func TestGenerateQueriesFallsBackToTopic(t *testing.T) {
	fl := &fakeLLM{
		structErr:   fmt.Errorf("%w: boom", llm.ErrProviderUnavailable),
		completeErr: fmt.Errorf("%w: boom", llm.ErrProviderUnavailable),
	}
	a := newTestActivities(t, fl, &fakeSearch{})

	res, err := a.GenerateQueries(context.Background(), GenerateQueriesInput{
		ResearchTopic: "solid state batteries",
		NumQueries:    3,
	})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, []string{"solid state batteries"}, res.Queries)
}

func TestGenerateQueriesReparsesMalformedOutput(t *testing.T) {
	fl := &fakeLLM{
		structErr:    fmt.Errorf("%w: not json", llm.ErrMalformedOutput),
		completeText: "```json\n{\"queries\": [\"recovered\"]}\n```",
	}
	a := newTestActivities(t, fl, &fakeSearch{})

	res, err := a.GenerateQueries(context.Background(), GenerateQueriesInput{
		ResearchTopic: "topic",
		NumQueries:    2,
	})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, []string{"recovered"}, res.Queries)
}

func TestGenerateQueriesZeroBudget(t *testing.T) {
	a := newTestActivities(t, &fakeLLM{}, &fakeSearch{})
	res, err := a.GenerateQueries(context.Background(), GenerateQueriesInput{ResearchTopic: "topic"})
	require.NoError(t, err)
	assert.Empty(t, res.Queries)
}

func TestWebSearchDegradesOnFailure(t *testing.T) {
	fs := &fakeSearch{err: fmt.Errorf("%w: no key", search.ErrUnavailable)}
	a := newTestActivities(t, &fakeLLM{}, fs)

	res, err := a.WebSearch(context.Background(), WebSearchInput{Query: "some query", BranchID: 2})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Contains(t, res.Summary, "some query")
	assert.Empty(t, res.Sources)
}

func TestWebSearchPassesThroughResults(t *testing.T) {
	fs := &fakeSearch{result: search.Result{
		Summary: "findings",
		Sources: []search.Source{{URL: "https://a.example", Title: "A", Credibility: 0.9}},
	}}
	a := newTestActivities(t, &fakeLLM{}, fs)

	res, err := a.WebSearch(context.Background(), WebSearchInput{Query: "q"})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, "findings", res.Summary)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, state.Source{URL: "https://a.example", Title: "A", Credibility: 0.9}, res.Sources[0])
}

func TestReflectDegradesToSufficient(t *testing.T) {
	fl := &fakeLLM{structErr: fmt.Errorf("%w: boom", llm.ErrProviderUnavailable)}
	a := newTestActivities(t, fl, &fakeSearch{})

	res, err := a.Reflect(context.Background(), ReflectInput{
		ResearchTopic: "topic",
		Summaries:     []string{"s1"},
	})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.True(t, res.IsSufficient)
	assert.Empty(t, res.FollowUpQueries)
}

func TestReflectReturnsVerdict(t *testing.T) {
	fl := &fakeLLM{structured: map[string]interface{}{
		"is_sufficient":     false,
		"knowledge_gap":     "missing pricing data",
		"follow_up_queries": []string{"pricing 2026"},
	}}
	a := newTestActivities(t, fl, &fakeSearch{})

	res, err := a.Reflect(context.Background(), ReflectInput{ResearchTopic: "topic", Summaries: []string{"s1", "s2"}})
	require.NoError(t, err)
	assert.False(t, res.IsSufficient)
	assert.Equal(t, "missing pricing data", res.KnowledgeGap)
	assert.Equal(t, []string{"pricing 2026"}, res.FollowUpQueries)
}

func TestScoreSources(t *testing.T) {
	a := newTestActivities(t, &fakeLLM{}, &fakeSearch{})
	ctx := context.Background()

	// No sources: nothing to distrust.
	res, err := a.ScoreSources(ctx, ScoreSourcesInput{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.ReliabilityScore)

	// Mean of explicit credibilities.
	res, err = a.ScoreSources(ctx, ScoreSourcesInput{Sources: []state.Source{
		{URL: "a", Credibility: 0.8},
		{URL: "b", Credibility: 0.6},
		{URL: "c", Credibility: 1.0},
	}})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, res.ReliabilityScore, 1e-9)

	// Unscored sources assume the baseline.
	res, err = a.ScoreSources(ctx, ScoreSourcesInput{Sources: []state.Source{{URL: "a"}}})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, res.ReliabilityScore, 1e-9)
}

func TestComposeAnswerAppendsDedupedSources(t *testing.T) {
	fl := &fakeLLM{completeText: "the report body"}
	a := newTestActivities(t, fl, &fakeSearch{})

	res, err := a.ComposeAnswer(context.Background(), ComposeAnswerInput{
		ResearchTopic: "topic",
		Summaries:     []string{"s1"},
		Sources: []state.Source{
			{URL: "https://a.example", Title: "A"},
			{URL: "https://b.example", Title: "B"},
			{URL: "https://a.example", Title: "A again"},
		},
	})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, "assistant", res.Message.Role)
	assert.NotEmpty(t, res.Message.ID)
	assert.Contains(t, res.Message.Content, "the report body")
	assert.Contains(t, res.Message.Content, "## Sources")
	assert.Equal(t, 1, strings.Count(res.Message.Content, "https://a.example"))
	assert.Equal(t, 1, strings.Count(res.Message.Content, "https://b.example"))
}

func TestComposeAnswerDegradesToSummaryStitching(t *testing.T) {
	fl := &fakeLLM{completeErr: fmt.Errorf("%w: boom", llm.ErrProviderUnavailable)}
	a := newTestActivities(t, fl, &fakeSearch{})

	res, err := a.ComposeAnswer(context.Background(), ComposeAnswerInput{
		ResearchTopic: "topic",
		Summaries:     []string{"first finding", "second finding"},
	})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Contains(t, res.Message.Content, "first finding")
	assert.Contains(t, res.Message.Content, "second finding")
}

func TestDirectAnswer(t *testing.T) {
	fl := &fakeLLM{completeText: "from model knowledge"}
	a := newTestActivities(t, fl, &fakeSearch{})

	res, err := a.DirectAnswer(context.Background(), DirectAnswerInput{ResearchTopic: "topic"})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, "from model knowledge", res.Message.Content)
}

// Each research step runs at its configured temperature.
func TestPerStepTemperatures(t *testing.T) {
	fl := &fakeLLM{
		completeText: "text",
		structured:   map[string]interface{}{"queries": []string{"q"}, "is_sufficient": true},
	}
	a := newTestActivities(t, fl, &fakeSearch{})
	ctx := context.Background()

	_, err := a.GenerateQueries(ctx, GenerateQueriesInput{ResearchTopic: "t", NumQueries: 1})
	require.NoError(t, err)
	_, err = a.Reflect(ctx, ReflectInput{ResearchTopic: "t", Summaries: []string{"s"}})
	require.NoError(t, err)
	_, err = a.ComposeAnswer(ctx, ComposeAnswerInput{ResearchTopic: "t", Summaries: []string{"s"}})
	require.NoError(t, err)
	_, err = a.DirectAnswer(ctx, DirectAnswerInput{ResearchTopic: "t"})
	require.NoError(t, err)

	require.Len(t, fl.opts, 4)
	assert.Equal(t, 1.0, fl.opts[0].Temperature)
	assert.Equal(t, 0.7, fl.opts[1].Temperature)
	assert.Equal(t, 0.1, fl.opts[2].Temperature)
	assert.Equal(t, 0.3, fl.opts[3].Temperature)
}

func TestEmitRunUpdatePublishes(t *testing.T) {
	mgr := streaming.NewManager(16)
	logger := zap.NewNop()
	provider, err := config.NewProvider(filepath.Join(t.TempDir(), "missing.yaml"), logger)
	require.NoError(t, err)
	a := New(&fakeLLM{}, &fakeSearch{}, prompts.NewStore(filepath.Join(t.TempDir(), "p.json"), logger), provider, mgr, logger)

	ch := mgr.Subscribe("run-1", 4)
	defer mgr.Unsubscribe("run-1", ch)

	require.NoError(t, a.EmitRunUpdate(context.Background(), RunUpdateInput{
		RunID: "run-1",
		Type:  streaming.TypeNodeStarted,
		Node:  "generate_query",
	}))

	ev := <-ch
	assert.Equal(t, streaming.TypeNodeStarted, ev.Type)
	assert.Equal(t, "generate_query", ev.Node)
	assert.Equal(t, "run-1", ev.RunID)
}

func TestEmitRunUpdateReleasesHistoryOnTerminalEvents(t *testing.T) {
	mgr := streaming.NewManager(16)
	logger := zap.NewNop()
	provider, err := config.NewProvider(filepath.Join(t.TempDir(), "missing.yaml"), logger)
	require.NoError(t, err)
	a := New(&fakeLLM{}, &fakeSearch{}, prompts.NewStore(filepath.Join(t.TempDir(), "p.json"), logger), provider, mgr, logger)
	a.retention = time.Millisecond
	ctx := context.Background()

	require.NoError(t, a.EmitRunUpdate(ctx, RunUpdateInput{RunID: "run-1", Type: streaming.TypeNodeStarted}))
	require.NoError(t, a.EmitRunUpdate(ctx, RunUpdateInput{RunID: "run-1", Type: streaming.TypeNodeCompleted}))
	// Non-terminal events keep the replay ring alive.
	time.Sleep(10 * time.Millisecond)
	require.NotEmpty(t, mgr.ReplaySince("run-1", 0))

	require.NoError(t, a.EmitRunUpdate(ctx, RunUpdateInput{RunID: "run-1", Type: streaming.TypeRunCompleted}))
	assert.Eventually(t, func() bool {
		return len(mgr.ReplaySince("run-1", 0)) == 0
	}, time.Second, 5*time.Millisecond)
}
