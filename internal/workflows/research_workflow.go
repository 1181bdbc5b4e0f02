package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/deepquery/orchestrator/internal/activities"
	"github.com/deepquery/orchestrator/internal/config"
	"github.com/deepquery/orchestrator/internal/graph"
	"github.com/deepquery/orchestrator/internal/metrics"
	"github.com/deepquery/orchestrator/internal/state"
	"github.com/deepquery/orchestrator/internal/streaming"
)

// initialMessageID is the deterministic ID of the run's opening user message.
// Activities mint random IDs for new messages; the workflow itself must not.
const initialMessageID = "msg-user-initial"

// ResearchWorkflow runs one research task end to end: resolve the profile,
// walk the research graph, and return the final answer with its gathered
// sources. Activity failures inside a fan-out are isolated per branch;
// everything else fails the run.
func ResearchWorkflow(ctx workflow.Context, in TaskInput) (TaskResult, error) {
	logger := workflow.GetLogger(ctx)

	if strings.TrimSpace(in.Query) == "" {
		return TaskResult{Success: false, ErrorMessage: "empty query"},
			temporal.NewNonRetryableApplicationError("empty query", "InvalidInput", nil)
	}

	profileName := in.Profile
	if profileName == "" {
		profileName = config.ProfileStandard
	}
	runID := in.RunID
	if runID == "" {
		runID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}

	// Degradation is handled inside the activities; a hard activity error is
	// either a branch failure the join isolates or a genuine run failure, so
	// retries stay off.
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var prof activities.ProfileResult
	if err := workflow.ExecuteActivity(ctx, activities.NameGetWorkflowProfile,
		activities.ProfileInput{Profile: profileName}).Get(ctx, &prof); err != nil {
		return TaskResult{Success: false, ErrorMessage: err.Error()}, err
	}

	queryCount := prof.InitialQueryCount
	if in.InitialQueryCount != nil {
		queryCount = *in.InitialQueryCount
	}

	logger.Info("Starting research run",
		"run_id", runID,
		"profile", profileName,
		"initial_query_count", queryCount,
		"max_loops", prof.MaxLoops,
		"deep_research", prof.DeepResearch,
	)
	metrics.RunsStarted.WithLabelValues(profileName).Inc()
	started := workflow.Now(ctx)

	acc, err := state.NewAccumulator()
	if err != nil {
		return TaskResult{Success: false, ErrorMessage: err.Error()}, err
	}

	initial := state.Message{ID: initialMessageID, Role: "user", Content: in.Query}
	st := state.New(initial, queryCount, prof.MaxLoops, prof.DeepResearch)

	exec := graph.NewExecutor(BuildResearchGraph(), acc, NodeRouteSearchMode, runObserver(runID, in.EmitEvents))

	final, err := exec.Run(ctx, st)
	elapsed := workflow.Now(ctx).Sub(started)
	if err != nil {
		logger.Error("Research run failed", "run_id", runID, "error", err)
		metrics.RunsCompleted.WithLabelValues(profileName, "failed").Inc()
		emitRunEvent(ctx, in.EmitEvents, runID, streaming.TypeRunFailed, err.Error())
		return TaskResult{
			Success:      false,
			ErrorMessage: err.Error(),
			LoopCount:    final.LoopCount,
		}, err
	}

	answer, ok := final.FinalMessage()
	if !ok {
		err := fmt.Errorf("run finished without an assistant message")
		metrics.RunsCompleted.WithLabelValues(profileName, "failed").Inc()
		return TaskResult{Success: false, ErrorMessage: err.Error()}, err
	}

	metrics.RunsCompleted.WithLabelValues(profileName, "success").Inc()
	metrics.RunDuration.WithLabelValues(profileName).Observe(elapsed.Seconds())
	metrics.LoopCycles.Observe(float64(final.LoopCount))
	metrics.SourcesGathered.Observe(float64(len(final.SourcesGathered)))
	metrics.BranchesDispatched.Add(float64(final.BranchesDispatched))

	logger.Info("Research run completed",
		"run_id", runID,
		"loops", final.LoopCount,
		"branches", final.BranchesDispatched,
		"sources", len(final.SourcesGathered),
		"reliability", final.ReliabilityScore,
	)
	emitRunEvent(ctx, in.EmitEvents, runID, streaming.TypeRunCompleted, "")

	return TaskResult{
		Result:           answer.Content,
		Sources:          final.SourcesGathered,
		ReliabilityScore: final.ReliabilityScore,
		LoopCount:        final.LoopCount,
		Success:          true,
	}, nil
}

// runObserver bridges executor events to metrics and, when enabled, to the
// streaming activity. Event activities are fire-and-forget; progress updates
// must never stall or fail the run.
func runObserver(runID string, emit bool) graph.Observer {
	return func(ctx workflow.Context, ev graph.Event) {
		metrics.NodeExecutions.WithLabelValues(string(ev.Node), ev.Status).Inc()
		if !emit {
			return
		}
		var evType string
		switch ev.Status {
		case "started":
			evType = streaming.TypeNodeStarted
		case "completed":
			evType = streaming.TypeNodeCompleted
		case "branch_failed":
			evType = streaming.TypeBranchUpdate
		default:
			evType = streaming.TypeNodeCompleted
		}
		workflow.ExecuteActivity(ctx, activities.NameEmitRunUpdate, activities.RunUpdateInput{
			RunID:    runID,
			Type:     evType,
			Node:     string(ev.Node),
			BranchID: ev.BranchID,
			Message:  ev.Detail,
		})
	}
}

func emitRunEvent(ctx workflow.Context, emit bool, runID, evType, msg string) {
	if !emit {
		return
	}
	_ = workflow.ExecuteActivity(ctx, activities.NameEmitRunUpdate, activities.RunUpdateInput{
		RunID:   runID,
		Type:    evType,
		Message: msg,
	}).Get(ctx, nil)
}
