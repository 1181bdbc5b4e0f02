// Package metrics exposes Prometheus instrumentation for the orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepquery_runs_started_total",
			Help: "Total number of research runs started",
		},
		[]string{"profile"},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepquery_runs_completed_total",
			Help: "Total number of research runs completed",
		},
		[]string{"profile", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepquery_run_duration_seconds",
			Help:    "Research run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"profile"},
	)

	// Graph metrics
	NodeExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepquery_node_executions_total",
			Help: "Total number of graph node executions",
		},
		[]string{"node", "status"},
	)

	BranchesDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepquery_branches_dispatched_total",
			Help: "Total number of parallel search branches dispatched",
		},
	)

	LoopCycles = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepquery_loop_cycles",
			Help:    "Number of research loop cycles per run",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15},
		},
	)

	SourcesGathered = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepquery_sources_gathered",
			Help:    "Number of sources gathered per run",
			Buckets: []float64{0, 1, 3, 5, 10, 25, 50, 100},
		},
	)

	// Collaborator metrics
	ProviderDegradations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepquery_provider_degradations_total",
			Help: "Total number of degraded collaborator calls absorbed as sentinel results",
		},
		[]string{"service", "reason"},
	)

	// Prompt API metrics
	PromptUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepquery_prompt_updates_total",
			Help: "Total number of prompt configuration updates",
		},
		[]string{"action"},
	)
)
