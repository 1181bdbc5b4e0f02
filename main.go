package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deepquery/orchestrator/internal/activities"
	"github.com/deepquery/orchestrator/internal/config"
	"github.com/deepquery/orchestrator/internal/httpapi"
	"github.com/deepquery/orchestrator/internal/llm"
	"github.com/deepquery/orchestrator/internal/prompts"
	"github.com/deepquery/orchestrator/internal/search"
	"github.com/deepquery/orchestrator/internal/streaming"
	"github.com/deepquery/orchestrator/internal/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	provider, err := config.NewProvider(os.Getenv("CONFIG_PATH"), zap.NewNop())
	if err != nil {
		return err
	}
	defer provider.Close()
	cfg := provider.Snapshot()

	logger, err := buildLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	provider.SetLogger(logger)
	if err := provider.Watch(); err != nil {
		logger.Warn("Config hot reload disabled", zap.Error(err))
	}

	logger.Info("Starting research orchestrator",
		zap.Int("port", cfg.Service.Port),
		zap.String("temporal", cfg.Temporal.HostPort),
		zap.String("task_queue", cfg.Temporal.TaskQueue),
	)

	// Collaborator clients.
	completion := llm.NewHTTPClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.LLM.Timeout,
	}, logger)
	searcher := search.NewHTTPClient(search.Config{
		BaseURL: cfg.Search.BaseURL,
		APIKey:  cfg.Search.APIKey,
		Timeout: cfg.Search.Timeout,
	}, logger)
	promptStore := prompts.NewStore(cfg.Service.PromptsPath, logger)
	streamMgr := streaming.Get()

	// Temporal worker.
	tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("temporal dial: %w", err)
	}
	defer tc.Close()

	w := worker.New(tc, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ResearchWorkflow)

	acts := activities.New(completion, searcher, promptStore, provider, streamMgr, logger)
	w.RegisterActivity(acts.GetWorkflowProfile)
	w.RegisterActivity(acts.GenerateQueries)
	w.RegisterActivity(acts.WebSearch)
	w.RegisterActivity(acts.Reflect)
	w.RegisterActivity(acts.ScoreSources)
	w.RegisterActivity(acts.ComposeAnswer)
	w.RegisterActivity(acts.DirectAnswer)
	w.RegisterActivity(acts.EmitRunUpdate)

	if err := w.Start(); err != nil {
		return fmt.Errorf("worker start: %w", err)
	}
	defer w.Stop()

	// HTTP surface.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())

	httpapi.NewResearchHandler(&httpapi.TemporalStarter{
		Client:    tc,
		TaskQueue: cfg.Temporal.TaskQueue,
	}, logger).RegisterRoutes(mux)
	httpapi.NewPromptsHandler(promptStore, logger).RegisterRoutes(mux)
	httpapi.NewStreamingHandler(streamMgr, logger).RegisterRoutes(mux)
	httpapi.NewFrontendHandler(cfg.Service.FrontendDir, logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
