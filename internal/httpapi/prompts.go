package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/deepquery/orchestrator/internal/metrics"
	"github.com/deepquery/orchestrator/internal/prompts"
)

// PromptsHandler serves the prompt-editing API: read the active templates,
// save overrides, and reset back to the defaults.
type PromptsHandler struct {
	store  *prompts.Store
	logger *zap.Logger
}

func NewPromptsHandler(store *prompts.Store, logger *zap.Logger) *PromptsHandler {
	return &PromptsHandler{store: store, logger: logger}
}

// RegisterRoutes registers the prompt routes on the provided mux.
func (h *PromptsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/prompts", h.handlePrompts)
	mux.HandleFunc("/api/prompts/reset", h.handleReset)
	mux.HandleFunc("/api/flows", h.handleFlows)
}

// handlePrompts reads or updates the active prompt set.
// GET /api/prompts, POST /api/prompts
func (h *PromptsHandler) handlePrompts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.store.Load())
	case http.MethodPost:
		var incoming prompts.Set
		if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
			http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
			return
		}
		// Partial updates keep the current value for omitted templates.
		merged := mergePrompts(h.store.Load(), incoming)
		if err := h.store.Save(merged); err != nil {
			h.logger.Error("Failed to save prompts", zap.Error(err))
			http.Error(w, `{"error":"failed to save prompts"}`, http.StatusInternalServerError)
			return
		}
		metrics.PromptUpdates.WithLabelValues("save").Inc()
		writeJSON(w, http.StatusOK, merged)
	default:
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
	}
}

// handleReset restores the default prompt set.
// POST /api/prompts/reset
func (h *PromptsHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	defaults, err := h.store.Reset()
	if err != nil {
		h.logger.Error("Failed to reset prompts", zap.Error(err))
		http.Error(w, `{"error":"failed to reset prompts"}`, http.StatusInternalServerError)
		return
	}
	metrics.PromptUpdates.WithLabelValues("reset").Inc()
	writeJSON(w, http.StatusOK, defaults)
}

// handleFlows describes the research graph for frontend display.
// GET /api/flows
func (h *PromptsHandler) handleFlows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nodes": []string{
			"route_search_mode",
			"generate_query",
			"web_research",
			"reflection",
			"evaluate_research",
			"validate_sources",
			"finalize_answer",
			"direct_llm_response",
		},
		"profiles": []string{"standard", "deep_research"},
	})
}

func mergePrompts(current, incoming prompts.Set) prompts.Set {
	if incoming.QueryWriter != "" {
		current.QueryWriter = incoming.QueryWriter
	}
	if incoming.WebSearcher != "" {
		current.WebSearcher = incoming.WebSearcher
	}
	if incoming.Reflection != "" {
		current.Reflection = incoming.Reflection
	}
	if incoming.Answer != "" {
		current.Answer = incoming.Answer
	}
	if incoming.Direct != "" {
		current.Direct = incoming.Direct
	}
	return current
}
