// Package prompts holds the editable prompt templates driving each research
// step. Custom prompts are persisted to a single JSON file beside the
// defaults; deleting that file restores the defaults.
package prompts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Set is one complete prompt configuration. JSON field names match the wire
// format of the prompt-editing API.
type Set struct {
	QueryWriter string `json:"query_writer_instructions"`
	WebSearcher string `json:"web_searcher_instructions"`
	Reflection  string `json:"reflection_instructions"`
	Answer      string `json:"answer_instructions"`
	Direct      string `json:"direct_prompt_template"`
}

// Store serves the active prompt set and persists custom overrides.
type Store struct {
	mu     sync.RWMutex
	path   string
	logger *zap.Logger
}

// NewStore creates a store persisting custom prompts at path.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load returns the custom prompt set if one has been saved, the defaults
// otherwise. A corrupt custom file falls back to defaults.
func (s *Store) Load() Set {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to read custom prompts, using defaults", zap.Error(err))
		}
		return Defaults()
	}
	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		s.logger.Warn("Custom prompts file is corrupt, using defaults", zap.Error(err))
		return Defaults()
	}
	// Partial files keep defaults for the missing entries.
	return fillDefaults(set)
}

// Save persists the given set as the custom prompt configuration.
func (s *Store) Save(set Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("prompts: marshal: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("prompts: create dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("prompts: write: %w", err)
	}
	return nil
}

// Reset deletes the custom configuration and returns the defaults.
func (s *Store) Reset() (Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Set{}, fmt.Errorf("prompts: remove custom prompts: %w", err)
	}
	return Defaults(), nil
}

func fillDefaults(set Set) Set {
	defs := Defaults()
	if set.QueryWriter == "" {
		set.QueryWriter = defs.QueryWriter
	}
	if set.WebSearcher == "" {
		set.WebSearcher = defs.WebSearcher
	}
	if set.Reflection == "" {
		set.Reflection = defs.Reflection
	}
	if set.Answer == "" {
		set.Answer = defs.Answer
	}
	if set.Direct == "" {
		set.Direct = defs.Direct
	}
	return set
}

// Render substitutes {name} placeholders in a template. Unknown placeholders
// are left intact so template typos stay visible in output.
func Render(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2+2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	pairs = append(pairs, "{current_date}", time.Now().UTC().Format("2006-01-02"))
	return strings.NewReplacer(pairs...).Replace(template)
}
