// Package config loads orchestrator configuration: service ports, Temporal
// connection, collaborator endpoints, and the named research profiles. A run
// snapshots its profile once at start; file reloads only affect later runs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Profile is a named bundle of loop-budget settings for a run.
type Profile struct {
	InitialQueryCount int  `mapstructure:"initial_query_count" json:"initial_query_count"`
	MaxLoops          int  `mapstructure:"max_loops" json:"max_loops"`
	DeepResearch      bool `mapstructure:"deep_research" json:"deep_research"`
	ValidationRounds  int  `mapstructure:"validation_rounds" json:"validation_rounds"`
}

// Profile names understood by the run entry point.
const (
	ProfileStandard     = "standard"
	ProfileDeepResearch = "deep_research"
)

// ServiceConfig holds the HTTP surface settings.
type ServiceConfig struct {
	Port        int    `mapstructure:"port"`
	FrontendDir string `mapstructure:"frontend_dir"`
	PromptsPath string `mapstructure:"prompts_path"`
}

// TemporalConfig holds the workflow engine connection settings.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// LLMConfig holds the completion service connection and per-step model
// routing. Each research step carries its own model and temperature.
type LLMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`

	QueryModel       string  `mapstructure:"query_model"`
	QueryTemperature float64 `mapstructure:"query_temperature"`

	ReflectionModel       string  `mapstructure:"reflection_model"`
	ReflectionTemperature float64 `mapstructure:"reflection_temperature"`

	AnswerModel       string  `mapstructure:"answer_model"`
	AnswerTemperature float64 `mapstructure:"answer_temperature"`

	DirectTemperature float64 `mapstructure:"direct_temperature"`
}

// SearchConfig holds the web-search service connection settings.
type SearchConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the full orchestrator configuration.
type Config struct {
	Service  ServiceConfig      `mapstructure:"service"`
	Temporal TemporalConfig     `mapstructure:"temporal"`
	LLM      LLMConfig          `mapstructure:"llm"`
	Search   SearchConfig       `mapstructure:"search"`
	Logging  LoggingConfig      `mapstructure:"logging"`
	Profiles map[string]Profile `mapstructure:"profiles"`
}

// ProfileFor resolves a profile by name, falling back to standard for
// unknown or empty names.
func (c *Config) ProfileFor(name string) Profile {
	if p, ok := c.Profiles[name]; ok {
		return p
	}
	return c.Profiles[ProfileStandard]
}

// DefaultPath is where Load looks when CONFIG_PATH is unset.
const DefaultPath = "config/orchestrator.yaml"

// ResolvePath returns the effective config file path for an explicit path,
// falling back to $CONFIG_PATH and then DefaultPath. Everything that watches
// or reads the config file must agree on this resolution.
func ResolvePath(path string) string {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}
	return path
}

// Load reads configuration from path (or $CONFIG_PATH, or DefaultPath) with
// ORCH_* environment overrides. A missing file yields pure defaults so the
// binary runs out of the box.
func Load(path string) (*Config, error) {
	path = ResolvePath(path)

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ORCH")
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	// Credentials come from the environment when absent from the file.
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("LLM_API_KEY")
	}
	if c.Search.APIKey == "" {
		c.Search.APIKey = os.Getenv("SEARCH_API_KEY")
	}

	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.port", 8080)
	v.SetDefault("service.frontend_dir", "frontend/dist")
	v.SetDefault("service.prompts_path", "config/custom_prompts.json")

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "research-orchestrator")

	v.SetDefault("llm.base_url", "http://llm-service:8000")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.query_model", "fast-writer")
	v.SetDefault("llm.query_temperature", 1.0)
	v.SetDefault("llm.reflection_model", "fast-writer")
	v.SetDefault("llm.reflection_temperature", 0.7)
	v.SetDefault("llm.answer_model", "deep-writer")
	v.SetDefault("llm.answer_temperature", 0.1)
	v.SetDefault("llm.direct_temperature", 0.3)

	v.SetDefault("search.base_url", "http://search-service:8100")
	v.SetDefault("search.timeout", "30s")

	v.SetDefault("logging.level", "info")

	v.SetDefault("profiles.standard.initial_query_count", 3)
	v.SetDefault("profiles.standard.max_loops", 2)
	v.SetDefault("profiles.standard.deep_research", false)
	v.SetDefault("profiles.standard.validation_rounds", 0)

	v.SetDefault("profiles.deep_research.initial_query_count", 8)
	v.SetDefault("profiles.deep_research.max_loops", 15)
	v.SetDefault("profiles.deep_research.deep_research", true)
	v.SetDefault("profiles.deep_research.validation_rounds", 2)
}

// Validate checks structural invariants a config must satisfy before use.
func Validate(c *Config) error {
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return fmt.Errorf("config: service.port %d out of range", c.Service.Port)
	}
	if _, ok := c.Profiles[ProfileStandard]; !ok {
		return fmt.Errorf("config: missing %q profile", ProfileStandard)
	}
	for name, p := range c.Profiles {
		if p.InitialQueryCount < 0 {
			return fmt.Errorf("config: profile %q: initial_query_count must be >= 0", name)
		}
		if p.MaxLoops < 1 {
			return fmt.Errorf("config: profile %q: max_loops must be >= 1", name)
		}
		if p.ValidationRounds < 0 {
			return fmt.Errorf("config: profile %q: validation_rounds must be >= 0", name)
		}
	}
	return nil
}
