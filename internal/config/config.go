// Package config loads and validates agent configuration.
//
// Configuration comes from a YAML file, with AGENTD_* environment
// variables layered on top. Free-form key=value directives reuse the
// same keys for runtime reconfiguration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full agent configuration.
type Config struct {
	AgentName string `yaml:"agent_name"`

	Store    StoreConfig `yaml:"store"`
	Loop     LoopConfig  `yaml:"loop"`
	Agent    AgentConfig `yaml:"agent"`
	Tasks    TasksConfig `yaml:"tasks"`
	LogLevel string      `yaml:"log_level"`
}

// StoreConfig selects and parameterizes the knowledge store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "memory" or "sqlite"
	Path    string `yaml:"path"`    // sqlite database file
}

// LoopConfig tunes the cognitive cycle.
type LoopConfig struct {
	CycleInterval time.Duration `yaml:"cycle_interval"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Perceive      bool          `yaml:"perceive"`
	Plan          bool          `yaml:"plan"`
	Act           bool          `yaml:"act"`
	Reflect       bool          `yaml:"reflect"`
}

// AgentConfig toggles the agent subsystems.
type AgentConfig struct {
	CognitiveLoop        bool `yaml:"cognitive_loop"`
	GoalProcessing       bool `yaml:"goal_processing"`
	KnowledgeIntegration bool `yaml:"knowledge_integration"`
}

// TasksConfig tunes the goal/task manager.
type TasksConfig struct {
	Decomposition      bool `yaml:"decomposition"`
	PriorityScheduling bool `yaml:"priority_scheduling"`
	MaxConcurrent      int  `yaml:"max_concurrent"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		AgentName: "AgentZero",
		Store: StoreConfig{
			Backend: "memory",
			Path:    filepath.Join(".agentzero", "knowledge.db"),
		},
		Loop: LoopConfig{
			CycleInterval: 1000 * time.Millisecond,
			PollInterval:  100 * time.Millisecond,
			Perceive:      true,
			Plan:          true,
			Act:           true,
			Reflect:       true,
		},
		Agent: AgentConfig{
			CognitiveLoop:        true,
			GoalProcessing:       true,
			KnowledgeIntegration: true,
		},
		Tasks: TasksConfig{
			Decomposition:      true,
			PriorityScheduling: true,
			MaxConcurrent:      1,
		},
		LogLevel: "info",
	}
}

// Load reads path, falling back to defaults when the file is absent,
// then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides layers AGENTD_* variables over the file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AGENTD_AGENT_NAME"); v != "" {
		c.AgentName = v
	}
	if v := os.Getenv("AGENTD_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("AGENTD_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("AGENTD_CYCLE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Loop.CycleInterval = d
		}
	}
	if v := os.Getenv("AGENTD_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Loop.PollInterval = d
		}
	}
	if v := os.Getenv("AGENTD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks values a typo'd file could break.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AgentName) == "" {
		return fmt.Errorf("agent_name must not be empty")
	}
	switch c.Store.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store path required for sqlite backend")
	}
	if c.Loop.CycleInterval <= 0 {
		return fmt.Errorf("cycle_interval must be positive")
	}
	if c.Loop.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.Tasks.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// ApplyDirective mutates the config from a single key=value directive.
func (c *Config) ApplyDirective(directive string) error {
	key, value, err := ParseDirective(directive)
	if err != nil {
		return err
	}
	switch key {
	case "cognitive_loop":
		c.Agent.CognitiveLoop = parseBool(value)
	case "goal_processing":
		c.Agent.GoalProcessing = parseBool(value)
	case "knowledge_integration":
		c.Agent.KnowledgeIntegration = parseBool(value)
	case "decomposition":
		c.Tasks.Decomposition = parseBool(value)
	case "priority_scheduling":
		c.Tasks.PriorityScheduling = parseBool(value)
	case "max_concurrent":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("max_concurrent: invalid value %q", value)
		}
		c.Tasks.MaxConcurrent = n
	case "cycle_interval":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("cycle_interval: invalid value %q", value)
		}
		c.Loop.CycleInterval = d
	case "log_level":
		c.LogLevel = value
	default:
		return fmt.Errorf("unknown directive key %q", key)
	}
	return nil
}

// ParseDirective splits "key=value" and normalizes both sides.
func ParseDirective(directive string) (key, value string, err error) {
	parts := strings.SplitN(directive, "=", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("directive %q is not key=value", directive)
	}
	key = strings.ToLower(strings.TrimSpace(parts[0]))
	value = strings.TrimSpace(parts[1])
	if key == "" || value == "" {
		return "", "", fmt.Errorf("directive %q has an empty side", directive)
	}
	return key, value, nil
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.ToLower(v))
	return err == nil && b
}
