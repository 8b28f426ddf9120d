// Package config holds the single configuration value that skillforge builds at
// startup and hands to every component constructor.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all skillforge configuration.
type Config struct {
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Reasoning  ReasoningConfig  `yaml:"reasoning"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Safety     SafetyConfig     `yaml:"safety"`
	Controller ControllerConfig `yaml:"controller"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root:         "./agent_workspace",
			SkillsDir:    "skills",
			ExecDir:      "exec",
			TemplatesDir: "templates",
			LedgerFile:   "memory.json",
		},

		Reasoning: ReasoningConfig{
			Provider:    "ollama",
			Model:       DefaultOllamaModel,
			BaseURL:     "http://localhost:11434",
			Temperature: 0.7,
			Timeout:     "120s",
		},

		Execution: ExecutionConfig{
			Interpreter:    "python3",
			Language:       "Python",
			FileExtension:  ".py",
			Timeout:        "15s",
			SearchPath:     "/usr/bin:/bin",
			MaxOutputBytes: 1 << 20,
		},

		Controller: ControllerConfig{
			Mode:                ModePipeline,
			Judge:               JudgeReasoning,
			MaxIterations:       12,
			HistoryWindow:       6,
			FailureContextLimit: 5,
		},

		Ledger: LedgerConfig{
			MaxFailures:      50,
			CodeExcerptBytes: 500,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if root := os.Getenv("FORGE_WORKSPACE"); root != "" {
		c.Workspace.Root = root
	}
	if provider := os.Getenv("FORGE_PROVIDER"); provider != "" && provider != c.Reasoning.Provider {
		c.Reasoning.Provider = provider
		if provider == "gemini" && c.Reasoning.Model == DefaultOllamaModel {
			c.Reasoning.Model = DefaultGeminiModel
		}
	}
	if model := os.Getenv("FORGE_MODEL"); model != "" {
		c.Reasoning.Model = model
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && c.Reasoning.Provider == "ollama" {
		c.Reasoning.BaseURL = host
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.Reasoning.Provider == "gemini" {
		c.Reasoning.APIKey = key
	}
	if mode := os.Getenv("FORGE_MODE"); mode != "" {
		c.Controller.Mode = mode
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Workspace.Root == "" {
		return fmt.Errorf("%w: workspace root is empty", ErrInvalid)
	}
	if c.Workspace.LedgerFile == "" || c.Workspace.ExecDir == "" || c.Workspace.SkillsDir == "" {
		return fmt.Errorf("%w: workspace subpaths must be set", ErrInvalid)
	}

	if !slices.Contains(ValidProviders, c.Reasoning.Provider) {
		return fmt.Errorf("%w: reasoning provider %q (valid: %v)", ErrInvalid, c.Reasoning.Provider, ValidProviders)
	}
	if c.Reasoning.Provider == "gemini" && c.Reasoning.APIKey == "" {
		return fmt.Errorf("%w: gemini provider requires an API key (set GEMINI_API_KEY)", ErrInvalid)
	}

	if c.Controller.Mode != ModePipeline && c.Controller.Mode != ModeDelegated {
		return fmt.Errorf("%w: controller mode %q", ErrInvalid, c.Controller.Mode)
	}
	if c.Controller.Judge != JudgeReasoning && c.Controller.Judge != JudgeExitCode {
		return fmt.Errorf("%w: controller judge %q", ErrInvalid, c.Controller.Judge)
	}
	if c.Controller.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be positive, got %d", ErrInvalid, c.Controller.MaxIterations)
	}
	if c.Ledger.MaxFailures < 1 {
		return fmt.Errorf("%w: ledger max_failures must be positive, got %d", ErrInvalid, c.Ledger.MaxFailures)
	}

	if c.Execution.Interpreter == "" {
		return fmt.Errorf("%w: execution interpreter is empty", ErrInvalid)
	}
	for name, value := range map[string]string{
		"execution.timeout": c.Execution.Timeout,
		"reasoning.timeout": c.Reasoning.Timeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
		}
	}

	return nil
}
