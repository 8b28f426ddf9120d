package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 12, cfg.Controller.MaxIterations)
	assert.Equal(t, 50, cfg.Ledger.MaxFailures)
	assert.Equal(t, 15*time.Second, cfg.Execution.GetTimeout())
	assert.Equal(t, 120*time.Second, cfg.Reasoning.GetTimeout())
	assert.Equal(t, ModePipeline, cfg.Controller.Mode)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Execution, cfg.Execution)
}

func TestLoadMergesYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forge.yaml")
	content := `
workspace:
  root: /tmp/ws
controller:
  mode: delegated
  max_iterations: 3
execution:
  timeout: 2s
safety:
  extra_patterns:
    - '\brequests\.get\s*\('
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/ws", cfg.Workspace.Root)
	assert.Equal(t, "memory.json", cfg.Workspace.LedgerFile, "unset keys keep defaults")
	assert.Equal(t, ModeDelegated, cfg.Controller.Mode)
	assert.Equal(t, 3, cfg.Controller.MaxIterations)
	assert.Equal(t, 2*time.Second, cfg.Execution.GetTimeout())
	assert.Equal(t, []string{`\brequests\.get\s*\(`}, cfg.Safety.ExtraPatterns)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("controller: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "forge.yaml")
	cfg := DefaultConfig()
	cfg.Controller.Templates = []string{"python_generator"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Controller, loaded.Controller)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("workspace and model", func(t *testing.T) {
		t.Setenv("FORGE_WORKSPACE", "/srv/forge")
		t.Setenv("FORGE_MODEL", "glm-4.7-flash")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/srv/forge", cfg.Workspace.Root)
		assert.Equal(t, "glm-4.7-flash", cfg.Reasoning.Model)
	})

	t.Run("OLLAMA_HOST only applies to ollama", func(t *testing.T) {
		t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "http://gpu-box:11434", cfg.Reasoning.BaseURL)

		cfg = DefaultConfig()
		cfg.Reasoning.Provider = "gemini"
		cfg.Reasoning.BaseURL = ""
		cfg.applyEnvOverrides()
		assert.Empty(t, cfg.Reasoning.BaseURL)
	})

	t.Run("gemini key with provider switch", func(t *testing.T) {
		t.Setenv("FORGE_PROVIDER", "gemini")
		t.Setenv("GEMINI_API_KEY", "g-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gemini", cfg.Reasoning.Provider)
		assert.Equal(t, "g-key", cfg.Reasoning.APIKey)
		assert.Equal(t, DefaultGeminiModel, cfg.Reasoning.Model, "ollama default model is swapped")
		require.NoError(t, cfg.Validate())
	})

	t.Run("mode", func(t *testing.T) {
		t.Setenv("FORGE_MODE", ModeDelegated)

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, ModeDelegated, cfg.Controller.Mode)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Reasoning.Provider = "zai" }},
		{"gemini without key", func(c *Config) { c.Reasoning.Provider = "gemini" }},
		{"unknown mode", func(c *Config) { c.Controller.Mode = "graph" }},
		{"unknown judge", func(c *Config) { c.Controller.Judge = "vibes" }},
		{"zero iterations", func(c *Config) { c.Controller.MaxIterations = 0 }},
		{"zero failures", func(c *Config) { c.Ledger.MaxFailures = 0 }},
		{"empty root", func(c *Config) { c.Workspace.Root = "" }},
		{"empty interpreter", func(c *Config) { c.Execution.Interpreter = "" }},
		{"bad timeout", func(c *Config) { c.Execution.Timeout = "soon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestWorkspacePaths(t *testing.T) {
	ws := WorkspaceConfig{Root: "/ws", SkillsDir: "skills", ExecDir: "exec", TemplatesDir: "templates", LedgerFile: "memory.json"}

	assert.Equal(t, "/ws", ws.RootPath())
	assert.Equal(t, "/ws/skills", ws.SkillsPath())
	assert.Equal(t, "/ws/exec", ws.ExecPath())
	assert.Equal(t, "/ws/templates", ws.TemplatesPath())
	assert.Equal(t, "/ws/memory.json", ws.LedgerPath())
}

func TestLoggingBackend(t *testing.T) {
	lc := LoggingConfig{Level: "debug", Format: "json", File: "x.log", Categories: map[string]bool{"sandbox": false}}
	b := lc.Backend()
	assert.Equal(t, "debug", b.Level)
	assert.Equal(t, "json", b.Format)
	assert.False(t, b.Categories["sandbox"])
}
