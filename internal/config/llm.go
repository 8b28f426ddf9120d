package config

import "time"

// ReasoningConfig configures the reasoning collaborator.
type ReasoningConfig struct {
	Provider    string  `yaml:"provider" json:"provider,omitempty"` // ollama, gemini
	Model       string  `yaml:"model" json:"model,omitempty"`
	BaseURL     string  `yaml:"base_url" json:"base_url,omitempty"`
	APIKey      string  `yaml:"api_key" json:"api_key,omitempty"`
	Temperature float64 `yaml:"temperature" json:"temperature,omitempty"`
	Timeout     string  `yaml:"timeout" json:"timeout,omitempty"`
}

const (
	DefaultOllamaModel = "qwen3-coder"
	DefaultGeminiModel = "gemini-2.5-flash"
)

// ValidProviders lists all supported reasoning providers.
var ValidProviders = []string{"ollama", "gemini"}

// GetTimeout returns the per-request timeout as a duration.
func (c ReasoningConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}
