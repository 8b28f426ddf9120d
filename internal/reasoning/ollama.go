package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"skillforge/internal/config"
	"skillforge/internal/logging"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaClient calls a local Ollama server's generate endpoint.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(cfg config.ReasoningConfig) (*OllamaClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	return &OllamaClient{
		baseURL:     baseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.GetTimeout()},
	}, nil
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// CompleteWithSystem sends one non-streaming generate request.
func (c *OllamaClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	timer := logging.StartTimer(logging.CategoryReasoning, "ollama generate")
	defer timer.Stop()

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   c.model,
		System:  systemPrompt,
		Prompt:  userPrompt,
		Stream:  false,
		Options: map[string]any{"temperature": c.temperature},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}

	logging.ReasoningDebug("ollama %s: prompt_tokens=%d completion_tokens=%d", out.Model, out.PromptEvalCount, out.EvalCount)
	return out.Response, nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// Health checks that the server answers and has the configured model pulled.
func (c *OllamaClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not reachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check returned status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("failed to decode model list: %w", err)
	}
	for _, m := range tags.Models {
		if modelMatches(m.Name, c.model) || modelMatches(m.Model, c.model) {
			return nil
		}
	}
	return fmt.Errorf("model %s not found on %s (try: ollama pull %s)", c.model, c.baseURL, c.model)
}

// modelMatches treats "name" and "name:latest" as the same model.
func modelMatches(have, want string) bool {
	if have == want {
		return true
	}
	return strings.TrimSuffix(have, ":latest") == strings.TrimSuffix(want, ":latest")
}
