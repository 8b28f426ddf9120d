package reasoning

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"skillforge/internal/config"
	"skillforge/internal/logging"
)

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, cfg config.ReasoningConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: float32(cfg.Temperature),
	}, nil
}

// CompleteWithSystem sends one GenerateContent request.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	timer := logging.StartTimer(logging.CategoryReasoning, "gemini generate")
	defer timer.Stop()

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	if resp.UsageMetadata != nil {
		logging.ReasoningDebug("gemini %s: prompt_tokens=%d completion_tokens=%d",
			c.model, resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount)
	}
	return resp.Text(), nil
}
