package reasoning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillforge/internal/config"
)

func newOllamaServer(t *testing.T, handler http.HandlerFunc) (*OllamaClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewOllamaClient(config.ReasoningConfig{
		Provider: "ollama", Model: "qwen3-coder", BaseURL: srv.URL + "/", Temperature: 0.7, Timeout: "5s",
	})
	require.NoError(t, err)
	return client, srv
}

func TestOllamaCompleteWithSystem(t *testing.T) {
	var got ollamaGenerateRequest
	client, _ := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Model: "qwen3-coder", Response: "print(1)", Done: true})
	})

	out, err := client.CompleteWithSystem(context.Background(), "be terse", "write code")
	require.NoError(t, err)
	assert.Equal(t, "print(1)", out)

	assert.Equal(t, "qwen3-coder", got.Model)
	assert.Equal(t, "be terse", got.System)
	assert.Equal(t, "write code", got.Prompt)
	assert.False(t, got.Stream)
	assert.Equal(t, 0.7, got.Options["temperature"])
}

func TestOllamaErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		client, _ := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		})
		_, err := client.CompleteWithSystem(context.Background(), "", "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
		assert.Contains(t, err.Error(), "model not loaded")
	})

	t.Run("error field", func(t *testing.T) {
		client, _ := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":"out of memory"}`))
		})
		_, err := client.CompleteWithSystem(context.Background(), "", "x")
		assert.ErrorContains(t, err, "out of memory")
	})

	t.Run("bad json", func(t *testing.T) {
		client, _ := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		})
		_, err := client.CompleteWithSystem(context.Background(), "", "x")
		assert.Error(t, err)
	})

	t.Run("canceled", func(t *testing.T) {
		client, _ := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"response":"late"}`))
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := client.CompleteWithSystem(ctx, "", "x")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestOllamaHealth(t *testing.T) {
	models := `{"models":[{"name":"llama3:latest","model":"llama3:latest"},{"name":"qwen3-coder:latest","model":"qwen3-coder:latest"}]}`
	client, _ := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(models))
	})
	require.NoError(t, client.Health(context.Background()))

	models = `{"models":[{"name":"llama3:latest"}]}`
	err := client.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama pull qwen3-coder")
}

func TestNewOllamaClientDefaults(t *testing.T) {
	c, err := NewOllamaClient(config.ReasoningConfig{Model: "m", BaseURL: "gpu-box:11434"})
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434", c.baseURL)

	c, err = NewOllamaClient(config.ReasoningConfig{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, defaultOllamaURL, c.baseURL)

	_, err = NewOllamaClient(config.ReasoningConfig{})
	assert.Error(t, err)
}

func TestNewClientSelectsProvider(t *testing.T) {
	c, err := NewClient(context.Background(), config.ReasoningConfig{Provider: "ollama", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, c)
	_, ok := c.(HealthChecker)
	assert.True(t, ok)

	_, err = NewClient(context.Background(), config.ReasoningConfig{Provider: "gemini"})
	assert.Error(t, err, "gemini needs a key")

	_, err = NewClient(context.Background(), config.ReasoningConfig{Provider: "zai"})
	assert.Error(t, err)
}

func TestModelMatches(t *testing.T) {
	assert.True(t, modelMatches("qwen3-coder:latest", "qwen3-coder"))
	assert.True(t, modelMatches("qwen3-coder", "qwen3-coder:latest"))
	assert.False(t, modelMatches("qwen3-coder:7b", "qwen3-coder"))
}
