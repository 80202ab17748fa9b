// Package openai talks to any OpenAI-compatible API (OpenAI, Gemini's compatibility
// endpoint, Ollama) for both embeddings and chat completions, and classifies failures
// into domain.ProviderError kinds.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"pdfrag/internal/domain"
)

const (
	DefaultEmbeddingModel  = "text-embedding-3-small"
	DefaultGenerationModel = "gpt-4o-mini"
)

// Config configures the client.
type Config struct {
	BaseURL        string
	APIKeyEnv      string
	EmbeddingModel string
	// HTTPClient is optional; tests point it at an httptest server.
	HTTPClient *http.Client
}

// Client implements domain.Embedder and domain.Generator. It performs a single call per
// method; retries live in the callers.
type Client struct {
	api            *openai.Client
	embeddingModel string
}

// NewClient creates a client. The API key is read from the env var named by APIKeyEnv.
// An empty key is accepted when BaseURL points somewhere other than OpenAI (Ollama).
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" && (cfg.BaseURL == "" || strings.Contains(cfg.BaseURL, "api.openai.com")) {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	return &Client{api: openai.NewClientWithConfig(oc), embeddingModel: cfg.EmbeddingModel}, nil
}

// EmbeddingModel returns the model used by Embed.
func (c *Client) EmbeddingModel() string { return c.embeddingModel }

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &domain.ProviderError{Kind: domain.ProviderOther, Err: errors.New("no embedding data returned from API")}
	}
	return resp.Data[0].Embedding, nil
}

// Generate sends prompt as a single user message to model and returns the reply text.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &domain.ProviderError{Kind: domain.ProviderOther, Err: errors.New("no response from LLM")}
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps a go-openai error onto the provider error taxonomy by HTTP status.
// Context errors are returned untouched so callers can tell timeouts apart.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return &domain.ProviderError{Kind: kindForStatus(status), Status: status, Err: err}
}

func kindForStatus(status int) domain.ProviderErrorKind {
	switch status {
	case http.StatusServiceUnavailable:
		return domain.ProviderOverloaded
	case http.StatusTooManyRequests:
		return domain.ProviderRateLimited
	default:
		return domain.ProviderOther
	}
}
