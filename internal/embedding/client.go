// Package embedding wraps an OpenAI-compatible /v1/embeddings endpoint.
// Any server speaking that protocol works, including a local Ollama at
// http://localhost:11434/v1.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultBaseURL targets a local Ollama instance.
	DefaultBaseURL = "http://localhost:11434/v1"

	DefaultModel      = "nomic-embed-text"
	DefaultDimensions = 768
)

// RetryableError marks a failure as transient. The derivation worker retries
// raw records whose last error unwraps to one of these.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable reports whether err is marked transient.
func Retryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Embedder produces a fixed-dimension vector for a text. Implemented by
// Client; test doubles swap it out.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Client calls an OpenAI-compatible embeddings endpoint.
type Client struct {
	api        openai.Client
	model      string
	dimensions int
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithModel sets the embedding model name.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithDimensions sets the expected vector width. Responses of any other
// width are rejected so the store never mixes dimensionalities.
func WithDimensions(d int) Option {
	return func(c *Client) { c.dimensions = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a client against baseURL. apiKey may be any non-empty
// placeholder for servers that ignore it (Ollama does).
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if apiKey == "" {
		apiKey = "local"
	}
	c := &Client{
		api:        openai.NewClient(option.WithBaseURL(baseURL), option.WithAPIKey(apiKey)),
		model:      DefaultModel,
		dimensions: DefaultDimensions,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dimensions returns the configured vector width.
func (c *Client) Dimensions() int { return c.dimensions }

// Embed returns the vector for one text. Network and server failures come
// back as RetryableError; a dimension mismatch is permanent.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		text = " "
	}

	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		c.logger.Warn("embedding request failed", "model", c.model, "error", err)
		return nil, &RetryableError{Err: fmt.Errorf("embed: %w", err)}
	}
	if len(resp.Data) == 0 {
		return nil, &RetryableError{Err: fmt.Errorf("embed: empty response from model %s", c.model)}
	}

	raw := resp.Data[0].Embedding
	if len(raw) != c.dimensions {
		return nil, fmt.Errorf("embed: model %s returned %d dimensions, expected %d", c.model, len(raw), c.dimensions)
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
