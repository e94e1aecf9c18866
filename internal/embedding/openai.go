// Package embedding turns log content into fixed-dimension semantic vectors.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/apperrors"
)

const (
	// DefaultDimension matches the all-minilm sentence-transformer family.
	DefaultDimension = 384

	// maxInputChars bounds the text sent to the backend; log archives can be
	// arbitrarily large but only the leading findings matter for similarity.
	maxInputChars = 16000
)

// Client generates embeddings against any OpenAI-compatible endpoint,
// including Ollama's /v1 surface.
type Client struct {
	api       *openai.Client
	model     string
	dimension int
}

// NewClient builds an embedding client for the given endpoint and model.
// A dimension of 0 selects DefaultDimension.
func NewClient(endpoint, apiKey, model string, dimension int) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	if model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if dimension == 0 {
		dimension = DefaultDimension
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(endpoint, "/")

	return &Client{
		api:       openai.NewClientWithConfig(cfg),
		model:     model,
		dimension: dimension,
	}, nil
}

func (c *Client) Dimension() int {
	return c.dimension
}

// Embed generates one vector for the text, verifying the backend returned the
// expected dimension.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %v: %w", err, apperrors.ErrEmbeddingFailed)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding in response: %w", apperrors.ErrEmbeddingFailed)
	}

	vec := resp.Data[0].Embedding
	if len(vec) != c.dimension {
		return nil, fmt.Errorf("dimension mismatch: got %d, want %d (model %s): %w",
			len(vec), c.dimension, c.model, apperrors.ErrEmbeddingFailed)
	}
	return vec, nil
}
