// Package analyzer calls the generative-model backend to turn extracted log
// findings plus retrieved historical context into a structured diagnosis.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/apperrors"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/extract"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/models"
)

const systemMessage = "You are an expert log analyst. Respond with a single JSON object and nothing else."

// Client talks to any OpenAI-compatible chat endpoint, including Ollama's /v1
// surface.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds the model client for the given endpoint.
func NewClient(endpoint, apiKey, model string) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("model endpoint is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(endpoint, "/")
	return &Client{api: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Analyze sends the extraction summary and retrieved context to the model and
// parses its structured reply. Backend and parse failures both surface as
// ModelUnavailable so the stage retry policy treats them uniformly.
func (c *Client) Analyze(ctx context.Context, summary extract.Summary, matches []models.CaseMatch) (models.ModelAnalysis, error) {
	prompt := buildPrompt(summary, matches)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return models.ModelAnalysis{}, fmt.Errorf("chat completion: %v: %w", err, apperrors.ErrModelUnavailable)
	}
	if len(resp.Choices) == 0 {
		return models.ModelAnalysis{}, fmt.Errorf("no choices in response: %w", apperrors.ErrModelUnavailable)
	}

	analysis, err := parseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return models.ModelAnalysis{}, err
	}
	analysis.ModelUsed = c.model
	return analysis, nil
}
