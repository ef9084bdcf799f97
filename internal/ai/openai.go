package ai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible chat completion endpoint.
type OpenAIProvider struct {
	name   string
	client *openai.Client
	model  string
	apiKey string
}

// NewOpenAIProvider creates a provider. An empty baseURL keeps the OpenAI default.
func NewOpenAIProvider(name, apiKey, baseURL, model string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIProvider{
		name:   name,
		client: openai.NewClientWithConfig(config),
		model:  model,
		apiKey: apiKey,
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

// Healthy reports whether the provider is configured.
func (p *OpenAIProvider) Healthy() bool { return p.apiKey != "" }

// Generate sends the conversation and returns the first choice.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens := 300
	if req.Kind == KindInactivityNudge {
		maxTokens = 80
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    chatMessages(req),
		Temperature: 0.8,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", classify(ctx, fmt.Errorf("chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response choices", ErrUnavailable)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return text, nil
}
