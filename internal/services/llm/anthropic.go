package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	anthropicMaxTokens    = 1024
	jsonOnlyInstruction   = "Respond with a single JSON value and nothing else."
)

// AnthropicClient implements Completer on the Anthropic Messages API.
type AnthropicClient struct {
	cfg    Config
	client anthropic.Client
}

// NewAnthropicClient constructs a Messages API client. Extra request options
// are appended after the ones derived from cfg.
func NewAnthropicClient(cfg Config, opts ...option.RequestOption) *AnthropicClient {
	cfg.Provider = ProviderAnthropic
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	requestOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.timeout()),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(base))
	}
	requestOpts = append(requestOpts, opts...)
	return &AnthropicClient{cfg: cfg, client: anthropic.NewClient(requestOpts...)}
}

// CompleteJSON sends the prompts as a single user turn and returns the first
// text block of the reply.
func (c *AnthropicClient) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := validatePrompts(c.cfg.APIKey, systemPrompt, userPrompt); err != nil {
		return "", err
	}
	system := strings.TrimSpace(systemPrompt) + "\n\n" + jsonOnlyInstruction
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: anthropicMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(strings.TrimSpace(userPrompt))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm anthropic: %w", err)
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			if text := strings.TrimSpace(block.Text); text != "" {
				return text, nil
			}
		}
	}
	return "", errors.New("llm anthropic: no text content in response")
}
