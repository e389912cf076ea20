package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when the configuration does not name one.
const DefaultModel = "claude-sonnet-4-20250514"

// DefaultMaxTokens caps answer length for chat-sized replies.
const DefaultMaxTokens = 1024

// AnthropicConfig configures the Claude-backed completer.
type AnthropicConfig struct {
	// APIKey authenticates against the Anthropic API.
	APIKey string

	// Model selects the Claude model. Defaults to DefaultModel.
	Model string

	// MaxTokens caps the answer length. Defaults to DefaultMaxTokens.
	MaxTokens int

	// BaseURL overrides the API endpoint, for proxies and tests.
	BaseURL string
}

// AnthropicCompleter implements Completer over the Anthropic Messages API.
// Safe for concurrent use; each Complete call is an independent request.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicCompleter builds a completer from the given configuration.
func NewAnthropicCompleter(config AnthropicConfig) (*AnthropicCompleter, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicCompleter{
		client:    anthropic.NewClient(options...),
		model:     config.Model,
		maxTokens: int64(config.MaxTokens),
	}, nil
}

// Complete sends the question to Claude and returns the answer text.
// scopeID narrows the assistant's context to one workspace; retrieval
// happens upstream, so here it only anchors the system prompt.
func (c *AnthropicCompleter) Complete(ctx context.Context, question, scopeID string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", errors.New("anthropic: empty question")
	}

	system := "You are a helpful workspace assistant. Answer concisely."
	if scopeID != "" {
		system = fmt.Sprintf("%s Scope your answer to workspace %s.", system, scopeID)
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(question)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: completion failed: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	answer := strings.TrimSpace(b.String())
	if answer == "" {
		return "", errors.New("anthropic: empty completion")
	}
	return answer, nil
}
