package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicLLM is an adapter for Anthropic's Messages API.
type AnthropicLLM struct {
	client anthropic.Client
	model  string
}

// NewAnthropicLLM creates a new Anthropic adapter. An empty apiKey falls back
// to ANTHROPIC_API_KEY.
func NewAnthropicLLM(apiKey, model string) (*AnthropicLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, errors.New("anthropic api key required: set ANTHROPIC_API_KEY")
		}
	}
	if model == "" {
		model = DefaultAnthropicModel
	}

	return &AnthropicLLM{
		client: anthropic.NewClient(anthropicoption.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// Model returns the model identifier.
func (a *AnthropicLLM) Model() string {
	return a.model
}

// Complete generates a completion from Claude.
func (a *AnthropicLLM) Complete(ctx context.Context, messages []Message, opts ...CallOption) (*Response, error) {
	options := BuildCallOptions(opts...)
	system, conversation := splitSystem(messages)

	maxTokens := int64(1024)
	if options.MaxTokens != nil {
		maxTokens = int64(*options.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages:  convertAnthropicMessages(conversation),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if options.Temperature != nil {
		params.Temperature = anthropic.Float(*options.Temperature)
	}
	if options.TopP != nil {
		params.TopP = anthropic.Float(*options.TopP)
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var content strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &Response{
		Content:      content.String(),
		Model:        string(message.Model),
		FinishReason: string(message.StopReason),
		Usage: Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}

func convertAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleUser {
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			continue
		}
		out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
	}
	return out
}
