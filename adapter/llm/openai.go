package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAILLM is an adapter for OpenAI chat models and OpenAI-compatible
// endpoints.
type OpenAILLM struct {
	client *openai.Client
	model  string
}

// NewOpenAILLM creates a new OpenAI adapter. A non-empty baseURL points the
// client at an OpenAI-compatible server.
func NewOpenAILLM(apiKey, model, baseURL string) *OpenAILLM {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAILLM{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Model returns the model identifier.
func (o *OpenAILLM) Model() string {
	return o.model
}

// Complete generates a completion from OpenAI.
func (o *OpenAILLM) Complete(ctx context.Context, messages []Message, opts ...CallOption) (*Response, error) {
	options := BuildCallOptions(opts...)

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: convertOpenAIMessages(messages),
	}
	if options.Temperature != nil {
		req.Temperature = float32(*options.Temperature)
	}
	if options.MaxTokens != nil {
		req.MaxTokens = *options.MaxTokens
	}
	if options.TopP != nil {
		req.TopP = float32(*options.TopP)
	}
	if options.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	if stop, ok := options.Extra["stop"].([]string); ok {
		req.Stop = stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func convertOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleAssistant
		switch msg.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleUser:
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return out
}
