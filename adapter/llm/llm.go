// Package llm provides a small completion interface over the LLM providers
// the classifier can use.
//
// Every adapter turns a list of role-tagged messages into one text response.
// Swapping providers is a configuration change:
//
//	model, err := llm.New(ctx, llm.Config{Provider: "gemini"})
//	if err != nil {
//	    return err
//	}
//	resp, err := model.Complete(ctx, []llm.Message{
//	    llm.System("Reply with JSON only."),
//	    llm.User("status of AA123"),
//	}, llm.WithTemperature(0), llm.WithJSONResponse())
package llm

import (
	"context"
)

// Roles understood by every adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a prompt.
type Message struct {
	Role    string
	Content string
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Usage holds token counts when the provider reports them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a single completion.
type Response struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

// LLM is the minimal contract for a completion provider.
type LLM interface {
	// Complete sends messages and returns the provider's text reply. Errors are
	// provider errors (auth, quota, transport) wrapped with the provider name.
	Complete(ctx context.Context, messages []Message, opts ...CallOption) (*Response, error)

	// Model returns the model identifier, e.g. "gemini-2.0-flash".
	Model() string
}

// CallOptions holds per-call settings.
type CallOptions struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64

	// JSON asks the provider for a JSON object when it supports a response
	// format switch. Providers without one ignore it.
	JSON bool

	// Provider-specific options
	Extra map[string]interface{}
}

// CallOption is a functional option for configuring LLM calls.
type CallOption func(*CallOptions)

// WithTemperature sets the sampling temperature (typically 0.0-2.0).
func WithTemperature(temperature float64) CallOption {
	return func(opts *CallOptions) {
		opts.Temperature = &temperature
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int) CallOption {
	return func(opts *CallOptions) {
		opts.MaxTokens = &maxTokens
	}
}

// WithTopP sets the nucleus sampling parameter.
func WithTopP(topP float64) CallOption {
	return func(opts *CallOptions) {
		opts.TopP = &topP
	}
}

// WithJSONResponse requests a JSON object reply.
func WithJSONResponse() CallOption {
	return func(opts *CallOptions) {
		opts.JSON = true
	}
}

// WithExtra adds a provider-specific option.
func WithExtra(key string, value interface{}) CallOption {
	return func(opts *CallOptions) {
		if opts.Extra == nil {
			opts.Extra = make(map[string]interface{})
		}
		opts.Extra[key] = value
	}
}

// BuildCallOptions creates CallOptions from functional options.
func BuildCallOptions(opts ...CallOption) *CallOptions {
	options := &CallOptions{
		Extra: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// splitSystem separates system messages from the conversation, joining
// several system messages with blank lines.
func splitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
