package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiLLM is an adapter for Google's Gemini models.
type GeminiLLM struct {
	client *genai.Client
	model  string
}

// NewGeminiLLM creates a new Gemini LLM adapter. An empty apiKey falls back to
// GEMINI_API_KEY, then GOOGLE_API_KEY.
func NewGeminiLLM(ctx context.Context, apiKey, model string) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini api key required: set GEMINI_API_KEY or GOOGLE_API_KEY")
		}
	}

	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiLLM{
		client: client,
		model:  model,
	}, nil
}

// Model returns the model identifier.
func (g *GeminiLLM) Model() string {
	return g.model
}

// Complete generates a completion from Gemini. System messages become the
// model's system instruction.
func (g *GeminiLLM) Complete(ctx context.Context, messages []Message, opts ...CallOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, errors.New("gemini: no messages")
	}
	options := BuildCallOptions(opts...)

	model := g.client.GenerativeModel(g.model)
	configureGeminiModel(model, options)

	system, conversation := splitSystem(messages)
	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}
	if len(conversation) == 0 {
		return nil, errors.New("gemini: no user message")
	}

	history, last := convertGeminiMessages(conversation)

	session := model.StartChat()
	session.History = history

	resp, err := session.SendMessage(ctx, last...)
	if err != nil {
		return nil, fmt.Errorf("gemini api error: %w", err)
	}

	response := &Response{
		Content: extractGeminiContent(resp),
		Model:   g.model,
	}
	if resp.UsageMetadata != nil {
		response.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != 0 {
		response.FinishReason = resp.Candidates[0].FinishReason.String()
	}

	return response, nil
}

// convertGeminiMessages splits the conversation into chat history and the
// parts of the final message to send.
func convertGeminiMessages(messages []Message) ([]*genai.Content, []genai.Part) {
	var history []*genai.Content
	for _, msg := range messages[:len(messages)-1] {
		history = append(history, &genai.Content{
			Role:  geminiRole(msg.Role),
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	last := messages[len(messages)-1]
	return history, []genai.Part{genai.Text(last.Content)}
}

func geminiRole(role string) string {
	if role == RoleUser {
		return "user"
	}
	return "model"
}

func configureGeminiModel(model *genai.GenerativeModel, options *CallOptions) {
	if options.Temperature != nil {
		temp := float32(*options.Temperature)
		model.Temperature = &temp
	}
	if options.MaxTokens != nil {
		maxTokens := int32(*options.MaxTokens)
		model.MaxOutputTokens = &maxTokens
	}
	if options.TopP != nil {
		topP := float32(*options.TopP)
		model.TopP = &topP
	}
	if options.JSON {
		model.ResponseMIMEType = "application/json"
	}
	if topK, ok := options.Extra["top_k"].(int); ok {
		k := int32(topK)
		model.TopK = &k
	}
}

func extractGeminiContent(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

// Close closes the Gemini client.
func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
