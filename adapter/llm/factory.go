package llm

import (
	"context"
	"fmt"
	"os"
)

// Config selects and configures a provider.
type Config struct {
	// Provider is one of gemini, openai, anthropic, bedrock, ollama.
	Provider string
	Model    string
	APIKey   string
	// BaseURL applies to openai (compatible servers) and ollama.
	BaseURL string
	// Region and Profile apply to bedrock.
	Region  string
	Profile string
}

// New builds the adapter named by cfg.Provider.
func New(ctx context.Context, cfg Config) (LLM, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiLLM(ctx, cfg.APIKey, cfg.Model)
	case "openai":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai api key required: set OPENAI_API_KEY")
		}
		return NewOpenAILLM(key, cfg.Model, cfg.BaseURL), nil
	case "anthropic":
		return NewAnthropicLLM(cfg.APIKey, cfg.Model)
	case "bedrock":
		return NewBedrockLLM(ctx, BedrockConfig{
			ModelID: cfg.Model,
			Region:  cfg.Region,
			Profile: cfg.Profile,
		})
	case "ollama":
		return NewOllamaLLM(cfg.Model, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
