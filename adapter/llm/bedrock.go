package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockLLM is an adapter for models served by AWS Bedrock through the
// Converse API.
type BedrockLLM struct {
	client  *bedrockruntime.Client
	modelID string
}

// BedrockConfig configures the Bedrock adapter. Credentials default to the
// AWS default chain (env, shared config, instance role).
type BedrockConfig struct {
	ModelID         string
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// EndpointURL overrides the service endpoint, e.g. for a VPC endpoint.
	EndpointURL string
}

// NewBedrockLLM creates a new Bedrock adapter.
func NewBedrockLLM(ctx context.Context, cfg BedrockConfig) (*BedrockLLM, error) {
	if cfg.ModelID == "" {
		cfg.ModelID = "anthropic.claude-3-5-haiku-20241022-v1:0"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*bedrockruntime.Options)
	if cfg.EndpointURL != "" {
		clientOpts = append(clientOpts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		})
	}

	return &BedrockLLM{
		client:  bedrockruntime.NewFromConfig(awsConfig, clientOpts...),
		modelID: cfg.ModelID,
	}, nil
}

// Model returns the model identifier.
func (b *BedrockLLM) Model() string {
	return b.modelID
}

// Complete generates a completion through Converse.
func (b *BedrockLLM) Complete(ctx context.Context, messages []Message, opts ...CallOption) (*Response, error) {
	options := BuildCallOptions(opts...)
	bedrockMessages, systemPrompts := convertBedrockMessages(messages)

	maxTokens := 1024
	if options.MaxTokens != nil {
		maxTokens = *options.MaxTokens
	}
	inferenceConfig := &types.InferenceConfiguration{
		MaxTokens: aws.Int32(int32(maxTokens)),
	}
	if options.Temperature != nil {
		inferenceConfig.Temperature = aws.Float32(float32(*options.Temperature))
	}
	if options.TopP != nil {
		inferenceConfig.TopP = aws.Float32(float32(*options.TopP))
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(b.modelID),
		Messages:        bedrockMessages,
		InferenceConfig: inferenceConfig,
	}
	if len(systemPrompts) > 0 {
		input.System = systemPrompts
	}

	output, err := b.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock api error: %w", err)
	}

	var content strings.Builder
	if msg, ok := output.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
				content.WriteString(textBlock.Value)
			}
		}
	}

	response := &Response{
		Content:      content.String(),
		Model:        b.modelID,
		FinishReason: string(output.StopReason),
	}
	if output.Usage != nil {
		response.Usage = Usage{
			PromptTokens:     int(aws.ToInt32(output.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(output.Usage.TotalTokens)),
		}
	}
	return response, nil
}

func convertBedrockMessages(messages []Message) ([]types.Message, []types.SystemContentBlock) {
	var bedrockMessages []types.Message
	var systemPrompts []types.SystemContentBlock

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			systemPrompts = append(systemPrompts, &types.SystemContentBlockMemberText{
				Value: msg.Content,
			})
			continue
		}

		role := types.ConversationRoleAssistant
		if msg.Role == RoleUser {
			role = types.ConversationRoleUser
		}
		bedrockMessages = append(bedrockMessages, types.Message{
			Role: role,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: msg.Content},
			},
		})
	}

	return bedrockMessages, systemPrompts
}
