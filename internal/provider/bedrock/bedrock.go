package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/provider"
)

const (
	anthropicVersion = "bedrock-2023-05-31"
	defaultModel     = "nova-lite"
	maxTokens        = 1024
)

type Provider struct {
	client *bedrockruntime.Client
	region string
}

func New(ctx context.Context, region string) (*Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Provider{
		client: bedrockruntime.NewFromConfig(cfg),
		region: region,
	}, nil
}

func NewWithConfig(cfg aws.Config) *Provider {
	return &Provider{
		client: bedrockruntime.NewFromConfig(cfg),
		region: cfg.Region,
	}
}

func (p *Provider) ID() string {
	return "bedrock"
}

type invokeRequest struct {
	AnthropicVersion string          `json:"anthropic_version,omitempty"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Messages         []invokeMessage `json:"messages"`
}

type invokeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type invokeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *Provider) Generate(ctx context.Context, req domain.CreativeRequest) ([]domain.CreativeVariant, string, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	body, err := json.Marshal(invokeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		System:           provider.SystemPrompt,
		Messages: []invokeMessage{
			{Role: "user", Content: provider.UserPrompt(req)},
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}

	input := &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(mapModelID(model)),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	}

	output, err := p.client.InvokeModel(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("invoke model: %w", err)
	}

	var resp invokeResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, "", fmt.Errorf("unmarshal response: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, "", fmt.Errorf("%w: empty content", domain.ErrProviderError)
	}

	variants, err := provider.ParseVariants(text)
	if err != nil {
		return nil, "", err
	}
	return variants, model, nil
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	return nil
}

// mapModelID translates short model aliases to Bedrock model identifiers.
// Unknown values pass through so callers can address models directly.
func mapModelID(model string) string {
	modelMap := map[string]string{
		"claude-sonnet-4-5": "anthropic.claude-sonnet-4-5-20250929-v1:0",
		"claude-haiku-4-5":  "anthropic.claude-haiku-4-5-20251001-v1:0",
		"nova-pro":          "amazon.nova-pro-v1:0",
		"nova-lite":         "amazon.nova-lite-v1:0",
	}

	if mapped, ok := modelMap[model]; ok {
		return mapped
	}
	return model
}
