package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/httputil"
	"github.com/adpulse/adpulse/internal/provider"
)

const (
	baseURL      = "https://api.anthropic.com/v1"
	apiVersion   = "2023-06-01"
	defaultModel = "claude-haiku-4-5"
	maxTokens    = 1024
)

type Provider struct {
	apiKey string
	client *http.Client
}

func New(apiKey string) *Provider {
	return &Provider{
		apiKey: apiKey,
		client: httputil.DefaultClient(),
	}
}

func (p *Provider) ID() string {
	return "anthropic"
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Model   string `json:"model"`
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

	body, err := json.Marshal(messagesRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    provider.SystemPrompt,
		Messages: []message{
			{Role: "user", Content: provider.UserPrompt(req)},
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("anthropic error: status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}

	var msgResp messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return nil, "", fmt.Errorf("decode response: %w", err)
	}
	if len(msgResp.Content) == 0 {
		return nil, "", fmt.Errorf("%w: empty content", domain.ErrProviderError)
	}

	variants, err := provider.ParseVariants(msgResp.Content[0].Text)
	if err != nil {
		return nil, "", err
	}

	usedModel := msgResp.Model
	if usedModel == "" {
		usedModel = model
	}
	return variants, usedModel, nil
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	// Anthropic has no cheap health endpoint; a HEAD-style minimal request
	// would still be billed, so just check reachability of the API root.
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("anthropic health: status=%d", resp.StatusCode)
	}
	return nil
}
