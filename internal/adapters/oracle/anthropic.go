package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/alejandrodnm/llmtrader/internal/adapters/httpclient"
	"github.com/alejandrodnm/llmtrader/internal/ports"
	"github.com/samber/lo"
)

const (
	defaultAnthropicBase  = "https://api.anthropic.com"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	anthropicVersion      = "2023-06-01"
	anthropicMaxTokens    = 1024
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Anthropic llama a la Messages API con el cliente HTTP compartido.
type Anthropic struct {
	http  *httpclient.Client
	url   string
	model string
}

// NewAnthropic crea el cliente.
func NewAnthropic(cfg Config, opts ...httpclient.Option) *Anthropic {
	base := strings.TrimRight(lo.Ternary(cfg.BaseURL != "", cfg.BaseURL, defaultAnthropicBase), "/")
	opts = append([]httpclient.Option{
		httpclient.WithHeader("x-api-key", cfg.APIKey),
		httpclient.WithHeader("anthropic-version", anthropicVersion),
	}, opts...)
	return &Anthropic{
		http:  httpclient.New(opts...),
		url:   base + "/v1/messages",
		model: lo.Ternary(cfg.Model != "", cfg.Model, defaultAnthropicModel),
	}
}

// Submit concatena los bloques de texto de la respuesta.
func (a *Anthropic) Submit(ctx context.Context, req ports.OracleRequest) (ports.OracleResponse, error) {
	body := anthropicRequest{
		Model:       a.model,
		System:      req.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: req.UserPrompt}},
		MaxTokens:   lo.Ternary(req.MaxTokens > 0, req.MaxTokens, anthropicMaxTokens),
		Temperature: req.Temperature,
	}

	var resp anthropicResponse
	if err := a.http.PostJSON(ctx, a.url, body, &resp); err != nil {
		return ports.OracleResponse{}, fmt.Errorf("oracle.Anthropic: messages: %w", err)
	}

	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return ports.OracleResponse{}, fmt.Errorf("oracle.Anthropic: %w", ErrEmptyResponse)
	}
	return ports.OracleResponse{
		Provider: ProviderAnthropic,
		Model:    lo.Ternary(resp.Model != "", resp.Model, a.model),
		Content:  sb.String(),
	}, nil
}
