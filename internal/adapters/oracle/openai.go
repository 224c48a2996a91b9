package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/alejandrodnm/llmtrader/internal/ports"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/samber/lo"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI habla con cualquier endpoint compatible con chat completions.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI crea el cliente. Los reintentos los hace el sintetizador.
func NewOpenAI(cfg Config, opts ...option.RequestOption) *OpenAI {
	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{
		client: openai.NewClient(append(base, opts...)...),
		model:  lo.Ternary(cfg.Model != "", cfg.Model, defaultOpenAIModel),
	}
}

// Submit pide una respuesta en modo JSON object.
func (o *OpenAI) Submit(ctx context.Context, req ports.OracleRequest) (ports.OracleResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		Temperature: openai.Float(req.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: lo.ToPtr(shared.NewResponseFormatJSONObjectParam()),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ports.OracleResponse{}, fmt.Errorf("oracle.OpenAI: completion: %w", err)
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return ports.OracleResponse{}, fmt.Errorf("oracle.OpenAI: %w", ErrEmptyResponse)
	}
	return ports.OracleResponse{
		Provider: ProviderOpenAI,
		Model:    completion.Model,
		Content:  completion.Choices[0].Message.Content,
	}, nil
}
