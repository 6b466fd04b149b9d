// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reasoning

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/pdiddy/arxiv-digest/pkg/types"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAI calls the Chat Completions API (or any compatible gateway set via
// BaseURL).
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAI returns an OpenAI-backed Service. SDK retries are disabled.
func NewOpenAI(cfg types.AIConfig, opts ...option.RequestOption) *OpenAI {
	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		base = append(base, option.WithRequestTimeout(cfg.Timeout))
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		client:    openai.NewClient(append(base, opts...)...),
		model:     model,
		maxTokens: cfg.MaxTokens,
	}
}

// Complete sends messages at zero temperature and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(0),
	}
	if o.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.maxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &APIError{Provider: ProviderOpenAI, Err: ErrEmptyResponse}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{Provider: ProviderOpenAI, StatusCode: apiErr.StatusCode, Err: err}
	}
	return &APIError{Provider: ProviderOpenAI, Err: err}
}
