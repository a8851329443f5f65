package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicName is the provider name used in experiment files.
const AnthropicName = "anthropic"

// defaultAnthropicMaxTokens applies when a variant leaves max_tokens unset;
// the messages API requires it.
const defaultAnthropicMaxTokens = 1024

type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Anthropic generates completions with the messages API.
type Anthropic struct {
	messages messageCreator
}

// NewAnthropic builds an adapter. baseURL is optional.
func NewAnthropic(apiKey, baseURL string) (*Anthropic, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	options := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if strings.TrimSpace(baseURL) != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(options...)
	return &Anthropic{messages: &client.Messages}, nil
}

// Generate sends the prompt as a single user message.
func (p *Anthropic) Generate(ctx context.Context, req Request) (Result, error) {
	maxTokens := int64(req.Params.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Params.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Params.Temperature)
	}
	if req.Params.TopP != nil {
		params.TopP = anthropic.Float(*req.Params.TopP)
	}

	msg, err := p.messages.New(ctx, params)
	if err != nil {
		return Result{}, Wrap(AnthropicName, err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	result := Result{Text: text.String(), ProviderRequestID: msg.ID}
	result.Usage.PromptTokens = int(msg.Usage.InputTokens)
	result.Usage.CompletionTokens = int(msg.Usage.OutputTokens)
	result.Usage.TotalTokens = result.Usage.PromptTokens + result.Usage.CompletionTokens
	return result, nil
}
