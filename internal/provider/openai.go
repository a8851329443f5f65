package provider

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIName is the provider name used in experiment files.
const OpenAIName = "openai"

// chatCompleter is the part of *openai.Client the adapter needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI generates completions with the chat completions API.
type OpenAI struct {
	client chatCompleter
}

// NewOpenAI builds an adapter. baseURL is optional.
func NewOpenAI(apiKey, baseURL string) (*OpenAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	config := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAI{client: openai.NewClientWithConfig(config)}, nil
}

// Generate sends the prompt as a single user message.
func (p *OpenAI) Generate(ctx context.Context, req Request) (Result, error) {
	request := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens: req.Params.MaxTokens,
	}
	if temp := req.Params.Temperature; temp != nil {
		request.Temperature = openAITemperature(*temp)
	}
	if req.Params.TopP != nil {
		request.TopP = float32(*req.Params.TopP)
	}
	if req.Params.FrequencyPenalty != nil {
		request.FrequencyPenalty = float32(*req.Params.FrequencyPenalty)
	}
	if req.Params.PresencePenalty != nil {
		request.PresencePenalty = float32(*req.Params.PresencePenalty)
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return Result{}, Wrap(OpenAIName, err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, &Error{Provider: OpenAIName, Kind: KindTransient, Err: fmt.Errorf("response %s has no choices", resp.ID)}
	}
	result := Result{
		Text:              resp.Choices[0].Message.Content,
		ProviderRequestID: resp.ID,
	}
	result.Usage.PromptTokens = resp.Usage.PromptTokens
	result.Usage.CompletionTokens = resp.Usage.CompletionTokens
	result.Usage.TotalTokens = resp.Usage.TotalTokens
	return result, nil
}

// openAITemperature converts an explicit temperature for the request. The
// client omits a zero temperature, so 0 is sent as the smallest float32.
func openAITemperature(temp float64) float32 {
	if temp == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(temp)
}
