package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"

	"promptab/internal/abtest"
)

type fakeChat struct {
	request  openai.ChatCompletionRequest
	response openai.ChatCompletionResponse
	err      error
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.request = request
	return f.response, f.err
}

type fakeMessages struct {
	params anthropic.MessageNewParams
	msg    *anthropic.Message
	err    error
}

func (f *fakeMessages) New(_ context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.params = body
	return f.msg, f.err
}

func TestOpenAIGenerate(t *testing.T) {
	topP, temp := 0.9, 0.2
	chat := &fakeChat{response: openai.ChatCompletionResponse{
		ID:      "chatcmpl-1",
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "summary"}}},
		Usage:   openai.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16},
	}}
	adapter := &OpenAI{client: chat}
	result, err := adapter.Generate(context.Background(), Request{
		Model:  "gpt-4o-mini",
		Prompt: "hello",
		Params: abtest.GenerationParams{Temperature: &temp, MaxTokens: 64, TopP: &topP},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "summary" || result.ProviderRequestID != "chatcmpl-1" || result.Usage.TotalTokens != 16 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if chat.request.Model != "gpt-4o-mini" || chat.request.MaxTokens != 64 || chat.request.TopP != float32(0.9) || chat.request.Temperature != float32(0.2) {
		t.Fatalf("unexpected request: %+v", chat.request)
	}
	if len(chat.request.Messages) != 1 || chat.request.Messages[0].Content != "hello" {
		t.Fatalf("unexpected messages: %+v", chat.request.Messages)
	}
}

func TestOpenAIGenerateSendsExplicitTemperature(t *testing.T) {
	zero, warm := 0.0, 0.7
	cases := []struct {
		name   string
		temp   *float64
		want   float32
		inBody bool
	}{
		{name: "unset", temp: nil, want: 0, inBody: false},
		{name: "zero", temp: &zero, want: math.SmallestNonzeroFloat32, inBody: true},
		{name: "warm", temp: &warm, want: 0.7, inBody: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chat := &fakeChat{response: openai.ChatCompletionResponse{
				Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
			}}
			adapter := &OpenAI{client: chat}
			if _, err := adapter.Generate(context.Background(), Request{Model: "gpt-4o", Params: abtest.GenerationParams{Temperature: tc.temp}}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if chat.request.Temperature != tc.want {
				t.Fatalf("expected temperature %v, got %v", tc.want, chat.request.Temperature)
			}
			body, err := json.Marshal(chat.request)
			if err != nil {
				t.Fatalf("marshal request: %v", err)
			}
			if got := strings.Contains(string(body), `"temperature"`); got != tc.inBody {
				t.Fatalf("expected temperature in body = %v, got body %s", tc.inBody, body)
			}
		})
	}
}

func TestAnthropicGeneratePassesTemperature(t *testing.T) {
	zero := 0.0
	messages := &fakeMessages{msg: &anthropic.Message{ID: "msg_2"}}
	adapter := &Anthropic{messages: messages}
	if _, err := adapter.Generate(context.Background(), Request{Model: "claude", Params: abtest.GenerationParams{Temperature: &zero}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !messages.params.Temperature.Valid() || messages.params.Temperature.Value != 0 {
		t.Fatalf("expected explicit zero temperature, got %+v", messages.params.Temperature)
	}
	if _, err := adapter.Generate(context.Background(), Request{Model: "claude"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if messages.params.Temperature.Valid() {
		t.Fatalf("expected temperature to be omitted, got %+v", messages.params.Temperature)
	}
}

func TestOpenAIGenerateClassifiesErrors(t *testing.T) {
	adapter := &OpenAI{client: &fakeChat{err: &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}}}
	_, err := adapter.Generate(context.Background(), Request{Model: "gpt-4o"})
	var providerErr *Error
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if providerErr.Kind != KindRateLimit || providerErr.Status != 429 || providerErr.Provider != OpenAIName {
		t.Fatalf("unexpected error: %+v", providerErr)
	}
}

func TestAnthropicGenerate(t *testing.T) {
	messages := &fakeMessages{msg: &anthropic.Message{
		ID:      "msg_1",
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: "part one "}, {Type: "text", Text: "part two"}},
		Usage:   anthropic.Usage{InputTokens: 20, OutputTokens: 5},
	}}
	adapter := &Anthropic{messages: messages}
	result, err := adapter.Generate(context.Background(), Request{Model: "claude-3-5-haiku-latest", Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "part one part two" || result.Usage.TotalTokens != 25 || result.ProviderRequestID != "msg_1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if messages.params.MaxTokens != defaultAnthropicMaxTokens {
		t.Fatalf("expected default max tokens, got %d", messages.params.MaxTokens)
	}
}

func TestAnthropicGenerateClassifiesErrors(t *testing.T) {
	adapter := &Anthropic{messages: &fakeMessages{err: &anthropic.Error{StatusCode: 401}}}
	_, err := adapter.Generate(context.Background(), Request{Model: "claude"})
	if Classify(err) != KindAuth {
		t.Fatalf("expected auth kind, got %q", Classify(err))
	}
}

func TestKindForStatus(t *testing.T) {
	cases := map[int]Kind{
		401: KindAuth,
		403: KindAuth,
		429: KindRateLimit,
		400: KindInvalidRequest,
		404: KindInvalidRequest,
		408: KindTransient,
		500: KindTransient,
		503: KindTransient,
	}
	for status, want := range cases {
		if got := KindForStatus(status); got != want {
			t.Fatalf("status %d: expected %s, got %s", status, want, got)
		}
	}
	if got := Classify(fmt.Errorf("dial: %w", context.DeadlineExceeded)); got != KindTransient {
		t.Fatalf("expected transient for unknown errors, got %s", got)
	}
}

func TestRouterDispatchesByProvider(t *testing.T) {
	router := NewRouter("openai")
	router.Register("OpenAI", GeneratorFunc(func(_ context.Context, req Request) (Result, error) {
		return Result{Text: "openai:" + req.Model}, nil
	}))
	router.Register("anthropic", GeneratorFunc(func(_ context.Context, req Request) (Result, error) {
		return Result{Text: "anthropic:" + req.Model}, nil
	}))

	result, err := router.Generate(context.Background(), Request{Model: "m1"})
	if err != nil || result.Text != "openai:m1" {
		t.Fatalf("expected default provider, got %+v, %v", result, err)
	}
	result, err = router.Generate(context.Background(), Request{Provider: "anthropic", Model: "m2"})
	if err != nil || result.Text != "anthropic:m2" {
		t.Fatalf("expected anthropic, got %+v, %v", result, err)
	}
	_, err = router.Generate(context.Background(), Request{Provider: "mistral"})
	if Classify(err) != KindInvalidRequest {
		t.Fatalf("expected invalid request for unknown provider, got %v", err)
	}
}

func TestFromEnvRequiresKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := FromEnv("openai"); err == nil {
		t.Fatalf("expected missing key error")
	}
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	generator, err := FromEnv("anthropic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := generator.(*Anthropic); !ok {
		t.Fatalf("expected *Anthropic, got %T", generator)
	}
	if _, err := FromEnv("unknown"); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}
