package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"

	"promptab/internal/abtest"
)

// Request is one generation call.
type Request struct {
	Provider string
	Model    string
	Prompt   string
	Params   abtest.GenerationParams
}

// Result is the text and usage returned by a backend.
type Result struct {
	Text              string
	Usage             abtest.TokenUsage
	ProviderRequestID string
}

// Generator produces a completion for a rendered prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Result, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Kind groups backend failures.
type Kind string

const (
	KindTransient      Kind = "transient"
	KindAuth           Kind = "auth"
	KindRateLimit      Kind = "rate_limit"
	KindInvalidRequest Kind = "invalid_request"
)

// Error is a classified backend failure.
type Error struct {
	Provider string
	Kind     Kind
	Status   int
	Err      error
}

func (err *Error) Error() string {
	if err.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", err.Provider, err.Kind, err.Status, err.Err)
	}
	return fmt.Sprintf("%s: %s: %v", err.Provider, err.Kind, err.Err)
}

// Unwrap returns the SDK error.
func (err *Error) Unwrap() error {
	return err.Err
}

// Wrap classifies err and tags it with the provider name.
func Wrap(providerName string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Provider: providerName, Kind: Classify(err), Status: StatusCode(err), Err: err}
}

// Classify maps an error to a Kind. Unrecognized errors are transient.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	if status := StatusCode(err); status > 0 {
		return KindForStatus(status)
	}
	return KindTransient
}

// KindForStatus maps an HTTP status code to a Kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 400 && status < 500 && status != http.StatusRequestTimeout:
		return KindInvalidRequest
	default:
		return KindTransient
	}
}

// StatusCode extracts the HTTP status from SDK error types, or 0.
func StatusCode(err error) int {
	var classified *Error
	if errors.As(err, &classified) && classified.Status > 0 {
		return classified.Status
	}
	var openaiAPIErr *openai.APIError
	if errors.As(err, &openaiAPIErr) {
		return openaiAPIErr.HTTPStatusCode
	}
	var openaiReqErr *openai.RequestError
	if errors.As(err, &openaiReqErr) {
		return openaiReqErr.HTTPStatusCode
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	return 0
}
