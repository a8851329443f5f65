package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Router dispatches a request to the generator registered for its provider.
type Router struct {
	Default    string
	generators map[string]Generator
}

// NewRouter returns an empty router. defaultProvider is used when a request
// names no provider.
func NewRouter(defaultProvider string) *Router {
	return &Router{Default: normalizeName(defaultProvider), generators: map[string]Generator{}}
}

// Register adds or replaces the generator for name.
func (r *Router) Register(name string, generator Generator) {
	r.generators[normalizeName(name)] = generator
}

// Providers returns the registered provider names, sorted.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generate routes req to its provider.
func (r *Router) Generate(ctx context.Context, req Request) (Result, error) {
	name := normalizeName(req.Provider)
	if name == "" {
		name = r.Default
	}
	generator, ok := r.generators[name]
	if !ok {
		return Result{}, &Error{Provider: name, Kind: KindInvalidRequest, Err: fmt.Errorf("no generator registered for provider %q", name)}
	}
	return generator.Generate(ctx, req)
}

// FromEnv builds the named adapter from its API key environment variable.
func FromEnv(name string) (Generator, error) {
	switch normalizeName(name) {
	case OpenAIName:
		apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required")
		}
		return NewOpenAI(apiKey, os.Getenv("OPENAI_BASE_URL"))
	case AnthropicName:
		apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
		}
		return NewAnthropic(apiKey, os.Getenv("ANTHROPIC_BASE_URL"))
	case "":
		return nil, fmt.Errorf("provider is required")
	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
}

// RouterFromEnv registers an adapter for each named provider.
func RouterFromEnv(defaultProvider string, names []string) (*Router, error) {
	router := NewRouter(defaultProvider)
	for _, name := range names {
		generator, err := FromEnv(name)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		router.Register(name, generator)
	}
	return router, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
