package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"promptab/internal/provider"
	"promptab/internal/spec"
	"promptab/internal/testutil"
)

const cliExperiment = `version: 1
test:
  id: refund-tone
  name: Refund tone
variants:
  - id: cheap
    template: "Reply tersely: {{input}}"
    model: gpt-4o-mini
  - id: premium
    template: "Reply with care: {{input}}"
    model: gpt-4
inputs:
  - id: refund
    prompt: I want my money back
config:
  min_sample_size: 10
`

// writeCLIExperiment writes payload as promptab.yml in a temp dir.
func writeCLIExperiment(t *testing.T, payload string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "promptab.yml")
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write experiment: %v", err)
	}
	return path
}

// stubGenerator swaps the provider router for a scripted generator.
func stubGenerator(t *testing.T, generator provider.Generator) {
	t.Helper()
	original := newGenerator
	newGenerator = func(spec.Experiment) (provider.Generator, error) { return generator, nil }
	t.Cleanup(func() { newGenerator = original })
}

// stubSignals replaces the interrupt context with ctx.
func stubSignals(t *testing.T, ctx context.Context) {
	t.Helper()
	original := signalContext
	signalContext = func() (context.Context, context.CancelFunc) { return context.WithCancel(ctx) }
	t.Cleanup(func() { signalContext = original })
}

// pricedByModel answers with more tokens for the premium model and a small
// per-call jitter so variances are non-zero.
func pricedByModel() *testutil.ScriptedGenerator {
	return &testutil.ScriptedGenerator{
		Respond: func(call int, req provider.Request) (provider.Result, error) {
			tokens := 40 + call%3
			if req.Model == "gpt-4" {
				tokens = 400 + call%3
			}
			return testutil.FixedResult(tokens, tokens/2), nil
		},
	}
}

// failing answers every call with a provider error.
func failing() *testutil.ScriptedGenerator {
	return &testutil.ScriptedGenerator{
		Respond: func(int, provider.Request) (provider.Result, error) {
			return provider.Result{}, provider.Wrap("openai", errors.New("upstream unavailable"))
		},
	}
}
