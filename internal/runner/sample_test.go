package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"promptab/internal/abtest"
	"promptab/internal/pricing"
	"promptab/internal/provider"
	"promptab/internal/testutil"
	"promptab/internal/tracing"
)

func sampleFor(model string) Sample {
	return Sample{
		TestID:      "t1",
		Variant:     abtest.PromptVariant{ID: "v1", Name: "terse", Template: "Answer: {{input}}", Model: model},
		Input:       abtest.TestInput{ID: "in1", Prompt: "why is the sky blue"},
		SampleIndex: 7,
		Context:     tracing.ContextABTest,
	}
}

// TestSampleRunnerBuildsResult verifies rendering, pricing, latency and ids.
func TestSampleRunnerBuildsResult(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	recorder := &tracing.Recorder{}
	generator := &testutil.ScriptedGenerator{
		Respond: func(_ int, req provider.Request) (provider.Result, error) {
			clock.Advance(250 * time.Millisecond)
			return testutil.FixedResult(1000, 500), nil
		},
	}
	runner := &SampleRunner{Generator: generator, Pricing: pricing.DefaultTable(), Tracer: recorder, Now: clock.Now}

	result, err := runner.Run(context.Background(), sampleFor("gpt-3.5-turbo"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := generator.Requests()[0].Prompt; got != "Answer: why is the sky blue" {
		t.Fatalf("unexpected rendered prompt %q", got)
	}
	if result.Latency != 250*time.Millisecond {
		t.Fatalf("expected latency from injected clock, got %v", result.Latency)
	}
	if result.Cost.TotalCost < 0.0025-1e-12 || result.Cost.TotalCost > 0.0025+1e-12 {
		t.Fatalf("unexpected cost %+v", result.Cost)
	}
	if result.ID == "" || result.SessionID == "" || result.TraceID == "" {
		t.Fatalf("expected generated ids, got %+v", result)
	}
	if result.VariantID != "v1" || result.InputID != "in1" || result.SampleIndex != 7 || result.TestID != "t1" {
		t.Fatalf("unexpected sample identity %+v", result)
	}
	if result.Usage.TotalTokens != 1500 {
		t.Fatalf("unexpected usage %+v", result.Usage)
	}

	spans := recorder.Spans()
	if len(spans) != 1 || spans[0].Name != SpanSample {
		t.Fatalf("expected one sample span, got %+v", spans)
	}
	if spans[0].Attrs[tracing.AttrExecutionContext] != tracing.ContextABTest || spans[0].Attrs[tracing.AttrVariantID] != "v1" {
		t.Fatalf("unexpected span attrs %+v", spans[0].Attrs)
	}
}

// TestSampleRunnerFailures verifies each failure becomes a classified BackendError.
func TestSampleRunnerFailures(t *testing.T) {
	cases := []struct {
		name      string
		sample    Sample
		respond   func(int, provider.Request) (provider.Result, error)
		wantKind  string
		wantCalls int
	}{
		{
			name: "missing variable",
			sample: func() Sample {
				s := sampleFor("gpt-3.5-turbo")
				s.Variant.Template = "Answer in {{language}}: {{input}}"
				s.Variant.Variables = []abtest.VariableDecl{{Name: "language", Required: true}}
				return s
			}(),
			wantKind:  KindRender,
			wantCalls: 0,
		},
		{
			name:      "unknown model",
			sample:    sampleFor("mystery-model"),
			wantKind:  KindPricing,
			wantCalls: 1,
		},
		{
			name:   "rate limited",
			sample: sampleFor("gpt-3.5-turbo"),
			respond: func(int, provider.Request) (provider.Result, error) {
				return provider.Result{}, &provider.Error{Provider: "openai", Kind: provider.KindRateLimit, Status: 429, Err: errors.New("slow down")}
			},
			wantKind:  string(provider.KindRateLimit),
			wantCalls: 1,
		},
		{
			name:   "unclassified",
			sample: sampleFor("gpt-3.5-turbo"),
			respond: func(int, provider.Request) (provider.Result, error) {
				return provider.Result{}, errors.New("connection reset")
			},
			wantKind:  string(provider.KindTransient),
			wantCalls: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			generator := &testutil.ScriptedGenerator{Respond: tc.respond}
			runner := NewSampleRunner(generator, pricing.DefaultTable())
			result, err := runner.Run(context.Background(), tc.sample)
			var backendErr *abtest.BackendError
			if !errors.As(err, &backendErr) {
				t.Fatalf("expected BackendError, got %v", err)
			}
			if backendErr.Kind != tc.wantKind {
				t.Fatalf("expected kind %q, got %q", tc.wantKind, backendErr.Kind)
			}
			if backendErr.SampleIndex != 7 || backendErr.VariantID != "v1" || backendErr.TestID != "t1" {
				t.Fatalf("expected sample context on error, got %+v", backendErr)
			}
			if result.ID != "" {
				t.Fatalf("expected no result alongside an error, got %+v", result)
			}
			if generator.Calls() != tc.wantCalls {
				t.Fatalf("expected %d generator calls, got %d", tc.wantCalls, generator.Calls())
			}
		})
	}
}

// TestSampleRunnerCancelled tags context cancellation separately.
func TestSampleRunnerCancelled(t *testing.T) {
	gate := make(chan struct{})
	generator := &testutil.ScriptedGenerator{Gate: gate}
	runner := NewSampleRunner(generator, pricing.DefaultTable())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Run(ctx, sampleFor("gpt-3.5-turbo"))
	var backendErr *abtest.BackendError
	if !errors.As(err, &backendErr) || backendErr.Kind != KindCancelled {
		t.Fatalf("expected cancelled BackendError, got %v", err)
	}
}
