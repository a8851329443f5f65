package runner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"promptab/internal/abtest"
	"promptab/internal/pricing"
	"promptab/internal/prompt"
	"promptab/internal/provider"
	"promptab/internal/tracing"
)

// Failure kinds recorded on SampleError besides the provider kinds.
const (
	KindRender    = "render"
	KindPricing   = "pricing"
	KindStore     = "store"
	KindCancelled = "cancelled"
)

// SpanSample is the span name recorded for every sample.
const SpanSample = "prompt.sample"

// Sample is one (variant, input) execution request.
type Sample struct {
	TestID      string
	Variant     abtest.PromptVariant
	Input       abtest.TestInput
	SampleIndex int
	SessionID   string
	// Context tags the span, tracing.ContextABTest or tracing.ContextCompareSingle.
	Context string
}

// SampleRunner executes one sample against the generation backend.
type SampleRunner struct {
	Generator provider.Generator
	Pricing   *pricing.Table
	Tracer    tracing.Sink
	Now       func() time.Time
}

// NewSampleRunner wires a runner with wall-clock time and no tracing.
func NewSampleRunner(generator provider.Generator, table *pricing.Table) *SampleRunner {
	return &SampleRunner{Generator: generator, Pricing: table}
}

// Run renders, generates and prices one sample. It returns either a result or
// a *abtest.BackendError, never both.
func (r *SampleRunner) Run(ctx context.Context, sample Sample) (abtest.TestResult, error) {
	now := r.now()
	sessionID := sample.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	attrs := map[string]any{
		tracing.AttrTestID:           sample.TestID,
		tracing.AttrVariantID:        sample.Variant.ID,
		tracing.AttrVariantName:      sample.Variant.Name,
		tracing.AttrModel:            sample.Variant.Model,
		tracing.AttrInputID:          sample.Input.ID,
		tracing.AttrSessionID:        sessionID,
		tracing.AttrSampleIndex:      sample.SampleIndex,
		tracing.AttrExecutionContext: sample.Context,
	}
	fail := func(kind string, err error) (abtest.TestResult, error) {
		attrs["error"] = err.Error()
		attrs["error.kind"] = kind
		r.tracer().RecordSpan(ctx, SpanSample, attrs)
		return abtest.TestResult{}, &abtest.BackendError{
			TestID:      sample.TestID,
			VariantID:   sample.Variant.ID,
			InputID:     sample.Input.ID,
			SampleIndex: sample.SampleIndex,
			Kind:        kind,
			Err:         err,
		}
	}

	rendered, err := prompt.Render(sample.Variant, sample.Input)
	if err != nil {
		return fail(KindRender, err)
	}

	start := r.now()
	generated, err := r.Generator.Generate(ctx, provider.Request{
		Provider: sample.Variant.Provider,
		Model:    sample.Variant.Model,
		Prompt:   rendered,
		Params:   sample.Variant.Params,
	})
	latency := r.now().Sub(start)
	attrs["latency"] = latency
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fail(KindCancelled, err)
		}
		return fail(string(provider.Classify(err)), err)
	}

	cost, err := r.Pricing.Calculate(generated.Usage.PromptTokens, generated.Usage.CompletionTokens, sample.Variant.Model)
	if err != nil {
		return fail(KindPricing, err)
	}

	usage := generated.Usage
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	result := abtest.TestResult{
		ID:                uuid.NewString(),
		TestID:            sample.TestID,
		VariantID:         sample.Variant.ID,
		InputID:           sample.Input.ID,
		SampleIndex:       sample.SampleIndex,
		Model:             sample.Variant.Model,
		Response:          generated.Text,
		Usage:             usage,
		Cost:              cost,
		Latency:           latency,
		Timestamp:         now,
		SessionID:         sessionID,
		TraceID:           uuid.NewString(),
		ProviderRequestID: generated.ProviderRequestID,
	}
	attrs["cost.total"] = cost.TotalCost
	attrs["tokens.total"] = usage.TotalTokens
	attrs["trace.id"] = result.TraceID
	r.tracer().RecordSpan(ctx, SpanSample, attrs)
	return result, nil
}

func (r *SampleRunner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *SampleRunner) tracer() tracing.Sink {
	if r.Tracer == nil {
		return tracing.Nop{}
	}
	return r.Tracer
}
