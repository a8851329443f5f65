// Package storetest holds the behavior every store.Store must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"promptab/internal/abtest"
	"promptab/internal/pricing"
	"promptab/internal/store"
)

// Fixture returns a small draft test with two variants and two inputs.
func Fixture(id string) abtest.ABTest {
	return abtest.ABTest{
		ID:   id,
		Name: "summaries",
		Variants: []abtest.PromptVariant{
			{ID: id + "-a", Name: "terse", Version: 1, Template: "Summarize: {{input}}", Model: "gpt-3.5-turbo",
				Variables: []abtest.VariableDecl{{Name: "tone", Default: "neutral"}}, Tags: []string{"baseline"}},
			{ID: id + "-b", Name: "verbose", Version: 2, Template: "Write a {{tone}} summary of {{input}}", Model: "gpt-4o-mini",
				Params: abtest.GenerationParams{Temperature: floatPtr(0.3), MaxTokens: 128}},
		},
		Inputs: []abtest.TestInput{
			{ID: id + "-in1", Prompt: "first", Variables: map[string]string{"tone": "formal"}},
			{ID: id + "-in2", Prompt: "second", Category: "news"},
		},
		Config: abtest.Configuration{
			MinSampleSize:   4,
			ConfidenceLevel: 0.95,
			TrafficSplit:    []float64{50, 50},
			MaxDuration:     time.Minute,
			PrimaryMetric:   abtest.MetricCost,
		},
		Status:    abtest.StatusDraft,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// Result returns a sample result for a variant.
func Result(id, variantID string, index int, cost float64) abtest.TestResult {
	return abtest.TestResult{
		ID:          id,
		VariantID:   variantID,
		InputID:     "in",
		SampleIndex: index,
		Model:       "gpt-3.5-turbo",
		Response:    "ok",
		Usage:       abtest.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Cost:        pricing.CostBreakdown{PromptCost: cost / 2, CompletionCost: cost / 2, TotalCost: cost},
		Latency:     120 * time.Millisecond,
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
		SessionID:   "session-" + id,
		TraceID:     "trace-" + id,
	}
}

// Run exercises the store contract against a fresh store from open.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		s := open(t)
		test := Fixture("rt")
		if err := store.Seed(ctx, s, test); err != nil {
			t.Fatalf("seed: %v", err)
		}
		variant, err := s.GetVariant(ctx, "rt-b")
		if err != nil {
			t.Fatalf("get variant: %v", err)
		}
		if variant.Model != "gpt-4o-mini" || variant.Params.MaxTokens != 128 || variant.Version != 2 {
			t.Fatalf("unexpected variant: %+v", variant)
		}
		input, err := s.GetInput(ctx, "rt-in1")
		if err != nil {
			t.Fatalf("get input: %v", err)
		}
		if input.Variables["tone"] != "formal" {
			t.Fatalf("unexpected input: %+v", input)
		}
		got, err := s.GetTest(ctx, "rt")
		if err != nil {
			t.Fatalf("get test: %v", err)
		}
		if got.Status != abtest.StatusDraft || len(got.Variants) != 2 || len(got.Inputs) != 2 {
			t.Fatalf("unexpected test: %+v", got)
		}
		if got.Config.MinSampleSize != 4 || got.Config.PrimaryMetric != abtest.MetricCost || len(got.Config.TrafficSplit) != 2 {
			t.Fatalf("unexpected config: %+v", got.Config)
		}
	})

	t.Run("not found", func(t *testing.T) {
		s := open(t)
		if _, err := s.GetVariant(ctx, "missing"); !errors.Is(err, abtest.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if _, err := s.GetInput(ctx, "missing"); !errors.Is(err, abtest.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if _, err := s.GetTest(ctx, "missing"); !errors.Is(err, abtest.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if err := s.AppendResult(ctx, "missing", Result("r", "v", 0, 1)); !errors.Is(err, abtest.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if _, err := s.UpdateTestStatus(ctx, "missing", abtest.StatusRunning, time.Now()); !errors.Is(err, abtest.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("status transitions", func(t *testing.T) {
		s := open(t)
		if err := store.Seed(ctx, s, Fixture("st")); err != nil {
			t.Fatalf("seed: %v", err)
		}
		started := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		test, err := s.UpdateTestStatus(ctx, "st", abtest.StatusRunning, started)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if test.Status != abtest.StatusRunning || !test.StartedAt.Equal(started) {
			t.Fatalf("unexpected running test: %+v", test)
		}
		if _, err := s.UpdateTestStatus(ctx, "st", abtest.StatusDraft, started); !errors.Is(err, abtest.ErrInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
		finished := started.Add(time.Minute)
		test, err = s.UpdateTestStatus(ctx, "st", abtest.StatusCompleted, finished)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if !test.FinishedAt.Equal(finished) {
			t.Fatalf("expected finished at %v, got %v", finished, test.FinishedAt)
		}
		if _, err := s.UpdateTestStatus(ctx, "st", abtest.StatusStopped, finished); !errors.Is(err, abtest.ErrInvalidState) {
			t.Fatalf("expected terminal status to be final, got %v", err)
		}
		if err := s.PutTest(ctx, Fixture("st")); !errors.Is(err, abtest.ErrInvalidState) {
			t.Fatalf("expected redefinition after start to fail, got %v", err)
		}
	})

	t.Run("concurrent appends", func(t *testing.T) {
		s := open(t)
		if err := store.Seed(ctx, s, Fixture("ca")); err != nil {
			t.Fatalf("seed: %v", err)
		}
		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				variantID := "ca-a"
				if i%2 == 1 {
					variantID = "ca-b"
				}
				errs <- s.AppendResult(ctx, "ca", Result(resultID(i), variantID, i/2, 0.001))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		if err := s.AppendError(ctx, "ca", abtest.SampleError{TestID: "ca", VariantID: "ca-a", SampleIndex: 10, Kind: "transient", Message: "boom", At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}); err != nil {
			t.Fatalf("append error: %v", err)
		}
		results, err := s.ListResults(ctx, "ca")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(results) != 20 {
			t.Fatalf("expected 20 results, got %d", len(results))
		}
		seen := map[string]bool{}
		for _, result := range results {
			if seen[result.ID] {
				t.Fatalf("duplicate result %s", result.ID)
			}
			seen[result.ID] = true
			if result.Cost.TotalCost != 0.001 || result.Latency != 120*time.Millisecond {
				t.Fatalf("unexpected result: %+v", result)
			}
		}
		test, err := s.GetTest(ctx, "ca")
		if err != nil {
			t.Fatalf("get test: %v", err)
		}
		if len(test.Results) != 20 || len(test.Errors) != 1 || test.Errors[0].Message != "boom" {
			t.Fatalf("unexpected samples: %d results, errors %+v", len(test.Results), test.Errors)
		}
	})
}

func resultID(i int) string {
	return "r" + string(rune('a'+i))
}

func floatPtr(v float64) *float64 {
	return &v
}
