package report

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"promptab/internal/abtest"
	"promptab/internal/pricing"
	"promptab/internal/runner"
	"promptab/internal/stats"
)

func sampleResults() runner.Results {
	test := abtest.ABTest{
		ID:     "t1",
		Name:   "Refund <tone>",
		Status: abtest.StatusCompleted,
		Variants: []abtest.PromptVariant{
			{ID: "a", Name: "terse", Model: "gpt-3.5-turbo"},
			{ID: "b", Name: "b", Model: "gpt-4o-mini"},
		},
	}
	var results []abtest.TestResult
	for i := 0; i < 10; i++ {
		jitter := 1e-6
		if i%2 == 1 {
			jitter = -jitter
		}
		results = append(results,
			abtest.TestResult{VariantID: "a", Cost: pricing.CostBreakdown{TotalCost: 0.0001 + jitter}, Latency: 400 * time.Millisecond},
			abtest.TestResult{VariantID: "b", Cost: pricing.CostBreakdown{TotalCost: 0.0005 + jitter}, Latency: 1200 * time.Millisecond},
		)
	}
	test.Results = results
	return runner.Results{
		Test:     test,
		Progress: abtest.RebuildProgress(test, 20),
		Analysis: stats.New(0.95).DetermineWinner(test.VariantIDs(), results, abtest.MetricCost),
	}
}

// TestBuildViewFormatsAnalysis verifies the display model carries the verdict.
func TestBuildViewFormatsAnalysis(t *testing.T) {
	view := BuildView(sampleResults())
	if view.Winner != "a" || view.Confidence != "95.0%" {
		t.Fatalf("unexpected winner %q %q", view.Winner, view.Confidence)
	}
	if len(view.Variants) != 2 {
		t.Fatalf("expected 2 variant rows, got %d", len(view.Variants))
	}
	first := view.Variants[0]
	if first.Label != "a (terse)" || first.Model != "gpt-3.5-turbo" || !first.Winner {
		t.Fatalf("unexpected first row %+v", first)
	}
	if view.Variants[1].Label != "b" {
		t.Fatalf("expected bare id when name repeats it, got %q", view.Variants[1].Label)
	}
	if first.Latency != "400ms" || view.Variants[1].Latency != "1.20s" {
		t.Fatalf("unexpected latency formatting %q %q", first.Latency, view.Variants[1].Latency)
	}
	if len(view.Comparisons) != 1 || view.Comparisons[0].Significant != "yes" || view.Comparisons[0].PValue != "<0.001" {
		t.Fatalf("unexpected comparisons %+v", view.Comparisons)
	}
	if !strings.Contains(view.Progress, "20 of 20") {
		t.Fatalf("unexpected progress %q", view.Progress)
	}
}

// TestRenderTextPlain verifies the uncolored terminal summary.
func TestRenderTextPlain(t *testing.T) {
	text := RenderText(BuildView(sampleResults()), TextOptions{NoColor: true})
	for _, token := range []string{"Refund <tone>", "Winner: a", "* a (terse)", "gpt-4o-mini", "a vs b", "Estimated savings"} {
		if !strings.Contains(text, token) {
			t.Fatalf("expected text report to include %q:\n%s", token, text)
		}
	}
	if strings.Contains(text, "\x1b[") {
		t.Fatalf("expected no escape codes in plain output")
	}
}

// TestRenderTextWithoutWinner verifies an empty analysis still renders.
func TestRenderTextWithoutWinner(t *testing.T) {
	results := runner.Results{Test: abtest.ABTest{ID: "t2", Status: abtest.StatusFailed}}
	text := RenderText(BuildView(results), TextOptions{NoColor: true})
	if !strings.Contains(text, "Winner: none") || !strings.Contains(text, "t2") {
		t.Fatalf("unexpected report:\n%s", text)
	}
}

// TestRenderHTML verifies the page includes results and escapes names.
func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(context.Background(), sampleResults())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, token := range []string{"<table", "Refund &lt;tone&gt;", "Winner: a", "gpt-3.5-turbo", "a vs b"} {
		if !strings.Contains(html, token) {
			t.Fatalf("expected html to include %q", token)
		}
	}
	if strings.Contains(html, "Refund <tone>") {
		t.Fatalf("expected test name to be escaped")
	}
}

// TestWriteAndLoadResults verifies results survive a file round trip.
func TestWriteAndLoadResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "t1.json")
	if err := WriteResults(path, sampleResults()); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := LoadResults(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Test.ID != "t1" || len(loaded.Test.Results) != 20 {
		t.Fatalf("unexpected loaded test %+v", loaded.Test.ID)
	}
	if loaded.Analysis.Winner == nil || loaded.Analysis.Winner.VariantID != "a" {
		t.Fatalf("expected winner to survive, got %+v", loaded.Analysis.Winner)
	}
	if _, err := LoadResults(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
