package abtest

import (
	"fmt"
	"math"
	"testing"
	"time"
)

func testFixture(variantCount, inputCount int, cfg Configuration) ABTest {
	test := ABTest{ID: "test-1", Name: "fixture", Status: StatusDraft, Config: cfg}
	for i := 0; i < variantCount; i++ {
		test.Variants = append(test.Variants, PromptVariant{
			ID:       fmt.Sprintf("v%d", i+1),
			Name:     fmt.Sprintf("variant %d", i+1),
			Template: "Summarize: {{input}}",
			Model:    "gpt-3.5-turbo",
		})
	}
	for i := 0; i < inputCount; i++ {
		test.Inputs = append(test.Inputs, TestInput{ID: fmt.Sprintf("in%d", i+1), Prompt: fmt.Sprintf("text %d", i+1)})
	}
	return test
}

func TestPlanCountsFollowSplit(t *testing.T) {
	cases := []struct {
		name  string
		min   int
		split []float64
		want  []int
	}{
		{name: "even", min: 10, split: []float64{50, 50}, want: []int{5, 5}},
		{name: "uneven rounds up", min: 7, split: []float64{30, 70}, want: []int{3, 5}},
		{name: "thirds", min: 10, split: []float64{33.33, 33.33, 33.34}, want: []int{4, 4, 4}},
		{name: "zero share", min: 10, split: []float64{0, 100}, want: []int{0, 10}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			test := testFixture(len(tc.split), 3, Configuration{MinSampleSize: tc.min, TrafficSplit: tc.split})
			counts, total := PlanTotals(test)
			sum := 0
			for i, variant := range test.Variants {
				if counts[variant.ID] != tc.want[i] {
					t.Fatalf("variant %s: expected %d samples, got %d", variant.ID, tc.want[i], counts[variant.ID])
				}
				expected := int(math.Ceil(float64(tc.min)*tc.split[i]/100 - planEpsilon))
				if counts[variant.ID] != expected {
					t.Fatalf("variant %s: count %d differs from ceil formula %d", variant.ID, counts[variant.ID], expected)
				}
				sum += counts[variant.ID]
			}
			if sum != total {
				t.Fatalf("expected total %d, got %d", sum, total)
			}
			if plan := Plan(test); len(plan) != total {
				t.Fatalf("expected %d planned samples, got %d", total, len(plan))
			}
		})
	}
}

func TestPlanCyclesInputsPerVariant(t *testing.T) {
	test := testFixture(2, 3, Configuration{MinSampleSize: 10, TrafficSplit: []float64{50, 50}})
	plan := Plan(test)
	seen := map[string]int{}
	for _, sample := range plan {
		if sample.SampleIndex != seen[sample.VariantID] {
			t.Fatalf("variant %s: expected sample index %d, got %d", sample.VariantID, seen[sample.VariantID], sample.SampleIndex)
		}
		seen[sample.VariantID]++
		if sample.InputIndex != sample.SampleIndex%len(test.Inputs) {
			t.Fatalf("sample %+v: input index not round-robin", sample)
		}
		if sample.InputID != test.Inputs[sample.InputIndex].ID {
			t.Fatalf("sample %+v: input id mismatch", sample)
		}
	}
	if plan[0].VariantID != "v1" || plan[1].VariantID != "v2" {
		t.Fatalf("expected variants interleaved, got %s then %s", plan[0].VariantID, plan[1].VariantID)
	}
}

func TestTargetSamplesCappedByMax(t *testing.T) {
	cfg := Configuration{MinSampleSize: 40, MaxSampleSize: 30}
	if got := TargetSamples(cfg, 100); got != 30 {
		t.Fatalf("expected cap of 30, got %d", got)
	}
	if got := TargetSamples(cfg, 50); got != 20 {
		t.Fatalf("expected 20 below the cap, got %d", got)
	}
	cfg.MaxSampleSize = 0
	if got := TargetSamples(cfg, 100); got != 40 {
		t.Fatalf("expected uncapped 40, got %d", got)
	}
}

func TestPlanWithoutInputsIsEmpty(t *testing.T) {
	test := testFixture(2, 0, Configuration{MinSampleSize: 4, TrafficSplit: []float64{50, 50}})
	if plan := Plan(test); len(plan) != 0 {
		t.Fatalf("expected empty plan, got %d samples", len(plan))
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := Configuration{}.WithDefaults(4)
	if cfg.MinSampleSize != DefaultMinSampleSize || cfg.ConfidenceLevel != DefaultConfidenceLevel || cfg.PrimaryMetric != MetricCost {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.TrafficSplit) != 4 || cfg.TrafficSplit[0] != 25 {
		t.Fatalf("unexpected split: %v", cfg.TrafficSplit)
	}
	kept := Configuration{MinSampleSize: 3, ConfidenceLevel: 0.9, PrimaryMetric: MetricLatency, TrafficSplit: []float64{10, 90}}.WithDefaults(2)
	if kept.MinSampleSize != 3 || kept.ConfidenceLevel != 0.9 || kept.PrimaryMetric != MetricLatency || kept.TrafficSplit[1] != 90 {
		t.Fatalf("defaults overwrote explicit values: %+v", kept)
	}
}

func TestRebuildProgress(t *testing.T) {
	test := testFixture(2, 1, Configuration{MinSampleSize: 4, TrafficSplit: []float64{50, 50}})
	add := func(variantID string, cost float64, latency time.Duration) {
		result := TestResult{VariantID: variantID, Latency: latency}
		result.Cost.TotalCost = cost
		test.Results = append(test.Results, result)
	}
	add("v1", 0.001, 100*time.Millisecond)
	add("v1", 0.003, 300*time.Millisecond)
	add("v2", 0.002, 50*time.Millisecond)
	test.Errors = []SampleError{{VariantID: "v2", SampleIndex: 1}}

	progress := RebuildProgress(test, 0)
	if progress.Total != 4 || progress.Completed != 3 || progress.Failed != 1 {
		t.Fatalf("unexpected progress: %+v", progress)
	}
	if progress.Percentage != 75 {
		t.Fatalf("expected 75%%, got %v", progress.Percentage)
	}
	v1 := progress.Variants["v1"]
	if v1.SampleCount != 2 || math.Abs(v1.AverageCost-0.002) > 1e-12 || math.Abs(v1.AverageLatencyMs-200) > 1e-9 {
		t.Fatalf("unexpected v1 live metrics: %+v", v1)
	}
	clone := progress.Clone()
	clone.Variants["v1"] = VariantLive{}
	if progress.Variants["v1"].SampleCount != 2 {
		t.Fatalf("clone shares map with original")
	}
}

func TestMetricValueDefaultsQuality(t *testing.T) {
	result := TestResult{Latency: 1500 * time.Millisecond}
	if got := result.MetricValue(MetricQuality); got != DefaultQuality {
		t.Fatalf("expected default quality, got %v", got)
	}
	if got := result.MetricValue(MetricLatency); got != 1500 {
		t.Fatalf("expected latency in ms, got %v", got)
	}
	score := 0.9
	result.Quality = &score
	if got := result.MetricValue(MetricQuality); got != 0.9 {
		t.Fatalf("expected quality 0.9, got %v", got)
	}
}
