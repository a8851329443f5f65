package duckdb_test

import (
	"context"
	"testing"
	"time"

	"promptab/internal/abtest"
	"promptab/internal/duckdb"
	duckdbtesting "promptab/internal/duckdb/testing"
	"promptab/internal/store"
	"promptab/internal/store/storetest"
	"promptab/internal/testutil"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return duckdbtesting.Open(t, ":memory:") })
}

// TestCanonicalJSONStable verifies canonical JSON output ignores map key order.
func TestCanonicalJSONStable(t *testing.T) {
	left, err := duckdb.CanonicalJSON(map[string]any{"model": "gpt", "params": map[string]any{"top_p": 1.0, "temp": 0.2}})
	if err != nil {
		t.Fatalf("canonical json a: %v", err)
	}
	right, err := duckdb.CanonicalJSON([]byte(`{"params":{"temp":0.2,"top_p":1.0},"model":"gpt"}`))
	if err != nil {
		t.Fatalf("canonical json b: %v", err)
	}
	if string(left) != string(right) {
		t.Fatalf("canonical json mismatch: %s vs %s", left, right)
	}
	keyA, err := duckdb.FingerprintJSON(abtest.PromptVariant{ID: "v1", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	keyB, _ := duckdb.FingerprintJSON(abtest.PromptVariant{ID: "v1", Model: "gpt-4o-mini"})
	if keyA == keyB || len(keyA) != 64 {
		t.Fatalf("unexpected fingerprints %q %q", keyA, keyB)
	}
}

func TestResultFieldsRoundTrip(t *testing.T) {
	ctx := testutil.Context(t, 5*time.Second)
	s := duckdbtesting.Open(t, ":memory:")
	if err := store.Seed(ctx, s, storetest.Fixture("rf")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	quality := 0.75
	result := storetest.Result("r1", "rf-a", 2, 0.0025)
	result.Quality = &quality
	result.ProviderRequestID = "chatcmpl-9"
	if err := s.AppendResult(ctx, "rf", result); err != nil {
		t.Fatalf("append: %v", err)
	}
	results, err := s.ListResults(ctx, "rf")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.TestID != "rf" || got.SampleIndex != 2 || got.Usage.TotalTokens != 15 || got.ProviderRequestID != "chatcmpl-9" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got.Quality == nil || *got.Quality != 0.75 || got.Cost.TotalCost != 0.0025 {
		t.Fatalf("unexpected measurements: %+v", got)
	}
	if !got.Timestamp.Equal(result.Timestamp) {
		t.Fatalf("expected timestamp %v, got %v", result.Timestamp, got.Timestamp)
	}
}

func TestVariantSummaries(t *testing.T) {
	ctx := context.Background()
	s := duckdbtesting.Open(t, ":memory:")
	if err := store.Seed(ctx, s, storetest.Fixture("vs")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for i, cost := range []float64{0.001, 0.003} {
		if err := s.AppendResult(ctx, "vs", storetest.Result("a"+string(rune('0'+i)), "vs-a", i, cost)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := s.AppendError(ctx, "vs", abtest.SampleError{VariantID: "vs-b", SampleIndex: 0, Kind: "auth", Message: "denied", At: time.Now()}); err != nil {
		t.Fatalf("append error: %v", err)
	}
	summaries, err := s.VariantSummaries(ctx, "vs")
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %+v", summaries)
	}
	a, b := summaries[0], summaries[1]
	if a.VariantID != "vs-a" || a.Samples != 2 || a.Failures != 0 {
		t.Fatalf("unexpected summary a: %+v", a)
	}
	if a.AverageCost < 0.00199 || a.AverageCost > 0.00201 || a.AverageLatency != 120*time.Millisecond {
		t.Fatalf("unexpected averages: %+v", a)
	}
	if b.VariantID != "vs-b" || b.Samples != 0 || b.Failures != 1 {
		t.Fatalf("unexpected summary b: %+v", b)
	}
}

func TestListTests(t *testing.T) {
	ctx := context.Background()
	s := duckdbtesting.Open(t, ":memory:")
	older := storetest.Fixture("older")
	newer := storetest.Fixture("newer")
	newer.Name = "latest run"
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	for _, test := range []abtest.ABTest{older, newer} {
		if err := store.Seed(ctx, s, test); err != nil {
			t.Fatalf("seed %s: %v", test.ID, err)
		}
	}
	if err := s.AppendResult(ctx, "older", storetest.Result("r1", "older-a", 0, 0.001)); err != nil {
		t.Fatalf("append: %v", err)
	}

	tests, err := s.ListTests(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tests) != 2 {
		t.Fatalf("expected 2 tests, got %+v", tests)
	}
	if tests[0].ID != "newer" || tests[0].Name != "latest run" || tests[0].Results != 0 {
		t.Fatalf("unexpected first row: %+v", tests[0])
	}
	if tests[1].ID != "older" || tests[1].Results != 1 || tests[1].Status != abtest.StatusDraft {
		t.Fatalf("unexpected second row: %+v", tests[1])
	}
}
