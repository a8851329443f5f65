package reportserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"promptab/internal/abtest"
	duckdbtesting "promptab/internal/duckdb/testing"
	"promptab/internal/runner"
	"promptab/internal/store"
	"promptab/internal/store/storetest"
)

// seededSource returns an in-memory DuckDB store holding one completed test.
func seededSource(t *testing.T) Source {
	t.Helper()
	ctx := context.Background()
	db := duckdbtesting.Open(t, ":memory:")
	test := storetest.Fixture("served")
	test.Name = "Served <test>"
	if err := store.Seed(ctx, db, test); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for i := 0; i < 6; i++ {
		jitter := float64(i%2) * 0.00001
		for variant, cost := range map[string]float64{"served-a": 0.0001, "served-b": 0.0005} {
			result := storetest.Result(fmt.Sprintf("%s-%d", variant, i), variant, i, cost+jitter)
			if err := db.AppendResult(ctx, "served", result); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
	}
	return db
}

// writeTempDB writes a fake DuckDB file for download tests.
func writeTempDB(t *testing.T, contents string) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "report.duckdb")
	if err := os.WriteFile(dbPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp db: %v", err)
	}
	return dbPath
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	handler, err := NewHandler(Config{DBPath: writeTempDB(t, "duckdb")}, seededSource(t))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "http://example.com"+path, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

// TestNewHandlerRequiresInputs verifies configuration errors.
func TestNewHandlerRequiresInputs(t *testing.T) {
	if _, err := NewHandler(Config{}, seededSource(t)); err == nil {
		t.Fatalf("expected error for missing db path")
	}
	if _, err := NewHandler(Config{DBPath: "x.duckdb"}, nil); err == nil {
		t.Fatalf("expected error for missing source")
	}
}

// TestIndexListsTests ensures the root page links every stored test.
func TestIndexListsTests(t *testing.T) {
	resp := get(newTestHandler(t), "/")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	for _, token := range []string{`href="/tests/served"`, "Served &lt;test&gt;", "<td>12</td>"} {
		if !strings.Contains(body, token) {
			t.Fatalf("expected index to include %q:\n%s", token, body)
		}
	}
}

// TestReportPageRendersAnalysis ensures a test page names the winner.
func TestReportPageRendersAnalysis(t *testing.T) {
	resp := get(newTestHandler(t), "/tests/served")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "Winner: served-a") {
		t.Fatalf("expected winner in report:\n%s", resp.Body.String())
	}
	if resp := get(newTestHandler(t), "/tests/missing"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown test, got %d", resp.Code)
	}
}

// TestResultsEndpointReturnsJSON ensures the API returns the analysis.
func TestResultsEndpointReturnsJSON(t *testing.T) {
	resp := get(newTestHandler(t), "/api/tests/served")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var results runner.Results
	if err := json.Unmarshal(resp.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results.Test.Results) != 12 || results.Analysis.Metric != abtest.MetricCost {
		t.Fatalf("unexpected results: %d results, metric %s", len(results.Test.Results), results.Analysis.Metric)
	}
	if results.Analysis.Winner == nil || results.Analysis.Winner.VariantID != "served-a" {
		t.Fatalf("unexpected winner: %+v", results.Analysis.Winner)
	}
}

// TestDatabaseDownload ensures the DuckDB endpoint returns the file content.
func TestDatabaseDownload(t *testing.T) {
	handler := newTestHandler(t)
	resp := get(handler, "/data/db.duckdb")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if got := resp.Body.String(); got != "duckdb" {
		t.Fatalf("unexpected db payload: %s", got)
	}

	req := httptest.NewRequest(http.MethodPost, "http://example.com/data/db.duckdb", nil)
	post := httptest.NewRecorder()
	handler.ServeHTTP(post, req)
	if post.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", post.Code)
	}
}
