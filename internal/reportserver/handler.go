package reportserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"promptab/internal/abtest"
	"promptab/internal/duckdb"
	"promptab/internal/report"
	"promptab/internal/runner"
	"promptab/internal/stats"
)

const testsPath = "/tests/"

// Source reads stored tests. *duckdb.Store satisfies it.
type Source interface {
	GetTest(ctx context.Context, id string) (abtest.ABTest, error)
	ListTests(ctx context.Context) ([]duckdb.TestSummary, error)
}

// NewHandler builds the HTTP handler for browsing stored tests and
// downloading the DuckDB file.
func NewHandler(cfg Config, source Source) (http.Handler, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("reportserver: db path is required")
	}
	if source == nil {
		return nil, errors.New("reportserver: source is required")
	}
	h := &handler{source: source, logger: cfg.Logger}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.serveIndex)
	mux.HandleFunc("GET "+testsPath+"{id}", h.serveReport)
	mux.HandleFunc("GET /api/tests/{id}", h.serveResults)
	mux.Handle("/data/db.duckdb", serveDatabase(cfg.DBPath))
	return mux, nil
}

type handler struct {
	source Source
	logger *slog.Logger
}

func (h *handler) serveIndex(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.source.ListTests(r.Context())
	if err != nil {
		h.fail(w, "list tests", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.IndexHTML(r.Context(), w, report.BuildIndex(summaries, testsPath)); err != nil {
		h.logger.Error("render index", "error", err)
	}
}

// serveReport renders the HTML report of one test with a fresh analysis.
func (h *handler) serveReport(w http.ResponseWriter, r *http.Request) {
	results, ok := h.results(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.HTML(r.Context(), w, results); err != nil {
		h.logger.Error("render report", "test_id", results.Test.ID, "error", err)
	}
}

func (h *handler) serveResults(w http.ResponseWriter, r *http.Request) {
	results, ok := h.results(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(results); err != nil {
		h.logger.Error("encode results", "test_id", results.Test.ID, "error", err)
	}
}

func (h *handler) results(w http.ResponseWriter, r *http.Request) (runner.Results, bool) {
	id := r.PathValue("id")
	test, err := h.source.GetTest(r.Context(), id)
	if errors.Is(err, abtest.ErrNotFound) {
		http.Error(w, "test not found", http.StatusNotFound)
		return runner.Results{}, false
	}
	if err != nil {
		h.fail(w, "get test", err)
		return runner.Results{}, false
	}
	return runner.Analyze(stats.New(test.Config.ConfidenceLevel), test), true
}

func (h *handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// serveDatabase serves the DuckDB file from disk for offline analysis.
func serveDatabase(dbPath string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeFile(w, r, dbPath)
	})
}
