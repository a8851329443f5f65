package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"promptab/internal/abtest"
)

// VariantSummary aggregates stored results for one variant.
type VariantSummary struct {
	VariantID      string
	Samples        int
	Failures       int
	AverageCost    float64
	TotalCost      float64
	AverageLatency time.Duration
	P95Latency     time.Duration
	AverageTokens  float64
}

// VariantSummaries aggregates results per variant in SQL, ordered by variant id.
// Variants with only failures are included with zero averages.
func (s *Store) VariantSummaries(ctx context.Context, testID string) ([]VariantSummary, error) {
	if err := s.requireTest(ctx, testID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		WITH ok AS (
		  SELECT variant_id,
		         count(*) AS samples,
		         avg(total_cost) AS avg_cost,
		         sum(total_cost) AS total_cost,
		         avg(latency_ns) AS avg_latency,
		         quantile_cont(latency_ns, 0.95) AS p95_latency,
		         avg(total_tokens) AS avg_tokens
		  FROM results WHERE test_id = ? GROUP BY variant_id
		), failed AS (
		  SELECT variant_id, count(*) AS failures
		  FROM sample_errors WHERE test_id = ? GROUP BY variant_id
		)
		SELECT coalesce(ok.variant_id, failed.variant_id) AS variant_id,
		       coalesce(ok.samples, 0),
		       coalesce(failed.failures, 0),
		       coalesce(ok.avg_cost, 0),
		       coalesce(ok.total_cost, 0),
		       coalesce(ok.avg_latency, 0),
		       coalesce(ok.p95_latency, 0),
		       coalesce(ok.avg_tokens, 0)
		FROM ok FULL OUTER JOIN failed ON ok.variant_id = failed.variant_id
		ORDER BY variant_id`, testID, testID)
	if err != nil {
		return nil, fmt.Errorf("variant summaries %s: %w", testID, err)
	}
	defer rows.Close()

	var out []VariantSummary
	for rows.Next() {
		var (
			summary    VariantSummary
			samples    int64
			failures   int64
			avgLatency float64
			p95Latency float64
		)
		if err := rows.Scan(&summary.VariantID, &samples, &failures, &summary.AverageCost, &summary.TotalCost,
			&avgLatency, &p95Latency, &summary.AverageTokens); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summary.Samples = int(samples)
		summary.Failures = int(failures)
		summary.AverageLatency = time.Duration(avgLatency)
		summary.P95Latency = time.Duration(p95Latency)
		out = append(out, summary)
	}
	return out, rows.Err()
}

// TestSummary is one stored test as listed by ListTests.
type TestSummary struct {
	ID        string
	Name      string
	Status    abtest.Status
	CreatedAt time.Time
	Results   int
}

// ListTests returns every stored test with its result count, newest first.
func (s *Store) ListTests(ctx context.Context) ([]TestSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.test_id, t.definition, t.status, t.created_at, count(r.result_id)
		FROM tests t LEFT JOIN results r ON r.test_id = t.test_id
		GROUP BY t.test_id, t.definition, t.status, t.created_at
		ORDER BY t.created_at DESC NULLS LAST, t.test_id`)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()

	var out []TestSummary
	for rows.Next() {
		var (
			summary    TestSummary
			definition string
			status     string
			createdAt  sql.NullTime
			results    int64
		)
		if err := rows.Scan(&summary.ID, &definition, &status, &createdAt, &results); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		var named struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal([]byte(definition), &named); err != nil {
			return nil, fmt.Errorf("decode test %s: %w", summary.ID, err)
		}
		summary.Name = named.Name
		summary.Status = abtest.Status(status)
		summary.CreatedAt = timeOrZero(createdAt)
		summary.Results = int(results)
		out = append(out, summary)
	}
	return out, rows.Err()
}
