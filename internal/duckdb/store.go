package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"promptab/internal/abtest"
	"promptab/internal/pricing"
)

// Store implements store.Store on a DuckDB database.
type Store struct {
	db *sql.DB
	// mu serializes writers; DuckDB rejects conflicting concurrent updates
	// of the same row instead of waiting.
	mu sync.Mutex
}

// Open connects to dsn (a file path or ":memory:") and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	store, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an open connection and applies the schema.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the connection for ad hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) GetVariant(ctx context.Context, id string) (abtest.PromptVariant, error) {
	var spec string
	err := s.db.QueryRowContext(ctx, `SELECT spec FROM variants WHERE variant_id = ?`, id).Scan(&spec)
	if errors.Is(err, sql.ErrNoRows) {
		return abtest.PromptVariant{}, &abtest.NotFoundError{Kind: "variant", ID: id}
	}
	if err != nil {
		return abtest.PromptVariant{}, fmt.Errorf("get variant %s: %w", id, err)
	}
	var variant abtest.PromptVariant
	if err := json.Unmarshal([]byte(spec), &variant); err != nil {
		return abtest.PromptVariant{}, fmt.Errorf("decode variant %s: %w", id, err)
	}
	return variant, nil
}

func (s *Store) GetInput(ctx context.Context, id string) (abtest.TestInput, error) {
	var spec string
	err := s.db.QueryRowContext(ctx, `SELECT spec FROM inputs WHERE input_id = ?`, id).Scan(&spec)
	if errors.Is(err, sql.ErrNoRows) {
		return abtest.TestInput{}, &abtest.NotFoundError{Kind: "input", ID: id}
	}
	if err != nil {
		return abtest.TestInput{}, fmt.Errorf("get input %s: %w", id, err)
	}
	var input abtest.TestInput
	if err := json.Unmarshal([]byte(spec), &input); err != nil {
		return abtest.TestInput{}, fmt.Errorf("decode input %s: %w", id, err)
	}
	return input, nil
}

func (s *Store) GetTest(ctx context.Context, id string) (abtest.ABTest, error) {
	var (
		definition string
		status     string
		createdAt  sql.NullTime
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT definition, status, created_at, started_at, finished_at FROM tests WHERE test_id = ?`, id,
	).Scan(&definition, &status, &createdAt, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return abtest.ABTest{}, &abtest.NotFoundError{Kind: "test", ID: id}
	}
	if err != nil {
		return abtest.ABTest{}, fmt.Errorf("get test %s: %w", id, err)
	}
	var test abtest.ABTest
	if err := json.Unmarshal([]byte(definition), &test); err != nil {
		return abtest.ABTest{}, fmt.Errorf("decode test %s: %w", id, err)
	}
	test.Status = abtest.Status(status)
	test.CreatedAt = timeOrZero(createdAt)
	test.StartedAt = timeOrZero(startedAt)
	test.FinishedAt = timeOrZero(finishedAt)
	if test.Results, err = s.ListResults(ctx, id); err != nil {
		return abtest.ABTest{}, err
	}
	if test.Errors, err = s.listErrors(ctx, id); err != nil {
		return abtest.ABTest{}, err
	}
	return test, nil
}

func (s *Store) PutVariant(ctx context.Context, variant abtest.PromptVariant) error {
	canonical, err := CanonicalJSON(variant)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO variants (variant_id, variant_key, spec, model, created_at)
		 VALUES (?, ?, ?, ?, now())
		 ON CONFLICT (variant_id) DO UPDATE SET variant_key = excluded.variant_key, spec = excluded.spec, model = excluded.model`,
		variant.ID, fingerprintBytes(canonical), string(canonical), variant.Model,
	)
	if err != nil {
		return fmt.Errorf("put variant %s: %w", variant.ID, err)
	}
	return nil
}

func (s *Store) PutInput(ctx context.Context, input abtest.TestInput) error {
	canonical, err := CanonicalJSON(input)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO inputs (input_id, input_key, spec, created_at)
		 VALUES (?, ?, ?, now())
		 ON CONFLICT (input_id) DO UPDATE SET input_key = excluded.input_key, spec = excluded.spec`,
		input.ID, fingerprintBytes(canonical), string(canonical),
	)
	if err != nil {
		return fmt.Errorf("put input %s: %w", input.ID, err)
	}
	return nil
}

// PutTest stores a test definition. Samples are kept in their own tables, so
// any results on test are ignored.
func (s *Store) PutTest(ctx context.Context, test abtest.ABTest) error {
	status := test.Status
	if status == "" {
		status = abtest.StatusDraft
	}
	definition := test
	definition.Results = nil
	definition.Errors = nil
	canonical, err := CanonicalJSON(definition)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var existing string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM tests WHERE test_id = ?`, test.ID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("put test %s: %w", test.ID, err)
	case abtest.Status(existing) != abtest.StatusDraft:
		return &abtest.InvalidStateError{TestID: test.ID, Status: abtest.Status(existing), Op: "redefine"}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tests (test_id, definition, status, created_at, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (test_id) DO UPDATE SET definition = excluded.definition, status = excluded.status,
		   created_at = excluded.created_at, started_at = excluded.started_at, finished_at = excluded.finished_at`,
		test.ID, string(canonical), string(status), nullTime(test.CreatedAt), nullTime(test.StartedAt), nullTime(test.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("put test %s: %w", test.ID, err)
	}
	return nil
}

func (s *Store) AppendResult(ctx context.Context, testID string, result abtest.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireTest(ctx, testID); err != nil {
		return err
	}
	var quality any
	if result.Quality != nil {
		quality = *result.Quality
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (result_id, test_id, variant_id, input_id, sample_index, model, response,
		   prompt_tokens, completion_tokens, total_tokens, prompt_cost, completion_cost, total_cost,
		   latency_ns, recorded_at, session_id, trace_id, provider_request_id, quality)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, testID, result.VariantID, result.InputID, result.SampleIndex, result.Model, result.Response,
		result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Usage.TotalTokens,
		result.Cost.PromptCost, result.Cost.CompletionCost, result.Cost.TotalCost,
		int64(result.Latency), result.Timestamp.UTC(), result.SessionID, result.TraceID,
		result.ProviderRequestID, quality,
	)
	if err != nil {
		return fmt.Errorf("append result %s: %w", result.ID, err)
	}
	return nil
}

func (s *Store) AppendError(ctx context.Context, testID string, sampleErr abtest.SampleError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireTest(ctx, testID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sample_errors (test_id, variant_id, input_id, sample_index, kind, message, failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		testID, sampleErr.VariantID, sampleErr.InputID, sampleErr.SampleIndex, sampleErr.Kind, sampleErr.Message, sampleErr.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append error for test %s: %w", testID, err)
	}
	return nil
}

func (s *Store) UpdateTestStatus(ctx context.Context, testID string, status abtest.Status, at time.Time) (abtest.ABTest, error) {
	s.mu.Lock()
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM tests WHERE test_id = ?`, testID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		s.mu.Unlock()
		return abtest.ABTest{}, &abtest.NotFoundError{Kind: "test", ID: testID}
	}
	if err != nil {
		s.mu.Unlock()
		return abtest.ABTest{}, fmt.Errorf("read status %s: %w", testID, err)
	}
	if err := abtest.Transition(testID, abtest.Status(current), status, "move to "+string(status)); err != nil {
		s.mu.Unlock()
		return abtest.ABTest{}, err
	}
	query := `UPDATE tests SET status = ? WHERE test_id = ?`
	args := []any{string(status), testID}
	switch {
	case status == abtest.StatusRunning:
		query = `UPDATE tests SET status = ?, started_at = ? WHERE test_id = ?`
		args = []any{string(status), at.UTC(), testID}
	case status.Terminal():
		query = `UPDATE tests SET status = ?, finished_at = ? WHERE test_id = ?`
		args = []any{string(status), at.UTC(), testID}
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	s.mu.Unlock()
	if err != nil {
		return abtest.ABTest{}, fmt.Errorf("update status %s: %w", testID, err)
	}
	return s.GetTest(ctx, testID)
}

func (s *Store) ListResults(ctx context.Context, testID string) ([]abtest.TestResult, error) {
	if err := s.requireTest(ctx, testID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT result_id, variant_id, input_id, sample_index, model, response,
		   prompt_tokens, completion_tokens, total_tokens, prompt_cost, completion_cost, total_cost,
		   latency_ns, recorded_at, session_id, trace_id, provider_request_id, quality
		 FROM results WHERE test_id = ? ORDER BY seq`, testID)
	if err != nil {
		return nil, fmt.Errorf("list results %s: %w", testID, err)
	}
	defer rows.Close()

	var results []abtest.TestResult
	for rows.Next() {
		var (
			result     abtest.TestResult
			latencyNs  int64
			requestID  sql.NullString
			quality    sql.NullFloat64
			breakdown  pricing.CostBreakdown
			recordedAt time.Time
		)
		if err := rows.Scan(
			&result.ID, &result.VariantID, &result.InputID, &result.SampleIndex, &result.Model, &result.Response,
			&result.Usage.PromptTokens, &result.Usage.CompletionTokens, &result.Usage.TotalTokens,
			&breakdown.PromptCost, &breakdown.CompletionCost, &breakdown.TotalCost,
			&latencyNs, &recordedAt, &result.SessionID, &result.TraceID, &requestID, &quality,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		result.TestID = testID
		result.Cost = breakdown
		result.Latency = time.Duration(latencyNs)
		result.Timestamp = recordedAt.UTC()
		result.ProviderRequestID = requestID.String
		if quality.Valid {
			value := quality.Float64
			result.Quality = &value
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func (s *Store) listErrors(ctx context.Context, testID string) ([]abtest.SampleError, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT variant_id, input_id, sample_index, kind, message, failed_at
		 FROM sample_errors WHERE test_id = ? ORDER BY seq`, testID)
	if err != nil {
		return nil, fmt.Errorf("list errors %s: %w", testID, err)
	}
	defer rows.Close()
	var out []abtest.SampleError
	for rows.Next() {
		sampleErr := abtest.SampleError{TestID: testID}
		if err := rows.Scan(&sampleErr.VariantID, &sampleErr.InputID, &sampleErr.SampleIndex, &sampleErr.Kind, &sampleErr.Message, &sampleErr.At); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		sampleErr.At = sampleErr.At.UTC()
		out = append(out, sampleErr)
	}
	return out, rows.Err()
}

func (s *Store) requireTest(ctx context.Context, testID string) error {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tests WHERE test_id = ?`, testID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return &abtest.NotFoundError{Kind: "test", ID: testID}
	}
	if err != nil {
		return fmt.Errorf("lookup test %s: %w", testID, err)
	}
	return nil
}

func nullTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC()
}

func timeOrZero(value sql.NullTime) time.Time {
	if !value.Valid {
		return time.Time{}
	}
	return value.Time.UTC()
}
