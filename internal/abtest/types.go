package abtest

import (
	"time"

	"promptab/internal/pricing"
)

// Metric is the scalar a test optimizes for.
type Metric string

const (
	// MetricCost compares total cost per sample; lower is better.
	MetricCost Metric = "cost"
	// MetricLatency compares wall-clock latency per sample; lower is better.
	MetricLatency Metric = "latency"
	// MetricQuality compares the externally supplied quality score; higher is better.
	MetricQuality Metric = "quality"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricCost, MetricLatency, MetricQuality:
		return true
	default:
		return false
	}
}

// LowerIsBetter reports the natural direction of the metric.
func (m Metric) LowerIsBetter() bool {
	return m != MetricQuality
}

// VariableDecl declares a template variable on a variant.
type VariableDecl struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Default  string `json:"default,omitempty"`
}

// GenerationParams are passed through to the generation backend.
type GenerationParams struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        int      `json:"max_tokens"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

// PromptVariant is one candidate prompt/model configuration.
type PromptVariant struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Version   int              `json:"version"`
	Template  string           `json:"template"`
	Variables []VariableDecl   `json:"variables,omitempty"`
	Provider  string           `json:"provider,omitempty"`
	Model     string           `json:"model"`
	Params    GenerationParams `json:"params"`
	Tags      []string         `json:"tags,omitempty"`
	ParentID  string           `json:"parent_id,omitempty"`
}

// TestInput is one concrete input case.
type TestInput struct {
	ID             string            `json:"id"`
	Prompt         string            `json:"prompt"`
	Variables      map[string]string `json:"variables,omitempty"`
	ExpectedOutput string            `json:"expected_output,omitempty"`
	Category       string            `json:"category,omitempty"`
}

// TokenUsage counts tokens for one generation call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TestResult is one successful sample. It is immutable once created.
type TestResult struct {
	ID                string                `json:"id"`
	TestID            string                `json:"test_id,omitempty"`
	VariantID         string                `json:"variant_id"`
	InputID           string                `json:"input_id"`
	SampleIndex       int                   `json:"sample_index"`
	Model             string                `json:"model"`
	Response          string                `json:"response"`
	Usage             TokenUsage            `json:"usage"`
	Cost              pricing.CostBreakdown `json:"cost"`
	Latency           time.Duration         `json:"latency"`
	Timestamp         time.Time             `json:"timestamp"`
	SessionID         string                `json:"session_id"`
	TraceID           string                `json:"trace_id"`
	ProviderRequestID string                `json:"provider_request_id,omitempty"`
	Quality           *float64              `json:"quality,omitempty"`
}

// SampleError records one failed sample.
type SampleError struct {
	TestID      string    `json:"test_id"`
	VariantID   string    `json:"variant_id"`
	InputID     string    `json:"input_id"`
	SampleIndex int       `json:"sample_index"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	At          time.Time `json:"at"`
}

// Configuration is the execution policy of a test.
type Configuration struct {
	MinSampleSize      int           `json:"min_sample_size" validate:"gte=1"`
	MaxSampleSize      int           `json:"max_sample_size,omitempty" validate:"gte=0"`
	ConfidenceLevel    float64       `json:"confidence_level" validate:"gt=0,lt=1"`
	TrafficSplit       []float64     `json:"traffic_split" validate:"dive,gte=0,lte=100"`
	MaxDuration        time.Duration `json:"max_duration" validate:"gte=0"`
	StopOnSignificance bool          `json:"stop_on_significance"`
	PrimaryMetric      Metric        `json:"primary_metric" validate:"oneof=cost latency quality"`
}

// ABTest is the aggregate root of an experiment.
type ABTest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Variants    []PromptVariant `json:"variants"`
	Inputs      []TestInput     `json:"inputs"`
	Config      Configuration   `json:"config"`
	Status      Status          `json:"status"`
	Results     []TestResult    `json:"results"`
	Errors      []SampleError   `json:"errors,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   time.Time       `json:"started_at,omitempty"`
	FinishedAt  time.Time       `json:"finished_at,omitempty"`
}

// VariantIDs returns the variant ids in test order.
func (t ABTest) VariantIDs() []string {
	ids := make([]string, 0, len(t.Variants))
	for _, variant := range t.Variants {
		ids = append(ids, variant.ID)
	}
	return ids
}

// Variant returns the variant with the given id.
func (t ABTest) Variant(id string) (PromptVariant, bool) {
	for _, variant := range t.Variants {
		if variant.ID == id {
			return variant, true
		}
	}
	return PromptVariant{}, false
}

// MetricValue extracts the scalar for a metric. Missing quality reads as 0.5 so
// unmeasured samples do not skew a comparison either way.
func (r TestResult) MetricValue(metric Metric) float64 {
	switch metric {
	case MetricLatency:
		return float64(r.Latency) / float64(time.Millisecond)
	case MetricQuality:
		if r.Quality == nil {
			return DefaultQuality
		}
		return *r.Quality
	default:
		return r.Cost.TotalCost
	}
}

// DefaultQuality is substituted for samples without a quality score.
const DefaultQuality = 0.5

// ResultsForVariant filters results by variant id, preserving order.
func ResultsForVariant(results []TestResult, variantID string) []TestResult {
	out := make([]TestResult, 0, len(results))
	for _, result := range results {
		if result.VariantID == variantID {
			out = append(out, result)
		}
	}
	return out
}
