// Package notify delivers completion events for finished A/B tests.
package notify

import (
	"context"
	"log/slog"
	"time"

	"promptab/internal/abtest"
	"promptab/internal/runner"
	"promptab/internal/stats"
)

// Handler receives one completion. Errors are logged, never propagated to the run.
type Handler interface {
	Notify(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Event is the wire form of a finished test.
type Event struct {
	TestID     string           `json:"test_id"`
	Name       string           `json:"name"`
	Status     abtest.Status    `json:"status"`
	Reason     string           `json:"reason"`
	Completed  int              `json:"completed"`
	Failed     int              `json:"failed"`
	Total      int              `json:"total"`
	Metric     abtest.Metric    `json:"metric"`
	Outcome    stats.TestStatus `json:"outcome"`
	Winner     *stats.Winner    `json:"winner,omitempty"`
	Savings    float64          `json:"estimated_savings"`
	Variants   []EventVariant   `json:"variants"`
	FinishedAt time.Time        `json:"finished_at"`
}

// EventVariant summarizes one variant in an Event.
type EventVariant struct {
	VariantID        string  `json:"variant_id"`
	Samples          int     `json:"samples"`
	AverageCost      float64 `json:"average_cost"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// NewEvent flattens a completion into an Event.
func NewEvent(completion runner.Completion) Event {
	analysis := completion.Analysis
	event := Event{
		TestID:     completion.Test.ID,
		Name:       completion.Test.Name,
		Status:     completion.Test.Status,
		Reason:     completion.Reason,
		Completed:  completion.Progress.Completed,
		Failed:     completion.Progress.Failed,
		Total:      completion.Progress.Total,
		Metric:     analysis.Metric,
		Outcome:    analysis.Status,
		Winner:     analysis.Winner,
		Savings:    analysis.Insights.EstimatedSavings,
		FinishedAt: completion.Test.FinishedAt,
	}
	for _, variant := range analysis.Variants {
		event.Variants = append(event.Variants, EventVariant{
			VariantID:        variant.VariantID,
			Samples:          variant.TotalSamples,
			AverageCost:      variant.AverageCost,
			AverageLatencyMs: variant.AverageLatencyMs,
		})
	}
	return event
}

// Fanout calls every handler in order for each completion.
type Fanout struct {
	Handlers []Handler
	Logger   *slog.Logger
	// Timeout bounds each handler call. Zero means no bound.
	Timeout time.Duration
}

// OnComplete matches runner.Options.OnComplete.
func (f *Fanout) OnComplete(ctx context.Context, completion runner.Completion) {
	if f == nil || len(f.Handlers) == 0 {
		return
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	event := NewEvent(completion)
	for _, handler := range f.Handlers {
		if handler == nil {
			continue
		}
		if err := f.call(ctx, handler, event); err != nil {
			logger.Warn("completion notification failed", "test_id", event.TestID, "error", err)
		}
	}
}

func (f *Fanout) call(ctx context.Context, handler Handler, event Event) error {
	if f.Timeout <= 0 {
		return handler.Notify(ctx, event)
	}
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	return handler.Notify(ctx, event)
}
