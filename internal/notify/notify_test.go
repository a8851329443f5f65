package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"promptab/internal/abtest"
	"promptab/internal/runner"
	"promptab/internal/stats"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	messages []kafka.Message
	attempts int
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.failures > 0 {
		w.failures--
		return errors.New("leader not available")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func completion() runner.Completion {
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return runner.Completion{
		Test: abtest.ABTest{ID: "t1", Name: "refund tone", Status: abtest.StatusCompleted, FinishedAt: finished},
		Progress: abtest.ExecutionProgress{
			TestID: "t1", Status: abtest.StatusCompleted, Completed: 19, Failed: 1, Total: 20,
		},
		Analysis: stats.ABTestResults{
			Metric: abtest.MetricCost,
			Status: stats.StatusSignificant,
			Winner: &stats.Winner{VariantID: "a", Confidence: 0.95},
			Variants: []stats.VariantMetrics{
				{VariantID: "a", TotalSamples: 10, AverageCost: 0.0001},
				{VariantID: "b", TotalSamples: 9, AverageCost: 0.0005},
			},
			Insights: stats.Insights{EstimatedSavings: 0.0036},
		},
		Reason: "plan_exhausted",
	}
}

func TestNewEventFlattensCompletion(t *testing.T) {
	event := NewEvent(completion())
	if event.TestID != "t1" || event.Status != abtest.StatusCompleted || event.Reason != "plan_exhausted" {
		t.Fatalf("unexpected event header %+v", event)
	}
	if event.Winner == nil || event.Winner.VariantID != "a" {
		t.Fatalf("expected winner a, got %+v", event.Winner)
	}
	if len(event.Variants) != 2 || event.Variants[1].Samples != 9 {
		t.Fatalf("unexpected variants %+v", event.Variants)
	}
	if event.Completed != 19 || event.Failed != 1 || event.Total != 20 {
		t.Fatalf("unexpected counts %+v", event)
	}
}

func TestFanoutCallsEveryHandlerAndLogsFailures(t *testing.T) {
	var logs bytes.Buffer
	var seen []string
	fanout := &Fanout{
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
		Handlers: []Handler{
			HandlerFunc(func(_ context.Context, event Event) error {
				seen = append(seen, "first:"+event.TestID)
				return errors.New("webhook down")
			}),
			nil,
			HandlerFunc(func(_ context.Context, event Event) error {
				seen = append(seen, "second:"+event.TestID)
				return nil
			}),
		},
	}
	fanout.OnComplete(context.Background(), completion())

	if strings.Join(seen, ",") != "first:t1,second:t1" {
		t.Fatalf("expected both handlers in order, got %v", seen)
	}
	if !strings.Contains(logs.String(), "webhook down") {
		t.Fatalf("expected failure to be logged, got %q", logs.String())
	}
}

func TestFanoutAppliesTimeout(t *testing.T) {
	var deadline bool
	fanout := &Fanout{
		Timeout: time.Second,
		Handlers: []Handler{HandlerFunc(func(ctx context.Context, _ Event) error {
			_, deadline = ctx.Deadline()
			return nil
		})},
	}
	fanout.OnComplete(context.Background(), completion())
	if !deadline {
		t.Fatalf("expected handler context to carry a deadline")
	}
}

func TestKafkaPublisherWritesKeyedJSON(t *testing.T) {
	writer := &fakeWriter{failures: 1}
	publisher := NewKafkaPublisherWithWriter(writer, 3)
	publisher.backoff = time.Millisecond

	if err := publisher.Notify(context.Background(), NewEvent(completion())); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if writer.attempts != 2 || len(writer.messages) != 1 {
		t.Fatalf("expected one retry then success, got attempts=%d messages=%d", writer.attempts, len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "t1" {
		t.Fatalf("expected test id key, got %q", msg.Key)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Winner == nil || decoded.Winner.VariantID != "a" || decoded.Outcome != stats.StatusSignificant {
		t.Fatalf("unexpected payload %+v", decoded)
	}

	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer closed, err=%v", err)
	}
}

func TestKafkaPublisherGivesUp(t *testing.T) {
	writer := &fakeWriter{failures: 10}
	publisher := NewKafkaPublisherWithWriter(writer, 2)
	publisher.backoff = time.Millisecond

	err := publisher.Notify(context.Background(), NewEvent(completion()))
	if err == nil || !strings.Contains(err.Error(), "after 2 attempts") {
		t.Fatalf("expected exhausted attempts error, got %v", err)
	}
	if writer.attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", writer.attempts)
	}
}

func TestNewKafkaPublisherRequiresBrokersAndTopic(t *testing.T) {
	if _, err := NewKafkaPublisher(KafkaConfig{Topic: "ab-tests"}); err == nil {
		t.Fatalf("expected missing broker error")
	}
	if _, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatalf("expected missing topic error")
	}
	publisher, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "ab-tests"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	_ = publisher.Close()
}
