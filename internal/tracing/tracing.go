package tracing

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys attached to sample spans.
const (
	AttrVariantID        = "variant.id"
	AttrVariantName      = "variant.name"
	AttrModel            = "model"
	AttrInputID          = "input.id"
	AttrSessionID        = "session.id"
	AttrTestID           = "test.id"
	AttrSampleIndex      = "sample.index"
	AttrExecutionContext = "execution.context"
)

// Execution context values.
const (
	ContextABTest        = "ab_test"
	ContextCompareSingle = "compare_single"
)

// Sink records spans. Implementations must not fail the caller.
type Sink interface {
	RecordSpan(ctx context.Context, name string, attrs map[string]any)
}

// Nop discards every span.
type Nop struct{}

// RecordSpan does nothing.
func (Nop) RecordSpan(context.Context, string, map[string]any) {}

// OTel emits each record as a started-and-ended span.
type OTel struct {
	tracer trace.Tracer
}

// NewOTel uses the global tracer provider when tracer is nil.
func NewOTel(tracer trace.Tracer) *OTel {
	if tracer == nil {
		tracer = otel.Tracer("promptab")
	}
	return &OTel{tracer: tracer}
}

// RecordSpan emits one span.
func (o *OTel) RecordSpan(ctx context.Context, name string, attrs map[string]any) {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := o.tracer.Start(ctx, name, trace.WithAttributes(Attributes(attrs)...))
	span.End()
}

// Attributes converts a loose map to OTel attributes in key order.
func Attributes(attrs map[string]any) []attribute.KeyValue {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]attribute.KeyValue, 0, len(keys))
	for _, key := range keys {
		out = append(out, attributeFor(key, attrs[key]))
	}
	return out
}

func attributeFor(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case time.Duration:
		return attribute.Int64(key, v.Milliseconds())
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

// Setup installs a tracer provider that writes spans to w and returns its
// shutdown func.
func Setup(w io.Writer, serviceName string) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}
	res := resource.NewWithAttributes("", attribute.String("service.name", serviceName))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// Span is a span captured by Recorder.
type Span struct {
	Name  string
	Attrs map[string]any
}

// Recorder keeps spans in memory.
type Recorder struct {
	mu    sync.Mutex
	spans []Span
}

// RecordSpan stores a copy of the attributes.
func (r *Recorder) RecordSpan(_ context.Context, name string, attrs map[string]any) {
	copied := make(map[string]any, len(attrs))
	for key, value := range attrs {
		copied[key] = value
	}
	r.mu.Lock()
	r.spans = append(r.spans, Span{Name: name, Attrs: copied})
	r.mu.Unlock()
}

// Spans returns the captured spans in record order.
func (r *Recorder) Spans() []Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Span(nil), r.spans...)
}
