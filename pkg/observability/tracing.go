// Package observability provides OpenTelemetry tracing for slotpool.
package observability

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ajitpratap0/slotpool"

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
	// Writer receives exported spans; stdout when nil
	Writer      io.Writer
	PrettyPrint bool
	// Synchronous exports each span as it ends instead of batching
	Synchronous    bool
	BatchTimeout   time.Duration
	MaxExportBatch int
	MaxQueueSize   int
}

// Tracer returns the slotpool tracer from the global provider. Before
// InitTracing it is a no-op tracer.
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(instrumentationName)
}

// Span wraps a trace span and batches attributes until End.
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan starts a span named operationName.
func NewSpan(ctx context.Context, operationName string) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, operationName)

	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute to the span (batched for performance)
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case uint32:
		attr = attribute.Int64(key, int64(v))
	case uint64:
		if v > math.MaxInt64 {
			attr = attribute.String(key, strconv.FormatUint(v, 10))
		} else {
			attr = attribute.Int64(key, int64(v))
		}
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	case time.Duration:
		attr = attribute.String(key, v.String())
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError marks the span failed. A nil err sets status Ok.
func (s *Span) RecordError(err error) {
	if err == nil {
		s.span.SetStatus(codes.Ok, "")
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// Context returns the span context.
func (s *Span) Context() trace.SpanContext {
	return s.span.SpanContext()
}

// End flushes batched attributes and ends the span.
func (s *Span) End() {
	s.attributes = append(s.attributes, attribute.Int64("duration_ns", time.Since(s.startTime).Nanoseconds()))
	s.span.SetAttributes(s.attributes...)
	s.span.End()
}

// PoolTracer names spans after a pool and tags them with its name.
type PoolTracer struct {
	pool string
}

// NewPoolTracer creates a tracer for the named pool.
func NewPoolTracer(pool string) *PoolTracer {
	return &PoolTracer{pool: pool}
}

// StartSpan starts a span named "slotpool.<pool>.<operation>".
func (pt *PoolTracer) StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	ctx, span := NewSpan(ctx, fmt.Sprintf("slotpool.%s.%s", pt.pool, operation))
	span.SetAttribute("pool.name", pt.pool)
	span.SetAttribute("pool.operation", operation)
	return ctx, span
}

// Trace runs fn inside a span and records its error.
func (pt *PoolTracer) Trace(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := pt.StartSpan(ctx, operation)
	defer span.End()

	err := fn(ctx)
	span.RecordError(err)
	return err
}
