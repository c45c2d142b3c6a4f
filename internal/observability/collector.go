package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// collectorKey is the context key holding the active Collector, if any.
const collectorKey ContextKey = "active_collector"

// Collector is the task-local "active span" slot the Dispatcher sets for
// the duration of one dispatch call. It mirrors an OTel span when a tracer
// is configured and falls back to structured logs otherwise, so emitters
// never need to know whether tracing is wired up.
type Collector struct {
	span   trace.Span
	logger *Logger
}

var tracer = otel.Tracer("agentcore/dispatcher")

// NewCollector starts a span named name and wraps it as a Collector. The
// caller must call End when the bracketed work finishes.
func NewCollector(ctx context.Context, name string, logger *Logger) (context.Context, *Collector) {
	spanCtx, span := tracer.Start(ctx, name)
	c := &Collector{span: span, logger: logger}
	return WithCollector(spanCtx, c), c
}

// End finishes the span backing this collector.
func (c *Collector) End() {
	if c != nil && c.span != nil {
		c.span.End()
	}
}

// WithCollector stores a Collector in ctx, shadowing any prior one. Use to
// bracket a single dispatch() call.
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey, c)
}

// CollectorFromContext returns the active collector, or nil if none is set.
func CollectorFromContext(ctx context.Context) *Collector {
	c, _ := ctx.Value(collectorKey).(*Collector)
	return c
}

// Reward records a named scalar reward/score against the active collector.
// A no-op if no collector is set on ctx.
func Reward(ctx context.Context, name string, value float64, attrs map[string]string) {
	c := CollectorFromContext(ctx)
	if c == nil {
		return
	}
	c.span.AddEvent("reward", trace.WithAttributes(toKeyValues(name, value, attrs)...))
	if c.logger != nil {
		c.logger.Info(ctx, "reward", "name", name, "value", value)
	}
}

// Annotation attaches a key/value note to the active collector.
func Annotation(ctx context.Context, key, value string) {
	c := CollectorFromContext(ctx)
	if c == nil {
		return
	}
	c.span.SetAttributes(attribute.String(key, value))
	if c.logger != nil {
		c.logger.Debug(ctx, "annotation", key, value)
	}
}

// Message records a free-text note on the active collector.
func Message(ctx context.Context, text string) {
	c := CollectorFromContext(ctx)
	if c == nil {
		return
	}
	c.span.AddEvent("message", trace.WithAttributes(attribute.String("text", text)))
	if c.logger != nil {
		c.logger.Debug(ctx, "message", "text", text)
	}
}

func toKeyValues(name string, value float64, attrs map[string]string) []attribute.KeyValue {
	kvs := []attribute.KeyValue{
		attribute.String("reward.name", name),
		attribute.Float64("reward.value", value),
	}
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	return kvs
}
