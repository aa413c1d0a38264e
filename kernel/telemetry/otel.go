package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type (
	// SlogLogger delegates to the standard library's structured logger.
	// There is no pack dependency for structured logging once
	// goa.design/clue is dropped (clue's log package is goa-DSL-adjacent
	// and has no role outside a goa service); log/slog is the idiomatic
	// stdlib replacement and every pack repo's own logging is this thin.
	SlogLogger struct{ log *slog.Logger }

	// OtelMetrics delegates to an OpenTelemetry meter.
	OtelMetrics struct{ meter metric.Meter }

	// OtelTracer delegates to an OpenTelemetry tracer.
	OtelTracer struct{ tracer trace.Tracer }

	otelSpan struct{ span trace.Span }
)

// NewSlogLogger wraps l, or slog.Default() if l is nil.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return SlogLogger{log: l}
}

// NewOtelMetrics constructs a Metrics recorder against the global
// MeterProvider, scoped to instrumentationName.
func NewOtelMetrics(instrumentationName string) Metrics {
	return &OtelMetrics{meter: otel.Meter(instrumentationName)}
}

// NewOtelTracer constructs a Tracer against the global TracerProvider,
// scoped to instrumentationName.
func NewOtelTracer(instrumentationName string) Tracer {
	return &OtelTracer{tracer: otel.Tracer(instrumentationName)}
}

func (l SlogLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	l.log.DebugContext(ctx, msg, keyvals...)
}
func (l SlogLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	l.log.InfoContext(ctx, msg, keyvals...)
}
func (l SlogLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	l.log.WarnContext(ctx, msg, keyvals...)
}
func (l SlogLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	l.log.ErrorContext(ctx, msg, keyvals...)
}

func (m *OtelMetrics) IncCounter(name string, value float64, tags ...string) {
	c, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	c.Add(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *OtelMetrics) RecordTimer(name string, d time.Duration, tags ...string) {
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), d.Seconds(), metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *OtelMetrics) RecordGauge(name string, value float64, tags ...string) {
	// OTEL has no synchronous gauge instrument; a histogram suffices for the
	// current-value semantics this interface needs.
	h, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (t *OtelTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name, opts...)
	return newCtx, &otelSpan{span: span}
}

func (s *otelSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s *otelSpan) AddEvent(name string, keyvals ...any) {
	s.span.AddEvent(name, trace.WithAttributes(kvToAttrs(keyvals)...))
}

func (s *otelSpan) SetStatus(code codes.Code, description string) { s.span.SetStatus(code, description) }

func (s *otelSpan) RecordError(err error, opts ...trace.EventOption) { s.span.RecordError(err, opts...) }

func tagsToAttrs(tags []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(tags); i += 2 {
		k, v := tags[i], ""
		if i+1 < len(tags) {
			v = tags[i+1]
		}
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

func kvToAttrs(keyvals []any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, ""))
		}
	}
	return attrs
}
