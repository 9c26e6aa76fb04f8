// Package tracing wraps deferred call execution in OpenTelemetry spans.
//
// Spans are named by the call's display name and carry the encoded
// arguments, never the rehydrated values, so tracing a call never touches
// a backing store.
package tracing

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies spans produced by this module.
const InstrumentationName = "github.com/jdziat/simple-delay"

// Category is recorded on every span so backends can group delayed jobs
// apart from request traffic.
const Category = "OtherTransaction/DelayedJob"

// Span attribute keys.
const (
	AttrCategory = attribute.Key("delay.category")
	AttrMethod   = attribute.Key("delay.method")
	AttrArgs     = attribute.Key("delay.args")
	AttrKwargs   = attribute.Key("delay.kwargs")
	AttrQueue    = attribute.Key("delay.queue")
	AttrJobID    = attribute.Key("delay.job_id")
)

// Tracer starts spans around call execution.
type Tracer struct {
	tracer trace.Tracer
}

// New creates a Tracer from tp. A nil tp uses the global provider.
func New(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(InstrumentationName)}
}

// Call describes the call being traced.
type Call struct {
	DisplayName string
	Method      string
	Args        []string
	Kwargs      map[string]string
	Queue       string
}

// Attributes returns the span attributes for c.
func (c Call) Attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrCategory.String(Category),
		AttrMethod.String(c.Method),
		AttrArgs.StringSlice(c.Args),
	}
	if len(c.Kwargs) > 0 {
		keys := make([]string, 0, len(c.Kwargs))
		for k := range c.Kwargs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+c.Kwargs[k])
		}
		attrs = append(attrs, AttrKwargs.StringSlice(pairs))
	}
	if c.Queue != "" {
		attrs = append(attrs, AttrQueue.String(c.Queue))
	}
	return attrs
}

// Trace runs fn inside a span for c. The span records fn's error, if any,
// and ends when fn returns.
func (t *Tracer) Trace(ctx context.Context, c Call, fn func(context.Context) error) error {
	ctx, done := t.Start(ctx, c)
	err := fn(ctx)
	done(err)
	return err
}

// Start opens a span for c and returns a function that ends it with the
// outcome of the call.
func (t *Tracer) Start(ctx context.Context, c Call, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := t.tracer.Start(ctx, c.DisplayName,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(c.Attributes()...),
		trace.WithAttributes(attrs...),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// AddJobID tags the current span with the job being executed.
func AddJobID(ctx context.Context, jobID string) {
	trace.SpanFromContext(ctx).SetAttributes(AttrJobID.String(jobID))
}
