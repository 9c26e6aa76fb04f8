package deferred

import (
	"context"
	"log/slog"

	intctx "github.com/jdziat/simple-delay/pkg/internal/context"
	"github.com/jdziat/simple-delay/pkg/ref"
	"github.com/jdziat/simple-delay/pkg/tracing"
)

// Dispatcher creates calls with its codec and runs the payloads a queue
// delivers. It is safe for concurrent use.
type Dispatcher struct {
	codec  *ref.Codec
	logger *slog.Logger
	tracer *tracing.Tracer
}

// Option configures a Dispatcher.
type Option interface {
	Apply(*Dispatcher)
}

type optionFunc func(*Dispatcher)

func (f optionFunc) Apply(d *Dispatcher) { f(d) }

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	})
}

// WithTracer wraps every dispatched call in a span.
func WithTracer(t *tracing.Tracer) Option {
	return optionFunc(func(d *Dispatcher) {
		d.tracer = t
	})
}

// NewDispatcher creates a Dispatcher over codec.
func NewDispatcher(codec *ref.Codec, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		codec:  codec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt.Apply(d)
	}
	return d
}

// Codec returns the dispatcher's codec.
func (d *Dispatcher) Codec() *ref.Codec {
	return d.codec
}

// Create is the package level Create using the dispatcher's codec.
func (d *Dispatcher) Create(target any, method string, args []any, kwargs map[string]any, queue string, delay any) (*Call, error) {
	return Create(d.codec, target, method, args, kwargs, queue, delay)
}

// Dispatch normalizes payload into a Call and performs it.
func (d *Dispatcher) Dispatch(ctx context.Context, payload any) error {
	call, err := Normalize(payload)
	if err != nil {
		return err
	}
	return d.Perform(ctx, call)
}

// Perform runs call, inside a span when the dispatcher has a tracer.
func (d *Dispatcher) Perform(ctx context.Context, call *Call) error {
	if d.tracer == nil {
		return d.perform(ctx, call)
	}
	return d.tracer.Trace(ctx, d.traceCall(call), func(ctx context.Context) error {
		if id := intctx.JobID(ctx); id != "" {
			tracing.AddJobID(ctx, id)
		}
		return d.perform(ctx, call)
	})
}

func (d *Dispatcher) perform(ctx context.Context, call *Call) error {
	skipped, err := call.perform(ctx, d.codec)
	if skipped != nil {
		intctx.MarkSkipped(ctx, skipped.Ref())
		d.logger.Info("skipping call on missing record",
			"display_name", d.codec.DisplayName(call.Object, call.Method),
			"queue", call.Queue,
			"tag", string(skipped.Tag),
			"type", skipped.TypeName,
			"keys", skipped.Keys,
		)
	}
	return err
}

func (d *Dispatcher) traceCall(call *Call) tracing.Call {
	return tracing.Call{
		DisplayName: d.codec.DisplayName(call.Object, call.Method),
		Method:      call.Method,
		Args:        call.Args,
		Kwargs:      call.Kwargs,
		Queue:       call.Queue,
	}
}

// DisplayName labels a payload without decoding any reference. Payloads
// that cannot be normalized are labelled Unknown.
func (d *Dispatcher) DisplayName(payload any) string {
	call, err := Normalize(payload)
	if err != nil {
		return "Unknown#unknown"
	}
	return d.codec.DisplayName(call.Object, call.Method)
}
