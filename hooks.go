package mediate

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OnDispatchFunc is called just before a request pipeline executes.
type OnDispatchFunc func(ctx context.Context, kind Kind, requestType string)

// OnSuccessFunc is called after a dispatch completes successfully.
type OnSuccessFunc func(ctx context.Context, kind Kind, requestType string, duration time.Duration)

// OnFailureFunc is called after a dispatch fails. The error is the same
// value the caller receives in the Result.
type OnFailureFunc func(ctx context.Context, kind Kind, requestType string, err *Error, duration time.Duration)

// OnPublishFunc is called before notification handlers run, with the number
// of handlers resolved for the notification.
type OnPublishFunc func(ctx context.Context, notificationType string, handlers int)

// MetricsSink receives success/failure counters and latency per dispatch.
// Implementations must be safe for concurrent use.
type MetricsSink interface {
	RecordSuccess(kind Kind, requestType string, elapsed time.Duration)
	RecordFailure(kind Kind, requestType string, code Code, elapsed time.Duration)
}

// TraceSink starts one span per dispatch call. Implementations adapt
// whatever tracing system the application uses.
type TraceSink interface {
	StartSpan(ctx context.Context, name string, tags map[string]string) (context.Context, Span)
}

// Span is an open trace span. End is called exactly once per dispatch, with
// the failure if the dispatch failed.
type Span interface {
	End(err *Error)
}

// hooks holds all configured observer functions.
type hooks struct {
	onDispatch []OnDispatchFunc
	onSuccess  []OnSuccessFunc
	onFailure  []OnFailureFunc
	onPublish  []OnPublishFunc
}

// Option configures a Mediator.
type Option func(*Mediator)

// WithLogger sets the structured logger used for recovered panics,
// post-processor errors, and scope teardown failures. Defaults to a no-op
// logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Mediator) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink. Without one, no metrics are recorded.
func WithMetrics(sink MetricsSink) Option {
	return func(m *Mediator) {
		m.metrics = sink
	}
}

// WithTracer sets the trace sink. Without one, no spans are created.
func WithTracer(sink TraceSink) Option {
	return func(m *Mediator) {
		m.tracer = sink
	}
}

// WithOnDispatch adds a hook called just before a request pipeline executes.
// Multiple hooks are called in order.
func WithOnDispatch(fn OnDispatchFunc) Option {
	return func(m *Mediator) {
		m.hooks.onDispatch = append(m.hooks.onDispatch, fn)
	}
}

// WithOnSuccess adds a hook called after a dispatch completes successfully.
// Multiple hooks are called in order.
//
// Example:
//
//	mediate.WithOnSuccess(func(ctx context.Context, kind mediate.Kind, rt string, d time.Duration) {
//	    statsd.Timing("mediate.success", d, "kind:"+string(kind))
//	})
func WithOnSuccess(fn OnSuccessFunc) Option {
	return func(m *Mediator) {
		m.hooks.onSuccess = append(m.hooks.onSuccess, fn)
	}
}

// WithOnFailure adds a hook called after a dispatch fails.
// Multiple hooks are called in order.
//
// Example:
//
//	mediate.WithOnFailure(func(ctx context.Context, kind mediate.Kind, rt string, err *mediate.Error, d time.Duration) {
//	    statsd.Incr("mediate.failure", "code:"+string(err.Code()))
//	})
func WithOnFailure(fn OnFailureFunc) Option {
	return func(m *Mediator) {
		m.hooks.onFailure = append(m.hooks.onFailure, fn)
	}
}

// WithOnPublish adds a hook called before notification handlers run.
// Multiple hooks are called in order.
func WithOnPublish(fn OnPublishFunc) Option {
	return func(m *Mediator) {
		m.hooks.onPublish = append(m.hooks.onPublish, fn)
	}
}

func (m *Mediator) callOnDispatch(ctx context.Context, kind Kind, requestType string) {
	for _, fn := range m.hooks.onDispatch {
		fn(ctx, kind, requestType)
	}
}

func (m *Mediator) callOnSuccess(ctx context.Context, kind Kind, requestType string, d time.Duration) {
	for _, fn := range m.hooks.onSuccess {
		fn(ctx, kind, requestType, d)
	}
	if m.metrics != nil {
		m.metrics.RecordSuccess(kind, requestType, d)
	}
}

func (m *Mediator) callOnFailure(ctx context.Context, kind Kind, requestType string, err *Error, d time.Duration) {
	for _, fn := range m.hooks.onFailure {
		fn(ctx, kind, requestType, err, d)
	}
	if m.metrics != nil {
		m.metrics.RecordFailure(kind, requestType, err.Code(), d)
	}
}

func (m *Mediator) callOnPublish(ctx context.Context, notificationType string, handlers int) {
	for _, fn := range m.hooks.onPublish {
		fn(ctx, notificationType, handlers)
	}
}

// startSpan opens a span when a tracer is configured. The returned end
// function is a no-op otherwise, so call sites stay unconditional.
func (m *Mediator) startSpan(ctx context.Context, name string, tags map[string]string) (context.Context, func(*Error)) {
	if m.tracer == nil {
		return ctx, func(*Error) {}
	}
	ctx, span := m.tracer.StartSpan(ctx, name, tags)
	return ctx, span.End
}
