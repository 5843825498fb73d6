package mediate

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// ErrDuplicateHandler is returned when a second request handler is
// registered for a request type that already has one. Single-target dispatch
// is ambiguous with two handlers, so the conflict is rejected at
// registration time rather than resolved silently.
var ErrDuplicateHandler = errors.New("handler already registered for request type")

// requestBinding is the registration record for one request type. The exec
// closure is instantiated generically at registration time and carries the
// static request/response types through the erased dispatch path. owned is
// set only by factory registration: factory-produced instances belong to
// the dispatch's scope, shared instances outlive every dispatch.
type requestBinding struct {
	requestType  reflect.Type
	responseType reflect.Type
	provide      func() any
	owned        bool
	exec         func(ctx context.Context, m *Mediator, call *CallContext, req any) (any, *Error)
}

// Mediator dispatches requests to their single handler and notifications to
// zero or more handlers, wrapping execution in the registered pipeline.
//
// Usage:
//  1. Create a mediator with New
//  2. Register handlers, behaviors, and processors
//  3. Dispatch with Send and Publish
//
// Mediator is safe for concurrent use after configuration. Do not register
// anything after the first Send or Publish.
type Mediator struct {
	bindings  map[reflect.Type]*requestBinding
	notes     map[reflect.Type][]*notificationBinding
	tagged    map[string][]*notificationBinding
	behaviors map[reflect.Type][]any
	pres      map[reflect.Type][]any
	posts     map[reflect.Type][]any

	cache   invocationCache
	hooks   hooks
	logger  *zap.Logger
	metrics MetricsSink
	tracer  TraceSink
}

// New creates a Mediator with the given options.
//
// Example:
//
//	m := mediate.New(
//	    mediate.WithLogger(logger),
//	    mediate.WithMetrics(sink),
//	)
func New(opts ...Option) *Mediator {
	m := &Mediator{
		bindings:  make(map[reflect.Type]*requestBinding),
		notes:     make(map[reflect.Type][]*notificationBinding),
		tagged:    make(map[string][]*notificationBinding),
		behaviors: make(map[reflect.Type][]any),
		pres:      make(map[reflect.Type][]any),
		posts:     make(map[reflect.Type][]any),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterHandler registers the single handler for a request type. The
// instance is shared across calls and must be safe for concurrent use; it
// is never closed by a dispatch scope. Use RegisterHandlerFactory for a
// fresh, scope-owned instance per dispatch.
//
// This is a package-level function (not a method) due to Go generics
// limitations: methods cannot have type parameters independent of the
// receiver.
//
// Example:
//
//	mediate.RegisterHandler[GetUser, User](m, &GetUserHandler{repo: repo})
func RegisterHandler[TReq, TRes any](m *Mediator, h RequestHandler[TReq, TRes]) error {
	return registerRequest[TReq, TRes](m, func() any { return h }, false)
}

// RegisterHandlerFunc is a convenience function for registering a handler
// function.
//
// Example:
//
//	mediate.RegisterHandlerFunc(m, func(ctx context.Context, p Ping) mediate.Result[string] {
//	    return mediate.Ok("pong")
//	})
func RegisterHandlerFunc[TReq, TRes any](m *Mediator, fn func(ctx context.Context, req TReq) Result[TRes]) error {
	return RegisterHandler[TReq, TRes](m, RequestHandlerFunc[TReq, TRes](fn))
}

// RegisterHandlerFactory registers a factory producing one handler instance
// per dispatch. The instance belongs to the dispatch's scope; if it
// implements io.Closer it is closed when the dispatch returns.
func RegisterHandlerFactory[TReq, TRes any](m *Mediator, factory func() RequestHandler[TReq, TRes]) error {
	return registerRequest[TReq, TRes](m, func() any { return factory() }, true)
}

func registerRequest[TReq, TRes any](m *Mediator, provide func() any, owned bool) error {
	reqT := typeOf[TReq]()
	if _, exists := m.bindings[reqT]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, typeName(reqT))
	}

	b := &requestBinding{
		requestType:  reqT,
		responseType: typeOf[TRes](),
		provide:      provide,
		owned:        owned,
	}
	b.exec = func(ctx context.Context, m *Mediator, call *CallContext, req any) (any, *Error) {
		r, ok := coerce[TReq](req)
		if !ok {
			return nil, missingHandle(CodeHandlerMissing, nil, reqT, req)
		}
		res := runPipeline[TReq, TRes](ctx, m, call, b, r)
		if res.IsFailure() {
			return nil, res.Err()
		}
		return res.Value(), nil
	}
	m.bindings[reqT] = b
	return nil
}

// RegisterBehavior appends a middleware layer for a request type. Behaviors
// run in registration order on the way in and reverse order on the way out.
// The response type must match the handler's; a mismatch fails dispatch
// with a pipeline error.
func RegisterBehavior[TReq, TRes any](m *Mediator, b Behavior[TReq, TRes]) {
	reqT := typeOf[TReq]()
	m.behaviors[reqT] = append(m.behaviors[reqT], b)
}

// RegisterBehaviorFunc is a convenience function for registering a behavior
// function.
func RegisterBehaviorFunc[TReq, TRes any](m *Mediator, fn func(ctx context.Context, call *CallContext, req TReq, next Next[TRes]) Result[TRes]) {
	RegisterBehavior[TReq, TRes](m, BehaviorFunc[TReq, TRes](fn))
}

// RegisterPreProcessor appends an unconditional hook that runs before the
// behavior chain, in registration order.
func RegisterPreProcessor[TReq any](m *Mediator, p PreProcessor[TReq]) {
	reqT := typeOf[TReq]()
	m.pres[reqT] = append(m.pres[reqT], p)
}

// RegisterPreProcessorFunc is a convenience function for registering a
// pre-processor function.
func RegisterPreProcessorFunc[TReq any](m *Mediator, fn func(ctx context.Context, req TReq) error) {
	RegisterPreProcessor[TReq](m, PreProcessorFunc[TReq](fn))
}

// RegisterPostProcessor appends an unconditional hook that runs after a
// successful chain, in registration order.
func RegisterPostProcessor[TReq, TRes any](m *Mediator, p PostProcessor[TReq, TRes]) {
	reqT := typeOf[TReq]()
	m.posts[reqT] = append(m.posts[reqT], p)
}

// RegisterPostProcessorFunc is a convenience function for registering a
// post-processor function.
func RegisterPostProcessorFunc[TReq, TRes any](m *Mediator, fn func(ctx context.Context, req TReq, result Result[TRes]) error) {
	RegisterPostProcessor[TReq, TRes](m, PostProcessorFunc[TReq, TRes](fn))
}

// Send dispatches a request to its single registered handler through the
// composed pipeline and returns the handler's typed Result.
//
// Send never panics and never returns an unclassified failure: a missing or
// incompatible binding yields CodeHandlerMissing, a cancellation matching
// ctx yields CodeRequestCancelled, and any defect escaping the pipeline
// yields CodePipelineException. Handler-authored failures pass through
// unchanged.
//
// Both type parameters are explicit at the call site:
//
//	res := mediate.Send[Ping, string](ctx, m, Ping{})
func Send[TReq, TRes any](ctx context.Context, m *Mediator, req TReq) Result[TRes] {
	var (
		reqT  = typeOf[TReq]()
		resT  = typeOf[TRes]()
		kind  = classifyKind(req)
		start = time.Now()
	)

	sc := newScope()
	defer m.closeScope(sc)

	call := &CallContext{
		RequestType:  typeName(reqT),
		ResponseType: typeName(resT),
		Kind:         kind,
		scope:        sc,
		stage:        StageResolve,
	}

	ctx, end := m.startSpan(ctx, "mediate.send", map[string]string{
		"request_type":  call.RequestType,
		"response_type": call.ResponseType,
		"kind":          string(kind),
	})

	b, ok := m.bindings[reqT]
	if !ok || b.responseType != resT {
		err := newError(CodeHandlerMissing, "no handler registered for request",
			WithMeta("request_type", call.RequestType),
			WithMeta("response_type", call.ResponseType),
		)
		m.callOnFailure(ctx, kind, call.RequestType, err, time.Since(start))
		end(err)
		return Fail[TRes](err)
	}

	m.callOnDispatch(ctx, kind, call.RequestType)

	value, err := m.runGuarded(ctx, call, b, req)
	if err != nil {
		err = asCancelled(ctx, err, CodeRequestCancelled)
		m.callOnFailure(ctx, kind, call.RequestType, err, time.Since(start))
		end(err)
		return Fail[TRes](err)
	}

	m.callOnSuccess(ctx, kind, call.RequestType, time.Since(start))
	end(nil)

	// The binding's response type was checked above, so the erased value is
	// a TRes; nil maps to the zero value.
	out, _ := coerce[TRes](value)
	return Ok(out)
}

// runGuarded executes the binding with panic interception. A defect
// anywhere in the pipeline surfaces as a pipeline error tagged with the
// stage it escaped from, never as a panic out of Send.
func (m *Mediator) runGuarded(ctx context.Context, call *CallContext, b *requestBinding, req any) (value any, err *Error) {
	defer func() {
		if r := recover(); r != nil {
			cause := recovered(r)
			m.logger.Error("panic in request pipeline",
				zap.String("request_type", call.RequestType),
				zap.String("handler_type", call.HandlerType),
				zap.String("stage", string(call.stage)),
				zap.Error(cause),
			)
			value = nil
			err = newError(CodePipelineException, "defect escaped the pipeline",
				WithCause(cause),
				WithMeta("request_type", call.RequestType),
				WithMeta("handler_type", call.HandlerType),
				WithMeta("stage", string(call.stage)),
			)
		}
	}()
	return b.exec(ctx, m, call, req)
}

// asCancelled reclassifies a failure as a cancellation when the caller's
// own signal fired and the failure's cause chain matches it. Failures
// unrelated to ctx pass through untouched.
func asCancelled(ctx context.Context, err *Error, code Code) *Error {
	if err == nil || ctx.Err() == nil || err.Code() == code {
		return err
	}
	if !errors.Is(err, ctx.Err()) {
		return err
	}
	opts := []ErrorOption{WithCause(err)}
	for k, v := range err.meta {
		opts = append(opts, WithMeta(k, v))
	}
	return newError(code, "dispatch cancelled", opts...)
}

func (m *Mediator) closeScope(sc *Scope) {
	if err := sc.Close(); err != nil {
		m.logger.Warn("scope teardown failed", zap.Error(err))
	}
}
