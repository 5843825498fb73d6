// Package mediate is an in-process message dispatch engine: callers submit
// a request (one handler, typed response) or a notification (zero or more
// handlers, no response), and the engine resolves handlers, wraps execution
// in a composable middleware pipeline, and returns a uniform Result instead
// of panicking or leaking untyped errors for conditions it can classify.
//
// # Quick Start
//
// Define a request, its handler, and dispatch:
//
//	type Ping struct{}
//
//	type PingHandler struct{}
//
//	func (PingHandler) Handle(ctx context.Context, p Ping) mediate.Result[string] {
//	    return mediate.Ok("pong")
//	}
//
//	m := mediate.New()
//	mediate.RegisterHandler[Ping, string](m, PingHandler{})
//
//	res := mediate.Send[Ping, string](ctx, m, Ping{})
//	if res.IsOK() {
//	    fmt.Println(res.Value()) // pong
//	}
//
// # Results and Errors
//
// Every public dispatch operation returns a two-case Result. Expected
// failures travel as *Error values with a machine-readable Code, an
// optional wrapped cause, and structured metadata; callers never need
// recover on the happy path. The engine produces a small fixed taxonomy
// (CodeHandlerMissing, CodeRequestCancelled, CodePipelineException, and
// their notification counterparts), and handler-authored failures pass
// through unchanged.
//
// Defects are intercepted, not propagated: a panic inside a handler,
// behavior, or processor surfaces as a CodePipelineException (or
// CodeNotificationException) failure carrying the request type, handler
// type, and pipeline stage. A failure caused by the caller's own context
// cancellation is reclassified as CodeRequestCancelled or
// CodeNotificationCancelled.
//
// # Pipeline
//
// Each request type gets a composed chain:
//
//	pre(P1), pre(P2), enter(B1), enter(B2), handler, exit(B2), exit(B1), post(Q1), post(Q2)
//
// Pre-processors run unconditionally before everything else. Behaviors nest
// in registration order and may short-circuit by not calling their next
// continuation. Post-processors run only after a successful chain; they
// observe the final result but cannot change it. All ordering is
// deterministic and equal to registration order on every call.
//
// # Invocation Cache
//
// Handler entry points are invoked through thunks compiled once per
// (concrete handler type, payload type) pair and cached for the process
// lifetime in a concurrent map. The generic instantiation happens at
// registration time, so the hot path performs no method reflection.
// Concurrent first-use population is resolved redundantly rather than
// locked; compiled thunks are pure functions of their key.
//
// # Notifications
//
// Publish resolves handlers by the notification's concrete runtime type
// first, then by explicit discriminant tag (the Discriminated interface)
// for handlers bound to broader types, and invokes them strictly
// sequentially, failing fast on the first failure. Zero handlers is a
// success: notifications are best-effort.
//
// # Scopes
//
// Every dispatch owns one resolution scope, created at entry and closed on
// every return path. Handlers registered through factories are created
// fresh per call and, if they implement io.Closer, closed with the scope.
// Behaviors reach the scope through the explicit CallContext; there is no
// goroutine-local state.
//
// # Observability
//
// Hooks (WithOnDispatch, WithOnSuccess, WithOnFailure, WithOnPublish), an
// optional MetricsSink, and an optional TraceSink observe dispatch
// boundaries without coupling the engine to a metrics or tracing system.
// Structured logging goes through a caller-supplied zap.Logger.
//
// # Gateway
//
// The Gateway is an optional JSON front door: sources declare cheap
// gjson-backed discriminators, parse raw bytes into an Envelope, and the
// envelope key selects a bound notification type that is unmarshaled,
// validated, and published. The core never depends on it.
//
// # Thread Safety
//
// Mediator and Gateway are safe for concurrent use after configuration is
// complete. Do not register handlers, behaviors, processors, sources, or
// bindings after the first dispatch.
package mediate
