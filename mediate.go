package mediate

import (
	"context"
)

// RequestHandler processes a request and returns a typed response wrapped in
// a Result. Exactly one handler serves a given request type.
//
// Example:
//
//	type GetUserHandler struct {
//	    repo UserRepo
//	}
//
//	func (h *GetUserHandler) Handle(ctx context.Context, q GetUser) mediate.Result[User] {
//	    u, err := h.repo.Find(ctx, q.ID)
//	    if err != nil {
//	        return mediate.Fail[User](mediate.Wrap(err, "find user"))
//	    }
//	    return mediate.Ok(u)
//	}
type RequestHandler[TReq, TRes any] interface {
	Handle(ctx context.Context, req TReq) Result[TRes]
}

// RequestHandlerFunc is a function adapter for RequestHandler. Use for simple
// handlers that don't need a struct:
//
//	mediate.RegisterHandlerFunc(m, func(ctx context.Context, p Ping) mediate.Result[string] {
//	    return mediate.Ok("pong")
//	})
type RequestHandlerFunc[TReq, TRes any] func(ctx context.Context, req TReq) Result[TRes]

// Handle implements the RequestHandler interface.
func (f RequestHandlerFunc[TReq, TRes]) Handle(ctx context.Context, req TReq) Result[TRes] {
	return f(ctx, req)
}

// NotificationHandler processes a notification. It always returns a Result,
// never a bare success, so failures stay a first-class value on the
// notification path too.
type NotificationHandler[TNote any] interface {
	Handle(ctx context.Context, note TNote) Result[Unit]
}

// NotificationHandlerFunc is a function adapter for NotificationHandler.
type NotificationHandlerFunc[TNote any] func(ctx context.Context, note TNote) Result[Unit]

// Handle implements the NotificationHandler interface.
func (f NotificationHandlerFunc[TNote]) Handle(ctx context.Context, note TNote) Result[Unit] {
	return f(ctx, note)
}

// Next is the continuation a Behavior invokes to run the rest of the
// pipeline. A behavior may call it zero or one times; not calling it
// short-circuits everything downstream, and calling it twice is a pipeline
// error.
type Next[TRes any] func(ctx context.Context) Result[TRes]

// Behavior is an ordered middleware layer bound to a request type. Behaviors
// nest in registration order: the first registered behavior is outermost.
// Code before the next call runs on the way in, code after it runs on the
// way out, in reverse registration order.
//
// Example:
//
//	type Audit struct{ log *zap.Logger }
//
//	func (a Audit) Handle(ctx context.Context, call *mediate.CallContext, req Transfer, next mediate.Next[Receipt]) mediate.Result[Receipt] {
//	    a.log.Info("transfer started", zap.String("request", call.RequestType))
//	    res := next(ctx)
//	    a.log.Info("transfer finished", zap.Bool("ok", res.IsOK()))
//	    return res
//	}
type Behavior[TReq, TRes any] interface {
	Handle(ctx context.Context, call *CallContext, req TReq, next Next[TRes]) Result[TRes]
}

// BehaviorFunc is a function adapter for Behavior.
type BehaviorFunc[TReq, TRes any] func(ctx context.Context, call *CallContext, req TReq, next Next[TRes]) Result[TRes]

// Handle implements the Behavior interface.
func (f BehaviorFunc[TReq, TRes]) Handle(ctx context.Context, call *CallContext, req TReq, next Next[TRes]) Result[TRes] {
	return f(ctx, call, req, next)
}

// PreProcessor is an unconditional hook that runs before the behavior chain.
// Pre-processors run fully sequentially in registration order. A returned
// error fails the dispatch before anything downstream executes.
type PreProcessor[TReq any] interface {
	Process(ctx context.Context, req TReq) error
}

// PreProcessorFunc is a function adapter for PreProcessor.
type PreProcessorFunc[TReq any] func(ctx context.Context, req TReq) error

// Process implements the PreProcessor interface.
func (f PreProcessorFunc[TReq]) Process(ctx context.Context, req TReq) error {
	return f(ctx, req)
}

// PostProcessor is an unconditional hook that runs after the behavior chain
// completes successfully. It observes the final result and may perform side
// effects, but cannot change the value returned to the caller; a returned
// error is logged and counted, never propagated.
type PostProcessor[TReq, TRes any] interface {
	Process(ctx context.Context, req TReq, result Result[TRes]) error
}

// PostProcessorFunc is a function adapter for PostProcessor.
type PostProcessorFunc[TReq, TRes any] func(ctx context.Context, req TReq, result Result[TRes]) error

// Process implements the PostProcessor interface.
func (f PostProcessorFunc[TReq, TRes]) Process(ctx context.Context, req TReq, result Result[TRes]) error {
	return f(ctx, req, result)
}

// Kind labels a request for metrics and tracing. It never changes dispatch
// behavior.
type Kind string

const (
	KindRequest      Kind = "request"
	KindCommand      Kind = "command"
	KindQuery        Kind = "query"
	KindNotification Kind = "notification"
)

// Kinded lets a request type declare its kind for metric labeling. Requests
// that don't implement it are labeled KindRequest.
type Kinded interface {
	DispatchKind() Kind
}

// Discriminated lets a notification declare an explicit runtime tag.
// Handlers registered with RegisterNotificationHandlerFor receive every
// notification whose discriminant matches their tag, which is how a handler
// bound to a broad interface type observes more specific notifications.
// Resolution order is fixed: handlers bound to the notification's concrete
// type run before tag-bound handlers.
type Discriminated interface {
	Discriminant() string
}

func classifyKind(v any) Kind {
	if k, ok := v.(Kinded); ok {
		return k.DispatchKind()
	}
	return KindRequest
}
