package mediate

import (
	"context"
	"reflect"

	"go.uber.org/zap"
)

// runPipeline assembles and executes the full chain for one request:
// pre-processors, nested behaviors, the terminal handler invocation through
// the invocation cache, then post-processors. The generic instantiation
// comes from the registration closure, so every layer runs fully typed.
func runPipeline[TReq, TRes any](ctx context.Context, m *Mediator, call *CallContext, b *requestBinding, req TReq) Result[TRes] {
	reqT := b.requestType

	// Pre-processors run unconditionally, fully sequentially, before
	// anything else.
	call.stage = StagePre
	for _, raw := range m.pres[reqT] {
		p, ok := raw.(PreProcessor[TReq])
		if !ok {
			return Fail[TRes](layerMismatch(call, raw, "pre-processor"))
		}
		if err := p.Process(ctx, req); err != nil {
			return Fail[TRes](newError(CodePipelineException, "pre-processor failed",
				WithCause(err),
				WithMeta("request_type", call.RequestType),
				WithMeta("stage", string(StagePre)),
			))
		}
	}

	terminal := func(ctx context.Context) Result[TRes] {
		call.stage = StageHandler
		instance := b.provide()
		if b.owned {
			call.scope.adopt(instance)
		}
		handlerType := reflect.TypeOf(instance)
		call.HandlerType = typeName(handlerType)

		if _, ok := instance.(RequestHandler[TReq, TRes]); !ok {
			return Fail[TRes](newError(CodeHandlerMissing, "resolved instance cannot handle request",
				WithMeta("request_type", call.RequestType),
				WithMeta("handler_type", call.HandlerType),
			))
		}

		t := m.cache.load(
			cacheKey{handler: handlerType, payload: reqT},
			compileRequestThunk[TReq, TRes],
		)
		v, err := t(ctx, instance, req)
		if err != nil {
			return Fail[TRes](err)
		}
		out, _ := coerce[TRes](v)
		return Ok(out)
	}

	// Behaviors nest around the terminal call: the first registered is
	// outermost. Each continuation may run at most once.
	next := Next[TRes](terminal)
	chain := m.behaviors[reqT]
	for i := len(chain) - 1; i >= 0; i-- {
		bh, ok := chain[i].(Behavior[TReq, TRes])
		if !ok {
			return Fail[TRes](layerMismatch(call, chain[i], "behavior"))
		}
		inner := once(next)
		next = func(ctx context.Context) Result[TRes] {
			call.stage = StagePipeline
			return bh.Handle(ctx, call, req, inner)
		}
	}

	call.stage = StagePipeline
	res := next(ctx)

	// Post-processors observe the final result after a successful chain.
	// They cannot change it; their errors are reported, not returned.
	if res.IsOK() {
		call.stage = StagePost
		for _, raw := range m.posts[reqT] {
			q, ok := raw.(PostProcessor[TReq, TRes])
			if !ok {
				m.logger.Error("post-processor response type mismatch",
					zap.String("request_type", call.RequestType),
					zap.String("registered_type", typeName(reflect.TypeOf(raw))),
				)
				continue
			}
			if err := q.Process(ctx, req, res); err != nil {
				m.logger.Error("post-processor failed",
					zap.String("request_type", call.RequestType),
					zap.Error(err),
				)
			}
		}
	}

	return res
}

// once guards a continuation so a behavior cannot run its downstream chain
// twice.
func once[TRes any](next Next[TRes]) Next[TRes] {
	called := false
	return func(ctx context.Context) Result[TRes] {
		if called {
			return Fail[TRes](newError(CodePipelineException, "continuation invoked more than once"))
		}
		called = true
		return next(ctx)
	}
}

// layerMismatch reports a configuration error: a behavior or processor was
// registered with a response type different from the handler's.
func layerMismatch(call *CallContext, registered any, layer string) *Error {
	return newError(CodePipelineException, layer+" response type does not match handler",
		WithMeta("request_type", call.RequestType),
		WithMeta("response_type", call.ResponseType),
		WithMeta("registered_type", typeName(reflect.TypeOf(registered))),
		WithMeta("stage", string(call.stage)),
	)
}
