package mediate

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// thunk is the uniform invocation shape every cached entry compiles to. The
// handler and payload arrive erased; the thunk restores their static types
// and calls the handler's processing entry point.
type thunk func(ctx context.Context, handler, payload any) (any, *Error)

// cacheKey identifies a compiled thunk by the (concrete handler type,
// payload type) pair. Thunks are pure functions of their key.
type cacheKey struct {
	handler reflect.Type
	payload reflect.Type
}

// invocationCache holds compiled thunks for the process lifetime. Entries
// are populated lazily on first dispatch and never evicted: handler/payload
// bindings are fixed once the program's type graph is fixed.
//
// Concurrent first-use population is resolved redundantly rather than
// locked. Two goroutines may compile the same key; LoadOrStore keeps one
// and the loser's thunk is discarded, which is safe because both compile to
// behaviorally identical functions.
type invocationCache struct {
	entries sync.Map // cacheKey -> thunk
}

func (c *invocationCache) load(key cacheKey, compile func() thunk) thunk {
	if v, ok := c.entries.Load(key); ok {
		return v.(thunk)
	}
	v, _ := c.entries.LoadOrStore(key, compile())
	return v.(thunk)
}

// compileRequestThunk builds the terminal invocation for a request handler.
// The generic instantiation happens at registration time, so the thunk body
// is plain type assertions, never reflection over methods.
func compileRequestThunk[TReq, TRes any]() thunk {
	return func(ctx context.Context, handler, payload any) (any, *Error) {
		h, ok := handler.(RequestHandler[TReq, TRes])
		if !ok {
			return nil, missingHandle(CodeHandlerMissing, reflect.TypeOf(handler), typeOf[TReq](), payload)
		}
		req, ok := coerce[TReq](payload)
		if !ok {
			return nil, missingHandle(CodeHandlerMissing, reflect.TypeOf(handler), typeOf[TReq](), payload)
		}
		res := h.Handle(ctx, req)
		if res.IsFailure() {
			return nil, res.Err()
		}
		return res.Value(), nil
	}
}

// compileNotificationThunk builds the invocation for a notification handler
// registered against TNote. TNote may be an interface type; the assertion
// then accepts any runtime type implementing it, which is how tag-bound
// handlers observe derived notifications.
func compileNotificationThunk[TNote any]() thunk {
	return func(ctx context.Context, handler, payload any) (any, *Error) {
		h, ok := handler.(NotificationHandler[TNote])
		if !ok {
			return nil, missingHandle(CodeNotificationMissingHandle, reflect.TypeOf(handler), typeOf[TNote](), payload)
		}
		note, ok := coerce[TNote](payload)
		if !ok {
			return nil, missingHandle(CodeNotificationMissingHandle, reflect.TypeOf(handler), typeOf[TNote](), payload)
		}
		res := h.Handle(ctx, note)
		if res.IsFailure() {
			return nil, res.Err()
		}
		return Unit{}, nil
	}
}

// typeOf names a type parameter, including interface types, which
// reflect.TypeOf on a value cannot do.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// coerce restores an erased payload to its static type. A nil payload maps
// to the type's zero value rather than failing, so absent value-type
// payloads dispatch cleanly.
func coerce[T any](payload any) (T, bool) {
	var zero T
	if payload == nil {
		return zero, true
	}
	v, ok := payload.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

func missingHandle(code Code, handlerType, payloadType reflect.Type, payload any) *Error {
	got := "<nil>"
	if payload != nil {
		got = typeName(reflect.TypeOf(payload))
	}
	return newError(code, "no compatible entry point for payload",
		WithMeta("handler_type", typeName(handlerType)),
		WithMeta("payload_type", typeName(payloadType)),
		WithMeta("runtime_type", got),
	)
}

// recovered converts an arbitrary panic value into an error suitable for
// wrapping.
func recovered(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
