package mediate

import (
	"context"
	"reflect"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// notificationBinding is the registration record for one notification
// handler. The compile closure is instantiated generically at registration
// time; the invocation cache stores the compiled thunk per concrete handler
// type.
type notificationBinding struct {
	noteType reflect.Type
	provide  func() any
	compile  func() thunk
	owned    bool
}

// RegisterNotificationHandler registers a handler keyed by the
// notification's concrete type. The instance is shared across calls and
// must be safe for concurrent use; it is never closed by a dispatch scope.
// Any number of handlers may serve one notification type; they run in
// registration order.
func RegisterNotificationHandler[TNote any](m *Mediator, h NotificationHandler[TNote]) {
	registerNotification[TNote](m, func() any { return h }, false)
}

// RegisterNotificationHandlerFunc is a convenience function for registering
// a notification handler function.
//
// Example:
//
//	mediate.RegisterNotificationHandlerFunc(m, func(ctx context.Context, e UserCreated) mediate.Result[mediate.Unit] {
//	    return mediate.Ok(mediate.Unit{})
//	})
func RegisterNotificationHandlerFunc[TNote any](m *Mediator, fn func(ctx context.Context, note TNote) Result[Unit]) {
	RegisterNotificationHandler[TNote](m, NotificationHandlerFunc[TNote](fn))
}

// RegisterNotificationHandlerFactory registers a factory producing one
// handler instance per dispatch, owned by the dispatch's scope.
func RegisterNotificationHandlerFactory[TNote any](m *Mediator, factory func() NotificationHandler[TNote]) {
	registerNotification[TNote](m, func() any { return factory() }, true)
}

func registerNotification[TNote any](m *Mediator, provide func() any, owned bool) {
	noteT := typeOf[TNote]()
	m.notes[noteT] = append(m.notes[noteT], &notificationBinding{
		noteType: noteT,
		provide:  provide,
		compile:  compileNotificationThunk[TNote],
		owned:    owned,
	})
}

// RegisterNotificationHandlerFor registers a handler under an explicit
// discriminant tag instead of a concrete type. Notifications implementing
// Discriminated with a matching tag are delivered to it, which lets a
// handler bound to a broad interface type receive more specific runtime
// instances. TNote is typically that interface type; a notification whose
// runtime type does not satisfy it fails dispatch with
// CodeNotificationMissingHandle.
//
// Resolution order is fixed: concrete-type handlers first, then tag
// handlers, each in registration order.
func RegisterNotificationHandlerFor[TNote any](m *Mediator, tag string, h NotificationHandler[TNote]) {
	m.tagged[tag] = append(m.tagged[tag], &notificationBinding{
		noteType: typeOf[TNote](),
		provide:  func() any { return h },
		compile:  compileNotificationThunk[TNote],
	})
}

// Publish dispatches a notification to every handler resolved for it,
// strictly sequentially in resolution order, stopping at the first failure.
//
// Zero resolved handlers is a success: notifications are best-effort, not
// mandatory. Sequential fail-fast is deliberate; handlers often encode
// ordering dependencies (persist before broadcast), and any concurrent or
// fire-and-forget variant belongs in a layer above this one.
func (m *Mediator) Publish(ctx context.Context, note any) Result[Unit] {
	if note == nil {
		return Ok(Unit{})
	}

	var (
		start = time.Now()
		rt    = reflect.TypeOf(note)
		name  = typeName(rt)
	)

	sc := newScope()
	defer m.closeScope(sc)

	targets := append([]*notificationBinding(nil), m.notes[rt]...)
	if d, ok := note.(Discriminated); ok {
		targets = append(targets, m.tagged[d.Discriminant()]...)
	}

	ctx, end := m.startSpan(ctx, "mediate.publish", map[string]string{
		"notification_type": name,
		"handlers":          strconv.Itoa(len(targets)),
	})
	m.callOnPublish(ctx, name, len(targets))

	for _, nb := range targets {
		if err := m.invokeNotification(ctx, sc, nb, note); err != nil {
			err = asCancelled(ctx, err, CodeNotificationCancelled)
			m.callOnFailure(ctx, KindNotification, name, err, time.Since(start))
			end(err)
			return Fail[Unit](err)
		}
	}

	m.callOnSuccess(ctx, KindNotification, name, time.Since(start))
	end(nil)
	return Ok(Unit{})
}

// invokeNotification runs one handler through the invocation cache with
// panic interception, so a defect in one handler surfaces as a typed
// failure and stops the sequence instead of crashing the caller.
func (m *Mediator) invokeNotification(ctx context.Context, sc *Scope, nb *notificationBinding, note any) (err *Error) {
	var handlerType reflect.Type

	defer func() {
		if r := recover(); r != nil {
			cause := recovered(r)
			m.logger.Error("panic in notification handler",
				zap.String("notification_type", typeName(reflect.TypeOf(note))),
				zap.String("handler_type", typeName(handlerType)),
				zap.Error(cause),
			)
			err = newError(CodeNotificationException, "defect escaped notification handler",
				WithCause(cause),
				WithMeta("notification_type", typeName(reflect.TypeOf(note))),
				WithMeta("handler_type", typeName(handlerType)),
			)
		}
	}()

	instance := nb.provide()
	if nb.owned {
		sc.adopt(instance)
	}
	handlerType = reflect.TypeOf(instance)

	t := m.cache.load(
		cacheKey{handler: handlerType, payload: nb.noteType},
		nb.compile,
	)
	_, err = t(ctx, instance, note)
	return err
}
