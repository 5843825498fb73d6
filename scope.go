package mediate

import (
	"errors"
	"io"
)

// Scope is the resolution scope owned by a single dispatch call. Handler,
// behavior, and processor instances produced by factory registrations are
// adopted into it, and anything adopted that implements io.Closer is closed
// when the dispatch returns, on every exit path.
//
// A Scope is used by one goroutine, the one running the dispatch, and needs
// no synchronization.
type Scope struct {
	closers []io.Closer
}

func newScope() *Scope {
	return &Scope{}
}

// Defer registers a closer to run when the scope closes. Closers run in
// reverse registration order.
func (s *Scope) Defer(c io.Closer) {
	if c != nil {
		s.closers = append(s.closers, c)
	}
}

// OnClose registers a teardown function to run when the scope closes.
func (s *Scope) OnClose(fn func() error) {
	if fn != nil {
		s.closers = append(s.closers, closeFunc(fn))
	}
}

// Close releases everything the scope owns, in reverse order. All teardown
// errors are joined; teardown always runs to completion.
func (s *Scope) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// adopt tracks a freshly resolved instance so its teardown is tied to the
// scope's lifetime.
func (s *Scope) adopt(v any) any {
	if c, ok := v.(io.Closer); ok {
		s.Defer(c)
	}
	return v
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }
