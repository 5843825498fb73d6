package mediate

import (
	"context"
	"reflect"
	"sync"
	"testing"
)

type cachePayload struct {
	n int
}

type cacheHandler struct{}

func (cacheHandler) Handle(ctx context.Context, p cachePayload) Result[int] {
	return Ok(p.n * 2)
}

func TestInvocationCache(t *testing.T) {
	key := cacheKey{
		handler: reflect.TypeOf(cacheHandler{}),
		payload: typeOf[cachePayload](),
	}

	t.Run("compiles once per key", func(t *testing.T) {
		var cache invocationCache
		compiles := 0
		compile := func() thunk {
			compiles++
			return compileRequestThunk[cachePayload, int]()
		}

		cache.load(key, compile)
		cache.load(key, compile)

		if compiles != 1 {
			t.Errorf("compile calls = %d, want 1", compiles)
		}
	})

	t.Run("redundant compiles are behaviorally indistinguishable", func(t *testing.T) {
		a := compileRequestThunk[cachePayload, int]()
		b := compileRequestThunk[cachePayload, int]()

		ctx := context.Background()
		va, erra := a(ctx, cacheHandler{}, cachePayload{n: 21})
		vb, errb := b(ctx, cacheHandler{}, cachePayload{n: 21})

		if erra != nil || errb != nil {
			t.Fatalf("unexpected errors: %v, %v", erra, errb)
		}
		if va != vb {
			t.Errorf("thunks disagree: %v vs %v", va, vb)
		}
	})

	t.Run("concurrent first-use population is safe", func(t *testing.T) {
		var cache invocationCache
		var wg sync.WaitGroup

		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				th := cache.load(key, compileRequestThunk[cachePayload, int])
				v, err := th(context.Background(), cacheHandler{}, cachePayload{n: 3})
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if v != 6 {
					t.Errorf("value = %v, want 6", v)
				}
			}()
		}
		wg.Wait()
	})

	t.Run("nil payload maps to zero value", func(t *testing.T) {
		th := compileRequestThunk[cachePayload, int]()
		v, err := th(context.Background(), cacheHandler{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 0 {
			t.Errorf("value = %v, want 0 from zero-value payload", v)
		}
	})

	t.Run("incompatible payload returns missing handle", func(t *testing.T) {
		th := compileRequestThunk[cachePayload, int]()
		_, err := th(context.Background(), cacheHandler{}, "not a payload")
		if err == nil {
			t.Fatal("expected error")
		}
		if err.Code() != CodeHandlerMissing {
			t.Errorf("Code() = %q, want %q", err.Code(), CodeHandlerMissing)
		}
		if _, ok := err.MetaValue("handler_type"); !ok {
			t.Error("expected handler_type metadata")
		}
		if _, ok := err.MetaValue("runtime_type"); !ok {
			t.Error("expected runtime_type metadata")
		}
	})

	t.Run("incompatible handler returns missing handle", func(t *testing.T) {
		th := compileRequestThunk[cachePayload, int]()
		_, err := th(context.Background(), "not a handler", cachePayload{})
		if err == nil {
			t.Fatal("expected error")
		}
		if err.Code() != CodeHandlerMissing {
			t.Errorf("Code() = %q, want %q", err.Code(), CodeHandlerMissing)
		}
	})
}
