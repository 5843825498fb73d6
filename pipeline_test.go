package mediate

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// trace records the observable timeline of one dispatch.
type trace struct {
	events []string
}

func (tr *trace) add(e string) { tr.events = append(tr.events, e) }

func tracedBehavior(tr *trace, name string) BehaviorFunc[ping, string] {
	return func(ctx context.Context, call *CallContext, p ping, next Next[string]) Result[string] {
		tr.add("enter " + name)
		res := next(ctx)
		tr.add("exit " + name)
		return res
	}
}

func TestPipeline_Ordering(t *testing.T) {
	t.Run("behaviors nest in registration order", func(t *testing.T) {
		m := New()
		tr := &trace{}
		RegisterBehavior[ping, string](m, tracedBehavior(tr, "B1"))
		RegisterBehavior[ping, string](m, tracedBehavior(tr, "B2"))
		RegisterBehavior[ping, string](m, tracedBehavior(tr, "B3"))
		RegisterHandlerFunc(m, func(ctx context.Context, p ping) Result[string] {
			tr.add("handler")
			return Ok("pong")
		})

		res := Send[ping, string](context.Background(), m, ping{})

		if res.IsFailure() {
			t.Fatalf("unexpected failure: %v", res.Err())
		}
		want := []string{"enter B1", "enter B2", "enter B3", "handler", "exit B3", "exit B2", "exit B1"}
		if !reflect.DeepEqual(tr.events, want) {
			t.Errorf("timeline = %v, want %v", tr.events, want)
		}
	})

	t.Run("full timeline with processors", func(t *testing.T) {
		m := New()
		tr := &trace{}
		RegisterPreProcessorFunc(m, func(ctx context.Context, p ping) error {
			tr.add("pre P1")
			return nil
		})
		RegisterPreProcessorFunc(m, func(ctx context.Context, p ping) error {
			tr.add("pre P2")
			return nil
		})
		RegisterBehavior[ping, string](m, tracedBehavior(tr, "B1"))
		RegisterBehavior[ping, string](m, tracedBehavior(tr, "B2"))
		RegisterPostProcessorFunc(m, func(ctx context.Context, p ping, res Result[string]) error {
			tr.add("post Q1")
			return nil
		})
		RegisterPostProcessorFunc(m, func(ctx context.Context, p ping, res Result[string]) error {
			tr.add("post Q2")
			return nil
		})
		RegisterHandlerFunc(m, func(ctx context.Context, p ping) Result[string] {
			tr.add("handler")
			return Ok("pong")
		})

		Send[ping, string](context.Background(), m, ping{})

		want := []string{"pre P1", "pre P2", "enter B1", "enter B2", "handler", "exit B2", "exit B1", "post Q1", "post Q2"}
		if !reflect.DeepEqual(tr.events, want) {
			t.Errorf("timeline = %v, want %v", tr.events, want)
		}
	})

	t.Run("handler failure skips post-processors but not behavior unwinding", func(t *testing.T) {
		m := New()
		tr := &trace{}
		RegisterPreProcessorFunc(m, func(ctx context.Context, p ping) error {
			tr.add("pre P1")
			return nil
		})
		RegisterBehavior[ping, string](m, tracedBehavior(tr, "B1"))
		RegisterBehavior[ping, string](m, tracedBehavior(tr, "B2"))
		RegisterPostProcessorFunc(m, func(ctx context.Context, p ping, res Result[string]) error {
			tr.add("post Q1")
			return nil
		})
		RegisterHandlerFunc(m, func(ctx context.Context, p ping) Result[string] {
			tr.add("handler")
			return Fail[string](NewError("nope", "handler failed"))
		})

		res := Send[ping, string](context.Background(), m, ping{})

		if res.IsOK() {
			t.Fatal("expected failure")
		}
		want := []string{"pre P1", "enter B1", "enter B2", "handler", "exit B2", "exit B1"}
		if !reflect.DeepEqual(tr.events, want) {
			t.Errorf("timeline = %v, want %v", tr.events, want)
		}
	})
}

func TestPipeline_ShortCircuit(t *testing.T) {
	t.Run("behavior result replaces the chain result without calling downstream", func(t *testing.T) {
		m := New()
		tr := &trace{}
		short := NewError("throttled", "too many requests")
		RegisterBehaviorFunc(m, func(ctx context.Context, call *CallContext, p ping, next Next[string]) Result[string] {
			tr.add("enter B1")
			return Fail[string](short)
		})
		RegisterBehavior[ping, string](m, tracedBehavior(tr, "B2"))
		RegisterHandlerFunc(m, func(ctx context.Context, p ping) Result[string] {
			tr.add("handler")
			return Ok("pong")
		})
		RegisterPostProcessorFunc(m, func(ctx context.Context, p ping, res Result[string]) error {
			tr.add("post Q1")
			return nil
		})

		res := Send[ping, string](context.Background(), m, ping{})

		if res.Err() != short {
			t.Errorf("Err() = %v, want the behavior's own error", res.Err())
		}
		want := []string{"enter B1"}
		if !reflect.DeepEqual(tr.events, want) {
			t.Errorf("timeline = %v, want %v", tr.events, want)
		}
	})

	t.Run("calling next twice is a pipeline error", func(t *testing.T) {
		m := New()
		RegisterBehaviorFunc(m, func(ctx context.Context, call *CallContext, p ping, next Next[string]) Result[string] {
			next(ctx)
			return next(ctx)
		})
		RegisterHandlerFunc(m, func(ctx context.Context, p ping) Result[string] {
			return Ok("pong")
		})

		res := Send[ping, string](context.Background(), m, ping{})

		if res.Err().Code() != CodePipelineException {
			t.Errorf("Code() = %q, want %q", res.Err().Code(), CodePipelineException)
		}
	})
}

func TestPipeline_Processors(t *testing.T) {
	t.Run("pre-processor error fails the dispatch before the chain", func(t *testing.T) {
		m := New()
		tr := &trace{}
		cause := errors.New("not ready")
		RegisterPreProcessorFunc(m, func(ctx context.Context, p ping) error {
			return cause
		})
		RegisterBehavior[ping, string](m, tracedBehavior(tr, "B1"))
		RegisterHandlerFunc(m, func(ctx context.Context, p ping) Result[string] {
			tr.add("handler")
			return Ok("pong")
		})

		res := Send[ping, string](context.Background(), m, ping{})

		if res.Err().Code() != CodePipelineException {
			t.Errorf("Code() = %q, want %q", res.Err().Code(), CodePipelineException)
		}
		if !errors.Is(res.Err(), cause) {
			t.Error("expected pre-processor error as cause")
		}
		if stage, _ := res.Err().MetaValue("stage"); stage != string(StagePre) {
			t.Errorf("stage = %q, want %q", stage, StagePre)
		}
		if len(tr.events) != 0 {
			t.Errorf("downstream ran after pre-processor failure: %v", tr.events)
		}
	})

	t.Run("post-processor observes the final result but cannot change it", func(t *testing.T) {
		m := New()
		var seen Result[string]
		RegisterPostProcessorFunc(m, func(ctx context.Context, p ping, res Result[string]) error {
			seen = res
			return errors.New("post failed")
		})
		RegisterHandlerFunc(m, func(ctx context.Context, p ping) Result[string] {
			return Ok("pong")
		})

		res := Send[ping, string](context.Background(), m, ping{})

		if res.IsFailure() {
			t.Fatalf("post-processor error changed the result: %v", res.Err())
		}
		if res.Value() != "pong" {
			t.Errorf("Value() = %q, want %q", res.Value(), "pong")
		}
		if seen.Value() != "pong" {
			t.Errorf("post-processor observed %q, want %q", seen.Value(), "pong")
		}
	})

	t.Run("behavior with mismatched response type fails dispatch", func(t *testing.T) {
		m := New()
		RegisterBehaviorFunc(m, func(ctx context.Context, call *CallContext, p ping, next Next[int]) Result[int] {
			return next(ctx)
		})
		RegisterHandlerFunc(m, func(ctx context.Context, p ping) Result[string] {
			return Ok("pong")
		})

		res := Send[ping, string](context.Background(), m, ping{})

		if res.Err().Code() != CodePipelineException {
			t.Errorf("Code() = %q, want %q", res.Err().Code(), CodePipelineException)
		}
	})
}
