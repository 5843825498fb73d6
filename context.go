package mediate

// Stage identifies where in the request pipeline execution currently is. It
// is recorded in error metadata when a defect is intercepted.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StagePre      Stage = "pre"
	StagePipeline Stage = "pipeline"
	StageHandler  Stage = "handler"
	StagePost     Stage = "post"
)

// CallContext is the explicit per-dispatch state passed to every behavior.
// There is no ambient or goroutine-local state anywhere in the engine; what
// a layer needs to know about the call, it reads from here.
//
// A CallContext belongs to exactly one dispatch and must not be retained
// after the call returns.
type CallContext struct {
	// RequestType is the name of the request's static type.
	RequestType string

	// ResponseType is the name of the response type the caller expects.
	ResponseType string

	// HandlerType is the name of the resolved handler's concrete type.
	// Empty until resolution succeeds.
	HandlerType string

	// Kind is the request's metric label.
	Kind Kind

	scope  *Scope
	stage  Stage
	values map[string]any
}

// Scope returns the dispatch's resolution scope. Behaviors may adopt
// closers into it; they are released when the dispatch returns.
func (c *CallContext) Scope() *Scope { return c.scope }

// Stage returns the pipeline stage currently executing.
func (c *CallContext) Stage() Stage { return c.stage }

// Set stores a scratch value visible to downstream behaviors and to
// upstream behaviors during unwinding.
func (c *CallContext) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

// Get returns a scratch value stored by Set.
func (c *CallContext) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}
