package mediate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrNoSource is returned by Gateway.Process when no source's discriminator
// matches the raw message.
var ErrNoSource = errors.New("no source matched message")

// ErrNoBinding is returned by Gateway.Process when a source parsed the
// message but no notification type is bound to the envelope key.
var ErrNoBinding = errors.New("no binding for envelope key")

// Envelope is the result of source parsing: the binding key and the raw
// payload to decode into the bound notification type.
type Envelope struct {
	Key     string
	Payload json.RawMessage
}

// Source parses raw message bytes into an Envelope. Sources are matched
// with their Discriminator before Parse is called, so detection stays cheap
// when the format doesn't match.
type Source interface {
	// Name returns the source identifier for logging.
	Name() string

	// Discriminator returns the predicate used for cheap detection.
	Discriminator() Discriminator

	// Parse attempts to parse raw bytes as this source's format.
	Parse(raw []byte) (Envelope, error)
}

// SourceFunc creates a Source from a name, discriminator, and parse
// function. Use for simple sources that don't need a struct:
//
//	g.AddSource(mediate.SourceFunc("legacy", mediate.HasFields("type", "payload"),
//	    func(raw []byte) (mediate.Envelope, error) {
//	        // parse logic
//	    }))
func SourceFunc(name string, disc Discriminator, parse func([]byte) (Envelope, error)) Source {
	return &sourceFunc{name: name, disc: disc, parse: parse}
}

type sourceFunc struct {
	name  string
	disc  Discriminator
	parse func([]byte) (Envelope, error)
}

func (s *sourceFunc) Name() string { return s.name }

func (s *sourceFunc) Discriminator() Discriminator { return s.disc }

func (s *sourceFunc) Parse(raw []byte) (Envelope, error) { return s.parse(raw) }

// validatable is the interface for payload validation after decoding.
// Compatible with github.com/go-ozzo/ozzo-validation/v4.
type validatable interface {
	Validate() error
}

// ingest decodes a parsed payload and publishes it through the mediator.
type ingest func(ctx context.Context, payload json.RawMessage) error

// Gateway is the JSON front door for the mediator: it matches raw bytes to
// a Source, parses them into an Envelope, decodes the payload into the
// notification type bound to the envelope key, and publishes it.
//
// Gateway is safe for concurrent use after configuration. Do not call
// AddSource or Bind after calling Process.
type Gateway struct {
	mediator  *Mediator
	inspector Inspector
	sources   []Source
	bindings  map[string]ingest
	logger    *zap.Logger

	// Adaptive ordering: try the last successful source first.
	lastMatch atomic.Value // stores string
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayInspector overrides the default JSON inspector.
func WithGatewayInspector(i Inspector) GatewayOption {
	return func(g *Gateway) {
		if i != nil {
			g.inspector = i
		}
	}
}

// WithGatewayLogger sets the logger for routing misses and decode failures.
func WithGatewayLogger(logger *zap.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGateway creates a Gateway publishing into m.
func NewGateway(m *Mediator, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		mediator:  m,
		inspector: JSONInspector(),
		bindings:  make(map[string]ingest),
		logger:    m.logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddSource registers a source. Sources are matched by their discriminator
// in registration order, with the last successful source tried first.
func (g *Gateway) AddSource(s Source) {
	g.sources = append(g.sources, s)
}

// Bind associates an envelope key with a notification type. Payloads
// arriving under the key are unmarshaled into T, validated if T implements
// Validate() error, and published through the mediator.
//
// This is a package-level function (not a method) due to Go generics
// limitations: methods cannot have type parameters independent of the
// receiver.
//
// Example:
//
//	mediate.Bind[UserCreated](g, "user/created")
func Bind[T any](g *Gateway, key string) {
	g.bindings[key] = func(ctx context.Context, payload json.RawMessage) error {
		var note T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &note); err != nil {
				return fmt.Errorf("unmarshal payload for %q: %w", key, err)
			}
		}

		if v, ok := any(note).(validatable); ok {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("validate payload for %q: %w", key, err)
			}
		} else if v, ok := any(&note).(validatable); ok {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("validate payload for %q: %w", key, err)
			}
		}

		if res := g.mediator.Publish(ctx, note); res.IsFailure() {
			return res.Err()
		}
		return nil
	}
}

// Process matches, parses, decodes, and publishes one raw message.
//
// Failures before the mediator is reached (no source, parse error, unknown
// key, bad payload) are plain errors; once the notification is published,
// any dispatch failure is the *Error from the mediator's Result.
func (g *Gateway) Process(ctx context.Context, raw []byte) error {
	source, err := g.match(raw)
	if err != nil {
		return err
	}
	if source == nil {
		g.logger.Warn("no source matched message")
		return ErrNoSource
	}

	env, err := source.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse failed for source %s: %w", source.Name(), err)
	}

	in, ok := g.bindings[env.Key]
	if !ok {
		g.logger.Warn("no binding for envelope key",
			zap.String("source", source.Name()),
			zap.String("key", env.Key),
		)
		return fmt.Errorf("%w: %s", ErrNoBinding, env.Key)
	}

	return in(ctx, env.Payload)
}

// match finds a source whose discriminator accepts the raw message, trying
// the last successful source first.
func (g *Gateway) match(raw []byte) (Source, error) {
	view, err := g.inspector.Inspect(raw)
	if err != nil {
		return nil, err
	}

	if v := g.lastMatch.Load(); v != nil {
		if name, ok := v.(string); ok && name != "" {
			for _, src := range g.sources {
				if src.Name() == name && src.Discriminator()(view) {
					return src, nil
				}
			}
		}
	}

	for _, src := range g.sources {
		if src.Discriminator()(view) {
			g.lastMatch.Store(src.Name())
			return src, nil
		}
	}
	return nil, nil
}
