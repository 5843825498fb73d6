package mediate

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when gateway input is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// View provides format-agnostic field access for discriminator matching.
type View interface {
	// HasField reports whether the path exists in the message.
	HasField(path string) bool

	// GetString returns the string value at path, or false if not found
	// or not a string.
	GetString(path string) (string, bool)

	// GetBytes returns the raw bytes at path, or false if not found. For
	// JSON this is the raw value, including quotes for strings.
	GetBytes(path string) ([]byte, bool)
}

// Inspector parses raw bytes into a View. The default gateway inspector
// handles JSON; supply another for different envelope formats.
type Inspector interface {
	Inspect(raw []byte) (View, error)
}

// Discriminator is a cheap predicate over a View, evaluated before a
// source's full Parse. Combine discriminators with AllOf, AnyOf, and Not.
type Discriminator func(v View) bool

// HasFields matches when every path exists.
func HasFields(paths ...string) Discriminator {
	return func(v View) bool {
		for _, p := range paths {
			if !v.HasField(p) {
				return false
			}
		}
		return true
	}
}

// FieldEquals matches when the path exists and equals value.
func FieldEquals(path, value string) Discriminator {
	return func(v View) bool {
		s, ok := v.GetString(path)
		return ok && s == value
	}
}

// AllOf matches when every discriminator matches.
func AllOf(ds ...Discriminator) Discriminator {
	return func(v View) bool {
		for _, d := range ds {
			if !d(v) {
				return false
			}
		}
		return true
	}
}

// AnyOf matches when at least one discriminator matches.
func AnyOf(ds ...Discriminator) Discriminator {
	return func(v View) bool {
		for _, d := range ds {
			if d(v) {
				return true
			}
		}
		return false
	}
}

// Not inverts a discriminator.
func Not(d Discriminator) Discriminator {
	return func(v View) bool {
		return !d(v)
	}
}

// JSONInspector returns the gjson-backed inspector the gateway uses by
// default.
func JSONInspector() Inspector {
	return jsonInspector{}
}

type jsonInspector struct{}

func (jsonInspector) Inspect(raw []byte) (View, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}
	return jsonView{raw: raw}, nil
}

type jsonView struct {
	raw []byte
}

func (v jsonView) HasField(path string) bool {
	return gjson.GetBytes(v.raw, path).Exists()
}

func (v jsonView) GetString(path string) (string, bool) {
	r := gjson.GetBytes(v.raw, path)
	if !r.Exists() || r.Type != gjson.String {
		return "", false
	}
	return r.String(), true
}

func (v jsonView) GetBytes(path string) ([]byte, bool) {
	r := gjson.GetBytes(v.raw, path)
	if !r.Exists() {
		return nil, false
	}
	return []byte(r.Raw), true
}
