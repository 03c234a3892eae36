package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema validates the (possibly unwrapped) payload and yields the value
// handlers receive. A nil Schema on an event registration accepts anything
// and passes the decoded JSON through.
type Schema interface {
	// Validate receives the decoded JSON payload and returns the value to
	// hand to handlers, or a structured validation error.
	Validate(payload any) (any, error)
}

// SchemaFunc adapts a function to the Schema interface, typically to decode
// into a concrete struct.
type SchemaFunc func(payload any) (any, error)

// Validate implements Schema.
func (f SchemaFunc) Validate(payload any) (any, error) { return f(payload) }

// jsonSchema wraps a compiled JSON Schema document.
type jsonSchema struct {
	compiled *jsonschema.Schema
}

// Validate implements Schema. The payload passes through unchanged on
// success.
func (s *jsonSchema) Validate(payload any) (any, error) {
	if err := s.compiled.Validate(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// CompileSchema compiles a JSON Schema document into a Schema.
func CompileSchema(source string) (Schema, error) {
	compiled, err := jsonschema.CompileString("schema.json", source)
	if err != nil {
		return nil, fmt.Errorf("webhook: compile schema: %w", err)
	}
	return &jsonSchema{compiled: compiled}, nil
}

// MustCompileSchema is CompileSchema that panics on error, for package-level
// event declarations.
func MustCompileSchema(source string) Schema {
	s, err := CompileSchema(source)
	if err != nil {
		panic(err)
	}
	return s
}

// DecodeInto returns a SchemaFunc that re-encodes the payload into T, so
// handlers can type-assert a concrete struct instead of walking maps.
func DecodeInto[T any]() SchemaFunc {
	return func(payload any) (any, error) {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
