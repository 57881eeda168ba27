package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rendis/browseract/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// scriptSchemaJSON is the JSON Schema for an action request file.
// Embedded as a constant to avoid filesystem dependencies.
const scriptSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://browseract.dev/schemas/script.json",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name"],
    "properties": {
      "name": { "type": "string", "minLength": 1 },
      "args": { "type": "object" }
    },
    "additionalProperties": false
  }
}`

const scriptSchemaURL = "https://browseract.dev/schemas/script.json"

// JSONSchemaValidator validates action arguments and request files using
// JSON Schema Draft 2020-12. It is safe for concurrent use.
type JSONSchemaValidator struct {
	scriptSchema *jsonschema.Schema

	// mu guards the cache of compiled parameter schemas.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the script schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newCompiler()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(scriptSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal script schema: %w", err)
	}
	if err := c.AddResource(scriptSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add script schema resource: %w", err)
	}
	compiled, err := c.Compile(scriptSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile script schema: %w", err)
	}

	return &JSONSchemaValidator{
		scriptSchema: compiled,
		cache:        make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateScript checks a decoded request file against the script schema.
// The document must already be JSON-compatible (maps, slices, json.Number or float64).
func (v *JSONSchemaValidator) ValidateScript(doc any) error {
	normalized, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeScriptInvalid, "failed to serialize script").WithCause(err)
	}
	if err := v.scriptSchema.Validate(normalized); err != nil {
		return toSchemaError(schema.ErrCodeScriptInvalid, err)
	}
	return nil
}

// ValidateArgs validates action arguments against a JSON Schema provided as raw bytes.
// The schema is compiled once and cached.
func (v *JSONSchemaValidator) ValidateArgs(args map[string]any, paramSchema []byte) error {
	if len(paramSchema) == 0 {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}

	compiled, err := v.getOrCompile(paramSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeInvalidArguments, "invalid parameter schema").WithCause(err)
	}

	doc, err := toJSONValue(args)
	if err != nil {
		return schema.NewError(schema.ErrCodeInvalidArguments, "failed to serialize arguments").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toSchemaError(schema.ErrCodeInvalidArguments, err)
	}
	return nil
}

// CompileCheck compiles a parameter schema without validating anything, so that
// broken schemas surface at registration time rather than on first use.
func (v *JSONSchemaValidator) CompileCheck(paramSchema []byte) error {
	if len(paramSchema) == 0 {
		return nil
	}
	_, err := v.getOrCompile(paramSchema)
	return err
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := fmt.Sprintf("browseract://params/%d", len(v.cache))

	// A fresh compiler per schema avoids resource collisions.
	c := newCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// newCompiler creates a Compiler that asserts "format" keywords (uri etc).
func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// Decode converts validated arguments into the typed params value pointed to by
// target. Fields already set on target act as defaults for absent arguments.
func Decode(args map[string]any, target any) error {
	b, err := json.Marshal(args)
	if err != nil {
		return schema.NewError(schema.ErrCodeInvalidArguments, "failed to serialize arguments").WithCause(err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(target); err != nil {
		return schema.NewErrorf(schema.ErrCodeInvalidArguments, "decode arguments: %v", err).WithCause(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// toSchemaError converts a jsonschema.ValidationError into a schema.Error
// carrying every leaf violation with its instance location.
func toSchemaError(code string, err error) *schema.Error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(code, err.Error()).WithCause(err)
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(code, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(code, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors: %s", len(violations), strings.Join(violations, "; "))
	return schema.NewError(code, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, leafMessage(verr))}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

// leafMessage strips the "jsonschema validation failed with ..." preamble the
// library prefixes to top-level errors, keeping the keyword message.
func leafMessage(verr *jsonschema.ValidationError) string {
	msg := verr.Error()
	if i := strings.LastIndex(msg, "\n"); i >= 0 {
		msg = msg[i+1:]
	}
	msg = strings.TrimSpace(msg)
	msg = strings.TrimPrefix(msg, "- ")
	if j := strings.Index(msg, "': "); j >= 0 && strings.HasPrefix(msg, "at '") {
		msg = msg[j+3:]
	}
	return msg
}
