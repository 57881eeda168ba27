package actions

import (
	"context"
	"encoding/json"

	"github.com/rendis/browseract/internal/driver"
	"github.com/rendis/browseract/pkg/schema"
)

// Executor performs one action against a browser session. params is the value
// produced by the binding's ParamSpec, or nil when the binding has no schema.
// Driver failures are returned as *schema.ActionError.
type Executor func(ctx context.Context, d driver.Driver, s driver.Session, params any) (*schema.ActionResult, error)

// ParamSpec binds a parameter schema to the typed value it decodes into.
type ParamSpec struct {
	Description string
	// Schema is a JSON Schema (draft 2020-12) for the raw arguments.
	Schema json.RawMessage
	// New returns a pointer to a params value pre-filled with defaults.
	// When nil, the validated arguments map itself is handed to the executor.
	New func() any
}

// ActionMeta describes a registered action.
type ActionMeta struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ParamSchema json.RawMessage `json:"param_schema,omitempty"`
}

// normalizer is implemented by params that clean up decoded values, such as
// trimming selectors.
type normalizer interface {
	normalize()
}

// binding is what the registry stores per name.
type binding struct {
	meta ActionMeta
	exec Executor
	spec *ParamSpec
}
