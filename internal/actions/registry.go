package actions

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rendis/browseract/internal/validation"
	"github.com/rendis/browseract/pkg/schema"
)

// Registry maps action names to their parameter schema and executor.
// It is safe for concurrent use. Build one at startup and pass it around.
type Registry struct {
	mu        sync.RWMutex
	bindings  map[string]*binding
	validator *validation.JSONSchemaValidator
}

// NewRegistry creates an empty Registry that validates arguments with v.
func NewRegistry(v *validation.JSONSchemaValidator) *Registry {
	return &Registry{
		bindings:  make(map[string]*binding),
		validator: v,
	}
}

// Register binds name to exec and an optional parameter spec. A later
// registration of the same name replaces the earlier one.
// It panics on an empty name, a nil executor or a schema that does not compile.
func (r *Registry) Register(name string, exec Executor, spec *ParamSpec) {
	if name == "" {
		panic("actions: Register with empty name")
	}
	if exec == nil {
		panic(fmt.Sprintf("actions: Register %q with nil executor", name))
	}

	b := &binding{meta: ActionMeta{Name: name}, exec: exec, spec: spec}
	if spec != nil {
		if err := r.validator.CompileCheck(spec.Schema); err != nil {
			panic(fmt.Sprintf("actions: Register %q: %v", name, err))
		}
		b.meta.Description = spec.Description
		b.meta.ParamSchema = spec.Schema
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[name] = b
}

func (r *Registry) lookup(name string) (*binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotRegistered, "action %q not registered", name).WithAction(name)
	}
	return b, nil
}

// Resolve returns the executor bound to name.
func (r *Registry) Resolve(name string) (Executor, error) {
	b, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return b.exec, nil
}

// Schema returns the parameter schema bound to name, which may be nil.
func (r *Registry) Schema(name string) ([]byte, error) {
	b, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if len(b.meta.ParamSchema) == 0 {
		return nil, nil
	}
	return b.meta.ParamSchema, nil
}

// ValidateRequest checks req against its binding. When the binding has no
// schema the returned params are nil and the arguments pass unchecked.
func (r *Registry) ValidateRequest(req schema.ActionRequest) (ActionMeta, any, error) {
	b, err := r.lookup(req.Name)
	if err != nil {
		return ActionMeta{}, nil, err
	}
	if b.spec == nil || len(b.spec.Schema) == 0 {
		return b.meta, nil, nil
	}

	if err := r.validator.ValidateArgs(req.Args, b.spec.Schema); err != nil {
		if sErr, ok := err.(*schema.Error); ok {
			sErr.WithAction(req.Name)
		}
		return b.meta, nil, err
	}

	if b.spec.New == nil {
		args := req.Args
		if args == nil {
			args = map[string]any{}
		}
		return b.meta, args, nil
	}

	params := b.spec.New()
	if err := validation.Decode(req.Args, params); err != nil {
		if sErr, ok := err.(*schema.Error); ok {
			sErr.WithAction(req.Name)
		}
		return b.meta, nil, err
	}
	if n, ok := params.(normalizer); ok {
		n.normalize()
	}
	return b.meta, params, nil
}

// List returns metadata for every registered action, sorted by name.
func (r *Registry) List() []ActionMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metas := make([]ActionMeta, 0, len(r.bindings))
	for _, b := range r.bindings {
		metas = append(metas, b.meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].Name < metas[j].Name
	})
	return metas
}

// Has checks if an action is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bindings[name]
	return ok
}

// Count returns the number of registered actions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}

// Reset removes every binding.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = make(map[string]*binding)
}
