package validation

// Validator checks request files and action arguments before execution.
// Uses JSON Schema Draft 2020-12.
type Validator interface {
	ValidateScript(doc any) error
	ValidateArgs(args map[string]any, paramSchema []byte) error
}

var _ Validator = (*JSONSchemaValidator)(nil)
