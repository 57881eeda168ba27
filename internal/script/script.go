// Package script loads action request files.
//
// A script is a JSON array of {"name": ..., "args": {...}} objects. Files
// ending in .yaml or .yml hold the same structure in YAML. The whole document
// is checked against the script schema before any request is returned.
package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/browseract/internal/validation"
	"github.com/rendis/browseract/pkg/schema"
)

// Format is the encoding of a script file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from the file extension. Anything that is not
// .yaml or .yml is read as JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads and validates the script at path.
func Load(path string, v validation.Validator) ([]schema.ActionRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	reqs, err := Parse(data, FormatOf(path), v)
	if err != nil {
		var sErr *schema.Error
		if errors.As(err, &sErr) {
			if sErr.Details == nil {
				sErr.Details = map[string]any{}
			}
			sErr.Details["path"] = path
		}
		return nil, err
	}
	return reqs, nil
}

// Parse decodes data in the given format and validates it. Structural
// problems are reported as SCRIPT_INVALID errors.
func Parse(data []byte, format Format, v validation.Validator) ([]schema.ActionRequest, error) {
	var doc any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, schema.NewError(schema.ErrCodeScriptInvalid, "malformed YAML").WithCause(err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, schema.NewError(schema.ErrCodeScriptInvalid, "malformed JSON").WithCause(err)
		}
	}
	return FromDocument(doc, v)
}

// FromDocument validates an already decoded script document (a []any of
// request objects) and converts it to requests.
func FromDocument(doc any, v validation.Validator) ([]schema.ActionRequest, error) {
	if err := v.ValidateScript(doc); err != nil {
		return nil, err
	}

	// The document is schema-valid, so the JSON round trip below cannot
	// lose information.
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeScriptInvalid, "failed to serialize script").WithCause(err)
	}
	var reqs []schema.ActionRequest
	if err := json.Unmarshal(b, &reqs); err != nil {
		return nil, schema.NewError(schema.ErrCodeScriptInvalid, "decode requests").WithCause(err)
	}
	for i := range reqs {
		reqs[i] = schema.NewRequest(reqs[i].Name, reqs[i].Args)
	}
	if reqs == nil {
		reqs = []schema.ActionRequest{}
	}
	return reqs, nil
}
