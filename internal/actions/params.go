package actions

import (
	"encoding/json"
	"strings"

	"github.com/rendis/browseract/internal/driver"
)

// DefaultTimeoutMS is used when an action with a timeout_ms parameter omits it.
const DefaultTimeoutMS = 10000

// MaxTypeLength is the longest text the type action accepts, in characters.
const MaxTypeLength = 4000

// OpenURLParams are the parameters of open_url.
type OpenURLParams struct {
	URL string `json:"url"`
}

// WaitForParams are the parameters of wait_for.
type WaitForParams struct {
	Selector  string `json:"selector"`
	TimeoutMS int    `json:"timeout_ms"`
}

func (p *WaitForParams) normalize() { p.Selector = strings.TrimSpace(p.Selector) }

// ClickParams are the parameters of click.
type ClickParams struct {
	Selector string `json:"selector"`
}

func (p *ClickParams) normalize() { p.Selector = strings.TrimSpace(p.Selector) }

// TypeParams are the parameters of type.
type TypeParams struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

func (p *TypeParams) normalize() { p.Selector = strings.TrimSpace(p.Selector) }

// ExtractTextParams are the parameters of extract_text.
type ExtractTextParams struct {
	Selector string `json:"selector"`
}

func (p *ExtractTextParams) normalize() { p.Selector = strings.TrimSpace(p.Selector) }

// UploadResumeParams are the parameters of upload_resume.
type UploadResumeParams struct {
	Selector  string `json:"selector"`
	FilePath  string `json:"file_path"`
	TimeoutMS int    `json:"timeout_ms"`
}

func (p *UploadResumeParams) normalize() { p.Selector = strings.TrimSpace(p.Selector) }

// SelectOptionParams are the parameters of select_option.
type SelectOptionParams struct {
	Selector  string          `json:"selector"`
	Value     string          `json:"value"`
	By        driver.SelectBy `json:"by"`
	TimeoutMS int             `json:"timeout_ms"`
}

func (p *SelectOptionParams) normalize() { p.Selector = strings.TrimSpace(p.Selector) }

// CheckParams are the parameters of check.
type CheckParams struct {
	Selector  string `json:"selector"`
	TimeoutMS int    `json:"timeout_ms"`
}

func (p *CheckParams) normalize() { p.Selector = strings.TrimSpace(p.Selector) }

// SnapshotParams are the parameters of snapshot.
type SnapshotParams struct {
	Path     string `json:"path"`
	FullPage bool   `json:"full_page"`
}

// Selectors must contain at least one non-space character; they are trimmed
// after decoding.
const selectorProp = `{ "type": "string", "pattern": "\\S" }`

// A null or missing timeout_ms falls back to DefaultTimeoutMS.
const timeoutProp = `{ "type": ["integer", "null"], "minimum": 1 }`

var (
	openURLSchema = json.RawMessage(`{
  "type": "object",
  "required": ["url"],
  "properties": {
    "url": { "type": "string", "format": "uri", "pattern": "^[hH][tT][tT][pP][sS]?://[^/?#\\s]+" }
  }
}`)

	waitForSchema = json.RawMessage(`{
  "type": "object",
  "required": ["selector"],
  "properties": {
    "selector": ` + selectorProp + `,
    "timeout_ms": { "type": ["integer", "null"], "minimum": 1, "maximum": 60000 }
  }
}`)

	clickSchema = json.RawMessage(`{
  "type": "object",
  "required": ["selector"],
  "properties": {
    "selector": ` + selectorProp + `
  }
}`)

	typeSchema = json.RawMessage(`{
  "type": "object",
  "required": ["selector", "text"],
  "properties": {
    "selector": ` + selectorProp + `,
    "text": { "type": "string", "maxLength": 4000 }
  }
}`)

	extractTextSchema = clickSchema

	uploadResumeSchema = json.RawMessage(`{
  "type": "object",
  "required": ["selector", "file_path"],
  "properties": {
    "selector": ` + selectorProp + `,
    "file_path": { "type": "string", "minLength": 1 },
    "timeout_ms": ` + timeoutProp + `
  }
}`)

	selectOptionSchema = json.RawMessage(`{
  "type": "object",
  "required": ["selector", "value"],
  "properties": {
    "selector": ` + selectorProp + `,
    "value": { "type": "string" },
    "by": { "enum": ["value", "label"] },
    "timeout_ms": ` + timeoutProp + `
  }
}`)

	checkSchema = json.RawMessage(`{
  "type": "object",
  "required": ["selector"],
  "properties": {
    "selector": ` + selectorProp + `,
    "timeout_ms": ` + timeoutProp + `
  }
}`)

	snapshotSchema = json.RawMessage(`{
  "type": "object",
  "required": ["path"],
  "properties": {
    "path": { "type": "string", "minLength": 1 },
    "full_page": { "type": "boolean" }
  }
}`)
)

// paramsOf builds a ParamSpec whose New returns a copy of defaults.
func paramsOf[P any](description string, s json.RawMessage, defaults P) *ParamSpec {
	return &ParamSpec{
		Description: description,
		Schema:      s,
		New: func() any {
			p := defaults
			return &p
		},
	}
}
