package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for structured error reporting.
const (
	ErrCodeNotRegistered    = "NOT_REGISTERED"
	ErrCodeInvalidArguments = "INVALID_ARGUMENTS"
	ErrCodeExecution        = "ACTION_EXECUTION"
	ErrCodeScriptInvalid    = "SCRIPT_INVALID"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeDriver           = "DRIVER_ERROR"
	ErrCodePolicyViolation  = "POLICY_VIOLATION"
	ErrCodeQuery            = "QUERY_ERROR"
)

// nonRetryableCodes are deterministic failures: running the step again cannot help.
var nonRetryableCodes = map[string]bool{
	ErrCodeNotRegistered:    true,
	ErrCodeInvalidArguments: true,
	ErrCodeScriptInvalid:    true,
	ErrCodeCancelled:        true,
	ErrCodePolicyViolation:  true,
	ErrCodeQuery:            true,
}

// Error is the structured error type for registry, validation and script failures.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Action  string         `json:"action,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("[%s] action %s: %s", e.Code, e.Action, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the failure may succeed on another attempt.
func (e *Error) IsRetryable() bool {
	return !nonRetryableCodes[e.Code]
}

// NewError creates a new Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithAction attaches an action name to the error.
func (e *Error) WithAction(name string) *Error {
	e.Action = name
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Violations returns the field-level messages recorded by schema validation, if any.
func (e *Error) Violations() []string {
	v, _ := e.Details["violations"].([]string)
	return v
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none.
// An *ActionError always reports ErrCodeExecution.
func CodeOf(err error) string {
	var actErr *ActionError
	if errors.As(err, &actErr) {
		return ErrCodeExecution
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ActionError is returned by an executor when the underlying driver primitive
// fails. It is the only failure kind the runner retries.
type ActionError struct {
	Action   string         `json:"action"`
	Message  string         `json:"message"`
	Selector string         `json:"selector,omitempty"`
	URL      string         `json:"url,omitempty"`
	Path     string         `json:"path,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Cause    error          `json:"-"`
}

// NewActionError creates an ActionError for the named action.
func NewActionError(action, message string, cause error) *ActionError {
	return &ActionError{Action: action, Message: message, Cause: cause}
}

func (e *ActionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Action)
	b.WriteString(": ")
	b.WriteString(e.Message)

	var ctx []string
	if e.Selector != "" {
		ctx = append(ctx, fmt.Sprintf("selector=%q", e.Selector))
	}
	if e.URL != "" {
		ctx = append(ctx, "url="+e.URL)
	}
	if e.Path != "" {
		ctx = append(ctx, "path="+e.Path)
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ActionError) Unwrap() error {
	return e.Cause
}

// WithSelector attaches the selector the action targeted.
func (e *ActionError) WithSelector(selector string) *ActionError {
	e.Selector = selector
	return e
}

// WithURL attaches the URL the action targeted.
func (e *ActionError) WithURL(url string) *ActionError {
	e.URL = url
	return e
}

// WithPath attaches the local file path the action used.
func (e *ActionError) WithPath(path string) *ActionError {
	e.Path = path
	return e
}

// WithDetails attaches key-value details.
func (e *ActionError) WithDetails(details map[string]any) *ActionError {
	e.Details = details
	return e
}
