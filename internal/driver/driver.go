// Package driver defines the browser capability surface the actions run against.
//
// A Driver owns the browser process; a Session is one tab scoped across a
// sequence of actions. Backends live in sub-packages (playwright, rod, static)
// and never leak their concrete types past this boundary.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Session is an opaque handle to one browser tab.
type Session interface {
	ID() string
}

// SelectBy chooses how SelectOption matches an <option>.
type SelectBy string

const (
	SelectByValue SelectBy = "value"
	SelectByLabel SelectBy = "label"
)

// CallOptions carries per-call settings. A zero Timeout means the backend default.
type CallOptions struct {
	Timeout time.Duration
}

// Timeout returns CallOptions with the given timeout in milliseconds.
func Timeout(ms int) CallOptions {
	return CallOptions{Timeout: time.Duration(ms) * time.Millisecond}
}

// Driver is the primitive browser surface. Every primitive fails with *Error.
type Driver interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	NewSession(ctx context.Context) (Session, error)
	CloseSession(ctx context.Context, s Session) error

	Navigate(ctx context.Context, s Session, url string, opts CallOptions) error
	WaitForVisible(ctx context.Context, s Session, selector string, opts CallOptions) error
	Click(ctx context.Context, s Session, selector string, opts CallOptions) error
	// TypeText replaces the current value of the element with text.
	TypeText(ctx context.Context, s Session, selector, text string, opts CallOptions) error
	// ReadText returns the element's text content, or nil when it has none.
	ReadText(ctx context.Context, s Session, selector string, opts CallOptions) (*string, error)
	UploadFile(ctx context.Context, s Session, selector, path string, opts CallOptions) error
	SelectOption(ctx context.Context, s Session, selector, value string, by SelectBy, opts CallOptions) error
	// Check ticks a checkbox or radio. Whether checking an already checked
	// element is a no-op is up to the backend.
	Check(ctx context.Context, s Session, selector string, opts CallOptions) error
	Screenshot(ctx context.Context, s Session, path string, fullPage bool) error
}

// ErrUnsupported is wrapped by backends that cannot perform a primitive.
var ErrUnsupported = errors.New("not supported by this driver")

// ErrNoSession is wrapped when a Session does not belong to the driver or was closed.
var ErrNoSession = errors.New("unknown or closed session")

// Error is the single failure kind every driver primitive returns.
type Error struct {
	Op       string
	Selector string
	Err      error
}

func (e *Error) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("%s %q: %v", e.Op, e.Selector, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fail wraps err as a driver *Error. A nil err yields nil.
func Fail(op, selector string, err error) error {
	if err == nil {
		return nil
	}
	var dErr *Error
	if errors.As(err, &dErr) && dErr.Op == op {
		return err
	}
	return &Error{Op: op, Selector: selector, Err: err}
}
