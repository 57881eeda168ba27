// Package drivertest provides a scripted in-memory driver.Driver for tests.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rendis/browseract/internal/driver"
)

// Primitive names recorded in Call.Op.
const (
	OpNavigate     = "navigate"
	OpWait         = "wait_for_visible"
	OpClick        = "click"
	OpType         = "type_text"
	OpReadText     = "read_text"
	OpUpload       = "upload_file"
	OpSelectOption = "select_option"
	OpCheck        = "check"
	OpScreenshot   = "screenshot"
)

// Call records one primitive invocation.
type Call struct {
	Op       string
	Session  string
	Selector string
	Value    string
	By       driver.SelectBy
	Timeout  time.Duration
	FullPage bool
}

// ErrScripted is the cause of failures injected with FailTimes.
var ErrScripted = errors.New("scripted failure")

// Fake is a driver.Driver whose page is a map of selectors. Clicking a
// selector runs the handler registered with OnClick, which lets tests model
// simple page behaviour.
type Fake struct {
	mu sync.Mutex

	calls    []Call
	texts    map[string]*string
	values   map[string]string
	checked  map[string]bool
	onClick  map[string]func(p *Page)
	failures map[string]int
	started  bool
	nextID   int
	open     map[string]bool

	// ScreenshotErr, when set, makes every Screenshot fail with it.
	ScreenshotErr error
}

// Page is the mutable page state handed to click handlers.
type Page struct {
	f *Fake
}

// Value returns the current value of an input.
func (p *Page) Value(selector string) string { return p.f.values[selector] }

// SetText sets the text content of an element, making it exist.
func (p *Page) SetText(selector, text string) {
	t := text
	p.f.texts[selector] = &t
}

type session struct{ id string }

func (s *session) ID() string { return s.id }

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		texts:    make(map[string]*string),
		values:   make(map[string]string),
		checked:  make(map[string]bool),
		onClick:  make(map[string]func(p *Page)),
		failures: make(map[string]int),
		open:     make(map[string]bool),
	}
}

// SetText makes selector exist with the given text content.
func (f *Fake) SetText(selector, text string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := text
	f.texts[selector] = &t
	return f
}

// SetEmpty makes selector exist with no text content.
func (f *Fake) SetEmpty(selector string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts[selector] = nil
	return f
}

// OnClick registers a handler run when selector is clicked.
func (f *Fake) OnClick(selector string, fn func(p *Page)) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onClick[selector] = fn
	if _, ok := f.texts[selector]; !ok {
		f.texts[selector] = nil
	}
	return f
}

// FailTimes makes the next n calls of op fail. A negative n fails forever.
func (f *Fake) FailTimes(op string, n int) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = n
	return f
}

// Calls returns a copy of every recorded call.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor returns the recorded calls of one primitive.
func (f *Fake) CallsFor(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Value returns the current value of an input.
func (f *Fake) Value(selector string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[selector]
}

// Checked reports whether Check was applied to selector.
func (f *Fake) Checked(selector string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checked[selector]
}

// OpenSessions returns the number of sessions not yet closed.
func (f *Fake) OpenSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.open)
}

func (f *Fake) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *Fake) Stop(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	return nil
}

func (f *Fake) NewSession(_ context.Context) (driver.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("fake-%d", f.nextID)
	f.open[id] = true
	return &session{id: id}, nil
}

func (f *Fake) CloseSession(_ context.Context, s driver.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open[s.ID()] {
		return driver.Fail("close_session", "", driver.ErrNoSession)
	}
	delete(f.open, s.ID())
	return nil
}

// record appends a call and returns the injected failure for it, if any.
// Callers hold f.mu.
func (f *Fake) record(ctx context.Context, c Call) error {
	f.calls = append(f.calls, c)
	if err := ctx.Err(); err != nil {
		return driver.Fail(c.Op, c.Selector, err)
	}
	if n, ok := f.failures[c.Op]; ok && n != 0 {
		if n > 0 {
			f.failures[c.Op] = n - 1
		}
		return driver.Fail(c.Op, c.Selector, ErrScripted)
	}
	return nil
}

func (f *Fake) exists(selector string) bool {
	_, ok := f.texts[selector]
	if ok {
		return true
	}
	_, ok = f.values[selector]
	return ok
}

func (f *Fake) missing(op, selector string) error {
	return driver.Fail(op, selector, fmt.Errorf("no element matches selector"))
}

func (f *Fake) Navigate(ctx context.Context, s driver.Session, url string, opts driver.CallOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(ctx, Call{Op: OpNavigate, Session: s.ID(), Value: url, Timeout: opts.Timeout})
}

func (f *Fake) WaitForVisible(ctx context.Context, s driver.Session, selector string, opts driver.CallOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(ctx, Call{Op: OpWait, Session: s.ID(), Selector: selector, Timeout: opts.Timeout}); err != nil {
		return err
	}
	if !f.exists(selector) {
		return driver.Fail(OpWait, selector, context.DeadlineExceeded)
	}
	return nil
}

func (f *Fake) Click(ctx context.Context, s driver.Session, selector string, opts driver.CallOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(ctx, Call{Op: OpClick, Session: s.ID(), Selector: selector, Timeout: opts.Timeout}); err != nil {
		return err
	}
	if !f.exists(selector) {
		return f.missing(OpClick, selector)
	}
	if fn := f.onClick[selector]; fn != nil {
		fn(&Page{f: f})
	}
	return nil
}

func (f *Fake) TypeText(ctx context.Context, s driver.Session, selector, text string, opts driver.CallOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(ctx, Call{Op: OpType, Session: s.ID(), Selector: selector, Value: text, Timeout: opts.Timeout}); err != nil {
		return err
	}
	if !f.exists(selector) {
		return f.missing(OpType, selector)
	}
	f.values[selector] = text
	return nil
}

func (f *Fake) ReadText(ctx context.Context, s driver.Session, selector string, opts driver.CallOptions) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(ctx, Call{Op: OpReadText, Session: s.ID(), Selector: selector, Timeout: opts.Timeout}); err != nil {
		return nil, err
	}
	text, ok := f.texts[selector]
	if !ok {
		return nil, f.missing(OpReadText, selector)
	}
	if text == nil {
		return nil, nil
	}
	out := *text
	return &out, nil
}

func (f *Fake) UploadFile(ctx context.Context, s driver.Session, selector, path string, opts driver.CallOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(ctx, Call{Op: OpUpload, Session: s.ID(), Selector: selector, Value: path, Timeout: opts.Timeout}); err != nil {
		return err
	}
	if !f.exists(selector) {
		return f.missing(OpUpload, selector)
	}
	f.values[selector] = path
	return nil
}

func (f *Fake) SelectOption(ctx context.Context, s driver.Session, selector, value string, by driver.SelectBy, opts driver.CallOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(ctx, Call{Op: OpSelectOption, Session: s.ID(), Selector: selector, Value: value, By: by, Timeout: opts.Timeout}); err != nil {
		return err
	}
	if !f.exists(selector) {
		return f.missing(OpSelectOption, selector)
	}
	f.values[selector] = value
	return nil
}

func (f *Fake) Check(ctx context.Context, s driver.Session, selector string, opts driver.CallOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(ctx, Call{Op: OpCheck, Session: s.ID(), Selector: selector, Timeout: opts.Timeout}); err != nil {
		return err
	}
	if !f.exists(selector) {
		return f.missing(OpCheck, selector)
	}
	f.checked[selector] = true
	return nil
}

// Screenshot writes a placeholder file at path.
func (f *Fake) Screenshot(ctx context.Context, s driver.Session, path string, fullPage bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(ctx, Call{Op: OpScreenshot, Session: s.ID(), Value: path, FullPage: fullPage}); err != nil {
		return err
	}
	if f.ScreenshotErr != nil {
		return driver.Fail(OpScreenshot, "", f.ScreenshotErr)
	}
	if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n"), 0o644); err != nil {
		return driver.Fail(OpScreenshot, "", err)
	}
	return nil
}

var _ driver.Driver = (*Fake)(nil)
