// Package rod implements driver.Driver with go-rod over the Chrome DevTools Protocol.
package rod

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/rendis/browseract/internal/driver"
)

// DefaultTimeout bounds primitives called without a timeout.
const DefaultTimeout = 30 * time.Second

// Options configures the launched Chrome.
type Options struct {
	Headless bool
	SlowMo   time.Duration
	// Bin is the browser executable. Empty looks one up on the system.
	Bin        string
	ProfileDir string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Driver drives Chrome through go-rod. Each session is an incognito context
// holding one page.
type Driver struct {
	opts Options

	mu       sync.RWMutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	sessions map[string]*session
}

type session struct {
	id      string
	browser *rod.Browser
	page    *rod.Page
}

func (s *session) ID() string { return s.id }

// New creates a Driver. Call Start before opening sessions.
func New(opts Options) *Driver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Driver{opts: opts, sessions: make(map[string]*session)}
}

// Start launches the browser and connects to it.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser != nil {
		return nil
	}

	bin := d.opts.Bin
	if bin == "" {
		bin, _ = launcher.LookPath()
	}
	l := launcher.New().Context(ctx).Headless(d.opts.Headless)
	if bin != "" {
		l = l.Bin(bin)
	}
	if d.opts.ProfileDir != "" {
		l = l.UserDataDir(d.opts.ProfileDir)
	}
	u, err := l.Launch()
	if err != nil {
		return driver.Fail("start", "", fmt.Errorf("launch browser: %w", err))
	}

	browser := rod.New().ControlURL(u)
	if d.opts.SlowMo > 0 {
		browser = browser.SlowMotion(d.opts.SlowMo)
	}
	if err := browser.Connect(); err != nil {
		l.Kill()
		return driver.Fail("start", "", fmt.Errorf("connect browser: %w", err))
	}

	d.launcher = l
	d.browser = browser
	d.opts.Logger.Debug("rod started", slog.String("control_url", u))
	return nil
}

// Stop closes every session and the browser.
func (d *Driver) Stop(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, s := range d.sessions {
		_ = s.page.Close()
		delete(d.sessions, id)
	}
	var err error
	if d.browser != nil {
		err = d.browser.Close()
		d.browser = nil
	}
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher = nil
	}
	return driver.Fail("stop", "", err)
}

// NewSession opens an incognito context with a blank page.
func (d *Driver) NewSession(_ context.Context) (driver.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser == nil {
		return nil, driver.Fail("new_session", "", fmt.Errorf("driver not started"))
	}
	incognito, err := d.browser.Incognito()
	if err != nil {
		return nil, driver.Fail("new_session", "", fmt.Errorf("create context: %w", err))
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, driver.Fail("new_session", "", fmt.Errorf("create page: %w", err))
	}

	s := &session{id: uuid.NewString(), browser: incognito, page: page}
	d.sessions[s.id] = s
	return s, nil
}

func (d *Driver) CloseSession(_ context.Context, s driver.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rs, ok := d.sessions[s.ID()]
	if !ok {
		return driver.Fail("close_session", "", driver.ErrNoSession)
	}
	delete(d.sessions, s.ID())
	return driver.Fail("close_session", "", rs.page.Close())
}

// page returns the session page bound to ctx and the call timeout.
// page binds the session page to a per-call deadline. The caller must call
// the returned cancel func once the primitive is done.
func (d *Driver) page(ctx context.Context, op, selector string, s driver.Session, opts driver.CallOptions) (*rod.Page, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, driver.Fail(op, selector, err)
	}
	d.mu.RLock()
	rs, ok := d.sessions[s.ID()]
	d.mu.RUnlock()
	if !ok {
		return nil, nil, driver.Fail(op, selector, driver.ErrNoSession)
	}
	t := opts.Timeout
	if t <= 0 {
		t = d.opts.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, t)
	return rs.page.Context(callCtx), cancel, nil
}

func (d *Driver) element(ctx context.Context, op, selector string, s driver.Session, opts driver.CallOptions) (*rod.Element, context.CancelFunc, error) {
	page, cancel, err := d.page(ctx, op, selector, s, opts)
	if err != nil {
		return nil, nil, err
	}
	el, err := page.Element(selector)
	if err != nil {
		cancel()
		return nil, nil, driver.Fail(op, selector, err)
	}
	return el, cancel, nil
}

func (d *Driver) Navigate(ctx context.Context, s driver.Session, url string, opts driver.CallOptions) error {
	page, cancel, err := d.page(ctx, "navigate", "", s, opts)
	if err != nil {
		return err
	}
	defer cancel()
	if err := page.Navigate(url); err != nil {
		return driver.Fail("navigate", "", err)
	}
	return driver.Fail("navigate", "", page.WaitLoad())
}

func (d *Driver) WaitForVisible(ctx context.Context, s driver.Session, selector string, opts driver.CallOptions) error {
	el, cancel, err := d.element(ctx, "wait_for_visible", selector, s, opts)
	if err != nil {
		return err
	}
	defer cancel()
	return driver.Fail("wait_for_visible", selector, el.WaitVisible())
}

func (d *Driver) Click(ctx context.Context, s driver.Session, selector string, opts driver.CallOptions) error {
	el, cancel, err := d.element(ctx, "click", selector, s, opts)
	if err != nil {
		return err
	}
	defer cancel()
	return driver.Fail("click", selector, el.Click(proto.InputMouseButtonLeft, 1))
}

// TypeText clears the element before typing, matching fill semantics.
func (d *Driver) TypeText(ctx context.Context, s driver.Session, selector, text string, opts driver.CallOptions) error {
	el, cancel, err := d.element(ctx, "type_text", selector, s, opts)
	if err != nil {
		return err
	}
	defer cancel()
	if err := el.SelectAllText(); err != nil {
		return driver.Fail("type_text", selector, err)
	}
	return driver.Fail("type_text", selector, el.Input(text))
}

func (d *Driver) ReadText(ctx context.Context, s driver.Session, selector string, opts driver.CallOptions) (*string, error) {
	el, cancel, err := d.element(ctx, "read_text", selector, s, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	prop, err := el.Property("textContent")
	if err != nil {
		return nil, driver.Fail("read_text", selector, err)
	}
	if prop.Nil() {
		return nil, nil
	}
	text := prop.String()
	return &text, nil
}

func (d *Driver) UploadFile(ctx context.Context, s driver.Session, selector, path string, opts driver.CallOptions) error {
	el, cancel, err := d.element(ctx, "upload_file", selector, s, opts)
	if err != nil {
		return err
	}
	defer cancel()
	return driver.Fail("upload_file", selector, el.SetFiles([]string{path}))
}

func (d *Driver) SelectOption(ctx context.Context, s driver.Session, selector, value string, by driver.SelectBy, opts driver.CallOptions) error {
	el, cancel, err := d.element(ctx, "select_option", selector, s, opts)
	if err != nil {
		return err
	}
	defer cancel()
	switch by {
	case driver.SelectByValue, "":
		err = el.Select([]string{"option[value=" + strconv.Quote(value) + "]"}, true, rod.SelectorTypeCSSSector)
	case driver.SelectByLabel:
		err = el.Select([]string{value}, true, rod.SelectorTypeText)
	default:
		err = fmt.Errorf("select by %q: %w", by, driver.ErrUnsupported)
	}
	return driver.Fail("select_option", selector, err)
}

// Check clicks the element only when it is not already checked.
func (d *Driver) Check(ctx context.Context, s driver.Session, selector string, opts driver.CallOptions) error {
	el, cancel, err := d.element(ctx, "check", selector, s, opts)
	if err != nil {
		return err
	}
	defer cancel()
	checked, err := el.Property("checked")
	if err != nil {
		return driver.Fail("check", selector, err)
	}
	if checked.Bool() {
		return nil
	}
	return driver.Fail("check", selector, el.Click(proto.InputMouseButtonLeft, 1))
}

func (d *Driver) Screenshot(ctx context.Context, s driver.Session, path string, fullPage bool) error {
	page, cancel, err := d.page(ctx, "screenshot", "", s, driver.CallOptions{})
	if err != nil {
		return err
	}
	defer cancel()
	data, err := page.Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return driver.Fail("screenshot", "", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return driver.Fail("screenshot", "", err)
		}
	}
	return driver.Fail("screenshot", "", os.WriteFile(path, data, 0o644))
}

var _ driver.Driver = (*Driver)(nil)
