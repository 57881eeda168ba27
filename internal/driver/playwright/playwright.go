// Package playwright implements driver.Driver on top of playwright-go.
package playwright

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	pw "github.com/playwright-community/playwright-go"

	"github.com/rendis/browseract/internal/driver"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 800
	DefaultTimeout        = 30 * time.Second
)

// Options configures the Chromium instance.
type Options struct {
	Headless bool
	SlowMo   time.Duration
	// Install downloads the browser binaries on Start when missing.
	Install bool
	// Timeout is the default for primitives called without a timeout.
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	Logger         *slog.Logger
}

// Driver drives a local Chromium through Playwright. One BrowserContext is
// created per session so cookies never leak between jobs.
type Driver struct {
	opts Options

	mu       sync.RWMutex
	pw       *pw.Playwright
	browser  pw.Browser
	sessions map[string]*session
}

type session struct {
	id      string
	context pw.BrowserContext
	page    pw.Page
}

func (s *session) ID() string { return s.id }

// New creates a Driver. Call Start before opening sessions.
func New(opts Options) *Driver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = DefaultViewportWidth
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = DefaultViewportHeight
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Driver{opts: opts, sessions: make(map[string]*session)}
}

// Start launches the Playwright server and Chromium. Calling it twice is a no-op.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return driver.Fail("start", "", err)
	}

	runOpts := &pw.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if d.opts.Install {
		if err := pw.Install(runOpts); err != nil {
			return driver.Fail("start", "", fmt.Errorf("install playwright: %w", err))
		}
	}

	p, err := pw.Run(runOpts)
	if err != nil {
		return driver.Fail("start", "", fmt.Errorf("run playwright: %w", err))
	}

	headless := d.opts.Headless
	launch := pw.BrowserTypeLaunchOptions{Headless: &headless}
	if d.opts.SlowMo > 0 {
		launch.SlowMo = pw.Float(float64(d.opts.SlowMo.Milliseconds()))
	}
	browser, err := p.Chromium.Launch(launch)
	if err != nil {
		_ = p.Stop()
		return driver.Fail("start", "", fmt.Errorf("launch chromium: %w", err))
	}

	d.pw = p
	d.browser = browser
	d.opts.Logger.Debug("playwright started", slog.Bool("headless", headless))
	return nil
}

// Stop closes every open session, the browser and the Playwright server.
func (d *Driver) Stop(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, s := range d.sessions {
		_ = s.context.Close()
		delete(d.sessions, id)
	}
	var firstErr error
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			firstErr = err
		}
		d.browser = nil
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.pw = nil
	}
	return driver.Fail("stop", "", firstErr)
}

// NewSession opens a fresh BrowserContext with one page.
func (d *Driver) NewSession(_ context.Context) (driver.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser == nil {
		return nil, driver.Fail("new_session", "", fmt.Errorf("driver not started"))
	}
	bctx, err := d.browser.NewContext(pw.BrowserNewContextOptions{
		Viewport: &pw.Size{Width: d.opts.ViewportWidth, Height: d.opts.ViewportHeight},
	})
	if err != nil {
		return nil, driver.Fail("new_session", "", fmt.Errorf("create context: %w", err))
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, driver.Fail("new_session", "", fmt.Errorf("create page: %w", err))
	}
	page.SetDefaultTimeout(float64(d.opts.Timeout.Milliseconds()))

	s := &session{id: uuid.NewString(), context: bctx, page: page}
	d.sessions[s.id] = s
	return s, nil
}

// CloseSession closes the session's BrowserContext.
func (d *Driver) CloseSession(_ context.Context, s driver.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ps, ok := d.sessions[s.ID()]
	if !ok {
		return driver.Fail("close_session", "", driver.ErrNoSession)
	}
	delete(d.sessions, s.ID())
	return driver.Fail("close_session", "", ps.context.Close())
}

// page resolves the session's page and checks ctx before a primitive runs.
func (d *Driver) page(ctx context.Context, op, selector string, s driver.Session) (pw.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, driver.Fail(op, selector, err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	ps, ok := d.sessions[s.ID()]
	if !ok {
		return nil, driver.Fail(op, selector, driver.ErrNoSession)
	}
	return ps.page, nil
}

// timeout converts CallOptions into Playwright milliseconds, bounded by the
// context deadline. Playwright calls are not context-aware, so the deadline is
// the only way to make them give up early.
func (d *Driver) timeout(ctx context.Context, opts driver.CallOptions) *float64 {
	t := opts.Timeout
	if t <= 0 {
		t = d.opts.Timeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < t {
			t = max(left, time.Millisecond)
		}
	}
	return pw.Float(float64(t.Milliseconds()))
}

func (d *Driver) Navigate(ctx context.Context, s driver.Session, url string, opts driver.CallOptions) error {
	page, err := d.page(ctx, "navigate", "", s)
	if err != nil {
		return err
	}
	_, err = page.Goto(url, pw.PageGotoOptions{
		Timeout:   d.timeout(ctx, opts),
		WaitUntil: pw.WaitUntilStateLoad,
	})
	return driver.Fail("navigate", "", err)
}

func (d *Driver) WaitForVisible(ctx context.Context, s driver.Session, selector string, opts driver.CallOptions) error {
	page, err := d.page(ctx, "wait_for_visible", selector, s)
	if err != nil {
		return err
	}
	state := pw.WaitForSelectorState("visible")
	err = page.Locator(selector).First().WaitFor(pw.LocatorWaitForOptions{
		State:   &state,
		Timeout: d.timeout(ctx, opts),
	})
	return driver.Fail("wait_for_visible", selector, err)
}

func (d *Driver) Click(ctx context.Context, s driver.Session, selector string, opts driver.CallOptions) error {
	page, err := d.page(ctx, "click", selector, s)
	if err != nil {
		return err
	}
	err = page.Locator(selector).First().Click(pw.LocatorClickOptions{Timeout: d.timeout(ctx, opts)})
	return driver.Fail("click", selector, err)
}

func (d *Driver) TypeText(ctx context.Context, s driver.Session, selector, text string, opts driver.CallOptions) error {
	page, err := d.page(ctx, "type_text", selector, s)
	if err != nil {
		return err
	}
	err = page.Locator(selector).First().Fill(text, pw.LocatorFillOptions{Timeout: d.timeout(ctx, opts)})
	return driver.Fail("type_text", selector, err)
}

func (d *Driver) ReadText(ctx context.Context, s driver.Session, selector string, opts driver.CallOptions) (*string, error) {
	page, err := d.page(ctx, "read_text", selector, s)
	if err != nil {
		return nil, err
	}
	text, err := page.Locator(selector).First().TextContent(pw.LocatorTextContentOptions{Timeout: d.timeout(ctx, opts)})
	if err != nil {
		return nil, driver.Fail("read_text", selector, err)
	}
	return &text, nil
}

func (d *Driver) UploadFile(ctx context.Context, s driver.Session, selector, path string, opts driver.CallOptions) error {
	page, err := d.page(ctx, "upload_file", selector, s)
	if err != nil {
		return err
	}
	err = page.Locator(selector).First().SetInputFiles([]string{path}, pw.LocatorSetInputFilesOptions{Timeout: d.timeout(ctx, opts)})
	return driver.Fail("upload_file", selector, err)
}

func (d *Driver) SelectOption(ctx context.Context, s driver.Session, selector, value string, by driver.SelectBy, opts driver.CallOptions) error {
	page, err := d.page(ctx, "select_option", selector, s)
	if err != nil {
		return err
	}
	var values pw.SelectOptionValues
	switch by {
	case driver.SelectByValue, "":
		values.Values = &[]string{value}
	case driver.SelectByLabel:
		values.Labels = &[]string{value}
	default:
		return driver.Fail("select_option", selector, fmt.Errorf("select by %q: %w", by, driver.ErrUnsupported))
	}
	_, err = page.Locator(selector).First().SelectOption(values, pw.LocatorSelectOptionOptions{Timeout: d.timeout(ctx, opts)})
	return driver.Fail("select_option", selector, err)
}

// Check ticks the element. Playwright treats an already checked element as done.
func (d *Driver) Check(ctx context.Context, s driver.Session, selector string, opts driver.CallOptions) error {
	page, err := d.page(ctx, "check", selector, s)
	if err != nil {
		return err
	}
	err = page.Locator(selector).First().Check(pw.LocatorCheckOptions{Timeout: d.timeout(ctx, opts)})
	return driver.Fail("check", selector, err)
}

func (d *Driver) Screenshot(ctx context.Context, s driver.Session, path string, fullPage bool) error {
	page, err := d.page(ctx, "screenshot", "", s)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return driver.Fail("screenshot", "", err)
		}
	}
	_, err = page.Screenshot(pw.PageScreenshotOptions{
		Path:     pw.String(path),
		FullPage: pw.Bool(fullPage),
		Timeout:  d.timeout(ctx, driver.CallOptions{}),
	})
	return driver.Fail("screenshot", "", err)
}

var _ driver.Driver = (*Driver)(nil)
