// Package static implements driver.Driver over plain HTTP with goquery.
//
// It has no JavaScript engine: clicks follow links and submit forms, typing and
// selecting edit the parsed document, and screenshots are unsupported. It is
// meant for server-rendered pages and for offline tests.
package static

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/rendis/browseract/internal/driver"
)

// DefaultTimeout bounds HTTP requests issued without a timeout.
const DefaultTimeout = 30 * time.Second

// maxBody caps how much of a response is parsed.
const maxBody = 8 << 20

// Options configures the HTTP client.
type Options struct {
	Client    *http.Client
	UserAgent string
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Driver fetches and parses pages without rendering them.
type Driver struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	id  string
	mu  sync.Mutex
	doc *goquery.Document
	url *url.URL
}

func (s *session) ID() string { return s.id }

// New creates a Driver.
func New(opts Options) *Driver {
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "browseract-static/1"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Driver{opts: opts, sessions: make(map[string]*session)}
}

func (d *Driver) Start(_ context.Context) error { return nil }

func (d *Driver) Stop(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions = make(map[string]*session)
	return nil
}

func (d *Driver) NewSession(_ context.Context) (driver.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &session{id: uuid.NewString()}
	d.sessions[s.id] = s
	return s, nil
}

func (d *Driver) CloseSession(_ context.Context, s driver.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sessions[s.ID()]; !ok {
		return driver.Fail("close_session", "", driver.ErrNoSession)
	}
	delete(d.sessions, s.ID())
	return nil
}

func (d *Driver) session(ctx context.Context, op, selector string, s driver.Session) (*session, error) {
	if err := ctx.Err(); err != nil {
		return nil, driver.Fail(op, selector, err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	ss, ok := d.sessions[s.ID()]
	if !ok {
		return nil, driver.Fail(op, selector, driver.ErrNoSession)
	}
	return ss, nil
}

// find returns the first element matching selector on the current page.
func (ss *session) find(selector string) (*goquery.Selection, error) {
	if ss.doc == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	sel := ss.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("no element matches selector")
	}
	return sel, nil
}

// load performs req and replaces the session document with the response.
func (d *Driver) load(ctx context.Context, ss *session, method, target string, form url.Values, opts driver.CallOptions) error {
	t := opts.Timeout
	if t <= 0 {
		t = d.opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, t)
	defer cancel()

	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := d.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d", method, target, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	ss.doc = doc
	ss.url = resp.Request.URL
	d.opts.Logger.Debug("static page loaded", slog.String("url", ss.url.String()), slog.Int("status", resp.StatusCode))
	return nil
}

// resolve makes ref absolute against the current page.
func (ss *session) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if ss.url == nil {
		return u.String(), nil
	}
	return ss.url.ResolveReference(u).String(), nil
}

func (d *Driver) Navigate(ctx context.Context, s driver.Session, target string, opts driver.CallOptions) error {
	ss, err := d.session(ctx, "navigate", "", s)
	if err != nil {
		return err
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return driver.Fail("navigate", "", d.load(ctx, ss, http.MethodGet, target, nil, opts))
}

// WaitForVisible succeeds when the element is present in the fetched document.
// Nothing changes without a new request, so there is nothing to wait for.
func (d *Driver) WaitForVisible(ctx context.Context, s driver.Session, selector string, _ driver.CallOptions) error {
	ss, err := d.session(ctx, "wait_for_visible", selector, s)
	if err != nil {
		return err
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	_, err = ss.find(selector)
	return driver.Fail("wait_for_visible", selector, err)
}

// Click follows links and submits forms. Clicking anything else has no effect.
func (d *Driver) Click(ctx context.Context, s driver.Session, selector string, opts driver.CallOptions) error {
	ss, err := d.session(ctx, "click", selector, s)
	if err != nil {
		return err
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()

	sel, err := ss.find(selector)
	if err != nil {
		return driver.Fail("click", selector, err)
	}

	if href, ok := sel.Attr("href"); ok && goquery.NodeName(sel) == "a" {
		target, err := ss.resolve(href)
		if err != nil {
			return driver.Fail("click", selector, err)
		}
		return driver.Fail("click", selector, d.load(ctx, ss, http.MethodGet, target, nil, opts))
	}

	if isSubmit(sel) {
		form := sel.Closest("form")
		if form.Length() > 0 {
			return driver.Fail("click", selector, d.submit(ctx, ss, form, sel, opts))
		}
	}
	return nil
}

func isSubmit(sel *goquery.Selection) bool {
	typ := strings.ToLower(sel.AttrOr("type", ""))
	switch goquery.NodeName(sel) {
	case "button":
		return typ == "" || typ == "submit"
	case "input":
		return typ == "submit" || typ == "image"
	}
	return false
}

// submit sends the form's successful controls like a browser would.
func (d *Driver) submit(ctx context.Context, ss *session, form, submitter *goquery.Selection, opts driver.CallOptions) error {
	values := url.Values{}
	form.Find("input, select, textarea").Each(func(_ int, field *goquery.Selection) {
		name, ok := field.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := field.Attr("disabled"); disabled {
			return
		}
		switch goquery.NodeName(field) {
		case "select":
			opt := field.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = field.Find("option").First()
			}
			if opt.Length() > 0 {
				values.Add(name, optionValue(opt))
			}
		case "textarea":
			values.Add(name, field.Text())
		default:
			switch strings.ToLower(field.AttrOr("type", "text")) {
			case "checkbox", "radio":
				if _, checked := field.Attr("checked"); checked {
					values.Add(name, field.AttrOr("value", "on"))
				}
			case "submit", "image", "button", "file":
			default:
				values.Add(name, field.AttrOr("value", ""))
			}
		}
	})
	if name, ok := submitter.Attr("name"); ok && name != "" {
		values.Add(name, submitter.AttrOr("value", ""))
	}

	action, err := ss.resolve(form.AttrOr("action", ""))
	if err != nil {
		return err
	}
	if strings.EqualFold(form.AttrOr("method", "get"), http.MethodPost) {
		return d.load(ctx, ss, http.MethodPost, action, values, opts)
	}
	u, err := url.Parse(action)
	if err != nil {
		return err
	}
	u.RawQuery = values.Encode()
	return d.load(ctx, ss, http.MethodGet, u.String(), nil, opts)
}

func optionValue(opt *goquery.Selection) string {
	if v, ok := opt.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(opt.Text())
}

// TypeText sets the value of an input or the content of a textarea.
func (d *Driver) TypeText(ctx context.Context, s driver.Session, selector, text string, _ driver.CallOptions) error {
	ss, err := d.session(ctx, "type_text", selector, s)
	if err != nil {
		return err
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()

	sel, err := ss.find(selector)
	if err != nil {
		return driver.Fail("type_text", selector, err)
	}
	switch goquery.NodeName(sel) {
	case "input":
		sel.SetAttr("value", text)
	case "textarea":
		sel.SetText(text)
	default:
		return driver.Fail("type_text", selector, fmt.Errorf("element <%s> is not editable", goquery.NodeName(sel)))
	}
	return nil
}

// ReadText returns the element's text content, or its value for inputs.
func (d *Driver) ReadText(ctx context.Context, s driver.Session, selector string, _ driver.CallOptions) (*string, error) {
	ss, err := d.session(ctx, "read_text", selector, s)
	if err != nil {
		return nil, err
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()

	sel, err := ss.find(selector)
	if err != nil {
		return nil, driver.Fail("read_text", selector, err)
	}
	text := sel.Text()
	if goquery.NodeName(sel) == "input" {
		text = sel.AttrOr("value", "")
	}
	return &text, nil
}

func (d *Driver) UploadFile(ctx context.Context, s driver.Session, selector, _ string, _ driver.CallOptions) error {
	if _, err := d.session(ctx, "upload_file", selector, s); err != nil {
		return err
	}
	return driver.Fail("upload_file", selector, driver.ErrUnsupported)
}

// SelectOption marks the matching option as selected.
func (d *Driver) SelectOption(ctx context.Context, s driver.Session, selector, value string, by driver.SelectBy, _ driver.CallOptions) error {
	ss, err := d.session(ctx, "select_option", selector, s)
	if err != nil {
		return err
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()

	sel, err := ss.find(selector)
	if err != nil {
		return driver.Fail("select_option", selector, err)
	}
	if goquery.NodeName(sel) != "select" {
		return driver.Fail("select_option", selector, fmt.Errorf("element <%s> is not a select", goquery.NodeName(sel)))
	}

	var match *goquery.Selection
	sel.Find("option").EachWithBreak(func(_ int, opt *goquery.Selection) bool {
		var got string
		switch by {
		case driver.SelectByValue, "":
			got = optionValue(opt)
		case driver.SelectByLabel:
			got = strings.TrimSpace(opt.Text())
		default:
			return false
		}
		if got == value {
			match = opt
			return false
		}
		return true
	})
	if by != driver.SelectByValue && by != driver.SelectByLabel && by != "" {
		return driver.Fail("select_option", selector, fmt.Errorf("select by %q: %w", by, driver.ErrUnsupported))
	}
	if match == nil {
		return driver.Fail("select_option", selector, fmt.Errorf("no option with %s %q", by, value))
	}
	sel.Find("option").RemoveAttr("selected")
	match.SetAttr("selected", "selected")
	return nil
}

// Check sets the checked attribute. Checking a checked element is a no-op.
func (d *Driver) Check(ctx context.Context, s driver.Session, selector string, _ driver.CallOptions) error {
	ss, err := d.session(ctx, "check", selector, s)
	if err != nil {
		return err
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()

	sel, err := ss.find(selector)
	if err != nil {
		return driver.Fail("check", selector, err)
	}
	typ := strings.ToLower(sel.AttrOr("type", ""))
	if goquery.NodeName(sel) != "input" || (typ != "checkbox" && typ != "radio") {
		return driver.Fail("check", selector, fmt.Errorf("element is not a checkbox or radio"))
	}
	if typ == "radio" {
		if name, ok := sel.Attr("name"); ok && ss.doc != nil {
			ss.doc.Find(fmt.Sprintf(`input[type=radio][name=%q]`, name)).RemoveAttr("checked")
		}
	}
	sel.SetAttr("checked", "checked")
	return nil
}

func (d *Driver) Screenshot(ctx context.Context, s driver.Session, _ string, _ bool) error {
	if _, err := d.session(ctx, "screenshot", "", s); err != nil {
		return err
	}
	return driver.Fail("screenshot", "", driver.ErrUnsupported)
}

var _ driver.Driver = (*Driver)(nil)
