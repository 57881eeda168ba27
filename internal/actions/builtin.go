package actions

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/browseract/internal/driver"
	"github.com/rendis/browseract/pkg/schema"
)

// Builtin action names.
const (
	ActionOpenURL      = "open_url"
	ActionWaitFor      = "wait_for"
	ActionClick        = "click"
	ActionType         = "type"
	ActionExtractText  = "extract_text"
	ActionUploadResume = "upload_resume"
	ActionSelectOption = "select_option"
	ActionCheck        = "check"
	ActionSnapshot     = "snapshot"
)

// BuiltinConfig configures the builtin actions.
type BuiltinConfig struct {
	// AllowedDomains restricts open_url to these hosts and their subdomains.
	// Empty allows every host.
	AllowedDomains []string
}

// RegisterBuiltins registers the nine builtin browser actions in reg.
func RegisterBuiltins(reg *Registry, cfg BuiltinConfig) {
	allowed := normalizeDomains(cfg.AllowedDomains)

	reg.Register(ActionOpenURL, typed(ActionOpenURL, openURL(allowed)),
		paramsOf("Navigate the session to an absolute http(s) URL.", openURLSchema, OpenURLParams{}))
	reg.Register(ActionWaitFor, typed(ActionWaitFor, waitFor),
		paramsOf("Wait until the element is visible.", waitForSchema, WaitForParams{TimeoutMS: DefaultTimeoutMS}))
	reg.Register(ActionClick, typed(ActionClick, click),
		paramsOf("Click an element.", clickSchema, ClickParams{}))
	reg.Register(ActionType, typed(ActionType, typeText),
		paramsOf("Replace the value of an input with text.", typeSchema, TypeParams{}))
	reg.Register(ActionExtractText, typed(ActionExtractText, extractText),
		paramsOf("Read the text content of an element.", extractTextSchema, ExtractTextParams{}))
	reg.Register(ActionUploadResume, typed(ActionUploadResume, uploadResume),
		paramsOf("Attach a local file to a file input.", uploadResumeSchema, UploadResumeParams{TimeoutMS: DefaultTimeoutMS}))
	reg.Register(ActionSelectOption, typed(ActionSelectOption, selectOption),
		paramsOf("Choose an option of a select element by value or label.", selectOptionSchema,
			SelectOptionParams{By: driver.SelectByValue, TimeoutMS: DefaultTimeoutMS}))
	reg.Register(ActionCheck, typed(ActionCheck, check),
		paramsOf("Tick a checkbox or radio button.", checkSchema, CheckParams{TimeoutMS: DefaultTimeoutMS}))
	reg.Register(ActionSnapshot, typed(ActionSnapshot, snapshot),
		paramsOf("Save a PNG screenshot of the page.", snapshotSchema, SnapshotParams{FullPage: true}))
}

// typed adapts a function over *P to an Executor.
func typed[P any](name string, fn func(context.Context, driver.Driver, driver.Session, *P) (*schema.ActionResult, error)) Executor {
	return func(ctx context.Context, d driver.Driver, s driver.Session, params any) (*schema.ActionResult, error) {
		p, ok := params.(*P)
		if !ok || p == nil {
			return nil, schema.NewActionError(name, fmt.Sprintf("unexpected params type %T", params), nil)
		}
		return fn(ctx, d, s, p)
	}
}

func openURL(allowed []string) func(context.Context, driver.Driver, driver.Session, *OpenURLParams) (*schema.ActionResult, error) {
	return func(ctx context.Context, d driver.Driver, s driver.Session, p *OpenURLParams) (*schema.ActionResult, error) {
		if err := checkDomain(p.URL, allowed); err != nil {
			return nil, schema.NewActionError(ActionOpenURL, "domain not allowed", err).WithURL(p.URL)
		}
		if err := d.Navigate(ctx, s, p.URL, driver.CallOptions{}); err != nil {
			return nil, schema.NewActionError(ActionOpenURL, "failed to open url", err).WithURL(p.URL)
		}
		return schema.Success(map[string]any{"step": ActionOpenURL, "url": p.URL}), nil
	}
}

func waitFor(ctx context.Context, d driver.Driver, s driver.Session, p *WaitForParams) (*schema.ActionResult, error) {
	timeout := p.TimeoutMS
	if timeout <= 0 {
		timeout = DefaultTimeoutMS
	}
	if err := d.WaitForVisible(ctx, s, p.Selector, driver.Timeout(timeout)); err != nil {
		return nil, schema.NewActionError(ActionWaitFor, "element did not become visible in time", err).WithSelector(p.Selector)
	}
	return schema.Success(map[string]any{"step": ActionWaitFor, "selector": p.Selector}), nil
}

func click(ctx context.Context, d driver.Driver, s driver.Session, p *ClickParams) (*schema.ActionResult, error) {
	if err := d.Click(ctx, s, p.Selector, driver.CallOptions{}); err != nil {
		return nil, schema.NewActionError(ActionClick, "failed to click element", err).WithSelector(p.Selector)
	}
	return schema.Success(map[string]any{"step": ActionClick, "selector": p.Selector}), nil
}

func typeText(ctx context.Context, d driver.Driver, s driver.Session, p *TypeParams) (*schema.ActionResult, error) {
	if err := d.TypeText(ctx, s, p.Selector, p.Text, driver.CallOptions{}); err != nil {
		return nil, schema.NewActionError(ActionType, "failed to input text", err).WithSelector(p.Selector)
	}
	return schema.Success(map[string]any{
		"step":     ActionType,
		"selector": p.Selector,
		"length":   len([]rune(p.Text)),
	}), nil
}

func extractText(ctx context.Context, d driver.Driver, s driver.Session, p *ExtractTextParams) (*schema.ActionResult, error) {
	text, err := d.ReadText(ctx, s, p.Selector, driver.CallOptions{})
	if err != nil {
		return nil, schema.NewActionError(ActionExtractText, "failed to extract text", err).WithSelector(p.Selector)
	}
	return &schema.ActionResult{
		OK:               true,
		ExtractedContent: text,
		IncludeInMemory:  true,
		Meta: map[string]any{
			"step":     ActionExtractText,
			"selector": p.Selector,
			"empty":    text == nil,
		},
	}, nil
}

func uploadResume(ctx context.Context, d driver.Driver, s driver.Session, p *UploadResumeParams) (*schema.ActionResult, error) {
	if err := d.UploadFile(ctx, s, p.Selector, p.FilePath, driver.Timeout(p.TimeoutMS)); err != nil {
		return nil, schema.NewActionError(ActionUploadResume, "failed to upload file", err).
			WithSelector(p.Selector).
			WithPath(p.FilePath)
	}
	return schema.Success(map[string]any{
		"step":     ActionUploadResume,
		"selector": p.Selector,
		"file":     p.FilePath,
	}), nil
}

func selectOption(ctx context.Context, d driver.Driver, s driver.Session, p *SelectOptionParams) (*schema.ActionResult, error) {
	if err := d.SelectOption(ctx, s, p.Selector, p.Value, p.By, driver.Timeout(p.TimeoutMS)); err != nil {
		return nil, schema.NewActionError(ActionSelectOption, "failed to select option", err).
			WithSelector(p.Selector).
			WithDetails(map[string]any{
				"value":      p.Value,
				"by":         string(p.By),
				"timeout_ms": p.TimeoutMS,
				"cause":      err.Error(),
			})
	}
	return schema.Success(map[string]any{
		"step":     ActionSelectOption,
		"selector": p.Selector,
		"by":       string(p.By),
	}), nil
}

func check(ctx context.Context, d driver.Driver, s driver.Session, p *CheckParams) (*schema.ActionResult, error) {
	if err := d.Check(ctx, s, p.Selector, driver.Timeout(p.TimeoutMS)); err != nil {
		return nil, schema.NewActionError(ActionCheck, "failed to check element", err).WithSelector(p.Selector)
	}
	return schema.Success(map[string]any{"step": ActionCheck, "selector": p.Selector}), nil
}

func snapshot(ctx context.Context, d driver.Driver, s driver.Session, p *SnapshotParams) (*schema.ActionResult, error) {
	fail := func(err error) error {
		return schema.NewActionError(ActionSnapshot, "failed to take screenshot", err).
			WithDetails(map[string]any{
				"path":      p.Path,
				"full_page": p.FullPage,
				"cause":     err.Error(),
			})
	}
	if dir := filepath.Dir(p.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fail(err)
		}
	}
	if err := d.Screenshot(ctx, s, p.Path, p.FullPage); err != nil {
		return nil, fail(err)
	}
	return schema.Success(map[string]any{
		"step":      ActionSnapshot,
		"path":      p.Path,
		"full_page": p.FullPage,
	}), nil
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, ".")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// checkDomain returns a POLICY_VIOLATION error when raw's host is neither one of
// allowed nor a subdomain of one. An empty allowed list permits everything.
func checkDomain(raw string, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodePolicyViolation, "unparseable url %q", raw).WithCause(err)
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range allowed {
		if host == d || strings.HasSuffix(host, "."+d) {
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodePolicyViolation, "host %q is not in allowed domains", host).
		WithDetails(map[string]any{"allowed_domains": allowed})
}
