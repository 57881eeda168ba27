package actions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rendis/browseract/internal/driver"
	"github.com/rendis/browseract/internal/driver/drivertest"
	"github.com/rendis/browseract/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	reg  *Registry
	fake *drivertest.Fake
	sess driver.Session
}

func newHarness(t *testing.T, cfg BuiltinConfig) *harness {
	t.Helper()
	reg := newTestRegistry(t)
	RegisterBuiltins(reg, cfg)
	fake := drivertest.New()
	sess, err := fake.NewSession(context.Background())
	require.NoError(t, err)
	return &harness{reg: reg, fake: fake, sess: sess}
}

func (h *harness) run(t *testing.T, name string, args map[string]any) (*schema.ActionResult, error) {
	t.Helper()
	_, params, err := h.reg.ValidateRequest(schema.NewRequest(name, args))
	if err != nil {
		return nil, err
	}
	exec, err := h.reg.Resolve(name)
	require.NoError(t, err)
	return exec(context.Background(), h.fake, h.sess, params)
}

func TestRegisterBuiltins_Names(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	var names []string
	for _, m := range h.reg.List() {
		names = append(names, m.Name)
		assert.NotEmpty(t, m.Description, m.Name)
		assert.NotEmpty(t, m.ParamSchema, m.Name)
	}
	assert.Equal(t, []string{
		"check", "click", "extract_text", "open_url", "select_option",
		"snapshot", "type", "upload_resume", "wait_for",
	}, names)
}

func TestOpenURL(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	res, err := h.run(t, ActionOpenURL, map[string]any{"url": "https://example.com/jobs"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "https://example.com/jobs", res.Meta["url"])
	assert.Equal(t, ActionOpenURL, res.Meta["step"])

	calls := h.fake.CallsFor(drivertest.OpNavigate)
	require.Len(t, calls, 1)
	assert.Equal(t, "https://example.com/jobs", calls[0].Value)
}

func TestOpenURL_RejectsNonHTTP(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	for _, u := range []string{"ftp://example.com", "example.com", "not a url", "file:///etc/passwd"} {
		_, err := h.run(t, ActionOpenURL, map[string]any{"url": u})
		require.Error(t, err, u)
		assert.Equal(t, schema.ErrCodeInvalidArguments, schema.CodeOf(err), u)
	}
	assert.Empty(t, h.fake.Calls())
}

func TestOpenURL_DriverFailure(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	h.fake.FailTimes(drivertest.OpNavigate, 1)

	_, err := h.run(t, ActionOpenURL, map[string]any{"url": "https://example.com"})
	var aErr *schema.ActionError
	require.ErrorAs(t, err, &aErr)
	assert.Equal(t, ActionOpenURL, aErr.Action)
	assert.Equal(t, "https://example.com", aErr.URL)
	assert.ErrorIs(t, err, drivertest.ErrScripted)
}

func TestOpenURL_AllowedDomains(t *testing.T) {
	h := newHarness(t, BuiltinConfig{AllowedDomains: []string{" Example.com "}})

	_, err := h.run(t, ActionOpenURL, map[string]any{"url": "https://jobs.example.com/1"})
	require.NoError(t, err)

	_, err = h.run(t, ActionOpenURL, map[string]any{"url": "https://evil.test/"})
	var aErr *schema.ActionError
	require.ErrorAs(t, err, &aErr)
	var sErr *schema.Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, schema.ErrCodePolicyViolation, sErr.Code)
	assert.False(t, sErr.IsRetryable())
	assert.Len(t, h.fake.CallsFor(drivertest.OpNavigate), 1)
}

func TestWaitFor(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	h.fake.SetText("#ready", "ok")

	res, err := h.run(t, ActionWaitFor, map[string]any{"selector": "#ready", "timeout_ms": 250})
	require.NoError(t, err)
	assert.Equal(t, "#ready", res.Meta["selector"])
	assert.Equal(t, 250*time.Millisecond, h.fake.CallsFor(drivertest.OpWait)[0].Timeout)

	_, err = h.run(t, ActionWaitFor, map[string]any{"selector": "#ready", "timeout_ms": nil})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, h.fake.CallsFor(drivertest.OpWait)[1].Timeout)
}

func TestWaitFor_TimeoutBounds(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	for _, ms := range []int{0, -5, 60001} {
		_, err := h.run(t, ActionWaitFor, map[string]any{"selector": "#a", "timeout_ms": ms})
		assert.Equal(t, schema.ErrCodeInvalidArguments, schema.CodeOf(err), ms)
	}
	_, err := h.run(t, ActionWaitFor, map[string]any{"selector": "#a", "timeout_ms": 60000})
	var aErr *schema.ActionError
	require.ErrorAs(t, err, &aErr)
	assert.Equal(t, "#a", aErr.Selector)
}

func TestSelectors_BlankRejected(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	for _, name := range []string{ActionClick, ActionExtractText, ActionWaitFor, ActionCheck} {
		_, err := h.run(t, name, map[string]any{"selector": "   "})
		assert.Equal(t, schema.ErrCodeInvalidArguments, schema.CodeOf(err), name)
	}
	assert.Empty(t, h.fake.Calls())
}

func TestClick_TrimsSelector(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	h.fake.SetText("#go", "Go")

	res, err := h.run(t, ActionClick, map[string]any{"selector": "\t#go "})
	require.NoError(t, err)
	assert.Equal(t, "#go", res.Meta["selector"])
	assert.Equal(t, "#go", h.fake.CallsFor(drivertest.OpClick)[0].Selector)
}

func TestClick_Missing(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	_, err := h.run(t, ActionClick, map[string]any{"selector": "#nope"})

	var aErr *schema.ActionError
	require.ErrorAs(t, err, &aErr)
	assert.Equal(t, "#nope", aErr.Selector)
	assert.Contains(t, aErr.Error(), "failed to click element")

	var dErr *driver.Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, drivertest.OpClick, dErr.Op)
}

func TestType(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	h.fake.SetEmpty("#q")

	res, err := h.run(t, ActionType, map[string]any{"selector": "#q", "text": "héllo"})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Meta["length"])
	assert.Equal(t, "héllo", h.fake.Value("#q"))
}

func TestType_TooLongFailsBeforeDriver(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	h.fake.SetEmpty("#q")

	_, err := h.run(t, ActionType, map[string]any{"selector": "#q", "text": strings.Repeat("a", MaxTypeLength+1)})
	require.Error(t, err)

	var sErr *schema.Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, schema.ErrCodeInvalidArguments, sErr.Code)
	require.Len(t, sErr.Violations(), 1)
	assert.Contains(t, sErr.Violations()[0], "/text")
	assert.Empty(t, h.fake.Calls())

	_, err = h.run(t, ActionType, map[string]any{"selector": "#q", "text": strings.Repeat("a", MaxTypeLength)})
	assert.NoError(t, err)
}

func TestExtractText(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	h.fake.SetText("#title", "Engineer")
	h.fake.SetEmpty("#empty")

	res, err := h.run(t, ActionExtractText, map[string]any{"selector": "#title"})
	require.NoError(t, err)
	require.NotNil(t, res.ExtractedContent)
	assert.Equal(t, "Engineer", *res.ExtractedContent)
	assert.True(t, res.IncludeInMemory)
	assert.Equal(t, false, res.Meta["empty"])

	res, err = h.run(t, ActionExtractText, map[string]any{"selector": "#empty"})
	require.NoError(t, err)
	assert.Nil(t, res.ExtractedContent)
	assert.Equal(t, true, res.Meta["empty"])
}

func TestUploadResume(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	h.fake.SetEmpty("input[type=file]")

	res, err := h.run(t, ActionUploadResume, map[string]any{"selector": "input[type=file]", "file_path": "/tmp/cv.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cv.pdf", res.Meta["file"])
	assert.Equal(t, 10*time.Second, h.fake.CallsFor(drivertest.OpUpload)[0].Timeout)

	_, err = h.run(t, ActionUploadResume, map[string]any{"selector": "#missing", "file_path": "/tmp/cv.pdf"})
	var aErr *schema.ActionError
	require.ErrorAs(t, err, &aErr)
	assert.Equal(t, "#missing", aErr.Selector)
	assert.Equal(t, "/tmp/cv.pdf", aErr.Path)
}

func TestSelectOption_ByRouting(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	h.fake.SetEmpty("#country")

	res, err := h.run(t, ActionSelectOption, map[string]any{"selector": "#country", "value": "de"})
	require.NoError(t, err)
	assert.Equal(t, "value", res.Meta["by"])

	res, err = h.run(t, ActionSelectOption, map[string]any{"selector": "#country", "value": "Germany", "by": "label"})
	require.NoError(t, err)
	assert.Equal(t, "label", res.Meta["by"])

	calls := h.fake.CallsFor(drivertest.OpSelectOption)
	require.Len(t, calls, 2)
	assert.Equal(t, driver.SelectByValue, calls[0].By)
	assert.Equal(t, "de", calls[0].Value)
	assert.Equal(t, driver.SelectByLabel, calls[1].By)
	assert.Equal(t, "Germany", calls[1].Value)
}

func TestSelectOption_UnsupportedBy(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	h.fake.SetEmpty("#country")

	_, err := h.run(t, ActionSelectOption, map[string]any{"selector": "#country", "value": "de", "by": "index"})
	assert.Equal(t, schema.ErrCodeInvalidArguments, schema.CodeOf(err))
	assert.Empty(t, h.fake.Calls())
}

func TestSelectOption_FailureDetails(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	_, err := h.run(t, ActionSelectOption, map[string]any{"selector": "#x", "value": "v", "by": "label", "timeout_ms": 50})

	var aErr *schema.ActionError
	require.ErrorAs(t, err, &aErr)
	assert.Equal(t, "#x", aErr.Selector)
	assert.Equal(t, "v", aErr.Details["value"])
	assert.Equal(t, "label", aErr.Details["by"])
	assert.Equal(t, 50, aErr.Details["timeout_ms"])
	assert.NotEmpty(t, aErr.Details["cause"])
}

func TestCheck(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	h.fake.SetEmpty("#terms")

	res, err := h.run(t, ActionCheck, map[string]any{"selector": "#terms"})
	require.NoError(t, err)
	assert.Equal(t, "#terms", res.Meta["selector"])
	assert.True(t, h.fake.Checked("#terms"))
}

func TestNullTimeoutUsesDefault(t *testing.T) {
	cases := []struct {
		action string
		op     string
		args   map[string]any
	}{
		{ActionWaitFor, drivertest.OpWait, map[string]any{"selector": "#el"}},
		{ActionUploadResume, drivertest.OpUpload, map[string]any{"selector": "#el", "file_path": "/tmp/cv.pdf"}},
		{ActionSelectOption, drivertest.OpSelectOption, map[string]any{"selector": "#el", "value": "v"}},
		{ActionCheck, drivertest.OpCheck, map[string]any{"selector": "#el"}},
	}
	for _, tc := range cases {
		t.Run(tc.action, func(t *testing.T) {
			h := newHarness(t, BuiltinConfig{})
			h.fake.SetText("#el", "x")

			tc.args["timeout_ms"] = nil
			_, err := h.run(t, tc.action, tc.args)
			require.NoError(t, err)
			assert.Equal(t, DefaultTimeoutMS*time.Millisecond, h.fake.CallsFor(tc.op)[0].Timeout)

			tc.args["timeout_ms"] = 0
			_, err = h.run(t, tc.action, tc.args)
			assert.Equal(t, schema.ErrCodeInvalidArguments, schema.CodeOf(err))
		})
	}
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	path := filepath.Join(t.TempDir(), "nested", "page.png")

	res, err := h.run(t, ActionSnapshot, map[string]any{"path": path})
	require.NoError(t, err)
	assert.Equal(t, path, res.Meta["path"])
	assert.Equal(t, true, res.Meta["full_page"])
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)

	_, err = h.run(t, ActionSnapshot, map[string]any{"path": path, "full_page": false})
	require.NoError(t, err)
	calls := h.fake.CallsFor(drivertest.OpScreenshot)
	require.Len(t, calls, 2)
	assert.True(t, calls[0].FullPage)
	assert.False(t, calls[1].FullPage)
}

func TestSnapshot_FailureDetails(t *testing.T) {
	h := newHarness(t, BuiltinConfig{})
	h.fake.ScreenshotErr = errors.New("no screen")
	path := filepath.Join(t.TempDir(), "page.png")

	_, err := h.run(t, ActionSnapshot, map[string]any{"path": path, "full_page": false})
	var aErr *schema.ActionError
	require.ErrorAs(t, err, &aErr)
	assert.Equal(t, path, aErr.Details["path"])
	assert.Equal(t, false, aErr.Details["full_page"])
	assert.Contains(t, aErr.Details["cause"], "no screen")
}

func TestTyped_WrongParams(t *testing.T) {
	exec := typed(ActionClick, click)
	_, err := exec(context.Background(), drivertest.New(), nil, map[string]any{"selector": "#a"})
	var aErr *schema.ActionError
	require.ErrorAs(t, err, &aErr)
	assert.Contains(t, aErr.Message, "unexpected params type")
}
