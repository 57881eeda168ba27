package playwright_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/browseract/internal/actions"
	"github.com/rendis/browseract/internal/driver/playwright"
	"github.com/rendis/browseract/internal/engine"
	"github.com/rendis/browseract/internal/validation"
	"github.com/rendis/browseract/pkg/schema"
)

const searchPage = `<!doctype html>
<html><body>
<input id="q">
<select id="country"><option value="us">United States</option><option value="de">Germany</option></select>
<input id="terms" type="checkbox">
<button id="go" onclick="setTimeout(function(){var r=document.createElement('div');r.id='result';r.textContent=document.getElementById('q').value;document.body.appendChild(r)},50)">Go</button>
</body></html>`

func TestPlaywrightEndToEnd(t *testing.T) {
	if os.Getenv("BROWSERACT_E2E") != "1" {
		t.Skip("set BROWSERACT_E2E=1 to run browser tests")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(searchPage))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	drv := playwright.New(playwright.Options{Headless: true, Install: true})
	require.NoError(t, drv.Start(ctx))
	defer drv.Stop(context.Background())

	v, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)
	reg := actions.NewRegistry(v)
	actions.RegisterBuiltins(reg, actions.BuiltinConfig{})

	dir := t.TempDir()
	r, err := engine.NewRunner(reg, drv, engine.Config{Retries: 1, ArtifactsDir: dir})
	require.NoError(t, err)

	s, err := drv.NewSession(ctx)
	require.NoError(t, err)
	defer drv.CloseSession(context.Background(), s)

	shot := filepath.Join(dir, "shots", "page.png")
	out := r.Run(ctx, s, []schema.ActionRequest{
		schema.NewRequest("open_url", map[string]any{"url": srv.URL}),
		schema.NewRequest("type", map[string]any{"selector": "#q", "text": "golang"}),
		schema.NewRequest("select_option", map[string]any{"selector": "#country", "value": "Germany", "by": "label"}),
		schema.NewRequest("check", map[string]any{"selector": "#terms"}),
		schema.NewRequest("check", map[string]any{"selector": "#terms"}),
		schema.NewRequest("click", map[string]any{"selector": "#go"}),
		schema.NewRequest("wait_for", map[string]any{"selector": "#result", "timeout_ms": 5000}),
		schema.NewRequest("extract_text", map[string]any{"selector": "#result"}),
		schema.NewRequest("snapshot", map[string]any{"path": shot}),
	})

	require.Len(t, out, 9)
	for _, o := range out {
		assert.True(t, o.OK, "%d %s: %s", o.Index, o.Name, o.Detail)
	}
	require.NotNil(t, out[7].Extracted)
	assert.Equal(t, "golang", *out[7].Extracted)
	assert.FileExists(t, shot)

	failed := r.Run(ctx, s, []schema.ActionRequest{
		schema.NewRequest("wait_for", map[string]any{"selector": "#never", "timeout_ms": 200}),
	})
	assert.False(t, failed[0].OK)
	assert.FileExists(t, engine.ArtifactPath(dir, 1, "wait_for"))
}
