package static

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/browseract/internal/driver"
)

const jobPage = `<!doctype html>
<html><body>
  <h1 id="title">Backend Engineer</h1>
  <span id="company">Acme</span>
  <span id="salary"></span>
  <a id="next" href="/page2">next</a>
  <form id="search" action="/search" method="get">
    <input id="q" name="q" value="">
    <select id="country" name="country">
      <option value="us">United States</option>
      <option value="de">Germany</option>
    </select>
    <input id="terms" type="checkbox" name="terms" value="yes">
    <input type="file" id="cv" name="cv">
    <button id="go" type="submit">Go</button>
  </form>
</body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/job", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, jobPage)
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p id="msg">second page</p></body></html>`)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		fmt.Fprintf(w, `<html><body><p id="result">%s|%s|%s</p></body></html>`,
			q.Get("q"), q.Get("country"), q.Get("terms"))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func open(t *testing.T, srv *httptest.Server, path string) (*Driver, driver.Session) {
	t.Helper()
	d := New(Options{Client: srv.Client()})
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	s, err := d.NewSession(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Navigate(ctx, s, srv.URL+path, driver.CallOptions{}))
	return d, s
}

func TestNavigateAndRead(t *testing.T) {
	srv := newServer(t)
	d, s := open(t, srv, "/job")
	ctx := context.Background()

	text, err := d.ReadText(ctx, s, "#title", driver.CallOptions{})
	require.NoError(t, err)
	require.NotNil(t, text)
	assert.Equal(t, "Backend Engineer", *text)

	text, err = d.ReadText(ctx, s, "#salary", driver.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", *text)

	_, err = d.ReadText(ctx, s, "#missing", driver.CallOptions{})
	var dErr *driver.Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "read_text", dErr.Op)
	assert.Equal(t, "#missing", dErr.Selector)
}

func TestNavigate_HTTPError(t *testing.T) {
	srv := newServer(t)
	d := New(Options{Client: srv.Client()})
	s, err := d.NewSession(context.Background())
	require.NoError(t, err)

	err = d.Navigate(context.Background(), s, srv.URL+"/gone", driver.CallOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 410")
}

func TestWaitForVisible(t *testing.T) {
	srv := newServer(t)
	d, s := open(t, srv, "/job")
	assert.NoError(t, d.WaitForVisible(context.Background(), s, "#company", driver.Timeout(100)))
	assert.Error(t, d.WaitForVisible(context.Background(), s, "#nope", driver.Timeout(100)))
}

func TestClick_FollowsLink(t *testing.T) {
	srv := newServer(t)
	d, s := open(t, srv, "/job")
	ctx := context.Background()

	require.NoError(t, d.Click(ctx, s, "#next", driver.CallOptions{}))
	text, err := d.ReadText(ctx, s, "#msg", driver.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "second page", *text)
}

func TestClick_SubmitsFormWithEdits(t *testing.T) {
	srv := newServer(t)
	d, s := open(t, srv, "/job")
	ctx := context.Background()

	require.NoError(t, d.TypeText(ctx, s, "#q", "golang", driver.CallOptions{}))
	require.NoError(t, d.SelectOption(ctx, s, "#country", "Germany", driver.SelectByLabel, driver.CallOptions{}))
	require.NoError(t, d.Check(ctx, s, "#terms", driver.CallOptions{}))
	require.NoError(t, d.Check(ctx, s, "#terms", driver.CallOptions{}))
	require.NoError(t, d.Click(ctx, s, "#go", driver.CallOptions{}))

	text, err := d.ReadText(ctx, s, "#result", driver.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "golang|de|yes", *text)
}

func TestSelectOption(t *testing.T) {
	srv := newServer(t)
	d, s := open(t, srv, "/job")
	ctx := context.Background()

	assert.NoError(t, d.SelectOption(ctx, s, "#country", "de", driver.SelectByValue, driver.CallOptions{}))
	assert.Error(t, d.SelectOption(ctx, s, "#country", "Germany", driver.SelectByValue, driver.CallOptions{}))
	assert.Error(t, d.SelectOption(ctx, s, "#title", "x", driver.SelectByValue, driver.CallOptions{}))

	err := d.SelectOption(ctx, s, "#country", "de", driver.SelectBy("index"), driver.CallOptions{})
	assert.ErrorIs(t, err, driver.ErrUnsupported)
}

func TestUnsupportedPrimitives(t *testing.T) {
	srv := newServer(t)
	d, s := open(t, srv, "/job")
	ctx := context.Background()

	assert.ErrorIs(t, d.UploadFile(ctx, s, "#cv", "/tmp/cv.pdf", driver.CallOptions{}), driver.ErrUnsupported)
	assert.ErrorIs(t, d.Screenshot(ctx, s, "x.png", true), driver.ErrUnsupported)
}

func TestSessions(t *testing.T) {
	d := New(Options{})
	ctx := context.Background()
	s, err := d.NewSession(ctx)
	require.NoError(t, err)

	require.NoError(t, d.CloseSession(ctx, s))
	assert.ErrorIs(t, d.CloseSession(ctx, s), driver.ErrNoSession)
	assert.ErrorIs(t, d.Click(ctx, s, "#a", driver.CallOptions{}), driver.ErrNoSession)
}

func TestCancelledContext(t *testing.T) {
	srv := newServer(t)
	d, s := open(t, srv, "/job")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, d.Navigate(ctx, s, srv.URL+"/page2", driver.CallOptions{}), context.Canceled)
}
