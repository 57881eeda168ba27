package rod

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/browseract/internal/driver"
)

func newTestDriver(timeout time.Duration) (*Driver, *session) {
	d := New(Options{Timeout: timeout})
	s := &session{id: "s-1", page: &rod.Page{}}
	d.sessions[s.id] = s
	return d, s
}

func TestPage_CancelReleasesDeadline(t *testing.T) {
	d, s := newTestDriver(time.Hour)

	page, cancel, err := d.page(context.Background(), "click", "#go", s, driver.CallOptions{})
	require.NoError(t, err)
	callCtx := page.GetContext()
	deadline, ok := callCtx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Hour), deadline, time.Minute)
	assert.NoError(t, callCtx.Err())

	cancel()
	assert.ErrorIs(t, callCtx.Err(), context.Canceled)
}

func TestPage_CallTimeoutOverridesDefault(t *testing.T) {
	d, s := newTestDriver(time.Hour)

	page, cancel, err := d.page(context.Background(), "click", "#go", s, driver.CallOptions{Timeout: time.Second})
	require.NoError(t, err)
	defer cancel()
	deadline, ok := page.GetContext().Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
}

func TestPage_Errors(t *testing.T) {
	d, s := newTestDriver(time.Second)

	_, _, err := d.page(context.Background(), "click", "#go", &session{id: "missing"}, driver.CallOptions{})
	assert.ErrorIs(t, err, driver.ErrNoSession)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = d.page(ctx, "click", "#go", s, driver.CallOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
