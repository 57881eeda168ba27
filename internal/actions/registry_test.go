package actions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rendis/browseract/internal/driver"
	"github.com/rendis/browseract/internal/validation"
	"github.com/rendis/browseract/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	v, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)
	return NewRegistry(v)
}

// stubExec returns an executor that reports which binding ran.
func stubExec(tag string) Executor {
	return func(_ context.Context, _ driver.Driver, _ driver.Session, _ any) (*schema.ActionResult, error) {
		return schema.Success(map[string]any{"tag": tag}), nil
	}
}

func TestRegistry_Register_Success(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Register("test.action", stubExec("a"), nil)
	assert.Equal(t, 1, reg.Count())
	assert.True(t, reg.Has("test.action"))
}

func TestRegistry_Register_LastWins(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Register("dup", stubExec("first"), nil)
	reg.Register("dup", stubExec("second"), &ParamSpec{Description: "second binding"})

	assert.Equal(t, 1, reg.Count())
	exec, err := reg.Resolve("dup")
	require.NoError(t, err)
	res, err := exec(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "second", res.Meta["tag"])
	assert.Equal(t, "second binding", reg.List()[0].Description)
}

func TestRegistry_Register_Panics(t *testing.T) {
	reg := newTestRegistry(t)
	assert.Panics(t, func() { reg.Register("", stubExec("a"), nil) })
	assert.Panics(t, func() { reg.Register("x", nil, nil) })
	assert.Panics(t, func() {
		reg.Register("x", stubExec("a"), &ParamSpec{Schema: json.RawMessage(`{"type": `)})
	})
	assert.Equal(t, 0, reg.Count())
}

func TestRegistry_Resolve_NotRegistered(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Resolve("missing")
	require.Error(t, err)

	var sErr *schema.Error
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, schema.ErrCodeNotRegistered, sErr.Code)
}

func TestRegistry_Schema(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Register("bare", stubExec("a"), nil)
	reg.Register("typed", stubExec("b"), &ParamSpec{Schema: clickSchema})

	s, err := reg.Schema("bare")
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = reg.Schema("typed")
	require.NoError(t, err)
	assert.JSONEq(t, string(clickSchema), string(s))

	_, err = reg.Schema("missing")
	assert.Equal(t, schema.ErrCodeNotRegistered, schema.CodeOf(err))
}

func TestRegistry_List_Sorted(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Register("z.action", stubExec("z"), &ParamSpec{Description: "last"})
	reg.Register("a.action", stubExec("a"), &ParamSpec{Description: "first"})
	reg.Register("m.action", stubExec("m"), nil)

	metas := reg.List()
	require.Len(t, metas, 3)
	assert.Equal(t, "a.action", metas[0].Name)
	assert.Equal(t, "first", metas[0].Description)
	assert.Equal(t, "m.action", metas[1].Name)
	assert.Equal(t, "z.action", metas[2].Name)
}

func TestRegistry_List_Empty(t *testing.T) {
	reg := newTestRegistry(t)
	assert.Empty(t, reg.List())
}

func TestRegistry_Reset(t *testing.T) {
	reg := newTestRegistry(t)
	RegisterBuiltins(reg, BuiltinConfig{})
	require.Equal(t, 9, reg.Count())

	reg.Reset()
	assert.Equal(t, 0, reg.Count())
	assert.False(t, reg.Has(ActionClick))
}

func TestRegistry_ValidateRequest_NoSchema(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Register("free", stubExec("a"), nil)

	meta, params, err := reg.ValidateRequest(schema.NewRequest("free", map[string]any{"anything": []any{1, 2}}))
	require.NoError(t, err)
	assert.Equal(t, "free", meta.Name)
	assert.Nil(t, params)
}

func TestRegistry_ValidateRequest_MapParams(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Register("mapped", stubExec("a"), &ParamSpec{Schema: clickSchema})

	_, params, err := reg.ValidateRequest(schema.NewRequest("mapped", map[string]any{"selector": "#a"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"selector": "#a"}, params)
}

func TestRegistry_ValidateRequest_Typed(t *testing.T) {
	reg := newTestRegistry(t)
	RegisterBuiltins(reg, BuiltinConfig{})

	_, params, err := reg.ValidateRequest(schema.NewRequest(ActionWaitFor, map[string]any{"selector": "  #ready  "}))
	require.NoError(t, err)
	p, ok := params.(*WaitForParams)
	require.True(t, ok)
	assert.Equal(t, "#ready", p.Selector)
	assert.Equal(t, DefaultTimeoutMS, p.TimeoutMS)
}

func TestRegistry_ValidateRequest_NotRegistered(t *testing.T) {
	reg := newTestRegistry(t)
	_, _, err := reg.ValidateRequest(schema.NewRequest("nope", nil))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotRegistered, schema.CodeOf(err))
}

func TestRegistry_ValidateRequest_InvalidArguments(t *testing.T) {
	reg := newTestRegistry(t)
	RegisterBuiltins(reg, BuiltinConfig{})

	_, params, err := reg.ValidateRequest(schema.NewRequest(ActionClick, map[string]any{}))
	require.Error(t, err)
	assert.Nil(t, params)

	var sErr *schema.Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, schema.ErrCodeInvalidArguments, sErr.Code)
	assert.Equal(t, ActionClick, sErr.Action)
	assert.NotEmpty(t, sErr.Violations())
}

func TestRegistryCheck(t *testing.T) {
	reg := newTestRegistry(t)
	RegisterBuiltins(reg, BuiltinConfig{})

	results := reg.Check([]schema.ActionRequest{
		schema.NewRequest("click", map[string]any{"selector": "#go"}),
		schema.NewRequest("fly", nil),
		schema.NewRequest("wait_for", map[string]any{"timeout_ms": 5}),
	})

	require.Len(t, results, 3)
	assert.Equal(t, CheckResult{Index: 1, Name: "click", Status: StatusOK}, results[0])
	assert.True(t, results[0].OK())
	assert.Equal(t, StatusNotRegistered, results[1].Status)
	assert.Contains(t, results[1].Error, schema.ErrCodeNotRegistered)
	assert.Equal(t, StatusInvalidArgs, results[2].Status)
	assert.Equal(t, 3, results[2].Index)
	assert.False(t, AllChecksOK(results))
	assert.True(t, AllChecksOK(results[:1]))
	assert.True(t, AllChecksOK(nil))
}
