package handler

import (
	"context"
	"testing"

	"github.com/pellmont/luapp/internal/runtime"
	"github.com/pellmont/luapp/internal/value"
	"github.com/stretchr/testify/assert"
)

type fakeRunner struct {
	message  string
	args     []interface{}
	echoIdx  int
	ret      interface{}
	echoed   interface{}
	err      error
}

func (f *fakeRunner) InvokeHandler(ctx context.Context, handlerSource, message string, args []interface{}, echoArgIndex int) (interface{}, interface{}, error) {
	f.message = message
	f.args = args
	f.echoIdx = echoArgIndex
	return f.ret, f.echoed, f.err
}

func Test_Handler_Init_returnsMutatedPaths(t *testing.T) {
	mutated := value.NewTable()
	mutated.Set(1, "a.lua")
	mutated.Set(2, "b.lua")
	mutated.Set(3, "c.lua")

	fr := &fakeRunner{echoed: mutated}
	h := Load("return function() end", fr)

	got, err := h.Init(context.Background(), []string{"a.lua", "b.lua"})
	assert.NoError(t, err)
	assert.Equal(t, "init", fr.message)
	assert.Equal(t, []string{"a.lua", "b.lua", "c.lua"}, got)
}

func Test_Handler_Init_keepsOriginalWhenNoEcho(t *testing.T) {
	fr := &fakeRunner{echoed: nil}
	h := Load("return function() end", fr)

	got, err := h.Init(context.Background(), []string{"only.lua"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"only.lua"}, got)
}

func Test_Handler_BeforeMeta_returnsUpdatedGlobals(t *testing.T) {
	mutated := value.NewTable()
	mutated.Set("version", "2.0")

	fr := &fakeRunner{echoed: mutated}
	h := Load("return function() end", fr)

	env := runtime.NewEnvironment()
	env.Globals["version"] = "1.0"

	got, err := h.BeforeMeta(context.Background(), "in.lua", env)
	assert.NoError(t, err)
	assert.Equal(t, "2.0", got["version"])
}

func Test_Handler_AfterMeta_replacesLua(t *testing.T) {
	fr := &fakeRunner{ret: "print(1)"}
	h := Load("return function() end", fr)

	got, err := h.AfterMeta(context.Background(), "in.lua", "print(0)")
	assert.NoError(t, err)
	assert.Equal(t, "print(1)", got)
}

func Test_Handler_AfterMeta_nilReturnKeepsLua(t *testing.T) {
	fr := &fakeRunner{ret: nil}
	h := Load("return function() end", fr)

	got, err := h.AfterMeta(context.Background(), "in.lua", "print(0)")
	assert.NoError(t, err)
	assert.Equal(t, "print(0)", got)
}

func Test_Handler_AfterMeta_nonStringReturnIsError(t *testing.T) {
	fr := &fakeRunner{ret: 3.0}
	h := Load("return function() end", fr)

	_, err := h.AfterMeta(context.Background(), "in.lua", "print(0)")
	assert.Error(t, err)
}

func Test_Handler_FileDone_invokesWithBothPaths(t *testing.T) {
	fr := &fakeRunner{}
	h := Load("return function() end", fr)

	err := h.FileDone(context.Background(), "in.lua", "out.lua")
	assert.NoError(t, err)
	assert.Equal(t, "filedone", fr.message)
	assert.Equal(t, []interface{}{"in.lua", "out.lua"}, fr.args)
}
