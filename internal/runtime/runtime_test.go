package runtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pellmont/luapp/internal/value"
	"github.com/stretchr/testify/assert"
)

func runMini(t *testing.T, program string) string {
	t.Helper()
	var buf strings.Builder
	sinks := Sinks{
		OutputLua: func(s string) { buf.WriteString(s) },
		OutputValue: func(v interface{}) error {
			lit, err := value.Serialize(v, false)
			if err != nil {
				return err
			}
			buf.WriteString(lit)
			return nil
		},
	}
	err := Mini{}.Run(context.Background(), program, NewEnvironment(), sinks)
	assert.NoError(t, err)
	return buf.String()
}

func Test_Mini_outputLuaEmitsVerbatim(t *testing.T) {
	got := runMini(t, `outputLua("hello world")`)
	assert.Equal(t, "hello world", got)
}

func Test_Mini_outputValueSerializesNumber(t *testing.T) {
	got := runMini(t, `outputValue(3)`)
	assert.Equal(t, "3", got)
}

func Test_Mini_numericForLoop(t *testing.T) {
	got := runMini(t, `
for i = 1, 3 do
	outputLua("x()")
end
`)
	assert.Equal(t, "x()x()x()", got)
}

func Test_Mini_ifElse(t *testing.T) {
	got := runMini(t, `
local n = 5
if n > 10 then
	outputLua("big")
elseif n > 0 then
	outputLua("small")
else
	outputLua("zero or negative")
end
`)
	assert.Equal(t, "small", got)
}

func Test_Mini_whileLoop(t *testing.T) {
	got := runMini(t, `
local i = 0
while i < 3 do
	outputLua("a")
	i = i + 1
end
`)
	assert.Equal(t, "aaa", got)
}

func Test_Mini_arithmeticAndConcat(t *testing.T) {
	got := runMini(t, `outputLua("n=" .. (2 + 3 * 4))`)
	assert.Equal(t, "n=14", got)
}

func Test_Mini_environmentGlobalsAreVisible(t *testing.T) {
	var buf strings.Builder
	env := NewEnvironment()
	env.Globals["greeting"] = "hi"
	sinks := Sinks{OutputLua: func(s string) { buf.WriteString(s) }}
	err := Mini{}.Run(context.Background(), `outputLua(greeting)`, env, sinks)
	assert.NoError(t, err)
	assert.Equal(t, "hi", buf.String())
}

func Test_Mini_CompileCheck(t *testing.T) {
	m := Mini{}
	assert.True(t, m.CompileCheck(`1 + 1`))
	assert.True(t, m.CompileCheck(`"a" .. "b"`))
	assert.False(t, m.CompileCheck(`local x = 1`))
	assert.False(t, m.CompileCheck(`if true then`))
}

func Test_Mini_CompileChunk(t *testing.T) {
	m := Mini{}
	assert.True(t, m.CompileChunk(`local x = 1
outputLua(tostring(x))`))
	assert.False(t, m.CompileChunk(`if true then`))
}

func Test_Mini_runExecutesAnotherFileInTheSameEnvironment(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "other.lua")
	// !(n) reads the shared global; !(n = 2) mutates it for the caller to
	// observe once run() returns. No characters separate the two meta
	// blocks, so nothing verbatim is interleaved with their output.
	assert.NoError(t, os.WriteFile(other, []byte("!(n)!(n = 2)"), 0644))

	env := NewEnvironment()
	env.Globals["n"] = float64(1)

	var buf strings.Builder
	sinks := Sinks{OutputLua: func(s string) { buf.WriteString(s) }}
	err := Mini{}.Run(context.Background(), `
local got = run("`+filepath.ToSlash(other)+`")
outputLua(got)
outputLua(":n=" .. n)
`, env, sinks)
	assert.NoError(t, err)
	assert.Equal(t, "1:n=2", buf.String())
}

func Test_Mini_unknownFunctionCallIsTextNotExecuted(t *testing.T) {
	// x() here is emitted as a string argument to outputLua, never invoked,
	// mirroring how a verbatim chunk containing a call to an unrelated
	// function never causes that function to be looked up.
	got := runMini(t, `outputLua("x()")`)
	assert.Equal(t, "x()", got)
}
