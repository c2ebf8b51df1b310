package transpile_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pellmont/luapp/internal/lexer"
	"github.com/pellmont/luapp/internal/runtime"
	"github.com/pellmont/luapp/internal/transpile"
	"github.com/pellmont/luapp/internal/value"
	"github.com/stretchr/testify/assert"
)

// transpileAndRun lexes src, transpiles it with opts, and executes the
// resulting metaprogram through the Mini runtime, returning the
// concatenated output. Options.CompileCheck defaults to Mini's own, since
// the expression-vs-statement classification the spec describes genuinely
// requires attempting a host compile, not just a syntactic approximation.
func transpileAndRun(t *testing.T, src string, opts transpile.Options, env *runtime.Environment) (string, error) {
	t.Helper()
	if opts.CompileCheck == nil {
		opts.CompileCheck = runtime.Mini{}.CompileCheck
	}
	opts.Source = src

	toks, err := lexer.Lex("in.lua", src)
	if err != nil {
		return "", err
	}
	program, err := transpile.Transpile("in.lua", toks, opts)
	if err != nil {
		return "", err
	}

	if env == nil {
		env = runtime.NewEnvironment()
	}
	var buf strings.Builder
	sinks := runtime.Sinks{
		OutputLua: func(s string) { buf.WriteString(s) },
		OutputValue: func(v interface{}) error {
			lit, err := value.Serialize(v, opts.Debug)
			if err != nil {
				return err
			}
			buf.WriteString(lit)
			return nil
		},
	}
	if err := (runtime.Mini{}).Run(context.Background(), program, env, sinks); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func Test_Transpile_identity(t *testing.T) {
	out, err := transpileAndRun(t, "print(\"hi\")\n", transpile.Options{}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "print(\"hi\")\n", out)
}

func Test_Transpile_metaLine(t *testing.T) {
	out, err := transpileAndRun(t, "!for i=1,3 do\n    x()\n!end\n", transpile.Options{}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "    x()\n    x()\n    x()\n", out)
}

func Test_Transpile_inlineValue(t *testing.T) {
	out, err := transpileAndRun(t, "local n = !(1+2)\n", transpile.Options{}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "local n = 3\n", out)
}

func Test_Transpile_inlineCode(t *testing.T) {
	out, err := transpileAndRun(t, "!!(\"foo\"..1) = 5\n", transpile.Options{}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "foo1 = 5\n", out)
}

func Test_Transpile_statementBlockProducesNoOutput(t *testing.T) {
	out, err := transpileAndRun(t, "before!(local unused = 1)after\n", transpile.Options{}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "beforeafter\n", out)
}

func Test_Transpile_emptyMetaBlockEmitsNothing(t *testing.T) {
	out, err := transpileAndRun(t, "a!()b\n", transpile.Options{}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "ab\n", out)
}

func Test_Transpile_metaBlockEnvGlobalVisible(t *testing.T) {
	env := runtime.NewEnvironment()
	env.Globals["name"] = "world"
	out, err := transpileAndRun(t, "hello !(name)\n", transpile.Options{}, env)
	assert.NoError(t, err)
	assert.Equal(t, `hello "world"`+"\n", out)
}

func Test_Transpile_inlineValueWithEmbeddedNewlineEscapes(t *testing.T) {
	env := runtime.NewEnvironment()
	env.Globals["s"] = "a\nb"
	out, err := transpileAndRun(t, "!(s)", transpile.Options{Debug: true}, env)
	assert.NoError(t, err)
	assert.Equal(t, `"a\nb"`, out)
}

func Test_Transpile_missingCloseParenIsFatal(t *testing.T) {
	_, err := transpileAndRun(t, "x!(1+2\n", transpile.Options{}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Missing end of meta block.")
}

func Test_Transpile_ppEntryInsideMetaLineIsFatal(t *testing.T) {
	_, err := transpileAndRun(t, "!local x = 1 ! y\n", transpile.Options{}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Preprocessor token inside metaprogram.")
}

func Test_Transpile_invalidExpressionInDoubleBangIsFatal(t *testing.T) {
	_, err := transpileAndRun(t, "local x = !!(1+)\n", transpile.Options{}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "in.lua:1")
	assert.Contains(t, err.Error(), "[Parser]")
	assert.Contains(t, err.Error(), "valid expression")
}

func Test_Transpile_doubleBangOutputsStringVerbatim(t *testing.T) {
	out, err := transpileAndRun(t, "!!(\"literal text\")\n", transpile.Options{}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "literal text\n", out)
}

func Test_Transpile_addLineNumbersAnnotatesOnLineChange(t *testing.T) {
	toks, err := lexer.Lex("in.lua", "a\nb\n")
	assert.NoError(t, err)
	program, err := transpile.Transpile("in.lua", toks, transpile.Options{AddLineNumbers: true})
	assert.NoError(t, err)
	assert.Contains(t, program, "--[[@1]]")
	assert.Contains(t, program, "--[[@2]]")
}
