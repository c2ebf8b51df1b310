package repl

import (
	"context"
	"strings"
	"testing"

	"github.com/pellmont/luapp/internal/runtime"
	"github.com/stretchr/testify/assert"
)

func Test_Session_literalLinesPassThrough(t *testing.T) {
	in := strings.NewReader("print(\"hi\")\n" + QuitCommand + "\n")
	var out strings.Builder

	s := NewSession(runtime.Mini{}, &out, in)
	assert.NoError(t, s.Run(context.Background()))
	assert.Equal(t, "print(\"hi\")\n", out.String())
}

func Test_Session_metaLineEvaluates(t *testing.T) {
	in := strings.NewReader("!(1+2)\n" + QuitCommand + "\n")
	var out strings.Builder

	s := NewSession(runtime.Mini{}, &out, in)
	assert.NoError(t, s.Run(context.Background()))
	assert.Equal(t, "3\n", out.String())
}

func Test_Session_globalsPersistAcrossLines(t *testing.T) {
	in := strings.NewReader("!(x = 5)\n!(x+1)\n" + QuitCommand + "\n")
	var out strings.Builder

	s := NewSession(runtime.Mini{}, &out, in)
	assert.NoError(t, s.Run(context.Background()))
	assert.Equal(t, "\n6\n", out.String())
}

func Test_Session_errorOnOneLineDoesNotAbortSession(t *testing.T) {
	in := strings.NewReader("!!(1+)\nprint(1)\n" + QuitCommand + "\n")
	var out strings.Builder

	s := NewSession(runtime.Mini{}, &out, in)
	assert.NoError(t, s.Run(context.Background()))
	assert.Contains(t, out.String(), "error:")
	assert.Contains(t, out.String(), "print(1)\n")
}

func Test_Session_blankLinesAreSkipped(t *testing.T) {
	in := strings.NewReader("\n\nprint(1)\n" + QuitCommand + "\n")
	var out strings.Builder

	s := NewSession(runtime.Mini{}, &out, in)
	assert.NoError(t, s.Run(context.Background()))
	assert.Equal(t, "print(1)\n", out.String())
}
