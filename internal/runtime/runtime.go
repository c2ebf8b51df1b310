// Package runtime provides the pluggable interface through which a real Lua
// evaluator executes the generated metaprogram. The core pipeline (lexer,
// transpiler, serializer, driver) never runs Lua itself; it delegates to a
// HostRuntime, which is the one external collaborator this system requires.
//
// Two implementations are provided: Subprocess, which shells out to a real
// Lua interpreter binary, and Mini, a small embedded evaluator covering a
// practical subset of Lua sufficient to run the metaprograms this transpiler
// emits without requiring a Lua installation. Mini exists for testing and for
// environments with no Lua binary available. cmd/luapp always runs
// Subprocess; the driver, REPL and server fall back to Mini when no runtime
// is configured.
package runtime

import "context"

// Raw marks a Globals value as literal Lua source to inject verbatim (e.g. a
// function definition) rather than a value to serialize.
type Raw string

// Environment is the per-file metaprogram environment a HostRuntime
// evaluates the program against. The driver builds a fresh, empty one per
// file, which a "beforemeta" handler callback may further mutate before
// execution.
type Environment struct {
	// Globals maps global variable names to either a serializable value
	// (nil, bool, float64, string, *value.Table) or a Raw literal.
	Globals map[string]interface{}
}

// NewEnvironment returns an empty, ready-to-use Environment.
func NewEnvironment() *Environment {
	return &Environment{Globals: map[string]interface{}{}}
}

// Clone returns a shallow copy of env, so mutations made while processing one
// file never leak into another file's environment.
func (env *Environment) Clone() *Environment {
	out := NewEnvironment()
	for k, v := range env.Globals {
		out.Globals[k] = v
	}
	return out
}

// Sinks are the callbacks a HostRuntime must wire the generated metaprogram's
// outputLua/outputValue calls to.
type Sinks struct {
	// OutputLua appends s to the output buffer verbatim.
	OutputLua func(s string)

	// OutputValue serializes v per the value package's rules and appends the
	// resulting literal to the output buffer. It returns an error if v is
	// not representable (a table-typed key, or an unsupported Go type).
	OutputValue func(v interface{}) error

	// Printf writes a formatted diagnostic line (the host helper of the
	// same name), independent of the output buffer.
	Printf func(format string, args ...interface{})

	// FileExists and GetFileContents back the host helpers of the same
	// name.
	FileExists      func(path string) bool
	GetFileContents func(path string) (string, bool)
}

// HostRuntime executes a generated metaprogram, delivering its output
// through the sinks, or evaluates whether an expression body would compile.
type HostRuntime interface {
	// Run executes program against env, delivering the output produced by
	// calls to outputLua/outputValue through sinks. It returns only an
	// error.
	Run(ctx context.Context, program string, env *Environment, sinks Sinks) error

	// CompileCheck reports whether "return(" + body + ")" would compile as
	// a valid expression in the host language.
	CompileCheck(body string) bool

	// CompileChunk reports whether source would compile as a standalone
	// host-language chunk (a full program, not merely an expression body).
	// The driver uses this for its output-validation step; CompileCheck is
	// unsuitable there because a whole file is rarely a single expression.
	CompileChunk(source string) bool
}
