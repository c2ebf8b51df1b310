package runtime

import (
	"context"
	"fmt"
)

// Mini is a HostRuntime backed by a small embedded evaluator covering the
// practical subset of Lua the transpiler's generated metaprograms use. It
// requires no external process and is the default runtime for tests and for
// driver invocations where no Lua binary is configured.
type Mini struct{}

// Run parses and evaluates program as a Mini block, dispatching outputLua
// and outputValue calls to sinks.
func (Mini) Run(ctx context.Context, program string, env *Environment, sinks Sinks) error {
	block, err := miniParse(program)
	if err != nil {
		return fmt.Errorf("metaprogram: %w", err)
	}

	globals := map[string]interface{}{}
	for k, v := range env.Globals {
		if raw, ok := v.(Raw); ok {
			// Raw globals name Lua source to be defined in a full host; Mini
			// has no function values, so a Raw entry is simply unavailable
			// as a callable and is dropped rather than faked.
			_ = raw
			continue
		}
		globals[k] = v
	}

	it := &miniInterp{globals: globals, sinks: sinks}
	_, err = it.execBlock(ctx, block)

	// Write mutations back so a caller reusing env across multiple Run
	// calls (the REPL's persistent session) observes them. Raw entries were
	// never copied in, so they survive untouched.
	for k, v := range globals {
		env.Globals[k] = v
	}

	if err != nil {
		return fmt.Errorf("metaprogram: %w", err)
	}
	return nil
}

// CompileCheck reports whether body parses as a standalone Lua expression,
// by attempting to parse it as the sole expression in a return statement.
func (Mini) CompileCheck(body string) bool {
	block, err := miniParse("return (" + body + ")")
	if err != nil {
		return false
	}
	if len(block) != 1 {
		return false
	}
	_, ok := block[0].(*miniReturnStmt)
	return ok
}

// CompileChunk reports whether source parses as a Mini block. Mini only
// covers a practical subset of Lua, so this rejects some source a real Lua
// interpreter would accept; Subprocess gives the spec-faithful answer.
func (Mini) CompileChunk(source string) bool {
	_, err := miniParse(source)
	return err == nil
}
