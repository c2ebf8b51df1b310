package runtime

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pellmont/luapp/internal/lexer"
	"github.com/pellmont/luapp/internal/transpile"
	"github.com/pellmont/luapp/internal/value"
)

// runRequestMarker prefixes a line the run() prelude function writes to
// stderr to ask the host to re-enter the pipeline for another file. Using
// stderr (rather than stdout, which only carries the final collected
// output) keeps the request channel separate from ordinary program output.
const runRequestMarker = "\x02RUN\x02"

// runErrorMarker prefixes a response line reporting that the requested run
// failed, so the prelude's run() can re-raise it as a Lua error instead of
// treating it as a literal to load.
const runErrorMarker = "\x03"

// Subprocess is a HostRuntime that shells out to a real Lua interpreter
// binary, handing it the prelude, the environment's globals, and the
// generated metaprogram as one script file and collecting the sink output
// from stdout. It is the spec-faithful runtime; Mini exists only for the cases
// where no Lua binary is available.
type Subprocess struct {
	// Bin is the Lua interpreter executable to invoke, e.g. "lua" or
	// "lua5.4". Defaults to "lua" if empty.
	Bin string
}

func (s Subprocess) bin() string {
	if s.Bin == "" {
		return "lua"
	}
	return s.Bin
}

// Run executes program against env and sinks by running it inside a real
// Lua process. OutputLua/OutputValue calls are captured by appending to an
// in-process buffer inside the Lua script and printed at the very end, so
// they are delivered to the Go-side sinks as one final write.
//
// The script is given to the interpreter as a file argument rather than
// over stdin, because a call to the run() host helper needs stdin free to
// read back the host's response to its request (written to stderr) for
// re-entering the pipeline against another file while the process is still
// running.
func (s Subprocess) Run(ctx context.Context, program string, env *Environment, sinks Sinks) error {
	script, err := buildScript(env, program, true)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "luapp-run-*.lua")
	if err != nil {
		return fmt.Errorf("lua runtime: %s", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(script); err != nil {
		tmp.Close()
		return fmt.Errorf("lua runtime: %s", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("lua runtime: %s", err)
	}

	cmd := exec.CommandContext(ctx, s.bin(), tmp.Name())

	stdinR, stdinW := io.Pipe()
	cmd.Stdin = stdinR

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("lua runtime: %s", err)
	}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("lua runtime: %s", err)
	}

	var stderrText strings.Builder
	done := make(chan struct{})
	go func() {
		defer close(done)
		sc := bufio.NewScanner(stderrPipe)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := sc.Text()
			idx := strings.Index(line, runRequestMarker)
			if idx < 0 {
				stderrText.WriteString(line)
				stderrText.WriteByte('\n')
				continue
			}
			// A printf call with no trailing newline can share this scanned
			// line with a following run() request; keep whatever preceded
			// the marker as ordinary stderr text.
			if idx > 0 {
				stderrText.WriteString(line[:idx])
				stderrText.WriteByte('\n')
			}
			path := line[idx+len(runRequestMarker):]

			out, runErr := s.runFile(ctx, env, path)
			if runErr != nil {
				fmt.Fprintln(stdinW, runErrorMarker+strings.ReplaceAll(runErr.Error(), "\n", " "))
				continue
			}
			lit, litErr := value.Serialize(out, true)
			if litErr != nil {
				fmt.Fprintln(stdinW, runErrorMarker+strings.ReplaceAll(litErr.Error(), "\n", " "))
				continue
			}
			fmt.Fprintln(stdinW, lit)
		}
	}()

	// Drain the stderr reader to completion before Wait, per os/exec's
	// StderrPipe contract, then close the response pipe now that no further
	// run() request can arrive. It must be closed before Wait, which waits
	// for the copy from the pipe into the process's stdin to finish.
	<-done
	stdinW.Close()
	waitErr := cmd.Wait()

	if waitErr != nil {
		msg := strings.TrimSpace(stderrText.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		return fmt.Errorf("lua runtime: %s", msg)
	}

	if sinks.OutputLua != nil {
		sinks.OutputLua(stdout.String())
	}
	return nil
}

// runFile re-enters the pipeline for path on behalf of the run() host
// helper: read, lex, transpile, and execute it in a fresh subprocess that
// starts from a clone of env, the environment the calling Run was given.
// Globals the caller's metaprogram has set since it started are not seen by
// the nested file, and the nested file's changes do not reach the caller.
// It returns the nested metaprogram's generated output.
func (s Subprocess) runFile(ctx context.Context, env *Environment, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("run %s: %s", path, err)
	}

	toks, err := lexer.Lex(path, string(raw))
	if err != nil {
		return "", fmt.Errorf("run %s: %w", path, err)
	}
	program, err := transpile.Transpile(path, toks, transpile.Options{
		CompileCheck: s.CompileCheck,
		Source:       string(raw),
	})
	if err != nil {
		return "", fmt.Errorf("run %s: %w", path, err)
	}

	var out strings.Builder
	nestedSinks := Sinks{
		OutputLua: func(p string) { out.WriteString(p) },
		OutputValue: func(v interface{}) error {
			lit, err := value.Serialize(v, false)
			if err != nil {
				return err
			}
			out.WriteString(lit)
			return nil
		},
	}
	if err := s.Run(ctx, program, env.Clone(), nestedSinks); err != nil {
		return "", fmt.Errorf("run %s: %w", path, err)
	}
	return out.String(), nil
}

// CompileCheck reports whether "return(" + body + ")" compiles as a Lua
// chunk, by asking the interpreter to load() it without running it.
func (s Subprocess) CompileCheck(body string) bool {
	lit, err := value.Serialize(body, false)
	if err != nil {
		return false
	}
	script := fmt.Sprintf(`
local chunk = %s
local f, err = (loadstring or load)("return (" .. chunk .. ")")
os.exit(f ~= nil and 0 or 1)
`, lit)

	cmd := exec.Command(s.bin())
	cmd.Stdin = strings.NewReader(script)
	return cmd.Run() == nil
}

// CompileChunk reports whether source compiles as a standalone Lua chunk,
// by asking the interpreter to load() it without running it. Unlike
// CompileCheck, source is not wrapped in a return expression, since it is
// expected to already be a full program.
func (s Subprocess) CompileChunk(source string) bool {
	lit, err := value.Serialize(source, false)
	if err != nil {
		return false
	}
	script := fmt.Sprintf(`
local chunk = %s
local f, err = (loadstring or load)(chunk)
os.exit(f ~= nil and 0 or 1)
`, lit)

	cmd := exec.Command(s.bin())
	cmd.Stdin = strings.NewReader(script)
	return cmd.Run() == nil
}

// buildScript assembles the prelude, serialized globals, and program into a
// single Lua chunk. When emitFinalWrite is true, a trailing io.write of the
// collected output parts is appended so Run's stdout capture sees the final
// result.
func buildScript(env *Environment, program string, emitFinalWrite bool) (string, error) {
	var sb strings.Builder
	sb.WriteString(preludeSource)
	sb.WriteString("\n")

	if env != nil {
		for name, v := range env.Globals {
			if raw, ok := v.(Raw); ok {
				sb.WriteString(string(raw))
				sb.WriteString("\n")
				continue
			}
			lit, err := value.Serialize(v, false)
			if err != nil {
				return "", fmt.Errorf("global %q: %w", name, err)
			}
			sb.WriteString(name)
			sb.WriteString(" = ")
			sb.WriteString(lit)
			sb.WriteString("\n")
		}
	}

	sb.WriteString(program)
	sb.WriteString("\n")

	if emitFinalWrite {
		sb.WriteString("io.write(_collect())\n")
	}

	return sb.String(), nil
}
