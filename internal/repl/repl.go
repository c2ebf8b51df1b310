// Package repl implements a line-oriented interactive front end for trying
// out metacode without writing a file. It has no effect on file processing
// semantics; it's a convenience wrapper around the same lex/transpile/
// runtime pipeline driver.Driver uses per-file.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/pellmont/luapp/internal/lexer"
	"github.com/pellmont/luapp/internal/runtime"
	"github.com/pellmont/luapp/internal/transpile"
	"github.com/pellmont/luapp/internal/value"
)

// QuitCommand ends the session when entered alone on a line.
const QuitCommand = ":quit"

// lineReader abstracts over readline's TTY-aware editor and a plain
// bufio.Scanner, mirroring the teacher's InteractiveCommandReader /
// DirectCommandReader split in internal/input.
type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

type readlineReader struct{ rl *readline.Instance }

func (r *readlineReader) ReadLine() (string, error) { return r.rl.Readline() }
func (r *readlineReader) Close() error              { return r.rl.Close() }

type scannerReader struct {
	s *bufio.Scanner
}

func (r *scannerReader) ReadLine() (string, error) {
	if !r.s.Scan() {
		if err := r.s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.s.Text(), nil
}

func (r *scannerReader) Close() error { return nil }

// Session holds the accumulated global state across lines of one REPL run,
// since a later line may reference a global a meta line on a previous line
// set. Globals carry over only with a runtime that writes them back into
// Env: Mini does, Subprocess does not.
type Session struct {
	Runtime runtime.HostRuntime
	Env     *runtime.Environment
	Debug   bool

	Out io.Writer
	In  io.Reader

	// Interactive selects the readline-backed reader (history, editing)
	// instead of a plain line scanner. Callers set this after their own
	// TTY check, mirroring the teacher's NewInteractiveReader/
	// NewDirectReader split.
	Interactive bool
}

// NewSession builds a Session against rt (the Mini runtime collaborator when
// rt is nil) and a fresh environment, ready for Run.
func NewSession(rt runtime.HostRuntime, out io.Writer, in io.Reader) *Session {
	if rt == nil {
		rt = runtime.Mini{}
	}
	return &Session{Runtime: rt, Env: runtime.NewEnvironment(), Out: out, In: in}
}

// Run reads lines until QuitCommand, EOF, or a fatal read error. Each line
// is lexed and transpiled in isolation (so a syntax error on one line
// doesn't corrupt later ones) and executed against the session's
// persistent Environment.
func (s *Session) Run(ctx context.Context) error {
	lr, err := s.openReader()
	if err != nil {
		return err
	}
	defer lr.Close()

	lineNo := 0
	for {
		line, err := lr.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		lineNo++

		trimmed := strings.TrimSpace(line)
		if trimmed == QuitCommand {
			return nil
		}
		if trimmed == "" {
			continue
		}

		if err := s.evalLine(ctx, lineNo, line); err != nil {
			fmt.Fprintf(s.Out, "error: %s\n", err)
		}
	}
}

func (s *Session) openReader() (lineReader, error) {
	if s.Interactive {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:      "luapp> ",
			Stdin:       io.NopCloser(s.In),
			Stdout:      s.Out,
			HistoryFile: "",
		})
		if err != nil {
			return nil, fmt.Errorf("create readline session: %w", err)
		}
		return &readlineReader{rl: rl}, nil
	}
	return &scannerReader{s: bufio.NewScanner(s.In)}, nil
}

func (s *Session) evalLine(ctx context.Context, lineNo int, line string) error {
	name := fmt.Sprintf("<repl:%d>", lineNo)
	toks, err := lexer.Lex(name, line+"\n")
	if err != nil {
		return err
	}

	program, err := transpile.Transpile(name, toks, transpile.Options{
		Debug:        s.Debug,
		CompileCheck: s.Runtime.CompileCheck,
		Source:       line + "\n",
	})
	if err != nil {
		return err
	}

	var out strings.Builder
	sinks := runtime.Sinks{
		OutputLua: func(v string) { out.WriteString(v) },
		OutputValue: func(v interface{}) error {
			lit, err := value.Serialize(v, s.Debug)
			if err != nil {
				return err
			}
			out.WriteString(lit)
			return nil
		},
		Printf: func(format string, args ...interface{}) {
			fmt.Fprintf(s.Out, format, args...)
		},
	}

	if err := s.Runtime.Run(ctx, program, s.Env, sinks); err != nil {
		return err
	}

	fmt.Fprint(s.Out, out.String())
	return nil
}
