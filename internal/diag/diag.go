// Package diag formats and carries the diagnostics produced by the lexer,
// transpiler, and driver. Every diagnostic in the core pipeline is fatal; this
// package only builds and formats them, it never calls os.Exit itself, so the
// packages that produce diagnostics stay unit-testable.
package diag

import (
	"fmt"
	"strings"

	"github.com/dekarrin/rosed"
)

const messageWrapWidth = 96

// Agent names the pipeline stage that raised a Diagnostic. It appears in the
// formatted message, e.g. "Error @ file:3:7: [Lexer] Malformed number."
type Agent string

const (
	Lexer      Agent = "Lexer"
	Transpiler Agent = "Transpiler"
	Parser     Agent = "Parser"
	Serializer Agent = "Serializer"
	Driver     Agent = "Driver"
	CLI        Agent = "CLI"
)

// Diagnostic is a fatal error localized to a file, and optionally to a
// specific line/column within it with a caret-underlined source excerpt.
type Diagnostic struct {
	Path    string
	Agent   Agent
	Message string

	// Line and Col are 1-based. Col of 0 means no column is known, and
	// SourceLine is ignored.
	Line int
	Col  int

	// SourceLine is the full text of the offending line, used to build the
	// two-line excerpt-and-caret block. Empty means no excerpt is shown.
	SourceLine string
}

// New builds a Diagnostic with no source position, suitable for I/O, usage,
// and other errors not localized to a specific line.
func New(agent Agent, path string, format string, a ...interface{}) *Diagnostic {
	return &Diagnostic{Path: path, Agent: agent, Message: fmt.Sprintf(format, a...)}
}

// At builds a Diagnostic localized to line/col, with an excerpt built from
// sourceLine if non-empty.
func At(agent Agent, path string, line, col int, sourceLine string, format string, a ...interface{}) *Diagnostic {
	return &Diagnostic{
		Path:       path,
		Agent:      agent,
		Message:    fmt.Sprintf(format, a...),
		Line:       line,
		Col:        col,
		SourceLine: sourceLine,
	}
}

// Error implements the error interface, producing the full formatted
// "Error @ file:line:col: [Agent] message" block, including the
// caret-underlined excerpt when available.
func (d *Diagnostic) Error() string {
	var sb strings.Builder

	if d.SourceLine != "" && d.Col > 0 {
		sb.WriteString(d.Excerpt())
		sb.WriteString("\n")
	}

	loc := d.Path
	if d.Line > 0 {
		if d.Col > 0 {
			loc = fmt.Sprintf("%s:%d:%d", d.Path, d.Line, d.Col)
		} else {
			loc = fmt.Sprintf("%s:%d", d.Path, d.Line)
		}
	}

	wrapped := rosed.Edit(d.Message).Wrap(messageWrapWidth).String()
	sb.WriteString(fmt.Sprintf("Error @ %s: [%s] %s", loc, d.Agent, wrapped))
	return sb.String()
}

// Excerpt returns the two-line source-and-caret block on its own, without the
// leading "Error @" header. Returns an empty string if no source line is set.
func (d *Diagnostic) Excerpt() string {
	if d.SourceLine == "" || d.Col <= 0 {
		return ""
	}
	cursor := strings.Repeat(" ", d.Col-1) + "^"
	return d.SourceLine + "\n" + cursor
}
