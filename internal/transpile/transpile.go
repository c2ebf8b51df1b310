// Package transpile walks a token stream and emits a Lua metaprogram: a
// script which, when executed with the outputLua and outputValue sink
// functions in scope, produces the final preprocessed output.
package transpile

import (
	"strings"

	"github.com/pellmont/luapp/internal/diag"
	"github.com/pellmont/luapp/internal/token"
	"github.com/pellmont/luapp/internal/value"
)

// Options controls optional transpiler behavior.
type Options struct {
	// AddLineNumbers interleaves "--[[@N]]" annotations into verbatim chunks
	// whenever the source line changes, so runtime errors in the
	// metaprogram can be translated back to an original source line.
	AddLineNumbers bool

	// Debug escapes embedded newlines in verbatim string literals as the
	// two-character "\n" sequence instead of a literal backslash-newline,
	// for readability of the retained *.meta file.
	Debug bool

	// CompileCheck, if set, reports whether "return(" + body + ")" would
	// compile as a valid Lua expression, using a real host runtime. If nil,
	// a conservative syntactic heuristic is used instead (see
	// compilesAsExpression).
	CompileCheck func(body string) bool

	// Source is the original input text, used only to build the
	// excerpt-and-caret block on a fatal diagnostic. Diagnostics still
	// report line/path accurately without it; only the excerpt and column
	// are degraded.
	Source string
}

// Transpile consumes path (used only for diagnostics) and a token stream and
// returns the metaprogram source, or a fatal diagnostic.
func Transpile(path string, tokens []token.Token, opts Options) (string, error) {
	t := &transpiler{path: path, opts: opts, startOfLine: true}
	return t.run(tokens)
}

type transpiler struct {
	path string
	opts Options

	parts   []string
	pending []token.Token

	inMeta         bool
	startOfLine    bool
	lastEmittedLine int
}

func (t *transpiler) run(tokens []token.Token) (string, error) {
	i := 0
	for i < len(tokens) {
		tok := tokens[i]

		if t.inMeta {
			consumed, err := t.stepInMeta(tok)
			if err != nil {
				return "", err
			}
			i += consumed
			continue
		}

		switch {
		case tok.Kind == token.PPEntry && !tok.Double && t.startOfLine && !followedByOpenParen(tokens, i):
			t.flushPending()
			t.inMeta = true
			i++

		case tok.Kind == token.PPEntry && followedByOpenParen(tokens, i):
			consumed, err := t.emitMetaBlock(tokens, i)
			if err != nil {
				return "", err
			}
			i += consumed

		case tok.Kind == token.PPEntry:
			return "", t.fatal(tok, "Unexpected preprocessor token.")

		case tok.Kind == token.Whitespace || tok.Kind == token.Comment:
			t.pending = append(t.pending, tok)
			if tok.HasNewline() || tok.Kind == token.Comment {
				t.startOfLine = true
			}
			i++

		default:
			t.pending = append(t.pending, tok)
			t.startOfLine = false
			i++
		}
	}

	t.flushPending()
	return strings.Join(t.parts, ""), nil
}

// followedByOpenParen reports whether the token immediately after the
// PPEntry at index i is a "(" punctuation token, i.e. whether this sigil
// introduces a meta block rather than a meta line.
func followedByOpenParen(tokens []token.Token, i int) bool {
	if i+1 >= len(tokens) {
		return false
	}
	next := tokens[i+1]
	return next.Kind == token.Punctuation && next.Representation == "("
}

// stepInMeta advances past exactly one token while inside a single-line meta
// statement, returning how many tokens were consumed.
func (t *transpiler) stepInMeta(tok token.Token) (int, error) {
	isLineEnd := (tok.Kind == token.Whitespace && tok.HasNewline()) || (tok.Kind == token.Comment && !tok.Long)

	if isLineEnd {
		if tok.Kind == token.Comment {
			t.parts = append(t.parts, tok.Representation)
		} else {
			t.parts = append(t.parts, "\n")
			// Whatever follows the first newline (blank lines, the next
			// line's indentation) is ordinary text, not metacode.
			if nl := strings.IndexByte(tok.Representation, '\n'); nl+1 < len(tok.Representation) {
				rest := tok.Representation[nl+1:]
				t.pending = append(t.pending, token.Token{Kind: token.Whitespace, Representation: rest, Value: rest, Line: tok.Line + 1, Position: tok.Position + nl + 1})
			}
		}
		t.inMeta = false
		t.startOfLine = true
		return 1, nil
	}

	if tok.Kind == token.PPEntry {
		return 0, t.fatal(tok, "Preprocessor token inside metaprogram.")
	}

	t.parts = append(t.parts, tok.Representation)
	return 1, nil
}

// emitMetaBlock handles a "!(" or "!!(" meta block starting at tokens[i].
// It scans forward for the balanced close paren, classifies the block, and
// returns the number of tokens consumed (including both parens).
func (t *transpiler) emitMetaBlock(tokens []token.Token, i int) (int, error) {
	entry := tokens[i]
	t.flushPending()

	// tokens[i] is the PPEntry, tokens[i+1] is "(".
	depth := 1
	j := i + 2
	var interior []token.Token
	for j < len(tokens) {
		tok := tokens[j]
		if tok.Kind == token.PPEntry {
			return 0, t.fatal(tok, "Preprocessor token inside metaprogram.")
		}
		if tok.Kind == token.Punctuation && tok.Representation == "(" {
			depth++
		} else if tok.Kind == token.Punctuation && tok.Representation == ")" {
			depth--
			if depth == 0 {
				break
			}
		}
		interior = append(interior, tok)
		j++
	}
	if depth != 0 {
		return 0, t.fatal(entry, "Missing end of meta block.")
	}

	body := joinRepresentations(interior)
	isExpr := t.compilesAsExpression(body)

	if entry.Double {
		if !isExpr {
			return 0, t.fatalAgent(entry, diag.Parser, "Meta block variant does not contain a valid expression; !!( ) requires one.")
		}
		t.parts = append(t.parts, "outputLua("+body+")\n")
	} else if isExpr {
		t.parts = append(t.parts, "outputValue("+body+")\n")
	} else {
		t.parts = append(t.parts, body+"\n")
	}

	t.startOfLine = false
	return (j + 1) - i, nil
}

// compilesAsExpression reports whether "return(" + body + ")" would compile
// as a Lua expression, preferring the real host runtime check supplied via
// Options.CompileCheck. Without one, it falls back to a syntactic
// approximation: parenthesis/bracket/brace nesting must balance and the body
// must not start with a statement-only keyword. An empty block is treated as
// a statement, not a value.
func (t *transpiler) compilesAsExpression(body string) bool {
	if t.opts.CompileCheck != nil {
		return t.opts.CompileCheck(body)
	}
	return compilesAsExpressionHeuristic(body)
}

func compilesAsExpressionHeuristic(body string) bool {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return false
	}
	if !bracketsBalanced(trimmed) {
		return false
	}
	for _, kw := range statementOnlyLeaders {
		if trimmed == kw || strings.HasPrefix(trimmed, kw+" ") || strings.HasPrefix(trimmed, kw+"\t") || strings.HasPrefix(trimmed, kw+"\n") {
			return false
		}
	}
	return true
}

var statementOnlyLeaders = []string{
	"local", "if", "for", "while", "repeat", "do", "function", "return", "break",
}

func bracketsBalanced(s string) bool {
	depth := 0
	inString := byte(0)
	escaping := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString != 0 {
			if escaping {
				escaping = false
			} else if c == '\\' {
				escaping = true
			} else if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0 && inString == 0
}

func joinRepresentations(tokens []token.Token) string {
	var sb strings.Builder
	for _, tok := range tokens {
		sb.WriteString(tok.Representation)
	}
	return sb.String()
}

// flushPending emits the pending token run as a single verbatim chunk via
// emitVerbatim, then clears it.
func (t *transpiler) flushPending() {
	if len(t.pending) == 0 {
		return
	}
	t.emitVerbatim(t.pending)
	t.pending = nil
}

// emitVerbatim concatenates the representations of tokens into one literal
// chunk and appends a single "outputLua(...)" fragment to parts. When
// AddLineNumbers is set, it interleaves "--[[@N]]" annotations whenever a
// non-whitespace, non-comment token's line differs from lastEmittedLine.
func (t *transpiler) emitVerbatim(tokens []token.Token) {
	if !t.opts.AddLineNumbers {
		lua := joinRepresentations(tokens)
		t.parts = append(t.parts, "outputLua("+quoteLiteral(lua, t.opts.Debug)+")\n")
		return
	}

	var sb strings.Builder
	for _, tok := range tokens {
		if tok.Kind != token.Whitespace && tok.Kind != token.Comment && tok.Line != t.lastEmittedLine {
			sb.WriteString("--[[@")
			sb.WriteString(itoa(tok.Line))
			sb.WriteString("]]")
			t.lastEmittedLine = tok.Line
		}
		sb.WriteString(tok.Representation)
	}
	t.parts = append(t.parts, "outputLua("+quoteLiteral(sb.String(), t.opts.Debug)+")\n")
}

func quoteLiteral(s string, debug bool) string {
	// Strings always serialize successfully; the error return is unreachable
	// for the string case.
	lit, _ := value.Serialize(s, debug)
	return lit
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (t *transpiler) fatal(tok token.Token, msg string) error {
	return t.fatalAgent(tok, diag.Transpiler, msg)
}

// fatalAgent builds a fatal diagnostic attributed to agent rather than
// diag.Transpiler. The semantic "not a valid expression" failure inside
// !!( ) is attributed to the host language's own parser rejecting the
// body, not to a transpiler structural error.
func (t *transpiler) fatalAgent(tok token.Token, agent diag.Agent, msg string) error {
	if t.opts.Source == "" {
		return diag.At(agent, t.path, tok.Line, 1, "", msg)
	}
	p := tok.Position - 1 // Position is 1-based
	return diag.At(agent, t.path, tok.Line, colOf(t.opts.Source, p), currentLine(t.opts.Source, p), msg)
}

// colOf and currentLine mirror the lexer's own helpers of the same name,
// computing a 1-based column and the full text of the line containing byte
// offset p.
func colOf(src string, p int) int {
	col := 1
	for i := p - 1; i >= 0 && i < len(src) && src[i] != '\n'; i-- {
		col++
	}
	return col
}

func currentLine(src string, p int) string {
	if p > len(src) {
		p = len(src)
	}
	start := p
	for start > 0 && src[start-1] != '\n' {
		start--
	}
	end := p
	for end < len(src) && src[end] != '\n' {
		end++
	}
	if end > start && src[end-1] == '\r' {
		end--
	}
	return src[start:end]
}
