// Package lexer splits hybrid Lua/metacode source into a stream of typed
// tokens. Dispatch order is significant and resolves every ambiguity between
// overlapping lexical forms; see next(), whose cases are tried in that
// order.
package lexer

import (
	"regexp"

	"github.com/pellmont/luapp/internal/diag"
	"github.com/pellmont/luapp/internal/token"
)

var (
	reIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`)
	reWhite = regexp.MustCompile(`^[\t\n\f\r ]+`)

	// Number forms, tried in this exact order; first match wins.
	reNumFloatExp = regexp.MustCompile(`^[0-9]+\.[0-9]+e-?[0-9]+`)
	reNumIntExp   = regexp.MustCompile(`^[0-9]+e-?[0-9]+`)
	reNumHex      = regexp.MustCompile(`^0x[0-9A-Fa-f]+`)
	reNumFloat    = regexp.MustCompile(`^[0-9]+\.[0-9]+`)
	reNumInt      = regexp.MustCompile(`^[0-9]+`)
)

// punctuation forms, tried longest-first; single-char forms are tried last in
// the order given in the specification.
var punctForms = []string{
	"...", "..", "==", "~=", "<=", ">=",
}

const punctSingle = "+-*/%^#<>=(){}[];:,."

// Lex turns source text into an ordered token vector. path is used only for
// diagnostics. The caller is responsible for stripping any shebang line
// before calling Lex.
func Lex(path string, src string) ([]token.Token, error) {
	l := &lexState{path: path, src: src, ln: 1}
	return l.run()
}

type lexState struct {
	path string
	src  string
	p    int // byte offset, 0-based
	ln   int // current line, 1-based
}

func (l *lexState) run() ([]token.Token, error) {
	var tokens []token.Token

	for l.p < len(l.src) {
		startLine := l.ln
		startPos := l.p + 1 // 1-based

		tok, err := l.next()
		if err != nil {
			return nil, err
		}

		tok.Line = startLine
		tok.Position = startPos
		tokens = append(tokens, tok)

		for _, c := range tok.Representation {
			if c == '\n' {
				l.ln++
			}
		}
	}

	return tokens, nil
}

// next dispatches on the lookahead at l.p and produces exactly one token,
// advancing l.p past it. Line tracking is handled by the caller.
func (l *lexState) next() (token.Token, error) {
	rest := l.src[l.p:]

	switch {
	case reIdent.MatchString(rest):
		return l.lexIdentifier(rest)
	case l.looksLikeNumberStart(rest):
		return l.lexNumber(rest)
	case len(rest) >= 2 && rest[0] == '-' && rest[1] == '-':
		return l.lexComment(rest)
	case len(rest) >= 1 && (rest[0] == '"' || rest[0] == '\''):
		return l.lexShortString(rest)
	case isLongBracketOpen(rest):
		return l.lexLongString(rest)
	case reWhite.MatchString(rest):
		m := reWhite.FindString(rest)
		l.p += len(m)
		return token.Token{Kind: token.Whitespace, Representation: m, Value: m}, nil
	case matchPunct(rest) != "":
		m := matchPunct(rest)
		l.p += len(m)
		return token.Token{Kind: token.Punctuation, Representation: m, Value: m}, nil
	case rest[0] == '!':
		double := len(rest) >= 2 && rest[1] == '!'
		rep := "!"
		if double {
			rep = "!!"
		}
		l.p += len(rep)
		return token.Token{Kind: token.PPEntry, Representation: rep, Value: rep, Double: double}, nil
	default:
		return token.Token{}, l.fatal("Unknown character.")
	}
}

func (l *lexState) lexIdentifier(rest string) (token.Token, error) {
	m := reIdent.FindString(rest)
	l.p += len(m)
	kind := token.Identifier
	if token.Reserved[m] {
		kind = token.Keyword
	}
	return token.Token{Kind: kind, Representation: m, Value: m}, nil
}

// looksLikeNumberStart reports whether rest could begin a numeric literal.
// None of the five forms in the grammar begin with '.': a bare '.' is
// punctuation, dispatched separately, even when a digit follows it (".5"
// lexes as Punctuation "." then Number "5").
func (l *lexState) looksLikeNumberStart(rest string) bool {
	if len(rest) == 0 {
		return false
	}
	return rest[0] >= '0' && rest[0] <= '9'
}

func (l *lexState) lexNumber(rest string) (token.Token, error) {
	patterns := []*regexp.Regexp{reNumFloatExp, reNumIntExp, reNumHex, reNumFloat, reNumInt}
	for _, re := range patterns {
		if m := re.FindString(rest); m != "" {
			l.p += len(m)
			val, perr := parseLuaNumber(m)
			if perr != nil {
				return token.Token{}, l.fatal("Malformed number.")
			}
			return token.Token{Kind: token.Number, Representation: m, Value: val}, nil
		}
	}
	return token.Token{}, l.fatal("Malformed number.")
}

func (l *lexState) lexComment(rest string) (token.Token, error) {
	bodyStart := l.p + 2
	body, long, newP, ok := l.lexStringlikeBody(bodyStart, true)
	if !ok {
		return token.Token{}, l.fatal("Unfinished long comment.")
	}
	rep := l.src[l.p:newP]
	l.p = newP
	return token.Token{Kind: token.Comment, Representation: rep, Value: body, Long: long}, nil
}

func (l *lexState) lexLongString(rest string) (token.Token, error) {
	body, long, newP, ok := l.lexStringlikeBody(l.p, false)
	if !ok {
		return token.Token{}, l.fatal("Unfinished long string.")
	}
	rep := l.src[l.p:newP]
	l.p = newP
	return token.Token{Kind: token.String, Representation: rep, Value: body, Long: long}, nil
}

// lexStringlikeBody implements the shared "stringlike" subparser used by both
// comments and long strings. start points either at the opening '[' of a
// candidate long bracket (isComment == false, or a comment whose body happens
// to open with one) or just past the introducing "--" (isComment == true).
func (l *lexState) lexStringlikeBody(start int, isComment bool) (value string, long bool, newP int, ok bool) {
	if eq, bodyStart, isLong := tryLongBracketOpen(l.src, start); isLong {
		closeStart, closeEnd, found := findLongBracketClose(l.src, bodyStart, eq)
		if !found {
			return "", true, 0, false
		}
		return l.src[bodyStart:closeStart], true, closeEnd, true
	}

	// Short form: runs to end of line (not including the line terminator) or
	// EOF.
	end := start
	for end < len(l.src) && l.src[end] != '\n' {
		end++
	}
	// Trim a trailing \r so representation never swallows the CR of a \r\n.
	textEnd := end
	if textEnd > start && l.src[textEnd-1] == '\r' {
		textEnd--
	}
	return l.src[start:textEnd], false, textEnd, true
}

func (l *lexState) lexShortString(rest string) (token.Token, error) {
	quote := rest[0]
	i := 1
	for i < len(rest) {
		c := rest[i]
		if c == '\\' {
			if i+1 >= len(rest) {
				return token.Token{}, l.fatal("Unterminated string.")
			}
			i += 2
			continue
		}
		if c == quote {
			i++
			rep := rest[:i]
			decoded, derr := decodeShortString(rep)
			if derr != nil {
				return token.Token{}, l.fatal(derr.Error())
			}
			l.p += i
			return token.Token{Kind: token.String, Representation: rep, Value: decoded}, nil
		}
		if c == '\n' {
			return token.Token{}, l.fatal("Unterminated string.")
		}
		i++
	}
	return token.Token{}, l.fatal("Unterminated string.")
}

func matchPunct(rest string) string {
	for _, f := range punctForms {
		if len(rest) >= len(f) && rest[:len(f)] == f {
			return f
		}
	}
	if len(rest) >= 1 {
		for _, c := range punctSingle {
			if rune(rest[0]) == c {
				return rest[:1]
			}
		}
	}
	return ""
}

func isLongBracketOpen(rest string) bool {
	_, _, ok := tryLongBracketOpenLocal(rest)
	return ok
}

func tryLongBracketOpenLocal(rest string) (eq int, bodyStart int, ok bool) {
	if len(rest) == 0 || rest[0] != '[' {
		return 0, 0, false
	}
	q := 1
	for q < len(rest) && rest[q] == '=' {
		eq++
		q++
	}
	if q < len(rest) && rest[q] == '[' {
		return eq, q + 1, true
	}
	return 0, 0, false
}

// tryLongBracketOpen is the absolute-offset counterpart of
// tryLongBracketOpenLocal, operating directly on the full source string.
func tryLongBracketOpen(src string, start int) (eq int, bodyStart int, ok bool) {
	e, b, ok := tryLongBracketOpenLocal(src[start:])
	if !ok {
		return 0, 0, false
	}
	return e, start + b, true
}

// findLongBracketClose searches for the matching "]=*]" close, with exactly
// eq equal signs, starting at bodyStart. Returns the offset of the close
// bracket's start and the offset just past its end.
func findLongBracketClose(src string, bodyStart, eq int) (closeStart, closeEnd int, found bool) {
	for i := bodyStart; i < len(src); i++ {
		if src[i] != ']' {
			continue
		}
		j := i + 1
		count := 0
		for j < len(src) && src[j] == '=' {
			count++
			j++
		}
		if count == eq && j < len(src) && src[j] == ']' {
			return i, j + 1, true
		}
	}
	return 0, 0, false
}

func (l *lexState) fatal(msg string) error {
	sourceLine := currentLine(l.src, l.p)
	col := colOf(l.src, l.p)
	return diag.At(diag.Lexer, l.path, l.ln, col, sourceLine, msg)
}

// currentLine returns the full text of the line containing byte offset p.
func currentLine(src string, p int) string {
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

func colOf(src string, p int) int {
	col := 1
	for i := p - 1; i >= 0 && src[i] != '\n'; i-- {
		col++
	}
	return col
}
