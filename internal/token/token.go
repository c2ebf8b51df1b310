// Package token defines the lexical tokens produced by the lexer and
// consumed by the transpiler.
package token

import "fmt"

// Kind identifies the lexical class of a Token.
type Kind int

const (
	Identifier Kind = iota
	Keyword
	Number
	String
	Comment
	Whitespace
	Punctuation
	PPEntry
	stringlike // internal transient kind, never appears in a finished Token
)

func (k Kind) String() string {
	switch k {
	case Identifier:
		return "identifier"
	case Keyword:
		return "keyword"
	case Number:
		return "number"
	case String:
		return "string"
	case Comment:
		return "comment"
	case Whitespace:
		return "whitespace"
	case Punctuation:
		return "punctuation"
	case PPEntry:
		return "pp_entry"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Reserved is the fixed set of host-language keywords. An identifier-shaped
// lexeme found in this set is emitted as a Keyword token rather than an
// Identifier token.
var Reserved = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "if": true,
	"in": true, "local": true, "nil": true, "not": true, "or": true,
	"repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

// Token is an immutable record of one lexeme. Representation is always the
// exact source substring the token spans; Value is its decoded semantic
// content, which varies in meaning by Kind (see the field doc below).
type Token struct {
	Kind Kind

	// Representation is the exact source substring, including any quotes,
	// brackets, or escape sequences. Concatenating the Representation of
	// every token in an unmodified stream reconstructs the original input.
	Representation string

	// Value is the decoded semantic value of the token: identifier text for
	// Identifier/Keyword, the numeric value for Number, the decoded contents
	// (escapes interpreted) for String, the comment body for Comment, the
	// literal characters for Whitespace/Punctuation, and the sigil text
	// ("!" or "!!") for PPEntry.
	Value interface{}

	// Line is the 1-based line on which the token starts.
	Line int

	// Position is the 1-based byte offset at which the token starts.
	Position int

	// Long is set on String and Comment tokens delimited by the long-bracket
	// form [=*[ ... ]=*] with a matching equal-sign run.
	Long bool

	// Double is set on PPEntry tokens whose sigil is "!!" rather than "!".
	Double bool
}

// Text returns Value coerced to a string, which is meaningful for every Kind
// except Number (where it returns the formatted numeric value).
func (t Token) Text() string {
	switch v := t.Value.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// HasNewline reports whether the token's representation contains a newline.
// It is used by the transpiler to detect end-of-meta-line on Whitespace
// tokens without re-deriving it from Kind alone.
func (t Token) HasNewline() bool {
	for _, c := range t.Representation {
		if c == '\n' {
			return true
		}
	}
	return false
}
