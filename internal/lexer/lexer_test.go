package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pellmont/luapp/internal/token"
)

func Test_Lex_kindSequence(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expect    []token.Kind
		expectErr bool
	}{
		{
			name:   "empty",
			input:  "",
			expect: []token.Kind{},
		},
		{
			name:   "identifier",
			input:  "foo",
			expect: []token.Kind{token.Identifier},
		},
		{
			name:   "keyword",
			input:  "function",
			expect: []token.Kind{token.Keyword},
		},
		{
			name:   "keyword-like prefix is still one identifier",
			input:  "functions",
			expect: []token.Kind{token.Identifier},
		},
		{
			name:   "integer",
			input:  "123",
			expect: []token.Kind{token.Number},
		},
		{
			name:   "float",
			input:  "1.5",
			expect: []token.Kind{token.Number},
		},
		{
			name:   "float exponent",
			input:  "1.5e-10",
			expect: []token.Kind{token.Number},
		},
		{
			name:   "int exponent",
			input:  "5e3",
			expect: []token.Kind{token.Number},
		},
		{
			name:   "hex",
			input:  "0xFF",
			expect: []token.Kind{token.Number},
		},
		{
			name:   "hex float exponent splits into two tokens",
			input:  "0xFFp2",
			expect: []token.Kind{token.Number, token.Identifier},
		},
		{
			name:   "leading dot before a digit is punctuation then number",
			input:  ".5",
			expect: []token.Kind{token.Punctuation, token.Number},
		},
		{
			name:   "short string double quote",
			input:  `"hi"`,
			expect: []token.Kind{token.String},
		},
		{
			name:   "short string single quote",
			input:  `'hi'`,
			expect: []token.Kind{token.String},
		},
		{
			name:      "unterminated short string",
			input:     `"hi`,
			expectErr: true,
		},
		{
			name:   "line comment",
			input:  "-- hello\n",
			expect: []token.Kind{token.Comment, token.Whitespace},
		},
		{
			name:   "long string",
			input:  "[[hi]]",
			expect: []token.Kind{token.String},
		},
		{
			name:   "long string with equals",
			input:  "[==[hi]==]",
			expect: []token.Kind{token.String},
		},
		{
			name:   "close bracket with wrong equals count is literal content",
			input:  "[==[ a ]=] b ]==]",
			expect: []token.Kind{token.String},
		},
		{
			name:      "unfinished long string",
			input:     "[[hi",
			expectErr: true,
		},
		{
			name:   "punctuation triple dot",
			input:  "...",
			expect: []token.Kind{token.Punctuation},
		},
		{
			name:   "pp entry single",
			input:  "!",
			expect: []token.Kind{token.PPEntry},
		},
		{
			name:   "pp entry double",
			input:  "!!",
			expect: []token.Kind{token.PPEntry},
		},
		{
			name:      "unknown character",
			input:     "`",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			toks, err := Lex("test.lua", tc.input)
			if tc.expectErr {
				assert.Error(err)
				return
			}
			if !assert.NoError(err) {
				return
			}

			kinds := make([]token.Kind, len(toks))
			for i := range toks {
				kinds[i] = toks[i].Kind
			}
			assert.Equal(tc.expect, kinds)
		})
	}
}

func Test_Lex_representationReconstructsSource(t *testing.T) {
	assert := assert.New(t)

	input := "local x = 1 -- a comment\nprint(\"hi\\n\")\n!!( \"a\"..1 )\n"
	toks, err := Lex("test.lua", input)
	assert.NoError(err)

	var rebuilt string
	for _, tok := range toks {
		rebuilt += tok.Representation
	}
	assert.Equal(input, rebuilt)
}

func Test_Lex_lineIsMonotonic(t *testing.T) {
	assert := assert.New(t)

	input := "a\nb\nc\n"
	toks, err := Lex("test.lua", input)
	assert.NoError(err)

	last := 0
	for _, tok := range toks {
		assert.GreaterOrEqual(tok.Line, last)
		last = tok.Line
	}
}

func Test_Lex_ppEntryDoubleFlag(t *testing.T) {
	assert := assert.New(t)

	toks, err := Lex("test.lua", "! !!")
	assert.NoError(err)

	assert.False(toks[0].Double)
	assert.True(toks[2].Double)
}

func Test_Lex_stringDecodesEscapes(t *testing.T) {
	assert := assert.New(t)

	toks, err := Lex("test.lua", `"a\nb"`)
	assert.NoError(err)
	assert.Equal("a\nb", toks[0].Value)
}

func Test_Lex_longStringSkipsMismatchedCloseCandidates(t *testing.T) {
	assert := assert.New(t)

	toks, err := Lex("test.lua", "[==[ a ]=] b ]==]")
	assert.NoError(err)
	assert.Len(toks, 1)
	assert.True(toks[0].Long)
	assert.Equal(" a ]=] b ", toks[0].Value)
}

func Test_Lex_numberValue(t *testing.T) {
	assert := assert.New(t)

	toks, err := Lex("test.lua", "0xFF")
	assert.NoError(err)
	assert.Equal(float64(255), toks[0].Value)
}
