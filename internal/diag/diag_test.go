package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_New_hasNoLocation(t *testing.T) {
	d := New(CLI, "in.lua", "no paths supplied")
	assert.Equal(t, "Error @ in.lua: [CLI] no paths supplied", d.Error())
}

func Test_At_withoutSourceLineOmitsExcerpt(t *testing.T) {
	d := At(Lexer, "in.lua", 3, 0, "", "unterminated string")
	assert.Equal(t, "Error @ in.lua:3: [Lexer] unterminated string", d.Error())
}

func Test_At_withSourceLineIncludesCaret(t *testing.T) {
	d := At(Parser, "in.lua", 1, 11, "local x = !!(1+)", "Meta block variant does not contain a valid expression.")
	got := d.Error()
	assert.Contains(t, got, "local x = !!(1+)")
	assert.Contains(t, got, "^")
	assert.Contains(t, got, "Error @ in.lua:1:11: [Parser]")
}

func Test_Excerpt_emptyWithoutSourceLine(t *testing.T) {
	d := At(Driver, "in.lua", 1, 0, "", "boom")
	assert.Empty(t, d.Excerpt())
}

func Test_Error_wrapsLongMessages(t *testing.T) {
	long := "this is a deliberately long diagnostic message meant to exercise the wrapping behavior applied to every formatted diagnostic so that terminal output stays readable"
	d := New(Driver, "in.lua", long)
	got := d.Error()
	for _, line := range splitLines(got) {
		assert.LessOrEqual(t, len(line), 120)
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}
