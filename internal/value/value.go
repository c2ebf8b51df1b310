// Package value holds the runtime value model that the serializer turns into
// Lua source text, and the serializer itself.
//
// A Value is represented as a plain Go value: nil, bool, float64, string, or
// *Table. Anything else (functions, channels, etc.) is representable as a Go
// value but not as a Lua literal, and Serialize reports that as an error
// rather than panicking.
package value

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Table is a Lua-style associative container. Keys are normalized
// on Set/Get: Go int/int64 become float64 so that integer-valued array
// indices compare equal to the float64 keys Lua itself would use.
type Table struct {
	entries map[interface{}]interface{}
}

// NewTable returns an empty Table ready for use.
func NewTable() *Table {
	return &Table{entries: map[interface{}]interface{}{}}
}

// Set stores val under key, normalizing numeric key types to float64.
func (t *Table) Set(key, val interface{}) {
	t.entries[normalizeKey(key)] = val
}

// Get retrieves the value stored under key, if any.
func (t *Table) Get(key interface{}) (interface{}, bool) {
	v, ok := t.entries[normalizeKey(key)]
	return v, ok
}

// Len returns the number of entries in the table, array part and keyed part
// combined.
func (t *Table) Len() int {
	return len(t.entries)
}

// Keys returns the table's keys in no particular order.
func (t *Table) Keys() []interface{} {
	keys := make([]interface{}, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	return keys
}

func normalizeKey(key interface{}) interface{} {
	switch k := key.(type) {
	case int:
		return float64(k)
	case int64:
		return float64(k)
	case float64:
		return k
	default:
		return k
	}
}

var reBareIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Serialize renders v as Lua source text that, when evaluated, produces an
// equal value. In debug mode, embedded newlines inside string literals are
// written as the two-character escape "\n" rather than a backslash followed
// by a literal newline.
//
// A nil value serializes as the literal nil. An inline meta block whose
// expression yields nil, such as !(f()) for an f that returns nothing,
// therefore writes nil into the output rather than nothing.
func Serialize(v interface{}, debug bool) (string, error) {
	var sb strings.Builder
	if err := writeValue(&sb, v, debug); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func writeValue(sb *strings.Builder, v interface{}, debug bool) error {
	switch tv := v.(type) {
	case nil:
		sb.WriteString("nil")
		return nil
	case bool:
		if tv {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
		return nil
	case string:
		sb.WriteString(quoteString(tv, debug))
		return nil
	case float64:
		sb.WriteString(FormatNumber(tv))
		return nil
	case int:
		sb.WriteString(FormatNumber(float64(tv)))
		return nil
	case int64:
		sb.WriteString(FormatNumber(float64(tv)))
		return nil
	case *Table:
		return writeTable(sb, tv, debug)
	default:
		return fmt.Errorf("Cannot serialize value of type '%T'.", v)
	}
}

func writeTable(sb *strings.Builder, t *Table, debug bool) error {
	sb.WriteString("{")

	used := map[interface{}]bool{}
	first := true

	// Array part: consecutive integer indices starting at 1.
	for i := 1; ; i++ {
		val, ok := t.entries[float64(i)]
		if !ok {
			break
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		if err := writeValue(sb, val, debug); err != nil {
			return err
		}
		used[float64(i)] = true
	}

	// Remaining entries, sorted by tostring(key) ascending.
	var restKeys []interface{}
	for k := range t.entries {
		if used[k] {
			continue
		}
		restKeys = append(restKeys, k)
	}
	sort.Slice(restKeys, func(i, j int) bool {
		return tostringKey(restKeys[i]) < tostringKey(restKeys[j])
	})

	for _, k := range restKeys {
		if _, isTable := k.(*Table); isTable {
			return fmt.Errorf("Table keys cannot be tables.")
		}

		if !first {
			sb.WriteString(", ")
		}
		first = false

		if s, ok := k.(string); ok && reBareIdent.MatchString(s) {
			sb.WriteString(s)
			sb.WriteString("=")
		} else {
			sb.WriteString("[")
			if err := writeValue(sb, k, debug); err != nil {
				return err
			}
			sb.WriteString("]=")
		}

		if err := writeValue(sb, t.entries[k], debug); err != nil {
			return err
		}
	}

	sb.WriteString("}")
	return nil
}

func tostringKey(k interface{}) string {
	switch v := k.(type) {
	case string:
		return v
	case float64:
		if math.IsInf(v, 1) {
			return "inf"
		}
		if math.IsInf(v, -1) {
			return "-inf"
		}
		return strings.TrimPrefix(FormatNumber(v), " ")
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FormatNumber renders a float64 the way the host's default number-to-string
// conversion would, with the sign-guard conventions the serializer needs:
// a single leading space on negative numbers (so concatenation never yields
// an accidental "--" or merges into an adjacent token), and 0 instead of -0.
func FormatNumber(f float64) string {
	if math.IsNaN(f) {
		return "0/0"
	}
	if math.IsInf(f, 1) {
		return "math.huge"
	}
	if math.IsInf(f, -1) {
		return " -math.huge"
	}
	if f == 0 {
		return "0"
	}

	s := defaultNumberFormat(f)
	if f < 0 {
		return " " + s
	}
	return s
}

// defaultNumberFormat approximates Lua 5.1's "%.14g" default tostring for
// numbers: integral values print without a decimal point.
func defaultNumberFormat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'g', 14, 64)
}

func quoteString(s string, debug bool) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\a':
			sb.WriteString(`\a`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		case '\n':
			if debug {
				sb.WriteString(`\n`)
			} else {
				sb.WriteByte('\\')
				sb.WriteByte('\n')
			}
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '\v':
			sb.WriteString(`\v`)
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		default:
			if c < 0x20 || c == 0x7f {
				sb.WriteString(fmt.Sprintf(`\%03d`, c))
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
