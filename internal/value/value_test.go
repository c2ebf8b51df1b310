package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Serialize_scalars(t *testing.T) {
	testCases := []struct {
		name   string
		input  interface{}
		expect string
	}{
		{name: "nil", input: nil, expect: "nil"},
		{name: "true", input: true, expect: "true"},
		{name: "false", input: false, expect: "false"},
		{name: "zero", input: 0.0, expect: "0"},
		{name: "negative zero", input: math.Copysign(0, -1), expect: "0"},
		{name: "positive int", input: 3.0, expect: "3"},
		{name: "negative int", input: -3.0, expect: " -3"},
		{name: "positive float", input: 1.5, expect: "1.5"},
		{name: "negative float", input: -1.5, expect: " -1.5"},
		{name: "inf", input: math.Inf(1), expect: "math.huge"},
		{name: "neg inf", input: math.Inf(-1), expect: " -math.huge"},
		{name: "nan", input: math.NaN(), expect: "0/0"},
		{name: "plain string", input: "hello", expect: `"hello"`},
		{name: "string with quote", input: `a"b`, expect: `"a\"b"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			got, err := Serialize(tc.input, false)
			assert.NoError(err)
			assert.Equal(tc.expect, got)
		})
	}
}

func Test_Serialize_stringNewline(t *testing.T) {
	assert := assert.New(t)

	normal, err := Serialize("a\nb", false)
	assert.NoError(err)
	assert.Equal("\"a\\\nb\"", normal)

	debug, err := Serialize("a\nb", true)
	assert.NoError(err)
	assert.Equal(`"a\nb"`, debug)
}

func Test_Serialize_arrayTable(t *testing.T) {
	assert := assert.New(t)

	tbl := NewTable()
	tbl.Set(1, 1.0)
	tbl.Set(2, 2.0)
	tbl.Set(3, 3.0)

	got, err := Serialize(tbl, false)
	assert.NoError(err)
	assert.Equal("{1, 2, 3}", got)
}

func Test_Serialize_mixedTableSortedByKeyName(t *testing.T) {
	assert := assert.New(t)

	tbl := NewTable()
	tbl.Set(1, "first")
	tbl.Set("zeta", 1.0)
	tbl.Set("alpha", 2.0)
	tbl.Set("not an ident", 3.0)

	got, err := Serialize(tbl, false)
	assert.NoError(err)
	assert.Equal(`{"first", alpha=2, ["not an ident"]=3, zeta=1}`, got)
}

func Test_Serialize_nestedTable(t *testing.T) {
	assert := assert.New(t)

	inner := NewTable()
	inner.Set(1, "x")

	outer := NewTable()
	outer.Set("items", inner)

	got, err := Serialize(outer, false)
	assert.NoError(err)
	assert.Equal(`{items={"x"}}`, got)
}

func Test_Serialize_tableAsKeyIsError(t *testing.T) {
	assert := assert.New(t)

	inner := NewTable()
	outer := NewTable()
	outer.Set(inner, "x")

	_, err := Serialize(outer, false)
	assert.Error(err)
	assert.Contains(err.Error(), "Table keys cannot be tables")
}

func Test_Serialize_unsupportedTypeIsError(t *testing.T) {
	assert := assert.New(t)

	_, err := Serialize(func() {}, false)
	assert.Error(err)
	assert.Contains(err.Error(), "Cannot serialize value of type")
}
