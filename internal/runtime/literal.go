package runtime

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// EvalLiteral parses src as a single Lua expression — the literal forms the
// serializer emits: nil, booleans, numbers, strings, and table constructors
// — and evaluates it with no globals in scope, returning the equivalent Go
// value. It is how this package reads back values that crossed into a real
// Lua process and were serialized for the trip home (handler return values,
// echoed mutated arguments).
func EvalLiteral(src string) (interface{}, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	// math.huge has no member-access support in the mini grammar; it is
	// common enough in serialized output (infinities) to special-case here
	// rather than widen the expression grammar for one identifier.
	switch src {
	case "math.huge":
		return math.Inf(1), nil
	case "-math.huge":
		return math.Inf(-1), nil
	}
	block, err := miniParse("return (" + src + ")")
	if err != nil {
		return nil, err
	}
	if len(block) != 1 {
		return nil, fmt.Errorf("literal %q is not a single expression", src)
	}
	ret, ok := block[0].(*miniReturnStmt)
	if !ok || ret.expr == nil {
		return nil, fmt.Errorf("literal %q is not a single expression", src)
	}
	it := &miniInterp{globals: map[string]interface{}{}}
	return it.eval(context.Background(), ret.expr)
}
