package runtime

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/pellmont/luapp/internal/lexer"
	"github.com/pellmont/luapp/internal/transpile"
	"github.com/pellmont/luapp/internal/value"
)

// miniControl signals non-local exit from a block: a return statement
// unwinding through enclosing for/while/if bodies.
type miniControl struct {
	returned bool
	value    interface{}
}

type miniInterp struct {
	globals map[string]interface{}
	sinks   Sinks
}

func (it *miniInterp) execBlock(ctx context.Context, block miniBlock) (*miniControl, error) {
	for _, stmt := range block {
		ctrl, err := it.execStmt(ctx, stmt)
		if err != nil {
			return nil, err
		}
		if ctrl != nil {
			return ctrl, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (it *miniInterp) execStmt(ctx context.Context, stmt miniStmt) (*miniControl, error) {
	switch s := stmt.(type) {
	case *miniLocalStmt:
		vals := make([]interface{}, len(s.names))
		for i, e := range s.exprs {
			v, err := it.eval(ctx, e)
			if err != nil {
				return nil, err
			}
			if i < len(vals) {
				vals[i] = v
			}
		}
		for i, name := range s.names {
			it.globals[name] = vals[i]
		}
		return nil, nil

	case *miniAssignStmt:
		v, err := it.eval(ctx, s.expr)
		if err != nil {
			return nil, err
		}
		it.globals[s.name] = v
		return nil, nil

	case *miniCallStmt:
		_, err := it.evalCall(ctx, s.call)
		return nil, err

	case *miniForNumStmt:
		start, err := it.evalNumber(ctx, s.start)
		if err != nil {
			return nil, err
		}
		stop, err := it.evalNumber(ctx, s.stop)
		if err != nil {
			return nil, err
		}
		step := 1.0
		if s.st != nil {
			step, err = it.evalNumber(ctx, s.st)
			if err != nil {
				return nil, err
			}
		}
		if step == 0 {
			return nil, fmt.Errorf("'for' step is zero")
		}
		for i := start; (step > 0 && i <= stop) || (step < 0 && i >= stop); i += step {
			it.globals[s.name] = i
			ctrl, err := it.execBlock(ctx, s.body)
			if err != nil {
				return nil, err
			}
			if ctrl != nil {
				return ctrl, nil
			}
		}
		return nil, nil

	case *miniWhileStmt:
		for {
			cond, err := it.eval(ctx, s.cond)
			if err != nil {
				return nil, err
			}
			if !truthy(cond) {
				break
			}
			ctrl, err := it.execBlock(ctx, s.body)
			if err != nil {
				return nil, err
			}
			if ctrl != nil {
				return ctrl, nil
			}
		}
		return nil, nil

	case *miniIfStmt:
		for i, cond := range s.conds {
			v, err := it.eval(ctx, cond)
			if err != nil {
				return nil, err
			}
			if truthy(v) {
				return it.execBlock(ctx, s.blocks[i])
			}
		}
		if s.els != nil {
			return it.execBlock(ctx, s.els)
		}
		return nil, nil

	case *miniReturnStmt:
		var v interface{}
		if s.expr != nil {
			var err error
			v, err = it.eval(ctx, s.expr)
			if err != nil {
				return nil, err
			}
		}
		return &miniControl{returned: true, value: v}, nil

	default:
		return nil, fmt.Errorf("unsupported statement %T", stmt)
	}
}

func (it *miniInterp) eval(ctx context.Context, expr miniExpr) (interface{}, error) {
	switch e := expr.(type) {
	case *miniLiteral:
		return e.val, nil

	case *miniName:
		v, ok := it.globals[e.name]
		if !ok {
			return nil, nil
		}
		return v, nil

	case *miniUnary:
		v, err := it.eval(ctx, e.expr)
		if err != nil {
			return nil, err
		}
		switch e.op {
		case "-":
			f, err := toNumber(v)
			if err != nil {
				return nil, err
			}
			return -f, nil
		case "not":
			return !truthy(v), nil
		case "#":
			if t, ok := v.(*value.Table); ok {
				return float64(t.Len()), nil
			}
			if s, ok := v.(string); ok {
				return float64(len(s)), nil
			}
			return nil, fmt.Errorf("attempt to get length of a non-table, non-string value")
		}
		return nil, fmt.Errorf("unsupported unary operator %q", e.op)

	case *miniBinary:
		return it.evalBinary(ctx, e)

	case *miniCallExpr:
		return it.evalCall(ctx, e)

	case *miniTableExpr:
		return it.evalTable(ctx, e)

	default:
		return nil, fmt.Errorf("unsupported expression %T", expr)
	}
}

func (it *miniInterp) evalNumber(ctx context.Context, expr miniExpr) (float64, error) {
	v, err := it.eval(ctx, expr)
	if err != nil {
		return 0, err
	}
	return toNumber(v)
}

func (it *miniInterp) evalBinary(ctx context.Context, e *miniBinary) (interface{}, error) {
	// Short-circuiting operators evaluate the right side lazily.
	if e.op == "and" {
		l, err := it.eval(ctx, e.left)
		if err != nil {
			return nil, err
		}
		if !truthy(l) {
			return l, nil
		}
		return it.eval(ctx, e.right)
	}
	if e.op == "or" {
		l, err := it.eval(ctx, e.left)
		if err != nil {
			return nil, err
		}
		if truthy(l) {
			return l, nil
		}
		return it.eval(ctx, e.right)
	}

	l, err := it.eval(ctx, e.left)
	if err != nil {
		return nil, err
	}
	r, err := it.eval(ctx, e.right)
	if err != nil {
		return nil, err
	}

	switch e.op {
	case "..":
		return concatOperand(l) + concatOperand(r), nil
	case "==":
		return luaEquals(l, r), nil
	case "~=":
		return !luaEquals(l, r), nil
	}

	switch e.op {
	case "+", "-", "*", "/", "%":
		lf, err := toNumber(l)
		if err != nil {
			return nil, err
		}
		rf, err := toNumber(r)
		if err != nil {
			return nil, err
		}
		switch e.op {
		case "+":
			return lf + rf, nil
		case "-":
			return lf - rf, nil
		case "*":
			return lf * rf, nil
		case "/":
			return lf / rf, nil
		case "%":
			return math.Mod(lf, rf), nil
		}
	case "<", ">", "<=", ">=":
		return compareOp(e.op, l, r)
	}

	return nil, fmt.Errorf("unsupported binary operator %q", e.op)
}

// concatOperand coerces a value to its ".." operand form: strings pass
// through, numbers format per value.FormatNumber's rules (minus its leading
// space for negatives, which concatenation does not use).
func concatOperand(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strings.TrimPrefix(value.FormatNumber(t), " ")
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func compareOp(op string, l, r interface{}) (interface{}, error) {
	lf, lok := l.(float64)
	rf, rok := r.(float64)
	if lok && rok {
		switch op {
		case "<":
			return lf < rf, nil
		case ">":
			return lf > rf, nil
		case "<=":
			return lf <= rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	ls, lsok := l.(string)
	rs, rsok := r.(string)
	if lsok && rsok {
		switch op {
		case "<":
			return ls < rs, nil
		case ">":
			return ls > rs, nil
		case "<=":
			return ls <= rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	return nil, fmt.Errorf("attempt to compare incompatible values")
}

func luaEquals(l, r interface{}) bool {
	lf, lok := l.(float64)
	rf, rok := r.(float64)
	if lok && rok {
		return lf == rf
	}
	return l == r
}

func truthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

func toNumber(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case nil:
		return 0, fmt.Errorf("attempt to perform arithmetic on a nil value")
	default:
		return 0, fmt.Errorf("attempt to perform arithmetic on a non-numeric value")
	}
}

func (it *miniInterp) evalTable(ctx context.Context, e *miniTableExpr) (interface{}, error) {
	t := value.NewTable()
	nextIndex := 1
	for i, keyExpr := range e.keys {
		val, err := it.eval(ctx, e.values[i])
		if err != nil {
			return nil, err
		}
		if keyExpr == nil {
			t.Set(nextIndex, val)
			nextIndex++
			continue
		}
		key, err := it.eval(ctx, keyExpr)
		if err != nil {
			return nil, err
		}
		t.Set(key, val)
	}
	return t, nil
}

func (it *miniInterp) evalCall(ctx context.Context, call *miniCallExpr) (interface{}, error) {
	name, ok := call.callee.(*miniName)
	if !ok {
		return nil, fmt.Errorf("attempt to call a non-function value")
	}

	args := make([]interface{}, len(call.args))
	for i, a := range call.args {
		v, err := it.eval(ctx, a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch name.name {
	case "outputLua":
		s, err := requireString(args, "outputLua")
		if err != nil {
			return nil, err
		}
		if it.sinks.OutputLua != nil {
			it.sinks.OutputLua(s)
		}
		return nil, nil

	case "outputValue":
		if len(args) != 1 {
			return nil, fmt.Errorf("outputValue expects exactly one argument")
		}
		if it.sinks.OutputValue != nil {
			if err := it.sinks.OutputValue(args[0]); err != nil {
				return nil, err
			}
		}
		return nil, nil

	case "printf":
		if len(args) == 0 {
			return nil, fmt.Errorf("printf expects a format argument")
		}
		format, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("printf format must be a string")
		}
		if it.sinks.Printf != nil {
			it.sinks.Printf(format, args[1:]...)
		}
		return nil, nil

	case "fileExists":
		path, err := requireString(args, "fileExists")
		if err != nil {
			return nil, err
		}
		if it.sinks.FileExists == nil {
			return false, nil
		}
		return it.sinks.FileExists(path), nil

	case "getFileContents":
		path, err := requireString(args, "getFileContents")
		if err != nil {
			return nil, err
		}
		if it.sinks.GetFileContents == nil {
			return nil, nil
		}
		contents, ok := it.sinks.GetFileContents(path)
		if !ok {
			return nil, nil
		}
		return contents, nil

	case "run":
		path, err := requireString(args, "run")
		if err != nil {
			return nil, err
		}
		return it.runFile(ctx, path)

	default:
		return nil, fmt.Errorf("call to unknown function %q", name.name)
	}
}

// runFile re-enters the pipeline for path: read, lex, transpile, and execute
// it against it.globals directly, so mutations the nested metaprogram makes
// are visible to the caller immediately, the way dofile would behave. It
// returns the nested metaprogram's generated output as a string, leaving the
// caller to outputLua it if the intent was inclusion.
func (it *miniInterp) runFile(ctx context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("run %s: %s", path, err)
	}

	toks, err := lexer.Lex(path, string(raw))
	if err != nil {
		return "", fmt.Errorf("run %s: %w", path, err)
	}
	program, err := transpile.Transpile(path, toks, transpile.Options{
		CompileCheck: Mini{}.CompileCheck,
		Source:       string(raw),
	})
	if err != nil {
		return "", fmt.Errorf("run %s: %w", path, err)
	}
	block, err := miniParse(program)
	if err != nil {
		return "", fmt.Errorf("run %s: %w", path, err)
	}

	var out strings.Builder
	nestedSinks := Sinks{
		OutputLua: func(s string) { out.WriteString(s) },
		OutputValue: func(v interface{}) error {
			lit, err := value.Serialize(v, false)
			if err != nil {
				return err
			}
			out.WriteString(lit)
			return nil
		},
		Printf:          it.sinks.Printf,
		FileExists:      it.sinks.FileExists,
		GetFileContents: it.sinks.GetFileContents,
	}

	nested := &miniInterp{globals: it.globals, sinks: nestedSinks}
	if _, err := nested.execBlock(ctx, block); err != nil {
		return "", fmt.Errorf("run %s: %w", path, err)
	}
	return out.String(), nil
}

func requireString(args []interface{}, fn string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s expects exactly one argument", fn)
	}
	s, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("%s expects a string argument", fn)
	}
	return s, nil
}
