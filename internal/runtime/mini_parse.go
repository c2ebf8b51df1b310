package runtime

import (
	"fmt"
	"strconv"

	"github.com/pellmont/luapp/internal/lexer"
	"github.com/pellmont/luapp/internal/token"
)

// miniParse lexes and parses src (a Lua metaprogram, or an expression body
// wrapped by the caller) into a block of statements.
func miniParse(src string) (miniBlock, error) {
	toks, err := lexer.Lex("<metaprogram>", src)
	if err != nil {
		return nil, err
	}

	var filtered []token.Token
	for _, t := range toks {
		if t.Kind == token.Whitespace || t.Kind == token.Comment {
			continue
		}
		filtered = append(filtered, t)
	}

	p := &miniParser{toks: filtered}
	block, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("unexpected token %q", p.cur().Representation)
	}
	return block, nil
}

type miniParser struct {
	toks []token.Token
	pos  int
}

func (p *miniParser) atEnd() bool { return p.pos >= len(p.toks) }

func (p *miniParser) cur() token.Token {
	if p.atEnd() {
		return token.Token{}
	}
	return p.toks[p.pos]
}

func (p *miniParser) advance() token.Token {
	t := p.cur()
	p.pos++
	return t
}

func (p *miniParser) isKeyword(kw string) bool {
	return !p.atEnd() && p.cur().Kind == token.Keyword && p.cur().Value == kw
}

func (p *miniParser) isPunct(s string) bool {
	return !p.atEnd() && p.cur().Kind == token.Punctuation && p.cur().Representation == s
}

func (p *miniParser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return fmt.Errorf("expected %q, got %q", s, p.cur().Representation)
	}
	p.advance()
	return nil
}

func (p *miniParser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return fmt.Errorf("expected %q", kw)
	}
	p.advance()
	return nil
}

func blockEnd(p *miniParser) bool {
	if p.atEnd() {
		return true
	}
	for _, kw := range []string{"end", "else", "elseif", "until"} {
		if p.isKeyword(kw) {
			return true
		}
	}
	return false
}

func (p *miniParser) parseBlock() (miniBlock, error) {
	var block miniBlock
	for !blockEnd(p) {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			block = append(block, stmt)
		}
	}
	return block, nil
}

func (p *miniParser) parseStmt() (miniStmt, error) {
	switch {
	case p.isPunct(";"):
		p.advance()
		return nil, nil

	case p.isKeyword("local"):
		p.advance()
		var names []string
		for {
			if p.cur().Kind != token.Identifier {
				return nil, fmt.Errorf("expected identifier after local")
			}
			names = append(names, p.advance().Representation)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		var exprs []miniExpr
		if p.isPunct("=") {
			p.advance()
			for {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				exprs = append(exprs, e)
				if p.isPunct(",") {
					p.advance()
					continue
				}
				break
			}
		}
		return &miniLocalStmt{names: names, exprs: exprs}, nil

	case p.isKeyword("for"):
		p.advance()
		if p.cur().Kind != token.Identifier {
			return nil, fmt.Errorf("expected identifier after for")
		}
		name := p.advance().Representation
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		start, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
		stop, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		var step miniExpr
		if p.isPunct(",") {
			p.advance()
			step, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		if err := p.expectKeyword("do"); err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("end"); err != nil {
			return nil, err
		}
		return &miniForNumStmt{name: name, start: start, stop: stop, st: step, body: body}, nil

	case p.isKeyword("while"):
		p.advance()
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("do"); err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("end"); err != nil {
			return nil, err
		}
		return &miniWhileStmt{cond: cond, body: body}, nil

	case p.isKeyword("if"):
		p.advance()
		var conds []miniExpr
		var blocks []miniBlock
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("then"); err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
		blocks = append(blocks, body)
		for p.isKeyword("elseif") {
			p.advance()
			c, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("then"); err != nil {
				return nil, err
			}
			b, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
			blocks = append(blocks, b)
		}
		var els miniBlock
		if p.isKeyword("else") {
			p.advance()
			els, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
		}
		if err := p.expectKeyword("end"); err != nil {
			return nil, err
		}
		return &miniIfStmt{conds: conds, blocks: blocks, els: els}, nil

	case p.isKeyword("return"):
		p.advance()
		if blockEnd(p) || p.isPunct(";") {
			return &miniReturnStmt{}, nil
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &miniReturnStmt{expr: e}, nil

	case p.isKeyword("do"):
		p.advance()
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("end"); err != nil {
			return nil, err
		}
		// A bare do..end block has no dedicated statement type; it is
		// represented as an if statement whose condition is always true.
		return &miniIfStmt{conds: []miniExpr{&miniLiteral{val: true}}, blocks: []miniBlock{body}}, nil

	default:
		// Expression statement: either a call or an assignment target.
		e, err := p.parsePrefixExpr()
		if err != nil {
			return nil, err
		}
		if p.isPunct("=") {
			name, ok := e.(*miniName)
			if !ok {
				return nil, fmt.Errorf("invalid assignment target")
			}
			p.advance()
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return &miniAssignStmt{name: name.name, expr: val}, nil
		}
		call, ok := e.(*miniCallExpr)
		if !ok {
			return nil, fmt.Errorf("unexpected expression statement")
		}
		return &miniCallStmt{call: call}, nil
	}
}

// parsePrefixExpr parses a Name or Name(...)(...)... chain, used both as a
// statement prefix and inside the general expression grammar.
func (p *miniParser) parsePrefixExpr() (miniExpr, error) {
	if p.cur().Kind != token.Identifier {
		return nil, fmt.Errorf("expected identifier, got %q", p.cur().Representation)
	}
	var e miniExpr = &miniName{name: p.advance().Representation}
	for p.isPunct("(") {
		p.advance()
		var args []miniExpr
		if !p.isPunct(")") {
			for {
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.isPunct(",") {
					p.advance()
					continue
				}
				break
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		e = &miniCallExpr{callee: e, args: args}
	}
	return e, nil
}

// Operator precedence, lowest to highest.
var miniPrecedence = [][]string{
	{"or"},
	{"and"},
	{"<", ">", "<=", ">=", "~=", "=="},
	{".."},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *miniParser) parseExpr() (miniExpr, error) {
	return p.parseBinary(0)
}

func (p *miniParser) parseBinary(level int) (miniExpr, error) {
	if level >= len(miniPrecedence) {
		return p.parseUnary()
	}
	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		op := p.matchAnyOp(miniPrecedence[level])
		if op == "" {
			return left, nil
		}
		p.advance()
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		left = &miniBinary{op: op, left: left, right: right}
	}
}

func (p *miniParser) matchAnyOp(ops []string) string {
	if p.atEnd() {
		return ""
	}
	cur := p.cur()
	for _, op := range ops {
		if op == "and" || op == "or" {
			if cur.Kind == token.Keyword && cur.Value == op {
				return op
			}
		} else if cur.Kind == token.Punctuation && cur.Representation == op {
			return op
		}
	}
	return ""
}

func (p *miniParser) parseUnary() (miniExpr, error) {
	if p.isKeyword("not") || p.isPunct("-") || p.isPunct("#") {
		op := p.advance()
		opStr := op.Representation
		if op.Kind == token.Keyword {
			opStr = "not"
		}
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &miniUnary{op: opStr, expr: e}, nil
	}
	return p.parsePostfix()
}

func (p *miniParser) parsePostfix() (miniExpr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.isPunct("(") {
		p.advance()
		var args []miniExpr
		if !p.isPunct(")") {
			for {
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.isPunct(",") {
					p.advance()
					continue
				}
				break
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		e = &miniCallExpr{callee: e, args: args}
	}
	return e, nil
}

func (p *miniParser) parsePrimary() (miniExpr, error) {
	cur := p.cur()
	switch {
	case cur.Kind == token.Number:
		p.advance()
		v, ok := cur.Value.(float64)
		if !ok {
			f, err := strconv.ParseFloat(cur.Representation, 64)
			if err != nil {
				return nil, err
			}
			v = f
		}
		return &miniLiteral{val: v}, nil
	case cur.Kind == token.String:
		p.advance()
		return &miniLiteral{val: cur.Value}, nil
	case cur.Kind == token.Keyword && cur.Value == "true":
		p.advance()
		return &miniLiteral{val: true}, nil
	case cur.Kind == token.Keyword && cur.Value == "false":
		p.advance()
		return &miniLiteral{val: false}, nil
	case cur.Kind == token.Keyword && cur.Value == "nil":
		p.advance()
		return &miniLiteral{val: nil}, nil
	case cur.Kind == token.Identifier:
		p.advance()
		return &miniName{name: cur.Representation}, nil
	case cur.Kind == token.Punctuation && cur.Representation == "(":
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil
	case cur.Kind == token.Punctuation && cur.Representation == "{":
		return p.parseTable()
	default:
		return nil, fmt.Errorf("unexpected token %q in expression", cur.Representation)
	}
}

func (p *miniParser) parseTable() (miniExpr, error) {
	p.advance() // "{"
	t := &miniTableExpr{}
	for !p.isPunct("}") {
		if p.isPunct("[") {
			p.advance()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			if err := p.expectPunct("="); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			t.keys = append(t.keys, key)
			t.values = append(t.values, val)
		} else if p.cur().Kind == token.Identifier && p.peekIsAssignAfterIdent() {
			name := p.advance().Representation
			p.advance() // "="
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			t.keys = append(t.keys, &miniLiteral{val: name})
			t.values = append(t.values, val)
		} else {
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			t.keys = append(t.keys, nil)
			t.values = append(t.values, val)
		}
		if p.isPunct(",") || p.isPunct(";") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *miniParser) peekIsAssignAfterIdent() bool {
	if p.pos+1 >= len(p.toks) {
		return false
	}
	next := p.toks[p.pos+1]
	return next.Kind == token.Punctuation && next.Representation == "="
}
