package parser

import (
	"strconv"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
)

// builtinObject is the namespace of the math builtins (Math.sin(x) and friends).
const builtinObject = "Math"

// Expression Parsing
func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star, token.Slash, token.Rem:
		return 13
	case token.Plus, token.Minus:
		return 12
	case token.Shl, token.Shr:
		return 11
	case token.Lt, token.Gt, token.Lte, token.Gte:
		return 10
	case token.EqEq, token.Neq:
		return 9
	case token.And:
		return 8
	case token.Xor:
		return 7
	case token.Or:
		return 6
	case token.AndAnd:
		return 5
	case token.OrOr:
		return 4
	default:
		return -1
	}
}

func (p *Parser) parseExpr() ast.NodeID { return p.parseAssignmentExpr() }

// parseAssignmentExpr builds Assignment nodes with the value as child 0 and
// the target as child 1.
func (p *Parser) parseAssignmentExpr() ast.NodeID {
	left := p.parseTernary()
	if p.current.Type.IsAssignment() {
		tok := p.current
		p.advance()
		right := p.parseAssignmentExpr()
		return p.tree.New(ast.Assignment, tok, &ast.Assign{Op: tok.Type}, right, left)
	}
	return left
}

func (p *Parser) parseTernary() ast.NodeID {
	cond := p.parseBinaryExpr(0)
	if p.check(token.Question) {
		tok := p.current
		p.advance()
		a := p.parseExpr()
		p.expect(token.Colon, "Expected ':' in ternary expression.")
		b := p.parseTernary()
		return p.tree.New(ast.TernaryOp, tok, nil, cond, a, b)
	}
	return cond
}

func (p *Parser) parseBinaryExpr(minPrec int) ast.NodeID {
	left := p.parseUnaryExpr()
	for {
		op := p.current
		prec := getBinaryOpPrecedence(op.Type)
		if prec < minPrec || prec < 0 {
			return left
		}
		p.advance()
		right := p.parseBinaryExpr(prec + 1)
		kind := ast.BinaryOp
		if op.Type.IsComparison() {
			kind = ast.Compare
		}
		left = p.tree.New(kind, op, &ast.Op{Op: op.Type}, left, right)
	}
}

func (p *Parser) parseUnaryExpr() ast.NodeID {
	tok := p.current
	switch tok.Type {
	case token.Minus:
		p.advance()
		return p.tree.New(ast.Negation, tok, nil, p.parseUnaryExpr())
	case token.Plus:
		p.advance()
		return p.parseUnaryExpr()
	case token.Not:
		p.advance()
		return p.tree.New(ast.LogicalNot, tok, nil, p.parseUnaryExpr())
	case token.Inc, token.Dec:
		p.advance()
		operand := p.parseUnaryExpr()
		return p.tree.New(ast.Increment, tok, &ast.IncrementData{Decrement: tok.Type == token.Dec, Pre: true}, operand)
	case token.LParen:
		if p.isTypeToken(p.peek()) {
			p.advance()
			t := p.parseType()
			p.expect(token.RParen, "Expected ')' after cast type.")
			return p.tree.New(ast.Cast, tok, &ast.CastData{Target: t}, p.parseUnaryExpr())
		}
	}
	return p.parsePostfixExpr()
}

func (p *Parser) parsePostfixExpr() ast.NodeID {
	expr := p.parsePrimaryExpr()
	for {
		tok := p.current
		switch {
		case p.match(token.Dot):
			member := p.expect(token.Ident, "Expected member name after '.'.")
			if p.check(token.LParen) {
				call := p.tree.New(ast.FunctionCall, member, &ast.Call{ID: types.NewIdentifier(member.Value), HasObject: true}, expr)
				p.parseCallArgs(call)
				expr = call
				continue
			}
			expr = p.tree.New(ast.DotOperator, member, &ast.Dot{Member: member.Value}, expr)
		case p.match(token.LBracket):
			index := p.parseExpr()
			p.expect(token.RBracket, "Expected ']' after subscript index.")
			expr = p.tree.New(ast.Subscript, tok, &ast.SubscriptData{}, expr, index)
		case p.check(token.Inc), p.check(token.Dec):
			p.advance()
			expr = p.tree.New(ast.Increment, tok, &ast.IncrementData{Decrement: tok.Type == token.Dec}, expr)
		default:
			return expr
		}
	}
}

func (p *Parser) parseCallArgs(call ast.NodeID) {
	p.expect(token.LParen, "Expected '(' before arguments.")
	if !p.check(token.RParen) {
		for {
			p.tree.AddChild(call, p.parseTernary())
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "Expected ')' after function arguments.")
}

func (p *Parser) parsePrimaryExpr() ast.NodeID {
	tok := p.current
	switch tok.Type {
	case token.Number:
		p.advance()
		v, _ := strconv.ParseInt(tok.Value, 10, 64)
		return p.immediate(tok, types.IntValue(v))
	case token.FloatNumber:
		p.advance()
		v, _ := strconv.ParseFloat(tok.Value, 32)
		return p.immediate(tok, types.FloatValue(float32(v)))
	case token.DoubleNumber:
		p.advance()
		v, _ := strconv.ParseFloat(tok.Value, 64)
		return p.immediate(tok, types.DoubleValue(v))
	case token.True, token.False:
		p.advance()
		if tok.Type == token.True {
			return p.immediate(tok, types.IntValue(1))
		}
		return p.immediate(tok, types.IntValue(0))
	case token.LParen:
		p.advance()
		expr := p.parseExpr()
		p.expect(token.RParen, "Expected ')' after expression.")
		return expr
	case token.Ident:
		return p.parseName()
	}
	p.fail(tok, "Expected an expression.")
	return ast.NoNode
}

// parseName reads a (possibly qualified) name followed by an optional
// template argument list and call.
func (p *Parser) parseName() ast.NodeID {
	tok := p.current
	p.advance()

	if tok.Value == builtinObject && p.check(token.Dot) {
		p.advance()
		fn := p.expect(token.Ident, "Expected function name after 'Math.'.")
		call := p.tree.New(ast.FunctionCall, fn, &ast.Call{ID: types.NewIdentifier(builtinObject, fn.Value), Type: ast.CallBuiltin})
		p.parseCallArgs(call)
		return call
	}

	parts := []string{tok.Value}
	for p.check(token.ColonColon) {
		p.advance()
		parts = append(parts, p.expect(token.Ident, "Expected name after '::'.").Value)
	}
	id := types.NewIdentifier(parts...)

	var targs []types.TemplateArg
	hasTemplateArgs := false
	if p.funcTemplates[id.Base()] && p.check(token.Lt) {
		p.advance()
		targs = p.parseTemplateArgs()
		hasTemplateArgs = true
	}

	if p.check(token.LParen) {
		call := p.tree.New(ast.FunctionCall, tok, &ast.Call{ID: id, TemplateArgs: targs})
		p.parseCallArgs(call)
		return call
	}
	if hasTemplateArgs {
		p.fail(tok, "Expected '(' after template arguments.")
	}
	return p.tree.New(ast.VariableReference, tok, &ast.VarRef{ID: id, ParamIndex: -1})
}
