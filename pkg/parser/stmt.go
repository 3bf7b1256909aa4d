package parser

import (
	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
)

func (p *Parser) parseBlock() ast.NodeID {
	tok := p.expect(token.LBrace, "Expected '{' to start a block.")
	block := p.tree.New(ast.StatementBlock, tok, &ast.Block{})
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		for _, id := range p.parseStmt() {
			p.tree.AddChild(block, id)
		}
	}
	p.expect(token.RBrace, "Expected '}' after block.")
	return block
}

// parseBody parses the statement controlled by if, while or for and wraps
// it in a block so every body opens its own scope.
func (p *Parser) parseBody() ast.NodeID {
	if p.check(token.LBrace) {
		return p.parseBlock()
	}
	tok := p.current
	return p.tree.New(ast.StatementBlock, tok, &ast.Block{}, p.parseStmt()...)
}

func (p *Parser) parseStmt() []ast.NodeID {
	tok := p.current
	one := func(id ast.NodeID) []ast.NodeID { return []ast.NodeID{id} }

	switch tok.Type {
	case token.LBrace:
		return one(p.parseBlock())
	case token.Semi:
		p.advance()
		return one(p.tree.New(ast.Noop, tok, nil))
	case token.If:
		p.advance()
		p.expect(token.LParen, "Expected '(' after 'if'.")
		cond := p.parseExpr()
		p.expect(token.RParen, "Expected ')' after if condition.")
		then := p.parseBody()
		var els ast.NodeID
		if p.match(token.Else) {
			els = p.parseBody()
		}
		return one(p.tree.New(ast.IfStatement, tok, nil, cond, then, els))
	case token.While:
		p.advance()
		p.expect(token.LParen, "Expected '(' after 'while'.")
		cond := p.parseExpr()
		p.expect(token.RParen, "Expected ')' after while condition.")
		return one(p.tree.New(ast.WhileLoop, tok, nil, cond, p.parseBody()))
	case token.For:
		p.advance()
		p.expect(token.LParen, "Expected '(' after 'for'.")
		iterType := p.parseType()
		iter := p.expect(token.Ident, "Expected iterator name.")
		p.expect(token.Colon, "Expected ':' after loop iterator.")
		target := p.parseExpr()
		p.expect(token.RParen, "Expected ')' after loop target.")
		data := &ast.LoopData{Iterator: iter.Value, IterType: iterType}
		return one(p.tree.New(ast.Loop, iter, data, target, p.parseBody()))
	case token.Break, token.Continue:
		p.advance()
		p.expect(token.Semi, "Expected ';' after break or continue.")
		return one(p.tree.New(ast.ControlFlow, tok, &ast.Flow{Break: tok.Type == token.Break}))
	case token.Return:
		p.advance()
		var value ast.NodeID
		if !p.check(token.Semi) {
			value = p.parseExpr()
		}
		p.expect(token.Semi, "Expected ';' after return.")
		return one(p.tree.New(ast.ReturnStatement, tok, nil, value))
	case token.Inline, token.Template, token.Struct:
		p.fail(tok, "'%s' is only allowed at global scope", tok.Type)
	}

	if p.isDeclStart() {
		t := p.parseType()
		nameTok := p.expect(token.Ident, "Expected a variable name.")
		if p.check(token.LParen) {
			p.fail(nameTok, "function definitions are only allowed at global scope")
		}
		return p.parseDeclRest(t, nameTok)
	}

	expr := p.parseExpr()
	p.expect(token.Semi, "Expected ';' after expression.")
	return one(expr)
}

// zeroOf is the default initialiser of a primitive definition.
func zeroOf(t types.TypeInfo) types.Value { return types.Value{Kind: t.Kind} }
