package parser

import (
	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/lexer"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	tree     *ast.Tree

	typeNames     map[string]bool
	funcTemplates map[string]bool
	tparams       []map[string]types.TemplateParam
}

// bailout carries the first syntax error up to Parse.
type bailout struct{ err *util.Diagnostic }

// NewParser creates and initializes a new Parser from a token stream
func NewParser(tokens []token.Token) *Parser {
	p := &Parser{
		tokens:        tokens,
		tree:          ast.NewTree(),
		typeNames:     make(map[string]bool),
		funcTemplates: make(map[string]bool),
	}
	if len(tokens) > 0 {
		p.current = p.tokens[0]
	}
	return p
}

// ParseSource lexes and parses one source file.
func ParseSource(source []rune, fileIndex int) (*ast.Tree, error) {
	toks, err := lexer.Tokenize(source, fileIndex)
	if err != nil {
		return nil, err
	}
	return NewParser(toks).Parse()
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.previous = p.current
		p.pos++
		if p.pos < len(p.tokens) {
			p.current = p.tokens[p.pos]
		}
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) token.Token {
	if p.check(tokType) {
		p.advance()
		return p.previous
	}
	p.fail(p.current, "%s", message)
	return token.Token{}
}

func (p *Parser) fail(tok token.Token, format string, args ...any) {
	panic(bailout{util.Errorf(tok, format, args...)})
}

// closeAngle consumes the '>' closing a template argument list, splitting a
// '>>' token in two when lists are nested.
func (p *Parser) closeAngle() {
	if p.check(token.Shr) {
		p.current.Type = token.Gt
		p.current.Column++
		p.current.Len = 1
		p.tokens[p.pos] = p.current
		return
	}
	p.expect(token.Gt, "Expected '>' to close template argument list.")
}

func (p *Parser) tparam(name string) (types.TemplateParam, bool) {
	for i := len(p.tparams) - 1; i >= 0; i-- {
		if tp, ok := p.tparams[i][name]; ok {
			return tp, true
		}
	}
	return types.TemplateParam{}, false
}

func (p *Parser) isTypeName(name string) bool {
	if p.typeNames[name] {
		return true
	}
	tp, ok := p.tparam(name)
	return ok && tp.IsType
}

func (p *Parser) isTypeToken(tok token.Token) bool {
	switch {
	case tok.Type.IsTypeKeyword(), tok.Type == token.Const, tok.Type == token.Auto:
		return true
	case tok.Type == token.Ident:
		return p.isTypeName(tok.Value)
	}
	return false
}

// isDeclStart reports whether the statement at the cursor is a variable definition.
func (p *Parser) isDeclStart() bool {
	if p.current.Type != token.Ident {
		return p.isTypeToken(p.current)
	}
	if !p.isTypeName(p.current.Value) {
		return false
	}
	switch p.peek().Type {
	case token.Ident, token.Lt, token.Star, token.And:
		return true
	}
	return false
}

func (p *Parser) immediate(tok token.Token, v types.Value) ast.NodeID {
	id := p.tree.New(ast.Immediate, tok, nil)
	n := p.tree.Node(id)
	n.Type, n.Const, n.Value = v.Type(), true, v
	return id
}

// Parse builds the syntax tree for the whole token stream.
func (p *Parser) Parse() (tree *ast.Tree, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			tree, err = nil, b.err
		}
	}()

	root := p.tree.New(ast.SyntaxTree, p.current, &ast.Block{})
	p.tree.SetRoot(root)
	for !p.check(token.EOF) {
		for _, id := range p.parseTopLevel() {
			p.tree.AddChild(root, id)
		}
	}
	return p.tree, nil
}

func (p *Parser) parseTopLevel() []ast.NodeID {
	switch p.current.Type {
	case token.Semi:
		p.advance()
		return nil
	case token.Template:
		return []ast.NodeID{p.parseTemplate()}
	case token.Struct:
		return []ast.NodeID{p.parseStruct()}
	}
	inline := p.match(token.Inline)
	t := p.parseType()
	nameTok := p.expect(token.Ident, "Expected a name after the type.")
	if p.check(token.LParen) {
		return []ast.NodeID{p.parseFunctionRest(inline, t, nameTok, "")}
	}
	if inline {
		p.fail(nameTok, "only functions can be declared inline")
	}
	return p.parseDeclRest(t, nameTok)
}
