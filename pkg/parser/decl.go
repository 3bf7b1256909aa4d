package parser

import (
	"strconv"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
)

// parseType reads a type with its modifiers. Names the parser can't bind
// yet (struct names, template parameters) become unresolved complex types.
func (p *Parser) parseType() types.TypeInfo {
	isConst := p.match(token.Const)
	tok := p.current
	var t types.TypeInfo

	switch tok.Type {
	case token.Int, token.Bool:
		p.advance()
		t = types.IntType
	case token.Float:
		p.advance()
		t = types.FloatType
	case token.Double:
		p.advance()
		t = types.DoubleType
	case token.Void:
		p.advance()
		t = types.VoidType
	case token.Block:
		p.advance()
		t = types.BlockType
	case token.Auto:
		p.advance()
		t = types.DynamicType
	case token.Span:
		p.advance()
		p.expect(token.Lt, "Expected '<' after span.")
		elem := p.parseType()
		p.expect(token.Comma, "Expected ',' between span element type and size.")
		size := p.parseTemplateArg()
		p.closeAngle()
		if size.IsType || size.Pack != "" {
			p.fail(tok, "span size must be an integer")
		}
		if elem.IsResolved() && size.IsBound() {
			if size.Value <= 0 {
				p.fail(tok, "span size must be positive")
			}
			t = types.FromComplex(types.NewSpan(elem, size.Value))
		} else {
			t = types.FromComplex(types.NewUnresolved("span", []types.TemplateArg{{IsType: true, Type: elem}, size}))
		}
	case token.Dyn:
		p.advance()
		p.expect(token.Lt, "Expected '<' after dyn.")
		elem := p.parseType()
		p.closeAngle()
		if elem.IsResolved() {
			t = types.FromComplex(types.NewDyn(elem))
		} else {
			t = types.FromComplex(types.NewUnresolved("dyn", []types.TemplateArg{{IsType: true, Type: elem}}))
		}
	case token.Ident:
		if !p.isTypeName(tok.Value) {
			p.fail(tok, "Unknown type '%s'.", tok.Value)
		}
		p.advance()
		var args []types.TemplateArg
		if p.match(token.Lt) {
			args = p.parseTemplateArgs()
		}
		t = types.FromComplex(types.NewUnresolved(tok.Value, args))
	default:
		p.fail(tok, "Expected a type.")
	}

	for p.match(token.Star) {
		t = types.FromComplex(types.NewPointer(t))
	}
	if p.match(token.And) {
		t.Ref = true
	}
	t.Const = isConst
	return t
}

// parseTemplateArgs reads arguments up to the closing '>'. The opening '<'
// has been consumed.
func (p *Parser) parseTemplateArgs() []types.TemplateArg {
	var args []types.TemplateArg
	if p.check(token.Gt) || p.check(token.Shr) {
		p.closeAngle()
		return args
	}
	for {
		args = append(args, p.parseTemplateArg())
		if !p.match(token.Comma) {
			break
		}
	}
	p.closeAngle()
	return args
}

func (p *Parser) parseTemplateArg() types.TemplateArg {
	tok := p.current
	if tok.Type == token.Ident && p.peek().Type == token.Dots {
		tp, ok := p.tparam(tok.Value)
		if !ok || !tp.Variadic {
			p.fail(tok, "%s is not a parameter pack", tok.Value)
		}
		p.advance()
		p.advance()
		return types.TemplateArg{IsType: tp.IsType, Pack: tok.Value}
	}
	if p.isTypeToken(tok) {
		return types.TemplateArg{IsType: true, Type: p.parseType()}
	}
	neg := p.match(token.Minus)
	switch {
	case p.match(token.Number):
		v, _ := strconv.Atoi(p.previous.Value)
		if neg {
			v = -v
		}
		return types.TemplateArg{Value: v}
	case !neg && p.check(token.Ident):
		tp, ok := p.tparam(tok.Value)
		if !ok {
			p.fail(tok, "template argument '%s' must be a constant or template parameter", tok.Value)
		}
		if tp.Variadic {
			p.fail(tok, "parameter pack %s must be expanded with '...'", tok.Value)
		}
		p.advance()
		return types.TemplateArg{Param: tok.Value}
	}
	p.fail(tok, "Expected a template argument.")
	return types.TemplateArg{}
}

// parseTemplate reads a template parameter list followed by a struct or a
// function. Child 0 of the definition is the generic body.
func (p *Parser) parseTemplate() ast.NodeID {
	tok := p.expect(token.Template, "Expected 'template'.")
	p.expect(token.Lt, "Expected '<' after template.")
	var params []types.TemplateParam
	scope := make(map[string]types.TemplateParam)
	for !p.check(token.Gt) {
		var tp types.TemplateParam
		switch {
		case p.match(token.Typename):
			tp.IsType = true
		case p.match(token.Int):
		default:
			p.fail(p.current, "Expected 'typename' or 'int' in template parameter list.")
		}
		tp.Variadic = p.match(token.Dots)
		tp.Name = p.expect(token.Ident, "Expected template parameter name.").Value
		if _, dup := scope[tp.Name]; dup {
			p.fail(p.previous, "template parameter %s is already defined", tp.Name)
		}
		if len(params) > 0 && params[len(params)-1].Variadic {
			p.fail(p.previous, "parameter pack must be the last template parameter")
		}
		params = append(params, tp)
		scope[tp.Name] = tp
		if !p.match(token.Comma) {
			break
		}
	}
	p.closeAngle()

	p.tparams = append(p.tparams, scope)
	defer func() { p.tparams = p.tparams[:len(p.tparams)-1] }()

	def := &ast.Template{Params: params}
	var body ast.NodeID
	if p.check(token.Struct) {
		def.Class = true
		def.Name = p.peek().Value
		body = p.parseStruct()
	} else {
		inline := p.match(token.Inline)
		ret := p.parseType()
		nameTok := p.expect(token.Ident, "Expected function name.")
		def.Name = nameTok.Value
		p.funcTemplates[def.Name] = true
		body = p.parseFunctionRest(inline, ret, nameTok, "")
		p.tree.Node(body).Kind = ast.TemplatedFunction
	}
	return p.tree.New(ast.TemplateDefinition, tok, def, body)
}

func (p *Parser) parseStruct() ast.NodeID {
	p.expect(token.Struct, "Expected 'struct'.")
	nameTok := p.expect(token.Ident, "Expected struct name.")
	name := nameTok.Value
	p.typeNames[name] = true
	cls := p.tree.New(ast.ClassStatement, nameTok, &ast.Class{Name: name})
	p.expect(token.LBrace, "Expected '{' after struct name.")
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		if p.match(token.Semi) {
			continue
		}
		if p.check(token.Template) {
			p.fail(p.current, "member templates are not supported")
		}
		inline := p.match(token.Inline)
		t := p.parseType()
		memberTok := p.expect(token.Ident, "Expected member name.")
		if p.check(token.LParen) {
			p.tree.AddChild(cls, p.parseFunctionRest(inline, t, memberTok, name))
			continue
		}
		for _, id := range p.parseDeclRest(t, memberTok) {
			p.tree.AddChild(cls, id)
		}
	}
	p.expect(token.RBrace, "Expected '}' after struct body.")
	p.expect(token.Semi, "Expected ';' after struct definition.")
	return cls
}

func (p *Parser) parseFunctionRest(inline bool, ret types.TypeInfo, nameTok token.Token, class string) ast.NodeID {
	p.expect(token.LParen, "Expected '(' after function name.")
	sig := &types.Signature{
		ID:     types.NewIdentifier(class, nameTok.Value),
		Return: ret,
		Inline: inline,
		Member: class != "",
	}
	fn := &ast.Func{Sig: sig, Class: class}
	if p.check(token.Void) && p.peek().Type == token.RParen {
		p.advance()
	}
	for !p.check(token.RParen) {
		t := p.parseType()
		if t.IsVoid() || t.IsDynamic() {
			p.fail(p.previous, "illegal parameter type %s", t)
		}
		pt := p.expect(token.Ident, "Expected parameter name.")
		sig.Params = append(sig.Params, types.Param{Name: pt.Value, Type: t})
		fn.ParamToks = append(fn.ParamToks, pt)
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RParen, "Expected ')' after parameters.")
	id := p.tree.New(ast.Function, nameTok, fn)
	if !p.match(token.Semi) {
		p.tree.AddChild(id, p.parseBlock())
	}
	return id
}

// parseDeclRest reads the definitions that follow a type. Primitive and
// auto definitions become one declaring Assignment per name; other types
// become ComplexTypeDefinition nodes.
func (p *Parser) parseDeclRest(t types.TypeInfo, nameTok token.Token) []ast.NodeID {
	var out []ast.NodeID
	complex := !(t.IsPrimitive() && !t.Is(types.Block)) && !t.IsDynamic()
	var pending *ast.VarDef
	var pendingTok token.Token
	flush := func() {
		if pending != nil {
			out = append(out, p.tree.New(ast.ComplexTypeDefinition, pendingTok, pending))
			pending = nil
		}
	}

	for {
		if complex {
			if p.match(token.Eq) {
				flush()
				def := &ast.VarDef{Names: []string{nameTok.Value}, Toks: []token.Token{nameTok}, Type: t}
				id := p.tree.New(ast.ComplexTypeDefinition, nameTok, def)
				if p.match(token.LBrace) {
					for !p.check(token.RBrace) {
						p.tree.AddChild(id, p.parseTernary())
						if !p.match(token.Comma) {
							break
						}
					}
					p.expect(token.RBrace, "Expected '}' after initialiser list.")
				} else {
					p.tree.AddChild(id, p.parseTernary())
				}
				out = append(out, id)
			} else {
				if pending == nil {
					pending = &ast.VarDef{Type: t}
					pendingTok = nameTok
				}
				pending.Names = append(pending.Names, nameTok.Value)
				pending.Toks = append(pending.Toks, nameTok)
			}
		} else {
			var value ast.NodeID
			if p.match(token.Eq) {
				value = p.parseTernary()
			} else if t.IsDynamic() {
				p.fail(nameTok, "Can't deduce type of %s without initialiser", nameTok.Value)
			} else {
				value = p.immediate(nameTok, zeroOf(t))
			}
			target := p.tree.New(ast.VariableReference, nameTok, &ast.VarRef{ID: types.NewIdentifier(nameTok.Value), ParamIndex: -1})
			out = append(out, p.tree.New(ast.Assignment, nameTok, &ast.Assign{Op: token.Eq, Declaration: true, DeclType: t}, value, target))
		}
		if !p.match(token.Comma) {
			break
		}
		nameTok = p.expect(token.Ident, "Expected a name after ','.")
	}
	flush()
	p.expect(token.Semi, "Expected ';' after definition.")
	return out
}
