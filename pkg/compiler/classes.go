package compiler

import (
	"errors"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
)

func (c *Compiler) processClass(p Pass, id ast.NodeID, sc *scope.Scope) error {
	switch p {
	case Parsing, ComplexTypeParsing, FunctionParsing, FunctionCompilation:
	default:
		return nil
	}
	if c.once(id, p) {
		return nil
	}
	cls := c.node(id).Data.(*ast.Class)
	switch p {
	case Parsing:
		st := types.NewStruct(cls.Name, cls.TemplateArgs)
		cls.Struct = st
		sc.DeclareType(cls.Name, types.FromComplex(st))
		cs := sc.NewChild(scope.Class, st.String(), id)
		cs.Struct = st
		c.scopes[id] = cs
	case ComplexTypeParsing:
		if err := c.layoutClass(id, c.scopes[id]); err != nil {
			return err
		}
	}
	return c.forwardMethods(p, id)
}

func (c *Compiler) forwardMethods(p Pass, id ast.NodeID) error {
	cs, ok := c.scopes[id]
	if !ok {
		return nil
	}
	var errs []error
	for _, ch := range append([]ast.NodeID(nil), c.node(id).Children...) {
		if c.node(ch).Kind != ast.Function {
			continue
		}
		if err := c.process(p, ch, cs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// layoutClass adds the data members in declaration order, fixes the layout
// and declares every member in the class scope.
func (c *Compiler) layoutClass(id ast.NodeID, cs *scope.Scope) error {
	st := cs.Struct
	toks := make(map[string]token.Token)

	for _, ch := range c.node(id).Children {
		n := c.node(ch)
		switch n.Kind {
		case ast.Assignment:
			a := n.Data.(*ast.Assign)
			t, err := c.resolveType(a.DeclType, cs, n.Tok)
			if err != nil {
				return err
			}
			if t.IsDynamic() {
				return util.Errorf(n.Tok, "class members need an explicit type")
			}
			def, err := c.evalConstant(c.child(ch, 0), t)
			if err != nil {
				return err
			}
			name := c.node(c.child(ch, 1)).Data.(*ast.VarRef).ID.String()
			if err := st.AddMember(name, t.Base(), def); err != nil {
				return util.Errorf(n.Tok, "%s", err)
			}
			toks[name] = n.Tok
		case ast.ComplexTypeDefinition:
			d := n.Data.(*ast.VarDef)
			t, err := c.resolveType(d.Type, cs, n.Tok)
			if err != nil {
				return err
			}
			d.Type = t
			var def *types.Value
			switch {
			case t.IsPrimitive() && !t.Is(types.Block):
				if len(n.Children) > 1 {
					return util.Errorf(n.Tok, "too many initialisers for %s", t)
				}
				if len(n.Children) == 1 {
					if def, err = c.evalConstant(n.Children[0], t); err != nil {
						return err
					}
				}
			case len(n.Children) > 0:
				return util.Errorf(n.Tok, "member %s of type %s can't have an initialiser", d.Names[0], t)
			}
			for i, name := range d.Names {
				if err := st.AddMember(name, t.Base(), def); err != nil {
					return util.Errorf(d.Toks[i], "%s", err)
				}
				toks[name] = d.Toks[i]
			}
		}
	}
	st.Finalize()

	for _, m := range st.Members {
		sym := types.NewSymbol(types.NewIdentifier(m.Name), m.Type)
		v := &scope.Variable{Sym: sym, Tok: toks[m.Name], Origin: ast.Member, ParamIndex: -1, Offset: m.Offset, Decl: id}
		if err := cs.Declare(m.Name, v); err != nil {
			return err
		}
		c.declOf[sym] = id
	}
	return nil
}

// evalConstant reads a member default. Only literals, optionally negated,
// are accepted.
func (c *Compiler) evalConstant(id ast.NodeID, t types.TypeInfo) (*types.Value, error) {
	n := c.node(id)
	neg := false
	for n.Kind == ast.Negation {
		neg = !neg
		n = c.node(n.Children[0])
	}
	if n.Kind != ast.Immediate || !t.IsNumeric() {
		return nil, util.Errorf(n.Tok, "default value of a class member must be a numeric constant")
	}
	v := n.Value
	if neg {
		if v.Kind == types.Integer {
			v = types.IntValue(-v.I)
		} else {
			v.F = -v.F
		}
	}
	v = v.Cast(t.Kind)
	return &v, nil
}

// classOf returns the struct a member symbol belongs to.
func (c *Compiler) classOf(sym *types.Symbol) *types.Complex {
	decl, ok := c.declOf[sym]
	if !ok {
		return nil
	}
	if cls, ok := c.node(decl).Data.(*ast.Class); ok {
		return cls.Struct
	}
	return nil
}
