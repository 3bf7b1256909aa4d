package compiler

import (
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
)

// resolveType binds every named part of t in sc. It returns t unchanged when
// nothing is left to resolve and never mutates shared type descriptors.
func (c *Compiler) resolveType(t types.TypeInfo, sc *scope.Scope, tok token.Token) (types.TypeInfo, error) {
	cx := t.Complex
	if cx == nil || cx.IsResolved() {
		return t, nil
	}

	var out types.TypeInfo
	switch cx.Kind {
	case types.UnresolvedType:
		r, err := c.resolveNamed(cx, sc, tok)
		if err != nil {
			return t, err
		}
		out = r
	case types.SpanType, types.DynType, types.PointerType:
		elem, err := c.resolveType(cx.Elem, sc, tok)
		if err != nil {
			return t, err
		}
		switch cx.Kind {
		case types.SpanType:
			out = types.FromComplex(types.NewSpan(elem, cx.Len))
		case types.DynType:
			out = types.FromComplex(types.NewDyn(elem))
		default:
			out = types.FromComplex(types.NewPointer(elem))
		}
	default:
		return t, nil
	}
	out.Const = out.Const || t.Const
	out.Ref = t.Ref
	return out, nil
}

func (c *Compiler) resolveNamed(cx *types.Complex, sc *scope.Scope, tok token.Token) (types.TypeInfo, error) {
	switch cx.Name {
	case "span", "dyn":
		args, err := c.resolveArgs(cx.TemplateArgs, sc, tok)
		if err != nil {
			return types.TypeInfo{}, err
		}
		if len(args) == 0 || !args[0].IsType {
			return types.TypeInfo{}, util.Errorf(tok, "%s needs an element type", cx.Name)
		}
		if cx.Name == "dyn" {
			return types.FromComplex(types.NewDyn(args[0].Type)), nil
		}
		if len(args) != 2 || args[1].IsType {
			return types.TypeInfo{}, util.Errorf(tok, "span needs an element type and a size")
		}
		if args[1].Value <= 0 {
			return types.TypeInfo{}, util.Errorf(tok, "span size must be positive, got %d", args[1].Value)
		}
		return types.FromComplex(types.NewSpan(args[0].Type, args[1].Value)), nil
	}

	if len(cx.TemplateArgs) == 0 {
		if t, ok := sc.LookupType(cx.Name); ok {
			return t, nil
		}
	}
	for _, def := range sc.Templates(cx.Name) {
		if !c.templateOf(def).Class {
			continue
		}
		args, err := c.resolveArgs(cx.TemplateArgs, sc, tok)
		if err != nil {
			return types.TypeInfo{}, err
		}
		st, err := c.instantiateClass(def, args, tok)
		if err != nil {
			return types.TypeInfo{}, err
		}
		return types.FromComplex(st), nil
	}
	return types.TypeInfo{}, util.Errorf(tok, "Unknown type %s", cx)
}

// resolveArgs expands packs and binds template parameter names to the
// values they have in sc.
func (c *Compiler) resolveArgs(args []types.TemplateArg, sc *scope.Scope, tok token.Token) ([]types.TemplateArg, error) {
	out := make([]types.TemplateArg, 0, len(args))
	for _, a := range args {
		switch {
		case a.Pack != "":
			pack, ok := c.lookupPack(sc, a.Pack)
			if !ok {
				return nil, util.Errorf(tok, "unknown parameter pack %s", a.Pack)
			}
			out = append(out, pack...)
		case a.Param != "":
			v, _ := sc.Lookup(a.Param)
			if v == nil || !v.Sym.Const || v.Sym.Value.Kind != types.Integer {
				return nil, util.Errorf(tok, "template argument %s is not an integer constant", a.Param)
			}
			out = append(out, types.TemplateArg{Value: int(v.Sym.Value.I)})
		case a.IsType:
			t, err := c.resolveType(a.Type, sc, tok)
			if err != nil {
				return nil, err
			}
			out = append(out, types.TemplateArg{IsType: true, Type: t.Base()})
		default:
			out = append(out, a)
		}
	}
	return out, nil
}

func (c *Compiler) lookupPack(sc *scope.Scope, name string) ([]types.TemplateArg, bool) {
	for s := sc; s != nil; s = s.Parent {
		if pack, ok := c.packs[s][name]; ok {
			return pack, true
		}
	}
	return nil, false
}
