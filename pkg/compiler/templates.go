package compiler

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
)

func (c *Compiler) templateOf(def ast.NodeID) *ast.Template {
	return c.node(def).Data.(*ast.Template)
}

// processTemplate registers a definition and forwards every pass to its
// instances. The generic body in child 0 is never compiled.
func (c *Compiler) processTemplate(p Pass, id ast.NodeID, sc *scope.Scope) error {
	if p == Parsing {
		if !c.once(id, p) {
			sc.AddTemplate(c.templateOf(id).Name, id)
			c.scopes[id] = sc
		}
		return nil
	}

	insts := append([]ast.NodeID(nil), c.node(id).Children[1:]...)
	if p == FunctionCompilation {
		sort.SliceStable(insts, func(i, j int) bool {
			return c.instanceWidth(insts[i]) < c.instanceWidth(insts[j])
		})
	}
	var errs []error
	for _, inst := range insts {
		if err := c.process(p, inst, c.tscopes[inst]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Compiler) instanceWidth(id ast.NodeID) int {
	if f, ok := c.node(id).Data.(*ast.Func); ok {
		return f.TemplateN
	}
	return 0
}

func (c *Compiler) instanceKey(def ast.NodeID, args []types.TemplateArg) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%d/%s", def, types.FormatTemplateArgs(args)))
}

// templateScope binds the parameters of def to args in a new scope below
// the scope the definition lives in.
func (c *Compiler) templateScope(def ast.NodeID, args []types.TemplateArg, tok token.Token) (*scope.Scope, error) {
	t := c.templateOf(def)
	ts := c.scopes[def].NewChild(scope.Block, "", def)
	for i, p := range t.Params {
		if p.Variadic {
			pack := append([]types.TemplateArg(nil), args[min(i, len(args)):]...)
			for _, a := range pack {
				if a.IsType != p.IsType {
					return nil, util.Errorf(tok, "argument %s doesn't fit parameter pack %s", a, p.Name)
				}
			}
			c.packs[ts] = map[string][]types.TemplateArg{p.Name: pack}
			return ts, nil
		}
		if i >= len(args) {
			return nil, util.Errorf(tok, "too few template arguments for %s", t.Name)
		}
		a := args[i]
		if a.IsType != p.IsType {
			want := "constant"
			if p.IsType {
				want = "type"
			}
			return nil, util.Errorf(tok, "template argument %d of %s must be a %s", i+1, t.Name, want)
		}
		if p.IsType {
			ts.DeclareType(p.Name, a.Type)
			continue
		}
		sym := types.NewSymbol(types.NewIdentifier(p.Name), types.IntType.WithConst(true))
		sym.SetConstant(types.IntValue(int64(a.Value)))
		if err := ts.Declare(p.Name, &scope.Variable{Sym: sym, Tok: tok, Origin: ast.Global, ParamIndex: -1}); err != nil {
			return nil, err
		}
	}
	if len(args) > len(t.Params) {
		return nil, util.Errorf(tok, "too many template arguments for %s", t.Name)
	}
	return ts, nil
}

// deduce completes explicit with type parameters taken from the argument
// types of a call. Only parameters spelled as a bare T can be deduced.
func deduce(t *ast.Template, generic *types.Signature, explicit []types.TemplateArg, argTypes []types.TypeInfo) ([]types.TemplateArg, bool) {
	args := append([]types.TemplateArg(nil), explicit...)
	for i := len(args); i < len(t.Params); i++ {
		p := t.Params[i]
		if p.Variadic {
			break
		}
		if !p.IsType {
			return nil, false
		}
		found := false
		for j, gp := range generic.Params {
			if j >= len(argTypes) {
				break
			}
			if cx := gp.Type.Complex; cx != nil && cx.Kind == types.UnresolvedType && cx.Name == p.Name && len(cx.TemplateArgs) == 0 {
				args = append(args, types.TemplateArg{IsType: true, Type: argTypes[j].Base()})
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	if !t.IsVariadic() && len(args) != len(t.Params) {
		return nil, false
	}
	if t.IsVariadic() && len(args) < len(t.Params)-1 {
		return nil, false
	}
	return args, true
}

// candidate is a template binding that fits a call.
type candidate struct {
	def   ast.NodeID
	args  []types.TemplateArg
	scope *scope.Scope
	exact bool
}

// tryTemplate reports whether def can serve a call with argTypes without
// instantiating it.
func (c *Compiler) tryTemplate(def ast.NodeID, explicit []types.TemplateArg, argTypes []types.TypeInfo, tok token.Token) (*candidate, bool) {
	t := c.templateOf(def)
	if t.Class {
		return nil, false
	}
	generic := c.node(c.child(def, 0)).Data.(*ast.Func)
	args, ok := deduce(t, generic.Sig, explicit, argTypes)
	if !ok {
		return nil, false
	}
	ts, err := c.templateScope(def, args, tok)
	if err != nil {
		return nil, false
	}
	sig := &types.Signature{ID: generic.Sig.ID}
	for _, p := range generic.Sig.Params {
		pt, err := c.resolveType(p.Type, ts, tok)
		if err != nil {
			return nil, false
		}
		sig.Params = append(sig.Params, types.Param{Name: p.Name, Type: pt})
	}
	exact, ok := sig.Match(argTypes)
	if !ok {
		return nil, false
	}
	return &candidate{def: def, args: args, scope: ts, exact: exact}, true
}

// instantiateFunction returns the instance of def for args, cloning the
// generic body and catching it up with the driver on first use.
func (c *Compiler) instantiateFunction(cand *candidate, tok token.Token) (ast.NodeID, error) {
	key := c.instanceKey(cand.def, cand.args)
	if id, ok := c.instances[key]; ok {
		return id, nil
	}
	if c.depth >= maxTemplateDepth {
		return ast.NoNode, util.Errorf(tok, "template instantiation depth exceeds %d", maxTemplateDepth)
	}

	clone := c.tree.Clone(c.child(cand.def, 0))
	fn := c.node(clone).Data.(*ast.Func)
	fn.Sig.TemplateArgs = cand.args
	fn.Template = cand.def
	fn.TemplateN = len(cand.args)
	c.tree.AddChild(cand.def, clone)
	c.tscopes[clone] = cand.scope
	c.instances[key] = clone

	c.depth++
	defer func() { c.depth-- }()
	if err := c.catchUp(clone, cand.scope); err != nil {
		return ast.NoNode, err
	}
	return clone, nil
}

func (c *Compiler) instantiateClass(def ast.NodeID, args []types.TemplateArg, tok token.Token) (*types.Complex, error) {
	key := c.instanceKey(def, args)
	if id, ok := c.instances[key]; ok {
		return c.node(id).Data.(*ast.Class).Struct, nil
	}
	if c.depth >= maxTemplateDepth {
		return nil, util.Errorf(tok, "template instantiation depth exceeds %d", maxTemplateDepth)
	}
	ts, err := c.templateScope(def, args, tok)
	if err != nil {
		return nil, err
	}

	clone := c.tree.Clone(c.child(def, 0))
	cls := c.node(clone).Data.(*ast.Class)
	cls.TemplateArgs = args
	c.tree.AddChild(def, clone)
	c.tscopes[clone] = ts
	c.instances[key] = clone

	c.depth++
	defer func() { c.depth-- }()
	if err := c.catchUp(clone, ts); err != nil {
		return nil, err
	}
	return cls.Struct, nil
}
