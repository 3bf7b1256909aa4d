package compiler

import (
	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/types"
)

// shouldInline reports whether the resolved call id can be replaced by a
// copy of the callee body.
func (c *Compiler) shouldInline(id ast.NodeID) bool {
	call := c.node(id).Data.(*ast.Call)
	sig := call.Sig
	if !c.feature(config.FeatInline) || sig == nil || !sig.Inline || sig.Member || !call.Target.IsValid() {
		return false
	}
	for _, p := range sig.Params {
		if !p.Type.Ref && (!p.Type.IsPrimitive() || p.Type.IsMemoryBacked()) {
			return false
		}
	}
	if _, ok := c.pristine[call.Target]; !ok || c.inlining[call.Target] {
		return false
	}
	if c.tree.FindParent(id, ast.Function, ast.TemplatedFunction) == call.Target {
		return false
	}
	return !c.node(call.Target).Data.(*ast.Func).Failed
}

// inlineCall replaces the call id with an inlined block. Each argument is
// wrapped in an InlinedArgument evaluated once; parameter references in
// the copied body resolve to those wrappers.
func (c *Compiler) inlineCall(id ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	call := n.Data.(*ast.Call)
	target, sig := call.Target, call.Sig
	fn := c.node(target).Data.(*ast.Func)
	fsc := c.scopes[target]

	ret := sig.Return.Base()
	blk := c.tree.New(ast.StatementBlock, n.Tok, &ast.Block{Inlined: true, ReturnType: ret})
	c.node(blk).Type = ret
	is := fsc.Parent.NewChild(scope.Function, sig.ID.Base(), blk)

	args := append([]ast.NodeID(nil), n.Children...)
	for i, p := range sig.Params {
		ia := c.tree.New(ast.InlinedArgument, c.node(args[i]).Tok, &ast.InlinedArg{Index: i, Name: p.Name}, args[i])
		c.node(ia).Type = p.Type
		c.tree.AddChild(blk, ia)
		sym := types.NewSymbol(types.NewIdentifier(p.Name), p.Type)
		v := &scope.Variable{Sym: sym, Tok: fn.ParamToks[i], Origin: ast.Param, ParamIndex: i, Decl: blk, Arg: ia}
		if err := is.Declare(p.Name, v); err != nil {
			return err
		}
	}
	c.tree.AddChild(blk, c.tree.Clone(c.pristine[target]))
	c.tree.Replace(id, blk)
	c.scopes[blk] = is

	c.inlining[target] = true
	defer delete(c.inlining, target)
	for _, p := range bodyParsePasses {
		if err := c.process(p, blk, is); err != nil {
			return err
		}
	}
	return nil
}

// genInlinedArg evaluates an argument of an inlined call into a register
// that stays claimed until the inlined block ends.
func (c *Compiler) genInlinedArg(id ast.NodeID) {
	n := c.node(id)
	pool := c.fn.pool
	vid := c.child(id, 0)
	v := c.node(vid).Reg

	var r *regalloc.Register
	switch {
	case n.Type.Ref:
		r = v
	case v.Kind == regalloc.Reg && !v.IsVariable():
		r = v
	default:
		r = pool.Temp(n.Type.RegisterKind())
		c.em.Move(r, v)
		c.consume(vid)
	}
	if err := pool.Claim(r, int(id)); err != nil {
		c.bail(n.Tok, "%s", err)
	}
	n.Reg = r
}
