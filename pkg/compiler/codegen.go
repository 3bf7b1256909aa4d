package compiler

import (
	"maps"
	"slices"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/rtcheck"
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
)

var pointerType = types.Primitive(types.Pointer)

func (c *Compiler) imm(v types.Value) *regalloc.Register { return c.fn.pool.Immediate(v) }

func ptrImm(v int) types.Value { return types.Value{Kind: types.Pointer, I: int64(v)} }

// gen lowers the expression kinds handled by processExpr. Children have
// been generated already.
func (c *Compiler) gen(id ast.NodeID) {
	n := c.node(id)
	fs := c.fn
	switch n.Kind {
	case ast.Immediate:
		n.Reg = c.imm(n.Value)
	case ast.InlinedParameter:
		n.Reg = c.node(n.Data.(*ast.InlinedParam).Arg).Reg
	case ast.ThisPointer:
		n.Reg = fs.this
	case ast.MemoryReference:
		n.Reg = fs.pool.Memory(c.node(c.child(id, 0)).Reg, "", n.Data.(*ast.MemRef).Offset, n.Type.Base())
	case ast.PointerAccess:
		n.Reg = c.node(c.child(id, 0)).Reg
	case ast.DotOperator:
		obj := c.node(c.child(id, 0)).Reg
		n.Reg = fs.pool.Memory(obj, "", n.Data.(*ast.Dot).Offset, n.Type.Base())
	case ast.Cast:
		c.genCast(id)
	case ast.Negation:
		src := c.child(id, 0)
		sr := c.node(src).Reg
		c.consume(src)
		dst := c.result(n.Type.RegisterKind(), sr)
		c.em.Negate(dst, sr)
		n.Reg = dst
	case ast.LogicalNot:
		src := c.child(id, 0)
		sr := c.node(src).Reg
		c.consume(src)
		dst := c.result(types.Integer, sr)
		c.em.Compare(token.EqEq, dst, sr, c.imm(types.Value{Kind: sr.Type}))
		n.Reg = dst
	case ast.Compare:
		l, r := c.node(c.child(id, 0)).Reg, c.node(c.child(id, 1)).Reg
		c.consume(c.child(id, 0))
		c.consume(c.child(id, 1))
		dst := c.result(types.Integer, l)
		c.em.Compare(n.Data.(*ast.Op).Op, dst, l, r)
		n.Reg = dst
	case ast.Increment:
		c.genIncrement(id)
	case ast.Subscript:
		c.genSubscript(id)
	}
}

func (c *Compiler) genCast(id ast.NodeID) {
	n := c.node(id)
	src := c.child(id, 0)
	sr := c.node(src).Reg
	from, to := c.typeOf(src), n.Type
	switch {
	case decays(from, to):
		dst := c.fn.pool.Temp(types.Pointer)
		c.em.Address(dst, sr)
		c.consume(src)
		n.Reg = dst
	case from.RegisterKind() == to.RegisterKind():
		n.Reg = sr
	default:
		c.consume(src)
		dst := c.result(to.RegisterKind(), sr)
		c.em.Convert(dst, sr)
		n.Reg = dst
	}
}

func (c *Compiler) genIncrement(id ast.NodeID) {
	n := c.node(id)
	d := n.Data.(*ast.IncrementData)
	pool := c.fn.pool
	target := c.node(c.child(id, 0)).Reg
	op := token.Plus
	if d.Decrement {
		op = token.Minus
	}
	one := c.imm(types.IntValue(1))

	if d.Pre {
		if target.Kind == regalloc.Reg {
			c.em.Binary(op, target, target, one)
			n.Reg = target
			return
		}
		tmp := pool.Temp(types.Integer)
		c.em.Binary(op, tmp, target, one)
		c.em.Move(target, tmp)
		n.Reg = tmp
		return
	}

	old := pool.Temp(types.Integer)
	c.em.Move(old, target)
	if target.Kind == regalloc.Reg {
		c.em.Binary(op, target, old, one)
	} else {
		tmp := pool.Temp(types.Integer)
		c.em.Binary(op, tmp, old, one)
		c.em.Move(target, tmp)
		pool.FlagReusable(tmp)
	}
	n.Reg = old
}

func (c *Compiler) genSubscript(id ast.NodeID) {
	n := c.node(id)
	d := n.Data.(*ast.SubscriptData)
	pool := c.fn.pool
	objID, idxID := c.child(id, 0), c.child(id, 1)
	obj, idx := c.node(objID).Reg, c.node(idxID).Reg
	ot := c.typeOf(objID).Base()
	elem := n.Type.Base()

	stride := elem.Size()
	if d.Target == ast.LoopSpan {
		stride = elementStride(ot)
		if idx.Kind == regalloc.Immediate {
			n.Reg = pool.Memory(obj, "", int(idx.Imm.I)*stride, elem)
			c.consume(objID)
			return
		}
	}

	base := pool.Temp(types.Pointer)
	var limit *regalloc.Register
	if d.Target == ast.LoopSpan {
		c.em.Address(base, obj)
		limit = c.imm(types.IntValue(int64(ot.Complex.Len)))
	} else {
		c.em.Move(base, pool.Memory(obj, "", 0, pointerType))
		limit = pool.Memory(obj, "", types.DescriptorSizeOffset, types.IntType)
	}
	if c.feature(config.FeatSafeChecks) {
		c.boundsCheck(idx, limit, n.Tok)
	}

	off := pool.Temp(types.Pointer)
	c.em.Convert(off, idx)
	c.em.Binary(token.Star, off, off, c.imm(ptrImm(stride)))
	c.em.Binary(token.Plus, base, base, off)
	pool.FlagReusable(off)
	c.consume(objID)
	c.consume(idxID)
	n.Reg = pool.Memory(base, "", 0, elem)
}

func (c *Compiler) boundsCheck(idx, limit *regalloc.Register, tok token.Token) {
	pool := c.fn.pool
	bad, ok := c.em.NewLabel("oob"), c.em.NewLabel("in_bounds")
	cond := pool.Temp(types.Integer)
	c.em.Compare(token.Gte, cond, idx, limit)
	next := c.em.NewLabel("bounds_low")
	c.em.Branch(cond, bad, next)
	c.em.Label(next)
	c.em.Compare(token.Lt, cond, idx, c.imm(types.IntValue(0)))
	c.em.Branch(cond, bad, ok)
	pool.FlagReusable(cond)
	c.em.Label(bad)
	c.em.RecordError(rtcheck.IndexOutOfBounds, tok.Line, tok.Column)
	c.em.Jump(c.abortLabel())
	c.em.Label(ok)
}

// divCheck leaves the function with a runtime error when the divisor is zero.
func (c *Compiler) divCheck(divisor *regalloc.Register, tok token.Token) {
	if !c.feature(config.FeatSafeChecks) || divisor.Kind == regalloc.Immediate {
		return
	}
	pool := c.fn.pool
	bad, ok := c.em.NewLabel("div_zero"), c.em.NewLabel("div_ok")
	cond := pool.Temp(types.Integer)
	c.em.Compare(token.EqEq, cond, divisor, c.imm(types.IntValue(0)))
	c.em.Branch(cond, bad, ok)
	pool.FlagReusable(cond)
	c.em.Label(bad)
	c.em.RecordError(rtcheck.DivisionByZero, tok.Line, tok.Column)
	c.em.Jump(c.abortLabel())
	c.em.Label(ok)
}

func (c *Compiler) genBinary(id ast.NodeID) {
	n := c.node(id)
	op := n.Data.(*ast.Op).Op
	lid, rid := c.child(id, 0), c.child(id, 1)
	l, r := c.node(lid).Reg, c.node(rid).Reg
	if n.Type.Is(types.Integer) && (op == token.Slash || op == token.Rem) {
		c.divCheck(r, n.Tok)
	}
	c.consume(lid)
	c.consume(rid)
	dst := c.result(n.Type.RegisterKind(), l)
	c.em.Binary(op, dst, l, r)
	n.Reg = dst
}

// genLogic evaluates && and || with short-cut branches. The right operand
// is only generated on the path that needs it.
func (c *Compiler) genLogic(id ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	op := n.Data.(*ast.Op).Op
	dst := c.fn.pool.Temp(types.Integer)
	lid := c.child(id, 0)
	if err := c.process(CodeGeneration, lid, sc); err != nil {
		return err
	}
	c.em.Compare(token.Neq, dst, c.node(lid).Reg, c.imm(types.IntValue(0)))
	c.consume(lid)

	rhs, end := c.em.NewLabel("logic_rhs"), c.em.NewLabel("logic_end")
	if op == token.AndAnd {
		c.em.Branch(dst, rhs, end)
	} else {
		c.em.Branch(dst, end, rhs)
	}
	c.em.Label(rhs)
	rid := c.child(id, 1)
	if err := c.process(CodeGeneration, rid, sc); err != nil {
		return err
	}
	c.em.Compare(token.Neq, dst, c.node(rid).Reg, c.imm(types.IntValue(0)))
	c.consume(rid)
	c.em.Label(end)
	n.Reg = dst
	return nil
}

func (c *Compiler) genVarRef(id ast.NodeID) {
	n := c.node(id)
	d := n.Data.(*ast.VarRef)
	if d.Origin == ast.Global {
		n.Reg = c.globalReg(d.Symbol)
		return
	}
	r, ok := c.fn.vars[d.Symbol]
	if !ok {
		c.bail(n.Tok, "no storage for %s", d.ID)
	}
	n.Reg = r
}

func (c *Compiler) genBlock(id ast.NodeID, bs *scope.Scope) error {
	n := c.node(id)
	fs := c.fn
	b := n.Data.(*ast.Block)
	var ret *regalloc.Register
	if b.Inlined {
		if !b.ReturnType.IsVoid() {
			ret = fs.pool.Temp(b.ReturnType.RegisterKind())
			if err := fs.pool.Claim(ret, int(id)); err != nil {
				c.bail(n.Tok, "%s", err)
			}
			fs.inlineRet[id] = ret
		}
		fs.inlineEnd[id] = c.em.NewLabel("inline_end")
	}

	fs.pool.PushScope()
	for i := 0; i < c.tree.NumChildren(id); i++ {
		ch := c.child(id, i)
		if err := c.process(CodeGeneration, ch, bs); err != nil {
			return err
		}
		if k := c.node(ch).Kind; k.IsExpression() || k == ast.StatementBlock {
			c.consume(ch)
		}
	}

	if b.Inlined {
		c.em.Label(fs.inlineEnd[id])
		for _, ch := range n.Children {
			if a := c.node(ch); a.Kind == ast.InlinedArgument {
				fs.pool.Release(a.Reg, int(ch))
				c.consume(ch)
			}
		}
		fs.pool.Release(ret, int(id))
	}
	fs.pool.PopScope()
	n.Reg = ret
	return nil
}

// genVarDef gives every name of a memory-backed definition a stack slot and
// initialises it.
func (c *Compiler) genVarDef(id ast.NodeID) {
	n := c.node(id)
	d := n.Data.(*ast.VarDef)
	fs := c.fn
	t := d.Type.Base()
	for _, sym := range d.Symbols {
		ptr := fs.pool.Variable(sym.ID.String(), types.Pointer)
		c.em.StackSlot(ptr, t.Size(), t.Align())
		loc := fs.pool.Memory(ptr, "", 0, t)
		fs.vars[sym] = loc
		c.initMemory(id, loc, t)
	}
	for _, ch := range n.Children {
		c.consume(ch)
	}
}

func (c *Compiler) initMemory(id ast.NodeID, loc *regalloc.Register, t types.TypeInfo) {
	n := c.node(id)
	pool := c.fn.pool
	switch c.initKindOf(id) {
	case initZero:
		c.em.Zero(loc, t.Size())
		c.storeDefaults(loc, t)
	case initCopy:
		c.em.CopyBlock(loc, c.node(n.Children[0]).Reg, t.Size())
	case initView:
		src := n.Children[0]
		st := c.typeOf(src)
		sr := c.node(src).Reg
		if st.Complex == nil || st.Complex.Kind != types.SpanType {
			c.em.CopyBlock(loc, sr, types.DescriptorSize)
			return
		}
		p := pool.Temp(types.Pointer)
		c.em.Address(p, sr)
		c.em.Move(pool.Memory(loc, "", 0, pointerType), p)
		c.em.Move(pool.Memory(loc, "", types.DescriptorSizeOffset, types.IntType), c.imm(types.IntValue(int64(st.Complex.Len))))
		pool.FlagReusable(p)
	case initList:
		if st := t.StructType(); st != nil {
			c.em.Zero(loc, t.Size())
			c.storeDefaults(loc, t)
			for i, ch := range n.Children {
				m := st.Members[i]
				c.em.Move(pool.Memory(loc, "", m.Offset, m.Type), c.node(ch).Reg)
			}
			return
		}
		elem := t.Complex.Elem
		stride := elementStride(t)
		if len(n.Children) == 1 {
			v := c.node(n.Children[0]).Reg
			for i := 0; i < t.Complex.Len; i++ {
				c.em.Move(pool.Memory(loc, "", i*stride, elem), v)
			}
			return
		}
		if len(n.Children) < t.Complex.Len {
			c.em.Zero(loc, t.Size())
		}
		for i, ch := range n.Children {
			c.em.Move(pool.Memory(loc, "", i*stride, elem), c.node(ch).Reg)
		}
	}
}

func (c *Compiler) storeDefaults(loc *regalloc.Register, t types.TypeInfo) {
	defs := make(map[int]types.Value)
	structDefaults(t, 0, defs)
	for _, off := range slices.Sorted(maps.Keys(defs)) {
		v := defs[off]
		c.em.Move(c.fn.pool.Memory(loc, "", off, v.Type()), c.imm(v))
	}
}
