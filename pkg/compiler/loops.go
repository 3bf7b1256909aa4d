package compiler

import (
	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/rtcheck"
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
)

// selectLoopTarget classifies what a range loop iterates over.
func selectLoopTarget(t types.TypeInfo) ast.LoopTarget {
	switch {
	case t.Is(types.Block):
		return ast.LoopBlock
	case t.Complex == nil:
		return ast.LoopUnknown
	case t.Complex.Kind == types.SpanType:
		return ast.LoopSpan
	case t.Complex.Kind == types.DynType:
		return ast.LoopDyn
	case t.Complex.HasIterator():
		return ast.LoopCustomObject
	}
	return ast.LoopUnknown
}

// loopElement is the type a range loop iterator takes over t.
func loopElement(t types.TypeInfo, lt ast.LoopTarget) (types.TypeInfo, bool) {
	if lt != ast.LoopCustomObject {
		return t.ElementType()
	}
	begin := t.Complex.Method("begin")[0]
	return begin.Return.ElementType()
}

// staticType is the type of id when it is known before type checking.
func (c *Compiler) staticType(id ast.NodeID) (types.TypeInfo, bool) {
	n := c.node(id)
	if n.Kind != ast.VariableReference {
		return n.Type, n.Type.IsResolved() && !n.Type.IsVoid()
	}
	d := n.Data.(*ast.VarRef)
	if d.Symbol == nil || !d.Symbol.Resolved {
		return types.TypeInfo{}, false
	}
	return d.Symbol.Type, true
}

func (c *Compiler) processLoop(p Pass, id ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	d := n.Data.(*ast.LoopData)
	ls := c.blockScope(id, sc)
	target, body := c.child(id, 0), c.child(id, 1)

	switch p {
	case ComplexTypeParsing:
		t, err := c.resolveType(d.IterType, sc, n.Tok)
		if err != nil {
			return err
		}
		d.IterType = t
	case DataAllocation:
		if err := c.process(p, target, sc); err != nil {
			return err
		}
		// Targets without a static type here are settled in TypeCheck.
		if t, ok := c.staticType(target); ok {
			d.Target = selectLoopTarget(t)
		}
		sym := types.NewSymbol(types.NewIdentifier(d.Iterator), d.IterType)
		v := &scope.Variable{Sym: sym, Tok: n.Tok, Origin: ast.Local, ParamIndex: -1, Decl: id}
		if err := ls.Declare(d.Iterator, v); err != nil {
			return err
		}
		c.declOf[sym] = id
		d.Symbol = sym
		return c.process(p, body, ls)
	case TypeCheck:
		if err := c.process(p, target, sc); err != nil {
			return err
		}
		if err := c.checkLoopTarget(id); err != nil {
			return err
		}
		if err := c.process(p, body, ls); err != nil {
			return err
		}
		c.analyseIterator(id)
		return nil
	case CodeGeneration:
		return c.genLoop(id, ls)
	}
	if err := c.process(p, target, sc); err != nil {
		return err
	}
	return c.process(p, body, ls)
}

func (c *Compiler) checkLoopTarget(id ast.NodeID) error {
	n := c.node(id)
	d := n.Data.(*ast.LoopData)
	t := c.typeOf(c.child(id, 0))
	if d.Target == ast.LoopUnknown {
		d.Target = selectLoopTarget(t)
	}
	if d.Target == ast.LoopUnknown {
		return util.Errorf(n.Tok, "Can't deduce loop target type")
	}
	elem, ok := loopElement(t, d.Target)
	if !ok {
		return util.Errorf(n.Tok, "Can't deduce loop target type")
	}
	if d.IterType.IsDynamic() {
		if err := d.Symbol.Resolve(elem.WithConst(t.Const)); err != nil {
			return util.Errorf(n.Tok, "%s", err)
		}
		return nil
	}
	if !d.IterType.SameBase(elem) {
		return util.Errorf(n.Tok, "iterator type mismatch: %s expected: %s", d.IterType.Base(), elem)
	}
	if d.IterType.Ref && t.Const && !d.IterType.Const {
		return util.Errorf(n.Tok, "Can't bind a mutable reference to elements of const %s", t)
	}
	return nil
}

// analyseIterator decides whether the body reads the iterator (load) and
// whether it may change it (store). The self assignment `x = x` counts as
// neither.
func (c *Compiler) analyseIterator(id ast.NodeID) {
	d := c.node(id).Data.(*ast.LoopData)
	sym := d.Symbol
	isIter := func(ref ast.NodeID) bool {
		r, ok := c.node(ref).Data.(*ast.VarRef)
		return ok && c.node(ref).Kind == ast.VariableReference && r.Symbol == sym
	}

	c.tree.Walk(c.child(id, 1), func(ref ast.NodeID) bool {
		if !isIter(ref) {
			return true
		}
		parent := c.tree.Parent(ref)
		pn := c.node(parent)
		switch pn.Kind {
		case ast.Assignment:
			a := pn.Data.(*ast.Assign)
			value, target := c.child(parent, 0), c.child(parent, 1)
			if a.Op == token.Eq && isIter(value) && isIter(target) {
				return true
			}
			if target != ref {
				d.Load = true
				return true
			}
			d.Store = true
			if a.Op != token.Eq {
				d.Load = true
			}
		case ast.Increment, ast.InlinedArgument, ast.DotOperator, ast.Subscript:
			d.Load, d.Store = true, true
		case ast.FunctionCall:
			d.Load = true
			call := pn.Data.(*ast.Call)
			idx := c.tree.IndexInParent(ref)
			if call.HasObject && idx == 0 {
				d.Store = true
				break
			}
			if call.Sig != nil {
				if i := idx - call.FirstArg(); i >= 0 && i < len(call.Sig.Params) && call.Sig.Params[i].Type.Ref {
					d.Store = true
				}
			}
		default:
			d.Load = true
		}
		return true
	})
}

func (c *Compiler) genLoop(id ast.NodeID, ls *scope.Scope) error {
	n := c.node(id)
	d := n.Data.(*ast.LoopData)
	fs := c.fn
	pool := fs.pool

	pool.PushScope()
	tid := c.child(id, 0)
	if err := c.process(CodeGeneration, tid, ls); err != nil {
		return err
	}
	obj := c.node(tid).Reg
	tt := c.typeOf(tid).Base()
	elem := d.Symbol.Type.Base()
	stride := elem.Size()
	if d.Target == ast.LoopSpan {
		stride = elementStride(tt)
	}

	ptr, end := pool.Temp(types.Pointer), pool.Temp(types.Pointer)
	switch d.Target {
	case ast.LoopSpan:
		c.em.Address(ptr, obj)
		c.em.Binary(token.Plus, end, ptr, c.imm(ptrImm(tt.Complex.Len*stride)))
	case ast.LoopDyn, ast.LoopBlock:
		c.em.Move(ptr, pool.Memory(obj, "", 0, pointerType))
		c.loopEnd(end, ptr, pool.Memory(obj, "", types.DescriptorSizeOffset, types.IntType), stride)
	case ast.LoopCustomObject:
		this := pool.Temp(types.Pointer)
		c.em.Address(this, obj)
		st := tt.Complex
		c.em.Call(ptr, st.Method("begin")[0].Symbol(), []*regalloc.Register{this})
		size := pool.Temp(types.Integer)
		c.em.Call(size, st.Method("size")[0].Symbol(), []*regalloc.Register{this})
		c.loopEnd(end, ptr, size, stride)
		pool.FlagReusable(this)
		pool.FlagReusable(size)
	}
	c.consume(tid)

	loc := pool.Memory(ptr, "", 0, elem)
	iter := loc
	if !d.IterType.Ref && !elem.IsMemoryBacked() {
		iter = pool.Variable(d.Iterator, elem.RegisterKind())
	}
	fs.vars[d.Symbol] = iter

	top, bodyL := c.em.NewLabel("loop"), c.em.NewLabel("loop_body")
	cont, exit := c.em.NewLabel("loop_next"), c.em.NewLabel("loop_end")
	c.em.Label(top)
	cond := pool.Temp(types.Integer)
	c.em.Compare(token.Lt, cond, ptr, end)
	c.em.Branch(cond, bodyL, exit)
	pool.FlagReusable(cond)

	c.em.Label(bodyL)
	if iter != loc && d.Load {
		c.em.Move(iter, loc)
	}
	fs.loops = append(fs.loops, loopLabels{brk: exit, cont: cont})
	err := c.process(CodeGeneration, c.child(id, 1), ls)
	fs.loops = fs.loops[:len(fs.loops)-1]
	if err != nil {
		return err
	}

	c.em.Label(cont)
	if iter != loc && d.Store {
		c.em.Move(loc, iter)
	}
	c.em.Binary(token.Plus, ptr, ptr, c.imm(ptrImm(stride)))
	c.em.Jump(top)
	c.em.Label(exit)
	pool.PopScope()
	return nil
}

// loopEnd sets end to ptr + count*stride.
func (c *Compiler) loopEnd(end, ptr, count *regalloc.Register, stride int) {
	wide := c.fn.pool.Temp(types.Pointer)
	c.em.Convert(wide, count)
	c.em.Binary(token.Star, wide, wide, c.imm(ptrImm(stride)))
	c.em.Binary(token.Plus, end, ptr, wide)
	c.fn.pool.FlagReusable(wide)
}

func (c *Compiler) processWhile(p Pass, id ast.NodeID, sc *scope.Scope) error {
	switch p {
	case TypeCheck:
		// A constant condition is caught whether or not folding is enabled.
		c.forceFold++
		err := c.process(p, c.child(id, 0), sc)
		c.forceFold--
		if err != nil {
			return err
		}
		cond := c.child(id, 0)
		if err := c.checkCondition(cond); err != nil {
			return err
		}
		if cn := c.node(cond); cn.Kind == ast.Immediate && cn.Value.IsTrue() {
			return util.Errorf(cn.Tok, "endless loop detected")
		}
		return c.process(p, c.child(id, 1), sc)
	case CodeGeneration:
		return c.genWhile(id, sc)
	}
	return c.processChildren(p, id, sc)
}

func (c *Compiler) genWhile(id ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	fs := c.fn
	pool := fs.pool
	cond := c.child(id, 0)
	if cn := c.node(cond); cn.Kind == ast.Immediate && !cn.Value.IsTrue() {
		return nil
	}

	var counter *regalloc.Register
	if c.feature(config.FeatSafeChecks) {
		counter = pool.Temp(types.Integer)
		c.em.Move(counter, c.imm(types.IntValue(0)))
	}
	top, bodyL, end := c.em.NewLabel("while"), c.em.NewLabel("while_body"), c.em.NewLabel("while_end")
	c.em.Label(top)
	if err := c.process(CodeGeneration, cond, sc); err != nil {
		return err
	}
	c.em.Branch(c.node(cond).Reg, bodyL, end)
	c.consume(cond)

	c.em.Label(bodyL)
	if counter != nil {
		c.em.Binary(token.Plus, counter, counter, c.imm(types.IntValue(1)))
		over := pool.Temp(types.Integer)
		c.em.Compare(token.Gt, over, counter, c.imm(types.IntValue(int64(c.cfg.LoopLimit))))
		bad, ok := c.em.NewLabel("while_limit"), c.em.NewLabel("while_ok")
		c.em.Branch(over, bad, ok)
		pool.FlagReusable(over)
		c.em.Label(bad)
		c.em.RecordError(rtcheck.WhileLoop, n.Tok.Line, n.Tok.Column)
		c.em.Jump(end)
		c.em.Label(ok)
	}

	fs.loops = append(fs.loops, loopLabels{brk: end, cont: top})
	err := c.process(CodeGeneration, c.child(id, 1), sc)
	fs.loops = fs.loops[:len(fs.loops)-1]
	if err != nil {
		return err
	}
	if !c.em.Terminated() {
		c.em.Jump(top)
	}
	c.em.Label(end)
	if counter != nil {
		pool.FlagReusable(counter)
	}
	return nil
}
