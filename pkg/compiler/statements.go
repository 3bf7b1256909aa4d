package compiler

import (
	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
)

// declareVariable adds a local or global definition made by decl to sc.
func (c *Compiler) declareVariable(decl ast.NodeID, name string, tok token.Token, t types.TypeInfo, sc *scope.Scope) (*types.Symbol, ast.RefOrigin, error) {
	origin := ast.Local
	if sc.Kind == scope.Global {
		origin = ast.Global
	}
	sym := types.NewSymbol(types.NewIdentifier(name), t)
	v := &scope.Variable{Sym: sym, Tok: tok, Origin: origin, ParamIndex: -1, Decl: decl}
	if err := sc.Declare(name, v); err != nil {
		return nil, origin, err
	}
	c.declOf[sym] = decl
	return sym, origin, nil
}

func (c *Compiler) processAssignment(p Pass, id ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	a := n.Data.(*ast.Assign)
	switch p {
	case ComplexTypeParsing:
		if a.Declaration {
			t, err := c.resolveType(a.DeclType, sc, n.Tok)
			if err != nil {
				return err
			}
			if t.Ref {
				return util.Errorf(n.Tok, "references are only allowed as function parameters")
			}
			a.DeclType = t
		}
	case DataAllocation:
		if !a.Declaration {
			break
		}
		if err := c.process(p, c.child(id, 0), sc); err != nil {
			return err
		}
		target := c.node(c.child(id, 1))
		ref := target.Data.(*ast.VarRef)
		sym, origin, err := c.declareVariable(id, ref.ID.String(), target.Tok, a.DeclType, sc)
		if err != nil {
			return err
		}
		ref.Symbol, ref.Origin = sym, origin
		return nil
	case TypeCheck:
		if sc.Kind == scope.Global {
			c.forceFold++
			defer func() { c.forceFold-- }()
		}
		if err := c.checkAssignment(id, sc); err != nil {
			return err
		}
		if sc.Kind == scope.Global {
			return c.recordGlobalAssignment(id)
		}
		return nil
	case CodeGeneration:
		return c.genAssignment(id, sc)
	}
	return c.processChildren(p, id, sc)
}

func (c *Compiler) checkAssignment(id ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	a := n.Data.(*ast.Assign)
	if err := c.process(TypeCheck, c.child(id, 0), sc); err != nil {
		return err
	}
	vt := c.typeOf(c.child(id, 0))
	if vt.IsVoid() {
		return util.Errorf(n.Tok, "Can't assign a void value")
	}
	if a.Declaration {
		sym := c.node(c.child(id, 1)).Data.(*ast.VarRef).Symbol
		if !sym.Resolved {
			if err := sym.Resolve(vt.Base()); err != nil {
				return util.Errorf(n.Tok, "%s", err)
			}
		}
	}
	if err := c.process(TypeCheck, c.child(id, 1), sc); err != nil {
		return err
	}

	target := c.child(id, 1)
	tt, err := c.lvalue(target)
	if err != nil {
		return err
	}
	t := c.typeOf(target)
	if t.Const && !a.Declaration {
		return util.Errorf(n.Tok, "Can't modify const object")
	}
	if a.Op != token.Eq {
		op := a.Op.BinaryOf()
		if !t.IsNumeric() || !vt.IsNumeric() {
			return util.Errorf(n.Tok, "Can't apply %s to %s and %s", a.Op, t, vt)
		}
		if op.IsBitwise() && (!t.Is(types.Integer) || !vt.Is(types.Integer)) {
			return util.Errorf(n.Tok, "Can't apply %s to %s and %s", a.Op, t, vt)
		}
	}
	if t.IsMemoryBacked() {
		if !vt.SameBase(t) {
			return util.Errorf(n.Tok, "Can't assign %s to %s", vt, t)
		}
	} else if err := c.implicitCast(c.child(id, 0), t.Base()); err != nil {
		return err
	}
	a.Target = tt
	n.Type = t.Base()

	if a.Declaration && t.Const {
		if v := c.node(c.child(id, 0)); v.Kind == ast.Immediate {
			c.node(target).Data.(*ast.VarRef).Symbol.SetConstant(v.Value)
		}
	}
	return nil
}

func (c *Compiler) genAssignment(id ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	a := n.Data.(*ast.Assign)
	fs := c.fn
	value := c.child(id, 0)
	if err := c.process(CodeGeneration, value, sc); err != nil {
		return err
	}
	v := c.node(value).Reg

	if a.Declaration {
		sym := c.node(c.child(id, 1)).Data.(*ast.VarRef).Symbol
		t := sym.Type.Base()
		if t.IsMemoryBacked() {
			ptr := fs.pool.Variable(sym.ID.String(), types.Pointer)
			c.em.StackSlot(ptr, t.Size(), t.Align())
			fs.vars[sym] = fs.pool.Memory(ptr, "", 0, t)
		} else {
			fs.vars[sym] = fs.pool.Variable(sym.ID.String(), t.RegisterKind())
		}
	}
	target := c.child(id, 1)
	if err := c.process(CodeGeneration, target, sc); err != nil {
		return err
	}
	dst := c.node(target).Reg
	t := c.typeOf(target).Base()

	switch {
	case a.Op != token.Eq:
		op := a.Op.BinaryOf()
		if t.Is(types.Integer) && (op == token.Slash || op == token.Rem) {
			c.divCheck(v, n.Tok)
		}
		tmp := fs.pool.Temp(t.RegisterKind())
		c.em.Binary(op, tmp, dst, v)
		c.em.Move(dst, tmp)
		fs.pool.FlagReusable(tmp)
	case t.IsMemoryBacked():
		c.em.CopyBlock(dst, v, t.Size())
	default:
		c.em.Move(dst, v)
	}
	c.consume(value)
	n.Reg = dst
	return nil
}

func (c *Compiler) processVarRef(p Pass, id ast.NodeID, sc *scope.Scope) error {
	switch p {
	case DataAllocation:
		return c.bindVarRef(id, sc)
	case SyntaxSugarReplacement:
		if c.node(id).Data.(*ast.VarRef).Origin == ast.Member {
			c.desugarMember(id)
		}
	case TypeCheck:
		return c.checkVarRef(id)
	case RegisterAllocation:
		c.noteRef(id)
	case CodeGeneration:
		c.genVarRef(id)
	}
	return nil
}

// bindVarRef looks the name up. Parameters of an inlined call become
// InlinedParameter nodes and constant template parameters become literals.
func (c *Compiler) bindVarRef(id ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	d := n.Data.(*ast.VarRef)
	if d.Symbol != nil {
		return nil
	}
	v, _ := sc.Lookup(d.ID.String())
	if v == nil {
		return util.Errorf(n.Tok, "Use of undefined variable %s", d.ID)
	}
	switch {
	case v.Arg.IsValid():
		n.Kind = ast.InlinedParameter
		n.Data = &ast.InlinedParam{Index: v.ParamIndex, Name: d.ID.String(), Arg: v.Arg}
		n.Type = v.Sym.Type
	case !v.Decl.IsValid() && v.Sym.Const:
		c.toImmediate(id, v.Sym.Value)
	default:
		d.Symbol, d.Origin, d.ParamIndex, d.Offset = v.Sym, v.Origin, v.ParamIndex, v.Offset
	}
	return nil
}

func (c *Compiler) processVarDef(p Pass, id ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	d := n.Data.(*ast.VarDef)
	switch p {
	case ComplexTypeParsing:
		t, err := c.resolveType(d.Type, sc, n.Tok)
		if err != nil {
			return err
		}
		switch {
		case t.Ref:
			return util.Errorf(n.Tok, "references are only allowed as function parameters")
		case t.IsVoid():
			return util.Errorf(n.Tok, "illegal type void for %s", d.Names[0])
		case t.IsPrimitive() && !t.Is(types.Block):
			d.Type = t
			return c.lowerPrimitiveDef(id, sc)
		}
		d.Type = t
	case DataAllocation:
		if err := c.processChildren(p, id, sc); err != nil {
			return err
		}
		for i, name := range d.Names {
			sym, _, err := c.declareVariable(id, name, d.Toks[i], d.Type, sc)
			if err != nil {
				return err
			}
			d.Symbols = append(d.Symbols, sym)
		}
		return nil
	case TypeCheck:
		if sc.Kind == scope.Global {
			c.forceFold++
			defer func() { c.forceFold-- }()
		}
		if err := c.processChildren(p, id, sc); err != nil {
			return err
		}
		if err := c.checkInit(id); err != nil {
			return err
		}
		if sc.Kind == scope.Global {
			return c.recordGlobalDef(id)
		}
		return nil
	case CodeGeneration:
		if err := c.processChildren(p, id, sc); err != nil {
			return err
		}
		c.genVarDef(id)
		return nil
	}
	return c.processChildren(p, id, sc)
}

// lowerPrimitiveDef rewrites a definition whose type turned out to be a
// scalar (a template parameter bound to float, say) into declaring
// assignments, one per name.
func (c *Compiler) lowerPrimitiveDef(id ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	d := n.Data.(*ast.VarDef)
	if len(n.Children) > 1 {
		return util.Errorf(n.Tok, "too many initialisers for %s", d.Type)
	}
	var init ast.NodeID
	if len(n.Children) == 1 {
		init = n.Children[0]
	}

	parent := c.tree.Parent(id)
	at := c.tree.IndexInParent(id)
	var first ast.NodeID
	for i, name := range d.Names {
		value := init
		if i > 0 || !value.IsValid() {
			value = c.newImmediate(d.Toks[i], types.Value{Kind: d.Type.Kind})
		}
		target := c.tree.New(ast.VariableReference, d.Toks[i], &ast.VarRef{ID: types.NewIdentifier(name), ParamIndex: -1})
		assign := c.tree.New(ast.Assignment, d.Toks[i], &ast.Assign{Op: token.Eq, Declaration: true, DeclType: d.Type}, value, target)
		if i == 0 {
			c.tree.Replace(id, assign)
			first = assign
			continue
		}
		c.tree.InsertChild(parent, at+i, assign)
	}
	return c.process(ComplexTypeParsing, first, sc)
}

type initKind uint8

const (
	initZero initKind = iota
	initCopy
	initView
	initList
)

func (c *Compiler) initKindOf(id ast.NodeID) initKind {
	n := c.node(id)
	t := n.Data.(*ast.VarDef).Type
	switch {
	case len(n.Children) == 0:
		return initZero
	case len(n.Children) == 1 && c.typeOf(n.Children[0]).SameBase(t):
		return initCopy
	case len(n.Children) == 1 && isView(t, c.typeOf(n.Children[0])):
		return initView
	}
	return initList
}

// isView reports whether a dyn or block descriptor of type t can point at
// storage of type src.
func isView(t, src types.TypeInfo) bool {
	if !(t.Is(types.Block) || (t.Complex != nil && t.Complex.Kind == types.DynType)) {
		return false
	}
	if !src.IsIndexable() {
		return false
	}
	te, _ := t.ElementType()
	se, _ := src.ElementType()
	return te.SameBase(se)
}

func (c *Compiler) checkInit(id ast.NodeID) error {
	n := c.node(id)
	t := n.Data.(*ast.VarDef).Type
	kind := c.initKindOf(id)
	if kind != initList {
		return nil
	}

	switch {
	case t.Complex != nil && t.Complex.Kind == types.SpanType:
		if len(n.Children) > t.Complex.Len {
			return util.Errorf(n.Tok, "too many initialisers for %s", t)
		}
		elem := t.Complex.Elem
		for _, ch := range append([]ast.NodeID(nil), n.Children...) {
			if elem.IsMemoryBacked() || !c.typeOf(ch).IsNumeric() {
				return util.Errorf(c.node(ch).Tok, "Can't initialise %s with %s", elem, c.typeOf(ch))
			}
			if err := c.implicitCast(ch, elem); err != nil {
				return err
			}
		}
	case t.StructType() != nil:
		st := t.StructType()
		if len(n.Children) > len(st.Members) {
			return util.Errorf(n.Tok, "too many initialisers for %s", t)
		}
		for i, ch := range append([]ast.NodeID(nil), n.Children...) {
			mt := st.Members[i].Type
			if mt.IsMemoryBacked() || !c.typeOf(ch).IsNumeric() {
				return util.Errorf(c.node(ch).Tok, "Can't initialise member %s of %s with %s", st.Members[i].Name, st, c.typeOf(ch))
			}
			if err := c.implicitCast(ch, mt); err != nil {
				return err
			}
		}
	default:
		return util.Errorf(n.Tok, "Can't initialise %s with %s", t, c.typeOf(n.Children[0]))
	}
	return nil
}

func (c *Compiler) processReturn(p Pass, id ast.NodeID, sc *scope.Scope) error {
	if err := c.processChildren(p, id, sc); err != nil {
		return err
	}
	switch p {
	case TypeCheck:
		return c.checkReturn(id)
	case CodeGeneration:
		c.genReturn(id)
	}
	return nil
}

// returnTarget finds what a return statement leaves: the nearest inlined
// block, or the function.
func (c *Compiler) returnTarget(id ast.NodeID) (ast.NodeID, types.TypeInfo) {
	for p := c.tree.Parent(id); p.IsValid(); p = c.tree.Parent(p) {
		switch n := c.node(p); n.Kind {
		case ast.StatementBlock:
			if b := n.Data.(*ast.Block); b.Inlined {
				return p, b.ReturnType
			}
		case ast.Function, ast.TemplatedFunction:
			return p, n.Data.(*ast.Func).Sig.Return
		}
	}
	return ast.NoNode, types.VoidType
}

func (c *Compiler) checkReturn(id ast.NodeID) error {
	n := c.node(id)
	_, want := c.returnTarget(id)
	value := c.child(id, 0)
	switch {
	case !value.IsValid() && want.IsVoid():
		return nil
	case !value.IsValid():
		return util.Errorf(n.Tok, "return type mismatch: void expected: %s", want)
	case want.IsVoid():
		return util.Errorf(n.Tok, "return type mismatch: %s expected: void", c.typeOf(value))
	}
	got := c.typeOf(value)
	if got.SameBase(want) {
		return nil
	}
	if (got.IsNumeric() && want.IsNumeric()) || decays(got, want) {
		return c.implicitCast(value, want.Base())
	}
	return util.Errorf(n.Tok, "return type mismatch: %s expected: %s", got, want)
}

func (c *Compiler) genReturn(id ast.NodeID) {
	fs := c.fn
	value := c.child(id, 0)
	var v *regalloc.Register
	if value.IsValid() {
		v = c.node(value).Reg
	}
	target, _ := c.returnTarget(id)
	if c.node(target).Kind == ast.StatementBlock {
		if ret := fs.inlineRet[target]; ret != nil && v != nil {
			c.em.Move(ret, v)
		}
		if value.IsValid() {
			c.consume(value)
		}
		c.em.Jump(fs.inlineEnd[target])
		return
	}
	c.em.Return(v)
	if value.IsValid() {
		c.consume(value)
	}
}

func (c *Compiler) processControlFlow(p Pass, id ast.NodeID, sc *scope.Scope) error {
	switch p {
	case TypeCheck:
	walk:
		for a := c.tree.Parent(id); a.IsValid(); a = c.tree.Parent(a) {
			switch n := c.node(a); n.Kind {
			case ast.Loop, ast.WhileLoop:
				return nil
			case ast.StatementBlock:
				if n.Data.(*ast.Block).Inlined {
					break walk
				}
			case ast.Function, ast.TemplatedFunction:
				break walk
			}
		}
		return util.Errorf(c.node(id).Tok, "a break/continue may only be used within a loop")
	case CodeGeneration:
		l := c.fn.loops[len(c.fn.loops)-1]
		if c.node(id).Data.(*ast.Flow).Break {
			c.em.Jump(l.brk)
		} else {
			c.em.Jump(l.cont)
		}
	}
	return nil
}

func (c *Compiler) processIf(p Pass, id ast.NodeID, sc *scope.Scope) error {
	switch p {
	case TypeCheck:
		if err := c.processChildren(p, id, sc); err != nil {
			return err
		}
		return c.checkCondition(c.child(id, 0))
	case CodeGeneration:
		return c.genIf(id, sc)
	}
	return c.processChildren(p, id, sc)
}

func (c *Compiler) genIf(id ast.NodeID, sc *scope.Scope) error {
	cond, then, els := c.child(id, 0), c.child(id, 1), c.child(id, 2)
	if cn := c.node(cond); cn.Kind == ast.Immediate {
		switch {
		case cn.Value.IsTrue():
			return c.process(CodeGeneration, then, sc)
		case els.IsValid():
			return c.process(CodeGeneration, els, sc)
		}
		return nil
	}

	if err := c.process(CodeGeneration, cond, sc); err != nil {
		return err
	}
	thenL, end := c.em.NewLabel("if_true"), c.em.NewLabel("if_end")
	elseL := end
	if els.IsValid() {
		elseL = c.em.NewLabel("if_false")
	}
	c.em.Branch(c.node(cond).Reg, thenL, elseL)
	c.consume(cond)

	c.em.Label(thenL)
	if err := c.process(CodeGeneration, then, sc); err != nil {
		return err
	}
	if els.IsValid() {
		if !c.em.Terminated() {
			c.em.Jump(end)
		}
		c.em.Label(elseL)
		if err := c.process(CodeGeneration, els, sc); err != nil {
			return err
		}
	}
	c.em.Label(end)
	return nil
}

func (c *Compiler) processTernary(p Pass, id ast.NodeID, sc *scope.Scope) error {
	switch p {
	case TypeCheck:
		if err := c.processChildren(p, id, sc); err != nil {
			return err
		}
		return c.checkTernary(id)
	case CodeGeneration:
		return c.genTernary(id, sc)
	}
	return c.processChildren(p, id, sc)
}

func (c *Compiler) checkTernary(id ast.NodeID) error {
	n := c.node(id)
	if err := c.checkCondition(c.child(id, 0)); err != nil {
		return err
	}
	ta, tb := c.typeOf(c.child(id, 1)), c.typeOf(c.child(id, 2))
	if ta.IsMemoryBacked() || tb.IsMemoryBacked() || ta.IsVoid() || tb.IsVoid() {
		return util.Errorf(n.Tok, "ternary operator doesn't support %s and %s", ta, tb)
	}
	if err := c.implicitCast(c.child(id, 2), ta.Base()); err != nil {
		return err
	}
	n.Type = ta.Base()

	if cond := c.node(c.child(id, 0)); cond.Kind == ast.Immediate && c.canFold() {
		pick := c.child(id, 2)
		if cond.Value.IsTrue() {
			pick = c.child(id, 1)
		}
		if pn := c.node(pick); pn.Kind == ast.Immediate {
			c.toImmediate(id, pn.Value)
		}
	}
	return nil
}

func (c *Compiler) genTernary(id ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	dst := c.fn.pool.Temp(n.Type.RegisterKind())
	cond := c.child(id, 0)
	if err := c.process(CodeGeneration, cond, sc); err != nil {
		return err
	}
	aL, bL, end := c.em.NewLabel("tern_true"), c.em.NewLabel("tern_false"), c.em.NewLabel("tern_end")
	c.em.Branch(c.node(cond).Reg, aL, bL)
	c.consume(cond)

	for i, l := range []string{aL, bL} {
		c.em.Label(l)
		ch := c.child(id, i+1)
		if err := c.process(CodeGeneration, ch, sc); err != nil {
			return err
		}
		c.em.Move(dst, c.node(ch).Reg)
		c.consume(ch)
		if i == 0 {
			c.em.Jump(end)
		}
	}
	c.em.Label(end)
	n.Reg = dst
	return nil
}

func (c *Compiler) processBinary(p Pass, id ast.NodeID, sc *scope.Scope) error {
	switch p {
	case TypeCheck:
		if err := c.processChildren(p, id, sc); err != nil {
			return err
		}
		return c.checkBinary(id)
	case CodeGeneration:
		if c.node(id).Data.(*ast.Op).Op.IsLogic() {
			return c.genLogic(id, sc)
		}
		if err := c.processChildren(p, id, sc); err != nil {
			return err
		}
		c.genBinary(id)
		return nil
	}
	return c.processChildren(p, id, sc)
}
