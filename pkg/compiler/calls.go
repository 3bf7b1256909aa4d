package compiler

import (
	"math"
	"strings"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
)

// builtinArity lists the Math functions and their argument counts.
var builtinArity = map[string]int{
	"sin": 1, "cos": 1, "sqrt": 1, "exp": 1, "floor": 1, "abs": 1,
	"pow": 2, "min": 2, "max": 2,
}

func (c *Compiler) processCall(p Pass, id ast.NodeID, sc *scope.Scope) error {
	switch p {
	case SyntaxSugarReplacement:
		if err := c.processChildren(p, id, sc); err != nil {
			return err
		}
		c.addImplicitThis(id, sc)
		return nil
	case TypeCheck:
		if err := c.processChildren(p, id, sc); err != nil {
			return err
		}
		return c.resolveCall(id, sc)
	case CodeGeneration:
		return c.genCall(id, sc)
	}
	return c.processChildren(p, id, sc)
}

func isBuiltin(call *ast.Call) bool {
	return !call.HasObject && call.ID.Parent().String() == "Math"
}

func (c *Compiler) argTypes(id ast.NodeID) []types.TypeInfo {
	call := c.node(id).Data.(*ast.Call)
	var out []types.TypeInfo
	for i := call.FirstArg(); i < c.tree.NumChildren(id); i++ {
		out = append(out, c.typeOf(c.child(id, i)))
	}
	return out
}

func formatTypes(ts []types.TypeInfo) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func (c *Compiler) resolveCall(id ast.NodeID, sc *scope.Scope) error {
	call := c.node(id).Data.(*ast.Call)
	args := c.argTypes(id)
	for i, t := range args {
		if t.IsVoid() {
			return util.Errorf(c.node(c.child(id, call.FirstArg()+i)).Tok, "Can't pass a void value")
		}
	}
	switch {
	case isBuiltin(call):
		return c.resolveBuiltin(id, args)
	case call.HasObject:
		return c.resolveMethod(id, sc, args)
	}
	return c.resolveFree(id, sc, args)
}

func (c *Compiler) resolveBuiltin(id ast.NodeID, args []types.TypeInfo) error {
	n := c.node(id)
	call := n.Data.(*ast.Call)
	name := call.ID.Base()
	arity, ok := builtinArity[name]
	if !ok {
		return util.Errorf(n.Tok, "Can't find function %s", call.ID)
	}
	if len(args) != arity {
		return util.Errorf(n.Tok, "no matching function for call to %s(%s)", call.ID, formatTypes(args))
	}

	intOK := name == "abs" || name == "min" || name == "max"
	t := types.IntType
	for _, a := range args {
		if !a.IsNumeric() {
			return util.Errorf(n.Tok, "no matching function for call to %s(%s)", call.ID, formatTypes(args))
		}
		switch {
		case a.Is(types.Double):
			t = types.DoubleType
		case a.Is(types.Float) && !t.Is(types.Double):
			t = types.FloatType
		}
	}
	if t.Is(types.Integer) && !intOK {
		t = types.FloatType
	}
	for i := range args {
		if err := c.implicitCast(c.child(id, i), t); err != nil {
			return err
		}
	}
	call.Type = ast.CallBuiltin
	n.Type = t

	if !c.canFold() {
		return nil
	}
	vals := make([]types.Value, arity)
	for i := range vals {
		ch := c.node(c.child(id, i))
		if ch.Kind != ast.Immediate {
			return nil
		}
		vals[i] = ch.Value
	}
	c.toImmediate(id, foldBuiltin(name, t, vals))
	return nil
}

func foldBuiltin(name string, t types.TypeInfo, v []types.Value) types.Value {
	if t.Is(types.Integer) {
		a := v[0].I
		switch name {
		case "abs":
			if a < 0 {
				a = -a
			}
		case "min":
			a = min(a, v[1].I)
		case "max":
			a = max(a, v[1].I)
		}
		return types.IntValue(a)
	}
	x := v[0].ToDouble()
	var r float64
	switch name {
	case "sin":
		r = math.Sin(x)
	case "cos":
		r = math.Cos(x)
	case "sqrt":
		r = math.Sqrt(x)
	case "exp":
		r = math.Exp(x)
	case "floor":
		r = math.Floor(x)
	case "abs":
		r = math.Abs(x)
	case "pow":
		r = math.Pow(x, v[1].ToDouble())
	case "min":
		r = math.Min(x, v[1].ToDouble())
	case "max":
		r = math.Max(x, v[1].ToDouble())
	}
	return types.DoubleValue(r).Cast(t.Kind)
}

func (c *Compiler) resolveMethod(id ast.NodeID, sc *scope.Scope, args []types.TypeInfo) error {
	n := c.node(id)
	call := n.Data.(*ast.Call)
	ot := c.typeOf(c.child(id, 0))
	name := call.ID.Base()

	if name == "size" && len(args) == 0 && ot.IsIndexable() {
		if ot.Complex != nil && ot.Complex.Kind == types.SpanType {
			c.toImmediate(id, types.IntValue(int64(ot.Complex.Len)))
			return nil
		}
		call.Type = ast.CallBuiltin
		n.Type = types.IntType
		return nil
	}

	st := ot.StructType()
	if st == nil && ot.Complex != nil && ot.Complex.Kind == types.PointerType {
		st = ot.Complex.Elem.StructType()
	}
	if st == nil {
		return util.Errorf(n.Tok, "Can't call %s on %s", name, ot)
	}
	methods := st.Method(name)
	if len(methods) == 0 {
		return util.Errorf(n.Tok, "%s is not a member of %s", name, st)
	}
	var fallback []*types.Signature
	for _, sig := range methods {
		exact, ok := sig.Match(args)
		if exact {
			return c.bindCall(id, sig, c.decls[sig], sc)
		}
		if ok {
			fallback = append(fallback, sig)
		}
	}
	switch len(fallback) {
	case 0:
		return util.Errorf(n.Tok, "no matching function for call to %s(%s)", methods[0].ID, formatTypes(args))
	case 1:
		return c.bindCall(id, fallback[0], c.decls[fallback[0]], sc)
	}
	return util.Errorf(n.Tok, "ambiguous call to %s(%s)", methods[0].ID, formatTypes(args))
}

// resolveFree picks the callee of a plain call: an exact overload first,
// then fixed templates, then variadic templates, then an overload that
// needs numeric conversions.
func (c *Compiler) resolveFree(id ast.NodeID, sc *scope.Scope, args []types.TypeInfo) error {
	n := c.node(id)
	call := n.Data.(*ast.Call)
	name := call.ID.Base()
	funcs := sc.Functions(name)
	defs := sc.Templates(name)
	if len(funcs) == 0 && len(defs) == 0 {
		return util.Errorf(n.Tok, "Can't find function %s", call.ID)
	}

	var fallback []*scope.FuncEntry
	if len(call.TemplateArgs) == 0 {
		for _, f := range funcs {
			exact, ok := f.Sig.Match(args)
			if exact {
				return c.bindCall(id, f.Sig, f.Decl, sc)
			}
			if ok {
				fallback = append(fallback, f)
			}
		}
	}

	if len(defs) > 0 {
		explicit, err := c.resolveArgs(call.TemplateArgs, sc, n.Tok)
		if err != nil {
			return err
		}
		for _, variadic := range []bool{false, true} {
			var best *candidate
			for _, def := range defs {
				if c.templateOf(def).IsVariadic() != variadic {
					continue
				}
				cand, ok := c.tryTemplate(def, explicit, args, n.Tok)
				if !ok {
					continue
				}
				if best == nil || (cand.exact && !best.exact) {
					best = cand
				}
			}
			if best == nil {
				continue
			}
			inst, err := c.instantiateFunction(best, n.Tok)
			if err != nil {
				return err
			}
			return c.bindCall(id, c.node(inst).Data.(*ast.Func).Sig, inst, sc)
		}
	}

	switch len(fallback) {
	case 0:
		return util.Errorf(n.Tok, "no matching function for call to %s(%s)", call.ID, formatTypes(args))
	case 1:
		return c.bindCall(id, fallback[0].Sig, fallback[0].Decl, sc)
	}
	return util.Errorf(n.Tok, "ambiguous call to %s(%s)", call.ID, formatTypes(args))
}

// bindCall records the callee and converts the arguments to its parameter
// types.
func (c *Compiler) bindCall(id ast.NodeID, sig *types.Signature, target ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	call := n.Data.(*ast.Call)
	if target.IsValid() {
		if fn := c.node(target).Data.(*ast.Func); fn.Failed {
			return util.Errorf(n.Tok, "%s failed to compile", sig)
		}
	}
	call.Sig, call.Target = sig, target
	call.Type = ast.CallStatic
	if sig.Member {
		call.Type = ast.CallMember
	}
	n.Type = sig.Return.Base()

	first := call.FirstArg()
	for i, p := range sig.Params {
		aid := c.child(id, first+i)
		at := c.typeOf(aid)
		switch {
		case p.Type.Ref:
			if _, err := c.lvalue(aid); err != nil {
				return err
			}
			if at.Const && !p.Type.Const {
				return util.Errorf(c.node(aid).Tok, "Can't modify const object")
			}
		case p.Type.IsMemoryBacked():
			if !at.SameBase(p.Type) {
				return util.Errorf(c.node(aid).Tok, "Can't pass %s as %s", at, p.Type.Base())
			}
		default:
			if err := c.implicitCast(aid, p.Type.Base()); err != nil {
				return err
			}
		}
	}

	if c.shouldInline(id) {
		return c.inlineCall(id, sc)
	}
	return nil
}

func (c *Compiler) genCall(id ast.NodeID, sc *scope.Scope) error {
	if err := c.processChildren(CodeGeneration, id, sc); err != nil {
		return err
	}
	n := c.node(id)
	call := n.Data.(*ast.Call)
	if call.Type == ast.CallBuiltin {
		c.genBuiltin(id)
		return nil
	}
	pool := c.fn.pool

	var dst *regalloc.Register
	if !n.Type.IsVoid() {
		dst = pool.Temp(n.Type.RegisterKind())
	}
	type writeBack struct{ loc, reg *regalloc.Register }
	var args, scratch []*regalloc.Register
	var back []writeBack

	if call.HasObject {
		obj := c.node(c.child(id, 0)).Reg
		if obj.Kind == regalloc.Memory {
			this := pool.Temp(types.Pointer)
			c.em.Address(this, obj)
			args = append(args, this)
			scratch = append(scratch, this)
		} else {
			args = append(args, obj)
		}
	}
	first := call.FirstArg()
	for i, p := range call.Sig.Params {
		r := c.node(c.child(id, first+i)).Reg
		switch {
		case p.Type.Ref && r.Kind == regalloc.Memory:
			a := pool.Temp(types.Pointer)
			c.em.Address(a, r)
			args = append(args, a)
			scratch = append(scratch, a)
		case p.Type.Ref:
			// A variable living in a register is passed through a stack
			// copy that is read back after the call.
			t := p.Type.Base()
			slot := pool.Temp(types.Pointer)
			c.em.StackSlot(slot, t.Size(), t.Align())
			loc := pool.Memory(slot, "", 0, t)
			c.em.Move(loc, r)
			args = append(args, slot)
			back = append(back, writeBack{loc, r})
			scratch = append(scratch, slot)
		default:
			args = append(args, r)
		}
	}

	c.em.Call(dst, call.Sig.Symbol(), args)
	for _, w := range back {
		c.em.Move(w.reg, w.loc)
	}
	for _, r := range scratch {
		pool.FlagReusable(r)
	}
	for _, ch := range c.node(id).Children {
		c.consume(ch)
	}
	n.Reg = dst
	return nil
}

func (c *Compiler) genBuiltin(id ast.NodeID) {
	n := c.node(id)
	call := n.Data.(*ast.Call)
	pool := c.fn.pool
	name := call.ID.Base()
	t := n.Type

	if call.HasObject {
		// size() of a dyn or block reads the descriptor.
		obj := c.child(id, 0)
		n.Reg = pool.Memory(c.node(obj).Reg, "", types.DescriptorSizeOffset, types.IntType)
		return
	}

	var args []*regalloc.Register
	for _, ch := range n.Children {
		args = append(args, c.node(ch).Reg)
	}
	dst := pool.Temp(t.RegisterKind())

	switch {
	case t.Is(types.Integer) && (name == "min" || name == "max"):
		op := token.Lt
		if name == "max" {
			op = token.Gt
		}
		cond := pool.Temp(types.Integer)
		c.em.Compare(op, cond, args[0], args[1])
		c.em.Move(dst, args[1])
		take, end := c.em.NewLabel(name+"_lhs"), c.em.NewLabel(name+"_end")
		c.em.Branch(cond, take, end)
		pool.FlagReusable(cond)
		c.em.Label(take)
		c.em.Move(dst, args[0])
		c.em.Label(end)
	default:
		sym := name
		if !t.Is(types.Integer) {
			switch name {
			case "abs":
				sym = "fabs"
			case "min":
				sym = "fmin"
			case "max":
				sym = "fmax"
			}
			if t.Is(types.Float) {
				sym += "f"
			}
		}
		c.em.CallExtern(dst, sym, args)
	}
	for _, ch := range n.Children {
		c.consume(ch)
	}
	n.Reg = dst
}
