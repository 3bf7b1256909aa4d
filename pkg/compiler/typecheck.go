package compiler

import (
	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
)

func (c *Compiler) canFold() bool {
	return c.forceFold > 0 || c.feature(config.FeatFold)
}

// toImmediate turns id into a constant in place so that every reference to
// the node stays valid.
func (c *Compiler) toImmediate(id ast.NodeID, v types.Value) {
	n := c.node(id)
	for _, ch := range n.Children {
		c.node(ch).Parent = ast.NoNode
	}
	n.Kind = ast.Immediate
	n.Children = nil
	n.Data = nil
	n.Type = v.Type()
	n.Const = true
	n.Value = v
}

func (c *Compiler) isImmediate(id ast.NodeID) bool {
	return c.node(id).Kind == ast.Immediate
}

// isWriteTarget reports whether id is written by its parent.
func (c *Compiler) isWriteTarget(id ast.NodeID) bool {
	p := c.tree.Parent(id)
	if !p.IsValid() {
		return false
	}
	switch c.node(p).Kind {
	case ast.Assignment:
		return c.child(p, 1) == id
	case ast.Increment:
		return true
	}
	return false
}

// implicitCast converts the value of id to t. Numeric mismatches get a Cast
// node and a warning. Literals are converted in place; one that loses its
// value still warns, and keeps its Cast node when folding is off.
func (c *Compiler) implicitCast(id ast.NodeID, t types.TypeInfo) error {
	n := c.node(id)
	if n.Kind != ast.Immediate || !n.Type.IsNumeric() || !t.IsNumeric() || n.Type.SameBase(t) {
		return c.castOperand(id, t)
	}
	v := n.Value.Cast(t.Kind)
	if v.Cast(n.Value.Kind) != n.Value {
		if !c.canFold() || !c.feature(config.FeatImplicitCast) {
			return c.castOperand(id, t)
		}
		c.reporter.Warn(config.WarnImplicitCast, n.Tok, "implicit cast from %s to %s changes %s to %s", n.Type.Base(), t.Base(), n.Value, v)
	}
	c.toImmediate(id, v)
	return nil
}

// castOperand is implicitCast without the literal shortcut. Operands of
// binary and compare nodes always go through a Cast node.
func (c *Compiler) castOperand(id ast.NodeID, t types.TypeInfo) error {
	n := c.node(id)
	from := n.Type
	if from.SameBase(t) {
		return nil
	}
	if decays(from, t) {
		c.wrapCast(id, t.Base())
		return nil
	}
	if !from.IsNumeric() || !t.IsNumeric() {
		return util.Errorf(n.Tok, "Can't convert %s to %s", from, t)
	}
	if !c.feature(config.FeatImplicitCast) {
		return util.Errorf(n.Tok, "implicit cast from %s to %s is not allowed", from.Base(), t.Base())
	}
	c.reporter.Warn(config.WarnImplicitCast, n.Tok, "implicit cast from %s to %s", from.Base(), t.Base())
	c.wrapCast(id, t.Base())
	return nil
}

func (c *Compiler) wrapCast(id ast.NodeID, t types.TypeInfo) ast.NodeID {
	cast := c.tree.New(ast.Cast, c.node(id).Tok, &ast.CastData{Target: t, Implicit: true})
	c.tree.Replace(id, cast)
	c.tree.AddChild(cast, id)
	c.node(cast).Type = t
	return cast
}

// decays reports whether a span can be passed where a pointer to its
// element is expected.
func decays(from, to types.TypeInfo) bool {
	if from.Complex == nil || from.Complex.Kind != types.SpanType {
		return false
	}
	if to.Complex == nil || to.Complex.Kind != types.PointerType {
		return false
	}
	return from.Complex.Elem.SameBase(to.Complex.Elem)
}

func (c *Compiler) checkCondition(id ast.NodeID) error {
	if t := c.typeOf(id); !t.Is(types.Integer) {
		return util.Errorf(c.node(id).Tok, "Condition must be boolean expression, got %s", t)
	}
	return nil
}

// checkExpr is the type check of every expression kind without a handler
// of its own. Children have been checked already.
func (c *Compiler) checkExpr(id ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	switch n.Kind {
	case ast.Cast:
		return c.checkCast(id)
	case ast.Negation:
		t := c.typeOf(c.child(id, 0))
		if !t.IsNumeric() {
			return util.Errorf(n.Tok, "Can't negate %s", t)
		}
		n.Type = t.Base()
		if ch := c.node(c.child(id, 0)); ch.Kind == ast.Immediate && c.canFold() {
			v := ch.Value
			if v.Kind == types.Integer {
				v = types.IntValue(-v.I)
			} else {
				v.F = -v.F
			}
			c.toImmediate(id, v)
		}
	case ast.LogicalNot:
		ch := c.node(c.child(id, 0))
		if !ch.Type.Is(types.Integer) {
			return util.Errorf(n.Tok, "Wrong type for logic operation")
		}
		n.Type = types.IntType
		if ch.Kind == ast.Immediate && c.canFold() {
			c.toImmediate(id, boolValue(!ch.Value.IsTrue()))
		}
	case ast.Compare:
		return c.checkCompare(id)
	case ast.Increment:
		return c.checkIncrement(id)
	case ast.Subscript:
		return c.checkSubscript(id)
	case ast.DotOperator:
		return c.checkDot(id)
	}
	return nil
}

func boolValue(b bool) types.Value {
	if b {
		return types.IntValue(1)
	}
	return types.IntValue(0)
}

func (c *Compiler) checkCast(id ast.NodeID) error {
	n := c.node(id)
	to := n.Data.(*ast.CastData).Target.Base()
	ch := c.node(c.child(id, 0))
	from := ch.Type
	switch {
	case decays(from, to):
	case from.IsNumeric() && to.IsNumeric():
		if ch.Kind == ast.Immediate && c.canFold() {
			c.toImmediate(id, ch.Value.Cast(to.Kind))
			return nil
		}
	default:
		return util.Errorf(n.Tok, "Can't cast %s to %s", from, to)
	}
	n.Type = to
	return nil
}

// checkOperands brings both operands of a binary or compare node to the
// type of the left one.
func (c *Compiler) checkOperands(id ast.NodeID) (types.TypeInfo, error) {
	n := c.node(id)
	op := n.Data.(*ast.Op).Op
	lt, rt := c.typeOf(c.child(id, 0)), c.typeOf(c.child(id, 1))
	if !lt.IsNumeric() || !rt.IsNumeric() {
		return lt, util.Errorf(n.Tok, "Can't apply %s to %s and %s", op, lt, rt)
	}
	if !lt.SameBase(rt) {
		if err := c.castOperand(c.child(id, 1), lt); err != nil {
			return lt, err
		}
	}
	return lt.Base(), nil
}

// constValue is the value of id when it is a literal, possibly behind an
// implicit cast.
func (c *Compiler) constValue(id ast.NodeID) (types.Value, bool) {
	n := c.node(id)
	switch n.Kind {
	case ast.Immediate:
		return n.Value, true
	case ast.Cast:
		if ch := c.node(c.child(id, 0)); ch.Kind == ast.Immediate && n.Type.IsNumeric() {
			return ch.Value.Cast(n.Type.Kind), true
		}
	}
	return types.Value{}, false
}

func (c *Compiler) foldOperands(id ast.NodeID) error {
	if !c.canFold() {
		return nil
	}
	l, lok := c.constValue(c.child(id, 0))
	r, rok := c.constValue(c.child(id, 1))
	if !lok || !rok {
		return nil
	}
	n := c.node(id)
	v, err := types.Fold(n.Data.(*ast.Op).Op, l, r)
	if err != nil {
		return util.Errorf(n.Tok, "%s in constant expression", err)
	}
	c.toImmediate(id, v)
	return nil
}

func (c *Compiler) checkCompare(id ast.NodeID) error {
	if _, err := c.checkOperands(id); err != nil {
		return err
	}
	c.node(id).Type = types.IntType
	return c.foldOperands(id)
}

func (c *Compiler) checkBinary(id ast.NodeID) error {
	n := c.node(id)
	op := n.Data.(*ast.Op).Op
	l, r := c.node(c.child(id, 0)), c.node(c.child(id, 1))

	switch {
	case op.IsLogic():
		if !l.Type.Is(types.Integer) || !r.Type.Is(types.Integer) {
			return util.Errorf(n.Tok, "Wrong type for logic operation")
		}
		n.Type = types.IntType
		if l.Kind == ast.Immediate && c.canFold() {
			t := l.Value.IsTrue()
			if (op == token.OrOr && t) || (op == token.AndAnd && !t) {
				c.toImmediate(id, boolValue(t))
				return nil
			}
		}
		return c.foldOperands(id)
	case op.IsBitwise():
		if !l.Type.Is(types.Integer) || !r.Type.Is(types.Integer) {
			return util.Errorf(n.Tok, "Can't apply %s to %s and %s", op, l.Type, r.Type)
		}
	}

	t, err := c.checkOperands(id)
	if err != nil {
		return err
	}
	n.Type = t
	if rv, ok := c.constValue(c.child(id, 1)); ok && t.Is(types.Integer) && (op == token.Slash || op == token.Rem) && rv.I == 0 {
		return util.Errorf(n.Tok, "division by zero")
	}
	return c.foldOperands(id)
}

func (c *Compiler) checkIncrement(id ast.NodeID) error {
	n := c.node(id)
	ch := c.node(c.child(id, 0))
	if ch.Kind == ast.Increment {
		return util.Errorf(n.Tok, "Can't combine incrementors")
	}
	if !ch.Type.Is(types.Integer) {
		return util.Errorf(n.Tok, "Can't increment non integer variables.")
	}
	if _, err := c.lvalue(c.child(id, 0)); err != nil {
		return err
	}
	if ch.Type.Const {
		return util.Errorf(n.Tok, "Can't modify const object")
	}
	n.Type = types.IntType
	return nil
}

func (c *Compiler) checkSubscript(id ast.NodeID) error {
	n := c.node(id)
	d := n.Data.(*ast.SubscriptData)
	ot := c.typeOf(c.child(id, 0))
	idx := c.node(c.child(id, 1))
	if !ot.IsIndexable() {
		return util.Errorf(n.Tok, "Can't use []-operator on %s", ot)
	}
	if !idx.Type.Is(types.Integer) {
		return util.Errorf(idx.Tok, "illegal index type %s", idx.Type)
	}
	switch {
	case ot.Is(types.Block):
		d.Target = ast.LoopBlock
	case ot.Complex.Kind == types.SpanType:
		d.Target = ast.LoopSpan
	default:
		d.Target = ast.LoopDyn
	}
	if idx.Kind == ast.Immediate {
		i := idx.Value.I
		if i < 0 || (d.Target == ast.LoopSpan && i >= int64(ot.Complex.Len)) {
			return util.Errorf(idx.Tok, "constant index out of bounds: %d", i)
		}
	}
	elem, _ := ot.ElementType()
	n.Type = elem.WithConst(ot.Const)
	return nil
}

func (c *Compiler) checkDot(id ast.NodeID) error {
	n := c.node(id)
	d := n.Data.(*ast.Dot)
	ot := c.typeOf(c.child(id, 0))
	st := ot.StructType()
	if st == nil {
		return util.Errorf(n.Tok, "Can't access member %s of %s", d.Member, ot)
	}
	m, ok := st.Member(d.Member)
	if !ok {
		return util.Errorf(n.Tok, "%s is not a member of %s", d.Member, st)
	}
	d.Offset = m.Offset
	n.Type = m.Type.WithConst(ot.Const || m.Type.Const)
	return nil
}

// lvalue classifies an assignment target.
func (c *Compiler) lvalue(id ast.NodeID) (ast.TargetType, error) {
	n := c.node(id)
	switch n.Kind {
	case ast.VariableReference, ast.InlinedParameter:
		if n.Type.Ref {
			return ast.TargetReference, nil
		}
		return ast.TargetVariable, nil
	case ast.Subscript:
		return ast.TargetSpan, nil
	case ast.DotOperator, ast.PointerAccess:
		return ast.TargetClassMember, nil
	}
	return ast.TargetUnknown, util.Errorf(n.Tok, "Can't assign to this expression")
}

func (c *Compiler) checkVarRef(id ast.NodeID) error {
	n := c.node(id)
	d := n.Data.(*ast.VarRef)
	if d.Symbol == nil {
		return util.Errorf(n.Tok, "Use of undefined variable %s", d.ID)
	}
	if err := d.Symbol.Check(); err != nil {
		return util.Errorf(n.Tok, "%s", err)
	}
	n.Type = d.Symbol.Type
	if d.Symbol.Const && d.Symbol.Value.Kind != types.Void && c.canFold() && !c.isWriteTarget(id) {
		c.toImmediate(id, d.Symbol.Value)
	}
	return nil
}

// checkBlock warns about statements after a return, break or continue and
// about discarded values.
func (c *Compiler) checkBlock(id ast.NodeID) {
	jumped := false
	for _, ch := range c.node(id).Children {
		n := c.node(ch)
		if jumped {
			c.reporter.Warn(config.WarnUnreachableCode, n.Tok, "unreachable code")
			return
		}
		switch n.Kind {
		case ast.ReturnStatement, ast.ControlFlow:
			jumped = true
		case ast.Assignment, ast.Increment, ast.FunctionCall:
		default:
			if n.Kind.IsExpression() {
				c.reporter.Warn(config.WarnUnusedValue, n.Tok, "expression result unused")
			}
		}
	}
}
