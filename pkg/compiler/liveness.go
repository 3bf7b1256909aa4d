package compiler

import (
	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/types"
)

// Liveness is a linear scan in tree order that ignores branches: the last
// reference to a local in scan order is its last use. References inside a
// loop to a variable declared outside of it are never last, and neither is
// any reference to a loop iterator.

// noteRef records id as the latest reference of its symbol.
func (c *Compiler) noteRef(id ast.NodeID) {
	d := c.node(id).Data.(*ast.VarRef)
	if d.Origin != ast.Local || d.Symbol == nil {
		return
	}
	if c.pinned(id, d.Symbol) {
		c.fn.lastRef[d.Symbol] = ast.NoNode
		return
	}
	c.fn.lastRef[d.Symbol] = id
}

func (c *Compiler) pinned(id ast.NodeID, sym *types.Symbol) bool {
	decl := c.declOf[sym]
	if decl.IsValid() && c.node(decl).Kind == ast.Loop {
		return true
	}
	for p := c.tree.Parent(id); p.IsValid(); p = c.tree.Parent(p) {
		switch c.node(p).Kind {
		case ast.Loop, ast.WhileLoop:
			if !c.tree.IsAncestor(p, decl) {
				return true
			}
		case ast.Function, ast.TemplatedFunction:
			return false
		}
	}
	return false
}

func (c *Compiler) finishLiveness() {
	for _, id := range c.fn.lastRef {
		if id.IsValid() {
			c.fn.last[id] = true
			c.lastRefs[id] = true
		}
	}
}

// consume is called by a parent once it has read the value of id. Dead
// temporaries and last-used variables become reusable; registers claimed by
// an enclosing node are left alone.
func (c *Compiler) consume(id ast.NodeID) {
	n := c.node(id)
	switch n.Kind {
	case ast.Assignment:
		c.consume(c.child(id, 1))
		return
	case ast.Increment:
		if r := n.Reg; r != nil && r != c.node(c.child(id, 0)).Reg {
			c.fn.pool.FlagReusable(r)
		}
		c.consume(c.child(id, 0))
		return
	}

	r := n.Reg
	if r == nil {
		return
	}
	pool := c.fn.pool
	switch r.Kind {
	case regalloc.Reg:
		if r.Owner() != 0 {
			return
		}
		if r.IsVariable() {
			if n.Kind == ast.VariableReference && c.fn.last[id] {
				pool.FlagReusable(r)
			}
			return
		}
		pool.FlagReusable(r)
	case regalloc.Memory:
		if b := r.Base; b != nil && b.Kind == regalloc.Reg && !b.IsVariable() && b.Owner() == 0 {
			pool.FlagReusable(b)
		}
	}
}

// result returns the register for the value of an operation on lhs,
// recycling lhs when it just died and holds the same kind.
func (c *Compiler) result(k types.Kind, lhs *regalloc.Register) *regalloc.Register {
	if lhs != nil && lhs.CanBeReused() && lhs.Type == k {
		return c.fn.pool.Reuse(lhs)
	}
	return c.fn.pool.Temp(k)
}
