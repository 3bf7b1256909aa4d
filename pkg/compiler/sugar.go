package compiler

import (
	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/types"
)

func thisType(st *types.Complex) types.TypeInfo {
	return types.FromComplex(types.NewPointer(types.FromComplex(st)))
}

// desugarMember rewrites a bare member name inside a member function into
// an access through the this pointer. The node keeps its id.
func (c *Compiler) desugarMember(id ast.NodeID) {
	n := c.node(id)
	d := n.Data.(*ast.VarRef)
	sym := d.Symbol

	this := c.tree.New(ast.ThisPointer, n.Tok, nil)
	c.node(this).Type = thisType(c.classOf(sym))
	mem := c.tree.New(ast.MemoryReference, n.Tok, &ast.MemRef{Offset: d.Offset}, this)
	c.node(mem).Type = sym.Type

	n.Kind = ast.PointerAccess
	n.Data = nil
	n.Type = sym.Type
	c.tree.AddChild(id, mem)
}

// addImplicitThis turns an unqualified call to a method of the enclosing
// class into a call on the this pointer.
func (c *Compiler) addImplicitThis(id ast.NodeID, sc *scope.Scope) {
	n := c.node(id)
	call := n.Data.(*ast.Call)
	if call.HasObject || isBuiltin(call) || call.ID.IsExplicit() {
		return
	}
	cs := sc.Enclosing(scope.Class)
	if cs == nil || cs.Struct == nil || len(cs.Struct.Method(call.ID.Base())) == 0 {
		return
	}
	if fsc := sc.Enclosing(scope.Function); fsc == nil || !fsc.IsInside(cs) {
		return
	}
	this := c.tree.New(ast.ThisPointer, n.Tok, nil)
	c.node(this).Type = thisType(cs.Struct)
	c.tree.InsertChild(id, 0, this)
	call.HasObject = true
}
