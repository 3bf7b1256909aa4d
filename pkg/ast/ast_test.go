package ast

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
)

// sum builds `a + 2` under a statement block and returns block, op, ref, imm.
func sum(t *Tree) (NodeID, NodeID, NodeID, NodeID) {
	ref := t.New(VariableReference, token.Token{Line: 1}, &VarRef{ID: types.NewIdentifier("a"), ParamIndex: -1})
	imm := t.New(Immediate, token.Token{Line: 1}, nil)
	t.Node(imm).Type, t.Node(imm).Const, t.Node(imm).Value = types.IntType, true, types.IntValue(2)
	op := t.New(BinaryOp, token.Token{Line: 1}, &Op{Op: token.Plus}, ref, imm)
	block := t.New(StatementBlock, token.Token{}, &Block{}, op)
	return block, op, ref, imm
}

func TestTreeLinks(t *testing.T) {
	tree := NewTree()
	block, op, ref, imm := sum(tree)
	tree.SetRoot(block)

	be.Equal(t, tree.Len(), 4)
	be.Equal(t, tree.Parent(ref), op)
	be.Equal(t, tree.Child(op, 1), imm)
	be.Equal(t, tree.Child(op, 2), NoNode)
	be.Equal(t, tree.IndexInParent(imm), 1)
	be.Equal(t, tree.IndexInParent(block), -1)
	be.Equal(t, tree.FindParent(imm, StatementBlock), block)
	be.Equal(t, tree.FindParent(imm, WhileLoop), NoNode)
	be.True(t, tree.IsAncestor(block, imm))
	be.True(t, !tree.IsAncestor(imm, block))
	be.Err(t, tree.Verify(block), nil)

	// adopting a node moves it
	other := tree.New(StatementBlock, token.Token{}, &Block{}, imm)
	be.Equal(t, tree.NumChildren(op), 1)
	be.Equal(t, tree.Parent(imm), other)
	be.Err(t, tree.Verify(block), nil)

	tree.InsertChild(op, 0, imm)
	be.Equal(t, tree.Child(op, 0), imm)
	be.Equal(t, tree.NumChildren(other), 0)
}

func TestReplace(t *testing.T) {
	tree := NewTree()
	block, op, ref, _ := sum(tree)
	cast := tree.New(Cast, token.Token{}, &CastData{Target: types.FloatType})
	tree.Replace(ref, cast)
	tree.AddChild(cast, ref)

	be.Equal(t, tree.Child(op, 0), cast)
	be.Equal(t, tree.Parent(ref), cast)
	be.Err(t, tree.Verify(block), nil)

	tree.SetRoot(block)
	fresh := tree.New(StatementBlock, token.Token{}, &Block{})
	tree.Replace(block, fresh)
	be.Equal(t, tree.Root(), fresh)
}

func TestClone(t *testing.T) {
	tree := NewTree()
	block, op, ref, _ := sum(tree)
	tree.Node(ref).Type = types.FloatType
	tree.Node(ref).Data.(*VarRef).Origin = Param
	tree.Node(ref).Data.(*VarRef).ParamIndex = 3

	c := tree.Clone(op)
	be.Equal(t, tree.Parent(c), NoNode)
	be.Equal(t, tree.Parent(op), block)
	be.Equal(t, tree.NumChildren(c), 2)
	be.Err(t, tree.Verify(c), nil)

	cref := tree.Child(c, 0)
	be.True(t, cref != ref)
	be.Equal(t, tree.Node(cref).Type, types.TypeInfo{})
	vr := tree.Node(cref).Data.(*VarRef)
	be.Equal(t, vr.ID, types.NewIdentifier("a"))
	be.Equal(t, vr.ParamIndex, -1)
	be.Equal(t, vr.Origin, Unresolved)

	cimm := tree.Child(c, 1)
	be.Equal(t, tree.Node(cimm).Value, types.IntValue(2))
	be.True(t, tree.Node(cimm).Const)

	// payloads are not shared
	tree.Node(c).Data.(*Op).Op = token.Minus
	be.Equal(t, tree.Node(op).Data.(*Op).Op, token.Plus)
}

func TestWalk(t *testing.T) {
	tree := NewTree()
	block, op, _, _ := sum(tree)
	var seen []Kind
	tree.Walk(block, func(id NodeID) bool {
		seen = append(seen, tree.Kind(id))
		return id != op
	})
	be.Equal(t, seen, []Kind{StatementBlock, BinaryOp})
}

func TestDump(t *testing.T) {
	tree := NewTree()
	block, op, ref, _ := sum(tree)
	tree.Node(op).Type = types.IntType
	tree.Node(ref).Type = types.IntType
	want := "StatementBlock\n" +
		"  BinaryOp + : int\n" +
		"    VariableReference a : int\n" +
		"    Immediate 2 : int\n"
	be.Equal(t, tree.Dump(block), want)
}

func TestKind(t *testing.T) {
	be.Equal(t, WhileLoop.String(), "WhileLoop")
	be.Equal(t, Kind(200).String(), "Kind(200)")
	be.True(t, Subscript.IsExpression())
	be.True(t, !IfStatement.IsExpression())
}
