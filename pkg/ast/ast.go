// Package ast stores the syntax tree as an arena of nodes addressed by
// stable indices. Parent links are plain indices, child lists own their
// nodes.
package ast

import (
	"fmt"

	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
)

// NodeID indexes a node in a Tree. The zero value is the invalid sentinel.
type NodeID int32

const NoNode NodeID = 0

func (id NodeID) IsValid() bool { return id != NoNode }

type Kind uint8

const (
	SyntaxTree Kind = iota
	StatementBlock
	Noop
	Immediate
	VariableReference
	InlinedParameter
	InlinedArgument
	Cast
	DotOperator
	Assignment
	Compare
	LogicalNot
	TernaryOp
	FunctionCall
	ThisPointer
	MemoryReference
	PointerAccess
	ReturnStatement
	ClassStatement
	TemplateDefinition
	Function
	TemplatedFunction
	BinaryOp
	Increment
	WhileLoop
	Loop
	ControlFlow
	Negation
	IfStatement
	Subscript
	ComplexTypeDefinition
	kindCount
)

var kindNames = [...]string{
	SyntaxTree:            "SyntaxTree",
	StatementBlock:        "StatementBlock",
	Noop:                  "Noop",
	Immediate:             "Immediate",
	VariableReference:     "VariableReference",
	InlinedParameter:      "InlinedParameter",
	InlinedArgument:       "InlinedArgument",
	Cast:                  "Cast",
	DotOperator:           "DotOperator",
	Assignment:            "Assignment",
	Compare:               "Compare",
	LogicalNot:            "LogicalNot",
	TernaryOp:             "TernaryOp",
	FunctionCall:          "FunctionCall",
	ThisPointer:           "ThisPointer",
	MemoryReference:       "MemoryReference",
	PointerAccess:         "PointerAccess",
	ReturnStatement:       "ReturnStatement",
	ClassStatement:        "ClassStatement",
	TemplateDefinition:    "TemplateDefinition",
	Function:              "Function",
	TemplatedFunction:     "TemplatedFunction",
	BinaryOp:              "BinaryOp",
	Increment:             "Increment",
	WhileLoop:             "WhileLoop",
	Loop:                  "Loop",
	ControlFlow:           "ControlFlow",
	Negation:              "Negation",
	IfStatement:           "IfStatement",
	Subscript:             "Subscript",
	ComplexTypeDefinition: "ComplexTypeDefinition",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsExpression reports whether nodes of kind k yield a value.
func (k Kind) IsExpression() bool {
	switch k {
	case Immediate, VariableReference, InlinedParameter, Cast, DotOperator, Assignment,
		Compare, LogicalNot, TernaryOp, FunctionCall, ThisPointer, MemoryReference,
		PointerAccess, BinaryOp, Increment, Negation, Subscript:
		return true
	}
	return false
}

// Node is one statement. Expressions are statements that also yield a typed value.
type Node struct {
	Kind     Kind
	Tok      token.Token
	Parent   NodeID
	Children []NodeID
	Type     types.TypeInfo
	Const    bool
	Value    types.Value
	Reg      *regalloc.Register
	Data     Payload
}

// Payload is the per-kind data of a node. Clone must return a copy that
// shares no mutable state with the receiver.
type Payload interface {
	Clone() Payload
}

// Tree is the node arena.
type Tree struct {
	nodes []*Node
	root  NodeID
}

func NewTree() *Tree {
	return &Tree{nodes: []*Node{nil}}
}

func (t *Tree) Root() NodeID        { return t.root }
func (t *Tree) SetRoot(id NodeID)   { t.root = id }
func (t *Tree) Len() int            { return len(t.nodes) - 1 }
func (t *Tree) Node(id NodeID) *Node { return t.nodes[id] }

func (t *Tree) Kind(id NodeID) Kind { return t.nodes[id].Kind }

// New allocates a node and adopts children, detaching them from any previous parent.
func (t *Tree) New(kind Kind, tok token.Token, data Payload, children ...NodeID) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, &Node{Kind: kind, Tok: tok, Data: data})
	for _, c := range children {
		t.AddChild(id, c)
	}
	return id
}

func (t *Tree) NumChildren(id NodeID) int { return len(t.nodes[id].Children) }

// Child returns the i-th child or NoNode when out of range.
func (t *Tree) Child(id NodeID, i int) NodeID {
	n := t.nodes[id]
	if i < 0 || i >= len(n.Children) {
		return NoNode
	}
	return n.Children[i]
}

func (t *Tree) Parent(id NodeID) NodeID { return t.nodes[id].Parent }

func (t *Tree) detach(c NodeID) {
	p := t.nodes[c].Parent
	if !p.IsValid() {
		return
	}
	pn := t.nodes[p]
	for i, x := range pn.Children {
		if x == c {
			pn.Children = append(pn.Children[:i:i], pn.Children[i+1:]...)
			break
		}
	}
	t.nodes[c].Parent = NoNode
}

// AddChild appends c to id's children. A NoNode child is ignored.
func (t *Tree) AddChild(id, c NodeID) {
	if !c.IsValid() {
		return
	}
	t.detach(c)
	t.nodes[id].Children = append(t.nodes[id].Children, c)
	t.nodes[c].Parent = id
}

// InsertChild places c at index i of id's children.
func (t *Tree) InsertChild(id NodeID, i int, c NodeID) {
	t.detach(c)
	n := t.nodes[id]
	if i > len(n.Children) {
		i = len(n.Children)
	}
	n.Children = append(n.Children, NoNode)
	copy(n.Children[i+1:], n.Children[i:])
	n.Children[i] = c
	t.nodes[c].Parent = id
}

// Replace puts repl where old was in old's parent. old becomes detached.
func (t *Tree) Replace(old, repl NodeID) {
	p := t.nodes[old].Parent
	if !p.IsValid() {
		if t.root == old {
			t.detach(repl)
			t.root = repl
		}
		return
	}
	t.detach(repl)
	pn := t.nodes[p]
	for i, x := range pn.Children {
		if x == old {
			pn.Children[i] = repl
			break
		}
	}
	t.nodes[repl].Parent = p
	t.nodes[old].Parent = NoNode
}

// IndexInParent returns the position of id among its siblings, or -1.
func (t *Tree) IndexInParent(id NodeID) int {
	p := t.nodes[id].Parent
	if !p.IsValid() {
		return -1
	}
	for i, c := range t.nodes[p].Children {
		if c == id {
			return i
		}
	}
	return -1
}

// FindParent walks up from id and returns the first ancestor of kind k.
func (t *Tree) FindParent(id NodeID, kinds ...Kind) NodeID {
	for p := t.nodes[id].Parent; p.IsValid(); p = t.nodes[p].Parent {
		for _, k := range kinds {
			if t.nodes[p].Kind == k {
				return p
			}
		}
	}
	return NoNode
}

// IsAncestor reports whether anc is id or one of its ancestors.
func (t *Tree) IsAncestor(anc, id NodeID) bool {
	for n := id; n.IsValid(); n = t.nodes[n].Parent {
		if n == anc {
			return true
		}
	}
	return false
}

// Walk visits the subtree of id in pre-order. Returning false from fn skips
// the children of the visited node.
func (t *Tree) Walk(id NodeID, fn func(NodeID) bool) {
	if !id.IsValid() {
		return
	}
	if !fn(id) {
		return
	}
	for _, c := range append([]NodeID(nil), t.nodes[id].Children...) {
		t.Walk(c, fn)
	}
}

// Clone copies the subtree of id into fresh nodes at the end of the arena.
// The clone is detached, carries no registers and only keeps the types of
// immediates; everything else is resolved again in the clone's scope.
func (t *Tree) Clone(id NodeID) NodeID {
	src := t.nodes[id]
	n := &Node{Kind: src.Kind, Tok: src.Tok}
	if src.Kind == Immediate {
		n.Type, n.Const, n.Value = src.Type, src.Const, src.Value
	}
	if src.Data != nil {
		n.Data = src.Data.Clone()
	}
	cid := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, n)
	for _, c := range src.Children {
		cc := t.Clone(c)
		n.Children = append(n.Children, cc)
		t.nodes[cc].Parent = cid
	}
	return cid
}

// Verify checks that every parent link of the subtree agrees with the child lists.
func (t *Tree) Verify(id NodeID) error {
	var err error
	t.Walk(id, func(n NodeID) bool {
		if err != nil {
			return false
		}
		for _, c := range t.nodes[n].Children {
			if !c.IsValid() || int(c) >= len(t.nodes) {
				err = fmt.Errorf("node %d (%s) has invalid child %d", n, t.nodes[n].Kind, c)
				return false
			}
			if t.nodes[c].Parent != n {
				err = fmt.Errorf("node %d (%s) is listed under %d but its parent is %d", c, t.nodes[c].Kind, n, t.nodes[c].Parent)
				return false
			}
		}
		return true
	})
	return err
}
