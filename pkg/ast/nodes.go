package ast

import (
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
)

// Block is the payload of SyntaxTree and StatementBlock nodes.
type Block struct {
	// Inlined marks the body of an inlined function call.
	Inlined    bool
	ReturnType types.TypeInfo
}

func (b *Block) Clone() Payload { c := *b; return &c }

type RefOrigin uint8

const (
	Unresolved RefOrigin = iota
	Local
	Param
	Global
	Member
)

func (o RefOrigin) String() string {
	return [...]string{"unresolved", "local", "param", "global", "member"}[o]
}

// VarRef is the payload of VariableReference nodes.
type VarRef struct {
	ID         types.Identifier
	Symbol     *types.Symbol
	Origin     RefOrigin
	ParamIndex int
	// Offset is the member offset for Member references.
	Offset int
}

func (v *VarRef) Clone() Payload {
	return &VarRef{ID: v.ID, ParamIndex: -1}
}

// InlinedParam replaces a parameter reference inside an inlined body. Arg is
// the InlinedArgument node carrying the caller's expression.
type InlinedParam struct {
	Index int
	Name  string
	Arg   NodeID
}

func (p *InlinedParam) Clone() Payload { c := *p; return &c }

// InlinedArg wraps one evaluated argument of an inlined call.
type InlinedArg struct {
	Index int
	Name  string
}

func (a *InlinedArg) Clone() Payload { c := *a; return &c }

type CastData struct {
	Target   types.TypeInfo
	Implicit bool
}

func (c *CastData) Clone() Payload { n := *c; return &n }

// Dot is the payload of DotOperator nodes.
type Dot struct {
	Member string
	Offset int
}

func (d *Dot) Clone() Payload { return &Dot{Member: d.Member} }

type TargetType uint8

const (
	TargetUnknown TargetType = iota
	TargetVariable
	TargetReference
	TargetSpan
	TargetClassMember
	TargetPointer
)

func (t TargetType) String() string {
	return [...]string{"unknown", "variable", "reference", "span", "class member", "pointer"}[t]
}

// Assign is the payload of Assignment nodes. Child 0 is the value, child 1
// the target, so the target is scanned after the value.
type Assign struct {
	Op          token.Type
	Target      TargetType
	Declaration bool
	DeclType    types.TypeInfo
}

func (a *Assign) Clone() Payload { return &Assign{Op: a.Op, Declaration: a.Declaration, DeclType: a.DeclType} }

// LoadsTarget reports whether the target must be read before it is written.
func (a *Assign) LoadsTarget() bool { return a.Op != token.Eq }

// Op is the payload of BinaryOp and Compare nodes.
type Op struct {
	Op token.Type
}

func (o *Op) Clone() Payload { c := *o; return &c }

type CallType uint8

const (
	CallUnresolved CallType = iota
	CallStatic
	CallMember
	CallInline
	CallBuiltin
)

func (c CallType) String() string {
	return [...]string{"unresolved", "static", "member", "inline", "builtin"}[c]
}

// Call is the payload of FunctionCall nodes. With HasObject set, child 0 is
// the object and the arguments follow.
type Call struct {
	ID           types.Identifier
	TemplateArgs []types.TemplateArg
	HasObject    bool
	Type         CallType
	Sig          *types.Signature
	Target       NodeID
}

func (c *Call) Clone() Payload {
	return &Call{
		ID:           c.ID,
		TemplateArgs: append([]types.TemplateArg(nil), c.TemplateArgs...),
		HasObject:    c.HasObject,
	}
}

// FirstArg is the child index of the first argument.
func (c *Call) FirstArg() int {
	if c.HasObject {
		return 1
	}
	return 0
}

type MemRef struct {
	Offset int
}

func (m *MemRef) Clone() Payload { c := *m; return &c }

// Class is the payload of ClassStatement nodes. Children are member
// definitions and member functions.
type Class struct {
	Name         string
	TemplateArgs []types.TemplateArg
	Struct       *types.Complex
}

func (c *Class) Clone() Payload {
	return &Class{Name: c.Name, TemplateArgs: append([]types.TemplateArg(nil), c.TemplateArgs...)}
}

// Template is the payload of TemplateDefinition nodes. Child 0 is the
// generic body (a ClassStatement or a Function); instances follow it.
type Template struct {
	Name   string
	Params []types.TemplateParam
	Class  bool
}

func (t *Template) Clone() Payload {
	return &Template{Name: t.Name, Params: append([]types.TemplateParam(nil), t.Params...), Class: t.Class}
}

// IsVariadic reports whether the last parameter is a pack.
func (t *Template) IsVariadic() bool {
	return len(t.Params) > 0 && t.Params[len(t.Params)-1].Variadic
}

// Func is the payload of Function and TemplatedFunction nodes. Child 0 is
// the body, absent for declarations.
type Func struct {
	Sig        *types.Signature
	ParamToks  []token.Token
	Class      string
	Compiled   bool
	Failed     bool
	Template   NodeID
	TemplateN  int
}

func (f *Func) Clone() Payload {
	return &Func{Sig: f.Sig.Clone(), ParamToks: append([]token.Token(nil), f.ParamToks...), Class: f.Class}
}

type IncrementData struct {
	Decrement bool
	Pre       bool
}

func (i *IncrementData) Clone() Payload { c := *i; return &c }

type LoopTarget uint8

const (
	LoopUnknown LoopTarget = iota
	LoopSpan
	LoopDyn
	LoopBlock
	LoopCustomObject
)

func (l LoopTarget) String() string {
	return [...]string{"unknown", "span", "dyn", "block", "custom object"}[l]
}

// LoopData is the payload of range Loop nodes. Child 0 is the target, child 1 the body.
type LoopData struct {
	Iterator string
	IterType types.TypeInfo
	Target   LoopTarget
	Load     bool
	Store    bool
	Symbol   *types.Symbol
}

func (l *LoopData) Clone() Payload {
	return &LoopData{Iterator: l.Iterator, IterType: l.IterType}
}

type Flow struct {
	Break bool
}

func (f *Flow) Clone() Payload { c := *f; return &c }

// SubscriptData is the payload of Subscript nodes. Child 0 is the object, child 1 the index.
type SubscriptData struct {
	Target LoopTarget
}

func (s *SubscriptData) Clone() Payload { return &SubscriptData{} }

// VarDef is the payload of ComplexTypeDefinition nodes. Children are the
// initialiser expressions.
type VarDef struct {
	Names   []string
	Toks    []token.Token
	Type    types.TypeInfo
	Symbols []*types.Symbol
	Init    []types.Value
}

func (v *VarDef) Clone() Payload {
	return &VarDef{
		Names: append([]string(nil), v.Names...),
		Toks:  append([]token.Token(nil), v.Toks...),
		Type:  v.Type,
	}
}
