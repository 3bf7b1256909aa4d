// Package types holds the value and type model shared by every compiler pass.
package types

import (
	"fmt"
	"strings"
)

// Kind is the primitive classification of a TypeInfo.
type Kind uint8

const (
	Void Kind = iota
	Integer
	Float
	Double
	Block
	Pointer
	Dynamic
)

func (k Kind) String() string {
	switch k {
	case Void:
		return "void"
	case Integer:
		return "int"
	case Float:
		return "float"
	case Double:
		return "double"
	case Block:
		return "block"
	case Pointer:
		return "pointer"
	case Dynamic:
		return "auto"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Size returns the storage size of a primitive kind.
func (k Kind) Size() int {
	switch k {
	case Integer, Float:
		return 4
	case Double, Pointer:
		return 8
	case Block:
		return DescriptorSize
	}
	return 0
}

// DescriptorSize is the layout of block and dyn values: a data pointer at
// offset 0 followed by an int element count at offset 8.
const (
	DescriptorSize       = 16
	DescriptorSizeOffset = 8
)

// TypeInfo is either a primitive kind or a complex type, plus modifiers.
// Complex types always use Kind Pointer.
type TypeInfo struct {
	Kind    Kind
	Complex *Complex
	Const   bool
	Ref     bool
}

var (
	VoidType    = TypeInfo{Kind: Void}
	IntType     = TypeInfo{Kind: Integer}
	FloatType   = TypeInfo{Kind: Float}
	DoubleType  = TypeInfo{Kind: Double}
	BlockType   = TypeInfo{Kind: Block}
	DynamicType = TypeInfo{Kind: Dynamic}
)

func Primitive(k Kind) TypeInfo { return TypeInfo{Kind: k} }

func FromComplex(c *Complex) TypeInfo { return TypeInfo{Kind: Pointer, Complex: c} }

func (t TypeInfo) IsVoid() bool      { return t.Kind == Void && t.Complex == nil }
func (t TypeInfo) IsDynamic() bool   { return t.Kind == Dynamic }
func (t TypeInfo) IsComplex() bool   { return t.Complex != nil }
func (t TypeInfo) IsPrimitive() bool { return t.Complex == nil && t.Kind != Dynamic }

// IsNumeric reports whether arithmetic is defined on t.
func (t TypeInfo) IsNumeric() bool {
	return t.Complex == nil && (t.Kind == Integer || t.Kind == Float || t.Kind == Double)
}

// IsFloatingPoint reports whether t is float or double.
func (t TypeInfo) IsFloatingPoint() bool {
	return t.Complex == nil && (t.Kind == Float || t.Kind == Double)
}

// IsResolved reports whether no part of t is still waiting for inference or lookup.
func (t TypeInfo) IsResolved() bool {
	if t.Kind == Dynamic {
		return false
	}
	if t.Complex != nil {
		return t.Complex.IsResolved()
	}
	return true
}

// Is reports whether t is the primitive kind k.
func (t TypeInfo) Is(k Kind) bool { return t.Complex == nil && t.Kind == k }

// StructType returns the struct descriptor if t is a struct.
func (t TypeInfo) StructType() *Complex {
	if t.Complex != nil && t.Complex.Kind == StructType {
		return t.Complex
	}
	return nil
}

// IsIndexable reports whether the subscript operator applies to t.
func (t TypeInfo) IsIndexable() bool {
	if t.Is(Block) {
		return true
	}
	return t.Complex != nil && (t.Complex.Kind == SpanType || t.Complex.Kind == DynType)
}

// ElementType returns the element of a span, dyn, pointer or block.
func (t TypeInfo) ElementType() (TypeInfo, bool) {
	if t.Is(Block) {
		return FloatType, true
	}
	if t.Complex == nil {
		return TypeInfo{}, false
	}
	switch t.Complex.Kind {
	case SpanType, DynType, PointerType:
		return t.Complex.Elem, true
	}
	return TypeInfo{}, false
}

func (t TypeInfo) Size() int {
	if t.Complex != nil {
		return t.Complex.Size()
	}
	return t.Kind.Size()
}

func (t TypeInfo) Align() int {
	if t.Complex != nil {
		return t.Complex.Align()
	}
	switch t.Kind {
	case Block:
		return 8
	case Void, Dynamic:
		return 1
	}
	return t.Kind.Size()
}

// IsMemoryBacked reports whether values of t live in memory rather than in a register.
func (t TypeInfo) IsMemoryBacked() bool {
	if t.Complex != nil {
		return t.Complex.Kind != PointerType
	}
	return t.Kind == Block
}

// RegisterKind is the kind of register that holds a value of t.
func (t TypeInfo) RegisterKind() Kind {
	if t.Complex != nil || t.Kind == Block || t.Ref {
		return Pointer
	}
	return t.Kind
}

func (t TypeInfo) WithConst(c bool) TypeInfo {
	t.Const = c
	return t
}

func (t TypeInfo) WithRef(r bool) TypeInfo {
	t.Ref = r
	return t
}

// Base strips const and reference modifiers.
func (t TypeInfo) Base() TypeInfo {
	t.Const, t.Ref = false, false
	return t
}

// Equal compares structurally, including modifiers.
func (t TypeInfo) Equal(o TypeInfo) bool {
	return t.Const == o.Const && t.Ref == o.Ref && t.SameBase(o)
}

// SameBase compares structurally, ignoring const and reference modifiers.
func (t TypeInfo) SameBase(o TypeInfo) bool {
	if t.Kind != o.Kind {
		return false
	}
	if (t.Complex == nil) != (o.Complex == nil) {
		return false
	}
	if t.Complex == nil {
		return true
	}
	return t.Complex.Equal(o.Complex)
}

func (t TypeInfo) String() string {
	var sb strings.Builder
	if t.Const {
		sb.WriteString("const ")
	}
	if t.Complex != nil {
		sb.WriteString(t.Complex.String())
	} else {
		sb.WriteString(t.Kind.String())
	}
	if t.Ref {
		sb.WriteString("&")
	}
	return sb.String()
}
