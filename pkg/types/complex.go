package types

import (
	"fmt"
	"strings"
)

type ComplexKind uint8

const (
	SpanType ComplexKind = iota
	DynType
	StructType
	PointerType
	UnresolvedType
)

func (k ComplexKind) String() string {
	return [...]string{"span", "dyn", "struct", "pointer", "unresolved"}[k]
}

// Member is a struct data member with its byte offset.
type Member struct {
	Name    string
	Type    TypeInfo
	Offset  int
	Default *Value
}

// Complex describes spans, dyns, structs and pointers. Unresolved marks a
// named type the parser could not look up yet.
type Complex struct {
	Kind         ComplexKind
	Elem         TypeInfo
	Len          int
	Name         string
	Members      []Member
	Methods      []*Signature
	TemplateArgs []TemplateArg

	size, align int
	finalized   bool
}

func NewSpan(elem TypeInfo, n int) *Complex {
	return &Complex{Kind: SpanType, Elem: elem.Base(), Len: n}
}

func NewDyn(elem TypeInfo) *Complex { return &Complex{Kind: DynType, Elem: elem.Base()} }

func NewPointer(elem TypeInfo) *Complex { return &Complex{Kind: PointerType, Elem: elem.Base()} }

func NewStruct(name string, args []TemplateArg) *Complex {
	return &Complex{Kind: StructType, Name: name, TemplateArgs: args}
}

func NewUnresolved(name string, args []TemplateArg) *Complex {
	return &Complex{Kind: UnresolvedType, Name: name, TemplateArgs: args}
}

func (c *Complex) IsResolved() bool {
	switch c.Kind {
	case UnresolvedType:
		return false
	case StructType:
		for _, a := range c.TemplateArgs {
			if !a.IsBound() {
				return false
			}
		}
	case SpanType, DynType, PointerType:
		return c.Elem.IsResolved()
	}
	return true
}

// AddMember appends a data member. The layout is fixed by Finalize.
func (c *Complex) AddMember(name string, t TypeInfo, def *Value) error {
	if c.finalized {
		return fmt.Errorf("can't add member %s to finalized type %s", name, c.Name)
	}
	for _, m := range c.Members {
		if m.Name == name {
			return fmt.Errorf("%s is already defined as class member", name)
		}
	}
	c.Members = append(c.Members, Member{Name: name, Type: t, Default: def})
	return nil
}

// Finalize computes member offsets, size and alignment.
func (c *Complex) Finalize() {
	if c.finalized {
		return
	}
	c.finalized = true
	switch c.Kind {
	case SpanType:
		c.align = c.Elem.Align()
		c.size = alignTo(c.Elem.Size(), c.align) * c.Len
	case DynType:
		c.size, c.align = DescriptorSize, 8
	case PointerType:
		c.size, c.align = 8, 8
	case StructType:
		offset, maxAlign := 0, 1
		for i := range c.Members {
			a := c.Members[i].Type.Align()
			if a > maxAlign {
				maxAlign = a
			}
			offset = alignTo(offset, a)
			c.Members[i].Offset = offset
			offset += c.Members[i].Type.Size()
		}
		c.align = maxAlign
		c.size = alignTo(offset, maxAlign)
		if c.size == 0 {
			c.size = maxAlign
		}
	}
}

func (c *Complex) Size() int {
	c.Finalize()
	return c.size
}

func (c *Complex) Align() int {
	c.Finalize()
	return c.align
}

// Member looks up a data member by name.
func (c *Complex) Member(name string) (Member, bool) {
	c.Finalize()
	for _, m := range c.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// Method returns every member function overload called name.
func (c *Complex) Method(name string) []*Signature {
	var out []*Signature
	for _, m := range c.Methods {
		if m.ID.Base() == name {
			out = append(out, m)
		}
	}
	return out
}

// HasIterator reports whether c can be the target of a range loop.
func (c *Complex) HasIterator() bool {
	return c.Kind == StructType && len(c.Method("begin")) > 0 && len(c.Method("size")) > 0
}

func (c *Complex) Equal(o *Complex) bool {
	if c == o {
		return true
	}
	if c == nil || o == nil || c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case SpanType:
		return c.Len == o.Len && c.Elem.SameBase(o.Elem)
	case DynType, PointerType:
		return c.Elem.SameBase(o.Elem)
	}
	return c.Name == o.Name && templateArgsEqual(c.TemplateArgs, o.TemplateArgs)
}

func (c *Complex) String() string {
	switch c.Kind {
	case SpanType:
		return fmt.Sprintf("span<%s, %d>", c.Elem, c.Len)
	case DynType:
		return fmt.Sprintf("dyn<%s>", c.Elem)
	case PointerType:
		return c.Elem.String() + "*"
	}
	if len(c.TemplateArgs) == 0 {
		return c.Name
	}
	return c.Name + FormatTemplateArgs(c.TemplateArgs)
}

func alignTo(v, a int) int {
	if a <= 1 {
		return v
	}
	return (v + a - 1) / a * a
}

// TemplateParam is a formal parameter of a template definition.
type TemplateParam struct {
	Name     string
	IsType   bool
	Variadic bool
}

// TemplateArg is a concrete argument bound to a template parameter.
type TemplateArg struct {
	IsType bool
	Type   TypeInfo
	Value  int
	// Pack names a variadic parameter to expand in place of this argument.
	Pack string
	// Param names a non-type template parameter whose value is not bound yet.
	Param string
}

// IsBound reports whether the argument carries a concrete type or value.
func (a TemplateArg) IsBound() bool {
	if a.Pack != "" || a.Param != "" {
		return false
	}
	return !a.IsType || a.Type.IsResolved()
}

func (a TemplateArg) Equal(o TemplateArg) bool {
	if a.IsType != o.IsType || a.Pack != o.Pack || a.Param != o.Param {
		return false
	}
	if a.IsType {
		return a.Type.SameBase(o.Type)
	}
	return a.Value == o.Value
}

func (a TemplateArg) String() string {
	if a.Pack != "" {
		return a.Pack + "..."
	}
	if a.Param != "" {
		return a.Param
	}
	if a.IsType {
		return a.Type.String()
	}
	return fmt.Sprint(a.Value)
}

func templateArgsEqual(a, b []TemplateArg) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func FormatTemplateArgs(args []TemplateArg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return "<" + strings.Join(parts, ", ") + ">"
}
