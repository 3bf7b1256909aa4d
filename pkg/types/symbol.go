package types

import (
	"fmt"
	"strings"
)

// Symbol is a named, typed entity. It stays unresolved until a pass sets its
// type; later passes fail through Check if it never resolved.
type Symbol struct {
	ID       Identifier
	Type     TypeInfo
	Const    bool
	Value    Value
	Resolved bool
}

func NewSymbol(id Identifier, t TypeInfo) *Symbol {
	return &Symbol{ID: id, Type: t, Resolved: t.IsResolved()}
}

// Resolve sets the symbol type once. Resolving again to a different type fails.
func (s *Symbol) Resolve(t TypeInfo) error {
	if s.Resolved {
		if !s.Type.SameBase(t) {
			return fmt.Errorf("type mismatch for %s: %s vs %s", s.ID, s.Type, t)
		}
		return nil
	}
	if !t.IsResolved() {
		return fmt.Errorf("can't resolve %s to incomplete type %s", s.ID, t)
	}
	mods := s.Type
	s.Type = t.Base().WithConst(mods.Const || t.Const).WithRef(mods.Ref)
	s.Resolved = true
	return nil
}

// SetConstant marks s as a compile-time constant holding v.
func (s *Symbol) SetConstant(v Value) {
	s.Const = true
	s.Value = v
}

// Check fails if the symbol was never resolved.
func (s *Symbol) Check() error {
	if !s.Resolved {
		return fmt.Errorf("unresolved symbol %s", s.ID)
	}
	return nil
}

func (s *Symbol) String() string { return s.Type.String() + " " + s.ID.String() }

type Param struct {
	Name string
	Type TypeInfo
}

// Signature describes a callable. String gives its canonical form, which is
// its identity for overloads and instance tables.
type Signature struct {
	ID           Identifier
	Return       TypeInfo
	Params       []Param
	TemplateArgs []TemplateArg
	Member       bool
	Inline       bool
}

func (s *Signature) String() string {
	var sb strings.Builder
	sb.WriteString(s.Return.String())
	sb.WriteByte(' ')
	sb.WriteString(s.ID.String())
	if len(s.TemplateArgs) > 0 {
		sb.WriteString(FormatTemplateArgs(s.TemplateArgs))
	}
	sb.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Type.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// Symbol is the assembler name of the function.
func (s *Signature) Symbol() string {
	name := s.ID.Mangled()
	if len(s.TemplateArgs) > 0 {
		var parts []string
		for _, a := range s.TemplateArgs {
			parts = append(parts, NewIdentifier(a.String()).Mangled())
		}
		name += "_T" + strings.Join(parts, "_")
	}
	for _, p := range s.Params {
		name += "_" + strings.NewReplacer("<", "", ">", "", ",", "", " ", "", "*", "p", "&", "r", "const", "c").Replace(p.Type.String())
	}
	return name
}

func (s *Signature) ParamTypes() []TypeInfo {
	out := make([]TypeInfo, len(s.Params))
	for i, p := range s.Params {
		out[i] = p.Type
	}
	return out
}

// Match rates how well args fit the parameters: exact when every base type
// is identical, ok when the count fits and every mismatch is numeric.
func (s *Signature) Match(args []TypeInfo) (exact, ok bool) {
	if len(args) != len(s.Params) {
		return false, false
	}
	exact = true
	for i, a := range args {
		p := s.Params[i].Type
		if p.SameBase(a) {
			continue
		}
		exact = false
		if p.Ref || !p.IsNumeric() || !a.IsNumeric() {
			return false, false
		}
	}
	return exact, true
}

func (s *Signature) Clone() *Signature {
	c := *s
	c.Params = append([]Param(nil), s.Params...)
	c.TemplateArgs = append([]TemplateArg(nil), s.TemplateArgs...)
	return &c
}
