// Package scope implements the lexical scope hierarchy used during name
// resolution: the global scope, class scopes, function scopes and nested
// statement blocks.
package scope

import (
	"fmt"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
)

type Kind uint8

const (
	Global Kind = iota
	Class
	Function
	Block
)

func (k Kind) String() string {
	switch k {
	case Global:
		return "global"
	case Class:
		return "class"
	case Function:
		return "function"
	case Block:
		return "block"
	}
	return fmt.Sprintf("scope(%d)", uint8(k))
}

// nature is how a declaration of this scope kind is named in diagnostics.
func (k Kind) nature() string {
	switch k {
	case Global:
		return "global variable"
	case Class:
		return "class member"
	}
	return "local variable"
}

// Variable is a declared name. Members carry their byte offset in the
// enclosing struct, parameters their index.
type Variable struct {
	Sym        *types.Symbol
	Tok        token.Token
	Origin     ast.RefOrigin
	ParamIndex int
	Offset     int
	Decl       ast.NodeID
	// Arg is the InlinedArgument bound to a parameter of an inlined call.
	Arg ast.NodeID
}

// FuncEntry is an entry of a function table.
type FuncEntry struct {
	Sig  *types.Signature
	Decl ast.NodeID
	// Template is the TemplateDefinition the function was instantiated from.
	Template ast.NodeID
}

// Scope is one level of the hierarchy. The parent link is non-owning.
type Scope struct {
	Kind   Kind
	Parent *Scope
	Name   types.Identifier
	Node   ast.NodeID
	// Struct is the type described by a Class scope.
	Struct *types.Complex

	vars      map[string]*Variable
	order     []*Variable
	typeDefs  map[string]types.TypeInfo
	funcs     map[string][]*FuncEntry
	templates map[string][]ast.NodeID
	reporter  *util.Reporter
}

// NewGlobal creates the root of a scope tree. Shadowing warnings go to reporter.
func NewGlobal(reporter *util.Reporter) *Scope {
	return &Scope{Kind: Global, reporter: reporter}
}

// NewChild creates a scope nested in s.
func (s *Scope) NewChild(kind Kind, name string, node ast.NodeID) *Scope {
	id := s.Name
	if name != "" {
		id = id.Child(name)
	}
	return &Scope{Kind: kind, Parent: s, Name: id, Node: node, reporter: s.reporter}
}

func (s *Scope) Reporter() *util.Reporter { return s.reporter }

// Declare adds v to s. Declaring a name twice in one scope fails; hiding a
// name of an enclosing scope only warns.
func (s *Scope) Declare(name string, v *Variable) error {
	if prev, ok := s.vars[name]; ok {
		d := util.Errorf(v.Tok, "%s is already defined as %s", name, s.natureOf(prev))
		return d
	}
	if s.Kind != Global {
		if _, owner := s.Parent.Lookup(name); owner != nil && s.reporter != nil {
			s.reporter.Warn(config.WarnShadow, v.Tok, "declaration of %s hides %s", name, hiddenNature(owner))
		}
	}
	if s.vars == nil {
		s.vars = make(map[string]*Variable)
	}
	s.vars[name] = v
	s.order = append(s.order, v)
	return nil
}

func (s *Scope) natureOf(v *Variable) string {
	if v.Origin == ast.Param {
		return "function parameter"
	}
	return s.Kind.nature()
}

func hiddenNature(owner *Scope) string {
	switch owner.Kind {
	case Class:
		return "class member"
	case Global:
		return "global variable"
	}
	return "previous declaration"
}

// Lookup finds name in s or its ancestors, innermost first.
func (s *Scope) Lookup(name string) (*Variable, *Scope) {
	for sc := s; sc != nil; sc = sc.Parent {
		if v, ok := sc.vars[name]; ok {
			return v, sc
		}
	}
	return nil, nil
}

// Variables lists the declarations of s in declaration order.
func (s *Scope) Variables() []*Variable { return s.order }

// DeclareType binds a type name in s, used for structs and template type parameters.
func (s *Scope) DeclareType(name string, t types.TypeInfo) {
	if s.typeDefs == nil {
		s.typeDefs = make(map[string]types.TypeInfo)
	}
	s.typeDefs[name] = t
}

func (s *Scope) LookupType(name string) (types.TypeInfo, bool) {
	for sc := s; sc != nil; sc = sc.Parent {
		if t, ok := sc.typeDefs[name]; ok {
			return t, true
		}
	}
	return types.TypeInfo{}, false
}

// AddFunction registers f. A second function with the same signature fails.
func (s *Scope) AddFunction(f *FuncEntry, tok token.Token) error {
	name := f.Sig.ID.Base()
	for _, g := range s.funcs[name] {
		if g.Sig.String() == f.Sig.String() {
			return util.Errorf(tok, "function %s is already defined", f.Sig)
		}
	}
	if s.funcs == nil {
		s.funcs = make(map[string][]*FuncEntry)
	}
	s.funcs[name] = append(s.funcs[name], f)
	return nil
}

// Functions returns the overloads of name visible from s. The innermost
// scope defining any overload hides outer ones.
func (s *Scope) Functions(name string) []*FuncEntry {
	for sc := s; sc != nil; sc = sc.Parent {
		if fs, ok := sc.funcs[name]; ok {
			return fs
		}
	}
	return nil
}

// AddTemplate registers a template definition node under name.
func (s *Scope) AddTemplate(name string, def ast.NodeID) {
	if s.templates == nil {
		s.templates = make(map[string][]ast.NodeID)
	}
	s.templates[name] = append(s.templates[name], def)
}

func (s *Scope) Templates(name string) []ast.NodeID {
	for sc := s; sc != nil; sc = sc.Parent {
		if ts, ok := sc.templates[name]; ok {
			return ts
		}
	}
	return nil
}

// Enclosing returns the nearest scope of kind k, starting at s.
func (s *Scope) Enclosing(k Kind) *Scope {
	for sc := s; sc != nil; sc = sc.Parent {
		if sc.Kind == k {
			return sc
		}
	}
	return nil
}

// Root returns the global scope.
func (s *Scope) Root() *Scope {
	sc := s
	for sc.Parent != nil {
		sc = sc.Parent
	}
	return sc
}

// IsInside reports whether anc is s or one of its ancestors.
func (s *Scope) IsInside(anc *Scope) bool {
	for sc := s; sc != nil; sc = sc.Parent {
		if sc == anc {
			return true
		}
	}
	return false
}
