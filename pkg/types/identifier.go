package types

import "strings"

const separator = "::"

// Identifier is a qualified symbol name such as Osc::tick. It is comparable
// and can be used as a map key.
type Identifier struct{ path string }

func NewIdentifier(parts ...string) Identifier {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return Identifier{path: strings.Join(nonEmpty, separator)}
}

// ParseIdentifier splits a::b::c into its parts.
func ParseIdentifier(s string) Identifier { return NewIdentifier(strings.Split(s, separator)...) }

func (id Identifier) IsValid() bool  { return id.path != "" }
func (id Identifier) String() string { return id.path }

// IsExplicit reports whether id carries a parent scope.
func (id Identifier) IsExplicit() bool { return strings.Contains(id.path, separator) }

func (id Identifier) Child(name string) Identifier { return NewIdentifier(id.path, name) }

func (id Identifier) Parent() Identifier {
	i := strings.LastIndex(id.path, separator)
	if i < 0 {
		return Identifier{}
	}
	return Identifier{path: id.path[:i]}
}

func (id Identifier) Base() string {
	i := strings.LastIndex(id.path, separator)
	if i < 0 {
		return id.path
	}
	return id.path[i+len(separator):]
}

// Mangled turns id into a symbol name usable by the assembler.
func (id Identifier) Mangled() string {
	r := strings.NewReplacer(separator, "__", "<", "_", ">", "_", ",", "_", " ", "", "*", "p", "&", "r")
	return r.Replace(id.path)
}
