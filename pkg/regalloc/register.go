// Package regalloc tracks the storage slots that hold computed values while
// code is generated: machine registers, memory locations and immediates.
package regalloc

import (
	"fmt"

	"github.com/xplshn/gsc/pkg/types"
)

type Kind uint8

const (
	Reg Kind = iota
	Memory
	Immediate
)

func (k Kind) String() string {
	switch k {
	case Reg:
		return "reg"
	case Memory:
		return "mem"
	case Immediate:
		return "imm"
	}
	return "?"
}

// Register is the storage location of one computed value.
type Register struct {
	ID   int
	Kind Kind
	// Type is the kind of value the location holds: Integer, Float, Double or Pointer.
	Type types.Kind
	Name string

	// Memory locations address Base (a pointer register) or Global, plus Offset.
	// Stored is the type of the value in memory.
	Base   *Register
	Global string
	Offset int
	Stored types.TypeInfo

	Imm types.Value

	variable bool
	param    bool
	reusable bool
	owner    int
	depth    int
}

func (r *Register) IsMemory() bool    { return r.Kind == Memory }
func (r *Register) IsImmediate() bool { return r.Kind == Immediate }
func (r *Register) IsParameter() bool { return r.param }
func (r *Register) IsVariable() bool  { return r.variable }

// IsReusable reports whether the value held by r is dead.
func (r *Register) IsReusable() bool { return r.reusable }

// CanBeReused reports whether r may become the result of another operation.
func (r *Register) CanBeReused() bool {
	return r.reusable && r.Kind == Reg && !r.param
}

func (r *Register) Owner() int { return r.owner }

func (r *Register) String() string {
	switch r.Kind {
	case Immediate:
		return "imm(" + r.Imm.String() + ")"
	case Memory:
		base := r.Global
		if r.Base != nil {
			base = r.Base.String()
		}
		return fmt.Sprintf("[%s+%d]", base, r.Offset)
	}
	if r.Name != "" {
		return fmt.Sprintf("r%d(%s)", r.ID, r.Name)
	}
	return fmt.Sprintf("r%d", r.ID)
}
