// Package emit defines the contract between the compiler core and a native
// code emitter. The core hands over registers from pkg/regalloc; the
// emitter decides how they map to machine storage.
package emit

import (
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/rtcheck"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
)

type Emitter interface {
	BeginFunction(symbol string, params []*regalloc.Register, ret types.Kind, export bool)
	// EndFunction closes the current function, adding a default return if
	// control can reach its end.
	EndFunction()

	NewLabel(hint string) string
	Label(name string)
	Jump(label string)
	Branch(cond *regalloc.Register, ifTrue, ifFalse string)
	// Terminated reports whether the code emitted last can't fall through.
	Terminated() bool

	// Move copies a scalar value. Memory operands are loaded or stored.
	Move(dst, src *regalloc.Register)
	Binary(op token.Type, dst, a, b *regalloc.Register)
	Compare(op token.Type, dst, a, b *regalloc.Register)
	Negate(dst, src *regalloc.Register)
	// Convert changes the kind of src to the kind of dst.
	Convert(dst, src *regalloc.Register)
	// Address puts the address of the memory location loc into dst.
	Address(dst, loc *regalloc.Register)
	CopyBlock(dst, src *regalloc.Register, size int)
	Zero(dst *regalloc.Register, size int)
	StackSlot(dst *regalloc.Register, size, align int)

	Call(dst *regalloc.Register, symbol string, args []*regalloc.Register)
	CallExtern(dst *regalloc.Register, symbol string, args []*regalloc.Register)
	Return(value *regalloc.Register)

	// DefineGlobal reserves size bytes. init maps byte offsets to constants.
	DefineGlobal(name string, size, align int, init map[int]types.Value)
	// RecordError writes code, line and column to the runtime error region.
	RecordError(code rtcheck.Code, line, col int)
}
