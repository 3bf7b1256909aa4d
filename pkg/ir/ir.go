// Package ir is the QBE-shaped intermediate representation produced by the
// emitter. It is rendered to QBE IL by pkg/codegen and executed by pkg/vm.
package ir

import (
	"fmt"
	"strconv"
)

type Op int

const (
	OpAlloc Op = iota
	OpLoad
	OpStore
	OpBlit
	OpCopy
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpNeg
	OpAddF
	OpSubF
	OpMulF
	OpDivF
	OpNegF
	OpCEq
	OpCNeq
	OpCLt
	OpCGt
	OpCLe
	OpCGe
	OpExtSW
	OpSWToF
	OpFToSI
	OpFToF
	OpJmp
	OpJnz
	OpRet
	OpCall
)

var opNames = [...]string{
	OpAlloc: "alloc", OpLoad: "load", OpStore: "store", OpBlit: "blit", OpCopy: "copy",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpRem: "rem",
	OpAnd: "and", OpOr: "or", OpXor: "xor", OpShl: "shl", OpShr: "sar", OpNeg: "neg",
	OpAddF: "add", OpSubF: "sub", OpMulF: "mul", OpDivF: "div", OpNegF: "neg",
	OpCEq: "eq", OpCNeq: "ne", OpCLt: "lt", OpCGt: "gt", OpCLe: "le", OpCGe: "ge",
	OpExtSW: "extsw", OpSWToF: "swtof", OpFToSI: "tosi", OpFToF: "fcvt",
	OpJmp: "jmp", OpJnz: "jnz", OpRet: "ret", OpCall: "call",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// IsCompare reports whether o produces a 0/1 word from two operands.
func (o Op) IsCompare() bool { return o >= OpCEq && o <= OpCGe }

// IsTerminator reports whether o ends a basic block.
func (o Op) IsTerminator() bool { return o == OpJmp || o == OpJnz || o == OpRet }

type Type int

const (
	TypeNone Type = iota
	TypeW         // word (32-bit)
	TypeL         // long (64-bit)
	TypeS         // single float (32-bit)
	TypeD         // double float (64-bit)
	TypePtr
)

func (t Type) String() string {
	switch t {
	case TypeW:
		return "w"
	case TypeL, TypePtr:
		return "l"
	case TypeS:
		return "s"
	case TypeD:
		return "d"
	}
	return ""
}

func (t Type) IsFloat() bool { return t == TypeS || t == TypeD }

// SizeOfType returns the byte size of a value of type t.
func SizeOfType(t Type) int {
	switch t {
	case TypeW, TypeS:
		return 4
	case TypeL, TypeD, TypePtr:
		return 8
	}
	return 0
}

type Value interface {
	isValue()
	String() string
}

type Const struct{ Value int64 }
type FloatConst struct {
	Value float64
	Typ   Type
}
type Global struct{ Name string }
type Temporary struct {
	Name string
	ID   int
}
type Label struct{ Name string }

func (c *Const) isValue()      {}
func (f *FloatConst) isValue() {}
func (g *Global) isValue()     {}
func (t *Temporary) isValue()  {}
func (l *Label) isValue()      {}

func (c *Const) String() string { return strconv.FormatInt(c.Value, 10) }
func (f *FloatConst) String() string {
	if f.Typ == TypeS {
		return "s_" + strconv.FormatFloat(f.Value, 'g', -1, 32)
	}
	return "d_" + strconv.FormatFloat(f.Value, 'g', -1, 64)
}
func (g *Global) String() string    { return "$" + g.Name }
func (t *Temporary) String() string { return "%" + t.Name }
func (l *Label) String() string     { return "@" + l.Name }

type Func struct {
	Name       string
	Params     []*Param
	ReturnType Type
	Blocks     []*BasicBlock
	// NumTemps bounds the IDs of every Temporary used in the function.
	NumTemps int
	Export   bool
}

type Param struct {
	Name string
	Typ  Type
	Val  *Temporary
}

type BasicBlock struct {
	Label        *Label
	Instructions []*Instruction
}

type Instruction struct {
	Op          Op
	Typ         Type
	OperandType Type
	Result      Value
	Args        []Value
	ArgTypes    []Type
	Align       int
}

// Program is one compiled module.
type Program struct {
	Globals    []*Data
	Funcs      []*Func
	ExtrnFuncs []string
	WordSize   int
}

// Data is a global symbol. Items are laid out in order; an item with
// TypeNone reserves Count zero bytes.
type Data struct {
	Name   string
	Align  int
	Items  []DataItem
	Export bool
}

type DataItem struct {
	Typ   Type
	Value Value
	Count int
}

// Size returns the byte size of d.
func (d *Data) Size() int {
	n := 0
	for _, it := range d.Items {
		if it.Typ == TypeNone {
			n += it.Count
			continue
		}
		c := it.Count
		if c == 0 {
			c = 1
		}
		n += SizeOfType(it.Typ) * c
	}
	return n
}

func (p *Program) FindFunc(name string) *Func {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (p *Program) FindGlobal(name string) *Data {
	for _, d := range p.Globals {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// AddExtern records a C library function called by the program.
func (p *Program) AddExtern(name string) {
	for _, n := range p.ExtrnFuncs {
		if n == name {
			return
		}
	}
	p.ExtrnFuncs = append(p.ExtrnFuncs, name)
}

// RemoveFunc drops a function, used when its compilation failed.
func (p *Program) RemoveFunc(name string) {
	for i, f := range p.Funcs {
		if f.Name == name {
			p.Funcs = append(p.Funcs[:i], p.Funcs[i+1:]...)
			return
		}
	}
}
