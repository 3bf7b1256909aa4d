package emit

import (
	"fmt"
	"sort"

	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/rtcheck"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
)

// IRBuilder implements Emitter on top of pkg/ir. Every register becomes one
// IR temporary; QBE rebuilds SSA form, so temporaries may be reassigned.
type IRBuilder struct {
	prog       *ir.Program
	fn         *ir.Func
	cur        *ir.BasicBlock
	temps      map[*regalloc.Register]*ir.Temporary
	labels     int
	terminated bool
}

func NewIRBuilder(wordSize int) *IRBuilder {
	return &IRBuilder{prog: &ir.Program{WordSize: wordSize}}
}

func (b *IRBuilder) Program() *ir.Program { return b.prog }

// Discard drops a function that failed to compile.
func (b *IRBuilder) Discard(symbol string) { b.prog.RemoveFunc(symbol) }

func irType(k types.Kind) ir.Type {
	switch k {
	case types.Integer:
		return ir.TypeW
	case types.Float:
		return ir.TypeS
	case types.Double:
		return ir.TypeD
	case types.Void:
		return ir.TypeNone
	}
	return ir.TypePtr
}

func (b *IRBuilder) BeginFunction(symbol string, params []*regalloc.Register, ret types.Kind, export bool) {
	b.fn = &ir.Func{Name: symbol, ReturnType: irType(ret), Export: export}
	b.temps = make(map[*regalloc.Register]*ir.Temporary)
	b.prog.Funcs = append(b.prog.Funcs, b.fn)
	for _, p := range params {
		b.fn.Params = append(b.fn.Params, &ir.Param{Name: p.Name, Typ: irType(p.Type), Val: b.temp(p)})
	}
	b.cur = nil
	b.Label(b.NewLabel("start"))
}

func (b *IRBuilder) EndFunction() {
	if !b.terminated {
		var v ir.Value
		switch b.fn.ReturnType {
		case ir.TypeNone:
		case ir.TypeS, ir.TypeD:
			v = &ir.FloatConst{Typ: b.fn.ReturnType}
		default:
			v = &ir.Const{}
		}
		b.emitTerm(ir.OpRet, v)
	}
	b.fn, b.cur, b.temps = nil, nil, nil
}

func (b *IRBuilder) temp(r *regalloc.Register) *ir.Temporary {
	if t, ok := b.temps[r]; ok {
		return t
	}
	t := &ir.Temporary{Name: fmt.Sprintf("r%d", b.fn.NumTemps), ID: b.fn.NumTemps}
	b.fn.NumTemps++
	b.temps[r] = t
	return t
}

func (b *IRBuilder) scratch() *ir.Temporary {
	t := &ir.Temporary{Name: fmt.Sprintf("t%d", b.fn.NumTemps), ID: b.fn.NumTemps}
	b.fn.NumTemps++
	return t
}

func (b *IRBuilder) NewLabel(hint string) string {
	b.labels++
	return fmt.Sprintf("%s.%d", hint, b.labels)
}

func (b *IRBuilder) Label(name string) {
	b.cur = &ir.BasicBlock{Label: &ir.Label{Name: name}}
	b.fn.Blocks = append(b.fn.Blocks, b.cur)
	b.terminated = false
}

func (b *IRBuilder) Terminated() bool { return b.terminated }

func (b *IRBuilder) add(instr *ir.Instruction) {
	if b.terminated {
		b.Label(b.NewLabel("dead"))
	}
	b.cur.Instructions = append(b.cur.Instructions, instr)
}

func (b *IRBuilder) emitTerm(op ir.Op, args ...ir.Value) {
	var vals []ir.Value
	for _, a := range args {
		if a != nil {
			vals = append(vals, a)
		}
	}
	b.add(&ir.Instruction{Op: op, Args: vals})
	b.terminated = true
}

func (b *IRBuilder) Jump(label string) { b.emitTerm(ir.OpJmp, &ir.Label{Name: label}) }

func (b *IRBuilder) Branch(cond *regalloc.Register, ifTrue, ifFalse string) {
	b.emitTerm(ir.OpJnz, b.value(cond), &ir.Label{Name: ifTrue}, &ir.Label{Name: ifFalse})
}

// address returns a pointer value for the memory location r.
func (b *IRBuilder) address(r *regalloc.Register) ir.Value {
	var base ir.Value
	switch {
	case r.Global != "":
		base = &ir.Global{Name: r.Global}
	case r.Base != nil:
		base = b.value(r.Base)
	default:
		panic("emit: memory location without base")
	}
	if r.Offset == 0 {
		return base
	}
	t := b.scratch()
	b.add(&ir.Instruction{Op: ir.OpAdd, Typ: ir.TypePtr, Result: t, Args: []ir.Value{base, &ir.Const{Value: int64(r.Offset)}}})
	return t
}

// value returns an operand holding the scalar in r, loading memory locations.
func (b *IRBuilder) value(r *regalloc.Register) ir.Value {
	switch r.Kind {
	case regalloc.Immediate:
		switch r.Imm.Kind {
		case types.Float, types.Double:
			return &ir.FloatConst{Value: r.Imm.F, Typ: irType(r.Imm.Kind)}
		}
		return &ir.Const{Value: r.Imm.I}
	case regalloc.Memory:
		if r.Stored.IsMemoryBacked() {
			return b.address(r)
		}
		addr := b.address(r)
		t := b.scratch()
		b.add(&ir.Instruction{Op: ir.OpLoad, Typ: irType(r.Type), Result: t, Args: []ir.Value{addr}})
		return t
	}
	return b.temp(r)
}

func (b *IRBuilder) Move(dst, src *regalloc.Register) {
	if dst.Kind == regalloc.Memory {
		b.add(&ir.Instruction{Op: ir.OpStore, Typ: irType(dst.Type), Args: []ir.Value{b.value(src), b.address(dst)}})
		return
	}
	if src.Kind == regalloc.Memory && !src.Stored.IsMemoryBacked() {
		b.add(&ir.Instruction{Op: ir.OpLoad, Typ: irType(dst.Type), Result: b.temp(dst), Args: []ir.Value{b.address(src)}})
		return
	}
	b.add(&ir.Instruction{Op: ir.OpCopy, Typ: irType(dst.Type), Result: b.temp(dst), Args: []ir.Value{b.value(src)}})
}

var intOps = map[token.Type]ir.Op{
	token.Plus: ir.OpAdd, token.Minus: ir.OpSub, token.Star: ir.OpMul, token.Slash: ir.OpDiv,
	token.Rem: ir.OpRem, token.And: ir.OpAnd, token.Or: ir.OpOr, token.Xor: ir.OpXor,
	token.Shl: ir.OpShl, token.Shr: ir.OpShr,
}

var floatOps = map[token.Type]ir.Op{
	token.Plus: ir.OpAddF, token.Minus: ir.OpSubF, token.Star: ir.OpMulF, token.Slash: ir.OpDivF,
}

func (b *IRBuilder) Binary(op token.Type, dst, a, c *regalloc.Register) {
	typ := irType(dst.Type)
	if typ.IsFloat() && op == token.Rem {
		fn := "fmodf"
		if typ == ir.TypeD {
			fn = "fmod"
		}
		b.CallExtern(dst, fn, []*regalloc.Register{a, c})
		return
	}
	ops := intOps
	if typ.IsFloat() {
		ops = floatOps
	}
	irOp, ok := ops[op]
	if !ok {
		panic(fmt.Sprintf("emit: no %s instruction for operator %s", typ, op))
	}
	av, cv := b.value(a), b.value(c)
	b.add(&ir.Instruction{Op: irOp, Typ: typ, Result: b.temp(dst), Args: []ir.Value{av, cv}})
}

var compareOps = map[token.Type]ir.Op{
	token.EqEq: ir.OpCEq, token.Neq: ir.OpCNeq, token.Lt: ir.OpCLt,
	token.Gt: ir.OpCGt, token.Lte: ir.OpCLe, token.Gte: ir.OpCGe,
}

func (b *IRBuilder) Compare(op token.Type, dst, a, c *regalloc.Register) {
	av, cv := b.value(a), b.value(c)
	b.add(&ir.Instruction{Op: compareOps[op], Typ: ir.TypeW, OperandType: irType(a.Type), Result: b.temp(dst), Args: []ir.Value{av, cv}})
}

func (b *IRBuilder) Negate(dst, src *regalloc.Register) {
	op := ir.OpNeg
	if irType(dst.Type).IsFloat() {
		op = ir.OpNegF
	}
	b.add(&ir.Instruction{Op: op, Typ: irType(dst.Type), Result: b.temp(dst), Args: []ir.Value{b.value(src)}})
}

func (b *IRBuilder) Convert(dst, src *regalloc.Register) {
	to, from := irType(dst.Type), irType(src.Type)
	v := b.value(src)
	instr := &ir.Instruction{Typ: to, OperandType: from, Result: b.temp(dst), Args: []ir.Value{v}}
	switch {
	case to == from:
		instr.Op = ir.OpCopy
	case from == ir.TypeW && to.IsFloat():
		instr.Op = ir.OpSWToF
	case from.IsFloat() && to == ir.TypeW:
		instr.Op = ir.OpFToSI
	case from.IsFloat() && to.IsFloat():
		instr.Op = ir.OpFToF
	case from == ir.TypeW && to == ir.TypePtr:
		instr.Op = ir.OpExtSW
	default:
		panic(fmt.Sprintf("emit: can't convert %s to %s", src.Type, dst.Type))
	}
	b.add(instr)
}

func (b *IRBuilder) Address(dst, loc *regalloc.Register) {
	var v ir.Value
	if loc.Kind == regalloc.Memory {
		v = b.address(loc)
	} else {
		v = b.value(loc)
	}
	b.add(&ir.Instruction{Op: ir.OpCopy, Typ: ir.TypePtr, Result: b.temp(dst), Args: []ir.Value{v}})
}

// pointer returns the address designated by r, which is either a memory
// location or a register holding an address.
func (b *IRBuilder) pointer(r *regalloc.Register) ir.Value {
	if r.Kind == regalloc.Memory {
		return b.address(r)
	}
	return b.value(r)
}

func (b *IRBuilder) CopyBlock(dst, src *regalloc.Register, size int) {
	s, d := b.pointer(src), b.pointer(dst)
	b.add(&ir.Instruction{Op: ir.OpBlit, Args: []ir.Value{s, d, &ir.Const{Value: int64(size)}}})
}

// Zero clears size bytes at dst. Small areas are unrolled, larger ones use a loop.
func (b *IRBuilder) Zero(dst *regalloc.Register, size int) {
	base := b.pointer(dst)
	words := size / 4
	if words <= 16 {
		for i := 0; i < words; i++ {
			addr := base
			if i > 0 {
				t := b.scratch()
				b.add(&ir.Instruction{Op: ir.OpAdd, Typ: ir.TypePtr, Result: t, Args: []ir.Value{base, &ir.Const{Value: int64(i * 4)}}})
				addr = t
			}
			b.add(&ir.Instruction{Op: ir.OpStore, Typ: ir.TypeW, Args: []ir.Value{&ir.Const{}, addr}})
		}
		return
	}

	cursor, end, cond := b.scratch(), b.scratch(), b.scratch()
	b.add(&ir.Instruction{Op: ir.OpCopy, Typ: ir.TypePtr, Result: cursor, Args: []ir.Value{base}})
	b.add(&ir.Instruction{Op: ir.OpAdd, Typ: ir.TypePtr, Result: end, Args: []ir.Value{base, &ir.Const{Value: int64(words * 4)}}})
	loop, done := b.NewLabel("zero"), b.NewLabel("zero_end")
	b.Label(loop)
	b.add(&ir.Instruction{Op: ir.OpStore, Typ: ir.TypeW, Args: []ir.Value{&ir.Const{}, cursor}})
	b.add(&ir.Instruction{Op: ir.OpAdd, Typ: ir.TypePtr, Result: cursor, Args: []ir.Value{cursor, &ir.Const{Value: 4}}})
	b.add(&ir.Instruction{Op: ir.OpCLt, Typ: ir.TypeW, OperandType: ir.TypePtr, Result: cond, Args: []ir.Value{cursor, end}})
	b.emitTerm(ir.OpJnz, cond, &ir.Label{Name: loop}, &ir.Label{Name: done})
	b.Label(done)
}

// StackSlot reserves a frame slot. Slots are placed in the entry block so
// that they are allocated once per call even when requested inside a loop;
// dst receives the slot address where the request is made.
func (b *IRBuilder) StackSlot(dst *regalloc.Register, size, align int) {
	if size < 4 {
		size = 4
	}
	slot := b.scratch()
	instr := &ir.Instruction{Op: ir.OpAlloc, Typ: ir.TypePtr, Result: slot, Align: align, Args: []ir.Value{&ir.Const{Value: int64(size)}}}
	entry := b.fn.Blocks[0]
	n := 0
	for n < len(entry.Instructions) && entry.Instructions[n].Op == ir.OpAlloc {
		n++
	}
	entry.Instructions = append(entry.Instructions, nil)
	copy(entry.Instructions[n+1:], entry.Instructions[n:])
	entry.Instructions[n] = instr
	b.add(&ir.Instruction{Op: ir.OpCopy, Typ: ir.TypePtr, Result: b.temp(dst), Args: []ir.Value{slot}})
}

func (b *IRBuilder) Call(dst *regalloc.Register, symbol string, args []*regalloc.Register) {
	instr := &ir.Instruction{Op: ir.OpCall, Args: []ir.Value{&ir.Global{Name: symbol}}}
	for _, a := range args {
		instr.Args = append(instr.Args, b.value(a))
		instr.ArgTypes = append(instr.ArgTypes, irType(a.Type))
	}
	if dst != nil {
		instr.Typ = irType(dst.Type)
		instr.Result = b.temp(dst)
	}
	b.add(instr)
}

func (b *IRBuilder) CallExtern(dst *regalloc.Register, symbol string, args []*regalloc.Register) {
	b.prog.AddExtern(symbol)
	b.Call(dst, symbol, args)
}

func (b *IRBuilder) Return(value *regalloc.Register) {
	if value == nil {
		b.emitTerm(ir.OpRet)
		return
	}
	b.emitTerm(ir.OpRet, b.value(value))
}

func (b *IRBuilder) DefineGlobal(name string, size, align int, init map[int]types.Value) {
	d := &ir.Data{Name: name, Align: align, Export: true}
	offsets := make([]int, 0, len(init))
	for off := range init {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	pos := 0
	for _, off := range offsets {
		if off > pos {
			d.Items = append(d.Items, ir.DataItem{Count: off - pos})
			pos = off
		}
		v := init[off]
		typ := irType(v.Kind)
		item := ir.DataItem{Typ: typ, Value: &ir.Const{Value: v.I}}
		if typ.IsFloat() {
			item.Value = &ir.FloatConst{Value: v.F, Typ: typ}
		}
		d.Items = append(d.Items, item)
		pos += ir.SizeOfType(typ)
	}
	if size > pos {
		d.Items = append(d.Items, ir.DataItem{Count: size - pos})
	}
	b.prog.Globals = append(b.prog.Globals, d)
}

func (b *IRBuilder) RecordError(code rtcheck.Code, line, col int) {
	if b.prog.FindGlobal(rtcheck.Symbol) == nil {
		b.prog.Globals = append(b.prog.Globals, &ir.Data{Name: rtcheck.Symbol, Align: 4, Export: true, Items: []ir.DataItem{{Count: rtcheck.Size}}})
	}
	fields := []struct{ off, v int }{{rtcheck.CodeOffset, int(code)}, {rtcheck.LineOffset, line}, {rtcheck.ColumnOffset, col}}
	for _, f := range fields {
		addr := ir.Value(&ir.Global{Name: rtcheck.Symbol})
		if f.off != 0 {
			t := b.scratch()
			b.add(&ir.Instruction{Op: ir.OpAdd, Typ: ir.TypePtr, Result: t, Args: []ir.Value{addr, &ir.Const{Value: int64(f.off)}}})
			addr = t
		}
		b.add(&ir.Instruction{Op: ir.OpStore, Typ: ir.TypeW, Args: []ir.Value{&ir.Const{Value: int64(f.v)}, addr}})
	}
}

var _ Emitter = (*IRBuilder)(nil)
