package emit

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/rtcheck"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
)

func ops(bb *ir.BasicBlock) []ir.Op {
	out := make([]ir.Op, len(bb.Instructions))
	for i, in := range bb.Instructions {
		out[i] = in.Op
	}
	return out
}

func TestDefaultReturn(t *testing.T) {
	b := NewIRBuilder(8)
	b.BeginFunction("f", nil, types.Float, false)
	b.EndFunction()
	fn := b.Program().FindFunc("f")
	be.Equal(t, len(fn.Blocks), 1)
	ret := fn.Blocks[0].Instructions[0]
	be.Equal(t, ret.Op, ir.OpRet)
	be.Equal(t, ret.Args[0].String(), "s_0")
	be.True(t, !fn.Export)
}

func TestDeadCodeStartsBlock(t *testing.T) {
	b := NewIRBuilder(8)
	p := regalloc.NewPool(false)
	x := p.Param("x", types.Integer)
	r := p.Temp(types.Integer)
	b.BeginFunction("f", []*regalloc.Register{x}, types.Integer, true)
	b.Return(x)
	be.True(t, b.Terminated())
	b.Negate(r, x)
	b.Return(r)
	b.EndFunction()

	fn := b.Program().FindFunc("f")
	be.Equal(t, len(fn.Blocks), 2)
	be.Equal(t, ops(fn.Blocks[1]), []ir.Op{ir.OpNeg, ir.OpRet})
	be.Equal(t, fn.Params[0].Val.Name, "r0")
	be.Equal(t, fn.NumTemps, 2)
}

func TestStackSlotsGoToEntry(t *testing.T) {
	b := NewIRBuilder(8)
	p := regalloc.NewPool(false)
	a, c := p.Temp(types.Pointer), p.Temp(types.Pointer)
	b.BeginFunction("f", nil, types.Void, true)
	loop := b.NewLabel("loop")
	b.Label(loop)
	b.StackSlot(a, 2, 4)
	b.StackSlot(c, 16, 8)
	b.EndFunction()

	fn := b.Program().FindFunc("f")
	entry := fn.Blocks[0].Instructions
	be.Equal(t, len(entry), 2)
	be.Equal(t, entry[0].Op, ir.OpAlloc)
	be.Equal(t, entry[0].Args[0].String(), "4")
	be.Equal(t, entry[1].Align, 8)
	be.Equal(t, ops(fn.Blocks[1]), []ir.Op{ir.OpCopy, ir.OpCopy, ir.OpRet})
}

func TestFloatRemainderCallsLibm(t *testing.T) {
	b := NewIRBuilder(8)
	p := regalloc.NewPool(false)
	x, y, r := p.Param("x", types.Double), p.Param("y", types.Double), p.Temp(types.Double)
	b.BeginFunction("f", []*regalloc.Register{x, y}, types.Double, true)
	b.Binary(token.Rem, r, x, y)
	b.Return(r)
	b.EndFunction()

	prog := b.Program()
	be.Equal(t, prog.ExtrnFuncs, []string{"fmod"})
	call := prog.Funcs[0].Blocks[0].Instructions[0]
	be.Equal(t, call.Op, ir.OpCall)
	be.Equal(t, call.ArgTypes, []ir.Type{ir.TypeD, ir.TypeD})
}

func TestDefineGlobal(t *testing.T) {
	b := NewIRBuilder(8)
	b.DefineGlobal("g", 16, 8, map[int]types.Value{4: types.FloatValue(1), 8: types.DoubleValue(2)})
	d := b.Program().FindGlobal("g")
	be.Equal(t, d.Size(), 16)
	be.Equal(t, len(d.Items), 3)
	be.Equal(t, d.Items[0], ir.DataItem{Count: 4})
	be.Equal(t, d.Items[1].Typ, ir.TypeS)
	be.Equal(t, d.Items[2].Value.String(), "d_2")
}

func TestRecordErrorDefinesRegionOnce(t *testing.T) {
	b := NewIRBuilder(8)
	b.BeginFunction("f", nil, types.Void, true)
	b.RecordError(rtcheck.WhileLoop, 1, 2)
	b.RecordError(rtcheck.DivisionByZero, 3, 4)
	b.EndFunction()

	prog := b.Program()
	n := 0
	for _, g := range prog.Globals {
		if g.Name == rtcheck.Symbol {
			n++
			be.Equal(t, g.Size(), rtcheck.Size)
		}
	}
	be.Equal(t, n, 1)
}

func TestConvert(t *testing.T) {
	b := NewIRBuilder(8)
	p := regalloc.NewPool(false)
	i := p.Param("i", types.Integer)
	f, back, ptr := p.Temp(types.Float), p.Temp(types.Integer), p.Temp(types.Pointer)
	b.BeginFunction("f", []*regalloc.Register{i}, types.Integer, true)
	b.Convert(f, i)
	b.Convert(back, f)
	b.Convert(ptr, back)
	b.Return(back)
	b.EndFunction()

	got := ops(b.Program().Funcs[0].Blocks[0])
	be.Equal(t, got, []ir.Op{ir.OpSWToF, ir.OpFToSI, ir.OpExtSW, ir.OpRet})
}
