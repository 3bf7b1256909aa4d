package vm

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/gsc/pkg/emit"
	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/rtcheck"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
)

func imm(v types.Value) *regalloc.Register { return regalloc.NewPool(false).Immediate(v) }

// sumProgram counts i from 0 to n and adds it up.
func sumProgram() *ir.Program {
	b := emit.NewIRBuilder(8)
	p := regalloc.NewPool(false)
	n := p.Param("n", types.Integer)
	i, acc, cond := p.Variable("i", types.Integer), p.Variable("acc", types.Integer), p.Temp(types.Integer)

	b.BeginFunction("sum", []*regalloc.Register{n}, types.Integer, true)
	b.Move(i, imm(types.IntValue(0)))
	b.Move(acc, imm(types.IntValue(0)))
	head, body, end := b.NewLabel("head"), b.NewLabel("body"), b.NewLabel("end")
	b.Jump(head)
	b.Label(head)
	b.Compare(token.Lt, cond, i, n)
	b.Branch(cond, body, end)
	b.Label(body)
	b.Binary(token.Plus, acc, acc, i)
	b.Binary(token.Plus, i, i, imm(types.IntValue(1)))
	b.Jump(head)
	b.Label(end)
	b.Return(acc)
	b.EndFunction()
	return b.Program()
}

func TestCallLoop(t *testing.T) {
	m := New(sumProgram(), nil)
	got, err := m.Call(context.Background(), "sum", 5)
	be.Err(t, err, nil)
	be.Equal(t, got, uint64(10))

	_, err = m.Call(context.Background(), "sum")
	be.Err(t, err, "expects 1 arguments")
	_, err = m.Call(context.Background(), "nope")
	be.Err(t, err, "undefined function nope")
}

func TestCancel(t *testing.T) {
	b := emit.NewIRBuilder(8)
	b.BeginFunction("spin", nil, types.Void, true)
	loop := b.NewLabel("loop")
	b.Jump(loop)
	b.Label(loop)
	b.Jump(loop)
	b.EndFunction()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(b.Program(), nil).Call(ctx, "spin")
	be.True(t, errors.Is(err, context.Canceled))
}

func TestStackOverflow(t *testing.T) {
	b := emit.NewIRBuilder(8)
	b.BeginFunction("down", nil, types.Void, true)
	b.Call(nil, "down", nil)
	b.Return(nil)
	b.EndFunction()

	_, err := New(b.Program(), nil).Call(context.Background(), "down")
	be.Err(t, err, ErrStackOverflow)
}

func TestFloatsAndExterns(t *testing.T) {
	b := emit.NewIRBuilder(8)
	p := regalloc.NewPool(false)
	x := p.Param("x", types.Float)
	half, root, wide := p.Temp(types.Float), p.Temp(types.Float), p.Temp(types.Double)

	b.BeginFunction("f", []*regalloc.Register{x}, types.Double, true)
	b.Binary(token.Star, half, x, imm(types.FloatValue(0.5)))
	b.CallExtern(root, "sqrtf", []*regalloc.Register{half})
	b.Convert(wide, root)
	b.Return(wide)
	b.EndFunction()

	prog := b.Program()
	be.Equal(t, prog.ExtrnFuncs, []string{"sqrtf"})
	got, err := New(prog, nil).Call(context.Background(), "f", uint64(math.Float32bits(8)))
	be.Err(t, err, nil)
	be.Equal(t, math.Float64frombits(got), 2.0)
}

func TestDivisionByZero(t *testing.T) {
	b := emit.NewIRBuilder(8)
	p := regalloc.NewPool(false)
	x, y, q := p.Param("x", types.Integer), p.Param("y", types.Integer), p.Temp(types.Integer)
	b.BeginFunction("div", []*regalloc.Register{x, y}, types.Integer, true)
	b.Binary(token.Slash, q, x, y)
	b.Return(q)
	b.EndFunction()

	m := New(b.Program(), nil)
	got, err := m.Call(context.Background(), "div", uint64(uint32(0xfffffff9)), 2) // -7 / 2
	be.Err(t, err, nil)
	be.Equal(t, int32(got), int32(-3))
	_, err = m.Call(context.Background(), "div", 1, 0)
	be.Err(t, err, ErrDivisionByZero)
}

func TestGlobalsAndStack(t *testing.T) {
	b := emit.NewIRBuilder(8)
	p := regalloc.NewPool(false)
	b.DefineGlobal("table", 12, 4, map[int]types.Value{0: types.IntValue(7), 8: types.IntValue(9)})

	slot, r := p.Temp(types.Pointer), p.Temp(types.Integer)
	b.BeginFunction("f", nil, types.Integer, true)
	b.StackSlot(slot, 8, 4)
	b.Zero(slot, 8)
	local := p.Memory(slot, "", 4, types.IntType)
	b.Move(r, p.Memory(nil, "table", 8, types.IntType))
	b.Move(local, r)
	b.Move(r, local)
	b.Return(r)
	b.EndFunction()

	m := New(b.Program(), nil)
	got, err := m.Call(context.Background(), "f")
	be.Err(t, err, nil)
	be.Equal(t, got, uint64(9))

	addr, ok := m.GlobalAddress("table")
	be.True(t, ok)
	mem, err := m.Bytes(addr, 12)
	be.Err(t, err, nil)
	be.Equal(t, mem, []byte{7, 0, 0, 0, 0, 0, 0, 0, 9, 0, 0, 0})

	_, err = m.Bytes(addr, 13)
	var merr *MemoryError
	be.True(t, errors.As(err, &merr))
	_, err = m.Bytes(0, 1)
	be.True(t, err != nil)
}

func TestRecordError(t *testing.T) {
	b := emit.NewIRBuilder(8)
	b.BeginFunction("fail", nil, types.Void, true)
	b.RecordError(rtcheck.IndexOutOfBounds, 3, 14)
	b.Return(nil)
	b.EndFunction()

	region, err := rtcheck.NewRegion()
	be.Err(t, err, nil)
	defer region.Close()

	_, err = New(b.Program(), region).Call(context.Background(), "fail")
	be.Err(t, err, nil)
	be.Equal(t, *region.Poll(), rtcheck.Error{Code: rtcheck.IndexOutOfBounds, Line: 3, Column: 14})
}

func TestMarkRelease(t *testing.T) {
	m := New(&ir.Program{}, nil)
	mark := m.Mark()
	a := m.Alloc(4)
	_, err := m.Bytes(a, 4)
	be.Err(t, err, nil)
	m.Release(mark)
	_, err = m.Bytes(a, 4)
	be.True(t, err != nil)
}
