package regalloc

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/gsc/pkg/types"
)

func TestTempReuse(t *testing.T) {
	p := NewPool(true)
	a := p.Temp(types.Integer)
	b := p.Temp(types.Float)
	be.True(t, a.ID != b.ID)

	p.FlagReusable(a)
	be.True(t, a.CanBeReused())
	// only a register of the same type is recycled
	c := p.Temp(types.Float)
	be.True(t, c != a)
	d := p.Temp(types.Integer)
	be.Equal(t, d, a)
	be.True(t, !d.IsReusable())

	be.Equal(t, p.Stats(), Stats{Allocated: 3, Reused: 1, Flagged: 1})
}

func TestNoReuse(t *testing.T) {
	p := NewPool(false)
	a := p.Temp(types.Integer)
	p.FlagReusable(a)
	be.True(t, !a.IsReusable())
	be.True(t, p.Temp(types.Integer) != a)
	be.Equal(t, p.Stats().Flagged, 0)
}

func TestScopes(t *testing.T) {
	p := NewPool(true)
	param := p.Param("x", types.Float)
	be.True(t, param.IsParameter())

	p.PushScope()
	be.Equal(t, p.Depth(), 1)
	v := p.Variable("acc", types.Float)
	be.True(t, v.IsVariable())
	be.Equal(t, v.String(), "r2(acc)")
	p.PopScope()
	be.True(t, v.IsReusable())
	be.Equal(t, p.Depth(), 0)

	// the outer scope survives extra pops
	p.PopScope()
	be.Equal(t, p.Depth(), 0)

	p.FlagReusable(param)
	be.True(t, !param.IsReusable())

	r := p.Reuse(v)
	be.Equal(t, r, v)
	be.True(t, !r.IsVariable())
	be.Equal(t, r.Name, "")
}

func TestClaim(t *testing.T) {
	p := NewPool(true)
	r := p.Temp(types.Integer)
	be.Err(t, p.Claim(r, 4), nil)
	be.Err(t, p.Claim(r, 4), nil)
	be.Err(t, p.Claim(r, 5), "already owned by node 4")
	p.Release(r, 5)
	be.Equal(t, r.Owner(), 4)
	p.Release(r, 4)
	be.Equal(t, r.Owner(), 0)

	p.FlagReusable(r)
	be.Err(t, p.Claim(r, 6), "flagged reusable")
	be.Err(t, p.Claim(p.Immediate(types.IntValue(1)), 6), nil)
}

func TestMemory(t *testing.T) {
	p := NewPool(true)
	g := p.Memory(nil, "voices", 0, types.FromComplex(types.NewSpan(types.FloatType, 4)))
	be.True(t, g.IsMemory())
	be.Equal(t, g.Type, types.Pointer)
	el := p.Memory(g, "", 8, types.FloatType)
	be.Equal(t, el.Global, "voices")
	be.Equal(t, el.Offset, 8)
	be.Equal(t, el.Type, types.Float)
	be.Equal(t, el.String(), "[voices+8]")

	base := p.Temp(types.Pointer)
	m := p.Memory(base, "", 4, types.FloatType)
	be.Equal(t, m.Base, base)
	be.Equal(t, m.String(), "[r1+4]")

	imm := p.Immediate(types.FloatValue(0.5))
	be.True(t, imm.IsImmediate())
	be.Equal(t, imm.String(), "imm(0.5f)")
}
