package codegen

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/emit"
	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
)

func sumProgram() *ir.Program {
	b := emit.NewIRBuilder(8)
	p := regalloc.NewPool(false)
	b.DefineGlobal("table", 12, 4, map[int]types.Value{0: types.IntValue(7), 8: types.IntValue(9)})

	n := p.Param("n", types.Integer)
	i, acc, cond := p.Variable("i", types.Integer), p.Variable("acc", types.Integer), p.Temp(types.Integer)
	zero, one := p.Immediate(types.IntValue(0)), p.Immediate(types.IntValue(1))

	b.BeginFunction("sum", []*regalloc.Register{n}, types.Integer, true)
	b.Move(i, zero)
	b.Move(acc, zero)
	head, body, end := b.NewLabel("head"), b.NewLabel("body"), b.NewLabel("end")
	b.Jump(head)
	b.Label(head)
	b.Compare(token.Lt, cond, i, n)
	b.Branch(cond, body, end)
	b.Label(body)
	b.Binary(token.Plus, acc, acc, i)
	b.Binary(token.Plus, i, i, one)
	b.Jump(head)
	b.Label(end)
	b.Return(acc)
	b.EndFunction()
	return b.Program()
}

func TestGenerateIR(t *testing.T) {
	got, err := NewQBEBackend().GenerateIR(sumProgram(), config.NewConfig())
	be.Err(t, err, nil)
	want := `export data $table = align 4 { w 7, z 4, w 9 }

export function w $sum(w %r0) {
@start.1
	%r1 =w copy 0
	%r2 =w copy 0
	jmp @head.2
@head.2
	%r3 =w csltw %r1, %r0
	jnz %r3, @body.3, @end.4
@body.3
	%r2 =w add %r2, %r1
	%r1 =w add %r1, 1
	jmp @head.2
@end.4
	ret %r2
}
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("IL mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateFloatOps(t *testing.T) {
	b := emit.NewIRBuilder(8)
	p := regalloc.NewPool(false)
	x := p.Param("x", types.Float)
	d, back, isNeg, slot := p.Temp(types.Double), p.Temp(types.Float), p.Temp(types.Integer), p.Temp(types.Pointer)
	b.BeginFunction("f", []*regalloc.Register{x}, types.Float, false)
	b.StackSlot(slot, 16, 16)
	b.Convert(d, x)
	b.Convert(back, d)
	b.Compare(token.Lt, isNeg, back, p.Immediate(types.FloatValue(0)))
	b.CallExtern(back, "fabsf", []*regalloc.Register{back})
	b.Return(back)
	b.EndFunction()

	il, err := NewQBEBackend().GenerateIR(b.Program(), config.NewConfig())
	be.Err(t, err, nil)
	for _, want := range []string{
		"function s $f(s %r0) {",
		"%t1 =l alloc16 16",
		"%r2 =l copy %t1",
		"%r3 =d exts %r0",
		"%r4 =s truncd %r3",
		"%r5 =w clts %r4, s_0",
		"%r4 =s call $fabsf(s %r4)",
	} {
		be.True(t, strings.Contains(il, want))
	}
}

func TestGenerateUnsupported(t *testing.T) {
	prog := &ir.Program{Funcs: []*ir.Func{{
		Name:   "bad",
		Blocks: []*ir.BasicBlock{{Label: &ir.Label{Name: "start"}, Instructions: []*ir.Instruction{{Op: ir.Op(999)}}}},
	}}}
	_, err := NewQBEBackend().GenerateIR(prog, config.NewConfig())
	be.Err(t, err, "function bad: unsupported instruction op(999)")
}

func TestGenerateAssembly(t *testing.T) {
	cfg := config.NewConfig()
	asm, err := NewQBEBackend().Generate(sumProgram(), cfg)
	be.Err(t, err, nil)
	be.True(t, strings.Contains(asm.String(), "sum"))
}
