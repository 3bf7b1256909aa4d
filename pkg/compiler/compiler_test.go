package compiler

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/codegen"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/parser"
	"github.com/xplshn/gsc/pkg/rtcheck"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/vm"
)

func parse(t *testing.T, src string) *ast.Tree {
	t.Helper()
	tree, err := parser.ParseSource([]rune(src), 0)
	be.Err(t, err, nil)
	return tree
}

func compile(t *testing.T, src string) (*Compiler, *Result, error) {
	t.Helper()
	c := New(nil, nil)
	res, err := c.Compile(context.Background(), parse(t, src))
	return c, res, err
}

// findFunc returns the first function node called name.
func findFunc(tree *ast.Tree, name string) ast.NodeID {
	found := ast.NoNode
	tree.Walk(tree.Root(), func(id ast.NodeID) bool {
		if found.IsValid() {
			return false
		}
		if fn, ok := tree.Node(id).Data.(*ast.Func); ok && fn.Sig.ID.String() == name {
			found = id
		}
		return true
	})
	return found
}

func collect(tree *ast.Tree, from ast.NodeID, kinds ...ast.Kind) []ast.NodeID {
	var out []ast.NodeID
	tree.Walk(from, func(id ast.NodeID) bool {
		for _, k := range kinds {
			if tree.Kind(id) == k {
				out = append(out, id)
			}
		}
		return true
	})
	return out
}

func TestPasses(t *testing.T) {
	ps := Passes()
	be.Equal(t, len(ps), 9)
	be.Equal(t, ps[0], Parsing)
	be.Equal(t, ps[len(ps)-1], CodeGeneration)
	be.Equal(t, TypeCheck.String(), "TypeCheck")
	be.Equal(t, Pass(42).String(), "Pass(42)")
}

func TestImplicitCastKeepsLeftType(t *testing.T) {
	const src = `
float scaled(float a, int b) { return a * b; }
int less(int a, float b) { return a < b; }
int narrowed(int a, double b) { return a + b; }
`
	_, res, err := compile(t, src)
	be.Err(t, err, nil)

	ops := collect(res.Tree, res.Tree.Root(), ast.BinaryOp, ast.Compare)
	be.Equal(t, len(ops), 3)
	want := []struct {
		result string
		cast   string
	}{
		{"float", "float"},
		{"int", "int"},
		{"int", "int"},
	}
	for i, id := range ops {
		n := res.Tree.Node(id)
		be.Equal(t, n.Type.String(), want[i].result)
		rhs := res.Tree.Node(res.Tree.Child(id, 1))
		be.Equal(t, rhs.Kind, ast.Cast)
		d := rhs.Data.(*ast.CastData)
		be.True(t, d.Implicit)
		be.Equal(t, d.Target.String(), want[i].cast)
		lhs := res.Tree.Node(res.Tree.Child(id, 0))
		be.Equal(t, lhs.Kind, ast.VariableReference)
	}

	var msgs []string
	for _, w := range res.Warnings {
		msgs = append(msgs, w.Message)
	}
	wantMsgs := []string{
		"implicit cast from int to float",
		"implicit cast from float to int",
		"implicit cast from double to int",
	}
	for _, m := range wantMsgs {
		be.True(t, contains(msgs, m))
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func TestLiteralOperandsAreCast(t *testing.T) {
	tests := []struct {
		src  string
		cast string
		lit  types.Value
		warn string
	}{
		{"float half(float a) { return a * 2; }", "float", types.IntValue(2), "implicit cast from int to float"},
		{"int below(int a) { return a < 2.5f; }", "int", types.FloatValue(2.5), "implicit cast from float to int"},
	}
	for _, tt := range tests {
		_, res, err := compile(t, tt.src)
		be.Err(t, err, nil)
		op := collect(res.Tree, res.Tree.Root(), ast.BinaryOp, ast.Compare)[0]
		rhs := res.Tree.Child(op, 1)
		be.Equal(t, res.Tree.Kind(rhs), ast.Cast)
		be.Equal(t, res.Tree.Node(rhs).Type.String(), tt.cast)
		lit := res.Tree.Node(res.Tree.Child(rhs, 0))
		be.Equal(t, lit.Kind, ast.Immediate)
		be.Equal(t, lit.Value, tt.lit)
		be.Equal(t, len(res.Warnings), 1)
		be.Equal(t, res.Warnings[0].Message, tt.warn)
	}
}

func TestLiteralCastsFold(t *testing.T) {
	_, res, err := compile(t, "float k() { return 1.5f * 2; }\nint z(int a) { return a / 0.5f; }")
	be.Err(t, err, "division by zero")
	ret := collect(res.Tree, findFunc(res.Tree, "k"), ast.ReturnStatement)[0]
	v := res.Tree.Node(res.Tree.Child(ret, 0))
	be.Equal(t, v.Kind, ast.Immediate)
	be.Equal(t, v.Value, types.FloatValue(3))
}

func TestInitialisersConvertLosslessLiterals(t *testing.T) {
	_, res, err := compile(t, "float f() { float y = 2; int n = 2.5f; return y + n; }")
	be.Err(t, err, nil)
	assigns := collect(res.Tree, findFunc(res.Tree, "f"), ast.Assignment)
	be.Equal(t, len(assigns), 2)
	be.Equal(t, res.Tree.Kind(res.Tree.Child(assigns[0], 0)), ast.Immediate)
	be.Equal(t, res.Tree.Node(res.Tree.Child(assigns[0], 0)).Value, types.FloatValue(2))
	// 2.5f doesn't survive the conversion, which is reported
	be.Equal(t, res.Tree.Node(res.Tree.Child(assigns[1], 0)).Value, types.IntValue(2))
	var msgs []string
	for _, w := range res.Warnings {
		msgs = append(msgs, w.Message)
	}
	be.True(t, contains(msgs, "implicit cast from float to int changes 2.5f to 2"))
	// the other one comes from y + n
	be.Equal(t, len(msgs), 2)

	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatFold, false)
	res, err = New(cfg, nil).Compile(context.Background(), parse(t, "int f() { int n = 2.5f; return n; }"))
	be.Err(t, err, nil)
	assigns = collect(res.Tree, findFunc(res.Tree, "f"), ast.Assignment)
	be.Equal(t, res.Tree.Kind(res.Tree.Child(assigns[0], 0)), ast.Cast)
	be.Equal(t, res.Warnings[0].Message, "implicit cast from float to int")
}

func lastRefNames(c *Compiler, tree *ast.Tree, fn ast.NodeID) []ast.NodeID {
	var out []ast.NodeID
	for _, id := range collect(tree, fn, ast.VariableReference) {
		if c.lastRefs[id] {
			out = append(out, id)
		}
	}
	return out
}

func refName(tree *ast.Tree, id ast.NodeID) string {
	return tree.Node(id).Data.(*ast.VarRef).ID.String()
}

func TestLastReferences(t *testing.T) {
	const src = `
int chain(int a) {
    int b = a + 1;
    int c = b * 2;
    return c + b;
}

int loop(int n) {
    int acc = 0;
    int k = 3;
    while (n > 0) {
        acc += k;
        n--;
    }
    return acc;
}

int pick(int a) {
    int x = a;
    if (a > 0)
        return x;
    return 0;
}
`
	c, res, err := compile(t, src)
	be.Err(t, err, nil)
	tree := res.Tree

	// params never take part, each local is flagged once
	last := lastRefNames(c, tree, findFunc(tree, "chain"))
	be.Equal(t, len(last), 2)
	for _, id := range last {
		be.True(t, tree.FindParent(id, ast.ReturnStatement).IsValid())
	}
	be.Equal(t, refName(tree, last[0]), "c")
	be.Equal(t, refName(tree, last[1]), "b")

	// k is only read inside the loop, so it is never released
	last = lastRefNames(c, tree, findFunc(tree, "loop"))
	be.Equal(t, len(last), 1)
	be.Equal(t, refName(tree, last[0]), "acc")
	be.True(t, tree.FindParent(last[0], ast.ReturnStatement).IsValid())

	// the scan ignores that the branch may not be taken
	last = lastRefNames(c, tree, findFunc(tree, "pick"))
	be.Equal(t, len(last), 1)
	be.Equal(t, refName(tree, last[0]), "x")
	be.True(t, tree.FindParent(last[0], ast.IfStatement).IsValid())
}

func TestAssignToNonLvalue(t *testing.T) {
	tests := []string{
		"int one() { return 1; }\nvoid f() { one() = 2; }",
		"void f(int a) { a + 1 = 3; }",
		"void f() { 2 = 3; }",
	}
	for _, src := range tests {
		_, _, err := compile(t, src)
		be.Err(t, err, "Can't assign to this expression")
	}
}

func TestEndlessLoop(t *testing.T) {
	tests := []string{
		"void f() { while (1) { } }",
		"void f() { while (2 > 1) { } }",
		"const int on = 1;\nvoid f() { while (on) { } }",
	}
	for _, src := range tests {
		_, res, err := compile(t, src)
		be.Err(t, err, "endless loop detected")
		be.Equal(t, len(res.Lookup("f")), 0)
	}

	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatFold, false)
	for _, src := range tests {
		res, err := New(cfg, nil).Compile(context.Background(), parse(t, src))
		be.Err(t, err, "endless loop detected")
		be.Equal(t, len(res.Lookup("f")), 0)
	}

	_, res, err := compile(t, "void f() { while (0) { } }")
	be.Err(t, err, nil)
	be.Equal(t, len(res.Lookup("f")), 1)
}

func TestCloneCompilesIdentically(t *testing.T) {
	const src = `
float stage(float x, int n) {
    float y = x * n;
    return y;
    y = 0.0f;
}
`
	base := parse(t, src)
	orig := findFunc(base, "stage")

	cloned := parse(t, src)
	from := findFunc(cloned, "stage")
	clone := cloned.Clone(from)

	var lhs, rhs []ast.NodeID
	cloned.Walk(from, func(id ast.NodeID) bool { lhs = append(lhs, id); return true })
	cloned.Walk(clone, func(id ast.NodeID) bool { rhs = append(rhs, id); return true })
	be.Equal(t, len(lhs), len(rhs))
	for i := range lhs {
		o, n := cloned.Node(lhs[i]), cloned.Node(rhs[i])
		be.True(t, o != n)
		be.Equal(t, o.Kind, n.Kind)
		if o.Data != nil && n.Data != nil {
			be.True(t, o.Data != n.Data)
		}
	}
	cloned.Replace(from, clone)

	first, err := New(nil, nil).Compile(context.Background(), base)
	be.Err(t, err, nil)
	second, err := New(nil, nil).Compile(context.Background(), cloned)
	be.Err(t, err, nil)

	be.Equal(t, len(first.Functions), 1)
	be.Equal(t, len(second.Functions), 1)
	be.Equal(t, first.Functions[0].Node, orig)
	be.Equal(t, second.Functions[0].Node, clone)
	be.Equal(t, first.Functions[0].Sig.String(), second.Functions[0].Sig.String())

	if diff := cmp.Diff(base.Dump(orig), cloned.Dump(clone)); diff != "" {
		t.Errorf("compiled trees differ (-original +clone):\n%s", diff)
	}

	diags := func(r *Result) []string {
		var out []string
		for _, w := range r.Warnings {
			out = append(out, w.Error())
		}
		return out
	}
	be.Equal(t, len(diags(first)), 2)
	if diff := cmp.Diff(diags(first), diags(second)); diff != "" {
		t.Errorf("diagnostics differ (-original +clone):\n%s", diff)
	}

	backend := codegen.NewQBEBackend()
	a, err := backend.GenerateIR(first.Program, config.NewConfig())
	be.Err(t, err, nil)
	b, err := backend.GenerateIR(second.Program, config.NewConfig())
	be.Err(t, err, nil)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("IL differs (-original +clone):\n%s", diff)
	}
}

func TestSpanLoop(t *testing.T) {
	const src = `
span<float, 8> data = { 1.0f, 2.0f, 3.0f, 4.0f, 5.0f, 6.0f, 7.0f, 8.0f };

void scale() {
    for (auto x : data)
        x = x * 2;
}
`
	_, res, err := compile(t, src)
	be.Err(t, err, nil)

	loops := collect(res.Tree, findFunc(res.Tree, "scale"), ast.Loop)
	be.Equal(t, len(loops), 1)
	d := res.Tree.Node(loops[0]).Data.(*ast.LoopData)
	be.Equal(t, d.Target, ast.LoopSpan)
	be.Equal(t, d.Symbol.Type.String(), "float")
	be.True(t, d.Load)
	be.True(t, d.Store)

	// the bound is a constant: 8 elements of 4 bytes
	fn := findIRFunc(res.Program, "scale")
	be.True(t, fn != nil)
	be.True(t, hasAddConst(fn, 32))
	be.True(t, res.Program.FindGlobal(rtcheck.Symbol) == nil)

	m := vm.New(res.Program, nil)
	_, err = m.Call(context.Background(), "scale")
	be.Err(t, err, nil)
	addr, ok := m.GlobalAddress("data")
	be.True(t, ok)
	mem, err := m.Bytes(addr, 32)
	be.Err(t, err, nil)
	var got []float32
	for i := 0; i < 8; i++ {
		got = append(got, math.Float32frombits(binary.LittleEndian.Uint32(mem[i*4:])))
	}
	be.Equal(t, got, []float32{2, 4, 6, 8, 10, 12, 14, 16})
}

func findIRFunc(p *ir.Program, name string) *ir.Func {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func hasAddConst(fn *ir.Func, v int64) bool {
	for _, b := range fn.Blocks {
		for _, in := range b.Instructions {
			if in.Op != ir.OpAdd {
				continue
			}
			for _, a := range in.Args {
				if c, ok := a.(*ir.Const); ok && c.Value == v {
					return true
				}
			}
		}
	}
	return false
}

func TestIteratorAnalysis(t *testing.T) {
	const src = `
span<int, 4> v = { 1, 2, 3, 4 };

int readOnly() {
    int s = 0;
    for (int x : v)
        s += x;
    return s;
}

void writeOnly() {
    for (int x : v)
        x = 0;
}

void selfAssign() {
    for (int x : v)
        x = x;
}
`
	_, res, err := compile(t, src)
	be.Err(t, err, nil)

	tests := []struct {
		fn          string
		load, store bool
	}{
		{"readOnly", true, false},
		{"writeOnly", false, true},
		{"selfAssign", false, false},
	}
	for _, tt := range tests {
		loops := collect(res.Tree, findFunc(res.Tree, tt.fn), ast.Loop)
		d := res.Tree.Node(loops[0]).Data.(*ast.LoopData)
		be.Equal(t, d.Load, tt.load)
		be.Equal(t, d.Store, tt.store)
	}
}

func TestCallersOfFailedFunctionsAreDropped(t *testing.T) {
	const src = `
int one(int x) { return x + 1; }
int mid(int x) { return one(x) * 2; }
int top(int x) { return mid(x) - 3; }
int other(int x) { return x; }
`
	c, res, err := compile(t, src)
	be.Err(t, err, nil)
	be.Equal(t, len(c.funcs), 4)

	one := res.Lookup("one")[0]
	mid, top, other := res.Lookup("mid")[0].Symbol, res.Lookup("top")[0].Symbol, res.Lookup("other")[0].Symbol
	res.Tree.Node(one.Node).Data.(*ast.Func).Failed = true
	c.builder.Discard(one.Symbol)
	c.dropBrokenCallers()

	var names []string
	for _, f := range c.funcs {
		names = append(names, f.Sig.ID.String())
	}
	be.Equal(t, names, []string{"one", "other"})
	be.True(t, res.Program.FindFunc(mid) == nil)
	be.True(t, res.Program.FindFunc(top) == nil)
	be.True(t, res.Program.FindFunc(other) != nil)
	be.Err(t, errors.Join(c.errs...), "which failed to compile")
	be.Equal(t, len(c.errs), 2)
}

func TestInstancesCompileNarrowestFirst(t *testing.T) {
	const src = `
template <int... Ns> int width(int x) { return x; }

int wide(int x) { return width<1, 2>(x); }
int narrow(int x) { return width<1>(x); }
`
	c, res, err := compile(t, src)
	be.Err(t, err, nil)

	insts := res.Lookup("width")
	be.Equal(t, len(insts), 2)
	be.Equal(t, len(insts[0].Sig.TemplateArgs), 1)
	be.Equal(t, len(insts[1].Sig.TemplateArgs), 2)

	defs := collect(res.Tree, res.Tree.Root(), ast.TemplateDefinition)
	be.Equal(t, len(defs), 1)
	children := res.Tree.Node(defs[0]).Children
	be.Equal(t, len(children), 3)
	// instantiated in call order, wide first
	wideID, narrowID := children[1], children[2]
	be.Equal(t, res.Tree.Node(wideID).Data.(*ast.Func).TemplateN, 2)
	be.Equal(t, res.Tree.Node(narrowID).Data.(*ast.Func).TemplateN, 1)

	callInto := func(from, to ast.NodeID) {
		call := res.Tree.New(ast.FunctionCall, token.Token{Line: 9, Column: 1}, &ast.Call{ID: types.NewIdentifier("width"), Target: to})
		res.Tree.AddChild(res.Tree.Child(from, 0), call)
	}

	// the narrow instance may not reach into a wider one that is pending
	callInto(narrowID, wideID)
	res.Tree.Node(wideID).Data.(*ast.Func).Compiled = false
	be.Err(t, c.checkInstanceOrder(narrowID), "which is not compiled yet")
	res.Tree.Node(wideID).Data.(*ast.Func).Compiled = true
	be.Err(t, c.checkInstanceOrder(narrowID), nil)

	// calling down is always fine
	callInto(wideID, narrowID)
	res.Tree.Node(narrowID).Data.(*ast.Func).Compiled = false
	be.Err(t, c.checkInstanceOrder(wideID), nil)
}

func TestDiagnosticsAreCollected(t *testing.T) {
	const src = `
int a() { return missing; }
int b() { return 1; }
int c() { return other; }
`
	_, res, err := compile(t, src)
	be.Err(t, err, "Use of undefined variable missing")
	be.Err(t, err, "Use of undefined variable other")
	be.Equal(t, len(res.Functions), 1)
	be.Equal(t, res.Functions[0].Sig.ID.String(), "b")
}

func TestCompileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil, nil).Compile(ctx, parse(t, "int f() { return 1; }"))
	be.True(t, errors.Is(err, context.Canceled))
	be.Err(t, err, "compilation aborted before Parsing")
}
