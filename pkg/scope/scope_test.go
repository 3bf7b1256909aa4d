package scope

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
)

func variable(name string, t types.TypeInfo, origin ast.RefOrigin) *Variable {
	return &Variable{Sym: types.NewSymbol(types.NewIdentifier(name), t), Origin: origin, Tok: token.Token{Line: 1}}
}

func TestDeclareAndLookup(t *testing.T) {
	r := util.NewReporter(config.NewConfig(), nil)
	g := NewGlobal(r)
	gain := variable("gain", types.FloatType, ast.Global)
	be.Err(t, g.Declare("gain", gain), nil)

	fn := g.NewChild(Function, "process", 0)
	x := variable("x", types.IntType, ast.Param)
	be.Err(t, fn.Declare("x", x), nil)
	inner := fn.NewChild(Block, "", 0)

	v, owner := inner.Lookup("gain")
	be.Equal(t, v, gain)
	be.Equal(t, owner, g)
	v, owner = inner.Lookup("x")
	be.Equal(t, v, x)
	be.Equal(t, owner, fn)
	v, _ = inner.Lookup("nope")
	be.True(t, v == nil)

	be.Equal(t, fn.Name.String(), "process")
	be.Equal(t, inner.Name.String(), "process")
	be.Equal(t, inner.Enclosing(Function), fn)
	be.Equal(t, inner.Root(), g)
	be.True(t, inner.IsInside(fn))
	be.True(t, !fn.IsInside(inner))
	be.Equal(t, len(fn.Variables()), 1)
	be.Equal(t, len(r.Warnings()), 0)
}

func TestRedeclaration(t *testing.T) {
	g := NewGlobal(nil)
	fn := g.NewChild(Function, "f", 0)
	be.Err(t, fn.Declare("x", variable("x", types.IntType, ast.Param)), nil)
	be.Err(t, fn.Declare("x", variable("x", types.IntType, ast.Local)), "x is already defined as function parameter")

	be.Err(t, g.Declare("y", variable("y", types.IntType, ast.Global)), nil)
	be.Err(t, g.Declare("y", variable("y", types.IntType, ast.Global)), "y is already defined as global variable")
}

func TestShadowWarning(t *testing.T) {
	r := util.NewReporter(config.NewConfig(), nil)
	g := NewGlobal(r)
	cls := g.NewChild(Class, "Osc", 0)
	be.Err(t, cls.Declare("phase", variable("phase", types.FloatType, ast.Member)), nil)
	fn := cls.NewChild(Function, "tick", 0)
	be.Err(t, fn.Declare("phase", variable("phase", types.FloatType, ast.Local)), nil)

	ws := r.Warnings()
	be.Equal(t, len(ws), 1)
	be.Equal(t, ws[0].Message, "declaration of phase hides class member")
	be.Equal(t, fn.Name.String(), "Osc::tick")
}

func TestFunctionsAndTypes(t *testing.T) {
	g := NewGlobal(nil)
	sig := func(p types.TypeInfo) *types.Signature {
		return &types.Signature{ID: types.NewIdentifier("mix"), Return: types.FloatType, Params: []types.Param{{Name: "a", Type: p}}}
	}
	be.Err(t, g.AddFunction(&FuncEntry{Sig: sig(types.FloatType)}, token.Token{}), nil)
	be.Err(t, g.AddFunction(&FuncEntry{Sig: sig(types.IntType)}, token.Token{}), nil)
	be.Err(t, g.AddFunction(&FuncEntry{Sig: sig(types.IntType)}, token.Token{}), "function float mix(int) is already defined")

	inner := g.NewChild(Block, "", 0)
	be.Equal(t, len(inner.Functions("mix")), 2)

	cls := g.NewChild(Class, "Osc", 0)
	be.Err(t, cls.AddFunction(&FuncEntry{Sig: sig(types.DoubleType)}, token.Token{}), nil)
	be.Equal(t, len(cls.Functions("mix")), 1)

	st := types.FromComplex(types.NewStruct("Osc", nil))
	g.DeclareType("Osc", st)
	got, ok := inner.LookupType("Osc")
	be.True(t, ok)
	be.True(t, got.SameBase(st))
	_, ok = inner.LookupType("Voice")
	be.True(t, !ok)

	g.AddTemplate("twice", 7)
	be.Equal(t, inner.Templates("twice"), []ast.NodeID{7})
}
