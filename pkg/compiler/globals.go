package compiler

import (
	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
)

// globalData is one global variable waiting to be emitted. init maps byte
// offsets to constants; everything else is zero.
type globalData struct {
	name string
	t    types.TypeInfo
	init map[int]types.Value
}

func (c *Compiler) recordGlobalAssignment(id ast.NodeID) error {
	n := c.node(id)
	a := n.Data.(*ast.Assign)
	if !a.Declaration {
		return util.Errorf(n.Tok, "statements are not allowed at global scope")
	}
	v := c.node(c.child(id, 0))
	if v.Kind != ast.Immediate {
		return util.Errorf(v.Tok, "global initialiser must be a compile-time constant")
	}
	sym := c.node(c.child(id, 1)).Data.(*ast.VarRef).Symbol
	t := sym.Type.Base()
	c.globalData = append(c.globalData, globalData{
		name: sym.ID.String(),
		t:    t,
		init: map[int]types.Value{0: v.Value.Cast(t.Kind)},
	})
	return nil
}

func (c *Compiler) recordGlobalDef(id ast.NodeID) error {
	n := c.node(id)
	d := n.Data.(*ast.VarDef)
	t := d.Type.Base()

	init := make(map[int]types.Value)
	switch c.initKindOf(id) {
	case initZero:
		structDefaults(t, 0, init)
	case initList:
		for _, ch := range n.Children {
			if c.node(ch).Kind != ast.Immediate {
				return util.Errorf(c.node(ch).Tok, "global initialiser must be a compile-time constant")
			}
		}
		c.constantLayout(id, init)
	default:
		return util.Errorf(n.Tok, "global initialiser must be a compile-time constant")
	}
	for _, sym := range d.Symbols {
		c.globalData = append(c.globalData, globalData{name: sym.ID.String(), t: t, init: init})
	}
	return nil
}

// structDefaults collects the member defaults of t, nested structs
// included, at their offsets from base.
func structDefaults(t types.TypeInfo, base int, out map[int]types.Value) {
	st := t.StructType()
	if st == nil {
		return
	}
	for _, m := range st.Members {
		if m.Default != nil {
			out[base+m.Offset] = *m.Default
		}
		structDefaults(m.Type, base+m.Offset, out)
	}
}

// elementStride is the distance between two elements of a span.
func elementStride(t types.TypeInfo) int {
	cx := t.Complex
	if cx.Len == 0 {
		return cx.Elem.Size()
	}
	return cx.Size() / cx.Len
}

// constantLayout places the literal initialisers of a checked list
// definition. A single value fills a whole span.
func (c *Compiler) constantLayout(id ast.NodeID, out map[int]types.Value) {
	n := c.node(id)
	t := n.Data.(*ast.VarDef).Type
	if st := t.StructType(); st != nil {
		structDefaults(t, 0, out)
		for i, ch := range n.Children {
			out[st.Members[i].Offset] = c.node(ch).Value
		}
		return
	}
	stride := elementStride(t)
	if len(n.Children) == 1 {
		v := c.node(n.Children[0]).Value
		for i := 0; i < t.Complex.Len; i++ {
			out[i*stride] = v
		}
		return
	}
	for i, ch := range n.Children {
		out[i*stride] = c.node(ch).Value
	}
}

func (c *Compiler) defineGlobals() {
	for _, g := range c.globalData {
		c.em.DefineGlobal(g.name, g.t.Size(), g.t.Align(), g.init)
	}
}

func (c *Compiler) globalReg(sym *types.Symbol) *regalloc.Register {
	if r, ok := c.globals[sym]; ok {
		return r
	}
	r := c.gpool.Memory(nil, sym.ID.String(), 0, sym.Type.Base())
	c.globals[sym] = r
	return r
}
