package compiler

import (
	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
)

type loopLabels struct {
	brk, cont string
}

// funcState is the code generation state of the function being compiled.
type funcState struct {
	id   ast.NodeID
	fn   *ast.Func
	pool *regalloc.Pool
	vars map[*types.Symbol]*regalloc.Register

	lastRef map[*types.Symbol]ast.NodeID
	last    map[ast.NodeID]bool

	loops     []loopLabels
	inlineEnd map[ast.NodeID]string
	inlineRet map[ast.NodeID]*regalloc.Register
	abort     string
	this      *regalloc.Register
}

func (c *Compiler) processFunction(p Pass, id ast.NodeID, sc *scope.Scope) error {
	switch p {
	case Parsing, ComplexTypeParsing, FunctionParsing, FunctionCompilation:
	default:
		return nil
	}
	if c.once(id, p) {
		return nil
	}
	fn := c.node(id).Data.(*ast.Func)
	switch p {
	case Parsing:
		if body := c.child(id, 0); fn.Sig.Inline && body.IsValid() {
			c.pristine[id] = c.tree.Clone(body)
		}
	case ComplexTypeParsing:
		if err := c.declareFunction(id, sc); err != nil {
			fn.Failed = true
			return err
		}
	case FunctionParsing:
		return c.parseFunction(id)
	case FunctionCompilation:
		return c.compileFunction(id)
	}
	return nil
}

// declareFunction resolves the signature, registers it in the function
// table of sc and opens the parameter scope.
func (c *Compiler) declareFunction(id ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	fn := n.Data.(*ast.Func)
	sig := fn.Sig

	ret, err := c.resolveType(sig.Return, sc, n.Tok)
	if err != nil {
		return err
	}
	if ret.IsMemoryBacked() {
		return util.Errorf(n.Tok, "function %s can't return %s by value", sig.ID, ret)
	}
	sig.Return = ret
	for i := range sig.Params {
		pt, err := c.resolveType(sig.Params[i].Type, sc, fn.ParamToks[i])
		if err != nil {
			return err
		}
		sig.Params[i].Type = pt
	}
	if !c.child(id, 0).IsValid() {
		return util.Errorf(n.Tok, "function %s has no body", sig.ID)
	}

	if sig.Member {
		cs := sc.Enclosing(scope.Class)
		st := cs.Struct
		sig.ID = types.NewIdentifier(st.String(), sig.ID.Base())
		if err := cs.AddFunction(&scope.FuncEntry{Sig: sig, Decl: id}, n.Tok); err != nil {
			return err
		}
		st.Methods = append(st.Methods, sig)
	} else if !fn.Template.IsValid() {
		// Instances are reached through their template definition only.
		if err := sc.AddFunction(&scope.FuncEntry{Sig: sig, Decl: id}, n.Tok); err != nil {
			return err
		}
	}
	c.decls[sig] = id

	fsc := sc.NewChild(scope.Function, sig.ID.Base(), id)
	for i, p := range sig.Params {
		sym := types.NewSymbol(types.NewIdentifier(p.Name), p.Type)
		v := &scope.Variable{Sym: sym, Tok: fn.ParamToks[i], Origin: ast.Param, ParamIndex: i, Decl: id}
		if err := fsc.Declare(p.Name, v); err != nil {
			return err
		}
	}
	c.scopes[id] = fsc
	return nil
}

func (c *Compiler) parseFunction(id ast.NodeID) error {
	fn := c.node(id).Data.(*ast.Func)
	fsc, ok := c.scopes[id]
	if !ok || fn.Failed {
		return nil
	}
	body := c.child(id, 0)
	for _, p := range bodyParsePasses {
		if err := c.process(p, body, fsc); err != nil {
			fn.Failed = true
			return err
		}
	}
	return nil
}

// checkInstanceOrder rejects calls into a wider instance of the same
// template family. Instances compile narrowest first, so such a callee
// doesn't exist yet.
func (c *Compiler) checkInstanceOrder(id ast.NodeID) error {
	fn := c.node(id).Data.(*ast.Func)
	if !fn.Template.IsValid() {
		return nil
	}
	var err error
	c.tree.Walk(c.child(id, 0), func(n ast.NodeID) bool {
		if err != nil {
			return false
		}
		call, ok := c.node(n).Data.(*ast.Call)
		if !ok || !call.Target.IsValid() {
			return true
		}
		g, ok := c.node(call.Target).Data.(*ast.Func)
		if ok && g.Template == fn.Template && g.TemplateN > fn.TemplateN && !g.Compiled {
			err = util.Errorf(c.node(n).Tok, "%s calls %s which is not compiled yet", fn.Sig, g.Sig)
		}
		return true
	})
	return err
}

// dropBrokenCallers discards every compiled function that calls one which
// failed, repeating until no such caller remains.
func (c *Compiler) dropBrokenCallers() {
	for changed := true; changed; {
		changed = false
		kept := c.funcs[:0]
		for _, f := range c.funcs {
			if err := c.failedCallee(f); err != nil {
				fn := c.node(f.Node).Data.(*ast.Func)
				fn.Failed, fn.Compiled = true, false
				c.builder.Discard(f.Symbol)
				c.report(err)
				changed = true
				continue
			}
			kept = append(kept, f)
		}
		c.funcs = kept
	}
}

func (c *Compiler) failedCallee(f *Function) error {
	var err error
	c.tree.Walk(c.child(f.Node, 0), func(n ast.NodeID) bool {
		if err != nil {
			return false
		}
		call, ok := c.node(n).Data.(*ast.Call)
		if !ok || !call.Target.IsValid() {
			return true
		}
		if g, ok := c.node(call.Target).Data.(*ast.Func); ok && g.Failed {
			err = util.Errorf(c.node(n).Tok, "%s calls %s which failed to compile", f.Sig, g.Sig)
		}
		return true
	})
	return err
}

func (c *Compiler) compileFunction(id ast.NodeID) (err error) {
	fn := c.node(id).Data.(*ast.Func)
	fsc, ok := c.scopes[id]
	if !ok || fn.Failed {
		return nil
	}
	if err := c.checkContext(); err != nil {
		return err
	}
	if err := c.checkInstanceOrder(id); err != nil {
		fn.Failed = true
		return err
	}

	sig := fn.Sig
	symbol := sig.Symbol()
	fs := &funcState{
		id:        id,
		fn:        fn,
		pool:      regalloc.NewPool(c.feature(config.FeatReuseRegisters)),
		vars:      make(map[*types.Symbol]*regalloc.Register),
		lastRef:   make(map[*types.Symbol]ast.NodeID),
		last:      make(map[ast.NodeID]bool),
		inlineEnd: make(map[ast.NodeID]string),
		inlineRet: make(map[ast.NodeID]*regalloc.Register),
	}
	c.fn = fs
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			err = b.err
		}
		if err != nil {
			fn.Failed = true
			c.builder.Discard(symbol)
		}
		c.fn = nil
	}()

	var params []*regalloc.Register
	var copies []*types.Symbol
	if sig.Member {
		fs.this = fs.pool.Param("this", types.Pointer)
		params = append(params, fs.this)
	}
	for _, v := range fsc.Variables()[:len(sig.Params)] {
		pt := v.Sym.Type
		name := v.Sym.ID.String()
		if pt.Ref || pt.IsMemoryBacked() {
			r := fs.pool.Param(name, types.Pointer)
			params = append(params, r)
			fs.vars[v.Sym] = fs.pool.Memory(r, "", 0, pt.Base())
			if !pt.Ref {
				copies = append(copies, v.Sym)
			}
			continue
		}
		r := fs.pool.Param(name, pt.Kind)
		params = append(params, r)
		fs.vars[v.Sym] = r
	}

	ret := types.Void
	if !sig.Return.IsVoid() {
		ret = sig.Return.RegisterKind()
	}
	c.em.BeginFunction(symbol, params, ret, true)

	// Aggregates passed by value get a private copy.
	for _, sym := range copies {
		t := sym.Type.Base()
		ptr := fs.pool.Variable(sym.ID.String(), types.Pointer)
		c.em.StackSlot(ptr, t.Size(), t.Align())
		dst := fs.pool.Memory(ptr, "", 0, t)
		c.em.CopyBlock(dst, fs.vars[sym], t.Size())
		fs.vars[sym] = dst
	}

	body := c.child(id, 0)
	for _, p := range bodyCompilePasses {
		if err := c.process(p, body, fsc); err != nil {
			return err
		}
		if p == RegisterAllocation {
			c.finishLiveness()
		}
	}

	if fs.abort != "" {
		if !c.em.Terminated() {
			c.em.Return(c.zeroReturn(ret))
		}
		c.em.Label(fs.abort)
		c.em.Return(c.zeroReturn(ret))
	}
	c.em.EndFunction()

	fn.Compiled = true
	c.funcs = append(c.funcs, &Function{Sig: sig, Symbol: symbol, Node: id, Stats: fs.pool.Stats()})
	return nil
}

func (c *Compiler) zeroReturn(k types.Kind) *regalloc.Register {
	if k == types.Void {
		return nil
	}
	return c.fn.pool.Immediate(types.Value{Kind: k})
}

// abortLabel is where runtime checks leave the function.
func (c *Compiler) abortLabel() string {
	if c.fn.abort == "" {
		c.fn.abort = c.em.NewLabel("abort")
	}
	return c.fn.abort
}
