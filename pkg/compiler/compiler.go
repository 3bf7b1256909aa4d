// Package compiler is the pass driver. It walks the syntax tree once per
// pass, resolves names and types through pkg/scope, tracks register
// lifetimes through pkg/regalloc and lowers the tree through an
// emit.Emitter.
package compiler

import (
	"context"
	"errors"
	"fmt"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/emit"
	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
)

const maxTemplateDepth = 64

// Function describes one compiled function of a Result.
type Function struct {
	Sig    *types.Signature
	Symbol string
	Node   ast.NodeID
	Stats  regalloc.Stats
}

// Result is what a compilation produced. It is returned even when some
// functions failed; those are missing from Program and Functions.
type Result struct {
	Program   *ir.Program
	Functions []*Function
	Tree      *ast.Tree
	Warnings  []*util.Diagnostic
}

// Lookup returns the compiled functions whose qualified name is name.
func (r *Result) Lookup(name string) []*Function {
	var out []*Function
	for _, f := range r.Functions {
		if f.Sig.ID.String() == name {
			out = append(out, f)
		}
	}
	return out
}

// Compiler owns every piece of mutable state of one compilation. It must not
// be shared between goroutines or reused for a second tree.
type Compiler struct {
	cfg      *config.Config
	reporter *util.Reporter
	builder  *emit.IRBuilder
	em       emit.Emitter

	ctx    context.Context
	tree   *ast.Tree
	global *scope.Scope
	stage  Pass

	scopes    map[ast.NodeID]*scope.Scope
	tscopes   map[ast.NodeID]*scope.Scope
	packs     map[*scope.Scope]map[string][]types.TemplateArg
	done      map[ast.NodeID]uint16
	instances map[uint64]ast.NodeID
	decls     map[*types.Signature]ast.NodeID
	declOf    map[*types.Symbol]ast.NodeID
	inlining  map[ast.NodeID]bool
	pristine  map[ast.NodeID]ast.NodeID
	depth     int
	forceFold int

	gpool      *regalloc.Pool
	globals    map[*types.Symbol]*regalloc.Register
	globalData []globalData

	fn       *funcState
	funcs    []*Function
	lastRefs map[ast.NodeID]bool
	errs     []error
}

// New creates a compiler. Warnings go to reporter; a nil reporter collects
// them silently.
func New(cfg *config.Config, reporter *util.Reporter) *Compiler {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if reporter == nil {
		reporter = util.NewReporter(cfg, nil)
	}
	b := emit.NewIRBuilder(cfg.WordSize)
	return &Compiler{
		cfg:       cfg,
		reporter:  reporter,
		builder:   b,
		em:        b,
		scopes:    make(map[ast.NodeID]*scope.Scope),
		tscopes:   make(map[ast.NodeID]*scope.Scope),
		packs:     make(map[*scope.Scope]map[string][]types.TemplateArg),
		done:      make(map[ast.NodeID]uint16),
		instances: make(map[uint64]ast.NodeID),
		decls:     make(map[*types.Signature]ast.NodeID),
		declOf:    make(map[*types.Symbol]ast.NodeID),
		inlining:  make(map[ast.NodeID]bool),
		pristine:  make(map[ast.NodeID]ast.NodeID),
		gpool:     regalloc.NewPool(false),
		globals:   make(map[*types.Symbol]*regalloc.Register),
		lastRefs:  make(map[ast.NodeID]bool),
	}
}

// Compile runs every pass over tree. The returned error joins all
// diagnostics; the Result holds whatever compiled successfully.
func (c *Compiler) Compile(ctx context.Context, tree *ast.Tree) (*Result, error) {
	if c.cfg.CompileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CompileTimeout)
		defer cancel()
	}
	c.ctx, c.tree = ctx, tree
	c.global = scope.NewGlobal(c.reporter)
	c.scopes[tree.Root()] = c.global

	for _, p := range Passes() {
		if err := ctx.Err(); err != nil {
			c.errs = append(c.errs, fmt.Errorf("compilation aborted before %s: %w", p, err))
			break
		}
		c.stage = p
		if err := c.process(p, tree.Root(), c.global); err != nil {
			c.report(err)
			if p == Parsing {
				break
			}
		}
	}
	c.dropBrokenCallers()

	res := &Result{
		Program:   c.builder.Program(),
		Functions: c.funcs,
		Tree:      tree,
		Warnings:  c.reporter.Warnings(),
	}
	return res, errors.Join(c.errs...)
}

// report records a failure at the driver boundary.
func (c *Compiler) report(err error) {
	if err == nil {
		return
	}
	for _, d := range util.Diagnostics(err) {
		c.reporter.Locate(d)
	}
	c.errs = append(c.errs, err)
}

// once reports whether id already ran pass p and marks it as run.
func (c *Compiler) once(id ast.NodeID, p Pass) bool {
	bit := uint16(1) << p
	if c.done[id]&bit != 0 {
		return true
	}
	c.done[id] |= bit
	return false
}

// catchUp runs a node created mid-compilation through every pass the driver
// has started so far.
func (c *Compiler) catchUp(id ast.NodeID, sc *scope.Scope) error {
	for p := Parsing; p <= c.stage; p++ {
		if err := c.process(p, id, sc); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) checkContext() error {
	if err := c.ctx.Err(); err != nil {
		return fmt.Errorf("compilation aborted: %w", err)
	}
	return nil
}

// bailout unwinds code generation of one function.
type bailout struct{ err error }

func (c *Compiler) bail(tok token.Token, format string, args ...any) {
	panic(bailout{util.Errorf(tok, format, args...)})
}

func (c *Compiler) node(id ast.NodeID) *ast.Node { return c.tree.Node(id) }

func (c *Compiler) child(id ast.NodeID, i int) ast.NodeID { return c.tree.Child(id, i) }

func (c *Compiler) typeOf(id ast.NodeID) types.TypeInfo { return c.tree.Node(id).Type }

func (c *Compiler) feature(f config.Feature) bool { return c.cfg.IsFeatureEnabled(f) }

// newImmediate allocates a constant node.
func (c *Compiler) newImmediate(tok token.Token, v types.Value) ast.NodeID {
	id := c.tree.New(ast.Immediate, tok, nil)
	n := c.tree.Node(id)
	n.Type, n.Const, n.Value = v.Type(), true, v
	return id
}
