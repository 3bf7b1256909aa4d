package compiler

import (
	"fmt"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/scope"
)

// process is the single entry point of every pass. Each kind either handles
// p or hands it to its children unchanged.
func (c *Compiler) process(p Pass, id ast.NodeID, sc *scope.Scope) error {
	switch c.node(id).Kind {
	case ast.SyntaxTree:
		return c.processRoot(p, id, sc)
	case ast.StatementBlock:
		return c.processBlock(p, id, sc)
	case ast.ClassStatement:
		return c.processClass(p, id, sc)
	case ast.TemplateDefinition:
		return c.processTemplate(p, id, sc)
	case ast.Function, ast.TemplatedFunction:
		return c.processFunction(p, id, sc)
	case ast.Assignment:
		return c.processAssignment(p, id, sc)
	case ast.ComplexTypeDefinition:
		return c.processVarDef(p, id, sc)
	case ast.VariableReference:
		return c.processVarRef(p, id, sc)
	case ast.InlinedArgument:
		return c.processInlinedArg(p, id, sc)
	case ast.Loop:
		return c.processLoop(p, id, sc)
	case ast.WhileLoop:
		return c.processWhile(p, id, sc)
	case ast.IfStatement:
		return c.processIf(p, id, sc)
	case ast.TernaryOp:
		return c.processTernary(p, id, sc)
	case ast.BinaryOp:
		return c.processBinary(p, id, sc)
	case ast.FunctionCall:
		return c.processCall(p, id, sc)
	case ast.ReturnStatement:
		return c.processReturn(p, id, sc)
	case ast.ControlFlow:
		return c.processControlFlow(p, id, sc)
	}
	return c.processExpr(p, id, sc)
}

// processChildren re-reads the child list on every step; handlers may
// rewrite the node they are called for.
func (c *Compiler) processChildren(p Pass, id ast.NodeID, sc *scope.Scope) error {
	for i := 0; i < c.tree.NumChildren(id); i++ {
		if err := c.process(p, c.child(id, i), sc); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) processRoot(p Pass, id ast.NodeID, sc *scope.Scope) error {
	if p == Parsing {
		if err := c.tree.Verify(id); err != nil {
			return fmt.Errorf("malformed syntax tree: %w", err)
		}
	}
	for i := 0; i < c.tree.NumChildren(id); i++ {
		child := c.child(id, i)
		switch c.node(child).Kind {
		case ast.Assignment, ast.ComplexTypeDefinition:
			if p == Parsing || p > TypeCheck {
				continue
			}
		}
		if err := c.process(p, child, sc); err != nil {
			c.report(err)
		}
	}
	if p == CodeGeneration {
		c.defineGlobals()
	}
	return nil
}

// blockScope returns the scope opened by a block or loop node, creating it
// on first use.
func (c *Compiler) blockScope(id ast.NodeID, sc *scope.Scope) *scope.Scope {
	if bs, ok := c.scopes[id]; ok {
		return bs
	}
	bs := sc.NewChild(scope.Block, "", id)
	c.scopes[id] = bs
	return bs
}

func (c *Compiler) processBlock(p Pass, id ast.NodeID, sc *scope.Scope) error {
	bs := c.blockScope(id, sc)
	switch p {
	case TypeCheck:
		if err := c.processChildren(p, id, bs); err != nil {
			return err
		}
		n := c.node(id)
		if b := n.Data.(*ast.Block); b.Inlined {
			n.Type = b.ReturnType
		}
		c.checkBlock(id)
		return nil
	case CodeGeneration:
		return c.genBlock(id, bs)
	}
	return c.processChildren(p, id, bs)
}

// processExpr handles every kind without special sequencing needs:
// children first, then the node itself.
func (c *Compiler) processExpr(p Pass, id ast.NodeID, sc *scope.Scope) error {
	n := c.node(id)
	if p == ComplexTypeParsing && n.Kind == ast.Cast {
		d := n.Data.(*ast.CastData)
		t, err := c.resolveType(d.Target, sc, n.Tok)
		if err != nil {
			return err
		}
		d.Target = t
	}
	if err := c.processChildren(p, id, sc); err != nil {
		return err
	}
	switch p {
	case TypeCheck:
		return c.checkExpr(id, sc)
	case CodeGeneration:
		c.gen(id)
	}
	return nil
}

func (c *Compiler) processInlinedArg(p Pass, id ast.NodeID, sc *scope.Scope) error {
	// The wrapped expression was checked in the caller's scope before the
	// call was inlined.
	if p <= TypeCheck {
		return nil
	}
	if err := c.processChildren(p, id, sc); err != nil {
		return err
	}
	if p == CodeGeneration {
		c.genInlinedArg(id)
	}
	return nil
}
