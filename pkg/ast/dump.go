package ast

import (
	"fmt"
	"strings"
)

// Dump renders the subtree of id as an indented outline, one node per line.
func (t *Tree) Dump(id NodeID) string {
	var sb strings.Builder
	t.dump(&sb, id, 0)
	return sb.String()
}

func (t *Tree) dump(sb *strings.Builder, id NodeID, depth int) {
	n := t.nodes[id]
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(n.Kind.String())
	if label := t.Label(id); label != "" {
		sb.WriteString(" " + label)
	}
	if n.Type.IsResolved() && n.Kind.IsExpression() {
		sb.WriteString(" : " + n.Type.String())
	}
	sb.WriteByte('\n')
	for _, c := range n.Children {
		t.dump(sb, c, depth+1)
	}
}

// Label describes the payload of a node in one short string.
func (t *Tree) Label(id NodeID) string {
	n := t.nodes[id]
	switch d := n.Data.(type) {
	case *VarRef:
		return d.ID.String()
	case *InlinedParam:
		return d.Name
	case *InlinedArg:
		return d.Name
	case *CastData:
		return d.Target.String()
	case *Dot:
		return d.Member
	case *Assign:
		if d.Declaration {
			return d.Op.String() + " decl"
		}
		return d.Op.String()
	case *Op:
		return d.Op.String()
	case *Call:
		if len(d.TemplateArgs) > 0 {
			return fmt.Sprintf("%s%s", d.ID, formatArgs(d))
		}
		return d.ID.String()
	case *MemRef:
		return fmt.Sprintf("+%d", d.Offset)
	case *Class:
		return d.Name
	case *Template:
		return d.Name
	case *Func:
		return d.Sig.String()
	case *IncrementData:
		op := "++"
		if d.Decrement {
			op = "--"
		}
		if d.Pre {
			return op + "x"
		}
		return "x" + op
	case *LoopData:
		return d.Iterator
	case *Flow:
		if d.Break {
			return "break"
		}
		return "continue"
	case *VarDef:
		return d.Type.String() + " " + strings.Join(d.Names, ", ")
	}
	if n.Kind == Immediate {
		return n.Value.String()
	}
	return ""
}

func formatArgs(c *Call) string {
	parts := make([]string, len(c.TemplateArgs))
	for i, a := range c.TemplateArgs {
		parts[i] = a.String()
	}
	return "<" + strings.Join(parts, ", ") + ">"
}
