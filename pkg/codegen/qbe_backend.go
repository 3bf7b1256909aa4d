package codegen

import (
	"fmt"
	"strings"

	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/ir"
)

type qbeBackend struct {
	out       *strings.Builder
	prog      *ir.Program
	currentFn *ir.Func
}

func NewQBEBackend() Backend { return &qbeBackend{} }

// GenerateIR renders prog as QBE IL.
func (b *qbeBackend) GenerateIR(prog *ir.Program, cfg *config.Config) (string, error) {
	var qbeIRBuilder strings.Builder
	b.out = &qbeIRBuilder
	b.prog = prog

	for _, g := range b.prog.Globals {
		b.genGlobal(g)
	}
	for _, fn := range b.prog.Funcs {
		if err := b.genFunc(fn); err != nil {
			return "", err
		}
	}
	return qbeIRBuilder.String(), nil
}

func (b *qbeBackend) genGlobal(g *ir.Data) {
	alignStr := ""
	if g.Align > 0 {
		alignStr = fmt.Sprintf("align %d ", g.Align)
	}
	export := ""
	if g.Export {
		export = "export "
	}

	fmt.Fprintf(b.out, "%sdata $%s = %s{ ", export, g.Name, alignStr)
	for i, item := range g.Items {
		if item.Typ == ir.TypeNone {
			fmt.Fprintf(b.out, "z %d", item.Count)
		} else {
			fmt.Fprintf(b.out, "%s %s", b.formatType(item.Typ), b.formatValue(item.Value))
		}
		if i < len(g.Items)-1 {
			b.out.WriteString(", ")
		}
	}
	b.out.WriteString(" }\n")
}

func (b *qbeBackend) genFunc(fn *ir.Func) error {
	b.currentFn = fn
	retTypeStr := b.formatType(fn.ReturnType)
	if retTypeStr != "" {
		retTypeStr = " " + retTypeStr
	}
	export := ""
	if fn.Export {
		export = "export "
	}

	fmt.Fprintf(b.out, "\n%sfunction%s $%s(", export, retTypeStr, fn.Name)
	for i, p := range fn.Params {
		fmt.Fprintf(b.out, "%s %s", b.formatType(p.Typ), b.formatValue(p.Val))
		if i < len(fn.Params)-1 {
			b.out.WriteString(", ")
		}
	}
	b.out.WriteString(") {\n")

	for _, block := range fn.Blocks {
		fmt.Fprintf(b.out, "@%s\n", block.Label.Name)
		for _, instr := range block.Instructions {
			if err := b.genInstr(instr); err != nil {
				return fmt.Errorf("function %s: %w", fn.Name, err)
			}
		}
	}

	b.out.WriteString("}\n")
	return nil
}

func (b *qbeBackend) genInstr(instr *ir.Instruction) error {
	b.out.WriteString("\t")
	if instr.Op == ir.OpCall {
		b.genCall(instr)
		return nil
	}

	if instr.Result != nil {
		resultType := instr.Typ
		if instr.Op.IsCompare() {
			resultType = ir.TypeW
		}
		fmt.Fprintf(b.out, "%s =%s ", b.formatValue(instr.Result), b.formatType(resultType))
	}

	opStr, err := b.formatOp(instr)
	if err != nil {
		return err
	}
	b.out.WriteString(opStr)

	for i, arg := range instr.Args {
		b.out.WriteString(" ")
		b.out.WriteString(b.formatValue(arg))
		if i < len(instr.Args)-1 {
			b.out.WriteString(",")
		}
	}
	b.out.WriteString("\n")
	return nil
}

func (b *qbeBackend) genCall(instr *ir.Instruction) {
	if instr.Result != nil {
		fmt.Fprintf(b.out, "%s =%s ", b.formatValue(instr.Result), b.formatType(instr.Typ))
	}
	fmt.Fprintf(b.out, "call %s(", b.formatValue(instr.Args[0]))
	for i, arg := range instr.Args[1:] {
		fmt.Fprintf(b.out, "%s %s", b.formatType(instr.ArgTypes[i]), b.formatValue(arg))
		if i < len(instr.Args)-2 {
			b.out.WriteString(", ")
		}
	}
	b.out.WriteString(")\n")
}

func (b *qbeBackend) formatValue(v ir.Value) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func (b *qbeBackend) formatType(t ir.Type) string { return t.String() }

func (b *qbeBackend) formatOp(instr *ir.Instruction) (string, error) {
	typ := instr.Typ
	argType := instr.OperandType
	if argType == ir.TypeNone {
		argType = instr.Typ
	}
	argTypeStr := b.formatType(argType)

	switch instr.Op {
	case ir.OpAlloc:
		if instr.Align <= 4 {
			return "alloc4", nil
		}
		if instr.Align <= 8 {
			return "alloc8", nil
		}
		return "alloc16", nil
	case ir.OpLoad:
		return "load" + b.formatType(typ), nil
	case ir.OpStore:
		return "store" + b.formatType(typ), nil
	case ir.OpBlit, ir.OpCopy, ir.OpJmp, ir.OpJnz, ir.OpRet, ir.OpSWToF, ir.OpExtSW:
		return instr.Op.String(), nil
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpRem, ir.OpAnd, ir.OpOr, ir.OpXor,
		ir.OpShl, ir.OpShr, ir.OpNeg, ir.OpAddF, ir.OpSubF, ir.OpMulF, ir.OpDivF, ir.OpNegF:
		return instr.Op.String(), nil
	case ir.OpCEq, ir.OpCNeq:
		return "c" + instr.Op.String() + argTypeStr, nil
	case ir.OpCLt, ir.OpCGt, ir.OpCLe, ir.OpCGe:
		if argType.IsFloat() {
			return "c" + instr.Op.String() + argTypeStr, nil
		}
		return "cs" + instr.Op.String() + argTypeStr, nil
	case ir.OpFToF:
		if typ == ir.TypeD {
			return "exts", nil
		}
		return "truncd", nil
	case ir.OpFToSI:
		return argTypeStr + "tosi", nil
	}
	return "", fmt.Errorf("unsupported instruction %s", instr.Op)
}
