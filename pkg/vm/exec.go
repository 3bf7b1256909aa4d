package vm

import (
	"fmt"
	"math"

	"github.com/xplshn/gsc/pkg/ir"
)

// step executes one non-terminator instruction.
func (m *Machine) step(regs []uint64, instr *ir.Instruction) error {
	arg := func(i int, t ir.Type) uint64 { return m.operand(regs, instr.Args[i], t) }
	set := func(v uint64) { regs[instr.Result.(*ir.Temporary).ID] = v }

	switch instr.Op {
	case ir.OpAlloc:
		set(m.Alloc(int(instr.Args[0].(*ir.Const).Value)))
	case ir.OpLoad:
		v, err := m.load(arg(0, ir.TypePtr), instr.Typ)
		if err != nil {
			return err
		}
		set(v)
	case ir.OpStore:
		return m.store(arg(1, ir.TypePtr), arg(0, instr.Typ), instr.Typ)
	case ir.OpBlit:
		n := int(instr.Args[2].(*ir.Const).Value)
		src, err := m.Bytes(arg(0, ir.TypePtr), n)
		if err != nil {
			return err
		}
		dst, err := m.Bytes(arg(1, ir.TypePtr), n)
		if err != nil {
			return err
		}
		copy(dst, src)
	case ir.OpCopy:
		set(arg(0, instr.Typ))
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpRem, ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpShr:
		v, err := intOp(instr.Op, instr.Typ, arg(0, instr.Typ), arg(1, instr.Typ))
		if err != nil {
			return err
		}
		set(v)
	case ir.OpNeg:
		if instr.Typ == ir.TypeW {
			set(uint64(uint32(-int32(arg(0, ir.TypeW)))))
		} else {
			set(uint64(-int64(arg(0, instr.Typ))))
		}
	case ir.OpAddF, ir.OpSubF, ir.OpMulF, ir.OpDivF:
		set(floatOp(instr.Op, instr.Typ, arg(0, instr.Typ), arg(1, instr.Typ)))
	case ir.OpNegF:
		set(fromFloat(instr.Typ, -toFloat(instr.Typ, arg(0, instr.Typ))))
	case ir.OpCEq, ir.OpCNeq, ir.OpCLt, ir.OpCGt, ir.OpCLe, ir.OpCGe:
		if compare(instr.Op, instr.OperandType, arg(0, instr.OperandType), arg(1, instr.OperandType)) {
			set(1)
		} else {
			set(0)
		}
	case ir.OpExtSW:
		set(uint64(int64(int32(arg(0, ir.TypeW)))))
	case ir.OpSWToF:
		set(fromFloat(instr.Typ, float64(int32(arg(0, ir.TypeW)))))
	case ir.OpFToSI:
		set(uint64(uint32(int32(toFloat(instr.OperandType, arg(0, instr.OperandType))))))
	case ir.OpFToF:
		set(fromFloat(instr.Typ, toFloat(instr.OperandType, arg(0, instr.OperandType))))
	case ir.OpCall:
		return m.call(regs, instr)
	default:
		return fmt.Errorf("vm: unsupported instruction %s", instr.Op)
	}
	return nil
}

func (m *Machine) call(regs []uint64, instr *ir.Instruction) error {
	name := instr.Args[0].(*ir.Global).Name
	args := make([]uint64, len(instr.Args)-1)
	for i := range args {
		args[i] = m.operand(regs, instr.Args[i+1], instr.ArgTypes[i])
	}

	var ret uint64
	if fn, ok := m.funcs[name]; ok {
		v, err := m.exec(fn, args)
		if err != nil {
			return err
		}
		ret = v
	} else if ext, ok := externs[name]; ok {
		ret = ext(args)
	} else {
		return fmt.Errorf("vm: undefined function %s", name)
	}
	if instr.Result != nil {
		regs[instr.Result.(*ir.Temporary).ID] = ret
	}
	return nil
}

func intOp(op ir.Op, t ir.Type, a, b uint64) (uint64, error) {
	if t == ir.TypeW {
		x, y := int32(a), int32(b)
		var r int32
		switch op {
		case ir.OpAdd:
			r = x + y
		case ir.OpSub:
			r = x - y
		case ir.OpMul:
			r = x * y
		case ir.OpDiv, ir.OpRem:
			if y == 0 {
				return 0, ErrDivisionByZero
			}
			if op == ir.OpDiv {
				r = x / y
			} else {
				r = x % y
			}
		case ir.OpAnd:
			r = x & y
		case ir.OpOr:
			r = x | y
		case ir.OpXor:
			r = x ^ y
		case ir.OpShl:
			r = x << (uint32(y) & 31)
		case ir.OpShr:
			r = x >> (uint32(y) & 31)
		}
		return uint64(uint32(r)), nil
	}

	x, y := int64(a), int64(b)
	var r int64
	switch op {
	case ir.OpAdd:
		r = x + y
	case ir.OpSub:
		r = x - y
	case ir.OpMul:
		r = x * y
	case ir.OpDiv, ir.OpRem:
		if y == 0 {
			return 0, ErrDivisionByZero
		}
		if op == ir.OpDiv {
			r = x / y
		} else {
			r = x % y
		}
	case ir.OpAnd:
		r = x & y
	case ir.OpOr:
		r = x | y
	case ir.OpXor:
		r = x ^ y
	case ir.OpShl:
		r = x << (uint64(y) & 63)
	case ir.OpShr:
		r = x >> (uint64(y) & 63)
	}
	return uint64(r), nil
}

func toFloat(t ir.Type, bits uint64) float64 {
	if t == ir.TypeS {
		return float64(math.Float32frombits(uint32(bits)))
	}
	return math.Float64frombits(bits)
}

func fromFloat(t ir.Type, v float64) uint64 {
	if t == ir.TypeS {
		return uint64(math.Float32bits(float32(v)))
	}
	return math.Float64bits(v)
}

func floatOp(op ir.Op, t ir.Type, a, b uint64) uint64 {
	if t == ir.TypeS {
		x, y := math.Float32frombits(uint32(a)), math.Float32frombits(uint32(b))
		var r float32
		switch op {
		case ir.OpAddF:
			r = x + y
		case ir.OpSubF:
			r = x - y
		case ir.OpMulF:
			r = x * y
		case ir.OpDivF:
			r = x / y
		}
		return uint64(math.Float32bits(r))
	}
	x, y := math.Float64frombits(a), math.Float64frombits(b)
	var r float64
	switch op {
	case ir.OpAddF:
		r = x + y
	case ir.OpSubF:
		r = x - y
	case ir.OpMulF:
		r = x * y
	case ir.OpDivF:
		r = x / y
	}
	return math.Float64bits(r)
}

func compare(op ir.Op, t ir.Type, a, b uint64) bool {
	var c int
	switch t {
	case ir.TypeS, ir.TypeD:
		x, y := toFloat(t, a), toFloat(t, b)
		if x != x || y != y {
			return op == ir.OpCNeq
		}
		c = cmp3(x < y, x > y)
	case ir.TypeW:
		x, y := int32(a), int32(b)
		c = cmp3(x < y, x > y)
	default:
		x, y := int64(a), int64(b)
		c = cmp3(x < y, x > y)
	}
	switch op {
	case ir.OpCEq:
		return c == 0
	case ir.OpCNeq:
		return c != 0
	case ir.OpCLt:
		return c < 0
	case ir.OpCGt:
		return c > 0
	case ir.OpCLe:
		return c <= 0
	}
	return c >= 0
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}
