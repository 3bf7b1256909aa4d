// Package vm executes IR programs in-process so a host can call compiled
// functions right after compilation.
package vm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/rtcheck"
)

const (
	maxCallDepth = 256
	// ctxCheckInterval is the number of instructions between cancellation checks.
	ctxCheckInterval = 1 << 14
	segmentShift     = 32
)

var (
	ErrStackOverflow  = errors.New("vm: call stack overflow")
	ErrDivisionByZero = errors.New("vm: integer division by zero")
)

// MemoryError reports an access outside every mapped segment.
type MemoryError struct {
	Addr uint64
	Size int
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("vm: invalid memory access of %d bytes at %#x", e.Size, e.Addr)
}

type function struct {
	ir     *ir.Func
	labels map[string]int
}

// Machine holds the memory of one program. Addresses are a segment index
// in the upper 32 bits and an offset in the lower ones; segment 0 is never
// mapped so the zero address stays invalid. A Machine is not safe for
// concurrent use.
type Machine struct {
	prog    *ir.Program
	funcs   map[string]*function
	segs    [][]byte
	globals map[string]uint64
	depth   int
	steps   int
	ctx     context.Context
}

// New lays out the globals of prog. The runtime error global is bound to
// region when one is given.
func New(prog *ir.Program, region *rtcheck.Region) *Machine {
	m := &Machine{
		prog:    prog,
		funcs:   make(map[string]*function, len(prog.Funcs)),
		segs:    [][]byte{nil},
		globals: make(map[string]uint64, len(prog.Globals)),
	}
	for _, f := range prog.Funcs {
		fn := &function{ir: f, labels: make(map[string]int, len(f.Blocks))}
		for i, b := range f.Blocks {
			fn.labels[b.Label.Name] = i
		}
		m.funcs[f.Name] = fn
	}
	for _, g := range prog.Globals {
		if g.Name == rtcheck.Symbol && region != nil {
			m.globals[g.Name] = m.mapSegment(region.Bytes())
			continue
		}
		addr := m.Alloc(g.Size())
		mem, _ := m.Bytes(addr, g.Size())
		off := 0
		for _, it := range g.Items {
			if it.Typ == ir.TypeNone {
				off += it.Count
				continue
			}
			n := ir.SizeOfType(it.Typ)
			storeBytes(mem[off:], constBits(it.Value, it.Typ), n)
			off += n
		}
		m.globals[g.Name] = addr
	}
	return m
}

func (m *Machine) mapSegment(mem []byte) uint64 {
	m.segs = append(m.segs, mem)
	return uint64(len(m.segs)-1) << segmentShift
}

// Alloc maps a zeroed segment of size bytes and returns its address.
func (m *Machine) Alloc(size int) uint64 { return m.mapSegment(make([]byte, size)) }

// Mark returns the current allocation watermark for Release.
func (m *Machine) Mark() int { return len(m.segs) }

// Release unmaps every segment allocated after mark.
func (m *Machine) Release(mark int) {
	if mark >= 1 && mark <= len(m.segs) {
		clear(m.segs[mark:])
		m.segs = m.segs[:mark]
	}
}

// Bytes returns the n bytes of VM memory at addr.
func (m *Machine) Bytes(addr uint64, n int) ([]byte, error) {
	seg := addr >> segmentShift
	off := addr & (1<<segmentShift - 1)
	if seg == 0 || seg >= uint64(len(m.segs)) || off+uint64(n) > uint64(len(m.segs[seg])) {
		return nil, &MemoryError{Addr: addr, Size: n}
	}
	return m.segs[seg][off : off+uint64(n)], nil
}

func (m *Machine) GlobalAddress(name string) (uint64, bool) {
	a, ok := m.globals[name]
	return a, ok
}

// Call runs the function symbol with raw argument bits and returns the raw
// result bits.
func (m *Machine) Call(ctx context.Context, symbol string, args ...uint64) (uint64, error) {
	fn, ok := m.funcs[symbol]
	if !ok {
		return 0, fmt.Errorf("vm: undefined function %s", symbol)
	}
	if len(args) != len(fn.ir.Params) {
		return 0, fmt.Errorf("vm: %s expects %d arguments, got %d", symbol, len(fn.ir.Params), len(args))
	}
	m.ctx, m.steps, m.depth = ctx, 0, 0
	defer func() { m.ctx = nil }()
	return m.exec(fn, args)
}

func (m *Machine) exec(fn *function, args []uint64) (uint64, error) {
	if m.depth >= maxCallDepth {
		return 0, ErrStackOverflow
	}
	m.depth++
	mark := m.Mark()
	defer func() {
		m.depth--
		m.Release(mark)
	}()

	regs := make([]uint64, fn.ir.NumTemps)
	for i, p := range fn.ir.Params {
		regs[p.Val.ID] = args[i]
	}

	block := 0
	for block < len(fn.ir.Blocks) {
		next := block + 1
		for _, instr := range fn.ir.Blocks[block].Instructions {
			m.steps++
			if m.steps%ctxCheckInterval == 0 && m.ctx != nil {
				if err := m.ctx.Err(); err != nil {
					return 0, fmt.Errorf("vm: %s interrupted: %w", fn.ir.Name, err)
				}
			}

			switch instr.Op {
			case ir.OpJmp:
				next = fn.labels[instr.Args[0].(*ir.Label).Name]
			case ir.OpJnz:
				if uint32(m.operand(regs, instr.Args[0], ir.TypeW)) != 0 {
					next = fn.labels[instr.Args[1].(*ir.Label).Name]
				} else {
					next = fn.labels[instr.Args[2].(*ir.Label).Name]
				}
			case ir.OpRet:
				if len(instr.Args) == 0 {
					return 0, nil
				}
				return m.operand(regs, instr.Args[0], fn.ir.ReturnType), nil
			default:
				if err := m.step(regs, instr); err != nil {
					return 0, err
				}
				continue
			}
			break
		}
		block = next
	}
	return 0, nil
}

func (m *Machine) operand(regs []uint64, v ir.Value, t ir.Type) uint64 {
	switch val := v.(type) {
	case *ir.Temporary:
		return regs[val.ID]
	case *ir.Global:
		return m.globals[val.Name]
	}
	return constBits(v, t)
}

func constBits(v ir.Value, t ir.Type) uint64 {
	switch val := v.(type) {
	case *ir.Const:
		switch t {
		case ir.TypeS:
			return uint64(math.Float32bits(float32(val.Value)))
		case ir.TypeD:
			return math.Float64bits(float64(val.Value))
		case ir.TypeW:
			return uint64(uint32(val.Value))
		}
		return uint64(val.Value)
	case *ir.FloatConst:
		if t == ir.TypeS {
			return uint64(math.Float32bits(float32(val.Value)))
		}
		return math.Float64bits(val.Value)
	}
	return 0
}

func (m *Machine) load(addr uint64, t ir.Type) (uint64, error) {
	n := ir.SizeOfType(t)
	mem, err := m.Bytes(addr, n)
	if err != nil {
		return 0, err
	}
	if n == 4 {
		return uint64(binary.LittleEndian.Uint32(mem)), nil
	}
	return binary.LittleEndian.Uint64(mem), nil
}

func (m *Machine) store(addr uint64, bits uint64, t ir.Type) error {
	n := ir.SizeOfType(t)
	mem, err := m.Bytes(addr, n)
	if err != nil {
		return err
	}
	storeBytes(mem, bits, n)
	return nil
}

func storeBytes(mem []byte, bits uint64, n int) {
	if n == 4 {
		binary.LittleEndian.PutUint32(mem, uint32(bits))
		return
	}
	binary.LittleEndian.PutUint64(mem, bits)
}
