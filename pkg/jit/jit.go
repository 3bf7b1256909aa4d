// Package jit compiles a script and hands the host callable functions. Calls
// run on the in-process IR machine; the same program can be rendered as QBE
// IL or native assembly for an ahead-of-time build.
package jit

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/xplshn/gsc/pkg/codegen"
	"github.com/xplshn/gsc/pkg/compiler"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/parser"
	"github.com/xplshn/gsc/pkg/rtcheck"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
	"github.com/xplshn/gsc/pkg/vm"
)

// Module is one compiled script.
type Module struct {
	Name     string
	Warnings []*util.Diagnostic

	cfg    *config.Config
	result *compiler.Result
	region *rtcheck.Region

	mu      sync.Mutex
	machine *vm.Machine
	funcs   []*Function
}

// Function is a compiled function of a Module.
type Function struct {
	Signature *types.Signature
	mod       *Module
	symbol    string
}

// Compile parses and compiles source. A nil cfg uses the defaults. When some
// functions fail the error lists every diagnostic and no Module is returned.
func Compile(ctx context.Context, name, source string, cfg *config.Config) (*Module, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	src := []rune(source)
	reporter := util.NewReporter(cfg, nil, util.SourceFileRecord{Name: name, Content: src})

	tree, err := parser.ParseSource(src, 0)
	if err != nil {
		locate(reporter, err)
		return nil, err
	}
	res, err := compiler.New(cfg, reporter).Compile(ctx, tree)
	if err != nil {
		return nil, err
	}

	region, err := rtcheck.NewRegion()
	if err != nil {
		return nil, err
	}
	m := &Module{
		Name:     name,
		Warnings: res.Warnings,
		cfg:      cfg,
		result:   res,
		region:   region,
		machine:  vm.New(res.Program, region),
	}
	for _, f := range res.Functions {
		m.funcs = append(m.funcs, &Function{Signature: f.Sig, mod: m, symbol: f.Symbol})
	}
	return m, nil
}

func locate(r *util.Reporter, err error) {
	for _, d := range util.Diagnostics(err) {
		r.Locate(d)
	}
}

// Function returns the first compiled function named name. Qualified names
// such as "Gain::apply" select member functions.
func (m *Module) Function(name string) (*Function, bool) {
	for _, f := range m.funcs {
		if f.Signature.ID.String() == name {
			return f, true
		}
	}
	return nil, false
}

// Overloads returns every compiled function named name.
func (m *Module) Overloads(name string) []*Function {
	var out []*Function
	for _, f := range m.funcs {
		if f.Signature.ID.String() == name {
			out = append(out, f)
		}
	}
	return out
}

// Match returns the first function named name that takes nargs arguments.
func (m *Module) Match(name string, nargs int) (*Function, bool) {
	for _, f := range m.Overloads(name) {
		if len(f.Signature.Params) == nargs {
			return f, true
		}
	}
	return nil, false
}

func (m *Module) Functions() []*Function { return append([]*Function(nil), m.funcs...) }

// Result exposes the compiler output, tree included.
func (m *Module) Result() *compiler.Result { return m.result }

// QBE renders the module as QBE IL.
func (m *Module) QBE() (string, error) {
	return codegen.NewQBEBackend().GenerateIR(m.result.Program, m.cfg)
}

// Assembly lowers the module to assembly for the configured target.
func (m *Module) Assembly() (*bytes.Buffer, error) {
	return codegen.NewQBEBackend().Generate(m.result.Program, m.cfg)
}

// Global reads a scalar global variable.
func (m *Module) Global(name string, k types.Kind) (types.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr, ok := m.machine.GlobalAddress(name)
	if !ok {
		return types.Value{}, fmt.Errorf("jit: no global named %s", name)
	}
	mem, err := m.machine.Bytes(addr, k.Size())
	if err != nil {
		return types.Value{}, err
	}
	return types.FromBits(k, readBits(mem)), nil
}

func (m *Module) Close() error { return m.region.Close() }

func (f *Function) Name() string   { return f.Signature.ID.String() }
func (f *Function) Symbol() string { return f.symbol }

// Call runs the function with a background context. See CallContext.
func (f *Function) Call(args ...any) (types.Value, error) {
	return f.CallContext(context.Background(), args...)
}

// CallContext runs the function. Scalar parameters accept Go numbers, bool
// and types.Value. Reference parameters take *int32, *float32 or *float64;
// span, dyn and block parameters take a slice of the element type. Pointer
// and slice arguments see the writes of the callee. A runtime check that
// fired during the call is returned as *rtcheck.Error.
func (f *Function) CallContext(ctx context.Context, args ...any) (types.Value, error) {
	sig := f.Signature
	if len(args) != len(sig.Params) {
		return types.Value{}, fmt.Errorf("jit: %s expects %d arguments, got %d", f.Name(), len(sig.Params), len(args))
	}
	m := f.mod
	m.mu.Lock()
	defer m.mu.Unlock()

	mark := m.machine.Mark()
	defer m.machine.Release(mark)

	bits := make([]uint64, len(args))
	var writeBack []func() error
	for i, a := range args {
		b, wb, err := m.marshal(sig.Params[i].Type, a)
		if err != nil {
			return types.Value{}, fmt.Errorf("jit: %s argument %d: %w", f.Name(), i+1, err)
		}
		bits[i] = b
		if wb != nil {
			writeBack = append(writeBack, wb)
		}
	}

	m.region.Reset()
	ret, err := m.machine.Call(ctx, f.symbol, bits...)
	if err != nil {
		return types.Value{}, err
	}
	for _, wb := range writeBack {
		if err := wb(); err != nil {
			return types.Value{}, err
		}
	}
	if rerr := m.region.Poll(); rerr != nil {
		return types.Value{}, rerr
	}
	if sig.Return.IsVoid() {
		return types.Value{}, nil
	}
	return types.FromBits(sig.Return.Kind, ret), nil
}

// marshal converts one argument to the bits the callee expects. The returned
// func copies callee writes back into Go memory.
func (m *Module) marshal(t types.TypeInfo, a any) (uint64, func() error, error) {
	switch {
	case t.Ref && t.IsPrimitive():
		return m.marshalRef(t, a)
	case t.IsIndexable():
		return m.marshalSlice(t, a)
	case t.IsComplex():
		return 0, nil, fmt.Errorf("can't pass %T as %s", a, t)
	}
	v, err := scalar(a)
	if err != nil {
		return 0, nil, err
	}
	return v.Cast(t.Kind).Bits(), nil, nil
}

func scalar(a any) (types.Value, error) {
	switch v := a.(type) {
	case types.Value:
		return v, nil
	case int:
		return types.IntValue(int64(v)), nil
	case int32:
		return types.IntValue(int64(v)), nil
	case int64:
		return types.IntValue(v), nil
	case bool:
		if v {
			return types.IntValue(1), nil
		}
		return types.IntValue(0), nil
	case float32:
		return types.FloatValue(v), nil
	case float64:
		return types.DoubleValue(v), nil
	}
	return types.Value{}, fmt.Errorf("unsupported argument type %T", a)
}

func (m *Module) marshalRef(t types.TypeInfo, a any) (uint64, func() error, error) {
	size := t.Kind.Size()
	addr := m.machine.Alloc(size)
	mem, _ := m.machine.Bytes(addr, size)
	var wb func() error
	switch p := a.(type) {
	case *int32:
		if t.Kind != types.Integer {
			return 0, nil, fmt.Errorf("can't pass %T as %s", a, t)
		}
		binary.LittleEndian.PutUint32(mem, uint32(*p))
		wb = func() error { *p = int32(binary.LittleEndian.Uint32(mem)); return nil }
	case *float32:
		if t.Kind != types.Float {
			return 0, nil, fmt.Errorf("can't pass %T as %s", a, t)
		}
		binary.LittleEndian.PutUint32(mem, math.Float32bits(*p))
		wb = func() error { *p = math.Float32frombits(binary.LittleEndian.Uint32(mem)); return nil }
	case *float64:
		if t.Kind != types.Double {
			return 0, nil, fmt.Errorf("can't pass %T as %s", a, t)
		}
		binary.LittleEndian.PutUint64(mem, math.Float64bits(*p))
		wb = func() error { *p = math.Float64frombits(binary.LittleEndian.Uint64(mem)); return nil }
	default:
		return 0, nil, fmt.Errorf("%s needs a pointer, got %T", t, a)
	}
	if t.Const {
		wb = nil
	}
	return addr, wb, nil
}

// marshalSlice copies a Go slice into machine memory. Spans are passed by
// address; dyn and block values by the address of a {data, count}
// descriptor.
func (m *Module) marshalSlice(t types.TypeInfo, a any) (uint64, func() error, error) {
	elem, _ := t.ElementType()
	n, stride, err := sliceShape(elem, a)
	if err != nil {
		return 0, nil, fmt.Errorf("can't pass %T as %s: %w", a, t, err)
	}
	if t.Complex != nil && t.Complex.Kind == types.SpanType && n != t.Complex.Len {
		return 0, nil, fmt.Errorf("%s needs %d elements, got %d", t, t.Complex.Len, n)
	}

	data := m.machine.Alloc(max(n*stride, 1))
	mem, _ := m.machine.Bytes(data, n*stride)
	encodeSlice(mem, a)
	wb := func() error { decodeSlice(mem, a); return nil }
	if t.Const {
		wb = nil
	}

	if t.Complex != nil && t.Complex.Kind == types.SpanType {
		return data, wb, nil
	}
	desc := m.machine.Alloc(types.DescriptorSize)
	dm, _ := m.machine.Bytes(desc, types.DescriptorSize)
	binary.LittleEndian.PutUint64(dm, data)
	binary.LittleEndian.PutUint32(dm[types.DescriptorSizeOffset:], uint32(n))
	return desc, wb, nil
}

func sliceShape(elem types.TypeInfo, a any) (n, stride int, err error) {
	switch s := a.(type) {
	case []int32:
		if elem.Is(types.Integer) {
			return len(s), 4, nil
		}
	case []float32:
		if elem.Is(types.Float) {
			return len(s), 4, nil
		}
	case []float64:
		if elem.Is(types.Double) {
			return len(s), 8, nil
		}
	}
	return 0, 0, fmt.Errorf("element type %s", elem)
}

func encodeSlice(mem []byte, a any) {
	switch s := a.(type) {
	case []int32:
		for i, v := range s {
			binary.LittleEndian.PutUint32(mem[i*4:], uint32(v))
		}
	case []float32:
		for i, v := range s {
			binary.LittleEndian.PutUint32(mem[i*4:], math.Float32bits(v))
		}
	case []float64:
		for i, v := range s {
			binary.LittleEndian.PutUint64(mem[i*8:], math.Float64bits(v))
		}
	}
}

func decodeSlice(mem []byte, a any) {
	switch s := a.(type) {
	case []int32:
		for i := range s {
			s[i] = int32(binary.LittleEndian.Uint32(mem[i*4:]))
		}
	case []float32:
		for i := range s {
			s[i] = math.Float32frombits(binary.LittleEndian.Uint32(mem[i*4:]))
		}
	case []float64:
		for i := range s {
			s[i] = math.Float64frombits(binary.LittleEndian.Uint64(mem[i*8:]))
		}
	}
}

func readBits(mem []byte) uint64 {
	if len(mem) == 4 {
		return uint64(binary.LittleEndian.Uint32(mem))
	}
	return binary.LittleEndian.Uint64(mem)
}
