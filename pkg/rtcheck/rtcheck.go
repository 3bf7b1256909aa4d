// Package rtcheck is the runtime error channel shared between compiled code
// and the host. Guarded code writes an error code, a line and a column as
// three little-endian 32-bit words at offsets 0, 4 and 8 of the region.
package rtcheck

import (
	"encoding/binary"
	"fmt"
	"sync"
)

type Code int32

const (
	None Code = iota
	WhileLoop
	IndexOutOfBounds
	DivisionByZero
)

func (c Code) String() string {
	switch c {
	case None:
		return "none"
	case WhileLoop:
		return "endless while loop"
	case IndexOutOfBounds:
		return "index out of bounds"
	case DivisionByZero:
		return "division by zero"
	}
	return fmt.Sprintf("code(%d)", int32(c))
}

const (
	// Symbol is the name of the global the region is bound to.
	Symbol = "__rt_error"

	CodeOffset   = 0
	LineOffset   = 4
	ColumnOffset = 8
	Size         = 12
)

// Error is a runtime failure reported by compiled code.
type Error struct {
	Code   Code
	Line   int
	Column int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: runtime error: %s", e.Line, e.Column, e.Code)
}

// Region owns the shared memory of the error channel.
type Region struct {
	mu     sync.Mutex
	mem    []byte
	unmap  func([]byte) error
	closed bool
}

// NewRegion maps a fresh, zeroed region.
func NewRegion() (*Region, error) {
	mem, unmap, err := mapRegion(Size)
	if err != nil {
		return nil, fmt.Errorf("rtcheck: mapping error region: %w", err)
	}
	return &Region{mem: mem[:Size], unmap: unmap}, nil
}

// Bytes exposes the region memory so compiled code can address it.
func (r *Region) Bytes() []byte { return r.mem }

// Record stores an error unless one is already pending.
func (r *Region) Record(code Code, line, col int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if binary.LittleEndian.Uint32(r.mem[CodeOffset:]) != 0 {
		return
	}
	binary.LittleEndian.PutUint32(r.mem[CodeOffset:], uint32(code))
	binary.LittleEndian.PutUint32(r.mem[LineOffset:], uint32(line))
	binary.LittleEndian.PutUint32(r.mem[ColumnOffset:], uint32(col))
}

// Poll returns the pending error, or nil when the region is clear.
func (r *Region) Poll() *Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	code := Code(binary.LittleEndian.Uint32(r.mem[CodeOffset:]))
	if code == None {
		return nil
	}
	return &Error{
		Code:   code,
		Line:   int(int32(binary.LittleEndian.Uint32(r.mem[LineOffset:]))),
		Column: int(int32(binary.LittleEndian.Uint32(r.mem[ColumnOffset:]))),
	}
}

// Reset clears the region before the next call.
func (r *Region) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.mem)
}

func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.unmap == nil {
		return nil
	}
	return r.unmap(r.mem[:cap(r.mem)])
}
