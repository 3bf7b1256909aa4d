package rtcheck

import (
	"encoding/binary"
	"testing"

	"github.com/nalgeon/be"
)

func TestRegion(t *testing.T) {
	r, err := NewRegion()
	be.Err(t, err, nil)
	defer r.Close()

	be.Equal(t, len(r.Bytes()), Size)
	be.True(t, r.Poll() == nil)

	r.Record(IndexOutOfBounds, 12, 5)
	r.Record(DivisionByZero, 1, 1)
	got := r.Poll()
	be.Equal(t, *got, Error{Code: IndexOutOfBounds, Line: 12, Column: 5})
	be.Equal(t, got.Error(), "12:5: runtime error: index out of bounds")

	r.Reset()
	be.True(t, r.Poll() == nil)
}

func TestRegionRawWrites(t *testing.T) {
	r, err := NewRegion()
	be.Err(t, err, nil)
	defer r.Close()

	// compiled code writes the words directly
	mem := r.Bytes()
	binary.LittleEndian.PutUint32(mem[CodeOffset:], uint32(WhileLoop))
	binary.LittleEndian.PutUint32(mem[LineOffset:], 3)
	binary.LittleEndian.PutUint32(mem[ColumnOffset:], 9)
	be.Equal(t, *r.Poll(), Error{Code: WhileLoop, Line: 3, Column: 9})
}

func TestClose(t *testing.T) {
	r, err := NewRegion()
	be.Err(t, err, nil)
	be.Err(t, r.Close(), nil)
	be.Err(t, r.Close(), nil)
}

func TestCodeString(t *testing.T) {
	be.Equal(t, WhileLoop.String(), "endless while loop")
	be.Equal(t, Code(42).String(), "code(42)")
}
