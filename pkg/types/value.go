package types

import (
	"fmt"
	"math"
	"strconv"

	"github.com/xplshn/gsc/pkg/token"
)

// Value is a compile-time constant of a primitive kind.
type Value struct {
	Kind Kind
	I    int64
	F    float64
}

func IntValue(v int64) Value     { return Value{Kind: Integer, I: int64(int32(v))} }
func FloatValue(v float32) Value { return Value{Kind: Float, F: float64(v)} }
func DoubleValue(v float64) Value {
	return Value{Kind: Double, F: v}
}

func (v Value) Type() TypeInfo { return Primitive(v.Kind) }

func (v Value) ToInt() int64 {
	if v.Kind == Integer {
		return v.I
	}
	return int64(int32(v.F))
}

func (v Value) ToDouble() float64 {
	if v.Kind == Integer {
		return float64(v.I)
	}
	return v.F
}

func (v Value) ToFloat() float32 { return float32(v.ToDouble()) }

func (v Value) IsTrue() bool {
	if v.Kind == Integer {
		return v.I != 0
	}
	return v.F != 0
}

// Cast converts v to kind k with C semantics.
func (v Value) Cast(k Kind) Value {
	switch k {
	case Integer:
		return IntValue(v.ToInt())
	case Float:
		return FloatValue(v.ToFloat())
	case Double:
		return DoubleValue(v.ToDouble())
	}
	return v
}

// Bits returns the raw machine representation of v.
func (v Value) Bits() uint64 {
	switch v.Kind {
	case Float:
		return uint64(math.Float32bits(float32(v.F)))
	case Double:
		return math.Float64bits(v.F)
	}
	return uint64(uint32(int32(v.I)))
}

// FromBits is the inverse of Bits.
func FromBits(k Kind, bits uint64) Value {
	switch k {
	case Float:
		return FloatValue(math.Float32frombits(uint32(bits)))
	case Double:
		return DoubleValue(math.Float64frombits(bits))
	}
	return IntValue(int64(int32(uint32(bits))))
}

func (v Value) String() string {
	switch v.Kind {
	case Float:
		return strconv.FormatFloat(v.F, 'g', -1, 32) + "f"
	case Double:
		s := strconv.FormatFloat(v.F, 'g', -1, 64)
		if _, err := strconv.Atoi(s); err == nil {
			s += ".0"
		}
		return s
	case Integer:
		return strconv.FormatInt(v.I, 10)
	}
	return "void"
}

// Fold evaluates a binary or compare operator on two constants of the same kind.
func Fold(op token.Type, a, b Value) (Value, error) {
	if a.Kind != b.Kind {
		return Value{}, fmt.Errorf("can't fold %s and %s", a.Kind, b.Kind)
	}
	if op.IsComparison() {
		var r bool
		if a.Kind == Integer {
			r = compare(op, float64(a.I), float64(b.I))
		} else {
			r = compare(op, a.F, b.F)
		}
		if r {
			return IntValue(1), nil
		}
		return IntValue(0), nil
	}
	if a.Kind == Integer {
		x, y := int32(a.I), int32(b.I)
		switch op {
		case token.Plus:
			return IntValue(int64(x + y)), nil
		case token.Minus:
			return IntValue(int64(x - y)), nil
		case token.Star:
			return IntValue(int64(x * y)), nil
		case token.Slash, token.Rem:
			if y == 0 {
				return Value{}, fmt.Errorf("division by zero")
			}
			if op == token.Slash {
				return IntValue(int64(x / y)), nil
			}
			return IntValue(int64(x % y)), nil
		case token.And:
			return IntValue(int64(x & y)), nil
		case token.Or:
			return IntValue(int64(x | y)), nil
		case token.Xor:
			return IntValue(int64(x ^ y)), nil
		case token.Shl:
			return IntValue(int64(x << (uint32(y) & 31))), nil
		case token.Shr:
			return IntValue(int64(x >> (uint32(y) & 31))), nil
		case token.AndAnd:
			return boolValue(x != 0 && y != 0), nil
		case token.OrOr:
			return boolValue(x != 0 || y != 0), nil
		}
		return Value{}, fmt.Errorf("can't fold operator %s", op)
	}

	var r float64
	switch op {
	case token.Plus:
		r = a.F + b.F
	case token.Minus:
		r = a.F - b.F
	case token.Star:
		r = a.F * b.F
	case token.Slash:
		r = a.F / b.F
	case token.Rem:
		r = math.Mod(a.F, b.F)
	default:
		return Value{}, fmt.Errorf("can't fold operator %s on %s", op, a.Kind)
	}
	if a.Kind == Float {
		return FloatValue(float32(r)), nil
	}
	return DoubleValue(r), nil
}

func compare(op token.Type, a, b float64) bool {
	switch op {
	case token.EqEq:
		return a == b
	case token.Neq:
		return a != b
	case token.Lt:
		return a < b
	case token.Gt:
		return a > b
	case token.Lte:
		return a <= b
	case token.Gte:
		return a >= b
	}
	return false
}

func boolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return IntValue(0)
}
