package vm

import "math"

// externs are the C library functions compiled code may call.
var externs = map[string]func(args []uint64) uint64{}

func init() {
	unary := map[string]func(float64) float64{
		"sin": math.Sin, "cos": math.Cos, "sqrt": math.Sqrt, "fabs": math.Abs,
		"exp": math.Exp, "floor": math.Floor,
	}
	for name, f := range unary {
		f := f
		externs[name] = func(a []uint64) uint64 { return math.Float64bits(f(math.Float64frombits(a[0]))) }
		externs[name+"f"] = func(a []uint64) uint64 {
			return uint64(math.Float32bits(float32(f(float64(math.Float32frombits(uint32(a[0])))))))
		}
	}

	binary := map[string]func(float64, float64) float64{
		"pow": math.Pow, "fmod": math.Mod, "fmin": math.Min, "fmax": math.Max,
	}
	for name, f := range binary {
		f := f
		externs[name] = func(a []uint64) uint64 {
			return math.Float64bits(f(math.Float64frombits(a[0]), math.Float64frombits(a[1])))
		}
		externs[name+"f"] = func(a []uint64) uint64 {
			x, y := float64(math.Float32frombits(uint32(a[0]))), float64(math.Float32frombits(uint32(a[1])))
			return uint64(math.Float32bits(float32(f(x, y))))
		}
	}

	externs["abs"] = func(a []uint64) uint64 {
		v := int32(a[0])
		if v < 0 {
			v = -v
		}
		return uint64(uint32(v))
	}
}
