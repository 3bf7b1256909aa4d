package jit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/rtcheck"
	"github.com/xplshn/gsc/pkg/testcase"
	"github.com/xplshn/gsc/pkg/types"
)

func TestSuites(t *testing.T) {
	files, err := filepath.Glob("testdata/*_test.md")
	be.Err(t, err, nil)
	be.True(t, len(files) > 0)

	for _, file := range files {
		t.Run(strings.TrimSuffix(filepath.Base(file), ".md"), func(t *testing.T) {
			content, err := os.ReadFile(file)
			be.Err(t, err, nil)
			cases, err := testcase.ExtractTestCases(string(content))
			be.Err(t, err, nil)
			for _, tc := range cases {
				t.Run(tc.Name, func(t *testing.T) { runCase(t, tc) })
			}
		})
	}
}

func runCase(t *testing.T, tc testcase.TestCase) {
	cfg := config.NewConfig()
	cfg.ProcessDirectiveFlags(tc.Flags)
	m, err := Compile(context.Background(), tc.Name, tc.Input, cfg)

	if tc.ExpectsCompileError() {
		if err == nil {
			t.Fatalf("expected a compile error")
		}
		for _, a := range tc.Assertions {
			if a.Type != testcase.AssertionCompileError {
				continue
			}
			for _, want := range a.Lines() {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		}
		return
	}
	be.Err(t, err, nil)
	defer m.Close()

	for _, a := range tc.Assertions {
		switch a.Type {
		case testcase.AssertionWarning:
			for _, want := range a.Lines() {
				if !hasWarning(m, want) {
					t.Errorf("missing warning %q, got %v", want, m.Warnings)
				}
			}
		case testcase.AssertionQBE:
			il, err := m.QBE()
			be.Err(t, err, nil)
			for _, want := range a.Lines() {
				if !strings.Contains(il, want) {
					t.Errorf("QBE output lacks %q:\n%s", want, il)
				}
			}
		case testcase.AssertionCall:
			for _, c := range a.Calls {
				runCall(t, m, c)
			}
		}
	}
}

func hasWarning(m *Module, want string) bool {
	for _, w := range m.Warnings {
		if strings.Contains(w.Message, want) {
			return true
		}
	}
	return false
}

func runCall(t *testing.T, m *Module, c testcase.Call) {
	t.Helper()
	fn, ok := m.Match(c.Func, len(c.Args))
	if !ok {
		t.Errorf("%s: no function %s taking %d arguments", c, c.Func, len(c.Args))
		return
	}
	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		args[i] = a
	}
	got, err := fn.Call(args...)
	if c.WantError != "" {
		if err == nil || !strings.Contains(err.Error(), c.WantError) {
			t.Errorf("%s: got error %v, want %q", c, err, c.WantError)
		}
		return
	}
	if err != nil {
		t.Errorf("%s: %v", c, err)
		return
	}
	if !c.Void && got != c.Want {
		t.Errorf("%s = %s, want %s", c, got, c.Want)
	}
}

func TestCallSlices(t *testing.T) {
	const src = `
void gain(block b, float g) {
    for (float& x : b)
        x *= g;
}

float sum(span<float, 4> s) {
    float total = 0.0f;
    for (float x : s)
        total += x;
    return total;
}

int length(dyn<int> d) { return d.size(); }
`
	m, err := Compile(context.Background(), "slices", src, nil)
	be.Err(t, err, nil)
	defer m.Close()

	fn, ok := m.Function("gain")
	be.True(t, ok)
	buf := []float32{1, 2, 3}
	_, err = fn.Call(buf, float32(0.5))
	be.Err(t, err, nil)
	be.Equal(t, buf, []float32{0.5, 1, 1.5})

	fn, _ = m.Function("sum")
	v, err := fn.Call([]float32{1, 2, 3, 4})
	be.Err(t, err, nil)
	be.Equal(t, v, types.FloatValue(10))

	_, err = fn.Call([]float32{1, 2})
	be.True(t, err != nil)

	fn, _ = m.Function("length")
	v, err = fn.Call([]int32{7, 8, 9})
	be.Err(t, err, nil)
	be.Equal(t, v, types.IntValue(3))
}

func TestCallReferences(t *testing.T) {
	const src = `
void bump(int& x) { x += 2; }
float read(const float& x) { return x; }
`
	m, err := Compile(context.Background(), "refs", src, nil)
	be.Err(t, err, nil)
	defer m.Close()

	fn, _ := m.Function("bump")
	x := int32(5)
	_, err = fn.Call(&x)
	be.Err(t, err, nil)
	be.Equal(t, x, int32(7))

	_, err = fn.Call(5)
	be.True(t, err != nil)

	fn, _ = m.Function("read")
	f := float32(1.25)
	v, err := fn.Call(&f)
	be.Err(t, err, nil)
	be.Equal(t, v, types.FloatValue(1.25))
}

func TestRuntimeErrorLocation(t *testing.T) {
	const src = `span<int, 2> pair = { 1, 2 };

int at(int i) {
    return pair[i];
}
`
	m, err := Compile(context.Background(), "where", src, nil)
	be.Err(t, err, nil)
	defer m.Close()

	fn, _ := m.Function("at")
	_, err = fn.Call(3)
	var rerr *rtcheck.Error
	be.True(t, errors.As(err, &rerr))
	be.Equal(t, rerr.Code, rtcheck.IndexOutOfBounds)
	be.Equal(t, rerr.Line, 4)

	// the region is cleared before every call
	v, err := fn.Call(1)
	be.Err(t, err, nil)
	be.Equal(t, v, types.IntValue(2))
}

func TestWhileLimit(t *testing.T) {
	const src = `
int spin(int n) {
    int i = 0;
    while (n > 0) {
        i++;
    }
    return i;
}
`
	cfg := config.NewConfig()
	cfg.LoopLimit = 100
	m, err := Compile(context.Background(), "spin", src, cfg)
	be.Err(t, err, nil)
	defer m.Close()

	fn, _ := m.Function("spin")
	_, err = fn.Call(1)
	var rerr *rtcheck.Error
	be.True(t, errors.As(err, &rerr))
	be.Equal(t, rerr.Code, rtcheck.WhileLoop)

	v, err := fn.Call(0)
	be.Err(t, err, nil)
	be.Equal(t, v, types.IntValue(0))
}

func TestWithoutSafeChecks(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatSafeChecks, false)
	m, err := Compile(context.Background(), "unsafe", "span<int, 2> p = { 1, 2 };\nint at(int i) { return p[i]; }\n", cfg)
	be.Err(t, err, nil)
	defer m.Close()

	il, err := m.QBE()
	be.Err(t, err, nil)
	be.True(t, !strings.Contains(il, rtcheck.Symbol))
}

func TestGlobal(t *testing.T) {
	m, err := Compile(context.Background(), "g", "float level = 0.25f;\nvoid set(float v) { level = v; }\n", nil)
	be.Err(t, err, nil)
	defer m.Close()

	v, err := m.Global("level", types.Float)
	be.Err(t, err, nil)
	be.Equal(t, v, types.FloatValue(0.25))

	fn, _ := m.Function("set")
	_, err = fn.Call(float32(2))
	be.Err(t, err, nil)
	v, _ = m.Global("level", types.Float)
	be.Equal(t, v, types.FloatValue(2))

	_, err = m.Global("missing", types.Float)
	be.True(t, err != nil)
}

func TestCompileErrorsCarryFileNames(t *testing.T) {
	_, err := Compile(context.Background(), "broken.gsc", "int f() { return y; }", nil)
	be.True(t, err != nil)
	be.True(t, strings.HasPrefix(err.Error(), "broken.gsc:1:"))
}

func TestCallArity(t *testing.T) {
	m, err := Compile(context.Background(), "a", "int id(int x) { return x; }", nil)
	be.Err(t, err, nil)
	defer m.Close()
	fn, _ := m.Function("id")
	_, err = fn.Call()
	be.True(t, err != nil)
	_, err = fn.Call("nope")
	be.True(t, err != nil)
}

func TestCompileTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compile(ctx, "late", "int f() { return 1; }", nil)
	be.True(t, errors.Is(err, context.Canceled))
}

func TestCache(t *testing.T) {
	c := NewCache(nil)
	defer c.Close()
	ctx := context.Background()

	a, err := c.Get(ctx, "x", "int f() { return 1; }")
	be.Err(t, err, nil)
	b, err := c.Get(ctx, "x", "int f() { return 1; }")
	be.Err(t, err, nil)
	be.True(t, a == b)
	be.Equal(t, c.Hits(), 1)

	_, err = c.Get(ctx, "x", "int f() { return 2; }")
	be.Err(t, err, nil)
	be.Equal(t, c.Len(), 2)

	_, err = c.Get(ctx, "x", "int f() { return nope; }")
	be.True(t, err != nil)
	be.Equal(t, c.Len(), 2)
}
