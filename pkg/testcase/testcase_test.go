package testcase

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/xplshn/gsc/pkg/types"
)

const doc = "# Suite\n\n" +
	"Some prose.\n\n" +
	"## Test: double\n\n" +
	"```gsc\nint twice(int x) { return x * 2; }\n```\n\n" +
	"```call\ntwice(3) => 6\ntwice(-1) => -2\n```\n\n" +
	"## Test: rejected\n\n" +
	"```flags\n-Fno-safe-checks\n  -Wall\n```\n\n" +
	"```gsc\nvoid f() { while (true) {} }\n```\n\n" +
	"```compile-error\nendless loop detected\n```\n"

func TestExtractTestCases(t *testing.T) {
	cases, err := ExtractTestCases(doc)
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 2)

	be.Equal(t, cases[0].Name, "double")
	be.Equal(t, cases[0].Input, "int twice(int x) { return x * 2; }")
	be.Equal(t, len(cases[0].Assertions), 1)
	calls := cases[0].Assertions[0].Calls
	want := []Call{
		{Func: "twice", Args: []types.Value{types.IntValue(3)}, Want: types.IntValue(6)},
		{Func: "twice", Args: []types.Value{types.IntValue(-1)}, Want: types.IntValue(-2)},
	}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}

	be.Equal(t, cases[1].Name, "rejected")
	be.Equal(t, cases[1].Flags, "-Fno-safe-checks -Wall")
	be.True(t, cases[1].ExpectsCompileError())
	be.Equal(t, cases[1].Assertions[0].Lines(), []string{"endless loop detected"})
}

func TestExtractTestCasesErrors(t *testing.T) {
	tests := map[string]string{
		"fence outside test": "```gsc\nint x;\n```\n",
		"unknown fence":      "## Test: a\n\n```gsc\nint x;\n```\n\n```bogus\nx\n```\n",
		"no input":           "## Test: a\n\n```call\nf() => 1\n```\n",
		"no assertion":       "## Test: a\n\n```gsc\nint x;\n```\n",
		"two inputs":         "## Test: a\n\n```gsc\nint x;\n```\n\n```gsc\nint y;\n```\n",
		"bad call":           "## Test: a\n\n```gsc\nint x;\n```\n\n```call\nf() 1\n```\n",
		"call and error":     "## Test: a\n\n```gsc\nint x;\n```\n\n```call\nf() => 1\n```\n\n```compile-error\nx\n```\n",
	}
	for name, md := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ExtractTestCases(md)
			be.True(t, err != nil)
		})
	}
}

func TestParseCall(t *testing.T) {
	c, err := ParseCall("mix(1.5f, 2.0, 0x10) => 3.5f")
	be.Err(t, err, nil)
	be.Equal(t, c.Func, "mix")
	be.Equal(t, c.Args, []types.Value{types.FloatValue(1.5), types.DoubleValue(2), types.IntValue(16)})
	be.Equal(t, c.Want, types.FloatValue(3.5))

	c, err = ParseCall("reset() => void")
	be.Err(t, err, nil)
	be.True(t, c.Void)
	be.Equal(t, len(c.Args), 0)

	c, err = ParseCall("read(9) => error: index out of bounds")
	be.Err(t, err, nil)
	be.Equal(t, c.WantError, "index out of bounds")
	be.Equal(t, c.String(), "read(9)")
}

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want types.Value
	}{
		{"true", types.IntValue(1)},
		{"false", types.IntValue(0)},
		{"-4", types.IntValue(-4)},
		{"0x1f", types.IntValue(31)},
		{"0.25f", types.FloatValue(0.25)},
		{"1e3", types.DoubleValue(1000)},
	}
	for _, tt := range tests {
		got, err := ParseLiteral(tt.in)
		be.Err(t, err, nil)
		be.Equal(t, got, tt.want)
	}
	_, err := ParseLiteral("nope")
	be.True(t, err != nil)
}
