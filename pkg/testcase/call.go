package testcase

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xplshn/gsc/pkg/types"
)

// Call is one line of a call fence.
type Call struct {
	Func      string
	Args      []types.Value
	Want      types.Value
	Void      bool   // `=> void`
	WantError string // `=> error: message`
}

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Func, strings.Join(args, ", "))
}

// ParseCall parses `name(arg, ...) => result`. Literals follow the script
// syntax: 1 is an int, 1.0 a double and 1.0f a float.
func ParseCall(line string) (Call, error) {
	lhs, rhs, ok := strings.Cut(line, "=>")
	if !ok {
		return Call{}, fmt.Errorf("call %q has no '=>'", line)
	}
	lhs, rhs = strings.TrimSpace(lhs), strings.TrimSpace(rhs)

	open := strings.IndexByte(lhs, '(')
	if open <= 0 || !strings.HasSuffix(lhs, ")") {
		return Call{}, fmt.Errorf("malformed call %q", lhs)
	}
	c := Call{Func: strings.TrimSpace(lhs[:open])}
	if inner := strings.TrimSpace(lhs[open+1 : len(lhs)-1]); inner != "" {
		for _, a := range strings.Split(inner, ",") {
			v, err := ParseLiteral(strings.TrimSpace(a))
			if err != nil {
				return Call{}, err
			}
			c.Args = append(c.Args, v)
		}
	}

	switch {
	case rhs == "void":
		c.Void = true
	case strings.HasPrefix(rhs, "error:"):
		c.WantError = strings.TrimSpace(strings.TrimPrefix(rhs, "error:"))
	default:
		v, err := ParseLiteral(rhs)
		if err != nil {
			return Call{}, err
		}
		c.Want = v
	}
	return c, nil
}

func ParseLiteral(s string) (types.Value, error) {
	switch s {
	case "true":
		return types.IntValue(1), nil
	case "false":
		return types.IntValue(0), nil
	}
	if f, ok := strings.CutSuffix(s, "f"); ok && !strings.HasPrefix(s, "0x") {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return types.Value{}, fmt.Errorf("bad float literal %q", s)
		}
		return types.FloatValue(float32(v)), nil
	}
	if strings.ContainsAny(s, ".eE") && !strings.HasPrefix(s, "0x") {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.Value{}, fmt.Errorf("bad double literal %q", s)
		}
		return types.DoubleValue(v), nil
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return types.Value{}, fmt.Errorf("bad int literal %q", s)
	}
	return types.IntValue(v), nil
}
