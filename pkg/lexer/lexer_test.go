package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/util"
)

func kinds(toks []token.Token) []token.Type {
	out := make([]token.Type, len(toks))
	for i, t := range toks {
		out[i] = t.Type
	}
	return out
}

func TestTokenize(t *testing.T) {
	toks, err := Tokenize([]rune("span<float, 4> s; // trailing\nx += s[0] >> 2;"), 0)
	be.Err(t, err, nil)
	want := []token.Type{
		token.Span, token.Lt, token.Float, token.Comma, token.Number, token.Gt, token.Ident, token.Semi,
		token.Ident, token.PlusEq, token.Ident, token.LBracket, token.Number, token.RBracket, token.Shr, token.Number, token.Semi,
		token.EOF,
	}
	if diff := cmp.Diff(want, kinds(toks)); diff != "" {
		t.Errorf("token kinds mismatch (-want +got):\n%s", diff)
	}
	be.Equal(t, toks[8].Line, 2)
	be.Equal(t, toks[8].Column, 1)
	be.Equal(t, toks[9].Len, 2)
}

func TestOperators(t *testing.T) {
	toks, err := Tokenize([]rune("++ -- && || &= |= <<= >>= <= >= == != :: ... . ? ! %="), 0)
	be.Err(t, err, nil)
	want := []token.Type{
		token.Inc, token.Dec, token.AndAnd, token.OrOr, token.AndEq, token.OrEq, token.ShlEq, token.ShrEq,
		token.Lte, token.Gte, token.EqEq, token.Neq, token.ColonColon, token.Dots, token.Dot, token.Question,
		token.Not, token.RemEq, token.EOF,
	}
	if diff := cmp.Diff(want, kinds(toks)); diff != "" {
		t.Errorf("token kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		src   string
		kind  token.Type
		value string
	}{
		{"42", token.Number, "42"},
		{"0x1F", token.Number, "31"},
		{"1.5f", token.FloatNumber, "1.5"},
		{"2f", token.FloatNumber, "2"},
		{".25", token.DoubleNumber, ".25"},
		{"1e3", token.DoubleNumber, "1e3"},
		{"3.0", token.DoubleNumber, "3.0"},
	}
	for _, tt := range tests {
		toks, err := Tokenize([]rune(tt.src), 0)
		be.Err(t, err, nil)
		be.Equal(t, toks[0].Type, tt.kind)
		be.Equal(t, toks[0].Value, tt.value)
	}
}

func TestKeywordsAndComments(t *testing.T) {
	toks, err := Tokenize([]rune("/* a\n block */ template<typename T> inline auto x_1"), 3)
	be.Err(t, err, nil)
	want := []token.Type{token.Template, token.Lt, token.Typename, token.Ident, token.Gt, token.Inline, token.Auto, token.Ident, token.EOF}
	if diff := cmp.Diff(want, kinds(toks)); diff != "" {
		t.Errorf("token kinds mismatch (-want +got):\n%s", diff)
	}
	be.Equal(t, toks[0].Line, 2)
	be.Equal(t, toks[0].FileIndex, 3)
	be.Equal(t, toks[7].Value, "x_1")
}

func TestErrors(t *testing.T) {
	tests := map[string]string{
		"x @ y":        "Unexpected character: '@'",
		"/* open":      "Unterminated block comment",
		"1e+":          "exponent has no digits",
		"99999999999":  "Invalid integer literal",
		"int a = $;\n": "Unexpected character: '$'",
	}
	for src, want := range tests {
		_, err := Tokenize([]rune(src), 0)
		be.Err(t, err, want)
		ds := util.Diagnostics(err)
		be.Equal(t, len(ds), 1)
	}
}
