package parser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/xplshn/gsc/pkg/ast"
)

// outline renders the tree like Dump but without types, which the parser
// leaves unresolved.
func outline(tree *ast.Tree, id ast.NodeID, depth int, sb *strings.Builder) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(tree.Kind(id).String())
	if l := tree.Label(id); l != "" {
		sb.WriteString(" " + l)
	}
	sb.WriteByte('\n')
	for i := 0; i < tree.NumChildren(id); i++ {
		outline(tree, tree.Child(id, i), depth+1, sb)
	}
}

func parse(t *testing.T, src string) string {
	t.Helper()
	tree, err := ParseSource([]rune(src), 0)
	be.Err(t, err, nil)
	be.Err(t, tree.Verify(tree.Root()), nil)
	var sb strings.Builder
	outline(tree, tree.Root(), 0, &sb)
	return sb.String()
}

func TestParseFunction(t *testing.T) {
	got := parse(t, `
int count = 2;
float mix(float a, float b) {
    if (a < b)
        return a * 2.0f + b;
    return b;
}
`)
	want := `SyntaxTree
  Assignment = decl
    Immediate 2
    VariableReference count
  Function float mix(float, float)
    StatementBlock
      IfStatement
        Compare <
          VariableReference a
          VariableReference b
        StatementBlock
          ReturnStatement
            BinaryOp +
              BinaryOp *
                VariableReference a
                Immediate 2f
              VariableReference b
      ReturnStatement
        VariableReference b
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTemplatesAndStructs(t *testing.T) {
	got := parse(t, `
template<int N> float times(float x) { return x * N; }
struct Gain {
    float g = 0.5f;
    float apply(float x) { return x * g; }
};
float run(span<float, 4> s) {
    Gain k;
    return times<3>(k.apply(s[0])) + Math.sqrt(s[1]);
}
`)
	want := `SyntaxTree
  TemplateDefinition times
    TemplatedFunction float times(float)
      StatementBlock
        ReturnStatement
          BinaryOp *
            VariableReference x
            VariableReference N
  ClassStatement Gain
    Assignment = decl
      Immediate 0.5f
      VariableReference g
    Function float Gain::apply(float)
      StatementBlock
        ReturnStatement
          BinaryOp *
            VariableReference x
            VariableReference g
  Function float run(span<float, 4>)
    StatementBlock
      ComplexTypeDefinition Gain k
      ReturnStatement
        BinaryOp +
          FunctionCall times<3>
            FunctionCall apply
              VariableReference k
              Subscript
                VariableReference s
                Immediate 0
          FunctionCall Math::sqrt
            Subscript
              VariableReference s
              Immediate 1
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestParseStatements(t *testing.T) {
	got := parse(t, `
void f(block b, int& n) {
    for (float& x : b) { x *= 0.5f; }
    while (n > 0) { n--; if (n == 3) break; else continue; }
    int a = 1, c;
    a = c = (float)n ? -a : !c;
}
`)
	want := `SyntaxTree
  Function void f(block, int&)
    StatementBlock
      Loop x
        VariableReference b
        StatementBlock
          Assignment *=
            Immediate 0.5f
            VariableReference x
      WhileLoop
        Compare >
          VariableReference n
          Immediate 0
        StatementBlock
          Increment x--
            VariableReference n
          IfStatement
            Compare ==
              VariableReference n
              Immediate 3
            StatementBlock
              ControlFlow break
            StatementBlock
              ControlFlow continue
      Assignment = decl
        Immediate 1
        VariableReference a
      Assignment = decl
        Immediate 0
        VariableReference c
      Assignment =
        Assignment =
          TernaryOp
            Cast float
              VariableReference n
            Negation
              VariableReference a
            LogicalNot
              VariableReference c
          VariableReference c
        VariableReference a
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestNestedTemplateClose(t *testing.T) {
	got := parse(t, "dyn<span<int, 2>> d;\n")
	be.Equal(t, got, "SyntaxTree\n  ComplexTypeDefinition dyn<span<int, 2>> d\n")
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"int f() { return 1 }":                            "Expected ';' after return.",
		"foo x;":                                          "Unknown type 'foo'.",
		"int f(void x) {}":                                "illegal parameter type void",
		"span<float, 0> s;":                               "span size must be positive",
		"inline int x;":                                   "only functions can be declared inline",
		"void f() { struct A {}; }":                       "'struct' is only allowed at global scope",
		"void f() { auto x; }":                            "Can't deduce type of x without initialiser",
		"template<typename T, typename T> void f() {}":    "template parameter T is already defined",
		"void f() { int g() {} }":                         "function definitions are only allowed at global scope",
		"void f() { return (1; }":                         "Expected ')' after expression.",
		"struct S { template<int N> void f() {} };":       "member templates are not supported",
		"template<int N> void f() {}\nvoid g() { f<3>; }": "Expected '(' after template arguments.",
	}
	for src, want := range tests {
		_, err := ParseSource([]rune(src), 0)
		be.Err(t, err, want)
	}
}
