// Package testcase extracts script test cases from Markdown documents.
//
// Every "Test: name" heading opens a test case. Its fences are:
//
//	gsc            the script under test (exactly one)
//	flags          -W/-F flags applied before compiling
//	call           one call per line: `name(args) => result` or `name(args) => error: message`
//	compile-error  expected error messages, one per line
//	warning        expected warning messages, one per line
//	qbe            lines that must appear in the generated QBE IL
package testcase

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const InputFence = "gsc"

type AssertionType string

const (
	AssertionCall         AssertionType = "call"
	AssertionCompileError AssertionType = "compile-error"
	AssertionWarning      AssertionType = "warning"
	AssertionQBE          AssertionType = "qbe"
)

// Assertion is one assertion fence of a test case.
type Assertion struct {
	Type    AssertionType
	Content string
	Line    int
	Calls   []Call // parsed lines of a call fence
}

// Lines returns the non-empty lines of the fence.
func (a Assertion) Lines() []string {
	var out []string
	for _, l := range strings.Split(a.Content, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

type TestCase struct {
	Name       string
	Line       int
	Input      string
	Flags      string
	Assertions []Assertion
}

// ExpectsCompileError reports whether the script is supposed to be rejected.
func (tc *TestCase) ExpectsCompileError() bool {
	for _, a := range tc.Assertions {
		if a.Type == AssertionCompileError {
			return true
		}
	}
	return false
}

// ExtractTestCases parses a Markdown document and returns its test cases in
// document order.
func ExtractTestCases(markdown string) ([]TestCase, error) {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var cases []TestCase
	var cur *TestCase
	flush := func() error {
		if cur == nil {
			return nil
		}
		if err := validate(cur); err != nil {
			return err
		}
		cases = append(cases, *cur)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			title := nodeText(n, source)
			if !strings.HasPrefix(title, "Test: ") {
				return ast.WalkContinue, nil
			}
			if err := flush(); err != nil {
				return ast.WalkStop, err
			}
			cur = &TestCase{Name: strings.TrimPrefix(title, "Test: "), Line: lineOf(n, source)}

		case *ast.FencedCodeBlock:
			lang := string(n.Language(source))
			content := strings.TrimRight(fenceContent(n, source), "\n")
			line := lineOf(n, source)

			if cur == nil {
				if lang != "" {
					return ast.WalkStop, fmt.Errorf("line %d: %s fence found outside of test case", line, lang)
				}
				return ast.WalkContinue, nil
			}

			switch lang {
			case "":
			case InputFence:
				if cur.Input != "" {
					return ast.WalkStop, fmt.Errorf("line %d: multiple input fences found in test '%s'", line, cur.Name)
				}
				cur.Input = content
			case "flags":
				cur.Flags = strings.Join(strings.Fields(content), " ")
			case string(AssertionCall):
				a := Assertion{Type: AssertionCall, Content: content, Line: line}
				for i, l := range a.Lines() {
					c, err := ParseCall(l)
					if err != nil {
						return ast.WalkStop, fmt.Errorf("line %d: test '%s': %w", line+i+1, cur.Name, err)
					}
					a.Calls = append(a.Calls, c)
				}
				cur.Assertions = append(cur.Assertions, a)
			case string(AssertionCompileError), string(AssertionWarning), string(AssertionQBE):
				cur.Assertions = append(cur.Assertions, Assertion{Type: AssertionType(lang), Content: content, Line: line})
			default:
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language '%s' in test '%s'", line, lang, cur.Name)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking markdown AST: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cases, nil
}

func validate(tc *TestCase) error {
	if tc.Input == "" {
		return fmt.Errorf("test '%s' has no input fence", tc.Name)
	}
	if len(tc.Assertions) == 0 {
		return fmt.Errorf("test '%s' has no assertion fences", tc.Name)
	}
	if tc.ExpectsCompileError() {
		for _, a := range tc.Assertions {
			if a.Type == AssertionCall {
				return fmt.Errorf("test '%s' expects a compile error but also calls functions", tc.Name)
			}
		}
	}
	return nil
}

func nodeText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func fenceContent(b *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < b.Lines().Len(); i++ {
		line := b.Lines().At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

// lineOf is the 1-based line of the first content line of node. Headings
// and fences report the line of their first segment.
func lineOf(node ast.Node, source []byte) int {
	var start int
	switch {
	case node.Lines().Len() > 0:
		start = node.Lines().At(0).Start
	default:
		return 1
	}
	return bytes.Count(source[:min(start, len(source))], []byte("\n")) + 1
}
