package compiler

import "fmt"

// Pass is one walk of the driver over the tree. Passes run in declaration order.
type Pass uint8

const (
	Parsing Pass = iota
	ComplexTypeParsing
	DataAllocation
	SyntaxSugarReplacement
	TypeCheck
	FunctionParsing
	FunctionCompilation
	RegisterAllocation
	CodeGeneration
	passCount
)

var passNames = [...]string{
	Parsing:                "Parsing",
	ComplexTypeParsing:     "ComplexTypeParsing",
	DataAllocation:         "DataAllocation",
	SyntaxSugarReplacement: "SyntaxSugarReplacement",
	TypeCheck:              "TypeCheck",
	FunctionParsing:        "FunctionParsing",
	FunctionCompilation:    "FunctionCompilation",
	RegisterAllocation:     "RegisterAllocation",
	CodeGeneration:         "CodeGeneration",
}

func (p Pass) String() string {
	if p < passCount {
		return passNames[p]
	}
	return fmt.Sprintf("Pass(%d)", uint8(p))
}

// Passes returns every pass in execution order.
func Passes() []Pass {
	out := make([]Pass, 0, passCount)
	for p := Parsing; p < passCount; p++ {
		out = append(out, p)
	}
	return out
}

// Function bodies are parsed during FunctionParsing and compiled during
// FunctionCompilation with these passes.
var (
	bodyParsePasses   = []Pass{ComplexTypeParsing, DataAllocation, SyntaxSugarReplacement, TypeCheck}
	bodyCompilePasses = []Pass{RegisterAllocation, CodeGeneration}
)
