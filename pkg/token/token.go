package token

import "fmt"

type Type int

const (
	EOF Type = iota
	Comment
	Ident
	Number
	FloatNumber
	DoubleNumber
	If
	Else
	While
	For
	Return
	Break
	Continue
	Struct
	Template
	Typename
	Inline
	Const
	Auto
	True
	False
	Void
	Bool
	Int
	Float
	Double
	Block
	Span
	Dyn
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semi
	Comma
	Colon
	ColonColon
	Question
	Dots
	Dot
	Eq
	PlusEq
	MinusEq
	StarEq
	SlashEq
	RemEq
	AndEq
	OrEq
	XorEq
	ShlEq
	ShrEq
	Plus
	Minus
	Star
	Slash
	Rem
	And
	Or
	Xor
	Shl
	Shr
	EqEq
	Neq
	Lt
	Gt
	Gte
	Lte
	AndAnd
	OrOr
	Not
	Inc
	Dec
)

var KeywordMap = map[string]Type{
	"if":       If,
	"else":     Else,
	"while":    While,
	"for":      For,
	"return":   Return,
	"break":    Break,
	"continue": Continue,
	"struct":   Struct,
	"template": Template,
	"typename": Typename,
	"inline":   Inline,
	"const":    Const,
	"auto":     Auto,
	"true":     True,
	"false":    False,
	"void":     Void,
	"bool":     Bool,
	"int":      Int,
	"float":    Float,
	"double":   Double,
	"block":    Block,
	"span":     Span,
	"dyn":      Dyn,
}

var symbols = map[Type]string{
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", LBracket: "[", RBracket: "]",
	Semi: ";", Comma: ",", Colon: ":", ColonColon: "::", Question: "?", Dots: "...", Dot: ".",
	Eq: "=", PlusEq: "+=", MinusEq: "-=", StarEq: "*=", SlashEq: "/=", RemEq: "%=",
	AndEq: "&=", OrEq: "|=", XorEq: "^=", ShlEq: "<<=", ShrEq: ">>=",
	Plus: "+", Minus: "-", Star: "*", Slash: "/", Rem: "%", And: "&", Or: "|", Xor: "^",
	Shl: "<<", Shr: ">>", EqEq: "==", Neq: "!=", Lt: "<", Gt: ">", Gte: ">=", Lte: "<=",
	AndAnd: "&&", OrOr: "||", Not: "!", Inc: "++", Dec: "--",
}

// Reverse mapping from Type to the keyword or operator spelling
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for typ, str := range symbols {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	switch t {
	case EOF:
		return "end of file"
	case Ident:
		return "identifier"
	case Number, FloatNumber, DoubleNumber:
		return "number"
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// IsTypeKeyword reports whether t starts a builtin type name.
func (t Type) IsTypeKeyword() bool { return t >= Void && t <= Dyn }

// IsAssignment reports whether t is '=' or one of the compound assignment operators.
func (t Type) IsAssignment() bool { return t >= Eq && t <= ShrEq }

// BinaryOf maps a compound assignment operator to its binary operator.
func (t Type) BinaryOf() Type {
	switch t {
	case PlusEq:
		return Plus
	case MinusEq:
		return Minus
	case StarEq:
		return Star
	case SlashEq:
		return Slash
	case RemEq:
		return Rem
	case AndEq:
		return And
	case OrEq:
		return Or
	case XorEq:
		return Xor
	case ShlEq:
		return Shl
	case ShrEq:
		return Shr
	}
	return EOF
}

// IsComparison reports whether t is a relational or equality operator.
func (t Type) IsComparison() bool { return t >= EqEq && t <= Lte }

// IsLogic reports whether t is a short-circuit logic operator.
func (t Type) IsLogic() bool { return t == AndAnd || t == OrOr }

// IsBitwise reports whether t only applies to integers.
func (t Type) IsBitwise() bool {
	switch t {
	case And, Or, Xor, Shl, Shr:
		return true
	}
	return false
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}
