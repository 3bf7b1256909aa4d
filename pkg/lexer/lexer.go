package lexer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/util"
)

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
}

func NewLexer(source []rune, fileIndex int) *Lexer {
	return &Lexer{source: source, fileIndex: fileIndex, line: 1, column: 1}
}

// Tokenize lexes the whole source, terminating the stream with an EOF token.
func Tokenize(source []rune, fileIndex int) ([]token.Token, error) {
	l := NewLexer(source, fileIndex)
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) Next() (token.Token, error) {
	if err := l.skipWhitespaceAndComments(); err != nil {
		return token.Token{}, err
	}
	startPos, startCol, startLine := l.pos, l.column, l.line

	if l.isAtEnd() {
		return l.makeToken(token.EOF, "", startPos, startCol, startLine), nil
	}

	ch := l.peek()
	if unicode.IsLetter(ch) || ch == '_' {
		l.advance()
		return l.identifierOrKeyword(startPos, startCol, startLine), nil
	}
	if unicode.IsDigit(ch) || (ch == '.' && unicode.IsDigit(l.peekNext())) {
		return l.numberLiteral(startPos, startCol, startLine)
	}

	l.advance()
	switch ch {
	case '(':
		return l.makeToken(token.LParen, "", startPos, startCol, startLine), nil
	case ')':
		return l.makeToken(token.RParen, "", startPos, startCol, startLine), nil
	case '{':
		return l.makeToken(token.LBrace, "", startPos, startCol, startLine), nil
	case '}':
		return l.makeToken(token.RBrace, "", startPos, startCol, startLine), nil
	case '[':
		return l.makeToken(token.LBracket, "", startPos, startCol, startLine), nil
	case ']':
		return l.makeToken(token.RBracket, "", startPos, startCol, startLine), nil
	case ';':
		return l.makeToken(token.Semi, "", startPos, startCol, startLine), nil
	case ',':
		return l.makeToken(token.Comma, "", startPos, startCol, startLine), nil
	case '?':
		return l.makeToken(token.Question, "", startPos, startCol, startLine), nil
	case ':':
		return l.matchThen(':', token.ColonColon, token.Colon, startPos, startCol, startLine), nil
	case '!':
		return l.matchThen('=', token.Neq, token.Not, startPos, startCol, startLine), nil
	case '^':
		return l.matchThen('=', token.XorEq, token.Xor, startPos, startCol, startLine), nil
	case '%':
		return l.matchThen('=', token.RemEq, token.Rem, startPos, startCol, startLine), nil
	case '*':
		return l.matchThen('=', token.StarEq, token.Star, startPos, startCol, startLine), nil
	case '/':
		return l.matchThen('=', token.SlashEq, token.Slash, startPos, startCol, startLine), nil
	case '=':
		return l.matchThen('=', token.EqEq, token.Eq, startPos, startCol, startLine), nil
	case '+':
		return l.doubled('+', token.Inc, token.PlusEq, token.Plus, startPos, startCol, startLine), nil
	case '-':
		return l.doubled('-', token.Dec, token.MinusEq, token.Minus, startPos, startCol, startLine), nil
	case '&':
		return l.doubled('&', token.AndAnd, token.AndEq, token.And, startPos, startCol, startLine), nil
	case '|':
		return l.doubled('|', token.OrOr, token.OrEq, token.Or, startPos, startCol, startLine), nil
	case '<':
		if l.match('<') {
			return l.matchThen('=', token.ShlEq, token.Shl, startPos, startCol, startLine), nil
		}
		return l.matchThen('=', token.Lte, token.Lt, startPos, startCol, startLine), nil
	case '>':
		// '>>' is split by the parser when it closes nested template argument lists.
		if l.match('>') {
			return l.matchThen('=', token.ShrEq, token.Shr, startPos, startCol, startLine), nil
		}
		return l.matchThen('=', token.Gte, token.Gt, startPos, startCol, startLine), nil
	case '.':
		if l.peek() == '.' && l.peekNext() == '.' {
			l.advance()
			l.advance()
			return l.makeToken(token.Dots, "", startPos, startCol, startLine), nil
		}
		return l.makeToken(token.Dot, "", startPos, startCol, startLine), nil
	}

	tok := l.makeToken(token.EOF, "", startPos, startCol, startLine)
	return tok, util.Errorf(tok, "Unexpected character: '%c'", ch)
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() error {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		case '/':
			switch l.peekNext() {
			case '*':
				if err := l.blockComment(); err != nil {
					return err
				}
			case '/':
				for !l.isAtEnd() && l.peek() != '\n' {
					l.advance()
				}
			default:
				return nil
			}
		default:
			return nil
		}
	}
}

func (l *Lexer) blockComment() error {
	startTok := l.makeToken(token.Comment, "", l.pos, l.column, l.line)
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return nil
		}
		l.advance()
	}
	return util.Errorf(startTok, "Unterminated block comment")
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Ident, value, startPos, startCol, startLine)
	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		tok.Type = tokType
	}
	return tok
}

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) (token.Token, error) {
	isFloat := false

	if l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X') {
		l.advance()
		l.advance()
		for unicode.IsDigit(l.peek()) || (l.peek() >= 'a' && l.peek() <= 'f') || (l.peek() >= 'A' && l.peek() <= 'F') {
			l.advance()
		}
	} else {
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
		if l.peek() == '.' && l.peekNext() != '.' {
			isFloat = true
			l.advance()
			for unicode.IsDigit(l.peek()) {
				l.advance()
			}
		}
		if l.peek() == 'e' || l.peek() == 'E' {
			isFloat = true
			l.advance()
			if l.peek() == '+' || l.peek() == '-' {
				l.advance()
			}
			if !unicode.IsDigit(l.peek()) {
				tok := l.makeToken(token.DoubleNumber, "", startPos, startCol, startLine)
				return tok, util.Errorf(tok, "Malformed floating-point literal: exponent has no digits")
			}
			for unicode.IsDigit(l.peek()) {
				l.advance()
			}
		}
	}

	valueStr := string(l.source[startPos:l.pos])

	if l.peek() == 'f' || l.peek() == 'F' {
		l.advance()
		tok := l.makeToken(token.FloatNumber, valueStr, startPos, startCol, startLine)
		if _, err := strconv.ParseFloat(valueStr, 32); err != nil {
			return tok, util.Errorf(tok, "Invalid float literal: %s", valueStr)
		}
		return tok, nil
	}

	if isFloat {
		tok := l.makeToken(token.DoubleNumber, valueStr, startPos, startCol, startLine)
		if _, err := strconv.ParseFloat(valueStr, 64); err != nil {
			return tok, util.Errorf(tok, "Invalid double literal: %s", valueStr)
		}
		return tok, nil
	}

	tok := l.makeToken(token.Number, "", startPos, startCol, startLine)
	val, err := strconv.ParseInt(strings.ToLower(valueStr), 0, 64)
	if err != nil || val > 1<<31-1 {
		return tok, util.Errorf(tok, "Invalid integer literal: %s", valueStr)
	}
	tok.Value = strconv.FormatInt(val, 10)
	return tok, nil
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, "", sPos, sCol, sLine)
	}
	return l.makeToken(elseType, "", sPos, sCol, sLine)
}

// doubled lexes operators spelled x, xx and x=.
func (l *Lexer) doubled(ch rune, twice, withEq, single token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(ch) {
		return l.makeToken(twice, "", sPos, sCol, sLine)
	}
	return l.matchThen('=', withEq, single, sPos, sCol, sLine)
}
