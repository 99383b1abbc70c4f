package expr

import (
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp     // + - * / == != > >= < <=
	tokLParen
	tokRParen
	tokComma
	tokDot
)

type token struct {
	kind   tokenKind
	text   string
	offset int
	num    float64
	str    string // unquoted contents for tokString
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) errAt(offset int, tok, msg string) *SyntaxError {
	return &SyntaxError{Token: tok, Offset: offset, Msg: msg}
}

// next returns the next token, skipping whitespace.
func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, offset: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch c {
	case '(':
		l.pos++
		return token{kind: tokLParen, text: "(", offset: start}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, text: ")", offset: start}, nil
	case ',':
		l.pos++
		return token{kind: tokComma, text: ",", offset: start}, nil
	case '.':
		l.pos++
		return token{kind: tokDot, text: ".", offset: start}, nil
	case '+', '-', '*', '/':
		l.pos++
		return token{kind: tokOp, text: string(c), offset: start}, nil
	case '=', '!', '<', '>':
		return l.lexComparison(start)
	case '"', '\'':
		return l.lexString(start, c)
	}

	if c >= '0' && c <= '9' {
		return l.lexNumber(start)
	}
	if isIdentStart(c) {
		for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.input[start:l.pos], offset: start}, nil
	}

	return token{}, l.errAt(start, string(c), "unexpected character")
}

func (l *lexer) lexComparison(start int) (token, error) {
	c := l.input[l.pos]
	two := ""
	if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
		two = l.input[l.pos : l.pos+2]
	}
	switch {
	case two == "==" || two == "!=" || two == "<=" || two == ">=":
		l.pos += 2
		return token{kind: tokOp, text: two, offset: start}, nil
	case c == '<' || c == '>':
		l.pos++
		return token{kind: tokOp, text: string(c), offset: start}, nil
	default:
		return token{}, l.errAt(start, string(c), "unknown operator")
	}
}

func (l *lexer) lexString(start int, quote byte) (token, error) {
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '\\' && l.pos+1 < len(l.input) {
			l.pos++
			sb.WriteByte(l.input[l.pos])
			l.pos++
			continue
		}
		if c == quote {
			l.pos++
			return token{kind: tokString, text: l.input[start:l.pos], str: sb.String(), offset: start}, nil
		}
		sb.WriteByte(c)
		l.pos++
	}
	return token{}, l.errAt(start, l.input[start:], "unterminated string")
}

func (l *lexer) lexNumber(start int) (token, error) {
	for l.pos < len(l.input) && (l.input[l.pos] >= '0' && l.input[l.pos] <= '9' || l.input[l.pos] == '.') {
		// A dot followed by a non-digit belongs to the caller (e.g., a
		// trailing member access), not to this number.
		if l.input[l.pos] == '.' && (l.pos+1 >= len(l.input) || l.input[l.pos+1] < '0' || l.input[l.pos+1] > '9') {
			break
		}
		l.pos++
	}
	text := l.input[start:l.pos]
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, l.errAt(start, text, "invalid number")
	}
	return token{kind: tokNumber, text: text, num: n, offset: start}, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
