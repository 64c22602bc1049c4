package formula

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
	tokComma
	tokEOF
)

func (k tokenKind) String() string {
	switch k {
	case tokNumber:
		return "number"
	case tokIdent:
		return "identifier"
	case tokPlus:
		return "'+'"
	case tokMinus:
		return "'-'"
	case tokStar:
		return "'*'"
	case tokSlash:
		return "'/'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	default:
		return "end of formula"
	}
}

type token struct {
	kind tokenKind
	text string
	num  decimal.Decimal
	pos  int
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// tokenize splits a formula into tokens. Anything outside the grammar
// (quotes, brackets, dots outside numbers, operators other than + - * /)
// is rejected here, before any evaluation happens.
func tokenize(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || c == '.':
			start := i
			dots := 0
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				if src[i] == '.' {
					dots++
				}
				i++
			}
			text := src[start:i]
			if dots > 1 || text == "." {
				return nil, &Error{Formula: src, Pos: start, Msg: fmt.Sprintf("malformed number %q", text)}
			}
			if i < len(src) && isIdentStart(src[i]) {
				return nil, &Error{Formula: src, Pos: i, Msg: fmt.Sprintf("unexpected character %q after number", src[i])}
			}
			n, err := decimal.NewFromString(text)
			if err != nil {
				return nil, &Error{Formula: src, Pos: start, Msg: fmt.Sprintf("malformed number %q", text)}
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, num: n, pos: start})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: src[start:i], pos: start})
		default:
			kind, ok := punctuation[c]
			if !ok {
				return nil, &Error{Formula: src, Pos: i, Msg: fmt.Sprintf("disallowed character %q", c)}
			}
			tokens = append(tokens, token{kind: kind, text: string(c), pos: i})
			i++
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(src)})
	return tokens, nil
}

var punctuation = map[byte]tokenKind{
	'+': tokPlus,
	'-': tokMinus,
	'*': tokStar,
	'/': tokSlash,
	'(': tokLParen,
	')': tokRParen,
	',': tokComma,
}

func isSumCall(tokens []token, i int) bool {
	return tokens[i].kind == tokIdent &&
		strings.EqualFold(tokens[i].text, sumFunc) &&
		i+1 < len(tokens) && tokens[i+1].kind == tokLParen
}
