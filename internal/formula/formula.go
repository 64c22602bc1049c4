// Package formula evaluates calculation-field formulas.
//
// A formula references other fields by their field id and may use numeric
// literals, parentheses, the operators + - * / and the sum(...) function.
// Nothing else is accepted, and no part of a formula is ever handed to a
// host interpreter.
package formula

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const sumFunc = "sum"

// MsgDivisionByZero is the Error message for a zero divisor.
const MsgDivisionByZero = "division by zero"

// Error is returned for formulas that cannot produce a number: syntax
// outside the grammar, unknown functions, or division by zero.
type Error struct {
	Formula string
	Pos     int
	Msg     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("formula %q at %d: %s", e.Formula, e.Pos, e.Msg)
}

// Evaluate computes formula against values. Identifiers are substituted by
// their numeric value; missing or non-numeric values count as 0.
func Evaluate(formula string, values map[string]any) (decimal.Decimal, error) {
	tokens, err := tokenize(formula)
	if err != nil {
		return decimal.Zero, err
	}
	if len(tokens) == 1 {
		return decimal.Zero, &Error{Formula: formula, Msg: "empty formula"}
	}

	substitute(tokens, values)

	p := &parser{src: formula, tokens: tokens}
	result, err := p.parseExpr()
	if err != nil {
		return decimal.Zero, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return decimal.Zero, p.errorf(tok, "unexpected %s", tok.kind)
	}
	return result, nil
}

// substitute replaces every identifier token that is not a sum call with the
// current numeric value of that field.
func substitute(tokens []token, values map[string]any) {
	for i := range tokens {
		if tokens[i].kind != tokIdent || isSumCall(tokens, i) {
			continue
		}
		tokens[i].num = ToNumber(values[tokens[i].text])
		tokens[i].kind = tokNumber
	}
}

// References returns the distinct field ids referenced by formula, in order
// of first appearance. Formulas that do not tokenize reference nothing.
func References(formula string) []string {
	tokens, err := tokenize(formula)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var refs []string
	for i, tok := range tokens {
		if tok.kind != tokIdent || isSumCall(tokens, i) || seen[tok.text] {
			continue
		}
		seen[tok.text] = true
		refs = append(refs, tok.text)
	}
	return refs
}

// ToNumber coerces a form value to a decimal. Anything that is not a finite
// number or a numeric string becomes 0.
func ToNumber(v any) decimal.Decimal {
	switch n := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return n
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(n)
	case float32:
		return ToNumber(float64(n))
	case int:
		return decimal.NewFromInt(int64(n))
	case int32:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case uint:
		return decimal.NewFromInt(int64(n))
	case json.Number:
		return ToNumber(string(n))
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return decimal.Zero
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero
		}
		if d, err := decimal.NewFromString(s); err == nil {
			return d
		}
		return decimal.NewFromFloat(f)
	default:
		return decimal.Zero
	}
}

type parser struct {
	src    string
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, p.errorf(tok, "expected %s, found %s", kind, tok.kind)
	}
	return tok, nil
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &Error{Formula: p.src, Pos: tok.pos, Msg: fmt.Sprintf(format, args...)}
}

// expr := term (('+' | '-') term)*
func (p *parser) parseExpr() (decimal.Decimal, error) {
	left, err := p.parseTerm()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		switch p.peek().kind {
		case tokPlus:
			p.next()
			right, err := p.parseTerm()
			if err != nil {
				return decimal.Zero, err
			}
			left = left.Add(right)
		case tokMinus:
			p.next()
			right, err := p.parseTerm()
			if err != nil {
				return decimal.Zero, err
			}
			left = left.Sub(right)
		default:
			return left, nil
		}
	}
}

// term := unary (('*' | '/') unary)*
func (p *parser) parseTerm() (decimal.Decimal, error) {
	left, err := p.parseUnary()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		switch p.peek().kind {
		case tokStar:
			p.next()
			right, err := p.parseUnary()
			if err != nil {
				return decimal.Zero, err
			}
			left = left.Mul(right)
		case tokSlash:
			op := p.next()
			right, err := p.parseUnary()
			if err != nil {
				return decimal.Zero, err
			}
			if right.IsZero() {
				return decimal.Zero, p.errorf(op, MsgDivisionByZero)
			}
			left = left.Div(right)
		default:
			return left, nil
		}
	}
}

// unary := ('+' | '-') unary | primary
func (p *parser) parseUnary() (decimal.Decimal, error) {
	switch p.peek().kind {
	case tokMinus:
		p.next()
		v, err := p.parseUnary()
		if err != nil {
			return decimal.Zero, err
		}
		return v.Neg(), nil
	case tokPlus:
		p.next()
		return p.parseUnary()
	}
	return p.parsePrimary()
}

// primary := number | '(' expr ')' | sum '(' [expr (',' expr)*] ')'
func (p *parser) parsePrimary() (decimal.Decimal, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return tok.num, nil
	case tokLParen:
		v, err := p.parseExpr()
		if err != nil {
			return decimal.Zero, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return decimal.Zero, err
		}
		return v, nil
	case tokIdent:
		// Plain identifiers were substituted, so this is a call.
		if !strings.EqualFold(tok.text, sumFunc) {
			return decimal.Zero, p.errorf(tok, "unknown function %q", tok.text)
		}
		return p.parseSum()
	default:
		return decimal.Zero, p.errorf(tok, "unexpected %s", tok.kind)
	}
}

// parseSum expands sum(a, b, ...) into the sum of its arguments. An argument
// that cannot produce a number (division by zero) contributes 0; a syntax
// error anywhere still fails the whole formula.
func (p *parser) parseSum() (decimal.Decimal, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	if p.peek().kind == tokRParen {
		p.next()
		return total, nil
	}
	for {
		arg, err := p.parseSumArg()
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(arg)

		tok := p.next()
		switch tok.kind {
		case tokComma:
			continue
		case tokRParen:
			return total, nil
		default:
			return decimal.Zero, p.errorf(tok, "expected ',' or ')' in sum, found %s", tok.kind)
		}
	}
}

func (p *parser) parseSumArg() (decimal.Decimal, error) {
	start := p.pos
	v, err := p.parseExpr()
	if err == nil {
		return v, nil
	}
	fe, ok := err.(*Error)
	if !ok || fe.Msg != MsgDivisionByZero {
		return decimal.Zero, err
	}
	// Skip the rest of the argument so parsing can continue at ',' or ')'.
	p.pos = start
	depth := 0
	for {
		switch p.peek().kind {
		case tokLParen:
			depth++
		case tokRParen:
			if depth == 0 {
				return decimal.Zero, nil
			}
			depth--
		case tokComma:
			if depth == 0 {
				return decimal.Zero, nil
			}
		case tokEOF:
			return decimal.Zero, p.errorf(p.peek(), "unterminated sum")
		}
		p.next()
	}
}
