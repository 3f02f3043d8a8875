// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"errors"
	"strconv"
)

var (
	errExprParse      = errors.New("expression syntax error")
	errDivideByZero   = errors.New("division by zero")
	errUnbalancedExpr = errors.New("unbalanced parentheses")
)

type resolver interface {
	resolveIdentifier(s string) (int64, error)
}

type binaryOp struct {
	Symbol     string
	Precedence int
	Eval       func(a, b int64) (int64, error)
}

// Binary operators, lowest precedence 1. Two-character symbols come first
// so they are matched before their one-character prefixes.
var binaryOps = []binaryOp{
	{"<<", 4, func(a, b int64) (int64, error) { return a << uint64(b&63), nil }},
	{">>", 4, func(a, b int64) (int64, error) { return a >> uint64(b&63), nil }},
	{"*", 6, func(a, b int64) (int64, error) { return a * b, nil }},
	{"/", 6, func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, errDivideByZero
		}
		return a / b, nil
	}},
	{"%", 6, func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, errDivideByZero
		}
		return a % b, nil
	}},
	{"+", 5, func(a, b int64) (int64, error) { return a + b, nil }},
	{"-", 5, func(a, b int64) (int64, error) { return a - b, nil }},
	{"&", 3, func(a, b int64) (int64, error) { return a & b, nil }},
	{"^", 2, func(a, b int64) (int64, error) { return a ^ b, nil }},
	{"|", 1, func(a, b int64) (int64, error) { return a | b, nil }},
}

// Unary operators. '<' and '>' select the low and high byte of a value.
var unaryOps = map[byte]func(a int64) int64{
	'-': func(a int64) int64 { return -a },
	'+': func(a int64) int64 { return a },
	'~': func(a int64) int64 { return ^a },
	'<': func(a int64) int64 { return a & 0xff },
	'>': func(a int64) int64 { return (a >> 8) & 0xff },
}

//
// exprParser
//

// An exprParser evaluates integer expressions typed at the monitor.
// Numbers may be written as $hex, 0xhex, %binary, 0bbinary, 0ddecimal,
// 'c' or plain decimal. In hex mode, plain numbers and identifiers made
// only of hex digits are read as hexadecimal, and the 0b and 0d prefixes
// are not recognized.
type exprParser struct {
	hexMode bool
	r       resolver
	t       tstring
}

func newExprParser() *exprParser {
	return &exprParser{}
}

// Parse evaluates the expression, resolving identifiers through r.
func (p *exprParser) Parse(expr string, r resolver) (int64, error) {
	p.r, p.t = r, tstring(expr)
	defer func() { p.r, p.t = nil, "" }()

	v, err := p.parseBinary(1)
	if err != nil {
		return 0, err
	}
	if p.t = p.t.consumeWhitespace(); len(p.t) > 0 {
		if p.t[0] == ')' {
			return 0, errUnbalancedExpr
		}
		return 0, errExprParse
	}
	return v, nil
}

func (p *exprParser) parseBinary(minPrecedence int) (int64, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return 0, err
	}

	for {
		p.t = p.t.consumeWhitespace()
		op := p.peekBinaryOp()
		if op == nil || op.Precedence < minPrecedence {
			return lhs, nil
		}
		p.t = p.t.consume(len(op.Symbol))

		rhs, err := p.parseBinary(op.Precedence + 1)
		if err != nil {
			return 0, err
		}
		if lhs, err = op.Eval(lhs, rhs); err != nil {
			return 0, err
		}
	}
}

func (p *exprParser) peekBinaryOp() *binaryOp {
	for i := range binaryOps {
		op := &binaryOps[i]
		if len(p.t) >= len(op.Symbol) && string(p.t[:len(op.Symbol)]) == op.Symbol {
			return op
		}
	}
	return nil
}

func (p *exprParser) parseUnary() (int64, error) {
	p.t = p.t.consumeWhitespace()
	if len(p.t) == 0 {
		return 0, errExprParse
	}

	c := p.t[0]
	if fn, ok := unaryOps[c]; ok {
		p.t = p.t.consume(1)
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return fn(v), nil
	}

	switch {
	case c == '(':
		p.t = p.t.consume(1)
		v, err := p.parseBinary(1)
		if err != nil {
			return 0, err
		}
		p.t = p.t.consumeWhitespace()
		if len(p.t) == 0 || p.t[0] != ')' {
			return 0, errUnbalancedExpr
		}
		p.t = p.t.consume(1)
		return v, nil

	case c == '\'':
		return p.parseChar()

	case c == '$' || c == '%' || decimal(c):
		return p.parseNumber()

	case identifier(c):
		return p.parseIdentifier()

	default:
		return 0, errExprParse
	}
}

func (p *exprParser) parseNumber() (int64, error) {
	base, fn, num := 10, decimal, p.t
	if p.hexMode {
		base, fn = 16, hexadecimal
	}

	switch {
	case num[0] == '$':
		base, fn, num = 16, hexadecimal, num.consume(1)
	case num[0] == '%':
		base, fn, num = 2, binary, num.consume(1)
	case num[0] == '0' && len(num) > 2 && num[1] == 'x':
		base, fn, num = 16, hexadecimal, num.consume(2)
	case !p.hexMode && num[0] == '0' && len(num) > 2 && num[1] == 'b':
		base, fn, num = 2, binary, num.consume(2)
	case !p.hexMode && num[0] == '0' && len(num) > 2 && num[1] == 'd':
		base, fn, num = 10, decimal, num.consume(2)
	}

	digits, remain := num.consumeWhile(fn)
	if digits == "" || (len(remain) > 0 && identifier(remain[0])) {
		return 0, errExprParse
	}

	v, err := strconv.ParseInt(string(digits), base, 64)
	if err != nil {
		return 0, errExprParse
	}
	p.t = remain
	return v, nil
}

func (p *exprParser) parseChar() (int64, error) {
	if len(p.t) < 3 || p.t[2] != '\'' {
		return 0, errExprParse
	}
	v := int64(p.t[1])
	p.t = p.t.consume(3)
	return v, nil
}

func (p *exprParser) parseIdentifier() (int64, error) {
	id, remain := p.t.consumeWhile(identifier)
	if p.hexMode && id.scanWhile(hexadecimal) == len(id) {
		return p.parseNumber()
	}

	p.t = remain
	if p.r == nil {
		return 0, errExprParse
	}
	return p.r.resolveIdentifier(string(id))
}

//
// tstring
//

type tstring string

func (t tstring) consume(n int) tstring {
	return t[n:]
}

func (t tstring) consumeWhitespace() tstring {
	return t.consume(t.scanWhile(whitespace))
}

func (t tstring) scanWhile(fn func(c byte) bool) int {
	i := 0
	for ; i < len(t) && fn(t[i]); i++ {
	}
	return i
}

func (t tstring) consumeWhile(fn func(c byte) bool) (consumed, remain tstring) {
	i := t.scanWhile(fn)
	return t[:i], t[i:]
}

func whitespace(c byte) bool {
	return c == ' ' || c == '\t'
}

func decimal(c byte) bool {
	return (c >= '0' && c <= '9')
}

func hexadecimal(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func binary(c byte) bool {
	return c == '0' || c == '1'
}

func identifier(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '.'
}
