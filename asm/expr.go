// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"
	"strconv"
)

type exprOp byte

const (
	// unary operations
	opUnaryMinus exprOp = iota
	opUnaryPlus
	opBitwiseNEG
	opLowByte
	opHighByte

	// binary operations
	opMultiply
	opDivide
	opModulo
	opAdd
	opSubtract
	opShiftLeft
	opShiftRight
	opBitwiseAND
	opBitwiseXOR
	opBitwiseOR

	// value "operations"
	opNumber
	opString
	opIdentifier
	opHere

	// pseudo-operations (used only during parsing but not stored in expr's)
	opLeftParen
	opRightParen
)

type opdata struct {
	precedence      byte
	binary          bool
	leftAssociative bool
	symbol          string
	eval            func(a, b int) int
}

var ops = []opdata{
	{7, false, false, "-", func(a, b int) int { return -a }},
	{7, false, false, "+", func(a, b int) int { return a }},
	{7, false, false, "~", func(a, b int) int { return ^a }},
	{7, false, false, "<", func(a, b int) int { return a & 0xff }},
	{7, false, false, ">", func(a, b int) int { return (a >> 8) & 0xff }},
	{6, true, true, "*", func(a, b int) int { return a * b }},
	{6, true, true, "/", func(a, b int) int { return a / b }},
	{6, true, true, "%", func(a, b int) int { return a % b }},
	{5, true, true, "+", func(a, b int) int { return a + b }},
	{5, true, true, "-", func(a, b int) int { return a - b }},
	{4, true, true, "<<", func(a, b int) int { return a << uint(b) }},
	{4, true, true, ">>", func(a, b int) int { return a >> uint(b) }},
	{3, true, true, "&", func(a, b int) int { return a & b }},
	{2, true, true, "^", func(a, b int) int { return a ^ b }},
	{1, true, true, "|", func(a, b int) int { return a | b }},

	{}, // number
	{}, // string
	{}, // identifier
	{}, // here
	{}, // lparen
	{}, // rparen
}

func (op exprOp) isBinary() bool {
	return ops[op].binary
}

func (op exprOp) isCollapsible() bool {
	return ops[op].precedence > 0
}

// Compare the precedence and associativity of 'op' to 'other'. Return true
// if the shunting yard algorithm should collapse the operator stack.
func (op exprOp) collapses(other exprOp) bool {
	if ops[op].leftAssociative {
		return ops[op].precedence <= ops[other].precedence
	}
	return ops[op].precedence < ops[other].precedence
}

// An expr represents a single node in an expression tree. The root node
// represents an entire expression.
type expr struct {
	line          fstring // source text the expression was parsed from
	op            exprOp  // operation performed by this node
	value         int     // evaluated value
	identifier    fstring // identifier name, for opIdentifier nodes
	scopeLabel    fstring // label in scope when the expression was parsed
	stringLiteral fstring // literal text, for opString nodes
	isString      bool    // expression is a string literal
	evaluated     bool    // value has been computed
	address       bool    // value is derived from an address
	child0        *expr
	child1        *expr
}

// Return the expression as a postfix notation string.
func (e *expr) String() string {
	switch {
	case e.op == opNumber:
		return fmt.Sprintf("%d", e.value)
	case e.op == opString:
		return strconv.Quote(e.stringLiteral.str)
	case e.op == opIdentifier:
		return e.identifier.str
	case e.op == opHere:
		return "$"
	case e.op.isBinary():
		return fmt.Sprintf("%s %s %s", e.child0, e.child1, ops[e.op].symbol)
	default:
		return fmt.Sprintf("%s [%s]", e.child0, ops[e.op].symbol)
	}
}

// Evaluate the expression tree. The addr parameter holds the address '$'
// refers to, or -1 if it is not yet known. Return true once the value is
// known.
func (e *expr) eval(addr int, constants map[string]*expr, labels map[string]int) bool {
	if e.evaluated {
		return true
	}

	switch {
	case e.op == opHere:
		if addr >= 0 {
			e.value, e.evaluated = addr, true
		}

	case e.op == opIdentifier:
		ident := e.identifier.str
		if isLocalLabel(ident) {
			ident = localLabel(e.scopeLabel.str, ident)
		}
		if c, ok := constants[ident]; ok {
			if c.evaluated {
				e.value, e.evaluated = c.value, true
			}
			if c.address {
				e.address = true
			}
		}
		if _, ok := labels[ident]; ok {
			e.address = true
		}

	case e.op.isBinary():
		e.child0.eval(addr, constants, labels)
		e.child1.eval(addr, constants, labels)
		if e.child0.evaluated && e.child1.evaluated {
			e.value, e.evaluated = ops[e.op].eval(e.child0.value, e.child1.value), true
		}
		e.address = e.child0.address || e.child1.address

	default:
		e.child0.eval(addr, constants, labels)
		if e.child0.evaluated {
			e.value, e.evaluated = ops[e.op].eval(e.child0.value, 0), true
		}
		// Taking the low or high byte of an address yields a plain byte.
		e.address = e.child0.address && e.op != opLowByte && e.op != opHighByte
	}
	return e.evaluated
}

type tokentype byte

const (
	tokenNil tokentype = iota
	tokenOp
	tokenValue
	tokenLeftParen
	tokenRightParen
)

type token struct {
	tt tokentype
	op exprOp
	e  *expr
}

type parseFlags uint8

const (
	allowParentheses parseFlags = 1 << iota
	allowStrings
)

// An exprParser converts text into expression trees using Dijkstra's
// shunting-yard algorithm.
type exprParser struct {
	operandStack  []*expr
	operatorStack []exprOp
	parenCounter  int
	flags         parseFlags
	prevToken     token
	errors        []asmerror
}

// Parse an expression from the line until it is exhausted.
func (p *exprParser) parse(line, scopeLabel fstring, flags parseFlags) (e *expr, out fstring, err error) {
	p.errors = nil
	p.flags = flags
	p.prevToken = token{}
	p.operandStack, p.operatorStack, p.parenCounter = nil, nil, 0

	full := line
	for err == nil {
		var t token
		t, out, err = p.parseToken(line, scopeLabel)
		if err != nil || t.tt == tokenNil {
			break
		}

		switch t.tt {
		case tokenValue:
			p.operandStack = append(p.operandStack, t.e)

		case tokenOp:
			for err == nil && len(p.operatorStack) > 0 && t.op.collapses(p.peekOp()) {
				err = p.collapse(p.popOp())
			}
			p.operatorStack = append(p.operatorStack, t.op)

		case tokenLeftParen:
			p.operatorStack = append(p.operatorStack, opLeftParen)

		case tokenRightParen:
			for err == nil {
				op := p.popOp()
				if op == opLeftParen {
					break
				}
				err = p.collapse(op)
			}
		}
		line = out
	}

	for err == nil && len(p.operatorStack) > 0 {
		err = p.collapse(p.popOp())
	}

	if err == nil {
		switch {
		case len(p.operandStack) != 1:
			p.addError(full, "invalid expression")
			err = errParse
		case p.operandStack[0].isString && p.flags&allowStrings == 0:
			p.addError(full, "string not allowed")
			err = errParse
		default:
			e = p.operandStack[0]
			e.line = full
		}
	} else if len(p.errors) == 0 {
		p.addError(full, "expression syntax error")
	}
	return e, out, err
}

// Attempt to parse the next token from the line.
func (p *exprParser) parseToken(line, scopeLabel fstring) (t token, out fstring, err error) {
	if line.isEmpty() {
		return token{}, line, nil
	}

	afterValue := p.prevToken.tt == tokenValue || p.prevToken.tt == tokenRightParen

	switch {
	case line.startsWith(decimal) || (line.startsWithChar('$') && len(line.str) > 1 && hexadecimal(line.str[1])) ||
		(line.startsWithChar('%') && !afterValue):
		var v int
		v, out, err = p.parseNumber(line)
		t = token{tt: tokenValue, e: &expr{op: opNumber, value: v, evaluated: true}}

	case line.startsWithChar('$'):
		t, out = token{tt: tokenValue, e: &expr{op: opHere, address: true}}, line.consume(1)

	case line.startsWith(stringQuote):
		t, out, err = p.parseQuoted(line)

	case p.flags&allowParentheses != 0 && line.startsWithChar('('):
		p.parenCounter++
		t, out = token{tt: tokenLeftParen, op: opLeftParen}, line.consume(1)

	case p.flags&allowParentheses != 0 && line.startsWithChar(')'):
		if p.parenCounter == 0 {
			p.addError(line, "mismatched parentheses")
			return token{}, line, errParse
		}
		p.parenCounter--
		t, out = token{tt: tokenRightParen, op: opRightParen}, line.consume(1)

	case line.startsWith(identifierStartChar):
		var ident fstring
		ident, out = line.consumeWhile(identifierChar)
		t = token{tt: tokenValue, e: &expr{op: opIdentifier, identifier: ident, scopeLabel: scopeLabel}}

	default:
		for i, o := range ops {
			if o.symbol != "" && o.binary == afterValue && line.startsWithString(o.symbol) {
				t, out = token{tt: tokenOp, op: exprOp(i)}, line.consume(len(o.symbol))
				break
			}
		}
		if t.tt != tokenOp {
			p.addError(line, "unexpected character")
			return token{}, line, errParse
		}
	}
	if err != nil {
		return token{}, out, err
	}

	if t.tt == tokenValue && afterValue {
		p.addError(line, "missing operator")
		return token{}, out, errParse
	}

	p.prevToken = t
	return t, out.consumeWhitespace(), nil
}

// Parse a number from the line. The following numeric formats are allowed:
//
//	[0-9]+          decimal
//	$[0-9a-fA-F]+   hexadecimal
//	0x[0-9a-fA-F]+  hexadecimal
//	%[01]+          binary
//	0b[01]+         binary
func (p *exprParser) parseNumber(line fstring) (value int, remain fstring, err error) {
	base, fn := 10, decimal
	switch {
	case line.startsWithChar('$'):
		line, base, fn = line.consume(1), 16, hexadecimal
	case line.startsWithChar('%'):
		line, base, fn = line.consume(1), 2, binarynum
	case line.startsWithString("0x") || line.startsWithString("0X"):
		line, base, fn = line.consume(2), 16, hexadecimal
	case line.startsWithString("0b") || line.startsWithString("0B"):
		line, base, fn = line.consume(2), 2, binarynum
	}

	numstr, remain := line.consumeWhile(fn)
	if remain.startsWith(identifierChar) {
		p.addError(remain, "invalid number")
		return 0, remain, errParse
	}

	v, converr := strconv.ParseInt(numstr.str, base, 64)
	if converr != nil || v > 0xffffffff {
		p.addError(numstr, "failed to parse number")
		return 0, remain, errParse
	}
	return int(v), remain, nil
}

// Parse a quoted literal. A single character in single quotes is a
// character value. Anything else is a string, which only data directives
// accept.
func (p *exprParser) parseQuoted(line fstring) (t token, remain fstring, err error) {
	q := line.str[0]
	s, remain := line.consume(1).consumeUntilChar(q)
	if !remain.startsWithChar(q) {
		p.addError(line, "unterminated string")
		return token{}, remain, errParse
	}
	remain = remain.consume(1)

	if q == '\'' && len(s.str) == 1 {
		return token{tt: tokenValue, e: &expr{op: opNumber, value: int(s.str[0]), evaluated: true}}, remain, nil
	}
	e := &expr{op: opString, stringLiteral: s, isString: true, evaluated: true}
	return token{tt: tokenValue, e: e}, remain, nil
}

func (p *exprParser) addError(line fstring, msg string) {
	p.errors = append(p.errors, asmerror{line, msg})
}

func (p *exprParser) popOp() exprOp {
	if len(p.operatorStack) == 0 {
		p.addError(fstring{}, "mismatched parentheses")
		return opLeftParen
	}
	op := p.operatorStack[len(p.operatorStack)-1]
	p.operatorStack = p.operatorStack[:len(p.operatorStack)-1]
	return op
}

func (p *exprParser) peekOp() exprOp {
	return p.operatorStack[len(p.operatorStack)-1]
}

func (p *exprParser) popExpr() *expr {
	e := p.operandStack[len(p.operandStack)-1]
	p.operandStack = p.operandStack[:len(p.operandStack)-1]
	return e
}

// Collapse one or more expression nodes on the top of the operand stack
// into a combined node, and push the combined node back onto the stack.
func (p *exprParser) collapse(op exprOp) error {
	switch {
	case !op.isCollapsible():
		return errParse
	case op.isBinary():
		if len(p.operandStack) < 2 {
			return errParse
		}
		child1 := p.popExpr()
		child0 := p.popExpr()
		if child0.isString || child1.isString {
			return errParse
		}
		p.operandStack = append(p.operandStack, &expr{op: op, child0: child0, child1: child1})
	default:
		if len(p.operandStack) < 1 || p.operandStack[len(p.operandStack)-1].isString {
			return errParse
		}
		p.operandStack = append(p.operandStack, &expr{op: op, child0: p.popExpr()})
	}
	return nil
}
