// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

// An fstring is a substring of a source line that remembers where in the
// file it came from, so errors can point at the offending column.
type fstring struct {
	fileIndex int    // index of file in the assembly
	row       int    // 1-based line number of substring
	column    int    // 0-based column of start of substring
	str       string // the actual substring of interest
	full      string // the full line as originally read from the file
}

func newFstring(fileIndex, row int, str string) fstring {
	return fstring{fileIndex, row, 0, str, str}
}

func (l fstring) String() string {
	return l.str
}

// Tabs advance the column to the next multiple of 8.
func (l fstring) advanceColumn(n int) int {
	c := l.column
	for i := 0; i < n; i++ {
		if l.str[i] == '\t' {
			c += 8 - (c % 8)
		} else {
			c++
		}
	}
	return c
}

func (l fstring) consume(n int) fstring {
	return fstring{l.fileIndex, l.row, l.advanceColumn(n), l.str[n:], l.full}
}

func (l fstring) trunc(n int) fstring {
	return fstring{l.fileIndex, l.row, l.column, l.str[:n], l.full}
}

func (l fstring) isEmpty() bool {
	return len(l.str) == 0
}

func (l fstring) startsWith(fn func(c byte) bool) bool {
	return len(l.str) > 0 && fn(l.str[0])
}

func (l fstring) startsWithChar(c byte) bool {
	return len(l.str) > 0 && l.str[0] == c
}

func (l fstring) startsWithString(s string) bool {
	return len(l.str) >= len(s) && l.str[:len(s)] == s
}

func (l fstring) consumeWhitespace() fstring {
	_, remain := l.consumeWhile(whitespace)
	return remain
}

func (l fstring) split(i int) (consumed, remain fstring) {
	return l.trunc(i), l.consume(i)
}

func (l fstring) consumeWhile(fn func(c byte) bool) (consumed, remain fstring) {
	i := 0
	for i < len(l.str) && fn(l.str[i]) {
		i++
	}
	return l.split(i)
}

func (l fstring) consumeUntil(fn func(c byte) bool) (consumed, remain fstring) {
	return l.consumeWhile(func(c byte) bool { return !fn(c) })
}

func (l fstring) consumeUntilChar(c byte) (consumed, remain fstring) {
	return l.consumeWhile(func(b byte) bool { return b != c })
}

// Like consumeUntilChar, but the character is ignored inside quotes.
func (l fstring) consumeUntilUnquotedChar(c byte) (consumed, remain fstring) {
	var quote byte
	i := 0
	for ; i < len(l.str); i++ {
		switch {
		case quote != 0:
			if l.str[i] == quote {
				quote = 0
			}
		case l.str[i] == c:
			return l.split(i)
		case stringQuote(l.str[i]):
			quote = l.str[i]
		}
	}
	return l.split(i)
}

// Remove a ';' comment and any whitespace before it. Semicolons inside
// quotes do not start a comment.
func (l fstring) stripTrailingComment() fstring {
	code, _ := l.consumeUntilUnquotedChar(';')
	n := len(code.str)
	for n > 0 && whitespace(code.str[n-1]) {
		n--
	}
	return l.trunc(n)
}
