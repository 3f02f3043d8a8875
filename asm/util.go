// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import "strings"

const hex = "0123456789ABCDEF"

func whitespace(c byte) bool {
	return c == ' ' || c == '\t'
}

func wordChar(c byte) bool {
	return c != ' ' && c != '\t'
}

func alpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func decimal(c byte) bool {
	return c >= '0' && c <= '9'
}

func hexadecimal(c byte) bool {
	return decimal(c) || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func binarynum(c byte) bool {
	return c == '0' || c == '1'
}

func labelStartChar(c byte) bool {
	return alpha(c) || c == '_' || c == '.' || c == '@'
}

func labelChar(c byte) bool {
	return labelStartChar(c) || decimal(c)
}

func identifierStartChar(c byte) bool {
	return labelStartChar(c)
}

func identifierChar(c byte) bool {
	return labelChar(c)
}

func stringQuote(c byte) bool {
	return c == '"' || c == '\''
}

// Labels starting with '.' or '@' are local to the most recent global label.
func isLocalLabel(s string) bool {
	return strings.HasPrefix(s, ".") || strings.HasPrefix(s, "@")
}

func localLabel(scope, label string) string {
	return "~" + scope + label
}

func hexchar(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

func hexToByte(s string) byte {
	return hexchar(s[0])<<4 | hexchar(s[1])
}

// Return a hexadecimal string representation of a byte slice, with a
// space between bytes.
func byteString(b []byte) string {
	var s strings.Builder
	for i, v := range b {
		if i > 0 {
			s.WriteByte(' ')
		}
		s.WriteByte(hex[v>>4])
		s.WriteByte(hex[v&0x0f])
	}
	return s.String()
}
