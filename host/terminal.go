// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"bufio"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// A lineReader supplies command lines to the host.
type lineReader interface {
	ReadLine() (string, error)

	// Prompts reports whether the reader displays its own prompt.
	Prompts() bool
}

type scanReader struct {
	scanner *bufio.Scanner
}

func newScanReader(r io.Reader) *scanReader {
	return &scanReader{scanner: bufio.NewScanner(r)}
}

func (r *scanReader) ReadLine() (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (r *scanReader) Prompts() bool {
	return false
}

// A termReader reads lines from a terminal with line editing and history.
// The terminal is in raw mode only while a line is being read, so Ctrl-C
// still raises an interrupt while the CPU runs.
type termReader struct {
	fd   int
	term *term.Terminal
}

// newTermReader returns a terminal line reader if f is a terminal.
func newTermReader(f *os.File, w io.Writer, prompt string) (*termReader, bool) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, false
	}

	rw := struct {
		io.Reader
		io.Writer
	}{f, w}
	t := term.NewTerminal(rw, prompt)
	t.AutoCompleteCallback = completeCommand
	return &termReader{fd: fd, term: t}, true
}

// completeCommand extends a partially typed command name when the tab key
// is pressed at the end of the line. With several candidates, the line is
// extended to their longest common prefix.
func completeCommand(line string, pos int, key rune) (newLine string, newPos int, ok bool) {
	if key != '\t' || pos != len(line) {
		return "", 0, false
	}

	matches := cmds.Autocomplete(line)
	if len(matches) == 0 {
		return "", 0, false
	}

	completed := matches[0]
	for _, m := range matches[1:] {
		n := 0
		for n < len(completed) && n < len(m) && completed[n] == m[n] {
			n++
		}
		completed = completed[:n]
	}
	if len(matches) == 1 {
		completed += " "
	}

	if len(completed) <= len(strings.TrimLeft(line, " \t")) {
		return "", 0, false
	}
	return completed, len(completed), true
}

func (r *termReader) ReadLine() (string, error) {
	state, err := term.MakeRaw(r.fd)
	if err != nil {
		return "", err
	}
	defer term.Restore(r.fd, state)

	if w, h, err := term.GetSize(r.fd); err == nil {
		r.term.SetSize(w, h)
	}
	return r.term.ReadLine()
}

func (r *termReader) Prompts() bool {
	return true
}
