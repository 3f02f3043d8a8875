// Copyright 2014 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm implements a 2A03 instruction set
// disassembler.
package disasm

import (
	"fmt"
	"strings"

	"github.com/beevik/go2a03/cpu"
)

// Disassembler formatting for addressing modes. Two-byte operands are
// rendered with %04X, one-byte operands with %02X.
var modeFormat = []string{
	"#$%02X",    // IMM
	"",          // IMP
	"$%04X",     // REL
	"$%02X",     // ZPG
	"$%02X,X",   // ZPX
	"$%04X",     // ABS
	"$%04X,X",   // ABX
	"$%04X,Y",   // ABY
	"($%04X)",   // IND
	"($%02X,X)", // IDX
	"($%02X),Y", // IDY
	"A",         // ACC
}

// Disassemble the machine code in the CPU's memory at address 'addr'.
// Return a 'line' string representing the disassembled instruction and a
// 'next' address that starts the following line of machine code. Two-byte
// operands are decoded with the CPU's configured byte order.
func Disassemble(c *cpu.CPU, addr uint16) (line string, next uint16) {
	inst := c.GetInstruction(addr)
	next = addr + uint16(inst.Length)

	format := modeFormat[inst.Mode]
	switch {
	case format == "" || !inst.Defined():
		return inst.Name, next
	case inst.Mode == cpu.ACC:
		return inst.Name + " " + format, next
	}

	var operand int
	switch inst.Length {
	case 2:
		operand = int(c.Mem.LoadByte(addr + 1))
	case 3:
		operand = int(c.LoadAddress(addr + 1))
	}

	if inst.Mode == cpu.REL {
		// Convert relative offset to absolute address.
		operand = int(next + uint16(int8(operand)))
	}
	line = inst.Name + " " + fmt.Sprintf(format, operand)
	return line, next
}

// CodeString returns the hexadecimal bytes of the instruction at 'addr',
// separated by spaces.
func CodeString(c *cpu.CPU, addr uint16) string {
	inst := c.GetInstruction(addr)
	var b strings.Builder
	for i := uint16(0); i < uint16(inst.Length); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", c.Mem.LoadByte(addr+i))
	}
	return b.String()
}

// GetRegisterString returns a string describing the contents of the 2A03
// registers.
func GetRegisterString(r *cpu.Registers) string {
	return fmt.Sprintf("A=%02X X=%02X Y=%02X PS=[%s] SP=%02X PC=%04X",
		r.A, r.X, r.Y, r.PSString(), r.SP, r.PC)
}

// Trace returns a single line describing the instruction at the CPU's
// program counter followed by the register contents and cycle count.
func Trace(c *cpu.CPU) string {
	pc := c.Reg.PC
	line, _ := Disassemble(c, pc)
	return fmt.Sprintf("%04X-   %-8s    %-14s  %s C=%d",
		pc, CodeString(c, pc), line, GetRegisterString(&c.Reg), c.Cycles)
}
