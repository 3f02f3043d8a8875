// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "fmt"

// OperandKind identifies the variant held by an Operand.
type OperandKind byte

// Operand kinds
const (
	OperandNone OperandKind = iota
	OperandImmediate
	OperandMemory
	OperandAccumulator
	OperandRegisterX
	OperandRegisterY
)

var operandKindNames = []string{
	"None",
	"Immediate",
	"Memory",
	"Accumulator",
	"RegisterX",
	"RegisterY",
}

func (k OperandKind) String() string {
	if int(k) < len(operandKindNames) {
		return operandKindNames[k]
	}
	return fmt.Sprintf("OperandKind(%d)", k)
}

// An Operand is the resolved target of an instruction. It lives only for
// the duration of a single step. Value is meaningful for Immediate
// operands and Addr for Memory operands.
type Operand struct {
	Kind  OperandKind
	Value byte
	Addr  uint16
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandImmediate:
		return fmt.Sprintf("#$%02X", o.Value)
	case OperandMemory:
		return fmt.Sprintf("$%04X", o.Addr)
	default:
		return o.Kind.String()
	}
}

func immediate(v byte) Operand {
	return Operand{Kind: OperandImmediate, Value: v}
}

func memory(addr uint16) Operand {
	return Operand{Kind: OperandMemory, Addr: addr}
}

var (
	noOperand   = Operand{Kind: OperandNone}
	accumulator = Operand{Kind: OperandAccumulator}
	registerX   = Operand{Kind: OperandRegisterX}
	registerY   = Operand{Kind: OperandRegisterY}
)

// Read the byte at PC and advance PC past it.
func (cpu *CPU) fetch() byte {
	v := cpu.Mem.LoadByte(cpu.Reg.PC)
	cpu.Reg.PC++
	return v
}

// Read a two-byte address at PC and advance PC past it.
func (cpu *CPU) fetchAddress() uint16 {
	b0 := cpu.fetch()
	b1 := cpu.fetch()
	return cpu.joinAddress(b0, b1)
}

// Combine two bytes, in the order they were read from memory, into an
// address according to the configured byte order.
func (cpu *CPU) joinAddress(first, second byte) uint16 {
	if cpu.Config.LittleEndian {
		return uint16(first) | uint16(second)<<8
	}
	return uint16(first)<<8 | uint16(second)
}

// Split an address into two bytes in the order they are stored in memory.
func (cpu *CPU) splitAddress(addr uint16) (first, second byte) {
	if cpu.Config.LittleEndian {
		return byte(addr), byte(addr >> 8)
	}
	return byte(addr >> 8), byte(addr)
}

// LoadAddress reads a two-byte address stored at 'addr' using the CPU's
// configured byte order.
func (cpu *CPU) LoadAddress(addr uint16) uint16 {
	return cpu.joinAddress(cpu.Mem.LoadByte(addr), cpu.Mem.LoadByte(addr+1))
}

// Read a two-byte pointer stored in the zero page. The second byte of a
// pointer at $FF is read from $00.
func (cpu *CPU) loadZeroPageAddress(zpaddr uint16) uint16 {
	return cpu.joinAddress(cpu.Mem.LoadByte(zpaddr), cpu.Mem.LoadByte(offsetZeroPage(zpaddr, 1)))
}

// StoreAddress writes a two-byte address to memory at 'addr' using the
// CPU's configured byte order.
func (cpu *CPU) StoreAddress(addr uint16, v uint16) {
	b0, b1 := cpu.splitAddress(v)
	cpu.storeByte(cpu, addr, b0)
	cpu.storeByte(cpu, addr+1, b1)
}

// resolveOperand reads the opcode at PC, advances PC past the opcode and
// its operand bytes, and returns the operand selected by the opcode's
// mode group (bits 2-4) and low bit (bit 0).
func (cpu *CPU) resolveOperand() Operand {
	opcode := cpu.fetch()

	// JSR and the conditional branches are encoded outside the
	// mode groups.
	switch {
	case opcode == 0x20:
		return memory(cpu.fetchAddress())
	case opcode&0x1f == 0x10:
		return immediate(cpu.fetch())
	}

	odd := opcode&1 == 1
	switch (opcode >> 2) & 7 {
	case 0:
		if !odd {
			return immediate(cpu.fetch())
		}
		return memory(offsetZeroPage(uint16(cpu.fetch()), cpu.Reg.X))
	case 1:
		return memory(uint16(cpu.fetch()))
	case 2:
		if !odd {
			return accumulator
		}
		return immediate(cpu.fetch())
	case 3:
		return memory(cpu.fetchAddress())
	case 4:
		zpaddr := uint16(cpu.fetch())
		addr := cpu.loadZeroPageAddress(zpaddr) + uint16(cpu.Reg.Y)
		if !cpu.Config.FullIndirectY {
			addr &= 0xff
		}
		return memory(addr)
	case 5:
		zpaddr := offsetZeroPage(uint16(cpu.fetch()), cpu.Reg.X)
		return memory(cpu.loadZeroPageAddress(zpaddr))
	case 6:
		return memory(cpu.fetchAddress() + uint16(cpu.Reg.Y))
	default:
		return memory(cpu.fetchAddress() + uint16(cpu.Reg.X))
	}
}
