// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpu implements the instruction-execution core of a Ricoh 2A03
// (6502-family) CPU operating on a flat 64K address space.
package cpu

import (
	"errors"
	"fmt"
)

// Config selects the memory conventions used by the CPU. The zero value
// stores two-byte addresses high byte first, grows the stack upward, and
// wraps indirect-indexed-Y addresses to the zero page.
type Config struct {
	LittleEndian    bool // two-byte addresses are stored low byte first
	DescendingStack bool // push decrements SP, pull increments it
	FullIndirectY   bool // (zp),Y yields a full 16-bit address
}

// CPU represents a single 2A03 CPU. It contains a pointer to the
// memory associated with the CPU.
type CPU struct {
	Reg       Registers       // CPU registers
	Mem       Memory          // assigned memory
	Config    Config          // memory conventions
	Cycles    uint64          // total executed CPU cycles
	LastPC    uint16          // Previous program counter
	InstSet   *InstructionSet // Instruction set used by the CPU
	debugger  *Debugger
	storeByte func(cpu *CPU, addr uint16, v byte)
}

// Interrupt vectors
const (
	vectorBRK = 0xfffe
)

// ErrUndefinedOpcode is returned by Step when the opcode at PC has no
// implementation.
var ErrUndefinedOpcode = errors.New("undefined opcode")

// NewCPU creates an emulated 2A03 CPU bound to the specified memory.
func NewCPU(m Memory) *CPU {
	cpu := &CPU{
		Mem:       m,
		InstSet:   GetInstructionSet(),
		storeByte: (*CPU).storeByteNormal,
	}

	cpu.Reg.Init()
	return cpu
}

// SetPC updates the CPU program counter to 'addr'.
func (cpu *CPU) SetPC(addr uint16) {
	cpu.Reg.PC = addr
}

// GetInstruction returns the instruction opcode at the requested address.
func (cpu *CPU) GetInstruction(addr uint16) *Instruction {
	opcode := cpu.Mem.LoadByte(addr)
	return cpu.InstSet.Lookup(opcode)
}

// NextAddr returns the address of the next instruction following the
// instruction at addr.
func (cpu *CPU) NextAddr(addr uint16) uint16 {
	opcode := cpu.Mem.LoadByte(addr)
	inst := cpu.InstSet.Lookup(opcode)
	return addr + uint16(inst.Length)
}

// Step the cpu by one instruction. If the opcode at PC is undefined, the
// CPU state is left untouched and an error wrapping ErrUndefinedOpcode is
// returned.
func (cpu *CPU) Step() error {
	// Grab the next opcode at the current PC
	opcode := cpu.Mem.LoadByte(cpu.Reg.PC)

	// Look up the instruction data for the opcode
	inst := cpu.InstSet.Lookup(opcode)
	if inst.fn == nil {
		return fmt.Errorf("%w $%02X at $%04X", ErrUndefinedOpcode, opcode, cpu.Reg.PC)
	}

	// Resolve the operand (if any) and advance the PC
	cpu.LastPC = cpu.Reg.PC
	op := noOperand
	if inst.Mode == IMP {
		cpu.Reg.PC++
	} else {
		op = cpu.resolveOperand()
	}

	// Execute the instruction
	inst.fn(cpu, inst, op)
	cpu.Cycles++

	// Update the debugger so it handle breakpoints.
	if cpu.debugger != nil {
		cpu.debugger.onUpdatePC(cpu, cpu.Reg.PC)
	}
	return nil
}

// AttachDebugger attaches a debugger to the CPU. The debugger receives
// notifications whenever the CPU executes an instruction or stores a byte
// to memory.
func (cpu *CPU) AttachDebugger(debugger *Debugger) {
	cpu.debugger = debugger
	cpu.storeByte = (*CPU).storeByteDebugger
}

// DetachDebugger detaches the currently debugger from the CPU.
func (cpu *CPU) DetachDebugger() {
	cpu.debugger = nil
	cpu.storeByte = (*CPU).storeByteNormal
}

// Load a byte value from the resolved operand.
func (cpu *CPU) load(op Operand) byte {
	switch op.Kind {
	case OperandImmediate:
		return op.Value
	case OperandMemory:
		return cpu.Mem.LoadByte(op.Addr)
	case OperandAccumulator:
		return cpu.Reg.A
	case OperandRegisterX:
		return cpu.Reg.X
	case OperandRegisterY:
		return cpu.Reg.Y
	default:
		panic("Invalid operand")
	}
}

// Store the value 'v' to the resolved operand. Immediate and empty
// operands are read-only.
func (cpu *CPU) store(op Operand, v byte) {
	switch op.Kind {
	case OperandMemory:
		cpu.storeByte(cpu, op.Addr, v)
	case OperandAccumulator:
		cpu.Reg.A = v
	case OperandRegisterX:
		cpu.Reg.X = v
	case OperandRegisterY:
		cpu.Reg.Y = v
	default:
		panic("Operand is read-only")
	}
}

func (cpu *CPU) storeByteNormal(addr uint16, v byte) {
	cpu.Mem.StoreByte(addr, v)
}

func (cpu *CPU) storeByteDebugger(addr uint16, v byte) {
	cpu.debugger.onDataStore(cpu, addr, v)
	cpu.Mem.StoreByte(addr, v)
}

// Execute a branch using the signed displacement operand.
func (cpu *CPU) branch(op Operand) {
	cpu.Reg.PC += uint16(int8(op.Value))
}

// Update the Zero and Negative flags based on the value of 'v'.
func (cpu *CPU) updateNZ(v byte) {
	cpu.Reg.SetZero(v)
	cpu.Reg.SetSign(v)
}

// Compare a register with the operand. The carry is computed on widened
// values so that a borrow clears it.
func (cpu *CPU) compare(reg byte, op Operand) {
	v := cpu.load(op)
	cpu.Reg.Carry = (uint16(reg) >= uint16(v))
	cpu.updateNZ(reg - v)
}

// Add with carry
func (cpu *CPU) adc(inst *Instruction, op Operand) {
	acc := uint32(cpu.Reg.A)
	add := uint32(cpu.load(op))
	carry := boolToUint32(cpu.Reg.Carry)

	v := acc + add + carry
	cpu.Reg.Carry = (v >= 0x100)
	cpu.Reg.Overflow = (((acc & 0x80) == (add & 0x80)) && ((acc & 0x80) != (v & 0x80)))

	cpu.Reg.A = byte(v)
	cpu.updateNZ(cpu.Reg.A)
}

// Boolean AND
func (cpu *CPU) and(inst *Instruction, op Operand) {
	cpu.Reg.A &= cpu.load(op)
	cpu.updateNZ(cpu.Reg.A)
}

// Arithmetic Shift Left
func (cpu *CPU) asl(inst *Instruction, op Operand) {
	v := cpu.load(op)
	cpu.Reg.Carry = ((v & 0x80) == 0x80)
	v = v << 1
	cpu.updateNZ(v)
	cpu.store(op, v)
}

// Branch if Carry Clear
func (cpu *CPU) bcc(inst *Instruction, op Operand) {
	if !cpu.Reg.Carry {
		cpu.branch(op)
	}
}

// Branch if Carry Set
func (cpu *CPU) bcs(inst *Instruction, op Operand) {
	if cpu.Reg.Carry {
		cpu.branch(op)
	}
}

// Branch if EQual (to zero)
func (cpu *CPU) beq(inst *Instruction, op Operand) {
	if cpu.Reg.Zero {
		cpu.branch(op)
	}
}

// Bit Test
func (cpu *CPU) bit(inst *Instruction, op Operand) {
	v := cpu.load(op)
	cpu.Reg.Zero = ((v & cpu.Reg.A) == 0)
	cpu.Reg.Sign = ((v & 0x80) != 0)
	cpu.Reg.Overflow = ((v & 0x40) != 0)
}

// Branch if MInus (negative)
func (cpu *CPU) bmi(inst *Instruction, op Operand) {
	if cpu.Reg.Sign {
		cpu.branch(op)
	}
}

// Branch if Not Equal (not zero)
func (cpu *CPU) bne(inst *Instruction, op Operand) {
	if !cpu.Reg.Zero {
		cpu.branch(op)
	}
}

// Branch if PLus (positive)
func (cpu *CPU) bpl(inst *Instruction, op Operand) {
	if !cpu.Reg.Sign {
		cpu.branch(op)
	}
}

// Break
func (cpu *CPU) brk(inst *Instruction, op Operand) {
	cpu.pushAddress(cpu.Reg.PC + 1)
	cpu.Reg.Break = true
	cpu.push(cpu.Reg.SavePS())
	cpu.Reg.InterruptDisable = true
	cpu.Reg.PC = cpu.LoadAddress(vectorBRK)
}

// Branch if oVerflow Clear
func (cpu *CPU) bvc(inst *Instruction, op Operand) {
	if !cpu.Reg.Overflow {
		cpu.branch(op)
	}
}

// Branch if oVerflow Set
func (cpu *CPU) bvs(inst *Instruction, op Operand) {
	if cpu.Reg.Overflow {
		cpu.branch(op)
	}
}

// Clear Carry flag
func (cpu *CPU) clc(inst *Instruction, op Operand) {
	cpu.Reg.Carry = false
}

// Clear Decimal flag
func (cpu *CPU) cld(inst *Instruction, op Operand) {
	cpu.Reg.Decimal = false
}

// Clear InterruptDisable flag
func (cpu *CPU) cli(inst *Instruction, op Operand) {
	cpu.Reg.InterruptDisable = false
}

// Clear oVerflow flag
func (cpu *CPU) clv(inst *Instruction, op Operand) {
	cpu.Reg.Overflow = false
}

// Compare to accumulator
func (cpu *CPU) cmp(inst *Instruction, op Operand) {
	cpu.compare(cpu.Reg.A, op)
}

// Compare to X register
func (cpu *CPU) cpx(inst *Instruction, op Operand) {
	cpu.compare(cpu.Reg.X, op)
}

// Compare to Y register
func (cpu *CPU) cpy(inst *Instruction, op Operand) {
	cpu.compare(cpu.Reg.Y, op)
}

// Decrement memory value
func (cpu *CPU) dec(inst *Instruction, op Operand) {
	v := cpu.load(op) - 1
	cpu.updateNZ(v)
	cpu.store(op, v)
}

// Decrement X register
func (cpu *CPU) dex(inst *Instruction, op Operand) {
	cpu.dec(inst, registerX)
}

// Decrement Y register
func (cpu *CPU) dey(inst *Instruction, op Operand) {
	cpu.dec(inst, registerY)
}

// Boolean XOR
func (cpu *CPU) eor(inst *Instruction, op Operand) {
	cpu.Reg.A ^= cpu.load(op)
	cpu.updateNZ(cpu.Reg.A)
}

// Increment memory value
func (cpu *CPU) inc(inst *Instruction, op Operand) {
	v := cpu.load(op) + 1
	cpu.updateNZ(v)
	cpu.store(op, v)
}

// Increment X register
func (cpu *CPU) inx(inst *Instruction, op Operand) {
	cpu.inc(inst, registerX)
}

// Increment Y register
func (cpu *CPU) iny(inst *Instruction, op Operand) {
	cpu.inc(inst, registerY)
}

// Jump to memory address
func (cpu *CPU) jmp(inst *Instruction, op Operand) {
	if inst.Mode == IND {
		cpu.Reg.PC = cpu.LoadAddress(op.Addr)
		return
	}
	cpu.Reg.PC = op.Addr
}

// Jump to subroutine
func (cpu *CPU) jsr(inst *Instruction, op Operand) {
	cpu.pushAddress(cpu.Reg.PC - 1)
	cpu.Reg.PC = op.Addr
}

// load Accumulator
func (cpu *CPU) lda(inst *Instruction, op Operand) {
	cpu.Reg.A = cpu.load(op)
	cpu.updateNZ(cpu.Reg.A)
}

// load the X register
func (cpu *CPU) ldx(inst *Instruction, op Operand) {
	cpu.Reg.X = cpu.load(op)
	cpu.updateNZ(cpu.Reg.X)
}

// load the Y register
func (cpu *CPU) ldy(inst *Instruction, op Operand) {
	cpu.Reg.Y = cpu.load(op)
	cpu.updateNZ(cpu.Reg.Y)
}

// Logical Shift Right
func (cpu *CPU) lsr(inst *Instruction, op Operand) {
	v := cpu.load(op)
	cpu.Reg.Carry = ((v & 1) == 1)
	v = v >> 1
	cpu.updateNZ(v)
	cpu.store(op, v)
}

// No-operation
func (cpu *CPU) nop(inst *Instruction, op Operand) {
	// Do nothing
}

// Boolean OR
func (cpu *CPU) ora(inst *Instruction, op Operand) {
	cpu.Reg.A |= cpu.load(op)
	cpu.updateNZ(cpu.Reg.A)
}

// Push Accumulator
func (cpu *CPU) pha(inst *Instruction, op Operand) {
	cpu.push(cpu.Reg.A)
}

// Push Processor flags
func (cpu *CPU) php(inst *Instruction, op Operand) {
	cpu.push(cpu.Reg.SavePS())
}

// Pull (pop) Accumulator
func (cpu *CPU) pla(inst *Instruction, op Operand) {
	cpu.Reg.A = cpu.pull()
}

// Pull (pop) Processor flags
func (cpu *CPU) plp(inst *Instruction, op Operand) {
	cpu.Reg.RestorePS(cpu.pull())
}

// Rotate left
func (cpu *CPU) rol(inst *Instruction, op Operand) {
	tmp := cpu.load(op)
	v := (tmp << 1) | boolToByte(cpu.Reg.Carry)
	cpu.Reg.Carry = ((tmp & 0x80) != 0)
	cpu.updateNZ(v)
	cpu.store(op, v)
}

// Rotate right
func (cpu *CPU) ror(inst *Instruction, op Operand) {
	tmp := cpu.load(op)
	v := (tmp >> 1) | (boolToByte(cpu.Reg.Carry) << 7)
	cpu.Reg.Carry = ((tmp & 1) != 0)
	cpu.updateNZ(v)
	cpu.store(op, v)
}

// Return from interrupt
func (cpu *CPU) rti(inst *Instruction, op Operand) {
	cpu.Reg.RestorePS(cpu.pull())
	cpu.Reg.PC = cpu.pullAddress()
}

// Return from Subroutine
func (cpu *CPU) rts(inst *Instruction, op Operand) {
	cpu.Reg.PC = cpu.pullAddress() + 1
}

// Subtract with Carry. The carry is computed on widened values, so it is
// set exactly when no borrow occurs.
func (cpu *CPU) sbc(inst *Instruction, op Operand) {
	acc := uint32(cpu.Reg.A)
	sub := uint32(cpu.load(op))
	borrow := 1 - boolToUint32(cpu.Reg.Carry)

	v := byte(acc - sub - borrow)
	cpu.Reg.Carry = (acc >= sub+borrow)
	cpu.Reg.Overflow = ((acc^sub)&0x80) != 0 && ((acc^uint32(v))&0x80) != 0

	cpu.Reg.A = v
	cpu.updateNZ(v)
}

// Set Carry flag
func (cpu *CPU) sec(inst *Instruction, op Operand) {
	cpu.Reg.Carry = true
}

// Set Decimal flag
func (cpu *CPU) sed(inst *Instruction, op Operand) {
	cpu.Reg.Decimal = true
}

// Set InterruptDisable flag
func (cpu *CPU) sei(inst *Instruction, op Operand) {
	cpu.Reg.InterruptDisable = true
}

// store Accumulator
func (cpu *CPU) sta(inst *Instruction, op Operand) {
	cpu.store(op, cpu.Reg.A)
}

// store X register
func (cpu *CPU) stx(inst *Instruction, op Operand) {
	cpu.store(op, cpu.Reg.X)
}

// store Y register
func (cpu *CPU) sty(inst *Instruction, op Operand) {
	cpu.store(op, cpu.Reg.Y)
}

// Transfer Accumulator to X register
func (cpu *CPU) tax(inst *Instruction, op Operand) {
	cpu.Reg.X = cpu.Reg.A
	cpu.updateNZ(cpu.Reg.X)
}

// Transfer Accumulator to Y register
func (cpu *CPU) tay(inst *Instruction, op Operand) {
	cpu.Reg.Y = cpu.Reg.A
	cpu.updateNZ(cpu.Reg.Y)
}

// Transfer Stack pointer to X register
func (cpu *CPU) tsx(inst *Instruction, op Operand) {
	cpu.Reg.X = cpu.Reg.SP
	cpu.updateNZ(cpu.Reg.X)
}

// Transfer X register to Accumulator
func (cpu *CPU) txa(inst *Instruction, op Operand) {
	cpu.Reg.A = cpu.Reg.X
	cpu.updateNZ(cpu.Reg.A)
}

// Transfer X register to the Stack pointer
func (cpu *CPU) txs(inst *Instruction, op Operand) {
	cpu.Reg.SP = cpu.Reg.X
}

// Transfer Y register to the Accumulator
func (cpu *CPU) tya(inst *Instruction, op Operand) {
	cpu.Reg.A = cpu.Reg.Y
	cpu.updateNZ(cpu.Reg.A)
}
