// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "strings"

// Registers contains the state of all 2A03 registers.
type Registers struct {
	A                byte   // accumulator
	X                byte   // X indexing register
	Y                byte   // Y indexing register
	SP               byte   // stack pointer ($100 + SP = stack memory location)
	PC               uint16 // program counter
	Carry            bool   // PS: Carry bit
	Zero             bool   // PS: Zero bit
	InterruptDisable bool   // PS: Interrupt disable bit
	Decimal          bool   // PS: Decimal bit
	Break            bool   // PS: Break bit
	Unused           bool   // PS: Unused bit, always set
	Overflow         bool   // PS: Overflow bit
	Sign             bool   // PS: Sign bit
}

// Bits assigned to the processor status byte. The order is part of the
// stack contract used by PHP/PLP and BRK/RTI.
const (
	CarryBit            = 1 << 0
	ZeroBit             = 1 << 1
	InterruptDisableBit = 1 << 2
	DecimalBit          = 1 << 3
	BreakBit            = 1 << 4
	UnusedBit           = 1 << 5
	OverflowBit         = 1 << 6
	SignBit             = 1 << 7
)

// SavePS packs the processor status flags into a byte value.
func (r *Registers) SavePS() byte {
	var ps byte
	if r.Carry {
		ps |= CarryBit
	}
	if r.Zero {
		ps |= ZeroBit
	}
	if r.InterruptDisable {
		ps |= InterruptDisableBit
	}
	if r.Decimal {
		ps |= DecimalBit
	}
	if r.Break {
		ps |= BreakBit
	}
	if r.Unused {
		ps |= UnusedBit
	}
	if r.Overflow {
		ps |= OverflowBit
	}
	if r.Sign {
		ps |= SignBit
	}
	return ps
}

// RestorePS unpacks the processor status flags from a byte. The unused
// flag stays set regardless of the byte's contents.
func (r *Registers) RestorePS(ps byte) {
	r.Carry = ((ps & CarryBit) != 0)
	r.Zero = ((ps & ZeroBit) != 0)
	r.InterruptDisable = ((ps & InterruptDisableBit) != 0)
	r.Decimal = ((ps & DecimalBit) != 0)
	r.Break = ((ps & BreakBit) != 0)
	r.Unused = true
	r.Overflow = ((ps & OverflowBit) != 0)
	r.Sign = ((ps & SignBit) != 0)
}

// SetSign copies bit 7 of v into the sign flag.
func (r *Registers) SetSign(v byte) {
	r.Sign = ((v & 0x80) != 0)
}

// SetZero sets the zero flag if v is zero.
func (r *Registers) SetZero(v byte) {
	r.Zero = (v == 0)
}

// PSString returns the status flags as a labelled bit pattern, most
// significant bit first. Upper case means the flag is set.
func (r *Registers) PSString() string {
	var b strings.Builder
	flag := func(on bool, set, clear byte) {
		if on {
			b.WriteByte(set)
		} else {
			b.WriteByte(clear)
		}
	}
	flag(r.Sign, 'N', 'n')
	flag(r.Overflow, 'V', 'v')
	flag(r.Unused, '-', '_')
	flag(r.Break, 'B', 'b')
	flag(r.Decimal, 'D', 'd')
	flag(r.InterruptDisable, 'I', 'i')
	flag(r.Zero, 'Z', 'z')
	flag(r.Carry, 'C', 'c')
	return b.String()
}

func boolToUint32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

func boolToByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// Init initializes all registers. A, X, Y, SP = 0. PC = 0. Only the unused
// status flag is set.
func (r *Registers) Init() {
	r.A = 0
	r.X = 0
	r.Y = 0
	r.SP = 0
	r.PC = 0
	r.RestorePS(0)
}
