// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

// Push a value 'v' onto the stack. The byte is written at $100+SP before
// SP moves.
func (cpu *CPU) push(v byte) {
	cpu.storeByte(cpu, stackAddress(cpu.Reg.SP), v)
	if cpu.Config.DescendingStack {
		cpu.Reg.SP--
	} else {
		cpu.Reg.SP++
	}
}

// Push the address 'addr' onto the stack, high byte first.
func (cpu *CPU) pushAddress(addr uint16) {
	cpu.push(byte(addr >> 8))
	cpu.push(byte(addr))
}

// Pull (pop) a value from the stack and return it. SP moves back before
// the byte is read, undoing a push.
func (cpu *CPU) pull() byte {
	if cpu.Config.DescendingStack {
		cpu.Reg.SP++
	} else {
		cpu.Reg.SP--
	}
	return cpu.Mem.LoadByte(stackAddress(cpu.Reg.SP))
}

// Pull a 16-bit address off the stack.
func (cpu *CPU) pullAddress() uint16 {
	lo := cpu.pull()
	hi := cpu.pull()
	return uint16(lo) | uint16(hi)<<8
}
