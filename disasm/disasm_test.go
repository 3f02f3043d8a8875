package disasm_test

import (
	"strings"
	"testing"

	"github.com/beevik/go2a03/cpu"
	"github.com/beevik/go2a03/disasm"
)

func newCPU(code ...byte) *cpu.CPU {
	mem := cpu.NewFlatMemory()
	mem.StoreBytes(0x1000, code)
	c := cpu.NewCPU(mem)
	c.SetPC(0x1000)
	return c
}

func TestDisassemble(t *testing.T) {
	tests := []struct {
		code []byte
		exp  string
		next uint16
	}{
		{[]byte{0xa9, 0x5e}, "LDA #$5E", 0x1002},
		{[]byte{0xea}, "NOP", 0x1001},
		{[]byte{0x0a}, "ASL A", 0x1001},
		{[]byte{0xa5, 0x10}, "LDA $10", 0x1002},
		{[]byte{0xa1, 0x10}, "LDA $10,X", 0x1002},
		{[]byte{0xb5, 0x10}, "LDA ($10,X)", 0x1002},
		{[]byte{0xb1, 0x10}, "LDA ($10),Y", 0x1002},
		{[]byte{0x8d, 0x15, 0x00}, "STA $1500", 0x1003},
		{[]byte{0xbd, 0x12, 0x34}, "LDA $1234,X", 0x1003},
		{[]byte{0xb9, 0x12, 0x34}, "LDA $1234,Y", 0x1003},
		{[]byte{0x6c, 0x30, 0x00}, "JMP ($3000)", 0x1003},
		{[]byte{0x20, 0x20, 0x00}, "JSR $2000", 0x1003},
		{[]byte{0xd0, 0xfe}, "BNE $1000", 0x1002},
		{[]byte{0xf0, 0x05}, "BEQ $1007", 0x1002},
		{[]byte{0x02}, "???", 0x1001},
	}

	for _, tc := range tests {
		c := newCPU(tc.code...)
		line, next := disasm.Disassemble(c, 0x1000)
		if line != tc.exp {
			t.Errorf("disassembly of % X incorrect. exp: %q, got: %q", tc.code, tc.exp, line)
		}
		if next != tc.next {
			t.Errorf("next address of % X incorrect. exp: $%04X, got: $%04X", tc.code, tc.next, next)
		}
	}
}

func TestDisassembleLittleEndian(t *testing.T) {
	c := newCPU(0x8d, 0x00, 0x15)
	c.Config.LittleEndian = true
	line, _ := disasm.Disassemble(c, 0x1000)
	if line != "STA $1500" {
		t.Errorf("disassembly incorrect. exp: %q, got: %q", "STA $1500", line)
	}
}

func TestTrace(t *testing.T) {
	c := newCPU(0xa9, 0x5e, 0xea)
	if err := c.Step(); err != nil {
		t.Fatal(err)
	}

	line := disasm.Trace(c)
	for _, s := range []string{"1002-", "EA", "NOP", "A=5E", "PS=[nv-bdizc]", "PC=1002", "C=1"} {
		if !strings.Contains(line, s) {
			t.Errorf("trace line %q missing %q", line, s)
		}
	}

	if got := disasm.CodeString(c, 0x1000); got != "A9 5E" {
		t.Errorf("code string incorrect. exp: %q, got: %q", "A9 5E", got)
	}
}
