package cpu_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/beevik/go2a03/asm"
	"github.com/beevik/go2a03/cpu"
)

func loadCPU(t *testing.T, asmString string) (*cpu.CPU, *cpu.FlatMemory) {
	t.Helper()
	return loadCPUOptions(t, asmString, 0)
}

// loadCPUOptions assembles the source at $1000 (or its .ORG) and returns a
// CPU ready to execute it. The CPU reads addresses in the byte order the
// assembler wrote them.
func loadCPUOptions(t *testing.T, asmString string, options asm.Option) (*cpu.CPU, *cpu.FlatMemory) {
	t.Helper()
	r, sm, err := asm.Assemble(strings.NewReader(asmString), "test.asm", 0x1000, nil, options)
	if err != nil {
		t.Fatalf("%v: %s", err, strings.Join(r.Errors, "; "))
	}

	mem := cpu.NewFlatMemory()
	c := cpu.NewCPU(mem)
	c.Config.LittleEndian = options&asm.LittleEndian != 0
	mem.StoreBytes(sm.Origin, r.Code)
	c.SetPC(sm.Origin)
	return c, mem
}

func stepCPU(t *testing.T, c *cpu.CPU, steps int) {
	t.Helper()
	for i := 0; i < steps; i++ {
		if err := c.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

func runCPU(t *testing.T, asmString string, steps int) *cpu.CPU {
	t.Helper()
	c, _ := loadCPU(t, asmString)
	stepCPU(t, c, steps)
	return c
}

func expectPC(t *testing.T, c *cpu.CPU, pc uint16) {
	t.Helper()
	if c.Reg.PC != pc {
		t.Errorf("PC incorrect. exp: $%04X, got: $%04X", pc, c.Reg.PC)
	}
}

func expectCycles(t *testing.T, c *cpu.CPU, cycles uint64) {
	t.Helper()
	if c.Cycles != cycles {
		t.Errorf("Cycles incorrect. exp: %d, got: %d", cycles, c.Cycles)
	}
}

func expectACC(t *testing.T, c *cpu.CPU, acc byte) {
	t.Helper()
	if c.Reg.A != acc {
		t.Errorf("Accumulator incorrect. exp: $%02X, got: $%02X", acc, c.Reg.A)
	}
}

func expectSP(t *testing.T, c *cpu.CPU, sp byte) {
	t.Helper()
	if c.Reg.SP != sp {
		t.Errorf("stack pointer incorrect. exp: $%02X, got $%02X", sp, c.Reg.SP)
	}
}

func expectMem(t *testing.T, c *cpu.CPU, addr uint16, v byte) {
	t.Helper()
	got := c.Mem.LoadByte(addr)
	if got != v {
		t.Errorf("Memory at $%04X incorrect. exp: $%02X, got: $%02X", addr, v, got)
	}
}

// expectFlags compares the processor status against a labelled bit
// pattern such as "Nv-bdizC".
func expectFlags(t *testing.T, c *cpu.CPU, ps string) {
	t.Helper()
	if got := c.Reg.PSString(); got != ps {
		t.Errorf("Flags incorrect. exp: %s, got: %s", ps, got)
	}
}

func TestNewCPU(t *testing.T) {
	c := cpu.NewCPU(cpu.NewFlatMemory())
	expectPC(t, c, 0)
	expectSP(t, c, 0)
	expectACC(t, c, 0)
	expectCycles(t, c, 0)
	expectFlags(t, c, "nv-bdizc")
	if c.Reg.X != 0 || c.Reg.Y != 0 {
		t.Errorf("index registers not zero: X=$%02X Y=$%02X", c.Reg.X, c.Reg.Y)
	}
	for addr := 0; addr < 0x10000; addr += 0x1111 {
		expectMem(t, c, uint16(addr), 0)
	}
}

func TestAccumulator(t *testing.T) {
	asm := `
	LDA #$5E
	STA $15
	STA $1500`

	c := runCPU(t, asm, 3)
	expectPC(t, c, 0x1007)
	expectCycles(t, c, 3)
	expectACC(t, c, 0x5e)
	expectMem(t, c, 0x15, 0x5e)
	expectMem(t, c, 0x1500, 0x5e)
}

func TestLittleEndianAbsolute(t *testing.T) {
	src := `
	LDA #$5E
	STA $1500`

	c, _ := loadCPUOptions(t, src, asm.LittleEndian)
	expectMem(t, c, 0x1003, 0x00)
	expectMem(t, c, 0x1004, 0x15)

	stepCPU(t, c, 2)
	expectMem(t, c, 0x1500, 0x5e)
	expectMem(t, c, 0x0015, 0x00)
}

func TestStack(t *testing.T) {
	asm := `
	LDA #$11
	PHA
	LDA #$12
	PHA
	LDA #$13
	PHA

	PLA
	STA $2000
	PLA
	STA $2001
	PLA
	STA $2002`

	c, _ := loadCPU(t, asm)
	stepCPU(t, c, 6)

	expectSP(t, c, 0x03)
	expectACC(t, c, 0x13)
	expectMem(t, c, 0x100, 0x11)
	expectMem(t, c, 0x101, 0x12)
	expectMem(t, c, 0x102, 0x13)

	stepCPU(t, c, 6)
	expectACC(t, c, 0x11)
	expectSP(t, c, 0x00)
	expectMem(t, c, 0x2000, 0x13)
	expectMem(t, c, 0x2001, 0x12)
	expectMem(t, c, 0x2002, 0x11)
}

func TestStackDescending(t *testing.T) {
	asm := `
	LDA #$11
	PHA
	LDA #$12
	PHA
	PLA
	PLA`

	c, _ := loadCPU(t, asm)
	c.Config.DescendingStack = true
	c.Reg.SP = 0xff
	stepCPU(t, c, 4)

	expectSP(t, c, 0xfd)
	expectMem(t, c, 0x1ff, 0x11)
	expectMem(t, c, 0x1fe, 0x12)

	stepCPU(t, c, 2)
	expectSP(t, c, 0xff)
	expectACC(t, c, 0x11)
}

func TestStackWrap(t *testing.T) {
	c, _ := loadCPU(t, "\tPHA\n\tPLA")
	c.Reg.SP = 0xff
	c.Reg.A = 0x77
	stepCPU(t, c, 1)
	expectSP(t, c, 0x00)
	expectMem(t, c, 0x1ff, 0x77)

	c.Reg.A = 0
	stepCPU(t, c, 1)
	expectSP(t, c, 0xff)
	expectACC(t, c, 0x77)
}

func TestPullAccumulatorLeavesFlags(t *testing.T) {
	c, _ := loadCPU(t, "\tPHA\n\tPLA")
	stepCPU(t, c, 1)
	c.Reg.Zero = false
	c.Reg.Sign = true
	stepCPU(t, c, 1)

	expectACC(t, c, 0x00)
	expectFlags(t, c, "Nv-bdizc")
}

func TestStatusPushPull(t *testing.T) {
	asm := `
	PHP
	CLC
	CLV
	PLP`

	c, _ := loadCPU(t, asm)
	c.Reg.Carry = true
	c.Reg.Overflow = true
	c.Reg.Decimal = true
	stepCPU(t, c, 1)
	expectMem(t, c, 0x100, cpu.CarryBit|cpu.OverflowBit|cpu.DecimalBit|cpu.UnusedBit)

	stepCPU(t, c, 2)
	expectFlags(t, c, "nv-bDizc")
	stepCPU(t, c, 1)
	expectFlags(t, c, "nV-bDizC")
	expectSP(t, c, 0)
}

func TestADC(t *testing.T) {
	tests := []struct {
		a, operand byte
		carry      bool
		result     byte
		ps         string
	}{
		{0x50, 0x50, false, 0xa0, "NV-bdizc"},
		{0x01, 0x01, true, 0x03, "nv-bdizc"},
		{0xff, 0x01, false, 0x00, "nv-bdiZC"},
		{0x80, 0x80, false, 0x00, "nV-bdiZC"},
		{0xd0, 0x90, false, 0x60, "nV-bdizC"},
		{0x7f, 0x00, true, 0x80, "NV-bdizc"},
	}

	for _, tc := range tests {
		c, _ := loadCPU(t, fmt.Sprintf("\tADC #$%02X", tc.operand))
		c.Reg.A = tc.a
		c.Reg.Carry = tc.carry
		stepCPU(t, c, 1)
		expectACC(t, c, tc.result)
		expectFlags(t, c, tc.ps)
	}
}

func TestSBC(t *testing.T) {
	tests := []struct {
		a, operand byte
		carry      bool
		result     byte
		ps         string
	}{
		{0x50, 0xf0, true, 0x60, "nv-bdizc"},
		{0x50, 0x10, true, 0x40, "nv-bdizC"},
		{0x50, 0x50, true, 0x00, "nv-bdiZC"},
		{0x50, 0x50, false, 0xff, "Nv-bdizc"},
		{0x50, 0xb0, true, 0xa0, "NV-bdizc"},
		{0xd0, 0x70, true, 0x60, "nV-bdizC"},
		{0x00, 0x00, false, 0xff, "Nv-bdizc"},
	}

	for _, tc := range tests {
		c, _ := loadCPU(t, fmt.Sprintf("\tSBC #$%02X", tc.operand))
		c.Reg.A = tc.a
		c.Reg.Carry = tc.carry
		stepCPU(t, c, 1)
		expectACC(t, c, tc.result)
		expectFlags(t, c, tc.ps)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		opcode  string
		reg     byte
		operand byte
		ps      string
	}{
		{"CMP", 0x10, 0x20, "Nv-bdizc"}, // register < operand
		{"CMP", 0x20, 0x20, "nv-bdiZC"}, // equal
		{"CMP", 0x20, 0x10, "nv-bdizC"}, // register > operand
		{"CPX", 0xf0, 0x10, "Nv-bdizC"}, // borrow-free, negative result
		{"CPX", 0x10, 0xf0, "nv-bdizc"}, // borrow, positive result
		{"CPY", 0x00, 0x01, "Nv-bdizc"}, // borrow
		{"CPY", 0xff, 0x00, "Nv-bdizC"},
	}

	for _, tc := range tests {
		c, _ := loadCPU(t, fmt.Sprintf("\t%s #$%02X", tc.opcode, tc.operand))
		c.Reg.A, c.Reg.X, c.Reg.Y = tc.reg, tc.reg, tc.reg
		stepCPU(t, c, 1)
		expectFlags(t, c, tc.ps)
		expectACC(t, c, tc.reg)
	}
}

func TestLogical(t *testing.T) {
	c := runCPU(t, "\tLDA #$F0\n\tAND #$0F", 2)
	expectACC(t, c, 0x00)
	expectFlags(t, c, "nv-bdiZc")

	c = runCPU(t, "\tLDA #$70\n\tORA #$81", 2)
	expectACC(t, c, 0xf1)
	expectFlags(t, c, "Nv-bdizc")

	c = runCPU(t, "\tLDA #$FF\n\tEOR #$0F", 2)
	expectACC(t, c, 0xf0)
	expectFlags(t, c, "Nv-bdizc")
}

func TestBit(t *testing.T) {
	asm := `
	BIT $10
	BIT $2000`

	c, mem := loadCPU(t, asm)
	mem.StoreByte(0x10, 0xc0)
	mem.StoreByte(0x2000, 0x41)
	c.Reg.A = 0x01

	stepCPU(t, c, 1)
	expectFlags(t, c, "NV-bdiZc")

	stepCPU(t, c, 1)
	expectFlags(t, c, "nV-bdizc")
	expectACC(t, c, 0x01)
	expectPC(t, c, 0x1005)
}

func TestShiftRoundTrip(t *testing.T) {
	// ASL pushes bit 7 into carry; ROR brings it back into bit 7.
	c, mem := loadCPU(t, "\tASL $10\n\tROR $10")
	mem.StoreByte(0x10, 0x81)
	stepCPU(t, c, 1)
	expectMem(t, c, 0x10, 0x02)
	expectFlags(t, c, "nv-bdizC")
	stepCPU(t, c, 1)
	expectMem(t, c, 0x10, 0x81)
	expectFlags(t, c, "Nv-bdizc")

	// LSR pushes bit 0 into carry; ROL brings it back into bit 0.
	c, mem = loadCPU(t, "\tLSR $10\n\tROL $10")
	mem.StoreByte(0x10, 0x81)
	stepCPU(t, c, 1)
	expectMem(t, c, 0x10, 0x40)
	expectFlags(t, c, "nv-bdizC")
	stepCPU(t, c, 1)
	expectMem(t, c, 0x10, 0x81)
	expectFlags(t, c, "Nv-bdizc")
}

func TestShiftAccumulator(t *testing.T) {
	tests := []struct {
		opcode string
		a      byte
		carry  bool
		result byte
		ps     string
	}{
		{"ASL A", 0x80, false, 0x00, "nv-bdiZC"},
		{"LSR A", 0x01, false, 0x00, "nv-bdiZC"},
		{"ROL A", 0x80, true, 0x01, "nv-bdizC"},
		{"ROL A", 0x40, false, 0x80, "Nv-bdizc"},
		{"ROR A", 0x01, true, 0x80, "Nv-bdizC"},
		{"ROR", 0x02, false, 0x01, "nv-bdizc"},
	}

	for _, tc := range tests {
		c, _ := loadCPU(t, "\t"+tc.opcode)
		c.Reg.A = tc.a
		c.Reg.Carry = tc.carry
		stepCPU(t, c, 1)
		expectACC(t, c, tc.result)
		expectFlags(t, c, tc.ps)
		expectPC(t, c, 0x1001)
	}
}

func TestIncrementDecrement(t *testing.T) {
	asm := `
	INC $10
	DEC $11
	DEX
	INY
	INX
	DEY`

	c, mem := loadCPU(t, asm)
	mem.StoreByte(0x10, 0xff)
	mem.StoreByte(0x11, 0x00)

	stepCPU(t, c, 1)
	expectMem(t, c, 0x10, 0x00)
	expectFlags(t, c, "nv-bdiZc")

	stepCPU(t, c, 1)
	expectMem(t, c, 0x11, 0xff)
	expectFlags(t, c, "Nv-bdizc")

	stepCPU(t, c, 1)
	if c.Reg.X != 0xff {
		t.Errorf("X incorrect. exp: $FF, got: $%02X", c.Reg.X)
	}
	expectFlags(t, c, "Nv-bdizc")

	stepCPU(t, c, 1)
	if c.Reg.Y != 0x01 {
		t.Errorf("Y incorrect. exp: $01, got: $%02X", c.Reg.Y)
	}
	expectFlags(t, c, "nv-bdizc")

	stepCPU(t, c, 2)
	if c.Reg.X != 0x00 || c.Reg.Y != 0x00 {
		t.Errorf("index registers incorrect: X=$%02X Y=$%02X", c.Reg.X, c.Reg.Y)
	}
	expectFlags(t, c, "nv-bdiZc")
}

func TestTransfers(t *testing.T) {
	asm := `
	TAX
	TAY
	TXS
	LDA #$01
	TSX
	TXA
	TYA`

	c, _ := loadCPU(t, asm)
	c.Reg.A = 0x80

	stepCPU(t, c, 2)
	if c.Reg.X != 0x80 || c.Reg.Y != 0x80 {
		t.Errorf("transfer incorrect: X=$%02X Y=$%02X", c.Reg.X, c.Reg.Y)
	}
	expectFlags(t, c, "Nv-bdizc")

	// TXS does not touch the flags.
	c.Reg.Sign = false
	stepCPU(t, c, 1)
	expectSP(t, c, 0x80)
	expectFlags(t, c, "nv-bdizc")

	stepCPU(t, c, 2)
	if c.Reg.X != 0x80 {
		t.Errorf("TSX incorrect: X=$%02X", c.Reg.X)
	}
	expectFlags(t, c, "Nv-bdizc")

	stepCPU(t, c, 1)
	expectACC(t, c, 0x80)
	c.Reg.Y = 0
	stepCPU(t, c, 1)
	expectACC(t, c, 0x00)
	expectFlags(t, c, "nv-bdiZc")
}

func TestFlagInstructions(t *testing.T) {
	c := runCPU(t, "\tSEC\n\tSED\n\tSEI", 3)
	expectFlags(t, c, "nv-bDIzC")

	c, _ = loadCPU(t, "\tCLC\n\tCLD\n\tCLI\n\tCLV")
	c.Reg.RestorePS(0xff)
	stepCPU(t, c, 4)
	expectFlags(t, c, "Nv-BdiZc")
}

func TestBranches(t *testing.T) {
	tests := []struct {
		opcode string
		set    func(r *cpu.Registers, on bool)
		when   bool
	}{
		{"BCC", func(r *cpu.Registers, on bool) { r.Carry = on }, false},
		{"BCS", func(r *cpu.Registers, on bool) { r.Carry = on }, true},
		{"BEQ", func(r *cpu.Registers, on bool) { r.Zero = on }, true},
		{"BNE", func(r *cpu.Registers, on bool) { r.Zero = on }, false},
		{"BMI", func(r *cpu.Registers, on bool) { r.Sign = on }, true},
		{"BPL", func(r *cpu.Registers, on bool) { r.Sign = on }, false},
		{"BVS", func(r *cpu.Registers, on bool) { r.Overflow = on }, true},
		{"BVC", func(r *cpu.Registers, on bool) { r.Overflow = on }, false},
	}

	for _, tc := range tests {
		// Taken forward.
		c, _ := loadCPU(t, "\t"+tc.opcode+" $1007")
		tc.set(&c.Reg, tc.when)
		ps := c.Reg.SavePS()
		stepCPU(t, c, 1)
		expectPC(t, c, 0x1007)
		if c.Reg.SavePS() != ps {
			t.Errorf("branch %s changed flags", tc.opcode)
		}

		// Taken backward.
		c, _ = loadCPU(t, "\t"+tc.opcode+" $0FFE")
		tc.set(&c.Reg, tc.when)
		stepCPU(t, c, 1)
		expectPC(t, c, 0x0ffe)

		// Not taken.
		c, _ = loadCPU(t, "\t"+tc.opcode+" $1007")
		tc.set(&c.Reg, !tc.when)
		stepCPU(t, c, 1)
		expectPC(t, c, 0x1002)
	}
}

func TestJSRRTS(t *testing.T) {
	c, mem := loadCPU(t, "\tJSR $2000")
	mem.StoreByte(0x2000, 0x60) // RTS

	stepCPU(t, c, 1)
	expectPC(t, c, 0x2000)
	expectSP(t, c, 0x02)
	expectMem(t, c, 0x100, 0x10)
	expectMem(t, c, 0x101, 0x02)

	stepCPU(t, c, 1)
	expectPC(t, c, 0x1003)
	expectSP(t, c, 0x00)
}

func TestSubroutineProgram(t *testing.T) {
	asm := `
	.OR $0600
start	LDX #3
.loop	JSR double
	DEX
	BNE .loop
	STA $10
	BRK

double	ASL A
	RTS`

	c, _ := loadCPU(t, asm)
	c.Reg.A = 1
	stepCPU(t, c, 1+3*5+1)

	expectMem(t, c, 0x10, 0x08)
	expectPC(t, c, 0x060a)
	expectSP(t, c, 0x00)
}

func TestJMP(t *testing.T) {
	c := runCPU(t, "\tJMP $1234", 1)
	expectPC(t, c, 0x1234)

	c, mem := loadCPU(t, "\tJMP ($3000)")
	mem.StoreBytes(0x3000, []byte{0x56, 0x78})
	stepCPU(t, c, 1)
	expectPC(t, c, 0x5678)
}

func TestBRKRTI(t *testing.T) {
	c, mem := loadCPU(t, "\tBRK")
	mem.StoreBytes(0xfffe, []byte{0x30, 0x00})
	mem.StoreByte(0x3000, 0x40) // RTI
	c.Reg.Carry = true
	c.Reg.Sign = true
	before := c.Reg

	stepCPU(t, c, 1)
	expectPC(t, c, 0x3000)
	expectFlags(t, c, "Nv-BdIzC")
	expectSP(t, c, 0x03)
	expectMem(t, c, 0x100, 0x10)
	expectMem(t, c, 0x101, 0x02)
	expectMem(t, c, 0x102, cpu.SignBit|cpu.UnusedBit|cpu.BreakBit|cpu.CarryBit)

	stepCPU(t, c, 1)
	expectPC(t, c, 0x1002)
	expectSP(t, c, 0x00)

	// Everything but the break flag matches the state before BRK.
	after := c.Reg
	after.Break = before.Break
	after.PC = before.PC
	if after != before {
		t.Errorf("registers after RTI incorrect. exp: %+v, got: %+v", before, c.Reg)
	}
	if !c.Reg.Break {
		t.Error("break flag not restored as pushed")
	}
}

func TestUndefinedOpcode(t *testing.T) {
	c, _ := loadCPU(t, "\t.DB $02")
	err := c.Step()
	if !errors.Is(err, cpu.ErrUndefinedOpcode) {
		t.Fatalf("expected undefined opcode error, got %v", err)
	}
	expectPC(t, c, 0x1000)
	expectCycles(t, c, 0)
}

func TestCyclesDoNotWrap(t *testing.T) {
	c, _ := loadCPU(t, "loop\tJMP loop")
	stepCPU(t, c, 70000)
	expectCycles(t, c, 70000)
	expectPC(t, c, 0x1000)
}

func TestIndirect(t *testing.T) {
	asm := `
	LDX #$02
	LDA #$BB
	STA ($04,X)
	LDY #$03
	STA ($08),Y
	STA $30,X`

	c, mem := loadCPU(t, asm)
	mem.StoreBytes(0x06, []byte{0x05, 0x11})
	mem.StoreBytes(0x08, []byte{0x12, 0x40})
	stepCPU(t, c, 6)

	expectMem(t, c, 0x0511, 0xbb)
	expectMem(t, c, 0x0043, 0xbb)
	expectMem(t, c, 0x0032, 0xbb)
}

func TestIndexedAbsolute(t *testing.T) {
	asm := `
	LDX #$80
	LDY #$40
	LDA #$EE
	STA $2000,X
	STA $2000,Y
	LDA $2000,X`

	c, _ := loadCPU(t, asm)
	stepCPU(t, c, 6)
	expectMem(t, c, 0x2080, 0xee)
	expectMem(t, c, 0x2040, 0xee)
	expectACC(t, c, 0xee)
	expectPC(t, c, 0x100f)
}
