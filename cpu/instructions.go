// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "strings"

// An opsym is an internal symbol used to associate an opcode's data
// with its instructions.
type opsym byte

const (
	symADC opsym = iota
	symAND
	symASL
	symBCC
	symBCS
	symBEQ
	symBIT
	symBMI
	symBNE
	symBPL
	symBRK
	symBVC
	symBVS
	symCLC
	symCLD
	symCLI
	symCLV
	symCMP
	symCPX
	symCPY
	symDEC
	symDEX
	symDEY
	symEOR
	symINC
	symINX
	symINY
	symJMP
	symJSR
	symLDA
	symLDX
	symLDY
	symLSR
	symNOP
	symORA
	symPHA
	symPHP
	symPLA
	symPLP
	symROL
	symROR
	symRTI
	symRTS
	symSBC
	symSEC
	symSED
	symSEI
	symSTA
	symSTX
	symSTY
	symTAX
	symTAY
	symTSX
	symTXA
	symTXS
	symTYA
)

type instfunc func(c *CPU, inst *Instruction, op Operand)

// Emulator implementation for each opcode
type opcodeImpl struct {
	sym  opsym
	name string
	fn   instfunc
}

var impl = []opcodeImpl{
	{symADC, "ADC", (*CPU).adc},
	{symAND, "AND", (*CPU).and},
	{symASL, "ASL", (*CPU).asl},
	{symBCC, "BCC", (*CPU).bcc},
	{symBCS, "BCS", (*CPU).bcs},
	{symBEQ, "BEQ", (*CPU).beq},
	{symBIT, "BIT", (*CPU).bit},
	{symBMI, "BMI", (*CPU).bmi},
	{symBNE, "BNE", (*CPU).bne},
	{symBPL, "BPL", (*CPU).bpl},
	{symBRK, "BRK", (*CPU).brk},
	{symBVC, "BVC", (*CPU).bvc},
	{symBVS, "BVS", (*CPU).bvs},
	{symCLC, "CLC", (*CPU).clc},
	{symCLD, "CLD", (*CPU).cld},
	{symCLI, "CLI", (*CPU).cli},
	{symCLV, "CLV", (*CPU).clv},
	{symCMP, "CMP", (*CPU).cmp},
	{symCPX, "CPX", (*CPU).cpx},
	{symCPY, "CPY", (*CPU).cpy},
	{symDEC, "DEC", (*CPU).dec},
	{symDEX, "DEX", (*CPU).dex},
	{symDEY, "DEY", (*CPU).dey},
	{symEOR, "EOR", (*CPU).eor},
	{symINC, "INC", (*CPU).inc},
	{symINX, "INX", (*CPU).inx},
	{symINY, "INY", (*CPU).iny},
	{symJMP, "JMP", (*CPU).jmp},
	{symJSR, "JSR", (*CPU).jsr},
	{symLDA, "LDA", (*CPU).lda},
	{symLDX, "LDX", (*CPU).ldx},
	{symLDY, "LDY", (*CPU).ldy},
	{symLSR, "LSR", (*CPU).lsr},
	{symNOP, "NOP", (*CPU).nop},
	{symORA, "ORA", (*CPU).ora},
	{symPHA, "PHA", (*CPU).pha},
	{symPHP, "PHP", (*CPU).php},
	{symPLA, "PLA", (*CPU).pla},
	{symPLP, "PLP", (*CPU).plp},
	{symROL, "ROL", (*CPU).rol},
	{symROR, "ROR", (*CPU).ror},
	{symRTI, "RTI", (*CPU).rti},
	{symRTS, "RTS", (*CPU).rts},
	{symSBC, "SBC", (*CPU).sbc},
	{symSEC, "SEC", (*CPU).sec},
	{symSED, "SED", (*CPU).sed},
	{symSEI, "SEI", (*CPU).sei},
	{symSTA, "STA", (*CPU).sta},
	{symSTX, "STX", (*CPU).stx},
	{symSTY, "STY", (*CPU).sty},
	{symTAX, "TAX", (*CPU).tax},
	{symTAY, "TAY", (*CPU).tay},
	{symTSX, "TSX", (*CPU).tsx},
	{symTXA, "TXA", (*CPU).txa},
	{symTXS, "TXS", (*CPU).txs},
	{symTYA, "TYA", (*CPU).tya},
}

// Mode describes a memory addressing mode.
type Mode byte

// All possible memory addressing modes. The names describe how the operand
// resolver treats each opcode's mode group.
const (
	IMM Mode = iota // Immediate
	IMP             // Implied
	REL             // Relative
	ZPG             // Zero Page
	ZPX             // Zero Page,X (group 0, odd opcodes)
	ABS             // Absolute
	ABX             // Absolute,X
	ABY             // Absolute,Y
	IND             // (Indirect)
	IDX             // (Indirect,X) (group 5)
	IDY             // (Indirect),Y
	ACC             // Accumulator
)

// Operand size in bytes for each addressing mode.
var modeSize = []byte{
	1, // IMM
	0, // IMP
	1, // REL
	1, // ZPG
	1, // ZPX
	2, // ABS
	2, // ABX
	2, // ABY
	2, // IND
	1, // IDX
	1, // IDY
	0, // ACC
}

// Opcode data for an (opcode, mode) pair
type opcodeData struct {
	sym    opsym // internal opcode key value
	mode   Mode  // addressing mode
	opcode byte  // opcode hex value
}

// All valid (opcode, mode) pairs
var data = []opcodeData{
	{symLDA, IMM, 0xa9},
	{symLDA, ZPG, 0xa5},
	{symLDA, IDX, 0xb5},
	{symLDA, ABS, 0xad},
	{symLDA, ABX, 0xbd},
	{symLDA, ABY, 0xb9},
	{symLDA, ZPX, 0xa1},
	{symLDA, IDY, 0xb1},

	{symLDX, IMM, 0xa2},
	{symLDX, ZPG, 0xa6},
	{symLDX, IDX, 0xb6},
	{symLDX, ABS, 0xae},
	{symLDX, ABX, 0xbe},

	{symLDY, IMM, 0xa0},
	{symLDY, ZPG, 0xa4},
	{symLDY, IDX, 0xb4},
	{symLDY, ABS, 0xac},
	{symLDY, ABX, 0xbc},

	{symSTA, ZPG, 0x85},
	{symSTA, IDX, 0x95},
	{symSTA, ABS, 0x8d},
	{symSTA, ABX, 0x9d},
	{symSTA, ABY, 0x99},
	{symSTA, ZPX, 0x81},
	{symSTA, IDY, 0x91},

	{symSTX, ZPG, 0x86},
	{symSTX, IDX, 0x96},
	{symSTX, ABS, 0x8e},

	{symSTY, ZPG, 0x84},
	{symSTY, IDX, 0x94},
	{symSTY, ABS, 0x8c},

	{symADC, IMM, 0x69},
	{symADC, ZPG, 0x65},
	{symADC, IDX, 0x75},
	{symADC, ABS, 0x6d},
	{symADC, ABX, 0x7d},
	{symADC, ABY, 0x79},
	{symADC, ZPX, 0x61},
	{symADC, IDY, 0x71},

	{symSBC, IMM, 0xe9},
	{symSBC, ZPG, 0xe5},
	{symSBC, IDX, 0xf5},
	{symSBC, ABS, 0xed},
	{symSBC, ABX, 0xfd},
	{symSBC, ABY, 0xf9},
	{symSBC, ZPX, 0xe1},
	{symSBC, IDY, 0xf1},

	{symCMP, IMM, 0xc9},
	{symCMP, ZPG, 0xc5},
	{symCMP, IDX, 0xd5},
	{symCMP, ABS, 0xcd},
	{symCMP, ABX, 0xdd},
	{symCMP, ABY, 0xd9},
	{symCMP, ZPX, 0xc1},
	{symCMP, IDY, 0xd1},

	{symCPX, IMM, 0xe0},
	{symCPX, ZPG, 0xe4},
	{symCPX, ABS, 0xec},

	{symCPY, IMM, 0xc0},
	{symCPY, ZPG, 0xc4},
	{symCPY, ABS, 0xcc},

	{symBIT, ZPG, 0x24},
	{symBIT, ABS, 0x2c},

	{symCLC, IMP, 0x18},
	{symSEC, IMP, 0x38},
	{symCLI, IMP, 0x58},
	{symSEI, IMP, 0x78},
	{symCLD, IMP, 0xd8},
	{symSED, IMP, 0xf8},
	{symCLV, IMP, 0xb8},

	{symBCC, REL, 0x90},
	{symBCS, REL, 0xb0},
	{symBEQ, REL, 0xf0},
	{symBNE, REL, 0xd0},
	{symBMI, REL, 0x30},
	{symBPL, REL, 0x10},
	{symBVC, REL, 0x50},
	{symBVS, REL, 0x70},

	{symBRK, IMP, 0x00},

	{symAND, IMM, 0x29},
	{symAND, ZPG, 0x25},
	{symAND, IDX, 0x35},
	{symAND, ABS, 0x2d},
	{symAND, ABX, 0x3d},
	{symAND, ABY, 0x39},
	{symAND, ZPX, 0x21},
	{symAND, IDY, 0x31},

	{symORA, IMM, 0x09},
	{symORA, ZPG, 0x05},
	{symORA, IDX, 0x15},
	{symORA, ABS, 0x0d},
	{symORA, ABX, 0x1d},
	{symORA, ABY, 0x19},
	{symORA, ZPX, 0x01},
	{symORA, IDY, 0x11},

	{symEOR, IMM, 0x49},
	{symEOR, ZPG, 0x45},
	{symEOR, IDX, 0x55},
	{symEOR, ABS, 0x4d},
	{symEOR, ABX, 0x5d},
	{symEOR, ABY, 0x59},
	{symEOR, ZPX, 0x41},
	{symEOR, IDY, 0x51},

	{symINC, ZPG, 0xe6},
	{symINC, IDX, 0xf6},
	{symINC, ABS, 0xee},
	{symINC, ABX, 0xfe},

	{symDEC, ZPG, 0xc6},
	{symDEC, IDX, 0xd6},
	{symDEC, ABS, 0xce},
	{symDEC, ABX, 0xde},

	{symINX, IMP, 0xe8},
	{symINY, IMP, 0xc8},

	{symDEX, IMP, 0xca},
	{symDEY, IMP, 0x88},

	{symJMP, ABS, 0x4c},
	{symJMP, IND, 0x6c},

	{symJSR, ABS, 0x20},
	{symRTS, IMP, 0x60},

	{symRTI, IMP, 0x40},

	{symNOP, IMP, 0xea},

	{symTAX, IMP, 0xaa},
	{symTXA, IMP, 0x8a},
	{symTAY, IMP, 0xa8},
	{symTYA, IMP, 0x98},
	{symTXS, IMP, 0x9a},
	{symTSX, IMP, 0xba},

	{symPHA, IMP, 0x48},
	{symPLA, IMP, 0x68},
	{symPHP, IMP, 0x08},
	{symPLP, IMP, 0x28},

	{symASL, ACC, 0x0a},
	{symASL, ZPG, 0x06},
	{symASL, IDX, 0x16},
	{symASL, ABS, 0x0e},
	{symASL, ABX, 0x1e},

	{symLSR, ACC, 0x4a},
	{symLSR, ZPG, 0x46},
	{symLSR, IDX, 0x56},
	{symLSR, ABS, 0x4e},
	{symLSR, ABX, 0x5e},

	{symROL, ACC, 0x2a},
	{symROL, ZPG, 0x26},
	{symROL, IDX, 0x36},
	{symROL, ABS, 0x2e},
	{symROL, ABX, 0x3e},

	{symROR, ACC, 0x6a},
	{symROR, ZPG, 0x66},
	{symROR, IDX, 0x76},
	{symROR, ABS, 0x6e},
	{symROR, ABX, 0x7e},
}

// An Instruction describes a CPU instruction, including its name,
// its addressing mode, its opcode value and its operand size.
type Instruction struct {
	Name   string   // all-caps name of the instruction
	Mode   Mode     // addressing mode
	Opcode byte     // hexadecimal opcode value
	Length byte     // combined size of opcode and operand, in bytes
	fn     instfunc // emulator implementation of the function
}

// Defined reports whether the instruction has an implementation.
// Executing an undefined instruction traps.
func (inst *Instruction) Defined() bool {
	return inst.fn != nil
}

// An InstructionSet defines the set of all possible instructions that
// can run on the emulated CPU.
type InstructionSet struct {
	instructions [256]Instruction          // all instructions by opcode
	variants     map[string][]*Instruction // variants of each instruction
}

// Lookup retrieves a CPU instruction corresponding to the requested opcode.
func (s *InstructionSet) Lookup(opcode byte) *Instruction {
	return &s.instructions[opcode]
}

// GetInstructions returns all CPU instructions whose name matches the
// provided string.
func (s *InstructionSet) GetInstructions(name string) []*Instruction {
	return s.variants[strings.ToUpper(name)]
}

const undefinedName = "???"

// Create the instruction set.
func newInstructionSet() *InstructionSet {
	set := &InstructionSet{}

	// Create a map from symbol to implementation for fast lookups.
	symToImpl := make(map[opsym]*opcodeImpl, len(impl))
	for i := range impl {
		symToImpl[impl[i].sym] = &impl[i]
	}

	// Every opcode starts out undefined: a single byte with no
	// implementation.
	for i := range set.instructions {
		inst := &set.instructions[i]
		inst.Name = undefinedName
		inst.Mode = IMP
		inst.Opcode = byte(i)
		inst.Length = 1
	}

	// Create a map from instruction name to the slice of all instruction
	// variants matching that name.
	set.variants = make(map[string][]*Instruction)

	for _, d := range data {
		impl := symToImpl[d.sym]
		inst := &set.instructions[d.opcode]
		if inst.fn != nil {
			panic("duplicate opcode")
		}

		inst.Name = impl.name
		inst.Mode = d.mode
		inst.Length = 1 + modeSize[d.mode]
		inst.fn = impl.fn

		set.variants[inst.Name] = append(set.variants[inst.Name], inst)
	}
	return set
}

var instructionSet *InstructionSet

// GetInstructionSet returns the 2A03 instruction set.
func GetInstructionSet() *InstructionSet {
	if instructionSet == nil {
		// Lazy-create the instruction set.
		instructionSet = newInstructionSet()
	}
	return instructionSet
}
