package host

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func runCommands(t *testing.T, h *Host, lines ...string) string {
	t.Helper()
	var out strings.Builder
	h.RunCommands(strings.NewReader(strings.Join(lines, "\n")+"\n"), &out, false)
	return out.String()
}

func expectOutput(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q. got:\n%s", w, out)
		}
	}
}

func writeFile(t *testing.T, name string, b []byte) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(filename, b, 0600); err != nil {
		t.Fatal(err)
	}
	return filename
}

func TestRegisterCommands(t *testing.T) {
	h := New()
	out := runCommands(t, h,
		"register a $42",
		"register sp $1f",
		"set y 7",
		"set carry on",
		"evaluate a+1",
		"evaluate sp",
		"register q 1",
	)

	expectOutput(t, out,
		"Register A set to $42.",
		"Flag CARRY set to true.",
		"$0043 (67)",
		"$011F (287)",
		"Register 'q' not found.",
	)

	reg := &h.CPU().Reg
	if reg.A != 0x42 || reg.SP != 0x1f || reg.Y != 7 || !reg.Carry {
		t.Errorf("registers incorrect: %+v", *reg)
	}
}

func TestMemoryCommands(t *testing.T) {
	h := New()
	out := runCommands(t, h,
		"memory set $200 $48 $49 0",
		"memory copy $300 $200 3",
		"memory dump $300 2",
	)

	expectOutput(t, out,
		"Stored 3 byte(s) at $0200.",
		"Copied 3 byte(s) from $0200 to $0300.",
		"0300- 48 49",
		"HI",
	)

	if h.mem.LoadByte(0x301) != 0x49 {
		t.Error("memory copy did not store the bytes")
	}
	if h.settings.NextMemDumpAddr != 0x302 {
		t.Errorf("next dump address incorrect. got: $%04X", h.settings.NextMemDumpAddr)
	}
}

func TestDisassembleCommand(t *testing.T) {
	h := New()
	out := runCommands(t, h,
		"ms $1000 $a9 $05 $8d $02 $00 $0a",
		"annotate $1000 entry point",
		"disassemble $1000 3",
	)

	expectOutput(t, out,
		"1000-   A9 05       LDA #$05",
		"; entry point",
		"1002-   8D 02 00    STA $0200",
		"1005-   0A          ASL A",
	)
	if h.settings.NextDisasmAddr != 0x1006 {
		t.Errorf("next disassembly address incorrect. got: $%04X", h.settings.NextDisasmAddr)
	}
}

func TestRunToBreakpoint(t *testing.T) {
	h := New()
	out := runCommands(t, h,
		"ms $1000 $a9 $05 $8d $02 $00 $ea $00",
		"breakpoint add $1005",
		"breakpoint list",
		"run $1000",
		"bl",
	)

	expectOutput(t, out,
		"Breakpoint added at $1005.",
		"$1005 true     0",
		"$1005 true     1",
		"Running from $1000.",
		"Breakpoint hit at $1005.",
	)

	c := h.CPU()
	if c.Reg.PC != 0x1005 || c.Cycles != 2 {
		t.Errorf("CPU stopped at $%04X after %d cycles", c.Reg.PC, c.Cycles)
	}
	if h.mem.LoadByte(0x200) != 5 {
		t.Error("program did not store to memory")
	}
	if h.log.Len() == 0 {
		t.Error("breakpoint hit not logged")
	}
}

func TestDisabledBreakpoint(t *testing.T) {
	h := New()
	out := runCommands(t, h,
		"ms $1000 $ea $ea $02",
		"ba $1001",
		"bd $1001",
		"run $1000",
		"br $1001",
		"br $1001",
	)

	expectOutput(t, out,
		"Breakpoint at $1001 disabled.",
		"Trap: undefined opcode $02 at $1002.",
		"Breakpoint at $1001 removed.",
		"No breakpoint was set on $1001.",
	)
	if h.CPU().Reg.PC != 0x1002 {
		t.Errorf("CPU stopped at $%04X", h.CPU().Reg.PC)
	}
}

func TestDataBreakpoint(t *testing.T) {
	h := New()
	out := runCommands(t, h,
		"ms $1000 $a9 $01 $8d $03 $00 $a9 $07 $8d $03 $00 $ea",
		"databreakpoint add $0300 7",
		"dbl",
		"run $1000",
	)

	expectOutput(t, out,
		"Conditional data breakpoint added at $0300 for value $07.",
		"$0300 true     $07     0",
		"Data breakpoint hit on address $0300.",
	)
	if h.CPU().Reg.PC != 0x100a {
		t.Errorf("CPU stopped at $%04X", h.CPU().Reg.PC)
	}
	if h.mem.LoadByte(0x300) != 7 {
		t.Error("store did not complete")
	}
}

func TestStepLimit(t *testing.T) {
	h := New()
	out := runCommands(t, h,
		"set maxrunsteps 3",
		"ms $1000 $4c $10 $00",
		"run $1000",
	)

	expectOutput(t, out, "Setting updated.", "Stopped after 3 steps.")
	if h.CPU().Cycles != 3 {
		t.Errorf("cycles incorrect. exp: 3, got: %d", h.CPU().Cycles)
	}
}

func TestStepCommands(t *testing.T) {
	// $1000: JSR $1008; NOP; NOP
	// $1008: INX; JSR $1010; RTS
	// $1010: INY; RTS
	h := New()
	runCommands(t, h,
		"ms $1000 $20 $10 $08 $ea $ea",
		"ms $1008 $e8 $20 $10 $10 $60",
		"ms $1010 $c8 $60",
		"register pc $1000",
	)

	c := h.CPU()
	runCommands(t, h, "step over")
	if c.Reg.PC != 0x1003 || c.Reg.X != 1 || c.Reg.Y != 1 {
		t.Errorf("step over incorrect. PC=$%04X X=%d Y=%d", c.Reg.PC, c.Reg.X, c.Reg.Y)
	}

	runCommands(t, h, "register pc $1000", "step in 2")
	if c.Reg.PC != 0x1009 {
		t.Errorf("step in incorrect. PC=$%04X", c.Reg.PC)
	}

	runCommands(t, h, "step out")
	if c.Reg.PC != 0x1003 || c.Reg.X != 2 || c.Reg.Y != 2 {
		t.Errorf("step out incorrect. PC=$%04X X=%d Y=%d", c.Reg.PC, c.Reg.X, c.Reg.Y)
	}
	if c.Reg.SP != 0 {
		t.Errorf("stack not balanced. SP=$%02X", c.Reg.SP)
	}
}

func TestStepDisplay(t *testing.T) {
	h := New()
	var out strings.Builder
	in := strings.NewReader("ms $1000 $e8 $e8 $e8\nr pc $1000\nsi 3\n")
	h.RunCommands(in, &out, true)

	expectOutput(t, out.String(), "1001-   E8", "1003-", "X=03")
}

func TestSettings(t *testing.T) {
	h := New()
	out := runCommands(t, h,
		"set littleendian true",
		"set fullindirecty on",
		"set hexmode 1",
		"evaluate 10",
		"set bogus 1",
		"set",
	)

	expectOutput(t, out, "$0010 (16)", "setting 'bogus' not found", "Variables:", "LittleEndian")

	cfg := h.CPU().Config
	if !cfg.LittleEndian || !cfg.FullIndirectY || cfg.DescendingStack {
		t.Errorf("CPU config not applied: %+v", cfg)
	}
	if !h.exprParser.hexMode {
		t.Error("hex mode not applied")
	}
}

func TestLoadCommand(t *testing.T) {
	filename := writeFile(t, "prog.bin", []byte{0xa9, 0x01, 0xea})

	h := New()
	out := runCommands(t, h,
		"load "+filename+" $2000",
		"load "+filename+" $fffe",
		"load "+filepath.Join(t.TempDir(), "missing.bin")+" $2000",
	)

	expectOutput(t, out, "Loaded 'prog.bin' to $2000..$2002", "do not fit", "Failed to load 'missing.bin'")

	out = runCommands(t, h, "load "+filename)
	expectOutput(t, out, "requires an address")
	if h.mem.LoadByte(0x2002) != 0xea || h.CPU().Reg.PC != 0x2000 {
		t.Error("load did not store the program")
	}
}

func TestAssembleCommands(t *testing.T) {
	src := "\t.OR $0600\nstart\tLDA #$05\n\tSTA $0200\n\t.EX start\n\tBRK\n"
	filename := writeFile(t, "prog.asm", []byte(src))
	binFilename := filepath.Join(filepath.Dir(filename), "prog.bin")

	h := New()
	out := runCommands(t, h,
		"assemble file "+filename,
		"load "+binFilename,
		"exports",
		"disassemble $0600 1",
		"step in 2",
	)

	expectOutput(t, out,
		"Assembled 'prog.asm' to produce 'prog.bin' and 'prog.map'.",
		"Loaded 'prog.bin' to $0600..$0605",
		"Loaded source map with 1 export(s).",
		fmt.Sprintf("%-16s $%04X", "start", 0x600),
		"0600-   A9 05       LDA #$05",
		"; start",
	)
	if h.mem.LoadByte(0x200) != 0x05 {
		t.Error("assembled program did not run")
	}
}

func TestAssembleFileErrors(t *testing.T) {
	filename := writeFile(t, "bad.asm", []byte("\tFOO\n"))

	h := New()
	out := runCommands(t, h,
		"assemble file "+filename,
		"assemble file "+filepath.Join(t.TempDir(), "missing"),
		"exports",
	)

	expectOutput(t, out,
		"Failed to assemble 'bad.asm'.",
		"invalid opcode 'FOO'",
		"Failed to assemble 'missing.asm'",
		"No active exports.",
	)
}

func TestAssembleInline(t *testing.T) {
	h := New()
	out := runCommands(t, h,
		"assemble inline $1000 LDA #$05",
		"ai $1002 STA $0200",
		"ai $1005 STA #$05",
	)

	expectOutput(t, out,
		"1000-   A9 05       LDA #$05",
		"1002-   8D 02 00    STA $0200",
		"invalid addressing mode",
	)
	if h.settings.NextDisasmAddr != 0x1005 {
		t.Errorf("next disassembly address incorrect. got: $%04X", h.settings.NextDisasmAddr)
	}
	if h.mem.LoadByte(0x1005) != 0x00 {
		t.Error("failed assembly stored code")
	}

	out = runCommands(t, h, "set littleendian true", "ai $1010 STA $0200")
	expectOutput(t, out, "1010-   8D 00 02    STA $0200")
}

func TestMemoryClear(t *testing.T) {
	h := New()
	out := runCommands(t, h, "ms $200 1 2 3", "memory clear")

	expectOutput(t, out, "Memory cleared.")
	if h.mem.LoadByte(0x201) != 0 {
		t.Error("memory not cleared")
	}
}

func TestExecuteCommand(t *testing.T) {
	inner := writeFile(t, "inner.cmd", []byte("# setup\nregister x 9\nquit\nregister x 1\n"))

	h := New()
	runCommands(t, h, "execute "+inner, "register y 1")

	if !h.Exited() {
		t.Error("quit in a command file did not exit")
	}
	if h.CPU().Reg.X != 9 || h.CPU().Reg.Y != 0 {
		t.Errorf("commands after quit were run. X=%d Y=%d", h.CPU().Reg.X, h.CPU().Reg.Y)
	}
}

func TestScriptCommand(t *testing.T) {
	filename := writeFile(t, "seed.lua", []byte("poke(0x10, 0x33)\npc(0x400)\nprint('seeded')\n"))

	h := New()
	out := runCommands(t, h, "script "+filename, "log")

	expectOutput(t, out, "seeded", "script: ran")
	if h.mem.LoadByte(0x10) != 0x33 || h.CPU().Reg.PC != 0x400 {
		t.Error("script did not seed the CPU")
	}
}

func TestLogCommand(t *testing.T) {
	h := New()
	out := runCommands(t, h, "log", "ms $1000 $02", "run $1000", "log 1", "log clear", "log")

	expectOutput(t, out, "Log is empty.", "cpu: undefined opcode $02 at $1000", "Log cleared.")
	if h.log.Len() != 0 {
		t.Error("log not cleared")
	}
}

func TestLogEcho(t *testing.T) {
	h := New()
	out := runCommands(t, h,
		"log echo on",
		"ms $1000 $02",
		"run $1000",
		"log echo off",
		"run $1000",
	)

	expectOutput(t, out, "Log echo on.", "Log echo off.")
	if n := strings.Count(out, "cpu: undefined opcode"); n != 1 {
		t.Errorf("log echo wrote %d entries, expected 1", n)
	}
}

func TestHelpCommand(t *testing.T) {
	h := New()
	out := runCommands(t, h, "help", "help breakpoint add", "breakpoint", "zzz", "lo")

	expectOutput(t, out,
		"go2a03 commands:",
		"Usage: breakpoint add <address>",
		"breakpoint commands:",
		"Command not found.",
		"Command is ambiguous.",
	)
}

func TestBreak(t *testing.T) {
	h := New()

	// Break is ignored while no command is running.
	h.Break()
	if h.interrupt.Load() {
		t.Fatal("break requested while idle")
	}

	runCommands(t, h, "ms $1000 $4c $10 $00")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for !h.running.Load() {
			runtime.Gosched()
		}
		h.Break()
	}()

	out := runCommands(t, h, "run $1000")
	<-done

	expectOutput(t, out, "Interrupted at $1000.")
	if h.running.Load() || h.state != stateProcessingCommands {
		t.Error("host still running after break")
	}
}
