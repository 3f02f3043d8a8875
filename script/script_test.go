package script_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/go2a03/cpu"
	"github.com/beevik/go2a03/logger"
	"github.com/beevik/go2a03/script"
)

func newRunner(t *testing.T) (*script.Runner, *cpu.CPU, *strings.Builder, *logger.Logger) {
	t.Helper()
	c := cpu.NewCPU(cpu.NewFlatMemory())
	out := &strings.Builder{}
	log := logger.New(0)
	r := script.New(c, out, log)
	t.Cleanup(r.Close)
	return r, c, out, log
}

func run(t *testing.T, r *script.Runner, src string) {
	t.Helper()
	if err := r.RunString(src); err != nil {
		t.Fatalf("script failed: %v", err)
	}
}

func TestScriptStep(t *testing.T) {
	r, c, out, _ := newRunner(t)
	run(t, r, `
		local next = load(0x1000, {0xa9, 0x5e, 0x8d, 0x15, 0x00})
		pc(0x1000)
		local n = step(2)
		print(next, n, reg("a"), peek(0x1500), cycles())
	`)

	if got := out.String(); got != "4101\t2\t94\t94\t2\n" {
		t.Errorf("script output incorrect. got: %q", got)
	}
	if c.Reg.PC != 0x1005 {
		t.Errorf("PC incorrect. exp: $1005, got: $%04X", c.Reg.PC)
	}
}

func TestScriptRegisters(t *testing.T) {
	r, c, out, _ := newRunner(t)
	run(t, r, `
		reg("x", 0x10)
		reg("sp", 0x20)
		flag("carry", true)
		flag("n", true)
		poke(0x10, 0x7f)
		print(reg("x"), reg("sp"), flag("c"), status())
		status(0)
	`)

	if got := out.String(); got != "16\t32\ttrue\t161\n" {
		t.Errorf("script output incorrect. got: %q", got)
	}
	if c.Mem.LoadByte(0x10) != 0x7f {
		t.Error("poke did not store to memory")
	}
	if c.Reg.SavePS() != cpu.UnusedBit {
		t.Errorf("status not restored. got: $%02X", c.Reg.SavePS())
	}
}

func TestScriptTrap(t *testing.T) {
	r, _, out, log := newRunner(t)
	run(t, r, `
		load(0x2000, 0xea, 0x02)
		pc(0x2000)
		local n, err = step(5)
		print(n, err ~= nil, pc())
	`)

	if got := out.String(); got != "1\ttrue\t8193\n" {
		t.Errorf("script output incorrect. got: %q", got)
	}
	if log.Len() != 1 {
		t.Errorf("trap not logged, %d log entries", log.Len())
	}
}

func TestScriptDisasm(t *testing.T) {
	r, _, out, _ := newRunner(t)
	run(t, r, `
		load(0x1000, 0xa9, 0x01)
		local line, next = disasm(0x1000)
		print(line, next)
	`)

	if got := out.String(); got != "LDA #$01\t4098\n" {
		t.Errorf("script output incorrect. got: %q", got)
	}
}

func TestScriptAddress(t *testing.T) {
	r, c, out, _ := newRunner(t)
	run(t, r, `
		pokeaddr(0x3000, 0xbeef)
		print(peek(0x3000), peek(0x3001), peekaddr(0x3000))
	`)

	if got := out.String(); got != "190\t239\t48879\n" {
		t.Errorf("script output incorrect. got: %q", got)
	}

	c.Config.LittleEndian = true
	out.Reset()
	run(t, r, `print(peekaddr(0x3000))`)
	if got := out.String(); got != "61374\n" {
		t.Errorf("little-endian address incorrect. got: %q", got)
	}
}

func TestScriptAssemble(t *testing.T) {
	r, c, out, _ := newRunner(t)
	run(t, r, `
		local next = assemble(0x1000, "\tLDA #$05\n\tSTA $0200\n")
		pc(0x1000)
		step(2)
		print(next, peek(0x0200))
		local _, err = assemble(0x1000, "\tFOO\n")
		print(err ~= nil)
	`)

	if got := out.String(); got != "4101\t5\ntrue\n" {
		t.Errorf("script output incorrect. got: %q", got)
	}
	if c.Mem.LoadByte(0x1003) != 0x02 || c.Mem.LoadByte(0x1004) != 0x00 {
		t.Error("assembled address not stored high byte first")
	}
}

func TestScriptLogs(t *testing.T) {
	r, _, out, _ := newRunner(t)
	run(t, r, `
		log("t", "one")
		log("t", "two")
		local all = logs()
		local last = logs(1)
		print(#all, all[1], #last, last[1])
	`)

	if got := out.String(); got != "2\tt: one\t1\tt: two\n" {
		t.Errorf("script output incorrect. got: %q", got)
	}
}

func TestScriptErrors(t *testing.T) {
	r, _, _, _ := newRunner(t)
	for _, src := range []string{
		`reg("q")`,
		`flag("q")`,
		`peek(0x10000)`,
		`poke(0, 0x100)`,
		`pokeaddr(0, 0x10000)`,
		`load(0, {1, 2, 300})`,
		`this is not lua`,
	} {
		if err := r.RunString(src); err == nil {
			t.Errorf("script %q did not fail", src)
		}
	}
}

func TestScriptFile(t *testing.T) {
	r, c, _, log := newRunner(t)

	filename := filepath.Join(t.TempDir(), "seed.lua")
	err := os.WriteFile(filename, []byte("poke(0x200, 0x42)\npc(0x200)\n"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.RunFile(filename); err != nil {
		t.Fatalf("RunFile failed: %v", err)
	}
	if c.Reg.PC != 0x200 || c.Mem.LoadByte(0x200) != 0x42 {
		t.Error("script file did not seed the CPU")
	}
	if log.Len() != 1 {
		t.Errorf("script run not logged, %d log entries", log.Len())
	}

	if err := r.RunFile(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("missing script did not fail")
	}
}
