// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package script drives an emulated CPU from Lua. A script can seed
// memory and registers, step the CPU and inspect the results.
//
// The following global functions are available to scripts:
//
//	peek(addr)               -> byte
//	poke(addr, value)
//	peekaddr(addr)           -> two-byte address in the CPU's byte order
//	pokeaddr(addr, value)
//	load(addr, {bytes} | b1, b2, ...) -> next address
//	assemble(addr, source)   -> next address [, error message]
//	pc([addr])               -> program counter
//	reg(name [, value])      -> register value (a, x, y, sp, pc)
//	flag(name [, bool])      -> flag state (c, z, i, d, b, v, n or full name)
//	status([byte])           -> packed status byte
//	step([count])            -> steps executed [, error message]
//	cycles()                 -> cycles executed
//	disasm(addr)             -> line, next address
//	log(tag, message)
//	logs([count])            -> {"tag: message", ...} oldest first
//	print(...)
package script

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/go2a03/asm"
	"github.com/beevik/go2a03/cpu"
	"github.com/beevik/go2a03/disasm"
	"github.com/beevik/go2a03/logger"
	lua "github.com/yuin/gopher-lua"
)

// A Runner executes Lua scripts against a single CPU.
type Runner struct {
	L   *lua.LState
	cpu *cpu.CPU
	out io.Writer
	log *logger.Logger
}

// New creates a Lua state bound to the CPU. Script output is written to
// out, and log entries go to log if it is not nil.
func New(c *cpu.CPU, out io.Writer, log *logger.Logger) *Runner {
	r := &Runner{
		L:   lua.NewState(),
		cpu: c,
		out: out,
		log: log,
	}

	for name, fn := range map[string]lua.LGFunction{
		"peek":     r.peek,
		"poke":     r.poke,
		"peekaddr": r.peekAddr,
		"pokeaddr": r.pokeAddr,
		"load":     r.load,
		"assemble": r.assemble,
		"pc":       r.pc,
		"reg":      r.reg,
		"flag":     r.flag,
		"status":   r.status,
		"step":     r.step,
		"cycles":   r.cycles,
		"disasm":   r.disasm,
		"log":      r.logEntry,
		"logs":     r.logEntries,
		"print":    r.print,
	} {
		r.L.SetGlobal(name, r.L.NewFunction(fn))
	}
	return r
}

// Close releases the Lua state.
func (r *Runner) Close() {
	r.L.Close()
}

// RunFile executes the Lua script stored in filename.
func (r *Runner) RunFile(filename string) error {
	if err := r.L.DoFile(filename); err != nil {
		return fmt.Errorf("script %s: %w", filename, err)
	}
	r.logf("ran %s", filename)
	return nil
}

// RunString executes a Lua chunk.
func (r *Runner) RunString(src string) error {
	if err := r.L.DoString(src); err != nil {
		return fmt.Errorf("script: %w", err)
	}
	return nil
}

func (r *Runner) logf(format string, args ...any) {
	if r.log != nil {
		r.log.Logf("script", format, args...)
	}
}

func (r *Runner) checkAddr(n int) uint16 {
	v := r.L.CheckInt(n)
	if v < 0 || v > 0xffff {
		r.L.ArgError(n, "address out of range")
	}
	return uint16(v)
}

func (r *Runner) checkByte(n int) byte {
	v := r.L.CheckInt(n)
	if v < -0x80 || v > 0xff {
		r.L.ArgError(n, "byte out of range")
	}
	return byte(v)
}

func (r *Runner) peek(L *lua.LState) int {
	addr := r.checkAddr(1)
	L.Push(lua.LNumber(r.cpu.Mem.LoadByte(addr)))
	return 1
}

func (r *Runner) poke(L *lua.LState) int {
	addr := r.checkAddr(1)
	r.cpu.Mem.StoreByte(addr, r.checkByte(2))
	return 0
}

func (r *Runner) peekAddr(L *lua.LState) int {
	L.Push(lua.LNumber(r.cpu.LoadAddress(r.checkAddr(1))))
	return 1
}

func (r *Runner) pokeAddr(L *lua.LState) int {
	addr := r.checkAddr(1)
	r.cpu.StoreAddress(addr, r.checkAddr(2))
	return 0
}

func (r *Runner) load(L *lua.LState) int {
	addr := r.checkAddr(1)

	var b []byte
	if tbl, ok := L.Get(2).(*lua.LTable); ok {
		for i := 1; i <= tbl.Len(); i++ {
			v, ok := tbl.RawGetInt(i).(lua.LNumber)
			if !ok || v < -0x80 || v > 0xff {
				L.ArgError(2, fmt.Sprintf("element %d is not a byte", i))
			}
			b = append(b, byte(int(v)))
		}
	} else {
		for n := 2; n <= L.GetTop(); n++ {
			b = append(b, r.checkByte(n))
		}
	}

	for i, v := range b {
		r.cpu.Mem.StoreByte(addr+uint16(i), v)
	}
	L.Push(lua.LNumber(addr + uint16(len(b))))
	return 1
}

// assemble assembles source code at addr, in the CPU's byte order, and
// stores the result in memory.
func (r *Runner) assemble(L *lua.LState) int {
	addr := r.checkAddr(1)
	src := L.CheckString(2)

	var options asm.Option
	if r.cpu.Config.LittleEndian {
		options |= asm.LittleEndian
	}

	assembly, sourceMap, err := asm.Assemble(strings.NewReader(src), "script", addr, nil, options)
	if err != nil {
		msg := err.Error()
		if len(assembly.Errors) > 0 {
			msg = strings.Join(assembly.Errors, "\n")
		}
		L.Push(lua.LNumber(addr))
		L.Push(lua.LString(msg))
		return 2
	}

	for i, v := range assembly.Code {
		r.cpu.Mem.StoreByte(sourceMap.Origin+uint16(i), v)
	}
	L.Push(lua.LNumber(int(sourceMap.Origin) + len(assembly.Code)))
	return 1
}

func (r *Runner) pc(L *lua.LState) int {
	if L.GetTop() >= 1 {
		r.cpu.SetPC(r.checkAddr(1))
	}
	L.Push(lua.LNumber(r.cpu.Reg.PC))
	return 1
}

func (r *Runner) reg(L *lua.LState) int {
	name := strings.ToLower(L.CheckString(1))
	set := L.GetTop() >= 2

	reg := &r.cpu.Reg
	var p *byte
	switch name {
	case "a":
		p = &reg.A
	case "x":
		p = &reg.X
	case "y":
		p = &reg.Y
	case "sp":
		p = &reg.SP
	case "pc":
		if set {
			reg.PC = r.checkAddr(2)
		}
		L.Push(lua.LNumber(reg.PC))
		return 1
	default:
		L.ArgError(1, "unknown register '"+name+"'")
		return 0
	}

	if set {
		*p = r.checkByte(2)
	}
	L.Push(lua.LNumber(*p))
	return 1
}

func (r *Runner) flagPtr(name string) *bool {
	reg := &r.cpu.Reg
	switch strings.ToLower(name) {
	case "c", "carry":
		return &reg.Carry
	case "z", "zero":
		return &reg.Zero
	case "i", "interrupt":
		return &reg.InterruptDisable
	case "d", "decimal":
		return &reg.Decimal
	case "b", "break":
		return &reg.Break
	case "v", "overflow":
		return &reg.Overflow
	case "n", "sign", "negative":
		return &reg.Sign
	default:
		return nil
	}
}

func (r *Runner) flag(L *lua.LState) int {
	name := L.CheckString(1)
	p := r.flagPtr(name)
	if p == nil {
		L.ArgError(1, "unknown flag '"+name+"'")
		return 0
	}
	if L.GetTop() >= 2 {
		*p = L.ToBool(2)
	}
	L.Push(lua.LBool(*p))
	return 1
}

func (r *Runner) status(L *lua.LState) int {
	if L.GetTop() >= 1 {
		r.cpu.Reg.RestorePS(r.checkByte(1))
	}
	L.Push(lua.LNumber(r.cpu.Reg.SavePS()))
	return 1
}

func (r *Runner) step(L *lua.LState) int {
	count := L.OptInt(1, 1)
	for i := 0; i < count; i++ {
		if err := r.cpu.Step(); err != nil {
			r.logf("%v", err)
			L.Push(lua.LNumber(i))
			L.Push(lua.LString(err.Error()))
			return 2
		}
	}
	L.Push(lua.LNumber(count))
	return 1
}

func (r *Runner) cycles(L *lua.LState) int {
	L.Push(lua.LNumber(r.cpu.Cycles))
	return 1
}

func (r *Runner) disasm(L *lua.LState) int {
	line, next := disasm.Disassemble(r.cpu, r.checkAddr(1))
	L.Push(lua.LString(line))
	L.Push(lua.LNumber(next))
	return 2
}

func (r *Runner) logEntry(L *lua.LState) int {
	if r.log != nil {
		r.log.Log(L.CheckString(1), L.CheckString(2))
	}
	return 0
}

func (r *Runner) logEntries(L *lua.LState) int {
	tbl := L.NewTable()
	if r.log != nil {
		entries := r.log.Entries()
		if n := L.OptInt(1, len(entries)); n >= 0 && n < len(entries) {
			entries = entries[len(entries)-n:]
		}
		for i := range entries {
			tbl.Append(lua.LString(strings.TrimSuffix(entries[i].String(), "\n")))
		}
	}
	L.Push(tbl)
	return 1
}

func (r *Runner) print(L *lua.LState) int {
	args := make([]string, L.GetTop())
	for i := range args {
		args[i] = L.Get(i + 1).String()
	}
	fmt.Fprintln(r.out, strings.Join(args, "\t"))
	return 0
}
