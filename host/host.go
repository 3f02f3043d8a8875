// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host allows you to create a "host" that emulates a computer system
// with a 2A03 CPU, 64K of memory, a built-in debugger, a Lua driver, and
// other useful tools.
//
// Within the host it is possible to load machine code into memory, debug
// and step through machine code, measure the number of CPU cycles elapsed,
// set address and data breakpoints, dump the contents of memory,
// disassemble the contents of memory, manipulate CPU registers and memory,
// and evaluate arbitrary expressions. Programs may be assembled from source
// files or a line at a time directly into memory.
package host

import (
	"bufio"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/beevik/cmd"
	"github.com/beevik/go2a03/asm"
	"github.com/beevik/go2a03/cpu"
	"github.com/beevik/go2a03/disasm"
	"github.com/beevik/go2a03/logger"
	"github.com/beevik/go2a03/script"
)

type displayFlags uint8

const (
	displayRegisters displayFlags = 1 << iota
	displayCycles
	displayAnnotations

	displayAll = displayRegisters | displayCycles | displayAnnotations
)

var errQuit = errors.New("exiting program")

// A selection is a command found in the command tree along with the
// whitespace-delimited arguments that followed it.
type selection struct {
	Command *cmd.Command
	Args    []string
}

// A Host represents a fully emulated 2A03 system, 64K of memory, a built-in
// debugger, and other useful tools.
type Host struct {
	output      *bufio.Writer
	interactive bool
	mem         *cpu.FlatMemory
	cpu         *cpu.CPU
	debugger    *cpu.Debugger
	log         *logger.Logger
	lastCmd     *selection
	state       state
	steps       int
	running     atomic.Bool // CPU is executing on behalf of a command
	interrupt   atomic.Bool // Break was requested during a run
	exited      bool
	exprParser  *exprParser
	settings    *settings
	annotations map[uint16]string
	sourceMap   *asm.SourceMap
}

// New creates a new 2A03 host environment.
func New() *Host {
	h := &Host{
		output:      bufio.NewWriter(io.Discard),
		state:       stateProcessingCommands,
		log:         logger.New(logger.DefaultMaxEntries),
		exprParser:  newExprParser(),
		settings:    newSettings(),
		annotations: make(map[uint16]string),
	}

	// Create the emulated CPU and memory.
	h.mem = cpu.NewFlatMemory()
	h.cpu = cpu.NewCPU(h.mem)
	h.cpu.Config = h.settings.Config()

	// Create a CPU debugger and attach it to the CPU.
	h.debugger = cpu.NewDebugger(newDebugHandler(h))
	h.cpu.AttachDebugger(h.debugger)

	return h
}

// CPU returns the host's emulated CPU.
func (h *Host) CPU() *cpu.CPU {
	return h.cpu
}

// Log returns the host's event log.
func (h *Host) Log() *logger.Logger {
	return h.log
}

// Exited reports whether a quit command has been processed.
func (h *Host) Exited() bool {
	return h.exited
}

// RunCommands accepts host commands from a reader and outputs the results
// to a writer. If the commands are interactive, a prompt is displayed while
// the host waits for the the next command to be entered. When the reader
// is a terminal, lines are read with editing and history.
func (h *Host) RunCommands(r io.Reader, w io.Writer, interactive bool) {
	h.output = bufio.NewWriter(w)
	h.interactive = interactive

	var input lineReader = newScanReader(r)
	if f, ok := r.(*os.File); ok && interactive {
		if t, ok := newTermReader(f, w, "* "); ok {
			input = t
		}
	}

	if interactive {
		h.println()
	}

	h.displayPC()
	h.processCommands(input)
}

// RunScript runs a Lua script file against the host's CPU, writing any
// script output to w.
func (h *Host) RunScript(filename string, w io.Writer) error {
	h.output = bufio.NewWriter(w)
	return h.runScript(filename)
}

// Break interrupts a running CPU. It may be called from any goroutine,
// including a signal handler.
func (h *Host) Break() {
	if h.running.Load() {
		h.interrupt.Store(true)
	}
}

func (h *Host) processCommands(input lineReader) {
	for !h.exited {
		if !input.Prompts() {
			h.prompt()
		}

		line, err := input.ReadLine()
		if err != nil {
			break
		}

		if err := h.exec(line); err != nil {
			break
		}
	}
}

// exec looks up and runs a single command line. An empty line repeats the
// previous command when the host is interactive.
func (h *Host) exec(line string) error {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
		return nil
	}

	var c selection
	if line != "" {
		n, args, err := cmds.Lookup(line)
		switch {
		case errors.Is(err, cmd.ErrNotFound):
			h.println("Command not found.")
			return nil
		case errors.Is(err, cmd.ErrAmbiguous):
			h.println("Command is ambiguous.")
			return nil
		case err != nil:
			h.printf("ERROR: %v.\n", err)
			return nil
		}

		// A command group named on its own lists its commands.
		command, ok := n.(*cmd.Command)
		if !ok {
			n.DisplayHelp(h.output)
			h.flush()
			return nil
		}
		c = selection{Command: command, Args: args}
	} else if h.lastCmd != nil && h.interactive {
		c = *h.lastCmd
	}

	if c.Command == nil {
		return nil
	}

	h.lastCmd = &c
	handler := c.Command.Data.(func(*Host, selection) error)
	return handler(h, c)
}

func (h *Host) print(args ...any) {
	fmt.Fprint(h.output, args...)
}

func (h *Host) printf(format string, args ...any) {
	fmt.Fprintf(h.output, format, args...)
	h.flush()
}

func (h *Host) println(args ...any) {
	fmt.Fprintln(h.output, args...)
	h.flush()
}

func (h *Host) flush() {
	h.output.Flush()
}

func (h *Host) prompt() {
	if h.interactive {
		h.print("* ")
		h.flush()
	}
}

func (h *Host) displayPC() {
	if h.interactive {
		d, _ := h.disassemble(h.cpu.Reg.PC, displayAll)
		h.println(d)
	}
}

// parseAddrArg parses the first argument of a command as an address. If
// it is missing or invalid, a message is displayed and ok is false.
func (h *Host) parseAddrArg(c selection) (addr uint16, ok bool) {
	if len(c.Args) < 1 {
		h.displayHelpText(c.Command)
		return 0, false
	}

	addr, err := h.parseExpr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return 0, false
	}
	return addr, true
}

// parseCount parses an optional count argument at index i.
func (h *Host) parseCount(c selection, i int, def int) int {
	if len(c.Args) > i {
		n, err := h.exprParser.Parse(c.Args[i], h)
		if err == nil && n > 0 {
			return int(n)
		}
	}
	return def
}

func (h *Host) cmdAnnotate(c selection) error {
	addr, ok := h.parseAddrArg(c)
	if !ok {
		return nil
	}

	annotation := strings.Join(c.Args[1:], " ")
	if annotation == "" {
		delete(h.annotations, addr)
		h.printf("Annotation removed at $%04X.\n", addr)
	} else {
		h.annotations[addr] = annotation
		h.printf("Annotation added at $%04X.\n", addr)
	}
	return nil
}

func (h *Host) cmdAssembleFile(c selection) error {
	if len(c.Args) < 1 {
		h.displayHelpText(c.Command)
		return nil
	}

	filename := c.Args[0]
	if filepath.Ext(filename) == "" {
		filename += ".asm"
	}

	options := h.asmOptions()
	if len(c.Args) > 1 {
		if verbose, err := stringToBool(c.Args[1]); err == nil && verbose {
			options |= asm.Verbose
		}
	}

	binPath, mapPath, err := asm.AssembleFile(filename, options, h.output)
	h.flush()

	var asmErr *asm.Error
	switch {
	case errors.As(err, &asmErr):
		h.printf("Failed to assemble '%s'.\n", filepath.Base(filename))
		for _, m := range asmErr.Messages {
			h.println(m)
		}
		return nil
	case err != nil:
		h.printf("Failed to assemble '%s': %v\n", filepath.Base(filename), err)
		return nil
	}

	h.printf("Assembled '%s' to produce '%s' and '%s'.\n",
		filepath.Base(filename), filepath.Base(binPath), filepath.Base(mapPath))
	h.log.Logf("host", "assembled %s", filepath.Base(filename))
	return nil
}

func (h *Host) cmdAssembleInline(c selection) error {
	if len(c.Args) < 2 {
		h.displayHelpText(c.Command)
		return nil
	}

	addr, ok := h.parseAddrArg(c)
	if !ok {
		return nil
	}

	src := "\t" + strings.Join(c.Args[1:], " ")
	assembly, sourceMap, err := asm.Assemble(strings.NewReader(src), "inline", addr, nil, h.asmOptions())
	if err != nil {
		if len(assembly.Errors) == 0 {
			h.printf("%v\n", err)
		}
		for _, e := range assembly.Errors {
			h.println(e)
		}
		return nil
	}

	origin := sourceMap.Origin
	h.mem.StoreBytes(origin, assembly.Code)

	end := int(origin) + len(assembly.Code)
	for a := origin; int(a) < end; {
		d, next := h.disassemble(a, displayAnnotations)
		h.println(d)
		if next <= a {
			break
		}
		a = next
	}
	h.settings.NextDisasmAddr = uint16(end)
	return nil
}

// asmOptions returns assembler options matching the CPU's byte order.
func (h *Host) asmOptions() asm.Option {
	if h.settings.LittleEndian {
		return asm.LittleEndian
	}
	return 0
}

func (h *Host) cmdBreakpointList(c selection) error {
	h.println("Addr  Enabled  Hits")
	h.println("----- -------  ----")
	for _, b := range h.debugger.GetBreakpoints() {
		h.printf("$%04X %-5v    %d\n", b.Address, !b.Disabled, b.Hits)
	}
	return nil
}

func (h *Host) cmdBreakpointAdd(c selection) error {
	if addr, ok := h.parseAddrArg(c); ok {
		h.debugger.AddBreakpoint(addr)
		h.printf("Breakpoint added at $%04X.\n", addr)
	}
	return nil
}

func (h *Host) cmdBreakpointRemove(c selection) error {
	addr, ok := h.parseAddrArg(c)
	if !ok {
		return nil
	}

	if h.debugger.GetBreakpoint(addr) == nil {
		h.printf("No breakpoint was set on $%04X.\n", addr)
		return nil
	}

	h.debugger.RemoveBreakpoint(addr)
	h.printf("Breakpoint at $%04X removed.\n", addr)
	return nil
}

func (h *Host) cmdBreakpointEnable(c selection) error {
	h.enableBreakpoint(c, true)
	return nil
}

func (h *Host) cmdBreakpointDisable(c selection) error {
	h.enableBreakpoint(c, false)
	return nil
}

func (h *Host) enableBreakpoint(c selection, enable bool) {
	addr, ok := h.parseAddrArg(c)
	if !ok {
		return
	}

	b := h.debugger.GetBreakpoint(addr)
	if b == nil {
		h.printf("No breakpoint was set on $%04X.\n", addr)
		return
	}

	b.Disabled = !enable
	h.printf("Breakpoint at $%04X %s.\n", addr, enabledString(enable))
}

func (h *Host) cmdDataBreakpointList(c selection) error {
	h.println("Addr  Enabled  Value   Hits")
	h.println("----- -------  ------  ----")
	for _, b := range h.debugger.GetDataBreakpoints() {
		value := "<none>"
		if b.Conditional {
			value = fmt.Sprintf("$%02X", b.Value)
		}
		h.printf("$%04X %-5v    %-6s  %d\n", b.Address, !b.Disabled, value, b.Hits)
	}
	return nil
}

func (h *Host) cmdDataBreakpointAdd(c selection) error {
	addr, ok := h.parseAddrArg(c)
	if !ok {
		return nil
	}

	if len(c.Args) > 1 {
		value, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		h.debugger.AddConditionalDataBreakpoint(addr, byte(value))
		h.printf("Conditional data breakpoint added at $%04X for value $%02X.\n", addr, byte(value))
	} else {
		h.debugger.AddDataBreakpoint(addr)
		h.printf("Data breakpoint added at $%04X.\n", addr)
	}
	return nil
}

func (h *Host) cmdDataBreakpointRemove(c selection) error {
	addr, ok := h.parseAddrArg(c)
	if !ok {
		return nil
	}

	if h.debugger.GetDataBreakpoint(addr) == nil {
		h.printf("No data breakpoint was set on $%04X.\n", addr)
		return nil
	}

	h.debugger.RemoveDataBreakpoint(addr)
	h.printf("Data breakpoint at $%04X removed.\n", addr)
	return nil
}

func (h *Host) cmdDataBreakpointEnable(c selection) error {
	h.enableDataBreakpoint(c, true)
	return nil
}

func (h *Host) cmdDataBreakpointDisable(c selection) error {
	h.enableDataBreakpoint(c, false)
	return nil
}

func (h *Host) enableDataBreakpoint(c selection, enable bool) {
	addr, ok := h.parseAddrArg(c)
	if !ok {
		return
	}

	b := h.debugger.GetDataBreakpoint(addr)
	if b == nil {
		h.printf("No data breakpoint was set on $%04X.\n", addr)
		return
	}

	b.Disabled = !enable
	h.printf("Data breakpoint at $%04X %s.\n", addr, enabledString(enable))
}

func (h *Host) cmdDisassemble(c selection) error {
	addr := h.cpu.Reg.PC
	if len(c.Args) > 0 {
		switch c.Args[0] {
		case "$":
			addr = h.settings.NextDisasmAddr
		case ".":
			addr = h.cpu.Reg.PC
		default:
			a, err := h.parseExpr(c.Args[0])
			if err != nil {
				h.printf("%v\n", err)
				return nil
			}
			addr = a
		}
	}

	lines := h.parseCount(c, 1, h.settings.DisasmLines)
	for i := 0; i < lines; i++ {
		d, next := h.disassemble(addr, displayAnnotations)
		h.println(d)
		addr = next
	}

	h.settings.NextDisasmAddr = addr
	h.lastCmd.Args = []string{"$", strconv.Itoa(lines)}
	return nil
}

func (h *Host) cmdEval(c selection) error {
	if len(c.Args) < 1 {
		h.displayHelpText(c.Command)
		return nil
	}

	v, err := h.exprParser.Parse(strings.Join(c.Args, " "), h)
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	h.printf("$%04X (%d)\n", uint16(v), v)
	return nil
}

func (h *Host) cmdExecute(c selection) error {
	if len(c.Args) < 1 {
		h.displayHelpText(c.Command)
		return nil
	}

	file, err := os.Open(c.Args[0])
	if err != nil {
		h.printf("Failed to open '%s': %v\n", filepath.Base(c.Args[0]), err)
		return nil
	}
	defer file.Close()

	interactive, lastCmd := h.interactive, h.lastCmd
	h.interactive = false
	h.processCommands(newScanReader(file))
	h.interactive, h.lastCmd = interactive, lastCmd

	h.log.Logf("host", "executed %s", filepath.Base(c.Args[0]))
	return nil
}

func (h *Host) cmdExports(c selection) error {
	if h.sourceMap == nil || len(h.sourceMap.Exports) == 0 {
		h.println("No active exports.")
		return nil
	}
	for _, e := range h.sourceMap.Exports {
		h.printf("%-16s $%04X\n", e.Label, e.Address)
	}
	return nil
}

func (h *Host) cmdHelp(c selection) error {
	if err := cmds.GetHelp(h.output, c.Args); err != nil {
		h.printf("%v.\n", err)
	}
	h.flush()
	return nil
}

func (h *Host) cmdLoad(c selection) error {
	if len(c.Args) < 1 {
		h.displayHelpText(c.Command)
		return nil
	}

	filename := c.Args[0]
	if filepath.Ext(filename) == "" {
		filename += ".bin"
	}

	addr := -1
	if len(c.Args) > 1 {
		a, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		addr = int(a)
	}

	if err := h.load(filename, addr); err != nil {
		h.printf("Failed to load '%s': %v\n", filepath.Base(filename), err)
	}
	return nil
}

func (h *Host) cmdLog(c selection) error {
	if len(c.Args) > 0 {
		switch strings.ToLower(c.Args[0]) {
		case "clear":
			h.log.Clear()
			h.println("Log cleared.")
			return nil

		case "echo":
			if len(c.Args) < 2 {
				h.displayHelpText(c.Command)
				return nil
			}
			on, err := stringToBool(c.Args[1])
			if err != nil {
				h.printf("%v\n", err)
				return nil
			}
			if on {
				h.log.SetEcho(echoWriter{h})
				h.println("Log echo on.")
			} else {
				h.log.SetEcho(nil)
				h.println("Log echo off.")
			}
			return nil
		}
	}

	n := h.parseCount(c, 0, 20)
	if h.log.Len() == 0 {
		h.println("Log is empty.")
		return nil
	}
	h.log.Tail(h.output, n)
	h.flush()
	return nil
}

func (h *Host) cmdMemoryDump(c selection) error {
	addr := h.cpu.Reg.PC
	if len(c.Args) > 0 {
		switch c.Args[0] {
		case "$":
			addr = h.settings.NextMemDumpAddr
		case ".":
			addr = h.cpu.Reg.PC
		default:
			a, err := h.parseExpr(c.Args[0])
			if err != nil {
				h.printf("%v\n", err)
				return nil
			}
			addr = a
		}
	}

	bytes := uint16(h.parseCount(c, 1, h.settings.MemDumpBytes))
	h.dumpMemory(addr, bytes)

	h.settings.NextMemDumpAddr = addr + bytes
	h.lastCmd.Args = []string{"$", strconv.Itoa(int(bytes))}
	return nil
}

func (h *Host) cmdMemorySet(c selection) error {
	if len(c.Args) < 2 {
		h.displayHelpText(c.Command)
		return nil
	}

	addr, ok := h.parseAddrArg(c)
	if !ok {
		return nil
	}

	b := make([]byte, 0, len(c.Args)-1)
	for _, arg := range c.Args[1:] {
		v, err := h.parseExpr(arg)
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		b = append(b, byte(v))
	}

	h.mem.StoreBytes(addr, b)
	h.printf("Stored %d byte(s) at $%04X.\n", len(b), addr)
	return nil
}

func (h *Host) cmdMemoryClear(c selection) error {
	h.mem.Clear()
	h.println("Memory cleared.")
	h.log.Logf("host", "memory cleared")
	return nil
}

func (h *Host) cmdMemoryCopy(c selection) error {
	if len(c.Args) < 3 {
		h.displayHelpText(c.Command)
		return nil
	}

	var v [3]uint16
	for i := range v {
		var err error
		if v[i], err = h.parseExpr(c.Args[i]); err != nil {
			h.printf("%v\n", err)
			return nil
		}
	}
	dst, src, n := v[0], v[1], v[2]

	b := make([]byte, n)
	h.mem.LoadBytes(src, b)
	h.mem.StoreBytes(dst, b)
	h.printf("Copied %d byte(s) from $%04X to $%04X.\n", n, src, dst)
	return nil
}

func (h *Host) cmdQuit(c selection) error {
	h.exited = true
	return errQuit
}

func (h *Host) cmdRegister(c selection) error {
	switch len(c.Args) {
	case 0:
		d, _ := h.disassemble(h.cpu.Reg.PC, displayAll)
		h.println(d)
	case 1:
		h.displayHelpText(c.Command)
	default:
		v, err := h.exprParser.Parse(strings.Join(c.Args[1:], " "), h)
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		if !h.setRegister(c.Args[0], v) {
			h.printf("Register '%s' not found.\n", c.Args[0])
		}
	}
	return nil
}

func (h *Host) cmdScript(c selection) error {
	if len(c.Args) < 1 {
		h.displayHelpText(c.Command)
		return nil
	}

	if err := h.runScript(c.Args[0]); err != nil {
		h.printf("%v\n", err)
	}
	h.displayPC()
	return nil
}

func (h *Host) cmdSet(c selection) error {
	switch len(c.Args) {
	case 0:
		h.println("Variables:")
		h.settings.Display(h.output)
		h.flush()

	case 1:
		h.displayHelpText(c.Command)

	default:
		key, value := strings.ToLower(c.Args[0]), strings.Join(c.Args[1:], " ")
		v, errV := h.exprParser.Parse(value, h)
		if errV != nil {
			if b, err := stringToBool(value); err == nil {
				v, errV = int64(boolToInt(b)), nil
			}
		}

		// Setting a register?
		if errV == nil && h.setRegister(key, v) {
			return nil
		}

		// Setting a host setting?
		var err error
		switch h.settings.Kind(key) {
		case reflect.Invalid:
			err = fmt.Errorf("setting '%s' not found", key)
		case reflect.String:
			err = h.settings.Set(key, value)
		case reflect.Bool:
			var b bool
			b, err = stringToBool(value)
			if err == nil {
				err = h.settings.Set(key, b)
			}
		default:
			err = errV
			if err == nil {
				err = h.settings.Set(key, v)
			}
		}

		if err == nil {
			h.println("Setting updated.")
			h.log.Logf("host", "%s set to %s", h.settings.Name(key), value)
		} else {
			h.printf("%v\n", err)
		}

		h.onSettingsUpdate()
	}

	return nil
}

// setRegister assigns v to the named register or flag. It returns false
// if no register has that name.
func (h *Host) setRegister(name string, v int64) bool {
	reg := &h.cpu.Reg

	var flag *bool
	switch strings.ToLower(name) {
	case "a":
		reg.A = byte(v)
	case "x":
		reg.X = byte(v)
	case "y":
		reg.Y = byte(v)
	case "sp":
		reg.SP = byte(v)
	case ".", "pc":
		h.cpu.SetPC(uint16(v))
		h.printf("Register PC set to $%04X.\n", uint16(v))
		return true
	case "carry":
		flag = &reg.Carry
	case "zero":
		flag = &reg.Zero
	case "interrupt":
		flag = &reg.InterruptDisable
	case "decimal":
		flag = &reg.Decimal
	case "break":
		flag = &reg.Break
	case "overflow":
		flag = &reg.Overflow
	case "sign":
		flag = &reg.Sign
	default:
		return false
	}

	if flag != nil {
		*flag = intToBool(v)
		h.printf("Flag %s set to %v.\n", strings.ToUpper(name), *flag)
	} else {
		h.printf("Register %s set to $%02X.\n", strings.ToUpper(name), byte(v))
	}
	return true
}

// load stores a binary file in memory at addr and moves the program counter
// there. An addr of -1 loads the file at the origin recorded in its source
// map.
func (h *Host) load(filename string, addr int) error {
	b, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return errors.New("file is empty")
	}

	sourceMap, err := h.loadSourceMap(filename, b)
	if err != nil {
		return err
	}

	switch {
	case addr >= 0:
	case sourceMap != nil:
		addr = int(sourceMap.Origin)
	default:
		return errors.New("file has no source map and requires an address")
	}
	if addr+len(b) > 0x10000 {
		return fmt.Errorf("%d bytes do not fit at $%04X", len(b), addr)
	}

	origin := uint16(addr)
	h.mem.StoreBytes(origin, b)
	h.cpu.SetPC(origin)

	end := addr + len(b) - 1
	h.printf("Loaded '%s' to $%04X..$%04X\n", filepath.Base(filename), origin, end)
	h.log.Logf("host", "loaded %s to $%04X..$%04X", filepath.Base(filename), origin, end)

	if sourceMap != nil {
		h.sourceMap = sourceMap

		// Exports only describe the code when it sits at its origin.
		if origin == sourceMap.Origin {
			for _, e := range sourceMap.Exports {
				h.annotations[e.Address] = e.Label
			}
		}
		h.printf("Loaded source map with %d export(s).\n", len(sourceMap.Exports))
	}
	return nil
}

// loadSourceMap reads the source map stored next to a binary file. It
// returns nil if there is no map or the map describes different code.
func (h *Host) loadSourceMap(filename string, code []byte) (*asm.SourceMap, error) {
	mapFilename := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".map"
	file, err := os.Open(mapFilename)
	if err != nil {
		return nil, nil
	}
	defer file.Close()

	sourceMap := &asm.SourceMap{}
	if _, err := sourceMap.ReadFrom(file); err != nil {
		return nil, fmt.Errorf("bad source map '%s': %v", filepath.Base(mapFilename), err)
	}

	if sourceMap.Size != uint32(len(code)) || sourceMap.CRC != crc32.ChecksumIEEE(code) {
		h.printf("Ignoring source map '%s'; it does not match the binary.\n", filepath.Base(mapFilename))
		return nil, nil
	}
	return sourceMap, nil
}

func (h *Host) runScript(filename string) error {
	r := script.New(h.cpu, h.output, h.log)
	defer r.Close()
	defer h.flush()
	return r.RunFile(filename)
}

func (h *Host) onSettingsUpdate() {
	h.exprParser.hexMode = h.settings.HexMode
	h.cpu.Config = h.settings.Config()
}

func (h *Host) parseExpr(expr string) (uint16, error) {
	v, err := h.exprParser.Parse(expr, h)
	if err != nil {
		return 0, err
	}

	if v < 0 {
		v = 0x10000 + v
	}
	return uint16(v), nil
}

func (h *Host) disassemble(addr uint16, flags displayFlags) (str string, next uint16) {
	var line string
	line, next = disasm.Disassemble(h.cpu, addr)

	str = fmt.Sprintf("%04X-   %-8s    %-15s", addr, disasm.CodeString(h.cpu, addr), line)

	if (flags & displayRegisters) != 0 {
		str += " " + disasm.GetRegisterString(&h.cpu.Reg)
	}

	if (flags & displayCycles) != 0 {
		str += fmt.Sprintf(" C=%d", h.cpu.Cycles)
	}

	if (flags & displayAnnotations) != 0 {
		if anno, ok := h.annotations[addr]; ok {
			str += " ; " + anno
		}
	}

	return str, next
}

func (h *Host) dumpMemory(addr0, bytes uint16) {
	if bytes == 0 {
		return
	}

	addr1 := addr0 + bytes - 1
	if addr1 < addr0 {
		addr1 = 0xffff
	}

	buf := []byte("    -" + strings.Repeat(" ", 35))

	// Don't align display for short dumps.
	if addr1-addr0 < 8 {
		addrToBuf(addr0, buf[0:4])
		for a, c1, c2 := uint32(addr0), 6, 32; a <= uint32(addr1); a, c1, c2 = a+1, c1+3, c2+1 {
			m := h.mem.LoadByte(uint16(a))
			byteToBuf(m, buf[c1:c1+2])
			buf[c2] = toPrintableChar(m)
		}
		h.println(string(buf))
		return
	}

	// Align addr0 and addr1 to 8-byte boundaries.
	start := uint32(addr0) & 0xfff8
	stop := (uint32(addr1) + 8) & 0xffff8
	if stop > 0x10000 {
		stop = 0x10000
	}

	a := uint16(start)
	for r := start; r < stop; r += 8 {
		addrToBuf(a, buf[0:4])
		for c1, c2 := 6, 32; c1 < 29; c1, c2, a = c1+3, c2+1, a+1 {
			if a >= addr0 && a <= addr1 {
				m := h.mem.LoadByte(a)
				byteToBuf(m, buf[c1:c1+2])
				buf[c2] = toPrintableChar(m)
			} else {
				buf[c1] = ' '
				buf[c1+1] = ' '
				buf[c2] = ' '
			}
		}
		h.println(string(buf))
	}
}

func (h *Host) displayHelpText(c *cmd.Command) {
	if c.Usage == "" {
		h.println("<no help text>")
		return
	}
	c.DisplayUsage(h.output)
	h.flush()
}

// echoWriter writes echoed log entries to the host's current output.
type echoWriter struct {
	h *Host
}

func (w echoWriter) Write(p []byte) (int, error) {
	n, err := w.h.output.Write(p)
	w.h.flush()
	return n, err
}

func (h *Host) resolveIdentifier(s string) (int64, error) {
	reg := &h.cpu.Reg

	switch strings.ToLower(s) {
	case "a":
		return int64(reg.A), nil
	case "x":
		return int64(reg.X), nil
	case "y":
		return int64(reg.Y), nil
	case "sp":
		return int64(reg.SP) | 0x0100, nil
	case ".", "pc":
		return int64(reg.PC), nil
	case "ps", "status":
		return int64(reg.SavePS()), nil
	case "carry":
		return int64(boolToInt(reg.Carry)), nil
	case "zero":
		return int64(boolToInt(reg.Zero)), nil
	case "interrupt":
		return int64(boolToInt(reg.InterruptDisable)), nil
	case "decimal":
		return int64(boolToInt(reg.Decimal)), nil
	case "break":
		return int64(boolToInt(reg.Break)), nil
	case "overflow":
		return int64(boolToInt(reg.Overflow)), nil
	case "sign":
		return int64(boolToInt(reg.Sign)), nil
	case "cycles":
		return int64(h.cpu.Cycles), nil
	}

	return 0, fmt.Errorf("identifier '%s' not found", s)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func enabledString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
