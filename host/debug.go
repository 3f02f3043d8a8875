// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"github.com/beevik/go2a03/cpu"
	"github.com/beevik/go2a03/disasm"
)

type state byte

const (
	stateProcessingCommands state = iota
	stateRunning
	stateBreakpoint
	stateStepOverBreakpoint
	stateInterrupted
	stateTrapped
	stateStepLimit
)

// debugHandler receives breakpoint notifications from the CPU debugger
// and forwards them to the host.
type debugHandler struct {
	host *Host
}

func newDebugHandler(h *Host) *debugHandler {
	return &debugHandler{host: h}
}

func (d *debugHandler) OnBreakpoint(c *cpu.CPU, b *cpu.Breakpoint) {
	if !b.StepOver {
		d.host.log.Logf("debug", "breakpoint hit at $%04X", b.Address)
	}
	d.host.onBreakpoint(c, b)
}

func (d *debugHandler) OnDataBreakpoint(c *cpu.CPU, b *cpu.DataBreakpoint) {
	d.host.log.Logf("debug", "data breakpoint hit on $%04X by instruction at $%04X", b.Address, c.LastPC)
	d.host.onDataBreakpoint(c, b)
}

func (h *Host) onBreakpoint(c *cpu.CPU, b *cpu.Breakpoint) {
	if b.StepOver {
		h.state = stateStepOverBreakpoint
		return
	}

	h.state = stateBreakpoint
	h.printf("Breakpoint hit at $%04X.\n", b.Address)
	h.displayPC()
}

func (h *Host) onDataBreakpoint(c *cpu.CPU, b *cpu.DataBreakpoint) {
	h.state = stateBreakpoint
	h.printf("Data breakpoint hit on address $%04X.\n", b.Address)

	if c.LastPC != c.Reg.PC {
		d, _ := h.disassemble(c.LastPC, displayAll)
		h.println(d)
	}

	h.displayPC()
}

func (h *Host) startRunning() {
	h.steps = 0
	h.interrupt.Store(false)
	h.state = stateRunning
	h.running.Store(true)
}

func (h *Host) stopRunning() {
	h.running.Store(false)

	switch h.state {
	case stateInterrupted, stateTrapped, stateStepLimit:
		h.displayPC()
	}

	h.state = stateProcessingCommands
	h.settings.NextDisasmAddr = h.cpu.Reg.PC
}

// isRunning reports whether the CPU should keep executing. A pending
// Break request stops it.
func (h *Host) isRunning() bool {
	if h.state == stateRunning && h.interrupt.Swap(false) {
		h.state = stateInterrupted
		h.printf("Interrupted at $%04X.\n", h.cpu.Reg.PC)
		h.log.Logf("host", "interrupted at $%04X", h.cpu.Reg.PC)
	}
	return h.state == stateRunning
}

// step executes a single instruction. A trapping instruction stops the
// CPU without changing its state.
func (h *Host) step() {
	if h.settings.Trace {
		h.println(disasm.Trace(h.cpu))
	}

	if err := h.cpu.Step(); err != nil {
		h.state = stateTrapped
		h.printf("Trap: %v.\n", err)
		h.log.Logf("cpu", "%v", err)
	}
}

// runStep executes one instruction on behalf of a run, honoring the
// maximum step count.
func (h *Host) runStep() {
	if limit := h.settings.MaxRunSteps; limit > 0 && h.steps >= limit {
		h.state = stateStepLimit
		h.printf("Stopped after %d steps.\n", h.steps)
		h.log.Logf("host", "run stopped after %d steps", h.steps)
		return
	}

	h.step()
	h.steps++
}

func (h *Host) stepOver() {
	c := h.cpu

	// JSR instructions need to be handled specially.
	inst := c.GetInstruction(c.Reg.PC)
	if inst.Name != "JSR" {
		h.step()
		return
	}

	// Place a step-over breakpoint on the instruction following the JSR.
	// Either modify an already existing breakpoint on that instruction, or
	// create a temporary one.
	next := c.NextAddr(c.Reg.PC)
	tmpBreakpointCreated := false
	b := h.debugger.GetBreakpoint(next)
	if b == nil {
		b = h.debugger.AddBreakpoint(next)
		tmpBreakpointCreated = true
	}
	b.StepOver = true

	for h.isRunning() {
		h.runStep()
	}
	b.StepOver = false

	// If we were stopped by the step-over breakpoint, continue as normal.
	if h.state == stateStepOverBreakpoint {
		h.state = stateRunning
	}

	if tmpBreakpointCreated {
		h.debugger.RemoveBreakpoint(next)
	}
}

// stepOut runs until the current subroutine or interrupt handler returns.
// Nested calls made along the way are tracked so that only the matching
// return stops the CPU.
func (h *Host) stepOut() {
	depth := 0
	for h.isRunning() {
		name := h.cpu.GetInstruction(h.cpu.Reg.PC).Name
		h.runStep()
		if h.state != stateRunning {
			return
		}

		switch name {
		case "JSR", "BRK":
			depth++
		case "RTS", "RTI":
			if depth == 0 {
				return
			}
			depth--
		}
	}
}

func (h *Host) cmdRun(c selection) error {
	if len(c.Args) > 0 {
		pc, err := h.parseExpr(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		h.cpu.SetPC(pc)
	}

	h.printf("Running from $%04X. Press ctrl-C to break.\n", h.cpu.Reg.PC)

	h.startRunning()
	for h.isRunning() {
		h.runStep()
	}
	h.stopRunning()
	return nil
}

func (h *Host) cmdStepIn(c selection) error {
	count := h.parseCount(c, 0, 1)

	h.startRunning()
	for i := count - 1; i >= 0 && h.isRunning(); i-- {
		h.step()
		h.displayStep(i)
	}
	h.stopRunning()
	return nil
}

func (h *Host) cmdStepOver(c selection) error {
	count := h.parseCount(c, 0, 1)

	h.startRunning()
	for i := count - 1; i >= 0 && h.isRunning(); i-- {
		h.stepOver()
		h.displayStep(i)
	}
	h.stopRunning()
	return nil
}

func (h *Host) cmdStepOut(c selection) error {
	h.startRunning()
	h.stepOut()
	if h.state == stateRunning {
		h.displayPC()
	}
	h.stopRunning()
	return nil
}

// displayStep shows the result of a step when fewer than MaxStepLines
// steps remain.
func (h *Host) displayStep(remaining int) {
	if h.state != stateRunning {
		return
	}
	switch {
	case remaining == h.settings.MaxStepLines:
		h.println("...")
	case remaining < h.settings.MaxStepLines:
		h.displayPC()
	}
}
