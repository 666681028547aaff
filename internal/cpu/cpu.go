package cpu

import (
	"bytes"
	"encoding/gob"
)

// Step executes exactly one interpreter step per spec.md §4.5: HALT
// handling, interrupt dispatch, fetch, decode/execute, and the deferred-EI
// promotion, in that order.
func (c *CPU) Step() {
	if c.halted {
		c.bus.Tick(4)
		if c.pendingInterrupt() < 0 {
			return
		}
		c.halted = false
		if c.IME {
			c.serviceInterrupt()
			return
		}
		// IME=0: halt exits and this same step falls through to execute
		// the next instruction normally.
	} else if c.IME {
		if c.serviceInterrupt() {
			return
		}
	}

	op := c.fetch8()
	if op == 0xCB {
		cb := c.fetch8()
		cbTable[cb](c)
	} else {
		primaryTable[op](c)
	}

	if op != 0xFB && c.eiPending {
		c.IME = true
		c.eiPending = false
	}
}

type cpuState struct {
	A, F, B, C, D, E, H, L byte
	SP, PC                 uint16
	IME, Halted, HaltBug   bool
	EIPending              bool
}

// SaveState serializes the register file via gob; the Bus/PPU/cartridge
// own the rest of a machine save-state.
func (c *CPU) SaveState() []byte {
	var buf bytes.Buffer
	s := cpuState{
		A: c.A, F: c.F, B: c.B, C: c.C, D: c.D, E: c.E, H: c.H, L: c.L,
		SP: c.SP, PC: c.PC,
		IME: c.IME, Halted: c.halted, HaltBug: c.haltBug, EIPending: c.eiPending,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

// LoadState restores state previously produced by SaveState.
func (c *CPU) LoadState(data []byte) {
	var s cpuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	c.A, c.F, c.B, c.C, c.D, c.E, c.H, c.L = s.A, s.F, s.B, s.C, s.D, s.E, s.H, s.L
	c.SP, c.PC = s.SP, s.PC
	c.IME, c.halted, c.haltBug, c.eiPending = s.IME, s.Halted, s.HaltBug, s.EIPending
}
