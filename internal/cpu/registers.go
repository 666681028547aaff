// Package cpu implements the Sharp SM83 instruction interpreter of
// spec.md §3-§4.5: an 8-register file (with a synthetic 8th slot for the
// `[HL]` addressing mode), a table-driven decoder built once from the
// opcode grid's (x,y,z) structure, and the HALT/interrupt state machine.
package cpu

import (
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/bus"
)

// register file indices, matching the SM83 encoding order used throughout
// the primary and CB-prefixed opcode tables.
const (
	regB = iota
	regC
	regD
	regE
	regH
	regL
	regHLInd // synthetic 8th register: reads/writes go through (HL)
	regA
)

// register-pair indices for LD rp,d16 / INC rp / DEC rp / ADD HL,rp.
const (
	rpBC = iota
	rpDE
	rpHL
	rpSP
)

// register-pair indices for PUSH/POP, which use AF instead of SP.
const (
	rp2BC = iota
	rp2DE
	rp2HL
	rp2AF
)

// condition codes for JR/JP/CALL/RET cc.
const (
	condNZ = iota
	condZ
	condNC
	condC
)

const (
	flagZ byte = 1 << 7
	flagN byte = 1 << 6
	flagH byte = 1 << 5
	flagC byte = 1 << 4
)

// CPU holds the SM83 register file and drives the fetch/decode/execute
// loop against a Bus, which is the single point charging T-cycles.
type CPU struct {
	A, F byte
	B, C byte
	D, E byte
	H, L byte

	SP uint16
	PC uint16

	IME       bool
	halted    bool
	haltBug   bool
	eiPending bool

	bus *bus.Bus
}

// New creates a CPU wired to b with SP initialized as on real hardware
// after the boot ROM hands off, and PC at 0 (a boot ROM or ResetNoBoot
// caller is expected to set the real entry state).
func New(b *bus.Bus) *CPU {
	return &CPU{bus: b, SP: 0xFFFE, PC: 0x0000}
}

// SetPC allows a boot stub or test harness to set the program counter.
func (c *CPU) SetPC(pc uint16) { c.PC = pc }

// Bus exposes the underlying bus for tools and tests.
func (c *CPU) Bus() *bus.Bus { return c.bus }

// ResetNoBoot sets registers to the documented DMG post-boot-ROM state,
// for running cartridges without a boot ROM image.
func (c *CPU) ResetNoBoot() {
	c.A, c.F = 0x01, 0xB0
	c.B, c.C = 0x00, 0x13
	c.D, c.E = 0x00, 0xD8
	c.H, c.L = 0x01, 0x4D
	c.SP = 0xFFFE
	c.PC = 0x0100
	c.IME = false
	c.halted = false
	c.haltBug = false
	c.eiPending = false
}

func (c *CPU) flag(f byte) bool { return c.F&f != 0 }

func (c *CPU) setFlags(z, n, h, cy bool) {
	var f byte
	if z {
		f |= flagZ
	}
	if n {
		f |= flagN
	}
	if h {
		f |= flagH
	}
	if cy {
		f |= flagC
	}
	c.F = f
}

func (c *CPU) getAF() uint16  { return uint16(c.A)<<8 | uint16(c.F&0xF0) }
func (c *CPU) setAF(v uint16) { c.A = byte(v >> 8); c.F = byte(v) & 0xF0 }
func (c *CPU) getBC() uint16  { return uint16(c.B)<<8 | uint16(c.C) }
func (c *CPU) setBC(v uint16) { c.B = byte(v >> 8); c.C = byte(v) }
func (c *CPU) getDE() uint16  { return uint16(c.D)<<8 | uint16(c.E) }
func (c *CPU) setDE(v uint16) { c.D = byte(v >> 8); c.E = byte(v) }
func (c *CPU) getHL() uint16  { return uint16(c.H)<<8 | uint16(c.L) }
func (c *CPU) setHL(v uint16) { c.H = byte(v >> 8); c.L = byte(v) }

func (c *CPU) getRP(idx byte) uint16 {
	switch idx {
	case rpBC:
		return c.getBC()
	case rpDE:
		return c.getDE()
	case rpHL:
		return c.getHL()
	default:
		return c.SP
	}
}

func (c *CPU) setRP(idx byte, v uint16) {
	switch idx {
	case rpBC:
		c.setBC(v)
	case rpDE:
		c.setDE(v)
	case rpHL:
		c.setHL(v)
	default:
		c.SP = v
	}
}

func (c *CPU) getRP2(idx byte) uint16 {
	switch idx {
	case rp2BC:
		return c.getBC()
	case rp2DE:
		return c.getDE()
	case rp2HL:
		return c.getHL()
	default:
		return c.getAF()
	}
}

func (c *CPU) setRP2(idx byte, v uint16) {
	switch idx {
	case rp2BC:
		c.setBC(v)
	case rp2DE:
		c.setDE(v)
	case rp2HL:
		c.setHL(v)
	default:
		c.setAF(v)
	}
}

// get8/set8 access the 8-register file, routing index 6 ([HL]) through a
// bus access (which self-ticks 4 T-cycles, same as any other memory op).
func (c *CPU) get8(idx byte) byte {
	switch idx {
	case regB:
		return c.B
	case regC:
		return c.C
	case regD:
		return c.D
	case regE:
		return c.E
	case regH:
		return c.H
	case regL:
		return c.L
	case regHLInd:
		return c.bus.Read(c.getHL())
	default:
		return c.A
	}
}

func (c *CPU) set8(idx byte, v byte) {
	switch idx {
	case regB:
		c.B = v
	case regC:
		c.C = v
	case regD:
		c.D = v
	case regE:
		c.E = v
	case regH:
		c.H = v
	case regL:
		c.L = v
	case regHLInd:
		c.bus.Write(c.getHL(), v)
	default:
		c.A = v
	}
}

func (c *CPU) checkCond(cc byte) bool {
	switch cc {
	case condNZ:
		return !c.flag(flagZ)
	case condZ:
		return c.flag(flagZ)
	case condNC:
		return !c.flag(flagC)
	default:
		return c.flag(flagC)
	}
}

func (c *CPU) fetch8() byte {
	v := c.bus.FetchOpcode(c.PC)
	if !c.haltBug {
		c.PC++
	}
	c.haltBug = false
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := uint16(c.fetch8())
	hi := uint16(c.fetch8())
	return lo | hi<<8
}

func (c *CPU) push16(v uint16) {
	c.SP--
	c.bus.Write(c.SP, byte(v>>8))
	c.SP--
	c.bus.Write(c.SP, byte(v))
}

func (c *CPU) pop16() uint16 {
	lo := uint16(c.bus.Read(c.SP))
	c.SP++
	hi := uint16(c.bus.Read(c.SP))
	c.SP++
	return lo | hi<<8
}
