// Package bus wires the CPU-visible 16-bit address space to the cartridge,
// VRAM/WRAM/OAM/HRAM, and the I/O registers, and is the single point where
// every memory access is charged against the shared clock.
package bus

import (
	"bytes"
	"encoding/gob"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/ppu"
)

// Bus dispatches CPU reads/writes to cartridge, internal RAM, the PPU, and
// the timer/joypad/DMA peripherals, ticking all of them in lockstep.
type Bus struct {
	cart cart.Cartridge

	wram [0x2000]byte // C000-DFFF, echoed at E000-FDFF
	hram [0x7F]byte   // FF80-FFFE

	ppu *ppu.PPU

	ie    byte // FFFF
	ifReg byte // FF0F, low 5 bits

	joyp joypadState
	tmr  timerState
	dma  dmaState

	sb byte // FF01 serial data
	sc byte // FF02 serial control
	sw SerialWriter

	bootROM     []byte
	bootEnabled bool

	totalCycles uint64
}

// SerialWriter receives bytes written out over the (unconnected) serial
// port; used by test harnesses to capture blargg-style diagnostic output.
type SerialWriter interface {
	Write(p []byte) (n int, err error)
}

// New constructs a Bus around a ROM-only-or-banked cartridge built from rom.
func New(rom []byte) *Bus {
	return NewWithCartridge(cart.NewCartridge(rom))
}

// NewWithCartridge wires a pre-constructed cartridge implementation.
func NewWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c}
	b.ppu = ppu.New(func(bit int) { b.ifReg |= 1 << uint(bit) })
	b.joyp.reset()
	return b
}

// PPU exposes the pixel pipeline for rendering and save-state helpers.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// Cart exposes the cartridge for battery-RAM persistence.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// TotalCycles returns the number of T-cycles charged since reset.
func (b *Bus) TotalCycles() uint64 { return b.totalCycles }

// SetBootROM maps data over 0x0000-0x00FF until a write to FF50 disables it.
func (b *Bus) SetBootROM(data []byte) {
	b.bootROM = nil
	b.bootEnabled = false
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	}
}

// SetSerialWriter installs a sink for bytes written through SB/SC.
func (b *Bus) SetSerialWriter(w SerialWriter) { b.sw = w }

// Read implements the region dispatch of spec.md §4.1 and charges 4 T-cycles.
func (b *Bus) Read(addr uint16) byte {
	v := b.readNoTick(addr)
	b.Tick(4)
	return v
}

// Write implements the region dispatch of spec.md §4.1 and charges 4 T-cycles.
func (b *Bus) Write(addr uint16, value byte) {
	b.writeNoTick(addr, value)
	b.Tick(4)
}

// FetchOpcode reads the byte at the given address and charges the fetch's
// 4 T-cycles; PC advancement is the CPU's responsibility.
func (b *Bus) FetchOpcode(addr uint16) byte { return b.Read(addr) }

func (b *Bus) readNoTick(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		if b.dma.busy {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if b.dma.busy {
			return 0xFF
		}
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		if b.dma.busy {
			return 0xFF
		}
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		if b.dma.busy {
			return 0xFF
		}
		return b.wram[addr-0x2000-0xC000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dma.busy {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFF00:
		return b.joyp.read()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr == 0xFF04:
		return b.tmr.div()
	case addr == 0xFF05:
		return b.tmr.tima
	case addr == 0xFF06:
		return b.tmr.tma
	case addr == 0xFF07:
		return 0xF8 | (b.tmr.tac & 0x07)
	case addr == 0xFF0F:
		return 0xE0 | (b.ifReg & 0x1F)
	case addr == 0xFF46:
		return b.dma.reg
	case addr == 0xFF50:
		return 0xFF
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFFFF:
		return b.ie
	default:
		return 0xFF
	}
}

func (b *Bus) writeNoTick(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		if b.dma.busy {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if b.dma.busy {
			return
		}
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xDFFF:
		if b.dma.busy {
			return
		}
		b.wram[addr-0xC000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		if b.dma.busy {
			return
		}
		b.wram[addr-0x2000-0xC000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dma.busy {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// unusable region: writes dropped
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFF00:
		b.joyp.write(value)
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if (b.sc & 0x80) != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.ifReg |= 1 << 3
			b.sc &^= 0x80
		}
	case addr == 0xFF04:
		b.tmr.writeDIV()
	case addr == 0xFF05:
		b.tmr.writeTIMA(value)
	case addr == 0xFF06:
		b.tmr.tma = value
	case addr == 0xFF07:
		b.tmr.writeTAC(value)
	case addr == 0xFF0F:
		b.ifReg = value & 0x1F
	case addr == 0xFF46:
		b.startDMA(value)
	case addr == 0xFF50:
		if value != 0 {
			b.bootEnabled = false
		}
	case addr >= 0xFF40 && addr <= 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFFFF:
		b.ie = value
	}
}

// IE returns the raw interrupt-enable register (low 5 bits meaningful).
func (b *Bus) IE() byte { return b.ie }

// IF returns the raw pending-interrupt register (low 5 bits meaningful).
func (b *Bus) IF() byte { return b.ifReg }

// SetIF overwrites the pending-interrupt register; used by the interrupt
// controller to clear the bit it just dispatched.
func (b *Bus) SetIF(v byte) { b.ifReg = v & 0x1F }

// RaiseInterrupt sets a single IF bit (0:VBlank 1:STAT 2:Timer 3:Serial 4:Joypad).
func (b *Bus) RaiseInterrupt(bit int) { b.ifReg |= 1 << uint(bit) }

// Tick is the single tick sink: every bus access and every documented
// internal stall funnels through here, advancing the timer and then the
// PPU by the same number of T-cycles, in order.
func (b *Bus) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		b.totalCycles++
		if fired := b.tmr.tick(); fired {
			b.ifReg |= 1 << 2
		}
		b.ppu.Tick(1)
		b.stepDMA()
	}
}

// --- save state ---

type busState struct {
	WRAM   [0x2000]byte
	HRAM   [0x7F]byte
	IE, IF byte
	Joyp   joypadState
	Timer  timerState
	DMA    dmaState
	SB, SC byte
	BootEn bool
}

// SaveState serializes bus, PPU, and cartridge state via gob.
func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := busState{
		WRAM: b.wram, HRAM: b.hram,
		IE: b.ie, IF: b.ifReg,
		Joyp: b.joyp, Timer: b.tmr, DMA: b.dma,
		SB: b.sb, SC: b.sc, BootEn: b.bootEnabled,
	}
	_ = enc.Encode(s)
	_ = enc.Encode(b.ppu.SaveState())
	if sb, ok := b.cart.(interface{ SaveState() []byte }); ok {
		_ = enc.Encode(sb.SaveState())
	} else {
		_ = enc.Encode([]byte(nil))
	}
	return buf.Bytes()
}

// LoadState restores state previously produced by SaveState.
func (b *Bus) LoadState(data []byte) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var s busState
	if err := dec.Decode(&s); err != nil {
		return
	}
	b.wram, b.hram = s.WRAM, s.HRAM
	b.ie, b.ifReg = s.IE, s.IF
	b.joyp, b.tmr, b.dma = s.Joyp, s.Timer, s.DMA
	b.sb, b.sc, b.bootEnabled = s.SB, s.SC, s.BootEn

	var ps []byte
	if err := dec.Decode(&ps); err == nil {
		b.ppu.LoadState(ps)
	}
	var cs []byte
	if err := dec.Decode(&cs); err == nil {
		if lb, ok := b.cart.(interface{ LoadState([]byte) }); ok {
			lb.LoadState(cs)
		}
	}
}
