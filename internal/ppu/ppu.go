// Package ppu implements the four-mode scanline pixel pipeline of
// spec.md §4.6: OAM scan, background/window/sprite pixel fetch and
// composition, and the mode/LY/STAT/LYC state machine that drives VBlank
// and STAT interrupts.
package ppu

import (
	"bytes"
	"encoding/gob"
)

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT, etc.).
type InterruptRequester func(bit int)

const (
	screenW = 160
	screenH = 144

	oamScanDots   = 80
	transferDots  = 172
	lineDots      = 456
	lastVisibleLn = 143
	lastScanline  = 153
)

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, scroll/window/palette regs,
// and the completed 160x144 frame buffer of 2-bit color indices.
type PPU struct {
	// memory
	vram [0x2000]byte // 0x8000-0x9FFF
	oam  [0xA0]byte   // 0xFE00-0xFE9F

	// regs
	lcdc byte // FF40
	stat byte // FF41 (mode bits 0-1, coincidence flag bit2, enables bits3-6)
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	dot int // dots within current line [0..455]

	windowLine   int  // internal window-line counter, advances only on lines that draw the window
	renderedLine bool // whether renderScanline already ran for the current line
	spriteBuf    []spriteEntry

	frame      [screenW * screenH]byte
	frameCount uint64

	req InterruptRequester
}

func New(req InterruptRequester) *PPU { return &PPU{req: req} }

// Frame returns the most recently completed 160x144 buffer of color
// indices in {0,1,2,3}, row-major.
func (p *PPU) Frame() []byte { return p.frame[:] }

// FrameCount returns how many frames have been completed since reset.
func (p *PPU) FrameCount() uint64 { return p.frameCount }

func (p *PPU) mode() byte { return p.stat & 0x03 }

// CPURead returns bytes for VRAM, OAM, and PPU IO registers. Returns 0xFF for others.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.mode() == 3 {
			return 0xFF
		}
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if m := p.mode(); m == 2 || m == 3 {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM, OAM, and PPU IO regs.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.mode() == 3 {
			return
		}
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if m := p.mode(); m == 2 || m == 3 {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if (p.lcdc&0x80) == 0 && (prev&0x80) != 0 {
			p.ly, p.dot = 0, 0
			p.setMode(0)
			p.updateLYC()
		} else if (p.lcdc&0x80) != 0 && (prev&0x80) == 0 {
			p.ly, p.dot = 0, 0
			p.windowLine = 0
			p.setMode(2)
			p.scanOAM()
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		p.ly, p.dot = 0, 0
		p.updateLYC()
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

// Tick advances PPU state by the given number of dots (T-cycles).
func (p *PPU) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		p.tickOne()
	}
}

func (p *PPU) tickOne() {
	if (p.lcdc & 0x80) == 0 {
		return
	}

	if p.ly <= lastVisibleLn {
		switch p.dot {
		case 0:
			p.setMode(2)
			p.scanOAM()
		case oamScanDots:
			p.setMode(3)
		case oamScanDots + transferDots:
			if !p.renderedLine {
				p.renderScanline()
				p.renderedLine = true
			}
			p.setMode(0)
		}
	}

	p.dot++
	if p.dot >= lineDots {
		p.dot = 0
		p.renderedLine = false
		p.ly++
		if p.ly == lastVisibleLn+1 {
			p.setMode(1) // raises the STAT mode-1 interrupt itself if enabled
			p.req(0)     // VBlank
		} else if p.ly > lastScanline {
			p.ly = 0
			p.windowLine = 0
			p.frameCount++
		}
		p.updateLYC()
	}

	// Transitions apply on the tick that reaches their first dot, so the
	// mode always matches the current dot; the OAM scan result is taken
	// when mode 2 ends.
	if p.ly <= lastVisibleLn {
		switch {
		case p.dot < oamScanDots:
			if p.mode() != 2 {
				p.setMode(2)
			}
		case p.dot == oamScanDots:
			p.scanOAM()
			p.setMode(3)
		case p.dot == oamScanDots+transferDots:
			if !p.renderedLine {
				p.renderScanline()
				p.renderedLine = true
			}
			p.setMode(0)
		}
	}
}

func (p *PPU) setMode(mode byte) {
	if p.mode() == mode {
		return
	}
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	var enableBit byte
	switch mode {
	case 0:
		enableBit = 1 << 3
	case 1:
		enableBit = 1 << 4
	case 2:
		enableBit = 1 << 5
	default:
		return
	}
	if (p.stat & enableBit) != 0 {
		p.req(1)
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if (p.stat & (1 << 6)) != 0 {
			p.req(1)
		}
	} else {
		p.stat &^= 1 << 2
	}
}

// Expose palettes, scroll, and window regs for the fetcher/composer.
func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }
func (p *PPU) LY() byte   { return p.ly }

// Read implements VRAMReader for the fetcher/sprite helpers; rendering
// always sees true VRAM contents, independent of CPU-side mode gating.
func (p *PPU) Read(addr uint16) byte {
	if addr >= 0x8000 && addr <= 0x9FFF {
		return p.vram[addr-0x8000]
	}
	return 0xFF
}

// ReadOAM exposes raw OAM bytes to the sprite scanner.
func (p *PPU) ReadOAM(addr uint16) byte {
	if addr < 0xA0 {
		return p.oam[addr]
	}
	return 0xFF
}

// --- save state ---

type ppuState struct {
	VRAM                          [0x2000]byte
	OAM                           [0xA0]byte
	LCDC, STAT, SCY, SCX, LY, LYC byte
	BGP, OBP0, OBP1, WY, WX       byte
	Dot, WindowLine               int
	FrameCount                    uint64
}

// SaveState serializes PPU registers and memory via gob.
func (p *PPU) SaveState() []byte {
	var buf bytes.Buffer
	s := ppuState{
		VRAM: p.vram, OAM: p.oam,
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx, LY: p.ly, LYC: p.lyc,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1, WY: p.wy, WX: p.wx,
		Dot: p.dot, WindowLine: p.windowLine, FrameCount: p.frameCount,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

// LoadState restores state previously produced by SaveState.
func (p *PPU) LoadState(data []byte) {
	var s ppuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	p.vram, p.oam = s.VRAM, s.OAM
	p.lcdc, p.stat, p.scy, p.scx, p.ly, p.lyc = s.LCDC, s.STAT, s.SCY, s.SCX, s.LY, s.LYC
	p.bgp, p.obp0, p.obp1, p.wy, p.wx = s.BGP, s.OBP0, s.OBP1, s.WY, s.WX
	p.dot, p.windowLine, p.frameCount = s.Dot, s.WindowLine, s.FrameCount
}
