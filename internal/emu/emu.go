// Package emu assembles the CPU, bus, cartridge, and PPU into the runnable
// machine the UI and CLI drive: load a ROM, step whole frames, and read back
// the framebuffer and battery RAM.
package emu

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/bus"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cpu"
)

// Buttons is the 8-key DMG input state for one frame.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

func (b Buttons) mask() byte {
	var m byte
	if b.Right {
		m |= bus.ButtonRight
	}
	if b.Left {
		m |= bus.ButtonLeft
	}
	if b.Up {
		m |= bus.ButtonUp
	}
	if b.Down {
		m |= bus.ButtonDown
	}
	if b.A {
		m |= bus.ButtonA
	}
	if b.B {
		m |= bus.ButtonB
	}
	if b.Select {
		m |= bus.ButtonSelect
	}
	if b.Start {
		m |= bus.ButtonStart
	}
	return m
}

// dmgShades maps the PPU's 2-bit color indices to the classic four-shade
// DMG palette, lightest first, as opaque RGBA.
var dmgShades = [4][4]byte{
	{0xE0, 0xF8, 0xD0, 0xFF},
	{0x88, 0xC0, 0x70, 0xFF},
	{0x34, 0x68, 0x56, 0xFF},
	{0x08, 0x18, 0x20, 0xFF},
}

// Machine owns a CPU wired to a bus, cartridge, and PPU, and exposes the
// frame/input/persistence surface the UI and CLI need.
type Machine struct {
	cfg Config

	bus *bus.Bus
	cpu *cpu.CPU

	romPath string
	bootROM []byte

	fb [160 * 144 * 4]byte
}

// New constructs a Machine with no cartridge loaded; LoadCartridge or
// LoadROMFromFile must be called before StepFrame does anything useful.
func New(cfg Config) *Machine {
	m := &Machine{cfg: cfg}
	m.bus = bus.New(make([]byte, 0x8000))
	m.cpu = cpu.New(m.bus)
	m.cpu.ResetNoBoot()
	return m
}

// SetBootROM installs a DMG boot ROM image to run from 0x0000 on the next
// LoadCartridge/reset, ahead of the post-boot register defaults.
func (m *Machine) SetBootROM(boot []byte) {
	if len(boot) < 0x100 {
		return
	}
	m.bootROM = append([]byte(nil), boot...)
	m.bus.SetBootROM(m.bootROM)
}

// LoadCartridge replaces the machine's cartridge with one built from rom and
// resets the CPU: through the boot ROM at 0x0000 if one is installed (either
// passed here or via a prior SetBootROM), or directly to DMG post-boot state
// otherwise.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	h, err := cart.ParseHeader(rom)
	if err != nil {
		return fmt.Errorf("parse rom header: %w", err)
	}
	if h.CartType > 0x03 {
		return fmt.Errorf("unsupported cartridge type %#02x (%s)", h.CartType, h.CartTypeStr)
	}
	m.bus = bus.NewWithCartridge(cart.NewCartridge(rom))
	if len(boot) >= 0x100 {
		m.bootROM = append([]byte(nil), boot...)
	}
	if len(m.bootROM) >= 0x100 {
		m.bus.SetBootROM(m.bootROM)
	}
	m.cpu = cpu.New(m.bus)
	if len(m.bootROM) >= 0x100 {
		m.cpu.SetPC(0x0000)
	} else {
		m.cpu.ResetNoBoot()
	}
	return nil
}

// LoadROMFromFile reads path and loads it as the active cartridge, recording
// the path for battery-RAM sidecar naming and window-title display.
func (m *Machine) LoadROMFromFile(path string) error {
	rom, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rom: %w", err)
	}
	if err := m.LoadCartridge(rom, nil); err != nil {
		return err
	}
	if abs, err := filepath.Abs(path); err == nil {
		m.romPath = abs
	} else {
		m.romPath = path
	}
	return nil
}

// ROMPath returns the absolute form of the path LoadROMFromFile was last
// called with, or "" if LoadROMFromFile has not been called.
func (m *Machine) ROMPath() string { return m.romPath }

// LoadBattery restores a cartridge's external RAM from a .sav-style blob.
// Reports false if the cartridge has no battery-backed RAM to load into.
func (m *Machine) LoadBattery(data []byte) bool {
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	return true
}

// SaveBattery returns the cartridge's external RAM for .sav persistence.
// Reports false if the cartridge has no battery-backed RAM.
func (m *Machine) SaveBattery() ([]byte, bool) {
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	return bb.SaveRAM(), true
}

// SetButtons updates the joypad state sampled on the next CPU steps.
func (m *Machine) SetButtons(b Buttons) { m.bus.SetJoypadState(b.mask()) }

// StepFrame runs the CPU until the PPU reports a freshly completed frame,
// then refreshes the RGBA framebuffer.
func (m *Machine) StepFrame() {
	start := m.bus.PPU().FrameCount()
	for m.bus.PPU().FrameCount() == start {
		if m.cfg.Trace {
			fmt.Fprintf(os.Stderr, "PC=%04X\n", m.cpu.PC)
		}
		m.cpu.Step()
	}
	m.renderFramebuffer()
}

func (m *Machine) renderFramebuffer() {
	src := m.bus.PPU().Frame()
	for i, idx := range src {
		shade := dmgShades[idx&0x03]
		copy(m.fb[i*4:i*4+4], shade[:])
	}
}

// Framebuffer returns the most recently rendered 160x144 RGBA frame.
func (m *Machine) Framebuffer() []byte { return m.fb[:] }

// SaveStateToFile writes a full machine save-state (CPU, then bus/PPU/
// cartridge) to path, each gob blob length-prefixed so LoadStateFromFile can
// split them back apart.
func (m *Machine) SaveStateToFile(path string) error {
	cpuBlob := m.cpu.SaveState()
	busBlob := m.bus.SaveState()

	var out []byte
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(cpuBlob)))
	out = append(out, lenBuf[:]...)
	out = append(out, cpuBlob...)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(busBlob)))
	out = append(out, lenBuf[:]...)
	out = append(out, busBlob...)
	return os.WriteFile(path, out, 0644)
}

// LoadStateFromFile restores a save-state previously written by
// SaveStateToFile.
func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) < 4 {
		return fmt.Errorf("save state truncated")
	}
	cpuLen := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < cpuLen {
		return fmt.Errorf("save state truncated")
	}
	cpuBlob := data[:cpuLen]
	data = data[cpuLen:]

	if len(data) < 4 {
		return fmt.Errorf("save state truncated")
	}
	busLen := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < busLen {
		return fmt.Errorf("save state truncated")
	}
	busBlob := data[:busLen]

	m.cpu.LoadState(cpuBlob)
	m.bus.LoadState(busBlob)
	return nil
}
