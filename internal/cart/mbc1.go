package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC1 implements the banking scheme of spec.md §4.2: a 5-bit ROM bank
// register (0 remapped to 1) combined with a 2-bit register that, depending
// on the mode-select latch, either extends the ROM bank number or selects
// one of four 8 KiB RAM banks.
type MBC1 struct {
	rom []byte
	ram []byte

	romBankLow5       byte // lower 5 bits of ROM bank number (0->1 remapped)
	ramBankOrRomHigh2 byte // either RAM bank (mode1) or ROM bank high bits (mode0)
	ramEnabled        bool
	modeSelect        byte // 0: ROM banking (default), 1: RAM banking
}

func NewMBC1(rom []byte, ramSize int) *MBC1 {
	m := &MBC1{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBankLow5 = 1
	return m
}

func (m *MBC1) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if m.modeSelect == 0 {
			if int(addr) < len(m.rom) {
				return m.rom[addr]
			}
			return 0xFF
		}
		bank := int(m.ramBankOrRomHigh2&0x03) << 5
		off := bank*0x4000 + int(addr)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.effectiveROMBank())
		off := bank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		off := m.ramOffset(addr)
		return m.ram[off]
	default:
		return 0xFF
	}
}

func (m *MBC1) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		m.romBankLow5 = value & 0x1F
		if m.romBankLow5 == 0 {
			m.romBankLow5 = 1
		}
	case addr < 0x6000:
		m.ramBankOrRomHigh2 = value & 0x03
	case addr < 0x8000:
		m.modeSelect = value & 0x01
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		m.ram[m.ramOffset(addr)] = value
	}
}

// ramOffset resolves an external-RAM address to an offset in m.ram,
// applying the mode-1 bank select for carts with more than 8 KiB of RAM
// and the spec.md §4.2 modulo fallback for carts with 8 KiB or less (those
// carts have no second bank, so the bank-select bits are ignored and the
// single bank wraps on its own size instead).
func (m *MBC1) ramOffset(addr uint16) int {
	local := int(addr - 0xA000)
	if len(m.ram) <= 0x2000 {
		return local % len(m.ram)
	}
	bank := 0
	if m.modeSelect == 1 {
		bank = int(m.ramBankOrRomHigh2 & 0x03)
	}
	return (bank*0x2000 + local) % len(m.ram)
}

func (m *MBC1) effectiveROMBank() byte {
	if m.modeSelect != 0 {
		return m.romBankLow5 // mode 1: the 2-bit register selects the RAM bank
	}
	high := m.ramBankOrRomHigh2 & 0x03
	return m.romBankLow5 | (high << 5)
}

type mbc1State struct {
	RAM                               []byte
	RomBankLow5, RamBankOrRomHigh2    byte
	RamEnabled                        bool
	ModeSelect                        byte
}

// SaveState serializes banking registers and external RAM via gob.
func (m *MBC1) SaveState() []byte {
	var buf bytes.Buffer
	s := mbc1State{
		RAM: append([]byte(nil), m.ram...),
		RomBankLow5: m.romBankLow5, RamBankOrRomHigh2: m.ramBankOrRomHigh2,
		RamEnabled: m.ramEnabled, ModeSelect: m.modeSelect,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

// LoadState restores state previously produced by SaveState.
func (m *MBC1) LoadState(data []byte) {
	var s mbc1State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(s.RAM) == len(m.ram) {
		copy(m.ram, s.RAM)
	}
	m.romBankLow5, m.ramBankOrRomHigh2 = s.RomBankLow5, s.RamBankOrRomHigh2
	m.ramEnabled, m.modeSelect = s.RamEnabled, s.ModeSelect
}

// SaveRAM returns a copy of battery-backed external RAM for persistence.
func (m *MBC1) SaveRAM() []byte { return append([]byte(nil), m.ram...) }

// LoadRAM restores external RAM previously returned by SaveRAM.
func (m *MBC1) LoadRAM(data []byte) {
	if len(data) == len(m.ram) {
		copy(m.ram, data)
	}
}
