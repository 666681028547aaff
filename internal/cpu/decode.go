package cpu

// opFunc executes one decoded instruction body (the opcode byte itself has
// already been fetched and charged). Each opFunc is responsible for any
// further bus accesses (which self-tick) and for charging internal-only
// stalls explicitly via c.bus.Tick, per spec.md's cycle-accounting model.
type opFunc func(c *CPU)

var primaryTable [256]opFunc
var cbTable [256]opFunc

func init() {
	buildPrimaryTable()
	buildCBTable()
}

// buildPrimaryTable constructs the 256-entry dispatch table from the
// opcode grid's well-known (x,y,z) = (op>>6, (op>>3)&7, op&7) structure,
// generalizing the teacher's literal opcode switch into the regular grids
// Design Notes §9 describes, with irregular slots patched in individually.
func buildPrimaryTable() {
	for op := 0; op < 256; op++ {
		primaryTable[op] = decodeOne(byte(op))
	}
}

func decodeOne(op byte) opFunc {
	x := op >> 6
	y := (op >> 3) & 7
	z := op & 7

	switch x {
	case 0:
		return decodeX0(op, y, z)
	case 1:
		if op == 0x76 {
			return opHALT
		}
		return opLDrr(y, z)
	case 2:
		return opALUreg(y, z)
	default:
		return decodeX3(op, y, z)
	}
}

func decodeX0(op, y, z byte) opFunc {
	switch z {
	case 0:
		switch y {
		case 0:
			return opNOP
		case 1:
			return opLDa16SP
		case 2:
			return opSTOP
		case 3:
			return opJRd8
		default:
			return opJRccD8(y - 4)
		}
	case 1:
		if y%2 == 0 {
			return opLDrpD16(y / 2)
		}
		return opADDHLrp(y / 2)
	case 2:
		return opLDAIndirect(y)
	case 3:
		if y%2 == 0 {
			return opINCrp(y / 2)
		}
		return opDECrp(y / 2)
	case 4:
		return opINCr(y)
	case 5:
		return opDECr(y)
	case 6:
		return opLDrD8(y)
	default: // z == 7
		return accumulatorOps[y]
	}
}

var accumulatorOps = [8]opFunc{opRLCA, opRRCA, opRLA, opRRA, opDAA, opCPL, opSCF, opCCF}

func opLDrr(y, z byte) opFunc {
	return func(c *CPU) {
		c.set8(y, c.get8(z))
	}
}

func opALUreg(y, z byte) opFunc {
	return func(c *CPU) { c.aluOp(y, c.get8(z)) }
}

func decodeX3(op, y, z byte) opFunc {
	switch z {
	case 0:
		switch {
		case y < 4:
			return opRETcc(y)
		case y == 4:
			return opLDHa8A
		case y == 5:
			return opADDSPr8
		case y == 6:
			return opLDHAa8
		default:
			return opLDHLSPr8
		}
	case 1:
		if y%2 == 0 {
			return opPOPrp2(y / 2)
		}
		switch y / 2 {
		case 0:
			return opRET
		case 1:
			return opRETI
		case 2:
			return opJPHL
		default:
			return opLDSPHL
		}
	case 2:
		switch {
		case y < 4:
			return opJPccA16(y)
		case y == 4:
			return opLDCIndA
		case y == 5:
			return opLDa16A
		case y == 6:
			return opLDACIndOp
		default:
			return opLDAa16
		}
	case 3:
		switch op {
		case 0xC3:
			return opJPA16
		case 0xF3:
			return opDI
		case 0xFB:
			return opEI
		default:
			return opInvalid
		}
	case 4:
		if y < 4 {
			return opCALLcc(y)
		}
		return opInvalid
	case 5:
		if y%2 == 0 {
			return opPUSHrp2(y / 2)
		}
		if y == 1 {
			return opCALLA16
		}
		return opInvalid
	case 6:
		return opALUimm(y)
	default: // z == 7
		return opRST(y * 8)
	}
}

// --- x==0 column bodies ---

func opNOP(c *CPU) {}

func opLDa16SP(c *CPU) {
	addr := c.fetch16()
	c.bus.Write(addr, byte(c.SP))
	c.bus.Write(addr+1, byte(c.SP>>8))
}

func opSTOP(c *CPU) { c.fetch8() } // low-power mode not modeled; consume the padding byte

func opJRd8(c *CPU) {
	off := int8(c.fetch8())
	c.bus.Tick(4)
	c.PC = uint16(int32(c.PC) + int32(off))
}

func opJRccD8(cc byte) opFunc {
	return func(c *CPU) {
		off := int8(c.fetch8())
		if c.checkCond(cc) {
			c.bus.Tick(4)
			c.PC = uint16(int32(c.PC) + int32(off))
		}
	}
}

func opLDrpD16(rp byte) opFunc {
	return func(c *CPU) { c.setRP(rp, c.fetch16()) }
}

func opADDHLrp(rp byte) opFunc {
	return func(c *CPU) {
		hl := c.getHL()
		v := c.getRP(rp)
		r := uint32(hl) + uint32(v)
		h := (hl&0x0FFF)+(v&0x0FFF) > 0x0FFF
		c.bus.Tick(4)
		c.setHL(uint16(r))
		c.setFlags(c.flag(flagZ), false, h, r > 0xFFFF)
	}
}

func opLDAIndirect(y byte) opFunc {
	return func(c *CPU) {
		switch y {
		case 0:
			c.bus.Write(c.getBC(), c.A)
		case 1:
			c.A = c.bus.Read(c.getBC())
		case 2:
			c.bus.Write(c.getDE(), c.A)
		case 3:
			c.A = c.bus.Read(c.getDE())
		case 4:
			hl := c.getHL()
			c.bus.Write(hl, c.A)
			c.setHL(hl + 1)
		case 5:
			hl := c.getHL()
			c.A = c.bus.Read(hl)
			c.setHL(hl + 1)
		case 6:
			hl := c.getHL()
			c.bus.Write(hl, c.A)
			c.setHL(hl - 1)
		default:
			hl := c.getHL()
			c.A = c.bus.Read(hl)
			c.setHL(hl - 1)
		}
	}
}

func opINCrp(rp byte) opFunc {
	return func(c *CPU) {
		c.bus.Tick(4)
		c.setRP(rp, c.getRP(rp)+1)
	}
}

func opDECrp(rp byte) opFunc {
	return func(c *CPU) {
		c.bus.Tick(4)
		c.setRP(rp, c.getRP(rp)-1)
	}
}

func opINCr(y byte) opFunc {
	return func(c *CPU) {
		old := c.get8(y)
		v := old + 1
		c.set8(y, v)
		c.setFlags(v == 0, false, old&0x0F == 0x0F, c.flag(flagC))
	}
}

func opDECr(y byte) opFunc {
	return func(c *CPU) {
		old := c.get8(y)
		v := old - 1
		c.set8(y, v)
		c.setFlags(v == 0, true, old&0x0F == 0x00, c.flag(flagC))
	}
}

func opLDrD8(y byte) opFunc {
	return func(c *CPU) { c.set8(y, c.fetch8()) }
}

func opRLCA(c *CPU) {
	cy := c.A&0x80 != 0
	c.A = c.A<<1 | b2u(cy)
	c.setFlags(false, false, false, cy)
}
func opRRCA(c *CPU) {
	cy := c.A&0x01 != 0
	c.A = c.A>>1 | b2u(cy)<<7
	c.setFlags(false, false, false, cy)
}
func opRLA(c *CPU) {
	cy := c.A&0x80 != 0
	c.A = c.A<<1 | b2u(c.flag(flagC))
	c.setFlags(false, false, false, cy)
}
func opRRA(c *CPU) {
	cy := c.A&0x01 != 0
	c.A = c.A>>1 | b2u(c.flag(flagC))<<7
	c.setFlags(false, false, false, cy)
}

func opDAA(c *CPU) {
	a := c.A
	cf := c.flag(flagC)
	if !c.flag(flagN) {
		if cf || a > 0x99 {
			a += 0x60
			cf = true
		}
		if c.flag(flagH) || a&0x0F > 9 {
			a += 0x06
		}
	} else {
		if cf {
			a -= 0x60
		}
		if c.flag(flagH) {
			a -= 0x06
		}
	}
	c.A = a
	c.setFlags(c.A == 0, c.flag(flagN), false, cf)
}

func opCPL(c *CPU) {
	c.A = ^c.A
	c.F = (c.F & (flagZ | flagC)) | flagN | flagH
}

func opSCF(c *CPU) { c.F = (c.F & flagZ) | flagC }

func opCCF(c *CPU) {
	cy := !c.flag(flagC)
	c.F = (c.F & flagZ)
	if cy {
		c.F |= flagC
	}
}

// --- x==3 column bodies ---

func opRETcc(cc byte) opFunc {
	return func(c *CPU) {
		c.bus.Tick(4)
		if c.checkCond(cc) {
			c.PC = c.pop16()
			c.bus.Tick(4)
		}
	}
}

func opLDHa8A(c *CPU) {
	n := uint16(c.fetch8())
	c.bus.Write(0xFF00+n, c.A)
}

func opADDSPr8(c *CPU) {
	off := int8(c.fetch8())
	low := byte(c.SP)
	_, _, _, h, cy := add8(low, byte(off))
	c.bus.Tick(8)
	c.SP = uint16(int32(c.SP) + int32(off))
	c.setFlags(false, false, h, cy)
}

func opLDHAa8(c *CPU) {
	n := uint16(c.fetch8())
	c.A = c.bus.Read(0xFF00 + n)
}

func opLDHLSPr8(c *CPU) {
	off := int8(c.fetch8())
	low := byte(c.SP)
	_, _, _, h, cy := add8(low, byte(off))
	c.bus.Tick(4)
	c.setHL(uint16(int32(c.SP) + int32(off)))
	c.setFlags(false, false, h, cy)
}

func opPOPrp2(rp2 byte) opFunc {
	return func(c *CPU) { c.setRP2(rp2, c.pop16()) }
}

func opRET(c *CPU) {
	c.PC = c.pop16()
	c.bus.Tick(4)
}

func opRETI(c *CPU) {
	c.PC = c.pop16()
	c.bus.Tick(4)
	c.IME = true
}

func opJPHL(c *CPU) { c.PC = c.getHL() }

func opLDSPHL(c *CPU) {
	c.bus.Tick(4)
	c.SP = c.getHL()
}

func opJPccA16(cc byte) opFunc {
	return func(c *CPU) {
		addr := c.fetch16()
		if c.checkCond(cc) {
			c.bus.Tick(4)
			c.PC = addr
		}
	}
}

func opLDCIndA(c *CPU) { c.bus.Write(0xFF00+uint16(c.C), c.A) }
func opLDa16A(c *CPU) {
	addr := c.fetch16()
	c.bus.Write(addr, c.A)
}
func opLDACIndOp(c *CPU) { c.A = c.bus.Read(0xFF00 + uint16(c.C)) }
func opLDAa16(c *CPU) {
	addr := c.fetch16()
	c.A = c.bus.Read(addr)
}

func opJPA16(c *CPU) {
	addr := c.fetch16()
	c.bus.Tick(4)
	c.PC = addr
}

func opDI(c *CPU) { c.IME, c.eiPending = false, false }
func opEI(c *CPU) { c.eiPending = true }

func opCALLcc(cc byte) opFunc {
	return func(c *CPU) {
		addr := c.fetch16()
		if c.checkCond(cc) {
			c.bus.Tick(4)
			c.push16(c.PC)
			c.PC = addr
		}
	}
}

func opPUSHrp2(rp2 byte) opFunc {
	return func(c *CPU) {
		c.bus.Tick(4)
		c.push16(c.getRP2(rp2))
	}
}

func opCALLA16(c *CPU) {
	addr := c.fetch16()
	c.bus.Tick(4)
	c.push16(c.PC)
	c.PC = addr
}

func opALUimm(y byte) opFunc {
	return func(c *CPU) { c.aluOp(y, c.fetch8()) }
}

func opRST(target byte) opFunc {
	addr := uint16(target)
	return func(c *CPU) {
		c.bus.Tick(4)
		c.push16(c.PC)
		c.PC = addr
	}
}

// opHALT implements spec.md §4.5's halt-bug state machine: with IME=0 and
// an interrupt already latched, the CPU does not actually halt — instead
// the next fetch repeats the following byte (PC held back by one).
func opHALT(c *CPU) {
	if !c.IME && c.pendingInterrupt() >= 0 {
		c.haltBug = true
		return
	}
	c.halted = true
}

// opInvalid models the small set of undefined opcodes (0xD3/DB/DD/E3/E4/EB/
// EC/ED/F4/FC/FD); real hardware locks the bus, but no conformance ROM this
// core targets executes one deliberately, so it behaves as a 4-cycle NOP.
func opInvalid(c *CPU) {}

// buildCBTable constructs the CB-prefixed table from its own regular
// (op>>6, (op>>3)&7, op&7) grid: x selects rotate/shift vs BIT/RES/SET,
// y selects the bit or rotate/shift kind, z selects the register.
func buildCBTable() {
	for op := 0; op < 256; op++ {
		o := byte(op)
		x := o >> 6
		y := (o >> 3) & 7
		z := o & 7
		switch x {
		case 0:
			cbTable[op] = cbRotateShift(y, z)
		case 1:
			cbTable[op] = cbBIT(y, z)
		case 2:
			cbTable[op] = cbRES(y, z)
		default:
			cbTable[op] = cbSET(y, z)
		}
	}
}

func cbRotateShift(y, z byte) opFunc {
	return func(c *CPU) {
		v := c.get8(z)
		c.set8(z, c.rotateShift(y, v))
	}
}

func cbBIT(y, z byte) opFunc {
	return func(c *CPU) {
		v := c.get8(z)
		bit := v>>y&1 == 0
		c.F = (c.F & flagC) | flagH
		if bit {
			c.F |= flagZ
		}
	}
}

func cbRES(y, z byte) opFunc {
	return func(c *CPU) {
		v := c.get8(z)
		c.set8(z, v&^(1<<y))
	}
}

func cbSET(y, z byte) opFunc {
	return func(c *CPU) {
		v := c.get8(z)
		c.set8(z, v|(1<<y))
	}
}
