package ppu

import "testing"

func newTestPPU() (*PPU, *[]int) {
	var raised []int
	p := New(func(bit int) { raised = append(raised, bit) })
	p.CPUWrite(0xFF40, 0x91) // LCD on, BG on, BG tilemap 9800, tile data 8000
	return p, &raised
}

func TestModeSequencePerScanline(t *testing.T) {
	p, _ := newTestPPU()
	if got := p.mode(); got != 2 {
		t.Fatalf("expected mode 2 at line start, got %d", got)
	}
	p.Tick(oamScanDots - 1)
	if got := p.mode(); got != 2 {
		t.Fatalf("expected still mode 2 before dot 80, got %d", got)
	}
	p.Tick(1)
	if got := p.mode(); got != 3 {
		t.Fatalf("expected mode 3 at dot 80, got %d", got)
	}
	p.Tick(transferDots)
	if got := p.mode(); got != 0 {
		t.Fatalf("expected mode 0 after transfer, got %d", got)
	}
	p.Tick(lineDots - (oamScanDots + transferDots))
	if p.ly != 1 {
		t.Fatalf("expected LY=1 after one full line, got %d", p.ly)
	}
	if got := p.mode(); got != 2 {
		t.Fatalf("expected mode 2 at next line start, got %d", got)
	}
}

func TestVBlankEntryRaisesInterrupt(t *testing.T) {
	p, raised := newTestPPU()
	for p.ly < lastVisibleLn+1 {
		p.Tick(lineDots)
	}
	found := false
	for _, b := range *raised {
		if b == 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected VBlank IF bit raised when LY reaches 144")
	}
	if got := p.mode(); got != 1 {
		t.Fatalf("expected mode 1 in VBlank, got %d", got)
	}
}

func TestLYCCoincidenceInterrupt(t *testing.T) {
	p, raised := newTestPPU()
	p.CPUWrite(0xFF45, 0) // LYC=0
	p.CPUWrite(0xFF41, p.CPURead(0xFF41)|(1<<6))
	*raised = nil
	// re-trigger the coincidence check by writing LY-resetting FF44
	p.CPUWrite(0xFF44, 0)
	found := false
	for _, b := range *raised {
		if b == 1 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected STAT interrupt on LY==LYC with bit6 enabled")
	}
	if p.CPURead(0xFF41)&(1<<2) == 0 {
		t.Fatal("expected coincidence flag set in STAT")
	}
}

func TestLCDOffForcesLine0Mode0(t *testing.T) {
	p, _ := newTestPPU()
	p.Tick(300)
	p.CPUWrite(0xFF40, 0x00) // LCD off
	if p.ly != 0 || p.mode() != 0 {
		t.Fatalf("expected LY=0 mode=0 after LCD off, got LY=%d mode=%d", p.ly, p.mode())
	}
	p.Tick(10000) // LCD off: ticks are no-ops
	if p.ly != 0 {
		t.Fatalf("expected LY to stay 0 while LCD is off, got %d", p.ly)
	}
}

func TestOAMScanLimitsToTenSprites(t *testing.T) {
	p, _ := newTestPPU()
	p.CPUWrite(0xFF40, 0x93) // LCD+BG+OBJ on
	for i := 0; i < 40; i++ {
		base := uint16(i * 4)
		p.oam[base] = 16     // Y=0 on screen -> covers LY=0
		p.oam[base+1] = 8    // X=0
		p.oam[base+2] = 0
		p.oam[base+3] = 0
	}
	p.scanOAM()
	if len(p.spriteBuf) != 10 {
		t.Fatalf("expected at most 10 sprites scanned, got %d", len(p.spriteBuf))
	}
}

func TestBackgroundSpriteComposition(t *testing.T) {
	p, _ := newTestPPU()
	p.CPUWrite(0xFF40, 0x93)
	p.CPUWrite(0xFF47, 0xE4) // BGP identity-ish: 11 10 01 00
	p.CPUWrite(0xFF48, 0xE4) // OBP0 identity-ish

	// tile 0 in BG map at (0,0) = all color index 1 (lo=0xFF, hi=0x00)
	p.vram[0x1800] = 0 // map entry 9800 -> tile 0
	tileBase := 0x0000 // tile 0 data at 8000 addressing
	for r := 0; r < 8; r++ {
		p.vram[tileBase+r*2] = 0xFF
		p.vram[tileBase+r*2+1] = 0x00
	}

	// sprite at x=0,y=0 tile covering color index 2 at column 0 (opaque)
	p.oam[0] = 16
	p.oam[1] = 8
	p.oam[2] = 1
	p.oam[3] = 0x00
	spriteTileBase := 16
	for r := 0; r < 8; r++ {
		p.vram[spriteTileBase+r*2] = 0x00
		p.vram[spriteTileBase+r*2+1] = 0xFF // all bits set -> colorIdx=2
	}

	p.Tick(oamScanDots + transferDots)

	if p.frame[0] != 2 {
		t.Fatalf("expected sprite color 2 to draw over BG color 1 at column 0, got %d", p.frame[0])
	}
}
