package ppu

// renderScanline renders one full row of the frame buffer (BG, window, and
// sprites composited together) in one atomic step taken when mode 3 ends
// (on mode-0 entry).
// spec.md §4.6 explicitly allows this coarse per-scanline approximation in
// place of a cycle-exact per-dot FIFO.
func (p *PPU) renderScanline() {
	ly := p.ly
	row := int(ly) * screenW

	bgEnabled := p.lcdc&0x01 != 0
	var bgLine [screenW]byte
	if bgEnabled {
		mapBase := uint16(0x9800)
		if p.lcdc&0x08 != 0 {
			mapBase = 0x9C00
		}
		tileData8000 := p.lcdc&0x10 != 0
		bgLine = RenderBGScanlineUsingFetcher(p, mapBase, tileData8000, p.scx, p.scy, ly)
	}

	windowEnabled := bgEnabled && p.lcdc&0x20 != 0 && int(p.wy) <= int(ly)
	wxStart := int(p.wx) - 7
	drawsWindow := windowEnabled && wxStart < screenW
	var winLine [screenW]byte
	if drawsWindow {
		mapBase := uint16(0x9800)
		if p.lcdc&0x40 != 0 {
			mapBase = 0x9C00
		}
		tileData8000 := p.lcdc&0x10 != 0
		winLine = RenderWindowScanlineUsingFetcher(p, mapBase, tileData8000, wxStart, byte(p.windowLine))
	}

	for x := 0; x < screenW; x++ {
		var bgColorIdx byte
		if bgEnabled {
			bgColorIdx = bgLine[x]
			if drawsWindow && x >= wxStart {
				bgColorIdx = winLine[x]
			}
		}
		bgColor := (p.bgp >> (bgColorIdx * 2)) & 0x03

		out := bgColor
		if spriteColor, bgPriority, ok := p.spritePixelAt(x); ok {
			if !bgPriority || bgColorIdx == 0 {
				out = spriteColor
			}
		}
		p.frame[row+x] = out
	}

	if drawsWindow {
		p.windowLine++
	}
}

// RenderBGScanlineUsingFetcher produces one row of background color indices
// by walking the tile map with a bgFetcher/fifo pair, the same machinery
// fetcher.go defines for mode-3 tile fetch. scx/scy/ly give the scrolled
// source row; the first scx&7 pixels of the leftmost tile are discarded to
// land on the correct sub-tile column.
func RenderBGScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, scx, scy, ly byte) [screenW]byte {
	var out [screenW]byte

	bgY := scy + ly
	fineY := bgY & 7
	mapRow := uint16(bgY>>3) & 31
	tileCol := uint16(scx>>3) & 31
	skip := int(scx & 7)

	var q fifo
	fch := newBGFetcher(mem, &q)

	x := 0
	for x < screenW {
		tileAddr := mapBase + mapRow*32 + (tileCol & 31)
		fch.Configure(mapBase, tileData8000, tileAddr, fineY)
		fch.Fetch()
		for q.Len() > 0 && x < screenW {
			ci, _ := q.Pop()
			if skip > 0 {
				skip--
				continue
			}
			out[x] = ci
			x++
		}
		tileCol++
	}
	return out
}

// RenderWindowScanlineUsingFetcher produces one row of window color indices
// the same way, indexed by the internal window-line counter rather than
// scy+ly, and starting at tile column 0 since the window has no scroll
// registers of its own. wxStart may be negative (WX<7); in that case the
// leading off-screen pixels of the first tile are discarded.
func RenderWindowScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, wxStart int, winLine byte) [screenW]byte {
	var out [screenW]byte

	fineY := winLine & 7
	mapRow := uint16(winLine>>3) & 31

	var q fifo
	fch := newBGFetcher(mem, &q)

	skip := 0
	screenX := wxStart
	if screenX < 0 {
		skip = -screenX
		screenX = 0
	}

	var tileCol uint16
	for screenX < screenW {
		tileAddr := mapBase + mapRow*32 + (tileCol & 31)
		fch.Configure(mapBase, tileData8000, tileAddr, fineY)
		fch.Fetch()
		for q.Len() > 0 && screenX < screenW {
			ci, _ := q.Pop()
			if skip > 0 {
				skip--
				continue
			}
			out[screenX] = ci
			screenX++
		}
		tileCol++
	}
	return out
}
