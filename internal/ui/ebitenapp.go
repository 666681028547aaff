package ui

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/emu"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// App is the ebiten.Game driving a Machine: keyboard in, framebuffer out.
type App struct {
	cfg Config
	m   *emu.Machine
	tex *ebiten.Image

	paused bool

	lastTime time.Time
	frameAcc float64
}

func NewApp(cfg Config, m *emu.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)
	return &App{cfg: cfg, m: m, lastTime: time.Now()}
}

func (a *App) Run() error { return ebiten.RunGame(a) }

// SaveSettings is a no-op hook cmd/gbemu's shutdown path probes for.
func (a *App) SaveSettings() {}

func (a *App) Update() error {
	var btn emu.Buttons
	if ebiten.IsKeyPressed(ebiten.KeyRight) {
		btn.Right = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyLeft) {
		btn.Left = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyUp) {
		btn.Up = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyDown) {
		btn.Down = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyZ) {
		btn.A = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyX) {
		btn.B = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyEnter) {
		btn.Start = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
		btn.Select = true
	}
	a.m.SetButtons(btn)

	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		if a.m.ROMPath() != "" {
			_ = a.m.LoadROMFromFile(a.m.ROMPath())
		}
	}
	if a.paused && inpututil.IsKeyJustPressed(ebiten.KeyN) {
		a.m.StepFrame()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		_ = a.m.SaveStateToFile(a.statePath())
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		_ = a.m.LoadStateFromFile(a.statePath())
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		_ = a.saveScreenshot()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	if !a.paused {
		now := time.Now()
		dt := now.Sub(a.lastTime).Seconds()
		a.lastTime = now
		if dt < 0 {
			dt = 0
		}
		gbFPS := 4194304.0 / 70224.0 // ~59.7275
		a.frameAcc += dt * gbFPS
		steps := 0
		for a.frameAcc >= 1.0 && steps < 8 { // cap to avoid a spiral of death after a stall
			a.m.StepFrame()
			a.frameAcc -= 1.0
			steps++
		}
	}
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	a.tex.WritePixels(a.m.Framebuffer())
	screen.DrawImage(a.tex, nil)
	if a.paused {
		ebitenutil.DebugPrintAt(screen, "PAUSED", 4, 4)
	}
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) { return 160, 144 }

func (a *App) statePath() string {
	base := a.m.ROMPath()
	if base == "" {
		base = "gbemu"
	}
	return base + ".savestate"
}

func (a *App) saveScreenshot() error {
	fb := a.m.Framebuffer()
	img := &image.RGBA{
		Pix:    append([]byte(nil), fb...),
		Stride: 4 * 160,
		Rect:   image.Rect(0, 0, 160, 144),
	}
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
