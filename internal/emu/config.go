package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace        bool // log CPU instructions
	LimitFPS     bool // not read by Machine; StepFrame always runs unthrottled
	UseFetcherBG bool // kept for compatibility; rendering always uses the fetcher/FIFO scanline path
}
