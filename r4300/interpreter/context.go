package interpreter

// Context is the register block generated code addresses through a single base
// pointer. Its layout is fixed; the Ctx* offsets below are what the emitters encode.
type Context struct {
	GPR      [32]uint64
	HI       uint64
	LO       uint64
	Count    uint64 // cycle clock, CP0 Count is its low 32 bits
	Deadline uint64 // Count value at which the next check must run

	// exit protocol between generated code and the driver
	Exit    uint64
	ExitArg uint64
	Resume  uint64
	Target  uint64 // resolved transfer target
	Taken   uint64 // 1 when the pending branch is taken
}

const (
	CtxGPR      = 0
	CtxHI       = 256
	CtxLO       = 264
	CtxCount    = 272
	CtxDeadline = 280
	CtxExit     = 288
	CtxExitArg  = 296
	CtxResume   = 304
	CtxTarget   = 312
	CtxTaken    = 320
	ContextSize = 328
)

// GPROffset returns the context offset of general purpose register r.
func GPROffset(r uint8) int32 { return CtxGPR + 8*int32(r) }
