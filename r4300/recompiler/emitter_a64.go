package recompiler

import (
	"fmt"
)

// arm64Emitter generates AArch64 code with the context pointer in X0. It is used for
// inspection; this build has no arm64 executor.
type arm64Emitter struct {
	buf *CodeBuffer
}

func newARM64Emitter() *arm64Emitter { return &arm64Emitter{} }

const (
	arm64NumRegs = 8
	arm64Temp    = Reg(arm64NumRegs + 2)
	arm64Temp2   = Reg(arm64NumRegs + 3)
	arm64Ctx     = 0
	arm64ZR      = 31
)

// arm64RegList maps Reg to X register numbers: X1-X8 for the cache, X16/X17 scratch,
// X9/X10 private.
var arm64RegList = [...]uint32{1, 2, 3, 4, 5, 6, 7, 8, 16, 17, 9, 10}

const (
	ARM64_LDR_X_IMM   = 0xF9400000
	ARM64_STR_X_IMM   = 0xF9000000
	ARM64_MOVZ_X      = 0xD2800000
	ARM64_MOVK_X      = 0xF2800000
	ARM64_ADD_X       = 0x8B000000
	ARM64_SUB_X       = 0xCB000000
	ARM64_AND_X       = 0x8A000000
	ARM64_ORR_X       = 0xAA000000
	ARM64_EOR_X       = 0xCA000000
	ARM64_ORN_X       = 0xAA200000
	ARM64_SUBS_X      = 0xEB000000
	ARM64_CSINC_X     = 0x9A800400
	ARM64_UBFM_X      = 0xD3400000
	ARM64_SBFM_X      = 0x93400000
	ARM64_UBFM_W      = 0x53000000
	ARM64_SBFM_W      = 0x13000000
	ARM64_B           = 0x14000000
	ARM64_B_COND      = 0x54000000
	ARM64_CBZ_X       = 0xB4000000
	ARM64_CBNZ_X      = 0xB5000000
	ARM64_RET         = 0xD65F03C0
	ARM64_B_MASK      = 0xFC000000
	ARM64_B_COND_MASK = 0xFF000010
	ARM64_CB_MASK     = 0x7E000000
	ARM64_CB_MATCH    = 0x34000000
)

// AArch64 condition codes
const (
	ARM64_CC_EQ = 0x0
	ARM64_CC_NE = 0x1
	ARM64_CC_HS = 0x2
	ARM64_CC_LO = 0x3
	ARM64_CC_GE = 0xA
	ARM64_CC_LT = 0xB
	ARM64_CC_GT = 0xC
	ARM64_CC_LE = 0xD
)

var arm64CondCodes = [...]uint32{
	CondEQ:  ARM64_CC_EQ,
	CondNE:  ARM64_CC_NE,
	CondLT:  ARM64_CC_LT,
	CondGE:  ARM64_CC_GE,
	CondLTU: ARM64_CC_LO,
	CondGEU: ARM64_CC_HS,
	CondLE:  ARM64_CC_LE,
	CondGT:  ARM64_CC_GT,
}

func (e *arm64Emitter) Arch() Backend           { return BackendARM64 }
func (e *arm64Emitter) Buffer() *CodeBuffer     { return e.buf }
func (e *arm64Emitter) SetBuffer(b *CodeBuffer) { e.buf = b }
func (e *arm64Emitter) Offset() int             { return e.buf.Len() }
func (e *arm64Emitter) NumRegs() int            { return arm64NumRegs }
func (e *arm64Emitter) Scratch(i int) Reg       { return Reg(arm64NumRegs + i) }
func (e *arm64Emitter) RegName(r Reg) string    { return fmt.Sprintf("x%d", arm64RegList[r]) }

func (e *arm64Emitter) word(w uint32) { e.buf.Emit32(w) }

func xr(r Reg) uint32 { return arm64RegList[r] }

func (e *arm64Emitter) ldst(op uint32, rt uint32, off int32) {
	if off < 0 || off%8 != 0 || off/8 > 0xfff {
		e.buf.SetErr(fmt.Errorf("arm64 context offset %d not encodable", off))
		return
	}
	e.word(op | uint32(off/8)<<10 | arm64Ctx<<5 | rt)
}

func (e *arm64Emitter) LoadCtx(dst Reg, off int32)  { e.ldst(ARM64_LDR_X_IMM, xr(dst), off) }
func (e *arm64Emitter) StoreCtx(off int32, src Reg) { e.ldst(ARM64_STR_X_IMM, xr(src), off) }

func (e *arm64Emitter) StoreCtxImm(off int32, imm int32) {
	e.MovImm(arm64Temp, uint64(int64(imm)))
	e.StoreCtx(off, arm64Temp)
}

func (e *arm64Emitter) AddCtxImm(off int32, imm int32) {
	e.LoadCtx(arm64Temp, off)
	e.MovImm(arm64Temp2, uint64(int64(imm)))
	e.Alu(AluAdd, arm64Temp, arm64Temp, arm64Temp2)
	e.StoreCtx(off, arm64Temp)
}

func (e *arm64Emitter) MovImm(dst Reg, imm uint64) {
	d := xr(dst)
	e.word(ARM64_MOVZ_X | uint32(imm&0xffff)<<5 | d)
	for hw := uint32(1); hw < 4; hw++ {
		chunk := uint32(imm>>(16*hw)) & 0xffff
		if chunk != 0 {
			e.word(ARM64_MOVK_X | hw<<21 | chunk<<5 | d)
		}
	}
}

func (e *arm64Emitter) Mov(dst, src Reg) {
	if dst == src {
		return
	}
	e.word(ARM64_ORR_X | xr(src)<<16 | arm64ZR<<5 | xr(dst))
}

var arm64AluOps = [...]uint32{
	AluAdd: ARM64_ADD_X,
	AluSub: ARM64_SUB_X,
	AluAnd: ARM64_AND_X,
	AluOr:  ARM64_ORR_X,
	AluXor: ARM64_EOR_X,
	AluNor: ARM64_ORR_X,
}

func (e *arm64Emitter) Alu(op AluOp, dst, a, b Reg) {
	e.word(arm64AluOps[op] | xr(b)<<16 | xr(a)<<5 | xr(dst))
	if op == AluNor {
		// mvn dst, dst
		e.word(ARM64_ORN_X | xr(dst)<<16 | arm64ZR<<5 | xr(dst))
	}
}

func (e *arm64Emitter) AluImm(op AluOp, dst, a Reg, imm int32) {
	e.MovImm(arm64Temp, uint64(int64(imm)))
	e.Alu(op, dst, a, arm64Temp)
}

func (e *arm64Emitter) Shift(op ShiftOp, dst, a Reg, n uint8, width32 bool) {
	d, s := xr(dst), xr(a)
	if width32 {
		sh := uint32(n & 31)
		switch op {
		case ShiftLeft:
			e.word(ARM64_UBFM_W | ((32-sh)&31)<<16 | (31-sh)<<10 | s<<5 | d)
		case ShiftRightLogical:
			e.word(ARM64_UBFM_W | sh<<16 | 31<<10 | s<<5 | d)
		case ShiftRightArith:
			e.word(ARM64_SBFM_W | sh<<16 | 31<<10 | s<<5 | d)
		}
		e.Extend32(dst, dst)
		return
	}
	sh := uint32(n & 63)
	switch op {
	case ShiftLeft:
		e.word(ARM64_UBFM_X | ((64-sh)&63)<<16 | (63-sh)<<10 | s<<5 | d)
	case ShiftRightLogical:
		e.word(ARM64_UBFM_X | sh<<16 | 63<<10 | s<<5 | d)
	case ShiftRightArith:
		e.word(ARM64_SBFM_X | sh<<16 | 63<<10 | s<<5 | d)
	}
}

// Extend32 is sxtw, i.e. sbfm xd, xn, #0, #31.
func (e *arm64Emitter) Extend32(dst, src Reg) {
	e.word(ARM64_SBFM_X | 31<<10 | xr(src)<<5 | xr(dst))
}

func (e *arm64Emitter) cmp(a, b Reg) {
	e.word(ARM64_SUBS_X | xr(b)<<16 | xr(a)<<5 | arm64ZR)
}

func (e *arm64Emitter) SetCond(c Cond, dst, a, b Reg) {
	e.cmp(a, b)
	// cset is csinc xd, xzr, xzr, !cond
	e.word(ARM64_CSINC_X | arm64ZR<<16 | (arm64CondCodes[c]^1)<<12 | arm64ZR<<5 | xr(dst))
}

func (e *arm64Emitter) Jump() Site {
	s := Site(e.Offset())
	e.word(ARM64_B)
	return s
}

func (e *arm64Emitter) JumpCond(c Cond, a, b Reg) Site {
	e.cmp(a, b)
	s := Site(e.Offset())
	e.word(ARM64_B_COND | arm64CondCodes[c])
	return s
}

func (e *arm64Emitter) JumpZero(a Reg) Site {
	s := Site(e.Offset())
	e.word(ARM64_CBZ_X | xr(a))
	return s
}

func (e *arm64Emitter) JumpNonZero(a Reg) Site {
	s := Site(e.Offset())
	e.word(ARM64_CBNZ_X | xr(a))
	return s
}

// Patch rewrites the branch at s. B reaches ±128 MiB, B.cond and CBZ/CBNZ ±1 MiB.
func (e *arm64Emitter) Patch(s Site, target int) error {
	if int(s)+4 > e.buf.Len() {
		return fmt.Errorf("arm64 patch site 0x%x beyond code end 0x%x", int(s), e.buf.Len())
	}
	disp := target - int(s)
	if disp%4 != 0 {
		return fmt.Errorf("arm64 branch target 0x%x misaligned", target)
	}
	w := e.buf.Get32(int(s))
	imm := int64(disp / 4)
	switch {
	case w&ARM64_B_MASK == ARM64_B:
		if imm < -(1<<25) || imm >= 1<<25 {
			return fmt.Errorf("b at 0x%x to 0x%x: %w", int(s), target, ErrDisplacementRange)
		}
		w = w&ARM64_B_MASK | uint32(imm)&0x3ffffff
	case w&ARM64_B_COND_MASK == ARM64_B_COND, w&ARM64_CB_MASK == ARM64_CB_MATCH:
		if imm < -(1<<18) || imm >= 1<<18 {
			return fmt.Errorf("conditional branch at 0x%x to 0x%x: %w", int(s), target, ErrDisplacementRange)
		}
		w = w&^(0x7ffff<<5) | (uint32(imm)&0x7ffff)<<5
	default:
		return fmt.Errorf("arm64 patch site 0x%x is not a branch (0x%08x)", int(s), w)
	}
	e.buf.Put32(int(s), w)
	return nil
}

func (e *arm64Emitter) Exit(kind ExitKind, arg uint32) {
	e.MovImm(arm64Temp, uint64(kind))
	e.StoreCtx(ctxExit, arm64Temp)
	e.MovImm(arm64Temp, uint64(arg))
	e.StoreCtx(ctxExitArg, arm64Temp)
	e.word(ARM64_RET)
}
