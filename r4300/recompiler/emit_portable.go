package recompiler

import (
	"fmt"
)

// Portable threaded code. Every instruction is portableInstSize bytes:
//
//	[0] opcode  [1] dst  [2] a  [3] b  [4:8] imm  [8:12] imm2
//
// Jump displacements in imm are relative to the end of the jump instruction.
const portableInstSize = 12

const (
	pInvalid byte = iota
	pLoadCtx
	pStoreCtx
	pStoreCtxImm
	pAddCtxImm
	pMovImm
	pMov
	pAlu
	pAluImm
	pShift
	pExt32
	pSetCond
	pJump
	pJumpCond
	pJumpZero
	pJumpNonZero
	pExit
)

var portableNames = [...]string{
	pInvalid:     "invalid",
	pLoadCtx:     "ldctx",
	pStoreCtx:    "stctx",
	pStoreCtxImm: "stctxi",
	pAddCtxImm:   "addctxi",
	pMovImm:      "movi",
	pMov:         "mov",
	pAlu:         "alu",
	pAluImm:      "alui",
	pShift:       "shift",
	pExt32:       "ext32",
	pSetCond:     "set",
	pJump:        "jmp",
	pJumpCond:    "jcc",
	pJumpZero:    "jz",
	pJumpNonZero: "jnz",
	pExit:        "exit",
}

const (
	portableNumRegs = 12
	portableTemp    = Reg(portableNumRegs + 2)
	portableRegs    = portableNumRegs + 3
)

type portableEmitter struct {
	buf   *CodeBuffer
	Range int32
}

func newPortableEmitter(rng int32) *portableEmitter {
	return &portableEmitter{Range: rng}
}

func (e *portableEmitter) Arch() Backend           { return BackendPortable }
func (e *portableEmitter) Buffer() *CodeBuffer     { return e.buf }
func (e *portableEmitter) SetBuffer(b *CodeBuffer) { e.buf = b }
func (e *portableEmitter) Offset() int             { return e.buf.Len() }
func (e *portableEmitter) NumRegs() int            { return portableNumRegs }
func (e *portableEmitter) Scratch(i int) Reg       { return Reg(portableNumRegs + i) }
func (e *portableEmitter) RegName(r Reg) string    { return fmt.Sprintf("p%d", r) }

func (e *portableEmitter) inst(op byte, d, a, b Reg, imm, imm2 int32) {
	e.buf.Emit(op, byte(d), byte(a), byte(b))
	e.buf.Emit32(uint32(imm))
	e.buf.Emit32(uint32(imm2))
}

func (e *portableEmitter) LoadCtx(dst Reg, off int32)  { e.inst(pLoadCtx, dst, 0, 0, off, 0) }
func (e *portableEmitter) StoreCtx(off int32, src Reg) { e.inst(pStoreCtx, 0, src, 0, off, 0) }
func (e *portableEmitter) StoreCtxImm(off int32, imm int32) {
	e.inst(pStoreCtxImm, 0, 0, 0, off, imm)
}
func (e *portableEmitter) AddCtxImm(off int32, imm int32) { e.inst(pAddCtxImm, 0, 0, 0, off, imm) }

func (e *portableEmitter) MovImm(dst Reg, imm uint64) {
	e.inst(pMovImm, dst, 0, 0, int32(uint32(imm)), int32(uint32(imm>>32)))
}

func (e *portableEmitter) Mov(dst, src Reg) { e.inst(pMov, dst, src, 0, 0, 0) }

func (e *portableEmitter) Alu(op AluOp, dst, a, b Reg) { e.inst(pAlu, dst, a, b, 0, int32(op)) }

func (e *portableEmitter) AluImm(op AluOp, dst, a Reg, imm int32) {
	e.inst(pAluImm, dst, a, 0, imm, int32(op))
}

func (e *portableEmitter) Shift(op ShiftOp, dst, a Reg, n uint8, width32 bool) {
	mode := int32(op)
	if width32 {
		mode |= 1 << 8
	}
	e.inst(pShift, dst, a, 0, int32(n), mode)
}

func (e *portableEmitter) Extend32(dst, src Reg) { e.inst(pExt32, dst, src, 0, 0, 0) }

func (e *portableEmitter) SetCond(c Cond, dst, a, b Reg) {
	e.inst(pSetCond, dst, a, b, 0, int32(c))
}

func (e *portableEmitter) Jump() Site {
	s := Site(e.Offset())
	e.inst(pJump, 0, 0, 0, 0, 0)
	return s
}

func (e *portableEmitter) JumpCond(c Cond, a, b Reg) Site {
	s := Site(e.Offset())
	e.inst(pJumpCond, 0, a, b, 0, int32(c))
	return s
}

func (e *portableEmitter) JumpZero(a Reg) Site {
	s := Site(e.Offset())
	e.inst(pJumpZero, 0, a, 0, 0, 0)
	return s
}

func (e *portableEmitter) JumpNonZero(a Reg) Site {
	s := Site(e.Offset())
	e.inst(pJumpNonZero, 0, a, 0, 0, 0)
	return s
}

func (e *portableEmitter) Patch(s Site, target int) error {
	disp := int64(target) - int64(int(s)+portableInstSize)
	if e.Range > 0 && (disp > int64(e.Range) || disp < -int64(e.Range)) {
		return fmt.Errorf("portable jump at 0x%x to 0x%x (%d bytes, range %d): %w", int(s), target, disp, e.Range, ErrDisplacementRange)
	}
	if int(s)+portableInstSize > e.buf.Len() {
		return fmt.Errorf("portable patch site 0x%x beyond code end 0x%x", int(s), e.buf.Len())
	}
	e.buf.Put32(int(s)+4, uint32(int32(disp)))
	return nil
}

func (e *portableEmitter) Exit(kind ExitKind, arg uint32) {
	e.inst(pExit, 0, 0, 0, int32(kind), int32(arg))
}
