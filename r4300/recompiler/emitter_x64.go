package recompiler

import (
	"fmt"
	"math"
)

// amd64Emitter generates x86-64 code. The context pointer stays in RDI; only
// caller-saved registers are used so a unit can be entered as a plain function.
type amd64Emitter struct {
	buf *CodeBuffer
}

func newAMD64Emitter() *amd64Emitter { return &amd64Emitter{} }

func (e *amd64Emitter) Arch() Backend           { return BackendAMD64 }
func (e *amd64Emitter) Buffer() *CodeBuffer     { return e.buf }
func (e *amd64Emitter) SetBuffer(b *CodeBuffer) { e.buf = b }
func (e *amd64Emitter) Offset() int             { return e.buf.Len() }
func (e *amd64Emitter) NumRegs() int            { return x86NumRegs }
func (e *amd64Emitter) Scratch(i int) Reg       { return Reg(x86NumRegs + i) }
func (e *amd64Emitter) RegName(r Reg) string    { return x86RegList[r].Name }

func buildREX(w bool, r, x, b byte) byte {
	rex := byte(X86_REX_BASE)
	if w {
		rex |= X86_REX_W
	}
	if r != 0 {
		rex |= X86_REX_R
	}
	if x != 0 {
		rex |= X86_REX_X
	}
	if b != 0 {
		rex |= X86_REX_B
	}
	return rex
}

func buildModRM(mod, reg, rm byte) byte {
	return mod<<6 | (reg&7)<<3 | rm&7
}

// ctxOp emits "op reg, [rdi+disp32]" style instructions.
func (e *amd64Emitter) ctxOp(op byte, reg X86Reg, off int32) {
	e.buf.Emit(buildREX(true, reg.REXBit, 0, x86CtxReg.REXBit), op,
		buildModRM(X86_MOD_INDIRECT_DISP32, reg.RegBits, x86CtxReg.RegBits))
	e.buf.Emit32(uint32(off))
}

// rr emits a register-register instruction with src in the reg field and dst in r/m.
func (e *amd64Emitter) rr(op byte, dst, src X86Reg) {
	e.buf.Emit(buildREX(true, src.REXBit, 0, dst.REXBit), op,
		buildModRM(X86_MOD_REGISTER, src.RegBits, dst.RegBits))
}

func (e *amd64Emitter) LoadCtx(dst Reg, off int32) {
	e.ctxOp(X86_OP_MOV_R_RM, x86RegList[dst], off)
}

func (e *amd64Emitter) StoreCtx(off int32, src Reg) {
	e.ctxOp(X86_OP_MOV_RM_R, x86RegList[src], off)
}

func (e *amd64Emitter) StoreCtxImm(off int32, imm int32) {
	e.ctxOp(X86_OP_MOV_RM_IMM, X86Reg{RegBits: X86_REG_MOV}, off)
	e.buf.Emit32(uint32(imm))
}

func (e *amd64Emitter) AddCtxImm(off int32, imm int32) {
	e.ctxOp(X86_OP_GROUP1_RM_IMM32, X86Reg{RegBits: X86_REG_ADD}, off)
	e.buf.Emit32(uint32(imm))
}

func (e *amd64Emitter) MovImm(dst Reg, imm uint64) {
	d := x86RegList[dst]
	if int64(imm) >= math.MinInt32 && int64(imm) <= math.MaxInt32 {
		// mov r/m64, imm32 sign-extends
		e.buf.Emit(buildREX(true, 0, 0, d.REXBit), X86_OP_MOV_RM_IMM,
			buildModRM(X86_MOD_REGISTER, X86_REG_MOV, d.RegBits))
		e.buf.Emit32(uint32(imm))
		return
	}
	e.buf.Emit(buildREX(true, 0, 0, d.REXBit), X86_OP_MOV_R_IMM+d.RegBits)
	e.buf.Emit64(imm)
}

func (e *amd64Emitter) Mov(dst, src Reg) {
	if dst == src {
		return
	}
	e.rr(X86_OP_MOV_RM_R, x86RegList[dst], x86RegList[src])
}

var x86AluOps = [...]byte{
	AluAdd: X86_OP_ADD_RM_R,
	AluSub: X86_OP_SUB_RM_R,
	AluAnd: X86_OP_AND_RM_R,
	AluOr:  X86_OP_OR_RM_R,
	AluXor: X86_OP_XOR_RM_R,
	AluNor: X86_OP_OR_RM_R,
}

var x86AluExt = [...]byte{
	AluAdd: X86_REG_ADD,
	AluSub: X86_REG_SUB,
	AluAnd: X86_REG_AND,
	AluOr:  X86_REG_OR,
	AluXor: X86_REG_XOR,
	AluNor: X86_REG_OR,
}

func (e *amd64Emitter) not(r X86Reg) {
	e.buf.Emit(buildREX(true, 0, 0, r.REXBit), X86_OP_UNARY_RM,
		buildModRM(X86_MOD_REGISTER, X86_REG_NOT, r.RegBits))
}

func (e *amd64Emitter) Alu(op AluOp, dst, a, b Reg) {
	out := dst
	switch {
	case dst == a:
	case dst == b && op != AluSub:
		b = a
	case dst == b:
		out = x86Temp
		e.Mov(out, a)
	default:
		e.Mov(dst, a)
	}
	e.rr(x86AluOps[op], x86RegList[out], x86RegList[b])
	if op == AluNor {
		e.not(x86RegList[out])
	}
	e.Mov(dst, out)
}

func (e *amd64Emitter) AluImm(op AluOp, dst, a Reg, imm int32) {
	e.Mov(dst, a)
	d := x86RegList[dst]
	e.buf.Emit(buildREX(true, 0, 0, d.REXBit), X86_OP_GROUP1_RM_IMM32,
		buildModRM(X86_MOD_REGISTER, x86AluExt[op], d.RegBits))
	e.buf.Emit32(uint32(imm))
	if op == AluNor {
		e.not(d)
	}
}

var x86ShiftExt = [...]byte{
	ShiftLeft:         X86_REG_SHL,
	ShiftRightLogical: X86_REG_SHR,
	ShiftRightArith:   X86_REG_SAR,
}

func (e *amd64Emitter) Shift(op ShiftOp, dst, a Reg, n uint8, width32 bool) {
	e.Mov(dst, a)
	d := x86RegList[dst]
	if width32 {
		if d.REXBit != 0 {
			e.buf.Emit(buildREX(false, 0, 0, d.REXBit))
		}
		e.buf.Emit(X86_OP_GROUP2_RM_IMM8, buildModRM(X86_MOD_REGISTER, x86ShiftExt[op], d.RegBits), n&31)
		e.Extend32(dst, dst)
		return
	}
	e.buf.Emit(buildREX(true, 0, 0, d.REXBit), X86_OP_GROUP2_RM_IMM8,
		buildModRM(X86_MOD_REGISTER, x86ShiftExt[op], d.RegBits), n&63)
}

func (e *amd64Emitter) Extend32(dst, src Reg) {
	d, s := x86RegList[dst], x86RegList[src]
	e.buf.Emit(buildREX(true, d.REXBit, 0, s.REXBit), X86_OP_MOVSXD,
		buildModRM(X86_MOD_REGISTER, d.RegBits, s.RegBits))
}

var x86CondCodes = [...]byte{
	CondEQ:  X86_CC_E,
	CondNE:  X86_CC_NE,
	CondLT:  X86_CC_L,
	CondGE:  X86_CC_GE,
	CondLTU: X86_CC_B,
	CondGEU: X86_CC_AE,
	CondLE:  X86_CC_LE,
	CondGT:  X86_CC_G,
}

// cmp sets flags from a - b.
func (e *amd64Emitter) cmp(a, b Reg) {
	e.rr(X86_OP_CMP_RM_R, x86RegList[a], x86RegList[b])
}

func (e *amd64Emitter) SetCond(c Cond, dst, a, b Reg) {
	e.cmp(a, b)
	d := x86RegList[dst]
	// a bare REX selects sil/dil instead of dh/bh
	e.buf.Emit(buildREX(false, 0, 0, d.REXBit), X86_PREFIX_0F, X86_OP2_SETCC_BASE+x86CondCodes[c],
		buildModRM(X86_MOD_REGISTER, 0, d.RegBits))
	e.buf.Emit(buildREX(true, d.REXBit, 0, d.REXBit), X86_PREFIX_0F, X86_OP2_MOVZX_R_RM8,
		buildModRM(X86_MOD_REGISTER, d.RegBits, d.RegBits))
}

// rel32 emits a zero displacement and returns its site.
func (e *amd64Emitter) rel32() Site {
	s := Site(e.Offset())
	e.buf.Emit32(0)
	return s
}

func (e *amd64Emitter) Jump() Site {
	e.buf.Emit(X86_OP_JMP_REL32)
	return e.rel32()
}

func (e *amd64Emitter) jcc(cc byte) Site {
	e.buf.Emit(X86_PREFIX_0F, X86_OP2_JCC_BASE+cc)
	return e.rel32()
}

func (e *amd64Emitter) JumpCond(c Cond, a, b Reg) Site {
	e.cmp(a, b)
	return e.jcc(x86CondCodes[c])
}

func (e *amd64Emitter) test(a Reg) {
	e.rr(X86_OP_TEST_RM_R, x86RegList[a], x86RegList[a])
}

func (e *amd64Emitter) JumpZero(a Reg) Site {
	e.test(a)
	return e.jcc(X86_CC_E)
}

func (e *amd64Emitter) JumpNonZero(a Reg) Site {
	e.test(a)
	return e.jcc(X86_CC_NE)
}

func (e *amd64Emitter) Patch(s Site, target int) error {
	rel := int64(target) - int64(int(s)+4)
	if rel > math.MaxInt32 || rel < math.MinInt32 {
		return fmt.Errorf("rel32 at 0x%x to 0x%x: %w", int(s), target, ErrDisplacementRange)
	}
	if int(s)+4 > e.buf.Len() {
		return fmt.Errorf("amd64 patch site 0x%x beyond code end 0x%x", int(s), e.buf.Len())
	}
	e.buf.Put32(int(s), uint32(int32(rel)))
	return nil
}

func (e *amd64Emitter) Exit(kind ExitKind, arg uint32) {
	e.StoreCtxImm(ctxExit, int32(kind))
	e.StoreCtxImm(ctxExitArg, int32(arg))
	e.buf.Emit(X86_OP_RET)
}
