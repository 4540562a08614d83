package recompiler

import (
	"fmt"

	"github.com/colorfulnotion/r4300/r4300/interpreter"
)

const (
	ctxExit    = interpreter.CtxExit
	ctxExitArg = interpreter.CtxExitArg
)

// Reg is a host register as seen by the compiler. Registers 0..NumRegs-1 are handed
// to the guest register cache; Scratch(0) and Scratch(1) follow and are free for
// temporaries within one guest instruction.
type Reg uint8

type AluOp uint8

const (
	AluAdd AluOp = iota
	AluSub
	AluAnd
	AluOr
	AluXor
	AluNor
)

type ShiftOp uint8

const (
	ShiftLeft ShiftOp = iota
	ShiftRightLogical
	ShiftRightArith
)

// Cond is a comparison of two 64-bit registers.
type Cond uint8

const (
	CondEQ Cond = iota
	CondNE
	CondLT
	CondGE
	CondLTU
	CondGEU
	CondLE
	CondGT
)

func (c Cond) String() string {
	return [...]string{"eq", "ne", "lt", "ge", "ltu", "geu", "le", "gt"}[c&7]
}

// ExitKind is written to the context when generated code returns to the driver.
type ExitKind uint64

const (
	ExitNone        ExitKind = iota
	ExitNotCompiled          // arg: slot to compile
	ExitHelper               // arg: slot | delay<<31, run the instruction through the interpreter
	ExitLink                 // arg: link stub slot
	ExitDispatch             // continue at ctx.Target
	ExitInterrupt            // transfer to ctx.Target resolved, Count reached Deadline
	ExitIdle                 // idle loop at ctx.Target
)

func (k ExitKind) String() string {
	switch k {
	case ExitNone:
		return "none"
	case ExitNotCompiled:
		return "notcompiled"
	case ExitHelper:
		return "helper"
	case ExitLink:
		return "link"
	case ExitDispatch:
		return "dispatch"
	case ExitInterrupt:
		return "interrupt"
	case ExitIdle:
		return "idle"
	}
	return fmt.Sprintf("exit(%d)", uint64(k))
}

const helperDelayBit = 1 << 31

// Site identifies a patchable jump in a code buffer.
type Site int

// Emitter lowers the small operation set the compiler needs into host code for one
// backend. Every method appends to the current buffer; encoding failures are
// recorded in the buffer's sticky error. Context offsets are the interpreter.Ctx*
// constants.
type Emitter interface {
	Arch() Backend
	Buffer() *CodeBuffer
	SetBuffer(b *CodeBuffer)
	Offset() int
	NumRegs() int
	Scratch(i int) Reg
	RegName(r Reg) string

	LoadCtx(dst Reg, off int32)
	StoreCtx(off int32, src Reg)
	// StoreCtxImm stores imm sign-extended to 64 bits.
	StoreCtxImm(off int32, imm int32)
	AddCtxImm(off int32, imm int32)

	MovImm(dst Reg, imm uint64)
	Mov(dst, src Reg)
	Alu(op AluOp, dst, a, b Reg)
	AluImm(op AluOp, dst, a Reg, imm int32)
	// Shift by a constant. width32 operates on the low word and sign-extends the result.
	Shift(op ShiftOp, dst, a Reg, n uint8, width32 bool)
	Extend32(dst, src Reg)
	SetCond(c Cond, dst, a, b Reg)

	Jump() Site
	JumpCond(c Cond, a, b Reg) Site
	JumpZero(a Reg) Site
	JumpNonZero(a Reg) Site
	Patch(s Site, target int) error
	Exit(kind ExitKind, arg uint32)
}

// NewEmitter returns the code generator for backend b.
func NewEmitter(b Backend, cfg Config) (Emitter, error) {
	switch b {
	case BackendPortable:
		return newPortableEmitter(cfg.PortableBranchRange), nil
	case BackendAMD64:
		return newAMD64Emitter(), nil
	case BackendARM64:
		return newARM64Emitter(), nil
	}
	return nil, fmt.Errorf("emitter %v: %w", b, ErrUnknownBackend)
}

// patchNow emits a jump and points it at an already known offset.
func patchNow(e Emitter, s Site, target int) {
	if err := e.Patch(s, target); err != nil {
		e.Buffer().SetErr(err)
	}
}
