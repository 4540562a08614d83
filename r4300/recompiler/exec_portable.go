package recompiler

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/colorfulnotion/r4300/r4300/interpreter"
)

// Executor runs the host code of a unit from a code offset until it exits to the
// driver. The exit reason is left in ctx.Exit and ctx.ExitArg.
type Executor interface {
	Enter(u *Unit, offset int, ctx *interpreter.Context) error
	Close() error
}

// portableExecutor interprets the portable backend's threaded code.
type portableExecutor struct {
	regs [portableRegs]uint64
}

func newPortableExecutor() *portableExecutor { return &portableExecutor{} }

func (x *portableExecutor) Close() error { return nil }

func ctxWords(ctx *interpreter.Context) *[interpreter.ContextSize / 8]uint64 {
	return (*[interpreter.ContextSize / 8]uint64)(unsafe.Pointer(ctx))
}

func (x *portableExecutor) Enter(u *Unit, offset int, ctx *interpreter.Context) error {
	code := u.Code.Bytes()
	words := ctxWords(ctx)
	r := &x.regs
	pc := offset
	for {
		if pc < 0 || pc+portableInstSize > len(code) {
			return fmt.Errorf("portable pc 0x%x outside code [0, 0x%x)", pc, len(code))
		}
		in := code[pc : pc+portableInstSize]
		op, d, a, b := in[0], in[1], in[2], in[3]
		imm := int32(binary.LittleEndian.Uint32(in[4:]))
		imm2 := int32(binary.LittleEndian.Uint32(in[8:]))
		pc += portableInstSize
		if d >= portableRegs || a >= portableRegs || b >= portableRegs {
			return fmt.Errorf("portable register out of range at 0x%x", pc-portableInstSize)
		}
		switch op {
		case pLoadCtx:
			r[d] = words[imm/8]
		case pStoreCtx:
			words[imm/8] = r[a]
		case pStoreCtxImm:
			words[imm/8] = uint64(int64(imm2))
		case pAddCtxImm:
			words[imm/8] += uint64(int64(imm2))
		case pMovImm:
			r[d] = uint64(uint32(imm)) | uint64(uint32(imm2))<<32
		case pMov:
			r[d] = r[a]
		case pAlu:
			r[d] = alu(AluOp(imm2), r[a], r[b])
		case pAluImm:
			r[d] = alu(AluOp(imm2), r[a], uint64(int64(imm)))
		case pShift:
			r[d] = shift(ShiftOp(imm2&0xff), r[a], uint8(imm), imm2&(1<<8) != 0)
		case pExt32:
			r[d] = uint64(int64(int32(uint32(r[a]))))
		case pSetCond:
			if compare(Cond(imm2), r[a], r[b]) {
				r[d] = 1
			} else {
				r[d] = 0
			}
		case pJump:
			pc += int(imm)
		case pJumpCond:
			if compare(Cond(imm2), r[a], r[b]) {
				pc += int(imm)
			}
		case pJumpZero:
			if r[a] == 0 {
				pc += int(imm)
			}
		case pJumpNonZero:
			if r[a] != 0 {
				pc += int(imm)
			}
		case pExit:
			ctx.Exit = uint64(imm)
			ctx.ExitArg = uint64(uint32(imm2))
			return nil
		default:
			return fmt.Errorf("portable opcode 0x%02x at 0x%x", op, pc-portableInstSize)
		}
	}
}

func alu(op AluOp, a, b uint64) uint64 {
	switch op {
	case AluAdd:
		return a + b
	case AluSub:
		return a - b
	case AluAnd:
		return a & b
	case AluOr:
		return a | b
	case AluXor:
		return a ^ b
	case AluNor:
		return ^(a | b)
	}
	return 0
}

func shift(op ShiftOp, v uint64, n uint8, width32 bool) uint64 {
	if width32 {
		w := uint32(v)
		n &= 31
		switch op {
		case ShiftLeft:
			w <<= n
		case ShiftRightLogical:
			w >>= n
		case ShiftRightArith:
			w = uint32(int32(w) >> n)
		}
		return uint64(int64(int32(w)))
	}
	n &= 63
	switch op {
	case ShiftLeft:
		return v << n
	case ShiftRightLogical:
		return v >> n
	case ShiftRightArith:
		return uint64(int64(v) >> n)
	}
	return v
}

func compare(c Cond, a, b uint64) bool {
	switch c {
	case CondEQ:
		return a == b
	case CondNE:
		return a != b
	case CondLT:
		return int64(a) < int64(b)
	case CondGE:
		return int64(a) >= int64(b)
	case CondLTU:
		return a < b
	case CondGEU:
		return a >= b
	case CondLE:
		return int64(a) <= int64(b)
	case CondGT:
		return int64(a) > int64(b)
	}
	return false
}
