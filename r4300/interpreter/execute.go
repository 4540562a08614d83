package interpreter

import (
	"math"

	"github.com/holiman/uint256"

	"github.com/colorfulnotion/r4300/r4300/isa"
)

// Outcome tells the caller how control continues after Execute.
type Outcome uint8

const (
	Next   Outcome = iota // continue at pc+4
	Branch                // delayed transfer: Taken and Target are set, the delay slot follows
	Jump                  // immediate transfer (ERET): s.PC holds the destination
	Raised                // exception taken: s.PC holds the vector
)

func (o Outcome) String() string {
	switch o {
	case Next:
		return "next"
	case Branch:
		return "branch"
	case Jump:
		return "jump"
	case Raised:
		return "raised"
	}
	return "unknown"
}

// Execute applies the semantics of one decoded instruction located at pc. It does not
// charge the cycle clock and never moves s.PC except for Jump and Raised.
func (s *State) Execute(in isa.Inst, pc uint32, inDelay bool) Outcome {
	rs, rt := s.GPR[in.Rs], s.GPR[in.Rt]
	sa := uint32(in.Sa)

	switch in.Op {
	case isa.NOP, isa.SYNC, isa.CACHE:
	case isa.RESERVED, isa.NI:
		s.Raise(ExcRI, pc, inDelay)
		return Raised

	// shifts
	case isa.SLL:
		s.setGPR(in.Rd, signExt32(uint32(rt)<<sa))
	case isa.SRL:
		s.setGPR(in.Rd, signExt32(uint32(rt)>>sa))
	case isa.SRA:
		s.setGPR(in.Rd, signExt32(uint32(int32(uint32(rt))>>sa)))
	case isa.SLLV:
		s.setGPR(in.Rd, signExt32(uint32(rt)<<(rs&31)))
	case isa.SRLV:
		s.setGPR(in.Rd, signExt32(uint32(rt)>>(rs&31)))
	case isa.SRAV:
		s.setGPR(in.Rd, signExt32(uint32(int32(uint32(rt))>>(rs&31))))
	case isa.DSLLV:
		s.setGPR(in.Rd, rt<<(rs&63))
	case isa.DSRLV:
		s.setGPR(in.Rd, rt>>(rs&63))
	case isa.DSRAV:
		s.setGPR(in.Rd, uint64(int64(rt)>>(rs&63)))
	case isa.DSLL:
		s.setGPR(in.Rd, rt<<sa)
	case isa.DSRL:
		s.setGPR(in.Rd, rt>>sa)
	case isa.DSRA:
		s.setGPR(in.Rd, uint64(int64(rt)>>sa))
	case isa.DSLL32:
		s.setGPR(in.Rd, rt<<(sa+32))
	case isa.DSRL32:
		s.setGPR(in.Rd, rt>>(sa+32))
	case isa.DSRA32:
		s.setGPR(in.Rd, uint64(int64(rt)>>(sa+32)))

	// hi/lo
	case isa.MFHI:
		s.setGPR(in.Rd, s.HI)
	case isa.MTHI:
		s.HI = rs
	case isa.MFLO:
		s.setGPR(in.Rd, s.LO)
	case isa.MTLO:
		s.LO = rs
	case isa.MULT:
		p := int64(int32(rs)) * int64(int32(rt))
		s.LO, s.HI = signExt32(uint32(p)), signExt32(uint32(p>>32))
	case isa.MULTU:
		p := uint64(uint32(rs)) * uint64(uint32(rt))
		s.LO, s.HI = signExt32(uint32(p)), signExt32(uint32(p>>32))
	case isa.DIV:
		s.LO, s.HI = div32(int32(rs), int32(rt))
	case isa.DIVU:
		s.LO, s.HI = divu32(uint32(rs), uint32(rt))
	case isa.DMULT:
		s.LO, s.HI = mul128(rs, rt, true)
	case isa.DMULTU:
		s.LO, s.HI = mul128(rs, rt, false)
	case isa.DDIV:
		s.LO, s.HI = div64(int64(rs), int64(rt))
	case isa.DDIVU:
		if rt == 0 {
			s.LO, s.HI = ^uint64(0), rs
		} else {
			s.LO, s.HI = rs/rt, rs%rt
		}

	// register ALU
	case isa.ADD:
		r := int32(rs) + int32(rt)
		if overflow32(int32(rs), int32(rt), r) {
			s.Raise(ExcOv, pc, inDelay)
			return Raised
		}
		s.setGPR(in.Rd, signExt32(uint32(r)))
	case isa.ADDU:
		s.setGPR(in.Rd, signExt32(uint32(rs)+uint32(rt)))
	case isa.SUB:
		r := int32(rs) - int32(rt)
		if (int32(rs)^int32(rt))&(int32(rs)^r) < 0 {
			s.Raise(ExcOv, pc, inDelay)
			return Raised
		}
		s.setGPR(in.Rd, signExt32(uint32(r)))
	case isa.SUBU:
		s.setGPR(in.Rd, signExt32(uint32(rs)-uint32(rt)))
	case isa.AND:
		s.setGPR(in.Rd, rs&rt)
	case isa.OR:
		s.setGPR(in.Rd, rs|rt)
	case isa.XOR:
		s.setGPR(in.Rd, rs^rt)
	case isa.NOR:
		s.setGPR(in.Rd, ^(rs | rt))
	case isa.SLT:
		s.setGPR(in.Rd, b2u(int64(rs) < int64(rt)))
	case isa.SLTU:
		s.setGPR(in.Rd, b2u(rs < rt))
	case isa.DADD:
		r := rs + rt
		if overflow64(rs, rt, r) {
			s.Raise(ExcOv, pc, inDelay)
			return Raised
		}
		s.setGPR(in.Rd, r)
	case isa.DADDU:
		s.setGPR(in.Rd, rs+rt)
	case isa.DSUB:
		r := rs - rt
		if (rs^rt)&(rs^r)>>63 != 0 {
			s.Raise(ExcOv, pc, inDelay)
			return Raised
		}
		s.setGPR(in.Rd, r)
	case isa.DSUBU:
		s.setGPR(in.Rd, rs-rt)

	// immediate ALU
	case isa.ADDI:
		r := int32(rs) + int32(in.Imm)
		if overflow32(int32(rs), int32(in.Imm), r) {
			s.Raise(ExcOv, pc, inDelay)
			return Raised
		}
		s.setGPR(in.Rt, signExt32(uint32(r)))
	case isa.ADDIU:
		s.setGPR(in.Rt, signExt32(uint32(rs)+uint32(in.Imm)))
	case isa.DADDI:
		r := rs + uint64(in.Imm)
		if overflow64(rs, uint64(in.Imm), r) {
			s.Raise(ExcOv, pc, inDelay)
			return Raised
		}
		s.setGPR(in.Rt, r)
	case isa.DADDIU:
		s.setGPR(in.Rt, rs+uint64(in.Imm))
	case isa.SLTI:
		s.setGPR(in.Rt, b2u(int64(rs) < in.Imm))
	case isa.SLTIU:
		s.setGPR(in.Rt, b2u(rs < uint64(in.Imm)))
	case isa.ANDI:
		s.setGPR(in.Rt, rs&in.UImm)
	case isa.ORI:
		s.setGPR(in.Rt, rs|in.UImm)
	case isa.XORI:
		s.setGPR(in.Rt, rs^in.UImm)
	case isa.LUI:
		s.setGPR(in.Rt, uint64(in.Imm<<16))

	// traps
	case isa.TGE, isa.TGEU, isa.TLT, isa.TLTU, isa.TEQ, isa.TNE:
		if trap(in.Op, rs, rt) {
			s.Raise(ExcTr, pc, inDelay)
			return Raised
		}
	case isa.TGEI, isa.TGEIU, isa.TLTI, isa.TLTIU, isa.TEQI, isa.TNEI:
		if trap(in.Op, rs, uint64(in.Imm)) {
			s.Raise(ExcTr, pc, inDelay)
			return Raised
		}
	case isa.SYSCALL:
		s.Raise(ExcSys, pc, inDelay)
		return Raised
	case isa.BREAK:
		s.Raise(ExcBp, pc, inDelay)
		return Raised

	// transfers
	case isa.J:
		s.Taken, s.Target = 1, uint64(in.Target)
		return Branch
	case isa.JAL:
		s.setGPR(31, signExt32(pc+8))
		s.Taken, s.Target = 1, uint64(in.Target)
		return Branch
	case isa.JR:
		s.Taken, s.Target = 1, uint64(uint32(rs))
		return Branch
	case isa.JALR:
		s.Taken, s.Target = 1, uint64(uint32(rs))
		s.setGPR(in.Rd, signExt32(pc+8))
		return Branch
	case isa.BEQ, isa.BNE, isa.BLEZ, isa.BGTZ, isa.BEQL, isa.BNEL, isa.BLEZL, isa.BGTZL,
		isa.BLTZ, isa.BGEZ, isa.BLTZL, isa.BGEZL, isa.BLTZAL, isa.BGEZAL, isa.BLTZALL, isa.BGEZALL:
		if in.Op.IsLink() {
			s.setGPR(31, signExt32(pc+8))
		}
		s.Taken, s.Target = b2u(Condition(in.Op, rs, rt)), uint64(in.Target)
		return Branch
	case isa.BC1F, isa.BC1T, isa.BC1FL, isa.BC1TL:
		if !s.cop1Usable(pc, inDelay) {
			return Raised
		}
		c := s.FCR31&fcrCondition != 0
		if in.Op == isa.BC1F || in.Op == isa.BC1FL {
			c = !c
		}
		s.Taken, s.Target = b2u(c), uint64(in.Target)
		return Branch

	// cop0
	case isa.MFC0:
		s.setGPR(in.Rt, signExt32(uint32(s.readCop0(in.Rd))))
	case isa.DMFC0:
		s.setGPR(in.Rt, s.readCop0(in.Rd))
	case isa.MTC0:
		s.writeCop0(in.Rd, signExt32(uint32(rt)))
	case isa.DMTC0:
		s.writeCop0(in.Rd, rt)
	case isa.TLBR:
		s.tlbOp(tlbRead)
	case isa.TLBWI:
		s.tlbOp(tlbWriteIndexed)
	case isa.TLBWR:
		s.tlbOp(tlbWriteRandom)
	case isa.TLBP:
		s.tlbOp(tlbProbe)
	case isa.ERET:
		s.eret()
		return Jump

	default:
		switch in.Op.Class() {
		case isa.ClassLoad, isa.ClassStore:
			if !s.memOp(in, pc, inDelay) {
				return Raised
			}
		case isa.ClassCop1:
			if !s.cop1(in, pc, inDelay) {
				return Raised
			}
		default:
			s.Raise(ExcRI, pc, inDelay)
			return Raised
		}
	}
	return Next
}

// Condition evaluates a conditional branch. rt is ignored by the compare-with-zero forms.
func Condition(op isa.Opcode, rs, rt uint64) bool {
	switch op {
	case isa.BEQ, isa.BEQL:
		return rs == rt
	case isa.BNE, isa.BNEL:
		return rs != rt
	case isa.BLEZ, isa.BLEZL:
		return int64(rs) <= 0
	case isa.BGTZ, isa.BGTZL:
		return int64(rs) > 0
	case isa.BLTZ, isa.BLTZL, isa.BLTZAL, isa.BLTZALL:
		return int64(rs) < 0
	case isa.BGEZ, isa.BGEZL, isa.BGEZAL, isa.BGEZALL:
		return int64(rs) >= 0
	}
	return false
}

func trap(op isa.Opcode, a, b uint64) bool {
	switch op {
	case isa.TGE, isa.TGEI:
		return int64(a) >= int64(b)
	case isa.TGEU, isa.TGEIU:
		return a >= b
	case isa.TLT, isa.TLTI:
		return int64(a) < int64(b)
	case isa.TLTU, isa.TLTIU:
		return a < b
	case isa.TEQ, isa.TEQI:
		return a == b
	case isa.TNE, isa.TNEI:
		return a != b
	}
	return false
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func overflow32(a, b, r int32) bool {
	return (a >= 0) == (b >= 0) && (r >= 0) != (a >= 0)
}

func overflow64(a, b, r uint64) bool {
	return ^(a^b)&(a^r)>>63 != 0
}

func div32(n, d int32) (lo, hi uint64) {
	switch {
	case d == 0:
		if n < 0 {
			return 1, signExt32(uint32(n))
		}
		return ^uint64(0), signExt32(uint32(n))
	case n == math.MinInt32 && d == -1:
		return signExt32(uint32(n)), 0
	}
	return signExt32(uint32(n / d)), signExt32(uint32(n % d))
}

func divu32(n, d uint32) (lo, hi uint64) {
	if d == 0 {
		return ^uint64(0), signExt32(n)
	}
	return signExt32(n / d), signExt32(n % d)
}

func div64(n, d int64) (lo, hi uint64) {
	switch {
	case d == 0:
		if n < 0 {
			return 1, uint64(n)
		}
		return ^uint64(0), uint64(n)
	case n == math.MinInt64 && d == -1:
		return uint64(n), 0
	}
	return uint64(n / d), uint64(n % d)
}

// mul128 returns the low and high halves of the 128-bit product.
func mul128(a, b uint64, signed bool) (lo, hi uint64) {
	var ea, eb uint64
	if signed {
		ea, eb = uint64(int64(a)>>63), uint64(int64(b)>>63)
	}
	x := uint256.Int{a, ea, ea, ea}
	y := uint256.Int{b, eb, eb, eb}
	var p uint256.Int
	p.Mul(&x, &y)
	return p[0], p[1]
}
