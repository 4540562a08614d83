package isa

import (
	"fmt"
)

// FPU operand formats (COP1 rs field).
const (
	FmtS = 16
	FmtD = 17
	FmtW = 20
	FmtL = 21
)

// Inst is the decoded operand union for one guest instruction.
type Inst struct {
	Word   uint32
	Op     Opcode
	Rs     uint8
	Rt     uint8
	Rd     uint8
	Sa     uint8
	Funct  uint8
	Fmt    uint8  // COP1 format for arithmetic, compare and convert
	Imm    int64  // sign-extended 16-bit immediate
	UImm   uint64 // zero-extended 16-bit immediate
	Target uint32 // static target for branches and J/JAL
}

func (i Inst) Fs() uint8 { return i.Rd }
func (i Inst) Ft() uint8 { return i.Rt }
func (i Inst) Fd() uint8 { return i.Sa }

// Cond is the c.cond predicate (funct & 0xf).
func (i Inst) Cond() uint8 { return i.Funct & 0xf }

type table []Opcode

var (
	primary  table
	special  table
	regimm   table
	cop0     table
	cop0Func table
	cop1     table
	bc1      table
	cop1S    table
	cop1D    table
	cop1W    table
	cop1L    table
)

// sub-table selectors stored in the primary and coprocessor tables
const (
	selSpecial Opcode = NumOpcodes + iota
	selRegimm
	selCop0
	selCop1
	selCO
	selBC1
	selS
	selD
	selW
	selL
)

func newTable(n int, fill Opcode) table {
	t := make(table, n)
	for i := range t {
		t[i] = fill
	}
	return t
}

func init() {
	primary = newTable(64, RESERVED)
	copy(primary, []Opcode{
		selSpecial, selRegimm, J, JAL, BEQ, BNE, BLEZ, BGTZ,
		ADDI, ADDIU, SLTI, SLTIU, ANDI, ORI, XORI, LUI,
		selCop0, selCop1, NI, RESERVED, BEQL, BNEL, BLEZL, BGTZL,
		DADDI, DADDIU, LDL, LDR, RESERVED, RESERVED, RESERVED, RESERVED,
		LB, LH, LWL, LW, LBU, LHU, LWR, LWU,
		SB, SH, SWL, SW, SDL, SDR, SWR, CACHE,
		LL, LWC1, NI, RESERVED, LLD, LDC1, NI, LD,
		SC, SWC1, NI, RESERVED, SCD, SDC1, NI, SD,
	})

	special = newTable(64, RESERVED)
	copy(special, []Opcode{
		SLL, RESERVED, SRL, SRA, SLLV, RESERVED, SRLV, SRAV,
		JR, JALR, RESERVED, RESERVED, SYSCALL, BREAK, RESERVED, SYNC,
		MFHI, MTHI, MFLO, MTLO, DSLLV, RESERVED, DSRLV, DSRAV,
		MULT, MULTU, DIV, DIVU, DMULT, DMULTU, DDIV, DDIVU,
		ADD, ADDU, SUB, SUBU, AND, OR, XOR, NOR,
		RESERVED, RESERVED, SLT, SLTU, DADD, DADDU, DSUB, DSUBU,
		TGE, TGEU, TLT, TLTU, TEQ, RESERVED, TNE, RESERVED,
		DSLL, RESERVED, DSRL, DSRA, DSLL32, RESERVED, DSRL32, DSRA32,
	})

	regimm = newTable(32, RESERVED)
	copy(regimm, []Opcode{
		BLTZ, BGEZ, BLTZL, BGEZL, RESERVED, RESERVED, RESERVED, RESERVED,
		TGEI, TGEIU, TLTI, TLTIU, TEQI, RESERVED, TNEI, RESERVED,
		BLTZAL, BGEZAL, BLTZALL, BGEZALL,
	})

	cop0 = newTable(32, RESERVED)
	cop0[0], cop0[1], cop0[4], cop0[5] = MFC0, DMFC0, MTC0, DMTC0
	for rs := 16; rs < 32; rs++ {
		cop0[rs] = selCO
	}
	cop0Func = newTable(64, RESERVED)
	cop0Func[1], cop0Func[2], cop0Func[6], cop0Func[8], cop0Func[24] = TLBR, TLBWI, TLBWR, TLBP, ERET

	cop1 = newTable(32, RESERVED)
	cop1[0], cop1[1], cop1[2], cop1[4], cop1[5], cop1[6] = MFC1, DMFC1, CFC1, MTC1, DMTC1, CTC1
	cop1[8] = selBC1
	cop1[FmtS], cop1[FmtD], cop1[FmtW], cop1[FmtL] = selS, selD, selW, selL
	bc1 = table{BC1F, BC1T, BC1FL, BC1TL}

	arith := newTable(64, RESERVED)
	copy(arith, []Opcode{
		ADD_FMT, SUB_FMT, MUL_FMT, DIV_FMT, SQRT_FMT, ABS_FMT, MOV_FMT, NEG_FMT,
		ROUND_L, TRUNC_L, CEIL_L, FLOOR_L, ROUND_W, TRUNC_W, CEIL_W, FLOOR_W,
	})
	arith[33], arith[36], arith[37] = CVT_D, CVT_W, CVT_L
	for f := 48; f < 64; f++ {
		arith[f] = C_COND
	}
	cop1S = arith
	cop1D = append(table(nil), arith...)
	cop1D[32], cop1D[33] = CVT_S, RESERVED

	cop1W = newTable(64, RESERVED)
	cop1W[32], cop1W[33] = CVT_S, CVT_D
	cop1L = append(table(nil), cop1W...)
}

// Decode resolves a guest word to its operation descriptor. It is total: every
// encoding maps to exactly one opcode, unknown ones to RESERVED or NI.
func Decode(w uint32) Opcode {
	op := primary[FieldOp(w)]
	switch op {
	case selSpecial:
		return special[FieldFunct(w)]
	case selRegimm:
		return regimm[FieldRt(w)]
	case selCop0:
		op = cop0[FieldRs(w)]
		if op == selCO {
			return cop0Func[FieldFunct(w)]
		}
		return op
	case selCop1:
		switch sub := cop1[FieldRs(w)]; sub {
		case selBC1:
			return bc1[FieldRt(w)&3]
		case selS:
			return cop1S[FieldFunct(w)]
		case selD:
			return cop1D[FieldFunct(w)]
		case selW:
			return cop1W[FieldFunct(w)]
		case selL:
			return cop1L[FieldFunct(w)]
		default:
			return sub
		}
	}
	return op
}

// DecodeInst decodes operands of the word fetched from guest address pc.
func DecodeInst(w uint32, pc uint32) Inst {
	in := Inst{
		Word:  w,
		Op:    Decode(w),
		Rs:    uint8(FieldRs(w)),
		Rt:    uint8(FieldRt(w)),
		Rd:    uint8(FieldRd(w)),
		Sa:    uint8(FieldSa(w)),
		Funct: uint8(FieldFunct(w)),
		Imm:   SignExtend(FieldImm(w), 16),
		UImm:  uint64(FieldImm(w)),
	}
	switch in.Op.Class() {
	case ClassBranch:
		in.Target = pc + 4 + uint32(in.Imm<<2)
	case ClassJump:
		in.Target = ((pc + 4) & 0xf0000000) | FieldIndex(w)<<2
	case ClassCop1:
		in.Fmt = uint8(FieldRs(w))
	}
	return in
}

func (i Inst) String() string {
	return Disassemble(i)
}

// FmtSuffix returns the ".s"/".d"/".w"/".l" suffix of an FPU format.
func FmtSuffix(f uint8) string {
	switch f {
	case FmtS:
		return ".s"
	case FmtD:
		return ".d"
	case FmtW:
		return ".w"
	case FmtL:
		return ".l"
	}
	return fmt.Sprintf(".fmt%d", f)
}
