package isa

// Opcode is the closed set of operation descriptors. Every guest word decodes to
// exactly one value below NumGuestOpcodes; the values after it are produced by the
// translator and never by Decode.
type Opcode uint16

const (
	RESERVED Opcode = iota // architecturally reserved encoding
	NI                     // valid on the part, not emulated

	// SPECIAL
	SLL
	SRL
	SRA
	SLLV
	SRLV
	SRAV
	JR
	JALR
	SYSCALL
	BREAK
	SYNC
	MFHI
	MTHI
	MFLO
	MTLO
	DSLLV
	DSRLV
	DSRAV
	MULT
	MULTU
	DIV
	DIVU
	DMULT
	DMULTU
	DDIV
	DDIVU
	ADD
	ADDU
	SUB
	SUBU
	AND
	OR
	XOR
	NOR
	SLT
	SLTU
	DADD
	DADDU
	DSUB
	DSUBU
	TGE
	TGEU
	TLT
	TLTU
	TEQ
	TNE
	DSLL
	DSRL
	DSRA
	DSLL32
	DSRL32
	DSRA32

	// REGIMM
	BLTZ
	BGEZ
	BLTZL
	BGEZL
	TGEI
	TGEIU
	TLTI
	TLTIU
	TEQI
	TNEI
	BLTZAL
	BGEZAL
	BLTZALL
	BGEZALL

	// primary
	J
	JAL
	BEQ
	BNE
	BLEZ
	BGTZ
	ADDI
	ADDIU
	SLTI
	SLTIU
	ANDI
	ORI
	XORI
	LUI
	BEQL
	BNEL
	BLEZL
	BGTZL
	DADDI
	DADDIU
	LDL
	LDR
	LB
	LH
	LWL
	LW
	LBU
	LHU
	LWR
	LWU
	SB
	SH
	SWL
	SW
	SDL
	SDR
	SWR
	CACHE
	LL
	LWC1
	LLD
	LDC1
	LD
	SC
	SWC1
	SCD
	SDC1
	SD

	// COP0
	MFC0
	DMFC0
	MTC0
	DMTC0
	TLBR
	TLBWI
	TLBWR
	TLBP
	ERET

	// COP1
	MFC1
	DMFC1
	CFC1
	MTC1
	DMTC1
	CTC1
	BC1F
	BC1T
	BC1FL
	BC1TL
	ADD_FMT
	SUB_FMT
	MUL_FMT
	DIV_FMT
	SQRT_FMT
	ABS_FMT
	MOV_FMT
	NEG_FMT
	ROUND_L
	TRUNC_L
	CEIL_L
	FLOOR_L
	ROUND_W
	TRUNC_W
	CEIL_W
	FLOOR_W
	CVT_S
	CVT_D
	CVT_W
	CVT_L
	C_COND

	NumGuestOpcodes

	// translator pseudo-operations
	NOP         // no architectural effect
	NOTCOMPILED // slot not yet translated; entering it compiles it
	FIN_BLOCK   // unit footer, leaves the unit at a fixed address
	LINK_STUB   // pending in-unit link, resolved on first use

	NumOpcodes
)

// Class groups opcodes by how the translator and linker treat them.
type Class uint8

const (
	ClassInvalid Class = iota
	ClassALU
	ClassMulDiv
	ClassLoad
	ClassStore
	ClassBranch  // conditional PC-relative transfer with a delay slot
	ClassJump    // absolute J/JAL
	ClassJumpReg // JR/JALR
	ClassTrap
	ClassSystem // SYSCALL, BREAK, SYNC, CACHE
	ClassCop0
	ClassCop1
	ClassPseudo
)

const (
	flagLikely = 1 << iota
	flagLink
	flagNoFallthrough
	flag64
	flagFPU
)

type opInfo struct {
	name  string
	class Class
	form  form
	flags uint8
}

// form selects the operand layout used by the disassembler.
type form uint8

const (
	formNone form = iota
	formRdRsRt
	formRdRtSa
	formRdRtRs
	formRsRt
	formRs
	formRd
	formRdRs
	formRtRsImm
	formRtRsUImm
	formRtImm
	formRsRtOff
	formRsOff
	formRsImm
	formMem
	formFtMem
	formTarget
	formCode
	formRtRdCop
	formRtFs
	formFdFsFt
	formFdFs
	formCond
	formCC
)

var infos = [NumOpcodes]opInfo{
	RESERVED: {"reserved", ClassInvalid, formNone, 0},
	NI:       {"ni", ClassInvalid, formNone, 0},

	SLL:     {"sll", ClassALU, formRdRtSa, 0},
	SRL:     {"srl", ClassALU, formRdRtSa, 0},
	SRA:     {"sra", ClassALU, formRdRtSa, 0},
	SLLV:    {"sllv", ClassALU, formRdRtRs, 0},
	SRLV:    {"srlv", ClassALU, formRdRtRs, 0},
	SRAV:    {"srav", ClassALU, formRdRtRs, 0},
	JR:      {"jr", ClassJumpReg, formRs, flagNoFallthrough},
	JALR:    {"jalr", ClassJumpReg, formRdRs, flagLink | flagNoFallthrough},
	SYSCALL: {"syscall", ClassSystem, formCode, 0},
	BREAK:   {"break", ClassSystem, formCode, 0},
	SYNC:    {"sync", ClassSystem, formNone, 0},
	MFHI:    {"mfhi", ClassMulDiv, formRd, 0},
	MTHI:    {"mthi", ClassMulDiv, formRs, 0},
	MFLO:    {"mflo", ClassMulDiv, formRd, 0},
	MTLO:    {"mtlo", ClassMulDiv, formRs, 0},
	DSLLV:   {"dsllv", ClassALU, formRdRtRs, flag64},
	DSRLV:   {"dsrlv", ClassALU, formRdRtRs, flag64},
	DSRAV:   {"dsrav", ClassALU, formRdRtRs, flag64},
	MULT:    {"mult", ClassMulDiv, formRsRt, 0},
	MULTU:   {"multu", ClassMulDiv, formRsRt, 0},
	DIV:     {"div", ClassMulDiv, formRsRt, 0},
	DIVU:    {"divu", ClassMulDiv, formRsRt, 0},
	DMULT:   {"dmult", ClassMulDiv, formRsRt, flag64},
	DMULTU:  {"dmultu", ClassMulDiv, formRsRt, flag64},
	DDIV:    {"ddiv", ClassMulDiv, formRsRt, flag64},
	DDIVU:   {"ddivu", ClassMulDiv, formRsRt, flag64},
	ADD:     {"add", ClassALU, formRdRsRt, 0},
	ADDU:    {"addu", ClassALU, formRdRsRt, 0},
	SUB:     {"sub", ClassALU, formRdRsRt, 0},
	SUBU:    {"subu", ClassALU, formRdRsRt, 0},
	AND:     {"and", ClassALU, formRdRsRt, 0},
	OR:      {"or", ClassALU, formRdRsRt, 0},
	XOR:     {"xor", ClassALU, formRdRsRt, 0},
	NOR:     {"nor", ClassALU, formRdRsRt, 0},
	SLT:     {"slt", ClassALU, formRdRsRt, 0},
	SLTU:    {"sltu", ClassALU, formRdRsRt, 0},
	DADD:    {"dadd", ClassALU, formRdRsRt, flag64},
	DADDU:   {"daddu", ClassALU, formRdRsRt, flag64},
	DSUB:    {"dsub", ClassALU, formRdRsRt, flag64},
	DSUBU:   {"dsubu", ClassALU, formRdRsRt, flag64},
	TGE:     {"tge", ClassTrap, formRsRt, 0},
	TGEU:    {"tgeu", ClassTrap, formRsRt, 0},
	TLT:     {"tlt", ClassTrap, formRsRt, 0},
	TLTU:    {"tltu", ClassTrap, formRsRt, 0},
	TEQ:     {"teq", ClassTrap, formRsRt, 0},
	TNE:     {"tne", ClassTrap, formRsRt, 0},
	DSLL:    {"dsll", ClassALU, formRdRtSa, flag64},
	DSRL:    {"dsrl", ClassALU, formRdRtSa, flag64},
	DSRA:    {"dsra", ClassALU, formRdRtSa, flag64},
	DSLL32:  {"dsll32", ClassALU, formRdRtSa, flag64},
	DSRL32:  {"dsrl32", ClassALU, formRdRtSa, flag64},
	DSRA32:  {"dsra32", ClassALU, formRdRtSa, flag64},

	BLTZ:    {"bltz", ClassBranch, formRsOff, 0},
	BGEZ:    {"bgez", ClassBranch, formRsOff, 0},
	BLTZL:   {"bltzl", ClassBranch, formRsOff, flagLikely},
	BGEZL:   {"bgezl", ClassBranch, formRsOff, flagLikely},
	TGEI:    {"tgei", ClassTrap, formRsImm, 0},
	TGEIU:   {"tgeiu", ClassTrap, formRsImm, 0},
	TLTI:    {"tlti", ClassTrap, formRsImm, 0},
	TLTIU:   {"tltiu", ClassTrap, formRsImm, 0},
	TEQI:    {"teqi", ClassTrap, formRsImm, 0},
	TNEI:    {"tnei", ClassTrap, formRsImm, 0},
	BLTZAL:  {"bltzal", ClassBranch, formRsOff, flagLink},
	BGEZAL:  {"bgezal", ClassBranch, formRsOff, flagLink},
	BLTZALL: {"bltzall", ClassBranch, formRsOff, flagLink | flagLikely},
	BGEZALL: {"bgezall", ClassBranch, formRsOff, flagLink | flagLikely},

	J:      {"j", ClassJump, formTarget, flagNoFallthrough},
	JAL:    {"jal", ClassJump, formTarget, flagLink | flagNoFallthrough},
	BEQ:    {"beq", ClassBranch, formRsRtOff, 0},
	BNE:    {"bne", ClassBranch, formRsRtOff, 0},
	BLEZ:   {"blez", ClassBranch, formRsOff, 0},
	BGTZ:   {"bgtz", ClassBranch, formRsOff, 0},
	ADDI:   {"addi", ClassALU, formRtRsImm, 0},
	ADDIU:  {"addiu", ClassALU, formRtRsImm, 0},
	SLTI:   {"slti", ClassALU, formRtRsImm, 0},
	SLTIU:  {"sltiu", ClassALU, formRtRsImm, 0},
	ANDI:   {"andi", ClassALU, formRtRsUImm, 0},
	ORI:    {"ori", ClassALU, formRtRsUImm, 0},
	XORI:   {"xori", ClassALU, formRtRsUImm, 0},
	LUI:    {"lui", ClassALU, formRtImm, 0},
	BEQL:   {"beql", ClassBranch, formRsRtOff, flagLikely},
	BNEL:   {"bnel", ClassBranch, formRsRtOff, flagLikely},
	BLEZL:  {"blezl", ClassBranch, formRsOff, flagLikely},
	BGTZL:  {"bgtzl", ClassBranch, formRsOff, flagLikely},
	DADDI:  {"daddi", ClassALU, formRtRsImm, flag64},
	DADDIU: {"daddiu", ClassALU, formRtRsImm, flag64},
	LDL:    {"ldl", ClassLoad, formMem, flag64},
	LDR:    {"ldr", ClassLoad, formMem, flag64},
	LB:     {"lb", ClassLoad, formMem, 0},
	LH:     {"lh", ClassLoad, formMem, 0},
	LWL:    {"lwl", ClassLoad, formMem, 0},
	LW:     {"lw", ClassLoad, formMem, 0},
	LBU:    {"lbu", ClassLoad, formMem, 0},
	LHU:    {"lhu", ClassLoad, formMem, 0},
	LWR:    {"lwr", ClassLoad, formMem, 0},
	LWU:    {"lwu", ClassLoad, formMem, flag64},
	SB:     {"sb", ClassStore, formMem, 0},
	SH:     {"sh", ClassStore, formMem, 0},
	SWL:    {"swl", ClassStore, formMem, 0},
	SW:     {"sw", ClassStore, formMem, 0},
	SDL:    {"sdl", ClassStore, formMem, flag64},
	SDR:    {"sdr", ClassStore, formMem, flag64},
	SWR:    {"swr", ClassStore, formMem, 0},
	CACHE:  {"cache", ClassSystem, formMem, 0},
	LL:     {"ll", ClassLoad, formMem, 0},
	LWC1:   {"lwc1", ClassLoad, formFtMem, flagFPU},
	LLD:    {"lld", ClassLoad, formMem, flag64},
	LDC1:   {"ldc1", ClassLoad, formFtMem, flagFPU},
	LD:     {"ld", ClassLoad, formMem, flag64},
	SC:     {"sc", ClassStore, formMem, 0},
	SWC1:   {"swc1", ClassStore, formFtMem, flagFPU},
	SCD:    {"scd", ClassStore, formMem, flag64},
	SDC1:   {"sdc1", ClassStore, formFtMem, flagFPU},
	SD:     {"sd", ClassStore, formMem, flag64},

	MFC0:  {"mfc0", ClassCop0, formRtRdCop, 0},
	DMFC0: {"dmfc0", ClassCop0, formRtRdCop, 0},
	MTC0:  {"mtc0", ClassCop0, formRtRdCop, 0},
	DMTC0: {"dmtc0", ClassCop0, formRtRdCop, 0},
	TLBR:  {"tlbr", ClassCop0, formNone, 0},
	TLBWI: {"tlbwi", ClassCop0, formNone, 0},
	TLBWR: {"tlbwr", ClassCop0, formNone, 0},
	TLBP:  {"tlbp", ClassCop0, formNone, 0},
	ERET:  {"eret", ClassCop0, formNone, flagNoFallthrough},

	MFC1:     {"mfc1", ClassCop1, formRtFs, flagFPU},
	DMFC1:    {"dmfc1", ClassCop1, formRtFs, flagFPU},
	CFC1:     {"cfc1", ClassCop1, formRtFs, flagFPU},
	MTC1:     {"mtc1", ClassCop1, formRtFs, flagFPU},
	DMTC1:    {"dmtc1", ClassCop1, formRtFs, flagFPU},
	CTC1:     {"ctc1", ClassCop1, formRtFs, flagFPU},
	BC1F:     {"bc1f", ClassBranch, formCC, flagFPU},
	BC1T:     {"bc1t", ClassBranch, formCC, flagFPU},
	BC1FL:    {"bc1fl", ClassBranch, formCC, flagFPU | flagLikely},
	BC1TL:    {"bc1tl", ClassBranch, formCC, flagFPU | flagLikely},
	ADD_FMT:  {"add", ClassCop1, formFdFsFt, flagFPU},
	SUB_FMT:  {"sub", ClassCop1, formFdFsFt, flagFPU},
	MUL_FMT:  {"mul", ClassCop1, formFdFsFt, flagFPU},
	DIV_FMT:  {"div", ClassCop1, formFdFsFt, flagFPU},
	SQRT_FMT: {"sqrt", ClassCop1, formFdFs, flagFPU},
	ABS_FMT:  {"abs", ClassCop1, formFdFs, flagFPU},
	MOV_FMT:  {"mov", ClassCop1, formFdFs, flagFPU},
	NEG_FMT:  {"neg", ClassCop1, formFdFs, flagFPU},
	ROUND_L:  {"round.l", ClassCop1, formFdFs, flagFPU},
	TRUNC_L:  {"trunc.l", ClassCop1, formFdFs, flagFPU},
	CEIL_L:   {"ceil.l", ClassCop1, formFdFs, flagFPU},
	FLOOR_L:  {"floor.l", ClassCop1, formFdFs, flagFPU},
	ROUND_W:  {"round.w", ClassCop1, formFdFs, flagFPU},
	TRUNC_W:  {"trunc.w", ClassCop1, formFdFs, flagFPU},
	CEIL_W:   {"ceil.w", ClassCop1, formFdFs, flagFPU},
	FLOOR_W:  {"floor.w", ClassCop1, formFdFs, flagFPU},
	CVT_S:    {"cvt.s", ClassCop1, formFdFs, flagFPU},
	CVT_D:    {"cvt.d", ClassCop1, formFdFs, flagFPU},
	CVT_W:    {"cvt.w", ClassCop1, formFdFs, flagFPU},
	CVT_L:    {"cvt.l", ClassCop1, formFdFs, flagFPU},
	C_COND:   {"c", ClassCop1, formCond, flagFPU},

	NOP:         {"nop", ClassPseudo, formNone, 0},
	NOTCOMPILED: {"notcompiled", ClassPseudo, formNone, 0},
	FIN_BLOCK:   {"fin_block", ClassPseudo, formNone, flagNoFallthrough},
	LINK_STUB:   {"link_stub", ClassPseudo, formNone, flagNoFallthrough},
}

func (op Opcode) String() string {
	if op >= NumOpcodes {
		return "invalid"
	}
	return infos[op].name
}

func (op Opcode) Class() Class {
	if op >= NumOpcodes {
		return ClassInvalid
	}
	return infos[op].class
}

// IsLikely reports whether the delay slot is nullified when the branch is not taken.
func (op Opcode) IsLikely() bool { return op < NumOpcodes && infos[op].flags&flagLikely != 0 }

// IsLink reports whether the transfer writes a return address.
func (op Opcode) IsLink() bool { return op < NumOpcodes && infos[op].flags&flagLink != 0 }

// EndsUnit reports whether execution can never fall through to the next sequential slot
// (after the delay slot, for transfers that have one).
func (op Opcode) EndsUnit() bool { return op < NumOpcodes && infos[op].flags&flagNoFallthrough != 0 }

func (op Opcode) Is64() bool { return op < NumOpcodes && infos[op].flags&flag64 != 0 }

func (op Opcode) IsFPU() bool { return op < NumOpcodes && infos[op].flags&flagFPU != 0 }

// IsTransfer reports whether op is a branch or jump, i.e. has a delay slot.
func (op Opcode) IsTransfer() bool {
	switch op.Class() {
	case ClassBranch, ClassJump, ClassJumpReg:
		return true
	}
	return false
}

// IsInvalid reports whether executing op raises the reserved-instruction exception.
func (op Opcode) IsInvalid() bool { return op == RESERVED || op == NI }

// HasStaticTarget reports whether the transfer target is known at decode time.
func (op Opcode) HasStaticTarget() bool {
	c := op.Class()
	return c == ClassBranch || c == ClassJump
}

func (c Class) String() string {
	switch c {
	case ClassALU:
		return "alu"
	case ClassMulDiv:
		return "muldiv"
	case ClassLoad:
		return "load"
	case ClassStore:
		return "store"
	case ClassBranch:
		return "branch"
	case ClassJump:
		return "jump"
	case ClassJumpReg:
		return "jumpreg"
	case ClassTrap:
		return "trap"
	case ClassSystem:
		return "system"
	case ClassCop0:
		return "cop0"
	case ClassCop1:
		return "cop1"
	case ClassPseudo:
		return "pseudo"
	}
	return "invalid"
}
