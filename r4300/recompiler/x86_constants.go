package recompiler

// REX Prefix Constants
const (
	X86_REX_BASE = 0x40 // Base value for REX prefix
	X86_REX_W    = 0x08 // REX.W - 64-bit operand size
	X86_REX_R    = 0x04 // REX.R - Extension of ModRM reg field
	X86_REX_X    = 0x02 // REX.X - Extension of SIB index field
	X86_REX_B    = 0x01 // REX.B - Extension of ModRM r/m or opcode reg field
)

// ModRM Mode Constants
const (
	X86_MOD_INDIRECT        = 0x00 // [reg]
	X86_MOD_INDIRECT_DISP8  = 0x01 // [reg + disp8]
	X86_MOD_INDIRECT_DISP32 = 0x02 // [reg + disp32]
	X86_MOD_REGISTER        = 0x03 // reg
)

// Primary Opcodes
const (
	X86_OP_ADD_RM_R        = 0x01 // ADD r/m, r
	X86_OP_OR_RM_R         = 0x09 // OR r/m, r
	X86_OP_AND_RM_R        = 0x21 // AND r/m, r
	X86_OP_SUB_RM_R        = 0x29 // SUB r/m, r
	X86_OP_XOR_RM_R        = 0x31 // XOR r/m, r
	X86_OP_CMP_RM_R        = 0x39 // CMP r/m, r
	X86_OP_MOVSXD          = 0x63 // MOVSXD r64, r/m32
	X86_OP_GROUP1_RM_IMM32 = 0x81 // Group 1 operations with imm32
	X86_OP_TEST_RM_R       = 0x85 // TEST r/m, r
	X86_OP_MOV_RM_R        = 0x89 // MOV r/m, r
	X86_OP_MOV_R_RM        = 0x8B // MOV r, r/m
	X86_OP_MOV_R_IMM       = 0xB8 // MOV r, imm64 (+ reg)
	X86_OP_GROUP2_RM_IMM8  = 0xC1 // Group 2 shift operations with imm8
	X86_OP_RET             = 0xC3 // RET
	X86_OP_MOV_RM_IMM      = 0xC7 // MOV r/m, imm32
	X86_OP_JMP_REL32       = 0xE9 // JMP rel32
	X86_OP_UNARY_RM        = 0xF7 // Unary operations (TEST, NOT, NEG, ...) on r/m
)

// Two-byte Opcodes (0x0F prefix)
const (
	X86_PREFIX_0F       = 0x0F // Two-byte opcode prefix
	X86_OP2_MOVZX_R_RM8 = 0xB6 // MOVZX r, r/m8
	X86_OP2_JCC_BASE    = 0x80 // Jcc rel32 (+ condition)
	X86_OP2_SETCC_BASE  = 0x90 // SETcc r/m8 (+ condition)
)

// Condition codes shared by Jcc and SETcc
const (
	X86_CC_B  = 0x2 // below (unsigned <)
	X86_CC_AE = 0x3 // above or equal (unsigned >=)
	X86_CC_E  = 0x4 // equal
	X86_CC_NE = 0x5 // not equal
	X86_CC_L  = 0xC // less (signed)
	X86_CC_GE = 0xD // greater or equal (signed)
	X86_CC_LE = 0xE // less or equal (signed)
	X86_CC_G  = 0xF // greater (signed)
)

// ModRM reg field constants for opcodes with sub-operations
const (
	X86_REG_ADD = 0 // ADD (for 0x81 opcode)
	X86_REG_OR  = 1 // OR  (for 0x81 opcode)
	X86_REG_AND = 4 // AND (for 0x81 opcode)
	X86_REG_SUB = 5 // SUB (for 0x81 opcode)
	X86_REG_XOR = 6 // XOR (for 0x81 opcode)
	X86_REG_NOT = 2 // NOT (for 0xF7 opcode)
	X86_REG_MOV = 0 // MOV (for 0xC7 opcode)
)

// Shift operation reg field constants (for 0xC1 opcode)
const (
	X86_REG_SHL = 4 // SHL/SAL
	X86_REG_SHR = 5 // SHR
	X86_REG_SAR = 7 // SAR
)
