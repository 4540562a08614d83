package isa

// Encoders for building guest programs in tests and from the debug console.

func EncodeR(funct, rs, rt, rd, sa uint32) uint32 {
	return rs<<21 | rt<<16 | rd<<11 | sa<<6 | funct
}

func EncodeI(op, rs, rt uint32, imm int32) uint32 {
	return op<<26 | rs<<21 | rt<<16 | uint32(imm)&0xffff
}

func EncodeJ(op, target uint32) uint32 {
	return op<<26 | (target>>2)&0x03ffffff
}

// branch offset from the instruction at pc to target
func branchOff(pc, target uint32) int32 {
	return int32(target-pc-4) >> 2
}

const (
	opSPECIAL = 0x00
	opREGIMM  = 0x01
	opJ       = 0x02
	opJAL     = 0x03
	opBEQ     = 0x04
	opBNE     = 0x05
	opBLEZ    = 0x06
	opBGTZ    = 0x07
	opADDI    = 0x08
	opADDIU   = 0x09
	opSLTI    = 0x0a
	opANDI    = 0x0c
	opORI     = 0x0d
	opLUI     = 0x0f
	opCOP0    = 0x10
	opCOP1    = 0x11
	opBEQL    = 0x14
	opBNEL    = 0x15
	opDADDIU  = 0x19
	opLB      = 0x20
	opLW      = 0x23
	opLBU     = 0x24
	opSB      = 0x28
	opSW      = 0x2b
	opLD      = 0x37
	opSD      = 0x3f
)

func Nop() uint32 { return 0 }

func Sll(rd, rt, sa uint32) uint32 { return EncodeR(0x00, 0, rt, rd, sa) }
func Jr(rs uint32) uint32          { return EncodeR(0x08, rs, 0, 0, 0) }
func Jalr(rd, rs uint32) uint32    { return EncodeR(0x09, rs, 0, rd, 0) }
func Syscall() uint32              { return EncodeR(0x0c, 0, 0, 0, 0) }
func Break() uint32                { return EncodeR(0x0d, 0, 0, 0, 0) }
func Mfhi(rd uint32) uint32        { return EncodeR(0x10, 0, 0, rd, 0) }
func Mflo(rd uint32) uint32        { return EncodeR(0x12, 0, 0, rd, 0) }
func Mult(rs, rt uint32) uint32    { return EncodeR(0x18, rs, rt, 0, 0) }
func Dmultu(rs, rt uint32) uint32  { return EncodeR(0x1d, rs, rt, 0, 0) }
func Div(rs, rt uint32) uint32     { return EncodeR(0x1a, rs, rt, 0, 0) }
func Add(rd, rs, rt uint32) uint32 { return EncodeR(0x20, rs, rt, rd, 0) }
func Addu(rd, rs, rt uint32) uint32 {
	return EncodeR(0x21, rs, rt, rd, 0)
}
func Subu(rd, rs, rt uint32) uint32  { return EncodeR(0x23, rs, rt, rd, 0) }
func And(rd, rs, rt uint32) uint32   { return EncodeR(0x24, rs, rt, rd, 0) }
func Or(rd, rs, rt uint32) uint32    { return EncodeR(0x25, rs, rt, rd, 0) }
func Xor(rd, rs, rt uint32) uint32   { return EncodeR(0x26, rs, rt, rd, 0) }
func Slt(rd, rs, rt uint32) uint32   { return EncodeR(0x2a, rs, rt, rd, 0) }
func Sltu(rd, rs, rt uint32) uint32  { return EncodeR(0x2b, rs, rt, rd, 0) }
func Daddu(rd, rs, rt uint32) uint32 { return EncodeR(0x2d, rs, rt, rd, 0) }
func Teq(rs, rt uint32) uint32       { return EncodeR(0x34, rs, rt, 0, 0) }

func Addi(rt, rs uint32, imm int32) uint32   { return EncodeI(opADDI, rs, rt, imm) }
func Addiu(rt, rs uint32, imm int32) uint32  { return EncodeI(opADDIU, rs, rt, imm) }
func Daddiu(rt, rs uint32, imm int32) uint32 { return EncodeI(opDADDIU, rs, rt, imm) }
func Slti(rt, rs uint32, imm int32) uint32   { return EncodeI(opSLTI, rs, rt, imm) }
func Andi(rt, rs uint32, imm uint16) uint32  { return EncodeI(opANDI, rs, rt, int32(imm)) }
func Ori(rt, rs uint32, imm uint16) uint32   { return EncodeI(opORI, rs, rt, int32(imm)) }
func Lui(rt uint32, imm uint16) uint32       { return EncodeI(opLUI, 0, rt, int32(imm)) }
func Lb(rt, base uint32, off int32) uint32   { return EncodeI(opLB, base, rt, off) }
func Lbu(rt, base uint32, off int32) uint32  { return EncodeI(opLBU, base, rt, off) }
func Lw(rt, base uint32, off int32) uint32   { return EncodeI(opLW, base, rt, off) }
func Ld(rt, base uint32, off int32) uint32   { return EncodeI(opLD, base, rt, off) }
func Sb(rt, base uint32, off int32) uint32   { return EncodeI(opSB, base, rt, off) }
func Sw(rt, base uint32, off int32) uint32   { return EncodeI(opSW, base, rt, off) }
func Sd(rt, base uint32, off int32) uint32   { return EncodeI(opSD, base, rt, off) }

// Branch encoders take the address of the branch itself and an absolute target.
func Beq(pc, rs, rt, target uint32) uint32 {
	return EncodeI(opBEQ, rs, rt, branchOff(pc, target))
}
func Bne(pc, rs, rt, target uint32) uint32 {
	return EncodeI(opBNE, rs, rt, branchOff(pc, target))
}
func Beql(pc, rs, rt, target uint32) uint32 {
	return EncodeI(opBEQL, rs, rt, branchOff(pc, target))
}
func Bnel(pc, rs, rt, target uint32) uint32 {
	return EncodeI(opBNEL, rs, rt, branchOff(pc, target))
}
func Blez(pc, rs, target uint32) uint32 { return EncodeI(opBLEZ, rs, 0, branchOff(pc, target)) }
func Bgtz(pc, rs, target uint32) uint32 { return EncodeI(opBGTZ, rs, 0, branchOff(pc, target)) }
func Bltz(pc, rs, target uint32) uint32 { return EncodeI(opREGIMM, rs, 0, branchOff(pc, target)) }
func Bgezal(pc, rs, target uint32) uint32 {
	return EncodeI(opREGIMM, rs, 0x11, branchOff(pc, target))
}
func Bgezl(pc, rs, target uint32) uint32 {
	return EncodeI(opREGIMM, rs, 0x03, branchOff(pc, target))
}
func Bgezall(pc, rs, target uint32) uint32 {
	return EncodeI(opREGIMM, rs, 0x13, branchOff(pc, target))
}

func Jmp(target uint32) uint32 { return EncodeJ(opJ, target) }
func Jal(target uint32) uint32 { return EncodeJ(opJAL, target) }

func Mfc0(rt, rd uint32) uint32 { return opCOP0<<26 | 0<<21 | rt<<16 | rd<<11 }
func Mtc0(rt, rd uint32) uint32 { return opCOP0<<26 | 4<<21 | rt<<16 | rd<<11 }
func Eret() uint32              { return opCOP0<<26 | 1<<25 | 0x18 }

func Mtc1(rt, fs uint32) uint32 { return opCOP1<<26 | 4<<21 | rt<<16 | fs<<11 }
func Mfc1(rt, fs uint32) uint32 { return opCOP1<<26 | 0<<21 | rt<<16 | fs<<11 }

// Fop encodes an FPU arithmetic op: fmt is FmtS/FmtD/FmtW/FmtL, funct the COP1 function.
func Fop(fmt, funct, fd, fs, ft uint32) uint32 {
	return opCOP1<<26 | fmt<<21 | ft<<16 | fs<<11 | fd<<6 | funct
}
