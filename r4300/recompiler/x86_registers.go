package recompiler

// X86Reg represents an x86-64 register with encoding information
type X86Reg struct {
	Name    string
	RegBits byte // 3-bit code for ModRM/SIB
	REXBit  byte // 1 if register index >= 8
}

var (
	RAX = X86Reg{"rax", 0, 0}
	RCX = X86Reg{"rcx", 1, 0}
	RDX = X86Reg{"rdx", 2, 0}
	RSI = X86Reg{"rsi", 6, 0}
	RDI = X86Reg{"rdi", 7, 0} // context pointer
	R8  = X86Reg{"r8", 0, 1}
	R9  = X86Reg{"r9", 1, 1}
	R10 = X86Reg{"r10", 2, 1}
	R11 = X86Reg{"r11", 3, 1}
)

// x86RegList is indexed by Reg: the guest register cache gets the caller-saved
// registers first, then the two scratch registers and the emitter's private temp.
var x86RegList = []X86Reg{
	RSI, R8, R9, R10, R11, // cache
	RAX, RCX, // scratch
	RDX, // private
}

const (
	x86NumRegs = 5
	x86Temp    = Reg(x86NumRegs + 2)
)

// x86CtxReg holds the guest context pointer for the whole of generated code.
var x86CtxReg = RDI
