package isa

import "fmt"

var gprNames = [32]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "s8", "ra",
}

var cop0Names = [32]string{
	"Index", "Random", "EntryLo0", "EntryLo1", "Context", "PageMask", "Wired", "$7",
	"BadVAddr", "Count", "EntryHi", "Compare", "Status", "Cause", "EPC", "PRId",
	"Config", "LLAddr", "WatchLo", "WatchHi", "XContext", "$21", "$22", "$23",
	"$24", "$25", "PErr", "CacheErr", "TagLo", "TagHi", "ErrorEPC", "$31",
}

var condNames = [16]string{
	"f", "un", "eq", "ueq", "olt", "ult", "ole", "ule",
	"sf", "ngle", "seq", "ngl", "lt", "nge", "le", "ngt",
}

// GPRName returns the ABI name of a general purpose register.
func GPRName(r uint8) string { return gprNames[r&31] }

// Cop0Name returns the name of a system control register.
func Cop0Name(r uint8) string { return cop0Names[r&31] }

// Disassemble renders the instruction in conventional assembler syntax.
func Disassemble(i Inst) string {
	name := i.Op.String()
	r := GPRName
	switch i.Op {
	case SLL:
		if i.Word == 0 {
			return "nop"
		}
	case RESERVED, NI:
		return fmt.Sprintf("%s 0x%08x", name, i.Word)
	}
	switch infos[i.Op].form {
	case formRdRsRt:
		return fmt.Sprintf("%s %s, %s, %s", name, r(i.Rd), r(i.Rs), r(i.Rt))
	case formRdRtSa:
		return fmt.Sprintf("%s %s, %s, %d", name, r(i.Rd), r(i.Rt), i.Sa)
	case formRdRtRs:
		return fmt.Sprintf("%s %s, %s, %s", name, r(i.Rd), r(i.Rt), r(i.Rs))
	case formRsRt:
		return fmt.Sprintf("%s %s, %s", name, r(i.Rs), r(i.Rt))
	case formRs:
		return fmt.Sprintf("%s %s", name, r(i.Rs))
	case formRd:
		return fmt.Sprintf("%s %s", name, r(i.Rd))
	case formRdRs:
		return fmt.Sprintf("%s %s, %s", name, r(i.Rd), r(i.Rs))
	case formRtRsImm:
		return fmt.Sprintf("%s %s, %s, %d", name, r(i.Rt), r(i.Rs), i.Imm)
	case formRtRsUImm:
		return fmt.Sprintf("%s %s, %s, 0x%x", name, r(i.Rt), r(i.Rs), i.UImm)
	case formRtImm:
		return fmt.Sprintf("%s %s, 0x%x", name, r(i.Rt), i.UImm)
	case formRsRtOff:
		return fmt.Sprintf("%s %s, %s, 0x%08x", name, r(i.Rs), r(i.Rt), i.Target)
	case formRsOff:
		return fmt.Sprintf("%s %s, 0x%08x", name, r(i.Rs), i.Target)
	case formRsImm:
		return fmt.Sprintf("%s %s, %d", name, r(i.Rs), i.Imm)
	case formMem:
		return fmt.Sprintf("%s %s, %d(%s)", name, r(i.Rt), i.Imm, r(i.Rs))
	case formFtMem:
		return fmt.Sprintf("%s $f%d, %d(%s)", name, i.Ft(), i.Imm, r(i.Rs))
	case formTarget:
		return fmt.Sprintf("%s 0x%08x", name, i.Target)
	case formCode:
		return fmt.Sprintf("%s 0x%x", name, (i.Word>>6)&0xfffff)
	case formRtRdCop:
		return fmt.Sprintf("%s %s, %s", name, r(i.Rt), Cop0Name(i.Rd))
	case formRtFs:
		return fmt.Sprintf("%s %s, $f%d", name, r(i.Rt), i.Fs())
	case formFdFsFt:
		return fmt.Sprintf("%s%s $f%d, $f%d, $f%d", name, FmtSuffix(i.Fmt), i.Fd(), i.Fs(), i.Ft())
	case formFdFs:
		return fmt.Sprintf("%s%s $f%d, $f%d", name, FmtSuffix(i.Fmt), i.Fd(), i.Fs())
	case formCond:
		return fmt.Sprintf("c.%s%s $f%d, $f%d", condNames[i.Cond()], FmtSuffix(i.Fmt), i.Fs(), i.Ft())
	case formCC:
		return fmt.Sprintf("%s 0x%08x", name, i.Target)
	}
	return name
}
