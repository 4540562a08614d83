package recompiler

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// Disassemble renders host code of backend b, one instruction per line.
func Disassemble(b Backend, code []byte) string {
	switch b {
	case BackendAMD64:
		return disassembleX86(code)
	case BackendARM64:
		return disassembleARM64(code)
	}
	return disassemblePortable(code)
}

func hexBytes(code []byte) string {
	var parts []string
	for _, c := range code {
		parts = append(parts, fmt.Sprintf("%02x", c))
	}
	return strings.Join(parts, " ")
}

func disassembleX86(code []byte) string {
	var sb strings.Builder
	offset := 0
	for offset < len(code) {
		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil {
			sb.WriteString(fmt.Sprintf("0x%04x: db 0x%02x\n", offset, code[offset]))
			offset++
			continue
		}
		sb.WriteString(fmt.Sprintf("0x%04x: %-16s %s\n", offset, hexBytes(code[offset:offset+inst.Len]), inst.String()))
		offset += inst.Len
	}
	return sb.String()
}

func disassembleARM64(code []byte) string {
	var sb strings.Builder
	for offset := 0; offset+4 <= len(code); offset += 4 {
		inst, err := arm64asm.Decode(code[offset : offset+4])
		var text string
		if err != nil {
			text = fmt.Sprintf(".word 0x%08x", binary.LittleEndian.Uint32(code[offset:]))
		} else {
			text = arm64asm.GNUSyntax(inst)
		}
		sb.WriteString(fmt.Sprintf("0x%04x: %-16s %s\n", offset, hexBytes(code[offset:offset+4]), text))
	}
	return sb.String()
}

func disassemblePortable(code []byte) string {
	var sb strings.Builder
	for offset := 0; offset+portableInstSize <= len(code); offset += portableInstSize {
		sb.WriteString(fmt.Sprintf("0x%04x: %s\n", offset, portableInstString(code[offset:offset+portableInstSize], offset)))
	}
	return sb.String()
}

func portableInstString(in []byte, offset int) string {
	op, d, a, b := in[0], in[1], in[2], in[3]
	imm := int32(binary.LittleEndian.Uint32(in[4:]))
	imm2 := int32(binary.LittleEndian.Uint32(in[8:]))
	name := "invalid"
	if int(op) < len(portableNames) {
		name = portableNames[op]
	}
	target := offset + portableInstSize + int(imm)
	switch op {
	case pLoadCtx:
		return fmt.Sprintf("%s p%d, [ctx+%d]", name, d, imm)
	case pStoreCtx:
		return fmt.Sprintf("%s [ctx+%d], p%d", name, imm, a)
	case pStoreCtxImm, pAddCtxImm:
		return fmt.Sprintf("%s [ctx+%d], %d", name, imm, imm2)
	case pMovImm:
		return fmt.Sprintf("%s p%d, 0x%x", name, d, uint64(uint32(imm))|uint64(uint32(imm2))<<32)
	case pMov, pExt32:
		return fmt.Sprintf("%s p%d, p%d", name, d, a)
	case pAlu:
		return fmt.Sprintf("%s.%d p%d, p%d, p%d", name, imm2, d, a, b)
	case pAluImm:
		return fmt.Sprintf("%s.%d p%d, p%d, %d", name, imm2, d, a, imm)
	case pShift:
		return fmt.Sprintf("%s.%d p%d, p%d, %d", name, imm2, d, a, imm)
	case pSetCond:
		return fmt.Sprintf("%s.%v p%d, p%d, p%d", name, Cond(imm2), d, a, b)
	case pJump:
		return fmt.Sprintf("%s 0x%04x", name, target)
	case pJumpCond:
		return fmt.Sprintf("%s.%v p%d, p%d, 0x%04x", name, Cond(imm2), a, b, target)
	case pJumpZero, pJumpNonZero:
		return fmt.Sprintf("%s p%d, 0x%04x", name, a, target)
	case pExit:
		return fmt.Sprintf("%s %v, 0x%x", name, ExitKind(imm), uint32(imm2))
	}
	return fmt.Sprintf("%s 0x%02x", name, op)
}
