package isa

import "golang.org/x/exp/constraints"

// Instruction word fields.
func FieldOp(w uint32) uint32    { return w >> 26 }
func FieldRs(w uint32) uint32    { return (w >> 21) & 0x1f }
func FieldRt(w uint32) uint32    { return (w >> 16) & 0x1f }
func FieldRd(w uint32) uint32    { return (w >> 11) & 0x1f }
func FieldSa(w uint32) uint32    { return (w >> 6) & 0x1f }
func FieldFunct(w uint32) uint32 { return w & 0x3f }
func FieldImm(w uint32) uint32   { return w & 0xffff }
func FieldIndex(w uint32) uint32 { return w & 0x03ffffff }

// SignExtend sign-extends the low bits of v to 64 bits.
func SignExtend[T constraints.Integer](v T, bits uint) int64 {
	shift := 64 - bits
	return int64(uint64(v)<<shift) >> shift
}

// ZeroExtend keeps the low bits of v.
func ZeroExtend[T constraints.Integer](v T, bits uint) uint64 {
	if bits >= 64 {
		return uint64(v)
	}
	return uint64(v) & (1<<bits - 1)
}

// SignExtend32 widens a 32-bit result to a 64-bit register value.
func SignExtend32[T constraints.Integer](v T) uint64 {
	return uint64(int64(int32(v)))
}
