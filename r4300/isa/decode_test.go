package isa

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// Sweeps every combination of the fields the decode tables look at; the remaining
// bits (rd, sa) never influence the descriptor.
func TestDecodeTotal(t *testing.T) {
	seen := make(map[Opcode]bool)
	for op := uint32(0); op < 64; op++ {
		for rs := uint32(0); rs < 32; rs++ {
			for rt := uint32(0); rt < 32; rt++ {
				for funct := uint32(0); funct < 64; funct++ {
					w := op<<26 | rs<<21 | rt<<16 | funct
					got := Decode(w)
					if got >= NumGuestOpcodes {
						t.Fatalf("word %08x decoded to %d", w, got)
					}
					seen[got] = true
				}
			}
		}
	}
	for op := RESERVED; op < NumGuestOpcodes; op++ {
		require.True(t, seen[op], "opcode %s unreachable", op)
	}

	rng := rand.New(rand.NewSource(4300))
	for n := 0; n < 1<<16; n++ {
		w := rng.Uint32()
		in := DecodeInst(w, 0x80000000+uint32(n)*4)
		require.Less(t, in.Op, NumGuestOpcodes)
		require.Equal(t, Decode(w&^0xffc0), in.Op)
		require.NotEmpty(t, Disassemble(in))
	}
}

func TestDecodeKnown(t *testing.T) {
	pc := uint32(0x80001000)
	cases := []struct {
		word uint32
		op   Opcode
		text string
	}{
		{Nop(), SLL, "nop"},
		{Addiu(2, 0, -1), ADDIU, "addiu v0, zero, -1"},
		{Add(3, 1, 2), ADD, "add v1, at, v0"},
		{Lui(8, 0xa400), LUI, "lui t0, 0xa400"},
		{Sw(9, 8, 16), SW, "sw t1, 16(t0)"},
		{Beq(pc, 1, 2, pc+0x20), BEQ, "beq at, v0, 0x80001020"},
		{Bnel(pc, 1, 0, pc-8), BNEL, "bnel at, zero, 0x80000ff8"},
		{Bgezal(pc, 4, pc+8), BGEZAL, "bgezal a0, 0x80001008"},
		{Jmp(0x80002000), J, "j 0x80002000"},
		{Jr(31), JR, "jr ra"},
		{Mtc0(9, 11), MTC0, "mtc0 t1, Compare"},
		{Eret(), ERET, "eret"},
		{Fop(FmtD, 0x00, 2, 4, 6), ADD_FMT, "add.d $f2, $f4, $f6"},
		{Fop(FmtS, 0x32, 0, 4, 6), C_COND, "c.eq.s $f4, $f6"},
		{Fop(FmtW, 0x21, 2, 4, 0), CVT_D, "cvt.d.w $f2, $f4"},
		{0x48000000, NI, "ni 0x48000000"},
		{0x4c000000, RESERVED, "reserved 0x4c000000"},
		{0x00000001, RESERVED, "reserved 0x00000001"},
	}
	for _, tc := range cases {
		in := DecodeInst(tc.word, pc)
		require.Equal(t, tc.op, in.Op, "%08x", tc.word)
		if tc.op == CVT_D {
			require.Equal(t, uint8(FmtW), in.Fmt)
			continue
		}
		require.Equal(t, tc.text, Disassemble(in))
	}
}

func TestBranchTargets(t *testing.T) {
	pc := uint32(0x80000ffc)
	in := DecodeInst(Beq(pc, 0, 0, 0x80000400), pc)
	require.Equal(t, uint32(0x80000400), in.Target)

	in = DecodeInst(Jal(0x80123450), 0x8ffffffc)
	require.Equal(t, uint32(0x90123450), in.Target)
	require.True(t, in.Op.IsLink())
	require.True(t, in.Op.EndsUnit())
}

func TestClassification(t *testing.T) {
	for op := RESERVED; op < NumGuestOpcodes; op++ {
		if op.IsLikely() {
			require.Equal(t, ClassBranch, op.Class(), op.String())
		}
		if op.EndsUnit() {
			require.Contains(t, []Opcode{J, JAL, JR, JALR, ERET}, op)
		}
	}
	require.True(t, BC1TL.IsLikely())
	require.True(t, BC1TL.IsFPU())
	require.True(t, JALR.IsTransfer())
	require.False(t, JALR.HasStaticTarget())
	require.True(t, RESERVED.IsInvalid())
	require.Equal(t, ClassPseudo, NOTCOMPILED.Class())
}

func TestSignExtend(t *testing.T) {
	require.Equal(t, int64(-1), SignExtend(uint32(0xffff), 16))
	require.Equal(t, int64(0x7fff), SignExtend(uint16(0x7fff), 16))
	require.Equal(t, uint64(0xffffffff80000000), SignExtend32(uint32(0x80000000)))
	require.Equal(t, uint64(0xff), ZeroExtend(int64(-1), 8))
}
