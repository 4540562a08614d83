package interpreter

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/r4300/r4300/isa"
	"github.com/colorfulnotion/r4300/r4300/memory"
)

const base = 0x80000000

func newTestState(t *testing.T, words ...uint32) (*State, *memory.Bus) {
	t.Helper()
	bus := memory.NewBus(1 << 20)
	require.NoError(t, bus.LoadWords(0, words))
	return NewState(bus, base, 0), bus
}

func run(s *State, steps int) {
	for i := 0; i < steps; i++ {
		s.Step()
	}
}

func TestContextLayout(t *testing.T) {
	var c Context
	require.Equal(t, uintptr(CtxHI), unsafe.Offsetof(c.HI))
	require.Equal(t, uintptr(CtxLO), unsafe.Offsetof(c.LO))
	require.Equal(t, uintptr(CtxCount), unsafe.Offsetof(c.Count))
	require.Equal(t, uintptr(CtxDeadline), unsafe.Offsetof(c.Deadline))
	require.Equal(t, uintptr(CtxExit), unsafe.Offsetof(c.Exit))
	require.Equal(t, uintptr(CtxExitArg), unsafe.Offsetof(c.ExitArg))
	require.Equal(t, uintptr(CtxResume), unsafe.Offsetof(c.Resume))
	require.Equal(t, uintptr(CtxTarget), unsafe.Offsetof(c.Target))
	require.Equal(t, uintptr(CtxTaken), unsafe.Offsetof(c.Taken))
	require.Equal(t, uintptr(ContextSize), unsafe.Sizeof(c))
	require.Equal(t, int32(8*31), GPROffset(31))
}

func TestArithmetic(t *testing.T) {
	s, _ := newTestState(t,
		isa.Addiu(1, 0, -1),     // r1 = -1
		isa.Addiu(2, 0, 7),      // r2 = 7
		isa.Addu(3, 1, 2),       // r3 = 6
		isa.Lui(4, 0x8000),      // r4 = 0xffffffff80000000
		isa.Sll(5, 2, 31),       // r5 = sext(0x80000000)
		isa.Slt(6, 1, 2),        // r6 = 1
		isa.Sltu(7, 1, 2),       // r7 = 0
		isa.Addiu(0, 0, 5),      // r0 stays 0
		isa.Daddiu(8, 0, -2),    // r8 = -2
		isa.Dmultu(8, 8),        // (2^64-2)^2
		isa.Mflo(9),
		isa.Mfhi(10),
		isa.Div(2, 0),           // by zero
		isa.Mflo(11),
	)
	run(s, 14)
	require.Equal(t, uint64(0xffffffffffffffff), s.GPR[1])
	require.Equal(t, uint64(6), s.GPR[3])
	require.Equal(t, uint64(0xffffffff80000000), s.GPR[4])
	require.Equal(t, uint64(0xffffffff80000000), s.GPR[5])
	require.Equal(t, uint64(1), s.GPR[6])
	require.Equal(t, uint64(0), s.GPR[7])
	require.Zero(t, s.GPR[0])
	require.Equal(t, uint64(4), s.GPR[9])
	require.Equal(t, uint64(0xfffffffffffffffc), s.GPR[10])
	require.Equal(t, ^uint64(0), s.GPR[11])
	require.Equal(t, uint32(base+14*4), s.PC)
	require.Equal(t, uint64(14*DefaultCyclesPerOp), s.Count)
}

func TestSignedMul128(t *testing.T) {
	lo, hi := mul128(uint64(0xfffffffffffffffd), 5, true) // -3 * 5
	require.Equal(t, uint64(0xfffffffffffffff1), lo)
	require.Equal(t, ^uint64(0), hi)
	lo, hi = mul128(1<<63, 4, false)
	require.Zero(t, lo)
	require.Equal(t, uint64(2), hi)
}

func TestOverflowRaises(t *testing.T) {
	s, _ := newTestState(t,
		isa.Lui(1, 0x7fff),
		isa.Ori(1, 1, 0xffff),
		isa.Addi(2, 1, 1),
	)
	run(s, 3)
	require.Equal(t, uint32(VectorGeneral), s.PC)
	require.Equal(t, uint64(ExcOv), s.CP0[CP0Cause]>>2&0x1f)
	require.Equal(t, signExt32(base+8), s.CP0[CP0EPC])
	require.Zero(t, s.GPR[2])
}

func TestBranchDelaySlot(t *testing.T) {
	s, _ := newTestState(t,
		isa.Addiu(1, 0, 1),
		isa.Beq(base+4, 1, 1, base+0x10),
		isa.Addiu(2, 0, 2), // delay slot executes
		isa.Addiu(3, 0, 3), // skipped
		isa.Bnel(base+0x10, 1, 1, base), // not taken likely
		isa.Addiu(4, 0, 4),             // nullified
		isa.Jal(base+0x20),
		isa.Nop(),
		isa.Addiu(5, 0, 5),
	)
	run(s, 4)
	require.Equal(t, uint64(2), s.GPR[2])
	require.Zero(t, s.GPR[3])
	require.Zero(t, s.GPR[4])
	require.Equal(t, uint64(signExt32(base+0x20)), s.GPR[31])
	require.Equal(t, uint32(base+0x20), s.PC)
	// addiu, beq+delay, bnel (slot skipped), jal+nop
	require.Equal(t, uint64(6*DefaultCyclesPerOp), s.Count)
}

func TestExceptionInDelaySlot(t *testing.T) {
	s, _ := newTestState(t,
		isa.Jmp(base+0x40),
		isa.Syscall(),
	)
	s.Step()
	require.Equal(t, uint32(VectorGeneral), s.PC)
	require.Equal(t, signExt32(base), s.CP0[CP0EPC])
	require.NotZero(t, s.CP0[CP0Cause]&CauseBD)
	require.Equal(t, uint64(ExcSys), s.CP0[CP0Cause]>>2&0x1f)
}

func TestReservedInstruction(t *testing.T) {
	s, _ := newTestState(t, 0x00000001)
	s.Step()
	require.Equal(t, uint64(ExcRI), s.CP0[CP0Cause]>>2&0x1f)
}

func TestUnalignedAccess(t *testing.T) {
	s, bus := newTestState(t,
		isa.Lui(1, 0x8000),
		isa.Ori(1, 1, 0x1000),
		encodeLWL(2, 1, 1),
		encodeLWR(2, 1, 4),
		isa.Lw(3, 1, 2), // misaligned
	)
	require.NoError(t, bus.LoadWords(0x1000, []uint32{0x11223344, 0x55667788}))
	run(s, 4)
	require.Equal(t, uint64(0x22334455), s.GPR[2])
	s.Step()
	require.Equal(t, uint64(ExcAdEL), s.CP0[CP0Cause]>>2&0x1f)
	require.Equal(t, signExt32(base+0x1002), s.CP0[CP0BadVAddr])
}

func encodeLWL(rt, base uint32, off int32) uint32 { return isa.EncodeI(0x22, base, rt, off) }
func encodeLWR(rt, base uint32, off int32) uint32 { return isa.EncodeI(0x26, base, rt, off) }

func TestStoreLeftRight(t *testing.T) {
	s, bus := newTestState(t,
		isa.Lui(1, 0x8000),
		isa.Ori(1, 1, 0x1000),
		isa.Lui(2, 0xaabb),
		isa.Ori(2, 2, 0xccdd),
		isa.EncodeI(0x2a, 1, 2, 1), // swl r2, 1(r1)
		isa.EncodeI(0x2e, 1, 2, 6), // swr r2, 6(r1)
	)
	run(s, 6)
	b, err := bus.Bytes(0x1000, 8)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0xaa, 0xbb, 0xcc, 0xbb, 0xcc, 0xdd, 0x00}, b)
}

func TestLinkedAccess(t *testing.T) {
	s, bus := newTestState(t,
		isa.Lui(1, 0x8000),
		isa.EncodeI(0x30, 1, 2, 0x100), // ll r2, 0x100(r1)
		isa.Addiu(2, 2, 1),
		isa.EncodeI(0x38, 1, 2, 0x100), // sc r2
		isa.EncodeI(0x38, 1, 3, 0x100), // sc r3 with LLBit cleared by eret below
	)
	require.NoError(t, bus.LoadWords(0x100, []uint32{41}))
	run(s, 4)
	require.Equal(t, uint64(1), s.GPR[2])
	v, _ := bus.Read(0x100, 4)
	require.Equal(t, uint64(42), v)

	s.LLBit = true
	s.CP0[CP0EPC] = uint64(s.PC)
	s.CP0[CP0Status] |= StatusEXL
	s.eret()
	require.False(t, s.LLBit)
	s.GPR[3] = 9
	s.Step()
	require.Zero(t, s.GPR[3])
	v, _ = bus.Read(0x100, 4)
	require.Equal(t, uint64(42), v)
}

func TestCompareInterrupt(t *testing.T) {
	s, _ := newTestState(t,
		isa.Addiu(1, 0, 40),
		isa.Mtc0(1, CP0Compare),
		isa.Lui(2, 0x3400),
		isa.Ori(2, 2, 0x8001), // IE | IM7
		isa.Mtc0(2, CP0Status),
		isa.Beq(base+0x14, 0, 0, base+0x14), // idle loop
		isa.Nop(),
	)
	run(s, 6)
	// the Status write forces a check at the first loop iteration, which finds nothing due
	require.Equal(t, uint32(base+0x14), s.PC)
	s.Step()
	require.Equal(t, uint32(VectorGeneral), s.PC)
	require.Equal(t, uint64(ExcInt), s.CP0[CP0Cause]>>2&0x1f)
	require.NotZero(t, s.CP0[CP0Cause]&CauseIP7)
	require.Equal(t, signExt32(base+0x14), s.CP0[CP0EPC])
	// the collapsed loop lands on the first iteration boundary past Compare
	require.Equal(t, uint64(42), s.Count)
	require.Equal(t, uint64(1), s.IdleSkips)
}

func TestIdleLoopMatchesSingleStep(t *testing.T) {
	prog := []uint32{
		isa.Addiu(1, 0, 101),
		isa.Mtc0(1, CP0Compare),
		isa.Jmp(base + 8),
		isa.Nop(),
	}
	fast, _ := newTestState(t, prog...)
	run(fast, 3)

	slow, _ := newTestState(t, prog...)
	run(slow, 2)
	for slow.CP0[CP0Cause]&CauseIP7 == 0 {
		// execute the loop without the idle shortcut
		slow.AddCount(2)
		slow.EndTransfer(base+8, false)
	}
	require.Equal(t, slow.Count, fast.Count)
	require.NotZero(t, fast.CP0[CP0Cause]&CauseIP7)
}

func TestDeviceEvent(t *testing.T) {
	s, _ := newTestState(t, isa.Addiu(1, 1, 1), isa.Jmp(base), isa.Nop())
	s.CP0[CP0Status] |= StatusIE | 1<<(8+3)
	fired := false
	s.ScheduleInterrupt(10, func(st *State) {
		fired = true
		st.SetIP(3)
	})
	run(s, 2)
	require.False(t, fired)
	run(s, 2)
	require.True(t, fired)
	require.Equal(t, uint32(VectorGeneral), s.PC)
}

func TestFPU(t *testing.T) {
	s, _ := newTestState(t,
		isa.Addiu(1, 0, 3),
		isa.Mtc1(1, 2),
		isa.Fop(isa.FmtW, 0x21, 4, 2, 0), // cvt.d.w f4, f2
		isa.Fop(isa.FmtD, 0x00, 6, 4, 4), // add.d f6, f4, f4
		isa.Fop(isa.FmtD, 0x32, 0, 6, 4), // c.eq.d f6, f4
		isa.Fop(isa.FmtD, 0x3c, 0, 4, 6), // c.lt.d f4, f6
		isa.Fop(isa.FmtD, 0x0d, 8, 6, 0), // trunc.w.d f8, f6
		isa.Mfc1(9, 8),
	)
	run(s, 8)
	require.Equal(t, 6.0, s.f64(6))
	require.NotZero(t, s.FCR31&fcrCondition)
	require.Equal(t, uint64(6), s.GPR[9])

	s.CP0[CP0Status] &^= StatusCU1
	s.PC = base + 4
	s.Step()
	require.Equal(t, uint64(ExcCpU), s.CP0[CP0Cause]>>2&0x1f)
}

func TestRegistersRoundTrip(t *testing.T) {
	s, _ := newTestState(t, isa.Addiu(1, 0, 5))
	s.Step()
	r := s.Registers()
	other := NewState(s.Mem, 0, 0)
	other.SetRegisters(r)
	require.Equal(t, r, other.Registers())
}
