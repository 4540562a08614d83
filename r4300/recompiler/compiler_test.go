package recompiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/r4300/r4300/interpreter"
	"github.com/colorfulnotion/r4300/r4300/isa"
	"github.com/colorfulnotion/r4300/r4300/memory"
)

func newTestTranslator(t *testing.T, cfg Config, bus *memory.Bus) *translator {
	t.Helper()
	tracker := NewTracker()
	var e Emitter
	if cfg.Mode == DynamicRecompiler {
		var err error
		e, err = NewEmitter(cfg.Backend, cfg)
		require.NoError(t, err)
	}
	return newTranslator(cfg, bus, NewStore(bus, tracker), tracker, NewHeapArena(cfg.CodeArenaLimit), e)
}

func loadedBus(t *testing.T, words ...uint32) *memory.Bus {
	t.Helper()
	bus := memory.NewBus(1 << 20)
	require.NoError(t, bus.LoadWords(0, words))
	return bus
}

func TestSpecialize(t *testing.T) {
	cases := []struct {
		word uint32
		want isa.Opcode
	}{
		{isa.Nop(), isa.NOP},
		{isa.Sll(1, 2, 3), isa.SLL},
		{isa.Or(1, 1, 0), isa.NOP},
		{isa.Or(1, 0, 1), isa.NOP},
		{isa.Or(1, 2, 0), isa.OR},
		{isa.Addu(0, 1, 2), isa.NOP},
		{isa.Daddu(4, 0, 4), isa.NOP},
		{isa.EncodeR(0x2f, 5, 0, 5, 0), isa.NOP},  // dsubu r5, r5, r0
		{isa.EncodeR(0x38, 0, 6, 6, 0), isa.NOP},  // dsll r6, r6, 0
		{isa.EncodeR(0x38, 0, 6, 6, 1), isa.DSLL}, // dsll r6, r6, 1
		{isa.Addiu(0, 1, 5), isa.NOP},
		{isa.Ori(3, 3, 0), isa.NOP},
		{isa.Ori(3, 3, 1), isa.ORI},
		{isa.Daddiu(7, 7, 0), isa.NOP},
		{isa.Addiu(7, 7, 0), isa.ADDIU}, // still sign-extends
		{isa.Lui(0, 1), isa.NOP},
		{isa.Add(0, 1, 2), isa.ADD}, // may trap
		{isa.Lw(0, 1, 0), isa.LW},   // may fault
	}
	for _, tc := range cases {
		in := isa.DecodeInst(tc.word, base)
		require.Equal(t, tc.want, specialize(in), isa.Disassemble(in))
	}
}

// Every slot of a materialized unit can be entered: the ones not translated yet
// hand control back to the driver with their slot number.
func TestNotCompiledSlotsExit(t *testing.T) {
	bus := loadedBus(t,
		isa.Addiu(1, 0, 1),
		isa.Addiu(2, 1, 2),
		isa.Addiu(3, 2, 3),
		isa.Addiu(4, 3, 4),
		isa.Addiu(5, 4, 5),
		isa.Addiu(6, 5, 6),
	)
	cfg := modeConfig(DynamicRecompiler)
	cfg.compileBudget = 3
	tr := newTestTranslator(t, cfg, bus)
	x := newPortableExecutor()

	u, slot, err := tr.resolve(base)
	require.NoError(t, err)
	require.Equal(t, 0, slot)
	require.Equal(t, Compiled, u.State)
	require.Zero(t, u.CompiledSlots())
	for k := 0; k < u.Len(); k++ {
		var ctx interpreter.Context
		require.NoError(t, x.Enter(u, int(u.Ops[k].CodeOffset), &ctx))
		require.Equal(t, ExitNotCompiled, ExitKind(ctx.Exit))
		require.Equal(t, uint64(k), ctx.ExitArg)
	}

	require.NoError(t, tr.compile(u, 0))
	require.Equal(t, 3, u.CompiledSlots())
	for k := 3; k < 10; k++ {
		require.False(t, u.Ops[k].Compiled())
		var ctx interpreter.Context
		require.NoError(t, x.Enter(u, int(u.Ops[k].CodeOffset), &ctx))
		require.Equal(t, ExitNotCompiled, ExitKind(ctx.Exit))
		require.Equal(t, uint64(k), ctx.ExitArg)
	}

	var ctx interpreter.Context
	require.NoError(t, x.Enter(u, int(u.Ops[0].CodeOffset), &ctx))
	require.Equal(t, ExitNotCompiled, ExitKind(ctx.Exit))
	require.Equal(t, uint64(3), ctx.ExitArg)
	require.Equal(t, [4]uint64{0, 1, 3, 6}, [4]uint64(ctx.GPR[:4]))
	require.Equal(t, uint64(3*interpreter.DefaultCyclesPerOp), ctx.Count)
	require.Len(t, u.Relocs, 1)

	// translating slot 3 repoints the fall-through jump
	require.NoError(t, tr.compile(u, 3))
	require.Len(t, u.Relocs, 1)
	require.Equal(t, int32(6), u.Relocs[0].Slot)
	ctx = interpreter.Context{}
	require.NoError(t, x.Enter(u, int(u.Ops[0].CodeOffset), &ctx))
	require.Equal(t, uint64(6), ctx.ExitArg)
	require.Equal(t, uint64(21), ctx.GPR[6])
}

// Compilation cut short after any number of slots leaves a unit whose untranslated
// slots still exit to the driver, and whose translated prefix runs up to the cut.
func TestCompileCutAtEverySlot(t *testing.T) {
	prog := []uint32{
		isa.Addiu(1, 0, 1),
		isa.Addiu(2, 1, 2),
		isa.Addiu(3, 2, 3),
		isa.Addiu(4, 3, 4),
		isa.Addiu(5, 4, 5),
		isa.Addiu(6, 5, 6),
	}
	want := []uint64{0, 1, 3, 6, 10, 15, 21}
	bus := loadedBus(t, prog...)
	x := newPortableExecutor()
	for budget := 1; budget <= len(prog)+1; budget++ {
		cfg := modeConfig(DynamicRecompiler)
		cfg.compileBudget = budget
		tr := newTestTranslator(t, cfg, bus)
		u, _, err := tr.resolve(base)
		require.NoError(t, err)
		require.NoError(t, tr.compile(u, 0))
		require.Equal(t, budget, u.CompiledSlots())

		for k := budget; k < u.Len(); k++ {
			var ctx interpreter.Context
			require.NoError(t, x.Enter(u, int(u.Ops[k].CodeOffset), &ctx))
			require.Equal(t, ExitNotCompiled, ExitKind(ctx.Exit), "budget %d slot %d", budget, k)
			require.Equal(t, uint64(k), ctx.ExitArg, "budget %d slot %d", budget, k)
		}

		var ctx interpreter.Context
		require.NoError(t, x.Enter(u, int(u.Ops[0].CodeOffset), &ctx))
		require.Equal(t, ExitNotCompiled, ExitKind(ctx.Exit))
		require.Equal(t, uint64(budget), ctx.ExitArg)
		require.Equal(t, uint64(budget)*interpreter.DefaultCyclesPerOp, ctx.Count)
		for r := 1; r <= len(prog); r++ {
			if r <= budget {
				require.Equal(t, want[r], ctx.GPR[r], "budget %d r%d", budget, r)
			} else {
				require.Zero(t, ctx.GPR[r], "budget %d r%d", budget, r)
			}
		}
	}
}

// Writing B' over B and then B again ends with the translation B had first.
func TestFingerprintRestored(t *testing.T) {
	original := []uint32{isa.Addiu(1, 0, 1), isa.Addiu(2, 1, 1), isa.Jr(31), isa.Nop()}
	for _, m := range []Mode{CachedInterpreter, DynamicRecompiler} {
		t.Run(m.String(), func(t *testing.T) {
			bus := loadedBus(t, original...)
			tr := newTestTranslator(t, modeConfig(m), bus)
			recompile := func() *Unit {
				u, _, err := tr.resolve(base)
				require.NoError(t, err)
				require.NoError(t, tr.compile(u, 0))
				require.Equal(t, Compiled, u.State)
				return u
			}

			u := recompile()
			fp0 := u.Fingerprint
			slots := u.CompiledSlots()

			require.NoError(t, bus.LoadWords(4, []uint32{isa.Addiu(2, 1, 7)}))
			tr.tracker.MarkStale(u.PhysPage())
			u = recompile()
			require.NotEqual(t, fp0, u.Fingerprint)

			require.NoError(t, bus.LoadWords(4, []uint32{original[1]}))
			tr.tracker.MarkStale(u.PhysPage())
			u = recompile()
			require.Equal(t, fp0, u.Fingerprint)
			require.Equal(t, slots, u.CompiledSlots())
			require.Equal(t, uint64(2), u.Stats.Retranslations)
			require.Equal(t, isa.ADDIU, u.Ops[1].Handler)
		})
	}
}

func TestFingerprintRevalidation(t *testing.T) {
	bus := loadedBus(t, isa.Addiu(1, 0, 1), isa.Jr(31), isa.Nop())
	tr := newTestTranslator(t, modeConfig(CachedInterpreter), bus)

	u, _, err := tr.resolve(base)
	require.NoError(t, err)
	require.NoError(t, tr.compile(u, 0))
	require.Equal(t, 2, u.CompiledSlots())
	fp := u.Fingerprint
	require.Equal(t, uint64(1), u.Stats.Materialized)

	// unchanged memory keeps the translation
	tr.tracker.MarkStale(u.PhysPage())
	require.Equal(t, Stale, u.State)
	_, _, err = tr.resolve(base)
	require.NoError(t, err)
	require.Equal(t, Compiled, u.State)
	require.Equal(t, uint64(1), u.Stats.Revalidations)
	require.Equal(t, 2, u.CompiledSlots())
	require.Equal(t, fp, u.Fingerprint)

	require.NoError(t, bus.LoadWords(0, []uint32{isa.Addiu(1, 0, 2)}))
	tr.tracker.MarkStale(u.PhysPage())
	_, _, err = tr.resolve(base)
	require.NoError(t, err)
	require.Equal(t, uint64(1), u.Stats.Retranslations)
	require.Equal(t, uint64(2), u.Stats.Materialized)
	require.Zero(t, u.CompiledSlots())
	require.NotEqual(t, fp, u.Fingerprint)
	require.False(t, tr.tracker.IsStale(u))
}

func TestBranchClassification(t *testing.T) {
	at := func(slot int) uint32 { return base + uint32(slot)*4 }
	bus := loadedBus(t,
		isa.Addiu(1, 0, 1),           // 0
		isa.Beq(at(1), 1, 0, at(0)),  // 1 backward, translated
		isa.Nop(),                    // 2
		isa.Bne(at(3), 1, 0, at(11)), // 3 forward, not yet translated
		isa.Nop(),                    // 4
		isa.Beq(at(5), 0, 0, at(5)),  // 5 idle
		isa.Nop(),                    // 6
		isa.Bnel(at(7), 1, 0, at(0)), // 7 likely
		isa.Nop(),                    // 8
		isa.Jmp(base + 0x2000),       // 9 other unit
		isa.Nop(),                    // 10
		isa.Addiu(2, 0, 2),           // 11
		isa.Jr(31),                   // 12
		isa.Nop(),                    // 13
	)
	for _, m := range []Mode{CachedInterpreter, DynamicRecompiler} {
		t.Run(m.String(), func(t *testing.T) {
			tr := newTestTranslator(t, modeConfig(m), bus)
			u, _, err := tr.resolve(base)
			require.NoError(t, err)
			require.NoError(t, tr.compile(u, 0))
			n := u.Len()
			stub := n + FooterSlots

			require.Equal(t, int32(0), u.Ops[1].Link)
			require.Zero(t, u.Ops[1].Flags)
			require.False(t, u.Ops[2].Compiled())
			require.Equal(t, isa.SLL, u.Ops[2].Inst.Op)

			require.Equal(t, int32(stub), u.Ops[3].Link)
			require.Equal(t, isa.LINK_STUB, u.Ops[stub].Handler)
			require.Equal(t, int32(11), u.Ops[stub].Link)
			require.Equal(t, at(11), u.Ops[stub].Addr)
			require.Len(t, u.Stubs, 1)

			require.NotZero(t, u.Ops[5].Flags&FlagIdle)
			require.Equal(t, int32(5), u.Ops[5].Link)
			require.Equal(t, FlagLikely, u.Ops[7].Flags)
			require.Equal(t, int32(0), u.Ops[7].Link)
			require.Equal(t, FlagIndirect, u.Ops[9].Flags)
			require.Equal(t, int32(-1), u.Ops[9].Link)
			require.False(t, u.Ops[11].Compiled())

			j, err := tr.resolveStub(u, stub)
			require.NoError(t, err)
			require.Equal(t, 11, j)
			require.Equal(t, int32(11), u.Ops[3].Link)
			require.True(t, u.Stubs[0].Linked)
			require.True(t, u.Ops[11].Compiled())
			require.NotZero(t, u.Ops[12].Flags&FlagIndirect)
			require.Equal(t, uint64(1), u.Stats.Links)
			if m == DynamicRecompiler {
				require.NotEqual(t, noSite, u.Stubs[0].Site)
				require.False(t, u.Fallback)
			}

			_, err = tr.resolveStub(u, 5)
			require.Error(t, err)
		})
	}
}

func TestSlackExhaustion(t *testing.T) {
	const small = 0x04000000
	bus := memory.NewBus(1 << 20)
	bus.AddRAM(small, 32)
	at := func(slot int) uint32 { return base + small + uint32(slot)*4 }
	require.NoError(t, bus.LoadWords(small, []uint32{
		isa.Beq(at(0), 1, 2, at(7)),
		isa.Nop(),
		isa.Bne(at(2), 1, 2, at(7)),
		isa.Nop(),
		isa.Beq(at(4), 3, 4, at(7)),
		isa.Nop(),
		isa.Jr(31),
		isa.Nop(),
	}))
	tr := newTestTranslator(t, modeConfig(DynamicRecompiler), bus)
	u, _, err := tr.resolve(at(0))
	require.NoError(t, err)
	require.Equal(t, 8, u.Len())
	require.Len(t, u.Ops, 8+FooterSlots+2)
	require.NoError(t, tr.compile(u, 0))

	require.Equal(t, int32(10), u.Ops[0].Link)
	require.Equal(t, int32(11), u.Ops[2].Link)
	require.Equal(t, FlagIndirect, u.Ops[4].Flags)
	require.Equal(t, int32(-1), u.Ops[4].Link)
	require.Len(t, u.Stubs, 2)
	require.False(t, u.Fallback)

	_, _, err = tr.resolve(at(8))
	require.ErrorIs(t, err, ErrUnmapped)
}

func TestUnitClippedToRegion(t *testing.T) {
	bus := memory.NewBus(0x1800)
	tr := newTestTranslator(t, modeConfig(CachedInterpreter), bus)
	u, slot, err := tr.resolve(base + 0x1010)
	require.NoError(t, err)
	require.Equal(t, uint32(base+0x1000), u.Start)
	require.Equal(t, uint32(base+0x1800), u.End)
	require.Equal(t, 4, slot)
	require.Equal(t, uint32(0x1000), u.PhysStart)
	require.Len(t, u.Ops, 0x200+FooterSlots+0x200>>SlackShift)
	require.Equal(t, isa.FIN_BLOCK, u.Ops[0x200].Handler)
	require.Equal(t, uint32(base+0x1800), u.Ops[0x200].Addr)

	_, _, err = tr.resolve(base + 0x2000)
	require.Error(t, err)
}

func TestFooterDispatches(t *testing.T) {
	bus := memory.NewBus(1 << 20)
	tr := newTestTranslator(t, modeConfig(DynamicRecompiler), bus)
	u, _, err := tr.resolve(base + 0xff8)
	require.NoError(t, err)
	require.NoError(t, tr.compile(u, u.Len()-2))

	var ctx interpreter.Context
	require.NoError(t, newPortableExecutor().Enter(u, int(u.Ops[u.Len()-2].CodeOffset), &ctx))
	require.Equal(t, ExitDispatch, ExitKind(ctx.Exit))
	require.Equal(t, uint32(base+0x1000), uint32(ctx.Target))
	require.Equal(t, uint64(2*interpreter.DefaultCyclesPerOp), ctx.Count)
}

func TestTranslateUnit(t *testing.T) {
	bus := loadedBus(t, modesProgram()...)
	for _, b := range []Backend{BackendPortable, BackendAMD64, BackendARM64} {
		cfg := modeConfig(DynamicRecompiler)
		cfg.Backend = b
		u, err := TranslateUnit(bus, cfg, base)
		require.NoError(t, err, b.String())
		require.False(t, u.Fallback, b.String())
		require.NotZero(t, u.Code.Len())
		require.NotEmpty(t, Disassemble(b, u.Code.Bytes()))
	}

	u, err := TranslateUnit(bus, modeConfig(CachedInterpreter), base)
	require.NoError(t, err)
	require.Nil(t, u.Code)
	// up to the jal; delay slots stay untranslated
	require.Equal(t, 6, u.CompiledSlots())
}
