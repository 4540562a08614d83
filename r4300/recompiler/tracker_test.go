package recompiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/r4300/r4300/isa"
	"github.com/colorfulnotion/r4300/r4300/memory"
)

const kseg1 = 0xa0000000

func compiledAt(t *testing.T, tr *translator, pc uint32) *Unit {
	t.Helper()
	u, slot, err := tr.resolve(pc)
	require.NoError(t, err)
	require.NoError(t, tr.compile(u, slot))
	return u
}

func TestAliasedUnitsShareStaleness(t *testing.T) {
	bus := loadedBus(t, isa.Jmp(base), isa.Nop())
	tr := newTestTranslator(t, modeConfig(CachedInterpreter), bus)

	cached := compiledAt(t, tr, base)
	uncached := compiledAt(t, tr, kseg1)
	require.NotSame(t, cached, uncached)
	require.Len(t, tr.tracker.Owners(0), 2)
	require.Equal(t, 2, tr.store.Len())

	tr.tracker.Invalidate(0, 4)
	require.True(t, tr.tracker.IsStale(cached))
	require.True(t, tr.tracker.IsStale(uncached))
	require.Equal(t, Stale, cached.State)
	require.Equal(t, []uint32{0}, tr.tracker.StalePages())

	// the source did not change, so both come back without retranslation
	for _, pc := range []uint32{base, kseg1} {
		u, _, err := tr.resolve(pc)
		require.NoError(t, err)
		require.Equal(t, Compiled, u.State)
		require.Equal(t, uint64(1), u.Stats.Revalidations)
		require.Zero(t, u.Stats.Retranslations)
	}
	require.Empty(t, tr.tracker.StalePages())
}

func TestInvalidateGranularity(t *testing.T) {
	cases := []struct {
		name  string
		phys  uint32
		size  uint32
		stale bool
	}{
		{"transfer", 0, 4, true},
		{"delay slot", 4, 4, true},
		{"untranslated slot", 0x40, 4, false},
		{"straddles into translated", 0x7, 2, true},
		{"other page", 0x1000, 4, false},
		{"empty", 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bus := loadedBus(t, isa.Jmp(base), isa.Nop())
			tr := newTestTranslator(t, modeConfig(CachedInterpreter), bus)
			u := compiledAt(t, tr, base)
			require.Equal(t, 1, u.CompiledSlots())

			tr.tracker.Invalidate(tc.phys, tc.size)
			require.Equal(t, tc.stale, tr.tracker.IsStale(u))
			if tc.stale {
				require.Equal(t, uint64(1), tr.tracker.Invalidations)
				require.Equal(t, uint32(1), tr.tracker.Epoch(0))
			} else {
				require.Zero(t, tr.tracker.Invalidations)
			}
			if tc.size == 0 {
				require.Zero(t, tr.tracker.Writes)
			} else {
				require.Equal(t, uint64(1), tr.tracker.Writes)
			}
		})
	}
}

func TestOnStaleAndRepeatedWrites(t *testing.T) {
	bus := loadedBus(t, isa.Jmp(base), isa.Nop())
	tr := newTestTranslator(t, modeConfig(CachedInterpreter), bus)
	var hits []*Unit
	tr.tracker.OnStale = func(u *Unit) { hits = append(hits, u) }
	u := compiledAt(t, tr, base)

	tr.tracker.Invalidate(0, 8)
	tr.tracker.Invalidate(0, 4) // page already stale
	require.Equal(t, []*Unit{u}, hits)
	require.Equal(t, uint64(2), tr.tracker.Writes)
	require.Equal(t, uint64(1), tr.tracker.Invalidations)
}

func TestMarkStale(t *testing.T) {
	tracker := NewTracker()
	require.Empty(t, tracker.StalePages())
	tracker.MarkStale(5)
	tracker.MarkStale(70)
	tracker.MarkStale(5)
	require.Equal(t, []uint32{5, 70}, tracker.StalePages())
	require.Equal(t, uint32(1), tracker.Epoch(5))
	require.True(t, tracker.IsPageStale(70))

	// out of range pages are ignored
	tracker.MarkStale(physPages)
	require.False(t, tracker.IsPageStale(physPages))
	require.Zero(t, tracker.Epoch(physPages))
}

func TestStoreTreeAndEvict(t *testing.T) {
	bus := loadedBus(t, isa.Jmp(base), isa.Nop())
	tr := newTestTranslator(t, modeConfig(CachedInterpreter), bus)
	u := compiledAt(t, tr, base)

	tree := tr.store.Tree(true)
	require.Contains(t, tree, "units: 1")
	require.Contains(t, tree, "[80000000, 80001000)")
	require.Contains(t, tree, "slots 1/1024")

	require.Same(t, u, tr.store.Get(base+0x800))
	require.Nil(t, tr.store.Get(base+memory.PageSize))

	// direct segment units survive a TLB driven eviction
	require.Zero(t, tr.store.Evict(0, ^uint32(0)))
	require.Equal(t, 1, tr.store.Len())

	tr.store.Flush()
	require.Zero(t, tr.store.Len())
	require.Empty(t, tr.tracker.Owners(0))
	require.Equal(t, Stale, u.State)
	tr.store.Reap()
	require.Nil(t, u.Code)
}
