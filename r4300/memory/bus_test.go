package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusBigEndian(t *testing.T) {
	bus := NewBus(0)
	require.NoError(t, bus.Write(0x100, 4, 0x11223344, ^uint64(0)))
	v, err := bus.Read(0x100, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(0x11), v)
	v, _ = bus.Read(0x102, 2)
	require.Equal(t, uint64(0x3344), v)

	// masked write keeps the unselected bytes
	require.NoError(t, bus.Write(0x100, 4, 0x0000aabb, 0x0000ffff))
	v, _ = bus.Read(0x100, 4)
	require.Equal(t, uint64(0x1122aabb), v)
}

func TestBusInvalidatesBeforeCommit(t *testing.T) {
	bus := NewBus(0)
	var seen []uint32
	bus.AttachInvalidator(InvalidatorFunc(func(phys, size uint32) {
		v, _ := bus.Read(phys, 4)
		require.Zero(t, v, "write visible before invalidation")
		seen = append(seen, phys, size)
	}))
	require.NoError(t, bus.Write(0x2000, 4, 0xdeadbeef, ^uint64(0)))
	require.Equal(t, []uint32{0x2000, 4}, seen)

	seen = nil
	require.NoError(t, bus.Copy(0x3000, 0x2000, 4))
	require.Equal(t, []uint32{0x3000, 4}, seen)
}

func TestTranslate(t *testing.T) {
	bus := NewBus(0)
	p, err := bus.Translate(0x80001234, AccessFetch)
	require.NoError(t, err)
	require.Equal(t, uint32(0x1234), p)
	p, _ = bus.Translate(0xa0001234, AccessLoad)
	require.Equal(t, uint32(0x1234), p)

	_, err = bus.Translate(0x00401000, AccessLoad)
	var f *Fault
	require.True(t, errors.As(err, &f))
	require.Equal(t, FaultTLBMiss, f.Kind)

	// even page 0x00400000 -> 0x00010000, odd page invalid
	bus.TLB().Write(3, TLBEntry{EntryHi: 0x00400000, EntryLo0: 0x10<<6 | entryLoV | entryLoD | entryLoG, EntryLo1: entryLoG})
	p, err = bus.Translate(0x00400010, AccessStore)
	require.NoError(t, err)
	require.Equal(t, uint32(0x00010010), p)
	_, err = bus.Translate(0x00401010, AccessLoad)
	require.True(t, errors.As(err, &f))
	require.Equal(t, FaultTLBInvalid, f.Kind)
	require.Equal(t, 3, bus.TLB().Probe(0x00400000))
}

func TestMapIOAndHalt(t *testing.T) {
	bus := NewBus(0)
	var wrote uint64
	bus.MapIO(0x04300000, 0x04300fff, func(addr uint32, width int) uint64 { return 0x02020102 }, func(addr uint32, width int, value, mask uint64) { wrote = value })
	v, err := bus.Read(0x04300004, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(0x02020102), v)
	require.NoError(t, bus.Write(0x04300008, 4, 7, ^uint64(0)))
	require.Equal(t, uint64(7), wrote)

	var code uint32
	bus.SetHaltHandler(func(c uint32) { code = c })
	require.NoError(t, bus.Write(HaltRegister, 4, 3, ^uint64(0)))
	require.Equal(t, uint32(3), code)

	_, err = bus.Read(0x10000000, 4)
	require.Error(t, err)
}

func TestRegion(t *testing.T) {
	bus := NewBus(1 << 20)
	bus.AddRAM(0x04000000, 0x1000)
	bus.AddRAM(0x1fc007c0, 0x40)
	s, e, ok := bus.Region(0x1fc007d0)
	require.True(t, ok)
	require.Equal(t, uint32(0x1fc007c0), s)
	require.Equal(t, uint32(0x1fc00800), e)
	_, _, ok = bus.Region(0x00200000)
	require.False(t, ok)
}
