package recompiler

import (
	"github.com/colorfulnotion/r4300/common"
	"github.com/colorfulnotion/r4300/r4300/isa"
	"github.com/colorfulnotion/r4300/r4300/memory"
)

type UnitState uint8

const (
	Uninitialized UnitState = iota
	Materializing
	Compiled
	Stale
)

func (s UnitState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Materializing:
		return "materializing"
	case Compiled:
		return "compiled"
	case Stale:
		return "stale"
	}
	return "unknown"
}

// Reloc is a jump in the code buffer that must be repointed once Slot is compiled.
type Reloc struct {
	Site Site
	Slot int32
}

// Stub is a link stub hosted in the slack region.
type Stub struct {
	Slot   int32 // slack slot holding the stub
	Source int32 // transfer slot that jumps through it
	Target int32 // slot the transfer really wants
	Site   Site  // jump to repoint once the target is compiled
	Linked bool
}

type UnitStats struct {
	Entries        uint64 `json:"entries"`
	Compiles       uint64 `json:"compiles"`
	CompiledSlots  uint64 `json:"compiled_slots"`
	Materialized   uint64 `json:"materialized"`
	Revalidations  uint64 `json:"revalidations"`
	Retranslations uint64 `json:"retranslations"`
	Helpers        uint64 `json:"helpers"`
	Links          uint64 `json:"links"`
	CompileMicros  uint64 `json:"compile_us"`
}

// Unit is the translation of one page-aligned guest address range.
type Unit struct {
	Start     uint32 // guest virtual, inclusive
	End       uint32 // exclusive
	PhysStart uint32

	Ops         []DecodedOp
	Code        *CodeBuffer
	Fingerprint common.Hash
	Epoch       uint32
	Relocs      []Reloc
	Stubs       []Stub

	State       UnitState
	Fallback    bool // permanently interpreted
	FallbackErr error

	resume   map[uint32]int32
	nextStub int
	evicted  bool

	Stats UnitStats
}

func newUnit(start, end, phys uint32) *Unit {
	return &Unit{Start: start, End: end, PhysStart: phys}
}

// Len is the number of guest instruction slots.
func (u *Unit) Len() int { return int(u.End-u.Start) / 4 }

func (u *Unit) Contains(addr uint32) bool { return addr >= u.Start && addr < u.End }

// Slot returns the guest slot for addr.
func (u *Unit) Slot(addr uint32) (int, bool) {
	if !u.Contains(addr) || addr&3 != 0 {
		return 0, false
	}
	return int(addr-u.Start) / 4, true
}

func (u *Unit) Addr(slot int) uint32 { return u.Start + uint32(slot)*4 }

func (u *Unit) PhysPage() uint32 { return u.PhysStart >> memory.PageShift }

func (u *Unit) Direct() bool { return memory.IsDirect(u.Start) }

func (u *Unit) slackStart() int { return u.Len() + FooterSlots }

func (u *Unit) slackEnd() int { return len(u.Ops) }

// CompiledSlots counts guest slots past NOTCOMPILED.
func (u *Unit) CompiledSlots() int {
	n := 0
	for i := 0; i < u.Len() && i < len(u.Ops); i++ {
		if u.Ops[i].Compiled() {
			n++
		}
	}
	return n
}

// coversCompiled reports whether a write of [lo, hi) physical bytes changes the
// source of a translated slot. A delay slot counts as translated when the transfer
// in front of it is.
func (u *Unit) coversCompiled(lo, hi uint32) bool {
	n := u.Len()
	if len(u.Ops) < n {
		return false
	}
	start, end := u.PhysStart, u.PhysStart+uint32(n)*4
	if hi <= start || lo >= end {
		return false
	}
	if lo < start {
		lo = start
	}
	if hi > end {
		hi = end
	}
	for s := int(lo-start) / 4; s <= int(hi-1-start)/4; s++ {
		if u.Ops[s].Compiled() {
			return true
		}
		if s > 0 && u.Ops[s-1].Compiled() && u.Ops[s-1].Handler.IsTransfer() {
			return true
		}
	}
	return false
}

func (u *Unit) stub(slot int) *Stub {
	for i := range u.Stubs {
		if int(u.Stubs[i].Slot) == slot {
			return &u.Stubs[i]
		}
	}
	return nil
}

// handlerInst returns the instruction a slot executes, with its specialised descriptor.
func (u *Unit) handlerInst(slot int) isa.Inst {
	op := &u.Ops[slot]
	in := op.Inst
	if op.Handler < isa.NumGuestOpcodes || op.Handler == isa.NOP {
		in.Op = op.Handler
	}
	return in
}
