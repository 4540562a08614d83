package recompiler

import (
	"fmt"

	"github.com/colorfulnotion/r4300/log"
	"github.com/colorfulnotion/r4300/r4300/interpreter"
)

// Snapshot is the externally visible execution state. Units and host code are a
// cache rebuilt from guest memory and are not part of it.
type Snapshot struct {
	Registers interpreter.Registers `json:"registers"`
	// Current decoded op: the unit holding PC and the slot in it. Slot is -1 when PC
	// is not inside a unit.
	UnitStart  uint32   `json:"unit_start"`
	Slot       int      `json:"slot"`
	StalePages []uint32 `json:"stale_pages"`
}

func (c *Core) Snapshot() Snapshot {
	snap := Snapshot{
		Registers:  c.state.Registers(),
		Slot:       -1,
		StalePages: c.tracker.StalePages(),
	}
	if u := c.store.Get(c.state.PC); u != nil {
		if slot, ok := u.Slot(c.state.PC); ok {
			snap.UnitStart, snap.Slot = u.Start, slot
		}
	}
	return snap
}

// Restore loads a snapshot. Every existing unit has to revalidate against guest
// memory before it runs again; unchanged code keeps its translation.
func (c *Core) Restore(snap Snapshot) error {
	if snap.Slot >= 0 && snap.UnitStart+uint32(snap.Slot)*4 != snap.Registers.PC {
		return fmt.Errorf("snapshot slot %d of unit 0x%08x does not match pc 0x%08x", snap.Slot, snap.UnitStart, snap.Registers.PC)
	}
	c.state.SetRegisters(snap.Registers)
	for _, u := range c.store.Units() {
		c.tracker.MarkStale(u.PhysPage())
	}
	for _, p := range snap.StalePages {
		c.tracker.MarkStale(p)
	}
	c.current = nil
	log.Debug(log.Exec, "snapshot restored", "pc", snap.Registers.PC, "stale", len(snap.StalePages))
	return nil
}
