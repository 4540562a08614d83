package recompiler

import (
	"fmt"

	"github.com/colorfulnotion/r4300/log"
	"github.com/colorfulnotion/r4300/r4300/isa"
)

// resolve returns the unit and slot execution continues at, creating, materializing
// or revalidating the unit as needed.
func (t *translator) resolve(pc uint32) (*Unit, int, error) {
	u := t.store.Get(pc)
	switch {
	case u == nil || !u.Contains(pc):
		if u != nil {
			return nil, 0, fmt.Errorf("pc 0x%08x outside unit [0x%08x, 0x%08x): %w", pc, u.Start, u.End, ErrUnmapped)
		}
		var err error
		if u, err = t.store.create(pc); err != nil {
			return nil, 0, err
		}
		if err := t.materialize(u); err != nil {
			t.store.remove(u)
			return nil, 0, err
		}
	case !u.Fallback && t.tracker.IsStale(u):
		if err := t.revalidate(u); err != nil {
			return nil, 0, err
		}
	}
	slot, ok := u.Slot(pc)
	if !ok {
		return nil, 0, fmt.Errorf("pc 0x%08x: %w", pc, ErrUnmapped)
	}
	u.Stats.Entries++
	return u, slot, nil
}

// classify decides how the taken path of the transfer in slot i continues: the
// target slot itself, a link stub in the slack region, or the dispatcher.
func (t *translator) classify(u *Unit, i int) {
	op := &u.Ops[i]
	in := op.Inst
	if in.Op.Class() == isa.ClassJumpReg {
		op.Flags |= FlagIndirect
		return
	}
	j, ok := u.Slot(in.Target)
	if !ok {
		op.Flags |= FlagIndirect
		return
	}
	if j == i || u.Ops[j].Compiled() {
		op.Link = int32(j)
		return
	}
	if u.nextStub >= u.slackEnd() {
		log.Trace(log.Link, "slack exhausted", "unit", uint64(u.Start), "slot", i)
		op.Flags |= FlagIndirect
		return
	}
	s := u.nextStub
	u.nextStub++
	u.Ops[s] = DecodedOp{
		Addr:       in.Target,
		Handler:    isa.LINK_STUB,
		Inst:       in,
		CodeOffset: -1,
		Link:       int32(j),
	}
	u.Stubs = append(u.Stubs, Stub{Slot: int32(s), Source: int32(i), Target: int32(j), Site: noSite})
	op.Link = int32(s)
}

// patchRelocs repoints every recorded jump to slot j at its fresh code.
func (t *translator) patchRelocs(u *Unit, j int) {
	kept := u.Relocs[:0]
	for _, r := range u.Relocs {
		if int(r.Slot) != j {
			kept = append(kept, r)
			continue
		}
		if err := t.e.Patch(r.Site, int(u.Ops[j].CodeOffset)); err != nil {
			u.Code.SetErr(err)
		}
	}
	u.Relocs = kept
}

// resolveStub is run the first time a transfer goes through link stub s. It
// translates the target and links the transfer to it directly. It returns the
// target slot.
func (t *translator) resolveStub(u *Unit, s int) (int, error) {
	stub := u.stub(s)
	if stub == nil {
		return 0, fmt.Errorf("unit 0x%08x: slot %d is not a link stub", u.Start, s)
	}
	j := int(stub.Target)
	if err := t.compile(u, j); err != nil {
		return 0, err
	}
	if u.Fallback {
		return j, nil
	}
	// compile may have grown u.Stubs
	stub = u.stub(s)
	if t.native(u) {
		t.e.SetBuffer(u.Code)
		if err := t.e.Patch(stub.Site, int(u.Ops[j].CodeOffset)); err != nil {
			t.teardown(u, err)
			return j, nil
		}
	}
	u.Ops[stub.Source].Link = int32(j)
	stub.Linked = true
	u.Stats.Links++
	log.Trace(log.Link, "stub linked", "unit", uint64(u.Start), "from", stub.Source, "to", j)
	return j, nil
}
