package recompiler

import (
	"github.com/colorfulnotion/r4300/r4300/interpreter"
	"github.com/colorfulnotion/r4300/r4300/isa"
)

// cachedEngine runs the decoded ops of units through the interpreter.
type cachedEngine struct{}

func (cachedEngine) run(c *Core) error {
	for !c.stopped {
		u, slot, ok, err := c.next()
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := c.runCached(u, slot, -1); err != nil {
			return err
		}
	}
	return nil
}

func (cachedEngine) step(c *Core) error {
	u, slot, ok, err := c.next()
	if err != nil || !ok {
		return err
	}
	return c.runCached(u, slot, 1)
}

// runCached executes the ops of u from slot until control leaves the unit, the
// unit goes stale, or limit instructions have run (a transfer and its delay slot
// count as one). A negative limit runs without bound. s.PC is current on return.
func (c *Core) runCached(u *Unit, slot int, limit int) error {
	s := c.state
	for ; limit != 0 && !c.stopped; limit-- {
		if slot >= u.Len() {
			s.PC = u.Ops[slot].Addr
			return nil
		}
		op := &u.Ops[slot]
		if !op.Compiled() {
			if err := c.tr.compile(u, slot); err != nil {
				return err
			}
		}
		pc := op.Addr
		s.AddCount(1)
		switch s.Execute(u.handlerInst(slot), pc, false) {
		case interpreter.Next:
			s.PC = pc + 4
			slot++
			if u.State == Stale {
				return nil
			}
			continue
		case interpreter.Raised:
			return nil
		case interpreter.Jump:
			s.EndTransfer(s.PC, false)
			return nil
		}

		idle := false
		if s.Taken != 0 || op.Flags&FlagLikely == 0 {
			var delay isa.Inst
			if op.Flags&FlagDelayOutside != 0 {
				w, ok := s.Fetch(pc+4, true)
				if !ok {
					return nil
				}
				delay = isa.DecodeInst(w, pc+4)
			} else {
				delay = u.handlerInst(slot + 1)
			}
			if !s.ExecDelay(delay, pc+4) {
				return nil
			}
			idle = s.Taken != 0 && op.Flags&FlagIdle != 0
		}
		taken := s.Taken != 0
		if s.EndTransfer(s.BranchNext(pc), idle) || u.State == Stale {
			return nil
		}
		if !taken {
			slot += 2
			continue
		}
		if op.Link < 0 {
			return nil
		}
		next := int(op.Link)
		if u.Ops[next].Handler == isa.LINK_STUB {
			var err error
			if next, err = c.tr.resolveStub(u, next); err != nil {
				return err
			}
		}
		slot = next
	}
	return nil
}
