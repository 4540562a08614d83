package recompiler

import (
	"fmt"

	"github.com/colorfulnotion/r4300/log"
	"github.com/colorfulnotion/r4300/r4300/interpreter"
	"github.com/colorfulnotion/r4300/r4300/isa"
)

// nativeEngine runs host code produced by the backend emitter.
type nativeEngine struct{}

func (nativeEngine) run(c *Core) error {
	for !c.stopped {
		u, slot, ok, err := c.next()
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := c.tr.compile(u, slot); err != nil {
			return err
		}
		if u.Fallback {
			continue
		}
		if err := c.enter(u, slot); err != nil {
			return err
		}
	}
	return nil
}

func (nativeEngine) step(c *Core) error { return ErrStepUnsupported }

// enter runs u's code from slot and serves its exits until control leaves the unit.
// s.PC is current on return.
func (c *Core) enter(u *Unit, slot int) error {
	s := c.state
	ctx := &s.Context
	off := int(u.Ops[slot].CodeOffset)
	for {
		ctx.Exit = uint64(ExitNone)
		if err := c.exec.Enter(u, off, ctx); err != nil {
			return fmt.Errorf("unit 0x%08x offset 0x%x: %w", u.Start, off, err)
		}
		kind, arg := ExitKind(ctx.Exit), uint32(ctx.ExitArg)
		c.stats.exit(kind)
		switch kind {
		case ExitNotCompiled:
			slot := int(arg)
			if u.State == Stale || c.tracker.IsStale(u) {
				s.PC = u.Addr(slot)
				return nil
			}
			if err := c.tr.compile(u, slot); err != nil {
				return err
			}
			if u.Fallback {
				s.PC = u.Addr(slot)
				return nil
			}
			off = int(u.Ops[slot].CodeOffset)
		case ExitHelper:
			next, ok, err := c.helper(u, arg)
			if err != nil || !ok {
				return err
			}
			off = next
		case ExitLink:
			if u.State == Stale {
				s.PC = uint32(ctx.Target)
				return nil
			}
			j, err := c.tr.resolveStub(u, int(arg))
			if err != nil {
				return err
			}
			if u.Fallback {
				s.PC = uint32(ctx.Target)
				return nil
			}
			off = int(u.Ops[j].CodeOffset)
		case ExitDispatch:
			s.PC = uint32(ctx.Target)
			return nil
		case ExitInterrupt:
			s.EndTransfer(uint32(ctx.Target), false)
			return nil
		case ExitIdle:
			s.EndTransfer(uint32(ctx.Target), true)
			return nil
		default:
			return fmt.Errorf("unit 0x%08x: unexpected exit %v", u.Start, kind)
		}
	}
}

// helper interprets the instruction generated code could not lower. The generated
// code has already charged it to the clock. It returns the offset to resume at, or
// false when control must go back to the dispatcher.
func (c *Core) helper(u *Unit, arg uint32) (int, bool, error) {
	s := c.state
	slot := int(arg &^ helperDelayBit)
	delay := arg&helperDelayBit != 0
	pc := u.Addr(slot)

	var in isa.Inst
	if slot < u.Len() {
		in = u.handlerInst(slot)
	} else {
		w, ok := s.Fetch(pc, true)
		if !ok {
			return 0, false, nil
		}
		in = isa.DecodeInst(w, pc)
	}
	u.Stats.Helpers++

	var out interpreter.Outcome
	if delay {
		taken, target := s.Taken, s.Target
		out = s.Execute(in, pc, true)
		s.Taken, s.Target = taken, target
	} else {
		out = s.Execute(in, pc, false)
	}
	switch out {
	case interpreter.Raised:
		log.Trace(log.Exec, "exception in helper", "pc", pc, "vector", s.PC)
		return 0, false, nil
	case interpreter.Jump:
		s.EndTransfer(s.PC, false)
		return 0, false, nil
	case interpreter.Next:
		if !delay && u.State == Stale {
			s.PC = pc + 4
			return 0, false, nil
		}
	}
	off, ok := u.resume[arg]
	if !ok {
		return 0, false, fmt.Errorf("unit 0x%08x: no resume point for helper %#x", u.Start, arg)
	}
	return int(off), true, nil
}
