package interpreter

import (
	"github.com/colorfulnotion/r4300/r4300/isa"
)

// IsIdleLoop reports whether a transfer at pc branching to itself with a NOP in the
// delay slot spins without side effects.
func IsIdleLoop(in isa.Inst, pc uint32, delayWord uint32) bool {
	return in.Op.HasStaticTarget() && in.Target == pc && delayWord == 0 && !in.Op.IsLink()
}

// EndTransfer completes a resolved transfer: it moves PC to next, collapses idle loops
// and runs the interrupt check point. It reports whether an exception was taken.
func (s *State) EndTransfer(next uint32, idle bool) bool {
	s.PC = next
	if idle {
		s.SkipIdle(2 * s.CyclesPerOp)
	}
	if s.Count >= s.Deadline {
		return s.CheckInterrupts()
	}
	return false
}

// ExecDelay runs a delay slot instruction. Nested transfers only keep their link
// side effect. It reports false when the slot raised an exception.
func (s *State) ExecDelay(in isa.Inst, pc uint32) bool {
	taken, target := s.Taken, s.Target
	s.AddCount(1)
	out := s.Execute(in, pc, true)
	s.Taken, s.Target = taken, target
	return out != Raised
}

// BranchNext returns where execution continues after the transfer at pc once its
// delay slot has been handled.
func (s *State) BranchNext(pc uint32) uint32 {
	if s.Taken != 0 {
		return uint32(s.Target)
	}
	return pc + 8
}

// Step executes one guest instruction straight from memory. A transfer executes
// together with its delay slot.
func (s *State) Step() {
	pc := s.PC
	w, ok := s.Fetch(pc, false)
	if !ok {
		return
	}
	in := isa.DecodeInst(w, pc)
	s.AddCount(1)
	switch s.Execute(in, pc, false) {
	case Next:
		s.PC = pc + 4
	case Raised:
	case Jump:
		s.EndTransfer(s.PC, false)
	case Branch:
		idle := false
		if s.Taken != 0 || !in.Op.IsLikely() {
			dw, ok := s.Fetch(pc+4, true)
			if !ok {
				return
			}
			if !s.ExecDelay(isa.DecodeInst(dw, pc+4), pc+4) {
				return
			}
			idle = s.Taken != 0 && IsIdleLoop(in, pc, dw)
		}
		s.EndTransfer(s.BranchNext(pc), idle)
	}
}
