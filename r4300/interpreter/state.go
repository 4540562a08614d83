package interpreter

import (
	"github.com/colorfulnotion/r4300/r4300/memory"
)

const (
	ResetVector        = 0xbfc00000
	DefaultCyclesPerOp = 2
)

// State is the complete architectural state of the guest CPU.
type State struct {
	Context

	PC    uint32
	CP0   [32]uint64
	FPR   [32]uint64
	FCR0  uint32
	FCR31 uint32
	LLBit bool

	checkPending bool

	Mem         memory.Memory
	Sched       Scheduler
	CyclesPerOp uint64

	// OnTLBWrite is told which virtual ranges a TLB write remapped.
	OnTLBWrite func(lo, hi uint32)

	Instructions uint64
	Exceptions   uint64
	IdleSkips    uint64
}

// NewState returns a CPU in its post-boot configuration with PC at pc.
func NewState(mem memory.Memory, pc uint32, cyclesPerOp uint64) *State {
	if cyclesPerOp == 0 {
		cyclesPerOp = DefaultCyclesPerOp
	}
	s := &State{Mem: mem, CyclesPerOp: cyclesPerOp}
	s.Reset(pc)
	return s
}

// Reset clears registers and the event queue.
func (s *State) Reset(pc uint32) {
	s.Context = Context{}
	s.CP0 = [32]uint64{}
	s.FPR = [32]uint64{}
	s.Sched = Scheduler{}
	s.PC = pc
	s.LLBit = false
	s.checkPending = false
	s.CP0[CP0Status] = StatusCU0 | StatusCU1 | StatusFR
	s.CP0[CP0Config] = 0x0006e463
	s.CP0[CP0PRId] = 0x00000b22
	s.CP0[CP0Random] = 31
	s.CP0[CP0Compare] = 0
	s.FCR0 = 0x00000511
	s.scheduleCompare()
}

// TLB returns the translation buffer behind Mem, if it exposes one.
func (s *State) TLB() memory.TLB {
	if t, ok := s.Mem.(memory.TLBMemory); ok {
		return t.TLB()
	}
	return nil
}

func (s *State) setGPR(r uint8, v uint64) {
	if r != 0 {
		s.GPR[r] = v
	}
}

// AddCount charges n instructions to the cycle clock.
func (s *State) AddCount(n uint64) {
	s.Count += n * s.CyclesPerOp
	s.Instructions += n
}

// Registers is a comparable copy of the architectural register file.
type Registers struct {
	PC    uint32      `json:"pc"`
	GPR   [32]uint64  `json:"gpr"`
	HI    uint64      `json:"hi"`
	LO    uint64      `json:"lo"`
	Count uint64      `json:"count"`
	CP0   [32]uint64  `json:"cp0"`
	FPR   [32]uint64  `json:"fpr"`
	FCR31 uint32      `json:"fcr31"`
	LLBit bool        `json:"llbit"`
	Event []EventCopy `json:"events"`
}

// EventCopy is the serialisable part of a pending event.
type EventCopy struct {
	At   uint64    `json:"at"`
	Kind EventKind `json:"kind"`
}

func (s *State) Registers() Registers {
	r := Registers{
		PC: s.PC, GPR: s.GPR, HI: s.HI, LO: s.LO, Count: s.Count,
		CP0: s.CP0, FPR: s.FPR, FCR31: s.FCR31, LLBit: s.LLBit,
	}
	r.CP0[CP0Count] = uint64(uint32(s.Count))
	for _, e := range s.Sched.events {
		r.Event = append(r.Event, EventCopy{At: e.At, Kind: e.Kind})
	}
	return r
}

// SetRegisters restores a register file taken with Registers. Device events carry
// callbacks and are kept as they are; the compare event is rebuilt.
func (s *State) SetRegisters(r Registers) {
	s.PC, s.GPR, s.HI, s.LO, s.Count = r.PC, r.GPR, r.HI, r.LO, r.Count
	s.CP0, s.FPR, s.FCR31, s.LLBit = r.CP0, r.FPR, r.FCR31, r.LLBit
	s.GPR[0] = 0
	s.scheduleCompare()
	s.requestCheck()
}
