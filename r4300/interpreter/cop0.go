package interpreter

import (
	"github.com/colorfulnotion/r4300/log"
	"github.com/colorfulnotion/r4300/r4300/memory"
)

// CP0 register numbers.
const (
	CP0Index    = 0
	CP0Random   = 1
	CP0EntryLo0 = 2
	CP0EntryLo1 = 3
	CP0Context  = 4
	CP0PageMask = 5
	CP0Wired    = 6
	CP0BadVAddr = 8
	CP0Count    = 9
	CP0EntryHi  = 10
	CP0Compare  = 11
	CP0Status   = 12
	CP0Cause    = 13
	CP0EPC      = 14
	CP0PRId     = 15
	CP0Config   = 16
	CP0LLAddr   = 17
	CP0XContext = 20
	CP0TagLo    = 28
	CP0TagHi    = 29
	CP0ErrorEPC = 30
)

// Exception codes (Cause.ExcCode).
const (
	ExcInt  = 0
	ExcMod  = 1
	ExcTLBL = 2
	ExcTLBS = 3
	ExcAdEL = 4
	ExcAdES = 5
	ExcIBE  = 6
	ExcDBE  = 7
	ExcSys  = 8
	ExcBp   = 9
	ExcRI   = 10
	ExcCpU  = 11
	ExcOv   = 12
	ExcTr   = 13
	ExcFPE  = 15
)

const (
	StatusIE  = 1 << 0
	StatusEXL = 1 << 1
	StatusERL = 1 << 2
	StatusIM  = 0xff << 8
	StatusBEV = 1 << 22
	StatusFR  = 1 << 26
	StatusCU0 = 1 << 28
	StatusCU1 = 1 << 29

	CauseIP    = 0xff << 8
	CauseIP7   = 1 << 15 // timer
	CauseBD    = 1 << 31
	causeExc   = 0x1f << 2
	causeCE    = 3 << 28
	causeWMask = 3 << 8 // software interrupt bits

	VectorGeneral = 0x80000180
	VectorRefill  = 0x80000000
	vectorBEV     = 0xbfc00200
)

func excName(code uint32) string {
	switch code {
	case ExcInt:
		return "Int"
	case ExcMod:
		return "Mod"
	case ExcTLBL:
		return "TLBL"
	case ExcTLBS:
		return "TLBS"
	case ExcAdEL:
		return "AdEL"
	case ExcAdES:
		return "AdES"
	case ExcIBE:
		return "IBE"
	case ExcDBE:
		return "DBE"
	case ExcSys:
		return "Sys"
	case ExcBp:
		return "Bp"
	case ExcRI:
		return "RI"
	case ExcCpU:
		return "CpU"
	case ExcOv:
		return "Ov"
	case ExcTr:
		return "Tr"
	case ExcFPE:
		return "FPE"
	}
	return "?"
}

// Raise delivers exception code for the instruction at pc. inDelay marks an
// instruction executing in a branch delay slot; EPC then points at the branch.
func (s *State) Raise(code uint32, pc uint32, inDelay bool) {
	s.raise(code, pc, inDelay, false)
}

func (s *State) raise(code uint32, pc uint32, inDelay bool, refill bool) {
	status := s.CP0[CP0Status]
	cause := s.CP0[CP0Cause] &^ (causeExc | CauseBD)
	cause |= uint64(code) << 2
	vector := uint32(VectorGeneral)
	if status&StatusEXL == 0 {
		epc := pc
		if inDelay {
			epc = pc - 4
			cause |= CauseBD
		}
		s.CP0[CP0EPC] = signExt32(epc)
		if refill {
			vector = VectorRefill
		}
	} else if inDelay {
		cause |= CauseBD
	}
	if status&StatusBEV != 0 {
		vector = vectorBEV + vector&0x1ff
	}
	s.CP0[CP0Cause] = cause
	s.CP0[CP0Status] = status | StatusEXL
	s.PC = vector
	s.Exceptions++
	log.Debug(log.Exec, "exception", "code", excName(code), "pc", uint64(pc), "delay", inDelay)
}

// raiseFault converts a memory fault into the matching address, TLB or bus exception.
func (s *State) raiseFault(err error, vaddr uint32, kind memory.AccessKind, pc uint32, inDelay bool) {
	f, ok := err.(*memory.Fault)
	if !ok {
		log.Warn(log.Exec, "memory error", "addr", uint64(vaddr), "err", err)
		f = &memory.Fault{Kind: memory.FaultBus, Access: kind, Addr: vaddr}
	}
	store := kind == memory.AccessStore
	switch f.Kind {
	case memory.FaultAddress:
		s.setBadVAddr(vaddr)
		if store {
			s.Raise(ExcAdES, pc, inDelay)
		} else {
			s.Raise(ExcAdEL, pc, inDelay)
		}
	case memory.FaultTLBMiss, memory.FaultTLBInvalid:
		s.setBadVAddr(vaddr)
		code := uint32(ExcTLBL)
		if store {
			code = ExcTLBS
		}
		s.raise(code, pc, inDelay, f.Kind == memory.FaultTLBMiss)
	case memory.FaultTLBMod:
		s.setBadVAddr(vaddr)
		s.Raise(ExcMod, pc, inDelay)
	default:
		if kind == memory.AccessFetch {
			s.Raise(ExcIBE, pc, inDelay)
		} else {
			s.Raise(ExcDBE, pc, inDelay)
		}
	}
}

func (s *State) setBadVAddr(vaddr uint32) {
	s.CP0[CP0BadVAddr] = signExt32(vaddr)
	vpn2 := uint64(vaddr >> 13)
	s.CP0[CP0Context] = s.CP0[CP0Context]&^0x7ffff0 | vpn2<<4
	s.CP0[CP0XContext] = s.CP0[CP0XContext]&^0x7ffffff0 | vpn2<<4
	s.CP0[CP0EntryHi] = s.CP0[CP0EntryHi]&0xff | uint64(vaddr&0xffffe000)
}

func (s *State) readCop0(r uint8) uint64 {
	switch r {
	case CP0Count:
		return uint64(uint32(s.Count))
	case CP0Random:
		wired := uint64(s.CP0[CP0Wired] & 31)
		if wired >= 31 {
			return 31
		}
		return wired + (s.Count/s.CyclesPerOp)%(32-wired)
	}
	return s.CP0[r&31]
}

func (s *State) writeCop0(r uint8, v uint64) {
	switch r {
	case CP0Count:
		s.setCount(uint32(v))
	case CP0Compare:
		s.CP0[CP0Compare] = uint64(uint32(v))
		s.CP0[CP0Cause] &^= CauseIP7
		s.scheduleCompare()
	case CP0Status:
		s.CP0[CP0Status] = uint64(uint32(v))
		s.requestCheck()
	case CP0Cause:
		s.CP0[CP0Cause] = s.CP0[CP0Cause]&^causeWMask | v&causeWMask
		s.requestCheck()
	case CP0EntryHi:
		s.CP0[CP0EntryHi] = v & 0xffffe0ff
		if a, ok := s.Mem.(interface{ SetASID(uint8) }); ok {
			a.SetASID(uint8(v))
		}
	case CP0Wired:
		s.CP0[CP0Wired] = v & 31
	case CP0Random, CP0PRId, CP0BadVAddr:
	default:
		s.CP0[r&31] = v
	}
}

// eret returns from an exception; the new PC is left in s.PC.
func (s *State) eret() {
	status := s.CP0[CP0Status]
	if status&StatusERL != 0 {
		s.PC = uint32(s.CP0[CP0ErrorEPC])
		s.CP0[CP0Status] = status &^ StatusERL
	} else {
		s.PC = uint32(s.CP0[CP0EPC])
		s.CP0[CP0Status] = status &^ StatusEXL
	}
	s.LLBit = false
}

func (s *State) tlbOp(op tlbInstr) {
	tlb := s.TLB()
	if tlb == nil {
		return
	}
	switch op {
	case tlbRead:
		e := tlb.Read(int(s.CP0[CP0Index] & 63))
		s.CP0[CP0PageMask] = uint64(e.PageMask)
		s.CP0[CP0EntryHi] = uint64(e.EntryHi)
		s.CP0[CP0EntryLo0] = uint64(e.EntryLo0)
		s.CP0[CP0EntryLo1] = uint64(e.EntryLo1)
	case tlbWriteIndexed, tlbWriteRandom:
		index := int(s.CP0[CP0Index] & 63)
		if op == tlbWriteRandom {
			index = int(s.readCop0(CP0Random))
		}
		old := tlb.Read(index)
		e := memory.TLBEntry{
			PageMask: uint32(s.CP0[CP0PageMask]),
			EntryHi:  uint32(s.CP0[CP0EntryHi]),
			EntryLo0: uint32(s.CP0[CP0EntryLo0]),
			EntryLo1: uint32(s.CP0[CP0EntryLo1]),
		}
		tlb.Write(index, e)
		if s.OnTLBWrite != nil {
			lo, hi := old.Range()
			s.OnTLBWrite(lo, hi)
			lo, hi = tlb.Read(index).Range()
			s.OnTLBWrite(lo, hi)
		}
	case tlbProbe:
		if i := tlb.Probe(uint32(s.CP0[CP0EntryHi])); i >= 0 {
			s.CP0[CP0Index] = uint64(i)
		} else {
			s.CP0[CP0Index] = 1 << 31
		}
	}
}

type tlbInstr uint8

const (
	tlbRead tlbInstr = iota
	tlbWriteIndexed
	tlbWriteRandom
	tlbProbe
)

func signExt32(v uint32) uint64 { return uint64(int64(int32(v))) }
