package interpreter

import (
	"github.com/colorfulnotion/r4300/r4300/isa"
	"github.com/colorfulnotion/r4300/r4300/memory"
)

// Fetch reads the instruction word at pc, raising the fetch exception on failure.
func (s *State) Fetch(pc uint32, inDelay bool) (uint32, bool) {
	if pc&3 != 0 {
		s.setBadVAddr(pc)
		s.Raise(ExcAdEL, pc, inDelay)
		return 0, false
	}
	phys, err := s.Mem.Translate(pc, memory.AccessFetch)
	if err != nil {
		s.raiseFault(err, pc, memory.AccessFetch, pc, inDelay)
		return 0, false
	}
	w, err := s.Mem.Read(phys, 4)
	if err != nil {
		s.raiseFault(err, pc, memory.AccessFetch, pc, inDelay)
		return 0, false
	}
	return uint32(w), true
}

func (s *State) translate(vaddr uint32, align uint32, kind memory.AccessKind, pc uint32, inDelay bool) (uint32, bool) {
	if vaddr&(align-1) != 0 {
		s.raiseFault(&memory.Fault{Kind: memory.FaultAddress, Access: kind, Addr: vaddr}, vaddr, kind, pc, inDelay)
		return 0, false
	}
	phys, err := s.Mem.Translate(vaddr, kind)
	if err != nil {
		s.raiseFault(err, vaddr, kind, pc, inDelay)
		return 0, false
	}
	return phys, true
}

func (s *State) read(vaddr uint32, width int, pc uint32, inDelay bool) (uint64, uint32, bool) {
	phys, ok := s.translate(vaddr, uint32(width), memory.AccessLoad, pc, inDelay)
	if !ok {
		return 0, 0, false
	}
	v, err := s.Mem.Read(phys, width)
	if err != nil {
		s.raiseFault(err, vaddr, memory.AccessLoad, pc, inDelay)
		return 0, 0, false
	}
	return v, phys, true
}

func (s *State) write(vaddr uint32, width int, v, mask uint64, pc uint32, inDelay bool) bool {
	phys, ok := s.translate(vaddr, uint32(width), memory.AccessStore, pc, inDelay)
	if !ok {
		return false
	}
	if err := s.Mem.Write(phys, width, v, mask); err != nil {
		s.raiseFault(err, vaddr, memory.AccessStore, pc, inDelay)
		return false
	}
	return true
}

// memOp executes loads and stores; false means an exception was raised.
func (s *State) memOp(in isa.Inst, pc uint32, inDelay bool) bool {
	vaddr := uint32(s.GPR[in.Rs] + uint64(in.Imm))
	rt := s.GPR[in.Rt]
	full := ^uint64(0)

	switch in.Op {
	case isa.LB, isa.LBU, isa.LH, isa.LHU, isa.LW, isa.LWU, isa.LD, isa.LL, isa.LLD:
		width := loadWidth(in.Op)
		v, phys, ok := s.read(vaddr, width, pc, inDelay)
		if !ok {
			return false
		}
		switch in.Op {
		case isa.LB:
			v = uint64(int64(int8(v)))
		case isa.LH:
			v = uint64(int64(int16(v)))
		case isa.LW, isa.LL:
			v = signExt32(uint32(v))
		}
		if in.Op == isa.LL || in.Op == isa.LLD {
			s.LLBit = true
			s.CP0[CP0LLAddr] = uint64(phys >> 4)
		}
		s.setGPR(in.Rt, v)

	case isa.SB:
		return s.write(vaddr, 1, rt&0xff, full, pc, inDelay)
	case isa.SH:
		return s.write(vaddr, 2, rt&0xffff, full, pc, inDelay)
	case isa.SW:
		return s.write(vaddr, 4, rt&0xffffffff, full, pc, inDelay)
	case isa.SD:
		return s.write(vaddr, 8, rt, full, pc, inDelay)
	case isa.SC, isa.SCD:
		width := 4
		if in.Op == isa.SCD {
			width = 8
		}
		if !s.LLBit {
			// still validate the address so faults match a real store
			if _, ok := s.translate(vaddr, uint32(width), memory.AccessStore, pc, inDelay); !ok {
				return false
			}
			s.setGPR(in.Rt, 0)
			return true
		}
		if !s.write(vaddr, width, rt&(full>>(64-8*width)), full, pc, inDelay) {
			return false
		}
		s.setGPR(in.Rt, 1)

	case isa.LWL, isa.LWR:
		aligned := vaddr &^ 3
		w, _, ok := s.read(aligned, 4, pc, inDelay)
		if !ok {
			return false
		}
		s.setGPR(in.Rt, mergeLoad32(in.Op, vaddr&3, uint32(w), rt))
	case isa.LDL, isa.LDR:
		aligned := vaddr &^ 7
		d, _, ok := s.read(aligned, 8, pc, inDelay)
		if !ok {
			return false
		}
		s.setGPR(in.Rt, mergeLoad64(in.Op, vaddr&7, d, rt))
	case isa.SWL:
		shift := (vaddr & 3) * 8
		return s.write(vaddr&^3, 4, uint64(uint32(rt)>>shift), uint64(0xffffffff>>shift), pc, inDelay)
	case isa.SWR:
		shift := (3 - vaddr&3) * 8
		return s.write(vaddr&^3, 4, uint64(uint32(rt)<<shift), uint64(uint32(0xffffffff)<<shift), pc, inDelay)
	case isa.SDL:
		shift := (vaddr & 7) * 8
		return s.write(vaddr&^7, 8, rt>>shift, full>>shift, pc, inDelay)
	case isa.SDR:
		shift := (7 - vaddr&7) * 8
		return s.write(vaddr&^7, 8, rt<<shift, full<<shift, pc, inDelay)

	case isa.LWC1, isa.LDC1, isa.SWC1, isa.SDC1:
		if !s.cop1Usable(pc, inDelay) {
			return false
		}
		switch in.Op {
		case isa.LWC1:
			v, _, ok := s.read(vaddr, 4, pc, inDelay)
			if !ok {
				return false
			}
			s.FPR[in.Ft()] = s.FPR[in.Ft()]&^0xffffffff | v
		case isa.LDC1:
			v, _, ok := s.read(vaddr, 8, pc, inDelay)
			if !ok {
				return false
			}
			s.FPR[in.Ft()] = v
		case isa.SWC1:
			return s.write(vaddr, 4, s.FPR[in.Ft()]&0xffffffff, full, pc, inDelay)
		case isa.SDC1:
			return s.write(vaddr, 8, s.FPR[in.Ft()], full, pc, inDelay)
		}
	default:
		s.Raise(ExcRI, pc, inDelay)
		return false
	}
	return true
}

func loadWidth(op isa.Opcode) int {
	switch op {
	case isa.LB, isa.LBU:
		return 1
	case isa.LH, isa.LHU:
		return 2
	case isa.LD, isa.LLD:
		return 8
	}
	return 4
}

// mergeLoad32 combines an aligned word with rt for LWL/LWR at byte offset off.
func mergeLoad32(op isa.Opcode, off uint32, w uint32, rt uint64) uint64 {
	if op == isa.LWL {
		if off == 0 {
			return signExt32(w)
		}
		shift := off * 8
		keep := uint32(1)<<shift - 1
		return signExt32(w<<shift | uint32(rt)&keep)
	}
	if off == 3 {
		return signExt32(w)
	}
	shift := (3 - off) * 8
	keep := ^(uint32(0xffffffff) >> shift)
	return rt&^0xffffffff | uint64(uint32(rt)&keep|w>>shift)
}

func mergeLoad64(op isa.Opcode, off uint32, d uint64, rt uint64) uint64 {
	if op == isa.LDL {
		shift := off * 8
		if shift == 0 {
			return d
		}
		return d<<shift | rt&(uint64(1)<<shift-1)
	}
	shift := (7 - off) * 8
	if shift == 0 {
		return d
	}
	return rt&^(^uint64(0)>>shift) | d>>shift
}
