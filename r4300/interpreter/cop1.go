package interpreter

import (
	"math"

	"github.com/colorfulnotion/r4300/r4300/isa"
)

const (
	fcrCondition = 1 << 23
	fcrRMMask    = 3
	fcr31Mask    = 0x0183ffff
)

// cop1Usable raises coprocessor-unusable when Status.CU1 is clear.
func (s *State) cop1Usable(pc uint32, inDelay bool) bool {
	if s.CP0[CP0Status]&StatusCU1 != 0 {
		return true
	}
	s.CP0[CP0Cause] = s.CP0[CP0Cause]&^causeCE | 1<<28
	s.Raise(ExcCpU, pc, inDelay)
	return false
}

func (s *State) f32(r uint8) float32 { return math.Float32frombits(uint32(s.FPR[r])) }
func (s *State) f64(r uint8) float64 { return math.Float64frombits(s.FPR[r]) }

func (s *State) setF32(r uint8, v float32) {
	s.FPR[r] = s.FPR[r]&^0xffffffff | uint64(math.Float32bits(v))
}

func (s *State) setF64(r uint8, v float64) { s.FPR[r] = math.Float64bits(v) }

// operand reads fs or ft in the instruction's format as a float64.
func (s *State) operand(fmt uint8, r uint8) float64 {
	switch fmt {
	case isa.FmtS:
		return float64(s.f32(r))
	case isa.FmtD:
		return s.f64(r)
	case isa.FmtW:
		return float64(int32(uint32(s.FPR[r])))
	default:
		return float64(int64(s.FPR[r]))
	}
}

func (s *State) result(fmt uint8, r uint8, v float64) {
	if fmt == isa.FmtS {
		s.setF32(r, float32(v))
	} else {
		s.setF64(r, v)
	}
}

func round(mode uint32, v float64) float64 {
	switch mode {
	case 1:
		return math.Trunc(v)
	case 2:
		return math.Ceil(v)
	case 3:
		return math.Floor(v)
	}
	return math.RoundToEven(v)
}

// cop1 executes FPU moves and arithmetic. Results follow host IEEE arithmetic; the
// cause/flag bits of FCR31 are not modelled.
func (s *State) cop1(in isa.Inst, pc uint32, inDelay bool) bool {
	if !s.cop1Usable(pc, inDelay) {
		return false
	}
	fs, ft, fd := in.Fs(), in.Ft(), in.Fd()
	switch in.Op {
	case isa.MFC1:
		s.setGPR(in.Rt, signExt32(uint32(s.FPR[fs])))
	case isa.DMFC1:
		s.setGPR(in.Rt, s.FPR[fs])
	case isa.MTC1:
		s.FPR[fs] = s.FPR[fs]&^0xffffffff | uint64(uint32(s.GPR[in.Rt]))
	case isa.DMTC1:
		s.FPR[fs] = s.GPR[in.Rt]
	case isa.CFC1:
		switch fs {
		case 0:
			s.setGPR(in.Rt, uint64(s.FCR0))
		case 31:
			s.setGPR(in.Rt, signExt32(s.FCR31))
		}
	case isa.CTC1:
		if fs == 31 {
			s.FCR31 = uint32(s.GPR[in.Rt]) & fcr31Mask
		}

	case isa.ADD_FMT:
		s.result(in.Fmt, fd, s.operand(in.Fmt, fs)+s.operand(in.Fmt, ft))
	case isa.SUB_FMT:
		s.result(in.Fmt, fd, s.operand(in.Fmt, fs)-s.operand(in.Fmt, ft))
	case isa.MUL_FMT:
		s.result(in.Fmt, fd, s.operand(in.Fmt, fs)*s.operand(in.Fmt, ft))
	case isa.DIV_FMT:
		s.result(in.Fmt, fd, s.operand(in.Fmt, fs)/s.operand(in.Fmt, ft))
	case isa.SQRT_FMT:
		s.result(in.Fmt, fd, math.Sqrt(s.operand(in.Fmt, fs)))
	case isa.ABS_FMT:
		s.result(in.Fmt, fd, math.Abs(s.operand(in.Fmt, fs)))
	case isa.MOV_FMT:
		s.FPR[fd] = s.FPR[fs]
	case isa.NEG_FMT:
		s.result(in.Fmt, fd, -s.operand(in.Fmt, fs))

	case isa.ROUND_L, isa.TRUNC_L, isa.CEIL_L, isa.FLOOR_L:
		mode := uint32(in.Op - isa.ROUND_L)
		s.FPR[fd] = uint64(int64(round(mode, s.operand(in.Fmt, fs))))
	case isa.ROUND_W, isa.TRUNC_W, isa.CEIL_W, isa.FLOOR_W:
		mode := uint32(in.Op - isa.ROUND_W)
		s.FPR[fd] = s.FPR[fd]&^0xffffffff | uint64(uint32(int32(round(mode, s.operand(in.Fmt, fs)))))
	case isa.CVT_S:
		s.setF32(fd, float32(s.operand(in.Fmt, fs)))
	case isa.CVT_D:
		s.setF64(fd, s.operand(in.Fmt, fs))
	case isa.CVT_W:
		v := round(s.FCR31&fcrRMMask, s.operand(in.Fmt, fs))
		s.FPR[fd] = s.FPR[fd]&^0xffffffff | uint64(uint32(int32(v)))
	case isa.CVT_L:
		s.FPR[fd] = uint64(int64(round(s.FCR31&fcrRMMask, s.operand(in.Fmt, fs))))

	case isa.C_COND:
		a, b := s.operand(in.Fmt, fs), s.operand(in.Fmt, ft)
		cond := in.Cond()
		unordered := math.IsNaN(a) || math.IsNaN(b)
		c := unordered && cond&1 != 0 ||
			!unordered && (a == b && cond&2 != 0 || a < b && cond&4 != 0)
		if c {
			s.FCR31 |= fcrCondition
		} else {
			s.FCR31 &^= fcrCondition
		}
	default:
		s.Raise(ExcRI, pc, inDelay)
		return false
	}
	return true
}
