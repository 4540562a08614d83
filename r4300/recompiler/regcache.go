package recompiler

import (
	"github.com/colorfulnotion/r4300/r4300/interpreter"
)

// regCache maps guest GPRs onto host registers while one unit is emitted. Values
// produced from constants stay deferred until an instruction needs them in a register
// or the slot ends. At a slot boundary dirty registers are written back and the
// mapping stays as clean copies, which the slot's entry trampoline reloads.
type regCache struct {
	e Emitter

	host     [32]int // guest -> host, -1 when unmapped
	guest    []int   // host -> guest, -1 when free
	dirty    []bool
	lastUse  []int
	isConst  [32]bool
	constVal [32]uint64

	tick    int
	scratch int
}

func newRegCache(e Emitter) *regCache {
	n := e.NumRegs()
	rc := &regCache{
		e:       e,
		guest:   make([]int, n),
		dirty:   make([]bool, n),
		lastUse: make([]int, n),
	}
	rc.reset()
	return rc
}

// reset forgets the mapping. Callers flush first unless the values are dead.
func (rc *regCache) reset() {
	for i := range rc.host {
		rc.host[i] = -1
		rc.isConst[i] = false
	}
	for h := range rc.guest {
		rc.guest[h] = -1
		rc.dirty[h] = false
	}
}

// begin starts a new guest instruction; registers touched by it are not evicted.
func (rc *regCache) begin() {
	rc.tick++
	rc.scratch = 0
}

// temp returns a scratch register not holding any guest value.
func (rc *regCache) temp() Reg {
	r := rc.e.Scratch(rc.scratch & 1)
	rc.scratch++
	return r
}

func (rc *regCache) constOf(r uint8) (uint64, bool) {
	if r == 0 {
		return 0, true
	}
	return rc.constVal[r], rc.isConst[r]
}

func (rc *regCache) setConst(r uint8, v uint64) {
	if r == 0 {
		return
	}
	rc.unmap(r)
	rc.isConst[r] = true
	rc.constVal[r] = v
}

func (rc *regCache) unmap(r uint8) {
	if h := rc.host[r]; h >= 0 {
		rc.guest[h] = -1
		rc.dirty[h] = false
		rc.host[r] = -1
	}
}

func (rc *regCache) alloc() int {
	best := -1
	for h, g := range rc.guest {
		if g < 0 {
			best = h
			break
		}
		if rc.lastUse[h] == rc.tick {
			continue
		}
		if best < 0 || rc.lastUse[h] < rc.lastUse[best] {
			best = h
		}
	}
	if g := rc.guest[best]; g >= 0 {
		if rc.dirty[best] {
			rc.e.StoreCtx(interpreter.GPROffset(uint8(g)), Reg(best))
		}
		rc.host[g] = -1
		rc.guest[best] = -1
		rc.dirty[best] = false
	}
	return best
}

// read returns a host register holding guest register r.
func (rc *regCache) read(r uint8) Reg {
	if r == 0 {
		t := rc.temp()
		rc.e.MovImm(t, 0)
		return t
	}
	if h := rc.host[r]; h >= 0 {
		rc.lastUse[h] = rc.tick
		return Reg(h)
	}
	h := rc.alloc()
	rc.host[r], rc.guest[h], rc.lastUse[h] = h, int(r), rc.tick
	if rc.isConst[r] {
		rc.e.MovImm(Reg(h), rc.constVal[r])
		rc.isConst[r] = false
		rc.dirty[h] = true
	} else {
		rc.e.LoadCtx(Reg(h), interpreter.GPROffset(r))
	}
	return Reg(h)
}

// write returns the host register guest r is assigned to and marks it dirty. Writes
// to r0 land in a scratch register and are dropped.
func (rc *regCache) write(r uint8) Reg {
	if r == 0 {
		return rc.temp()
	}
	rc.isConst[r] = false
	h := rc.host[r]
	if h < 0 {
		h = rc.alloc()
		rc.host[r], rc.guest[h] = h, int(r)
	}
	rc.lastUse[h] = rc.tick
	rc.dirty[h] = true
	return Reg(h)
}

// flush writes dirty registers and deferred constants back to the context. The
// mapping survives as clean copies.
func (rc *regCache) flush() {
	for h, g := range rc.guest {
		if g >= 0 && rc.dirty[h] {
			rc.e.StoreCtx(interpreter.GPROffset(uint8(g)), Reg(h))
			rc.dirty[h] = false
		}
	}
	for r := 1; r < 32; r++ {
		if !rc.isConst[r] {
			continue
		}
		v := rc.constVal[r]
		if int64(v) == int64(int32(v)) {
			rc.e.StoreCtxImm(interpreter.GPROffset(uint8(r)), int32(v))
		} else {
			t := rc.e.Scratch(0)
			rc.e.MovImm(t, v)
			rc.e.StoreCtx(interpreter.GPROffset(uint8(r)), t)
		}
		rc.isConst[r] = false
	}
}

func (rc *regCache) mapped() bool {
	for _, g := range rc.guest {
		if g >= 0 {
			return true
		}
	}
	return false
}

// reload emits the loads that establish the current mapping from the context.
func (rc *regCache) reload() {
	for h, g := range rc.guest {
		if g >= 0 {
			rc.e.LoadCtx(Reg(h), interpreter.GPROffset(uint8(g)))
		}
	}
}
