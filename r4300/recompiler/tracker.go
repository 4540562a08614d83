package recompiler

import (
	"github.com/colorfulnotion/r4300/log"
	"github.com/colorfulnotion/r4300/r4300/memory"
)

const physPages = (memory.PhysMask + 1) >> memory.PageShift

// Tracker keeps one stale bit and one epoch per guest physical page. A unit records
// the epoch of its page when it is built; any mismatch later means it must be
// revalidated, which is how virtual aliases of the same page each notice a write.
type Tracker struct {
	stale  []uint64
	epoch  []uint32
	owners map[uint32][]*Unit

	// OnStale is called for every unit a write turns stale.
	OnStale func(u *Unit)

	Writes        uint64
	Invalidations uint64
}

func NewTracker() *Tracker {
	return &Tracker{
		stale:  make([]uint64, physPages/64),
		epoch:  make([]uint32, physPages),
		owners: make(map[uint32][]*Unit),
	}
}

func (t *Tracker) attach(u *Unit) {
	p := u.PhysPage()
	t.owners[p] = append(t.owners[p], u)
}

func (t *Tracker) detach(u *Unit) {
	p := u.PhysPage()
	list := t.owners[p]
	for i, o := range list {
		if o == u {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(t.owners, p)
	} else {
		t.owners[p] = list
	}
}

// Owners returns the units aliasing physical page p.
func (t *Tracker) Owners(p uint32) []*Unit { return t.owners[p] }

func (t *Tracker) IsPageStale(p uint32) bool {
	if p >= physPages {
		return false
	}
	return t.stale[p/64]&(1<<(p%64)) != 0
}

func (t *Tracker) Epoch(p uint32) uint32 {
	if p >= physPages {
		return 0
	}
	return t.epoch[p]
}

// IsStale reports whether u was built against an older version of its page.
func (t *Tracker) IsStale(u *Unit) bool {
	return u.State == Stale || u.Epoch != t.Epoch(u.PhysPage())
}

// Validate records that u matches the current contents of its page.
func (t *Tracker) Validate(u *Unit) {
	p := u.PhysPage()
	u.Epoch = t.Epoch(p)
	if p < physPages {
		t.stale[p/64] &^= 1 << (p % 64)
	}
}

// Invalidate is called before size bytes at phys are overwritten. Pages are marked
// stale when the write reaches a translated slot of any unit aliasing them.
func (t *Tracker) Invalidate(phys uint32, size uint32) {
	if size == 0 {
		return
	}
	t.Writes++
	phys &= memory.PhysMask
	end := phys + size
	for p := phys >> memory.PageShift; p <= (end-1)>>memory.PageShift && p < physPages; p++ {
		if t.IsPageStale(p) {
			continue
		}
		owners := t.owners[p]
		if len(owners) == 0 {
			continue
		}
		lo, hi := p<<memory.PageShift, (p+1)<<memory.PageShift
		if phys > lo {
			lo = phys
		}
		if end < hi {
			hi = end
		}
		hit := false
		for _, u := range owners {
			if u.State != Stale && u.coversCompiled(lo, hi) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		t.stale[p/64] |= 1 << (p % 64)
		t.epoch[p]++
		t.Invalidations++
		log.Debug(log.Inval, "page stale", "page", uint64(p), "epoch", t.epoch[p], "write", uint64(phys), "size", size)
		for _, u := range owners {
			if u.State == Compiled {
				u.State = Stale
				if t.OnStale != nil {
					t.OnStale(u)
				}
			}
		}
	}
}

// StalePages lists the pages whose stale bit is set.
func (t *Tracker) StalePages() []uint32 {
	var out []uint32
	for w, bits := range t.stale {
		for b := uint32(0); bits != 0 && b < 64; b++ {
			if bits&(1<<b) != 0 {
				out = append(out, uint32(w)*64+b)
			}
		}
	}
	return out
}

// MarkStale sets the stale bit of page p and retires the units built on it.
func (t *Tracker) MarkStale(p uint32) {
	if p >= physPages || t.IsPageStale(p) {
		return
	}
	t.stale[p/64] |= 1 << (p % 64)
	t.epoch[p]++
	for _, u := range t.owners[p] {
		if u.State == Compiled {
			u.State = Stale
		}
	}
}
