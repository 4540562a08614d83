package recompiler

import (
	"fmt"
	"sort"

	"github.com/xlab/treeprint"

	"github.com/colorfulnotion/r4300/log"
	"github.com/colorfulnotion/r4300/r4300/memory"
)

const (
	dirBits  = 10
	leafBits = 32 - memory.PageShift - dirBits
)

type unitLeaf [1 << leafBits]*Unit

// Store owns every translation unit, keyed by guest virtual page.
type Store struct {
	mem     memory.Memory
	tracker *Tracker
	dir     [1 << dirBits]*unitLeaf
	count   int

	// units evicted while possibly still executing; released at the next dispatch
	graveyard []*Unit
}

func NewStore(mem memory.Memory, tracker *Tracker) *Store {
	return &Store{mem: mem, tracker: tracker}
}

func pageIndex(vaddr uint32) (uint32, uint32) {
	vp := vaddr >> memory.PageShift
	return vp >> leafBits, vp & (1<<leafBits - 1)
}

// Get returns the unit covering the page of vaddr, or nil.
func (st *Store) Get(vaddr uint32) *Unit {
	d, l := pageIndex(vaddr)
	if int(d) >= len(st.dir) || st.dir[d] == nil {
		return nil
	}
	return st.dir[d][l]
}

func (st *Store) put(u *Unit) {
	d, l := pageIndex(u.Start)
	if st.dir[d] == nil {
		st.dir[d] = new(unitLeaf)
	}
	if st.dir[d][l] == nil {
		st.count++
	}
	st.dir[d][l] = u
}

// create builds the shell of the unit holding vaddr. The range is the guest page,
// clipped to the memory region backing it.
func (st *Store) create(vaddr uint32) (*Unit, error) {
	page := vaddr &^ (memory.PageSize - 1)
	phys, err := st.mem.Translate(page, memory.AccessFetch)
	if err != nil {
		return nil, err
	}
	rs, re, ok := st.mem.Region(phys)
	if !ok {
		return nil, fmt.Errorf("page 0x%08x (phys 0x%08x): %w", page, phys, ErrUnmapped)
	}
	start, end := page, page+memory.PageSize
	pstart := phys
	if rs > phys {
		start += rs - phys
		pstart = rs
	}
	if pend := phys + memory.PageSize; re < pend {
		end -= pend - re
	}
	if end <= start || !(vaddr >= start && vaddr < end) {
		return nil, fmt.Errorf("0x%08x outside region [0x%08x, 0x%08x): %w", vaddr, rs, re, ErrUnmapped)
	}
	u := newUnit(start, end, pstart)
	st.put(u)
	st.tracker.attach(u)
	log.Debug(log.Translate, "unit created", "start", uint64(start), "end", uint64(end), "phys", uint64(pstart))
	return u, nil
}

// Evict drops every mapped-segment unit intersecting the virtual range [lo, hi).
// Units in the direct segments are untouched since the TLB does not translate them.
func (st *Store) Evict(lo, hi uint32) int {
	n := 0
	for _, u := range st.Units() {
		if u.Direct() || u.End <= lo || u.Start >= hi {
			continue
		}
		st.remove(u)
		n++
	}
	if n > 0 {
		log.Debug(log.Translate, "units evicted", "lo", uint64(lo), "hi", uint64(hi), "count", n)
	}
	return n
}

func (st *Store) remove(u *Unit) {
	d, l := pageIndex(u.Start)
	if st.dir[d] != nil && st.dir[d][l] == u {
		st.dir[d][l] = nil
		st.count--
	}
	st.tracker.detach(u)
	u.State = Stale
	u.evicted = true
	st.graveyard = append(st.graveyard, u)
}

// Reap releases the code of evicted units. It must only run between unit executions.
func (st *Store) Reap() {
	for _, u := range st.graveyard {
		if u.Code != nil {
			u.Code.Release()
			u.Code = nil
		}
	}
	st.graveyard = st.graveyard[:0]
}

// Flush evicts every unit.
func (st *Store) Flush() {
	for _, u := range st.Units() {
		st.remove(u)
	}
}

func (st *Store) Len() int { return st.count }

// Units returns all live units ordered by start address.
func (st *Store) Units() []*Unit {
	var out []*Unit
	for _, leaf := range st.dir {
		if leaf == nil {
			continue
		}
		for _, u := range leaf {
			if u != nil {
				out = append(out, u)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Tree renders the store for the units command of the CLI.
func (st *Store) Tree(withOps bool) string {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("units: %d", st.count))
	for _, u := range st.Units() {
		code := 0
		if u.Code != nil {
			code = u.Code.Len()
		}
		label := fmt.Sprintf("[%08x, %08x) phys %08x %s slots %d/%d code %dB fp %s",
			u.Start, u.End, u.PhysStart, u.State, u.CompiledSlots(), u.Len(), code, u.Fingerprint.String_short())
		if u.Fallback {
			label += " fallback"
		}
		branch := tree.AddBranch(label)
		if !withOps {
			continue
		}
		for i := range u.Ops {
			op := &u.Ops[i]
			if op.Compiled() {
				branch.AddNode(fmt.Sprintf("%4d %s", i, op))
			}
		}
	}
	return tree.String()
}
