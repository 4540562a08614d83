package memory

// TLBEntry mirrors the CP0 view of one joint TLB entry.
type TLBEntry struct {
	PageMask uint32
	EntryHi  uint32
	EntryLo0 uint32
	EntryLo1 uint32
}

const (
	entryLoV = 1 << 1
	entryLoD = 1 << 2
	entryLoG = 1 << 0
	asidMask = 0xff
)

// TLB is the translation hook used for mapped segments and the TLB instructions.
type TLB interface {
	Size() int
	Read(index int) TLBEntry
	Write(index int, e TLBEntry)
	// Probe returns the index matching entryHi, or -1.
	Probe(entryHi uint32) int
	Lookup(vaddr uint32, asid uint8, kind AccessKind) (uint32, error)
}

// SoftTLB is a 32-entry software TLB. Page sizes follow PageMask but cache attributes
// are ignored.
type SoftTLB struct {
	entries [32]TLBEntry
}

func NewSoftTLB() *SoftTLB { return &SoftTLB{} }

func (t *SoftTLB) Size() int { return len(t.entries) }

func (t *SoftTLB) Read(index int) TLBEntry { return t.entries[index%len(t.entries)] }

func (t *SoftTLB) Write(index int, e TLBEntry) {
	e.PageMask &= 0x01ffe000
	t.entries[index%len(t.entries)] = e
}

func (t *SoftTLB) Probe(entryHi uint32) int {
	asid := entryHi & asidMask
	for i, e := range t.entries {
		vpnMask := ^(e.PageMask | 0x1fff)
		if e.EntryHi&vpnMask != entryHi&vpnMask {
			continue
		}
		if e.global() || e.EntryHi&asidMask == asid {
			return i
		}
	}
	return -1
}

func (e TLBEntry) global() bool {
	return e.EntryLo0&e.EntryLo1&entryLoG != 0
}

// Range returns the virtual range [lo, hi) covered by the entry pair.
func (e TLBEntry) Range() (lo, hi uint32) {
	size := (e.PageMask | 0x1fff) + 1
	lo = e.EntryHi &^ (size - 1)
	return lo, lo + size
}

func (t *SoftTLB) Lookup(vaddr uint32, asid uint8, kind AccessKind) (uint32, error) {
	for _, e := range t.entries {
		lo, hi := e.Range()
		if vaddr < lo || vaddr >= hi {
			continue
		}
		if !e.global() && uint8(e.EntryHi&asidMask) != asid {
			continue
		}
		half := (hi - lo) / 2
		entryLo := e.EntryLo0
		if vaddr-lo >= half {
			entryLo = e.EntryLo1
		}
		if entryLo&entryLoV == 0 {
			return 0, &Fault{Kind: FaultTLBInvalid, Access: kind, Addr: vaddr}
		}
		if kind == AccessStore && entryLo&entryLoD == 0 {
			return 0, &Fault{Kind: FaultTLBMod, Access: kind, Addr: vaddr}
		}
		pfn := (entryLo >> 6) << PageShift
		return pfn + (vaddr-lo)%half, nil
	}
	return 0, &Fault{Kind: FaultTLBMiss, Access: kind, Addr: vaddr}
}
